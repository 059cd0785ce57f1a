package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/waggle-sensor/registration-agent/internal/constants"
	"github.com/waggle-sensor/registration-agent/internal/models"
	"github.com/waggle-sensor/registration-agent/pkg/credentials"
	"github.com/waggle-sensor/registration-agent/pkg/file"
	"github.com/waggle-sensor/registration-agent/pkg/sshexec"
)

// Clock is the subset of github.com/benbjohnson/clock used for retry pacing.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// EventPublisher announces a completed registration.
type EventPublisher interface {
	Publish(ctx context.Context, event models.RegistrationEvent) error
}

// RegistrationConfig holds the per-run settings of a RegistrationService.
type RegistrationConfig struct {
	NodeID       string
	RunID        string
	AgentVersion string
	Endpoint     models.RegistrationEndpoint

	// Budget is the total wall-clock time allowed for the remote exchange.
	Budget time.Duration
	// Backoff is the fixed sleep after a failed attempt.
	Backoff time.Duration
	// Strict enables SSH decoding checks on the issued identity.
	Strict bool
}

// Result summarizes a finished run.
type Result struct {
	State    State
	Attempts int
	Skipped  bool
}

// RegistrationService drives a device from no credentials to an installed
// identity issued by the registration authority.
type RegistrationService struct {
	// Configuration fields
	nodeID       string
	runID        string
	agentVersion string
	endpoint     models.RegistrationEndpoint
	budget       time.Duration
	backoff      time.Duration
	strict       bool

	// Dependencies
	store      credentials.CredentialStoreInterface
	transport  sshexec.RemoteExecutor
	fileClient file.FileOperations
	publisher  EventPublisher
	clock      Clock
	logger     zerolog.Logger

	state State
}

// NewRegistrationService initializes and returns a new RegistrationService
// instance. publisher may be nil.
func NewRegistrationService(
	config RegistrationConfig,
	store credentials.CredentialStoreInterface,
	transport sshexec.RemoteExecutor,
	fileClient file.FileOperations,
	publisher EventPublisher,
	clock Clock,
	logger zerolog.Logger,
) *RegistrationService {
	if config.Budget == 0 {
		config.Budget = constants.DefaultRegistrationBudget
	}
	if config.Backoff == 0 {
		config.Backoff = constants.DefaultRetryBackoff
	}

	return &RegistrationService{
		nodeID:       config.NodeID,
		runID:        config.RunID,
		agentVersion: config.AgentVersion,
		endpoint:     config.Endpoint,
		budget:       config.Budget,
		backoff:      config.Backoff,
		strict:       config.Strict,
		store:        store,
		transport:    transport,
		fileClient:   fileClient,
		publisher:    publisher,
		clock:        clock,
		logger:       logger.With().Str("component", "registration").Str("node_id", config.NodeID).Logger(),
	}
}

// State returns the step the service last entered.
func (rs *RegistrationService) State() State {
	return rs.state
}

// Run executes the registration protocol once. It returns without touching
// the network when the credential set is already complete.
func (rs *RegistrationService) Run(ctx context.Context) (Result, error) {
	var result Result

	rs.transition(StateCheckingCompletion)

	// A complete set is a no-op and does not take the lock.
	if rs.store.IsComplete() {
		return rs.skip(result), nil
	}

	unlock, err := rs.store.Lock()
	if err != nil {
		return rs.fail(result, err)
	}
	defer func() {
		if err := unlock(); err != nil {
			rs.logger.Warn().Err(err).Msg("Failed to release registration lock")
		}
	}()

	// Another instance may have finished while we waited for the lock.
	if rs.store.IsComplete() {
		return rs.skip(result), nil
	}

	if err := rs.endpoint.Validate(); err != nil {
		return rs.fail(result, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err))
	}

	rs.transition(StateRequesting)
	response, attempts, err := rs.request(ctx)
	result.Attempts = attempts
	if err != nil {
		return rs.fail(result, err)
	}

	rs.transition(StateValidating)
	identity, err := rs.parseResponse(response)
	if err != nil {
		return rs.fail(result, err)
	}

	rs.transition(StatePersisting)
	if err := rs.store.Persist(identity); err != nil {
		return rs.fail(result, err)
	}

	rs.transition(StateCleaningUp)
	rs.removeBootstrapCredential()

	rs.transition(StateDone)
	rs.logger.Info().Int("attempts", attempts).Msg("Registration complete")
	rs.announce(ctx, attempts)

	result.State = StateDone
	return result, nil
}

// request runs the remote registration command until it succeeds, the budget
// is spent, or ctx is cancelled. Only transport failures are retried.
func (rs *RegistrationService) request(ctx context.Context) (string, int, error) {
	command := constants.RegisterCommand + " " + rs.nodeID
	host := rs.endpoint.Address()

	rs.logger.Info().
		Str("host", host).
		Str("user", rs.endpoint.User).
		Dur("budget", rs.budget).
		Msg("Requesting credentials")

	start := rs.clock.Now()
	attempts := 0

	for elapsed := time.Duration(0); elapsed < rs.budget; elapsed = rs.clock.Now().Sub(start) {
		if err := ctx.Err(); err != nil {
			return "", attempts, fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, rs.budget-elapsed)
		response, err := rs.transport.Execute(attemptCtx, rs.endpoint, command)
		cancel()
		if err == nil {
			rs.logger.Debug().Int("attempt", attempts).Int("bytes", len(response)).Msg("Received registration response")
			return response, attempts, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", attempts, fmt.Errorf("%w: %w", ErrCancelled, ctxErr)
		}

		rs.logger.Error().
			Err(err).
			Str("host", host).
			Int("attempt", attempts).
			Dur("retry_in", rs.backoff).
			Msg("Failed to get credentials. Will retry")

		select {
		case <-rs.clock.After(rs.backoff):
		case <-ctx.Done():
			rs.logger.Warn().Msg("Registration stopping during retry delay")
			return "", attempts, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
	}

	return "", attempts, fmt.Errorf("%w: no response from %s within %s after %d attempts", ErrTimeout, host, rs.budget, attempts)
}

// parseResponse turns the raw command output into an IssuedIdentity.
// Rejections and malformed payloads are permanent.
func (rs *RegistrationService) parseResponse(response string) (models.IssuedIdentity, error) {
	var identity models.IssuedIdentity

	if strings.Contains(response, constants.NotFoundSentinel) {
		return identity, fmt.Errorf("%w: certificate not found for %s", ErrNotRegistered, rs.nodeID)
	}

	if err := json.Unmarshal([]byte(response), &identity); err != nil {
		return identity, fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	if missing := identity.MissingFields(); len(missing) > 0 {
		return identity, fmt.Errorf("%w: missing %s", ErrProtocol, strings.Join(missing, ", "))
	}

	if rs.strict {
		if err := credentials.ValidateSSHIdentity(identity); err != nil {
			return identity, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
	}

	return identity, nil
}

// removeBootstrapCredential deletes the one-time key and certificate. Failures
// only affect hygiene and are logged.
func (rs *RegistrationService) removeBootstrapCredential() {
	certPath, _ := rs.endpoint.CertificatePath()

	for _, path := range []string{rs.endpoint.BootstrapKeyPath, certPath} {
		err := rs.fileClient.RemoveFile(path)
		switch {
		case err == nil:
			rs.logger.Info().Str("path", path).Msg("Removed bootstrap credential")
		case errors.Is(err, os.ErrNotExist):
			rs.logger.Debug().Str("path", path).Msg("Bootstrap credential already absent")
		default:
			rs.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove bootstrap credential")
		}
	}
}

// announce publishes the registration event when a publisher is configured.
func (rs *RegistrationService) announce(ctx context.Context, attempts int) {
	if rs.publisher == nil {
		return
	}

	event := models.RegistrationEvent{
		NodeID:       rs.nodeID,
		RunID:        rs.runID,
		AgentVersion: rs.agentVersion,
		RegisteredAt: rs.clock.Now().UTC(),
		Attempts:     attempts,
	}
	if err := rs.publisher.Publish(ctx, event); err != nil {
		rs.logger.Warn().Err(err).Msg("Failed to publish registration event")
	}
}

func (rs *RegistrationService) skip(result Result) Result {
	rs.logger.Info().Msg("Node already has all credentials. Skipping registration.")
	rs.transition(StateDone)
	result.State = StateDone
	result.Skipped = true
	return result
}

func (rs *RegistrationService) transition(next State) {
	rs.logger.Debug().Stringer("from", rs.state).Stringer("to", next).Msg("State transition")
	rs.state = next
}

func (rs *RegistrationService) fail(result Result, err error) (Result, error) {
	rs.transition(StateFailed)
	rs.logger.Error().Err(err).Msg("Registration failed")
	result.State = StateFailed
	return result, err
}
