package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/waggle-sensor/registration-agent/internal/constants"
	"github.com/waggle-sensor/registration-agent/internal/services"
	"github.com/waggle-sensor/registration-agent/internal/utils"
	"github.com/waggle-sensor/registration-agent/internal/version"
	"github.com/waggle-sensor/registration-agent/pkg/credentials"
	"github.com/waggle-sensor/registration-agent/pkg/file"
	"github.com/waggle-sensor/registration-agent/pkg/hostinfo"
	"github.com/waggle-sensor/registration-agent/pkg/identity"
	"github.com/waggle-sensor/registration-agent/pkg/mqtt"
	"github.com/waggle-sensor/registration-agent/pkg/sshexec"
)

// Process exit codes.
const (
	exitFailure      = 1
	exitPrecondition = 2
	exitLocked       = 3
)

var flagConfig = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   constants.DefaultConfigFile,
	Usage:   "Path to the node configuration file",
	EnvVars: []string{"REGISTRATION_CONFIG"},
}

var flagNodeIDFile = &cli.StringFlag{
	Name:  "node-id-file",
	Usage: "Override the node identifier file from the configuration",
}

func main() {
	app := &cli.App{
		Name:    "registration-agent",
		Usage:   "obtain this node's identity from the registration authority",
		Version: version.String(),
		Flags:   []cli.Flag{flagConfig, flagNodeIDFile},
		Action:  run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
}

func run(cCtx *cli.Context) error {
	runID := uuid.NewString()

	// Set up structured logging with JSON output
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "registration-agent").
		Str("run_id", runID).
		Logger()

	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(cCtx.String(flagConfig.Name), fileClient)
	if err != nil {
		return cli.Exit(err.Error(), exitPrecondition)
	}

	level, _ := zerolog.ParseLevel(config.Logging.Level)
	logger = logger.Level(level)

	if override := cCtx.String(flagNodeIDFile.Name); override != "" {
		config.System.NodeIDFile = override
	}

	deviceInfo := identity.NewDeviceInfo(config.System.NodeIDFile, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		return cli.Exit(err.Error(), exitPrecondition)
	}

	logger.Info().
		Str("version", version.String()).
		Str("node_id", deviceInfo.GetDeviceID()).
		Msg("Starting registration agent")

	ctx, stop := signal.NotifyContext(cCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := credentials.NewCredentialStore(config.FileSet(), fileClient, logger)
	transport := sshexec.NewSSHTransport(
		fileClient,
		logger,
		config.ConnectionTimeout,
		config.CommandTimeout,
		config.Registration.OutputLimit,
	)

	var publisher services.EventPublisher
	if config.Notify.Enabled {
		publisher = mqtt.NewEventPublisher(
			mqtt.NewMqttService(fileClient),
			config.Notify.Broker,
			config.Notify.ClientID+"-"+runID,
			config.Notify.CACertificate,
			config.Notify.Topic,
			config.Notify.QOS,
			hostinfo.NewHostCollector(logger),
			logger,
		)
	}

	registrationService := services.NewRegistrationService(
		services.RegistrationConfig{
			NodeID:       deviceInfo.GetDeviceID(),
			RunID:        runID,
			AgentVersion: version.String(),
			Endpoint:     config.Endpoint(),
			Budget:       config.RetryBudget,
			Backoff:      config.RetryBackoff,
			Strict:       config.Registration.Strict,
		},
		store,
		transport,
		fileClient,
		publisher,
		clock.New(),
		logger,
	)

	if _, err := registrationService.Run(ctx); err != nil {
		return cli.Exit(err.Error(), exitCode(err))
	}
	return nil
}

// exitCode maps a registration failure to the process exit status.
func exitCode(err error) int {
	switch {
	case errors.Is(err, file.ErrLocked):
		return exitLocked
	case errors.Is(err, services.ErrInvalidEndpoint):
		return exitPrecondition
	default:
		return exitFailure
	}
}
