package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/waggle-sensor/registration-agent/internal/constants"
	"github.com/waggle-sensor/registration-agent/internal/models"
	"github.com/waggle-sensor/registration-agent/pkg/file"
)

// ErrOutputLimit is reported when the remote command writes more than the configured limit.
var ErrOutputLimit = errors.New("remote output exceeds limit")

// maxStderrInError bounds how much remote stderr is carried in a TransportError.
const maxStderrInError = 512

// TransportError collapses every way a remote command can fail.
type TransportError struct {
	Host    string
	Command string
	Stderr  string
	Err     error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("remote %q on %s: %v", e.Command, e.Host, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteExecutor runs a single command on the registration authority.
type RemoteExecutor interface {
	Execute(ctx context.Context, endpoint models.RegistrationEndpoint, command string) (string, error)
}

// SSHTransport executes commands over an SSH session authenticated with the
// bootstrap key, and its certificate when one is available. It never retries.
type SSHTransport struct {
	fileClient        file.FileOperations
	logger            zerolog.Logger
	connectionTimeout time.Duration
	commandTimeout    time.Duration
	outputSizeLimit   int

	insecureOnce sync.Once
}

// NewSSHTransport initializes an SSHTransport. Zero values fall back to defaults.
func NewSSHTransport(fileClient file.FileOperations, logger zerolog.Logger, connectionTimeout, commandTimeout time.Duration, outputSizeLimit int) *SSHTransport {
	if connectionTimeout == 0 {
		connectionTimeout = constants.ConnectionTimeout
	}
	if commandTimeout == 0 {
		commandTimeout = constants.DefaultCommandTimeout
	}
	if outputSizeLimit == 0 {
		outputSizeLimit = constants.DefaultOutputSizeLimit
	}

	return &SSHTransport{
		fileClient:        fileClient,
		logger:            logger.With().Str("component", "ssh_transport").Logger(),
		connectionTimeout: connectionTimeout,
		commandTimeout:    commandTimeout,
		outputSizeLimit:   outputSizeLimit,
	}
}

// Execute opens a session to the endpoint, runs command and returns its stdout.
func (t *SSHTransport) Execute(ctx context.Context, endpoint models.RegistrationEndpoint, command string) (string, error) {
	addr := endpoint.Address()
	commandName, _, _ := strings.Cut(command, " ")
	fail := func(err error, stderr string) (string, error) {
		return "", &TransportError{Host: addr, Command: commandName, Stderr: stderr, Err: err}
	}

	config, err := t.clientConfig(endpoint)
	if err != nil {
		return fail(err, "")
	}

	t.logger.Info().
		Str("host", addr).
		Str("user", endpoint.User).
		Str("command", commandName).
		Msg("Executing remote command")

	ctx, cancel := context.WithTimeout(ctx, t.commandTimeout)
	defer cancel()

	dialer := net.Dialer{Timeout: t.connectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fail(fmt.Errorf("dial: %w", err), "")
	}
	// x/crypto/ssh has no context support; closing the socket unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(ctxErr, "")
		}
		return fail(fmt.Errorf("handshake: %w", err), "")
	}
	client := ssh.NewClient(clientConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fail(fmt.Errorf("create session: %w", err), "")
	}
	defer session.Close()

	stdout := &limitedBuffer{limit: t.outputSizeLimit}
	stderr := &limitedBuffer{limit: maxStderrInError}
	session.Stdout = stdout
	session.Stderr = stderr

	err = session.Run(command)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fail(ctxErr, "")
	}
	if err != nil {
		return fail(err, strings.TrimSpace(stderr.String()))
	}
	if stdout.exceeded {
		return fail(fmt.Errorf("%w of %d bytes", ErrOutputLimit, t.outputSizeLimit), "")
	}

	t.logger.Debug().Str("host", addr).Int("bytes", stdout.buf.Len()).Msg("Remote command completed")
	return stdout.String(), nil
}

// clientConfig builds the SSH client configuration from the bootstrap credential.
func (t *SSHTransport) clientConfig(endpoint models.RegistrationEndpoint) (*ssh.ClientConfig, error) {
	key, err := t.fileClient.ReadFileRaw(endpoint.BootstrapKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bootstrap key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bootstrap key: %w", err)
	}

	certPath, explicit := endpoint.CertificatePath()
	certBytes, err := t.fileClient.ReadFileRaw(certPath)
	switch {
	case err == nil:
		signer, err = certSigner(certBytes, signer)
		if err != nil {
			return nil, err
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read bootstrap certificate: %w", err)
	default:
		t.logger.Debug().Str("path", certPath).Msg("No bootstrap certificate, using key only")
	}

	hostKeyCallback, err := t.hostKeyCallback(endpoint)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            endpoint.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.connectionTimeout,
	}, nil
}

func (t *SSHTransport) hostKeyCallback(endpoint models.RegistrationEndpoint) (ssh.HostKeyCallback, error) {
	if endpoint.KnownHostsPath != "" {
		callback, err := knownhosts.New(endpoint.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		return callback, nil
	}

	t.insecureOnce.Do(func() {
		t.logger.Warn().Str("host", endpoint.Address()).Msg("No known_hosts configured, registration host key is not verified")
	})
	return ssh.InsecureIgnoreHostKey(), nil
}

func certSigner(certBytes []byte, signer ssh.Signer) (ssh.Signer, error) {
	pub, _, _, _, err := ssh.ParseAuthorizedKey(certBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bootstrap certificate: %w", err)
	}
	cert, ok := pub.(*ssh.Certificate)
	if !ok {
		return nil, errors.New("bootstrap certificate is not an SSH certificate")
	}
	certSigner, err := ssh.NewCertSigner(cert, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate signer: %w", err)
	}
	return certSigner, nil
}

// limitedBuffer keeps at most limit bytes and silently drops the rest so the
// remote side is never blocked on a full window.
type limitedBuffer struct {
	buf      bytes.Buffer
	limit    int
	exceeded bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if len(p) > room {
		b.exceeded = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
