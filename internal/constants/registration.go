package constants

import "time"

const (
	// DefaultConfigFile is where the device configuration lives on a provisioned node.
	DefaultConfigFile = "/etc/waggle/config.ini"

	// DefaultNodeIDFile holds the device identifier written at manufacturing time.
	DefaultNodeIDFile = "/etc/waggle/node-id"

	// DefaultRegistrationUser is the account the registration authority accepts bootstrap logins on.
	DefaultRegistrationUser = "sage_registration"

	// CertificateSuffix is appended to a private key path to name its signed certificate.
	CertificateSuffix = "-cert.pub"

	// RegisterCommand is the remote command name understood by the registration authority.
	RegisterCommand = "register"

	// NotFoundSentinel is returned by the authority when it holds no credentials for a node.
	NotFoundSentinel = "cert file not found"

	// LockFileName is created next to the private key to serialize registration runs.
	LockFileName = ".registration.lock"
)

const (
	// DefaultRegistrationBudget bounds the total time spent retrying the remote exchange.
	DefaultRegistrationBudget = 300 * time.Second

	// DefaultRetryBackoff is the fixed sleep between failed attempts.
	DefaultRetryBackoff = 30 * time.Second

	// DefaultCommandTimeout caps a single remote command, connection included.
	DefaultCommandTimeout = 60 * time.Second

	// DefaultOutputSizeLimit caps how much remote output is buffered.
	DefaultOutputSizeLimit = 1024 * 1024 // 1MB

	// DefaultNotifyQOS is the MQTT QoS level used for registration events.
	DefaultNotifyQOS = 1
)
