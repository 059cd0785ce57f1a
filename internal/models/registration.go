package models

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/waggle-sensor/registration-agent/internal/constants"
)

// IssuedIdentity is the credential triple handed out by the registration authority.
type IssuedIdentity struct {
	// PublicKey is the device public key in authorized_keys format.
	PublicKey string `json:"public_key"`

	// PrivateKey is the matching private key, usually PEM encoded.
	PrivateKey string `json:"private_key"`

	// Certificate is the public key signed by the authority.
	Certificate string `json:"certificate"`
}

// MissingFields lists the JSON names of every empty field.
func (i IssuedIdentity) MissingFields() []string {
	var missing []string
	if i.PublicKey == "" {
		missing = append(missing, "public_key")
	}
	if i.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if i.Certificate == "" {
		missing = append(missing, "certificate")
	}
	return missing
}

// RegistrationEndpoint describes how to reach the registration authority.
type RegistrationEndpoint struct {
	Host string
	Port string
	User string

	// BootstrapKeyPath is the one-time private key used to authenticate.
	BootstrapKeyPath string

	// BootstrapCertPath is optional; see CertificatePath.
	BootstrapCertPath string

	// KnownHostsPath enables host key verification when set.
	KnownHostsPath string
}

// Address returns host:port suitable for dialing.
func (e RegistrationEndpoint) Address() string {
	return net.JoinHostPort(e.Host, e.Port)
}

// CertificatePath returns the bootstrap certificate path and whether it was
// configured explicitly. Without an explicit path the certificate is expected
// next to the key, named with CertificateSuffix.
func (e RegistrationEndpoint) CertificatePath() (string, bool) {
	if e.BootstrapCertPath != "" {
		return e.BootstrapCertPath, true
	}
	return e.BootstrapKeyPath + constants.CertificateSuffix, false
}

// Validate reports every required field that is empty.
func (e RegistrationEndpoint) Validate() error {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"host", e.Host},
		{"port", e.Port},
		{"user", e.User},
		{"key", e.BootstrapKeyPath},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("registration endpoint missing %s", strings.Join(missing, ", "))
}

// CredentialFileSet names the three files that make up an installed identity.
type CredentialFileSet struct {
	PublicKeyPath   string
	PrivateKeyPath  string
	CertificatePath string
}

// NewCredentialFileSet derives the certificate path from the private key path.
func NewCredentialFileSet(publicKeyPath, privateKeyPath string) CredentialFileSet {
	return CredentialFileSet{
		PublicKeyPath:   publicKeyPath,
		PrivateKeyPath:  privateKeyPath,
		CertificatePath: privateKeyPath + constants.CertificateSuffix,
	}
}

// Paths returns the files in the order they are installed.
func (s CredentialFileSet) Paths() []string {
	return []string{s.PublicKeyPath, s.CertificatePath, s.PrivateKeyPath}
}

// Validate checks that both configured paths are present.
func (s CredentialFileSet) Validate() error {
	if s.PublicKeyPath == "" || s.PrivateKeyPath == "" {
		return errors.New("credential file set requires public and private key paths")
	}
	return nil
}

// RegistrationEvent is published once a node has installed a fresh identity.
type RegistrationEvent struct {
	NodeID       string     `json:"node_id"`
	RunID        string     `json:"run_id"`
	AgentVersion string     `json:"agent_version,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	Attempts     int        `json:"attempts"`
	Host         *HostFacts `json:"host,omitempty"`
}

// HostFacts describes the machine that registered.
type HostFacts struct {
	Hostname        string    `json:"hostname"`
	OS              string    `json:"os"`
	Platform        string    `json:"platform,omitempty"`
	PlatformVersion string    `json:"platform_version,omitempty"`
	KernelVersion   string    `json:"kernel_version,omitempty"`
	KernelArch      string    `json:"kernel_arch,omitempty"`
	BootTime        time.Time `json:"boot_time"`
}
