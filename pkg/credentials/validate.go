package credentials

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/waggle-sensor/registration-agent/internal/models"
)

// ValidateSSHIdentity checks that the triple decodes as an SSH key pair with a
// certificate issued for the same public key.
func ValidateSSHIdentity(identity models.IssuedIdentity) error {
	signer, err := ssh.ParsePrivateKey([]byte(identity.PrivateKey))
	if err != nil {
		return fmt.Errorf("private_key: %w", err)
	}

	publicKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(identity.PublicKey))
	if err != nil {
		return fmt.Errorf("public_key: %w", err)
	}

	certKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(identity.Certificate))
	if err != nil {
		return fmt.Errorf("certificate: %w", err)
	}
	cert, ok := certKey.(*ssh.Certificate)
	if !ok {
		return errors.New("certificate: not an SSH certificate")
	}

	if !bytes.Equal(signer.PublicKey().Marshal(), publicKey.Marshal()) {
		return errors.New("public_key does not match private_key")
	}
	if !bytes.Equal(cert.Key.Marshal(), publicKey.Marshal()) {
		return errors.New("certificate was not issued for public_key")
	}
	return nil
}
