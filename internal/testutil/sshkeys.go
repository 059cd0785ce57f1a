// Package testutil holds helpers shared by tests that need real SSH material.
package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// KeyPair is an ed25519 SSH key pair in its on-disk encodings.
type KeyPair struct {
	Signer        ssh.Signer
	PrivateKeyPEM []byte
	AuthorizedKey []byte
}

// NewKeyPair generates a fresh ed25519 key pair.
func NewKeyPair(t testing.TB) KeyPair {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("create signer: %v", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}

	return KeyPair{
		Signer:        signer,
		PrivateKeyPEM: pem.EncodeToMemory(block),
		AuthorizedKey: ssh.MarshalAuthorizedKey(signer.PublicKey()),
	}
}

// SignUserCertificate issues a user certificate for key, signed by ca and
// valid for the next hour.
func SignUserCertificate(t testing.TB, ca ssh.Signer, key ssh.PublicKey, principals ...string) []byte {
	t.Helper()

	now := time.Now()
	cert := &ssh.Certificate{
		Key:             key,
		Serial:          1,
		CertType:        ssh.UserCert,
		KeyId:           "test",
		ValidPrincipals: principals,
		ValidAfter:      uint64(now.Add(-time.Minute).Unix()),
		ValidBefore:     uint64(now.Add(time.Hour).Unix()),
	}
	if err := cert.SignCert(rand.Reader, ca); err != nil {
		t.Fatalf("sign certificate: %v", err)
	}

	return ssh.MarshalAuthorizedKey(cert)
}
