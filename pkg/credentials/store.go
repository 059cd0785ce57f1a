package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/waggle-sensor/registration-agent/internal/constants"
	"github.com/waggle-sensor/registration-agent/internal/models"
	"github.com/waggle-sensor/registration-agent/pkg/file"
)

// credentialFileMode is owner read/write only.
const credentialFileMode os.FileMode = 0600

// ErrIncompleteIdentity is returned by Persist when a field of the triple is empty.
var ErrIncompleteIdentity = errors.New("issued identity is incomplete")

// StoreError describes a failed persistence step.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("credential store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("credential store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// CredentialStoreInterface is what the registration service needs from storage.
type CredentialStoreInterface interface {
	IsComplete() bool
	Persist(identity models.IssuedIdentity) error
	Lock() (func() error, error)
}

// CredentialStore installs the issued identity on local storage.
type CredentialStore struct {
	files      models.CredentialFileSet
	fileClient file.FileOperations
	logger     zerolog.Logger
}

// NewCredentialStore initializes a store for the given file set.
func NewCredentialStore(files models.CredentialFileSet, fileClient file.FileOperations, logger zerolog.Logger) *CredentialStore {
	return &CredentialStore{
		files:      files,
		fileClient: fileClient,
		logger:     logger.With().Str("component", "credential_store").Logger(),
	}
}

// IsComplete is true iff every credential file exists and is non-empty.
func (s *CredentialStore) IsComplete() bool {
	for _, path := range s.files.Paths() {
		ok, err := s.fileClient.IsFileNonEmpty(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Unable to inspect credential file")
			return false
		}
		if !ok {
			s.logger.Debug().Str("path", path).Msg("Credential file missing or empty")
			return false
		}
	}
	return true
}

// Lock serializes registration runs that share this file set.
func (s *CredentialStore) Lock() (func() error, error) {
	lockPath := filepath.Join(filepath.Dir(s.files.PrivateKeyPath), constants.LockFileName)
	unlock, err := s.fileClient.Lock(lockPath)
	if err != nil {
		return nil, &StoreError{Op: "lock", Path: lockPath, Err: err}
	}
	return unlock, nil
}

// Persist writes the public key, certificate and private key. Every file is
// staged first; nothing is installed unless all three staged cleanly. If an
// install step fails, files installed by this call are removed again so the
// set never looks complete after a failed write.
func (s *CredentialStore) Persist(identity models.IssuedIdentity) error {
	if missing := identity.MissingFields(); len(missing) > 0 {
		return &StoreError{
			Op:  "validate",
			Err: fmt.Errorf("%w: missing %s", ErrIncompleteIdentity, strings.Join(missing, ", ")),
		}
	}

	artifacts := []struct {
		path    string
		content string
	}{
		{s.files.PublicKeyPath, identity.PublicKey},
		{s.files.CertificatePath, identity.Certificate},
		{s.files.PrivateKeyPath, identity.PrivateKey},
	}

	staged := make([]string, 0, len(artifacts))
	discard := func(paths []string) {
		for _, p := range paths {
			if err := s.fileClient.RemoveFile(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn().Err(err).Str("path", p).Msg("Failed to remove staged credential file")
			}
		}
	}

	for _, a := range artifacts {
		tmp, err := s.fileClient.StageFile(a.path, []byte(a.content), credentialFileMode)
		if err != nil {
			discard(staged)
			return &StoreError{Op: "write", Path: a.path, Err: err}
		}
		staged = append(staged, tmp)
	}

	for i, a := range artifacts {
		if err := s.fileClient.CommitFile(staged[i], a.path); err != nil {
			discard(staged[i:])
			installed := make([]string, 0, i)
			for _, done := range artifacts[:i] {
				installed = append(installed, done.path)
			}
			discard(installed)
			return &StoreError{Op: "install", Path: a.path, Err: err}
		}
		s.logger.Debug().Str("path", a.path).Msg("Installed credential file")
	}

	s.logger.Info().
		Str("public_key", s.files.PublicKeyPath).
		Str("private_key", s.files.PrivateKeyPath).
		Str("certificate", s.files.CertificatePath).
		Msg("Credentials persisted")
	return nil
}
