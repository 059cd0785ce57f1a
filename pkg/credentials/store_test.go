package credentials_test

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/waggle-sensor/registration-agent/internal/mocks"
	"github.com/waggle-sensor/registration-agent/internal/models"
	"github.com/waggle-sensor/registration-agent/pkg/credentials"
	"github.com/waggle-sensor/registration-agent/pkg/file"
)

func newFileSet(dir string) models.CredentialFileSet {
	return models.NewCredentialFileSet(
		filepath.Join(dir, "etc", "waggle", "pubkey.pem"),
		filepath.Join(dir, "etc", "waggle", "key.pem"),
	)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// TestCredentialStore_IsComplete walks the completeness predicate through its states.
func TestCredentialStore_IsComplete(t *testing.T) {
	dir := t.TempDir()
	files := newFileSet(dir)
	store := credentials.NewCredentialStore(files, file.NewFileService(), zerolog.Nop())

	assert.False(t, store.IsComplete(), "nothing on disk")

	require.NoError(t, os.MkdirAll(filepath.Dir(files.PrivateKeyPath), 0700))
	require.NoError(t, os.WriteFile(files.PublicKeyPath, []byte("pub"), 0600))
	require.NoError(t, os.WriteFile(files.PrivateKeyPath, []byte("key"), 0600))
	assert.False(t, store.IsComplete(), "certificate missing")

	require.NoError(t, os.WriteFile(files.CertificatePath, nil, 0600))
	assert.False(t, store.IsComplete(), "certificate empty")

	require.NoError(t, os.WriteFile(files.CertificatePath, []byte("cert"), 0600))
	assert.True(t, store.IsComplete())
}

// TestCredentialStore_IsComplete_StatError treats an unreadable file as incomplete.
func TestCredentialStore_IsComplete_StatError(t *testing.T) {
	files := newFileSet("/node")
	mockFile := new(mocks.FileOperations)
	mockFile.On("IsFileNonEmpty", files.PublicKeyPath).Return(false, errors.New("permission denied"))

	store := credentials.NewCredentialStore(files, mockFile, zerolog.Nop())

	assert.False(t, store.IsComplete())
	mockFile.AssertExpectations(t)
}

// TestCredentialStore_Persist_RoundTrip reads back exactly what was persisted, with owner-only permissions.
func TestCredentialStore_Persist_RoundTrip(t *testing.T) {
	old := syscall.Umask(0)
	defer syscall.Umask(old)

	dir := t.TempDir()
	files := newFileSet(dir)
	store := credentials.NewCredentialStore(files, file.NewFileService(), zerolog.Nop())

	err := store.Persist(models.IssuedIdentity{PublicKey: "A", PrivateKey: "B", Certificate: "C"})
	require.NoError(t, err)

	assert.Equal(t, "A", readFile(t, files.PublicKeyPath))
	assert.Equal(t, "B", readFile(t, files.PrivateKeyPath))
	assert.Equal(t, "C", readFile(t, files.CertificatePath))

	for _, path := range files.Paths() {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), path)
	}

	entries, err := os.ReadDir(filepath.Dir(files.PrivateKeyPath))
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no staging leftovers")
	assert.True(t, store.IsComplete())
}

// TestCredentialStore_Persist_MissingField refuses a partial triple without touching disk.
func TestCredentialStore_Persist_MissingField(t *testing.T) {
	partials := map[string]models.IssuedIdentity{
		"public_key":  {PrivateKey: "B", Certificate: "C"},
		"private_key": {PublicKey: "A", Certificate: "C"},
		"certificate": {PublicKey: "A", PrivateKey: "B"},
	}

	for field, identity := range partials {
		t.Run(field, func(t *testing.T) {
			dir := t.TempDir()
			files := newFileSet(dir)
			store := credentials.NewCredentialStore(files, file.NewFileService(), zerolog.Nop())

			err := store.Persist(identity)

			var storeErr *credentials.StoreError
			require.ErrorAs(t, err, &storeErr)
			assert.Equal(t, "validate", storeErr.Op)
			assert.ErrorIs(t, err, credentials.ErrIncompleteIdentity)
			assert.Contains(t, err.Error(), field)

			_, statErr := os.Stat(filepath.Join(dir, "etc"))
			assert.True(t, os.IsNotExist(statErr), "no directory or file may be created")
		})
	}
}

// TestCredentialStore_Persist_StageFailure discards already staged files and installs nothing.
func TestCredentialStore_Persist_StageFailure(t *testing.T) {
	files := newFileSet("/node")
	mockFile := new(mocks.FileOperations)

	mockFile.On("StageFile", files.PublicKeyPath, []byte("A"), os.FileMode(0600)).Return("/node/.pub.tmp", nil)
	mockFile.On("StageFile", files.CertificatePath, []byte("C"), os.FileMode(0600)).Return("", errors.New("disk full"))
	mockFile.On("RemoveFile", "/node/.pub.tmp").Return(nil)

	store := credentials.NewCredentialStore(files, mockFile, zerolog.Nop())
	err := store.Persist(models.IssuedIdentity{PublicKey: "A", PrivateKey: "B", Certificate: "C"})

	var storeErr *credentials.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "write", storeErr.Op)
	assert.Equal(t, files.CertificatePath, storeErr.Path)
	mockFile.AssertExpectations(t)
	mockFile.AssertNotCalled(t, "CommitFile", mock.Anything, mock.Anything)
}

// TestCredentialStore_Persist_InstallFailureRollsBack removes files installed earlier in the same call.
func TestCredentialStore_Persist_InstallFailureRollsBack(t *testing.T) {
	files := newFileSet("/node")
	mockFile := new(mocks.FileOperations)

	mockFile.On("StageFile", files.PublicKeyPath, mock.Anything, os.FileMode(0600)).Return("/tmp/pub", nil)
	mockFile.On("StageFile", files.CertificatePath, mock.Anything, os.FileMode(0600)).Return("/tmp/cert", nil)
	mockFile.On("StageFile", files.PrivateKeyPath, mock.Anything, os.FileMode(0600)).Return("/tmp/key", nil)
	mockFile.On("CommitFile", "/tmp/pub", files.PublicKeyPath).Return(nil)
	mockFile.On("CommitFile", "/tmp/cert", files.CertificatePath).Return(errors.New("read-only file system"))
	mockFile.On("RemoveFile", "/tmp/cert").Return(nil)
	mockFile.On("RemoveFile", "/tmp/key").Return(nil)
	mockFile.On("RemoveFile", files.PublicKeyPath).Return(nil)

	store := credentials.NewCredentialStore(files, mockFile, zerolog.Nop())
	err := store.Persist(models.IssuedIdentity{PublicKey: "A", PrivateKey: "B", Certificate: "C"})

	var storeErr *credentials.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "install", storeErr.Op)
	mockFile.AssertExpectations(t)
	mockFile.AssertNotCalled(t, "CommitFile", "/tmp/key", files.PrivateKeyPath)
}

// TestCredentialStore_Lock places the lock next to the private key and surfaces contention.
func TestCredentialStore_Lock(t *testing.T) {
	dir := t.TempDir()
	files := newFileSet(dir)
	store := credentials.NewCredentialStore(files, file.NewFileService(), zerolog.Nop())

	unlock, err := store.Lock()
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(filepath.Dir(files.PrivateKeyPath), ".registration.lock"))

	_, err = store.Lock()
	var storeErr *credentials.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "lock", storeErr.Op)
	assert.ErrorIs(t, err, file.ErrLocked)

	assert.NoError(t, unlock())
}
