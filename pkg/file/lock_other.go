//go:build !unix

package file

import (
	"fmt"
	"os"
	"path/filepath"
)

// Lock creates filePath exclusively. Platforms without flock fall back to an
// O_EXCL marker that is removed on release.
func (fs *FileService) Lock(filePath string) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if os.IsExist(err) {
		return nil, fmt.Errorf("%s: %w", filePath, ErrLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	return func() error {
		f.Close()
		return os.Remove(filePath)
	}, nil
}
