package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/waggle-sensor/registration-agent/pkg/file"
)

var (
	// ErrIdentityMissing is returned when the node id file does not exist.
	ErrIdentityMissing = errors.New("device identity file missing")

	// ErrIdentityEmpty is returned when the node id file has no content.
	ErrIdentityEmpty = errors.New("device identity file empty")
)

// DeviceInfoInterface defines methods for managing device identity.
type DeviceInfoInterface interface {
	LoadDeviceInfo() error
	GetDeviceID() string
}

// DeviceInfo reads the immutable device identifier from disk.
type DeviceInfo struct {
	DeviceInfoFile string
	deviceID       string
	fileOps        file.FileOperations
}

// NewDeviceInfo initializes a new DeviceInfo instance.
func NewDeviceInfo(filePath string, fileOps file.FileOperations) DeviceInfoInterface {
	return &DeviceInfo{
		DeviceInfoFile: filePath,
		fileOps:        fileOps,
	}
}

// LoadDeviceInfo reads the identifier once. Surrounding whitespace is dropped.
func (d *DeviceInfo) LoadDeviceInfo() error {
	exists, err := d.fileOps.IsFileExists(d.DeviceInfoFile)
	if err != nil {
		return fmt.Errorf("stat %s: %w", d.DeviceInfoFile, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrIdentityMissing, d.DeviceInfoFile)
	}

	content, err := d.fileOps.ReadFile(d.DeviceInfoFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", d.DeviceInfoFile, err)
	}

	id := strings.TrimSpace(content)
	if id == "" {
		return fmt.Errorf("%w: %s", ErrIdentityEmpty, d.DeviceInfoFile)
	}

	d.deviceID = id
	return nil
}

// GetDeviceID returns the loaded device ID.
func (d *DeviceInfo) GetDeviceID() string {
	return d.deviceID
}
