package mocks

import (
	"os"

	"github.com/stretchr/testify/mock"
)

// FileOperations is a mock implementation of the FileOperations interface
type FileOperations struct {
	mock.Mock
}

// IsFileExists mocks checking whether a file exists
func (m *FileOperations) IsFileExists(filePath string) (bool, error) {
	args := m.Called(filePath)
	return args.Bool(0), args.Error(1)
}

// IsFileNonEmpty mocks checking whether a file exists and has content
func (m *FileOperations) IsFileNonEmpty(filePath string) (bool, error) {
	args := m.Called(filePath)
	return args.Bool(0), args.Error(1)
}

// ReadFile mocks reading a file as a string
func (m *FileOperations) ReadFile(filePath string) (string, error) {
	args := m.Called(filePath)
	return args.String(0), args.Error(1)
}

// ReadFileRaw mocks reading a file as bytes
func (m *FileOperations) ReadFileRaw(filePath string) ([]byte, error) {
	args := m.Called(filePath)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// ReadYamlFile mocks decoding a YAML file into v
func (m *FileOperations) ReadYamlFile(filePath string, v any) error {
	args := m.Called(filePath, v)
	return args.Error(0)
}

// StageFile mocks writing data to a temporary file next to filePath
func (m *FileOperations) StageFile(filePath string, data []byte, perm os.FileMode) (string, error) {
	args := m.Called(filePath, data, perm)
	return args.String(0), args.Error(1)
}

// CommitFile mocks moving a staged file into place
func (m *FileOperations) CommitFile(stagedPath, filePath string) error {
	args := m.Called(stagedPath, filePath)
	return args.Error(0)
}

// RemoveFile mocks deleting a file
func (m *FileOperations) RemoveFile(filePath string) error {
	args := m.Called(filePath)
	return args.Error(0)
}

// Lock mocks taking an exclusive lock on filePath
func (m *FileOperations) Lock(filePath string) (func() error, error) {
	args := m.Called(filePath)
	unlock, _ := args.Get(0).(func() error)
	return unlock, args.Error(1)
}
