package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/waggle-sensor/registration-agent/internal/models"
)

// CredentialStoreInterface is a mock implementation of the CredentialStoreInterface
type CredentialStoreInterface struct {
	mock.Mock
}

// IsComplete mocks reporting whether all credential files are present
func (m *CredentialStoreInterface) IsComplete() bool {
	args := m.Called()
	return args.Bool(0)
}

// Persist mocks installing an issued identity
func (m *CredentialStoreInterface) Persist(identity models.IssuedIdentity) error {
	args := m.Called(identity)
	return args.Error(0)
}

// Lock mocks acquiring the registration lock
func (m *CredentialStoreInterface) Lock() (func() error, error) {
	args := m.Called()
	unlock, _ := args.Get(0).(func() error)
	return unlock, args.Error(1)
}
