package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/waggle-sensor/registration-agent/internal/models"
)

// RemoteExecutor is a mock implementation of the RemoteExecutor interface
type RemoteExecutor struct {
	mock.Mock
}

// Execute mocks running a command on the registration endpoint
func (m *RemoteExecutor) Execute(ctx context.Context, endpoint models.RegistrationEndpoint, command string) (string, error) {
	args := m.Called(ctx, endpoint, command)
	return args.String(0), args.Error(1)
}
