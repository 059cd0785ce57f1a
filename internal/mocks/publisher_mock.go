package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/waggle-sensor/registration-agent/internal/models"
)

// EventPublisher is a mock implementation of the EventPublisher interface
type EventPublisher struct {
	mock.Mock
}

// Publish mocks announcing a registration event
func (m *EventPublisher) Publish(ctx context.Context, event models.RegistrationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
