package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waggle-sensor/registration-agent/internal/services"
	"github.com/waggle-sensor/registration-agent/pkg/credentials"
	"github.com/waggle-sensor/registration-agent/pkg/file"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"lock held", &credentials.StoreError{Op: "lock", Path: "/etc/waggle/.registration.lock", Err: file.ErrLocked}, exitLocked},
		{"invalid endpoint", fmt.Errorf("%w: registration endpoint missing host", services.ErrInvalidEndpoint), exitPrecondition},
		{"timeout", fmt.Errorf("%w: no response", services.ErrTimeout), exitFailure},
		{"not registered", services.ErrNotRegistered, exitFailure},
		{"protocol", services.ErrProtocol, exitFailure},
		{"cancelled", services.ErrCancelled, exitFailure},
		{"store write", &credentials.StoreError{Op: "write", Err: errors.New("disk full")}, exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
