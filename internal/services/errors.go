package services

import "errors"

var (
	// ErrTimeout means the retry budget ran out without a successful exchange.
	ErrTimeout = errors.New("registration timed out")

	// ErrNotRegistered means the authority has no credentials for this node.
	ErrNotRegistered = errors.New("node is not registered with the authority")

	// ErrProtocol means the authority answered with something that is not a credential triple.
	ErrProtocol = errors.New("malformed registration response")

	// ErrCancelled means the caller aborted the run.
	ErrCancelled = errors.New("registration cancelled")

	// ErrInvalidEndpoint means required endpoint settings are missing.
	ErrInvalidEndpoint = errors.New("invalid registration endpoint")
)
