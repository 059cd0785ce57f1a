package constants

import "time"

const (
	// ConnectionTimeout specifies the timeout duration for establishing an SSH connection.
	ConnectionTimeout = 30 * time.Second
)
