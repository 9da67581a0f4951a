package realtime

import "errors"

// Connection and delivery error types.
var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrWriteTimeout     = errors.New("write operation timed out")
	ErrInvalidJSON      = errors.New("failed to marshal message to JSON")
)
