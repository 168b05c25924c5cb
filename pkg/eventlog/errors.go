package eventlog

import "errors"

var (
	// ErrClosed is returned by operations on a closed store or writer.
	ErrClosed = errors.New("eventlog: closed")

	// ErrQueueFull means the async writer dropped a record.
	ErrQueueFull = errors.New("eventlog: queue full")

	// ErrUnknownBackend is returned by Open for an unsupported backend.
	ErrUnknownBackend = errors.New("eventlog: unknown backend")
)
