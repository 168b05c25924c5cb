package frames

import "errors"

var (
	// ErrUnavailable is returned when no frame can be produced right now.
	// It is distinct from an empty scene.
	ErrUnavailable = errors.New("frames: source unavailable")

	// ErrClosed is returned by a closed source.
	ErrClosed = errors.New("frames: closed")
)
