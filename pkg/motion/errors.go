package motion

import "errors"

var (
	// ErrMalformedFrame is returned when a frame's buffer does not match
	// its declared dimensions.
	ErrMalformedFrame = errors.New("motion: malformed frame")

	// ErrDetectorClosed is returned when detecting after Close.
	ErrDetectorClosed = errors.New("motion: detector closed")
)
