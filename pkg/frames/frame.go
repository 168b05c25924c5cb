// Package frames defines the raw frame type, the frame source contract and
// the single-slot handoff between a capture goroutine and a pipeline.
package frames

import (
	"context"
	"time"
)

// Frame is an immutable BGR raster captured at CapturedAt.
//
// Data is shared by reference. Producers must not modify it after
// publishing and consumers must treat it as read-only.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Width      int
	Height     int
	Channels   int
	Data       []byte
}

// Valid reports whether the buffer length matches the declared dimensions.
func (f *Frame) Valid() bool {
	if f == nil || f.Width <= 0 || f.Height <= 0 || f.Channels <= 0 {
		return false
	}
	return len(f.Data) == f.Width*f.Height*f.Channels
}

// Source supplies frames on demand.
type Source interface {
	// Read blocks until a frame is available. It returns ErrUnavailable
	// when the device cannot produce one (disconnected, end of file).
	Read(ctx context.Context) (*Frame, error)

	// Close releases the device.
	Close() error
}
