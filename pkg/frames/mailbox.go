package frames

import (
	"sync"
	"sync/atomic"
)

// Mailbox is a single-slot latest-frame handoff.
//
// Publish never blocks and overwrites an unconsumed frame, counting the
// overwrite as a drop. The consumer polls with TryTake once per cycle.
type Mailbox struct {
	mu     sync.Mutex
	frame  *Frame
	closed bool

	published atomic.Uint64
	drops     atomic.Uint64
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Publish stores f as the latest frame. No-op after Close.
func (m *Mailbox) Publish(f *Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if m.frame != nil {
		m.drops.Add(1)
	}
	m.frame = f
	m.published.Add(1)
}

// TryTake removes and returns the latest frame without waiting.
func (m *Mailbox) TryTake() (*Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.frame
	m.frame = nil
	return f, f != nil
}

// Close stops further publishes. A frame already in the slot can still
// be taken.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Stats reports lifetime publish and drop counts.
func (m *Mailbox) Stats() (published, drops uint64) {
	return m.published.Load(), m.drops.Load()
}
