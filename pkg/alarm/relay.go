package alarm

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// Commands for the common single-channel LCUS USB relay boards.
var (
	RelayOn  = []byte{0xA0, 0x01, 0x01, 0xA2}
	RelayOff = []byte{0xA0, 0x01, 0x00, 0xA1}
)

// Relay switches a siren through a serial relay board.
type Relay struct {
	mu     sync.Mutex
	port   io.WriteCloser
	active bool
}

// OpenRelay opens the relay at path (e.g. /dev/ttyUSB0).
func OpenRelay(path string, baud int) (*Relay, error) {
	if baud <= 0 {
		baud = 9600
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open relay %s: %w", path, err)
	}
	return NewRelay(port), nil
}

// NewRelay drives an already-open port.
func NewRelay(port io.WriteCloser) *Relay {
	return &Relay{port: port}
}

func (r *Relay) set(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == on {
		return nil
	}
	cmd := RelayOff
	if on {
		cmd = RelayOn
	}
	if _, err := r.port.Write(cmd); err != nil {
		return fmt.Errorf("relay write: %w", err)
	}
	r.active = on
	return nil
}

// Start closes the relay.
func (r *Relay) Start() error { return r.set(true) }

// Stop opens the relay.
func (r *Relay) Stop() error { return r.set(false) }

// Active reports the last commanded state.
func (r *Relay) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Close switches the relay off and releases the port.
func (r *Relay) Close() error {
	_ = r.Stop()
	return r.port.Close()
}
