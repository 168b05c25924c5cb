package alarm

import "sync"

// Mock records calls. Useful where no audio device exists.
type Mock struct {
	mu       sync.Mutex
	active   bool
	Starts   int
	Stops    int
	StartErr error
}

// Start turns the mock on and counts the transition.
func (m *Mock) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	if !m.active {
		m.active = true
		m.Starts++
	}
	return nil
}

// Stop turns the mock off and counts the transition.
func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		m.active = false
		m.Stops++
	}
	return nil
}

// Active reports whether the mock is on.
func (m *Mock) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Counts returns starts and stops.
func (m *Mock) Counts() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Starts, m.Stops
}
