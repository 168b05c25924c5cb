package episode

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Machine is the SAFE/INTRUSION state machine.
//
// Update must be called from one goroutine with non-decreasing times.
// Snapshot, Close and SetConfig are safe from any goroutine.
type Machine struct {
	appender Appender
	onError  func(Record, error)

	mu          sync.Mutex
	cfg         Config
	state       State
	counter     int
	start       time.Time
	absentSince time.Time
	episodeID   string
	last        *Record
}

// Option configures a Machine.
type Option func(*Machine)

// WithAppendErrorHook is called when the appender rejects a record.
// The transition still stands.
func WithAppendErrorHook(fn func(Record, error)) Option {
	return func(m *Machine) { m.onError = fn }
}

// New creates a machine in SAFE. A nil appender discards records.
func New(cfg Config, appender Appender, opts ...Option) (*Machine, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("episode: invalid config: %v", errs)
	}
	m := &Machine{cfg: cfg, appender: appender}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Update feeds one frame verdict.
func (m *Machine) Update(present bool, now time.Time) Transition {
	m.mu.Lock()
	t, rec := m.step(present, now)
	m.mu.Unlock()

	if rec != nil {
		m.append(*rec)
	}
	return t
}

func (m *Machine) step(present bool, now time.Time) (Transition, *Record) {
	switch m.state {
	case Safe:
		if !present {
			m.counter = 0
			return ContinueSafe, nil
		}
		m.counter++
		if m.counter < m.cfg.DetectionFrames {
			return NoChange, nil
		}

		m.state = Intrusion
		m.start = now
		m.absentSince = time.Time{}
		m.episodeID = uuid.NewString()
		rec := &Record{
			Timestamp: now,
			Kind:      KindEnter,
			Local:     m.cfg.Templates.EnterLocal,
			Plain:     m.cfg.Templates.EnterPlain,
			EpisodeID: m.episodeID,
		}
		m.last = rec
		return Enter, rec

	default:
		if present {
			m.absentSince = time.Time{}
			return ContinueIntrusion, nil
		}
		if m.absentSince.IsZero() {
			m.absentSince = now
		}
		if now.Sub(m.absentSince) < m.cfg.ExitGrace {
			return ContinueIntrusion, nil
		}

		rec := m.exit(now)
		return Exit, rec
	}
}

// exit builds the EXIT record for the open episode and returns to SAFE.
func (m *Machine) exit(now time.Time) *Record {
	d := max(now.Sub(m.start), 0)
	local, plain := m.cfg.Templates.exit(d)
	rec := &Record{
		Timestamp: now,
		Kind:      KindExit,
		Local:     local,
		Plain:     plain,
		Duration:  d,
		EpisodeID: m.episodeID,
	}
	m.last = rec
	m.clear()
	return rec
}

func (m *Machine) clear() {
	m.state = Safe
	m.counter = 0
	m.start = time.Time{}
	m.absentSince = time.Time{}
	m.episodeID = ""
}

func (m *Machine) append(rec Record) {
	if m.appender == nil {
		return
	}
	if err := m.appender.Append(rec); err != nil && m.onError != nil {
		m.onError(rec, err)
	}
}

// Snapshot returns the current state as of now.
func (m *Machine) Snapshot(now time.Time) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		State:       m.state,
		Intrusion:   m.state == Intrusion,
		Counter:     m.counter,
		Since:       m.start,
		EpisodeID:   m.episodeID,
		AbsentSince: m.absentSince,
	}
	if s.Intrusion {
		s.Elapsed = now.Sub(m.start)
	}
	return s
}

// LastRecord returns the most recent ENTER or EXIT record.
func (m *Machine) LastRecord() (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Record{}, false
	}
	return *m.last, true
}

// Close ends an open episode at now and appends its EXIT record, so the
// log never holds an ENTER without a matching EXIT. It returns Exit when
// an episode was open. In SAFE it only clears a partial ENTER count and
// returns NoChange.
func (m *Machine) Close(now time.Time) Transition {
	m.mu.Lock()
	if m.state != Intrusion {
		m.clear()
		m.mu.Unlock()
		return NoChange
	}
	rec := m.exit(now)
	m.mu.Unlock()

	m.append(*rec)
	return Exit
}

// SetConfig swaps thresholds and templates. An in-progress episode keeps
// running under the new values.
func (m *Machine) SetConfig(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("episode: invalid config: %v", errs)
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// Config returns the active configuration.
func (m *Machine) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}
