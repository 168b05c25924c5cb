// Package episode debounces a noisy per-frame presence signal into
// intrusion episodes with exactly one ENTER and one EXIT each.
package episode

import (
	"time"
)

// State of the monitored zone.
type State int

const (
	Safe State = iota
	Intrusion
)

func (s State) String() string {
	switch s {
	case Safe:
		return "SAFE"
	case Intrusion:
		return "INTRUSION"
	default:
		return "UNKNOWN"
	}
}

// Transition is what a single Update did.
type Transition string

const (
	NoChange          Transition = "NO_CHANGE"
	ContinueSafe      Transition = "CONTINUE_SAFE"
	Enter             Transition = "ENTER"
	ContinueIntrusion Transition = "CONTINUE_INTRUSION"
	Exit              Transition = "EXIT"
)

// Edge reports whether t starts or ends an episode.
func (t Transition) Edge() bool {
	return t == Enter || t == Exit
}

// Kind of a logged event.
type Kind string

const (
	KindEnter Kind = "ENTER"
	KindExit  Kind = "EXIT"
)

// Record is one durable log entry. Records are appended, never rewritten.
type Record struct {
	Timestamp time.Time
	Kind      Kind
	Local     string        // description in the configured local language
	Plain     string        // English description
	Duration  time.Duration // zero for ENTER
	EpisodeID string
}

// Appender receives records as they are produced. Implementations must
// not block the caller for long; the event log uses an async queue.
type Appender interface {
	Append(rec Record) error
}

// AppenderFunc adapts a function to Appender.
type AppenderFunc func(Record) error

// Append calls f(rec).
func (f AppenderFunc) Append(rec Record) error { return f(rec) }

// Snapshot is a read-only view for status reporting.
type Snapshot struct {
	State       State
	Intrusion   bool
	Counter     int
	Since       time.Time     // episode start, zero when SAFE
	Elapsed     time.Duration // time since Since at the snapshot instant
	EpisodeID   string
	AbsentSince time.Time // first false of the current absence run
}
