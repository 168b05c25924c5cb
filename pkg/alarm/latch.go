package alarm

import (
	"sync"
	"time"

	"github.com/teslashibe/farmgate/internal/timeutil"
)

// Latch shares one alarm between intrusions and dashboard tests. Start
// and Stop hold and release the alarm for an intrusion; Test sounds it
// for a fixed time. A test never silences a held alarm, and an
// intrusion that starts during a test keeps the alarm on after it.
type Latch struct {
	alarm Alarm
	clock timeutil.Clock

	mu   sync.Mutex
	held bool
	test chan struct{} // closed to cancel the running test timer
}

// NewLatch wraps a. A nil clock uses the wall clock.
func NewLatch(a Alarm, clock timeutil.Clock) *Latch {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Latch{alarm: a, clock: clock}
}

// Start holds the alarm on until Stop.
func (l *Latch) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.alarm.Start(); err != nil {
		return err
	}
	l.held = true
	return nil
}

// Stop releases the hold, cancels any test and silences the alarm.
func (l *Latch) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.cancelTest()
	return l.alarm.Stop()
}

// Active reports whether the alarm is sounding.
func (l *Latch) Active() bool { return l.alarm.Active() }

// Held reports whether an intrusion holds the alarm.
func (l *Latch) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Test sounds the alarm for d without blocking. While the alarm is held
// it is left alone.
func (l *Latch) Test(d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil
	}
	if err := l.alarm.Start(); err != nil {
		return err
	}

	l.cancelTest()
	cancel := make(chan struct{})
	l.test = cancel
	fire := l.clock.After(d)
	go func() {
		select {
		case <-fire:
			l.endTest(cancel)
		case <-cancel:
		}
	}()
	return nil
}

func (l *Latch) endTest(cancel chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.test != cancel {
		return
	}
	l.test = nil
	if !l.held {
		_ = l.alarm.Stop()
	}
}

func (l *Latch) cancelTest() {
	if l.test != nil {
		close(l.test)
		l.test = nil
	}
}
