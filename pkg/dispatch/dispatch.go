// Package dispatch runs alarm and notification side effects off the
// pipeline goroutine. Requests are handled one at a time in submission
// order by a single worker.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/farmgate/internal/log"
	"github.com/teslashibe/farmgate/pkg/alarm"
	"github.com/teslashibe/farmgate/pkg/episode"
	"github.com/teslashibe/farmgate/pkg/metrics"
	"github.com/teslashibe/farmgate/pkg/notify"
)

var (
	// ErrQueueFull means the request was dropped.
	ErrQueueFull = errors.New("dispatch: queue full")
	// ErrStopped means the dispatcher no longer accepts requests.
	ErrStopped = errors.New("dispatch: stopped")
)

// Request is one episode edge to act on.
type Request struct {
	ID         string
	Zone       string
	Transition episode.Transition
	Episode    notify.Episode
}

// Config tunes delivery.
type Config struct {
	QueueSize   int
	Attempts    int           // per notifier, including the first
	Backoff     time.Duration // first retry delay, doubled each retry
	CallTimeout time.Duration // per notifier attempt
}

// DefaultConfig returns 3 attempts with 1s, 2s backoff.
func DefaultConfig() Config {
	return Config{
		QueueSize:   32,
		Attempts:    3,
		Backoff:     time.Second,
		CallTimeout: 10 * time.Second,
	}
}

// Dispatcher owns the side-effect queue.
type Dispatcher struct {
	cfg       Config
	alarm     alarm.Alarm
	notifiers []notify.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu      sync.RWMutex
	queue   chan Request
	stopped bool
	done    chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records side-effect outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a dispatcher. a may be nil.
func New(cfg Config, a alarm.Alarm, notifiers []notify.Notifier, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	d := &Dispatcher{
		cfg:       cfg,
		alarm:     a,
		notifiers: notifiers,
		logger:    log.Component("dispatch"),
		queue:     make(chan Request, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit enqueues req without blocking.
func (d *Dispatcher) Submit(req Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- req:
		d.metrics.DispatchQueue(len(d.queue))
		return nil
	default:
		d.logger.Warn("dispatch queue full, request dropped",
			"transition", req.Transition, "episode", req.Episode.ID)
		return ErrQueueFull
	}
}

// Run processes requests until ctx is cancelled or Shutdown drains the
// queue. Call it once.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-d.queue:
			if !ok {
				return
			}
			d.metrics.DispatchQueue(len(d.queue))
			d.handle(ctx, req)
		}
	}
}

// Shutdown stops intake and waits for queued requests to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (d *Dispatcher) handle(ctx context.Context, req Request) {
	logger := d.logger.With("request", req.ID, "zone", req.Zone, "episode", req.Episode.ID)

	var kind notify.Kind
	switch req.Transition {
	case episode.Enter:
		kind = notify.KindEnter
		d.driveAlarm(logger, true)
	case episode.Exit:
		kind = notify.KindExit
		d.driveAlarm(logger, false)
	default:
		logger.Warn("ignoring non-edge request", "transition", req.Transition)
		return
	}

	// Notifiers run side by side so one slow provider does not hold up
	// the rest.
	var wg sync.WaitGroup
	for _, n := range d.notifiers {
		wg.Add(1)
		go func(n notify.Notifier) {
			defer wg.Done()
			err := d.deliver(ctx, n, kind, req.Episode)
			d.metrics.SideEffect(n.Name(), err == nil)
			if err != nil {
				logger.Warn("notification failed", "notifier", n.Name(), "error", err)
			}
		}(n)
	}
	wg.Wait()
}

func (d *Dispatcher) driveAlarm(logger *slog.Logger, on bool) {
	if d.alarm == nil {
		return
	}
	var err error
	if on {
		err = d.alarm.Start()
	} else {
		err = d.alarm.Stop()
	}
	d.metrics.SideEffect("alarm", err == nil)
	if err != nil {
		logger.Warn("alarm failed", "on", on, "error", err)
	}
}

// deliver retries with doubling backoff. Missing recipients and
// disabled notifiers are not retried.
func (d *Dispatcher) deliver(ctx context.Context, n notify.Notifier, kind notify.Kind, ep notify.Episode) error {
	backoff := d.cfg.Backoff
	var err error
	for attempt := 1; attempt <= d.cfg.Attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		err = n.Notify(callCtx, kind, ep)
		cancel()

		if err == nil || errors.Is(err, notify.ErrNoRecipient) || errors.Is(err, notify.ErrDisabled) {
			return err
		}
		if attempt == d.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
