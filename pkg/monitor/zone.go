// Package monitor drives one camera zone: a capture goroutine feeding a
// latest-frame mailbox, and a pipeline goroutine that detects, debounces
// and hands episode edges to the side-effect dispatcher.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/farmgate/internal/log"
	"github.com/teslashibe/farmgate/internal/timeutil"
	"github.com/teslashibe/farmgate/pkg/dispatch"
	"github.com/teslashibe/farmgate/pkg/episode"
	"github.com/teslashibe/farmgate/pkg/frames"
	"github.com/teslashibe/farmgate/pkg/metrics"
	"github.com/teslashibe/farmgate/pkg/motion"
	"github.com/teslashibe/farmgate/pkg/notify"
)

// Detector classifies one frame. Calls arrive in capture order from a
// single goroutine.
type Detector interface {
	Detect(f *frames.Frame) (motion.Result, error)
}

// Annotator renders a dashboard JPEG without touching f.
type Annotator interface {
	Annotate(f *frames.Frame, res motion.Result, intrusion bool, at time.Time) ([]byte, error)
}

// Submitter accepts side-effect requests without blocking.
type Submitter interface {
	Submit(req dispatch.Request) error
}

// Publisher receives live updates for the dashboard.
type Publisher interface {
	PublishStatus(s Status)
	PublishFrame(jpeg []byte)
	PublishEvent(rec episode.Record)
}

// Config tunes the loop.
type Config struct {
	CycleInterval time.Duration
	RetryDelay    time.Duration
	MinBackoff    time.Duration // after a recovered panic
	MaxBackoff    time.Duration
}

// DefaultConfig is 10 Hz with 100ms retry and 1s..30s panic backoff.
func DefaultConfig() Config {
	return Config{
		CycleInterval: 100 * time.Millisecond,
		RetryDelay:    100 * time.Millisecond,
		MinBackoff:    time.Second,
		MaxBackoff:    30 * time.Second,
	}
}

// Deps are a zone's collaborators. Source, Detector and Machine are
// required; the rest may be nil.
type Deps struct {
	Source     frames.Source
	Detector   Detector
	Machine    *episode.Machine
	Labeler    *motion.Labeler
	Dispatcher Submitter
	Annotator  Annotator
	Publisher  Publisher
	Metrics    *metrics.Metrics
	Clock      timeutil.Clock
}

// Zone is one monitored area. Detector and machine are owned by the zone
// and never shared.
type Zone struct {
	name string
	cfg  Config
	deps Deps

	clock   timeutil.Clock
	mailbox *frames.Mailbox
	logger  *slog.Logger

	paused       atomic.Bool
	cameraOnline atomic.Bool
	processed    atomic.Uint64
	lastDrops    uint64 // pipeline goroutine only

	cycle sync.Mutex // serializes Step's machine update with Pause

	mu        sync.RWMutex
	last      motion.Result
	lastJPEG  []byte
	lastFrame time.Time
}

var (
	// ErrPanic marks a cycle that panicked and was recovered.
	ErrPanic = errors.New("monitor: cycle panicked")

	// ErrNoFrame means the camera is online but no new frame arrived
	// since the last cycle. The next tick simply tries again.
	ErrNoFrame = errors.New("monitor: no new frame")
)

// NewZone checks deps and builds a zone. Nothing runs until Run.
func NewZone(name string, cfg Config, deps Deps) (*Zone, error) {
	if deps.Source == nil || deps.Detector == nil || deps.Machine == nil {
		return nil, errors.New("monitor: source, detector and machine are required")
	}
	def := DefaultConfig()
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = def.CycleInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = def.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = def.MaxBackoff
	}

	clock := deps.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	return &Zone{
		name:    name,
		cfg:     cfg,
		deps:    deps,
		clock:   clock,
		mailbox: frames.NewMailbox(),
		logger:  log.Component("monitor").With("zone", name),
	}, nil
}

// Name returns the zone name.
func (z *Zone) Name() string { return z.name }

// Machine exposes the zone's state machine for status and reset.
func (z *Zone) Machine() *episode.Machine { return z.deps.Machine }

// Run captures and processes until ctx is cancelled. The in-flight cycle
// finishes before Run returns.
func (z *Zone) Run(ctx context.Context) error {
	z.logger.Info("🌾 zone started", "cycle", z.cfg.CycleInterval)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		z.capture(ctx)
	}()
	defer func() {
		z.mailbox.Close()
		wg.Wait()
		z.logger.Info("zone stopped")
	}()

	ticker := z.clock.NewTicker(z.cfg.CycleInterval)
	defer ticker.Stop()

	backoff := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}

		_, err := z.safeStep(ctx)
		switch {
		case err == nil:
			backoff = 0
		case errors.Is(err, ErrPanic):
			if backoff == 0 {
				backoff = z.cfg.MinBackoff
			} else {
				backoff = min(backoff*2, z.cfg.MaxBackoff)
			}
			z.logger.Error("cycle panicked, backing off", "error", err, "backoff", backoff)
			if !z.sleep(ctx, backoff) {
				return nil
			}
		case errors.Is(err, frames.ErrUnavailable):
			if !z.sleep(ctx, z.cfg.RetryDelay) {
				return nil
			}
		}
	}
}

func (z *Zone) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-z.clock.After(d):
		return true
	}
}

// capture moves frames from the source into the mailbox.
func (z *Zone) capture(ctx context.Context) {
	for ctx.Err() == nil {
		f, err := z.deps.Source.Read(ctx)
		switch {
		case err == nil:
			z.cameraOnline.Store(true)
			z.mailbox.Publish(f)
		case errors.Is(err, frames.ErrClosed), ctx.Err() != nil:
			return
		default:
			if z.cameraOnline.Swap(false) {
				z.logger.Warn("frame source unavailable", "error", err)
			}
			if !z.sleep(ctx, z.cfg.RetryDelay) {
				return
			}
		}
	}
}

// Offer hands a frame straight to the pipeline, bypassing the source.
func (z *Zone) Offer(f *frames.Frame) {
	z.mailbox.Publish(f)
}

func (z *Zone) safeStep(ctx context.Context) (t episode.Transition, err error) {
	defer func() {
		if r := recover(); r != nil {
			z.deps.Metrics.CyclePanic(z.name)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return z.Step(ctx)
}

// Step runs one cycle on the latest frame. It returns
// frames.ErrUnavailable when the camera is offline, ErrNoFrame when it is
// online but slower than the cycle, and the detector's error when the
// frame was skipped. In all three cases the machine is not updated.
func (z *Zone) Step(ctx context.Context) (episode.Transition, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, ok := z.mailbox.TryTake()
	_, drops := z.mailbox.Stats()
	z.deps.Metrics.FramesDropped(z.name, drops-z.lastDrops)
	z.lastDrops = drops
	if !ok {
		if z.cameraOnline.Load() {
			z.deps.Metrics.CycleIdle(z.name)
			return "", ErrNoFrame
		}
		z.deps.Metrics.SourceUnavailable(z.name)
		return "", frames.ErrUnavailable
	}

	z.cycle.Lock()
	defer z.cycle.Unlock()

	if z.paused.Load() {
		z.render(f, motion.Result{}, false, z.clock.Now())
		z.publishStatus()
		return "", nil
	}

	began := z.clock.Now()
	res, err := z.deps.Detector.Detect(f)
	z.deps.Metrics.FrameProcessed(z.name, z.clock.Since(began))
	if err != nil {
		z.deps.Metrics.DetectorFault(z.name)
		z.logger.Warn("detector fault, frame skipped", "seq", f.Seq, "error", err)
		return "", fmt.Errorf("detect: %w", err)
	}
	z.processed.Add(1)
	z.deps.Metrics.RegionsAccepted(z.name, len(res.Regions))

	now := z.clock.Now()
	if z.deps.Labeler != nil {
		res.Labels = z.deps.Labeler.Label(res.Regions, now)
	}

	t := z.deps.Machine.Update(res.Present, now)
	z.logger.Debug("cycle", "seq", f.Seq, "present", res.Present, "regions", len(res.Regions), "transition", t)

	var dur time.Duration
	if t.Edge() {
		dur = z.edge(t)
	}
	z.deps.Metrics.Transition(z.name, string(t), dur)

	z.mu.Lock()
	z.last = res
	z.lastFrame = now
	z.mu.Unlock()

	snap := z.deps.Machine.Snapshot(now)
	z.render(f, res, snap.Intrusion, now)
	z.publishStatus()
	return t, nil
}

// edge logs and fans out an ENTER or EXIT. Returns the episode length
// for exits.
func (z *Zone) edge(t episode.Transition) time.Duration {
	rec, ok := z.deps.Machine.LastRecord()
	if !ok {
		return 0
	}

	z.logger.Info("🐄 "+string(t), "episode", rec.EpisodeID, "duration", rec.Duration)

	if z.deps.Dispatcher != nil {
		err := z.deps.Dispatcher.Submit(dispatch.Request{
			Zone:       z.name,
			Transition: t,
			Episode: notify.Episode{
				ID:       rec.EpisodeID,
				At:       rec.Timestamp,
				Duration: rec.Duration,
			},
		})
		if err != nil {
			z.logger.Warn("side effects not dispatched", "transition", t, "error", err)
		}
	}
	if z.deps.Publisher != nil {
		z.deps.Publisher.PublishEvent(rec)
	}
	return rec.Duration
}

func (z *Zone) render(f *frames.Frame, res motion.Result, intrusion bool, at time.Time) {
	if z.deps.Annotator == nil {
		return
	}
	jpeg, err := z.deps.Annotator.Annotate(f, res, intrusion, at)
	if err != nil {
		z.logger.Debug("annotate failed", "seq", f.Seq, "error", err)
		return
	}
	z.mu.Lock()
	z.lastJPEG = jpeg
	z.mu.Unlock()

	if z.deps.Publisher != nil {
		z.deps.Publisher.PublishFrame(jpeg)
	}
}

func (z *Zone) publishStatus() {
	if z.deps.Publisher != nil {
		z.deps.Publisher.PublishStatus(z.Status())
	}
}

// LatestJPEG returns the most recent annotated frame, or nil.
func (z *Zone) LatestJPEG() []byte {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.lastJPEG
}

// Pause stops detection. An open episode is closed with an EXIT that is
// logged and dispatched like any other. Frames still reach the
// dashboard.
func (z *Zone) Pause() {
	z.cycle.Lock()
	defer z.cycle.Unlock()
	if z.paused.Swap(true) {
		return
	}

	if t := z.deps.Machine.Close(z.clock.Now()); t == episode.Exit {
		dur := z.edge(t)
		z.deps.Metrics.Transition(z.name, string(t), dur)
	}
	z.deps.Metrics.IntrusionCleared(z.name)
	z.mu.Lock()
	z.last = motion.Result{}
	z.mu.Unlock()
	z.publishStatus()
	z.logger.Info("⏸️ detection paused")
}

// Resume re-enables detection.
func (z *Zone) Resume() {
	if z.paused.Swap(false) {
		z.logger.Info("▶️ detection resumed")
	}
}

// Running reports whether detection is active.
func (z *Zone) Running() bool { return !z.paused.Load() }
