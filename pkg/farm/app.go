// Package farm wires the farmgate service together: one monitored zone,
// its side effects, the event log and the dashboard.
package farm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teslashibe/farmgate/internal/config"
	"github.com/teslashibe/farmgate/internal/log"
	"github.com/teslashibe/farmgate/pkg/alarm"
	"github.com/teslashibe/farmgate/pkg/dispatch"
	"github.com/teslashibe/farmgate/pkg/episode"
	"github.com/teslashibe/farmgate/pkg/eventlog"
	"github.com/teslashibe/farmgate/pkg/frames"
	"github.com/teslashibe/farmgate/pkg/hub"
	"github.com/teslashibe/farmgate/pkg/metrics"
	"github.com/teslashibe/farmgate/pkg/monitor"
	"github.com/teslashibe/farmgate/pkg/motion"
	"github.com/teslashibe/farmgate/pkg/notify"
	"github.com/teslashibe/farmgate/pkg/vision"
	"github.com/teslashibe/farmgate/pkg/web"
)

const (
	shutdownTimeout = 10 * time.Second
	// loopWaitTimeout bounds the wait for the zone loops. A camera read
	// stuck in the backend can hold the capture goroutine well past it.
	loopWaitTimeout = 5 * time.Second
)

// Options are process-level settings that do not live in the config file.
type Options struct {
	ConfigPath string
	StaticDir  string
}

// App owns every component and their lifecycle.
type App struct {
	opts    Options
	manager *config.Manager
	logger  *slog.Logger

	metrics *metrics.Metrics

	store  eventlog.Store
	writer *eventlog.AsyncWriter

	source    frames.Source
	detector  *vision.Detector
	annotator *vision.Annotator
	machine   *episode.Machine

	audio      *alarm.Audio
	relay      *alarm.Relay
	alarm      *alarm.Latch
	sms        *notify.SMS
	dispatcher *dispatch.Dispatcher

	zone      *monitor.Zone
	dashboard *hub.Dashboard
	web       *web.Server

	audioFile    string
	wg           sync.WaitGroup
	stopDispatch context.CancelFunc
	stopLoops    context.CancelFunc
}

// New validates cfg. Nothing is opened until Init.
func New(cfg config.Config, opts Options) (*App, error) {
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, &config.ValidationError{Problems: problems}
	}
	return &App{
		opts:    opts,
		manager: config.NewManager(cfg, opts.ConfigPath),
		logger:  log.Component("farm"),
	}, nil
}

// Init opens devices and stores and builds the pipeline. Call Shutdown
// even when Init fails part way.
func (a *App) Init() error {
	cfg := a.manager.Get()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(reg)

	if err := a.initEventLog(cfg); err != nil {
		return fmt.Errorf("event log: %w", err)
	}
	if err := a.initVision(cfg); err != nil {
		return fmt.Errorf("vision: %w", err)
	}
	a.initAlarm(cfg)
	a.initDispatch(cfg)

	a.dashboard = hub.NewDashboard()
	zone, err := monitor.NewZone(cfg.Zone, monitor.Config{
		CycleInterval: cfg.CycleInterval,
		RetryDelay:    cfg.RetryDelay,
	}, monitor.Deps{
		Source:     a.source,
		Detector:   a.detector,
		Machine:    a.machine,
		Labeler:    motion.NewLabeler(nil, motion.DefaultForgetTimeout),
		Dispatcher: a.dispatcher,
		Annotator:  a.annotator,
		Publisher:  a.dashboard,
		Metrics:    a.metrics,
	})
	if err != nil {
		return fmt.Errorf("zone: %w", err)
	}
	a.zone = zone

	a.web = web.New(web.Deps{
		Zone:      a.zone,
		Config:    a.manager,
		Events:    a.store,
		Alarm:     a.alarm,
		SMS:       a.sms,
		Dashboard: a.dashboard,
		Metrics:   a.metrics,
		Placeholder: func() ([]byte, error) {
			return a.annotator.Placeholder(cfg.FrameWidth, cfg.FrameHeight, "Waiting for camera...")
		},
		StaticDir: a.opts.StaticDir,
		AccessLog: cfg.LogLevel == "debug",
	})
	a.manager.OnChange(a.apply)
	return nil
}

func (a *App) initEventLog(cfg config.Config) error {
	store, err := eventlog.Open(cfg.EventLogBackend, cfg.EventLogPath)
	if err != nil {
		return err
	}
	a.store = store

	zone := cfg.Zone
	a.writer = eventlog.NewAsyncWriter(store, eventlog.AsyncConfig{
		OnError: func(rec episode.Record, err error) {
			a.metrics.LogAppendFailure(zone)
			a.logger.Warn("event not logged", "kind", rec.Kind, "episode", rec.EpisodeID, "error", err)
		},
	})
	a.logger.Info("📒 event log open", "backend", cfg.EventLogBackend, "path", cfg.EventLogPath)
	return nil
}

func (a *App) initVision(cfg config.Config) error {
	detector, err := vision.NewDetector(cfg.Vision())
	if err != nil {
		return err
	}
	a.detector = detector
	a.annotator = vision.NewAnnotator()
	a.source = vision.NewCamera(cfg.Camera())

	zone := cfg.Zone
	machine, err := episode.New(cfg.Episode(), a.writer, episode.WithAppendErrorHook(func(rec episode.Record, err error) {
		a.metrics.LogAppendFailure(zone)
		a.logger.Warn("event not queued", "kind", rec.Kind, "error", err)
	}))
	if err != nil {
		return err
	}
	a.machine = machine
	return nil
}

// initAlarm builds whatever alarms are available. A missing sound file
// or relay is logged, not fatal.
func (a *App) initAlarm(cfg config.Config) {
	var alarms alarm.Multi

	audio, err := alarm.NewAudio(cfg.Audio())
	switch {
	case err == nil:
		a.audio = audio
		a.audioFile = cfg.AlarmFile
		alarms = append(alarms, audio)
	case errors.Is(err, alarm.ErrNoSound):
		a.logger.Warn("🔇 alarm sound unavailable", "file", cfg.AlarmFile)
	default:
		a.logger.Warn("🔇 alarm audio disabled", "error", err)
	}

	if cfg.RelayPort != "" {
		relay, err := alarm.OpenRelay(cfg.RelayPort, cfg.RelayBaud)
		if err != nil {
			a.logger.Warn("alarm relay unavailable", "port", cfg.RelayPort, "error", err)
		} else {
			a.relay = relay
			alarms = append(alarms, relay)
		}
	}
	a.alarm = alarm.NewLatch(alarms, nil)
}

func (a *App) initDispatch(cfg config.Config) {
	a.sms = notify.NewSMS(cfg.SMS())
	notifiers := []notify.Notifier{a.sms}
	if wc, ok := cfg.Webhook(); ok {
		notifiers = append(notifiers, notify.NewWebhook(wc))
	}
	a.logger.Info("📱 notifications ready", "sms", a.sms.Transport(), "notifiers", len(notifiers))

	a.dispatcher = dispatch.New(dispatch.DefaultConfig(), a.alarm, notifiers, dispatch.WithMetrics(a.metrics))
}

// apply hot-swaps the parts of a new configuration that can change at
// runtime. Camera, storage and address changes need a restart.
func (a *App) apply(cfg config.Config) error {
	a.detector.SetBands(cfg.Bands())
	a.detector.SetEnabled(cfg.DetectionEnabled)
	if err := a.machine.SetConfig(cfg.Episode()); err != nil {
		return err
	}
	a.sms.SetRecipient(cfg.FarmerPhone)
	a.sms.SetMessages(cfg.Messages())

	if a.audio != nil && cfg.AlarmFile != a.audioFile {
		p, err := alarm.NewPlayer(cfg.Audio())
		if err != nil {
			return fmt.Errorf("alarm sound: %w", err)
		}
		a.audio.SetPlayer(p)
		a.audioFile = cfg.AlarmFile
	}
	return nil
}

// Run starts every loop and blocks until ctx is cancelled or the web
// server fails.
func (a *App) Run(ctx context.Context) error {
	cfg := a.manager.Get()
	ctx, a.stopLoops = context.WithCancel(ctx)

	// The dispatcher outlives ctx so Shutdown can drain it.
	dctx, stop := context.WithCancel(context.Background())
	a.stopDispatch = stop
	go a.dispatcher.Run(dctx)

	a.goRun(func() { a.dashboard.Run(ctx) })
	a.goRun(func() {
		if err := a.zone.Run(ctx); err != nil {
			a.logger.Error("zone stopped", "error", err)
		}
	})

	errc := make(chan error, 1)
	go func() { errc <- a.web.Listen(cfg.Addr) }()

	a.logger.Info("🐄 farmgate watching", "zone", cfg.Zone, "addr", cfg.Addr)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return fmt.Errorf("dashboard: %w", err)
	}
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Shutdown stops the dashboard, waits for the loops, drains queued
// side effects and events, then releases devices.
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.web != nil {
		if err := a.web.Shutdown(ctx); err != nil {
			a.logger.Warn("dashboard shutdown", "error", err)
		}
	}
	if a.stopLoops != nil {
		a.stopLoops()
	}
	stopped := a.waitLoops(ctx, loopWaitTimeout)
	if !stopped {
		a.logger.Warn("zone loops still running, leaving camera and detector open", "waited", loopWaitTimeout)
	}

	if a.dispatcher != nil {
		if err := a.dispatcher.Shutdown(ctx); err != nil {
			a.logger.Warn("side effects not drained", "error", err)
		}
	}
	if a.stopDispatch != nil {
		a.stopDispatch()
	}
	if a.alarm != nil {
		if err := a.alarm.Stop(); err != nil {
			a.logger.Warn("alarm stop", "error", err)
		}
	}
	if a.writer != nil {
		if err := a.writer.Close(ctx); err != nil {
			a.logger.Warn("events not drained", "error", err)
		}
	}
	a.close("event log", a.store)
	if stopped {
		// A capture or detect call still in flight would use freed Mats.
		a.close("camera", a.source)
		if a.detector != nil {
			a.close("detector", a.detector)
		}
	}
	if a.relay != nil {
		a.close("relay", a.relay)
	}
	a.logger.Info("👋 goodbye")
}

// waitLoops waits for the goroutines started by Run, giving up after d or
// when ctx ends. It reports whether they all returned.
func (a *App) waitLoops(ctx context.Context, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (a *App) close(what string, c interface{ Close() error }) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		a.logger.Warn("close failed", "what", what, "error", err)
	}
}

// Reload re-reads the config file and environment and applies the
// result. A rejected file leaves the running configuration untouched.
func (a *App) Reload() error {
	if err := a.manager.Reload(); err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	a.logger.Info("⚙️ configuration reloaded", "path", a.manager.Path())
	return nil
}

// Manager exposes the live configuration.
func (a *App) Manager() *config.Manager { return a.manager }

// Zone exposes the monitored zone.
func (a *App) Zone() *monitor.Zone { return a.zone }
