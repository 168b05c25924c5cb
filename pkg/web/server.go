// Package web serves the farm dashboard: a REST API, an MJPEG feed,
// live websocket channels and Prometheus metrics.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/farmgate/internal/config"
	"github.com/teslashibe/farmgate/internal/log"
	"github.com/teslashibe/farmgate/internal/timeutil"
	"github.com/teslashibe/farmgate/pkg/alarm"
	"github.com/teslashibe/farmgate/pkg/eventlog"
	"github.com/teslashibe/farmgate/pkg/hub"
	"github.com/teslashibe/farmgate/pkg/metrics"
	"github.com/teslashibe/farmgate/pkg/monitor"
	"github.com/teslashibe/farmgate/pkg/notify"
)

// Zone is the monitor surface the dashboard drives.
type Zone interface {
	Status() monitor.Status
	LatestJPEG() []byte
	Pause()
	Resume()
	Running() bool
}

// Deps wires the server. Zone, Config and Events are required.
type Deps struct {
	Zone      Zone
	Config    *config.Manager
	Events    eventlog.Store
	Alarm     *alarm.Latch
	SMS       notify.Notifier
	Dashboard *hub.Dashboard
	Metrics   *metrics.Metrics
	Clock     timeutil.Clock

	// Placeholder renders the feed image shown before the first frame.
	Placeholder func() ([]byte, error)

	StaticDir     string
	UploadDir     string        // alarm uploads, default "static"
	FrameInterval time.Duration // MJPEG pacing, default 100ms
	TestAlarmFor  time.Duration // default 3s
	AccessLog     bool
}

// Server is the dashboard HTTP server.
type Server struct {
	app    *fiber.App
	deps   Deps
	clock  timeutil.Clock
	logger *slog.Logger
	done   chan struct{}
	stop   sync.Once

	placeholderOnce sync.Once
	placeholder     []byte
}

// New builds the fiber app and registers every route.
func New(deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.FrameInterval <= 0 {
		deps.FrameInterval = 100 * time.Millisecond
	}
	if deps.TestAlarmFor <= 0 {
		deps.TestAlarmFor = 3 * time.Second
	}
	if deps.UploadDir == "" {
		deps.UploadDir = "static"
	}

	s := &Server{
		deps:   deps,
		clock:  deps.Clock,
		logger: log.Component("web"),
		done:   make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "farmgate",
		DisableStartupMessage: true,
		BodyLimit:             16 * 1024 * 1024,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if deps.AccessLog {
		app.Use(logger.New())
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/video_feed", s.handleVideoFeed)
	api.Get("/snapshot", s.handleSnapshot)
	api.Get("/events", s.handleEvents)
	api.Get("/statistics", s.handleStatistics)
	api.Get("/config", s.handleGetConfig)
	api.Post("/config", s.handleUpdateConfig)
	api.Post("/config/reload", s.handleReloadConfig)
	api.Post("/upload_alarm", s.handleUploadAlarm)
	api.Post("/test_sms", s.handleTestSMS)
	api.Post("/test_alarm", s.handleTestAlarm)
	api.Post("/stop_alarm", s.handleStopAlarm)
	api.Post("/start_system", s.handleStartSystem)
	api.Post("/stop_system", s.handleStopSystem)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))

	if deps.Dashboard != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/status", websocket.New(s.handleStatusWS))
		app.Get("/ws/camera", websocket.New(s.handleCameraWS))
		app.Get("/ws/events", websocket.New(s.handleEventsWS))
	}

	if deps.StaticDir != "" {
		app.Static("/", deps.StaticDir)
	}

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("🌐 dashboard listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown ends open MJPEG streams and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop.Do(func() { close(s.done) })
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":  false,
			"error":    verr.Error(),
			"problems": verr.Problems,
		})
	}

	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, config.ErrUnknownKey), errors.Is(err, config.ErrInvalidConfig):
		code = fiber.StatusBadRequest
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"success": false, "error": err.Error()})
}

func (s *Server) placeholderJPEG() []byte {
	s.placeholderOnce.Do(func() {
		if s.deps.Placeholder == nil {
			return
		}
		img, err := s.deps.Placeholder()
		if err != nil {
			s.logger.Warn("placeholder render failed", "error", err)
			return
		}
		s.placeholder = img
	})
	return s.placeholder
}

// currentJPEG is the latest frame, falling back to the placeholder.
func (s *Server) currentJPEG() []byte {
	if img := s.deps.Zone.LatestJPEG(); img != nil {
		return img
	}
	return s.placeholderJPEG()
}
