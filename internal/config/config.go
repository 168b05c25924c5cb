// Package config defines farmgate configuration: a flat key/value set
// layered from defaults, an optional YAML file and FARMGATE_ environment
// variables, plus a Manager for runtime edits from the dashboard.
package config

import (
	"time"

	"github.com/teslashibe/farmgate/pkg/alarm"
	"github.com/teslashibe/farmgate/pkg/episode"
	"github.com/teslashibe/farmgate/pkg/eventlog"
	"github.com/teslashibe/farmgate/pkg/motion"
	"github.com/teslashibe/farmgate/pkg/notify"
	"github.com/teslashibe/farmgate/pkg/vision"
)

// Config contains process configuration. Keys are flat; the koanf tag
// is the key name everywhere (YAML, env, dashboard).
type Config struct {
	// Zone names this camera in logs, metrics and webhooks.
	Zone string `koanf:"zone" yaml:"zone"`

	// === Shape filter ===
	MinArea        float64 `koanf:"min_area" yaml:"min_area"`
	AspectMin      float64 `koanf:"aspect_min" yaml:"aspect_min"`
	AspectMax      float64 `koanf:"aspect_max" yaml:"aspect_max"`
	SolidityMin    float64 `koanf:"solidity_min" yaml:"solidity_min"`
	SolidityMax    float64 `koanf:"solidity_max" yaml:"solidity_max"`
	ExtentMin      float64 `koanf:"extent_min" yaml:"extent_min"`
	ExtentMax      float64 `koanf:"extent_max" yaml:"extent_max"`
	MinWidth       int     `koanf:"min_width" yaml:"min_width"`
	MinHeight      int     `koanf:"min_height" yaml:"min_height"`
	CompactnessMin float64 `koanf:"compactness_min" yaml:"compactness_min"`
	CompactnessMax float64 `koanf:"compactness_max" yaml:"compactness_max"`

	// === Background model ===
	BlurSize       int     `koanf:"blur_size" yaml:"blur_size"`
	BgHistory      int     `koanf:"bg_history" yaml:"bg_history"`
	BgVarThreshold float64 `koanf:"bg_var_threshold" yaml:"bg_var_threshold"`
	BgLearningRate float64 `koanf:"bg_learning_rate" yaml:"bg_learning_rate"`

	// === Episode debounce ===
	DetectionFrames   int           `koanf:"detection_frames" yaml:"detection_frames"`
	DetectionEnabled  bool          `koanf:"detection_enabled" yaml:"detection_enabled"`
	ExitGrace         time.Duration `koanf:"exit_grace" yaml:"exit_grace"`
	EnterMessageLocal string        `koanf:"enter_message_local" yaml:"enter_message_local"`
	EnterMessagePlain string        `koanf:"enter_message_plain" yaml:"enter_message_plain"`
	ExitMessageLocal  string        `koanf:"exit_message_local" yaml:"exit_message_local"`
	ExitMessagePlain  string        `koanf:"exit_message_plain" yaml:"exit_message_plain"`

	// === Camera and cadence ===
	CameraSource  string        `koanf:"camera_source" yaml:"camera_source"`
	FrameWidth    int           `koanf:"frame_width" yaml:"frame_width"`
	FrameHeight   int           `koanf:"frame_height" yaml:"frame_height"`
	FPS           float64       `koanf:"fps" yaml:"fps"`
	CycleInterval time.Duration `koanf:"cycle_interval" yaml:"cycle_interval"`
	RetryDelay    time.Duration `koanf:"retry_delay" yaml:"retry_delay"`

	// === Event log ===
	EventLogBackend string `koanf:"event_log_backend" yaml:"event_log_backend"`
	EventLogPath    string `koanf:"event_log_path" yaml:"event_log_path"`

	// === SMS ===
	FarmerPhone     string `koanf:"farmer_phone" yaml:"farmer_phone"`
	TwilioSID       string `koanf:"twilio_sid" yaml:"twilio_sid"`
	TwilioAuth      string `koanf:"twilio_auth" yaml:"twilio_auth"`
	TwilioFrom      string `koanf:"twilio_from" yaml:"twilio_from"`
	SMSLogPath      string `koanf:"sms_log_path" yaml:"sms_log_path"`
	SMSEnterMessage string `koanf:"sms_enter_message" yaml:"sms_enter_message"`
	SMSExitMessage  string `koanf:"sms_exit_message" yaml:"sms_exit_message"`
	SMSTestMessage  string `koanf:"sms_test_message" yaml:"sms_test_message"`

	// === Webhook ===
	WebhookURL          string `koanf:"webhook_url" yaml:"webhook_url"`
	WebhookTokenURL     string `koanf:"webhook_token_url" yaml:"webhook_token_url"`
	WebhookClientID     string `koanf:"webhook_client_id" yaml:"webhook_client_id"`
	WebhookClientSecret string `koanf:"webhook_client_secret" yaml:"webhook_client_secret"`

	// === Alarm ===
	AlarmFile   string `koanf:"alarm_file" yaml:"alarm_file"`
	AlarmPlayer string `koanf:"alarm_player" yaml:"alarm_player"`
	RelayPort   string `koanf:"relay_port" yaml:"relay_port"`
	RelayBaud   int    `koanf:"relay_baud" yaml:"relay_baud"`

	// === Service ===
	Addr     string `koanf:"addr" yaml:"addr"`
	LogLevel string `koanf:"log_level" yaml:"log_level"`
}

// New returns a Config holding the defaults.
func New() *Config {
	bands := motion.DefaultBands()
	vc := vision.DefaultConfig()
	ec := episode.DefaultConfig()
	cam := vision.DefaultCameraConfig()
	msgs := notify.DefaultMessages()
	audio := alarm.DefaultAudioConfig()

	return &Config{
		Zone: "farm",

		MinArea:        bands.MinArea,
		AspectMin:      bands.Aspect.Min,
		AspectMax:      bands.Aspect.Max,
		SolidityMin:    bands.Solidity.Min,
		SolidityMax:    bands.Solidity.Max,
		ExtentMin:      bands.Extent.Min,
		ExtentMax:      bands.Extent.Max,
		MinWidth:       bands.MinWidth,
		MinHeight:      bands.MinHeight,
		CompactnessMin: bands.Compactness.Min,
		CompactnessMax: bands.Compactness.Max,

		BlurSize:       vc.BlurSize,
		BgHistory:      vc.History,
		BgVarThreshold: vc.VarThreshold,
		BgLearningRate: vc.LearningRate,

		DetectionFrames:   ec.DetectionFrames,
		DetectionEnabled:  true,
		ExitGrace:         ec.ExitGrace,
		EnterMessageLocal: ec.Templates.EnterLocal,
		EnterMessagePlain: ec.Templates.EnterPlain,
		ExitMessageLocal:  ec.Templates.ExitLocal,
		ExitMessagePlain:  ec.Templates.ExitPlain,

		CameraSource:  cam.Source,
		FrameWidth:    cam.Width,
		FrameHeight:   cam.Height,
		FPS:           cam.FPS,
		CycleInterval: 100 * time.Millisecond,
		RetryDelay:    100 * time.Millisecond,

		EventLogBackend: eventlog.BackendCSV,
		EventLogPath:    "events/events.csv",

		SMSLogPath:      "sms_log.json",
		SMSEnterMessage: msgs.Enter,
		SMSExitMessage:  msgs.Exit,
		SMSTestMessage:  msgs.Test,

		AlarmFile:   audio.File,
		AlarmPlayer: audio.Player,
		RelayBaud:   9600,

		Addr:     ":5000",
		LogLevel: "info",
	}
}

// Bands returns the shape filter thresholds.
func (c *Config) Bands() motion.Bands {
	return motion.Bands{
		MinArea:     c.MinArea,
		Aspect:      motion.Range{Min: c.AspectMin, Max: c.AspectMax},
		Solidity:    motion.Range{Min: c.SolidityMin, Max: c.SolidityMax},
		Extent:      motion.Range{Min: c.ExtentMin, Max: c.ExtentMax},
		MinWidth:    c.MinWidth,
		MinHeight:   c.MinHeight,
		Compactness: motion.Range{Min: c.CompactnessMin, Max: c.CompactnessMax},
	}
}

// Vision returns detector settings.
func (c *Config) Vision() vision.Config {
	vc := vision.DefaultConfig()
	vc.BlurSize = c.BlurSize
	vc.History = c.BgHistory
	vc.VarThreshold = c.BgVarThreshold
	vc.LearningRate = c.BgLearningRate
	vc.Bands = c.Bands()
	vc.Enabled = c.DetectionEnabled
	return vc
}

// Camera returns capture settings.
func (c *Config) Camera() vision.CameraConfig {
	return vision.CameraConfig{
		Source: c.CameraSource,
		Width:  c.FrameWidth,
		Height: c.FrameHeight,
		FPS:    c.FPS,
	}
}

// Episode returns state machine settings.
func (c *Config) Episode() episode.Config {
	return episode.Config{
		DetectionFrames: c.DetectionFrames,
		ExitGrace:       c.ExitGrace,
		Templates: episode.Templates{
			EnterLocal: c.EnterMessageLocal,
			EnterPlain: c.EnterMessagePlain,
			ExitLocal:  c.ExitMessageLocal,
			ExitPlain:  c.ExitMessagePlain,
		},
	}
}

// Messages returns SMS bodies.
func (c *Config) Messages() notify.Messages {
	return notify.Messages{Enter: c.SMSEnterMessage, Exit: c.SMSExitMessage, Test: c.SMSTestMessage}
}

// SMS returns SMS transport settings.
func (c *Config) SMS() notify.SMSConfig {
	return notify.SMSConfig{
		To:         c.FarmerPhone,
		TwilioSID:  c.TwilioSID,
		TwilioAuth: c.TwilioAuth,
		TwilioFrom: c.TwilioFrom,
		MockLog:    c.SMSLogPath,
		Messages:   c.Messages(),
	}
}

// Webhook returns webhook settings; ok is false when no URL is set.
func (c *Config) Webhook() (notify.WebhookConfig, bool) {
	return notify.WebhookConfig{
		URL:          c.WebhookURL,
		TokenURL:     c.WebhookTokenURL,
		ClientID:     c.WebhookClientID,
		ClientSecret: c.WebhookClientSecret,
		Zone:         c.Zone,
	}, c.WebhookURL != ""
}

// Audio returns alarm sound settings.
func (c *Config) Audio() alarm.AudioConfig {
	return alarm.AudioConfig{File: c.AlarmFile, Player: c.AlarmPlayer}
}

// Validate returns a list of problems, or nil.
func (c *Config) Validate() []string {
	vc := c.Vision()
	errors := vc.Validate()

	ec := c.Episode()
	errors = append(errors, ec.Validate()...)

	if c.CycleInterval <= 0 {
		errors = append(errors, "cycle_interval must be > 0")
	}
	if c.RetryDelay <= 0 {
		errors = append(errors, "retry_delay must be > 0")
	}
	switch c.EventLogBackend {
	case eventlog.BackendCSV, eventlog.BackendSQLite:
	default:
		errors = append(errors, "event_log_backend must be csv or sqlite")
	}
	if c.EventLogPath == "" {
		errors = append(errors, "event_log_path must not be empty")
	}
	if c.Addr == "" {
		errors = append(errors, "addr must not be empty")
	}
	return errors
}

// secretKeys are masked by Public.
var secretKeys = map[string]bool{
	"twilio_auth":           true,
	"webhook_client_secret": true,
}
