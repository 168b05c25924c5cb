package episode

import (
	"strconv"
	"strings"
	"time"
)

// Templates hold the event descriptions. Exit templates may contain
// {duration}, replaced with whole seconds.
type Templates struct {
	EnterLocal string
	EnterPlain string
	ExitLocal  string
	ExitPlain  string
}

// DefaultTemplates are Sinhala local text with English plain text.
func DefaultTemplates() Templates {
	return Templates{
		EnterLocal: "සතුන් වත්තට ඇතුළු වී ඇත",
		EnterPlain: "Animals entered the farm",
		ExitLocal:  "සතුන් වත්තෙන් පිටවී ගොස් ඇත (කාලය: {duration}s)",
		ExitPlain:  "Animals left the farm (Duration: {duration}s)",
	}
}

func (t Templates) exit(d time.Duration) (local, plain string) {
	r := strings.NewReplacer("{duration}", strconv.Itoa(int(d.Seconds())))
	return r.Replace(t.ExitLocal), r.Replace(t.ExitPlain)
}

// Config tunes the debounce.
type Config struct {
	// DetectionFrames is how many consecutive present frames confirm an
	// intrusion.
	DetectionFrames int
	// ExitGrace is how long absence must persist before the episode ends.
	ExitGrace time.Duration
	Templates Templates
}

// DefaultConfig returns N=5, grace 3s.
func DefaultConfig() Config {
	return Config{
		DetectionFrames: 5,
		ExitGrace:       3 * time.Second,
		Templates:       DefaultTemplates(),
	}
}

// Validate returns a list of problems, or nil.
func (c *Config) Validate() []string {
	var errors []string
	if c.DetectionFrames < 1 {
		errors = append(errors, "detection_frames must be >= 1")
	}
	if c.ExitGrace < 0 {
		errors = append(errors, "exit_grace must be >= 0")
	}
	if c.Templates.EnterPlain == "" || c.Templates.ExitPlain == "" {
		errors = append(errors, "enter/exit plain messages must not be empty")
	}
	return errors
}
