// Package vision turns raw frames into motion verdicts with OpenCV:
// background subtraction, morphology, contour measurement. It also owns
// the camera source and the dashboard overlay.
package vision

import "github.com/teslashibe/farmgate/pkg/motion"

// Config holds detector tuning.
type Config struct {
	BlurSize      int     // Gaussian kernel, odd
	History       int     // background model history in frames
	VarThreshold  float64 // MOG2 variance threshold
	LearningRate  float64 // per frame; negative lets OpenCV pick 1/frames
	DetectShadows bool
	OpenKernel    int // ellipse size for noise removal
	CloseKernel   int // ellipse size for gap filling
	Bands         motion.Bands
	Enabled       bool // when false every frame reports absent
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BlurSize:      15,
		History:       500,
		VarThreshold:  50,
		LearningRate:  0.001,
		DetectShadows: true,
		OpenKernel:    3,
		CloseKernel:   5,
		Bands:         motion.DefaultBands(),
		Enabled:       true,
	}
}

// Validate checks ranges. Returns a list of problems, or nil.
func (c *Config) Validate() []string {
	var errors []string
	if c.BlurSize < 1 || c.BlurSize%2 == 0 {
		errors = append(errors, "blur_size must be a positive odd number")
	}
	if c.History < 1 {
		errors = append(errors, "bg_history must be >= 1")
	}
	if c.LearningRate > 1 {
		errors = append(errors, "bg_learning_rate must be <= 1")
	}
	if c.VarThreshold <= 0 {
		errors = append(errors, "bg_var_threshold must be > 0")
	}
	if c.OpenKernel < 1 || c.CloseKernel < 1 {
		errors = append(errors, "morphology kernels must be >= 1")
	}
	return append(errors, c.Bands.Validate()...)
}
