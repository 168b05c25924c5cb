package vision

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/teslashibe/farmgate/internal/log"
	"github.com/teslashibe/farmgate/pkg/frames"
	"gocv.io/x/gocv"
)

// CameraConfig describes where frames come from.
type CameraConfig struct {
	// Source is a device index ("0"), a file path or a stream URL.
	Source string
	Width  int
	Height int
	FPS    float64
}

// DefaultCameraConfig returns the first local camera at 1280x720@30.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{Source: "0", Width: 1280, Height: 720, FPS: 30}
}

// Camera is a frames.Source backed by an OpenCV VideoCapture.
// The device is opened lazily and reopened after a failed read.
type Camera struct {
	cfg    CameraConfig
	logger *slog.Logger

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	img    gocv.Mat
	seq    uint64
	closed bool
}

// NewCamera creates a camera. Nothing is opened until the first Read.
func NewCamera(cfg CameraConfig) *Camera {
	return &Camera{
		cfg:    cfg,
		logger: log.Component("camera").With("source", cfg.Source),
		img:    gocv.NewMat(),
	}
}

func (c *Camera) open() error {
	var target interface{} = c.cfg.Source
	if idx, err := strconv.Atoi(c.cfg.Source); err == nil {
		target = idx
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", frames.ErrUnavailable, c.cfg.Source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w: %s not opened", frames.ErrUnavailable, c.cfg.Source)
	}

	if c.cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
	}
	if c.cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	}
	if c.cfg.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, c.cfg.FPS)
	}

	c.cap = vc
	c.logger.Info("📷 camera opened",
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight))
	return nil
}

// Read grabs the next frame. Device loss and end of stream return
// frames.ErrUnavailable; the next Read tries to reopen.
func (c *Camera) Read(ctx context.Context) (*frames.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, frames.ErrClosed
	}
	if c.cap == nil {
		if err := c.open(); err != nil {
			return nil, err
		}
	}

	if ok := c.cap.Read(&c.img); !ok || c.img.Empty() {
		c.logger.Warn("camera read failed, will reopen")
		c.cap.Close()
		c.cap = nil
		return nil, frames.ErrUnavailable
	}

	c.seq++
	return &frames.Frame{
		Seq:        c.seq,
		CapturedAt: time.Now(),
		Width:      c.img.Cols(),
		Height:     c.img.Rows(),
		Channels:   c.img.Channels(),
		Data:       c.img.ToBytes(),
	}, nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cap != nil {
		c.cap.Close()
		c.cap = nil
	}
	return c.img.Close()
}
