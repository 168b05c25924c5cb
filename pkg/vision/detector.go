package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/teslashibe/farmgate/internal/log"
	"github.com/teslashibe/farmgate/pkg/frames"
	"github.com/teslashibe/farmgate/pkg/motion"
	"gocv.io/x/gocv"
)

// Detector classifies frames as animal-present or absent.
//
// Detect must be called from one goroutine in capture order: the
// background model is updated by every call. SetBands and SetEnabled are
// safe from any goroutine.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	bg          gocv.BackgroundSubtractorMOG2
	openKernel  gocv.Mat
	closeKernel gocv.Mat

	// scratch buffers reused across frames
	gray    gocv.Mat
	blurred gocv.Mat
	mask    gocv.Mat

	mu      sync.RWMutex // guards bands and enabled
	bands   motion.Bands
	enabled bool
	closed  bool
}

// NewDetector creates a detector with its own background model.
func NewDetector(cfg Config) (*Detector, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("vision: invalid config: %v", errs)
	}

	return &Detector{
		cfg:         cfg,
		logger:      log.Component("vision"),
		bg:          gocv.NewBackgroundSubtractorMOG2WithParams(cfg.History, cfg.VarThreshold, cfg.DetectShadows),
		openKernel:  gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(cfg.OpenKernel, cfg.OpenKernel)),
		closeKernel: gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(cfg.CloseKernel, cfg.CloseKernel)),
		gray:        gocv.NewMat(),
		blurred:     gocv.NewMat(),
		mask:        gocv.NewMat(),
		bands:       cfg.Bands,
		enabled:     cfg.Enabled,
	}, nil
}

// SetBands swaps the acceptance thresholds, effective next frame.
func (d *Detector) SetBands(b motion.Bands) {
	d.mu.Lock()
	d.bands = b
	d.mu.Unlock()
}

// SetEnabled toggles detection. Disabled detectors still consume frames
// but always report absent.
func (d *Detector) SetEnabled(enabled bool) {
	d.mu.Lock()
	d.enabled = enabled
	d.mu.Unlock()
}

// Enabled reports whether detection is on.
func (d *Detector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// Detect runs one frame through the background model and shape filter.
func (d *Detector) Detect(f *frames.Frame) (motion.Result, error) {
	d.mu.RLock()
	bands, enabled, closed := d.bands, d.enabled, d.closed
	d.mu.RUnlock()

	if closed {
		return motion.Result{}, motion.ErrDetectorClosed
	}
	if !f.Valid() || (f.Channels != 1 && f.Channels != 3) {
		return motion.Result{}, fmt.Errorf("%w: %dx%dx%d with %d bytes",
			motion.ErrMalformedFrame, f.Width, f.Height, f.Channels, len(f.Data))
	}
	if !enabled {
		return motion.Result{}, nil
	}

	candidates, err := d.candidates(f)
	if err != nil {
		return motion.Result{}, err
	}

	present, accepted := bands.Classify(candidates)
	if d.logger.Enabled(context.Background(), slog.LevelDebug) {
		for _, c := range candidates {
			if reason := bands.Check(c); reason != motion.Accepted {
				d.logger.Debug("blob rejected", "seq", f.Seq, "reason", string(reason),
					"area", c.Area, "aspect", c.AspectRatio, "solidity", c.Solidity,
					"extent", c.Extent, "compactness", c.Compactness)
			}
		}
	}
	return motion.Result{Present: present, Regions: accepted}, nil
}

// candidates updates the background model and measures every external
// contour of the cleaned foreground mask.
func (d *Detector) candidates(f *frames.Frame) ([]motion.Region, error) {
	matType := gocv.MatTypeCV8UC3
	if f.Channels == 1 {
		matType = gocv.MatTypeCV8UC1
	}
	src, err := gocv.NewMatFromBytes(f.Height, f.Width, matType, f.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", motion.ErrMalformedFrame, err)
	}
	defer src.Close()

	if f.Channels == 3 {
		gocv.CvtColor(src, &d.gray, gocv.ColorBGRToGray)
	} else {
		src.CopyTo(&d.gray)
	}
	ksize := image.Pt(d.cfg.BlurSize, d.cfg.BlurSize)
	gocv.GaussianBlur(d.gray, &d.blurred, ksize, 0, 0, gocv.BorderDefault)

	if d.cfg.LearningRate < 0 {
		d.bg.Apply(d.blurred, &d.mask)
	} else {
		d.bg.ApplyWithLearningRate(d.blurred, &d.mask, d.cfg.LearningRate)
	}

	gocv.MorphologyEx(d.mask, &d.mask, gocv.MorphOpen, d.openKernel)
	gocv.MorphologyEx(d.mask, &d.mask, gocv.MorphClose, d.closeKernel)

	contours := gocv.FindContours(d.mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	regions := make([]motion.Region, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		regions = append(regions, measure(contours.At(i)))
	}
	return regions, nil
}

// measure computes shape metrics for one contour.
func measure(contour gocv.PointVector) motion.Region {
	area := gocv.ContourArea(contour)
	bounds := gocv.BoundingRect(contour)
	perimeter := gocv.ArcLength(contour, true)

	hull := gocv.NewMat()
	defer hull.Close()
	gocv.ConvexHull(contour, &hull, false, true)

	hullPoints := gocv.NewPointVectorFromMat(hull)
	defer hullPoints.Close()
	hullArea := gocv.ContourArea(hullPoints)

	return motion.NewRegion(bounds, area, hullArea, perimeter)
}

// Close releases the background model and buffers.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.bg.Close()
	d.openKernel.Close()
	d.closeKernel.Close()
	d.gray.Close()
	d.blurred.Close()
	d.mask.Close()
	return nil
}
