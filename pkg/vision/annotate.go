package vision

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/teslashibe/farmgate/pkg/frames"
	"github.com/teslashibe/farmgate/pkg/motion"
	"gocv.io/x/gocv"
)

var (
	boxColor   = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	alertColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	textColor  = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	safeColor  = color.RGBA{R: 0, G: 200, B: 0, A: 0}
)

// Annotator renders dashboard frames. It never touches the source
// frame's bytes; drawing happens on a copy.
type Annotator struct {
	Quality int // JPEG quality 1-100
}

// NewAnnotator returns an annotator with JPEG quality 80.
func NewAnnotator() *Annotator {
	return &Annotator{Quality: 80}
}

// Annotate draws region boxes, labels and a status banner stamped with
// at, then encodes the result as JPEG.
func (a *Annotator) Annotate(f *frames.Frame, res motion.Result, intrusion bool, at time.Time) ([]byte, error) {
	if !f.Valid() || f.Channels != 3 {
		return nil, fmt.Errorf("%w: annotate needs BGR", motion.ErrMalformedFrame)
	}

	src, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", motion.ErrMalformedFrame, err)
	}
	defer src.Close()

	img := src.Clone()
	defer img.Close()

	for i, r := range res.Regions {
		box := r.Bounds()
		gocv.Rectangle(&img, box, boxColor, 2)

		label := "Animal"
		if i < len(res.Labels) && res.Labels[i] != "" {
			label = res.Labels[i]
		}
		drawLabel(&img, label, box.Min)
	}

	status, statusColor := "SAFE", safeColor
	if intrusion {
		status, statusColor = "INTRUSION", alertColor
	}
	gocv.PutText(&img, status, image.Pt(10, 30), gocv.FontHersheySimplex, 1.0, statusColor, 2)
	if !at.IsZero() {
		stamp := at.Format("2006-01-02 15:04:05")
		gocv.PutText(&img, stamp, image.Pt(10, f.Height-10), gocv.FontHersheySimplex, 0.5, textColor, 1)
	}

	return a.encode(img)
}

func drawLabel(img *gocv.Mat, label string, at image.Point) {
	size := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.6, 2)
	top := at.Y - size.Y - 10
	if top < 0 {
		top = 0
	}
	bg := image.Rect(at.X, top, at.X+size.X, top+size.Y+10)
	gocv.Rectangle(img, bg, boxColor, -1)
	gocv.PutText(img, label, image.Pt(at.X, top+size.Y+5), gocv.FontHersheySimplex, 0.6, textColor, 2)
}

// Placeholder renders a dark frame with a message, for when the camera
// has nothing to show.
func (a *Annotator) Placeholder(width, height int, msg string) ([]byte, error) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(30, 30, 30, 0), height, width, gocv.MatTypeCV8UC3)
	defer img.Close()

	size := gocv.GetTextSize(msg, gocv.FontHersheySimplex, 1.0, 2)
	org := image.Pt((width-size.X)/2, (height+size.Y)/2)
	gocv.PutText(&img, msg, org, gocv.FontHersheySimplex, 1.0, textColor, 2)

	return a.encode(img)
}

func (a *Annotator) encode(img gocv.Mat) ([]byte, error) {
	q := a.Quality
	if q <= 0 || q > 100 {
		q = 80
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, q})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
