package vision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/farmgate/pkg/episode"
	"github.com/teslashibe/farmgate/pkg/frames"
	"github.com/teslashibe/farmgate/pkg/motion"
)

const (
	testW = 320
	testH = 240
)

func blank(seq uint64) *frames.Frame {
	return &frames.Frame{
		Seq:      seq,
		Width:    testW,
		Height:   testH,
		Channels: 3,
		Data:     make([]byte, testW*testH*3),
	}
}

func paint(f *frames.Frame, x0, y0, w, h int) {
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			i := (y*f.Width + x) * 3
			f.Data[i], f.Data[i+1], f.Data[i+2] = 255, 255, 255
		}
	}
}

// plus draws an 80x80 cross with 30 px arms: not convex, fills part of
// its box, compact enough to read as an animal.
func plus(seq uint64) *frames.Frame {
	f := blank(seq)
	paint(f, 120, 80+25, 80, 30)
	paint(f, 120+25, 80, 30, 80)
	return f
}

func warm(t *testing.T, d *Detector, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		res, err := d.Detect(blank(uint64(i)))
		require.NoError(t, err)
		require.False(t, res.Present, "empty scene on frame %d", i)
	}
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestDetectorFindsCross(t *testing.T) {
	d := newTestDetector(t)
	warm(t, d, 30)

	res, err := d.Detect(plus(100))
	require.NoError(t, err)
	assert.True(t, res.Present)
	require.Len(t, res.Regions, 1)

	r := res.Regions[0]
	assert.InDelta(t, 1.0, r.AspectRatio, 0.2)
	assert.Greater(t, r.Area, 1000.0)
}

func TestDetectorHoldsStillAnimalThroughConfirmation(t *testing.T) {
	d := newTestDetector(t)
	warm(t, d, 30)

	m, err := episode.New(episode.DefaultConfig(), nil)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	var got []episode.Transition
	for i := 0; i < 10; i++ {
		res, err := d.Detect(plus(uint64(100 + i)))
		require.NoError(t, err)
		require.True(t, res.Present, "frame %d", i)
		require.Len(t, res.Regions, 1, "frame %d", i)

		now = now.Add(100 * time.Millisecond)
		got = append(got, m.Update(res.Present, now))
	}

	want := []episode.Transition{
		episode.NoChange, episode.NoChange, episode.NoChange, episode.NoChange, episode.Enter,
		episode.ContinueIntrusion, episode.ContinueIntrusion, episode.ContinueIntrusion,
		episode.ContinueIntrusion, episode.ContinueIntrusion,
	}
	assert.Equal(t, want, got)
}

func TestDetectorRejectsSolidBlock(t *testing.T) {
	d := newTestDetector(t)
	warm(t, d, 30)

	f := blank(100)
	paint(f, 60, 60, 200, 100)

	res, err := d.Detect(f)
	require.NoError(t, err)
	assert.False(t, res.Present, "a filled rectangle is too solid")
}

func TestDetectorRejectsThinBar(t *testing.T) {
	d := newTestDetector(t)
	warm(t, d, 30)

	f := blank(100)
	paint(f, 10, 100, 300, 30)

	res, err := d.Detect(f)
	require.NoError(t, err)
	assert.False(t, res.Present)
}

func TestDetectorMalformedFrame(t *testing.T) {
	d := newTestDetector(t)

	tests := []struct {
		name string
		f    *frames.Frame
	}{
		{"short data", &frames.Frame{Width: testW, Height: testH, Channels: 3, Data: make([]byte, 10)}},
		{"zero width", &frames.Frame{Width: 0, Height: testH, Channels: 3}},
		{"four channels", &frames.Frame{Width: 2, Height: 2, Channels: 4, Data: make([]byte, 16)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Detect(tt.f)
			assert.True(t, errors.Is(err, motion.ErrMalformedFrame), "got %v", err)
		})
	}
}

func TestDetectorDisabled(t *testing.T) {
	d := newTestDetector(t)
	warm(t, d, 30)

	d.SetEnabled(false)
	assert.False(t, d.Enabled())

	res, err := d.Detect(plus(100))
	require.NoError(t, err)
	assert.False(t, res.Present)
	assert.Empty(t, res.Regions)
}

func TestDetectorBandsHotSwap(t *testing.T) {
	d := newTestDetector(t)
	warm(t, d, 30)

	b := motion.DefaultBands()
	b.MinArea = 1e6
	d.SetBands(b)

	res, err := d.Detect(plus(100))
	require.NoError(t, err)
	assert.False(t, res.Present)
}

func TestDetectorClosed(t *testing.T) {
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err = d.Detect(blank(1))
	assert.ErrorIs(t, err, motion.ErrDetectorClosed)
}

func TestNewDetectorRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlurSize = 4
	_, err := NewDetector(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.LearningRate = 2
	_, err = NewDetector(cfg)
	assert.Error(t, err)
}

func TestAnnotatorLeavesFrameAlone(t *testing.T) {
	f := plus(1)
	orig := append([]byte(nil), f.Data...)

	a := NewAnnotator()
	region := motion.NewRegion(image.Rect(120, 80, 200, 160), 3900, 5150, 320)
	res := motion.Result{Present: true, Regions: []motion.Region{region}, Labels: []string{"Cow"}}
	jpg, err := a.Annotate(f, res, true, time.Now())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(jpg, []byte{0xFF, 0xD8}), "jpeg magic")
	assert.Equal(t, orig, f.Data)
}

func TestAnnotatorPlaceholder(t *testing.T) {
	jpg, err := NewAnnotator().Placeholder(640, 480, "No camera")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(jpg, []byte{0xFF, 0xD8}))
}

func TestCameraUnavailable(t *testing.T) {
	c := NewCamera(CameraConfig{Source: "/nonexistent/farm.mp4"})
	defer c.Close()

	_, err := c.Read(context.Background())
	assert.ErrorIs(t, err, frames.ErrUnavailable)
}

func TestCameraClosed(t *testing.T) {
	c := NewCamera(DefaultCameraConfig())
	require.NoError(t, c.Close())

	_, err := c.Read(context.Background())
	assert.ErrorIs(t, err, frames.ErrClosed)
}
