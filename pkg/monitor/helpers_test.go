package monitor

import (
	"image"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teslashibe/farmgate/pkg/frames"
	"github.com/teslashibe/farmgate/pkg/metrics"
)

func testFrame(seq uint64) *frames.Frame {
	return &frames.Frame{Seq: seq, Width: 4, Height: 4, Channels: 3, Data: make([]byte, 48)}
}

func motionRect() image.Rectangle { return image.Rect(100, 100, 180, 180) }

// scrape renders m in the Prometheus text format.
func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}
