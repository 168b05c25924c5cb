package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/farmgate/internal/config"
	"github.com/teslashibe/farmgate/pkg/alarm"
	"github.com/teslashibe/farmgate/pkg/episode"
	"github.com/teslashibe/farmgate/pkg/eventlog"
	"github.com/teslashibe/farmgate/pkg/hub"
	"github.com/teslashibe/farmgate/pkg/metrics"
	"github.com/teslashibe/farmgate/pkg/monitor"
	"github.com/teslashibe/farmgate/pkg/notify"
)

type fakeZone struct {
	mu     sync.Mutex
	paused bool
	jpeg   []byte
}

func (z *fakeZone) Status() monitor.Status {
	z.mu.Lock()
	defer z.mu.Unlock()
	return monitor.Status{Zone: "north", State: "SAFE", Running: !z.paused}
}

func (z *fakeZone) LatestJPEG() []byte { return z.jpeg }
func (z *fakeZone) Pause()             { z.mu.Lock(); z.paused = true; z.mu.Unlock() }
func (z *fakeZone) Resume()            { z.mu.Lock(); z.paused = false; z.mu.Unlock() }
func (z *fakeZone) Running() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return !z.paused
}

type fixture struct {
	srv     *Server
	zone    *fakeZone
	alarm   *alarm.Mock
	latch   *alarm.Latch
	manager *config.Manager
	store   eventlog.Store
	smsLog  *notify.MockLog
	dir     string
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := eventlog.OpenCSV(filepath.Join(dir, "events.csv"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.New()
	cfg.TwilioAuth = "real-secret"
	manager := config.NewManager(*cfg, filepath.Join(dir, "config.yaml"))

	smsLog := notify.NewMockLog(filepath.Join(dir, "sms.json"))
	fx := &fixture{
		zone:    &fakeZone{},
		alarm:   &alarm.Mock{},
		manager: manager,
		store:   store,
		smsLog:  smsLog,
		dir:     dir,
	}
	fx.latch = alarm.NewLatch(fx.alarm, nil)

	deps := Deps{
		Zone:         fx.zone,
		Config:       manager,
		Events:       store,
		Alarm:        fx.latch,
		SMS:          notify.NewSMSWithSender(smsLog, "+94771234567", notify.DefaultMessages()),
		UploadDir:    filepath.Join(dir, "static"),
		TestAlarmFor: 10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&deps)
	}
	fx.srv = New(deps)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		fx.srv.Shutdown(ctx)
	})
	return fx
}

func (fx *fixture) do(t *testing.T, method, path string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := fx.srv.App().Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (fx *fixture) postJSON(t *testing.T, path string, v any) (*http.Response, map[string]any) {
	t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	resp, data := fx.do(t, http.MethodPost, path, body, "application/json")
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return resp, out
}

func TestStatusIncludesAlarm(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.alarm.Start())

	resp, data := fx.do(t, http.MethodGet, "/api/status", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st map[string]any
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, "north", st["zone"])
	assert.Equal(t, true, st["alarm_active"])
	assert.Equal(t, true, st["system_running"])
}

func TestSnapshotFallsBackToPlaceholder(t *testing.T) {
	fx := newFixture(t, func(d *Deps) {
		d.Placeholder = func() ([]byte, error) { return []byte{0xFF, 0xD8, 0x00}, nil }
	})

	resp, data := fx.do(t, http.MethodGet, "/api/snapshot", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, []byte{0xFF, 0xD8, 0x00}, data)

	fx.zone.jpeg = []byte{0xFF, 0xD8, 0x01}
	_, data = fx.do(t, http.MethodGet, "/api/snapshot", nil, "")
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01}, data)
}

func TestSnapshotWithoutAnyFrame(t *testing.T) {
	fx := newFixture(t, nil)
	resp, _ := fx.do(t, http.MethodGet, "/api/snapshot", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWritePart(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, writePart(w, []byte("JPEG")))

	assert.Equal(t, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 4\r\n\r\nJPEG\r\n", buf.String())
}

func TestEventsNewestFirst(t *testing.T) {
	fx := newFixture(t, nil)
	at := time.Date(2026, 3, 1, 6, 0, 0, 0, time.Local)
	ctx := context.Background()
	require.NoError(t, fx.store.Append(ctx, episode.Record{Timestamp: at, Kind: episode.KindEnter, Plain: "in"}))
	require.NoError(t, fx.store.Append(ctx, episode.Record{Timestamp: at.Add(9 * time.Second), Kind: episode.KindExit, Plain: "out"}))

	resp, data := fx.do(t, http.MethodGet, "/api/events?limit=10", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []eventlog.Event
	require.NoError(t, json.Unmarshal(data, &events))
	require.Len(t, events, 2)
	assert.Equal(t, "EXIT", events[0].Kind)
	assert.Equal(t, 9.0, events[0].DurationSeconds)

	resp, data = fx.do(t, http.MethodGet, "/api/statistics", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 2.0, stats["total_events"])
	assert.Equal(t, 1.0, stats["enter_events"])
}

func TestConfigGetMasksSecrets(t *testing.T) {
	fx := newFixture(t, nil)
	_, data := fx.do(t, http.MethodGet, "/api/config", nil, "")

	var cfg map[string]any
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, config.Mask, cfg["twilio_auth"])
	assert.Equal(t, 1000.0, cfg["min_area"])
}

func TestConfigUpdateAppliesAndPersists(t *testing.T) {
	fx := newFixture(t, nil)
	var applied config.Config
	fx.manager.OnChange(func(c config.Config) error { applied = c; return nil })

	resp, out := fx.postJSON(t, "/api/config", map[string]any{
		"min_area":    1500,
		"exit_grace":  "5s",
		"twilio_auth": config.Mask,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	assert.Equal(t, true, out["success"])

	got := fx.manager.Get()
	assert.Equal(t, 1500.0, got.MinArea)
	assert.Equal(t, 5*time.Second, got.ExitGrace)
	assert.Equal(t, "real-secret", got.TwilioAuth, "masked echo keeps the secret")
	assert.Equal(t, 1500.0, applied.MinArea)

	saved, err := os.ReadFile(fx.manager.Path())
	require.NoError(t, err)
	assert.Contains(t, string(saved), "min_area: 1500")
}

func TestConfigUpdateRejects(t *testing.T) {
	fx := newFixture(t, nil)

	resp, out := fx.postJSON(t, "/api/config", map[string]any{"no_such_key": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, out["success"])

	resp, out = fx.postJSON(t, "/api/config", map[string]any{"detection_frames": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, out["problems"])
	assert.Equal(t, 5, fx.manager.Get().DetectionFrames, "rejected update changes nothing")

	resp, _ = fx.do(t, http.MethodPost, "/api/config", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConfigReload(t *testing.T) {
	fx := newFixture(t, nil)
	var applied config.Config
	fx.manager.OnChange(func(c config.Config) error { applied = c; return nil })

	require.NoError(t, os.WriteFile(fx.manager.Path(), []byte("min_area: 2500\n"), 0o600))
	resp, out := fx.postJSON(t, "/api/config/reload", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 2500.0, fx.manager.Get().MinArea)
	assert.Equal(t, 2500.0, applied.MinArea)

	require.NoError(t, os.WriteFile(fx.manager.Path(), []byte("detection_frames: 0\n"), 0o600))
	resp, out = fx.postJSON(t, "/api/config/reload", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, out["problems"])
	assert.Equal(t, 2500.0, fx.manager.Get().MinArea)
}

func TestUploadAlarm(t *testing.T) {
	fx := newFixture(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "moo.WAV")
	require.NoError(t, err)
	fw.Write([]byte("RIFF"))
	require.NoError(t, mw.Close())

	resp, data := fx.do(t, http.MethodPost, "/api/upload_alarm", &body, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	want := filepath.Join(fx.dir, "static", "alert.wav")
	assert.FileExists(t, want)
	assert.Equal(t, want, fx.manager.Get().AlarmFile)
}

func TestUploadAlarmRejectsType(t *testing.T) {
	fx := newFixture(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "virus.exe")
	require.NoError(t, err)
	fw.Write([]byte("MZ"))
	require.NoError(t, mw.Close())

	resp, _ := fx.do(t, http.MethodPost, "/api/upload_alarm", &body, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTestSMS(t *testing.T) {
	fx := newFixture(t, nil)

	_, out := fx.postJSON(t, "/api/test_sms", nil)
	assert.Equal(t, true, out["success"])

	entries, err := fx.smsLog.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "+94771234567", entries[0].To)
}

func TestTestSMSWithoutRecipient(t *testing.T) {
	fx := newFixture(t, func(d *Deps) {
		d.SMS = notify.NewSMSWithSender(notify.NewMockLog(filepath.Join(t.TempDir(), "sms.json")), "", notify.DefaultMessages())
	})

	_, out := fx.postJSON(t, "/api/test_sms", nil)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, msgNoRecipient, out["message"])
}

func TestAlarmEndpoints(t *testing.T) {
	fx := newFixture(t, nil)

	_, out := fx.postJSON(t, "/api/test_alarm", nil)
	assert.Equal(t, true, out["success"])
	assert.Eventually(t, func() bool {
		starts, stops := fx.alarm.Counts()
		return starts == 1 && stops == 1
	}, time.Second, 5*time.Millisecond, "test alarm stops by itself")

	require.NoError(t, fx.alarm.Start())
	_, out = fx.postJSON(t, "/api/stop_alarm", nil)
	assert.Equal(t, true, out["success"])
	assert.False(t, fx.alarm.Active())
}

func TestTestAlarmKeepsIntrusionAlarm(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.latch.Start())

	_, out := fx.postJSON(t, "/api/test_alarm", nil)
	assert.Equal(t, true, out["success"])

	time.Sleep(50 * time.Millisecond)
	assert.True(t, fx.alarm.Active(), "intrusion alarm still sounding after the test window")
	_, stops := fx.alarm.Counts()
	assert.Zero(t, stops)
}

func TestStartStopSystem(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.alarm.Start())

	_, out := fx.postJSON(t, "/api/start_system", nil)
	assert.Equal(t, false, out["success"], "already running")

	_, out = fx.postJSON(t, "/api/stop_system", nil)
	assert.Equal(t, true, out["success"])
	assert.False(t, fx.zone.Running())
	assert.False(t, fx.alarm.Active(), "stopping the system silences the alarm")

	_, out = fx.postJSON(t, "/api/start_system", nil)
	assert.Equal(t, true, out["success"])
	assert.True(t, fx.zone.Running())
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.DispatchQueue(3)
	fx := newFixture(t, func(d *Deps) { d.Metrics = m })

	resp, data := fx.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "farmgate_dispatch_queue_length 3")
}

func TestWebsocketRoutes(t *testing.T) {
	fx := newFixture(t, func(d *Deps) { d.Dashboard = hub.NewDashboard() })
	resp, _ := fx.do(t, http.MethodGet, "/ws/status", nil, "")
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)

	fx = newFixture(t, nil)
	resp, _ = fx.do(t, http.MethodGet, "/ws/status", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no dashboard, no websocket routes")
}
