package farm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/farmgate/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New()
	cfg.EventLogPath = filepath.Join(dir, "events.csv")
	cfg.SMSLogPath = filepath.Join(dir, "sms.json")
	cfg.AlarmFile = filepath.Join(dir, "missing.wav")
	cfg.CameraSource = filepath.Join(dir, "missing.mp4")
	return *cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.DetectionFrames = 0

	_, err := New(cfg, Options{})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestInitAndHotApply(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(cfg, Options{})
	require.NoError(t, err)
	require.NoError(t, app.Init())
	defer app.Shutdown()

	assert.Nil(t, app.audio, "missing sound file leaves audio off")
	assert.True(t, app.Zone().Running())

	err = app.Manager().Update(map[string]any{
		"detection_enabled": false,
		"farmer_phone":      " 94771234567 ",
		"detection_frames":  3,
	})
	require.NoError(t, err)

	assert.False(t, app.detector.Enabled())
	assert.Equal(t, "+94771234567", app.sms.Recipient())
	assert.Equal(t, 3, app.machine.Config().DetectionFrames)
}

func TestReloadAppliesFile(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "farmgate.yaml")
	app, err := New(cfg, Options{ConfigPath: path})
	require.NoError(t, err)
	require.NoError(t, app.Init())
	defer app.Shutdown()

	require.NoError(t, os.WriteFile(path, []byte("detection_frames: 4\nmin_area: 2200\n"), 0o600))
	require.NoError(t, app.Reload())
	assert.Equal(t, 4, app.machine.Config().DetectionFrames)
	assert.Equal(t, 2200.0, app.Manager().Get().MinArea)

	require.NoError(t, os.WriteFile(path, []byte("detection_frames: 0\n"), 0o600))
	assert.Error(t, app.Reload())
	assert.Equal(t, 4, app.machine.Config().DetectionFrames, "rejected file changes nothing")
}

func TestWaitLoopsGivesUp(t *testing.T) {
	app := &App{}
	release := make(chan struct{})
	app.goRun(func() { <-release })

	began := time.Now()
	assert.False(t, app.waitLoops(context.Background(), 20*time.Millisecond))
	assert.Less(t, time.Since(began), time.Second)

	close(release)
	assert.True(t, app.waitLoops(context.Background(), time.Second))
}
