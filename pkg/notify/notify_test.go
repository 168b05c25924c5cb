package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	to    []string
	fails int
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return "", errors.New("gateway timeout")
	}
	f.sent = append(f.sent, body)
	f.to = append(f.to, to)
	return "SM123", nil
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  94771234567 ", "+94771234567"},
		{"+94771234567", "+94771234567"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in), "input %q", tt.in)
	}
}

func TestSMSConfigMock(t *testing.T) {
	assert.True(t, SMSConfig{}.Mock())
	assert.True(t, SMSConfig{TwilioSID: "YOUR_ACCOUNT_SID", TwilioAuth: "x", TwilioFrom: "+1"}.Mock())
	assert.False(t, SMSConfig{TwilioSID: "AC1", TwilioAuth: "tok", TwilioFrom: "+1555"}.Mock())
}

func TestNewSMSPicksTransport(t *testing.T) {
	s := NewSMS(SMSConfig{To: "9477", MockLog: filepath.Join(t.TempDir(), "sms.json")})
	assert.Equal(t, "mock", s.Transport())

	s = NewSMS(SMSConfig{To: "9477", TwilioSID: "AC1", TwilioAuth: "tok", TwilioFrom: "+1555"})
	assert.Equal(t, "twilio", s.Transport())
}

func TestSMSNotify(t *testing.T) {
	f := &fakeSender{}
	s := NewSMSWithSender(f, "94771234567", Messages{})
	ctx := context.Background()

	require.NoError(t, s.Notify(ctx, KindEnter, Episode{ID: "ep-1"}))
	require.NoError(t, s.Notify(ctx, KindExit, Episode{ID: "ep-1", Duration: 12 * time.Second}))

	assert.Equal(t, []string{DefaultMessages().Enter, DefaultMessages().Exit}, f.sent)
	assert.Equal(t, "+94771234567", f.to[0])
}

func TestSMSNoRecipient(t *testing.T) {
	s := NewSMSWithSender(&fakeSender{}, "", DefaultMessages())
	err := s.Notify(context.Background(), KindTest, Episode{})
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestSMSRetryIsIdempotent(t *testing.T) {
	f := &fakeSender{fails: 1}
	s := NewSMSWithSender(f, "+1", DefaultMessages())
	ctx := context.Background()
	ep := Episode{ID: "ep-7"}

	err := s.Notify(ctx, KindEnter, ep)
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "fake", de.Provider)

	require.NoError(t, s.Notify(ctx, KindEnter, ep))
	require.NoError(t, s.Notify(ctx, KindEnter, ep), "already delivered")
	assert.Len(t, f.sent, 1)

	require.NoError(t, s.Notify(ctx, KindTest, ep))
	require.NoError(t, s.Notify(ctx, KindTest, ep))
	assert.Len(t, f.sent, 3, "test messages always go out")
}

func TestMessagesDuration(t *testing.T) {
	m := Messages{Exit: "left after {duration}s"}
	assert.Equal(t, "left after 42s", m.Text(KindExit, Episode{Duration: 42500 * time.Millisecond}))
}

func TestMockLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sms_log.json")
	m := NewMockLog(path)
	m.now = func() time.Time { return time.Date(2026, 3, 1, 6, 0, 0, 0, time.Local) }

	_, err := m.Send(context.Background(), "+1", "one")
	require.NoError(t, err)
	id, err := m.Send(context.Background(), "+1", "two")
	require.NoError(t, err)
	assert.Equal(t, "mock-2", id)

	entries, err := m.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, MockEntry{Timestamp: "2026-03-01 06:00:00", To: "+1", Message: "two", Status: "SENT (MOCK)"}, entries[1])
}

func TestWebhook(t *testing.T) {
	var (
		got WebhookPayload
		key string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w := NewWebhook(WebhookConfig{URL: srv.URL, Zone: "north"})
	at := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	err := w.Notify(context.Background(), KindExit, Episode{ID: "ep-1", At: at, Duration: 3 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, "ep-1:exit", key)
	assert.Equal(t, KindExit, got.Kind)
	assert.Equal(t, "north", got.Zone)
	assert.Equal(t, int64(3000), got.DurationMS)
	assert.True(t, got.At.Equal(at))
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(WebhookConfig{URL: srv.URL}).Notify(context.Background(), KindEnter, Episode{})
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "webhook", de.Provider)
}

func TestWebhookOAuth(t *testing.T) {
	var auth string
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/hook", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	w := NewWebhook(WebhookConfig{
		URL:          srv.URL + "/hook",
		TokenURL:     srv.URL + "/token",
		ClientID:     "farm",
		ClientSecret: "secret",
	})
	require.NoError(t, w.Notify(context.Background(), KindTest, Episode{}))
	assert.Equal(t, "Bearer abc", auth)
}
