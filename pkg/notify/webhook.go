package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/teslashibe/farmgate/internal/httpc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// WebhookConfig points at a JSON endpoint. When TokenURL is set the
// requests carry an OAuth2 client-credentials token.
type WebhookConfig struct {
	URL          string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Zone         string
}

// WebhookPayload is the POSTed body.
type WebhookPayload struct {
	Kind       Kind      `json:"kind"`
	Zone       string    `json:"zone,omitempty"`
	EpisodeID  string    `json:"episode_id,omitempty"`
	At         time.Time `json:"at"`
	DurationMS int64     `json:"duration_ms,omitempty"`
}

// Webhook posts episode edges to an HTTP endpoint.
type Webhook struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhook builds the notifier. The OAuth2 client wraps the shared
// httpc client so timeouts still apply.
func NewWebhook(cfg WebhookConfig) *Webhook {
	client := httpc.Client
	if cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpc.Client)
		client = cc.Client(ctx)
		client.Timeout = httpc.DefaultTimeout
	}
	return &Webhook{cfg: cfg, client: client}
}

// Name returns "webhook".
func (w *Webhook) Name() string { return "webhook" }

// Notify posts the payload. The Idempotency-Key header lets the receiver
// drop retried deliveries.
func (w *Webhook) Notify(ctx context.Context, kind Kind, ep Episode) error {
	body, err := json.Marshal(WebhookPayload{
		Kind:       kind,
		Zone:       w.cfg.Zone,
		EpisodeID:  ep.ID,
		At:         ep.At,
		DurationMS: ep.Duration.Milliseconds(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.ID != "" {
		req.Header.Set("Idempotency-Key", ep.Key(kind))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return &DeliveryError{Provider: w.Name(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return &DeliveryError{Provider: w.Name(), Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}
