package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/teslashibe/farmgate/internal/log"
)

// Sender is an SMS transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, to, body string) (id string, err error)
}

// SMSConfig selects the transport and recipient.
type SMSConfig struct {
	To         string // farmer phone
	TwilioSID  string
	TwilioAuth string
	TwilioFrom string
	MockLog    string // mock mode log file
	Messages   Messages
}

// Mock reports whether the Twilio credentials are missing or still the
// sample placeholders.
func (c SMSConfig) Mock() bool {
	for _, v := range []string{c.TwilioSID, c.TwilioAuth, c.TwilioFrom} {
		if v == "" || strings.HasPrefix(v, "YOUR_") {
			return true
		}
	}
	return false
}

// SMS notifies one farmer by text message.
type SMS struct {
	sender   Sender
	messages Messages
	logger   *slog.Logger

	mu   sync.Mutex
	to   string
	sent map[string]string // delivery key -> provider id
}

// NewSMS picks Twilio or the mock log from cfg.
func NewSMS(cfg SMSConfig) *SMS {
	var sender Sender
	if cfg.Mock() {
		path := cfg.MockLog
		if path == "" {
			path = "sms_log.json"
		}
		sender = NewMockLog(path)
	} else {
		sender = NewTwilio(cfg.TwilioSID, cfg.TwilioAuth, cfg.TwilioFrom)
	}
	return NewSMSWithSender(sender, cfg.To, cfg.Messages)
}

// NewSMSWithSender uses any transport.
func NewSMSWithSender(sender Sender, to string, msgs Messages) *SMS {
	if msgs == (Messages{}) {
		msgs = DefaultMessages()
	}
	s := &SMS{
		sender:   sender,
		messages: msgs,
		sent:     make(map[string]string),
	}
	s.logger = log.Component("sms").With("transport", sender.Name())
	s.SetRecipient(to)
	return s
}

// Name returns "sms".
func (s *SMS) Name() string { return "sms" }

// Transport returns the active sender's name.
func (s *SMS) Transport() string { return s.sender.Name() }

// SetRecipient changes the farmer phone.
func (s *SMS) SetRecipient(phone string) {
	s.mu.Lock()
	s.to = NormalizePhone(phone)
	s.mu.Unlock()
}

// Recipient returns the normalised phone, or "".
func (s *SMS) Recipient() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.to
}

// SetMessages swaps message bodies.
func (s *SMS) SetMessages(m Messages) {
	s.mu.Lock()
	s.messages = m
	s.mu.Unlock()
}

// Notify sends the message for kind. A delivery already made for the
// same episode and kind is not repeated. Test messages are never
// deduplicated.
func (s *SMS) Notify(ctx context.Context, kind Kind, ep Episode) error {
	s.mu.Lock()
	to, msgs := s.to, s.messages
	key := ep.Key(kind)
	_, done := s.sent[key]
	s.mu.Unlock()

	if to == "" {
		return ErrNoRecipient
	}
	if done && ep.ID != "" && kind != KindTest {
		s.logger.Debug("duplicate delivery suppressed", "key", key)
		return nil
	}

	id, err := s.sender.Send(ctx, to, msgs.Text(kind, ep))
	if err != nil {
		return &DeliveryError{Provider: s.sender.Name(), Err: err}
	}

	if ep.ID != "" && kind != KindTest {
		s.mu.Lock()
		if len(s.sent) >= 256 {
			clear(s.sent)
		}
		s.sent[key] = id
		s.mu.Unlock()
	}
	s.logger.Info("📱 sms sent", "kind", kind, "to", to, "id", id)
	return nil
}
