// Package notify tells the farmer about intrusions: SMS through Twilio
// (or a local log in mock mode) and an optional JSON webhook.
package notify

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Kind of notification.
type Kind string

const (
	KindEnter Kind = "enter"
	KindExit  Kind = "exit"
	KindTest  Kind = "test"
)

// Episode carries what a notifier may mention. ID doubles as the
// idempotency key across retries.
type Episode struct {
	ID       string
	At       time.Time
	Duration time.Duration
}

// Key identifies one delivery for deduplication.
func (e Episode) Key(kind Kind) string {
	return e.ID + ":" + string(kind)
}

// Notifier delivers a notification.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, kind Kind, ep Episode) error
}

// Messages are the SMS bodies. Exit may contain {duration}.
type Messages struct {
	Enter string
	Exit  string
	Test  string
}

// DefaultMessages are in Sinhala.
func DefaultMessages() Messages {
	return Messages{
		Enter: "ඔබේ වත්තට සතුන් ඇතුළු වී ඇත. කරුණාකර පරීක්ෂා කරන්න.",
		Exit:  "සතුන් වත්තෙන් පිටවී ගොස් ඇත.",
		Test:  "කර්මිකාරයාගේ වත්තේ ආරක්ෂක පද්ධතිය සාර්ථකව ක්‍රියාත්මක වේ.",
	}
}

// Text renders the body for kind.
func (m Messages) Text(kind Kind, ep Episode) string {
	var tmpl string
	switch kind {
	case KindEnter:
		tmpl = m.Enter
	case KindExit:
		tmpl = m.Exit
	default:
		tmpl = m.Test
	}
	return strings.ReplaceAll(tmpl, "{duration}", strconv.Itoa(int(ep.Duration.Seconds())))
}

// NormalizePhone trims spaces and ensures a leading +.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+" + phone
}
