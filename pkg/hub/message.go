// Package hub fans dashboard updates out to websocket clients using a
// single-owner goroutine per hub.
package hub

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind names the stream a text frame belongs to.
type Kind string

const (
	KindStatus Kind = "status"
	KindEvent  Kind = "event"
)

// Envelope is the JSON shape of every text frame:
//
//	{"type":"status","sent":"2026-03-01T06:00:00Z","data":{...}}
type Envelope struct {
	Kind Kind            `json:"type"`
	Sent time.Time       `json:"sent"`
	Data json.RawMessage `json:"data"`
}

// Message is one queued websocket frame. Binary frames carry a JPEG;
// text frames carry an encoded Envelope.
type Message struct {
	Binary bool
	Data   []byte
}

// NewEnvelope encodes v under kind, stamped with the current time.
func NewEnvelope(kind Kind, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("hub: encode %s: %w", kind, err)
	}
	frame, err := json.Marshal(Envelope{Kind: kind, Sent: time.Now().UTC(), Data: data})
	if err != nil {
		return Message{}, fmt.Errorf("hub: encode envelope: %w", err)
	}
	return Message{Data: frame}, nil
}

// NewSnapshot wraps a JPEG as a binary frame.
func NewSnapshot(jpeg []byte) Message {
	return Message{Binary: true, Data: jpeg}
}

// DecodeEnvelope parses a text frame and, when v is non-nil, its payload.
func DecodeEnvelope(frame []byte, v any) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("hub: decode envelope: %w", err)
	}
	if env.Kind == "" {
		return Envelope{}, fmt.Errorf("hub: envelope without type")
	}
	if v != nil {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return env, fmt.Errorf("hub: decode %s: %w", env.Kind, err)
		}
	}
	return env, nil
}
