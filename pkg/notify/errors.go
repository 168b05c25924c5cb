package notify

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRecipient means no farmer phone number is configured.
	ErrNoRecipient = errors.New("notify: no recipient configured")

	// ErrDisabled means the notifier has no working backend.
	ErrDisabled = errors.New("notify: disabled")
)

// DeliveryError wraps a provider failure.
type DeliveryError struct {
	Provider string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify: %s delivery failed: %v", e.Provider, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
