// Package alarm drives the on-site deterrent: a looping siren sound, a
// relay-switched siren, or both.
package alarm

import "errors"

// ErrNoSound means the configured alarm file does not exist.
var ErrNoSound = errors.New("alarm: sound file not found")

// Alarm is an on/off deterrent. Start on a running alarm and Stop on a
// stopped one are no-ops.
type Alarm interface {
	Start() error
	Stop() error
	Active() bool
}

// Multi fans out to several alarms. One failing does not stop the
// others from being driven.
type Multi []Alarm

// Start starts every alarm.
func (m Multi) Start() error {
	var errs []error
	for _, a := range m {
		if err := a.Start(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop stops every alarm.
func (m Multi) Stop() error {
	var errs []error
	for _, a := range m {
		if err := a.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Active reports whether any alarm is on.
func (m Multi) Active() bool {
	for _, a := range m {
		if a.Active() {
			return true
		}
	}
	return false
}
