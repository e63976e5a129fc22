// Package lockout decides when sustained bad posture readings turn into a
// blocking alarm, and drives the alarm's side effects.
//
// The controller has two states. It stays Clear while bad readings have
// lasted no longer than the threshold, and moves to Locked on the first bad
// reading after that. Any good reading returns it to Clear at once.
// Elapsed time is recomputed on every bad reading.
//
//	ctrl := lockout.New(display, alarm, lockout.WithThreshold(10*time.Second))
//	switch ctrl.Observe(prediction) {
//	case lockout.Engaged:
//	    // overlay is up
//	}
package lockout

import (
	"errors"
	"fmt"
	"time"
)

// DefaultThreshold is how long bad readings must last before locking.
const DefaultThreshold = 10 * time.Second

// State is the controller state.
type State int

const (
	// Clear means no lockout is active.
	Clear State = iota
	// Locked means the alarm is engaged.
	Locked
)

// String returns the state name.
func (s State) String() string {
	if s == Locked {
		return "locked"
	}
	return "clear"
}

// MarshalText encodes the state name for JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "clear":
		*s = Clear
	case "locked":
		*s = Locked
	default:
		return fmt.Errorf("lockout: unknown state %q", b)
	}
	return nil
}

// Transition is the effect of one observation.
type Transition int

const (
	// None means the state did not change.
	None Transition = iota
	// Engaged means the controller moved Clear -> Locked.
	Engaged
	// Disengaged means the controller moved Locked -> Clear.
	Disengaged
)

// String returns the transition name.
func (t Transition) String() string {
	switch t {
	case Engaged:
		return "engaged"
	case Disengaged:
		return "disengaged"
	default:
		return "none"
	}
}

// Display is the visual side of the lockout.
type Display interface {
	RequestFullscreen() error
	ExitFullscreen() error
	ShowOverlay() error
	HideOverlay() error
	SetPulse(on bool) error
}

// Alarm is the audible side of the lockout.
type Alarm interface {
	// PlayLoop starts the alarm sound, looping until Stop.
	PlayLoop() error

	// Stop stops the sound and rewinds it to the start.
	Stop() error
}

// PresentationError is a failed display or alarm call. These are logged
// and never stop the lockout.
type PresentationError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PresentationError) Error() string {
	return fmt.Sprintf("lockout: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PresentationError) Unwrap() error {
	return e.Err
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	State    State     `json:"state"`
	Active   bool      `json:"active"`
	BadSince time.Time `json:"bad_since,omitzero"`
	LockedAt time.Time `json:"locked_at,omitzero"`
}

// BadFor returns how long the current bad run has lasted at now.
func (s Snapshot) BadFor(now time.Time) time.Duration {
	if s.BadSince.IsZero() {
		return 0
	}
	return now.Sub(s.BadSince)
}

// Event is delivered to observers on every state change.
type Event struct {
	Transition Transition `json:"transition"`
	Snapshot   Snapshot   `json:"snapshot"`
	At         time.Time  `json:"at"`
}

// Alarms fans each call out to every alarm. Errors are joined.
func Alarms(alarms ...Alarm) Alarm {
	return multiAlarm(alarms)
}

type multiAlarm []Alarm

func (m multiAlarm) PlayLoop() error {
	var errs []error
	for _, a := range m {
		if err := a.PlayLoop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiAlarm) Stop() error {
	var errs []error
	for _, a := range m {
		if err := a.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop returns a presenter that does nothing. It satisfies Display and Alarm.
func Nop() NopPresenter {
	return NopPresenter{}
}

// NopPresenter ignores every call.
type NopPresenter struct{}

func (NopPresenter) RequestFullscreen() error { return nil }
func (NopPresenter) ExitFullscreen() error    { return nil }
func (NopPresenter) ShowOverlay() error       { return nil }
func (NopPresenter) HideOverlay() error       { return nil }
func (NopPresenter) SetPulse(bool) error      { return nil }
func (NopPresenter) PlayLoop() error          { return nil }
func (NopPresenter) Stop() error              { return nil }
