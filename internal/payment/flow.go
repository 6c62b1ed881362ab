// Package payment models the PIN authorization of a pending application.
// A Flow only tracks the user visible state; settlement and approval are
// driven by the payment service.
package payment

import (
	"errors"
	"fmt"
	"sync"

	"github.com/atinyakov/DigitalPass/internal/models"
)

// PinLength is the number of digits a PIN must have.
const PinLength = 4

// State is a payment flow step.
type State int

const (
	// StateIdle is a flow that has not opened PIN entry yet.
	StateIdle State = iota
	// StatePinEntry accepts digit presses and deletes.
	StatePinEntry
	// StateProcessing is a submitted PIN waiting for settlement.
	StateProcessing
	// StateSuccess holds the issued pass.
	StateSuccess
	// StateFailure holds the settlement error until a retry.
	StateFailure
)

var stateNames = [...]string{"idle", "pin_entry", "processing", "success", "failure"}

// String returns the state name used on the wire.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrPinIncomplete is returned when fewer than PinLength digits were entered.
	ErrPinIncomplete = errors.New("pin must have 4 digits")
	// ErrInvalidDigit is returned when a pressed key is not 0-9.
	ErrInvalidDigit = errors.New("pin accepts digits only")
	// ErrProcessing is returned when the PIN is edited outside PIN entry.
	ErrProcessing = errors.New("payment is not accepting PIN input")
	// ErrInFlight is returned by Submit while a settlement is running.
	ErrInFlight = errors.New("payment is already processing")
	// ErrSettled is returned by Submit after the payment succeeded.
	ErrSettled = errors.New("payment already completed")
	// ErrTransition is returned for transitions the current state does not allow.
	ErrTransition = fmt.Errorf("%w: payment transition not allowed", models.ErrStateViolation)
)

// Status is a point in time view of a Flow. The PIN itself is never exposed.
type Status struct {
	ApplicationID string             `json:"applicationId"`
	State         State              `json:"state"`
	Digits        int                `json:"digits"`
	Pass          *models.PassRecord `json:"pass,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// Flow is the payment state machine of one pending application.
// It is safe for concurrent use.
type Flow struct {
	mu            sync.Mutex
	applicationID string
	state         State
	pin           []byte
	pass          models.PassRecord
	err           error
}

// NewFlow returns an idle flow for the application.
func NewFlow(applicationID string) *Flow {
	return &Flow{applicationID: applicationID}
}

// ApplicationID returns the application the flow pays for.
func (f *Flow) ApplicationID() string { return f.applicationID }

// State returns the current step.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Begin opens PIN entry. It is a no-op while PIN entry is already open.
func (f *Flow) Begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case StateIdle, StateFailure:
		f.state = StatePinEntry
		f.pin = f.pin[:0]
		f.err = nil
	case StatePinEntry:
	case StateProcessing:
		return ErrInFlight
	default:
		return ErrSettled
	}
	return nil
}

// Press appends a digit. Digits past PinLength are ignored.
func (f *Flow) Press(d rune) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StatePinEntry {
		return ErrProcessing
	}
	if d < '0' || d > '9' {
		return ErrInvalidDigit
	}
	if len(f.pin) < PinLength {
		f.pin = append(f.pin, byte(d))
	}
	return nil
}

// Delete removes the last digit, if any.
func (f *Flow) Delete() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StatePinEntry {
		return ErrProcessing
	}
	if n := len(f.pin); n > 0 {
		f.pin = f.pin[:n-1]
	}
	return nil
}

// Submit moves a complete PIN into processing and returns it. An incomplete
// PIN keeps the flow in PIN entry.
func (f *Flow) Submit() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case StatePinEntry:
	case StateProcessing:
		return "", ErrInFlight
	case StateSuccess:
		return "", ErrSettled
	default:
		return "", ErrTransition
	}
	if len(f.pin) != PinLength {
		return "", ErrPinIncomplete
	}
	f.state = StateProcessing
	return string(f.pin), nil
}

// PIN returns the submitted PIN while processing.
func (f *Flow) PIN() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateProcessing {
		return ""
	}
	return string(f.pin)
}

// Complete records the issued pass and ends the flow.
func (f *Flow) Complete(rec models.PassRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateProcessing {
		return ErrTransition
	}
	f.state = StateSuccess
	f.pass = rec
	f.pin = nil
	return nil
}

// Fail records a settlement failure. The application is left untouched.
func (f *Flow) Fail(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateProcessing {
		return ErrTransition
	}
	f.state = StateFailure
	f.err = err
	f.pin = f.pin[:0]
	return nil
}

// Retry returns a failed flow to PIN entry with an empty PIN.
func (f *Flow) Retry() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateFailure {
		return ErrTransition
	}
	f.state = StatePinEntry
	f.pin = f.pin[:0]
	f.err = nil
	return nil
}

// Outcome returns the result of a finished settlement. done is false until
// the flow reached Success or Failure.
func (f *Flow) Outcome() (rec models.PassRecord, done bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case StateSuccess:
		return f.pass, true, nil
	case StateFailure:
		return models.PassRecord{}, true, f.err
	}
	return models.PassRecord{}, false, nil
}

// Status snapshots the flow.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := Status{ApplicationID: f.applicationID, State: f.state, Digits: len(f.pin)}
	if f.state == StateSuccess {
		rec := f.pass
		st.Pass = &rec
	}
	if f.err != nil {
		st.Error = f.err.Error()
	}
	return st
}
