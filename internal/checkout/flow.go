package checkout

import (
	"fmt"
	"strings"
)

// State is a checkout submission state.
type State int

const (
	Idle State = iota
	Validating
	Submitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Flow tracks one shopper's checkout submission:
//
//	Idle -> Validating -> Submitting -> Succeeded(orderID) | Failed(err)
//
// Succeeded and Failed may re-enter Validating. Validating may fail directly
// when the form or cart is rejected.
//
// Service.Submit drives a fresh Flow per call under the session lock. The
// outcome persists in the returned Result and the current order record, so a
// resubmission after Failed or Succeeded starts again from Idle. Callers that
// keep a Flow re-enter through Begin.
type Flow struct {
	state   State
	orderID string
	err     error
}

// NewFlow returns a flow in the Idle state.
func NewFlow() *Flow {
	return &Flow{state: Idle}
}

// State returns the current state.
func (f *Flow) State() State { return f.state }

// OrderID returns the order id recorded on success.
func (f *Flow) OrderID() string { return f.orderID }

// Err returns the failure recorded on Failed.
func (f *Flow) Err() error { return f.err }

// Begin moves to Validating. Allowed from Idle, Succeeded and Failed.
func (f *Flow) Begin() error {
	switch f.state {
	case Idle, Succeeded, Failed:
		f.orderID = ""
		f.err = nil
		return f.move(Validating)
	}
	return f.illegal(Validating)
}

// Submit moves from Validating to Submitting.
func (f *Flow) Submit() error {
	if f.state != Validating {
		return f.illegal(Submitting)
	}
	return f.move(Submitting)
}

// Succeed records the order id. An empty id is rejected so a nominal success
// without an identifier cannot be accepted.
func (f *Flow) Succeed(orderID string) error {
	if f.state != Submitting {
		return f.illegal(Succeeded)
	}
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("%w: success requires an order id", ErrIllegalTransition)
	}
	f.orderID = orderID
	return f.move(Succeeded)
}

// Fail records err and moves to Failed from Validating or Submitting.
func (f *Flow) Fail(err error) error {
	if f.state != Validating && f.state != Submitting {
		return f.illegal(Failed)
	}
	f.err = err
	return f.move(Failed)
}

func (f *Flow) move(next State) error {
	f.state = next
	return nil
}

func (f *Flow) illegal(next State) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, f.state, next)
}
