package checkout

import "errors"

var (
	// ErrIllegalTransition is returned when the submission flow is driven out of order.
	ErrIllegalTransition = errors.New("checkout: illegal state transition")
	// ErrInvalidForm marks customer form validation failures.
	ErrInvalidForm = errors.New("checkout: invalid customer form")
	// ErrEmptyCart is returned when submitting without line items.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrMalformedResponse marks an order service reply without an order id.
	ErrMalformedResponse = errors.New("checkout: malformed order response")
	// ErrInProgress is returned when the session already has a submission running.
	ErrInProgress = errors.New("checkout: submission already in progress")
)
