// Package apperr defines the error kinds shared by the store, services, API and
// client-side state. Callers match kinds with errors.Is; the wrapped cause stays
// reachable through errors.Unwrap.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable means the remote store could not be reached or failed.
	// It is recoverable by retrying.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrValidation marks malformed user input rejected before any remote call.
	ErrValidation = errors.New("validation failure")

	// ErrAuthRequired marks an action that needs a signed-in user.
	ErrAuthRequired = errors.New("authentication required")

	// ErrForbidden marks an authenticated user lacking the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCheckout marks a checkout that failed after it started and may have
	// taken a payment.
	ErrCheckout = errors.New("checkout failure")
)

// Unavailable wraps a store or network failure.
func Unavailable(op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, ErrDataUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDataUnavailable, cause)
}

// Invalid builds a validation failure with a user-visible message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound reports a missing entity of the given kind.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// AuthRequired reports an action attempted while signed out.
func AuthRequired(action string) error {
	return fmt.Errorf("%s: %w", action, ErrAuthRequired)
}

// Forbidden reports a role check failure.
func Forbidden(action string) error {
	return fmt.Errorf("%s: %w", action, ErrForbidden)
}

// CheckoutError carries what support needs to reconcile a failed checkout.
type CheckoutError struct {
	PaymentReference string
	Refunded         bool
	Cause            error
}

func (e *CheckoutError) Error() string {
	if e.PaymentReference == "" {
		return fmt.Sprintf("checkout failure: %v", e.Cause)
	}
	return fmt.Sprintf("checkout failure (payment %s, refunded=%t): %v", e.PaymentReference, e.Refunded, e.Cause)
}

func (e *CheckoutError) Unwrap() []error {
	return []error{ErrCheckout, e.Cause}
}

// Message returns the user-facing text for err. Validation messages are passed
// through; everything else gets a fixed sentence per kind.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCheckout):
		return "Your payment may have been taken but the order could not be completed. Please contact support."
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrAuthRequired):
		return "Please sign in to continue"
	case errors.Is(err, ErrForbidden):
		return "You do not have access to this resource"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrDataUnavailable):
		return "Service temporarily unavailable, please retry"
	default:
		return "Internal error"
	}
}

// Retryable reports whether repeating the same call may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrDataUnavailable) && !errors.Is(err, ErrCheckout)
}
