package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	// ErrNoSelection means every selection key was dropped as unresolvable or
	// all quantities were zero.
	ErrNoSelection = errors.New("no resolvable selection")

	// ErrAttemptClosed means the checkout attempt already reached a terminal
	// state and accepts no further actions.
	ErrAttemptClosed = errors.New("checkout attempt is closed")

	// ErrAttemptExpired means the countdown reached zero; the buyer must
	// restart selection.
	ErrAttemptExpired = errors.New("checkout attempt expired")
)

// ReservationError is a backend rejection of a hold request for one
// date-session. It carries the backend's message when one was given.
type ReservationError struct {
	DateSessionID string
	Message       string
	Err           error
}

func (e *ReservationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("reservation failed for session %s: %s", e.DateSessionID, e.Message)
	}
	return fmt.Sprintf("reservation failed for session %s", e.DateSessionID)
}

func (e *ReservationError) Unwrap() error { return e.Err }

// ReconciliationError means a drafted session could not be matched to any
// backend-assigned identifier within tolerance.
type ReconciliationError struct {
	Index int
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("draft schedule %d has no matching backend session", e.Index)
}

// PaymentHandoffError means the provider returned no usable redirect URL.
type PaymentHandoffError struct {
	Err error
}

func (e *PaymentHandoffError) Error() string {
	if e.Err != nil {
		return "payment handoff failed: " + e.Err.Error()
	}
	return "payment handoff failed: no redirect URL"
}

func (e *PaymentHandoffError) Unwrap() error { return e.Err }
