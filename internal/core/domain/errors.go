package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the checkout service matches exactly one
// of these with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrAuthentication    = errors.New("processor authentication failed")
	ErrUpstream          = errors.New("payment processor error")
	ErrPaymentIncomplete = errors.New("payment not completed")
	ErrLedgerWrite       = errors.New("ledger write failed after capture")
	ErrOrderMismatch     = errors.New("captured order does not match request")
)

// ErrProductNotFound is returned by catalog adapters when the product row is
// missing or has no price.
var ErrProductNotFound = errors.New("product not found")

// Error is a classified checkout failure. Message is safe to show to the
// caller; Cause is for logs only.
type Error struct {
	Kind    error
	Message string
	Cause   error
	// Status is the processor status reported for ErrPaymentIncomplete.
	Status string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func NewValidationError(msg string) *Error {
	return &Error{Kind: ErrValidation, Message: msg}
}

// MissingFieldsError names every missing request field.
func MissingFieldsError(fields ...string) *Error {
	return NewValidationError("Missing required fields: " + strings.Join(fields, ", "))
}

func NewNotFoundError(cause error) *Error {
	return &Error{Kind: ErrNotFound, Message: "Game not found or could not be fetched", Cause: cause}
}

func NewAuthenticationError(cause error) *Error {
	return &Error{Kind: ErrAuthentication, Message: "Failed to get payment processor access token", Cause: cause}
}

func NewUpstreamError(msg string, cause error) *Error {
	return &Error{Kind: ErrUpstream, Message: msg, Cause: cause}
}

func NewPaymentIncompleteError(status string) *Error {
	return &Error{
		Kind:    ErrPaymentIncomplete,
		Message: fmt.Sprintf("Payment not completed. Status: %s", status),
		Status:  status,
	}
}

// NewLedgerWriteError reports the one failure where money has moved but no
// order exists. It must not be retried by the caller.
func NewLedgerWriteError(processorOrderID string, cause error) *Error {
	return &Error{
		Kind: ErrLedgerWrite,
		Message: fmt.Sprintf(
			"Payment was successful but failed to save the order. Please contact support with reference %s instead of paying again.",
			processorOrderID,
		),
		Cause: cause,
	}
}

// NewOrderMismatchError reports a captured processor order that belongs to a
// different game or user than the capture request names. Nothing is granted.
func NewOrderMismatchError(processorOrderID string, cause error) *Error {
	return &Error{
		Kind: ErrOrderMismatch,
		Message: fmt.Sprintf(
			"Payment does not match the requested order. Please contact support with reference %s.",
			processorOrderID,
		),
		Cause: cause,
	}
}

// Code returns a stable machine-readable code for an error kind.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuthentication):
		return "authentication_error"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	case errors.Is(err, ErrPaymentIncomplete):
		return "payment_incomplete"
	case errors.Is(err, ErrLedgerWrite):
		return "ledger_write_failed"
	case errors.Is(err, ErrOrderMismatch):
		return "order_mismatch"
	default:
		return "internal_error"
	}
}
