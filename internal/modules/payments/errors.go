package payments

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransport             = errors.New("gateway transport failure")
	ErrRejected              = errors.New("gateway rejected request")
	ErrInvalidRequest        = errors.New("invalid gateway request")
	ErrIncompleteCardDetails = errors.New("incomplete card details")
	ErrDuplicateSubmission   = errors.New("submission already in progress")
	ErrOrderNotPending       = errors.New("order is not pending")
	ErrNoActiveReference     = errors.New("order has no active payment reference")
	ErrReferenceNotFound     = errors.New("payment reference not found")
	ErrWrongMethod           = errors.New("operation does not match payment method")
	ErrWebhookUnauthorized   = errors.New("webhook token mismatch")
	ErrWebhookMalformed      = errors.New("malformed webhook payload")
)

// TransportError: the request may or may not have reached the provider.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: transport: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// RejectedError is a non-2xx provider answer. Reason is the provider's first
// error description or a generic fallback.
type RejectedError struct {
	Op         string
	StatusCode int
	Reason     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: rejected (%d): %s", e.Op, e.StatusCode, e.Reason)
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// Ambiguous reports a 5xx: the provider failed without saying whether the
// request took effect.
func (e *RejectedError) Ambiguous() bool { return e.StatusCode >= 500 }

// Refused is the provider turning down the request data itself (400, 422),
// the only answer that proves no charge exists.
func (e *RejectedError) Refused() bool {
	return e.StatusCode == 400 || e.StatusCode == 422
}

// Unauthorized reports a rejected or revoked API key.
func (e *RejectedError) Unauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

type IncompleteCardError struct {
	Fields []string
}

func (e *IncompleteCardError) Error() string {
	return "incomplete card details: " + strings.Join(e.Fields, ", ")
}

func (e *IncompleteCardError) Is(target error) bool { return target == ErrIncompleteCardDetails }
