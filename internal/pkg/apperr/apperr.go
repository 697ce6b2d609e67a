// Package apperr defines the application error taxonomy and its HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code categorizes an application error. The prefix selects the HTTP status.
type Code string

const (
	// Validation (400)
	CodeValidation     Code = "validation_failed"
	CodeInvalidPlan    Code = "validation_invalid_plan"
	CodeInvalidPayload Code = "validation_invalid_payload"
	CodeDiscount       Code = "validation_discount_rejected"

	// Auth (401)
	CodeAuth             Code = "auth_required"
	CodeInvalidSignature Code = "auth_invalid_signature"

	// Forbidden (403)
	CodeForbidden        Code = "forbidden"
	CodeSellerNotPayable Code = "forbidden_seller_not_payable"
	CodeNotOwner         Code = "forbidden_not_owner"

	// Plan limits (403)
	CodeLimitPacks      Code = "limit_pack_quota_exceeded"
	CodeLimitPrice      Code = "limit_price_exceeded"
	CodeLimitFileSize   Code = "limit_file_size_exceeded"
	CodeLimitDiscount   Code = "limit_discount_exceeded"
	CodeLimitFeature    Code = "limit_feature_not_in_plan"
	CodeLimitEditWindow Code = "limit_edit_window_closed"

	// Not found (404)
	CodeNotFound Code = "not_found"

	// Conflict (409)
	CodeConflict Code = "conflict"

	// Reconciliation (422)
	CodeUnresolvableIntent Code = "unresolvable_intent"
	CodeUnderpaid          Code = "unresolvable_underpaid"

	// Upstream (502)
	CodePayment Code = "upstream_payment_failed"

	// Internal (500)
	CodeInternal Code = "internal_error"
)

// HTTPStatus maps a Code to its HTTP status. Unknown codes are 500.
func (c Code) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "forbidden"), strings.HasPrefix(s, "limit_"):
		return http.StatusForbidden
	case strings.HasPrefix(s, "not_found"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict"):
		return http.StatusConflict
	case strings.HasPrefix(s, "unresolvable_"):
		return http.StatusUnprocessableEntity
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the application error type. Message is safe to show to users.
type Error struct {
	Code    Code
	Message string
	Err     error
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy with details merged in.
func (e *Error) WithDetails(details map[string]any) *Error {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &Error{Code: e.Code, Message: e.Message, Err: e.Err, Details: merged}
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Convenience constructors for the taxonomy.

func Validation(message string) *Error { return New(CodeValidation, message) }
func Auth(message string) *Error       { return New(CodeAuth, message) }
func Forbidden(message string) *Error  { return New(CodeForbidden, message) }
func NotFound(message string) *Error   { return New(CodeNotFound, message) }

// Payment wraps an upstream gateway failure. The cause is kept for logs only.
func Payment(err error) *Error {
	return Wrap(CodePayment, "No se pudo crear el pago, intentá de nuevo", err)
}

func UnresolvableIntent(paymentID string, err error) *Error {
	return Wrap(CodeUnresolvableIntent, "payment intent could not be resolved", err).
		WithDetails(map[string]any{"payment_id": paymentID})
}

// Underpaid reports an approved payment below the price of what it buys.
func Underpaid(paymentID string, paid, price int64) *Error {
	return New(CodeUnderpaid, "payment amount is below the price").
		WithDetails(map[string]any{"payment_id": paymentID, "paid": paid, "price": price})
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// StatusOf returns the HTTP status for any error, 500 for foreign errors.
func StatusOf(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
