// Package errors carries the storefront's typed error codes. Each code maps to
// an HTTP status, a public message and whether details may reach clients.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"

	CodeCurrencyConflict       Code = "CURRENCY_CONFLICT"
	CodeMixedCurrency          Code = "MIXED_CURRENCY"
	CodeInvalidComposition     Code = "INVALID_CART_COMPOSITION"
	CodeEmptyCart              Code = "EMPTY_CART"
	CodeInsufficientBalance    Code = "INSUFFICIENT_BALANCE"
	CodeOutOfStock             Code = "OUT_OF_STOCK"
	CodeIllegalTransition      Code = "ILLEGAL_TRANSITION"
	CodeCheckoutOutcomeUnknown Code = "CHECKOUT_OUTCOME_UNKNOWN"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	hideDetails = false
	showDetails = true
)

func meta(status int, retryable, details bool, msg string) Metadata {
	return Metadata{HTTPStatus: status, Retryable: retryable, PublicMessage: msg, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:   meta(http.StatusBadRequest, false, showDetails, "validation failed"),
	CodeUnauthorized: meta(http.StatusUnauthorized, false, hideDetails, "authentication required"),
	CodeForbidden:    meta(http.StatusForbidden, false, hideDetails, "access denied"),
	CodeNotFound:     meta(http.StatusNotFound, false, hideDetails, "resource not found"),
	CodeConflict:     meta(http.StatusConflict, false, hideDetails, "conflict detected"),
	CodeIdempotency:  meta(http.StatusConflict, false, showDetails, "idempotency key reused"),
	CodeRateLimit:    meta(http.StatusTooManyRequests, true, hideDetails, "rate limit exceeded"),
	CodeInternal:     meta(http.StatusInternalServerError, true, hideDetails, "internal server error"),
	CodeDependency:   meta(http.StatusServiceUnavailable, true, showDetails, "dependency unavailable"),

	CodeCurrencyConflict:    meta(http.StatusBadRequest, false, showDetails, "item currency conflicts with cart"),
	CodeMixedCurrency:       meta(http.StatusBadRequest, false, showDetails, "cart contains mixed currencies"),
	CodeInvalidComposition:  meta(http.StatusBadRequest, false, showDetails, "cart composition invalid for payment method"),
	CodeEmptyCart:           meta(http.StatusBadRequest, false, hideDetails, "cart is empty"),
	CodeInsufficientBalance: meta(http.StatusBadRequest, false, showDetails, "insufficient dust balance"),
	CodeOutOfStock:          meta(http.StatusConflict, false, showDetails, "insufficient stock"),
	CodeIllegalTransition:   meta(http.StatusConflict, false, showDetails, "illegal status transition"),
	// The order may exist; a blind retry could charge twice.
	CodeCheckoutOutcomeUnknown: meta(http.StatusGatewayTimeout, false, hideDetails, "checkout outcome unknown; check your orders before retrying"),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is immutable once returned; WithDetails hands back a copy.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap keeps err reachable through errors.Is/As. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.details = details
	return &clone
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf reports the code of the outermost *Error, or CodeInternal for
// untyped errors.
func CodeOf(err error) Code {
	return As(err).Code()
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
