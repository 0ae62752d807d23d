package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches on code so callers can test with errors.Is(err, apperrors.ErrNotFound).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

// Sentinels for errors.Is checks. They carry no message.
var (
	ErrValidation      = &AppError{Code: CodeValidation}
	ErrConflict        = &AppError{Code: CodeConflict}
	ErrForbidden       = &AppError{Code: CodeForbidden}
	ErrPaymentRequired = &AppError{Code: CodePaymentRequired}
	ErrNotFound        = &AppError{Code: CodeNotFound}
	ErrInternal        = &AppError{Code: CodeInternal}
)

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func Validation(msg string) error      { return New(CodeValidation, msg) }
func Conflict(msg string) error        { return New(CodeConflict, msg) }
func Forbidden(msg string) error       { return New(CodeForbidden, msg) }
func PaymentRequired(msg string) error { return New(CodePaymentRequired, msg) }
func NotFound(msg string) error        { return New(CodeNotFound, msg) }
func Unauthenticated(msg string) error { return New(CodeUnauthenticated, msg) }
func Unavailable(msg string) error     { return New(CodeUnavailable, msg) }

func Internal(msg string, cause error) error {
	return Wrap(CodeInternal, msg, cause)
}

// CodeOf returns the code of the first AppError in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// PublicMessage is the text safe to show a client. Causes are never included.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "internal server error"
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodePaymentRequired:
		return http.StatusPaymentRequired
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
