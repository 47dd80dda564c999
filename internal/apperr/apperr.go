// Package apperr defines the typed errors returned by the engine layers.
// Only the HTTP layer translates a Kind into a status code.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindUnauthorized      Kind = "Unauthorized"
	KindForbidden         Kind = "Forbidden"
	KindNotFound          Kind = "NotFound"
	KindConflict          Kind = "Conflict"
	KindInactive          Kind = "Inactive"
	KindExpired           Kind = "Expired"
	KindLimitReached      Kind = "LimitReached"
	KindAlreadyRedeemed   Kind = "AlreadyRedeemed"
	KindInsufficientFunds Kind = "InsufficientFunds"
	KindInvalidState      Kind = "InvalidState"
	KindUnexpected        Kind = "Unexpected"
)

// Error carries a stable Kind plus optional context. Field is set for
// validation failures and names the offending input field.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Msg)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so the package-level sentinels
// work with errors.Is regardless of Field or Msg.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInactive          = &Error{Kind: KindInactive}
	ErrExpired           = &Error{Kind: KindExpired}
	ErrLimitReached      = &Error{Kind: KindLimitReached}
	ErrAlreadyRedeemed   = &Error{Kind: KindAlreadyRedeemed}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrUnexpected        = &Error{Kind: KindUnexpected}
	ErrValidation        = &Error{Kind: KindValidation}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg}
}

func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf reports the Kind of err, or KindUnexpected for anything untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// FieldOf returns the offending field of a validation error, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
