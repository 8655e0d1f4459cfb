package settlement

import (
	"errors"
	"fmt"
)

// Kind classifies every rejection the engine returns
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindStateConflict     Kind = "STATE_CONFLICT"
	KindExternalProcessor Kind = "EXTERNAL_PROCESSOR"
	KindNotFound          Kind = "NOT_FOUND"
	KindPermission        Kind = "PERMISSION"
)

// Sentinels for errors.Is; an *Error matches the sentinel of its kind.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrStateConflict     = &Error{Kind: KindStateConflict}
	ErrExternalProcessor = &Error{Kind: KindExternalProcessor}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrPermission        = &Error{Kind: KindPermission}
)

// Error is a rejected settlement operation. Reason is safe to show to the user.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == "" && t.Err == nil && t.Kind == e.Kind
}

func validationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

func conflictError(format string, args ...interface{}) error {
	return &Error{Kind: KindStateConflict, Reason: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf(format, args...)}
}

// PermissionDenied is returned by AuthGate implementations when the actor lacks the required role
func PermissionDenied(reason string) error {
	return &Error{Kind: KindPermission, Reason: reason}
}

func processorError(reason string, err error) error {
	return &Error{Kind: KindExternalProcessor, Reason: reason, Err: err}
}

// KindOf returns the kind of a settlement error, or "" for anything else
func KindOf(err error) Kind {
	var settlementErr *Error
	if errors.As(err, &settlementErr) {
		return settlementErr.Kind
	}
	return ""
}

// ReasonOf returns the user-facing reason of a settlement error
func ReasonOf(err error) string {
	var settlementErr *Error
	if errors.As(err, &settlementErr) {
		return settlementErr.Reason
	}
	return "internal error"
}
