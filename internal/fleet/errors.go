package fleet

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of console failure.
type ErrorCode string

const (
	// CodeNetwork is a transport failure talking to the registry. Reads may be retried.
	CodeNetwork ErrorCode = "network"
	// CodeAuth means the registry rejected the bearer token.
	CodeAuth ErrorCode = "auth"
	// CodeInvalidTransition means the action is illegal for the current mission status.
	CodeInvalidTransition ErrorCode = "invalid_transition"
	// CodeCommandInProgress means another command for the same mission has not finished.
	CodeCommandInProgress ErrorCode = "command_in_progress"
	// CodeChannelDisconnected is informational: the event channel gave up reconnecting.
	CodeChannelDisconnected ErrorCode = "channel_disconnected"
	// CodeNotFound means the entity is unknown locally or to the registry.
	CodeNotFound ErrorCode = "not_found"
	// CodeRejected means the registry refused the request for a domain reason.
	CodeRejected ErrorCode = "rejected"
	// CodeGeometryLocked means waypoints or boundary were edited after a mission started.
	CodeGeometryLocked ErrorCode = "geometry_locked"
)

// Error is a coded error carrying optional context for logging.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// With attaches a context value and returns e.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewError builds a coded error.
func NewError(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// Sentinels for errors.Is.
var (
	ErrNetwork             = &Error{Code: CodeNetwork, Message: "network error"}
	ErrAuth                = &Error{Code: CodeAuth, Message: "authentication required"}
	ErrInvalidTransition   = &Error{Code: CodeInvalidTransition, Message: "invalid transition"}
	ErrCommandInProgress   = &Error{Code: CodeCommandInProgress, Message: "command in progress"}
	ErrChannelDisconnected = &Error{Code: CodeChannelDisconnected, Message: "event channel disconnected"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrRejected            = &Error{Code: CodeRejected, Message: "rejected by registry"}
	ErrGeometryLocked      = &Error{Code: CodeGeometryLocked, Message: "mission geometry is locked"}
)

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Retryable reports whether err is a transient transport failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
