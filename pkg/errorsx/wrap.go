package errorsx

import (
	"context"
	"errors"
	"fmt"
)

// Error carries a ReasonCode alongside the underlying cause.
type Error struct {
	Code  ReasonCode
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Code)
	}
	return e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Wrap tags err with code. The innermost code wins, so wrapping an
// already tagged error returns it unchanged.
func Wrap(err error, code ReasonCode) error {
	if err == nil {
		return nil
	}
	if _, ok := find(err); ok {
		return err
	}
	return &Error{Code: code, Cause: err}
}

// Newf formats a new error tagged with code.
func Newf(code ReasonCode, format string, args ...any) error {
	return &Error{Code: code, Cause: fmt.Errorf(format, args...)}
}

// Reason returns the code attached to err. Cancellation without a code
// reports ReasonShutdown.
func Reason(err error) ReasonCode {
	if err == nil {
		return ReasonUnknown
	}
	if e, ok := find(err); ok {
		return e.Code
	}
	if errors.Is(err, context.Canceled) {
		return ReasonShutdown
	}
	return ReasonUnknown
}

func HasReason(err error, code ReasonCode) bool {
	return Reason(err) == code
}

// Attrs returns slog key/value pairs for err.
func Attrs(err error) []any {
	return []any{"reason_code", string(Reason(err)), "error", err}
}

func find(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
