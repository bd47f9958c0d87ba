package store

import (
	"errors"
	"fmt"
)

// Status is the nine-value result code every public operation ultimately
// reduces to. The pager reports failures as sentinel errors, which
// translatePagerErr maps onto this same space.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusBusy
	StatusCorrupt
	StatusInvalidArgument
	StatusReadOnly
	StatusNoMemory
	StatusIOError
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusBusy:
		return "busy"
	case StatusCorrupt:
		return "corrupt"
	case StatusInvalidArgument:
		return "invalid_argument"
	case StatusReadOnly:
		return "readonly"
	case StatusNoMemory:
		return "nomem"
	case StatusIOError:
		return "io_error"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Error is the error type every fallible store operation returns, carrying
// a Status a caller can branch on, a human message, and an optional wrapped
// cause.
type Error struct {
	Status  Status
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("snkv: %s: %s: %v", e.Status, e.Message, e.Cause)
	}
	return fmt.Sprintf("snkv: %s: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(status Status, message string, cause error) *Error {
	return &Error{Status: status, Message: message, Cause: cause}
}

// StatusOf extracts the Status carried by err, defaulting to StatusError for
// any non-*Error, non-nil err and StatusOK for nil.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusError
}
