package binding

import (
	"errors"
	"fmt"
)

// Status is the outcome code reported to the harness for every operation.
// The numeric values are part of the contract and must not be reordered.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusNotImplemented
	StatusError
	StatusConflict
)

// Statuses lists every status in declaration order.
var Statuses = []Status{StatusOK, StatusNotFound, StatusNotImplemented, StatusError, StatusConflict}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusNotImplemented:
		return "NOT_IMPLEMENTED"
	case StatusError:
		return "ERROR"
	case StatusConflict:
		return "CONFLICT"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StatusOf resolves the error returned by a binding operation to a status.
// Lifecycle violations and backend failures both resolve to StatusError;
// use errors.Is to tell them apart.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ErrNotImplemented):
		return StatusNotImplemented
	case errors.Is(err, ErrConflict):
		return StatusConflict
	default:
		return StatusError
	}
}
