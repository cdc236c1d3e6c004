package binding

import (
	"errors"
	"fmt"
)

// Binding errors
var (
	ErrConfiguration  = errors.New("invalid binding configuration")
	ErrInvalidState   = errors.New("binding is not initialized")
	ErrNotFound       = errors.New("record not found")
	ErrNotImplemented = errors.New("operation not implemented")
	ErrConflict       = errors.New("record already exists")
	ErrValueTooLarge  = errors.New("record exceeds the maximum value size")
)

// BackendError wraps a failure reported by the storage engine.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func backendErr(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Op: op, Err: err}
}

func configErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidState reports whether err comes from an operation issued outside
// the initialized state.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsConfiguration reports whether err comes from bad init parameters.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
