package retrieval

import (
	"errors"
	"fmt"
)

// Sentinel errors for retrieval operations.
var (
	// ErrRetrieval matches every failure reported by a backend.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrNotFound is returned by GetByID for an unknown corpus key.
	ErrNotFound = errors.New("document not found")

	// ErrUnsupported is returned for operations a backend does not serve.
	ErrUnsupported = errors.New("operation not supported")

	// ErrInvalidConfig indicates an unusable backend configuration.
	ErrInvalidConfig = errors.New("invalid retrieval configuration")
)

// Error describes a failed retrieval call.
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports true for ErrRetrieval so callers can test the category without
// knowing the cause.
func (e *Error) Is(target error) bool { return target == ErrRetrieval }

// Wrap annotates err with the backend and operation. It returns nil for a nil
// error and leaves an existing *Error untouched.
func Wrap(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Backend: backend, Op: op, Err: err}
}
