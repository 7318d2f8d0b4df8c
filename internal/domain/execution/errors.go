package execution

import (
	"errors"
	"fmt"
)

var (
	// ErrExhaustedRetries is returned when every attempt ran but none produced
	// a valid result.
	ErrExhaustedRetries = errors.New("max retries exceeded without successful execution")

	// ErrInvalidMaxRetries is returned before any attempt when the attempt
	// ceiling is not positive.
	ErrInvalidMaxRetries = errors.New("max retries must be positive")
)

// PanicError carries a panic recovered from an operation.
type PanicError struct {
	TaskID string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.TaskID, e.Value)
}
