package mutation

import (
	"errors"
	"fmt"
)

// ErrPrecondition matches every PreconditionError.
var ErrPrecondition = errors.New("precondition violated")

// PreconditionError aborts a whole mutation call: the change is not allowed
// for the transaction named by ID.
type PreconditionError struct {
	ID     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: transaction %s: %s", ErrPrecondition, e.ID, e.Reason)
}

func (e *PreconditionError) Unwrap() error {
	return ErrPrecondition
}
