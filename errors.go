package modgraph

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// Setup errors
	ErrLoggerNotSet      = errors.New("logger not set")
	ErrNilDescriptor     = errors.New("descriptor is nil")
	ErrInvalidDescriptor = errors.New("invalid descriptor")
	ErrDuplicateModule   = errors.New("module name already registered")
	ErrAlreadyBuilt      = errors.New("application already built")
	ErrNotBuilt          = errors.New("application not built")

	// Lifecycle errors
	ErrIllegalTransition = errors.New("illegal lifecycle transition")
	ErrHookTimeout       = errors.New("lifecycle hook timed out")
	ErrHookPanic         = errors.New("lifecycle hook panicked")
	ErrNodeNotFound      = errors.New("node not found")
)

// IllegalTransitionError reports a lifecycle operation invoked in a state
// that does not allow it. It matches ErrIllegalTransition.
type IllegalTransitionError struct {
	Path  string
	Op    string
	State State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s %s in state %s", ErrIllegalTransition, e.Op, e.Path, e.State)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}
