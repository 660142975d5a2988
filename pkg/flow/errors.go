package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyHandlerList is returned by Compose when it is given no handlers.
	ErrEmptyHandlerList = errors.New("compose requires at least one handler")

	// ErrNilHandler is the cause reported for a nil entry in a handler list.
	ErrNilHandler = errors.New("handler is nil")

	// ErrStepTimeout is the cause reported when a handler does not signal
	// completion within Config.StepTimeout.
	ErrStepTimeout = errors.New("handler did not signal completion in time")

	// ErrNoNativePair is returned when a run is started without a native request or response.
	ErrNoNativePair = errors.New("run requires a native request and response")
)

// HandlerError reports the handler that stopped a run.
// It is the only error a caller may sensibly retry, by starting a new run.
type HandlerError struct {
	Index int    // Zero-based position of the handler in the list
	Name  string // Handler name derived from its function symbol
	Cause error  // Error the handler signalled, its panic, or the contract violation it caused
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler index [%d] (%s) failed: %v", e.Index, e.Name, e.Cause)
}

// Unwrap returns the cause.
func (e *HandlerError) Unwrap() error {
	return e.Cause
}

// PanicError wraps a value a handler panicked with before signalling completion.
type PanicError struct {
	Value any    // Value passed to panic
	Stack []byte // Stack trace captured at recovery
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
