// Panic recovery for the numerical kernels. gonum's mat package panics
// on shape misuse rather than returning errors, so the decomposition and
// Hilbert entry points run behind these guards and report recovered
// panics as structured errors.

package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError is an error converted from a recovered panic. It carries the
// original panic value and the stack at the point of the panic.
type PanicError struct {
	// PanicValue is the original value passed to panic()
	PanicValue interface{}

	// StackTrace contains the stack trace at the time of panic
	StackTrace string

	// Operation identifies where the panic was recovered
	Operation string
}

// Error implements the error interface for PanicError.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// Unwrap returns nil; a PanicError has no underlying error.
func (e *PanicError) Unwrap() error {
	return nil
}

// String includes the captured stack trace.
func (e *PanicError) String() string {
	return fmt.Sprintf("panic in %s: %v\nStack trace:\n%s",
		e.Operation, e.PanicValue, e.StackTrace)
}

// NewPanicError creates a PanicError for the given operation and panic value.
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Operation:  operation,
	}
}

// Recover converts an in-flight panic into an error. Deferred with a
// pointer to the named error return:
//
//	func (d *Decomposer) Decompose(X mat.Matrix) (_ *Result, err error) {
//	    defer errors.Recover(&err, "Decomposer.Decompose")
//	    ...
//	}
//
// When the function has already set an error before panicking, the panic
// wraps it so the original cause stays reachable through Is/As.
func Recover(err *error, operation string) {
	if r := recover(); r != nil {
		panicErr := NewPanicError(operation, r)

		if *err != nil {
			*err = fmt.Errorf("panic in %s: %v (original error: %w)",
				operation, r, *err)
		} else {
			*err = panicErr
		}
	}
}

// SafeExecute runs fn with the Recover guard installed, returning fn's
// error on the normal path and a PanicError when fn panics.
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
