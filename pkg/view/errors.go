package view

import (
	"errors"
	"fmt"
)

var (
	// ErrReadOnlyNativeSurface is matched by every ReadOnlyNativeSurfaceError.
	ErrReadOnlyNativeSurface = errors.New("native surface is read-only")

	// ErrNestedView is returned when a view is asked to wrap another view.
	ErrNestedView = errors.New("a view cannot wrap another view")

	// ErrNoNative is returned when a view is created without a native object.
	ErrNoNative = errors.New("a view requires a native object")

	// ErrNoSetter is returned when assigning an accessor property defined without a setter.
	ErrNoSetter = errors.New("accessor property has no setter")

	// ErrInvalidDescriptor is returned when a descriptor carries both a value and accessors.
	ErrInvalidDescriptor = errors.New("descriptor cannot have both a value and accessors")
)

// ReadOnlyNativeSurfaceError is returned when a handler tries to define a
// property that already exists on the native object.
type ReadOnlyNativeSurfaceError struct {
	Property string // Name of the native property
}

// Error implements the error interface.
func (e *ReadOnlyNativeSurfaceError) Error() string {
	return fmt.Sprintf("cannot redefine native property %q", e.Property)
}

// Is reports whether target is ErrReadOnlyNativeSurface.
func (e *ReadOnlyNativeSurfaceError) Is(target error) bool {
	return target == ErrReadOnlyNativeSurface
}
