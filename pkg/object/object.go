// Package object provides the dynamic object model the bridge operates on.
// It describes things that expose named properties, callables that observe an
// explicit receiver, and adapters that present native Go values in that shape.
package object

import (
	"errors"
	"fmt"
	"sort"
)

// Object is anything that exposes named properties.
// Reading a property that does not exist is not an error: Get returns (nil, nil).
type Object interface {
	// Has reports whether the property exists on the object.
	Has(name string) bool

	// Get returns the property value, or nil if the property does not exist.
	Get(name string) (any, error)

	// Set assigns the property value.
	Set(name string, value any) error
}

// Func is a callable that observes its receiver explicitly.
// It is the shape of every receiver-sensitive function in the bridge: helpers
// mixed into request and response objects, accessors, and handler-installed methods.
type Func func(this Object, args ...any) (any, error)

// Method is a callable whose receiver is already fixed.
type Method func(args ...any) (any, error)

var (
	// ErrNotCallable is returned by Call when the property is not a Func or Method.
	ErrNotCallable = errors.New("property is not callable")

	// ErrNoSuchProperty is returned when writing a property a fixed-shape object does not have.
	ErrNoSuchProperty = errors.New("no such property")

	// ErrNotWritable is returned when writing a property that cannot be assigned, such as a method.
	ErrNotWritable = errors.New("property is not writable")

	// ErrTypeMismatch is returned when a written value cannot be converted to the property's type.
	ErrTypeMismatch = errors.New("value type does not match property type")

	// ErrReadOnly is returned when writing to a read-only object such as a Prototype.
	ErrReadOnly = errors.New("object is read-only")
)

// PropertyError describes a failed property operation.
type PropertyError struct {
	Op       string // "get", "set" or "call"
	Property string // Property name
	Err      error  // Underlying error
}

// Error implements the error interface.
func (e *PropertyError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Property, e.Err)
}

// Unwrap returns the underlying error.
func (e *PropertyError) Unwrap() error {
	return e.Err
}

// Record is a plain key-value object.
// It is the shape of everything handlers attach: parsed cookies, session data,
// response locals. The zero value is not usable; use NewRecord or a literal.
type Record map[string]any

// NewRecord creates an empty Record.
func NewRecord() Record {
	return make(Record)
}

// Has reports whether the key exists.
func (r Record) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// Get returns the value stored under name, or nil.
func (r Record) Get(name string) (any, error) {
	return r[name], nil
}

// Set stores value under name.
func (r Record) Set(name string, value any) error {
	r[name] = value
	return nil
}

// Delete removes the key.
func (r Record) Delete(name string) {
	delete(r, name)
}

// Keys returns the record's keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the string stored under name, or "" if absent or not a string.
func (r Record) String(name string) string {
	s, _ := r[name].(string)
	return s
}

// Namer is implemented by objects that can enumerate their property names.
type Namer interface {
	Names() []string
}
