// Package view implements the delegating view that handlers see in place of a
// native request or response.
//
// A View layers three sources. Reads resolve, in order, against the per-run
// Overlay, the native object, and the capability prototype. Writes go to the
// native object when it already owns the property and to the overlay
// otherwise, so anything a handler attaches stays out of the native object.
//
// Callables are bound as they are read. Native helpers are bound to the native
// object (except names listed as BindView in the BindingTable), prototype
// helpers and getters are bound to the view, and overlay values are returned
// as stored; object.Call on a view passes the view as receiver to those.
package view

import (
	"sync"

	"github.com/Suhaibinator/SBridge/pkg/object"
)

// Tier identifies where a property was resolved.
type Tier int

const (
	// TierNone means the property exists in no tier.
	TierNone Tier = iota
	// TierOverlay means the property came from the overlay.
	TierOverlay
	// TierNative means the property came from the native object.
	TierNative
	// TierPrototype means the property came from the capability prototype.
	TierPrototype
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierOverlay:
		return "overlay"
	case TierNative:
		return "native"
	case TierPrototype:
		return "prototype"
	}
	return "none"
}

// Resolution is the result of resolving a property name.
type Resolution struct {
	Tier  Tier // Tier the value came from
	Value any  // Resolved value, already bound where binding applies
}

// View is the delegating wrapper over a native object.
type View struct {
	native   object.Object
	overlay  *Overlay
	proto    object.Object
	bindings BindingTable

	mu        sync.Mutex
	violation error
	violated  chan struct{}
}

// Option configures a View.
type Option func(*View)

// WithBindings sets the binding table for native helpers.
func WithBindings(table BindingTable) Option {
	return func(v *View) {
		v.bindings = table
	}
}

// New creates a view over native. A nil overlay is replaced by a fresh one and
// a nil prototype by an empty one.
func New(native object.Object, overlay *Overlay, proto object.Object, opts ...Option) (*View, error) {
	if native == nil {
		return nil, ErrNoNative
	}
	if _, nested := native.(*View); nested {
		return nil, ErrNestedView
	}
	if overlay == nil {
		overlay = NewOverlay()
	}
	if proto == nil {
		proto = object.NewPrototype("empty")
	}

	v := &View{
		native:   native,
		overlay:  overlay,
		proto:    proto,
		bindings: DefaultBindings(),
		violated: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Resolve looks name up across the three tiers and binds callables.
// A name found in no tier resolves to TierNone with a nil value.
func (v *View) Resolve(name string) (Resolution, error) {
	if v.overlay.Has(name) {
		val, err := v.overlay.Get(name)
		return Resolution{Tier: TierOverlay, Value: val}, err
	}

	if v.native.Has(name) {
		val, err := v.native.Get(name)
		if err != nil {
			return Resolution{Tier: TierNative}, err
		}
		if fn, ok := val.(object.Func); ok {
			var recv object.Object = v.native
			if v.bindings.Policy(name) == BindView {
				recv = v
			}
			val = object.Bind(fn, recv)
		}
		return Resolution{Tier: TierNative, Value: val}, nil
	}

	if v.proto.Has(name) {
		var (
			val any
			err error
		)
		if rg, ok := v.proto.(object.ReceiverGetter); ok {
			val, err = rg.GetWithReceiver(name, v)
		} else {
			val, err = v.proto.Get(name)
		}
		if err != nil {
			return Resolution{Tier: TierPrototype}, err
		}
		return Resolution{Tier: TierPrototype, Value: object.BindValue(val, v)}, nil
	}

	return Resolution{Tier: TierNone}, nil
}

// Has reports whether name resolves in any tier.
func (v *View) Has(name string) bool {
	return v.overlay.Has(name) || v.native.Has(name) || v.proto.Has(name)
}

// Get returns the resolved value of name, or nil if no tier has it.
func (v *View) Get(name string) (any, error) {
	r, err := v.Resolve(name)
	return r.Value, err
}

// Set writes through to the native object when it owns name and into the
// overlay otherwise. Errors from the native object are returned unchanged.
func (v *View) Set(name string, value any) error {
	if v.native.Has(name) {
		return v.native.Set(name, value)
	}
	return v.overlay.Set(name, value)
}

// Define installs a property in the overlay. Accessors and Func values are
// bound to the view. Defining a name the native object owns fails with a
// ReadOnlyNativeSurfaceError, which is also recorded on the view so that the
// run aborts even if the caller drops the error.
func (v *View) Define(name string, d Descriptor) error {
	if v.native.Has(name) {
		err := &ReadOnlyNativeSurfaceError{Property: name}
		v.record(err)
		return err
	}
	if d.accessor() && d.Value != nil {
		return &object.PropertyError{Op: "define", Property: name, Err: ErrInvalidDescriptor}
	}

	v.overlay.define(name, property{
		value:    object.BindValue(d.Value, v),
		get:      object.Bind(d.Get, v),
		set:      object.Bind(d.Set, v),
		accessor: d.accessor(),
	})
	return nil
}

// Call performs a member call of name with the view as receiver.
func (v *View) Call(name string, args ...any) (any, error) {
	return object.Call(v, name, args...)
}

// Err returns the first contract violation recorded on the view, if any.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.violation
}

// Native returns the wrapped native object.
func (v *View) Native() object.Object {
	return v.native
}

// Overlay returns the view's overlay.
func (v *View) Overlay() *Overlay {
	return v.overlay
}

// Prototype returns the capability prototype.
func (v *View) Prototype() object.Object {
	return v.proto
}

// Violated returns a channel that is closed when the view records its first
// violation.
func (v *View) Violated() <-chan struct{} {
	return v.violated
}

func (v *View) record(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.violation == nil {
		v.violation = err
		if v.violated != nil {
			close(v.violated)
		}
	}
}
