package view

import (
	"sort"
	"sync"

	"github.com/Suhaibinator/SBridge/pkg/object"
)

// Descriptor describes a property installed with View.Define.
// Either Value or the accessor pair may be set, not both.
type Descriptor struct {
	Value any         // Plain value; a Func value is bound to the view
	Get   object.Func // Getter, invoked with the view as receiver
	Set   object.Func // Setter, invoked with the view as receiver and the assigned value
}

func (d Descriptor) accessor() bool {
	return d.Get != nil || d.Set != nil
}

type property struct {
	value    any
	get      object.Method
	set      object.Method
	accessor bool
}

// Overlay is the per-run store of everything handlers attach to a view that
// the native object does not already have. It is created empty for each run
// and handed back to the caller when the run completes.
// Overlay is safe for concurrent use.
type Overlay struct {
	mu    sync.RWMutex
	props map[string]property
}

// NewOverlay creates an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{props: make(map[string]property)}
}

// Has reports whether the overlay holds name.
func (o *Overlay) Has(name string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.props[name]
	return ok
}

// Get returns the value stored under name. Accessor properties are evaluated
// through their getter; an accessor without a getter reads as nil.
func (o *Overlay) Get(name string) (any, error) {
	o.mu.RLock()
	p, ok := o.props[name]
	o.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !p.accessor {
		return p.value, nil
	}
	if p.get == nil {
		return nil, nil
	}
	// The getter may read the overlay again, so it runs without the lock.
	return p.get()
}

// Set stores value under name, or runs the setter of an accessor property.
func (o *Overlay) Set(name string, value any) error {
	o.mu.Lock()
	p, ok := o.props[name]
	if !ok || !p.accessor {
		o.props[name] = property{value: value}
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	if p.set == nil {
		return &object.PropertyError{Op: "set", Property: name, Err: ErrNoSetter}
	}
	_, err := p.set(value)
	return err
}

// Delete removes name from the overlay.
func (o *Overlay) Delete(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.props, name)
}

// Keys returns the names held by the overlay in sorted order.
func (o *Overlay) Keys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	keys := make([]string, 0, len(o.props))
	for k := range o.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Names is an alias for Keys so that an Overlay satisfies object.Namer.
func (o *Overlay) Names() []string {
	return o.Keys()
}

// Len returns the number of properties held by the overlay.
func (o *Overlay) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.props)
}

// Snapshot returns the overlay's contents as a plain map, evaluating getters.
func (o *Overlay) Snapshot() (map[string]any, error) {
	out := make(map[string]any)
	for _, k := range o.Keys() {
		v, err := o.Get(k)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (o *Overlay) define(name string, p property) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.props[name] = p
}
