package object

import "sort"

type protoKind int

const (
	protoValue protoKind = iota
	protoMethod
	protoGetter
)

type protoProp struct {
	kind  protoKind
	value any
	fn    Func
}

// Prototype is a read-only capability source: a named set of methods, getters
// and plain values that an emulated framework mixes into its objects.
// A Prototype is built once at startup and shared by every request; it is
// never modified after construction.
type Prototype struct {
	name  string
	props map[string]protoProp
}

// NewPrototype creates an empty Prototype.
func NewPrototype(name string) *Prototype {
	return &Prototype{
		name:  name,
		props: make(map[string]protoProp),
	}
}

// Name returns the prototype's name.
func (p *Prototype) Name() string {
	return p.name
}

// Method adds a method. Only call this while building the prototype.
func (p *Prototype) Method(name string, fn Func) *Prototype {
	p.props[name] = protoProp{kind: protoMethod, fn: fn}
	return p
}

// Getter adds a computed property whose value is produced by fn with the
// reading object as receiver. Only call this while building the prototype.
func (p *Prototype) Getter(name string, fn Func) *Prototype {
	p.props[name] = protoProp{kind: protoGetter, fn: fn}
	return p
}

// Value adds a plain value. Only call this while building the prototype.
func (p *Prototype) Value(name string, v any) *Prototype {
	p.props[name] = protoProp{kind: protoValue, value: v}
	return p
}

// Names returns the prototype's property names in sorted order.
func (p *Prototype) Names() []string {
	names := make([]string, 0, len(p.props))
	for name := range p.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the prototype defines name.
func (p *Prototype) Has(name string) bool {
	_, ok := p.props[name]
	return ok
}

// Get returns the raw property: the unbound Func for methods, the value for
// plain values. Getters are evaluated with the prototype itself as receiver.
func (p *Prototype) Get(name string) (any, error) {
	return p.GetWithReceiver(name, p)
}

// GetWithReceiver is like Get but evaluates getters with this as receiver.
func (p *Prototype) GetWithReceiver(name string, this Object) (any, error) {
	prop, ok := p.props[name]
	if !ok {
		return nil, nil
	}
	switch prop.kind {
	case protoMethod:
		return prop.fn, nil
	case protoGetter:
		return prop.fn(this)
	}
	return prop.value, nil
}

// Set always fails; prototypes are read-only once shared.
func (p *Prototype) Set(name string, _ any) error {
	return &PropertyError{Op: "set", Property: name, Err: ErrReadOnly}
}

// ReceiverGetter is implemented by objects whose computed properties depend
// on the receiver they are read through.
type ReceiverGetter interface {
	GetWithReceiver(name string, this Object) (any, error)
}
