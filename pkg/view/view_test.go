package view

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Suhaibinator/SBridge/pkg/object"
)

type fakeNative struct {
	URL    string
	Method string
	Status int
}

func (f *fakeNative) Describe() string {
	return f.Method + " " + f.URL
}

func newFake(t *testing.T) (*fakeNative, object.Object) {
	t.Helper()
	f := &fakeNative{URL: "/", Method: "GET"}
	o, err := object.Reflect(f)
	if err != nil {
		t.Fatalf("Failed to reflect native: %v", err)
	}
	return f, o
}

func testPrototype() *object.Prototype {
	return object.NewPrototype("test").
		Method("whoami", func(this object.Object, _ ...any) (any, error) { return this, nil }).
		Getter("self", func(this object.Object, _ ...any) (any, error) { return this, nil }).
		Value("url", "from-prototype").
		Value("kind", "prototype")
}

func newView(t *testing.T, native object.Object, opts ...Option) *View {
	t.Helper()
	v, err := New(native, NewOverlay(), testPrototype(), opts...)
	if err != nil {
		t.Fatalf("Failed to create view: %v", err)
	}
	return v
}

// TestNewValidation tests view construction errors
func TestNewValidation(t *testing.T) {
	if _, err := New(nil, nil, nil); !errors.Is(err, ErrNoNative) {
		t.Errorf("Expected ErrNoNative, got %v", err)
	}

	_, native := newFake(t)
	v, err := New(native, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create view with defaults: %v", err)
	}
	if v.Overlay() == nil || v.Prototype() == nil {
		t.Errorf("Expected default overlay and prototype")
	}
	if v.Native() != native {
		t.Errorf("Expected Native to return the wrapped object")
	}

	if _, err := New(v, nil, nil); !errors.Is(err, ErrNestedView) {
		t.Errorf("Expected ErrNestedView, got %v", err)
	}
}

// TestResolutionOrder tests that reads see the overlay, then the native, then the prototype
func TestResolutionOrder(t *testing.T) {
	_, native := newFake(t)
	v := newView(t, native)

	cases := []struct {
		name  string
		tier  Tier
		value any
	}{
		{"url", TierNative, "/"},
		{"kind", TierPrototype, "prototype"},
		{"missing", TierNone, nil},
	}
	for _, c := range cases {
		r, err := v.Resolve(c.name)
		if err != nil {
			t.Fatalf("Failed to resolve %s: %v", c.name, err)
		}
		if r.Tier != c.tier || r.Value != c.value {
			t.Errorf("Expected %s to resolve to %v from %s, got %v from %s", c.name, c.value, c.tier, r.Value, r.Tier)
		}
	}

	// The overlay shadows both other tiers
	_ = v.Overlay().Set("kind", "overlay")
	if got, _ := v.Get("kind"); got != "overlay" {
		t.Errorf("Expected overlay value, got %v", got)
	}
	_ = v.Overlay().Set("url", "/shadowed")
	r, _ := v.Resolve("url")
	if r.Tier != TierOverlay || r.Value != "/shadowed" {
		t.Errorf("Expected overlay to shadow native, got %v from %s", r.Value, r.Tier)
	}

	if !v.Has("kind") || !v.Has("describe") || v.Has("missing") {
		t.Errorf("Unexpected Has results")
	}
	if TierNone.String() != "none" || TierPrototype.String() != "prototype" {
		t.Errorf("Unexpected tier names")
	}
}

// TestSetWritesThroughToNative tests that owned names go to the native and new names to the overlay
func TestSetWritesThroughToNative(t *testing.T) {
	f, native := newFake(t)
	v := newView(t, native)

	if err := v.Set("status", 404); err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}
	if f.Status != 404 {
		t.Errorf("Expected native Status to be 404, got %d", f.Status)
	}
	if v.Overlay().Has("status") {
		t.Errorf("Expected status not to be copied into the overlay")
	}

	if err := v.Set("session", object.Record{"a": 1}); err != nil {
		t.Fatalf("Failed to set session: %v", err)
	}
	if native.Has("session") {
		t.Errorf("Expected native not to gain a session property")
	}
	if got, _ := v.Overlay().Get("session"); !reflect.DeepEqual(got, object.Record{"a": 1}) {
		t.Errorf("Expected session in the overlay, got %v", got)
	}

	// A prototype-only name is shadowed in the overlay, never written to the prototype
	if err := v.Set("kind", "mine"); err != nil {
		t.Fatalf("Failed to set kind: %v", err)
	}
	if got, _ := v.Overlay().Get("kind"); got != "mine" {
		t.Errorf("Expected kind in the overlay, got %v", got)
	}

	// Native errors come back unchanged
	if err := v.Set("status", "not a number"); !errors.Is(err, object.ErrTypeMismatch) {
		t.Errorf("Expected ErrTypeMismatch from the native, got %v", err)
	}
}

// TestPrototypeReceiverIsView tests that prototype methods and getters observe the view
func TestPrototypeReceiverIsView(t *testing.T) {
	_, native := newFake(t)
	v := newView(t, native)

	self, err := v.Get("self")
	if err != nil {
		t.Fatalf("Failed to read getter: %v", err)
	}
	if self != v {
		t.Errorf("Expected getter receiver to be the view, got %T", self)
	}

	got, err := v.Call("whoami")
	if err != nil {
		t.Fatalf("Failed to call whoami: %v", err)
	}
	if got != v {
		t.Errorf("Expected method receiver to be the view, got %T", got)
	}

	// Detached from the view, the method keeps its receiver
	m, _ := v.Get("whoami")
	if got, _ := m.(object.Method)(); got != v {
		t.Errorf("Expected detached method to keep the view receiver, got %T", got)
	}
}

// TestNativeHelperBinding tests the binding table for helpers patched onto the native type
func TestNativeHelperBinding(t *testing.T) {
	receiver := func(this object.Object, _ ...any) (any, error) { return this, nil }
	object.PatchType((*fakeNative)(nil), "logIn", receiver)
	object.PatchType((*fakeNative)(nil), "helper", receiver)
	defer object.UnpatchType((*fakeNative)(nil), "logIn")
	defer object.UnpatchType((*fakeNative)(nil), "helper")

	_, native := newFake(t)
	v := newView(t, native)

	if got, _ := v.Call("helper"); got != native {
		t.Errorf("Expected helper to be bound to the native, got %T", got)
	}
	if got, _ := v.Call("logIn"); got != v {
		t.Errorf("Expected logIn to be bound to the view, got %T", got)
	}

	// Overriding the table
	v = newView(t, native, WithBindings(DefaultBindings().With("logIn", BindNative).With("helper", BindView)))
	if got, _ := v.Call("helper"); got != v {
		t.Errorf("Expected helper to be bound to the view, got %T", got)
	}
	if got, _ := v.Call("logIn"); got != native {
		t.Errorf("Expected logIn to be bound to the native, got %T", got)
	}

	// Native methods already carry their receiver
	if got, _ := v.Call("describe"); got != "GET /" {
		t.Errorf("Expected %q, got %v", "GET /", got)
	}
}

// TestDefine tests descriptor-based definitions
func TestDefine(t *testing.T) {
	_, native := newFake(t)
	v := newView(t, native)

	// A Func value is bound to the view
	err := v.Define("flash", Descriptor{Value: object.Func(func(this object.Object, _ ...any) (any, error) {
		return this, nil
	})})
	if err != nil {
		t.Fatalf("Failed to define flash: %v", err)
	}
	if got, _ := v.Call("flash"); got != v {
		t.Errorf("Expected defined method to be bound to the view, got %T", got)
	}

	if err := v.Define("both", Descriptor{Value: 1, Get: func(object.Object, ...any) (any, error) { return nil, nil }}); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("Expected ErrInvalidDescriptor, got %v", err)
	}
	if v.Err() != nil {
		t.Errorf("Expected an invalid descriptor not to be recorded, got %v", v.Err())
	}
	select {
	case <-v.Violated():
		t.Errorf("Expected no violation signal yet")
	default:
	}

	// Redefining a native property is refused and recorded
	err = v.Define("url", Descriptor{Value: "/x"})
	if !errors.Is(err, ErrReadOnlyNativeSurface) {
		t.Fatalf("Expected ErrReadOnlyNativeSurface, got %v", err)
	}
	var surfaceErr *ReadOnlyNativeSurfaceError
	if !errors.As(err, &surfaceErr) || surfaceErr.Property != "url" {
		t.Errorf("Expected the error to name url, got %v", err)
	}
	if !errors.Is(v.Err(), ErrReadOnlyNativeSurface) {
		t.Errorf("Expected the violation to be recorded, got %v", v.Err())
	}
	select {
	case <-v.Violated():
	default:
		t.Errorf("Expected the violation to be signalled")
	}
	if got, _ := v.Get("url"); got != "/" {
		t.Errorf("Expected native url to be untouched, got %v", got)
	}

	// Only the first violation is kept
	_ = v.Define("method", Descriptor{Value: "POST"})
	if !errors.As(v.Err(), &surfaceErr) || surfaceErr.Property != "url" {
		t.Errorf("Expected the first violation to be kept, got %v", v.Err())
	}
}

// TestAccessorRoundTrip tests that a defined getter/setter pair sees the view
func TestAccessorRoundTrip(t *testing.T) {
	_, native := newFake(t)
	v := newView(t, native)

	err := v.Define("user", Descriptor{
		Get: func(this object.Object, _ ...any) (any, error) {
			return this.Get("_user")
		},
		Set: func(this object.Object, args ...any) (any, error) {
			return nil, this.Set("_user", args[0])
		},
	})
	if err != nil {
		t.Fatalf("Failed to define accessor: %v", err)
	}

	if err := v.Set("user", "alice"); err != nil {
		t.Fatalf("Failed to assign accessor: %v", err)
	}
	if got, _ := v.Get("user"); got != "alice" {
		t.Errorf("Expected %q, got %v", "alice", got)
	}
	if got, _ := v.Overlay().Get("_user"); got != "alice" {
		t.Errorf("Expected the setter to write through the view into the overlay, got %v", got)
	}

	snapshot, err := v.Overlay().Snapshot()
	if err != nil {
		t.Fatalf("Failed to snapshot: %v", err)
	}
	if snapshot["user"] != "alice" {
		t.Errorf("Expected snapshot to evaluate the getter, got %v", snapshot["user"])
	}

	_ = v.Define("readonly", Descriptor{Get: func(object.Object, ...any) (any, error) { return 1, nil }})
	if err := v.Set("readonly", 2); !errors.Is(err, ErrNoSetter) {
		t.Errorf("Expected ErrNoSetter, got %v", err)
	}
}

// TestOverlay tests the overlay store directly
func TestOverlay(t *testing.T) {
	o := NewOverlay()
	_ = o.Set("b", 2)
	_ = o.Set("a", 1)

	if o.Len() != 2 {
		t.Errorf("Expected 2 properties, got %d", o.Len())
	}
	if !reflect.DeepEqual(o.Keys(), []string{"a", "b"}) || !reflect.DeepEqual(o.Names(), o.Keys()) {
		t.Errorf("Expected sorted keys, got %v", o.Keys())
	}
	o.Delete("a")
	if o.Has("a") {
		t.Errorf("Expected a to be deleted")
	}
	if v, err := o.Get("a"); v != nil || err != nil {
		t.Errorf("Expected (nil, nil) for a missing key, got (%v, %v)", v, err)
	}
}

// TestBindingTable tests policy lookups
func TestBindingTable(t *testing.T) {
	table := DefaultBindings()
	for _, name := range []string{"login", "logIn", "logout", "logOut", "isAuthenticated", "isUnauthenticated"} {
		if table.Policy(name) != BindView {
			t.Errorf("Expected %s to bind to the view", name)
		}
	}
	if table.Policy("end") != BindNative {
		t.Errorf("Expected unlisted names to bind to the native")
	}

	other := table.With("end", BindView)
	if table.Policy("end") != BindNative {
		t.Errorf("Expected With to leave the original table unchanged")
	}
	if other.Policy("end") != BindView || other.Policy("end").String() != "view" {
		t.Errorf("Expected end to bind to the view in the copy")
	}
}
