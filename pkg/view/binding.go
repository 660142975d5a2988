package view

// BindingPolicy selects the receiver a native helper is bound to when it is
// read through a view.
type BindingPolicy int

const (
	// BindNative binds the helper to the native object. This is the default.
	BindNative BindingPolicy = iota

	// BindView binds the helper to the view. Used for legacy helpers that
	// store per-call state on whatever receiver they are invoked with.
	BindView
)

// String returns the policy name.
func (p BindingPolicy) String() string {
	if p == BindView {
		return "view"
	}
	return "native"
}

// BindingTable maps native helper names to their binding policy.
// Names missing from the table use BindNative.
type BindingTable map[string]BindingPolicy

// DefaultBindings returns the curated table of authentication-session helpers
// that capture their receiver at call time instead of closing over it.
func DefaultBindings() BindingTable {
	return BindingTable{
		"login":             BindView,
		"logIn":             BindView,
		"logout":            BindView,
		"logOut":            BindView,
		"isAuthenticated":   BindView,
		"isUnauthenticated": BindView,
	}
}

// Policy returns the policy for name.
func (t BindingTable) Policy(name string) BindingPolicy {
	return t[name]
}

// With returns a copy of the table with name set to policy.
func (t BindingTable) With(name string, policy BindingPolicy) BindingTable {
	out := make(BindingTable, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	out[name] = policy
	return out
}
