package object

// Bind returns a Method that always invokes fn with this as its receiver,
// regardless of how or where the returned Method is later called.
func Bind(fn Func, this Object) Method {
	if fn == nil {
		return nil
	}
	return func(args ...any) (any, error) {
		return fn(this, args...)
	}
}

// BindValue binds v to this when v is a Func and returns every other value unchanged.
// Method values keep the receiver they were created with.
func BindValue(v any, this Object) any {
	if fn, ok := v.(Func); ok {
		return Bind(fn, this)
	}
	return v
}

// IsCallable reports whether v is a Func or a Method.
func IsCallable(v any) bool {
	switch v.(type) {
	case Func, Method:
		return true
	}
	return false
}

// Call performs a member call of the property name on o.
// A Method is invoked as-is, a Func receives o as its receiver.
func Call(o Object, name string, args ...any) (any, error) {
	v, err := o.Get(name)
	if err != nil {
		return nil, err
	}
	switch fn := v.(type) {
	case Method:
		return fn(args...)
	case Func:
		return fn(o, args...)
	}
	return nil, &PropertyError{Op: "call", Property: name, Err: ErrNotCallable}
}
