package object

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// WriteGuard is implemented by native values that can refuse property writes,
// for example a response whose underlying connection has been destroyed.
// Every write made through Reflect runs inside GuardWrite, which either calls
// write or returns the reason for refusing it.
type WriteGuard interface {
	GuardWrite(name string, write func() error) error
}

// ReadGuard is implemented by native values whose fields other goroutines
// write. Every field read made through Reflect runs inside GuardRead.
type ReadGuard interface {
	GuardRead(name string, read func())
}

var (
	funcType   = reflect.TypeOf(Func(nil))
	methodType = reflect.TypeOf(Method(nil))
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
	bytesType  = reflect.TypeOf([]byte(nil))

	writeGuardType = reflect.TypeOf((*WriteGuard)(nil)).Elem()
	readGuardType  = reflect.TypeOf((*ReadGuard)(nil)).Elem()
)

// typeInfo caches the property layout of a pointer-to-struct type.
type typeInfo struct {
	fields  map[string][]int
	methods map[string]string
}

var typeCache sync.Map // map[reflect.Type]*typeInfo

// reflected presents a pointer to a Go struct as an Object.
type reflected struct {
	v    reflect.Value
	info *typeInfo
}

// Reflect presents a pointer to a struct as an Object.
// Exported fields and methods are exposed under lowerCamel names (StatusCode
// becomes statusCode, URL becomes url); a `bridge:"name"` field tag overrides
// the name and `bridge:"-"` hides the field. Methods are returned as Method
// values bound to v. Fields of type Func are returned unbound.
func Reflect(v any) (Object, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("object: Reflect requires a non-nil pointer to a struct, got %T", v)
	}
	return &reflected{v: rv, info: infoFor(rv.Type())}, nil
}

// From returns v itself when it already implements Object and Reflect(v) otherwise.
func From(v any) (Object, error) {
	if o, ok := v.(Object); ok {
		return o, nil
	}
	return Reflect(v)
}

// Unwrap returns the Go value behind an Object created by Reflect.
// For any other Object it returns the Object itself.
func Unwrap(o Object) any {
	if r, ok := o.(*reflected); ok {
		return r.v.Interface()
	}
	return o
}

func infoFor(t reflect.Type) *typeInfo {
	if info, ok := typeCache.Load(t); ok {
		return info.(*typeInfo)
	}

	info := &typeInfo{
		fields:  make(map[string][]int),
		methods: make(map[string]string),
	}
	for _, f := range reflect.VisibleFields(t.Elem()) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name := PropertyName(f.Name)
		if tag := f.Tag.Get("bridge"); tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}
		info.fields[name] = f.Index
	}
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !m.IsExported() || guardMethod(t, m.Name) {
			continue
		}
		name := PropertyName(m.Name)
		if _, taken := info.fields[name]; taken {
			continue
		}
		info.methods[name] = m.Name
	}

	actual, _ := typeCache.LoadOrStore(t, info)
	return actual.(*typeInfo)
}

// guardMethod reports whether name is t's WriteGuard or ReadGuard hook.
// Hooks are plumbing, not properties.
func guardMethod(t reflect.Type, name string) bool {
	switch name {
	case "GuardWrite":
		return t.Implements(writeGuardType)
	case "GuardRead":
		return t.Implements(readGuardType)
	}
	return false
}

// PropertyName converts an exported Go identifier to its lowerCamel property name.
func PropertyName(goName string) string {
	runes := []rune(goName)
	upper := 0
	for upper < len(runes) && unicode.IsUpper(runes[upper]) {
		upper++
	}
	switch {
	case upper == 0:
		return goName
	case upper == len(runes):
		return strings.ToLower(goName)
	case upper > 1:
		// An initialism followed by a word: HTTPMethod -> httpMethod.
		upper--
	}
	for i := 0; i < upper; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// Has reports whether the struct has the field, method or patched helper.
func (r *reflected) Has(name string) bool {
	if _, ok := r.info.fields[name]; ok {
		return true
	}
	if _, ok := r.info.methods[name]; ok {
		return true
	}
	_, ok := lookupPatch(r.v.Type(), name)
	return ok
}

// Get returns the field value, a bound Method, or a patched Func.
func (r *reflected) Get(name string) (any, error) {
	if idx, ok := r.info.fields[name]; ok {
		var v any
		read := func() {
			fv, err := r.v.Elem().FieldByIndexErr(idx)
			if err != nil {
				// Promoted through a nil embedded pointer.
				return
			}
			v = fieldValue(fv, name)
		}
		if g, ok := r.v.Interface().(ReadGuard); ok {
			g.GuardRead(name, read)
		} else {
			read()
		}
		return v, nil
	}
	if goName, ok := r.info.methods[name]; ok {
		return wrapFunc(r.v.MethodByName(goName), name), nil
	}
	if fn, ok := lookupPatch(r.v.Type(), name); ok {
		return fn, nil
	}
	return nil, nil
}

// Set assigns a field, converting numeric values where needed.
func (r *reflected) Set(name string, value any) error {
	write := func() error {
		idx, ok := r.info.fields[name]
		if !ok {
			if r.Has(name) {
				return ErrNotWritable
			}
			return ErrNoSuchProperty
		}
		fv, err := r.v.Elem().FieldByIndexErr(idx)
		if err != nil {
			return err
		}
		return assign(fv, value)
	}

	var err error
	if g, ok := r.v.Interface().(WriteGuard); ok {
		err = g.GuardWrite(name, write)
	} else {
		err = write()
	}
	if err != nil {
		return &PropertyError{Op: "set", Property: name, Err: err}
	}
	return nil
}

// Names returns every property name in sorted order.
func (r *reflected) Names() []string {
	names := make([]string, 0, len(r.info.fields)+len(r.info.methods))
	for name := range r.info.fields {
		names = append(names, name)
	}
	for name := range r.info.methods {
		names = append(names, name)
	}
	names = append(names, patchNames(r.v.Type())...)
	sort.Strings(names)
	return names
}

func fieldValue(fv reflect.Value, name string) any {
	if fv.Kind() != reflect.Func {
		return fv.Interface()
	}
	if fv.IsNil() {
		return nil
	}
	switch fv.Type() {
	case funcType:
		return fv.Interface().(Func)
	case methodType:
		return fv.Interface().(Method)
	}
	return wrapFunc(fv, name)
}

func assign(dst reflect.Value, value any) error {
	v, err := convert(value, dst.Type())
	if err != nil {
		return err
	}
	dst.Set(v)
	return nil
}

func convert(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		switch t.Kind() {
		case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: nil to %s", ErrTypeMismatch, t)
	}
	sv := reflect.ValueOf(value)
	st := sv.Type()
	switch {
	case st.AssignableTo(t):
		return sv, nil
	case isNumeric(st.Kind()) && isNumeric(t.Kind()):
		return convertNumeric(sv, t)
	case st.Kind() == t.Kind() && st.ConvertibleTo(t):
		return sv.Convert(t), nil
	case st.Kind() == reflect.String && t == bytesType:
		return sv.Convert(t), nil
	case st == bytesType && t.Kind() == reflect.String:
		return sv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %s to %s", ErrTypeMismatch, st, t)
}

// convertNumeric converts between numeric kinds and refuses conversions that
// would truncate a fraction or leave the target's range.
func convertNumeric(sv reflect.Value, t reflect.Type) (reflect.Value, error) {
	target := reflect.Zero(t)
	fits := true
	switch {
	case isSigned(t.Kind()):
		switch {
		case isSigned(sv.Kind()):
			fits = !target.OverflowInt(sv.Int())
		case isUnsigned(sv.Kind()):
			fits = sv.Uint() <= math.MaxInt64 && !target.OverflowInt(int64(sv.Uint()))
		default:
			f := sv.Float()
			fits = f == math.Trunc(f) && f >= -(1<<63) && f < 1<<63 && !target.OverflowInt(int64(f))
		}
	case isUnsigned(t.Kind()):
		switch {
		case isSigned(sv.Kind()):
			fits = sv.Int() >= 0 && !target.OverflowUint(uint64(sv.Int()))
		case isUnsigned(sv.Kind()):
			fits = !target.OverflowUint(sv.Uint())
		default:
			f := sv.Float()
			fits = f == math.Trunc(f) && f >= 0 && f < 1<<64 && !target.OverflowUint(uint64(f))
		}
	case t.Kind() == reflect.Float32 && sv.Kind() == reflect.Float64:
		fits = !target.OverflowFloat(sv.Float())
	}
	if !fits {
		return reflect.Value{}, fmt.Errorf("%w: %v does not fit %s", ErrTypeMismatch, sv.Interface(), t)
	}
	return sv.Convert(t), nil
}

func isSigned(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// wrapFunc adapts an arbitrary Go func value to a Method.
// Missing arguments are passed as zero values and surplus arguments are ignored,
// matching how loosely typed middleware calls helpers.
func wrapFunc(fn reflect.Value, name string) Method {
	t := fn.Type()
	return func(args ...any) (any, error) {
		in, err := buildArgs(t, args)
		if err != nil {
			return nil, &PropertyError{Op: "call", Property: name, Err: err}
		}
		return splitResults(t, fn.Call(in))
	}
}

func buildArgs(t reflect.Type, args []any) ([]reflect.Value, error) {
	fixed := t.NumIn()
	if t.IsVariadic() {
		fixed--
	}

	in := make([]reflect.Value, 0, len(args))
	for i := 0; i < fixed; i++ {
		if i >= len(args) {
			in = append(in, reflect.Zero(t.In(i)))
			continue
		}
		v, err := convert(args[i], t.In(i))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, v)
	}
	if t.IsVariadic() {
		elem := t.In(fixed).Elem()
		for i := fixed; i < len(args); i++ {
			v, err := convert(args[i], elem)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			in = append(in, v)
		}
	}
	return in, nil
}

func splitResults(t reflect.Type, out []reflect.Value) (any, error) {
	var err error
	if n := len(out); n > 0 && t.Out(n-1) == errorType {
		if !out[n-1].IsNil() {
			err = out[n-1].Interface().(error)
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return nil, err
	case 1:
		return out[0].Interface(), err
	}
	values := make([]any, len(out))
	for i, v := range out {
		values[i] = v.Interface()
	}
	return values, err
}

// patches holds helpers registered on native types with PatchType.
var patches = struct {
	sync.RWMutex
	byType map[reflect.Type]map[string]Func
}{byType: make(map[reflect.Type]map[string]Func)}

// PatchType registers fn as a property of every value whose type is the type of
// sample, which must be a pointer such as (*native.Request)(nil).
// It models libraries that extend a transport object's type with their own helpers.
// Patched helpers count as native properties and are returned unbound.
func PatchType(sample any, name string, fn Func) {
	t := reflect.TypeOf(sample)
	patches.Lock()
	defer patches.Unlock()
	m, ok := patches.byType[t]
	if !ok {
		m = make(map[string]Func)
		patches.byType[t] = m
	}
	m[name] = fn
}

// UnpatchType removes a helper registered with PatchType.
func UnpatchType(sample any, name string) {
	t := reflect.TypeOf(sample)
	patches.Lock()
	defer patches.Unlock()
	delete(patches.byType[t], name)
}

func lookupPatch(t reflect.Type, name string) (Func, bool) {
	patches.RLock()
	defer patches.RUnlock()
	fn, ok := patches.byType[t][name]
	return fn, ok
}

func patchNames(t reflect.Type) []string {
	patches.RLock()
	defer patches.RUnlock()
	names := make([]string, 0, len(patches.byType[t]))
	for name := range patches.byType[t] {
		names = append(names, name)
	}
	return names
}
