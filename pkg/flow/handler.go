package flow

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/Suhaibinator/SBridge/pkg/view"
)

// Done is the completion signal passed to every handler. It must be called
// exactly once, with nil on success or the error that stops the run.
type Done func(err error)

// Handler is a middleware function written for the framework's calling
// convention. It receives the request and response views and may finish
// synchronously or call next later from another goroutine.
type Handler func(req, res *view.View, next Done)

// handlerName derives a readable name from the handler's function symbol,
// e.g. "CookieParser" for the closure returned by middleware.CookieParser.
func handlerName(h Handler) string {
	if h == nil {
		return "nil"
	}
	fn := runtime.FuncForPC(reflect.ValueOf(h).Pointer())
	if fn == nil {
		return "anonymous"
	}
	return trimSymbol(fn.Name())
}

// trimSymbol strips the package path, closure segments and method value
// suffixes from a runtime function symbol.
func trimSymbol(symbol string) string {
	if i := strings.LastIndex(symbol, "/"); i >= 0 {
		symbol = symbol[i+1:]
	}
	if i := strings.Index(symbol, "."); i >= 0 {
		symbol = symbol[i+1:]
	}
	symbol = strings.TrimSuffix(symbol, "-fm")

	var kept []string
	for _, seg := range strings.Split(symbol, ".") {
		if isClosureSegment(seg) {
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return "anonymous"
	}
	return strings.Join(kept, ".")
}

// isClosureSegment matches "func1", "func12", "1" and "gowrap2".
func isClosureSegment(seg string) bool {
	for _, prefix := range []string{"func", "gowrap"} {
		if strings.HasPrefix(seg, prefix) {
			seg = strings.TrimPrefix(seg, prefix)
			break
		}
	}
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
