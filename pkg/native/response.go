package native

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
)

var (
	// ErrHeadersSent is returned when modifying headers after they were written.
	ErrHeadersSent = errors.New("cannot modify headers after they are sent")

	// ErrWriteAfterEnd is returned when writing to a finished response.
	ErrWriteAfterEnd = errors.New("write after end")

	// ErrDestroyed is returned by every write once the response has been destroyed.
	ErrDestroyed = errors.New("response has been destroyed")
)

// Response is the native response object.
// Headers are buffered until the first body write, WriteHead or End; hooks
// registered with BeforeHeaders run just before that happens.
type Response struct {
	StatusCode    int    // Status code sent with the headers; 200 if left at zero
	StatusMessage string // Optional reason phrase, informational only

	w         http.ResponseWriter
	mu        sync.Mutex
	sent      bool
	finished  bool
	destroyed bool
	hooks     []func()
}

// NewResponse wraps an http.ResponseWriter.
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{
		StatusCode: http.StatusOK,
		w:          w,
	}
}

// SetHeader replaces a response header. Numbers are formatted and string
// slices set multiple values.
func (r *Response) SetHeader(name string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkHeadersLocked(); err != nil {
		return err
	}
	switch v := value.(type) {
	case []string:
		r.w.Header()[http.CanonicalHeaderKey(name)] = append([]string(nil), v...)
	case string:
		r.w.Header().Set(name, v)
	case int:
		r.w.Header().Set(name, strconv.Itoa(v))
	default:
		r.w.Header().Set(name, fmt.Sprint(v))
	}
	return nil
}

// AppendHeader adds a value to a response header.
func (r *Response) AppendHeader(name string, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkHeadersLocked(); err != nil {
		return err
	}
	r.w.Header().Add(name, value)
	return nil
}

// GetHeader returns the first value of a response header.
func (r *Response) GetHeader(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Header().Get(name)
}

// GetHeaderValues returns every value of a response header.
func (r *Response) GetHeaderValues(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Header().Values(name)
}

// GetHeaders returns a copy of the response headers.
func (r *Response) GetHeaders() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Header().Clone()
}

// HasHeader reports whether a response header is set.
func (r *Response) HasHeader(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.w.Header()[http.CanonicalHeaderKey(name)]
	return ok
}

// RemoveHeader deletes a response header.
func (r *Response) RemoveHeader(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkHeadersLocked(); err != nil {
		return err
	}
	r.w.Header().Del(name)
	return nil
}

// BeforeHeaders registers fn to run right before the headers are written.
// Hooks run in reverse registration order, each at most once.
func (r *Response) BeforeHeaders(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// WriteHead sets the status code and writes the headers.
func (r *Response) WriteHead(code int) error {
	r.mu.Lock()
	if err := r.checkHeadersLocked(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.StatusCode = code
	r.mu.Unlock()
	return r.flushHeaders()
}

// Write writes a body chunk, sending the headers first if needed.
// chunk may be a string or a []byte.
func (r *Response) Write(chunk any) error {
	p, err := chunkBytes(chunk)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if err := r.checkOpenLocked(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	if err := r.flushHeaders(); err != nil {
		return err
	}

	// The lock is held across the underlying write so Destroy cannot slip in
	// between the check and the write.
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpenLocked(); err != nil {
		return err
	}
	_, err = r.w.Write(p)
	return err
}

// End writes an optional final chunk and finishes the response.
// Calling End on a finished response without a chunk is a no-op.
func (r *Response) End(chunk ...any) error {
	var p []byte
	if len(chunk) > 0 && chunk[0] != nil {
		var err error
		if p, err = chunkBytes(chunk[0]); err != nil {
			return err
		}
	}

	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return ErrDestroyed
	}
	if r.finished {
		r.mu.Unlock()
		if p != nil {
			return ErrWriteAfterEnd
		}
		return nil
	}
	r.mu.Unlock()

	if err := r.flushHeaders(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpenLocked(); err != nil {
		if p == nil && errors.Is(err, ErrWriteAfterEnd) {
			return nil
		}
		return err
	}
	r.finished = true
	if p != nil {
		if _, err := r.w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// HeadersSent reports whether the headers have been written.
func (r *Response) HeadersSent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

// Finished reports whether End has been called.
func (r *Response) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Destroy marks the response as unusable, as when the client connection is
// torn down. Every later write or property assignment fails with ErrDestroyed.
func (r *Response) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = true
}

// Destroyed reports whether Destroy has been called.
func (r *Response) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// GuardWrite runs a property write under the response lock and refuses it
// once the response is destroyed.
func (r *Response) GuardWrite(_ string, write func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrDestroyed
	}
	return write()
}

// GuardRead runs a property read under the response lock.
func (r *Response) GuardRead(_ string, read func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	read()
}

// Writer returns an http.ResponseWriter that writes through this response,
// so plain net/http code observes the same status, headers and hooks.
func (r *Response) Writer() http.ResponseWriter {
	return &responseWriter{res: r}
}

func (r *Response) flushHeaders() error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return ErrDestroyed
	}
	if r.sent {
		r.mu.Unlock()
		return nil
	}
	hooks := r.hooks
	r.hooks = nil
	r.mu.Unlock()

	// Hooks may set headers or the status, so they run without the lock.
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrDestroyed
	}
	if r.sent {
		return nil
	}
	r.sent = true
	code := r.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	r.w.WriteHeader(code)
	return nil
}

func (r *Response) checkHeadersLocked() error {
	if r.destroyed {
		return ErrDestroyed
	}
	if r.sent {
		return ErrHeadersSent
	}
	return nil
}

func (r *Response) checkOpenLocked() error {
	if r.destroyed {
		return ErrDestroyed
	}
	if r.finished {
		return ErrWriteAfterEnd
	}
	return nil
}

func chunkBytes(chunk any) ([]byte, error) {
	switch c := chunk.(type) {
	case []byte:
		return c, nil
	case string:
		return []byte(c), nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported chunk type %T", chunk)
}

// responseWriter adapts a Response to http.ResponseWriter.
type responseWriter struct {
	res *Response
}

// Header returns the response header map.
func (rw *responseWriter) Header() http.Header {
	return rw.res.w.Header()
}

// WriteHeader records the status code and writes the headers.
func (rw *responseWriter) WriteHeader(statusCode int) {
	_ = rw.res.WriteHead(statusCode)
}

// Write writes a body chunk through the response.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if err := rw.res.Write(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Flush calls the underlying ResponseWriter.Flush if it implements http.Flusher.
func (rw *responseWriter) Flush() {
	if f, ok := rw.res.w.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.res.w
}
