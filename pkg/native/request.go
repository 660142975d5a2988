// Package native provides the minimal transport-level request and response
// objects the bridge wraps. They mirror the surface of a plain HTTP server's
// request and response, without any framework helpers mixed in.
package native

import (
	"context"
	"io"
	"net/http"
	"strconv"
)

// Request is the native request object.
// Its exported fields and methods form the native property surface seen
// through a view (method, url, headers, remoteAddr, params, httpVersion).
type Request struct {
	Method      string            // HTTP method
	URL         string            // Request URI as received (path and query)
	Headers     http.Header       // Request headers, including Host
	RemoteAddr  string            // Network address of the client
	HTTPVersion string            // Protocol version, e.g. "1.1"
	Params      map[string]string // Route parameters filled in by a router

	raw *http.Request
}

// NewRequest wraps an *http.Request.
func NewRequest(r *http.Request) *Request {
	headers := r.Header.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	if r.Host != "" && headers.Get("Host") == "" {
		headers.Set("Host", r.Host)
	}

	return &Request{
		Method:      r.Method,
		URL:         r.URL.RequestURI(),
		Headers:     headers,
		RemoteAddr:  r.RemoteAddr,
		HTTPVersion: versionString(r.ProtoMajor, r.ProtoMinor),
		Params:      make(map[string]string),
		raw:         r,
	}
}

// Context returns the context of the underlying request.
func (r *Request) Context() context.Context {
	if r.raw == nil {
		return context.Background()
	}
	return r.raw.Context()
}

// Raw returns the underlying *http.Request.
func (r *Request) Raw() *http.Request {
	return r.raw
}

// ReadAll reads the remaining request body.
func (r *Request) ReadAll() ([]byte, error) {
	if r.raw == nil || r.raw.Body == nil {
		return nil, nil
	}
	return io.ReadAll(r.raw.Body)
}

func versionString(major, minor int) string {
	if major == 0 {
		return ""
	}
	return strconv.Itoa(major) + "." + strconv.Itoa(minor)
}
