package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Suhaibinator/SBridge/pkg/flow"
	"github.com/Suhaibinator/SBridge/pkg/metrics"
	"github.com/Suhaibinator/SBridge/pkg/native"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Router is the main router struct that implements http.Handler.
// Every request gets a fresh native request/response pair which the route's
// handlers run against before the route's final handler is called.
type Router struct {
	config      RouterConfig
	router      *httprouter.Router
	logger      *zap.Logger
	bridge      *flow.Bridge
	middlewares []flow.Handler
	wg          sync.WaitGroup
	shutdown    bool
	shutdownMu  sync.RWMutex
}

// contextKey is a type for context keys.
type contextKey string

const (
	// ParamsKey is the key used to store httprouter.Params in the request context.
	// Route handlers read them with GetParams; framework-style handlers read req.params.
	ParamsKey contextKey = "params"
)

// NewRouter creates a new Router with the given configuration.
// It initializes the underlying httprouter, sets up logging, and registers routes from sub-routers.
func NewRouter(config RouterConfig) *Router {
	// Set up the logger
	logger := config.Logger
	if logger == nil {
		// Create a default logger if none is provided
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			// Fallback to a no-op logger if we can't create a production logger
			logger = zap.NewNop()
		}
	}

	bridge := config.Bridge
	if bridge == nil {
		bridge = flow.NewBridge(flow.Config{Logger: logger})
	}

	r := &Router{
		config:      config,
		router:      httprouter.New(),
		logger:      logger,
		bridge:      bridge,
		middlewares: config.Middlewares,
	}

	if config.MetricsPath != "" {
		gatherer := config.MetricsGatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		r.router.Handler(http.MethodGet, config.MetricsPath, metrics.Handler(gatherer))
	}

	// Register routes from sub-routers
	for _, sr := range config.SubRouters {
		r.registerSubRouter(sr)
	}

	return r
}

// Bridge returns the bridge the router runs handlers with.
func (r *Router) Bridge() *flow.Bridge {
	return r.bridge
}

// registerSubRouter registers all routes in a sub-router.
// It applies the sub-router's path prefix to all routes and registers them with the router.
func (r *Router) registerSubRouter(sr SubRouterConfig) {
	for _, route := range sr.Routes {
		// Create a full path by combining the sub-router prefix with the route path
		fullPath := sr.PathPrefix + route.Path

		timeout := r.getEffectiveTimeout(route.Timeout, sr.TimeoutOverride)
		maxBodySize := r.getEffectiveMaxBodySize(route.MaxBodySize, sr.MaxBodySizeOverride)
		handlers := concat(r.middlewares, sr.Middlewares, route.Middlewares)

		handle := r.wrapHandler(route.Handler, timeout, maxBodySize, handlers)
		for _, method := range route.Methods {
			r.router.Handle(method, fullPath, handle)
		}
	}
}

// RegisterRoute registers a route with the router.
// The route's handlers run after the global ones.
func (r *Router) RegisterRoute(route RouteConfig) {
	timeout := r.getEffectiveTimeout(route.Timeout, 0)
	maxBodySize := r.getEffectiveMaxBodySize(route.MaxBodySize, 0)
	handlers := concat(r.middlewares, route.Middlewares)

	handle := r.wrapHandler(route.Handler, timeout, maxBodySize, handlers)
	for _, method := range route.Methods {
		r.router.Handle(method, route.Path, handle)
	}
}

// wrapHandler builds the httprouter handle for a route. The handler list is
// turned into a run function once, at registration.
func (r *Router) wrapHandler(handler RouteHandler, timeout time.Duration, maxBodySize int64, handlers []flow.Handler) httprouter.Handle {
	run := r.bridge.Flow(handlers...)

	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		// First add to the wait group before checking shutdown status
		r.wg.Add(1)

		// Then check if the router is shutting down
		r.shutdownMu.RLock()
		isShutdown := r.shutdown
		r.shutdownMu.RUnlock()

		if isShutdown {
			// If shutting down, decrement the wait group and return error
			r.wg.Done()
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}

		// Process the request and ensure wg.Done() is called when finished
		defer r.wg.Done()

		// Apply body size limit
		if maxBodySize > 0 {
			req.Body = http.MaxBytesReader(w, req.Body, maxBodySize)
		}

		// Store the params in the request context
		req = req.WithContext(context.WithValue(req.Context(), ParamsKey, ps))

		// Apply timeout; the bridge stops waiting on handlers when it expires
		if timeout > 0 {
			ctx, cancel := context.WithTimeout(req.Context(), timeout)
			defer cancel()
			req = req.WithContext(ctx)
		}

		nreq := native.NewRequest(req)
		for _, p := range ps {
			nreq.Params[p.Key] = p.Value
		}
		nres := native.NewResponse(w)

		// w is invalid once this handler returns
		defer nres.Destroy()
		defer r.recoverPanic(nres, req)

		result, err := run(req.Context(), nreq, nres)
		if err != nil {
			r.handleError(nres, req, err, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		// A handler already answered the request
		if nres.Finished() {
			return
		}

		if handler != nil {
			if err := handler(nres.Writer(), req, result); err != nil {
				r.handleError(nres, req, err, http.StatusInternalServerError, "Internal Server Error")
				return
			}
		}
		if err := nres.End(); err != nil && !errors.Is(err, native.ErrDestroyed) {
			r.logger.Error("Failed to end response",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Error(err),
			)
		}
	}
}

// ServeHTTP implements the http.Handler interface.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

// Shutdown gracefully shuts down the router.
// It stops accepting new requests and waits for existing requests to complete.
// If the context is canceled before all requests complete, it returns the context's error.
func (r *Router) Shutdown(ctx context.Context) error {
	// Mark the router as shutting down
	r.shutdownMu.Lock()
	r.shutdown = true
	r.shutdownMu.Unlock()

	// Create a channel to signal when all requests are done
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	// Wait for all requests to finish or for the context to be canceled
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetParams retrieves the httprouter.Params from the request context.
func GetParams(r *http.Request) httprouter.Params {
	params, _ := r.Context().Value(ParamsKey).(httprouter.Params)
	return params
}

// GetParam retrieves a specific parameter from the request context.
func GetParam(r *http.Request, name string) string {
	return GetParams(r).ByName(name)
}

// getEffectiveTimeout returns the effective timeout for a route.
// It considers route-specific, sub-router, and global timeout settings in that order of precedence.
func (r *Router) getEffectiveTimeout(routeTimeout, subRouterTimeout time.Duration) time.Duration {
	if routeTimeout > 0 {
		return routeTimeout
	}
	if subRouterTimeout > 0 {
		return subRouterTimeout
	}
	return r.config.GlobalTimeout
}

// getEffectiveMaxBodySize returns the effective max body size for a route.
// It considers route-specific, sub-router, and global max body size settings in that order of precedence.
func (r *Router) getEffectiveMaxBodySize(routeMaxBodySize, subRouterMaxBodySize int64) int64 {
	if routeMaxBodySize > 0 {
		return routeMaxBodySize
	}
	if subRouterMaxBodySize > 0 {
		return subRouterMaxBodySize
	}
	return r.config.GlobalMaxBodySize
}

// handleError logs err and answers the request, unless a handler already
// started the response. *HTTPError, timeouts and oversized bodies choose
// their own status codes.
func (r *Router) handleError(res *native.Response, req *http.Request, err error, statusCode int, message string) {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
	}
	var handlerErr *flow.HandlerError
	if errors.As(err, &handlerErr) {
		fields = append(fields, zap.Int("index", handlerErr.Index), zap.String("handler", handlerErr.Name))
	}

	var (
		httpErr     *HTTPError
		maxBytesErr *http.MaxBytesError
		aborted     bool
	)
	switch {
	case errors.As(err, &httpErr):
		statusCode = httpErr.StatusCode
		message = httpErr.Message
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, flow.ErrStepTimeout):
		statusCode = http.StatusRequestTimeout
		message = "Request Timeout"
		aborted = true
	case errors.Is(err, context.Canceled):
		aborted = true
	case errors.As(err, &maxBytesErr):
		statusCode = http.StatusRequestEntityTooLarge
		message = "Request Entity Too Large"
	}

	if statusCode >= 500 {
		r.logger.Error("Request failed", fields...)
	} else {
		r.logger.Warn("Request failed", fields...)
	}

	if !res.HeadersSent() && !res.Destroyed() {
		writeError(res, message, statusCode)
	}
	if aborted {
		// Handlers still running after the deadline must not write any more
		res.Destroy()
	}
}

// writeError answers with a plain text error, like http.Error.
func writeError(res *native.Response, message string, statusCode int) {
	_ = res.RemoveHeader("Content-Length")
	_ = res.SetHeader("Content-Type", "text/plain; charset=utf-8")
	_ = res.SetHeader("X-Content-Type-Options", "nosniff")
	if err := res.WriteHead(statusCode); err != nil {
		return
	}
	_ = res.End(message + "\n")
}

// recoverPanic recovers from panics in route handlers.
// It logs the panic and returns a 500 Internal Server Error response.
func (r *Router) recoverPanic(res *native.Response, req *http.Request) {
	if rec := recover(); rec != nil {
		r.logger.Error("Panic recovered",
			zap.Any("panic", rec),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
		)
		if !res.HeadersSent() && !res.Destroyed() {
			writeError(res, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// HTTPError represents an HTTP error with a status code and message.
// It can be used to return specific HTTP errors from route handlers.
// When returned from a handler, or signalled by a middleware, the router
// uses the status code and message to generate the response.
type HTTPError struct {
	StatusCode int    // HTTP status code (e.g., 400, 404, 500)
	Message    string // Error message to be sent in the response body
}

// Error implements the error interface.
// It returns a string representation of the HTTP error in the format "status: message".
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates a new HTTPError with the specified status code and message.
// It's a convenience function for creating HTTP errors in handlers.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
	}
}

func concat(lists ...[]flow.Handler) []flow.Handler {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	out := make([]flow.Handler, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
