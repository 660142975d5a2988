// Package router serves HTTP with httprouter and runs each route's
// framework-style handlers through a flow.Bridge before its final handler.
package router

import (
	"net/http"
	"time"

	"github.com/Suhaibinator/SBridge/pkg/flow"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// RouterConfig defines the global configuration for the router.
// It includes settings for logging, timeouts, metrics, and handlers.
type RouterConfig struct {
	Logger            *zap.Logger         // Logger for all router operations
	Bridge            *flow.Bridge        // Bridge running the handlers; one sharing Logger is created if nil
	GlobalTimeout     time.Duration       // Default timeout for all routes
	GlobalMaxBodySize int64               // Default maximum request body size in bytes
	MetricsPath       string              // Path serving Prometheus metrics, e.g. "/metrics"; disabled if empty
	MetricsGatherer   prometheus.Gatherer // Gatherer behind MetricsPath; prometheus.DefaultGatherer if nil
	SubRouters        []SubRouterConfig   // Sub-routers with their own configurations
	Middlewares       []flow.Handler      // Handlers run first on every route
}

// SubRouterConfig defines configuration for a group of routes with a common path prefix.
// This allows for organizing routes into logical groups and applying shared configuration.
type SubRouterConfig struct {
	PathPrefix          string         // Common path prefix for all routes in this sub-router
	TimeoutOverride     time.Duration  // Override global timeout for all routes in this sub-router
	MaxBodySizeOverride int64          // Override global max body size for all routes in this sub-router
	Routes              []RouteConfig  // Routes in this sub-router
	Middlewares         []flow.Handler // Handlers run on all routes in this sub-router, after the global ones
}

// RouteConfig defines a route.
type RouteConfig struct {
	Path        string         // Route path (will be prefixed with sub-router path prefix if applicable)
	Methods     []string       // HTTP methods this route handles
	Timeout     time.Duration  // Override timeout for this specific route
	MaxBodySize int64          // Override max body size for this specific route
	Middlewares []flow.Handler // Handlers run on this route, after the global and sub-router ones
	Handler     RouteHandler   // Final handler; may be nil when a middleware always ends the response
}

// RouteHandler handles a request after every handler of the route completed.
// result holds what the handlers attached to the request and response.
// Writes to w go through the native response, so session cookies and other
// header hooks installed by the handlers are applied.
// A returned error is answered like a failed handler; an *HTTPError chooses
// the status code and message.
type RouteHandler func(w http.ResponseWriter, r *http.Request, result *flow.Result) error
