// Command flowdemo serves a small site whose session, flash, login and
// request-ID handling is done entirely by framework-style handlers run
// through the bridge.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Suhaibinator/SBridge/pkg/flow"
	"github.com/Suhaibinator/SBridge/pkg/metrics"
	"github.com/Suhaibinator/SBridge/pkg/middleware"
	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/Suhaibinator/SBridge/pkg/proto"
	"github.com/Suhaibinator/SBridge/pkg/router"
	"github.com/Suhaibinator/SBridge/pkg/view"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// users is the demo account table: username to password.
var users = map[string]string{
	"alice": "wonderland",
	"bob":   "builder",
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(metrics.Config{Namespace: "flowdemo"})
	if err := collector.Register(registry); err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	settings := proto.DefaultSettings()
	settings["trust proxy"] = cfg.TrustProxy
	bridge := flow.NewBridge(flow.Config{
		Logger:        logger,
		App:           proto.NewApp(settings),
		StepTimeout:   cfg.StepTimeout,
		Metrics:       collector,
		EnableTraceID: true,
	})

	store, closeStore := newStore(cfg, logger)
	defer closeStore()

	session, err := middleware.Session(middleware.SessionConfig{
		Name:              "flowdemo.sid",
		Secret:            cfg.SessionSecret,
		Store:             store,
		MaxAge:            cfg.SessionMaxAge,
		SaveUninitialized: false,
		Cookie:            middleware.CookieOptions{HTTPOnly: true, SameSite: "lax"},
		Logger:            logger,
	})
	if err != nil {
		logger.Fatal("Failed to create session handler", zap.Error(err))
	}

	auth := middleware.NewAuth(middleware.AuthConfig{
		Serialize: func(user any) (string, error) {
			name, _ := user.(string)
			return name, nil
		},
		Deserialize: func(_ context.Context, key string) (any, error) {
			if _, ok := users[key]; !ok {
				return nil, nil
			}
			return key, nil
		},
		Logger: logger,
	})
	auth.Install()
	defer auth.Uninstall()

	r := router.NewRouter(router.RouterConfig{
		Logger:            logger,
		Bridge:            bridge,
		GlobalTimeout:     cfg.RequestTimeout,
		GlobalMaxBodySize: cfg.MaxBodySize,
		MetricsPath:       "/metrics",
		MetricsGatherer:   registry,
		Middlewares: []flow.Handler{
			middleware.RequestID(cfg.TrustProxy),
			middleware.Logger(logger),
			middleware.Throttle(middleware.ThrottleConfig{Rate: cfg.ThrottleRate}),
			middleware.CookieParser(),
			session,
			middleware.Flash(),
			auth.Initialize(),
		},
	})

	r.RegisterRoute(router.RouteConfig{
		Path:    "/",
		Methods: []string{http.MethodGet},
		Handler: homeHandler,
	})
	r.RegisterRoute(router.RouteConfig{
		Path:    "/login",
		Methods: []string{http.MethodPost},
		Middlewares: []flow.Handler{
			auth.BasicAuth("flowdemo", func(username, password string) (any, bool) {
				expected, ok := users[username]
				return username, ok && expected == password
			}),
		},
		Handler: func(w http.ResponseWriter, _ *http.Request, result *flow.Result) error {
			return writeJSON(w, http.StatusOK, map[string]any{"user": overlayValue(result.Request, "user")})
		},
	})
	r.RegisterRoute(router.RouteConfig{
		Path:        "/me",
		Methods:     []string{http.MethodGet},
		Middlewares: []flow.Handler{auth.Required()},
		Handler: func(w http.ResponseWriter, _ *http.Request, result *flow.Result) error {
			return writeJSON(w, http.StatusOK, map[string]any{"user": overlayValue(result.Request, "user")})
		},
	})
	r.RegisterRoute(router.RouteConfig{
		Path:        "/logout",
		Methods:     []string{http.MethodPost},
		Middlewares: []flow.Handler{logoutHandler},
		Handler: func(w http.ResponseWriter, _ *http.Request, _ *flow.Result) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		},
	})
	r.RegisterRoute(router.RouteConfig{
		Path:    "/greet/:name",
		Methods: []string{http.MethodGet},
		Handler: func(w http.ResponseWriter, req *http.Request, result *flow.Result) error {
			return writeJSON(w, http.StatusOK, map[string]any{
				"greeting":   "Hello, " + router.GetParam(req, "name"),
				"request_id": middleware.GetRequestID(result.Request),
			})
		},
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests in the router first, then drain the server
	if err := r.Shutdown(ctx); err != nil {
		logger.Error("Router shutdown failed", zap.Error(err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newStore returns a Redis session store when REDIS_ADDR is set and an
// in-memory store otherwise.
func newStore(cfg Config, logger *zap.Logger) (middleware.SessionStore, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("Using in-memory session store")
		return middleware.NewMemoryStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	logger.Info("Using Redis session store", zap.String("addr", cfg.RedisAddr))
	return middleware.NewRedisStore(client, "flowdemo:sess:"), func() {
		if err := client.Close(); err != nil {
			logger.Error("Failed to close Redis client", zap.Error(err))
		}
	}
}

// homeHandler counts visits in the session and shows pending flash messages.
func homeHandler(w http.ResponseWriter, _ *http.Request, result *flow.Result) error {
	session, _ := overlayValue(result.Request, "session").(object.Record)
	if session == nil {
		return router.NewHTTPError(http.StatusInternalServerError, "session unavailable")
	}
	views, _ := session["views"].(float64)
	views++
	session["views"] = views

	var messages any
	if flash, err := result.Request.Get("flash"); err == nil {
		if fn, ok := flash.(object.Method); ok {
			messages, _ = fn()
		}
	}

	return writeJSON(w, http.StatusOK, map[string]any{
		"views":    views,
		"messages": messages,
		"user":     overlayValue(result.Request, "user"),
	})
}

// logoutHandler logs the user out and leaves a flash message for the next page.
func logoutHandler(req, res *view.View, next flow.Done) {
	if _, err := req.Call("logOut"); err != nil {
		next(err)
		return
	}
	_, err := req.Call("flash", "info", "Signed out")
	next(err)
}

func overlayValue(o *view.Overlay, name string) any {
	v, err := o.Get(name)
	if err != nil {
		return nil
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}
