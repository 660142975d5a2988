package flow

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/Suhaibinator/SBridge/pkg/metrics"
	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/Suhaibinator/SBridge/pkg/proto"
	"github.com/Suhaibinator/SBridge/pkg/view"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Bridge holds everything shared by the runs it starts: the capability
// prototypes, the application context, the binding table and the logger.
// All of it is read-only once NewBridge returns, so one Bridge serves any
// number of concurrent runs.
type Bridge struct {
	config   Config
	logger   *zap.Logger
	app      object.Object
	reqProto object.Object
	resProto object.Object
	bindings view.BindingTable
	metrics  *metrics.Collector
}

// Result holds the overlays of a completed run. The views themselves are
// never handed out; they would keep binding handler state to the natives.
type Result struct {
	Request  *view.Overlay // Everything handlers attached to the request
	Response *view.Overlay // Everything handlers attached to the response
}

// RunFunc executes a fixed handler list against one native request/response pair.
// Natives that do not implement object.Object must be pointers to structs.
type RunFunc func(ctx context.Context, req, res any) (*Result, error)

// NewBridge creates a Bridge with the given configuration.
// It is meant to be called once at process start.
func NewBridge(config Config) *Bridge {
	// Set up the logger
	logger := config.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			// Fallback to a no-op logger if we can't create a production logger
			logger = zap.NewNop()
		}
	}

	b := &Bridge{
		config:   config,
		logger:   logger,
		app:      config.App,
		reqProto: config.RequestPrototype,
		resProto: config.ResponsePrototype,
		bindings: config.Bindings,
		metrics:  config.Metrics,
	}
	if b.app == nil {
		b.app = proto.NewApp(nil)
	}
	if b.reqProto == nil {
		b.reqProto = proto.Request()
	}
	if b.resProto == nil {
		b.resProto = proto.Response()
	}
	if b.bindings == nil {
		b.bindings = view.DefaultBindings()
	}
	return b
}

// App returns the shared application context.
func (b *Bridge) App() object.Object {
	return b.app
}

// Logger returns the bridge's logger.
func (b *Bridge) Logger() *zap.Logger {
	return b.logger
}

// Flow returns a RunFunc for handlers. An empty list is allowed; its runs
// only wire the pair and return the overlays.
func (b *Bridge) Flow(handlers ...Handler) RunFunc {
	list := make([]Handler, len(handlers))
	copy(list, handlers)
	return func(ctx context.Context, req, res any) (*Result, error) {
		return b.run(ctx, list, req, res)
	}
}

// run creates a fresh view pair, wires it and executes the handlers in order.
func (b *Bridge) run(ctx context.Context, handlers []Handler, req, res any) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	reqView, resView, err := b.newPair(req, res)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if b.config.EnableTraceID {
		logger = logger.With(zap.String("run_id", uuid.NewString()))
	}

	start := time.Now()
	b.metrics.RunStarted()
	for i, h := range handlers {
		if err := b.step(ctx, logger, i, h, reqView, resView); err != nil {
			b.metrics.RunFinished(metrics.OutcomeFailed, time.Since(start))
			return nil, err
		}
	}
	b.metrics.RunFinished(metrics.OutcomeCompleted, time.Since(start))

	return &Result{Request: reqView.Overlay(), Response: resView.Overlay()}, nil
}

// newPair wraps the natives in fresh views over fresh overlays and wires them.
func (b *Bridge) newPair(req, res any) (*view.View, *view.View, error) {
	if req == nil || res == nil {
		return nil, nil, ErrNoNativePair
	}
	reqObj, err := object.From(req)
	if err != nil {
		return nil, nil, fmt.Errorf("native request: %w", err)
	}
	resObj, err := object.From(res)
	if err != nil {
		return nil, nil, fmt.Errorf("native response: %w", err)
	}

	reqView, err := view.New(reqObj, view.NewOverlay(), b.reqProto, view.WithBindings(b.bindings))
	if err != nil {
		return nil, nil, fmt.Errorf("request view: %w", err)
	}
	resView, err := view.New(resObj, view.NewOverlay(), b.resProto, view.WithBindings(b.bindings))
	if err != nil {
		return nil, nil, fmt.Errorf("response view: %w", err)
	}
	if err := Wire(reqView, resView, b.app); err != nil {
		return nil, nil, err
	}
	return reqView, resView, nil
}

// step runs one handler and waits for its completion signal.
// The first signal wins; later ones are logged and dropped.
func (b *Bridge) step(ctx context.Context, logger *zap.Logger, index int, h Handler, req, res *view.View) error {
	name := handlerName(h)
	start := time.Now()

	err := b.await(ctx, logger, index, name, h, req, res)
	if err == nil {
		// A rejected Define fails the run even when the handler ignored the error
		if err = req.Err(); err == nil {
			err = res.Err()
		}
	}
	duration := time.Since(start)

	if err != nil {
		b.metrics.StepFinished(name, metrics.OutcomeFailed, duration)
		logger.Error("Handler failed",
			zap.Int("index", index),
			zap.String("handler", name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return &HandlerError{Index: index, Name: name, Cause: err}
	}

	b.metrics.StepFinished(name, metrics.OutcomeCompleted, duration)
	logger.Debug("Handler completed",
		zap.Int("index", index),
		zap.String("handler", name),
		zap.Duration("duration", duration),
	)
	return nil
}

// await invokes h on its own goroutine and blocks until it signals completion,
// panics, the context is done or the step timeout elapses.
func (b *Bridge) await(ctx context.Context, logger *zap.Logger, index int, name string, h Handler, req, res *view.View) error {
	if h == nil {
		return ErrNilHandler
	}
	// A cancelled run never starts another handler
	if err := ctx.Err(); err != nil {
		return err
	}

	// Buffered so that a late signal never blocks the handler
	done := make(chan error, 1)
	var fired atomic.Bool
	signal := func(err error) bool {
		if !fired.CompareAndSwap(false, true) {
			return false
		}
		done <- err
		return true
	}

	next := func(err error) {
		if !signal(err) {
			logger.Error("Handler signalled completion more than once",
				zap.Int("index", index),
				zap.String("handler", name),
				zap.Error(err),
			)
		}
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				if !signal(&PanicError{Value: rec, Stack: debug.Stack()}) {
					logger.Error("Handler panicked after signalling completion",
						zap.Int("index", index),
						zap.String("handler", name),
						zap.Any("panic", rec),
					)
				}
			}
		}()
		h(req, res, next)
	}()

	var timeout <-chan time.Time
	if b.config.StepTimeout > 0 {
		timer := time.NewTimer(b.config.StepTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-done:
		return err
	case <-req.Violated():
		return req.Err()
	case <-res.Violated():
		return res.Err()
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return ErrStepTimeout
	}
}
