// Package flow runs middleware written for a framework's request/response
// shape against plain native request and response objects.
//
// A Bridge is created once at startup. Each run wraps the native pair in two
// fresh views over two fresh overlays, cross-links them, executes the handlers
// strictly in order, and returns the overlays. Nothing a handler attaches ever
// lands on the native objects.
package flow

import (
	"time"

	"github.com/Suhaibinator/SBridge/pkg/metrics"
	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/Suhaibinator/SBridge/pkg/view"
	"go.uber.org/zap"
)

// Config defines the process-wide configuration of a Bridge.
type Config struct {
	Logger            *zap.Logger        // Logger for runner events; zap.NewProduction if nil
	App               object.Object      // Shared application context; proto.NewApp(nil) if nil
	RequestPrototype  object.Object      // Capability prototype for request views; proto.Request() if nil
	ResponsePrototype object.Object      // Capability prototype for response views; proto.Response() if nil
	Bindings          view.BindingTable  // Receiver policy for native helpers; view.DefaultBindings() if nil
	StepTimeout       time.Duration      // Maximum wait for a handler's completion signal; 0 waits indefinitely
	Metrics           *metrics.Collector // Optional run and step metrics
	EnableTraceID     bool               // Attach a generated run_id to every log entry of a run
}
