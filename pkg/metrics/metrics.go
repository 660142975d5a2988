// Package metrics provides Prometheus instrumentation for bridge runs.
// It records how many runs complete or fail, how long each handler takes, and
// which handlers fail, and exposes the registry over HTTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// OutcomeCompleted labels runs and steps that finished without error.
	OutcomeCompleted = "completed"
	// OutcomeFailed labels runs and steps that failed.
	OutcomeFailed = "failed"
)

// Config defines the naming of the collected metrics.
type Config struct {
	Namespace string    // Namespace for metrics
	Subsystem string    // Subsystem for metrics
	Buckets   []float64 // Histogram buckets in seconds; prometheus.DefBuckets if empty
}

// Collector records run and step metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	inFlight     prometheus.Gauge
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
}

// NewCollector creates the collectors. Call Register to expose them.
func NewCollector(config Config) *Collector {
	buckets := config.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	return &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "runs_total",
			Help:      "Number of handler chain runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "run_duration_seconds",
			Help:      "Duration of handler chain runs.",
			Buckets:   buckets,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "runs_in_flight",
			Help:      "Number of handler chain runs currently executing.",
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "steps_total",
			Help:      "Number of handler invocations by handler and outcome.",
		}, []string{"handler", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "step_duration_seconds",
			Help:      "Time from invoking a handler to its completion signal.",
			Buckets:   buckets,
		}, []string{"handler"}),
	}
}

// Register registers every collector with reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.runs, c.runDuration, c.inFlight, c.steps, c.stepDuration} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// RunStarted records the start of a run.
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.inFlight.Inc()
}

// RunFinished records the end of a run.
func (c *Collector) RunFinished(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.inFlight.Dec()
	c.runs.WithLabelValues(outcome).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// StepFinished records one handler invocation.
func (c *Collector) StepFinished(handler, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.steps.WithLabelValues(handler, outcome).Inc()
	c.stepDuration.WithLabelValues(handler).Observe(duration.Seconds())
}

// Handler returns an HTTP handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
