package middleware

import (
	"sync"
	"time"

	"github.com/Suhaibinator/SBridge/pkg/flow"
	"github.com/Suhaibinator/SBridge/pkg/view"
	"go.uber.org/ratelimit"
)

// ThrottleConfig defines configuration for request pacing.
type ThrottleConfig struct {
	// Number of requests allowed per Per for one client key
	Rate int

	// Time window for Rate; one second if zero
	Per time.Duration

	// Requests allowed to burst after an idle period; 0 disables bursting
	Slack int

	// Key identifies the client. Defaults to req.ip.
	Key func(req *view.View) string
}

// Throttler paces requests per client key using Uber's leaky-bucket limiter.
// Requests over the rate are delayed, not rejected.
type Throttler struct {
	config   ThrottleConfig
	limiters sync.Map // map[string]ratelimit.Limiter
	mu       sync.Mutex
}

// NewThrottler creates a Throttler.
func NewThrottler(config ThrottleConfig) *Throttler {
	if config.Rate <= 0 {
		config.Rate = 1
	}
	if config.Per <= 0 {
		config.Per = time.Second
	}
	if config.Key == nil {
		config.Key = func(req *view.View) string {
			return stringProp(req, "ip")
		}
	}
	return &Throttler{config: config}
}

// getLimiter gets or creates the limiter for key
func (t *Throttler) getLimiter(key string) ratelimit.Limiter {
	if limiter, ok := t.limiters.Load(key); ok {
		return limiter.(ratelimit.Limiter)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring lock
	if limiter, ok := t.limiters.Load(key); ok {
		return limiter.(ratelimit.Limiter)
	}

	opts := []ratelimit.Option{ratelimit.Per(t.config.Per)}
	if t.config.Slack > 0 {
		opts = append(opts, ratelimit.WithSlack(t.config.Slack))
	} else {
		opts = append(opts, ratelimit.WithoutSlack)
	}
	limiter := ratelimit.New(t.config.Rate, opts...)
	t.limiters.Store(key, limiter)
	return limiter
}

// Take blocks until a request for key may proceed and returns the time it was released.
func (t *Throttler) Take(key string) time.Time {
	return t.getLimiter(key).Take()
}

// Handler returns the throttling handler. The wait happens on the handler's
// own goroutine, so other runs are not held up.
func (t *Throttler) Handler() flow.Handler {
	return func(req, res *view.View, next flow.Done) {
		t.Take(t.config.Key(req))
		next(nil)
	}
}

// Throttle is shorthand for NewThrottler(config).Handler().
func Throttle(config ThrottleConfig) flow.Handler {
	return NewThrottler(config).Handler()
}
