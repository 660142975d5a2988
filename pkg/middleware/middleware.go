// Package middleware provides handlers written in the framework's calling
// convention, for use with flow.Bridge.
//
// Every handler here only talks to the request and response views: it reads
// through them, attaches its state with Set or Define, and signals completion
// through next. None of them knows it runs outside the framework.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Suhaibinator/SBridge/pkg/flow"
	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/Suhaibinator/SBridge/pkg/view"
	"go.uber.org/zap"
)

// Logger logs every request once its response headers are written.
// Server errors are logged at Error, client errors and slow requests at Warn,
// everything else at Debug.
func Logger(logger *zap.Logger) flow.Handler {
	return func(req, res *view.View, next flow.Done) {
		start := time.Now()
		method := stringProp(req, "method")
		path := stringProp(req, "path")
		remoteAddr := stringProp(req, "remoteAddr")

		_, err := res.Call("beforeHeaders", func() {
			status := intProp(res, "statusCode")
			duration := time.Since(start)
			fields := []zap.Field{
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", status),
				zap.Duration("duration", duration),
			}
			if id := stringProp(req, "id"); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}

			switch {
			case status >= 500:
				logger.Error("Server error", append(fields, zap.String("remote_addr", remoteAddr))...)
			case status >= 400:
				logger.Warn("Client error", fields...)
			case duration > 1*time.Second:
				logger.Warn("Slow request", fields...)
			default:
				logger.Debug("Request", fields...)
			}
		})
		next(err)
	}
}

// CORS sets the CORS headers and answers preflight requests with 204.
// A preflight still completes the handler so later handlers can see it ended.
func CORS(origins []string, methods []string, headers []string) flow.Handler {
	return func(req, res *view.View, next flow.Done) {
		fields := object.NewRecord()
		if len(origins) > 0 {
			fields["Access-Control-Allow-Origin"] = strings.Join(origins, ", ")
		}
		if len(methods) > 0 {
			fields["Access-Control-Allow-Methods"] = strings.Join(methods, ", ")
		}
		if len(headers) > 0 {
			fields["Access-Control-Allow-Headers"] = strings.Join(headers, ", ")
		}
		if _, err := res.Call("set", fields); err != nil {
			next(err)
			return
		}

		if stringProp(req, "method") == http.MethodOptions {
			_, err := res.Call("sendStatus", http.StatusNoContent)
			next(err)
			return
		}
		next(nil)
	}
}

// Ended reports whether an earlier handler already finished the response.
func Ended(res *view.View) bool {
	finished, _ := res.Call("finished")
	done, _ := finished.(bool)
	return done
}

func stringProp(o object.Object, name string) string {
	v, err := o.Get(name)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func intProp(o object.Object, name string) int {
	v, err := o.Get(name)
	if err != nil {
		return 0
	}
	n, _ := v.(int)
	return n
}

// recordProp returns the record stored under name. Records that went
// through JSON come back as map[string]any and are converted in place.
func recordProp(o object.Object, name string) object.Record {
	v, err := o.Get(name)
	if err != nil {
		return nil
	}
	return asRecord(v)
}

func asRecord(v any) object.Record {
	switch r := v.(type) {
	case object.Record:
		return r
	case map[string]any:
		return object.Record(r)
	}
	return nil
}
