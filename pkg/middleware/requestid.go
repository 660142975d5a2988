package middleware

import (
	"github.com/Suhaibinator/SBridge/pkg/flow"
	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/Suhaibinator/SBridge/pkg/view"
	"github.com/google/uuid"
)

// RequestIDHeader is the header carrying the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request a unique ID as req.id and echoes it in the
// X-Request-ID response header. An incoming X-Request-ID is reused when trustIncoming is set.
func RequestID(trustIncoming bool) flow.Handler {
	return func(req, res *view.View, next flow.Done) {
		var id string
		if trustIncoming {
			if v, err := req.Call("get", RequestIDHeader); err == nil {
				id, _ = v.(string)
			}
		}
		if id == "" {
			id = uuid.New().String()
		}

		if err := req.Set("id", id); err != nil {
			next(err)
			return
		}
		_, err := res.Call("set", RequestIDHeader, id)
		next(err)
	}
}

// GetRequestID returns the ID RequestID stored on a request view or overlay, or "".
func GetRequestID(req object.Object) string {
	return stringProp(req, "id")
}
