package middleware

import (
	"errors"
	"fmt"

	"github.com/Suhaibinator/SBridge/pkg/flow"
	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/Suhaibinator/SBridge/pkg/view"
)

// ErrFlashRequiresSession is returned by Flash when no session handler ran before it.
var ErrFlashRequiresSession = errors.New("flash requires a session")

// flashKey is the session key holding pending messages.
const flashKey = "flash"

// Flash defines req.flash, which stores one-shot messages in the session:
//
//	req.flash("info", "Saved")  // queue a message, returns the queue length
//	req.flash("info")           // take the queued "info" messages
//	req.flash()                 // take every queued message, by type
//
// It must run after Session or CookieSession.
func Flash() flow.Handler {
	return func(req, res *view.View, next flow.Done) {
		if recordProp(req, "session") == nil {
			next(ErrFlashRequiresSession)
			return
		}
		next(req.Define("flash", view.Descriptor{Value: object.Func(flash)}))
	}
}

func flash(this object.Object, args ...any) (any, error) {
	session := recordProp(this, "session")
	if session == nil {
		return nil, ErrFlashRequiresSession
	}
	pending := asRecord(session[flashKey])
	if pending == nil {
		pending = object.NewRecord()
		session[flashKey] = pending
	}

	var kind string
	if len(args) > 0 {
		kind, _ = args[0].(string)
	}

	switch {
	case len(args) >= 2:
		queue := messages(pending[kind])
		switch msg := args[1].(type) {
		case []string:
			queue = append(queue, msg...)
		case string:
			if len(args) > 2 {
				msg = fmt.Sprintf(msg, args[2:]...)
			}
			queue = append(queue, msg)
		default:
			queue = append(queue, fmt.Sprint(msg))
		}
		pending[kind] = queue
		return len(queue), nil

	case kind != "":
		queue := messages(pending[kind])
		delete(pending, kind)
		if queue == nil {
			queue = []string{}
		}
		return queue, nil
	}

	all := make(map[string][]string, len(pending))
	for k, v := range pending {
		all[k] = messages(v)
	}
	session[flashKey] = object.NewRecord()
	return all, nil
}

// messages normalises a stored queue, which is []any after a JSON round trip.
func messages(v any) []string {
	switch q := v.(type) {
	case []string:
		return q
	case []any:
		out := make([]string, 0, len(q))
		for _, m := range q {
			out = append(out, fmt.Sprint(m))
		}
		return out
	}
	return nil
}
