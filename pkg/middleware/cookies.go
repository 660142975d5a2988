package middleware

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/Suhaibinator/SBridge/pkg/flow"
	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/Suhaibinator/SBridge/pkg/view"
)

// CookieParser parses the Cookie header into req.cookies, a Record of
// cookie name to value. Values written by res.cookie with a non-string value
// ("j:" followed by JSON) are decoded back. A request that already carries
// cookies is left alone.
func CookieParser() flow.Handler {
	return func(req, res *view.View, next flow.Done) {
		if existing, _ := req.Get("cookies"); existing != nil {
			next(nil)
			return
		}

		header, err := req.Call("get", "Cookie")
		if err != nil {
			next(err)
			return
		}
		line, _ := header.(string)
		next(req.Set("cookies", ParseCookies(line)))
	}
}

// ParseCookies parses a Cookie header line. Malformed pairs are skipped.
func ParseCookies(line string) object.Record {
	cookies := object.NewRecord()
	if line == "" {
		return cookies
	}
	parsed := (&http.Request{Header: http.Header{"Cookie": {line}}}).Cookies()
	for _, c := range parsed {
		if _, seen := cookies[c.Name]; seen {
			// First occurrence wins.
			continue
		}
		value := c.Value
		if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}
		cookies[c.Name] = decodeCookieValue(value)
	}
	return cookies
}

func decodeCookieValue(value string) any {
	if !strings.HasPrefix(value, "j:") {
		return value
	}
	var decoded any
	if err := json.Unmarshal([]byte(value[2:]), &decoded); err != nil {
		return value
	}
	return decoded
}
