package proto

import (
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/Suhaibinator/SBridge/pkg/object"
)

// Request returns the request capability prototype.
func Request() *object.Prototype {
	return object.NewPrototype("request").
		Method("get", requestHeader).
		Method("header", requestHeader).
		Method("param", requestParam).
		Method("is", requestIs).
		Getter("path", requestPath).
		Getter("query", requestQuery).
		Getter("originalUrl", requestOriginalURL).
		Getter("hostname", requestHostname).
		Getter("protocol", requestProtocol).
		Getter("secure", requestSecure).
		Getter("ip", requestIP).
		Getter("xhr", requestXHR)
}

// requestHeader returns a request header; Referer and Referrer are interchangeable.
func requestHeader(this object.Object, args ...any) (any, error) {
	name := strings.ToLower(firstString(args))
	if name == "referrer" {
		name = "referer"
	}
	return headers(this).Get(name), nil
}

// requestParam looks a name up in route params, then in the query string.
func requestParam(this object.Object, args ...any) (any, error) {
	name := firstString(args)
	if params, ok := get(this, "params").(map[string]string); ok {
		if v, ok := params[name]; ok {
			return v, nil
		}
	}
	return parsedURL(this).Query().Get(name), nil
}

// requestIs returns the first of the given types matching the request
// Content-Type, or false.
func requestIs(this object.Object, args ...any) (any, error) {
	ct := headers(this).Get("Content-Type")
	if ct == "" {
		return false, nil
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false, nil
	}
	for _, arg := range args {
		want, _ := arg.(string)
		if mediaTypeMatches(mediaType, want) {
			return want, nil
		}
	}
	return false, nil
}

func mediaTypeMatches(mediaType, want string) bool {
	switch {
	case want == "":
		return false
	case !strings.Contains(want, "/"):
		// Shorthand such as "json" or "html".
		return strings.HasSuffix(mediaType, "/"+want) || strings.HasSuffix(mediaType, "+"+want)
	case strings.HasSuffix(want, "/*"):
		return strings.HasPrefix(mediaType, strings.TrimSuffix(want, "*"))
	case strings.HasPrefix(want, "*/"):
		return strings.HasSuffix(mediaType, strings.TrimPrefix(want, "*"))
	}
	return mediaType == want
}

func requestPath(this object.Object, _ ...any) (any, error) {
	return parsedURL(this).Path, nil
}

// requestQuery returns the parsed query string. Repeated keys keep every value.
func requestQuery(this object.Object, _ ...any) (any, error) {
	q := object.NewRecord()
	for k, vs := range parsedURL(this).Query() {
		if len(vs) == 1 {
			q[k] = vs[0]
		} else {
			q[k] = vs
		}
	}
	return q, nil
}

func requestOriginalURL(this object.Object, _ ...any) (any, error) {
	s, _ := get(this, "url").(string)
	return s, nil
}

func requestHostname(this object.Object, _ ...any) (any, error) {
	h := headers(this)
	host := h.Get("Host")
	if trustProxy(this) {
		if fwd := h.Get("X-Forwarded-Host"); fwd != "" {
			host = strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
	}
	if host == "" {
		return "", nil
	}
	if hostname, _, err := net.SplitHostPort(host); err == nil {
		return hostname, nil
	}
	return host, nil
}

func requestProtocol(this object.Object, _ ...any) (any, error) {
	proto := "http"
	if raw, ok := get(this, "raw").(object.Method); ok {
		if v, _ := raw(); v != nil {
			if r, ok := v.(*http.Request); ok && r != nil && r.TLS != nil {
				proto = "https"
			}
		}
	}
	if trustProxy(this) {
		if fwd := headers(this).Get("X-Forwarded-Proto"); fwd != "" {
			proto = strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
	}
	return proto, nil
}

func requestSecure(this object.Object, _ ...any) (any, error) {
	proto, _ := requestProtocol(this)
	return proto == "https", nil
}

func requestIP(this object.Object, _ ...any) (any, error) {
	if trustProxy(this) {
		if fwd := headers(this).Get("X-Forwarded-For"); fwd != "" {
			return strings.TrimSpace(strings.Split(fwd, ",")[0]), nil
		}
	}
	addr, _ := get(this, "remoteAddr").(string)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host, nil
	}
	return addr, nil
}

func requestXHR(this object.Object, _ ...any) (any, error) {
	return strings.EqualFold(headers(this).Get("X-Requested-With"), "XMLHttpRequest"), nil
}

// get reads a property, treating errors as absence.
func get(this object.Object, name string) any {
	v, err := this.Get(name)
	if err != nil {
		return nil
	}
	return v
}

func headers(this object.Object) http.Header {
	if h, ok := get(this, "headers").(http.Header); ok {
		return h
	}
	return http.Header{}
}

func parsedURL(this object.Object) *url.URL {
	raw, _ := get(this, "url").(string)
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}

func trustProxy(this object.Object) bool {
	app, ok := get(this, "app").(*App)
	return ok && app.Enabled("trust proxy")
}
