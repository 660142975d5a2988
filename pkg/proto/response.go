package proto

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Suhaibinator/SBridge/pkg/object"
)

// Response returns the response capability prototype.
func Response() *object.Prototype {
	return object.NewPrototype("response").
		Method("status", responseStatus).
		Method("set", responseSet).
		Method("header", responseSet).
		Method("get", responseGet).
		Method("append", responseAppend).
		Method("type", responseType).
		Method("cookie", responseCookie).
		Method("clearCookie", responseClearCookie).
		Method("json", responseJSON).
		Method("send", responseSend).
		Method("sendStatus", responseSendStatus).
		Method("location", responseLocation).
		Method("redirect", responseRedirect)
}

func responseStatus(this object.Object, args ...any) (any, error) {
	code, ok := toInt(first(args))
	if !ok {
		return nil, fmt.Errorf("status: invalid status code %v", first(args))
	}
	if err := this.Set("statusCode", code); err != nil {
		return nil, err
	}
	return this, nil
}

// responseSet sets one header, or every header in a Record when called with a single Record.
func responseSet(this object.Object, args ...any) (any, error) {
	if fields, ok := first(args).(object.Record); ok {
		for _, k := range fields.Keys() {
			if _, err := object.Call(this, "setHeader", k, fields[k]); err != nil {
				return nil, err
			}
		}
		return this, nil
	}
	if len(args) < 2 {
		return nil, fmt.Errorf("set: expected a field and a value")
	}
	if _, err := object.Call(this, "setHeader", firstString(args), args[1]); err != nil {
		return nil, err
	}
	return this, nil
}

func responseGet(this object.Object, args ...any) (any, error) {
	return object.Call(this, "getHeader", firstString(args))
}

func responseAppend(this object.Object, args ...any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("append: expected a field and a value")
	}
	values, ok := args[1].([]string)
	if !ok {
		values = []string{fmt.Sprint(args[1])}
	}
	for _, v := range values {
		if _, err := object.Call(this, "appendHeader", firstString(args), v); err != nil {
			return nil, err
		}
	}
	return this, nil
}

// responseType sets Content-Type from a MIME type or a file extension.
func responseType(this object.Object, args ...any) (any, error) {
	t := firstString(args)
	if !strings.Contains(t, "/") {
		if byExt := mime.TypeByExtension("." + strings.TrimPrefix(t, ".")); byExt != "" {
			t = byExt
		} else {
			t = "application/octet-stream"
		}
	}
	if _, err := object.Call(this, "setHeader", "Content-Type", t); err != nil {
		return nil, err
	}
	return this, nil
}

// responseCookie appends a Set-Cookie header. Non-string values are stored as
// "j:" followed by their JSON encoding. Values are percent-encoded and maxAge
// is in milliseconds.
func responseCookie(this object.Object, args ...any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("cookie: expected a name and a value")
	}
	value, ok := args[1].(string)
	if !ok {
		b, err := json.Marshal(args[1])
		if err != nil {
			return nil, fmt.Errorf("cookie: %w", err)
		}
		value = "j:" + string(b)
	}

	opts, _ := arg(args, 2).(object.Record)
	c, err := buildCookie(firstString(args), value, opts)
	if err != nil {
		return nil, err
	}
	if _, err := object.Call(this, "appendHeader", "Set-Cookie", c.String()); err != nil {
		return nil, err
	}
	return this, nil
}

func responseClearCookie(this object.Object, args ...any) (any, error) {
	opts := object.NewRecord()
	if given, ok := arg(args, 1).(object.Record); ok {
		for k, v := range given {
			opts[k] = v
		}
	}
	delete(opts, "maxAge")
	opts["expires"] = time.Unix(0, 0)
	return responseCookie(this, firstString(args), "", opts)
}

func buildCookie(name, value string, opts object.Record) (*http.Cookie, error) {
	c := &http.Cookie{Name: name, Value: url.PathEscape(value), Path: "/"}
	if opts == nil {
		return c, nil
	}
	if p := opts.String("path"); p != "" {
		c.Path = p
	}
	c.Domain = opts.String("domain")
	c.HttpOnly, _ = opts["httpOnly"].(bool)
	c.Secure, _ = opts["secure"].(bool)
	if ms, ok := toInt(opts["maxAge"]); ok {
		c.MaxAge = ms / 1000
		c.Expires = time.Now().Add(time.Duration(ms) * time.Millisecond)
	}
	if exp, ok := opts["expires"].(time.Time); ok {
		c.Expires = exp
	}
	switch strings.ToLower(opts.String("sameSite")) {
	case "":
	case "lax":
		c.SameSite = http.SameSiteLaxMode
	case "strict":
		c.SameSite = http.SameSiteStrictMode
	case "none":
		c.SameSite = http.SameSiteNoneMode
	default:
		return nil, fmt.Errorf("cookie: invalid sameSite %q", opts.String("sameSite"))
	}
	return c, nil
}

func responseJSON(this object.Object, args ...any) (any, error) {
	body, err := json.Marshal(first(args))
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if err := defaultContentType(this, "application/json; charset=utf-8"); err != nil {
		return nil, err
	}
	if _, err := object.Call(this, "end", body); err != nil {
		return nil, err
	}
	return this, nil
}

// responseSend ends the response with a string, bytes, or a JSON-encoded value.
func responseSend(this object.Object, args ...any) (any, error) {
	switch body := first(args).(type) {
	case nil:
		_, err := object.Call(this, "end")
		return this, err
	case string:
		if err := defaultContentType(this, "text/html; charset=utf-8"); err != nil {
			return nil, err
		}
		_, err := object.Call(this, "end", body)
		return this, err
	case []byte:
		if err := defaultContentType(this, "application/octet-stream"); err != nil {
			return nil, err
		}
		_, err := object.Call(this, "end", body)
		return this, err
	}
	return responseJSON(this, args...)
}

func responseSendStatus(this object.Object, args ...any) (any, error) {
	code, ok := toInt(first(args))
	if !ok {
		return nil, fmt.Errorf("sendStatus: invalid status code %v", first(args))
	}
	if _, err := responseStatus(this, code); err != nil {
		return nil, err
	}
	text := http.StatusText(code)
	if text == "" {
		text = fmt.Sprint(code)
	}
	return responseSend(this, text)
}

// responseLocation sets the Location header. "back" resolves to the request's Referer.
func responseLocation(this object.Object, args ...any) (any, error) {
	loc := firstString(args)
	if loc == "back" {
		loc = "/"
		if req, ok := get(this, "req").(object.Object); ok {
			if ref := headers(req).Get("Referer"); ref != "" {
				loc = ref
			}
		}
	}
	if _, err := object.Call(this, "setHeader", "Location", loc); err != nil {
		return nil, err
	}
	return this, nil
}

// responseRedirect accepts (url) or (status, url). The status defaults to 302.
func responseRedirect(this object.Object, args ...any) (any, error) {
	code := http.StatusFound
	loc := firstString(args)
	if c, ok := toInt(first(args)); ok {
		code = c
		loc, _ = arg(args, 1).(string)
	}
	if _, err := responseLocation(this, loc); err != nil {
		return nil, err
	}
	if _, err := responseStatus(this, code); err != nil {
		return nil, err
	}
	location, _ := object.Call(this, "getHeader", "Location")
	if err := defaultContentType(this, "text/plain; charset=utf-8"); err != nil {
		return nil, err
	}
	_, err := object.Call(this, "end", fmt.Sprintf("%s. Redirecting to %v", http.StatusText(code), location))
	return this, err
}

func defaultContentType(this object.Object, ct string) error {
	current, _ := object.Call(this, "getHeader", "Content-Type")
	if s, _ := current.(string); s != "" {
		return nil
	}
	_, err := object.Call(this, "setHeader", "Content-Type", ct)
	return err
}

func first(args []any) any {
	return arg(args, 0)
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
