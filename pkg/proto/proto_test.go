package proto

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/Suhaibinator/SBridge/pkg/native"
	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/Suhaibinator/SBridge/pkg/view"
)

// newPair builds a request and response view the way a run does.
func newPair(t *testing.T, r *http.Request, app *App) (*view.View, *view.View, *httptest.ResponseRecorder) {
	t.Helper()
	rr := httptest.NewRecorder()

	nreq, _ := object.Reflect(native.NewRequest(r))
	nres, _ := object.Reflect(native.NewResponse(rr))
	req, err := view.New(nreq, nil, Request())
	if err != nil {
		t.Fatalf("Failed to create request view: %v", err)
	}
	res, err := view.New(nres, nil, Response())
	if err != nil {
		t.Fatalf("Failed to create response view: %v", err)
	}
	_ = req.Set("app", app)
	_ = req.Set("res", res)
	_ = res.Set("app", app)
	_ = res.Set("req", req)
	return req, res, rr
}

// TestApp tests the shared application handle
func TestApp(t *testing.T) {
	app := NewApp(object.Record{"trust proxy": true, "custom": "x"})

	if !app.Enabled("trust proxy") || app.Enabled("x-powered-by") {
		t.Errorf("Unexpected Enabled results")
	}
	if app.Setting("env") != "production" || app.Setting("custom") != "x" {
		t.Errorf("Expected defaults layered under the given settings")
	}
	if got, _ := object.Call(app, "get", "custom"); got != "x" {
		t.Errorf("Expected app.get to return %q, got %v", "x", got)
	}
	if got, _ := object.Call(app, "disabled", "x-powered-by"); got != true {
		t.Errorf("Expected x-powered-by to be disabled")
	}

	settings, _ := app.Get("settings")
	settings.(object.Record)["env"] = "test"
	if app.Setting("env") != "production" {
		t.Errorf("Expected settings to be returned as a copy")
	}

	if err := app.Set("settings", nil); !errors.Is(err, ErrSharedContextMutation) {
		t.Errorf("Expected ErrSharedContextMutation, got %v", err)
	}
}

// TestRequestGetters tests the request prototype getters
func TestRequestGetters(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com:8080/search?q=go&tag=a&tag=b", nil)
	r.RemoteAddr = "192.0.2.1:4321"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "public.example.org")
	r.Header.Set("X-Requested-With", "XMLHttpRequest")
	r.Header.Set("Referer", "/previous")

	req, _, _ := newPair(t, r, NewApp(nil))

	expected := map[string]any{
		"path":        "/search",
		"originalUrl": "/search?q=go&tag=a&tag=b",
		"hostname":    "example.com",
		"protocol":    "http",
		"secure":      false,
		"ip":          "192.0.2.1",
		"xhr":         true,
	}
	for name, want := range expected {
		if got, _ := req.Get(name); got != want {
			t.Errorf("Expected %s to be %v, got %v", name, want, got)
		}
	}

	query, _ := req.Get("query")
	if !reflect.DeepEqual(query, object.Record{"q": "go", "tag": []string{"a", "b"}}) {
		t.Errorf("Unexpected query %v", query)
	}
	if got, _ := req.Call("get", "referrer"); got != "/previous" {
		t.Errorf("Expected referrer to alias referer, got %v", got)
	}

	// The same request behind a trusted proxy
	req, _, _ = newPair(t, r, NewApp(object.Record{"trust proxy": true}))
	trusted := map[string]any{
		"hostname": "public.example.org",
		"protocol": "https",
		"secure":   true,
		"ip":       "203.0.113.9",
	}
	for name, want := range trusted {
		if got, _ := req.Get(name); got != want {
			t.Errorf("Expected trusted %s to be %v, got %v", name, want, got)
		}
	}
}

// TestRequestMethods tests param and is
func TestRequestMethods(t *testing.T) {
	r := httptest.NewRequest("POST", "/users/7?id=9&sort=asc", nil)
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	nreq := native.NewRequest(r)
	nreq.Params["id"] = "7"

	o, _ := object.Reflect(nreq)
	req, _ := view.New(o, nil, Request())

	if got, _ := req.Call("param", "id"); got != "7" {
		t.Errorf("Expected route params to win, got %v", got)
	}
	if got, _ := req.Call("param", "sort"); got != "asc" {
		t.Errorf("Expected query fallback, got %v", got)
	}

	tests := []struct {
		types    []any
		expected any
	}{
		{[]any{"json"}, "json"},
		{[]any{"html", "application/*"}, "application/*"},
		{[]any{"application/json"}, "application/json"},
		{[]any{"*/json"}, "*/json"},
		{[]any{"text/html"}, false},
	}
	for _, tt := range tests {
		if got, _ := req.Call("is", tt.types...); got != tt.expected {
			t.Errorf("Expected is(%v) to be %v, got %v", tt.types, tt.expected, got)
		}
	}
}

// TestResponseHelpers tests status, set, get, append and type
func TestResponseHelpers(t *testing.T) {
	_, res, rr := newPair(t, httptest.NewRequest("GET", "/", nil), NewApp(nil))

	got, err := res.Call("status", 201)
	if err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}
	if got != res {
		t.Errorf("Expected status to return the view for chaining")
	}
	if _, err := res.Call("set", object.Record{"X-A": "1", "X-B": 2}); err != nil {
		t.Fatalf("Failed to set headers: %v", err)
	}
	if _, err := res.Call("append", "X-A", []string{"2", "3"}); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if _, err := res.Call("type", "html"); err != nil {
		t.Fatalf("Failed to set type: %v", err)
	}
	if got, _ := res.Call("get", "X-B"); got != "2" {
		t.Errorf("Expected X-B 2, got %v", got)
	}
	if _, err := res.Call("status", "bad"); err == nil {
		t.Errorf("Expected an invalid status to fail")
	}

	if _, err := res.Call("send", "<p>hi</p>"); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status code %d, got %d", http.StatusCreated, rr.Code)
	}
	if !reflect.DeepEqual(rr.Header().Values("X-A"), []string{"1", "2", "3"}) {
		t.Errorf("Unexpected X-A values %v", rr.Header().Values("X-A"))
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Expected an html content type, got %q", rr.Header().Get("Content-Type"))
	}
	if rr.Body.String() != "<p>hi</p>" {
		t.Errorf("Expected body %q, got %q", "<p>hi</p>", rr.Body.String())
	}
}

// TestResponseJSON tests json and send with structured values
func TestResponseJSON(t *testing.T) {
	_, res, rr := newPair(t, httptest.NewRequest("GET", "/", nil), NewApp(nil))

	if _, err := res.Call("send", map[string]any{"ok": true}); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	if rr.Header().Get("Content-Type") != "application/json; charset=utf-8" {
		t.Errorf("Expected a json content type, got %q", rr.Header().Get("Content-Type"))
	}
	if rr.Body.String() != `{"ok":true}` {
		t.Errorf("Expected body %q, got %q", `{"ok":true}`, rr.Body.String())
	}

	// The response is finished
	if _, err := res.Call("json", 1); !errors.Is(err, native.ErrWriteAfterEnd) {
		t.Errorf("Expected ErrWriteAfterEnd, got %v", err)
	}
}

// TestSendStatus tests sendStatus
func TestSendStatus(t *testing.T) {
	_, res, rr := newPair(t, httptest.NewRequest("GET", "/", nil), NewApp(nil))
	if _, err := res.Call("sendStatus", 204); err != nil {
		t.Fatalf("Failed to send status: %v", err)
	}
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status code %d, got %d", http.StatusNoContent, rr.Code)
	}
}

// TestCookies tests cookie and clearCookie
func TestCookies(t *testing.T) {
	_, res, rr := newPair(t, httptest.NewRequest("GET", "/", nil), NewApp(nil))

	opts := object.Record{"httpOnly": true, "maxAge": 60000, "sameSite": "strict", "path": "/app"}
	if _, err := res.Call("cookie", "sid", "a b", opts); err != nil {
		t.Fatalf("Failed to set cookie: %v", err)
	}
	if _, err := res.Call("cookie", "prefs", map[string]any{"dark": true}); err != nil {
		t.Fatalf("Failed to set json cookie: %v", err)
	}
	if _, err := res.Call("clearCookie", "old"); err != nil {
		t.Fatalf("Failed to clear cookie: %v", err)
	}
	if _, err := res.Call("cookie", "bad", "x", object.Record{"sameSite": "sideways"}); err == nil {
		t.Errorf("Expected an invalid sameSite to fail")
	}
	_, _ = res.Call("end")

	cookies := rr.Result().Cookies()
	if len(cookies) != 3 {
		t.Fatalf("Expected 3 cookies, got %d", len(cookies))
	}

	sid := cookies[0]
	if sid.Name != "sid" || sid.Value != "a%20b" {
		t.Errorf("Expected percent-encoded sid cookie, got %s=%s", sid.Name, sid.Value)
	}
	if !sid.HttpOnly || sid.MaxAge != 60 || sid.Path != "/app" || sid.SameSite != http.SameSiteStrictMode {
		t.Errorf("Unexpected sid attributes: %+v", sid)
	}

	if cookies[1].Value != "j:%7B%22dark%22:true%7D" {
		t.Errorf("Expected json cookie value, got %q", cookies[1].Value)
	}

	old := cookies[2]
	if old.Value != "" || old.Expires.Unix() != 0 {
		t.Errorf("Expected a cleared cookie expiring at the epoch, got %+v", old)
	}
}

// TestRedirect tests location and redirect
func TestRedirect(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Referer", "/from")
	_, res, rr := newPair(t, r, NewApp(nil))

	if _, err := res.Call("redirect", 301, "back"); err != nil {
		t.Fatalf("Failed to redirect: %v", err)
	}
	if rr.Code != http.StatusMovedPermanently {
		t.Errorf("Expected status code %d, got %d", http.StatusMovedPermanently, rr.Code)
	}
	if rr.Header().Get("Location") != "/from" {
		t.Errorf("Expected location %q, got %q", "/from", rr.Header().Get("Location"))
	}
	if rr.Body.String() != "Moved Permanently. Redirecting to /from" {
		t.Errorf("Unexpected body %q", rr.Body.String())
	}

	_, res, rr = newPair(t, httptest.NewRequest("GET", "/", nil), NewApp(nil))
	_, _ = res.Call("redirect", "/login")
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/login" {
		t.Errorf("Expected a 302 to /login, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
}
