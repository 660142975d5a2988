package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/Suhaibinator/SBridge/pkg/flow"
	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/Suhaibinator/SBridge/pkg/view"
	"go.uber.org/zap"
)

var testUsers = map[string]string{"alice": "secret"}

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	auth := NewAuth(AuthConfig{
		Serialize: func(user any) (string, error) {
			return user.(string), nil
		},
		Deserialize: func(_ context.Context, key string) (any, error) {
			if _, ok := testUsers[key]; !ok {
				return nil, nil
			}
			return key, nil
		},
	})
	auth.Install()
	t.Cleanup(auth.Uninstall)
	return auth
}

func verifyUser(username, password string) (any, bool) {
	expected, ok := testUsers[username]
	return username, ok && expected == password
}

func basicRequest(username, password string) *http.Request {
	r := httptest.NewRequest("POST", "/login", nil)
	r.SetBasicAuth(username, password)
	return r
}

// TestBasicAuthLogsIn tests a successful login through Basic credentials
func TestBasicAuthLogsIn(t *testing.T) {
	auth := newTestAuth(t)
	bridge := newTestBridge()
	session := newSession(t, SessionConfig{Store: NewMemoryStore()})

	var authenticated any
	check := func(req, _ *view.View, next flow.Done) {
		var err error
		authenticated, err = req.Call("isAuthenticated")
		next(err)
	}

	ex := serve(t, bridge, basicRequest("alice", "secret"), session, auth.BasicAuth("test", verifyUser), check)
	if ex.err != nil {
		t.Fatalf("Expected run to complete, got %v", ex.err)
	}
	if user, _ := ex.result.Request.Get("user"); user != "alice" {
		t.Errorf("Expected user alice, got %v", user)
	}
	if authenticated != true {
		t.Errorf("Expected isAuthenticated to be true")
	}
	data, _ := ex.result.Request.Get("session")
	if !reflect.DeepEqual(data.(object.Record)[sessionAuthKey], object.Record{"user": "alice"}) {
		t.Errorf("Expected the user key in the session, got %v", data)
	}
	if responseCookie(ex.rr, "connect.sid") == nil {
		t.Errorf("Expected the login to persist the session")
	}

	// The native request never gains a user
	o, _ := object.Reflect(ex.nreq)
	if v, _ := o.Get("user"); v != nil {
		t.Errorf("Expected no user on the native request, got %v", v)
	}
}

// TestBasicAuthRejects tests that bad credentials get 401
func TestBasicAuthRejects(t *testing.T) {
	auth := newTestAuth(t)
	bridge := newTestBridge()

	for _, r := range []*http.Request{basicRequest("alice", "wrong"), httptest.NewRequest("POST", "/login", nil)} {
		ex := serve(t, bridge, r, auth.BasicAuth("test", verifyUser))
		if !errors.Is(ex.err, ErrUnauthorized) {
			t.Errorf("Expected ErrUnauthorized, got %v", ex.err)
		}
		if ex.rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected status code %d, got %d", http.StatusUnauthorized, ex.rr.Code)
		}
		if ex.rr.Header().Get("WWW-Authenticate") != `Basic realm="test"` {
			t.Errorf("Unexpected WWW-Authenticate %q", ex.rr.Header().Get("WWW-Authenticate"))
		}
	}
}

// TestAuthAcrossRequests tests that Initialize restores the user and logOut forgets it
func TestAuthAcrossRequests(t *testing.T) {
	auth := newTestAuth(t)
	bridge := newTestBridge()
	session := newSession(t, SessionConfig{Store: NewMemoryStore()})

	login := serve(t, bridge, basicRequest("alice", "secret"), session, auth.BasicAuth("test", verifyUser))
	cookie := responseCookie(login.rr, "connect.sid")
	if cookie == nil {
		t.Fatalf("Expected a session cookie")
	}

	me := serve(t, bridge, withCookie(cookie), session, auth.Initialize(), auth.Required())
	if me.err != nil {
		t.Fatalf("Expected the restored user to pass Required, got %v", me.err)
	}
	if user, _ := me.result.Request.Get("user"); user != "alice" {
		t.Errorf("Expected user alice, got %v", user)
	}

	logout := func(req, _ *view.View, next flow.Done) {
		_, err := req.Call("logOut")
		next(err)
	}
	out := serve(t, bridge, withCookie(cookie), session, auth.Initialize(), logout)
	if out.err != nil {
		t.Fatalf("Expected logout to complete, got %v", out.err)
	}
	if user, _ := out.result.Request.Get("user"); user != nil {
		t.Errorf("Expected no user after logout, got %v", user)
	}

	after := serve(t, bridge, withCookie(cookie), session, auth.Initialize(), auth.Required())
	if !errors.Is(after.err, ErrUnauthorized) || after.rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 after logout, got %v (%d)", after.err, after.rr.Code)
	}
}

// TestInitializeDropsUnknownUsers tests that a session naming a deleted user is cleaned up
func TestInitializeDropsUnknownUsers(t *testing.T) {
	auth := newTestAuth(t)
	bridge := newTestBridge()

	seed := func(req, _ *view.View, next flow.Done) {
		next(req.Set("session", object.Record{sessionAuthKey: object.Record{"user": "mallory"}}))
	}
	var remaining object.Record
	inspect := func(req, _ *view.View, next flow.Done) {
		remaining = recordProp(req, "session")
		next(nil)
	}

	ex := serve(t, bridge, httptest.NewRequest("GET", "/", nil), seed, auth.Initialize(), inspect)
	if ex.err != nil {
		t.Fatalf("Expected run to complete, got %v", ex.err)
	}
	if _, ok := remaining[sessionAuthKey]; ok {
		t.Errorf("Expected the stale auth entry to be removed")
	}
	if user, _ := ex.result.Request.Get("user"); user != nil {
		t.Errorf("Expected no user, got %v", user)
	}
}

// TestLogInRequiresUser tests logIn argument validation
func TestLogInRequiresUser(t *testing.T) {
	newTestAuth(t)
	call := func(req, _ *view.View, next flow.Done) {
		_, err := req.Call("login")
		next(err)
	}
	ex := serve(t, newTestBridge(), httptest.NewRequest("GET", "/", nil), call)
	if !errors.Is(ex.err, ErrNoUser) {
		t.Errorf("Expected ErrNoUser, got %v", ex.err)
	}
}

// TestAuthHelpersNeedViewBinding tests that the helpers fail when bound to the native request
func TestAuthHelpersNeedViewBinding(t *testing.T) {
	auth := newTestAuth(t)

	table := view.DefaultBindings()
	for _, name := range AuthHelperNames {
		table = table.With(name, view.BindNative)
	}
	bridge := flow.NewBridge(flow.Config{Logger: zap.NewNop(), Bindings: table})

	ex := serve(t, bridge, basicRequest("alice", "secret"), auth.BasicAuth("test", verifyUser))
	if !errors.Is(ex.err, object.ErrNoSuchProperty) {
		t.Errorf("Expected ErrNoSuchProperty from a natively bound logIn, got %v", ex.err)
	}
}
