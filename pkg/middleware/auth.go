package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/Suhaibinator/SBridge/pkg/flow"
	"github.com/Suhaibinator/SBridge/pkg/native"
	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/Suhaibinator/SBridge/pkg/view"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized is signalled by handlers that rejected the request with 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoUser is returned by req.logIn when called without a user.
	ErrNoUser = errors.New("logIn requires a user")
)

// sessionAuthKey is the session key holding the serialized user.
const sessionAuthKey = "auth"

// AuthHelperNames are the request helpers Install adds to the native request type.
var AuthHelperNames = []string{"login", "logIn", "logout", "logOut", "isAuthenticated", "isUnauthenticated"}

// AuthConfig defines how users are kept in the session.
type AuthConfig struct {
	// Serialize returns the key stored in the session for a user.
	// Users are not kept in the session when nil.
	Serialize func(user any) (string, error)

	// Deserialize loads a user from its session key. A nil user with a nil
	// error means the user no longer exists.
	Deserialize func(ctx context.Context, key string) (any, error)

	// Logger for authentication failures
	Logger *zap.Logger
}

// Auth provides login state on top of the session handlers.
//
// Its helpers are installed on the native request type itself, the way
// authentication libraries extend the transport's request object. They read
// and write the user through their receiver, so they only work when bound to
// the request view, which the default binding table does.
type Auth struct {
	config AuthConfig
}

// NewAuth creates an Auth.
func NewAuth(config AuthConfig) *Auth {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Auth{config: config}
}

// Install adds the helpers to every native.Request. Helpers installed by a
// previous Install are replaced.
func (a *Auth) Install() {
	helpers := map[string]object.Func{
		"login":             a.logIn,
		"logIn":             a.logIn,
		"logout":            a.logOut,
		"logOut":            a.logOut,
		"isAuthenticated":   isAuthenticated,
		"isUnauthenticated": isUnauthenticated,
	}
	for name, fn := range helpers {
		object.PatchType((*native.Request)(nil), name, fn)
	}
}

// Uninstall removes the helpers from native.Request.
func (a *Auth) Uninstall() {
	for _, name := range AuthHelperNames {
		object.UnpatchType((*native.Request)(nil), name)
	}
}

func (a *Auth) logIn(this object.Object, args ...any) (any, error) {
	var user any
	if len(args) > 0 {
		user = args[0]
	}
	if user == nil {
		return nil, ErrNoUser
	}
	if err := this.Set("user", user); err != nil {
		return nil, err
	}

	session := recordProp(this, "session")
	if session == nil || a.config.Serialize == nil {
		return nil, nil
	}
	key, err := a.config.Serialize(user)
	if err != nil {
		return nil, err
	}
	session[sessionAuthKey] = object.Record{"user": key}
	return nil, nil
}

func (a *Auth) logOut(this object.Object, _ ...any) (any, error) {
	if err := this.Set("user", nil); err != nil {
		return nil, err
	}
	if session := recordProp(this, "session"); session != nil {
		delete(session, sessionAuthKey)
	}
	return nil, nil
}

func isAuthenticated(this object.Object, _ ...any) (any, error) {
	user, err := this.Get("user")
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

func isUnauthenticated(this object.Object, args ...any) (any, error) {
	ok, err := isAuthenticated(this, args...)
	if err != nil {
		return false, err
	}
	return !ok.(bool), nil
}

// Initialize restores req.user from the session. It must run after a session handler.
func (a *Auth) Initialize() flow.Handler {
	return func(req, res *view.View, next flow.Done) {
		session := recordProp(req, "session")
		if session == nil || a.config.Deserialize == nil {
			next(nil)
			return
		}
		key, _ := asRecord(session[sessionAuthKey])["user"].(string)
		if key == "" {
			next(nil)
			return
		}

		user, err := a.config.Deserialize(requestContext(req), key)
		if err != nil {
			next(err)
			return
		}
		if user == nil {
			delete(session, sessionAuthKey)
			next(nil)
			return
		}
		next(req.Set("user", user))
	}
}

// BasicAuth authenticates HTTP Basic credentials with verify and logs the
// user in. Requests without valid credentials are answered with 401.
func (a *Auth) BasicAuth(realm string, verify func(username, password string) (any, bool)) flow.Handler {
	return func(req, res *view.View, next flow.Done) {
		header, _ := req.Call("get", "Authorization")
		line, _ := header.(string)
		username, password, ok := (&http.Request{Header: http.Header{"Authorization": {line}}}).BasicAuth()
		if ok {
			if user, valid := verify(username, password); valid {
				_, err := req.Call("logIn", user)
				next(err)
				return
			}
		}

		a.config.Logger.Warn("Authentication failed",
			zap.String("method", stringProp(req, "method")),
			zap.String("path", stringProp(req, "path")),
			zap.String("remote_addr", stringProp(req, "remoteAddr")),
		)
		if _, err := res.Call("set", "WWW-Authenticate", `Basic realm="`+realm+`"`); err != nil {
			next(err)
			return
		}
		if _, err := res.Call("sendStatus", http.StatusUnauthorized); err != nil {
			next(err)
			return
		}
		next(ErrUnauthorized)
	}
}

// Required answers unauthenticated requests with 401 and stops the run.
func (a *Auth) Required() flow.Handler {
	return func(req, res *view.View, next flow.Done) {
		authenticated, err := req.Call("isAuthenticated")
		if err != nil {
			next(err)
			return
		}
		if ok, _ := authenticated.(bool); ok {
			next(nil)
			return
		}
		if _, err := res.Call("sendStatus", http.StatusUnauthorized); err != nil {
			next(err)
			return
		}
		next(ErrUnauthorized)
	}
}
