package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Suhaibinator/SBridge/pkg/flow"
	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/Suhaibinator/SBridge/pkg/view"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNoSecret is returned when a session handler is configured without a signing secret.
	ErrNoSecret = errors.New("session secret is required")

	// ErrInvalidToken is returned when a session cookie fails verification.
	ErrInvalidToken = errors.New("invalid session token")
)

// CookieOptions controls the attributes of a session cookie.
type CookieOptions struct {
	Path     string // Cookie path; "/" if empty
	Domain   string // Cookie domain
	HTTPOnly bool   // Hide the cookie from scripts
	Secure   bool   // Send the cookie over HTTPS only
	SameSite string // "lax", "strict", "none" or empty
}

// SessionConfig defines the configuration of the Session handler.
type SessionConfig struct {
	Name              string        // Cookie name; "connect.sid" if empty
	Secret            string        // Key signing the session ID cookie
	Store             SessionStore  // Session storage; NewMemoryStore() if nil
	MaxAge            time.Duration // Cookie lifetime and store TTL; 0 means a browser-session cookie kept for 24h
	Resave            bool          // Save the session even when no handler changed it
	SaveUninitialized bool          // Save new sessions even when no handler wrote to them
	Cookie            CookieOptions // Cookie attributes
	Logger            *zap.Logger   // Logger for store errors raised while the response is written
}

// sessionClaims is the signed payload of a session ID cookie.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// Session loads a server-side session into req.session and its ID into
// req.sessionID. The session is saved, and the cookie set, right before the
// response headers are written, so handlers after the run still see a
// mutable session. Setting req.session to nil destroys the session.
func Session(config SessionConfig) (flow.Handler, error) {
	if config.Secret == "" {
		return nil, ErrNoSecret
	}
	if config.Name == "" {
		config.Name = "connect.sid"
	}
	if config.Store == nil {
		config.Store = NewMemoryStore()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	ttl := config.MaxAge
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	signer := newSigner(config.Secret)

	return func(req, res *view.View, next flow.Done) {
		if recordProp(req, "session") != nil {
			next(nil)
			return
		}
		ctx := requestContext(req)

		var (
			id    string
			data  object.Record
			isNew = true
		)
		if token, ok := requestCookies(req)[config.Name].(string); ok {
			claims := &sessionClaims{}
			if err := signer.parse(token, claims); err == nil && claims.ID != "" {
				stored, err := config.Store.Get(ctx, claims.ID)
				if err != nil {
					next(err)
					return
				}
				if stored != nil {
					id, data, isNew = claims.ID, stored, false
				}
			}
		}
		if data == nil {
			id, data = uuid.NewString(), object.NewRecord()
		}
		original, err := json.Marshal(data)
		if err != nil {
			next(fmt.Errorf("encode session: %w", err))
			return
		}

		if err := req.Set("sessionID", id); err != nil {
			next(err)
			return
		}
		if err := req.Set("session", data); err != nil {
			next(err)
			return
		}

		_, err = res.Call("beforeHeaders", func() {
			commitSession(context.WithoutCancel(ctx), config, signer, ttl, req, res, original, isNew)
		})
		next(err)
	}, nil
}

// commitSession persists the session as it is when the headers go out.
func commitSession(ctx context.Context, config SessionConfig, signer *signer, ttl time.Duration, req, res *view.View, original []byte, isNew bool) {
	logger := config.Logger
	id := stringProp(req, "sessionID")

	current := recordProp(req, "session")
	if current == nil {
		if err := config.Store.Destroy(ctx, id); err != nil {
			logger.Error("Failed to destroy session", zap.String("session_id", id), zap.Error(err))
		}
		if !isNew {
			if _, err := res.Call("clearCookie", config.Name, cookieRecord(config.Cookie, 0)); err != nil {
				logger.Error("Failed to clear session cookie", zap.Error(err))
			}
		}
		return
	}

	encoded, err := json.Marshal(current)
	if err != nil {
		logger.Error("Failed to encode session", zap.String("session_id", id), zap.Error(err))
		return
	}
	modified := !bytes.Equal(encoded, original)
	if isNew && !modified && !config.SaveUninitialized {
		return
	}
	if !isNew && !modified && !config.Resave {
		return
	}

	if err := config.Store.Set(ctx, id, current, ttl); err != nil {
		logger.Error("Failed to save session", zap.String("session_id", id), zap.Error(err))
		return
	}

	token, err := signer.sign(&sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       id,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	})
	if err != nil {
		logger.Error("Failed to sign session cookie", zap.Error(err))
		return
	}
	if _, err := res.Call("cookie", config.Name, token, cookieRecord(config.Cookie, config.MaxAge)); err != nil {
		logger.Error("Failed to set session cookie", zap.Error(err))
	}
}

// cookieRecord converts CookieOptions to the options record res.cookie takes.
func cookieRecord(opts CookieOptions, maxAge time.Duration) object.Record {
	r := object.Record{
		"path":     opts.Path,
		"domain":   opts.Domain,
		"httpOnly": opts.HTTPOnly,
		"secure":   opts.Secure,
		"sameSite": opts.SameSite,
	}
	if maxAge > 0 {
		r["maxAge"] = int(maxAge / time.Millisecond)
	}
	return r
}

// requestCookies returns req.cookies, parsing the Cookie header when no
// cookie parser ran before.
func requestCookies(req *view.View) object.Record {
	if cookies := recordProp(req, "cookies"); cookies != nil {
		return cookies
	}
	header, _ := req.Call("get", "Cookie")
	line, _ := header.(string)
	return ParseCookies(line)
}

// requestContext returns the context of the native request, if it has one.
func requestContext(req *view.View) context.Context {
	v, err := req.Call("context")
	if err == nil {
		if ctx, ok := v.(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// signer signs and verifies cookie payloads as HS256 JWTs.
type signer struct {
	key []byte
}

func newSigner(secret string) *signer {
	return &signer{key: []byte(secret)}
}

func (s *signer) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *signer) parse(token string, claims jwt.Claims) error {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
