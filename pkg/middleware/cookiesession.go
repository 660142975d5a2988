package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Suhaibinator/SBridge/pkg/flow"
	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/Suhaibinator/SBridge/pkg/view"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// CookieSessionConfig defines the configuration of the CookieSession handler.
type CookieSessionConfig struct {
	Name   string        // Cookie name; "session" if empty
	Secret string        // Key signing the cookie payload
	MaxAge time.Duration // Cookie and token lifetime; 0 means a browser-session cookie
	Cookie CookieOptions // Cookie attributes
	Logger *zap.Logger   // Logger for errors raised while the response is written
}

// cookieSessionClaims carries the whole session inside the signed cookie.
type cookieSessionClaims struct {
	Data map[string]any `json:"data"`
	jwt.RegisteredClaims
}

// CookieSession stores the whole session in a signed cookie and exposes it
// as req.session. The cookie is rewritten only when the session changed;
// setting req.session to nil clears it.
func CookieSession(config CookieSessionConfig) (flow.Handler, error) {
	if config.Secret == "" {
		return nil, ErrNoSecret
	}
	if config.Name == "" {
		config.Name = "session"
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	signer := newSigner(config.Secret)

	return func(req, res *view.View, next flow.Done) {
		if recordProp(req, "session") != nil {
			next(nil)
			return
		}

		data := object.NewRecord()
		hadCookie := false
		if token, ok := requestCookies(req)[config.Name].(string); ok {
			claims := &cookieSessionClaims{}
			if err := signer.parse(token, claims); err == nil {
				hadCookie = true
				if claims.Data != nil {
					data = object.Record(claims.Data)
				}
			} else {
				config.Logger.Debug("Ignoring invalid session cookie", zap.Error(err))
			}
		}
		original, err := json.Marshal(data)
		if err != nil {
			next(fmt.Errorf("encode session: %w", err))
			return
		}
		if err := req.Set("session", data); err != nil {
			next(err)
			return
		}

		_, err = res.Call("beforeHeaders", func() {
			commitCookieSession(config, signer, req, res, original, hadCookie)
		})
		next(err)
	}, nil
}

func commitCookieSession(config CookieSessionConfig, signer *signer, req, res *view.View, original []byte, hadCookie bool) {
	logger := config.Logger

	current := recordProp(req, "session")
	if current == nil {
		if hadCookie {
			if _, err := res.Call("clearCookie", config.Name, cookieRecord(config.Cookie, 0)); err != nil {
				logger.Error("Failed to clear session cookie", zap.Error(err))
			}
		}
		return
	}

	encoded, err := json.Marshal(current)
	if err != nil {
		logger.Error("Failed to encode session", zap.Error(err))
		return
	}
	if bytes.Equal(encoded, original) {
		return
	}
	if !hadCookie && len(current) == 0 {
		return
	}

	claims := &cookieSessionClaims{
		Data: current,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if config.MaxAge > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(config.MaxAge))
	}
	token, err := signer.sign(claims)
	if err != nil {
		logger.Error("Failed to sign session cookie", zap.Error(err))
		return
	}
	if _, err := res.Call("cookie", config.Name, token, cookieRecord(config.Cookie, config.MaxAge)); err != nil {
		logger.Error("Failed to set session cookie", zap.Error(err))
	}
}
