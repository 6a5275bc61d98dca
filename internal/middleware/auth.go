// Package middleware provides the request processing shared by every
// protected route: token authentication, role authorization and the
// auth-endpoint rate limiter. There is a single authentication
// implementation; the transport a token arrives over (cookie or
// bearer header) is an explicit strategy, not a second middleware.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avetra/storegate/internal/model"
	"github.com/avetra/storegate/internal/repository"
	"github.com/avetra/storegate/internal/session"
)

// Context keys populated after successful authentication.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// TokenSource extracts the raw access token from a request. It
// reports false when the transport carried no token at all.
type TokenSource func(c echo.Context) (string, bool)

// TokenFromCookie reads the access token cookie. This is the default
// transport for browser clients.
func TokenFromCookie(c echo.Context) (string, bool) {
	ck, err := c.Cookie(session.AccessCookie)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

// TokenFromBearer reads an Authorization: Bearer header. Kept for the
// legacy API clients that predate cookie sessions.
func TokenFromBearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimPrefix(auth, "Bearer ")
	return raw, raw != ""
}

// IdentityLoader loads a fresh user record when a route needs current
// attributes rather than the snapshot baked into the token.
// *repository.UserRepo satisfies it.
type IdentityLoader interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

type authConfig struct {
	source TokenSource
	users  IdentityLoader
}

// AuthOption customizes Authenticate.
type AuthOption func(*authConfig)

// WithTokenSource overrides the cookie transport.
func WithTokenSource(src TokenSource) AuthOption {
	return func(cfg *authConfig) { cfg.source = src }
}

// WithIdentity makes the middleware load the identity record on every
// request: deleted accounts fail authentication even while their
// token is still unexpired, and non-ACTIVE accounts are rejected.
func WithIdentity(users IdentityLoader) AuthOption {
	return func(cfg *authConfig) { cfg.users = users }
}

// Authenticate verifies the access token and attaches the caller's
// identity to the context. Extraction, verification and the optional
// identity load run strictly in that order, and the first failure
// short-circuits the request. Expired tokens answer 401 with code
// "token_expired" so clients can attempt a silent refresh.
func Authenticate(iss *session.Issuer, opts ...AuthOption) echo.MiddlewareFunc {
	cfg := authConfig{source: TokenFromCookie}
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := cfg.source(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing token"})
			}
			claims, err := iss.Verify(raw)
			if err != nil {
				if errors.Is(err, session.ErrExpiredToken) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token expired", "code": "token_expired"})
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			if cfg.users != nil {
				ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
				defer cancel()
				u, err := cfg.users.GetByID(ctx, claims.UserID)
				if err != nil {
					if errors.Is(err, repository.ErrNotFound) {
						return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown account"})
					}
					return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "identity lookup failed"})
				}
				if !u.CanSignIn() {
					return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
				}
			}
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}

// RequireRole enforces that the authenticated caller's role is a
// member of the allowed set. Routes state their exact permitted set;
// there is no wildcard and no hierarchy. Must run after Authenticate.
func RequireRole(allowed model.RoleSet) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(model.Role)
			if !ok || !allowed.Contains(role) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
