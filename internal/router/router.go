// Package router defines how HTTP routes are registered for the API.
// Every protected route names its exact permitted role set here;
// there is no implicit hierarchy between roles.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/avetra/storegate/internal/handler"
	"github.com/avetra/storegate/internal/middleware"
	"github.com/avetra/storegate/internal/model"
	"github.com/avetra/storegate/internal/session"
	"github.com/avetra/storegate/internal/ws"
)

// anyRole is the full enumerated role set, used where any signed-in
// account is acceptable.
var anyRole = model.NewRoleSet(model.RoleUser, model.RoleVendor, model.RoleAdmin, model.RoleSuperAdmin)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check used by load balancers.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth wires the session endpoints. Unauthenticated
// operations live under /v1/auth; the credential-sensitive ones are
// additionally wrapped by the brute-force rate limiter.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, iss *session.Issuer, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	// Refresh validates its own cookie; no access-token middleware, an
	// expired access token is the very situation it exists for.
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.Authenticate(iss))
	auth.Use(middleware.RequireRole(anyRole))
	auth.GET("/me", a.Me)
}

// RegisterOTP wires the email verification flow. Both endpoints need
// a session, and the identity record is re-read on every request so
// the guard always sees current verification state.
func RegisterOTP(e *echo.Echo, o *handler.OTPHandler, iss *session.Issuer, users middleware.IdentityLoader, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/otp")
	g.Use(middleware.Authenticate(iss, middleware.WithIdentity(users)))
	g.Use(middleware.RequireRole(anyRole))
	g.POST("/send", o.Send, limiter)
	g.POST("/verify", o.Verify)
}

// RegisterInvites wires invitation minting (ADMIN and SUPER-ADMIN
// only) and public redemption.
func RegisterInvites(e *echo.Echo, h *handler.InviteHandler, iss *session.Issuer, limiter echo.MiddlewareFunc) {
	mint := e.Group("/v1/invites")
	mint.Use(middleware.Authenticate(iss))
	mint.Use(middleware.RequireRole(model.NewRoleSet(model.RoleAdmin, model.RoleSuperAdmin)))
	mint.POST("", h.Create)

	e.POST("/v1/invites/redeem", h.Redeem, limiter)
}

// RegisterChat exposes the WebSocket chat gateway. Authentication
// happens inside the handler, at handshake time, from the cookie
// header.
func RegisterChat(e *echo.Echo, gw *ws.Gateway) {
	e.GET("/v1/chat", gw.Handle)
}
