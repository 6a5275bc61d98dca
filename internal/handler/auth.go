package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avetra/storegate/internal/config"
	"github.com/avetra/storegate/internal/middleware"
	"github.com/avetra/storegate/internal/model"
	"github.com/avetra/storegate/internal/repository"
	"github.com/avetra/storegate/internal/session"
)

// UserStore is the slice of the credential store the handlers need.
// *repository.UserRepo satisfies it; tests use function-struct fakes.
type UserStore interface {
	Create(ctx context.Context, email, password string, role model.Role, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	MarkVerified(ctx context.Context, id uint64) error
}

// AuthHandler bundles dependencies for the session endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Issuer *session.Issuer
}

func NewAuthHandler(cfg config.Config, users UserStore, iss *session.Issuer) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Issuer: iss}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPart struct {
	ID       uint64 `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
}
type sessionResp struct {
	User           userPart  `json:"user"`
	AccessExpires  time.Time `json:"access_expires"`
	RefreshExpires time.Time `json:"refresh_expires"`
}

// Register creates a USER account and opens a session immediately.
// The account starts unverified; the OTP flow flips it. Tokens travel
// only as httpOnly cookies, the body carries their expiries so the
// client can schedule a silent refresh.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, model.RoleUser, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	pair, err := h.Issuer.Issue(uid, model.RoleUser)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue session failed"})
	}
	session.SetSessionCookies(c, pair)

	return c.JSON(http.StatusCreated, sessionResp{
		User:           userPart{ID: uid, Email: req.Email, Role: string(model.RoleUser)},
		AccessExpires:  pair.Access.Exp,
		RefreshExpires: pair.Refresh.Exp,
	})
}

// Login verifies credentials and opens a session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !repository.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if !u.CanSignIn() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}

	pair, err := h.Issuer.Issue(u.ID, u.Role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue session failed"})
	}
	session.SetSessionCookies(c, pair)

	return c.JSON(http.StatusOK, sessionResp{
		User:           userPart{ID: u.ID, Email: u.Email, Role: string(u.Role), Verified: u.Verified},
		AccessExpires:  pair.Access.Exp,
		RefreshExpires: pair.Refresh.Exp,
	})
}

// Refresh exchanges a valid refresh cookie for a new cookie pair
// (rotation). The identity record is re-read so role and status
// changes made since login take effect here.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ck, err := c.Cookie(session.RefreshCookie)
	if err != nil || ck.Value == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing refresh token"})
	}
	claims, err := h.Issuer.VerifyRefresh(ck.Value)
	if err != nil {
		if errors.Is(err, session.ErrExpiredToken) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh expired"})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown account"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	if !u.CanSignIn() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}

	pair, err := h.Issuer.Issue(u.ID, u.Role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue session failed"})
	}
	session.SetSessionCookies(c, pair)

	return c.JSON(http.StatusOK, sessionResp{
		User:           userPart{ID: u.ID, Email: u.Email, Role: string(u.Role), Verified: u.Verified},
		AccessExpires:  pair.Access.Exp,
		RefreshExpires: pair.Refresh.Exp,
	})
}

// Logout clears the session cookies. With stateless tokens there is
// nothing to revoke server-side; the cookies simply stop arriving.
func (h *AuthHandler) Logout(c echo.Context) error {
	session.ClearSessionCookies(c)
	return c.NoContent(http.StatusNoContent)
}

// Me is a simple protected endpoint echoing the authenticated
// identity attached by the middleware.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": c.Get(middleware.CtxUserID),
		"role":    c.Get(middleware.CtxRole),
	})
}
