package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avetra/storegate/internal/config"
	"github.com/avetra/storegate/internal/guard"
	"github.com/avetra/storegate/internal/middleware"
	"github.com/avetra/storegate/internal/model"
	"github.com/avetra/storegate/internal/repository"
	"github.com/avetra/storegate/internal/session"
)

// InviteHandler issues and redeems time-boxed invitation tokens for
// elevated roles (VENDOR, ADMIN, SUPER-ADMIN).
type InviteHandler struct {
	Cfg     config.Config
	Users   UserStore
	Invites *guard.InviteService
	Issuer  *session.Issuer
}

func NewInviteHandler(cfg config.Config, users UserStore, inv *guard.InviteService, iss *session.Issuer) *InviteHandler {
	return &InviteHandler{Cfg: cfg, Users: users, Invites: inv, Issuer: iss}
}

type createInviteReq struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}
type redeemInviteReq struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Create mints an invite token. Restricted to ADMIN and SUPER-ADMIN
// by route middleware; the raw token is returned exactly once and is
// never stored in recoverable form.
func (h *InviteHandler) Create(c echo.Context) error {
	var req createInviteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}
	inviter, _ := c.Get(middleware.CtxUserID).(uint64)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	token, err := h.Invites.Create(ctx, email, role, inviter)
	if err != nil {
		if errors.Is(err, guard.ErrRoleNotInvitable) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "role cannot be invited"})
		}
		return storeFailure(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"token":      token,
		"email":      email,
		"role":       string(role),
		"expires_in": "30m",
	})
}

// Redeem consumes an invite token, creates the invited account and
// opens a session for it. Expired and never-issued tokens get the
// same rejection.
func (h *InviteHandler) Redeem(c echo.Context) error {
	var req redeemInviteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	inv, err := h.Invites.Get(ctx, req.Token)
	if err != nil {
		return storeFailure(c, err)
	}
	if inv == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired invite"})
	}

	uid, err := h.Users.Create(ctx, inv.Email, req.Password, inv.Role, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	// The invite is burned only after the account exists; a failed
	// create leaves the token redeemable.
	if err := h.Invites.MarkUsed(ctx, req.Token); err != nil {
		return storeFailure(c, err)
	}

	pair, err := h.Issuer.Issue(uid, inv.Role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue session failed"})
	}
	session.SetSessionCookies(c, pair)

	return c.JSON(http.StatusCreated, sessionResp{
		User:           userPart{ID: uid, Email: inv.Email, Role: string(inv.Role)},
		AccessExpires:  pair.Access.Exp,
		RefreshExpires: pair.Refresh.Exp,
	})
}
