package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avetra/storegate/internal/guard"
	"github.com/avetra/storegate/internal/middleware"
	"github.com/avetra/storegate/internal/queue"
	queue_publisher "github.com/avetra/storegate/internal/service"
	"github.com/avetra/storegate/internal/store"
)

// OTPHandler drives the email verification flow: dispatch a passcode
// (throttled) and verify it (attempt-limited). Both endpoints require
// an authenticated session; the flow is keyed by the account email.
type OTPHandler struct {
	Users UserStore
	Guard *guard.OTPGuard
	// Publish delivers the dispatch event to the mail worker. Swapped
	// for a recorder in tests.
	Publish func(ctx context.Context, ev queue.OTPDispatchEvent) error
}

func NewOTPHandler(users UserStore, g *guard.OTPGuard) *OTPHandler {
	return &OTPHandler{Users: users, Guard: g, Publish: queue_publisher.PublishOTPDispatch}
}

type verifyReq struct {
	Code string `json:"code"`
}

// Send generates a passcode for the caller and hands it to the mail
// worker. At most one dispatch per account per send window; a second
// request inside the window answers 429.
func (h *OTPHandler) Send(c echo.Context) error {
	uid, ok := c.Get(middleware.CtxUserID).(uint64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown account"})
	}
	if u.Verified {
		return c.JSON(http.StatusConflict, echo.Map{"error": "already verified"})
	}

	if err := h.Guard.ThrottleSend(ctx, u.Email); err != nil {
		if errors.Is(err, guard.ErrTooSoon) {
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "otp recently sent"})
		}
		return storeFailure(c, err)
	}

	code, err := guard.NewCode()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "generate code failed"})
	}
	if err := h.Guard.SaveCode(ctx, u.Email, code); err != nil {
		return storeFailure(c, err)
	}

	ev := queue.OTPDispatchEvent{
		Email:       u.Email,
		Code:        code,
		Purpose:     "verify_email",
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	}
	// Dispatch off the request path; a slow broker must not stall the
	// response, and the code is already stored for verification.
	go func() {
		pctx, pcancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer pcancel()
		if err := h.Publish(pctx, ev); err != nil {
			log.Printf("otp: dispatch publish failed for %s: %v", u.Email, err)
		}
	}()

	return c.JSON(http.StatusAccepted, echo.Map{"message": "otp sent"})
}

// Verify checks the submitted passcode. The attempt counter is read
// before comparing so a capped caller is rejected without touching
// the code, and bumped atomically only on mismatch.
func (h *OTPHandler) Verify(c echo.Context) error {
	uid, ok := c.Get(middleware.CtxUserID).(uint64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing token"})
	}
	var req verifyReq
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown account"})
	}

	if err := h.Guard.CheckAttempts(ctx, u.Email); err != nil {
		if errors.Is(err, guard.ErrTooManyAttempts) {
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many attempts"})
		}
		return storeFailure(c, err)
	}

	if err := h.Guard.VerifyCode(ctx, u.Email, req.Code); err != nil {
		if errors.Is(err, guard.ErrCodeMismatch) {
			if _, rerr := h.Guard.RecordAttempt(ctx, u.Email); rerr != nil {
				return storeFailure(c, rerr)
			}
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
		}
		return storeFailure(c, err)
	}

	if err := h.Users.MarkVerified(ctx, uid); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	if err := h.Guard.ClearAttempts(ctx, u.Email); err != nil {
		log.Printf("otp: clear attempts failed for %s: %v", u.Email, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"verified": true})
}

// storeFailure maps counter-store unavailability to 503 so clients
// retry, and anything unexpected to 500. A store outage is never
// reported as an authorization or rate-limit decision.
func storeFailure(c echo.Context, err error) error {
	if errors.Is(err, store.ErrUnavailable) {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store unavailable"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
