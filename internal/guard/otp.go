// Package guard enforces the abuse limits around one-time-passcode
// and invitation flows. Both guards run on an injected counter
// store; they own the key namespace and the fixed windows, callers
// own the orchestration (check before verifying, record after a
// failed attempt).
package guard

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/avetra/storegate/internal/store"
)

var (
	// ErrTooSoon means an OTP was already dispatched for this key
	// inside the send window. Maps to HTTP 429.
	ErrTooSoon = errors.New("otp recently sent")
	// ErrTooManyAttempts means the attempt counter reached its cap.
	// Maps to HTTP 429.
	ErrTooManyAttempts = errors.New("too many otp attempts")
	// ErrCodeMismatch covers a wrong, expired or never-issued code.
	ErrCodeMismatch = errors.New("otp code mismatch")
)

// Fixed windows of the OTP contract. These are product behavior, not
// deployment tunables: at most one dispatch per key per send window,
// at most maxAttempts verification tries per attempt window.
const (
	sendWindow    = 60 * time.Second
	attemptWindow = 10 * time.Minute
	codeTTL       = 10 * time.Minute
	maxAttempts   = 5
	codeDigits    = 6
)

const (
	throttlePrefix = "otp:throttle:"
	attemptsPrefix = "otp:attempts:"
	codePrefix     = "otp:code:"
)

// OTPGuard throttles sends and counts verification attempts for
// OTP flows, keyed by email or user id.
type OTPGuard struct {
	store store.Store
}

func NewOTPGuard(s store.Store) *OTPGuard { return &OTPGuard{store: s} }

// ThrottleSend claims the send slot for key. It fails with ErrTooSoon
// when a marker from a previous send still exists, guaranteeing at
// most one dispatch per key per window.
func (g *OTPGuard) ThrottleSend(ctx context.Context, key string) error {
	ok, err := g.store.SetNX(ctx, throttlePrefix+key, "1", sendWindow)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTooSoon
	}
	return nil
}

// CheckAttempts fails with ErrTooManyAttempts once the counter for
// key has reached the cap. It is read-only so callers can short-
// circuit before doing any verification work.
func (g *OTPGuard) CheckAttempts(ctx context.Context, key string) error {
	v, ok, err := g.store.Get(ctx, attemptsPrefix+key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("corrupt attempt counter for %q: %v", key, err)
	}
	if n >= maxAttempts {
		return ErrTooManyAttempts
	}
	return nil
}

// RecordAttempt bumps the attempt counter and resets its window in a
// single atomic store operation, so concurrent failures never
// under-count. Returns the new count.
func (g *OTPGuard) RecordAttempt(ctx context.Context, key string) (int64, error) {
	return g.store.Incr(ctx, attemptsPrefix+key, attemptWindow)
}

// ClearAttempts drops the counter after a successful verification.
func (g *OTPGuard) ClearAttempts(ctx context.Context, key string) error {
	return g.store.Del(ctx, attemptsPrefix+key)
}

// SaveCode stores the freshly generated code for key with the code
// TTL, replacing any previous one.
func (g *OTPGuard) SaveCode(ctx context.Context, key, code string) error {
	return g.store.Set(ctx, codePrefix+key, code, codeTTL)
}

// VerifyCode compares the submitted code against the stored one.
// On a match the code is deleted (single use); a missing, expired or
// wrong code fails with ErrCodeMismatch and leaves the stored code
// in place for the remaining attempts.
func (g *OTPGuard) VerifyCode(ctx context.Context, key, submitted string) error {
	stored, ok, err := g.store.Get(ctx, codePrefix+key)
	if err != nil {
		return err
	}
	if !ok || subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) != 1 {
		return ErrCodeMismatch
	}
	return g.store.Del(ctx, codePrefix+key)
}

// NewCode returns a zero-padded 6-digit passcode drawn from
// crypto/rand.
func NewCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
