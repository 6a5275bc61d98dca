// Package session issues and verifies the signed credentials that
// identify a caller. Access and refresh tokens are both stateless
// HS256 JWTs; nothing is persisted server-side, verification is
// purely a signature and expiry check.
package session

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avetra/storegate/internal/model"
)

var (
	// ErrInvalidToken covers malformed tokens, signature mismatches
	// and wrong token types. Maps to HTTP 401.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is the distinguished expiry case so clients can
	// attempt a silent refresh instead of forcing a re-login.
	ErrExpiredToken = errors.New("token expired")
)

const (
	typAccess  = "access"
	typRefresh = "refresh"
)

// Token is a serialized JWT together with its expiry, echoed to
// clients so they can schedule refreshes.
type Token struct {
	Value string
	Exp   time.Time
}

// Pair bundles the access and refresh tokens minted for one session.
type Pair struct {
	Access  Token
	Refresh Token
}

// Claims is the identity a verified token proves.
type Claims struct {
	UserID uint64
	Role   model.Role
}

// Issuer mints and verifies session tokens with a shared secret.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer builds an Issuer from the configured secret and TTLs
// (access in minutes, refresh in days, matching the env contract).
func NewIssuer(secret string, accessTTLMin, refreshTTLDays int) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  time.Duration(accessTTLMin) * time.Minute,
		refreshTTL: time.Duration(refreshTTLDays) * 24 * time.Hour,
	}
}

// Issue mints a fresh access/refresh pair for the identity.
func (i *Issuer) Issue(userID uint64, role model.Role) (Pair, error) {
	access, err := i.mint(userID, role, typAccess, i.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.mint(userID, role, typRefresh, i.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// Verify validates an access token and returns the claims it
// carries. Expired tokens fail with ErrExpiredToken; every other
// failure is ErrInvalidToken.
func (i *Issuer) Verify(raw string) (Claims, error) {
	return i.verify(raw, typAccess)
}

// VerifyRefresh is Verify for refresh tokens. An access token
// presented on the refresh path is rejected as invalid.
func (i *Issuer) VerifyRefresh(raw string) (Claims, error) {
	return i.verify(raw, typRefresh)
}

func (i *Issuer) mint(userID uint64, role model.Role, typ string, ttl time.Duration) (Token, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": string(role),
		"typ":  typ,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, Exp: exp}, nil
}

func (i *Issuer) verify(raw, wantTyp string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		// Reject tokens signed with anything but HMAC; an attacker
		// must not be able to pick the verification algorithm.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	if typ, _ := claims["typ"].(string); typ != wantTyp {
		return Claims{}, ErrInvalidToken
	}
	roleStr, _ := claims["role"].(string)
	role, err := model.ParseRole(roleStr)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	sub, ok := subjectID(claims["sub"])
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	return Claims{UserID: sub, Role: role}, nil
}

// subjectID converts the sub claim back to a user ID. JSON decoding
// yields float64 for numbers; string subjects are tolerated for
// tokens minted by older releases.
func subjectID(v interface{}) (uint64, bool) {
	switch s := v.(type) {
	case float64:
		if s < 0 {
			return 0, false
		}
		return uint64(s), true
	case string:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
