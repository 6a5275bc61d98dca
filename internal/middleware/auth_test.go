package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avetra/storegate/internal/model"
	"github.com/avetra/storegate/internal/repository"
	"github.com/avetra/storegate/internal/session"
)

const testSecret = "middleware-test-secret"

func okHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": c.Get(CtxUserID),
		"role":    c.Get(CtxRole),
	})
}

// run sends a request through Authenticate (+ optional RequireRole)
// and returns the recorder.
func run(t *testing.T, req *http.Request, mws ...echo.MiddlewareFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := okHandler
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	require.NoError(t, h(c))
	return rec
}

func withAccessCookie(req *http.Request, value string) *http.Request {
	req.AddCookie(&http.Cookie{Name: session.AccessCookie, Value: value})
	return req
}

func TestAuthenticateNoToken(t *testing.T) {
	iss := session.NewIssuer(testSecret, 15, 7)
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	rec := run(t, req, Authenticate(iss))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateInvalidToken(t *testing.T) {
	iss := session.NewIssuer(testSecret, 15, 7)
	req := withAccessCookie(httptest.NewRequest(http.MethodGet, "/v1/me", nil), "not-a-jwt")
	rec := run(t, req, Authenticate(iss))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateExpiredToken(t *testing.T) {
	expiredIss := session.NewIssuer(testSecret, -1, 7)
	pair, err := expiredIss.Issue(1, model.RoleUser)
	require.NoError(t, err)

	iss := session.NewIssuer(testSecret, 15, 7)
	req := withAccessCookie(httptest.NewRequest(http.MethodGet, "/v1/me", nil), pair.Access.Value)
	rec := run(t, req, Authenticate(iss))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "token_expired", body["code"],
		"clients need the distinguished expiry code for silent refresh")
}

func TestAuthenticateAttachesIdentity(t *testing.T) {
	iss := session.NewIssuer(testSecret, 15, 7)
	pair, err := iss.Issue(42, model.RoleAdmin)
	require.NoError(t, err)

	req := withAccessCookie(httptest.NewRequest(http.MethodGet, "/v1/me", nil), pair.Access.Value)
	rec := run(t, req, Authenticate(iss))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(42), body["user_id"])
	assert.Equal(t, "ADMIN", body["role"])
}

func TestAuthenticateBearerTransport(t *testing.T) {
	iss := session.NewIssuer(testSecret, 15, 7)
	pair, err := iss.Issue(7, model.RoleUser)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access.Value)
	rec := run(t, req, Authenticate(iss, WithTokenSource(TokenFromBearer)))
	assert.Equal(t, http.StatusOK, rec.Code)

	// The bearer transport ignores cookies entirely.
	req = withAccessCookie(httptest.NewRequest(http.MethodGet, "/v1/me", nil), pair.Access.Value)
	rec = run(t, req, Authenticate(iss, WithTokenSource(TokenFromBearer)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRoleMembership(t *testing.T) {
	iss := session.NewIssuer(testSecret, 15, 7)
	allowed := model.NewRoleSet(model.RoleAdmin, model.RoleSuperAdmin)

	cases := []struct {
		role model.Role
		want int
	}{
		{model.RoleUser, http.StatusForbidden},
		{model.RoleVendor, http.StatusForbidden},
		{model.RoleAdmin, http.StatusOK},
		{model.RoleSuperAdmin, http.StatusOK},
	}
	for _, tc := range cases {
		pair, err := iss.Issue(1, tc.role)
		require.NoError(t, err)
		req := withAccessCookie(httptest.NewRequest(http.MethodGet, "/v1/invites", nil), pair.Access.Value)
		rec := run(t, req, Authenticate(iss), RequireRole(allowed))
		assert.Equal(t, tc.want, rec.Code, "role %s", tc.role)
	}
}

func TestRequireRoleWithoutAuthenticate(t *testing.T) {
	rec := run(t, httptest.NewRequest(http.MethodGet, "/v1/invites", nil),
		RequireRole(model.NewRoleSet(model.RoleAdmin)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

type fakeLoader struct {
	user model.User
	err  error
}

func (f fakeLoader) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return f.user, f.err
}

func TestAuthenticateWithIdentity(t *testing.T) {
	iss := session.NewIssuer(testSecret, 15, 7)
	pair, err := iss.Issue(5, model.RoleUser)
	require.NoError(t, err)

	newReq := func() *http.Request {
		return withAccessCookie(httptest.NewRequest(http.MethodGet, "/v1/otp/send", nil), pair.Access.Value)
	}

	// Account deleted since the token was minted.
	rec := run(t, newReq(), Authenticate(iss, WithIdentity(fakeLoader{err: repository.ErrNotFound})))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Credential store down: transient, not an authorization decision.
	rec = run(t, newReq(), Authenticate(iss, WithIdentity(fakeLoader{err: errors.New("dial tcp: timeout")})))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Suspended account with a still-valid token.
	rec = run(t, newReq(), Authenticate(iss, WithIdentity(fakeLoader{
		user: model.User{ID: 5, Status: model.StatusSuspended},
	})))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Healthy account passes.
	rec = run(t, newReq(), Authenticate(iss, WithIdentity(fakeLoader{
		user: model.User{ID: 5, Status: model.StatusActive},
	})))
	assert.Equal(t, http.StatusOK, rec.Code)
}
