package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avetra/storegate/internal/guard"
	"github.com/avetra/storegate/internal/model"
	"github.com/avetra/storegate/internal/repository"
	"github.com/avetra/storegate/internal/session"
	"github.com/avetra/storegate/internal/store"
)

func newInviteHandler(users fakeUsers) *InviteHandler {
	inv := guard.NewInviteService(store.NewMemory())
	return NewInviteHandler(testConfig(), users, inv, session.NewIssuer(testSecret, 15, 7))
}

func TestInviteCreate(t *testing.T) {
	h := newInviteHandler(fakeUsers{})

	rec := callAs(1, model.RoleAdmin,
		jsonRequest(http.MethodPost, "/v1/invites", `{"email":"Vendor@Example.com","role":"VENDOR"}`), h.Create)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["token"], 64)
	assert.Equal(t, "vendor@example.com", body["email"])
	assert.Equal(t, "VENDOR", body["role"])
	assert.Equal(t, "30m", body["expires_in"])
}

func TestInviteCreateRejectsBadRole(t *testing.T) {
	h := newInviteHandler(fakeUsers{})

	for _, role := range []string{"USER", "OWNER", ""} {
		rec := callAs(1, model.RoleAdmin,
			jsonRequest(http.MethodPost, "/v1/invites", `{"email":"x@example.com","role":"`+role+`"}`), h.Create)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "role %q", role)
	}
}

func TestInviteRedeem(t *testing.T) {
	var gotEmail string
	var gotRole model.Role
	h := newInviteHandler(fakeUsers{
		createFn: func(ctx context.Context, email, password string, role model.Role, cost int) (uint64, error) {
			gotEmail, gotRole = email, role
			return 21, nil
		},
	})

	token, err := h.Invites.Create(context.Background(), "vendor@example.com", model.RoleVendor, 1)
	require.NoError(t, err)

	rec := call(jsonRequest(http.MethodPost, "/v1/invites/redeem",
		`{"token":"`+token+`","password":"hunter22"}`), h.Redeem)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "vendor@example.com", gotEmail)
	assert.Equal(t, model.RoleVendor, gotRole)
	assert.NotEmpty(t, cookieNames(rec)[session.AccessCookie],
		"redeeming opens a session for the new account")

	// Single use.
	rec = call(jsonRequest(http.MethodPost, "/v1/invites/redeem",
		`{"token":"`+token+`","password":"hunter22"}`), h.Redeem)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInviteRedeemUnknownToken(t *testing.T) {
	h := newInviteHandler(fakeUsers{})
	rec := call(jsonRequest(http.MethodPost, "/v1/invites/redeem",
		`{"token":"deadbeef","password":"hunter22"}`), h.Redeem)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInviteRedeemDuplicateEmailKeepsToken(t *testing.T) {
	h := newInviteHandler(fakeUsers{
		createFn: func(ctx context.Context, email, password string, role model.Role, cost int) (uint64, error) {
			return 0, repository.ErrEmailExists
		},
	})

	token, err := h.Invites.Create(context.Background(), "taken@example.com", model.RoleVendor, 1)
	require.NoError(t, err)

	rec := call(jsonRequest(http.MethodPost, "/v1/invites/redeem",
		`{"token":"`+token+`","password":"hunter22"}`), h.Redeem)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The failed create must not burn the invite.
	inv, err := h.Invites.Get(context.Background(), token)
	require.NoError(t, err)
	assert.NotNil(t, inv)
}
