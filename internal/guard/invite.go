package guard

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crypto/rand"

	"github.com/avetra/storegate/internal/model"
	"github.com/avetra/storegate/internal/store"
)

// ErrRoleNotInvitable is returned when an invite is minted for a
// role that onboarding by invitation does not cover (plain USER
// accounts register directly).
var ErrRoleNotInvitable = errors.New("role cannot be invited")

const (
	invitePrefix = "admin_invite:"
	inviteTTL    = 30 * time.Minute
	// inviteTokenBytes gives 256 bits of randomness; the token doubles
	// as the lookup key and collisions are not otherwise guarded.
	inviteTokenBytes = 32
)

// Invite is the stored invitation record. Absence of the record,
// whether it expired or was never issued, is the only "invalid"
// signal exposed to callers.
type Invite struct {
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	InvitedBy uint64     `json:"invited_by"`
	CreatedAt time.Time  `json:"created_at"`
}

// InviteService mints and redeems time-boxed invitation tokens for
// elevated roles, stored in the counter store under the token itself.
type InviteService struct {
	store store.Store
}

func NewInviteService(s store.Store) *InviteService { return &InviteService{store: s} }

// Create issues a new invite token for email with the given role.
// The raw token is returned exactly once; only the inviter can
// relay it.
func (s *InviteService) Create(ctx context.Context, email string, role model.Role, invitedBy uint64) (string, error) {
	if !role.Elevated() {
		return "", ErrRoleNotInvitable
	}
	token, err := randomHex(inviteTokenBytes)
	if err != nil {
		return "", err
	}
	rec := Invite{
		Email:     email,
		Role:      role,
		InvitedBy: invitedBy,
		CreatedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, invitePrefix+token, string(body), inviteTTL); err != nil {
		return "", err
	}
	return token, nil
}

// Get looks up an invite by token. Expired and never-issued tokens
// are indistinguishable: both return nil with no error.
func (s *InviteService) Get(ctx context.Context, token string) (*Invite, error) {
	body, ok, err := s.store.Get(ctx, invitePrefix+token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var rec Invite
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, fmt.Errorf("corrupt invite record: %v", err)
	}
	return &rec, nil
}

// MarkUsed deletes the record outright. Single-use is enforced by
// absence: a deleted token can never be redeemed again.
func (s *InviteService) MarkUsed(ctx context.Context, token string) error {
	return s.store.Del(ctx, invitePrefix+token)
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
