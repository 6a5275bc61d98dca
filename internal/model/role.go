package model

import (
	"fmt"
	"strings"
)

// Role is the closed set of roles a user can hold. Raw strings from
// the database or from route configuration must pass through
// ParseRole so that typos are rejected up front rather than at
// request time.
type Role string

const (
	RoleUser       Role = "USER"
	RoleVendor     Role = "VENDOR"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER-ADMIN"
)

// ParseRole normalizes and validates a role string. Unknown values
// return an error instead of silently producing a role no route
// would ever match.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleUser, RoleVendor, RoleAdmin, RoleSuperAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Elevated reports whether the role grants access beyond a regular
// shopper account. Invites may only be minted for elevated roles.
func (r Role) Elevated() bool {
	return r == RoleVendor || r == RoleAdmin || r == RoleSuperAdmin
}

// RoleSet is the allowed-role configuration for a route or a
// WebSocket namespace. Membership is an exact match against the
// enumerated set; there is no wildcard and no hierarchy.
type RoleSet map[Role]bool

// NewRoleSet builds a RoleSet from already-parsed roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return set
}

// ParseRoleSet builds a RoleSet from raw strings, failing on the
// first unknown role. Used where allowed roles come from
// configuration rather than code.
func ParseRoleSet(raw ...string) (RoleSet, error) {
	set := make(RoleSet, len(raw))
	for _, s := range raw {
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		set[r] = true
	}
	return set, nil
}

// Contains reports whether the role is a member of the set.
func (s RoleSet) Contains(r Role) bool { return s[r] }

// Status is the closed set of account states. Accounts transition
// between states but are never hard-deleted.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// ParseStatus validates a status string coming from the database.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusActive, StatusInactive, StatusSuspended:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}
