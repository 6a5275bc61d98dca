package model

import "time"

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the
// database. The json tags are omitted here because these structs
// are primarily used internally by the repository layer; handlers
// define separate response types with appropriate JSON tags.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – the user's role (USER, VENDOR, ADMIN, SUPER-ADMIN).
//  Status       – account status (ACTIVE, INACTIVE, SUSPENDED).
//  Verified     – whether the email address passed OTP verification.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         Role      // users.role
	Status       Status    // users.status
	Verified     bool      // users.is_verified
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// CanSignIn reports whether the account is in a state that allows a
// new session to be issued. Accounts are never deleted; deactivation
// and suspension are soft status transitions.
func (u User) CanSignIn() bool {
	return u.Status == StatusActive
}
