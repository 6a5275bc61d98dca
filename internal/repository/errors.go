// Package repository implements the credential store on top of MySQL.
// Sentinel errors declared here let handlers distinguish failure
// scenarios without string matching: ErrEmailExists maps to HTTP 409
// on registration, ErrNotFound to 401 when an identity referenced by
// a valid token no longer exists.
package repository

import "errors"

// ErrEmailExists is returned by Create when the normalized email
// already has an account. Handlers should translate this into an
// HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")

// ErrNotFound is returned when no user matches the lookup. Handlers
// treat a missing identity behind a syntactically valid token as an
// authentication failure, not a server error.
var ErrNotFound = errors.New("user not found")
