package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/avetra/storegate/internal/model"
)

// UserRepo reads and writes rows of the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,password_hash,role,status,is_verified,created_at,updated_at"

// Create inserts a user and returns its ID. New accounts start
// unverified with status ACTIVE; verification is flipped by the OTP
// flow, status by moderation actions.
func (r *UserRepo) Create(ctx context.Context, email, password string, role model.Role, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, status) VALUES (?,?,?,?)",
		email, hash, string(role), string(model.StatusActive))
	if err != nil {
		// 1062 = MySQL duplicate key on the unique email index.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// MarkVerified records a successful OTP verification.
func (r *UserRepo) MarkVerified(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_verified=1 WHERE id=?", id)
	return err
}

// UpdateStatus applies a soft status transition (ACTIVE, INACTIVE,
// SUSPENDED). Rows are never deleted.
func (r *UserRepo) UpdateStatus(ctx context.Context, id uint64, status model.Status) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET status=? WHERE id=?", string(status), id)
	return err
}

func (r *UserRepo) scanOne(ctx context.Context, query string, arg any) (model.User, error) {
	var (
		u            model.User
		role, status string
	)
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &role, &status, &u.Verified, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if u.Role, err = model.ParseRole(role); err != nil {
		return model.User{}, err
	}
	if u.Status, err = model.ParseStatus(status); err != nil {
		return model.User{}, err
	}
	return u, nil
}
