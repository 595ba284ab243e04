package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/nexabase-io/nexabase/internal/database"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when the email or username is taken
	ErrUserExists = errors.New("user already exists")
)

// User is an account row. PasswordHash never leaves the package boundary in
// API responses.
type User struct {
	ID                  int64      `json:"id"`
	Email               string     `json:"email"`
	Username            string     `json:"username"`
	PasswordHash        string     `json:"-"`
	Role                string     `json:"role"`
	IsVerified          bool       `json:"is_verified"`
	IsActive            bool       `json:"is_active"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Locked reports whether the account is currently locked out
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// UserRepository persists account rows
type UserRepository struct {
	db *database.Connection
}

// NewUserRepository creates a user repository
func NewUserRepository(db *database.Connection) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, username, password_hash, role, is_verified, is_active,
	failed_login_attempts, locked_until, last_login_at, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role,
		&u.IsVerified, &u.IsActive, &u.FailedLoginAttempts, &u.LockedUntil,
		&u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a new account. Email is stored lowercased.
func (r *UserRepository) Create(ctx context.Context, email, username, passwordHash, role string) (*User, error) {
	res, err := r.db.DB().ExecContext(ctx,
		`INSERT INTO users (email, username, password_hash, role) VALUES (?, ?, ?, ?)`,
		strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(username), passwordHash, role)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByID returns a user by id
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.db.DB().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetByEmail returns a user by email, case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.DB().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))))
}

// List returns all accounts ordered by id
func (r *UserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.DB().QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// RecordLoginFailure increments the failure counter and locks the account
// once the threshold is reached.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, userID int64, maxAttempts int, lockout time.Duration) error {
	_, err := r.db.DB().ExecContext(ctx,
		`UPDATE users
		    SET failed_login_attempts = failed_login_attempts + 1,
		        locked_until = CASE WHEN failed_login_attempts + 1 >= ? THEN ? ELSE locked_until END,
		        updated_at = CURRENT_TIMESTAMP
		  WHERE id = ?`,
		maxAttempts, time.Now().Add(lockout).UTC(), userID)
	return err
}

// RecordLoginSuccess clears the failure state and stamps last_login_at
func (r *UserRepository) RecordLoginSuccess(ctx context.Context, userID int64) error {
	_, err := r.db.DB().ExecContext(ctx,
		`UPDATE users
		    SET failed_login_attempts = 0,
		        locked_until = NULL,
		        last_login_at = CURRENT_TIMESTAMP,
		        updated_at = CURRENT_TIMESTAMP
		  WHERE id = ?`, userID)
	return err
}

// SetVerified marks the account's email as verified
func (r *UserRepository) SetVerified(ctx context.Context, userID int64) error {
	_, err := r.db.DB().ExecContext(ctx,
		`UPDATE users SET is_verified = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, userID)
	return err
}

// SetActive toggles whether the account may authenticate
func (r *UserRepository) SetActive(ctx context.Context, userID int64, active bool) error {
	_, err := r.db.DB().ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, active, userID)
	return err
}

// SetRole reassigns the account's role
func (r *UserRepository) SetRole(ctx context.Context, userID int64, role string) error {
	res, err := r.db.DB().ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, role, userID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword replaces the stored hash
func (r *UserRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	_, err := r.db.DB().ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		passwordHash, userID)
	return err
}

// Count returns the number of accounts
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
