// Package settings is the runtime configuration layer: typed key/value
// pairs stored in the database, cached in memory, written through on change.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/nexabase-io/nexabase/internal/database"
)

var (
	// ErrNotFound is returned when no setting matches (category, key)
	ErrNotFound = errors.New("setting not found")
	// ErrBadType is returned when a value does not parse as its data type
	ErrBadType = errors.New("value does not match setting data type")
)

// DataType enumerates the value types a setting may declare
type DataType string

const (
	TypeString  DataType = "string"
	TypeInteger DataType = "integer"
	TypeFloat   DataType = "float"
	TypeBoolean DataType = "boolean"
	TypeJSON    DataType = "json"
)

// Setting is one row of runtime configuration. Sensitive settings have their
// value masked in list responses.
type Setting struct {
	ID              int64     `json:"id"`
	Category        string    `json:"category"`
	Key             string    `json:"key"`
	Value           *string   `json:"value"`
	DataType        DataType  `json:"data_type"`
	DefaultValue    *string   `json:"default_value"`
	Sensitive       bool      `json:"sensitive"`
	RequiresRestart bool      `json:"requires_restart"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Effective returns the set value, falling back to the default
func (s *Setting) Effective() (string, bool) {
	if s.Value != nil {
		return *s.Value, true
	}
	if s.DefaultValue != nil {
		return *s.DefaultValue, true
	}
	return "", false
}

// Repository persists settings rows
type Repository struct {
	db *database.Connection
}

// NewRepository creates a settings repository
func NewRepository(db *database.Connection) *Repository {
	return &Repository{db: db}
}

const settingColumns = `id, category, key, value, data_type, default_value,
	sensitive, requires_restart, created_at, updated_at`

func scanSetting(row interface{ Scan(...interface{}) error }) (*Setting, error) {
	var s Setting
	err := row.Scan(&s.ID, &s.Category, &s.Key, &s.Value, &s.DataType,
		&s.DefaultValue, &s.Sensitive, &s.RequiresRestart, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Get returns one setting by (category, key)
func (r *Repository) Get(ctx context.Context, category, key string) (*Setting, error) {
	return scanSetting(r.db.DB().QueryRowContext(ctx,
		`SELECT `+settingColumns+` FROM system_settings WHERE category = ? AND key = ?`,
		category, key))
}

// List returns every setting, optionally restricted to one category
func (r *Repository) List(ctx context.Context, category string) ([]Setting, error) {
	stmt := `SELECT ` + settingColumns + ` FROM system_settings`
	var args []interface{}
	if category != "" {
		stmt += ` WHERE category = ?`
		args = append(args, category)
	}
	stmt += ` ORDER BY category, key`

	rows, err := r.db.DB().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// SetValue updates the value of an existing setting
func (r *Repository) SetValue(ctx context.Context, category, key string, value *string) (*Setting, error) {
	res, err := r.db.DB().ExecContext(ctx,
		`UPDATE system_settings SET value = ?, updated_at = CURRENT_TIMESTAMP
		  WHERE category = ? AND key = ?`,
		value, category, key)
	if err != nil {
		return nil, err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, category, key)
}
