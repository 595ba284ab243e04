package database

import (
	"database/sql"
	"errors"
	"strings"
)

// IsUniqueViolation reports whether err is a unique-constraint failure.
// The modernc driver surfaces SQLite errors as strings, so the check is
// message-based the same way the constraint kind is reported by the engine.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsNotNullViolation reports whether err is a NOT NULL constraint failure.
func IsNotNullViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "NOT NULL constraint failed")
}

// IsNoRows reports whether err means no row matched.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
