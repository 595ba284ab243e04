package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/nexabase-io/nexabase/internal/config"
)

// Connection wraps the pooled handle to the embedded SQLite database.
// database/sql provides the bounded connection pool; the pool size comes
// from configuration (default 10).
type Connection struct {
	db   *sql.DB
	path string
}

// PoolStats is a snapshot of pool usage, exposed by the health endpoint.
type PoolStats struct {
	InUse int `json:"in_use"`
	Idle  int `json:"idle"`
	Max   int `json:"max"`
}

// NewConnection opens the database file and configures the pool.
func NewConnection(cfg config.DatabaseConfig) (*Connection, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := buildDSN(cfg)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().
		Str("path", cfg.Path).
		Int("pool_size", maxConns).
		Msg("Database connection established")

	return &Connection{db: db, path: cfg.Path}, nil
}

func buildDSN(cfg config.DatabaseConfig) string {
	busyMillis := int64(cfg.BusyTimeout / time.Millisecond)
	if busyMillis <= 0 {
		busyMillis = 5000
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyMillis))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return fmt.Sprintf("file:%s?%s", cfg.Path, q.Encode())
}

// DB returns the underlying pooled handle.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Path returns the database file path (used by the backup snapshot).
func (c *Connection) Path() string {
	return c.path
}

// Stats returns a snapshot of pool usage.
func (c *Connection) Stats() PoolStats {
	s := c.db.Stats()
	return PoolStats{
		InUse: s.InUse,
		Idle:  s.Idle,
		Max:   s.MaxOpenConnections,
	}
}

// Ping verifies the database is reachable.
func (c *Connection) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the pool.
func (c *Connection) Close() error {
	return c.db.Close()
}

// NewMemoryConnection opens an in-memory database for tests. A shared cache
// keeps all pooled handles on the same in-memory instance.
func NewMemoryConnection() (*Connection, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// A single connection avoids cache=shared locking surprises in tests.
	db.SetMaxOpenConns(1)
	return &Connection{db: db, path: ":memory:"}, nil
}
