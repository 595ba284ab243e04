package auth

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/database"
)

// ErrTokenBlacklisted is returned when a presented token has been revoked
var ErrTokenBlacklisted = errors.New("token has been revoked")

// BlacklistRepository stores revoked token ids until their natural expiry
type BlacklistRepository struct {
	db *database.Connection
}

// NewBlacklistRepository creates a token blacklist repository
func NewBlacklistRepository(db *database.Connection) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

// Add blacklists a token jti. Re-adding the same jti is a no-op.
func (r *BlacklistRepository) Add(ctx context.Context, jti string, userID int64, tokenType, reason string, expiresAt time.Time) error {
	_, err := r.db.DB().ExecContext(ctx,
		`INSERT INTO blacklisted_tokens (jti, user_id, token_type, reason, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (jti) DO NOTHING`,
		jti, userID, tokenType, reason, expiresAt.UTC())
	return err
}

// IsBlacklisted reports whether a jti has been revoked
func (r *BlacklistRepository) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := r.db.DB().QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM blacklisted_tokens WHERE jti = ?)`, jti).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Sweep deletes entries whose token has expired anyway
func (r *BlacklistRepository) Sweep(ctx context.Context) (int64, error) {
	res, err := r.db.DB().ExecContext(ctx,
		`DELETE FROM blacklisted_tokens WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RunSweeper periodically removes expired blacklist rows until ctx is done
func (r *BlacklistRepository) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := r.Sweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Token blacklist sweep failed")
				continue
			}
			if removed > 0 {
				log.Debug().Int64("removed", removed).Msg("Expired blacklist entries removed")
			}
		}
	}
}
