package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ResetTokenRepository handles password reset token persistence.
type ResetTokenRepository struct {
	db DBTX
}

// NewResetTokenRepository creates a new ResetTokenRepository instance.
func NewResetTokenRepository(db DBTX) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Create stores a token hash for the user.
func (r *ResetTokenRepository) Create(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	const query = `
		INSERT INTO password_resets (token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, NOW())
	`

	if _, err := r.db.Exec(ctx, query, tokenHash, userID, expiresAt); err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}
	return nil
}

// Consume marks an unexpired, unused token as used and returns its user.
// Returns ErrTokenInvalid otherwise.
func (r *ResetTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	const query = `
		UPDATE password_resets
		SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING user_id
	`

	var userID int64
	if err := r.db.QueryRow(ctx, query, tokenHash, now).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrTokenInvalid
		}
		return 0, fmt.Errorf("failed to consume reset token: %w", err)
	}
	return userID, nil
}
