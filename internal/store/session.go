package store

import (
	"context"
	"database/sql"
	"time"
)

// SessionRepository records revoked session tokens until they expire.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Revoke marks the token id as unusable. Revoking twice is a no-op.
func (r *SessionRepository) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, queryRevokeToken, jti, expiresAt.UTC()); err != nil {
		return persistenceError("revoke token", err)
	}
	return nil
}

func (r *SessionRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, queryIsTokenRevoked, jti).Scan(&count); err != nil {
		return false, persistenceError("check revoked token", err)
	}
	return count > 0, nil
}

// PurgeExpired deletes revocations for tokens that expired before now.
func (r *SessionRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, queryPurgeRevokedTokens, now.UTC())
	if err != nil {
		return 0, persistenceError("purge revoked tokens", err)
	}
	return result.RowsAffected()
}
