package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionRepository stores revoked token ids.
type SessionRepository interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionService tracks logged-out tokens.
type SessionService struct {
	repo SessionRepository
}

func NewSessionService(repo SessionRepository) *SessionService {
	return &SessionService{repo: repo}
}

func (s *SessionService) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	return s.repo.Revoke(ctx, jti, expiresAt)
}

func (s *SessionService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return s.repo.IsRevoked(ctx, jti)
}

// PurgeExpired drops revocations that can no longer match a valid token.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	purged, err := s.repo.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		zap.L().Debug("Purged expired token revocations", zap.Int64("count", purged))
	}
	return purged, nil
}
