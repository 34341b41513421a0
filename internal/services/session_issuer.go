package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/you/oobauthsvc/domain"
)

// SessionIssuerImpl implements domain.SessionIssuer: it turns a verified
// identity into a Redis-backed session plus a JWT pair.
type SessionIssuerImpl struct {
	tokenSvc    domain.TokenService
	sessionRepo domain.SessionRepository
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

// NewSessionIssuer creates a new session issuer.
func NewSessionIssuer(tokenSvc domain.TokenService, sessionRepo domain.SessionRepository, accessTTL, refreshTTL time.Duration) domain.SessionIssuer {
	return &SessionIssuerImpl{
		tokenSvc:    tokenSvc,
		sessionRepo: sessionRepo,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
	}
}

// Issue implements domain.SessionIssuer
func (s *SessionIssuerImpl) Issue(ctx context.Context, user *domain.User) (*domain.AuthResult, error) {
	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(s.refreshTTL),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	accessToken, err := s.tokenSvc.GenerateAccessToken(user.ID, user.Role, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.tokenSvc.GenerateRefreshToken(user.ID, user.Role, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &domain.AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    session.ID,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}
