package domain

import (
	"context"
	"time"
)

// TokenStore defines durable handshake token storage.
type TokenStore interface {
	// Create stores a new token record. The record is retained past its
	// expiry so terminal states stay readable.
	Create(ctx context.Context, token *HandshakeToken) error
	// GetByToken returns the stored record or ErrTokenNotFound.
	GetByToken(ctx context.Context, token string) (*HandshakeToken, error)
	// Transition atomically compare-and-swaps the token's status. The patch
	// is applied to the record only when the swap succeeds. A stale expected
	// status yields ErrTokenConflict, never an overwrite.
	Transition(ctx context.Context, token string, expected, next TokenStatus, patch func(*HandshakeToken)) (*HandshakeToken, error)
	// ReplacePending points the (identity, method) pending index at token
	// and returns the previously indexed token, if any. This is what keeps
	// at most one pending handshake alive per identity and method.
	ReplacePending(ctx context.Context, identity string, method Method, token string, ttl time.Duration) (string, error)
	// PendingToken returns the token currently indexed for (identity,
	// method), or ErrNoPendingToken.
	PendingToken(ctx context.Context, identity string, method Method) (string, error)
}

// UserRepository defines user data access operations.
type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*User, error)
	FindByPhone(ctx context.Context, phone string) (*User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	LinkTelegram(ctx context.Context, userID uint, telegramID int64) error
	LinkPhone(ctx context.Context, userID uint, phone string) error
}

// AccountRepository defines subscriber account access.
type AccountRepository interface {
	FindByUserID(ctx context.Context, userID uint) (*Account, error)
}

// SessionRepository defines session data access operations.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	FindByID(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// RateLimiter is the admission-control collaborator consulted before token
// creation. Implementations decide their own counting scheme; callers only
// see pass or ErrRateLimited.
type RateLimiter interface {
	Allow(ctx context.Context, identity, ip string) error
}

// SessionIssuer turns a verified identity into a durable login session.
type SessionIssuer interface {
	Issue(ctx context.Context, user *User) (*AuthResult, error)
}

// TokenService defines JWT operations backing the session issuer.
type TokenService interface {
	GenerateAccessToken(userID uint, role string, sessionID string) (string, error)
	GenerateRefreshToken(userID uint, role string, sessionID string) (string, error)
	ValidateAccessToken(token string) (*TokenClaims, error)
}

// TokenClaims represents JWT token claims.
type TokenClaims struct {
	UserID    uint   `json:"user_id"`
	Role      string `json:"role"`
	SessionID string `json:"session_id,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Notifier fans a state transition out to attached observers. Publish is
// best-effort: polling and streaming reads from the store stay authoritative.
type Notifier interface {
	Publish(ctx context.Context, event TokenEvent)
	// Subscribe returns a channel of events for one token plus a cancel
	// function that releases the subscription.
	Subscribe(ctx context.Context, method Method, token string) (<-chan TokenEvent, func())
}

// InitDataVerifier checks a Telegram Mini-App signed init-data blob and
// extracts the actor behind it.
type InitDataVerifier interface {
	Verify(raw string) (*ConfirmerContext, error)
}

// NotificationService defines outbound user notifications.
type NotificationService interface {
	SendSMS(to, message string) error
}

// BotService defines replies in the Telegram bot conversation, the only
// place identity-mismatch reasons are surfaced for webhook confirmations.
type BotService interface {
	DeepLink(token string) string
	Reply(chatID int64, text string) error
}

// HandshakeService is the shared lifecycle engine behind all three channel
// adapters.
type HandshakeService interface {
	Request(ctx context.Context, req *HandshakeRequest) (*HandshakeGrant, error)
	Scan(ctx context.Context, method Method, token string, actor ConfirmerContext) (*HandshakeToken, error)
	Confirm(ctx context.Context, method Method, token string, actor ConfirmerContext) (*HandshakeToken, error)
	// ConfirmPhone matches an inbound caller-ID against the most recent
	// pending phone_call token for that normalized number.
	ConfirmPhone(ctx context.Context, rawPhone string) error
	// Status reads the token and lazily flips it to expired when its TTL
	// has passed. Safe to call arbitrarily often, including after terminal.
	Status(ctx context.Context, method Method, token string) (*HandshakeToken, error)
	// Complete consumes a confirmed token exactly once and hands the
	// resolved identity to the session issuer.
	Complete(ctx context.Context, method Method, token string) (*CompletionResult, error)
}
