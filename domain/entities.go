package domain

import (
	"fmt"
	"time"
)

// Method identifies the out-of-band channel a handshake runs over.
type Method string

const (
	MethodQR               Method = "qr"
	MethodTelegramDeeplink Method = "telegram_deeplink"
	MethodPhoneCall        Method = "phone_call"
)

// ParseMethod validates a method name taken from a URL path.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodQR, MethodTelegramDeeplink, MethodPhoneCall:
		return Method(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Purpose says what a completed handshake is for.
type Purpose string

const (
	// PurposeLogin authenticates a browser session.
	PurposeLogin Purpose = "login"
	// PurposeLink attaches a second identity (Telegram id, phone number)
	// to an already-authenticated account.
	PurposeLink Purpose = "link"
)

// ParsePurpose validates a purpose name from a request body. Empty defaults
// to login.
func ParsePurpose(s string) (Purpose, error) {
	switch Purpose(s) {
	case "":
		return PurposeLogin, nil
	case PurposeLogin, PurposeLink:
		return Purpose(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPurpose, s)
}

// TokenStatus is the handshake token lifecycle state.
type TokenStatus string

const (
	StatusPending   TokenStatus = "pending"
	StatusScanned   TokenStatus = "scanned"
	StatusConfirmed TokenStatus = "confirmed"
	StatusUsed      TokenStatus = "used"
	StatusExpired   TokenStatus = "expired"
	StatusError     TokenStatus = "error"
)

// Terminal reports whether no further transitions are valid from s.
func (s TokenStatus) Terminal() bool {
	return s == StatusUsed || s == StatusExpired || s == StatusError
}

// RequesterContext captures who asked for the handshake. Immutable after
// creation.
type RequesterContext struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	// UserID is set only for link purpose (the account the new identity
	// gets attached to).
	UserID uint `json:"user_id,omitempty"`
	// Phone is the normalized number expected to call back, phone_call only.
	Phone string `json:"phone,omitempty"`
}

// ConfirmerContext is the identity that performed the out-of-band
// confirmation. Set exactly once; a later confirmation by a different
// identity is rejected, never overwritten.
type ConfirmerContext struct {
	TelegramID int64  `json:"telegram_id,omitempty"`
	Phone      string `json:"phone,omitempty"`
	DeviceInfo string `json:"device_info,omitempty"`
}

// Same reports whether two confirmer contexts refer to the same actor.
func (c ConfirmerContext) Same(o ConfirmerContext) bool {
	if c.TelegramID != 0 || o.TelegramID != 0 {
		return c.TelegramID == o.TelegramID
	}
	return c.Phone != "" && c.Phone == o.Phone
}

// HandshakeToken is the central entity: an opaque, time-bound, single-use
// identifier correlating a browser session with an out-of-band confirmation.
type HandshakeToken struct {
	Token     string            `json:"token"`
	Method    Method            `json:"method"`
	Purpose   Purpose           `json:"purpose"`
	Status    TokenStatus       `json:"status"`
	Requester RequesterContext  `json:"requester"`
	Confirmer *ConfirmerContext `json:"confirmer,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	// Resolved identity, populated on the transition into confirmed.
	ResolvedUserID    uint `json:"resolved_user_id,omitempty"`
	ResolvedAccountID uint `json:"resolved_account_id,omitempty"`
}

// ExpiredAt reports whether the token's absolute TTL has passed at the given
// server time. Expiry is never judged by client-supplied time.
func (t *HandshakeToken) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// User represents a portal user.
type User struct {
	ID         uint
	Email      string
	Phone      string
	TelegramID int64
	Role       string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Account is the ISP subscriber account a user belongs to.
type Account struct {
	ID        uint
	UserID    uint
	Number    string
	Tariff    string
	Suspended bool
}

// HandshakeRequest carries the browser-side parameters of a new handshake.
type HandshakeRequest struct {
	Method    Method
	Purpose   Purpose
	IP        string
	UserAgent string
	// UserID of the authenticated requester, link purpose only.
	UserID uint
	// Phone the user will call from, phone_call only (raw, pre-normalization).
	Phone string
}

// HandshakeGrant is what the browser gets back from request().
type HandshakeGrant struct {
	Token            *HandshakeToken
	OutOfBandPayload string
}

// AuthResult is what the session issuer hands back for a verified identity.
type AuthResult struct {
	User         *User
	AccessToken  string
	RefreshToken string
	SessionID    string
	ExpiresIn    int64
}

// CompletionResult is the outcome of consuming a confirmed token.
type CompletionResult struct {
	User    *User
	Account *Account
	Auth    *AuthResult
}

// Session represents an issued login session.
type Session struct {
	ID        string
	UserID    uint
	ExpiresAt time.Time
	CreatedAt time.Time
}
