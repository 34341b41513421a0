package domain

import "errors"

// Handshake validation errors
var (
	ErrUnknownMethod  = errors.New("unknown handshake method")
	ErrUnknownPurpose = errors.New("unknown handshake purpose")
	ErrTokenMissing   = errors.New("handshake token is required")
	ErrPhoneInvalid   = errors.New("invalid phone number")
)

// Handshake lifecycle errors
var (
	ErrTokenNotFound = errors.New("handshake token not found")
	ErrTokenExpired  = errors.New("handshake token has expired")
	// ErrTokenConflict means the stored status no longer matches the
	// expected status of a transition: someone else already moved the token.
	ErrTokenConflict = errors.New("handshake token state conflict")
	// ErrTokenNotReady is the uniform completion failure: the token is not
	// in a consumable state, whatever the underlying reason.
	ErrTokenNotReady  = errors.New("handshake token not ready")
	ErrNoPendingToken = errors.New("no pending handshake token")
)

// Identity errors
var (
	ErrActorMismatch  = errors.New("confirming actor does not match scanning actor")
	ErrIdentityLinked = errors.New("identity is already linked to another account")
	ErrUserNotFound   = errors.New("user not found")
	ErrUserInactive   = errors.New("user account is inactive")
	// ErrAccountSuspended rejects confirmations for a subscriber account the
	// ISP has suspended, even when the user record itself is active.
	ErrAccountSuspended = errors.New("subscriber account is suspended")
	ErrRateLimited    = errors.New("too many handshake requests")
)

// Init-data errors (Telegram Mini-App signed payload)
var (
	ErrInitDataInvalid = errors.New("invalid mini-app init data")
	ErrInitDataStale   = errors.New("mini-app init data is stale")
)

// Session issuer errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session has expired")
	ErrTokenInvalid    = errors.New("invalid token")
	ErrJWTExpired      = errors.New("token has expired")
	ErrTokenMalformed  = errors.New("malformed token")
)
