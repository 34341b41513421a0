package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/you/oobauthsvc/domain"
)

// HandshakeConfig holds per-method TTLs and payload parameters.
type HandshakeConfig struct {
	QRTTL        time.Duration
	DeeplinkTTL  time.Duration
	PhoneTTL     time.Duration
	QRScheme     string
	AccessNumber string
}

// HandshakeServiceImpl implements domain.HandshakeService: one lifecycle
// engine shared by the three channel strategies. Every decision re-reads the
// token store; nothing confirmed is cached across a request boundary.
type HandshakeServiceImpl struct {
	store      domain.TokenStore
	users      domain.UserRepository
	accounts   domain.AccountRepository
	limiter    domain.RateLimiter
	notifier   domain.Notifier
	issuer     domain.SessionIssuer
	sms        domain.NotificationService
	strategies map[domain.Method]methodStrategy
	now        func() time.Time
}

// NewHandshakeService creates the handshake engine with all three channel
// strategies wired in.
func NewHandshakeService(
	store domain.TokenStore,
	users domain.UserRepository,
	accounts domain.AccountRepository,
	limiter domain.RateLimiter,
	notifier domain.Notifier,
	issuer domain.SessionIssuer,
	sms domain.NotificationService,
	bot domain.BotService,
	cfg HandshakeConfig,
) domain.HandshakeService {
	tg := telegramChannel{users: users, accounts: accounts}
	strategies := map[domain.Method]methodStrategy{
		domain.MethodQR:               &qrStrategy{telegramChannel: tg, tokenTTL: cfg.QRTTL, scheme: cfg.QRScheme},
		domain.MethodTelegramDeeplink: &deeplinkStrategy{telegramChannel: tg, tokenTTL: cfg.DeeplinkTTL, bot: bot},
		domain.MethodPhoneCall:        &phoneStrategy{users: users, accounts: accounts, tokenTTL: cfg.PhoneTTL, accessNumber: cfg.AccessNumber},
	}

	return &HandshakeServiceImpl{
		store:      store,
		users:      users,
		accounts:   accounts,
		limiter:    limiter,
		notifier:   notifier,
		issuer:     issuer,
		sms:        sms,
		strategies: strategies,
		now:        time.Now,
	}
}

// newHandshakeToken generates an opaque single-use token with 192 bits of
// entropy, base64url encoded.
func newHandshakeToken() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate handshake token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Request implements domain.HandshakeService
func (s *HandshakeServiceImpl) Request(ctx context.Context, req *domain.HandshakeRequest) (*domain.HandshakeGrant, error) {
	strat, ok := s.strategies[req.Method]
	if !ok {
		return nil, domain.ErrUnknownMethod
	}

	identity, err := strat.requesterIdentity(req)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Allow(ctx, identity, req.IP); err != nil {
		return nil, err
	}

	token, err := newHandshakeToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	tok := &domain.HandshakeToken{
		Token:   token,
		Method:  req.Method,
		Purpose: req.Purpose,
		Status:  domain.StatusPending,
		Requester: domain.RequesterContext{
			IP:        req.IP,
			UserAgent: req.UserAgent,
			UserID:    req.UserID,
			Phone:     req.Phone,
		},
		CreatedAt: now,
		ExpiresAt: now.Add(strat.ttl()),
	}

	if err := s.store.Create(ctx, tok); err != nil {
		return nil, fmt.Errorf("failed to store handshake token: %w", err)
	}

	prev, err := s.store.ReplacePending(ctx, identity, req.Method, token, strat.ttl())
	if err != nil {
		return nil, fmt.Errorf("failed to index pending token: %w", err)
	}
	if prev != "" {
		s.expireSuperseded(ctx, prev)
	}

	return &domain.HandshakeGrant{
		Token:            tok,
		OutOfBandPayload: strat.payload(token),
	}, nil
}

// expireSuperseded force-expires the previous pending token for the same
// identity and method. A conflict means the token already moved on its own;
// that is fine.
func (s *HandshakeServiceImpl) expireSuperseded(ctx context.Context, token string) {
	for _, from := range []domain.TokenStatus{domain.StatusPending, domain.StatusScanned} {
		flipped, err := s.store.Transition(ctx, token, from, domain.StatusExpired, nil)
		if err == nil {
			s.publish(ctx, flipped)
			return
		}
		if !errors.Is(err, domain.ErrTokenConflict) && !errors.Is(err, domain.ErrTokenExpired) && !errors.Is(err, domain.ErrTokenNotFound) {
			log.Printf("handshake: failed to expire superseded token: %v", err)
			return
		}
	}
}

// Status implements domain.HandshakeService
func (s *HandshakeServiceImpl) Status(ctx context.Context, method domain.Method, token string) (*domain.HandshakeToken, error) {
	if token == "" {
		return nil, domain.ErrTokenMissing
	}

	tok, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if tok.Method != method {
		return nil, domain.ErrTokenNotFound
	}

	if !tok.Status.Terminal() && tok.ExpiredAt(s.now()) {
		flipped, err := s.store.Transition(ctx, token, tok.Status, domain.StatusExpired, nil)
		if err == nil {
			s.publish(ctx, flipped)
			return flipped, nil
		}
		if errors.Is(err, domain.ErrTokenConflict) || errors.Is(err, domain.ErrTokenExpired) {
			// Someone else moved it first; the re-read is the truth.
			return s.store.GetByToken(ctx, token)
		}
		return nil, err
	}

	return tok, nil
}

// Scan implements domain.HandshakeService. QR only: it records which device
// is looking at the code before the user taps confirm.
func (s *HandshakeServiceImpl) Scan(ctx context.Context, method domain.Method, token string, actor domain.ConfirmerContext) (*domain.HandshakeToken, error) {
	if method != domain.MethodQR {
		return nil, domain.ErrUnknownMethod
	}
	strat := s.strategies[method]

	tok, err := s.Status(ctx, method, token)
	if err != nil {
		return nil, err
	}
	if tok.Status == domain.StatusExpired {
		return nil, domain.ErrTokenExpired
	}
	if tok.Status != domain.StatusPending {
		return nil, domain.ErrTokenConflict
	}

	if err := strat.validateActor(ctx, tok, actor); err != nil {
		return nil, err
	}

	updated, err := s.store.Transition(ctx, token, domain.StatusPending, domain.StatusScanned, func(t *domain.HandshakeToken) {
		t.Confirmer = &actor
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, updated)
	return updated, nil
}

// Confirm implements domain.HandshakeService
func (s *HandshakeServiceImpl) Confirm(ctx context.Context, method domain.Method, token string, actor domain.ConfirmerContext) (*domain.HandshakeToken, error) {
	strat, ok := s.strategies[method]
	if !ok {
		return nil, domain.ErrUnknownMethod
	}

	tok, err := s.Status(ctx, method, token)
	if err != nil {
		return nil, err
	}
	if tok.Status == domain.StatusExpired {
		return nil, domain.ErrTokenExpired
	}
	if tok.Status != domain.StatusPending && tok.Status != domain.StatusScanned {
		return nil, domain.ErrTokenConflict
	}

	// Actor binding: whoever scanned is the only one who may confirm.
	if tok.Status == domain.StatusScanned && tok.Confirmer != nil && !tok.Confirmer.Same(actor) {
		return nil, domain.ErrActorMismatch
	}

	userID, accountID, err := strat.resolveConfirmer(ctx, tok, actor)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Transition(ctx, token, tok.Status, domain.StatusConfirmed, func(t *domain.HandshakeToken) {
		if t.Confirmer == nil {
			t.Confirmer = &actor
		}
		t.ResolvedUserID = userID
		t.ResolvedAccountID = accountID
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, updated)
	return updated, nil
}

// ConfirmPhone implements domain.HandshakeService
func (s *HandshakeServiceImpl) ConfirmPhone(ctx context.Context, rawPhone string) error {
	normalized := NormalizePhone(rawPhone)
	if len(normalized) != 11 {
		return domain.ErrPhoneInvalid
	}

	token, err := s.store.PendingToken(ctx, phoneIdentity(normalized), domain.MethodPhoneCall)
	if err != nil {
		return err
	}

	_, err = s.Confirm(ctx, domain.MethodPhoneCall, token, domain.ConfirmerContext{Phone: normalized})
	return err
}

// Complete implements domain.HandshakeService
func (s *HandshakeServiceImpl) Complete(ctx context.Context, method domain.Method, token string) (*domain.CompletionResult, error) {
	tok, err := s.Status(ctx, method, token)
	if err != nil {
		return nil, err
	}
	if tok.Status != domain.StatusConfirmed {
		return nil, domain.ErrTokenNotReady
	}

	// Exactly-once consumption: the CAS to used is the read that counts.
	used, err := s.store.Transition(ctx, token, domain.StatusConfirmed, domain.StatusUsed, nil)
	if err != nil {
		if errors.Is(err, domain.ErrTokenConflict) || errors.Is(err, domain.ErrTokenExpired) {
			return nil, domain.ErrTokenNotReady
		}
		return nil, err
	}
	s.publish(ctx, used)

	user, err := s.users.FindByID(ctx, used.ResolvedUserID)
	if err != nil {
		s.markError(ctx, token)
		return nil, err
	}
	account, err := s.accounts.FindByUserID(ctx, user.ID)
	if err != nil {
		s.markError(ctx, token)
		return nil, err
	}

	auth, err := s.issuer.Issue(ctx, user)
	if err != nil {
		// The token is already spent; no compensating transaction. The user
		// restarts the handshake.
		s.markError(ctx, token)
		return nil, fmt.Errorf("session issuer failed after consumption: %w", err)
	}

	if used.Purpose == domain.PurposeLink && user.Phone != "" {
		notice := "A new sign-in method was linked to your account. Contact support if this was not you."
		if err := s.sms.SendSMS("+"+user.Phone, notice); err != nil {
			log.Printf("handshake: link notice SMS failed user_id=%d: %v", user.ID, err)
		}
	}

	return &domain.CompletionResult{
		User:    user,
		Account: account,
		Auth:    auth,
	}, nil
}

func (s *HandshakeServiceImpl) markError(ctx context.Context, token string) {
	flipped, err := s.store.Transition(ctx, token, domain.StatusUsed, domain.StatusError, nil)
	if err != nil {
		log.Printf("handshake: failed to mark token errored: %v", err)
		return
	}
	s.publish(ctx, flipped)
}

func (s *HandshakeServiceImpl) publish(ctx context.Context, tok *domain.HandshakeToken) {
	s.notifier.Publish(ctx, domain.TokenEvent{
		Token:  tok.Token,
		Method: tok.Method,
		Status: tok.Status,
		At:     s.now(),
	})
}
