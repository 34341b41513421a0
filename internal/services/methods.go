package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/you/oobauthsvc/domain"
)

// methodStrategy parameterizes the shared handshake engine per channel:
// TTL, out-of-band payload shape, the requester identity the single-pending
// invariant keys on, and the post-confirm identity resolution.
type methodStrategy interface {
	method() domain.Method
	ttl() time.Duration
	payload(token string) string
	// requesterIdentity derives the identity the pending index keys on. It
	// may normalize request fields in place (phone numbers).
	requesterIdentity(req *domain.HandshakeRequest) (string, error)
	// validateActor runs the scan-time guard: the actor must resolve to an
	// existing, non-suspended account (login purpose only).
	validateActor(ctx context.Context, tok *domain.HandshakeToken, actor domain.ConfirmerContext) error
	// resolveConfirmer maps the confirming actor to the user and account
	// the completed handshake resolves to, applying link-purpose guards.
	resolveConfirmer(ctx context.Context, tok *domain.HandshakeToken, actor domain.ConfirmerContext) (userID, accountID uint, err error)
}

// telegramChannel holds the identity resolution shared by the QR and
// deep-link strategies: both confirm through a Telegram actor.
type telegramChannel struct {
	users    domain.UserRepository
	accounts domain.AccountRepository
}

func (c *telegramChannel) validateActor(ctx context.Context, tok *domain.HandshakeToken, actor domain.ConfirmerContext) error {
	if actor.TelegramID == 0 {
		return domain.ErrInitDataInvalid
	}
	if tok.Purpose == domain.PurposeLink {
		// The whole point of link is an actor the portal does not know yet.
		return nil
	}

	user, err := c.users.FindByTelegramID(ctx, actor.TelegramID)
	if err != nil {
		return err
	}
	if !user.IsActive {
		return domain.ErrUserInactive
	}
	account, err := c.accounts.FindByUserID(ctx, user.ID)
	if err != nil {
		return err
	}
	if account.Suspended {
		return domain.ErrAccountSuspended
	}
	return nil
}

func (c *telegramChannel) resolveConfirmer(ctx context.Context, tok *domain.HandshakeToken, actor domain.ConfirmerContext) (uint, uint, error) {
	if actor.TelegramID == 0 {
		return 0, 0, domain.ErrInitDataInvalid
	}

	var user *domain.User
	if tok.Purpose == domain.PurposeLink {
		owner := tok.Requester.UserID
		if owner == 0 {
			return 0, 0, domain.ErrUserNotFound
		}

		existing, err := c.users.FindByTelegramID(ctx, actor.TelegramID)
		switch {
		case err == nil && existing.ID != owner:
			return 0, 0, domain.ErrIdentityLinked
		case err == nil:
			// Already linked to this very account: idempotent no-op.
		case errors.Is(err, domain.ErrUserNotFound):
			if err := c.users.LinkTelegram(ctx, owner, actor.TelegramID); err != nil {
				return 0, 0, fmt.Errorf("failed to link telegram identity: %w", err)
			}
		default:
			return 0, 0, err
		}

		user, err = c.users.FindByID(ctx, owner)
		if err != nil {
			return 0, 0, err
		}
	} else {
		var err error
		user, err = c.users.FindByTelegramID(ctx, actor.TelegramID)
		if err != nil {
			return 0, 0, err
		}
	}

	if !user.IsActive {
		return 0, 0, domain.ErrUserInactive
	}

	account, err := c.accounts.FindByUserID(ctx, user.ID)
	if err != nil {
		return 0, 0, err
	}
	if account.Suspended {
		return 0, 0, domain.ErrAccountSuspended
	}
	return user.ID, account.ID, nil
}

// qrStrategy drives the QR method: the browser renders a custom-scheme URI
// as a QR code; a second, already-authenticated device scans and confirms.
type qrStrategy struct {
	telegramChannel
	tokenTTL time.Duration
	scheme   string
}

func (s *qrStrategy) method() domain.Method { return domain.MethodQR }
func (s *qrStrategy) ttl() time.Duration    { return s.tokenTTL }

func (s *qrStrategy) payload(token string) string {
	return fmt.Sprintf("%s://auth/qr?token=%s", s.scheme, token)
}

func (s *qrStrategy) requesterIdentity(req *domain.HandshakeRequest) (string, error) {
	if req.Purpose == domain.PurposeLink {
		if req.UserID == 0 {
			return "", domain.ErrUserNotFound
		}
		return fmt.Sprintf("user:%d", req.UserID), nil
	}
	return "ip:" + req.IP, nil
}

// deeplinkStrategy drives the Telegram deep-link method: the browser shows a
// bot link, the confirmation arrives later as a /start webhook message.
type deeplinkStrategy struct {
	telegramChannel
	tokenTTL time.Duration
	bot      domain.BotService
}

func (s *deeplinkStrategy) method() domain.Method { return domain.MethodTelegramDeeplink }
func (s *deeplinkStrategy) ttl() time.Duration    { return s.tokenTTL }

func (s *deeplinkStrategy) payload(token string) string {
	return s.bot.DeepLink(token)
}

func (s *deeplinkStrategy) requesterIdentity(req *domain.HandshakeRequest) (string, error) {
	if req.Purpose == domain.PurposeLink {
		if req.UserID == 0 {
			return "", domain.ErrUserNotFound
		}
		return fmt.Sprintf("user:%d", req.UserID), nil
	}
	return "ip:" + req.IP, nil
}

// phoneStrategy drives the phone-call method: the payload is the access
// number to dial, the confirmation is an inbound caller-ID webhook.
type phoneStrategy struct {
	users        domain.UserRepository
	accounts     domain.AccountRepository
	tokenTTL     time.Duration
	accessNumber string
}

func (s *phoneStrategy) method() domain.Method { return domain.MethodPhoneCall }
func (s *phoneStrategy) ttl() time.Duration    { return s.tokenTTL }

func (s *phoneStrategy) payload(string) string {
	return s.accessNumber
}

func (s *phoneStrategy) requesterIdentity(req *domain.HandshakeRequest) (string, error) {
	normalized := NormalizePhone(req.Phone)
	if len(normalized) != 11 {
		return "", domain.ErrPhoneInvalid
	}
	req.Phone = normalized
	return phoneIdentity(normalized), nil
}

func (s *phoneStrategy) validateActor(context.Context, *domain.HandshakeToken, domain.ConfirmerContext) error {
	// No scan stage on this channel.
	return domain.ErrUnknownMethod
}

func (s *phoneStrategy) resolveConfirmer(ctx context.Context, tok *domain.HandshakeToken, actor domain.ConfirmerContext) (uint, uint, error) {
	if actor.Phone == "" {
		return 0, 0, domain.ErrPhoneInvalid
	}

	var user *domain.User
	if tok.Purpose == domain.PurposeLink {
		owner := tok.Requester.UserID
		if owner == 0 {
			return 0, 0, domain.ErrUserNotFound
		}

		existing, err := s.users.FindByPhone(ctx, actor.Phone)
		switch {
		case err == nil && existing.ID != owner:
			return 0, 0, domain.ErrIdentityLinked
		case err == nil:
		case errors.Is(err, domain.ErrUserNotFound):
			if err := s.users.LinkPhone(ctx, owner, actor.Phone); err != nil {
				return 0, 0, fmt.Errorf("failed to link phone: %w", err)
			}
		default:
			return 0, 0, err
		}

		user, err = s.users.FindByID(ctx, owner)
		if err != nil {
			return 0, 0, err
		}
	} else {
		var err error
		user, err = s.users.FindByPhone(ctx, actor.Phone)
		if err != nil {
			return 0, 0, err
		}
	}

	if !user.IsActive {
		return 0, 0, domain.ErrUserInactive
	}

	account, err := s.accounts.FindByUserID(ctx, user.ID)
	if err != nil {
		return 0, 0, err
	}
	if account.Suspended {
		return 0, 0, domain.ErrAccountSuspended
	}
	return user.ID, account.ID, nil
}

func phoneIdentity(normalized string) string {
	return "phone:" + normalized
}
