package auth

import (
	"errors"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"
	"github.com/you/oobauthsvc/domain"
)

// InitDataServiceImpl implements domain.InitDataVerifier for Telegram
// Mini-App signed init-data blobs. The signature replay window (maxAge) is
// independent of any handshake TTL.
type InitDataServiceImpl struct {
	botToken string
	maxAge   time.Duration
}

// NewInitDataService creates a new init-data verifier.
func NewInitDataService(botToken string, maxAge time.Duration) domain.InitDataVerifier {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &InitDataServiceImpl{
		botToken: botToken,
		maxAge:   maxAge,
	}
}

// Verify implements domain.InitDataVerifier
func (s *InitDataServiceImpl) Verify(raw string) (*domain.ConfirmerContext, error) {
	if raw == "" {
		return nil, domain.ErrInitDataInvalid
	}

	if err := initdata.Validate(raw, s.botToken, s.maxAge); err != nil {
		if errors.Is(err, initdata.ErrExpired) {
			return nil, domain.ErrInitDataStale
		}
		return nil, domain.ErrInitDataInvalid
	}

	data, err := initdata.Parse(raw)
	if err != nil {
		return nil, domain.ErrInitDataInvalid
	}
	if data.User.ID == 0 {
		return nil, domain.ErrInitDataInvalid
	}

	device := strings.TrimSpace(data.User.FirstName + " " + data.User.LastName)
	if data.User.Username != "" {
		device = "@" + data.User.Username
	}

	return &domain.ConfirmerContext{
		TelegramID: data.User.ID,
		DeviceInfo: device,
	}, nil
}
