package app

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/oobauthsvc/internal/config"
	httpx "github.com/you/oobauthsvc/internal/http"
	"github.com/you/oobauthsvc/internal/http/handlers"
	"github.com/you/oobauthsvc/internal/http/middleware"
	"github.com/you/oobauthsvc/internal/infrastructure/auth"
	"github.com/you/oobauthsvc/internal/infrastructure/database"
	"github.com/you/oobauthsvc/internal/infrastructure/notifications"
	"github.com/you/oobauthsvc/internal/infrastructure/rate"
	"github.com/you/oobauthsvc/internal/infrastructure/repositories"
	"github.com/you/oobauthsvc/internal/services"
)

func Run(cfg *config.Config) error {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	gdb, err := database.Open(cfg.DSN)
	if err != nil {
		return err
	}
	if err := database.AutoMigrate(gdb); err != nil {
		return err
	}

	rdb := database.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB).Client
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return err
	}

	// Infrastructure services
	tokenSvc := auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	verifier := auth.NewInitDataService(cfg.TelegramBotToken, cfg.InitDataMaxAge)
	smsSvc := notifications.NewTwilioService(cfg.TwilioSID, cfg.TwilioToken, cfg.TwilioFrom)
	botSvc, err := notifications.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramBotName)
	if err != nil {
		return err
	}

	// Repositories
	userRepo := repositories.NewUserRepository(gdb)
	accountRepo := repositories.NewAccountRepository(gdb)
	sessionRepo := repositories.NewSessionRepository(rdb, cfg.RefreshTTL)
	tokenStore := repositories.NewTokenRepository(rdb, cfg.TokenRetention)

	// Services
	limiter := rate.New(rdb, rate.Config{
		MaxRequests:      cfg.RateMaxRequests,
		Window:           cfg.RateWindow,
		EnableIPThrottle: cfg.RateIPThrottle,
	})
	notifier := services.NewRedisNotifier(rdb)
	issuer := services.NewSessionIssuer(tokenSvc, sessionRepo, cfg.AccessTTL, cfg.RefreshTTL)
	handshakeSvc := services.NewHandshakeService(tokenStore, userRepo, accountRepo, limiter, notifier, issuer, smsSvc, botSvc, services.HandshakeConfig{
		QRTTL:        cfg.QRTTL,
		DeeplinkTTL:  cfg.DeeplinkTTL,
		PhoneTTL:     cfg.PhoneTTL,
		QRScheme:     cfg.QRScheme,
		AccessNumber: cfg.AccessNumber,
	})

	// Handlers and middleware
	handshakeH := handlers.NewHandshakeHandlers(handshakeSvc, verifier)
	streamH := handlers.NewStreamHandlers(handshakeSvc, notifier, cfg.StreamPollInterval, cfg.StreamMaxLifetime)
	webhookH := handlers.NewWebhookHandlers(handshakeSvc, botSvc)
	jwtMW := middleware.NewAuthMW(tokenSvc, sessionRepo)

	r := httpx.BuildRouter(handshakeH, streamH, webhookH, jwtMW)

	addr := ":" + cfg.Port
	log.Printf("listening on %s", addr)
	return http.ListenAndServe(addr, r)
}
