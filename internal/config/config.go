package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Port    int    `yaml:"port"`
	GinMode string `yaml:"gin_mode"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	Issuer     string `yaml:"issuer"`
	AccessTTL  string `yaml:"access_ttl"`
	RefreshTTL string `yaml:"refresh_ttl"`
}

type HandshakeConfig struct {
	QRTTL        string `yaml:"qr_ttl"`
	DeeplinkTTL  string `yaml:"deeplink_ttl"`
	PhoneTTL     string `yaml:"phone_ttl"`
	Retention    string `yaml:"retention"`
	QRScheme     string `yaml:"qr_scheme"`
	AccessNumber string `yaml:"access_number"`
}

type StreamConfig struct {
	PollInterval string `yaml:"poll_interval"`
	MaxLifetime  string `yaml:"max_lifetime"`
}

type TelegramConfig struct {
	BotToken       string `yaml:"bot_token"`
	BotUsername    string `yaml:"bot_username"`
	InitDataMaxAge string `yaml:"init_data_max_age"`
}

type RateLimitConfig struct {
	MaxRequests int    `yaml:"max_requests"`
	Window      string `yaml:"window"`
	IPThrottle  bool   `yaml:"ip_throttle"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

type ConfigFile struct {
	App       AppConfig       `yaml:"app"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	Handshake HandshakeConfig `yaml:"handshake"`
	Stream    StreamConfig    `yaml:"stream"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Twilio    TwilioConfig    `yaml:"twilio"`
}

type Config struct {
	Port               string
	GinMode            string
	DSN                string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	JWTSecret          string
	JWTIssuer          string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	QRTTL              time.Duration
	DeeplinkTTL        time.Duration
	PhoneTTL           time.Duration
	TokenRetention     time.Duration
	QRScheme           string
	AccessNumber       string
	StreamPollInterval time.Duration
	StreamMaxLifetime  time.Duration
	TelegramBotToken   string
	TelegramBotName    string
	InitDataMaxAge     time.Duration
	RateMaxRequests    int
	RateWindow         time.Duration
	RateIPThrottle     bool
	TwilioSID          string
	TwilioToken        string
	TwilioFrom         string
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func Load() (*Config, error) {
	configFile, err := loadConfigFile(env("CONFIG_PATH", "config/config.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	durations := map[string]string{
		"jwt.access_ttl":             configFile.JWT.AccessTTL,
		"jwt.refresh_ttl":            configFile.JWT.RefreshTTL,
		"handshake.qr_ttl":           configFile.Handshake.QRTTL,
		"handshake.deeplink_ttl":     configFile.Handshake.DeeplinkTTL,
		"handshake.phone_ttl":        configFile.Handshake.PhoneTTL,
		"handshake.retention":        configFile.Handshake.Retention,
		"stream.poll_interval":       configFile.Stream.PollInterval,
		"stream.max_lifetime":        configFile.Stream.MaxLifetime,
		"telegram.init_data_max_age": configFile.Telegram.InitDataMaxAge,
		"rate_limit.window":          configFile.RateLimit.Window,
	}

	parsed := map[string]time.Duration{}
	for name, raw := range durations {
		v, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid duration for %s: %w", name, err)
		}
		parsed[name] = v
	}

	return &Config{
		Port:               fmt.Sprintf("%d", configFile.App.Port),
		GinMode:            configFile.App.GinMode,
		DSN:                configFile.Database.DSN,
		RedisAddr:          configFile.Redis.Addr,
		RedisPassword:      configFile.Redis.Password,
		RedisDB:            configFile.Redis.DB,
		JWTSecret:          env("JWT_SECRET", configFile.JWT.Secret),
		JWTIssuer:          configFile.JWT.Issuer,
		AccessTTL:          parsed["jwt.access_ttl"],
		RefreshTTL:         parsed["jwt.refresh_ttl"],
		QRTTL:              parsed["handshake.qr_ttl"],
		DeeplinkTTL:        parsed["handshake.deeplink_ttl"],
		PhoneTTL:           parsed["handshake.phone_ttl"],
		TokenRetention:     parsed["handshake.retention"],
		QRScheme:           configFile.Handshake.QRScheme,
		AccessNumber:       configFile.Handshake.AccessNumber,
		StreamPollInterval: parsed["stream.poll_interval"],
		StreamMaxLifetime:  parsed["stream.max_lifetime"],
		TelegramBotToken:   env("TELEGRAM_BOT_TOKEN", configFile.Telegram.BotToken),
		TelegramBotName:    configFile.Telegram.BotUsername,
		InitDataMaxAge:     parsed["telegram.init_data_max_age"],
		RateMaxRequests:    configFile.RateLimit.MaxRequests,
		RateWindow:         parsed["rate_limit.window"],
		RateIPThrottle:     configFile.RateLimit.IPThrottle,
		TwilioSID:          env("TWILIO_ACCOUNT_SID", configFile.Twilio.AccountSID),
		TwilioToken:        env("TWILIO_AUTH_TOKEN", configFile.Twilio.AuthToken),
		TwilioFrom:         configFile.Twilio.FromNumber,
	}, nil
}

func loadConfigFile(path string) (*ConfigFile, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file at %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(bytes, &config); err != nil {
		return nil, fmt.Errorf("could not parse config yaml: %w", err)
	}

	return &config, nil
}
