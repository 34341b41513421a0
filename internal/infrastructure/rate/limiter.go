package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/you/oobauthsvc/domain"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxRequests      int
	Window           time.Duration
	EnableIPThrottle bool
}

// Limiter enforces per-identity and per-IP admission limits on handshake
// creation using Redis counters with fixed-window semantics.
type Limiter struct {
	redis  *redis.Client
	config Config
}

// New creates a rate Limiter backed by the given Redis client.
func New(redisClient *redis.Client, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Allow implements domain.RateLimiter. It counts the attempt and returns
// domain.ErrRateLimited once either the identity or the IP exceeds the
// per-window budget.
func (l *Limiter) Allow(ctx context.Context, identity, ip string) error {
	count, err := l.incrementWithTTL(ctx, identityKey(identity), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRequests) {
		return domain.ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, ipKey(ip), l.config.Window)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxRequests) {
			return domain.ErrRateLimited
		}
	}

	return nil
}

// Reset clears the counters for an identity+IP pair.
func (l *Limiter) Reset(ctx context.Context, identity, ip string) error {
	keys := []string{identityKey(identity)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, ipKey(ip))
	}
	return l.redis.Del(ctx, keys...).Err()
}

// Attempts returns the current counter for an identity. Missing keys return
// zero.
func (l *Limiter) Attempts(ctx context.Context, identity string) (int, error) {
	count, err := l.redis.Get(ctx, identityKey(identity)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, err
		}
	}

	return count, nil
}

func identityKey(identity string) string {
	return fmt.Sprintf("hs:rl:id:%s", identity)
}

func ipKey(ip string) string {
	return fmt.Sprintf("hs:rl:ip:%s", ip)
}
