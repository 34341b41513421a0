package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/you/oobauthsvc/domain"
)

// TokenRepositoryImpl implements domain.TokenStore using Redis.
//
// Records are kept past their protocol expiry (retention window) so that
// poll/stream reads of a terminal token keep working; an expired or used
// record is inert, not deleted.
type TokenRepositoryImpl struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewTokenRepository creates a Redis-backed handshake token store.
func NewTokenRepository(client *redis.Client, retention time.Duration) domain.TokenStore {
	if retention <= 0 {
		retention = time.Hour
	}
	return &TokenRepositoryImpl{
		client:    client,
		prefix:    "hs:",
		retention: retention,
	}
}

func (r *TokenRepositoryImpl) key(token string) string {
	return r.prefix + "token:" + token
}

func (r *TokenRepositoryImpl) pendingKey(identity string, method domain.Method) string {
	return r.prefix + "pending:" + string(method) + ":" + identity
}

// Create implements domain.TokenStore.
func (r *TokenRepositoryImpl) Create(ctx context.Context, token *domain.HandshakeToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal handshake token: %w", err)
	}

	ttl := time.Until(token.ExpiresAt) + r.retention
	if ttl <= 0 {
		ttl = r.retention
	}
	return r.client.Set(ctx, r.key(token.Token), data, ttl).Err()
}

// GetByToken implements domain.TokenStore.
func (r *TokenRepositoryImpl) GetByToken(ctx context.Context, token string) (*domain.HandshakeToken, error) {
	data, err := r.client.Get(ctx, r.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}

	var rec domain.HandshakeToken
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal handshake token: %w", err)
	}
	return &rec, nil
}

// Transition implements domain.TokenStore. The compare-and-swap runs inside
// a WATCH transaction so two concurrent transitions on the same token can
// never both succeed; the loser either retries against the new state and
// gets ErrTokenConflict, or observes the record gone.
func (r *TokenRepositoryImpl) Transition(ctx context.Context, token string, expected, next domain.TokenStatus, patch func(*domain.HandshakeToken)) (*domain.HandshakeToken, error) {
	const maxRetries = 4
	key := r.key(token)

	for i := 0; i < maxRetries; i++ {
		var updated *domain.HandshakeToken

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			var rec domain.HandshakeToken
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal handshake token: %w", err)
			}

			if rec.Status != expected {
				return domain.ErrTokenConflict
			}

			// The expiry clock check rides inside the same atomic swap: a
			// confirming signal racing the TTL can only ever land on expired.
			if next != domain.StatusExpired && rec.ExpiredAt(time.Now()) {
				rec.Status = domain.StatusExpired
				encoded, err := json.Marshal(&rec)
				if err != nil {
					return fmt.Errorf("failed to marshal handshake token: %w", err)
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, encoded, r.retention)
					return nil
				})
				if err != nil {
					return err
				}
				return domain.ErrTokenExpired
			}

			rec.Status = next
			if patch != nil {
				patch(&rec)
			}

			encoded, err := json.Marshal(&rec)
			if err != nil {
				return fmt.Errorf("failed to marshal handshake token: %w", err)
			}

			ttl := time.Until(rec.ExpiresAt) + r.retention
			if ttl <= 0 {
				ttl = r.retention
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			updated = &rec
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrTokenNotFound
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return nil, domain.ErrTokenConflict
}

// ReplacePending implements domain.TokenStore.
func (r *TokenRepositoryImpl) ReplacePending(ctx context.Context, identity string, method domain.Method, token string, ttl time.Duration) (string, error) {
	key := r.pendingKey(identity, method)

	prev, err := r.client.GetSet(ctx, key, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return "", err
	}
	if prev == token {
		return "", nil
	}
	return prev, nil
}

// PendingToken implements domain.TokenStore.
func (r *TokenRepositoryImpl) PendingToken(ctx context.Context, identity string, method domain.Method) (string, error) {
	token, err := r.client.Get(ctx, r.pendingKey(identity, method)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNoPendingToken
		}
		return "", err
	}
	return token, nil
}
