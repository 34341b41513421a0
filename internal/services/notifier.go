package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/you/oobauthsvc/domain"
)

// RedisNotifier implements domain.Notifier over Redis pub/sub. Publishing is
// fire-and-forget with no delivery guarantee; subscribers that miss an event
// still converge through store polling.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier creates a pub/sub backed completion notifier.
func NewRedisNotifier(client *redis.Client) domain.Notifier {
	return &RedisNotifier{client: client}
}

func eventChannel(method domain.Method, token string) string {
	return "hs:events:" + string(method) + ":" + token
}

// Publish implements domain.Notifier
func (n *RedisNotifier) Publish(ctx context.Context, event domain.TokenEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("notifier: failed to marshal event: %v", err)
		return
	}
	if err := n.client.Publish(ctx, eventChannel(event.Method, event.Token), payload).Err(); err != nil {
		log.Printf("notifier: publish failed token=%s status=%s: %v", event.Token, event.Status, err)
	}
}

// Subscribe implements domain.Notifier
func (n *RedisNotifier) Subscribe(ctx context.Context, method domain.Method, token string) (<-chan domain.TokenEvent, func()) {
	sub := n.client.Subscribe(ctx, eventChannel(method, token))
	events := make(chan domain.TokenEvent, 8)

	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			var ev domain.TokenEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case events <- ev:
			default:
				// Slow consumer: drop, the store is authoritative anyway.
			}
		}
	}()

	return events, func() { _ = sub.Close() }
}
