package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ChangeFeedRepository moves row-change notices over Redis pub/sub.
type ChangeFeedRepository struct {
	client *redis.Client
}

// NewChangeFeedRepository constructs a change feed repository.
func NewChangeFeedRepository(client *redis.Client) *ChangeFeedRepository {
	return &ChangeFeedRepository{client: client}
}

// Publish sends payload to channel.
func (r *ChangeFeedRepository) Publish(ctx context.Context, channel string, payload []byte) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe relays channel messages until ctx ends. The returned channel is
// closed when the subscription stops.
func (r *ChangeFeedRepository) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis subscribe %s: client not configured", channel)
	}
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
