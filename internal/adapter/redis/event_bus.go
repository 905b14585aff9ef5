package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
)

const DefaultEventChannel = "polls:events"

// EventBus relays event payloads between instances over Redis Pub/Sub.
// Delivery is at most once; subscribers that are offline miss messages.
type EventBus struct {
	rdb     *goredis.Client
	channel string
}

var _ domain.EventBus = (*EventBus)(nil)

func NewEventBus(rdb *goredis.Client, channel string) *EventBus {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &EventBus{rdb: rdb, channel: channel}
}

func (b *EventBus) Publish(ctx context.Context, data []byte) error {
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription. handler runs
// on a single goroutine, in arrival order. The returned stop function
// unsubscribes and waits for that goroutine.
func (b *EventBus) Subscribe(ctx context.Context, handler func(data []byte)) (func(), error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			case <-subCtx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			if err := pubsub.Close(); err != nil {
				slog.Warn("Failed to close redis subscription", "channel", b.channel, "error", err)
			}
			wg.Wait()
		})
	}, nil
}
