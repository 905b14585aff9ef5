// Package nats implements the cross-instance EventBus on core NATS
// publish/subscribe.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
	"github.com/satoshiwasHere/alx-polly/internal/metrics"
)

const DefaultSubject = "polls.events"

// EventBus fans every published payload out to all subscribed instances.
// Each subscription delivers messages one at a time in publish order.
type EventBus struct {
	nc      *nats.Conn
	subject string
}

var _ domain.EventBus = (*EventBus)(nil)

// Connect dials NATS and keeps reconnecting in the background for the
// lifetime of the connection.
func Connect(ctx context.Context, url, subject string) (*EventBus, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	nc, err := nats.Connect(url,
		nats.Name("polly"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("nats async error", "subject", subject, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	if err := nc.FlushWithContext(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats flush: %w", err)
	}

	slog.Info("nats connected", "url", url, "subject", subject)
	return &EventBus{nc: nc, subject: subject}, nil
}

func (b *EventBus) Publish(_ context.Context, data []byte) error {
	if err := b.nc.Publish(b.subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", b.subject, err)
	}
	return nil
}

// Subscribe returns after the server has seen the subscription.
func (b *EventBus) Subscribe(ctx context.Context, handler func(data []byte)) (func(), error) {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", b.subject, err)
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := sub.Drain(); err != nil {
				slog.Warn("nats drain failed", "subject", b.subject, "error", err)
				metrics.RelayMessagesTotal.WithLabelValues("in", "error").Inc()
			}
		})
	}, nil
}

// Ping round-trips to the server. Used as a readiness check.
func (b *EventBus) Ping(ctx context.Context) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("nats not connected: %s", b.nc.Status())
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (b *EventBus) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
