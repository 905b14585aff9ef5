package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
	"github.com/satoshiwasHere/alx-polly/internal/metrics"
	"github.com/satoshiwasHere/alx-polly/internal/platform/correlation"
)

// relayMessage is the payload exchanged between instances.
type relayMessage struct {
	Origin string           `json:"origin"`
	Kind   domain.EventKind `json:"kind"`
	PollID string           `json:"pollId"`
	Poll   *domain.Poll     `json:"poll,omitempty"`
}

// Relay forwards locally produced events to the other instances over an
// EventBus and hands theirs back to this instance.
type Relay struct {
	bus    domain.EventBus
	origin string
}

func NewRelay(bus domain.EventBus) *Relay {
	return &Relay{bus: bus, origin: uuid.NewString()}
}

// Origin identifies this instance on the bus.
func (r *Relay) Origin() string {
	return r.origin
}

// Forward publishes event for the other instances. Failures are logged; the
// local fan-out has already happened.
func (r *Relay) Forward(ctx context.Context, event domain.VoteEvent) {
	msg := relayMessage{Origin: r.origin, Kind: event.Kind, PollID: event.PollID}
	if event.Kind != domain.EventPollDeleted {
		p := event.Poll
		msg.Poll = &p
	}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.ErrorContext(ctx, "Relay: marshal failed", "poll_id", event.PollID, "error", err)
		metrics.RelayMessagesTotal.WithLabelValues("out", "error").Inc()
		return
	}

	if err := r.bus.Publish(ctx, data); err != nil {
		slog.WarnContext(ctx, "Relay: publish failed", "poll_id", event.PollID, "error", err)
		metrics.RelayMessagesTotal.WithLabelValues("out", "error").Inc()
		return
	}
	metrics.RelayMessagesTotal.WithLabelValues("out", "ok").Inc()
}

// Start subscribes to the bus and passes every event from another instance
// to apply. The returned stop ends the subscription.
func (r *Relay) Start(ctx context.Context, apply func(ctx context.Context, event domain.VoteEvent)) (func(), error) {
	stop, err := r.bus.Subscribe(ctx, func(data []byte) {
		var msg relayMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Relay: dropping malformed message", "error", err)
			metrics.RelayMessagesTotal.WithLabelValues("in", "error").Inc()
			return
		}
		if msg.Origin == r.origin {
			metrics.RelayMessagesTotal.WithLabelValues("in", "skipped").Inc()
			return
		}

		event := domain.VoteEvent{Kind: msg.Kind, PollID: msg.PollID}
		if msg.Poll != nil {
			event.Poll = *msg.Poll
		}

		msgCtx := correlation.WithID(context.Background(), correlation.NewID())
		apply(msgCtx, event)
		metrics.RelayMessagesTotal.WithLabelValues("in", "ok").Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("relay subscribe failed: %w", err)
	}

	slog.Info("Relay subscribed", "origin", r.origin)
	return stop, nil
}
