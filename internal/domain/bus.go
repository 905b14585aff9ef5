package domain

import "context"

// EventBus moves opaque event payloads between service instances.
type EventBus interface {
	Publish(ctx context.Context, data []byte) error
	Subscribe(ctx context.Context, handler func(data []byte)) (stop func(), err error)
}

// Publisher accepts events for fan-out.
type Publisher interface {
	Publish(ctx context.Context, event VoteEvent)
}
