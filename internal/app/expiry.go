package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
	"github.com/satoshiwasHere/alx-polly/internal/platform/correlation"
)

const defaultExpiryInterval = time.Second

// ExpiryWatcher remembers the deadlines of open polls and reports each one
// once it has passed, so screens flip to closed without waiting for a vote.
type ExpiryWatcher struct {
	clock    clockwork.Clock
	interval time.Duration

	mu        sync.Mutex
	deadlines map[string]time.Time
}

func NewExpiryWatcher(clock clockwork.Clock, interval time.Duration) *ExpiryWatcher {
	if interval <= 0 {
		interval = defaultExpiryInterval
	}
	return &ExpiryWatcher{
		clock:     clock,
		interval:  interval,
		deadlines: make(map[string]time.Time),
	}
}

// Track registers an active poll with a future deadline. Anything else is
// dropped from the watch list.
func (w *ExpiryWatcher) Track(p domain.Poll) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !p.Active || p.ExpiresAt == nil || p.Expired(w.clock.Now()) {
		delete(w.deadlines, p.ID)
		return
	}
	w.deadlines[p.ID] = *p.ExpiresAt
}

func (w *ExpiryWatcher) Untrack(pollID string) {
	w.mu.Lock()
	delete(w.deadlines, pollID)
	w.mu.Unlock()
}

// Run checks deadlines every interval and calls onExpired once per lapsed
// poll. It blocks until ctx is cancelled.
func (w *ExpiryWatcher) Run(ctx context.Context, onExpired func(ctx context.Context, pollID string)) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			for _, id := range w.due() {
				tickCtx := correlation.WithID(ctx, correlation.NewID())
				slog.DebugContext(tickCtx, "Expiry: deadline passed", "poll_id", id)
				onExpired(tickCtx, id)
			}
		}
	}
}

func (w *ExpiryWatcher) due() []string {
	now := w.clock.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	var ids []string
	for id, deadline := range w.deadlines {
		if now.After(deadline) {
			ids = append(ids, id)
			delete(w.deadlines, id)
		}
	}
	return ids
}

func (w *ExpiryWatcher) tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.deadlines)
}
