// Package ristretto implements domain.PollCache on dgraph-io/ristretto as an
// in-process L1 cache of poll snapshots.
package ristretto

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
)

// PollCache keeps up to maxItems snapshots for ttl each.
type PollCache struct {
	mu  sync.Mutex // serializes compare-and-store
	c   *ristretto.Cache[string, domain.Poll]
	ttl time.Duration
}

func NewPollCache(maxItems int64, ttl time.Duration) (*PollCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, domain.Poll]{
		NumCounters: maxItems * 10, // ~10x expected items
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poll cache: %w", err)
	}
	return &PollCache{c: c, ttl: ttl}, nil
}

func (p *PollCache) Get(pollID string) (domain.Poll, bool) {
	poll, ok := p.c.Get(pollID)
	if !ok {
		return domain.Poll{}, false
	}
	return poll.Clone(), true
}

// Store caches poll unless the cached snapshot already has more votes.
func (p *PollCache) Store(poll domain.Poll) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.c.Get(poll.ID); ok && cur.TotalVotes() > poll.TotalVotes() {
		return
	}
	p.c.SetWithTTL(poll.ID, poll.Clone(), 1, p.ttl)
	p.c.Wait()
}

func (p *PollCache) Delete(pollID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.c.Del(pollID)
}

// Close shuts down the cache and releases resources.
func (p *PollCache) Close() {
	p.c.Close()
}
