package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshiwasHere/alx-polly/internal/adapter/memory"
	"github.com/satoshiwasHere/alx-polly/internal/broadcast"
	"github.com/satoshiwasHere/alx-polly/internal/domain"
)

// --- Mock implementations ---

type mockStore struct {
	createPollFn func(ctx context.Context, poll domain.Poll) (domain.Poll, error)
	getPollFn    func(ctx context.Context, pollID string) (domain.Poll, error)
	listPollsFn  func(ctx context.Context) ([]domain.Poll, error)
	setActiveFn  func(ctx context.Context, pollID string, active bool) (domain.Poll, error)
	deletePollFn func(ctx context.Context, pollID string) error
	castVoteFn   func(ctx context.Context, ballot domain.Ballot) (domain.Poll, error)
}

func (m *mockStore) CreatePoll(ctx context.Context, poll domain.Poll) (domain.Poll, error) {
	if m.createPollFn != nil {
		return m.createPollFn(ctx, poll)
	}
	return poll, nil
}

func (m *mockStore) GetPoll(ctx context.Context, pollID string) (domain.Poll, error) {
	if m.getPollFn != nil {
		return m.getPollFn(ctx, pollID)
	}
	return domain.Poll{}, domain.ErrPollNotFound
}

func (m *mockStore) ListPolls(ctx context.Context) ([]domain.Poll, error) {
	if m.listPollsFn != nil {
		return m.listPollsFn(ctx)
	}
	return nil, nil
}

func (m *mockStore) SetActive(ctx context.Context, pollID string, active bool) (domain.Poll, error) {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, pollID, active)
	}
	return domain.Poll{}, fmt.Errorf("not implemented")
}

func (m *mockStore) DeletePoll(ctx context.Context, pollID string) error {
	if m.deletePollFn != nil {
		return m.deletePollFn(ctx, pollID)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockStore) CastVote(ctx context.Context, ballot domain.Ballot) (domain.Poll, error) {
	if m.castVoteFn != nil {
		return m.castVoteFn(ctx, ballot)
	}
	return domain.Poll{}, fmt.Errorf("not implemented")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.VoteEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.VoteEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) all() []domain.VoteEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.VoteEvent(nil), p.events...)
}

// mapCache is a PollCache without eviction.
type mapCache struct {
	mu    sync.Mutex
	polls map[string]domain.Poll
}

func newMapCache() *mapCache { return &mapCache{polls: make(map[string]domain.Poll)} }

func (c *mapCache) Get(id string) (domain.Poll, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.polls[id]
	return p, ok
}

func (c *mapCache) Store(p domain.Poll) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.polls[p.ID]; ok && old.TotalVotes() > p.TotalVotes() {
		return
	}
	c.polls[p.ID] = p
}

func (c *mapCache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.polls, id)
}

// recordingConn satisfies broadcast.Conn and keeps every text frame.
type recordingConn struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *recordingConn) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, append([]byte(nil), data...))
	return nil
}

func (c *recordingConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *recordingConn) SetReadDeadline(time.Time) error   { return nil }
func (c *recordingConn) SetPongHandler(func(string) error) {}
func (c *recordingConn) Close() error                      { return nil }

func (c *recordingConn) envelopes(t *testing.T) []domain.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Envelope, 0, len(c.msgs))
	for _, m := range c.msgs {
		var env domain.Envelope
		require.NoError(t, json.Unmarshal(m, &env))
		out = append(out, env)
	}
	return out
}

func (c *recordingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

// --- Helpers ---

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func twoOptionPoll(id string) domain.Poll {
	return domain.Poll{
		ID:     id,
		Title:  "Tabs or spaces?",
		Active: true,
		Options: []domain.Option{
			{ID: "a", Text: "Tabs"},
			{ID: "b", Text: "Spaces"},
		},
	}
}

func newMemoryService(t *testing.T) (*Service, *memory.VoteStore, *recordingPublisher, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	store := memory.NewVoteStore(clock)
	pub := &recordingPublisher{}
	return NewService(store, pub, nil, nil, nil, clock, time.Second), store, pub, clock
}

// --- Tests ---

func TestCastVote_ConcurrentVotesReachEveryConnectionInOrder(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	store := memory.NewVoteStore(clock)
	hub := broadcast.NewHub(clock, 10)
	t.Cleanup(hub.Stop)
	svc := NewService(store, hub, nil, nil, nil, clock, time.Second)

	_, err := store.CreatePoll(context.Background(), twoOptionPoll("p1"))
	require.NoError(t, err)

	conns := []*recordingConn{{}, {}}
	for _, c := range conns {
		_, err := hub.Register(c, []string{"p1"})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CastVote(context.Background(), domain.Ballot{PollID: "p1", OptionID: "a"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, c := range conns {
		require.Eventually(t, func() bool { return c.count() == 3 }, 2*time.Second, time.Millisecond)

		var last int64
		for _, env := range c.envelopes(t) {
			assert.Equal(t, domain.EventVoteUpdate, env.Type)
			assert.Equal(t, "p1", env.PollID)
			require.NotNil(t, env.Poll)
			votes := env.Poll.Options[0].Votes
			assert.Greater(t, votes, last, "a.votes must strictly increase per connection")
			last = votes
		}
		assert.Equal(t, int64(3), last)
	}

	// Nothing else arrives later.
	time.Sleep(20 * time.Millisecond)
	for _, c := range conns {
		assert.Equal(t, 3, c.count())
	}
}

func TestCastVote_MissingPollPublishesNothing(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	hub := broadcast.NewHub(clock, 10)
	t.Cleanup(hub.Stop)
	svc := NewService(memory.NewVoteStore(clock), hub, nil, nil, nil, clock, time.Second)

	conn := &recordingConn{}
	_, err := hub.Register(conn, nil)
	require.NoError(t, err)

	before := hub.Delivered()

	_, err = svc.CastVote(context.Background(), domain.Ballot{PollID: "missing", OptionID: "x"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	// A later successful publish is the barrier proving nothing was queued before it.
	hub.Publish(context.Background(), domain.NewVoteEvent(twoOptionPoll("other")))
	require.Eventually(t, func() bool { return conn.count() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, before+1, hub.Delivered())
	assert.Equal(t, "other", conn.envelopes(t)[0].PollID)
}

func TestCastVote_FailuresDoNotPublish(t *testing.T) {
	svc, store, pub, clock := newMemoryService(t)
	ctx := context.Background()

	expiring := twoOptionPoll("exp")
	deadline := clock.Now().Add(time.Minute)
	expiring.ExpiresAt = &deadline
	closed := twoOptionPoll("closed")
	closed.Active = false

	for _, p := range []domain.Poll{twoOptionPoll("p1"), expiring, closed} {
		_, err := store.CreatePoll(ctx, p)
		require.NoError(t, err)
	}
	clock.Advance(2 * time.Minute)

	tests := []struct {
		name    string
		ballot  domain.Ballot
		wantErr error
	}{
		{"missing poll", domain.Ballot{PollID: "nope", OptionID: "a"}, domain.ErrPollNotFound},
		{"missing option", domain.Ballot{PollID: "p1", OptionID: "zzz"}, domain.ErrOptionNotFound},
		{"inactive", domain.Ballot{PollID: "closed", OptionID: "a"}, domain.ErrPollInactive},
		{"expired", domain.Ballot{PollID: "exp", OptionID: "zzz"}, domain.ErrPollExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CastVote(ctx, tt.ballot)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Empty(t, pub.all())
}

func TestCastVote_PublishesSnapshot(t *testing.T) {
	svc, store, pub, _ := newMemoryService(t)
	ctx := context.Background()
	_, err := store.CreatePoll(ctx, twoOptionPoll("p1"))
	require.NoError(t, err)

	snap, err := svc.CastVote(ctx, domain.Ballot{PollID: "p1", OptionID: "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Options[1].Votes)

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventVoteUpdate, events[0].Kind)
	assert.Equal(t, snap, events[0].Poll)
}

func TestCastVote_PublishSurvivesCancelledRequest(t *testing.T) {
	pub := &recordingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())

	store := &mockStore{
		castVoteFn: func(_ context.Context, b domain.Ballot) (domain.Poll, error) {
			cancel() // client went away right after the increment
			p := twoOptionPoll(b.PollID)
			p.Options[0].Votes = 1
			return p, nil
		},
	}
	svc := NewService(store, pub, nil, nil, nil, clockwork.NewFakeClock(), time.Second)

	_, err := svc.CastVote(ctx, domain.Ballot{PollID: "p1", OptionID: "a"})
	require.NoError(t, err)
	assert.Len(t, pub.all(), 1)
}

func TestCastVote_StoreTimeout(t *testing.T) {
	pub := &recordingPublisher{}
	store := &mockStore{
		castVoteFn: func(ctx context.Context, _ domain.Ballot) (domain.Poll, error) {
			<-ctx.Done()
			return domain.Poll{}, ctx.Err()
		},
	}
	svc := NewService(store, pub, nil, nil, nil, clockwork.NewFakeClock(), 10*time.Millisecond)

	_, err := svc.CastVote(context.Background(), domain.Ballot{PollID: "p1", OptionID: "a"})
	require.ErrorIs(t, err, domain.ErrStoreTimeout)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, pub.all())
}

func TestCreatePoll_FillsIDsAndOwner(t *testing.T) {
	svc, _, pub, clock := newMemoryService(t)

	created, err := svc.CreatePoll(context.Background(), domain.Poll{
		Title:  "Friday lunch",
		Active: true,
		Options: []domain.Option{
			{Text: "Ramen"},
			{Text: "Tacos"},
		},
	}, "user-1")
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Options[0].ID)
	assert.NotEqual(t, created.Options[0].ID, created.Options[1].ID)
	assert.Equal(t, "user-1", created.CreatedBy)
	assert.Equal(t, clock.Now().UTC(), created.CreatedAt)

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventPollStatus, events[0].Kind)
}

func TestCreatePoll_Invalid(t *testing.T) {
	svc, _, pub, _ := newMemoryService(t)

	_, err := svc.CreatePoll(context.Background(), domain.Poll{
		Title:   "Lonely",
		Options: []domain.Option{{Text: "only one"}},
	}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidPoll)
	assert.Empty(t, pub.all())
}

func TestGetPoll_ServesFromCache(t *testing.T) {
	var calls int
	store := &mockStore{
		getPollFn: func(_ context.Context, id string) (domain.Poll, error) {
			calls++
			return twoOptionPoll(id), nil
		},
	}
	svc := NewService(store, &recordingPublisher{}, nil, newMapCache(), nil, clockwork.NewFakeClock(), time.Second)

	for range 3 {
		p, err := svc.GetPoll(context.Background(), "p1")
		require.NoError(t, err)
		assert.Equal(t, "p1", p.ID)
	}
	assert.Equal(t, 1, calls)
}

func TestGetPoll_CacheKeepsNewerTally(t *testing.T) {
	cache := newMapCache()
	svc, store, _, _ := newMemoryService(t)
	svc.cache = cache
	ctx := context.Background()

	_, err := store.CreatePoll(ctx, twoOptionPoll("p1"))
	require.NoError(t, err)

	_, err = svc.CastVote(ctx, domain.Ballot{PollID: "p1", OptionID: "a"})
	require.NoError(t, err)

	// A stale snapshot arriving late must not replace the newer one.
	cache.Store(twoOptionPoll("p1"))

	p, err := svc.GetPoll(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Options[0].Votes)
}

// gatedStore holds its first GetPoll open until release is closed, after
// reading the snapshot it will return.
type gatedStore struct {
	*memory.VoteStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(store *memory.VoteStore) *gatedStore {
	return &gatedStore{VoteStore: store, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedStore) GetPoll(ctx context.Context, pollID string) (domain.Poll, error) {
	p, err := g.VoteStore.GetPoll(ctx, pollID)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return p, err
}

// lockRefs counts holders and waiters of key.
func lockRefs(k *keyedMutex, key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok := k.locks[key]; ok {
		return l.refs
	}
	return 0
}

func TestGetPoll_SlowFillDoesNotOverwriteLaterMutation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, svc *Service)
		check  func(t *testing.T, p domain.Poll)
	}{
		{
			name: "deactivated",
			mutate: func(t *testing.T, svc *Service) {
				_, err := svc.SetActive(context.Background(), "p1", false, "")
				assert.NoError(t, err)
			},
			check: func(t *testing.T, p domain.Poll) {
				assert.False(t, p.Active)
				assert.Equal(t, int64(5), p.TotalVotes())
			},
		},
		{
			name: "deleted and recreated",
			mutate: func(t *testing.T, svc *Service) {
				ctx := context.Background()
				assert.NoError(t, svc.DeletePoll(ctx, "p1", ""))
				_, err := svc.CreatePoll(ctx, domain.Poll{
					ID:      "p1",
					Title:   "Vim or Emacs?",
					Active:  true,
					Options: []domain.Option{{ID: "x", Text: "Vim"}, {ID: "y", Text: "Emacs"}},
				}, "")
				assert.NoError(t, err)
				_, err = svc.CastVote(ctx, domain.Ballot{PollID: "p1", OptionID: "x"})
				assert.NoError(t, err)
			},
			check: func(t *testing.T, p domain.Poll) {
				assert.Equal(t, "Vim or Emacs?", p.Title)
				require.Len(t, p.Options, 2)
				assert.Equal(t, "x", p.Options[0].ID)
				assert.Equal(t, int64(1), p.TotalVotes())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClockAt(testNow)
			mem := memory.NewVoteStore(clock)
			ctx := context.Background()

			_, err := mem.CreatePoll(ctx, twoOptionPoll("p1"))
			require.NoError(t, err)
			for range 5 {
				_, err := mem.CastVote(ctx, domain.Ballot{PollID: "p1", OptionID: "a"})
				require.NoError(t, err)
			}

			store := newGatedStore(mem)
			svc := NewService(store, &recordingPublisher{}, nil, newMapCache(), nil, clock, time.Second)

			read := make(chan domain.Poll, 1)
			go func() {
				p, err := svc.GetPoll(ctx, "p1")
				assert.NoError(t, err)
				read <- p
			}()
			<-store.entered

			mutated := make(chan struct{})
			go func() {
				defer close(mutated)
				tt.mutate(t, svc)
			}()

			// The mutation must queue behind the in-flight fill.
			require.Eventually(t, func() bool { return lockRefs(svc.locks, "p1") == 2 }, time.Second, time.Millisecond)
			close(store.release)

			stale := <-read
			assert.Equal(t, int64(5), stale.TotalVotes())
			<-mutated

			p, err := svc.GetPoll(ctx, "p1")
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestGetPoll_NotFound(t *testing.T) {
	svc, _, _, _ := newMemoryService(t)
	_, err := svc.GetPoll(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetActive_RequiresOwner(t *testing.T) {
	svc, _, pub, _ := newMemoryService(t)
	ctx := context.Background()

	p := twoOptionPoll("p1")
	_, err := svc.CreatePoll(ctx, p, "owner")
	require.NoError(t, err)

	_, err = svc.SetActive(ctx, "p1", false, "intruder")
	require.ErrorIs(t, err, domain.ErrForbidden)

	closed, err := svc.SetActive(ctx, "p1", false, "owner")
	require.NoError(t, err)
	assert.False(t, closed.Active)

	events := pub.all()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventPollStatus, events[1].Kind)
	assert.False(t, events[1].Poll.Active)

	_, err = svc.CastVote(ctx, domain.Ballot{PollID: "p1", OptionID: "a"})
	assert.ErrorIs(t, err, domain.ErrPollInactive)
}

func TestDeletePoll(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	watcher := NewExpiryWatcher(clock, time.Second)
	pub := &recordingPublisher{}
	cache := newMapCache()
	svc := NewService(memory.NewVoteStore(clock), pub, nil, cache, watcher, clock, time.Second)
	ctx := context.Background()

	p := twoOptionPoll("p1")
	deadline := clock.Now().Add(time.Hour)
	p.ExpiresAt = &deadline
	_, err := svc.CreatePoll(ctx, p, "owner")
	require.NoError(t, err)
	require.Equal(t, 1, watcher.tracked())

	require.ErrorIs(t, svc.DeletePoll(ctx, "p1", "someone-else"), domain.ErrForbidden)
	require.NoError(t, svc.DeletePoll(ctx, "p1", "owner"))

	events := pub.all()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventPollDeleted, events[1].Kind)
	assert.Equal(t, "p1", events[1].PollID)

	_, cached := cache.Get("p1")
	assert.False(t, cached)
	assert.Equal(t, 0, watcher.tracked())
	assert.Equal(t, 0, svc.locks.size())

	assert.ErrorIs(t, svc.DeletePoll(ctx, "p1", "owner"), domain.ErrNotFound)
}

func TestSnapshots(t *testing.T) {
	svc, store, _, clock := newMemoryService(t)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		_, err := store.CreatePoll(ctx, twoOptionPoll(id))
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	polls, err := svc.Snapshots(ctx, []string{"p2", "ghost"})
	require.NoError(t, err)
	require.Len(t, polls, 1)
	assert.Equal(t, "p2", polls[0].ID)

	polls, err = svc.Snapshots(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, polls, 2)
}

func TestSnapshots_StoreErrorPropagates(t *testing.T) {
	store := &mockStore{
		getPollFn: func(context.Context, string) (domain.Poll, error) {
			return domain.Poll{}, domain.ErrStoreUnavailable
		},
	}
	svc := NewService(store, &recordingPublisher{}, nil, nil, nil, clockwork.NewFakeClock(), time.Second)

	_, err := svc.Snapshots(context.Background(), []string{"p1"})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestPublishExpired(t *testing.T) {
	svc, store, pub, clock := newMemoryService(t)
	ctx := context.Background()

	p := twoOptionPoll("p1")
	deadline := clock.Now().Add(time.Minute)
	p.ExpiresAt = &deadline
	_, err := store.CreatePoll(ctx, p)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	svc.PublishExpired(ctx, "p1")

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventPollStatus, events[0].Kind)
	assert.True(t, events[0].Poll.Expired(clock.Now()))

	svc.PublishExpired(ctx, "ghost")
	assert.Len(t, pub.all(), 1)
}

func TestPublishExpired_NotRelayed(t *testing.T) {
	bus := newLoopbackBus()
	clock := clockwork.NewFakeClockAt(testNow)
	store := memory.NewVoteStore(clock)
	pub := &recordingPublisher{}
	svc := NewService(store, pub, NewRelay(bus), nil, nil, clock, time.Second)

	p := twoOptionPoll("p1")
	deadline := clock.Now().Add(time.Minute)
	p.ExpiresAt = &deadline
	_, err := store.CreatePoll(context.Background(), p)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	svc.PublishExpired(context.Background(), "p1")

	assert.Len(t, pub.all(), 1)
	assert.Equal(t, 0, bus.published())
}

func TestApplyRemote_PublishesLocallyOnly(t *testing.T) {
	bus := newLoopbackBus()
	relay := NewRelay(bus)
	pub := &recordingPublisher{}
	cache := newMapCache()
	svc := NewService(&mockStore{}, pub, relay, cache, nil, clockwork.NewFakeClock(), time.Second)

	p := twoOptionPoll("p1")
	p.Options[0].Votes = 4
	svc.ApplyRemote(context.Background(), domain.NewVoteEvent(p))

	assert.Len(t, pub.all(), 1)
	assert.Equal(t, 0, bus.published(), "remote events are not re-forwarded")

	cached, ok := cache.Get("p1")
	require.True(t, ok)
	assert.Equal(t, int64(4), cached.Options[0].Votes)

	svc.ApplyRemote(context.Background(), domain.NewDeletedEvent("p1"))
	_, ok = cache.Get("p1")
	assert.False(t, ok)
}

func TestVoteResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrPollNotFound, "not_found"},
		{domain.ErrOptionNotFound, "not_found"},
		{domain.ErrPollInactive, "inactive"},
		{domain.ErrPollExpired, "expired"},
		{domain.ErrAlreadyVoted, "already_voted"},
		{storeErr(context.DeadlineExceeded), "timeout"},
		{domain.ErrStoreUnavailable, "unavailable"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, voteResult(tt.err), tt.err.Error())
	}
}
