package httpserver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/satoshiwasHere/alx-polly/internal/broadcast"
	"github.com/satoshiwasHere/alx-polly/internal/domain"
	"github.com/satoshiwasHere/alx-polly/internal/platform/config"
)

var errNotImplemented = errors.New("not implemented")

// --- Mock implementations ---

type mockPollService struct {
	castVoteFn   func(ctx context.Context, ballot domain.Ballot) (domain.Poll, error)
	createPollFn func(ctx context.Context, poll domain.Poll, createdBy string) (domain.Poll, error)
	getPollFn    func(ctx context.Context, pollID string) (domain.Poll, error)
	listPollsFn  func(ctx context.Context) ([]domain.Poll, error)
	setActiveFn  func(ctx context.Context, pollID string, active bool, userID string) (domain.Poll, error)
	deletePollFn func(ctx context.Context, pollID string, userID string) error
	snapshotsFn  func(ctx context.Context, pollIDs []string) ([]domain.Poll, error)
}

func (m *mockPollService) CastVote(ctx context.Context, ballot domain.Ballot) (domain.Poll, error) {
	if m.castVoteFn != nil {
		return m.castVoteFn(ctx, ballot)
	}
	return domain.Poll{}, errNotImplemented
}

func (m *mockPollService) CreatePoll(ctx context.Context, poll domain.Poll, createdBy string) (domain.Poll, error) {
	if m.createPollFn != nil {
		return m.createPollFn(ctx, poll, createdBy)
	}
	return domain.Poll{}, errNotImplemented
}

func (m *mockPollService) GetPoll(ctx context.Context, pollID string) (domain.Poll, error) {
	if m.getPollFn != nil {
		return m.getPollFn(ctx, pollID)
	}
	return domain.Poll{}, domain.ErrPollNotFound
}

func (m *mockPollService) ListPolls(ctx context.Context) ([]domain.Poll, error) {
	if m.listPollsFn != nil {
		return m.listPollsFn(ctx)
	}
	return []domain.Poll{}, nil
}

func (m *mockPollService) SetActive(ctx context.Context, pollID string, active bool, userID string) (domain.Poll, error) {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, pollID, active, userID)
	}
	return domain.Poll{}, errNotImplemented
}

func (m *mockPollService) DeletePoll(ctx context.Context, pollID string, userID string) error {
	if m.deletePollFn != nil {
		return m.deletePollFn(ctx, pollID, userID)
	}
	return errNotImplemented
}

func (m *mockPollService) Snapshots(ctx context.Context, pollIDs []string) ([]domain.Poll, error) {
	if m.snapshotsFn != nil {
		return m.snapshotsFn(ctx, pollIDs)
	}
	return nil, nil
}

type sentEvent struct {
	id    uuid.UUID
	event domain.VoteEvent
}

// fakeHub records registrations and direct sends without touching the
// connection.
type fakeHub struct {
	mu           sync.Mutex
	registerErr  error
	registered   map[uuid.UUID][]string
	unregistered []uuid.UUID
	sent         []sentEvent
}

func newFakeHub() *fakeHub {
	return &fakeHub{registered: make(map[uuid.UUID][]string)}
}

func (h *fakeHub) Register(conn broadcast.Conn, pollIDs []string) (uuid.UUID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registerErr != nil {
		return uuid.Nil, h.registerErr
	}
	id := uuid.New()
	h.registered[id] = pollIDs
	return id, nil
}

func (h *fakeHub) Unregister(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregistered = append(h.unregistered, id)
}

func (h *fakeHub) Send(id uuid.UUID, event domain.VoteEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sentEvent{id: id, event: event})
}

func (h *fakeHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.registered) - len(h.unregistered)
}

func (h *fakeHub) snapshot() (registered int, unregistered int, sent []sentEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.registered), len(h.unregistered), append([]sentEvent(nil), h.sent...)
}

// --- Test server construction ---

type testServerOption func(*testServerOpts)

type testServerOpts struct {
	hub          connectionHub
	healthChecks []HealthCheck
	clock        clockwork.Clock
	mutateConfig func(*config.Config)
}

func withHub(h connectionHub) testServerOption {
	return func(o *testServerOpts) { o.hub = h }
}

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(o *testServerOpts) { o.healthChecks = checks }
}

func withClock(c clockwork.Clock) testServerOption {
	return func(o *testServerOpts) { o.clock = c }
}

func withConfig(fn func(*config.Config)) testServerOption {
	return func(o *testServerOpts) { o.mutateConfig = fn }
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "test",
		Port:                    "0",
		StoreBackend:            config.BackendMemory,
		EventBus:                config.BusNone,
		StoreTimeout:            2 * time.Second,
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     10,
		ConnectionRatePerIP:     100,
		ConnectionBurst:         100,
		VoteRatePerSecond:       1000,
		VoteBurst:               1000,
	}
}

func newTestServer(t *testing.T, app pollService, opts ...testServerOption) *Server {
	t.Helper()

	o := testServerOpts{
		hub:   newFakeHub(),
		clock: clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := testConfig()
	if o.mutateConfig != nil {
		o.mutateConfig(cfg)
	}
	return NewServer(cfg, o.clock, app, o.hub, nil, o.healthChecks)
}
