package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
	"github.com/satoshiwasHere/alx-polly/internal/metrics"
)

// Service is the application layer. It is the only component that talks to
// both the vote store and the broadcast side.
type Service struct {
	store        domain.VoteStore
	local        domain.Publisher
	relay        *Relay
	cache        domain.PollCache
	expiry       *ExpiryWatcher
	clock        clockwork.Clock
	storeTimeout time.Duration

	locks *keyedMutex
	reads singleflight.Group
}

// NewService wires the use cases. local is the in-process hub. relay, cache
// and expiry may be nil.
func NewService(store domain.VoteStore, local domain.Publisher, relay *Relay, cache domain.PollCache, expiry *ExpiryWatcher, clock clockwork.Clock, storeTimeout time.Duration) *Service {
	if cache == nil {
		cache = noopCache{}
	}
	return &Service{
		store:        store,
		local:        local,
		relay:        relay,
		cache:        cache,
		expiry:       expiry,
		clock:        clock,
		storeTimeout: storeTimeout,
		locks:        newKeyedMutex(),
	}
}

// CastVote records one ballot and broadcasts the new tally. The per-poll lock
// spans the store call and the publish, so local subscribers see tallies in
// the order the increments happened. Nothing is published on failure.
func (s *Service) CastVote(ctx context.Context, ballot domain.Ballot) (domain.Poll, error) {
	start := s.clock.Now()
	defer func() {
		metrics.VoteDuration.Observe(s.clock.Since(start).Seconds())
	}()

	unlock := s.locks.Lock(ballot.PollID)
	defer unlock()

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	poll, err := s.store.CastVote(storeCtx, ballot)
	cancel()
	if err != nil {
		err = storeErr(err)
		metrics.VotesCastTotal.WithLabelValues(voteResult(err)).Inc()
		return domain.Poll{}, err
	}
	metrics.VotesCastTotal.WithLabelValues("applied").Inc()

	s.cache.Store(poll)
	s.publish(context.WithoutCancel(ctx), domain.NewVoteEvent(poll))

	slog.DebugContext(ctx, "Vote applied", "poll_id", poll.ID, "option_id", ballot.OptionID, "total_votes", poll.TotalVotes())
	return poll, nil
}

// CreatePoll fills in missing ids and ownership, validates and stores the poll.
func (s *Service) CreatePoll(ctx context.Context, poll domain.Poll, createdBy string) (domain.Poll, error) {
	if strings.TrimSpace(poll.ID) == "" {
		poll.ID = uuid.NewString()
	}
	poll.Options = append([]domain.Option(nil), poll.Options...)
	for i := range poll.Options {
		if strings.TrimSpace(poll.Options[i].ID) == "" {
			poll.Options[i].ID = uuid.NewString()
		}
	}
	if poll.CreatedBy == "" {
		poll.CreatedBy = createdBy
	}
	if poll.CreatedAt.IsZero() {
		poll.CreatedAt = s.clock.Now().UTC()
	}
	if err := poll.Validate(); err != nil {
		return domain.Poll{}, err
	}

	unlock := s.locks.Lock(poll.ID)
	defer unlock()

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	created, err := s.store.CreatePoll(storeCtx, poll)
	if err != nil {
		return domain.Poll{}, storeErr(err)
	}

	s.cache.Store(created)
	s.track(created)
	s.publish(context.WithoutCancel(ctx), domain.NewStatusEvent(created))

	slog.InfoContext(ctx, "Poll created", "poll_id", created.ID, "options", len(created.Options), "created_by", created.CreatedBy)
	return created, nil
}

// GetPoll serves from the snapshot cache and collapses concurrent misses into
// one store read. The fill holds the per-poll lock, so it cannot land after a
// mutation that read-then-cached a newer state.
func (s *Service) GetPoll(ctx context.Context, pollID string) (domain.Poll, error) {
	if p, ok := s.cache.Get(pollID); ok {
		metrics.PollCacheRequests.WithLabelValues("hit").Inc()
		return p, nil
	}
	metrics.PollCacheRequests.WithLabelValues("miss").Inc()

	v, err, _ := s.reads.Do(pollID, func() (any, error) {
		unlock := s.locks.Lock(pollID)
		defer unlock()

		if p, ok := s.cache.Get(pollID); ok {
			return p, nil
		}

		storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()

		p, err := s.store.GetPoll(storeCtx, pollID)
		if err != nil {
			return nil, storeErr(err)
		}
		s.cache.Store(p)
		s.track(p)
		return p, nil
	})
	if err != nil {
		return domain.Poll{}, err
	}
	return v.(domain.Poll).Clone(), nil
}

func (s *Service) ListPolls(ctx context.Context) ([]domain.Poll, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	polls, err := s.store.ListPolls(storeCtx)
	if err != nil {
		return nil, storeErr(err)
	}
	for _, p := range polls {
		s.track(p)
	}
	return polls, nil
}

// SetActive opens or closes a poll. Only the creator may do this; polls
// without a creator are open to anyone.
func (s *Service) SetActive(ctx context.Context, pollID string, active bool, userID string) (domain.Poll, error) {
	unlock := s.locks.Lock(pollID)
	defer unlock()

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.checkOwner(storeCtx, pollID, userID); err != nil {
		return domain.Poll{}, err
	}

	poll, err := s.store.SetActive(storeCtx, pollID, active)
	if err != nil {
		return domain.Poll{}, storeErr(err)
	}

	s.cache.Store(poll)
	s.track(poll)
	s.publish(context.WithoutCancel(ctx), domain.NewStatusEvent(poll))

	slog.InfoContext(ctx, "Poll status changed", "poll_id", pollID, "active", active)
	return poll, nil
}

// DeletePoll removes a poll. Same ownership rule as SetActive.
func (s *Service) DeletePoll(ctx context.Context, pollID string, userID string) error {
	unlock := s.locks.Lock(pollID)
	defer unlock()

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.checkOwner(storeCtx, pollID, userID); err != nil {
		return err
	}

	if err := s.store.DeletePoll(storeCtx, pollID); err != nil {
		return storeErr(err)
	}

	s.cache.Delete(pollID)
	if s.expiry != nil {
		s.expiry.Untrack(pollID)
	}
	s.publish(context.WithoutCancel(ctx), domain.NewDeletedEvent(pollID))

	slog.InfoContext(ctx, "Poll deleted", "poll_id", pollID)
	return nil
}

// Snapshots returns the current state of the requested polls for a client
// that just connected; every poll when pollIDs is empty. Unknown ids are
// skipped.
func (s *Service) Snapshots(ctx context.Context, pollIDs []string) ([]domain.Poll, error) {
	if len(pollIDs) == 0 {
		return s.ListPolls(ctx)
	}

	polls := make([]domain.Poll, 0, len(pollIDs))
	for _, id := range pollIDs {
		p, err := s.GetPoll(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				slog.DebugContext(ctx, "Snapshot for unknown poll skipped", "poll_id", id)
				continue
			}
			return nil, err
		}
		polls = append(polls, p)
	}
	return polls, nil
}

// PublishExpired broadcasts the closing state of a poll whose deadline just
// passed. Called by the ExpiryWatcher. Every instance tracks every deadline,
// so the event goes to local connections only.
func (s *Service) PublishExpired(ctx context.Context, pollID string) {
	unlock := s.locks.Lock(pollID)
	defer unlock()

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	poll, err := s.store.GetPoll(storeCtx, pollID)
	if err != nil {
		slog.WarnContext(ctx, "Expiry: poll lookup failed", "poll_id", pollID, "error", err)
		return
	}

	metrics.PollsExpiredTotal.Inc()
	s.cache.Store(poll)
	s.local.Publish(ctx, domain.NewStatusEvent(poll))
	slog.InfoContext(ctx, "Poll expired", "poll_id", pollID)
}

// ApplyRemote takes an event relayed from another instance: it refreshes the
// cache and fans the event out to local connections only.
func (s *Service) ApplyRemote(ctx context.Context, event domain.VoteEvent) {
	unlock := s.locks.Lock(event.PollID)
	defer unlock()

	switch event.Kind {
	case domain.EventPollDeleted:
		s.cache.Delete(event.PollID)
		if s.expiry != nil {
			s.expiry.Untrack(event.PollID)
		}
	default:
		s.cache.Store(event.Poll)
		s.track(event.Poll)
	}
	s.local.Publish(ctx, event)
}

func (s *Service) publish(ctx context.Context, event domain.VoteEvent) {
	s.local.Publish(ctx, event)
	if s.relay != nil {
		s.relay.Forward(ctx, event)
	}
}

func (s *Service) track(p domain.Poll) {
	if s.expiry != nil {
		s.expiry.Track(p)
	}
}

func (s *Service) checkOwner(ctx context.Context, pollID, userID string) error {
	poll, err := s.store.GetPoll(ctx, pollID)
	if err != nil {
		return storeErr(err)
	}
	if poll.CreatedBy != "" && poll.CreatedBy != userID {
		return fmt.Errorf("%w: poll %s", domain.ErrForbidden, pollID)
	}
	return nil
}

// storeErr makes sure a blown deadline surfaces as ErrStoreTimeout whatever
// the adapter returned.
func storeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrStoreTimeout) {
		return fmt.Errorf("%w: %w", domain.ErrStoreTimeout, err)
	}
	return err
}

func voteResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPollInactive):
		return "inactive"
	case errors.Is(err, domain.ErrPollExpired):
		return "expired"
	case errors.Is(err, domain.ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, domain.ErrStoreTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

type noopCache struct{}

func (noopCache) Get(string) (domain.Poll, bool) { return domain.Poll{}, false }
func (noopCache) Store(domain.Poll)              {}
func (noopCache) Delete(string)                  {}
