// Package memory provides an in-process domain.VoteStore for tests, local
// development and single-instance deployments.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
)

type pollEntry struct {
	poll   domain.Poll
	voters map[string]struct{}
}

// VoteStore keeps polls in a map guarded by one mutex. Every mutation,
// CastVote included, runs its checks and its write under that lock.
type VoteStore struct {
	mu    sync.Mutex
	polls map[string]*pollEntry
	clock clockwork.Clock
}

func NewVoteStore(clock clockwork.Clock) *VoteStore {
	return &VoteStore{
		polls: make(map[string]*pollEntry),
		clock: clock,
	}
}

func (s *VoteStore) CreatePoll(ctx context.Context, poll domain.Poll) (domain.Poll, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Poll{}, err
	}
	if err := poll.Validate(); err != nil {
		return domain.Poll{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.polls[poll.ID]; ok {
		return domain.Poll{}, fmt.Errorf("%w: %s", domain.ErrPollExists, poll.ID)
	}

	stored := poll.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.clock.Now().UTC()
	}
	s.polls[poll.ID] = &pollEntry{poll: stored, voters: make(map[string]struct{})}
	return stored.Clone(), nil
}

func (s *VoteStore) GetPoll(ctx context.Context, pollID string) (domain.Poll, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Poll{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.polls[pollID]
	if !ok {
		return domain.Poll{}, domain.ErrPollNotFound
	}
	return e.poll.Clone(), nil
}

func (s *VoteStore) ListPolls(ctx context.Context) ([]domain.Poll, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	polls := make([]domain.Poll, 0, len(s.polls))
	for _, e := range s.polls {
		polls = append(polls, e.poll.Clone())
	}
	s.mu.Unlock()

	slices.SortFunc(polls, func(a, b domain.Poll) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return polls, nil
}

func (s *VoteStore) SetActive(ctx context.Context, pollID string, active bool) (domain.Poll, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Poll{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.polls[pollID]
	if !ok {
		return domain.Poll{}, domain.ErrPollNotFound
	}
	e.poll.Active = active
	return e.poll.Clone(), nil
}

func (s *VoteStore) DeletePoll(ctx context.Context, pollID string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.polls[pollID]; !ok {
		return domain.ErrPollNotFound
	}
	delete(s.polls, pollID)
	return nil
}

// CastVote checks existence, state, expiry, option and voter in that order,
// then increments. Nothing is written unless every check passes.
func (s *VoteStore) CastVote(ctx context.Context, ballot domain.Ballot) (domain.Poll, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Poll{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.polls[ballot.PollID]
	if !ok {
		return domain.Poll{}, domain.ErrPollNotFound
	}
	if err := e.poll.CheckVotable(s.clock.Now()); err != nil {
		return domain.Poll{}, err
	}

	idx := e.poll.OptionIndex(ballot.OptionID)
	if idx < 0 {
		return domain.Poll{}, domain.ErrOptionNotFound
	}

	if ballot.VoterID != "" {
		if _, voted := e.voters[ballot.VoterID]; voted {
			return domain.Poll{}, domain.ErrAlreadyVoted
		}
		e.voters[ballot.VoterID] = struct{}{}
	}

	e.poll.Options[idx].Votes++
	return e.poll.Clone(), nil
}

func ctxErr(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrStoreTimeout, err)
	}
	return err
}
