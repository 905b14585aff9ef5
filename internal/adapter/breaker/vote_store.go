// Package breaker wraps a domain.VoteStore in a circuit breaker so a failing
// backend is answered with ErrStoreUnavailable instead of piling up requests.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
	"github.com/satoshiwasHere/alx-polly/internal/metrics"
)

type Settings struct {
	Name             string
	FailureThreshold uint32        // consecutive failures that open the breaker
	OpenTimeout      time.Duration // time spent open before a trial request
}

var DefaultSettings = Settings{
	Name:             "vote_store",
	FailureThreshold: 5,
	OpenTimeout:      30 * time.Second,
}

// VoteStore decorates another store. Rejections such as not-found or
// already-voted mean the backend answered and never trip the breaker.
type VoteStore struct {
	next domain.VoteStore
	cb   *gobreaker.CircuitBreaker
}

var _ domain.VoteStore = (*VoteStore)(nil)

func NewVoteStore(next domain.VoteStore, s Settings) *VoteStore {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		IsSuccessful: backendAnswered,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerStateChanges.WithLabelValues(name, to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
	return &VoteStore{next: next, cb: cb}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func backendAnswered(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrPollInactive,
		domain.ErrPollExpired,
		domain.ErrAlreadyVoted,
		domain.ErrPollExists,
		domain.ErrInvalidPoll,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (any, error) { return fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (s *VoteStore) CreatePoll(ctx context.Context, poll domain.Poll) (domain.Poll, error) {
	return execute(s.cb, func() (domain.Poll, error) { return s.next.CreatePoll(ctx, poll) })
}

func (s *VoteStore) GetPoll(ctx context.Context, pollID string) (domain.Poll, error) {
	return execute(s.cb, func() (domain.Poll, error) { return s.next.GetPoll(ctx, pollID) })
}

func (s *VoteStore) ListPolls(ctx context.Context) ([]domain.Poll, error) {
	return execute(s.cb, func() ([]domain.Poll, error) { return s.next.ListPolls(ctx) })
}

func (s *VoteStore) SetActive(ctx context.Context, pollID string, active bool) (domain.Poll, error) {
	return execute(s.cb, func() (domain.Poll, error) { return s.next.SetActive(ctx, pollID, active) })
}

func (s *VoteStore) DeletePoll(ctx context.Context, pollID string) error {
	_, err := execute(s.cb, func() (struct{}, error) { return struct{}{}, s.next.DeletePoll(ctx, pollID) })
	return err
}

func (s *VoteStore) CastVote(ctx context.Context, ballot domain.Ballot) (domain.Poll, error) {
	return execute(s.cb, func() (domain.Poll, error) { return s.next.CastVote(ctx, ballot) })
}

// State reports the breaker state.
func (s *VoteStore) State() gobreaker.State {
	return s.cb.State()
}
