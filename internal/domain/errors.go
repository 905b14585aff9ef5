package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrPollNotFound   = fmt.Errorf("poll %w", ErrNotFound)
	ErrOptionNotFound = fmt.Errorf("option %w", ErrNotFound)

	ErrPollInactive = errors.New("poll is not active")
	ErrPollExpired  = errors.New("poll has expired")
	ErrAlreadyVoted = errors.New("voter already voted on this poll")

	ErrPollExists  = errors.New("poll already exists")
	ErrInvalidPoll = errors.New("invalid poll")
	ErrForbidden   = errors.New("not the poll owner")

	// ErrStoreTimeout is returned when the backing store does not answer within
	// the caller's deadline. Distinct from the not-found and state errors.
	ErrStoreTimeout = errors.New("vote store timed out")

	// ErrStoreUnavailable is returned while a circuit breaker in front of the
	// store is open.
	ErrStoreUnavailable = errors.New("vote store unavailable")
)
