package domain

import "context"

// VoteStore owns the authoritative vote counts. CastVote is the only way
// counts change, and it must be atomic: N concurrent successful calls for one
// option raise its count by exactly N. Implementations never notify anyone.
type VoteStore interface {
	CreatePoll(ctx context.Context, poll Poll) (Poll, error)
	GetPoll(ctx context.Context, pollID string) (Poll, error)
	ListPolls(ctx context.Context) ([]Poll, error)
	SetActive(ctx context.Context, pollID string, active bool) (Poll, error)
	DeletePoll(ctx context.Context, pollID string) error
	CastVote(ctx context.Context, ballot Ballot) (Poll, error)
}
