package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
)

const (
	insertPollQuery = `-- name: InsertPoll
INSERT INTO polls (id, title, active, expires_at, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`

	selectPollQuery = `-- name: SelectPoll
SELECT id, title, active, expires_at, created_by, created_at FROM polls WHERE id = $1`

	selectPollsQuery = `-- name: SelectPolls
SELECT id, title, active, expires_at, created_by, created_at FROM polls ORDER BY created_at DESC, id`

	selectOptionsQuery = `-- name: SelectOptions
SELECT poll_id, option_id, text, votes FROM poll_options WHERE poll_id = ANY($1) ORDER BY poll_id, position`

	lockPollQuery = `-- name: LockPollForVote
SELECT active, expires_at FROM polls WHERE id = $1 FOR SHARE`

	incrementVoteQuery = `-- name: IncrementVote
UPDATE poll_options SET votes = votes + 1 WHERE poll_id = $1 AND option_id = $2`

	insertVoterQuery = `-- name: InsertVoter
INSERT INTO poll_voters (poll_id, voter_id, option_id, voted_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (poll_id, voter_id) DO NOTHING`

	setActiveQuery = `-- name: SetActive
UPDATE polls SET active = $2 WHERE id = $1`

	deletePollQuery = `-- name: DeletePoll
DELETE FROM polls WHERE id = $1`
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VoteStore is the durable domain.VoteStore. A ballot runs in one
// transaction: the poll row is share-locked, the option row is incremented
// and the voter row inserted, and any failed check rolls all of it back.
type VoteStore struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

var _ domain.VoteStore = (*VoteStore)(nil)

func NewVoteStore(pool *pgxpool.Pool, clock clockwork.Clock) *VoteStore {
	return &VoteStore{pool: pool, clock: clock}
}

func (s *VoteStore) CreatePoll(ctx context.Context, poll domain.Poll) (domain.Poll, error) {
	if err := poll.Validate(); err != nil {
		return domain.Poll{}, err
	}

	stored := poll.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.clock.Now()
	}
	stored.CreatedAt = stored.CreatedAt.UTC().Truncate(time.Microsecond)
	if stored.ExpiresAt != nil {
		t := stored.ExpiresAt.UTC().Truncate(time.Microsecond)
		stored.ExpiresAt = &t
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, insertPollQuery,
			stored.ID, stored.Title, stored.Active, stored.ExpiresAt, stored.CreatedBy, stored.CreatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", domain.ErrPollExists, stored.ID)
		}

		rows := make([][]any, len(stored.Options))
		for i, o := range stored.Options {
			rows[i] = []any{stored.ID, o.ID, i, o.Text, o.Votes}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"poll_options"},
			[]string{"poll_id", "option_id", "position", "text", "votes"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
	if err != nil {
		return domain.Poll{}, storeErr("create poll", err)
	}
	return stored, nil
}

func (s *VoteStore) GetPoll(ctx context.Context, pollID string) (domain.Poll, error) {
	p, err := loadPoll(ctx, s.pool, pollID)
	if err != nil {
		return domain.Poll{}, storeErr("get poll", err)
	}
	return p, nil
}

func (s *VoteStore) ListPolls(ctx context.Context) ([]domain.Poll, error) {
	rows, err := s.pool.Query(ctx, selectPollsQuery)
	if err != nil {
		return nil, storeErr("list polls", err)
	}
	polls, err := pgx.CollectRows(rows, scanPoll)
	if err != nil {
		return nil, storeErr("list polls", err)
	}
	if len(polls) == 0 {
		return []domain.Poll{}, nil
	}

	ids := make([]string, len(polls))
	for i, p := range polls {
		ids[i] = p.ID
	}
	options, err := loadOptions(ctx, s.pool, ids)
	if err != nil {
		return nil, storeErr("list polls", err)
	}
	for i := range polls {
		polls[i].Options = options[polls[i].ID]
	}
	return polls, nil
}

func (s *VoteStore) SetActive(ctx context.Context, pollID string, active bool) (domain.Poll, error) {
	var updated domain.Poll
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, setActiveQuery, pollID, active)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrPollNotFound
		}
		updated, err = loadPoll(ctx, tx, pollID)
		return err
	})
	if err != nil {
		return domain.Poll{}, storeErr("set active", err)
	}
	return updated, nil
}

func (s *VoteStore) DeletePoll(ctx context.Context, pollID string) error {
	tag, err := s.pool.Exec(ctx, deletePollQuery, pollID)
	if err != nil {
		return storeErr("delete poll", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPollNotFound
	}
	return nil
}

// CastVote checks existence, state, expiry, option and voter in that order.
func (s *VoteStore) CastVote(ctx context.Context, ballot domain.Ballot) (domain.Poll, error) {
	var updated domain.Poll
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var active bool
		var expiresAt *time.Time
		err := tx.QueryRow(ctx, lockPollQuery, ballot.PollID).Scan(&active, &expiresAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrPollNotFound
		}
		if err != nil {
			return err
		}

		state := domain.Poll{Active: active, ExpiresAt: expiresAt}
		if err := state.CheckVotable(s.clock.Now()); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, incrementVoteQuery, ballot.PollID, ballot.OptionID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrOptionNotFound
		}

		if ballot.VoterID != "" {
			tag, err := tx.Exec(ctx, insertVoterQuery, ballot.PollID, ballot.VoterID, ballot.OptionID, s.clock.Now().UTC())
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return domain.ErrAlreadyVoted
			}
		}

		updated, err = loadPoll(ctx, tx, ballot.PollID)
		return err
	})
	if err != nil {
		return domain.Poll{}, storeErr("cast vote", err)
	}
	return updated, nil
}

func loadPoll(ctx context.Context, q querier, pollID string) (domain.Poll, error) {
	rows, err := q.Query(ctx, selectPollQuery, pollID)
	if err != nil {
		return domain.Poll{}, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPoll)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Poll{}, domain.ErrPollNotFound
	}
	if err != nil {
		return domain.Poll{}, err
	}

	options, err := loadOptions(ctx, q, []string{pollID})
	if err != nil {
		return domain.Poll{}, err
	}
	p.Options = options[pollID]
	return p, nil
}

func loadOptions(ctx context.Context, q querier, pollIDs []string) (map[string][]domain.Option, error) {
	rows, err := q.Query(ctx, selectOptionsQuery, pollIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.Option, len(pollIDs))
	for rows.Next() {
		var pollID string
		var o domain.Option
		if err := rows.Scan(&pollID, &o.ID, &o.Text, &o.Votes); err != nil {
			return nil, err
		}
		out[pollID] = append(out[pollID], o)
	}
	return out, rows.Err()
}

func scanPoll(row pgx.CollectableRow) (domain.Poll, error) {
	var p domain.Poll
	var expiresAt *time.Time
	if err := row.Scan(&p.ID, &p.Title, &p.Active, &expiresAt, &p.CreatedBy, &p.CreatedAt); err != nil {
		return domain.Poll{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if expiresAt != nil {
		t := expiresAt.UTC()
		p.ExpiresAt = &t
	}
	return p, nil
}

// storeErr passes domain errors through and maps deadline expiry to
// ErrStoreTimeout.
func storeErr(op string, err error) error {
	switch {
	case isDomainErr(err):
		return err
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreTimeout, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isDomainErr(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrPollInactive,
		domain.ErrPollExpired,
		domain.ErrAlreadyVoted,
		domain.ErrPollExists,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
