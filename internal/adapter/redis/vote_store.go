package redis

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
)

const pollIndexKey = "polls"

// Per-poll keys. Scripts also touch pollIndexKey, so the store targets a
// single Redis node rather than a cluster.
func pollKey(id string) string   { return "poll:{" + id + "}" }
func votesKey(id string) string  { return "poll:{" + id + "}:votes" }
func votersKey(id string) string { return "poll:{" + id + "}:voters" }

// pollMeta holds the fields that never change after creation.
type pollMeta struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Options   []optionMeta `json:"options"`
	CreatedBy string       `json:"createdBy,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

type optionMeta struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// VoteStore keeps each poll in a hash (meta, active, expires_at), its counts
// in a second hash and its voters in a set. A sorted set indexes polls by
// creation time.
type VoteStore struct {
	rdb   *goredis.Client
	clock clockwork.Clock
}

var _ domain.VoteStore = (*VoteStore)(nil)

func NewVoteStore(rdb *goredis.Client, clock clockwork.Clock) *VoteStore {
	return &VoteStore{rdb: rdb, clock: clock}
}

func (s *VoteStore) CreatePoll(ctx context.Context, poll domain.Poll) (domain.Poll, error) {
	if err := poll.Validate(); err != nil {
		return domain.Poll{}, err
	}

	stored := poll.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.clock.Now().UTC()
	}
	// Millisecond precision is what the hash keeps.
	stored.CreatedAt = stored.CreatedAt.Truncate(time.Millisecond)
	if stored.ExpiresAt != nil {
		t := stored.ExpiresAt.Truncate(time.Millisecond)
		stored.ExpiresAt = &t
	}

	meta := pollMeta{ID: stored.ID, Title: stored.Title, CreatedBy: stored.CreatedBy, CreatedAt: stored.CreatedAt}
	for _, o := range stored.Options {
		meta.Options = append(meta.Options, optionMeta{ID: o.ID, Text: o.Text})
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return domain.Poll{}, fmt.Errorf("failed to marshal poll: %w", err)
	}

	args := []any{string(data), encodeActive(stored.Active), encodeExpiry(stored.ExpiresAt), stored.CreatedAt.UnixMilli(), stored.ID}
	for _, o := range stored.Options {
		args = append(args, o.ID, o.Votes)
	}

	keys := []string{pollKey(stored.ID), votesKey(stored.ID), pollIndexKey}
	res, err := createPollScript.Run(ctx, s.rdb, keys, args...).Text()
	if err != nil {
		return domain.Poll{}, storeErr("create poll", err)
	}
	if res == statusExists {
		return domain.Poll{}, fmt.Errorf("%w: %s", domain.ErrPollExists, stored.ID)
	}
	return stored, nil
}

func (s *VoteStore) GetPoll(ctx context.Context, pollID string) (domain.Poll, error) {
	pipe := s.rdb.Pipeline()
	pollCmd := pipe.HGetAll(ctx, pollKey(pollID))
	votesCmd := pipe.HGetAll(ctx, votesKey(pollID))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Poll{}, storeErr("get poll", err)
	}
	return decodeHashes(pollCmd.Val(), votesCmd.Val())
}

// ListPolls returns polls newest first. Ids whose hash has vanished since the
// index was read are skipped.
func (s *VoteStore) ListPolls(ctx context.Context) ([]domain.Poll, error) {
	ids, err := s.rdb.ZRevRange(ctx, pollIndexKey, 0, -1).Result()
	if err != nil {
		return nil, storeErr("list polls", err)
	}
	if len(ids) == 0 {
		return []domain.Poll{}, nil
	}

	pipe := s.rdb.Pipeline()
	pollCmds := make([]*goredis.MapStringStringCmd, len(ids))
	votesCmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		pollCmds[i] = pipe.HGetAll(ctx, pollKey(id))
		votesCmds[i] = pipe.HGetAll(ctx, votesKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, storeErr("list polls", err)
	}

	polls := make([]domain.Poll, 0, len(ids))
	for i := range ids {
		p, err := decodeHashes(pollCmds[i].Val(), votesCmds[i].Val())
		if errors.Is(err, domain.ErrPollNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		polls = append(polls, p)
	}

	slices.SortFunc(polls, func(a, b domain.Poll) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return polls, nil
}

// SetActive flips the active flag under WATCH so a concurrent delete is not
// resurrected as a half-written hash.
func (s *VoteStore) SetActive(ctx context.Context, pollID string, active bool) (domain.Poll, error) {
	key := pollKey(pollID)
	var updated domain.Poll

	txf := func(tx *goredis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		votes, err := tx.HGetAll(ctx, votesKey(pollID)).Result()
		if err != nil {
			return err
		}
		p, err := decodeHashes(fields, votes)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, "active", encodeActive(active))
			return nil
		})
		if err != nil {
			return err
		}
		p.Active = active
		updated = p
		return nil
	}

	for range 3 {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if errors.Is(err, domain.ErrPollNotFound) {
			return domain.Poll{}, err
		}
		if err != nil {
			return domain.Poll{}, storeErr("set active", err)
		}
		return updated, nil
	}
	return domain.Poll{}, fmt.Errorf("set active: %w", goredis.TxFailedErr)
}

func (s *VoteStore) DeletePoll(ctx context.Context, pollID string) error {
	var delCmd *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		delCmd = pipe.Del(ctx, pollKey(pollID))
		pipe.Del(ctx, votesKey(pollID), votersKey(pollID))
		pipe.ZRem(ctx, pollIndexKey, pollID)
		return nil
	})
	if err != nil {
		return storeErr("delete poll", err)
	}
	if delCmd.Val() == 0 {
		return domain.ErrPollNotFound
	}
	return nil
}

func (s *VoteStore) CastVote(ctx context.Context, ballot domain.Ballot) (domain.Poll, error) {
	keys := []string{pollKey(ballot.PollID), votesKey(ballot.PollID), votersKey(ballot.PollID)}
	res, err := castVoteScript.Run(ctx, s.rdb, keys,
		ballot.OptionID,
		ballot.VoterID,
		strconv.FormatInt(s.clock.Now().UnixMilli(), 10),
	).Slice()
	if err != nil {
		return domain.Poll{}, storeErr("cast vote", err)
	}
	return parseCastReply(res)
}

func parseCastReply(res []any) (domain.Poll, error) {
	if len(res) == 0 {
		return domain.Poll{}, errors.New("cast vote: empty reply")
	}
	status, _ := res[0].(string)
	switch status {
	case statusOK:
	case statusNotFound:
		return domain.Poll{}, domain.ErrPollNotFound
	case statusInactive:
		return domain.Poll{}, domain.ErrPollInactive
	case statusExpired:
		return domain.Poll{}, domain.ErrPollExpired
	case statusOptionNotFound:
		return domain.Poll{}, domain.ErrOptionNotFound
	case statusAlreadyVoted:
		return domain.Poll{}, domain.ErrAlreadyVoted
	default:
		return domain.Poll{}, fmt.Errorf("cast vote: unexpected reply %v", res[0])
	}

	if len(res) != 5 {
		return domain.Poll{}, fmt.Errorf("cast vote: malformed reply of length %d", len(res))
	}
	meta, _ := res[1].(string)
	active, _ := res[2].(string)
	expires, _ := res[3].(string)
	flat, _ := res[4].([]any)

	votes := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		votes[k] = v
	}
	return decodeHashes(map[string]string{"meta": meta, "active": active, "expires_at": expires}, votes)
}

// decodeHashes rebuilds a poll from its two hashes. An empty poll hash means
// the poll does not exist.
func decodeHashes(fields, votes map[string]string) (domain.Poll, error) {
	raw, ok := fields["meta"]
	if !ok || raw == "" {
		return domain.Poll{}, domain.ErrPollNotFound
	}

	var meta pollMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return domain.Poll{}, fmt.Errorf("failed to unmarshal poll: %w", err)
	}

	p := domain.Poll{
		ID:        meta.ID,
		Title:     meta.Title,
		Active:    fields["active"] == "1",
		CreatedBy: meta.CreatedBy,
		CreatedAt: meta.CreatedAt,
		Options:   make([]domain.Option, len(meta.Options)),
	}
	if exp := fields["expires_at"]; exp != "" {
		ms, err := strconv.ParseInt(exp, 10, 64)
		if err != nil {
			return domain.Poll{}, fmt.Errorf("invalid expires_at %q: %w", exp, err)
		}
		t := time.UnixMilli(ms).UTC()
		p.ExpiresAt = &t
	}
	for i, o := range meta.Options {
		var n int64
		if v := votes[o.ID]; v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return domain.Poll{}, fmt.Errorf("invalid count for option %q: %w", o.ID, err)
			}
			n = parsed
		}
		p.Options[i] = domain.Option{ID: o.ID, Text: o.Text, Votes: n}
	}
	return p, nil
}

func encodeActive(active bool) string {
	if active {
		return "1"
	}
	return "0"
}

func encodeExpiry(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}
