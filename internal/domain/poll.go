package domain

import (
	"fmt"
	"strings"
	"time"
)

const MinOptions = 2

type Option struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Votes int64  `json:"votes"`
}

type Poll struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Options   []Option   `json:"options"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedBy string     `json:"createdBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Ballot is a single vote request. VoterID is optional; when set, the store
// accepts at most one ballot per voter and poll.
type Ballot struct {
	PollID   string
	OptionID string
	VoterID  string
}

// Validate checks the creation invariants: a title, at least two options,
// non-empty and unique option ids.
func (p Poll) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPoll)
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidPoll)
	}
	if len(p.Options) < MinOptions {
		return fmt.Errorf("%w: at least %d options are required, got %d", ErrInvalidPoll, MinOptions, len(p.Options))
	}

	seen := make(map[string]struct{}, len(p.Options))
	for i, o := range p.Options {
		if strings.TrimSpace(o.ID) == "" {
			return fmt.Errorf("%w: option %d has no id", ErrInvalidPoll, i)
		}
		if strings.TrimSpace(o.Text) == "" {
			return fmt.Errorf("%w: option %q has no text", ErrInvalidPoll, o.ID)
		}
		if o.Votes < 0 {
			return fmt.Errorf("%w: option %q has negative votes", ErrInvalidPoll, o.ID)
		}
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("%w: duplicate option id %q", ErrInvalidPoll, o.ID)
		}
		seen[o.ID] = struct{}{}
	}
	return nil
}

// Expired reports whether now is past the poll's expiry. Polls without an
// expiry never expire.
func (p Poll) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// CheckVotable returns ErrPollInactive or ErrPollExpired when the poll cannot
// take votes at now. It does not look at options.
func (p Poll) CheckVotable(now time.Time) error {
	if !p.Active {
		return ErrPollInactive
	}
	if p.Expired(now) {
		return ErrPollExpired
	}
	return nil
}

// OptionIndex returns the position of the option with the given id, or -1.
func (p Poll) OptionIndex(id string) int {
	for i, o := range p.Options {
		if o.ID == id {
			return i
		}
	}
	return -1
}

func (p Poll) TotalVotes() int64 {
	var total int64
	for _, o := range p.Options {
		total += o.Votes
	}
	return total
}

// Clone returns a deep copy so snapshots handed out never alias store state.
func (p Poll) Clone() Poll {
	c := p
	c.Options = append([]Option(nil), p.Options...)
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		c.ExpiresAt = &t
	}
	return c
}
