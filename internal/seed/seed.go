// Package seed loads polls from a YAML file and creates the ones that do not
// exist yet. Seeding is idempotent: a poll whose id is already taken is left
// untouched, votes included.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
)

// File is the YAML document layout.
//
//	polls:
//	  - id: lunch
//	    title: Where do we eat?
//	    expiresIn: 2h
//	    options:
//	      - {id: pizza, text: Pizza}
//	      - {id: sushi, text: Sushi}
type File struct {
	Entries []Poll `yaml:"polls"`
}

type Poll struct {
	ID        string        `yaml:"id"`
	Title     string        `yaml:"title"`
	Active    *bool         `yaml:"active"`
	CreatedBy string        `yaml:"createdBy"`
	ExpiresAt *time.Time    `yaml:"expiresAt"`
	ExpiresIn time.Duration `yaml:"expiresIn"`
	Options   []Option      `yaml:"options"`
}

type Option struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

// Creator is satisfied by app.Service.
type Creator interface {
	CreatePoll(ctx context.Context, poll domain.Poll, createdBy string) (domain.Poll, error)
}

// Result counts what Apply did.
type Result struct {
	Created int
	Skipped int
}

// LoadFile reads and parses path.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a seed document. Unknown keys are rejected so typos do not
// silently drop settings. Poll and option ids are required; generated ids
// would make every run create new polls.
func Parse(data []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, err
	}

	seen := make(map[string]struct{}, len(f.Entries))
	for i, p := range f.Entries {
		if p.ID == "" {
			return File{}, fmt.Errorf("poll %d: id is required", i)
		}
		if _, dup := seen[p.ID]; dup {
			return File{}, fmt.Errorf("poll %q listed twice", p.ID)
		}
		seen[p.ID] = struct{}{}
		for j, o := range p.Options {
			if o.ID == "" {
				return File{}, fmt.Errorf("poll %q option %d: id is required", p.ID, j)
			}
		}
		if p.ExpiresAt != nil && p.ExpiresIn != 0 {
			return File{}, fmt.Errorf("poll %q: expiresAt and expiresIn are mutually exclusive", p.ID)
		}
	}
	return f, nil
}

// Polls converts the document into domain polls. Relative expiries are
// resolved against now.
func (f File) Polls(now time.Time) []domain.Poll {
	polls := make([]domain.Poll, 0, len(f.Entries))
	for _, p := range f.Entries {
		poll := domain.Poll{
			ID:        p.ID,
			Title:     p.Title,
			Active:    p.Active == nil || *p.Active,
			CreatedBy: p.CreatedBy,
		}
		switch {
		case p.ExpiresAt != nil:
			at := p.ExpiresAt.UTC()
			poll.ExpiresAt = &at
		case p.ExpiresIn > 0:
			at := now.Add(p.ExpiresIn).UTC()
			poll.ExpiresAt = &at
		}
		for _, o := range p.Options {
			poll.Options = append(poll.Options, domain.Option{ID: o.ID, Text: o.Text})
		}
		polls = append(polls, poll)
	}
	return polls
}

// Apply creates every poll in order. Existing polls are skipped; any other
// error stops the run.
func Apply(ctx context.Context, c Creator, polls []domain.Poll) (Result, error) {
	var res Result
	for _, p := range polls {
		if _, err := c.CreatePoll(ctx, p, p.CreatedBy); err != nil {
			if errors.Is(err, domain.ErrPollExists) {
				slog.DebugContext(ctx, "Seed poll already exists", "poll_id", p.ID)
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("seed poll %s: %w", p.ID, err)
		}
		res.Created++
	}
	return res, nil
}
