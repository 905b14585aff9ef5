package domain

type EventKind string

const (
	EventVoteUpdate   EventKind = "VOTE_UPDATE"
	EventPollStatus   EventKind = "POLL_STATUS"
	EventPollDeleted  EventKind = "POLL_DELETED"
	EventPollSnapshot EventKind = "POLL_SNAPSHOT"
)

// VoteEvent carries a full poll snapshot to the broadcast layer. It is built
// after a successful store mutation and never modified afterwards.
type VoteEvent struct {
	Kind   EventKind
	PollID string
	Poll   Poll
}

func NewVoteEvent(p Poll) VoteEvent {
	return VoteEvent{Kind: EventVoteUpdate, PollID: p.ID, Poll: p.Clone()}
}

func NewStatusEvent(p Poll) VoteEvent {
	return VoteEvent{Kind: EventPollStatus, PollID: p.ID, Poll: p.Clone()}
}

func NewDeletedEvent(pollID string) VoteEvent {
	return VoteEvent{Kind: EventPollDeleted, PollID: pollID}
}

func NewSnapshotEvent(p Poll) VoteEvent {
	return VoteEvent{Kind: EventPollSnapshot, PollID: p.ID, Poll: p.Clone()}
}

// Envelope is the wire form sent to websocket clients.
type Envelope struct {
	Type   EventKind `json:"type"`
	PollID string    `json:"pollId"`
	Poll   *Poll     `json:"poll,omitempty"`
}

func (e VoteEvent) Envelope() Envelope {
	env := Envelope{Type: e.Kind, PollID: e.PollID}
	if e.Kind != EventPollDeleted {
		p := e.Poll
		env.Poll = &p
	}
	return env
}
