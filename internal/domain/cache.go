package domain

// PollCache holds recent poll snapshots in process. Store refuses a snapshot
// with fewer votes than the cached one. Callers fill and mutate an entry under
// the same per-poll lock.
type PollCache interface {
	Get(pollID string) (Poll, bool)
	Store(poll Poll)
	Delete(pollID string)
}
