// Package domain defines the core domain types and interfaces.
//
// Polls, options, ballots and the events fanned out after a vote live here,
// together with the contracts the adapters implement (VoteStore, EventBus).
// No implementation code beyond invariant checks on the value types.
package domain
