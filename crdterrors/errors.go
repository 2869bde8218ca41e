// Package crdterrors declares the protocol-violation error kinds of the
// ordered-list CRDT core (spec.md §7). Each is a distinct sentinel so
// callers can `errors.Is` against it; call sites wrap a sentinel with
// `github.com/pkg/errors` to attach the offending peer and the
// expected/actual values without losing the sentinel identity.
package crdterrors

import "errors"

var (
	// ErrContradictoryMapping: an origin's claimed (index -> peer) mapping
	// disagrees with one already recorded.
	ErrContradictoryMapping = errors.New("crdt: contradictory peer index mapping")

	// ErrNonConsecutiveIndex: a new index assignment did not equal the
	// current row length (indices must be assigned strictly sequentially).
	ErrNonConsecutiveIndex = errors.New("crdt: non-consecutive peer index")

	// ErrNewIndexMissingId: a never-before-seen index was reported without
	// the peer id it names.
	ErrNewIndexMissingId = errors.New("crdt: new peer index missing id")

	// ErrClockWentBackwards: an incoming clock update's msg_count is lower
	// than what is already recorded for that (observer, subject) pair.
	ErrClockWentBackwards = errors.New("crdt: clock update went backwards")

	// ErrMsgCountBackwards: processed_incoming_msg saw a msg_count < the
	// last seen one.
	ErrMsgCountBackwards = errors.New("crdt: message count went backwards")

	// ErrMsgCountJumped: processed_incoming_msg saw a msg_count that is not
	// below last_seen but is not last_seen+1 either (a gap, or a duplicate
	// delivery of the last seen message).
	ErrMsgCountJumped = errors.New("crdt: message count jumped")

	// ErrUnknownReference: a remote InsertOp names a reference_id not yet
	// present in the list — a causal-delivery violation.
	ErrUnknownReference = errors.New("crdt: insert references unknown item id")

	// ErrDuplicateItemId: an insert names an ItemID already present in the
	// list.
	ErrDuplicateItemId = errors.New("crdt: duplicate item id")

	// ErrUnknownRemoteIndex: remote_index_to_peer_id was asked about an
	// index the origin never assigned.
	ErrUnknownRemoteIndex = errors.New("crdt: unknown remote peer index")

	// ErrUnknownDeleteTarget: a remote DeleteOp names an id not yet present
	// in the list — a causal-delivery violation.
	ErrUnknownDeleteTarget = errors.New("crdt: delete references unknown item id")
)
