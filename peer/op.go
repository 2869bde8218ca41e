package peer

import (
	"github.com/drpcorg/ordercrdt/crdt"
	"github.com/drpcorg/ordercrdt/vx"
)

// Peer-level op kinds. These start well above crdt.OpKind's own values so
// the two packages' closed op sets never collide; crdt never needs to
// know about them, since ApplyOperation only ever receives InsertOp /
// DeleteOp, but peer's causal delivery loop switches over all four
// variants named in spec.md §3.
const (
	OpClockUpdate crdt.OpKind = 100 + iota
	OpMessageProcessed
)

// ClockUpdateOp carries an embedded PeerMatrix clock diff inline in the
// operation stream, so dependency state always precedes the ops that
// depend on it (spec.md §4.3 send_operation).
type ClockUpdateOp struct {
	Update vx.ClockUpdate
}

func (ClockUpdateOp) Kind() crdt.OpKind { return OpClockUpdate }

// MessageProcessedOp is a synthetic marker the receiver inserts between
// messages so the clock-counter bump in PeerMatrix.ProcessedIncomingMsg
// happens at the right boundary: after that message's own ops and clock
// update have been applied, not before.
type MessageProcessedOp struct {
	MsgCount uint64
}

func (MessageProcessedOp) Kind() crdt.OpKind { return OpMessageProcessed }
