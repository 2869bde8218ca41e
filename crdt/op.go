package crdt

import "github.com/drpcorg/ordercrdt/id"

// OpKind tags the variant of an Op. The op union is a closed set: 0..63
// are reserved for list ops defined here; package peer defines its own
// control-op kinds (ClockUpdateOp, MessageProcessedOp) starting at 100, so
// the two packages' kind spaces never collide without either depending on
// the other's internals.
type OpKind int

const (
	OpInsert OpKind = iota
	OpDelete
)

// Op is the tagged union spec.md §3/§9 describes: a closed set of
// concrete struct types, each labeled by Kind(). Pattern matching (a type
// switch on the concrete op type) drives dispatch, per the
// teacher's preference for sum types over class hierarchies (spec.md §9).
type Op interface {
	Kind() OpKind
}

// InsertOp places Value, identified by NewID, immediately after the
// element identified by ReferenceID, or at the list head when
// ReferenceID is nil.
type InsertOp[V any] struct {
	ReferenceID *id.ItemID
	NewID       id.ItemID
	Value       V
}

func (InsertOp[V]) Kind() OpKind { return OpInsert }

// DeleteOp tombstones the element identified by DeleteID. DeleteTS is a
// fresh ItemID minted at the origin purely to advance the Lamport clock
// and give the delete event its own identity for causal tracking; per
// spec.md §9 it carries no tie-breaking role and Delete is idempotent
// without consulting it.
type DeleteOp struct {
	DeleteID id.ItemID
	DeleteTS id.ItemID
}

func (DeleteOp) Kind() OpKind { return OpDelete }
