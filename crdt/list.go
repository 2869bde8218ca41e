// Package crdt implements the RGA-style ordered-list CRDT at the heart of
// this module (spec.md §4.1). Nodes live in a flat arena addressed by
// integer slot, linked by a "next" index in linearization order, the
// arena-of-nodes idiom the teacher favors for its RDTs to sidestep
// ownership headaches (spec.md §9, grounded on the accessor-over-raw-slots
// style of _examples/drpcorg-chotki/orm.go and object_example.go).
package crdt

import (
	"github.com/pkg/errors"

	"github.com/drpcorg/ordercrdt/crdterrors"
	"github.com/drpcorg/ordercrdt/id"
)

// Source is the seam OrderedList uses to mint fresh ItemIDs and to hand
// generated ops to the owning Peer's outbound buffer (spec.md §4.1 step
// 2/4). Peer implements this; OrderedList never otherwise reaches outside
// its own arena.
type Source interface {
	NextID() id.ItemID
	SendOperation(op Op)
}

const noNext = -1

type node[V any] struct {
	id      id.ItemID
	value   V
	deleted bool
	next    int // index into arena, or noNext
}

// OrderedList is the RGA: a linked arena of nodes keyed by ItemID, with a
// deterministic placement rule for concurrent inserts at the same anchor
// and tombstone retention for deletes (spec.md §3, §4.1).
type OrderedList[V any] struct {
	src Source

	arena []node[V]
	byID  map[id.ItemID]int
	head  int // arena index of the first node in linearization order, or noNext
}

// NewOrderedList constructs an empty list bound to src for minting ids and
// enqueueing generated ops.
func NewOrderedList[V any](src Source) *OrderedList[V] {
	return &OrderedList[V]{
		src:  src,
		byID: make(map[id.ItemID]int),
		head: noNext,
	}
}

// NewOrderedListFromValues is a test/example convenience: it locally
// inserts each value in order, exactly as repeated calls to Insert would,
// grounded on the teacher's object_example.go convenience constructors
// (spec.md §D.4 of SPEC_FULL.md — not itself a spec operation).
func NewOrderedListFromValues[V any](src Source, values []V) *OrderedList[V] {
	l := NewOrderedList[V](src)
	for i, v := range values {
		l.Insert(i, v)
	}
	return l
}

// visibleNodeAt returns the arena index of the node at the given visible
// position (skipping tombstones), or noNext if beyond the end.
func (l *OrderedList[V]) visibleNodeAt(pos int) int {
	i := l.head
	for i != noNext {
		if !l.arena[i].deleted {
			if pos == 0 {
				return i
			}
			pos--
		}
		i = l.arena[i].next
	}
	return noNext
}

// Len returns the number of non-deleted (visible) elements.
func (l *OrderedList[V]) Len() int {
	n := 0
	for i := l.head; i != noNext; i = l.arena[i].next {
		if !l.arena[i].deleted {
			n++
		}
	}
	return n
}

// Get returns the value at visible position index. index must be in
// [0, Len()); out of range is a programmer error, same policy as
// Insert/Delete.
func (l *OrderedList[V]) Get(index int) V {
	n := l.visibleNodeAt(index)
	if n == noNext {
		panic("crdt: index out of range")
	}
	return l.arena[n].value
}

// ToSequence materializes the current visible sequence.
func (l *OrderedList[V]) ToSequence() []V {
	out := make([]V, 0, l.Len())
	for i := l.head; i != noNext; i = l.arena[i].next {
		if !l.arena[i].deleted {
			out = append(out, l.arena[i].value)
		}
	}
	return out
}

// spliceNode splices a new arena slot into the linearization immediately
// before beforeIdx (or at the end, when beforeIdx == noNext), with afterIdx
// as its immediate predecessor in the linked chain.
func (l *OrderedList[V]) spliceNode(n node[V], afterIdx, beforeIdx int) int {
	newIdx := len(l.arena)
	n.next = beforeIdx
	l.arena = append(l.arena, n)
	if afterIdx == noNext {
		l.head = newIdx
	} else {
		l.arena[afterIdx].next = newIdx
	}
	l.byID[n.id] = newIdx
	return newIdx
}

// Insert places value at visible position index (0-based over non-deleted
// nodes), mints a fresh ItemID via the Source, applies the resulting
// InsertOp locally, and enqueues it for transmission (spec.md §4.1 "Local
// insert algorithm").
func (l *OrderedList[V]) Insert(index int, value V) *OrderedList[V] {
	if index < 0 || index > l.Len() {
		panic("crdt: insert index out of range")
	}
	var refID *id.ItemID
	if index > 0 {
		anchorIdx := l.visibleNodeAt(index - 1)
		anchorID := l.arena[anchorIdx].id
		refID = &anchorID
	}
	newID := l.src.NextID()
	op := InsertOp[V]{ReferenceID: refID, NewID: newID, Value: value}
	if err := l.applyInsert(op); err != nil {
		// A locally generated op can never violate causality or collide
		// with an existing id; a failure here is a bug in NextID/arena
		// bookkeeping, not a protocol violation.
		panic(errors.Wrap(err, "crdt: local insert rejected by own list"))
	}
	l.src.SendOperation(op)
	return l
}

// Delete tombstones the visible element at index, minting a fresh ItemID
// (delete_ts) purely to advance the Lamport clock, applies the resulting
// DeleteOp locally, and enqueues it (spec.md §4.1 "Local delete
// algorithm").
func (l *OrderedList[V]) Delete(index int) *OrderedList[V] {
	if index < 0 || index >= l.Len() {
		panic("crdt: delete index out of range")
	}
	targetIdx := l.visibleNodeAt(index)
	targetID := l.arena[targetIdx].id
	deleteTS := l.src.NextID()
	op := DeleteOp{DeleteID: targetID, DeleteTS: deleteTS}
	if err := l.applyDelete(op); err != nil {
		panic(errors.Wrap(err, "crdt: local delete rejected by own list"))
	}
	l.src.SendOperation(op)
	return l
}

// ApplyOperation applies a remote insert or delete, per spec.md §4.1's
// remote algorithms. Local Insert and Delete share the same applyInsert /
// applyDelete paths, calling them directly before enqueueing the op.
func (l *OrderedList[V]) ApplyOperation(op Op) error {
	switch o := op.(type) {
	case InsertOp[V]:
		return l.applyInsert(o)
	case DeleteOp:
		return l.applyDelete(o)
	default:
		panic("crdt: ApplyOperation given a non-list op")
	}
}

// applyInsert implements the RGA placement rule (spec.md §4.1): starting
// from the successor of reference_id, skip forward over any node whose id
// is greater than new_id, then insert immediately before the first node
// whose id is less (or at the end of that run). This orders all
// concurrent inserts sharing one anchor in descending ItemID order.
func (l *OrderedList[V]) applyInsert(op InsertOp[V]) error {
	if _, dup := l.byID[op.NewID]; dup {
		return errors.Wrapf(crdterrors.ErrDuplicateItemId, "item id %s", op.NewID)
	}

	afterIdx := noNext
	beforeIdx := l.head
	if op.ReferenceID != nil {
		refIdx, ok := l.byID[*op.ReferenceID]
		if !ok {
			return errors.Wrapf(crdterrors.ErrUnknownReference, "reference id %s", *op.ReferenceID)
		}
		afterIdx = refIdx
		beforeIdx = l.arena[refIdx].next
	}

	for beforeIdx != noNext && !l.arena[beforeIdx].id.Less(op.NewID) {
		// arena[beforeIdx].id > op.NewID (ids are distinct and totally
		// ordered, so "not less" here means strictly greater): skip
		// forward over it, per the descending-id tie-break rule.
		afterIdx = beforeIdx
		beforeIdx = l.arena[beforeIdx].next
	}

	n := node[V]{id: op.NewID, value: op.Value, deleted: false}
	l.spliceNode(n, afterIdx, beforeIdx)
	return nil
}

// applyDelete tombstones the node named by op.DeleteID. Idempotent:
// re-applying a delete to an already-deleted node is a no-op.
func (l *OrderedList[V]) applyDelete(op DeleteOp) error {
	idx, ok := l.byID[op.DeleteID]
	if !ok {
		return errors.Wrapf(crdterrors.ErrUnknownDeleteTarget, "delete id %s", op.DeleteID)
	}
	l.arena[idx].deleted = true
	return nil
}
