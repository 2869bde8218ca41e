// Package id defines the identity primitives of the ordered-list CRDT:
// PeerID, the per-peer Lamport counter, and ItemID, the totally ordered
// pair that names every element ever inserted into an OrderedList.
package id

import (
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash"
)

// PeerID is an opaque, globally unique replica identifier: a 256-bit value,
// in practice produced by the host from a CSPRNG and rendered as lowercase
// hex. The core never generates one itself (see package idgen for a
// test/example helper); it only compares and stores them.
type PeerID [32]byte

// ZeroPeerID is the distinguished "no peer" value; it is never a valid
// origin and is used only as a zero value / sentinel in maps.
var ZeroPeerID = PeerID{}

// Less orders PeerIDs byte-wise. The order carries no meaning beyond being
// a stable, total tie-breaker (ItemID.Less, PeerMatrix bookkeeping).
func (p PeerID) Less(o PeerID) bool {
	for i := range p {
		if p[i] != o[i] {
			return p[i] < o[i]
		}
	}
	return false
}

func (p PeerID) Equal(o PeerID) bool {
	return p == o
}

func (p PeerID) String() string {
	return hex.EncodeToString(p[:])
}

// hash returns a fast, non-cryptographic digest of the id, used to derive
// Tag.
func (p PeerID) hash() uint64 {
	return xxhash.Sum64(p[:])
}

// Hash exposes the digest for callers that want to key a hash-based
// structure on a PeerID without storing or comparing the full 32 bytes,
// e.g. a label cache keyed by peer rather than by its string form.
func (p PeerID) Hash() uint64 {
	return p.hash()
}

// Tag renders a short, fixed-width identifier for log lines and metric
// label values: the low 32 bits of the xxhash digest, not a truncation of
// the hex string, so two PeerIDs sharing a long common hex prefix (as
// sequentially minted test/demo ids often do) still get visibly distinct
// tags.
func (p PeerID) Tag() string {
	return fmt.Sprintf("%08x", uint32(p.hash()))
}

// ParsePeerID parses a lowercase-hex-encoded 256-bit peer id.
func ParsePeerID(s string) (PeerID, error) {
	var p PeerID
	b, err := hex.DecodeString(s)
	if err != nil {
		return p, fmt.Errorf("id: bad peer id %q: %w", s, err)
	}
	if len(b) != len(p) {
		return p, fmt.Errorf("id: peer id %q has %d bytes, want %d", s, len(b), len(p))
	}
	copy(p[:], b)
	return p, nil
}

// LogicalTimestamp is a non-negative Lamport counter value, strictly
// increasing within a single peer.
type LogicalTimestamp uint64

// ItemID = (logical_ts, peer_id), totally ordered first by logical_ts then
// by peer_id. It is the immutable identity of every node ever inserted
// into an OrderedList and of every delete event.
type ItemID struct {
	Logical LogicalTimestamp
	Peer    PeerID
}

// Zero reports whether this is the unset ItemID, used as the "no reference"
// / "list head" marker distinct from any real id (logical_ts 0 is a valid
// real timestamp emitted by no peer, since next_id always pre-increments).
func (id ItemID) Zero() bool {
	return id.Logical == 0 && id.Peer == ZeroPeerID
}

// Less implements the total order: ascending logical_ts, then ascending
// peer_id.
func (id ItemID) Less(o ItemID) bool {
	if id.Logical != o.Logical {
		return id.Logical < o.Logical
	}
	return id.Peer.Less(o.Peer)
}

func (id ItemID) Equal(o ItemID) bool {
	return id.Logical == o.Logical && id.Peer == o.Peer
}

func (id ItemID) String() string {
	if id.Zero() {
		return "∅"
	}
	return fmt.Sprintf("%d@%s", id.Logical, id.Peer.Tag())
}
