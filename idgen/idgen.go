// Package idgen is a test/example helper for minting PeerIDs. Random
// peer-id generation is explicitly outside the core's scope (spec.md
// §1): the core only ever compares and stores PeerIDs a caller supplies.
// This package exists so tests and the example program have a convenient,
// collision-resistant way to produce them, grounded on the teacher's use
// of github.com/google/uuid for connection trace ids
// (_examples/drpcorg-chotki/protocol/net.go).
package idgen

import (
	"github.com/google/uuid"

	"github.com/drpcorg/ordercrdt/id"
)

// NewPeerID mints a fresh 256-bit PeerID by concatenating two random
// (version 4) UUIDs, since a PeerID is twice the width of one UUID.
func NewPeerID() id.PeerID {
	var p id.PeerID
	a := uuid.New()
	b := uuid.New()
	copy(p[:16], a[:])
	copy(p[16:], b[:])
	return p
}
