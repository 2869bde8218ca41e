package peer

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drpcorg/ordercrdt/crdterrors"
	"github.com/drpcorg/ordercrdt/id"
)

func mkPeerID(b byte) id.PeerID {
	var p id.PeerID
	p[31] = b
	return p
}

// deliverAll flushes every pending outbound message on from into to.
func deliverAll(t *testing.T, ctx context.Context, from, to *Peer[string]) {
	t.Helper()
	for from.HasPendingOutbound() {
		msg := from.MakeMessage()
		require.NoError(t, to.ProcessMessage(ctx, msg))
	}
}

func TestEmptyPeerDefault(t *testing.T) {
	p := New[string](mkPeerID(1), Options{})
	assert.Equal(t, []string{}, p.List.ToSequence())
	assert.False(t, p.HasPendingOutbound())
}

func TestLocalInsertDeleteLogicalTimestamps(t *testing.T) {
	p := New[string](mkPeerID(1), Options{})
	p.List.Insert(0, "a")
	p.List.Insert(1, "b")
	p.List.Insert(0, "c")
	p.List.Delete(1) // deletes the visible "a"

	assert.Equal(t, []string{"c", "b"}, p.List.ToSequence())
	assert.Equal(t, id.LogicalTimestamp(4), p.LogicalTimestamp())
}

func TestRemoteApply(t *testing.T) {
	ctx := context.Background()
	p1 := New[string](mkPeerID(1), Options{})
	p2 := New[string](mkPeerID(2), Options{})

	p1.List.Insert(0, "a")
	p1.List.Insert(1, "b")
	p1.List.Insert(2, "c")
	p1.List.Delete(1) // deletes "b"

	deliverAll(t, ctx, p1, p2)
	assert.Equal(t, []string{"a", "c"}, p2.List.ToSequence())
}

func TestConcurrentInsertsSameAnchorConverge(t *testing.T) {
	ctx := context.Background()
	p1 := New[string](mkPeerID(1), Options{})
	p2 := New[string](mkPeerID(2), Options{})

	p1.List.Insert(0, "a")
	deliverAll(t, ctx, p1, p2)
	require.Equal(t, []string{"a"}, p2.List.ToSequence())

	p2.List.Insert(1, "b")
	p1.List.Insert(1, "c")

	deliverAll(t, ctx, p1, p2)
	deliverAll(t, ctx, p2, p1)

	assert.Equal(t, []string{"a", "b", "c"}, p1.List.ToSequence())
	assert.Equal(t, []string{"a", "b", "c"}, p2.List.ToSequence())
}

func TestConcurrentInsertsAtHeadConverge(t *testing.T) {
	ctx := context.Background()
	p1 := New[string](mkPeerID(1), Options{})
	p2 := New[string](mkPeerID(2), Options{})

	p2.List.Insert(0, "a")
	p2.List.Insert(1, "b")
	p1.List.Insert(0, "c")
	p1.List.Insert(1, "d")

	deliverAll(t, ctx, p1, p2)
	deliverAll(t, ctx, p2, p1)

	assert.Equal(t, []string{"a", "b", "c", "d"}, p1.List.ToSequence())
	assert.Equal(t, []string{"a", "b", "c", "d"}, p2.List.ToSequence())
}

func TestConcurrentInsertAfterDeletedAnchorConverges(t *testing.T) {
	ctx := context.Background()
	p1 := New[string](mkPeerID(1), Options{})
	p2 := New[string](mkPeerID(2), Options{})

	p1.List.Insert(0, "a")
	deliverAll(t, ctx, p1, p2)
	require.Equal(t, []string{"a"}, p2.List.ToSequence())

	p1.List.Delete(0)
	p2.List.Insert(1, "b")

	deliverAll(t, ctx, p1, p2)
	deliverAll(t, ctx, p2, p1)

	assert.Equal(t, []string{"b"}, p1.List.ToSequence())
	assert.Equal(t, []string{"b"}, p2.List.ToSequence())
}

// TestRedeliveringSameMessageIsRejected covers spec.md §8 invariant 6
// (idempotence). A resent message carrying ops that already landed is
// rejected as soon as those ops are re-applied, since the duplicate
// ItemID is detected before the message-count marker is even reached;
// this is the flavor of "never silently re-applies" that actually fires
// first when the message carries payload.
func TestRedeliveringSameMessageIsRejected(t *testing.T) {
	ctx := context.Background()
	p1 := New[string](mkPeerID(1), Options{})
	p2 := New[string](mkPeerID(2), Options{})

	p1.List.Insert(0, "a")
	require.True(t, p1.HasPendingOutbound())
	msg := p1.MakeMessage()

	require.NoError(t, p2.ProcessMessage(ctx, msg))
	err := p2.ProcessMessage(ctx, msg)
	assert.ErrorIs(t, err, crdterrors.ErrDuplicateItemId)
}

// TestRedeliveringEmptyMessageIsRejectedByMsgCount covers the same
// idempotence invariant for a message with no ops of its own (e.g. a
// keepalive / pure clock announcement): with nothing to collide on, the
// resend is caught exactly where spec.md §8 invariant 6 says it must be,
// at the message-count check.
func TestRedeliveringEmptyMessageIsRejectedByMsgCount(t *testing.T) {
	ctx := context.Background()
	p1 := New[string](mkPeerID(1), Options{})
	p2 := New[string](mkPeerID(2), Options{})

	msg := p1.MakeMessage() // no ops buffered: an empty heartbeat message
	require.NoError(t, p2.ProcessMessage(ctx, msg))
	err := p2.ProcessMessage(ctx, msg)
	assert.ErrorIs(t, err, crdterrors.ErrMsgCountJumped)
}

func TestMakeMessageResetsOutboundBuffer(t *testing.T) {
	p := New[string](mkPeerID(1), Options{})
	p.List.Insert(0, "a")
	_ = p.MakeMessage()
	assert.False(t, p.HasPendingOutbound())
}

func TestKnownPeersIncludesSelf(t *testing.T) {
	p := New[string](mkPeerID(1), Options{})
	peers := p.KnownPeers()
	require.Len(t, peers, 1)
	assert.Equal(t, mkPeerID(1), peers[0])
}

func TestMetricsTrackActivity(t *testing.T) {
	ctx := context.Background()
	m := NewMetrics(nil)
	p1 := New[string](mkPeerID(1), Options{Metrics: m})
	p2 := New[string](mkPeerID(2), Options{})

	p1.List.Insert(0, "a")
	p1.List.Insert(1, "b")
	deliverAll(t, ctx, p1, p2)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.OpsSent))
}
