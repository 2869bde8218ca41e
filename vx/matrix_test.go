package vx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drpcorg/ordercrdt/crdterrors"
	"github.com/drpcorg/ordercrdt/id"
)

func mkPeer(b byte) id.PeerID {
	var p id.PeerID
	p[31] = b
	return p
}

func TestNewMatrixSelfIndexZero(t *testing.T) {
	self := mkPeer(1)
	m := New(self)
	assert.Equal(t, self, m.OwnPeerID())
	idx := m.PeerIdToIndex(self)
	assert.Equal(t, LocalIndex(0), idx)
}

func TestPeerIdToIndexSequential(t *testing.T) {
	m := New(mkPeer(1))
	a := mkPeer(2)
	b := mkPeer(3)
	idxA := m.PeerIdToIndex(a)
	idxB := m.PeerIdToIndex(b)
	assert.Equal(t, LocalIndex(1), idxA)
	assert.Equal(t, LocalIndex(2), idxB)
	// Idempotent: asking again returns the same index, no reassignment.
	assert.Equal(t, idxA, m.PeerIdToIndex(a))
}

func TestIncrementSentMessages(t *testing.T) {
	m := New(mkPeer(1))
	assert.Equal(t, uint64(1), m.IncrementSentMessages())
	assert.Equal(t, uint64(2), m.IncrementSentMessages())
}

func TestProcessedIncomingMsgSequencing(t *testing.T) {
	m := New(mkPeer(1))
	origin := mkPeer(2)

	require.NoError(t, m.ProcessedIncomingMsg(origin, 1))
	require.NoError(t, m.ProcessedIncomingMsg(origin, 2))

	err := m.ProcessedIncomingMsg(origin, 2)
	assert.ErrorIs(t, err, crdterrors.ErrMsgCountJumped)

	err = m.ProcessedIncomingMsg(origin, 10)
	assert.ErrorIs(t, err, crdterrors.ErrMsgCountJumped)
}

func TestPeerIndexMappingContracts(t *testing.T) {
	m := New(mkPeer(1))
	origin := mkPeer(2)
	subject := mkPeer(3)

	require.NoError(t, m.PeerIndexMapping(origin, &subject, 0))

	// Re-stating the same mapping is fine.
	require.NoError(t, m.PeerIndexMapping(origin, &subject, 0))

	other := mkPeer(4)
	err := m.PeerIndexMapping(origin, &other, 0)
	assert.ErrorIs(t, err, crdterrors.ErrContradictoryMapping)

	err = m.PeerIndexMapping(origin, &other, 5)
	assert.ErrorIs(t, err, crdterrors.ErrNonConsecutiveIndex)

	err = m.PeerIndexMapping(origin, nil, 1)
	assert.ErrorIs(t, err, crdterrors.ErrNewIndexMissingId)
}

func TestApplyClockUpdateGoingBackwardsRejected(t *testing.T) {
	m := New(mkPeer(1))
	origin := mkPeer(2)
	subject := mkPeer(3)

	up := FrozenClockUpdate([]PeerVClockEntry{{PeerID: subject, PeerIndex: 0, MsgCount: 5}})
	require.NoError(t, m.ApplyClockUpdate(origin, up))

	down := FrozenClockUpdate([]PeerVClockEntry{{PeerID: subject, PeerIndex: 0, MsgCount: 3}})
	err := m.ApplyClockUpdate(origin, down)
	assert.ErrorIs(t, err, crdterrors.ErrClockWentBackwards)
}

func TestCausallyReadyUnknownOriginIsReady(t *testing.T) {
	m := New(mkPeer(1))
	assert.True(t, m.CausallyReady(mkPeer(9)))
}

func TestCausallyReadyBlocksOnUnmetDependency(t *testing.T) {
	m := New(mkPeer(1))
	origin := mkPeer(2)
	third := mkPeer(3)

	// origin claims to have already seen 4 messages from `third`, but we
	// (the local peer) have seen none yet from `third` directly.
	update := FrozenClockUpdate([]PeerVClockEntry{{PeerID: third, PeerIndex: 0, MsgCount: 4}})
	require.NoError(t, m.ApplyClockUpdate(origin, update))

	assert.False(t, m.CausallyReady(origin))

	// Once we catch up directly with `third` (message counts are assigned
	// strictly sequentially per origin, so we must pass through 1..4),
	// origin becomes ready.
	for n := uint64(1); n <= 4; n++ {
		require.NoError(t, m.ProcessedIncomingMsg(third, n))
	}
	assert.True(t, m.CausallyReady(origin))
}

func TestResetClockUpdateClearsPending(t *testing.T) {
	m := New(mkPeer(1))
	other := mkPeer(2)
	m.PeerIdToIndex(other)
	assert.True(t, m.HasPendingClockUpdate())
	m.ResetClockUpdate()
	assert.False(t, m.HasPendingClockUpdate())
}

func TestSummaryDoesNotPanic(t *testing.T) {
	m := New(mkPeer(1))
	m.PeerIdToIndex(mkPeer(2))
	assert.NotEmpty(t, m.Summary())
}
