// Package vx implements the peer matrix: a compact representation of every
// known peer's vector-clock knowledge, addressed by locally assigned small
// integer indices instead of full PeerIDs, plus incremental diffs of that
// state. Grounded on the teacher's rdx.VV (_examples/drpcorg-chotki/rdx/vv.go)
// and its older root-package VV (vv.go), generalized from a flat
// src->progress map into the two-dimensional per-observer table spec.md
// §4.2 describes.
package vx

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/drpcorg/ordercrdt/crdterrors"
	"github.com/drpcorg/ordercrdt/id"
)

// LocalIndex is a small integer a given observer has assigned to some
// subject peer. Indices are local to the observer that assigned them:
// the same PeerID may have different indices at different observers.
type LocalIndex uint32

// PeerVClockEntry records, for some (observer, subject) pair, the
// subject's locally assigned index at the observer and how many messages
// the observer has processed from the subject.
type PeerVClockEntry struct {
	PeerID    id.PeerID
	PeerIndex LocalIndex
	MsgCount  uint64
}

// ClockUpdate is either a locally accumulating builder (see
// PeerMatrix.pending) or a frozen, ordered sequence of entries received
// from a remote peer, ordered by the sender's PeerIndex ascending.
type ClockUpdate struct {
	entries []PeerVClockEntry
	frozen  bool
}

// Entries returns the update's entries in sender-PeerIndex order. The
// returned slice must not be mutated; ClockUpdate received from the wire
// is frozen and mutating it is a programmer error.
func (u *ClockUpdate) Entries() []PeerVClockEntry {
	return u.entries
}

// Empty reports whether the update carries no entries.
func (u *ClockUpdate) Empty() bool {
	return len(u.entries) == 0
}

// Freeze returns an immutable copy of the update's entries, ordered by
// PeerIndex ascending, suitable for embedding in an outbound Message.
func (u *ClockUpdate) Freeze() ClockUpdate {
	out := make([]PeerVClockEntry, len(u.entries))
	copy(out, u.entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].PeerIndex < out[j].PeerIndex })
	return ClockUpdate{entries: out, frozen: true}
}

// FrozenClockUpdate wraps a sequence of entries received from the wire.
// Entries must already be ordered by the sender's PeerIndex ascending, as
// spec.md §3 requires of a received ClockUpdate.
func FrozenClockUpdate(entries []PeerVClockEntry) ClockUpdate {
	return ClockUpdate{entries: entries, frozen: true}
}

func (u *ClockUpdate) upsert(e PeerVClockEntry) {
	if u.frozen {
		panic("crdt: mutating a frozen ClockUpdate")
	}
	for i := range u.entries {
		if u.entries[i].PeerID == e.PeerID {
			u.entries[i] = e
			return
		}
	}
	u.entries = append(u.entries, e)
}

// row is one observer's knowledge of every subject it has assigned an
// index to, indexed by LocalIndex.
type row []PeerVClockEntry

// PeerMatrix tracks, for every known peer (including the local one at
// index 0), its locally assigned index and the vector clock it is known
// to have reached, plus the pending diff of local-knowledge changes since
// the last flush.
type PeerMatrix struct {
	own id.PeerID

	// rows[observerIdx][subjectIdx] = entry. rows[0] is the local peer's
	// own knowledge, the one mutated by apply_clock_update and
	// processed_incoming_msg for the local side.
	rows []row

	// indexByPeer maps a PeerID to its index in rows[0] (the local
	// peer's own indexing of the world). Every peer this process has ever
	// heard of gets exactly one entry here, minted in index order.
	indexByPeer map[id.PeerID]LocalIndex
	peerByIndex []id.PeerID

	// originIndexByPeer[origin] maps a remote PeerID, as known BY that
	// origin, to the index origin uses for it (needed to decode that
	// origin's ClockUpdate entries, which carry origin-local indices).
	originIndexByPeer map[id.PeerID]map[id.PeerID]LocalIndex
	originPeerByIndex map[id.PeerID]map[LocalIndex]id.PeerID

	pending ClockUpdate
}

// New creates a PeerMatrix for the given local peer, with that peer
// already installed at index 0 in its own row (spec.md §4.2 invariant
// M[0][0] refers to the local peer).
func New(own id.PeerID) *PeerMatrix {
	m := &PeerMatrix{
		own:               own,
		rows:              []row{make(row, 0, 4)},
		indexByPeer:       make(map[id.PeerID]LocalIndex),
		peerByIndex:       []id.PeerID{},
		originIndexByPeer: make(map[id.PeerID]map[id.PeerID]LocalIndex),
		originPeerByIndex: make(map[id.PeerID]map[LocalIndex]id.PeerID),
	}
	m.indexByPeer[own] = 0
	m.peerByIndex = append(m.peerByIndex, own)
	m.rows[0] = append(m.rows[0], PeerVClockEntry{PeerID: own, PeerIndex: 0, MsgCount: 0})
	return m
}

// OwnPeerID returns the local peer's id.
func (m *PeerMatrix) OwnPeerID() id.PeerID {
	return m.own
}

func (m *PeerMatrix) ensureRow(observerIdx LocalIndex) {
	for LocalIndex(len(m.rows)) <= observerIdx {
		m.rows = append(m.rows, row{})
	}
}

// peerIDToIndex implements PeerIdToIndex: it returns the local peer's
// existing index for peerID, or assigns the next sequential one and
// records the assignment in the pending local clock update.
func (m *PeerMatrix) peerIDToIndex(peerID id.PeerID) LocalIndex {
	if idx, ok := m.indexByPeer[peerID]; ok {
		return idx
	}
	idx := LocalIndex(len(m.peerByIndex))
	m.indexByPeer[peerID] = idx
	m.peerByIndex = append(m.peerByIndex, peerID)
	m.ensureRow(idx)
	m.rows[0] = append(m.rows[0], PeerVClockEntry{PeerID: peerID, PeerIndex: 0, MsgCount: 0})
	// The local peer's own row column for the new peer, and the new
	// peer's row column 0 pointing back at itself, both start at
	// msg_count 0; only M[0][*] is recorded here since that's the row
	// this process actually tracks message counts for.
	m.pending.upsert(PeerVClockEntry{PeerID: peerID, PeerIndex: idx, MsgCount: 0})
	return idx
}

// PeerIdToIndex returns the existing local index for peerID, or assigns
// the next sequential one.
func (m *PeerMatrix) PeerIdToIndex(peerID id.PeerID) LocalIndex {
	return m.peerIDToIndex(peerID)
}

// RemoteIndexToPeerId translates an index as used BY originPeerID back to
// a global PeerID.
func (m *PeerMatrix) RemoteIndexToPeerId(originPeerID id.PeerID, remoteIndex LocalIndex) (id.PeerID, error) {
	if originPeerID == m.own {
		if int(remoteIndex) >= len(m.peerByIndex) {
			return id.PeerID{}, errors.Wrapf(crdterrors.ErrUnknownRemoteIndex,
				"peer %s: no local index %d", originPeerID, remoteIndex)
		}
		return m.peerByIndex[remoteIndex], nil
	}
	byIdx, ok := m.originPeerByIndex[originPeerID]
	if !ok {
		return id.PeerID{}, errors.Wrapf(crdterrors.ErrUnknownRemoteIndex,
			"peer %s: no known index mappings yet", originPeerID)
	}
	peerID, ok := byIdx[remoteIndex]
	if !ok {
		return id.PeerID{}, errors.Wrapf(crdterrors.ErrUnknownRemoteIndex,
			"peer %s: no mapping for remote index %d", originPeerID, remoteIndex)
	}
	return peerID, nil
}

// indexMapping validates and, on success, commits subjectID -> subjectIndex
// into byIdx/byPeerForOrigin, origin's own pair of index maps. It is pure
// with respect to everything outside those two maps, so it can be run
// against either the matrix's live maps (PeerIndexMapping) or throwaway
// clones (ApplyClockUpdate's transactional validation pass).
func indexMapping(origin id.PeerID, byIdx map[id.PeerID]LocalIndex, byPeerForOrigin map[LocalIndex]id.PeerID, subjectID *id.PeerID, subjectIndex LocalIndex) error {
	if existing, ok := byPeerForOrigin[subjectIndex]; ok {
		if subjectID != nil && existing != *subjectID {
			return errors.Wrapf(crdterrors.ErrContradictoryMapping,
				"peer %s: index %d already mapped to %s, got %s",
				origin, subjectIndex, existing, *subjectID)
		}
		return nil
	}
	if subjectID != nil {
		if existingIdx, ok := byIdx[*subjectID]; ok && existingIdx != subjectIndex {
			return errors.Wrapf(crdterrors.ErrContradictoryMapping,
				"peer %s: id %s already mapped to index %d, got %d",
				origin, *subjectID, existingIdx, subjectIndex)
		}
	}

	if int(subjectIndex) != len(byPeerForOrigin) {
		return errors.Wrapf(crdterrors.ErrNonConsecutiveIndex,
			"peer %s: index %d is not the next sequential index (have %d)",
			origin, subjectIndex, len(byPeerForOrigin))
	}
	if subjectID == nil {
		return errors.Wrapf(crdterrors.ErrNewIndexMissingId,
			"peer %s: new index %d reported with no peer id", origin, subjectIndex)
	}
	byIdx[*subjectID] = subjectIndex
	byPeerForOrigin[subjectIndex] = *subjectID
	return nil
}

// PeerIndexMapping records that origin has assigned subjectIndex to
// subjectID (subjectID may be nil when merely confirming an index that
// must already be known).
func (m *PeerMatrix) PeerIndexMapping(origin id.PeerID, subjectID *id.PeerID, subjectIndex LocalIndex) error {
	byIdx, ok := m.originIndexByPeer[origin]
	if !ok {
		byIdx = make(map[id.PeerID]LocalIndex)
		m.originIndexByPeer[origin] = byIdx
		m.originPeerByIndex[origin] = make(map[LocalIndex]id.PeerID)
	}
	return indexMapping(origin, byIdx, m.originPeerByIndex[origin], subjectID, subjectIndex)
}

// ApplyClockUpdate installs/confirms the index mapping for each entry,
// then advances its msg_count, recording the same entries against
// M[origin][*] in this matrix's view of origin's vector clock. Per
// spec.md §7 ("operations are applied transactionally per op"), a
// multi-entry update is all-or-nothing: every entry is validated against
// scratch copies of origin's index maps and row first, and those are only
// installed once the whole update has been accepted, so a failure partway
// through never leaves origin's bookkeeping half updated. The one change
// made before validation is assigning origin itself a local index (and
// recording that in the pending diff) if it has none yet.
func (m *PeerMatrix) ApplyClockUpdate(origin id.PeerID, update ClockUpdate) error {
	originLocalIdx := m.peerIDToIndex(origin)
	m.ensureRow(originLocalIdx)

	scratchByIdx := make(map[id.PeerID]LocalIndex, len(m.originIndexByPeer[origin]))
	for k, v := range m.originIndexByPeer[origin] {
		scratchByIdx[k] = v
	}
	scratchByPeerForOrigin := make(map[LocalIndex]id.PeerID, len(m.originPeerByIndex[origin]))
	for k, v := range m.originPeerByIndex[origin] {
		scratchByPeerForOrigin[k] = v
	}
	scratchRow := append(row(nil), m.rows[originLocalIdx]...)

	for _, e := range update.entries {
		pid := e.PeerID
		if err := indexMapping(origin, scratchByIdx, scratchByPeerForOrigin, &pid, e.PeerIndex); err != nil {
			return err
		}
		found := false
		for i := range scratchRow {
			if scratchRow[i].PeerID == pid {
				if e.MsgCount < scratchRow[i].MsgCount {
					return errors.Wrapf(crdterrors.ErrClockWentBackwards,
						"peer %s: entry for %s went from %d to %d",
						origin, pid, scratchRow[i].MsgCount, e.MsgCount)
				}
				scratchRow[i].MsgCount = e.MsgCount
				scratchRow[i].PeerIndex = e.PeerIndex
				found = true
				break
			}
		}
		if !found {
			scratchRow = append(scratchRow, PeerVClockEntry{PeerID: pid, PeerIndex: e.PeerIndex, MsgCount: e.MsgCount})
		}
	}

	m.originIndexByPeer[origin] = scratchByIdx
	m.originPeerByIndex[origin] = scratchByPeerForOrigin
	m.rows[originLocalIdx] = scratchRow
	return nil
}

// IncrementSentMessages bumps M[0][0].msg_count and returns the new value.
// Called exactly once per outbound message, at send time.
func (m *PeerMatrix) IncrementSentMessages() uint64 {
	for i := range m.rows[0] {
		if m.rows[0][i].PeerID == m.own {
			m.rows[0][i].MsgCount++
			return m.rows[0][i].MsgCount
		}
	}
	panic("crdt: local peer missing its own M[0][0] entry")
}

// ProcessedIncomingMsg is called exactly once per inbound message, after
// that message's payload has been fully applied. It requires
// msgCount == last_seen + 1, updates both M[0][origin] and M[origin][0]
// to the new count, and records the change in the pending local diff.
func (m *PeerMatrix) ProcessedIncomingMsg(origin id.PeerID, msgCount uint64) error {
	originIdx := m.peerIDToIndex(origin)

	var last uint64
	var entryIdx = -1
	for i := range m.rows[0] {
		if m.rows[0][i].PeerID == origin {
			last = m.rows[0][i].MsgCount
			entryIdx = i
			break
		}
	}
	switch {
	case msgCount < last:
		return errors.Wrapf(crdterrors.ErrMsgCountBackwards,
			"peer %s: msg_count %d < last seen %d", origin, msgCount, last)
	case msgCount != last+1:
		return errors.Wrapf(crdterrors.ErrMsgCountJumped,
			"peer %s: msg_count %d, expected %d", origin, msgCount, last+1)
	}
	m.rows[0][entryIdx].MsgCount = msgCount
	m.pending.upsert(PeerVClockEntry{PeerID: origin, PeerIndex: m.rows[0][entryIdx].PeerIndex, MsgCount: msgCount})

	m.ensureRow(originIdx)
	row := m.rows[originIdx]
	found := false
	for i := range row {
		if row[i].PeerID == origin {
			row[i].MsgCount = msgCount
			found = true
			break
		}
	}
	if !found {
		row = append(row, PeerVClockEntry{PeerID: origin, PeerIndex: 0, MsgCount: msgCount})
	}
	m.rows[originIdx] = row
	return nil
}

// vclockOf extracts the {PeerID: msg_count} view of row observerIdx,
// treating absent peers as count 0.
func (m *PeerMatrix) vclockOf(observerIdx LocalIndex) map[id.PeerID]uint64 {
	out := make(map[id.PeerID]uint64, len(m.rows[observerIdx]))
	for _, e := range m.rows[observerIdx] {
		out[e.PeerID] = e.MsgCount
	}
	return out
}

// CausallyReady reports whether, for every peer known to either side,
// local[p] >= remote[p], except for p == remotePeerID itself (we are
// about to advance that one).
func (m *PeerMatrix) CausallyReady(remotePeerID id.PeerID) bool {
	remoteIdx, ok := m.indexByPeer[remotePeerID]
	if !ok {
		// Never heard from them before: nothing they could have told us
		// about yet, so there is nothing blocking delivery.
		return true
	}
	if int(remoteIdx) >= len(m.rows) {
		return true
	}
	local := m.vclockOf(0)
	remote := m.vclockOf(remoteIdx)

	for p, rCount := range remote {
		if p == remotePeerID {
			continue
		}
		if local[p] < rCount {
			return false
		}
	}
	return true
}

// ResetClockUpdate clears the pending local diff; called immediately
// after the diff is packaged into an outbound message.
func (m *PeerMatrix) ResetClockUpdate() {
	m.pending = ClockUpdate{}
}

// PendingClockUpdate returns the accumulating local diff builder. Callers
// that want an immutable snapshot should call Freeze() on the result.
func (m *PeerMatrix) PendingClockUpdate() *ClockUpdate {
	return &m.pending
}

// HasPendingClockUpdate reports whether the pending diff is non-empty.
func (m *PeerMatrix) HasPendingClockUpdate() bool {
	return !m.pending.Empty()
}

// Summary renders a compact, human-readable dump of the whole matrix,
// grounded on the teacher's rdx.VV.String()/VVFromString round-trip
// (_examples/drpcorg-chotki/rdx/vv.go). Useful for tests and debug logs.
func (m *PeerMatrix) Summary() string {
	s := fmt.Sprintf("peer=%s", m.own)
	for i, r := range m.rows {
		s += fmt.Sprintf(" M[%d]={", i)
		for j, e := range r {
			if j > 0 {
				s += ","
			}
			s += fmt.Sprintf("%s:%d", e.PeerID.Tag(), e.MsgCount)
		}
		s += "}"
	}
	return s
}

// KnownPeers returns every PeerID this matrix has assigned a local index
// to, including the local peer itself.
func (m *PeerMatrix) KnownPeers() []id.PeerID {
	out := make([]id.PeerID, len(m.peerByIndex))
	copy(out, m.peerByIndex)
	return out
}
