// Package peer implements the causal delivery engine: per-origin buffers
// that hold incoming operations until their dependencies are satisfied
// (as witnessed by PeerMatrix clock updates), then drain them in causal
// order into an OrderedList. It owns the local Lamport clock, the
// outbound buffer, and orchestrates the whole send/receive cycle
// (spec.md §2, §4.3). Grounded in shape on the teacher's top-level
// orchestrator, _examples/drpcorg-chotki/chotki.go.
package peer

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/drpcorg/ordercrdt/crdt"
	"github.com/drpcorg/ordercrdt/id"
	"github.com/drpcorg/ordercrdt/logging"
	"github.com/drpcorg/ordercrdt/vx"
)

// Message is the wire-level envelope a Peer hands to the caller for
// transmission, and consumes on receipt. Serialization of Operations
// (and of V itself) is the external collaborator's job (spec.md §1, §6).
type Message struct {
	OriginPeerID id.PeerID
	MsgCount     uint64
	Operations   []crdt.Op
}

// Options holds the small set of construction-time knobs a Peer takes.
// There is no configuration layer beyond this (spec.md §9): no files, no
// env vars, nothing parsed at runtime.
type Options struct {
	// Logger receives debug/warn traces of causal-delivery decisions and
	// rejected protocol violations. Defaults to a no-op logger.
	Logger logging.Logger
	// Metrics receives counters/gauges of the Peer's own activity.
	// Defaults to unregistered, in-memory-only metrics.
	Metrics *Metrics
}

// Peer owns everything exclusive to one replica: its own id, Lamport
// clock, PeerMatrix, OrderedList, outbound buffer, and per-origin inbound
// buffers. It is a single-threaded cooperative state machine (spec.md
// §5): no method blocks or suspends, and embedding it in a multi-threaded
// host requires an external mutex.
type Peer[V any] struct {
	own       id.PeerID
	logicalTs id.LogicalTimestamp

	matrix *vx.PeerMatrix
	List   *crdt.OrderedList[V]

	outbound []crdt.Op
	inbound  map[id.PeerID][]crdt.Op

	log     logging.Logger
	metrics *Metrics

	// draining guards against make_message being called reentrantly from
	// inside an apply_operation callback, a programmer error per spec.md
	// §7.
	draining bool
}

// New constructs a Peer for own, with a fresh empty OrderedList.
func New[V any](own id.PeerID, opts Options) *Peer[V] {
	log := opts.Logger
	if log == nil {
		log = logging.Noop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	p := &Peer[V]{
		own:     own,
		matrix:  vx.New(own),
		inbound: make(map[id.PeerID][]crdt.Op),
		log:     log,
		metrics: metrics,
	}
	p.List = crdt.NewOrderedList[V](p)
	return p
}

// OwnPeerID returns this replica's id.
func (p *Peer[V]) OwnPeerID() id.PeerID {
	return p.own
}

// KnownPeers returns every PeerID this Peer's matrix has assigned a local
// index to, including itself (spec.md §D.3 of SPEC_FULL.md).
func (p *Peer[V]) KnownPeers() []id.PeerID {
	return p.matrix.KnownPeers()
}

// NextID implements crdt.Source: it advances the local Lamport clock by
// one and returns (new_ts, own_peer_id).
func (p *Peer[V]) NextID() id.ItemID {
	p.logicalTs++
	return id.ItemID{Logical: p.logicalTs, Peer: p.own}
}

// LogicalTimestamp returns the current value of the local Lamport clock.
func (p *Peer[V]) LogicalTimestamp() id.LogicalTimestamp {
	return p.logicalTs
}

// flushPendingClockUpdate snapshots the pending local clock update into the
// outbound buffer and clears it, if there is one. Both SendOperation and
// MakeMessage call this before they touch p.outbound, so every op in the
// stream is preceded by the clock state reflecting its own causal
// dependencies (spec.md §4.3).
func (p *Peer[V]) flushPendingClockUpdate() {
	if p.matrix.HasPendingClockUpdate() {
		p.outbound = append(p.outbound, ClockUpdateOp{Update: p.matrix.PendingClockUpdate().Freeze()})
		p.matrix.ResetClockUpdate()
	}
}

// SendOperation implements crdt.Source.
func (p *Peer[V]) SendOperation(op crdt.Op) {
	p.flushPendingClockUpdate()
	p.outbound = append(p.outbound, op)
	p.metrics.OutboundBufferDepth.Set(float64(len(p.outbound)))
}

// HasPendingOutbound reports whether there is anything to flush: a
// buffered op, or an as-yet-unflushed local clock update.
func (p *Peer[V]) HasPendingOutbound() bool {
	return len(p.outbound) > 0 || p.matrix.HasPendingClockUpdate()
}

// MakeMessage flushes any remaining non-empty clock update, then packages
// the buffered op sequence as a Message stamped with the next outbound
// msg_count (assigned at send time, not at op-creation time), and resets
// the buffer (spec.md §4.3).
func (p *Peer[V]) MakeMessage() Message {
	if p.draining {
		panic("crdt: make_message called from inside an apply_operation callback")
	}
	p.flushPendingClockUpdate()
	msg := Message{
		OriginPeerID: p.own,
		MsgCount:     p.matrix.IncrementSentMessages(),
		Operations:   p.outbound,
	}
	p.metrics.OpsSent.Add(float64(len(p.outbound)))
	p.outbound = nil
	p.metrics.OutboundBufferDepth.Set(0)
	return msg
}

// ProcessMessage consumes a deserialized Message: it appends the
// message's ops to the origin's inbound buffer, appends the synthetic
// MessageProcessed marker, and then drains every readily deliverable op
// to fixpoint (spec.md §4.3).
func (p *Peer[V]) ProcessMessage(ctx context.Context, msg Message) error {
	ctx = logging.WithDefaultArgs(ctx, logging.PeerAttr("origin", msg.OriginPeerID), slog.Uint64("msg_count", msg.MsgCount))
	p.metrics.OpsReceived.Add(float64(len(msg.Operations)))

	q := p.inbound[msg.OriginPeerID]
	q = append(q, msg.Operations...)
	q = append(q, MessageProcessedOp{MsgCount: msg.MsgCount})
	p.inbound[msg.OriginPeerID] = q
	p.metrics.InboundBufferDepth.WithLabelValues(msg.OriginPeerID.Tag()).Set(float64(len(q)))

	p.log.DebugCtx(ctx, "buffered message", "ops", len(msg.Operations))
	return p.drainToFixpoint(ctx)
}

// drainToFixpoint is the causal delivery loop (spec.md §4.3): repeatedly
// find any origin whose queue head is ready, drain it until exhausted or
// interrupted by a ClockUpdate, and restart, until no origin is ready.
func (p *Peer[V]) drainToFixpoint(ctx context.Context) error {
	p.draining = true
	defer func() { p.draining = false }()

	for {
		origin, ready := p.findReadyOrigin()
		if !ready {
			return nil
		}
		if err := p.drainOrigin(ctx, origin); err != nil {
			return err
		}
	}
}

func (p *Peer[V]) findReadyOrigin() (id.PeerID, bool) {
	for origin, q := range p.inbound {
		if len(q) == 0 {
			continue
		}
		if p.matrix.CausallyReady(origin) {
			return origin, true
		}
	}
	var zero id.PeerID
	return zero, false
}

// drainOrigin dispatches ops from one origin's queue in order, stopping
// early (without error) when a ClockUpdate is applied, since that may
// make subsequent ops from the same origin not-yet-ready. A rejected op
// is left at the head of the queue rather than consumed (spec.md §7: fail
// fast, no partial-apply recovery), so it is retried, and keeps failing,
// on every subsequent drain attempt until the caller quarantines origin
// or otherwise clears its buffer.
func (p *Peer[V]) drainOrigin(ctx context.Context, origin id.PeerID) error {
	q := p.inbound[origin]
	i := 0
	for i < len(q) {
		op := q[i]
		switch o := op.(type) {
		case ClockUpdateOp:
			if err := p.matrix.ApplyClockUpdate(origin, o.Update); err != nil {
				p.metrics.ProtocolViolations.WithLabelValues("clock_update").Inc()
				p.log.WarnCtx(ctx, "rejected clock update", "err", err)
				p.inbound[origin] = q[i:]
				return errors.Wrapf(err, "peer %s: applying clock update", origin)
			}
			i++
			p.inbound[origin] = q[i:]
			return nil
		case MessageProcessedOp:
			if err := p.matrix.ProcessedIncomingMsg(origin, o.MsgCount); err != nil {
				p.metrics.ProtocolViolations.WithLabelValues("msg_count").Inc()
				p.log.WarnCtx(ctx, "rejected message marker", "err", err)
				p.inbound[origin] = q[i:]
				return errors.Wrapf(err, "peer %s: processing message marker", origin)
			}
			i++
		case crdt.InsertOp[V]:
			p.receiveLamport(o.NewID.Logical)
			if err := p.List.ApplyOperation(o); err != nil {
				p.metrics.ProtocolViolations.WithLabelValues("insert").Inc()
				p.log.WarnCtx(ctx, "rejected insert", "err", err)
				p.inbound[origin] = q[i:]
				return errors.Wrapf(err, "peer %s: applying insert", origin)
			}
			p.metrics.OpsApplied.Inc()
			i++
		case crdt.DeleteOp:
			p.receiveLamport(o.DeleteTS.Logical)
			if err := p.List.ApplyOperation(o); err != nil {
				p.metrics.ProtocolViolations.WithLabelValues("delete").Inc()
				p.log.WarnCtx(ctx, "rejected delete", "err", err)
				p.inbound[origin] = q[i:]
				return errors.Wrapf(err, "peer %s: applying delete", origin)
			}
			p.metrics.OpsApplied.Inc()
			i++
		default:
			panic("crdt: unknown op variant in inbound buffer")
		}
	}
	p.inbound[origin] = q[i:]
	return nil
}

// receiveLamport implements the Lamport-receive rule: the local clock
// advances to at least the remote timestamp just witnessed.
func (p *Peer[V]) receiveLamport(remote id.LogicalTimestamp) {
	if remote > p.logicalTs {
		p.logicalTs = remote
	}
}
