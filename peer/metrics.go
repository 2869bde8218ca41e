package peer

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the Peer's own behavior to Prometheus: how many ops it
// has sent/received/applied, how often it rejected a protocol violation,
// and how deep its buffers have grown. Grounded on the teacher's
// CounterVec/GaugeVec style in index_manager.go and pebble_collector.go.
// This is observability of the CRDT core itself, not of a transport, so
// it does not reintroduce the transport layer spec.md §1 excludes.
type Metrics struct {
	OpsSent             prometheus.Counter
	OpsReceived         prometheus.Counter
	OpsApplied          prometheus.Counter
	ProtocolViolations  *prometheus.CounterVec
	InboundBufferDepth  *prometheus.GaugeVec
	OutboundBufferDepth prometheus.Gauge
}

// NewMetrics builds a Metrics bound to reg. If reg is nil, the metrics are
// still constructed (so callers can read them in tests) but never
// registered anywhere.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ordercrdt",
			Subsystem: "peer",
			Name:      "ops_sent_total",
		}),
		OpsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ordercrdt",
			Subsystem: "peer",
			Name:      "ops_received_total",
		}),
		OpsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ordercrdt",
			Subsystem: "peer",
			Name:      "ops_applied_total",
		}),
		ProtocolViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ordercrdt",
			Subsystem: "peer",
			Name:      "protocol_violations_total",
		}, []string{"kind"}),
		InboundBufferDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ordercrdt",
			Subsystem: "peer",
			Name:      "inbound_buffer_depth",
		}, []string{"origin"}),
		OutboundBufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ordercrdt",
			Subsystem: "peer",
			Name:      "outbound_buffer_depth",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.OpsSent, m.OpsReceived, m.OpsApplied, m.ProtocolViolations,
			m.InboundBufferDepth, m.OutboundBufferDepth)
	}
	return m
}
