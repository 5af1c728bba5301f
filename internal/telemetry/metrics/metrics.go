// Package metrics exposes the per-engine and per-SID rewrite counters
// as Prometheus metrics via promauto, registered against the default
// registry that internal/admin's /metrics route serves.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-level PACKETS/BAD_PACKETS counters, one vector labeled by
// engine name rather than one pair of globals per engine.
var (
	Packets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srv6dp_packets_total",
			Help: "Packets successfully rewritten, per engine.",
		},
		[]string{"engine"},
	)

	BadPackets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srv6dp_bad_packets_total",
			Help: "Packets dropped at validation, per engine.",
		},
		[]string{"engine"},
	)

	// SIDValid/SIDInvalid are the per-SID valid/invalid counters,
	// labeled by the numeric adj_index as a string since local SIDs are
	// not otherwise named.
	SIDValid = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srv6dp_sid_valid_total",
			Help: "Valid packets per local SID.",
		},
		[]string{"adj_index"},
	)

	SIDInvalid = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srv6dp_sid_invalid_total",
			Help: "Invalid packets per local SID.",
		},
		[]string{"adj_index"},
	)

	// NoBuffersForGSO is the interface TX-error counter GSO bumps on
	// allocator exhaustion.
	NoBuffersForGSO = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srv6dp_no_buffers_for_gso_total",
			Help: "GSO allocation failures, per interface.",
		},
		[]string{"sw_if_index"},
	)

	GSOChildren = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "srv6dp_gso_children_count",
			Help:    "Number of child buffers produced per GSO segmentation.",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16, 24, 32},
		},
	)

	GSOPayloadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "srv6dp_gso_payload_bytes",
			Help:    "Total payload bytes segmented per GSO invocation.",
			Buckets: prometheus.ExponentialBuckets(256, 2, 12),
		},
	)
)

// EngineSink adapts the Prometheus counters above to engine.CounterSink.
// Prometheus counters are already safe for concurrent use across
// threads, so one EngineSink per engine (not per worker thread) is
// enough: each carries its own `engine` label value, and the counter
// itself needs no per-thread state.
type EngineSink struct {
	EngineName string
}

func (s EngineSink) BumpNode(good bool) {
	if good {
		Packets.WithLabelValues(s.EngineName).Inc()
	} else {
		BadPackets.WithLabelValues(s.EngineName).Inc()
	}
}

func (s EngineSink) BumpSID(adjIndex uint32, valid bool) {
	label := fmt.Sprintf("%d", adjIndex)
	if valid {
		SIDValid.WithLabelValues(label).Inc()
	} else {
		SIDInvalid.WithLabelValues(label).Inc()
	}
}

// GSOSink adapts NoBuffersForGSO to engine.GSOCounterSink for one
// interface.
type GSOSink struct {
	SwIfIndex uint32
}

func (s GSOSink) BumpNoBuffersForGSO() {
	NoBuffersForGSO.WithLabelValues(fmt.Sprintf("%d", s.SwIfIndex)).Inc()
}
