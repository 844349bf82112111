package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MeshMetrics bundles the Prometheus collectors for the core glyphmesh
// request and domain-event pipeline.
type MeshMetrics struct {
	messagesTotal      *prometheus.CounterVec
	proposalsTotal     *prometheus.CounterVec
	votesTotal         *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	broadcastSubs      prometheus.Gauge
	sequenceObserved   *prometheus.CounterVec
	relayFailuresTotal *prometheus.CounterVec
}

var (
	meshMetricsOnce sync.Once
	meshRegistry    *MeshMetrics
)

// Mesh returns the lazily-initialised singleton metrics registry for the
// glyphmesh server, following the same sync.Once + MustRegister pattern as
// the teacher's ModuleMetrics().
func Mesh() *MeshMetrics {
	meshMetricsOnce.Do(func() {
		meshRegistry = &MeshMetrics{
			messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "glyphmesh",
				Subsystem: "knowledge",
				Name:      "messages_total",
				Help:      "Total messages recorded, segmented by glyph and encrypted flag.",
			}, []string{"glyph", "encrypted"}),
			proposalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "glyphmesh",
				Subsystem: "governance",
				Name:      "proposals_total",
				Help:      "Total governance proposals created, segmented by type.",
			}, []string{"type"}),
			votesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "glyphmesh",
				Subsystem: "governance",
				Name:      "votes_total",
				Help:      "Total governance votes cast, segmented by action.",
			}, []string{"action"}),
			requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "glyphmesh",
				Subsystem: "ingress",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method", "status"}),
			broadcastSubs: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "glyphmesh",
				Subsystem: "broadcast",
				Name:      "subscribers",
				Help:      "Current count of connected /stream subscribers.",
			}),
			sequenceObserved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "glyphmesh",
				Subsystem: "knowledge",
				Name:      "sequence_observations_total",
				Help:      "Total sequence-detector n-gram observations, segmented by promotable status.",
			}, []string{"promotable"}),
			relayFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "glyphmesh",
				Subsystem: "ingress",
				Name:      "relay_failures_total",
				Help:      "Total outbound relay failures, segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			meshRegistry.messagesTotal,
			meshRegistry.proposalsTotal,
			meshRegistry.votesTotal,
			meshRegistry.requestLatency,
			meshRegistry.broadcastSubs,
			meshRegistry.sequenceObserved,
			meshRegistry.relayFailuresTotal,
		)
	})
	return meshRegistry
}

// RecordMessage increments the message counter for a glyph/encrypted pair.
func (m *MeshMetrics) RecordMessage(glyph string, encrypted bool) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(nonEmpty(glyph), boolLabel(encrypted)).Inc()
}

// RecordProposal increments the proposal counter for a proposal type.
func (m *MeshMetrics) RecordProposal(proposalType string) {
	if m == nil {
		return
	}
	m.proposalsTotal.WithLabelValues(nonEmpty(proposalType)).Inc()
}

// RecordVote increments the vote counter for an action (endorse/reject).
func (m *MeshMetrics) RecordVote(action string) {
	if m == nil {
		return
	}
	m.votesTotal.WithLabelValues(nonEmpty(action)).Inc()
}

// ObserveRequest records one HTTP handler invocation's latency and outcome.
func (m *MeshMetrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(nonEmpty(route), nonEmpty(method), statusLabel(status)).Observe(d.Seconds())
}

// SetBroadcastSubscribers updates the live subscriber-count gauge.
func (m *MeshMetrics) SetBroadcastSubscribers(n int) {
	if m == nil {
		return
	}
	m.broadcastSubs.Set(float64(n))
}

// RecordSequenceObservation increments the sequence-detector counter.
func (m *MeshMetrics) RecordSequenceObservation(promotable bool) {
	if m == nil {
		return
	}
	m.sequenceObserved.WithLabelValues(boolLabel(promotable)).Inc()
}

// RecordRelayFailure increments the relay-failure counter for a reason.
func (m *MeshMetrics) RecordRelayFailure(reason string) {
	if m == nil {
		return
	}
	m.relayFailuresTotal.WithLabelValues(nonEmpty(reason)).Inc()
}

func nonEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
