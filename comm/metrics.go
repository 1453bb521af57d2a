package comm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsSet holds the Manager's Prometheus collectors (SPEC_FULL §6.1
// "Metrics surface"). A nil *metricsSet is valid and every method on it
// is a no-op, so callers never need to check cfg.MetricsEnabled before
// recording.
type metricsSet struct {
	stateTransitions   *prometheus.CounterVec
	deferredQueueDepth prometheus.Gauge
	activeSubs         prometheus.Gauge
	tokensIssued       prometheus.Counter
	dispatchLatency    prometheus.Histogram
}

// newMetricsSet builds the collector set and registers it on reg. A nil
// reg disables metrics entirely and newMetricsSet returns nil, matching
// the rest of the package's nil-safe convention.
func newMetricsSet(reg prometheus.Registerer) *metricsSet {
	if reg == nil {
		return nil
	}

	m := &metricsSet{
		stateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commcore_state_transitions_total",
				Help: "Total number of operating state transitions by target state",
			},
			[]string{"state"},
		),
		deferredQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "commcore_deferred_queue_depth",
				Help: "Number of publish operations currently buffered while offline",
			},
		),
		activeSubs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "commcore_active_subscriptions",
				Help: "Number of distinct topic filters currently subscribed at the broker",
			},
		),
		tokensIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "commcore_message_tokens_issued_total",
				Help: "Total number of message tokens issued for correlated requests",
			},
		),
		dispatchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "commcore_dispatch_latency_seconds",
				Help:    "Time from inbound message receipt to handler dispatch",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(
		m.stateTransitions,
		m.deferredQueueDepth,
		m.activeSubs,
		m.tokensIssued,
		m.dispatchLatency,
	)
	return m
}

func (m *metricsSet) observeStateTransition(state string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(state).Inc()
}

func (m *metricsSet) setDeferredQueueDepth(n int) {
	if m == nil {
		return
	}
	m.deferredQueueDepth.Set(float64(n))
}

func (m *metricsSet) setActiveSubscriptions(n int) {
	if m == nil {
		return
	}
	m.activeSubs.Set(float64(n))
}

func (m *metricsSet) incTokensIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

func (m *metricsSet) observeDispatchLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchLatency.Observe(d.Seconds())
}
