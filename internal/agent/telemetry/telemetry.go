package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records agent loop activity as Prometheus collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	runs              *prometheus.CounterVec
	steps             prometheus.Histogram
	completionLatency *prometheus.HistogramVec
	retrievalLatency  prometheus.Histogram
	retrievalDegraded prometheus.Counter
	parseFallbacks    prometheus.Counter
	parseRetries      prometheus.Counter
}

// NewMetrics creates the agent collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deepsearch",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Finished agent runs by outcome.",
		}, []string{"outcome"}),
		steps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deepsearch",
			Subsystem: "agent",
			Name:      "run_steps",
			Help:      "Iterations executed per run.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deepsearch",
			Subsystem: "llm",
			Name:      "completion_duration_seconds",
			Help:      "Completion provider latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"status"}),
		retrievalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deepsearch",
			Subsystem: "search",
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval provider latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		retrievalDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deepsearch",
			Subsystem: "search",
			Name:      "retrieval_degraded_total",
			Help:      "Retrievals that produced no content (empty, error or timeout).",
		}),
		parseFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deepsearch",
			Subsystem: "agent",
			Name:      "parse_fallbacks_total",
			Help:      "Responses accepted only through the final-answer fallback.",
		}),
		parseRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deepsearch",
			Subsystem: "agent",
			Name:      "parse_retries_total",
			Help:      "Re-prompts issued after an unparseable response.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.runs, m.steps, m.completionLatency, m.retrievalLatency,
		m.retrievalDegraded, m.parseFallbacks, m.parseRetries,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordRun records a finished run; outcome is "finalized" or the stop reason.
func (m *Metrics) RecordRun(outcome string, steps int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.steps.Observe(float64(steps))
}

func (m *Metrics) RecordCompletion(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.completionLatency.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) RecordRetrieval(d time.Duration, degraded bool) {
	if m == nil {
		return
	}
	m.retrievalLatency.Observe(d.Seconds())
	if degraded {
		m.retrievalDegraded.Inc()
	}
}

func (m *Metrics) RecordParseFallback() {
	if m == nil {
		return
	}
	m.parseFallbacks.Inc()
}

func (m *Metrics) RecordParseRetry() {
	if m == nil {
		return
	}
	m.parseRetries.Inc()
}
