package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "chirp"

// Metrics is safe to use as a nil pointer; every recorder is a no-op then.
type Metrics struct {
	Cycles       *prometheus.CounterVec
	StepFailures *prometheus.CounterVec
	LLMCalls     *prometheus.CounterVec
	Published    prometheus.Counter
	Replies      prometheus.Counter
	Follows      prometheus.Counter
	Transfers    *prometheus.CounterVec
	Significance prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Pipeline cycles by outcome.",
		}, []string{"outcome"}),
		StepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "step_failures_total",
			Help:      "Pipeline step failures by step.",
		}, []string{"step"}),
		LLMCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "llm_calls_total",
			Help:      "Chat calls by outcome.",
		}, []string{"outcome"}),
		Published: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "posts_published_total",
			Help:      "Original posts published.",
		}),
		Replies: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "replies_sent_total",
			Help:      "Replies sent.",
		}),
		Follows: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "follows_total",
			Help:      "Accounts followed.",
		}),
		Transfers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transfers_total",
			Help:      "Wallet transfers by outcome.",
		}, []string{"outcome"}),
		Significance: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "significance_score",
			Help:      "Significance scores of generated posts.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
	}
}

func (m *Metrics) cycle(outcome string) {
	if m != nil {
		m.Cycles.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) stepFailed(step string) {
	if m != nil {
		m.StepFailures.WithLabelValues(step).Inc()
	}
}

func (m *Metrics) llmCall(outcome string) {
	if m != nil {
		m.LLMCalls.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) published() {
	if m != nil {
		m.Published.Inc()
	}
}

func (m *Metrics) replied() {
	if m != nil {
		m.Replies.Inc()
	}
}

func (m *Metrics) followed() {
	if m != nil {
		m.Follows.Inc()
	}
}

func (m *Metrics) transfer(outcome string) {
	if m != nil {
		m.Transfers.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) score(s int) {
	if m != nil {
		m.Significance.Observe(float64(s))
	}
}
