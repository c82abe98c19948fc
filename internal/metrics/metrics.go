package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "advisor"

// Metrics exposes the Prometheus collectors of the chat pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	chatRequests       *prometheus.CounterVec
	sentimentFallbacks *prometheus.CounterVec
	completionFallback *prometheus.CounterVec
	historyFailures    prometheus.Counter
	stageDuration      *prometheus.HistogramVec
}

// MustNewMetrics registers the collectors with reg, reusing collectors that are
// already registered under the same name. Other registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		chatRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_requests_total",
				Help:      "Chat requests by terminal outcome.",
			},
			[]string{"outcome"},
		),
		sentimentFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sentiment_fallback_total",
				Help:      "Sentiment classifications served by the lexical fallback.",
			},
			[]string{"reason"},
		),
		completionFallback: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_fallback_total",
				Help:      "Replies replaced by the apology message.",
			},
			[]string{"reason"},
		),
		historyFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_append_failures_total",
				Help:      "Conversation turns that could not be persisted.",
			},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each chat pipeline stage.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
	}

	m.chatRequests = register(reg, m.chatRequests)
	m.sentimentFallbacks = register(reg, m.sentimentFallbacks)
	m.completionFallback = register(reg, m.completionFallback)
	m.historyFailures = register(reg, m.historyFailures)
	m.stageDuration = register(reg, m.stageDuration)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// IncChatRequest counts a finished chat request.
func (m *Metrics) IncChatRequest(outcome string) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(outcome).Inc()
}

// IncSentimentFallback counts a lexical fallback with its reason.
func (m *Metrics) IncSentimentFallback(reason string) {
	if m == nil {
		return
	}
	m.sentimentFallbacks.WithLabelValues(reason).Inc()
}

// IncCompletionFallback counts an apology reply with its reason.
func (m *Metrics) IncCompletionFallback(reason string) {
	if m == nil {
		return
	}
	m.completionFallback.WithLabelValues(reason).Inc()
}

// IncHistoryFailure counts a turn that was not persisted.
func (m *Metrics) IncHistoryFailure() {
	if m == nil {
		return
	}
	m.historyFailures.Inc()
}

// ObserveStage records the time spent in a pipeline stage.
func (m *Metrics) ObserveStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}
