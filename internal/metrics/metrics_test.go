package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustNewMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.IncChatRequest("ok")
	m.IncChatRequest("ok")
	m.IncSentimentFallback("timeout")
	m.IncCompletionFallback("error")
	m.IncHistoryFailure()
	m.ObserveStage("classifying", 20*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.chatRequests.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sentimentFallbacks.WithLabelValues("timeout")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.completionFallback.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.historyFailures), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
}

func TestMustNewMetricsReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	first.IncHistoryFailure()
	second.IncHistoryFailure()

	require.Same(t, first.historyFailures, second.historyFailures)
	assert.InDelta(t, 2, testutil.ToFloat64(second.historyFailures), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncChatRequest("ok")
	m.IncSentimentFallback("error")
	m.IncCompletionFallback("timeout")
	m.IncHistoryFailure()
	m.ObserveStage("done", time.Second)
}
