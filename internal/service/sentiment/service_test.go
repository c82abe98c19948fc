package sentiment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analysis "github.com/silvercoin/advisor/backend/internal/analysis/sentiment"
	"github.com/silvercoin/advisor/backend/internal/metrics"
)

type stubClassifier struct {
	result  analysis.Result
	err     error
	delay   time.Duration
	warmErr error
	calls   int
}

func (s *stubClassifier) Classify(ctx context.Context, _ string) (analysis.Result, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return analysis.Result{}, ctx.Err()
		}
	}
	return s.result, s.err
}

func (s *stubClassifier) Warm(context.Context) error { return s.warmErr }

func newTestService(t *testing.T, primary Classifier, timeout time.Duration) *Service {
	t.Helper()
	m := metrics.MustNewMetrics(prometheus.NewRegistry())
	return NewService(context.Background(), primary, Config{Timeout: timeout}, nil, m)
}

func TestServiceUsesPrimary(t *testing.T) {
	primary := &stubClassifier{result: analysis.Result{Label: "positive", Confidence: 0.98}}
	svc := newTestService(t, primary, time.Second)

	require.True(t, svc.Ready())
	got := svc.Classify(context.Background(), "The weather is")
	assert.Equal(t, analysis.Positive, got.Label)
	assert.InDelta(t, 0.98, got.Confidence, 1e-9)
}

func TestServiceFallsBackWhenPrimaryFails(t *testing.T) {
	primary := &stubClassifier{err: errors.New("model crashed")}
	svc := newTestService(t, primary, time.Second)

	got := svc.Classify(context.Background(), "This is terrible and sad")
	assert.Equal(t, analysis.Result{Label: analysis.Negative, Confidence: 0.7}, got)
	assert.Equal(t, 1, primary.calls)
}

func TestServiceFallsBackOnTimeout(t *testing.T) {
	primary := &stubClassifier{result: analysis.Result{Label: "NEGATIVE", Confidence: 0.9}, delay: time.Second}
	svc := newTestService(t, primary, 20*time.Millisecond)

	start := time.Now()
	got := svc.Classify(context.Background(), "This is great and wonderful")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, analysis.Result{Label: analysis.Positive, Confidence: 0.7}, got)
}

func TestServiceNotReadyAfterFailedWarmup(t *testing.T) {
	primary := &stubClassifier{warmErr: errors.New("weights missing"), result: analysis.Result{Label: "POSITIVE", Confidence: 1}}
	svc := newTestService(t, primary, time.Second)

	require.False(t, svc.Ready())
	got := svc.Classify(context.Background(), "The weather is")
	assert.Equal(t, analysis.Result{Label: analysis.Neutral, Confidence: 0.5}, got)
	assert.Zero(t, primary.calls)
}

func TestServiceWithoutPrimary(t *testing.T) {
	svc := newTestService(t, nil, 0)

	assert.False(t, svc.Ready())
	got := svc.Classify(context.Background(), "This is great and wonderful")
	assert.Equal(t, analysis.Positive, got.Label)
}

func TestServiceRejectsUnknownLabel(t *testing.T) {
	primary := &stubClassifier{result: analysis.Result{Label: "LABEL_1", Confidence: 0.9}}
	svc := newTestService(t, primary, time.Second)

	got := svc.Classify(context.Background(), "This is terrible and sad")
	assert.Equal(t, analysis.Result{Label: analysis.Negative, Confidence: 0.7}, got)
}

func TestNormalizeClampsConfidence(t *testing.T) {
	got, err := Normalize(analysis.Result{Label: " neg ", Confidence: 1.7})
	require.NoError(t, err)
	assert.Equal(t, analysis.Result{Label: analysis.Negative, Confidence: 1}, got)

	got, err = Normalize(analysis.Result{Label: "Neutral", Confidence: -0.2})
	require.NoError(t, err)
	assert.Equal(t, analysis.Result{Label: analysis.Neutral, Confidence: 0}, got)
}

type fakeChatModel struct {
	content string
	err     error
}

func (f *fakeChatModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) BindTools([]*schema.ToolInfo) error { return nil }

func TestLLMClassifierParsesJSON(t *testing.T) {
	chatModel := &fakeChatModel{content: "Sure.\n{\"label\": \"negative\", \"confidence\": 0.83}"}
	classifier, err := NewLLMClassifier(context.Background(), chatModel)
	require.NoError(t, err)

	got, err := classifier.Classify(context.Background(), "I'm worried about my savings")
	require.NoError(t, err)
	assert.Equal(t, analysis.Label("negative"), got.Label)
	assert.InDelta(t, 0.83, got.Confidence, 1e-9)
}

func TestLLMClassifierErrors(t *testing.T) {
	classifier, err := NewLLMClassifier(context.Background(), &fakeChatModel{content: "no idea"})
	require.NoError(t, err)
	_, err = classifier.Classify(context.Background(), "hello")
	require.Error(t, err)

	classifier, err = NewLLMClassifier(context.Background(), &fakeChatModel{err: errors.New("quota")})
	require.NoError(t, err)
	_, err = classifier.Classify(context.Background(), "hello")
	require.Error(t, err)

	_, err = NewLLMClassifier(context.Background(), nil)
	require.Error(t, err)
}

func TestInferenceClassifierPicksTopScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[[{"label":"NEGATIVE","score":0.12},{"label":"POSITIVE","score":0.88}]]`))
	}))
	defer srv.Close()

	classifier, err := NewInferenceClassifier(srv.URL, "hf-token", time.Second)
	require.NoError(t, err)
	require.NoError(t, classifier.Warm(context.Background()))

	got, err := classifier.Classify(context.Background(), "This is great")
	require.NoError(t, err)
	assert.Equal(t, analysis.Label("POSITIVE"), got.Label)
	assert.InDelta(t, 0.88, got.Confidence, 1e-9)
}

func TestInferenceClassifierUnavailableAtStartup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model is loading"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	classifier, err := NewInferenceClassifier(srv.URL, "", time.Second)
	require.NoError(t, err)

	svc := newTestService(t, classifier, time.Second)
	assert.False(t, svc.Ready())
	assert.Equal(t, analysis.Negative, svc.Classify(context.Background(), "This is terrible and sad").Label)
}
