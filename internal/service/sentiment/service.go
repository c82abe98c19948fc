package sentiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	analysis "github.com/silvercoin/advisor/backend/internal/analysis/sentiment"
	"github.com/silvercoin/advisor/backend/internal/logging"
	"github.com/silvercoin/advisor/backend/internal/metrics"
)

const defaultTimeout = 5 * time.Second

// Fallback reasons reported to metrics and logs.
const (
	ReasonNotReady = "not_ready"
	ReasonError    = "error"
	ReasonTimeout  = "timeout"
)

// Classifier maps text to a sentiment label.
type Classifier interface {
	Classify(ctx context.Context, text string) (analysis.Result, error)
}

// Warmer is implemented by classifiers that can probe their backend before
// the first request.
type Warmer interface {
	Warm(ctx context.Context) error
}

// ClassificationError wraps a primary classifier failure.
type ClassificationError struct {
	Reason string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err == nil {
		return "sentiment classification failed: " + e.Reason
	}
	return fmt.Sprintf("sentiment classification failed (%s): %v", e.Reason, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Config controls the sentiment service.
type Config struct {
	Timeout time.Duration
}

// Service routes classification to the primary classifier and falls back to
// the lexicon when it is unavailable, slow or failing. Classify never fails.
type Service struct {
	primary  Classifier
	ready    bool
	timeout  time.Duration
	fallback func(string) analysis.Result
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewService builds the service. When primary implements Warmer it is probed
// once; a failed probe marks the primary as not ready for the process lifetime.
func NewService(ctx context.Context, primary Classifier, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	svc := &Service{
		primary:  primary,
		ready:    primary != nil,
		timeout:  timeout,
		fallback: analysis.Analyze,
		logger:   logging.OrNop(logger).Named("sentiment"),
		metrics:  m,
	}

	if warmer, ok := primary.(Warmer); ok && svc.ready {
		warmCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := warmer.Warm(warmCtx); err != nil {
			svc.ready = false
			svc.logger.Warn("primary classifier unavailable, using lexicon", zap.Error(err))
		}
	}

	return svc
}

// Ready reports whether the primary classifier is in use.
func (s *Service) Ready() bool {
	return s != nil && s.ready
}

// Classify returns the sentiment of text. Confidence is always within [0, 1].
func (s *Service) Classify(ctx context.Context, text string) analysis.Result {
	if !s.Ready() {
		s.metrics.IncSentimentFallback(ReasonNotReady)
		return s.fallbackResult(text)
	}

	result, err := s.classifyPrimary(ctx, text)
	if err != nil {
		var cerr *ClassificationError
		reason := ReasonError
		if errors.As(err, &cerr) {
			reason = cerr.Reason
		}
		s.metrics.IncSentimentFallback(reason)
		s.logger.Warn("primary classifier failed, using lexicon", zap.String("reason", reason), zap.Error(err))
		return s.fallbackResult(text)
	}
	return result
}

func (s *Service) fallbackResult(text string) analysis.Result {
	if s == nil || s.fallback == nil {
		return analysis.Analyze(text)
	}
	return s.fallback(text)
}

type outcome struct {
	result analysis.Result
	err    error
}

func (s *Service) classifyPrimary(ctx context.Context, text string) (analysis.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		result, err := s.primary.Classify(ctx, text)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return analysis.Result{}, &ClassificationError{Reason: reasonFor(ctx.Err()), Err: ctx.Err()}
	case out := <-done:
		if out.err != nil {
			return analysis.Result{}, &ClassificationError{Reason: reasonFor(out.err), Err: out.err}
		}
		result, err := Normalize(out.result)
		if err != nil {
			return analysis.Result{}, &ClassificationError{Reason: ReasonError, Err: err}
		}
		return result, nil
	}
}

func reasonFor(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonError
}

// Normalize upper-cases the label, accepts only known labels and clamps the
// confidence into [0, 1].
func Normalize(result analysis.Result) (analysis.Result, error) {
	label, ok := ParseLabel(string(result.Label))
	if !ok {
		return analysis.Result{}, fmt.Errorf("unknown sentiment label %q", result.Label)
	}
	if math.IsNaN(result.Confidence) {
		return analysis.Result{}, errors.New("sentiment confidence is NaN")
	}
	confidence := math.Min(math.Max(result.Confidence, 0), 1)
	return analysis.Result{Label: label, Confidence: confidence}, nil
}

// ParseLabel maps classifier label spellings onto the known labels.
func ParseLabel(raw string) (analysis.Label, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "POSITIVE", "POS":
		return analysis.Positive, true
	case "NEGATIVE", "NEG":
		return analysis.Negative, true
	case "NEUTRAL", "NEU":
		return analysis.Neutral, true
	default:
		return "", false
	}
}
