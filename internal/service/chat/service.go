package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	analysis "github.com/silvercoin/advisor/backend/internal/analysis/sentiment"
	"github.com/silvercoin/advisor/backend/internal/logging"
	"github.com/silvercoin/advisor/backend/internal/metrics"
	"github.com/silvercoin/advisor/backend/internal/model/profile"
	"github.com/silvercoin/advisor/backend/internal/service/advisor"
	"github.com/silvercoin/advisor/backend/internal/service/ai"
	"github.com/silvercoin/advisor/backend/internal/service/auth"
)

// FallbackReply is returned whenever the completion service cannot answer.
const FallbackReply = "I'm sorry, I'm having trouble providing advice right now. Please try again in a moment."

const (
	defaultCompletionTimeout = 20 * time.Second
	historyRetryInitial      = 50 * time.Millisecond
)

var (
	ErrMessageRequired   = errors.New("message is required")
	ErrProfileIDRequired = errors.New("profile id is required")
)

// Verifier validates bearer credentials.
type Verifier interface {
	Verify(ctx context.Context, raw string) (auth.Caller, error)
}

// Classifier labels message sentiment and never fails.
type Classifier interface {
	Classify(ctx context.Context, text string) analysis.Result
}

// Config tunes completion calls and history persistence.
type Config struct {
	Completion        ai.Options
	CompletionTimeout time.Duration
	HistoryRetryMax   time.Duration
}

// Deps are the collaborators of the pipeline.
type Deps struct {
	Verifier  Verifier
	Profiles  profile.Store
	Sentiment Classifier
	Completer ai.Completer
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Request is one inbound chat message.
type Request struct {
	ProfileID  string
	Message    string
	Credential string
}

// Result is the outcome of a successful chat call. Reply is always set.
type Result struct {
	ProfileID    string
	Reply        string
	Sentiment    analysis.Result
	Tags         []string
	Fallback     bool
	HistorySaved bool
	Turn         profile.ConversationTurn
}

// Service runs the chat pipeline: authenticate, resolve the profile,
// classify, build the prompt, complete, then persist the turn.
type Service struct {
	verifier  Verifier
	profiles  profile.Store
	sentiment Classifier
	completer ai.Completer
	cfg       Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService wires the pipeline.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = defaultCompletionTimeout
	}
	return &Service{
		verifier:  deps.Verifier,
		profiles:  deps.Profiles,
		sentiment: deps.Sentiment,
		completer: deps.Completer,
		cfg:       cfg,
		logger:    logging.OrNop(deps.Logger).Named("chat"),
		metrics:   deps.Metrics,
		now:       time.Now,
	}
}

// Chat runs one request through the pipeline. Only authentication, input
// validation and profile resolution can fail; later stages degrade instead.
func (s *Service) Chat(ctx context.Context, req Request, opts ...Option) (*Result, error) {
	emit := ObserverFrom(opts...)
	started := s.now()

	fail := func(outcome string, err error) (*Result, error) {
		s.metrics.IncChatRequest(outcome)
		emit(Event{Stage: StageError, Err: err})
		return nil, err
	}

	emit(Event{Stage: StageAuthenticating})
	caller, err := s.authenticate(ctx, req.Credential)
	if err != nil {
		return fail("unauthorized", err)
	}
	ctx = auth.WithCaller(ctx, caller)

	profileID := strings.TrimSpace(req.ProfileID)
	message := strings.TrimSpace(req.Message)
	if profileID == "" {
		return fail("invalid", ErrProfileIDRequired)
	}
	if message == "" {
		return fail("invalid", ErrMessageRequired)
	}

	emit(Event{Stage: StageResolvingProfile})
	mark := s.now()
	p, err := s.profiles.Get(ctx, profileID)
	s.metrics.ObserveStage(string(StageResolvingProfile), s.now().Sub(mark))
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return fail("not_found", err)
		}
		return fail("error", err)
	}

	emit(Event{Stage: StageClassifying})
	mark = s.now()
	sentimentResult := s.sentiment.Classify(ctx, message)
	s.metrics.ObserveStage(string(StageClassifying), s.now().Sub(mark))

	tags := advisor.ContextTags(message)
	emit(Event{Stage: StageBuilding, Sentiment: &sentimentResult, Tags: tags})
	prompt := advisor.Build(p, message, sentimentResult, tags)

	emit(Event{Stage: StageCompleting, Sentiment: &sentimentResult, Tags: tags})
	mark = s.now()
	reply, fallback := s.complete(ctx, prompt)
	s.metrics.ObserveStage(string(StageCompleting), s.now().Sub(mark))

	emit(Event{Stage: StagePersisting, Sentiment: &sentimentResult, Tags: tags})
	mark = s.now()
	turn, persistErr := s.persist(ctx, p.ID, profile.ConversationTurn{
		User:      message,
		Bot:       reply,
		Timestamp: s.now().UTC(),
	})
	s.metrics.ObserveStage(string(StagePersisting), s.now().Sub(mark))
	if persistErr != nil {
		s.metrics.IncHistoryFailure()
		s.logger.Error("conversation turn not persisted",
			zap.String("profile_id", p.ID),
			zap.String("caller", caller.Username),
			zap.Error(persistErr),
		)
	}

	result := &Result{
		ProfileID:    p.ID,
		Reply:        reply,
		Sentiment:    sentimentResult,
		Tags:         tags,
		Fallback:     fallback,
		HistorySaved: persistErr == nil,
		Turn:         turn,
	}

	outcome := "ok"
	if fallback || persistErr != nil {
		outcome = "degraded"
	}
	s.metrics.IncChatRequest(outcome)
	emit(Event{Stage: StageDone, Sentiment: &sentimentResult, Tags: tags})

	s.logger.Info("chat completed",
		zap.String("profile_id", p.ID),
		zap.String("caller", caller.Username),
		zap.String("sentiment", string(sentimentResult.Label)),
		zap.Float64("confidence", sentimentResult.Confidence),
		zap.Strings("tags", tags),
		zap.Bool("fallback", fallback),
		zap.Bool("history_saved", result.HistorySaved),
		zap.Duration("elapsed", s.now().Sub(started)),
	)
	return result, nil
}

// History returns the ordered conversation turns of a profile.
func (s *Service) History(ctx context.Context, credential, profileID string) ([]profile.ConversationTurn, error) {
	if _, err := s.authenticate(ctx, credential); err != nil {
		return nil, err
	}
	p, err := s.profiles.Get(ctx, strings.TrimSpace(profileID))
	if err != nil {
		return nil, err
	}
	if p.ConversationHistory == nil {
		return []profile.ConversationTurn{}, nil
	}
	return p.ConversationHistory, nil
}

func (s *Service) authenticate(ctx context.Context, credential string) (auth.Caller, error) {
	mark := s.now()
	defer func() {
		s.metrics.ObserveStage(string(StageAuthenticating), s.now().Sub(mark))
	}()
	if s.verifier == nil {
		return auth.Caller{}, &auth.Error{Reason: auth.ReasonInvalid, Err: errors.New("no verifier configured")}
	}
	return s.verifier.Verify(ctx, credential)
}

type completion struct {
	reply string
	err   error
}

// complete returns the model reply, or FallbackReply and true on any failure.
func (s *Service) complete(ctx context.Context, prompt string) (string, bool) {
	if s.completer == nil {
		s.metrics.IncCompletionFallback("error")
		s.logger.Warn("no completion service configured, using fallback reply")
		return FallbackReply, true
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.CompletionTimeout)
	defer cancel()

	done := make(chan completion, 1)
	go func() {
		reply, err := s.completer.Complete(ctx, prompt, s.cfg.Completion)
		done <- completion{reply: reply, err: err}
	}()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case out := <-done:
		err = out.err
		if err == nil && strings.TrimSpace(out.reply) == "" {
			err = errors.New("empty completion")
		}
		if err == nil {
			return out.reply, false
		}
	}

	reason := completionFailureReason(err)
	s.metrics.IncCompletionFallback(reason)
	s.logger.Warn("completion failed, using fallback reply", zap.String("reason", reason), zap.Error(err))
	return FallbackReply, true
}

func completionFailureReason(err error) string {
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// persist appends the turn, retrying transient store errors on a context that
// outlives the request so a disconnecting client does not drop the turn.
func (s *Service) persist(ctx context.Context, profileID string, turn profile.ConversationTurn) (profile.ConversationTurn, error) {
	ctx = context.WithoutCancel(ctx)

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if s.cfg.HistoryRetryMax > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = historyRetryInitial
		exp.MaxElapsedTime = s.cfg.HistoryRetryMax
		policy = exp
	}

	var stored profile.ConversationTurn
	attempt := 0
	op := func() error {
		attempt++
		saved, err := s.profiles.AppendHistory(ctx, profileID, turn)
		if err != nil {
			if errors.Is(err, profile.ErrNotFound) {
				return backoff.Permanent(err)
			}
			s.logger.Debug("history append failed", zap.String("profile_id", profileID), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		stored = saved
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return profile.ConversationTurn{}, err
	}
	return stored, nil
}
