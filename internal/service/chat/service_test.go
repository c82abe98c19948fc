package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analysis "github.com/silvercoin/advisor/backend/internal/analysis/sentiment"
	"github.com/silvercoin/advisor/backend/internal/metrics"
	"github.com/silvercoin/advisor/backend/internal/model/account"
	"github.com/silvercoin/advisor/backend/internal/model/profile"
	"github.com/silvercoin/advisor/backend/internal/service/ai"
	"github.com/silvercoin/advisor/backend/internal/service/auth"
	chat "github.com/silvercoin/advisor/backend/internal/service/chat"
	"github.com/silvercoin/advisor/backend/internal/service/sentiment"
)

type countingClassifier struct {
	mu    sync.Mutex
	inner chat.Classifier
	calls int
}

func (c *countingClassifier) Classify(ctx context.Context, text string) analysis.Result {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Classify(ctx, text)
}

type stubCompleter struct {
	mu     sync.Mutex
	reply  string
	err    error
	delay  time.Duration
	prompt string
	opts   ai.Options
	calls  int
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string, opts ai.Options) (string, error) {
	s.mu.Lock()
	s.calls++
	s.prompt = prompt
	s.opts = opts
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

type flakyStore struct {
	profile.Store
	mu       sync.Mutex
	failures int
	attempts int
}

func (f *flakyStore) AppendHistory(ctx context.Context, id string, turn profile.ConversationTurn) (profile.ConversationTurn, error) {
	f.mu.Lock()
	f.attempts++
	fail := f.attempts <= f.failures
	f.mu.Unlock()
	if fail {
		return profile.ConversationTurn{}, errors.New("store unavailable")
	}
	return f.Store.AppendHistory(ctx, id, turn)
}

type fixture struct {
	svc        *chat.Service
	store      profile.Store
	classifier *countingClassifier
	completer  *stubCompleter
	token      string
	aliceID    string
}

func floatPtr(v float64) *float64 { return &v }

func newFixture(t *testing.T, completer *stubCompleter, wrap func(profile.Store) profile.Store, cfg chat.Config) *fixture {
	t.Helper()
	ctx := context.Background()

	keys := auth.KeyConfig{Secret: "chat-test-secret", Algorithm: "HS256"}
	issuer, err := auth.NewIssuer(keys)
	require.NoError(t, err)
	accounts := account.NewMemoryStore(
		account.Account{Username: "johndoe"},
		account.Account{Username: "retired", Disabled: true},
	)
	verifier, err := auth.NewVerifier(keys, accounts)
	require.NoError(t, err)
	token, _, err := issuer.Issue("johndoe", time.Minute)
	require.NoError(t, err)

	base := profile.NewMemoryStore()
	age := 72
	investments := "none"
	alice, err := base.Create(ctx, profile.Profile{
		Name:           "Alice",
		Age:            &age,
		Income:         floatPtr(2000),
		Savings:        floatPtr(5000),
		Debts:          floatPtr(0),
		Investments:    &investments,
		FinancialGoals: []string{"retire comfortably"},
	})
	require.NoError(t, err)

	var store profile.Store = base
	if wrap != nil {
		store = wrap(base)
	}

	m := metrics.MustNewMetrics(prometheus.NewRegistry())
	classifier := &countingClassifier{inner: sentiment.NewService(ctx, nil, sentiment.Config{}, nil, m)}

	if cfg.Completion.MaxTokens == 0 {
		cfg.Completion = ai.Options{MaxTokens: 200, Temperature: 0.7}
	}
	svc := chat.NewService(chat.Deps{
		Verifier:  verifier,
		Profiles:  store,
		Sentiment: classifier,
		Completer: completer,
		Metrics:   m,
	}, cfg)

	return &fixture{svc: svc, store: base, classifier: classifier, completer: completer, token: token, aliceID: alice.ID}
}

func TestChatEndToEnd(t *testing.T) {
	completer := &stubCompleter{reply: "Your savings look steady, Alice."}
	fx := newFixture(t, completer, nil, chat.Config{})

	var stages []chat.Stage
	result, err := fx.svc.Chat(context.Background(), chat.Request{
		ProfileID:  fx.aliceID,
		Message:    "I'm worried about my savings",
		Credential: fx.token,
	}, chat.WithObserver(func(ev chat.Event) { stages = append(stages, ev.Stage) }))
	require.NoError(t, err)

	assert.Equal(t, "Your savings look steady, Alice.", result.Reply)
	assert.Equal(t, analysis.Result{Label: analysis.Negative, Confidence: 0.7}, result.Sentiment)
	assert.Equal(t, []string{"saving"}, result.Tags)
	assert.False(t, result.Fallback)
	assert.True(t, result.HistorySaved)
	assert.EqualValues(t, 1, result.Turn.Seq)

	assert.Contains(t, completer.prompt, "Name: Alice, Age: 72")
	assert.Contains(t, completer.prompt, "Financial context: saving")
	assert.Equal(t, ai.Options{MaxTokens: 200, Temperature: 0.7}, completer.opts)

	history, err := fx.svc.History(context.Background(), fx.token, fx.aliceID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "I'm worried about my savings", history[0].User)
	assert.Equal(t, result.Reply, history[0].Bot)

	assert.Equal(t, []chat.Stage{
		chat.StageAuthenticating,
		chat.StageResolvingProfile,
		chat.StageClassifying,
		chat.StageBuilding,
		chat.StageCompleting,
		chat.StagePersisting,
		chat.StageDone,
	}, stages)
}

func TestChatCompletionFailureUsesApology(t *testing.T) {
	completer := &stubCompleter{err: errors.New("upstream 500")}
	fx := newFixture(t, completer, nil, chat.Config{})

	result, err := fx.svc.Chat(context.Background(), chat.Request{
		ProfileID:  fx.aliceID,
		Message:    "This is great and wonderful",
		Credential: fx.token,
	})
	require.NoError(t, err)
	assert.Equal(t, chat.FallbackReply, result.Reply)
	assert.True(t, result.Fallback)
	assert.Equal(t, analysis.Result{Label: analysis.Positive, Confidence: 0.7}, result.Sentiment)

	history, err := fx.svc.History(context.Background(), fx.token, fx.aliceID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, chat.FallbackReply, history[0].Bot)
}

func TestChatCompletionTimeoutUsesApology(t *testing.T) {
	completer := &stubCompleter{reply: "too late", delay: time.Second}
	fx := newFixture(t, completer, nil, chat.Config{CompletionTimeout: 20 * time.Millisecond})

	start := time.Now()
	result, err := fx.svc.Chat(context.Background(), chat.Request{
		ProfileID:  fx.aliceID,
		Message:    "hello",
		Credential: fx.token,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, chat.FallbackReply, result.Reply)
}

func TestChatUnknownProfileStopsEarly(t *testing.T) {
	completer := &stubCompleter{reply: "never"}
	fx := newFixture(t, completer, nil, chat.Config{})

	_, err := fx.svc.Chat(context.Background(), chat.Request{
		ProfileID:  "missing",
		Message:    "I'm worried about my loan",
		Credential: fx.token,
	})
	require.ErrorIs(t, err, profile.ErrNotFound)
	assert.Zero(t, fx.classifier.calls)
	assert.Zero(t, completer.calls)
}

func TestChatRejectsBadCredentials(t *testing.T) {
	completer := &stubCompleter{reply: "never"}
	fx := newFixture(t, completer, nil, chat.Config{})

	for _, credential := range []string{"", "not-a-token", fx.token + "x"} {
		_, err := fx.svc.Chat(context.Background(), chat.Request{
			ProfileID:  fx.aliceID,
			Message:    "hello",
			Credential: credential,
		})
		var authErr *auth.Error
		require.ErrorAs(t, err, &authErr, "credential %q", credential)
	}
	assert.Zero(t, completer.calls)

	_, err := fx.svc.History(context.Background(), "", fx.aliceID)
	var authErr *auth.Error
	require.ErrorAs(t, err, &authErr)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	fx := newFixture(t, &stubCompleter{reply: "never"}, nil, chat.Config{})

	_, err := fx.svc.Chat(context.Background(), chat.Request{
		ProfileID:  fx.aliceID,
		Message:    "   ",
		Credential: fx.token,
	})
	require.ErrorIs(t, err, chat.ErrMessageRequired)
}

func TestChatRetriesHistoryAppend(t *testing.T) {
	completer := &stubCompleter{reply: "ok"}
	var flaky *flakyStore
	fx := newFixture(t, completer, func(s profile.Store) profile.Store {
		flaky = &flakyStore{Store: s, failures: 2}
		return flaky
	}, chat.Config{HistoryRetryMax: 2 * time.Second})

	result, err := fx.svc.Chat(context.Background(), chat.Request{
		ProfileID:  fx.aliceID,
		Message:    "hello",
		Credential: fx.token,
	})
	require.NoError(t, err)
	assert.True(t, result.HistorySaved)
	assert.Equal(t, 3, flaky.attempts)
}

func TestChatPersistenceFailureIsReported(t *testing.T) {
	completer := &stubCompleter{reply: "still answered"}
	fx := newFixture(t, completer, func(s profile.Store) profile.Store {
		return &flakyStore{Store: s, failures: 1000}
	}, chat.Config{})

	result, err := fx.svc.Chat(context.Background(), chat.Request{
		ProfileID:  fx.aliceID,
		Message:    "hello",
		Credential: fx.token,
	})
	require.NoError(t, err)
	assert.Equal(t, "still answered", result.Reply)
	assert.False(t, result.HistorySaved)

	stored, err := fx.store.Get(context.Background(), fx.aliceID)
	require.NoError(t, err)
	assert.Empty(t, stored.ConversationHistory)
}

func TestChatPersistsAfterClientCancels(t *testing.T) {
	completer := &stubCompleter{reply: "ok"}
	fx := newFixture(t, completer, nil, chat.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	result, err := fx.svc.Chat(ctx, chat.Request{
		ProfileID:  fx.aliceID,
		Message:    "hello",
		Credential: fx.token,
	}, chat.WithObserver(func(ev chat.Event) {
		if ev.Stage == chat.StagePersisting {
			cancel()
		}
	}))
	require.NoError(t, err)
	assert.True(t, result.HistorySaved)
}

func TestChatConcurrentRequestsKeepOrder(t *testing.T) {
	fx := newFixture(t, &stubCompleter{reply: "ok"}, nil, chat.Config{})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.Chat(context.Background(), chat.Request{
				ProfileID:  fx.aliceID,
				Message:    "hello",
				Credential: fx.token,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history, err := fx.svc.History(context.Background(), fx.token, fx.aliceID)
	require.NoError(t, err)
	require.Len(t, history, n)
	for i, turn := range history {
		assert.EqualValues(t, i+1, turn.Seq)
		if i > 0 {
			assert.False(t, turn.Timestamp.Before(history[i-1].Timestamp))
		}
	}
}
