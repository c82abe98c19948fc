package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/silvercoin/advisor/backend/internal/config"
	"github.com/silvercoin/advisor/backend/internal/handler"
	"github.com/silvercoin/advisor/backend/internal/logging"
	"github.com/silvercoin/advisor/backend/internal/metrics"
	"github.com/silvercoin/advisor/backend/internal/model/account"
	"github.com/silvercoin/advisor/backend/internal/service/ai"
	"github.com/silvercoin/advisor/backend/internal/service/auth"
	"github.com/silvercoin/advisor/backend/internal/service/chat"
	profileService "github.com/silvercoin/advisor/backend/internal/service/profile"
	"github.com/silvercoin/advisor/backend/internal/service/sentiment"
	"github.com/silvercoin/advisor/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dotenvErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if dotenvErr != nil {
		logger.Debug("no .env file loaded, using process environment", zap.Error(dotenvErr))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(reg)

	profiles, closeStore, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close profile store", zap.Error(err))
		}
	}()
	logger.Info("profile store ready", zap.String("driver", cfg.Store.Driver))

	accounts, err := demoAccounts(cfg.Auth)
	if err != nil {
		return err
	}

	keys := auth.KeyConfig{Secret: cfg.Auth.SecretKey, Algorithm: cfg.Auth.Algorithm, TTL: cfg.Auth.TokenTTL()}
	issuer, err := auth.NewIssuer(keys)
	if err != nil {
		return fmt.Errorf("credential issuer: %w", err)
	}
	verifier, err := auth.NewVerifier(keys, accounts)
	if err != nil {
		return fmt.Errorf("credential verifier: %w", err)
	}

	completer := buildCompleter(ctx, cfg.AI, logger)
	sentimentSvc := sentiment.NewService(ctx, buildClassifier(ctx, cfg, logger), sentiment.Config{Timeout: cfg.Sentiment.Timeout}, logger, m)
	logger.Info("sentiment service ready", zap.String("provider", cfg.Sentiment.Provider), zap.Bool("primary_ready", sentimentSvc.Ready()))

	pipeline := chat.NewService(chat.Deps{
		Verifier:  verifier,
		Profiles:  profiles,
		Sentiment: sentimentSvc,
		Completer: completer,
		Logger:    logger,
		Metrics:   m,
	}, chat.Config{
		Completion:        ai.Options{MaxTokens: cfg.AI.MaxTokens, Temperature: cfg.AI.Temperature},
		CompletionTimeout: cfg.AI.Timeout,
		HistoryRetryMax:   cfg.Chat.HistoryRetryMax,
	})

	router := handler.NewRouter(handler.Services{
		Authenticator: auth.NewAuthenticator(accounts, issuer),
		Verifier:      verifier,
		Chat:          pipeline,
		Profiles:      profileService.NewService(profiles, logger),
		Gatherer:      reg,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("advisor backend listening", zap.String("addr", cfg.Server.Addr))
	return runServer(ctx, srv)
}

func demoAccounts(cfg config.AuthConfig) (*account.MemoryStore, error) {
	accounts := account.NewMemoryStore()
	if cfg.DemoUsername == "" {
		return accounts, nil
	}
	hash, err := auth.HashPassword(cfg.DemoPassword)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}
	accounts.Add(account.Account{
		Username:       cfg.DemoUsername,
		FullName:       "Demo Operator",
		HashedPassword: hash,
	})
	return accounts, nil
}

// buildCompleter returns nil when the provider is not configured; the chat
// pipeline then answers with the fallback reply.
func buildCompleter(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) ai.Completer {
	var completer ai.Completer
	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			logger.Warn("ark chat model unavailable, replies will use the fallback", zap.Error(err))
			return nil
		}
		chainCompleter, err := ai.NewChainCompleter(ctx, chatModel, cfg.SystemPrompt)
		if err != nil {
			logger.Warn("failed to compile completion chain", zap.Error(err))
			return nil
		}
		completer = chainCompleter
	default:
		if !cfg.Enabled() {
			logger.Warn("OPENAI_API_KEY not configured, replies will use the fallback")
			return nil
		}
		completer = ai.NewOpenAICompleter(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.SystemPrompt)
	}

	logger.Info("completion service ready", zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
	return ai.WrapWithCallerRateLimit(completer, rate.Limit(cfg.RateLimit), cfg.RateBurst)
}

func buildClassifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) sentiment.Classifier {
	switch cfg.Sentiment.Provider {
	case config.SentimentInference:
		classifier, err := sentiment.NewInferenceClassifier(cfg.Sentiment.Endpoint, cfg.Sentiment.APIKey, cfg.Sentiment.Timeout)
		if err != nil {
			logger.Warn("inference classifier unavailable", zap.Error(err))
			return nil
		}
		return classifier
	case config.SentimentLLM:
		if cfg.AI.Provider != config.ProviderArk {
			logger.Warn("llm sentiment requires COMPLETION_PROVIDER=ark, using lexicon")
			return nil
		}
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			logger.Warn("llm classifier unavailable", zap.Error(err))
			return nil
		}
		classifier, err := sentiment.NewLLMClassifier(ctx, chatModel)
		if err != nil {
			logger.Warn("llm classifier unavailable", zap.Error(err))
			return nil
		}
		return classifier
	default:
		return nil
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
