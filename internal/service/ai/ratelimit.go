package ai

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/silvercoin/advisor/backend/internal/service/auth"
)

// callerRateLimitedCompleter applies a token bucket per authenticated caller.
type callerRateLimitedCompleter struct {
	base   Completer
	limit  rate.Limit
	burst  int
	mu     sync.Mutex
	bucket map[string]*rate.Limiter
}

// WrapWithCallerRateLimit wraps c when limit is positive. A burst below 1 is
// coerced to 1.
func WrapWithCallerRateLimit(c Completer, limit rate.Limit, burst int) Completer {
	if limit <= 0 {
		return c
	}
	if burst < 1 {
		burst = 1
	}
	return &callerRateLimitedCompleter{
		base:   c,
		limit:  limit,
		burst:  burst,
		bucket: make(map[string]*rate.Limiter),
	}
}

func (c *callerRateLimitedCompleter) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	key := "anonymous"
	if caller, ok := auth.CallerFromContext(ctx); ok && caller.Username != "" {
		key = caller.Username
	}
	if !c.limiterFor(key).Allow() {
		return "", &CompletionError{Provider: "limiter", Err: ErrRateLimited}
	}
	return c.base.Complete(ctx, prompt, opts)
}

func (c *callerRateLimitedCompleter) limiterFor(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	limiter, ok := c.bucket[key]
	if !ok {
		limiter = rate.NewLimiter(c.limit, c.burst)
		c.bucket[key] = limiter
	}
	return limiter
}
