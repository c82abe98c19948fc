package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrRateLimited is returned when the caller exceeded its completion budget.
var ErrRateLimited = errors.New("completion rate limit exceeded")

// Options tunes a single completion call.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// CompletionError wraps a provider failure.
type CompletionError struct {
	Provider string
	Err      error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s completion failed: %v", e.Provider, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }
