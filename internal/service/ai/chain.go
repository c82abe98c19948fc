package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// ChainCompleter runs the prompt through an eino chain over a chat model.
type ChainCompleter struct {
	systemPrompt string
	chain        compose.Runnable[map[string]any, *schema.Message]
}

// NewChainCompleter compiles the system+query chain over chatModel.
func NewChainCompleter(ctx context.Context, chatModel model.ChatModel, systemPrompt string) (*ChainCompleter, error) {
	if chatModel == nil {
		return nil, errors.New("chain completer requires a chat model")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ChainCompleter{
		systemPrompt: systemPrompt,
		chain:        runnable,
	}, nil
}

// Complete implements Completer.
func (c *ChainCompleter) Complete(ctx context.Context, query string, opts Options) (string, error) {
	input := map[string]any{
		"system": c.systemPrompt,
		"query":  query,
	}

	var modelOpts []model.Option
	if opts.MaxTokens > 0 {
		modelOpts = append(modelOpts, model.WithMaxTokens(opts.MaxTokens))
	}
	modelOpts = append(modelOpts, model.WithTemperature(float32(opts.Temperature)))

	response, err := c.chain.Invoke(ctx, input, compose.WithChatModelOption(modelOpts...))
	if err != nil {
		return "", &CompletionError{Provider: "ark", Err: err}
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", &CompletionError{Provider: "ark", Err: errors.New("empty completion")}
	}
	return strings.TrimSpace(response.Content), nil
}
