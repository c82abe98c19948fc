package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAICompleter calls an OpenAI-compatible chat completion endpoint.
type OpenAICompleter struct {
	modelName    string
	systemPrompt string
	client       *openai.Client
}

// NewOpenAICompleter builds a completer. An empty baseURL keeps the public API.
func NewOpenAICompleter(apiKey, baseURL, modelName, systemPrompt string) *OpenAICompleter {
	config := openai.DefaultConfig(apiKey)
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAICompleter{
		modelName:    modelName,
		systemPrompt: systemPrompt,
		client:       openai.NewClientWithConfig(config),
	}
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
			return "", &CompletionError{Provider: "openai", Err: errors.Join(ErrRateLimited, err)}
		}
		return "", &CompletionError{Provider: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &CompletionError{Provider: "openai", Err: errors.New("no choices in response")}
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", &CompletionError{Provider: "openai", Err: errors.New("empty completion")}
	}
	return content, nil
}
