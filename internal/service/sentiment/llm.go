package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	analysis "github.com/silvercoin/advisor/backend/internal/analysis/sentiment"
)

// LLMClassifier asks a chat model to label the message and parses its JSON answer.
type LLMClassifier struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewLLMClassifier compiles the classification chain over chatModel.
func NewLLMClassifier(ctx context.Context, chatModel model.ChatModel) (*LLMClassifier, error) {
	if chatModel == nil {
		return nil, errors.New("sentiment classifier requires a chat model")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage("{message}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile sentiment classifier chain: %w", err)
	}
	return &LLMClassifier{chain: runnable}, nil
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (analysis.Result, error) {
	msg, err := c.chain.Invoke(ctx, map[string]any{"message": strings.TrimSpace(text)})
	if err != nil {
		return analysis.Result{}, fmt.Errorf("invoke classifier chain: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return analysis.Result{}, errors.New("classifier returned empty content")
	}

	payload, err := parseClassifierOutput(msg.Content)
	if err != nil {
		return analysis.Result{}, fmt.Errorf("parse classifier output: %w", err)
	}
	return analysis.Result{Label: analysis.Label(payload.Label), Confidence: payload.Confidence}, nil
}

type classifierPayload struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// parseClassifierOutput extracts the first JSON object from the model answer.
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, errors.New("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

const classifierSystemPrompt = "You classify the emotional tone of messages sent by elderly clients to a financial advisor. " +
	"Reply with a single JSON object and nothing else: {{\"label\": \"POSITIVE\" | \"NEGATIVE\" | \"NEUTRAL\", \"confidence\": number between 0 and 1}}."
