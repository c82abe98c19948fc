package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	analysis "github.com/silvercoin/advisor/backend/internal/analysis/sentiment"
)

const warmupText = "I am doing well today."

// InferenceClassifier calls a hosted text-classification model that accepts
// {"inputs": text} and answers with label/score candidates.
type InferenceClassifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewInferenceClassifier constructs a classifier for endpoint.
func NewInferenceClassifier(endpoint, apiKey string, timeout time.Duration) (*InferenceClassifier, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("inference classifier requires an endpoint")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &InferenceClassifier{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(apiKey),
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Warm sends a probe request so an unreachable model is detected at startup.
func (c *InferenceClassifier) Warm(ctx context.Context) error {
	_, err := c.Classify(ctx, warmupText)
	return err
}

type candidate struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classify implements Classifier.
func (c *InferenceClassifier) Classify(ctx context.Context, text string) (analysis.Result, error) {
	body, err := json.Marshal(map[string]any{"inputs": text})
	if err != nil {
		return analysis.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return analysis.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return analysis.Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return analysis.Result{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return analysis.Result{}, fmt.Errorf("inference endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	candidates, err := decodeCandidates(raw)
	if err != nil {
		return analysis.Result{}, err
	}

	best := candidates[0]
	for _, cand := range candidates[1:] {
		if cand.Score > best.Score {
			best = cand
		}
	}
	return analysis.Result{Label: analysis.Label(best.Label), Confidence: best.Score}, nil
}

// decodeCandidates accepts both [[{...}]] and [{...}] response shapes.
func decodeCandidates(raw []byte) ([]candidate, error) {
	var nested [][]candidate
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 && len(nested[0]) > 0 {
		return nested[0], nil
	}

	var flat []candidate
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	if len(flat) == 0 {
		return nil, errors.New("inference response has no candidates")
	}
	return flat, nil
}
