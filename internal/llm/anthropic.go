// Package llm provides the completion-API client used by the enrichment
// pipeline.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/tunescope/enricher/config"
)

const anthropicVersion = "2023-06-01"

// Completion is one completion call's text plus its token accounting.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

// Client is the completion surface the orchestrator depends on.
type Client interface {
	Configured() bool
	Complete(ctx context.Context, model config.LLMModel, prompt string) (*Completion, error)
	EstimateCost(model config.LLMModel, prompt string) float64
}

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	logger     *log.Logger
}

// NewAnthropicClient creates a client. A missing API key is not fatal;
// the service degrades to fallback-only enrichment and logs a warning.
func NewAnthropicClient(cfg config.LLMConfig) *AnthropicClient {
	c := &AnthropicClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.New(log.Writer(), "[LLM] ", log.LstdFlags),
	}
	if c.apiKey == "" {
		c.logger.Printf("warn: ANTHROPIC_API_KEY not set; running in fallback-only mode")
	}
	return c
}

// Configured reports whether an API key is available.
func (c *AnthropicClient) Configured() bool {
	return c.apiKey != ""
}

// Complete sends a single-user-message completion request and returns the
// response text with token usage and the computed cost for the model's
// pricing pair.
func (c *AnthropicClient) Complete(ctx context.Context, model config.LLMModel, prompt string) (*Completion, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("anthropic API key not configured")
	}

	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	body, err := json.Marshal(struct {
		Model     string    `json:"model"`
		MaxTokens int       `json:"max_tokens"`
		Messages  []message `json:"messages"`
	}{
		Model:     model.Name,
		MaxTokens: c.maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic status %d", resp.StatusCode)
	}

	var out struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(out.Content) == 0 {
		return nil, fmt.Errorf("empty content")
	}

	return &Completion{
		Text:         out.Content[0].Text,
		Model:        model.Name,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
		Cost:         CalculateCost(model, out.Usage.InputTokens, out.Usage.OutputTokens),
	}, nil
}

// EstimateCost approximates a call's worst-case cost before making it:
// prompt length over four as input tokens and the full max_tokens budget
// as output.
func (c *AnthropicClient) EstimateCost(model config.LLMModel, prompt string) float64 {
	return CalculateCost(model, int64(len(prompt)/4), int64(c.maxTokens))
}

// CalculateCost prices a token count against a model's pricing pair.
func CalculateCost(model config.LLMModel, inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) / 1000.0 * model.CostPer1KInput
	outputCost := float64(outputTokens) / 1000.0 * model.CostPer1KOutput
	return inputCost + outputCost
}
