package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"

	"github.com/graphloom/graphloom/internal/types"
)

// ClientConfig represents the configuration for an Ollama-backed client.
type ClientConfig struct {
	BaseURL string // Ollama server URL
}

// Client implements types.LLM on top of langchaingo's Ollama backend. The
// model is selected per call so one client serves every cascade rank.
type Client struct {
	llm llms.Model
}

// NewClient creates a new Client with the given configuration.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	model, err := ollama.New(ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &Client{llm: model}, nil
}

// Generate runs one completion against the named model.
func (c *Client) Generate(ctx context.Context, modelID, prompt string, opts types.GenerateOptions) (*types.Generation, error) {
	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx, content,
		llms.WithModel(modelID),
		llms.WithTemperature(opts.Temperature),
		llms.WithMaxTokens(opts.MaxTokens),
	)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return nil, fmt.Errorf("generate error: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from model %s", modelID)
	}

	gen := &types.Generation{
		Text:      resp.Choices[0].Content,
		LatencyMS: latency,
	}
	if info := resp.Choices[0].GenerationInfo; info != nil {
		if v, ok := info["PromptTokens"].(int); ok {
			gen.InputTokens = v
		}
		if v, ok := info["CompletionTokens"].(int); ok {
			gen.OutputTokens = v
		}
	}

	return gen, nil
}
