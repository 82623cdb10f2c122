package translator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ============================================================================
// OPENAI-COMPATIBLE GENERATOR — Groq, OpenAI, or any compatible endpoint
// ============================================================================

// OpenAIGenerator calls a chat completions endpoint with one system and one
// user message.
type OpenAIGenerator struct {
	client *openai.Client
	config Config
	log    *zap.Logger
}

// NewOpenAI creates a generator for an OpenAI-compatible API. An empty
// BaseURL targets api.openai.com.
func NewOpenAI(cfg Config) *OpenAIGenerator {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(oc),
		config: cfg,
		log:    logger(cfg),
	}
}

// Generate sends the prompt and returns the first choice's content.
func (g *OpenAIGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.config.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: g.config.Temperature,
		MaxTokens:   g.config.MaxTokens,
	}

	start := time.Now()
	g.log.Debug("requesting completion",
		zap.String("model", g.config.Model),
		zap.String("question", truncate(user, 80)))

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%s API returned %d: %s", g.provider(), apiErr.HTTPStatusCode, truncate(apiErr.Message, 200))
		}
		return "", fmt.Errorf("%s API call failed: %w", g.provider(), err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", g.provider())
	}

	g.log.Debug("completion received",
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) provider() string {
	if g.config.Provider == "" {
		return ProviderGroq
	}
	return g.config.Provider
}
