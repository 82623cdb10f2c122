package translator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// ============================================================================
// GEMINI GENERATOR — Calls Google Gemini for NL → FQL
// ============================================================================
// The system prompt goes in as the system instruction, the question as the
// single user turn.
// ============================================================================

// GeminiGenerator implements Generator using the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	config Config
	log    *zap.Logger
}

// NewGemini creates a Gemini generator. BaseURL overrides the API endpoint.
func NewGemini(ctx context.Context, cfg Config) (*GeminiGenerator, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, config: cfg, log: logger(cfg)}, nil
}

// Generate sends the prompt and returns the response text.
func (g *GeminiGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.config.Timeout)
	defer cancel()

	temperature := g.config.Temperature
	gc := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       &temperature,
	}
	if g.config.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(g.config.MaxTokens)
	}

	start := time.Now()
	g.log.Debug("requesting completion",
		zap.String("model", g.config.Model),
		zap.String("question", truncate(user, 80)))

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(user), gc)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty response")
	}

	g.log.Debug("completion received", zap.Duration("elapsed", time.Since(start)))
	return text, nil
}
