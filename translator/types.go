package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ============================================================================
// TRANSLATOR — AI boundary for natural language → FQL program
// ============================================================================
// The Generator is the ONLY component that calls an external AI service.
// It receives the system prompt (schema description + rules) and the user
// question, and returns raw model text. It NEVER sees raw data rows.
//
// Implementations: OpenAI-compatible chat completions (Groq by default),
// Gemini, and GeneratorFunc for tests and embedding.
// ============================================================================

// Generator turns a system prompt and a user message into model text.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, system, user string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// Providers understood by New.
const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Default endpoints and models per provider.
const (
	GroqBaseURL        = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.5-flash-lite"
	DefaultTemperature = 0.1
)

var (
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown model provider")
	// ErrMissingAPIKey is returned by New when no API key is configured.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Config holds generator configuration.
type Config struct {
	Provider    string        // groq | openai | gemini
	APIKey      string        // provider API key (consumer's key)
	Model       string        // model name (empty = provider default)
	BaseURL     string        // API endpoint override (empty = provider default)
	Temperature float32       // sampling temperature
	MaxTokens   int           // completion token cap (0 = provider default)
	Timeout     time.Duration // per-request timeout (0 = none)
	Logger      *zap.Logger
}

// DefaultConfig returns the Groq defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		Provider:    ProviderGroq,
		APIKey:      apiKey,
		Model:       DefaultGroqModel,
		BaseURL:     GroqBaseURL,
		Temperature: DefaultTemperature,
	}
}

// New builds the Generator for cfg.Provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w for provider %q", ErrMissingAPIKey, cfg.Provider)
	}
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderGroq:
		if cfg.BaseURL == "" {
			cfg.BaseURL = GroqBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = DefaultGroqModel
		}
		return NewOpenAI(cfg), nil
	case ProviderOpenAI:
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIModel
		}
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	}
	return nil, fmt.Errorf("%w: %q (use %s, %s or %s)", ErrUnknownProvider, cfg.Provider, ProviderGroq, ProviderOpenAI, ProviderGemini)
}

// ============================================================================
// HELPERS
// ============================================================================

func logger(cfg Config) *zap.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return zap.NewNop()
}

// withTimeout applies the per-request timeout when one is configured.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
