package engine

import (
	"time"

	"go.uber.org/zap"
)

// ============================================================================
// ENGINE OPTIONS — Functional options for Execute()
// ============================================================================

// Option configures engine behavior via functional options pattern.
type Option func(*config)

type config struct {
	Timeout   time.Duration // wall clock per program (0 = no limit)
	StepLimit int           // evaluation steps per program (0 = no limit)
	Logger    *zap.Logger
}

// Defaults applied when no option overrides them.
const (
	DefaultTimeout   = 5 * time.Second
	DefaultStepLimit = 5_000_000
)

// WithTimeout bounds wall-clock time per program. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.Timeout = d
	}
}

// WithStepLimit bounds the number of evaluation steps (expression nodes plus
// rows visited). Zero disables the bound.
func WithStepLimit(n int) Option {
	return func(c *config) {
		c.StepLimit = n
	}
}

// WithLogger routes engine debug logs.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// applyOptions creates a config from functional options.
func applyOptions(opts []Option) *config {
	cfg := &config{
		Timeout:   DefaultTimeout,
		StepLimit: DefaultStepLimit,
		Logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
