package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
	"gopkg.in/yaml.v3"

	"github.com/spektr-org/finchat/dataset"
	"github.com/spektr-org/finchat/engine"
	"github.com/spektr-org/finchat/render"
	"github.com/spektr-org/finchat/session"
	"github.com/spektr-org/finchat/translator"
)

// ============================================================================
// CONFIG — YAML file + environment overrides
// ============================================================================
// Load order: Default() → YAML file (optional) → environment → Validate().
// API keys are only ever read from the environment or the file; they are
// never written back out.
// ============================================================================

// Environment variables read by Load.
const (
	EnvGroqAPIKey   = "GROQ_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvModel        = "FINCHAT_MODEL"
	EnvHoldingsFile = "FINCHAT_HOLDINGS_FILE"
	EnvTradesFile   = "FINCHAT_TRADES_FILE"
)

// Config is the complete finchat configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Chatbot  ChatbotConfig  `yaml:"chatbot"`
	Dates    DatesConfig    `yaml:"dates"`
	Response ResponseConfig `yaml:"response"`
	Data     DataConfig     `yaml:"data"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ModelConfig selects and tunes the code-generating model.
type ModelConfig struct {
	Provider    string        `yaml:"provider"`
	Name        string        `yaml:"name"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ChatbotConfig holds pipeline switches and execution limits.
type ChatbotConfig struct {
	ShowCodeByDefault           bool          `yaml:"show_code_by_default"`
	EnableDateNormalization     bool          `yaml:"enable_date_normalization"`
	EnableCaseInsensitiveSearch bool          `yaml:"enable_case_insensitive_search"`
	ExecutionTimeout            time.Duration `yaml:"execution_timeout"`
	MaxSteps                    int           `yaml:"max_steps"`
}

// DatesConfig lists strftime-style formats.
type DatesConfig struct {
	DefaultFormat string   `yaml:"default_format"`
	ParseFormats  []string `yaml:"parse_formats"`
}

// ResponseConfig controls answer formatting.
type ResponseConfig struct {
	DecimalPlaces        int    `yaml:"decimal_places"`
	UseThousandSeparator bool   `yaml:"use_thousand_separator"`
	EmptyResultMessage   string `yaml:"empty_result_message"`
}

// DataConfig points at the two CSV files.
type DataConfig struct {
	HoldingsFile string `yaml:"holdings_file"`
	TradesFile   string `yaml:"trades_file"`
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // console | json
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // e.g. ":9090"; empty disables
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Provider:    translator.ProviderGroq,
			Name:        translator.DefaultGroqModel,
			Temperature: translator.DefaultTemperature,
		},
		Chatbot: ChatbotConfig{
			ShowCodeByDefault:           false,
			EnableDateNormalization:     true,
			EnableCaseInsensitiveSearch: true,
			ExecutionTimeout:            engine.DefaultTimeout,
			MaxSteps:                    engine.DefaultStepLimit,
		},
		Dates: DatesConfig{
			DefaultFormat: "%d-%m-%Y",
			ParseFormats:  append([]string(nil), dataset.DefaultDateFormats...),
		},
		Response: ResponseConfig{
			DecimalPlaces:        2,
			UseThousandSeparator: true,
			EmptyResultMessage:   "No results found",
		},
		Data: DataConfig{
			HoldingsFile: "data/holdings.csv",
			TradesFile:   "data/trades.csv",
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides file values with the environment. The API key matching
// the provider wins over api_key in the file.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvModel); v != "" {
		c.Model.Name = v
	}
	if v := getenv(EnvHoldingsFile); v != "" {
		c.Data.HoldingsFile = v
	}
	if v := getenv(EnvTradesFile); v != "" {
		c.Data.TradesFile = v
	}

	var keyVar string
	switch strings.ToLower(c.Model.Provider) {
	case translator.ProviderOpenAI:
		keyVar = EnvOpenAIAPIKey
	case translator.ProviderGemini:
		keyVar = EnvGeminiAPIKey
	default:
		keyVar = EnvGroqAPIKey
	}
	if v := getenv(keyVar); v != "" {
		c.Model.APIKey = v
	}
}

// Validate checks that all values are usable. Missing API keys are not an
// error here: commands that never call the model don't need one.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Model.Provider) {
	case translator.ProviderGroq, translator.ProviderOpenAI, translator.ProviderGemini:
	default:
		return fmt.Errorf("model.provider: %w: %q", translator.ErrUnknownProvider, c.Model.Provider)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be between 0 and 2, got %g", c.Model.Temperature)
	}
	if c.Model.MaxTokens < 0 {
		return errors.New("model.max_tokens must be >= 0")
	}
	if c.Model.Timeout < 0 {
		return errors.New("model.timeout must be >= 0")
	}
	if c.Chatbot.ExecutionTimeout < 0 {
		return errors.New("chatbot.execution_timeout must be >= 0")
	}
	if c.Chatbot.MaxSteps < 0 {
		return errors.New("chatbot.max_steps must be >= 0")
	}
	if len(c.Dates.ParseFormats) == 0 {
		return errors.New("dates.parse_formats must list at least one format")
	}
	if _, err := dataset.NewDateParser(c.Dates.ParseFormats); err != nil {
		return fmt.Errorf("dates.parse_formats: %w", err)
	}
	if _, err := dataset.NewDateParser([]string{c.Dates.DefaultFormat}); err != nil {
		return fmt.Errorf("dates.default_format: %w", err)
	}
	if c.Response.DecimalPlaces < 0 || c.Response.DecimalPlaces > 10 {
		return fmt.Errorf("response.decimal_places must be between 0 and 10, got %d", c.Response.DecimalPlaces)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// Translator converts the model section into a generator config.
func (c *Config) Translator() translator.Config {
	return translator.Config{
		Provider:    strings.ToLower(c.Model.Provider),
		APIKey:      c.Model.APIKey,
		Model:       c.Model.Name,
		BaseURL:     c.Model.BaseURL,
		Temperature: c.Model.Temperature,
		MaxTokens:   c.Model.MaxTokens,
		Timeout:     c.Model.Timeout,
	}
}

// DateParser builds the parser for dates.parse_formats.
func (c *Config) DateParser() (*dataset.DateParser, error) {
	return dataset.NewDateParser(c.Dates.ParseFormats)
}

// DateExample renders 4 March 2020 in dates.default_format, the sample date
// used in the prompt.
func (c *Config) DateExample() string {
	return strftime.Format(c.Dates.DefaultFormat, time.Date(2020, time.March, 4, 0, 0, 0, 0, time.UTC))
}

// Session converts the chatbot switches into preparation options.
func (c *Config) Session() (session.Options, error) {
	parser, err := c.DateParser()
	if err != nil {
		return session.Options{}, err
	}
	return session.Options{
		NormalizeDates:         c.Chatbot.EnableDateNormalization,
		CaseInsensitiveColumns: c.Chatbot.EnableCaseInsensitiveSearch,
		DateParser:             parser,
	}, nil
}

// Prompt converts the chatbot switches into prompt options.
func (c *Config) Prompt() translator.PromptOptions {
	return translator.PromptOptions{
		CaseInsensitive: c.Chatbot.EnableCaseInsensitiveSearch,
		DateFormat:      c.DateExample(),
	}
}

// Formatter builds the answer formatter from the response section.
func (c *Config) Formatter() *render.Formatter {
	return render.NewFormatter(c.Response.DecimalPlaces, c.Response.UseThousandSeparator, c.Response.EmptyResultMessage)
}

// Engine converts the execution limits into engine options.
func (c *Config) Engine() []engine.Option {
	return []engine.Option{
		engine.WithTimeout(c.Chatbot.ExecutionTimeout),
		engine.WithStepLimit(c.Chatbot.MaxSteps),
	}
}
