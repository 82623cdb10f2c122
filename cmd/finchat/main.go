package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/spektr-org/finchat/chatbot"
	"github.com/spektr-org/finchat/config"
	"github.com/spektr-org/finchat/dataset"
	"github.com/spektr-org/finchat/helpers"
	"github.com/spektr-org/finchat/session"
	"github.com/spektr-org/finchat/translator"
)

// ============================================================================
// FINCHAT CLI — Ask questions about holdings and trades
// ============================================================================

const version = "0.1.0"

var (
	// Global flags
	configPath   string
	holdingsPath string
	tradesPath   string
	metricsAddr  string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "finchat",
	Short: "Ask questions about portfolio holdings and trades in plain English",
	Long: `finchat answers natural-language questions about two CSV datasets,
holdings and trades. A language model writes a short query program, finchat
runs it locally against the data and prints the answer. The model only ever
sees column names and types, never the rows.

Run without a subcommand to start the interactive chat.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&holdingsPath, "holdings", "", "Holdings CSV (overrides data.holdings_file)")
	rootCmd.PersistentFlags().StringVar(&tradesPath, "trades", "", "Trades CSV (overrides data.trades_file)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(chatCmd, askCmd, execCmd, summaryCmd, schemaCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

// ============================================================================
// APPLICATION SETUP
// ============================================================================

// app is everything a subcommand needs, built once per invocation.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	session *session.Session
	bot     *chatbot.Bot
	metrics *http.Server
}

// setup loads config and data. withModel also builds the generator; commands
// that never call the model work without an API key.
func setup(ctx context.Context, withModel bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if holdingsPath != "" {
		cfg.Data.HoldingsFile = holdingsPath
	}
	if tradesPath != "" {
		cfg.Data.TradesFile = tradesPath
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	log, err := buildLogger(cfg.Logging, verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}

	// ── Data ──────────────────────────────────────────────────────────────
	holdings, trades, err := loadData(ctx, cfg.Data)
	if err != nil {
		return nil, err
	}
	sessOpts, err := cfg.Session()
	if err != nil {
		return nil, err
	}
	sessOpts.Logger = log
	a.session, err = session.Prepare(holdings, trades, sessOpts)
	if err != nil {
		return nil, err
	}

	// ── Model ─────────────────────────────────────────────────────────────
	var gen translator.Generator
	if withModel {
		tc := cfg.Translator()
		tc.Logger = log
		gen, err = translator.New(ctx, tc)
		if err != nil {
			if errors.Is(err, translator.ErrMissingAPIKey) {
				return nil, fmt.Errorf("%w (set %s)", err, apiKeyVar(tc.Provider))
			}
			return nil, err
		}
	}

	// ── Metrics ───────────────────────────────────────────────────────────
	opts := []chatbot.Option{
		chatbot.WithLogger(log),
		chatbot.WithFormatter(cfg.Formatter()),
		chatbot.WithPromptOptions(cfg.Prompt()),
		chatbot.WithEngineOptions(cfg.Engine()...),
	}
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, chatbot.WithMetrics(chatbot.NewMetrics(reg)))
		a.metrics = serveMetrics(cfg.Metrics.Addr, reg, log)
	}

	a.bot = chatbot.New(a.session, gen, opts...)
	return a, nil
}

// close flushes logs and stops the metrics server.
func (a *app) close() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
	_ = a.log.Sync()
}

// loadData reads both CSV files concurrently.
func loadData(ctx context.Context, dc config.DataConfig) (holdings, trades *dataset.Table, err error) {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := helpers.LoadCSVFile(dc.HoldingsFile, session.HoldingsName)
		if err != nil {
			return fmt.Errorf("failed to load holdings: %w", err)
		}
		holdings = t
		return nil
	})
	g.Go(func() error {
		t, err := helpers.LoadCSVFile(dc.TradesFile, session.TradesName)
		if err != nil {
			return fmt.Errorf("failed to load trades: %w", err)
		}
		trades = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return holdings, trades, nil
}

// buildLogger builds a JSON production logger or a console development
// logger. Logs go to stderr so answers on stdout stay clean.
func buildLogger(lc config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	var zc zap.Config
	if strings.EqualFold(lc.Format, "json") {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}

func apiKeyVar(provider string) string {
	switch provider {
	case translator.ProviderOpenAI:
		return config.EnvOpenAIAPIKey
	case translator.ProviderGemini:
		return config.EnvGeminiAPIKey
	}
	return config.EnvGroqAPIKey
}
