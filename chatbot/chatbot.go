package chatbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spektr-org/finchat/engine"
	"github.com/spektr-org/finchat/render"
	"github.com/spektr-org/finchat/session"
	"github.com/spektr-org/finchat/translator"
)

// ============================================================================
// CHATBOT — question → program → result → answer
// ============================================================================
// Ask runs the whole pipeline for one question:
//   1. BuildPrompt from the cached schema text
//   2. Generator (the only external call)
//   3. CleanProgram
//   4. engine.Execute against the prepared session
//   5. Formatter, plus the program's note
//
// Execution failures are part of the answer ("Execution error: ..."); only a
// failed model call is returned as an error. A Bot handles one question at a
// time.
// ============================================================================

// ErrGeneration wraps failures of the model call.
var ErrGeneration = errors.New("code generation failed")

// Answer is the outcome of one question.
type Answer struct {
	ID       string
	Question string
	Program  string         // sanitized program
	Text     string         // display text
	Result   *engine.Result // nil when execution failed
	Err      error          // *engine.ExecutionError when execution failed
	Elapsed  time.Duration
}

// Bot answers questions about one prepared session.
type Bot struct {
	session   *session.Session
	generator translator.Generator
	formatter *render.Formatter
	prompt    translator.PromptOptions
	engine    []engine.Option
	metrics   *Metrics
	log       *zap.Logger
}

// Option configures a Bot.
type Option func(*Bot)

// WithFormatter replaces the default formatter.
func WithFormatter(f *render.Formatter) Option {
	return func(b *Bot) {
		if f != nil {
			b.formatter = f
		}
	}
}

// WithPromptOptions replaces the prompt options derived from the session.
func WithPromptOptions(p translator.PromptOptions) Option {
	return func(b *Bot) { b.prompt = p }
}

// WithEngineOptions passes execution limits through to engine.Execute.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(b *Bot) { b.engine = append(b.engine, opts...) }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *Metrics) Option {
	return func(b *Bot) { b.metrics = m }
}

// WithLogger routes pipeline logs.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.log = l
		}
	}
}

// New creates a Bot. The prompt's case-insensitive rule follows the
// session's options unless WithPromptOptions overrides it.
func New(s *session.Session, g translator.Generator, opts ...Option) *Bot {
	prompt := translator.DefaultPromptOptions()
	prompt.CaseInsensitive = s.Options().CaseInsensitiveColumns
	b := &Bot{
		session:   s,
		generator: g,
		formatter: render.DefaultFormatter(),
		prompt:    prompt,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Session returns the prepared session the bot reads.
func (b *Bot) Session() *session.Session { return b.session }

// Ask answers one question. The error is non-nil only when the model call
// failed; it then wraps ErrGeneration.
func (b *Bot) Ask(ctx context.Context, question string) (*Answer, error) {
	ans := &Answer{ID: uuid.NewString(), Question: question}
	log := b.log.With(zap.String("question_id", ans.ID))
	start := time.Now()

	req := translator.BuildPrompt(b.session.Schema(), question, b.prompt)

	genStart := time.Now()
	raw, err := b.generator.Generate(ctx, req.System, req.User)
	b.metrics.observeStage("generate", time.Since(genStart).Seconds())
	if err != nil {
		b.metrics.countQuestion(OutcomeGenerationError)
		log.Warn("generation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	ans.Program = translator.CleanProgram(raw)
	log.Debug("program generated", zap.String("program", ans.Program))

	b.run(ctx, ans, log)
	ans.Elapsed = time.Since(start)

	log.Info("question answered",
		zap.Bool("ok", ans.Err == nil),
		zap.Duration("elapsed", ans.Elapsed))
	return ans, nil
}

// Exec runs a program directly, skipping the model. It never returns an
// error; execution failures are reported in the Answer.
func (b *Bot) Exec(ctx context.Context, program string) *Answer {
	ans := &Answer{ID: uuid.NewString(), Program: translator.CleanProgram(program)}
	start := time.Now()
	b.run(ctx, ans, b.log.With(zap.String("question_id", ans.ID)))
	ans.Elapsed = time.Since(start)
	return ans
}

// run executes ans.Program and fills Result, Err and Text.
func (b *Bot) run(ctx context.Context, ans *Answer, log *zap.Logger) {
	execStart := time.Now()
	opts := append([]engine.Option{engine.WithLogger(log)}, b.engine...)
	res, err := engine.Execute(ctx, ans.Program, b.session.Env(), opts...)
	b.metrics.observeStage("execute", time.Since(execStart).Seconds())

	if err != nil {
		b.metrics.countQuestion(OutcomeExecutionError)
		log.Info("execution failed", zap.Error(err))
		ans.Err = err
		ans.Text = "Execution error: " + err.Error()
		return
	}

	b.metrics.countQuestion(OutcomeAnswered)
	b.metrics.observeSteps(res.Steps)
	ans.Result = res
	ans.Text = b.formatter.Format(res)
	if res.Note != "" {
		ans.Text += "\nNote: " + res.Note
	}
}

// Output converts the answer into its JSON shape.
func (a *Answer) Output() render.Output {
	out := render.NewOutput(a.Result)
	out.ID = a.ID
	out.Question = a.Question
	out.Program = a.Program
	out.Answer = a.Text
	if a.Err != nil {
		out.Error = a.Err.Error()
	}
	return out
}
