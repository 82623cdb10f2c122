package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spektr-org/finchat/dataset"
)

// ============================================================================
// EXECUTOR — Runs one FQL program against the session datasets
// ============================================================================
// Entry point: Execute(ctx, program, env, opts...)
//
// Pipeline:
//   1. Parse (unknown functions are rejected here, before anything runs)
//   2. Bind a fresh scope: the datasets of env, read-only
//   3. Evaluate statements top to bottom under the timeout and step budget
//   4. Read `result` (required) and `note` (optional)
//   5. Materialize the result so it owns its data
//
// Every failure, including a recovered panic, comes back as *ExecutionError.
// Nothing in a program can outlive the call or change the datasets.
// ============================================================================

// Binding names read after execution.
const (
	ResultBinding = "result"
	NoteBinding   = "note"
)

// Execute runs program against env and returns its result.
//
// Options:
//   - WithTimeout(d) — wall-clock bound (default 5s)
//   - WithStepLimit(n) — evaluation step bound (default 5,000,000)
//   - WithLogger(l) — debug logging
func Execute(ctx context.Context, program string, env Env, opts ...Option) (res *Result, err error) {
	cfg := applyOptions(opts)
	log := cfg.Logger
	start := time.Now()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("program panicked", zap.Any("panic", r))
			res, err = nil, execErrorf(StagePanic, "internal error while running the program: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, contextError(err, cfg)
	}

	prog, err := Parse(program)
	if err != nil {
		log.Debug("program rejected", zap.Error(err))
		return nil, &ExecutionError{Stage: StageParse, Message: err.Error()}
	}

	ev := newEvaluator(ctx, env, cfg)
	for _, st := range prog.Stmts {
		o, err := ev.eval(st.Expr)
		if err != nil {
			execErr := asExecutionError(err, st.Pos)
			log.Debug("program failed",
				zap.String("stage", execErr.Stage),
				zap.Int("steps", ev.steps),
				zap.Error(execErr))
			return nil, execErr
		}
		if st.Target != "" {
			ev.scope[st.Target] = o
		}
	}

	out, ok := ev.scope[ResultBinding]
	if !ok {
		return nil, execErrorf(StageResult, "no result produced (the program must assign to %s)", ResultBinding)
	}
	res, err = buildResult(out)
	if err != nil {
		return nil, err
	}
	if n, ok := ev.scope[NoteBinding]; ok && n.isKind(dataset.KindString) {
		res.Note = n.scalar.Str()
	}
	res.Steps = ev.steps

	log.Debug("program executed",
		zap.Stringer("kind", res.Kind),
		zap.Int("entries", res.Len()),
		zap.Int("steps", ev.steps),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// asExecutionError keeps limit/timeout errors as they are and tags the rest
// with the statement line.
func asExecutionError(err error, pos Position) *ExecutionError {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee
	}
	return &ExecutionError{Stage: StageEval, Message: fmt.Sprintf("line %d: %s", pos.Line, err.Error())}
}

// buildResult converts the final binding into an owned Result.
func buildResult(o object) (*Result, error) {
	switch o.kind {
	case objScalar:
		// A missing scalar stays a scalar: it is the NaN of a failed lookup.
		return &Result{Kind: ResultScalar, Scalar: o.scalar}, nil
	case objTable:
		return &Result{Kind: ResultTable, Table: BuildTable(o.table)}, nil
	case objSeries:
		s := &Series{
			Name:   o.series.Name,
			Index:  o.series.Index,
			Labels: append([]dataset.Value(nil), o.series.Labels...),
			Values: append([]dataset.Value(nil), o.series.Values...),
		}
		return &Result{Kind: ResultSeries, Series: s}, nil
	case objList:
		vals, ok := o.values()
		if !ok {
			return nil, execErrorf(StageResult, "result must be a value, a series, a table or a list of values")
		}
		return &Result{Kind: ResultSeries, Series: newPositionalSeries("", vals)}, nil
	}
	return &Result{Kind: ResultAbsent}, nil
}
