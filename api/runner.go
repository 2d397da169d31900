package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charkitch/general-apportionment/ingest"
	"github.com/charkitch/general-apportionment/lifecycle"
)

// ErrNoSources is returned by Refresh when no source files are configured.
var ErrNoSources = errors.New("no source files configured")

// Runner executes reconciliations and stores each as a new run. The HTTP
// handlers and the scheduler share one Runner.
type Runner struct {
	store   lifecycle.RunStore
	engine  *lifecycle.Engine
	loader  *ingest.Loader
	sources ingest.Sources
	logger  *zap.Logger
	now     func() time.Time
}

func NewRunner(store lifecycle.RunStore, engine *lifecycle.Engine, loader *ingest.Loader, sources ingest.Sources, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loader == nil {
		loader = ingest.NewLoader(logger)
	}
	return &Runner{
		store:   store,
		engine:  engine,
		loader:  loader,
		sources: sources,
		logger:  logger,
		now:     time.Now,
	}
}

// HasSources reports whether Refresh has anything to load.
func (r *Runner) HasSources() bool {
	return len(r.sources.Apportionment) > 0 || len(r.sources.Execution) > 0
}

// Reconcile runs the engine on typed input and stores the result. A run
// that yields no records is returned as lifecycle.ErrNoRecords and is not
// stored.
func (r *Runner) Reconcile(ctx context.Context, trigger lifecycle.Trigger, source string, in lifecycle.Input) (lifecycle.Run, error) {
	res, err := r.engine.Run(in)
	if err != nil {
		return lifecycle.Run{}, err
	}
	if err := res.Validate(); err != nil {
		r.logger.Warn("run produced no records",
			zap.String("trigger", string(trigger)),
			zap.Int("apportionment_rows", res.Diagnostics.ApportionmentRows),
			zap.Int("execution_rows", res.Diagnostics.ExecutionRows),
			zap.Int("dropped_rows", res.Diagnostics.DroppedRows()))
		return lifecycle.Run{}, err
	}

	run := lifecycle.NewRun(trigger, source, res, r.now())
	if err := r.store.SaveRun(ctx, run); err != nil {
		return lifecycle.Run{}, fmt.Errorf("failed to store run: %w", err)
	}

	d := res.Diagnostics
	fields := []zap.Field{
		zap.String("run_id", run.ID),
		zap.String("trigger", string(trigger)),
		zap.Int("records", len(run.Records)),
		zap.Int("matched", d.Matched),
		zap.Int("apportionment_only", d.ApportionmentOnly),
		zap.Int("execution_only", d.ExecutionOnly),
		zap.Int("dropped_rows", d.DroppedRows()),
		zap.Int("near_misses", len(d.NearMisses)),
	}
	if d.HasWarnings() {
		r.logger.Warn("run stored with unmatched or dropped rows", fields...)
	} else {
		r.logger.Info("run stored", fields...)
	}
	return run, nil
}

// Refresh reloads the configured source files and reconciles them.
func (r *Runner) Refresh(ctx context.Context, trigger lifecycle.Trigger) (lifecycle.Run, *ingest.Report, error) {
	if !r.HasSources() {
		return lifecycle.Run{}, nil, ErrNoSources
	}

	in, report, err := r.loader.Load(ctx, r.sources)
	if err != nil {
		return lifecycle.Run{}, nil, err
	}

	run, err := r.Reconcile(ctx, trigger, r.sourceLabel(), in)
	return run, report, err
}

func (r *Runner) sourceLabel() string {
	paths := append(append([]string{}, r.sources.Apportionment...), r.sources.Execution...)
	return strings.Join(paths, ",")
}
