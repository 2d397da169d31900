/*
scheduler.go - Scheduled source refresh

PURPOSE:
  Re-runs the reconciliation over the configured source files on a cron
  schedule so the run history follows new bulk-feed snapshots without
  manual requests.

DESIGN:
  - robfig/cron with a seconds field ("0 0 6 * * *") or descriptors
    ("@every 6h")
  - A refresh still running when the next tick fires is skipped
  - Every refresh is a new run with trigger "scheduler"

USAGE:
  scheduler, err := NewRefreshScheduler(runner, "0 0 6 * * *", logger)
  scheduler.Start()
  // ... later
  scheduler.Stop(ctx)

SEE ALSO:
  - runner.go: Refresh
  - handlers.go: POST /api/runs/refresh (manual refresh)
*/
package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/charkitch/general-apportionment/lifecycle"
)

// RefreshScheduler runs Runner.Refresh on a cron schedule.
type RefreshScheduler struct {
	runner *Runner
	spec   string
	logger *zap.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	started bool
}

// NewRefreshScheduler validates spec and registers the refresh job.
func NewRefreshScheduler(runner *Runner, spec string, logger *zap.Logger) (*RefreshScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !runner.HasSources() {
		return nil, ErrNoSources
	}

	cl := cronLogger{logger.Sugar()}
	s := &RefreshScheduler{
		runner: runner,
		spec:   spec,
		logger: logger,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the schedule. Calling it twice has no effect.
func (s *RefreshScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))
}

// Stop halts the schedule and waits for a running refresh, or for ctx.
func (s *RefreshScheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out", zap.Error(ctx.Err()))
	}
}

// RunOnce performs one scheduled refresh. Failures are logged; the next
// tick tries again.
func (s *RefreshScheduler) RunOnce(ctx context.Context) (lifecycle.Run, error) {
	run, report, err := s.runner.Refresh(ctx, lifecycle.TriggerScheduler)
	if err != nil {
		s.logger.Error("scheduled refresh failed", zap.Error(err))
		return lifecycle.Run{}, err
	}
	fields := []zap.Field{zap.String("run_id", run.ID)}
	if report != nil {
		fields = append(fields, zap.Int("files", len(report.Files)), zap.Int("skipped_rows", report.Skipped()))
	}
	s.logger.Info("scheduled refresh completed", fields...)
	return run, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
