package ingest

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/charkitch/general-apportionment/lifecycle"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// SOURCE LOADING
// =============================================================================
// Both feeds load concurrently; the engine runs only after both finish.
// Within a feed, files load in the order given so load order can break
// ties between identical snapshots.
// =============================================================================

// Sources lists the files of one run.
type Sources struct {
	Apportionment []string
	Execution     []string
	Sheet         string // workbook sheet; empty means the first
}

// FileReport summarizes one loaded file.
type FileReport struct {
	Path    string
	Feed    string
	Rows    int
	Skipped int
}

// Report summarizes a load.
type Report struct {
	Files     []FileReport
	RowErrors []*RowError
}

// Skipped is the number of rows dropped for untypeable cells.
func (r *Report) Skipped() int { return len(r.RowErrors) }

type feedResult struct {
	files   []FileReport
	rowErrs []*RowError
}

// Loader reads configured sources into engine input.
type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// Load reads every file of both feeds. A structural problem in any file
// fails the load; row-level problems are collected in the report.
func (l *Loader) Load(ctx context.Context, src Sources) (lifecycle.Input, *Report, error) {
	var (
		in        lifecycle.Input
		mu        sync.Mutex
		report    = &Report{}
		appResult feedResult
		exeResult feedResult
	)

	g, ctx := errgroup.WithContext(ctx)

	if len(src.Apportionment) > 0 {
		g.Go(func() error {
			records := []lifecycle.ApportionmentRecord{}
			for _, path := range src.Apportionment {
				if err := ctx.Err(); err != nil {
					return err
				}
				recs, rowErrs, err := LoadApportionmentFile(path, src.Sheet)
				if err != nil {
					return err
				}
				records = append(records, recs...)
				appResult.files = append(appResult.files, FileReport{Path: path, Feed: "apportionment", Rows: len(recs), Skipped: len(rowErrs)})
				appResult.rowErrs = append(appResult.rowErrs, rowErrs...)
				l.logger.Info("apportionment file loaded",
					zap.String("path", path),
					zap.Int("rows", len(recs)),
					zap.Int("skipped", len(rowErrs)))
			}
			mu.Lock()
			in.Apportionments = records
			mu.Unlock()
			return nil
		})
	}

	if len(src.Execution) > 0 {
		g.Go(func() error {
			records := []lifecycle.ExecutionRecord{}
			next := 0
			for _, path := range src.Execution {
				if err := ctx.Err(); err != nil {
					return err
				}
				recs, rowErrs, err := LoadExecutionFile(path, src.Sheet, next)
				if err != nil {
					return err
				}
				if n := len(recs); n > 0 {
					next = recs[n-1].Sequence + 1
				}
				records = append(records, recs...)
				exeResult.files = append(exeResult.files, FileReport{Path: path, Feed: "execution", Rows: len(recs), Skipped: len(rowErrs)})
				exeResult.rowErrs = append(exeResult.rowErrs, rowErrs...)
				l.logger.Info("execution file loaded",
					zap.String("path", path),
					zap.Int("rows", len(recs)),
					zap.Int("skipped", len(rowErrs)))
			}
			mu.Lock()
			in.Executions = records
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		l.logger.Error("source load failed", zap.Error(err))
		return lifecycle.Input{}, nil, err
	}

	report.Files = append(appResult.files, exeResult.files...)
	report.RowErrors = append(appResult.rowErrs, exeResult.rowErrs...)
	for _, re := range report.RowErrors {
		l.logger.Warn("row skipped", zap.Error(re))
	}
	return in, report, nil
}

// LoadApportionmentFile reads one apportionment file of any supported
// format.
func LoadApportionmentFile(path, sheet string) ([]lifecycle.ApportionmentRecord, []*RowError, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, nil, err
	}
	if format == FormatSchedule {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		return ParseSchedule(f, path)
	}

	t, err := ReadTable(path, sheet)
	if err != nil {
		return nil, nil, err
	}
	return ParseApportionments(t)
}

// LoadExecutionFile reads one bulk account-balance file. Rows without a
// snapshot_date column take the file's modification time; sequence
// numbers continue from base.
func LoadExecutionFile(path, sheet string, base int) ([]lifecycle.ExecutionRecord, []*RowError, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	t, err := ReadTable(path, sheet)
	if err != nil {
		return nil, nil, err
	}

	meta := MetaFromFilename(path)
	meta.SnapshotDate = info.ModTime().UTC()
	meta.SequenceBase = base
	return ParseExecutions(t, meta)
}
