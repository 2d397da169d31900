// =============================================================================
// Lifecycle CLI - Root Command
// =============================================================================
//
// COBRA CLI STRUCTURE:
//   lifecycle
//   ├── reconcile   Reconcile source files and write the output document
//   ├── validate    Reconcile and print diagnostics only
//   ├── rollup      Print totals grouped along one dimension
//   └── version     Print build information
//
// CONFIGURATION:
//   Settings come from --config (YAML) and LIFECYCLE_* environment
//   variables. Source and reference flags override the file.
//
// =============================================================================

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charkitch/general-apportionment/config"
	"github.com/charkitch/general-apportionment/factory"
	"github.com/charkitch/general-apportionment/ingest"
	"github.com/charkitch/general-apportionment/lifecycle"
	"github.com/charkitch/general-apportionment/logger"
)

// options are the flags shared by every reconciling command.
type options struct {
	configFile    string
	apportionment []string
	execution     []string
	sheet         string
	reference     string
	agency        string
	cumulative    bool
	verbose       bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "lifecycle",
		Short: "Reconcile apportioned budget authority against obligations and outlays",
		Long: `lifecycle joins OMB apportionment data with the account-balance bulk
feed on the full Treasury account symbol and reports, per account and
availability window, apportionment, cumulative obligations and outlays,
match status and execution rates.

Example Usage:
  lifecycle reconcile -a apportionment.xlsx -e FY2024P12.csv -e FY2025P06.csv
  lifecycle validate --config configs/config.yaml
  lifecycle rollup --by fund_type --config configs/config.yaml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Path to the YAML configuration file")
	pf.StringSliceVarP(&opts.apportionment, "apportionment", "a", nil, "Apportionment file (csv, xlsx or schedule json); repeatable")
	pf.StringSliceVarP(&opts.execution, "execution", "e", nil, "Account-balance file (csv or xlsx); repeatable")
	pf.StringVar(&opts.sheet, "sheet", "", "Workbook sheet to read (default: first sheet)")
	pf.StringVar(&opts.reference, "reference", "", "Reference YAML (default: built-in DHS reference)")
	pf.StringVar(&opts.agency, "agency", "", "Keep only this three-digit agency code")
	pf.BoolVar(&opts.cumulative, "cumulative-periods", false, "Treat balances as year-to-date and keep only the latest period")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newReconcileCommand(opts),
		newValidateCommand(opts),
		newRollupCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// SHARED PIPELINE
// =============================================================================

// session is everything a reconciling command needs.
type session struct {
	cfg     config.Config
	logger  *zap.Logger
	engine  *lifecycle.Engine
	sources ingest.Sources
}

func (o *options) session() (*session, error) {
	cfg, err := config.Load(o.configFile, o.configFile == "")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Log.Output = "stderr"
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	sources := ingest.Sources{
		Apportionment: cfg.Sources.Apportionment,
		Execution:     cfg.Sources.Execution,
		Sheet:         cfg.Sources.Sheet,
	}
	if len(o.apportionment) > 0 {
		sources.Apportionment = o.apportionment
	}
	if len(o.execution) > 0 {
		sources.Execution = o.execution
	}
	if o.sheet != "" {
		sources.Sheet = o.sheet
	}
	if len(sources.Apportionment) == 0 && len(sources.Execution) == 0 {
		return nil, fmt.Errorf("no source files: pass --apportionment/--execution or set sources in the config")
	}

	refPath := cfg.Reference.Path
	if o.reference != "" {
		refPath = o.reference
	}
	agency := cfg.Engine.Agency
	if o.agency != "" {
		agency = o.agency
	}
	ref, err := factory.ResolveReference(refPath, agency, cfg.Engine.CumulativePeriods || o.cumulative)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:     cfg,
		logger:  log,
		engine:  lifecycle.NewEngine(ref),
		sources: sources,
	}, nil
}

// reconcile loads the sources and runs the engine. A run without records
// is an error.
func (s *session) reconcile(ctx context.Context) (*lifecycle.Result, *ingest.Report, error) {
	start := time.Now()
	in, report, err := ingest.NewLoader(s.logger).Load(ctx, s.sources)
	if err != nil {
		return nil, nil, err
	}

	res, err := s.engine.Run(in)
	if err != nil {
		return nil, report, err
	}

	d := res.Diagnostics
	s.logger.Info("reconciliation complete",
		zap.Int("records", len(res.Records)),
		zap.Int("matched", d.Matched),
		zap.Int("apportionment_only", d.ApportionmentOnly),
		zap.Int("execution_only", d.ExecutionOnly),
		zap.Int("dropped_rows", d.DroppedRows()),
		zap.Int("skipped_cells", report.Skipped()),
		zap.Duration("elapsed", time.Since(start)))
	for _, nm := range d.NearMisses {
		s.logger.Warn("near miss",
			zap.Stringer("account", nm.Identifier),
			zap.String("status", string(nm.Status)),
			zap.Int("candidates", len(nm.Candidates)))
	}

	if err := res.Validate(); err != nil {
		return res, report, err
	}
	return res, report, nil
}
