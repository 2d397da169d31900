package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charkitch/general-apportionment/lifecycle"
)

// ErrWarnings is returned by validate --strict when the run has unmatched
// or dropped rows.
var ErrWarnings = errors.New("reconciliation has warnings")

func newValidateCommand(opts *options) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Reconcile the sources and print diagnostics only",
		Long: `Runs the full reconciliation and prints the diagnostics object:
matched and unmatched counts, dropped rows, superseded iterations,
duplicate snapshots and near misses. Exits non-zero when the run produces
no records, or with --strict when anything is unmatched or dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.session()
			if err != nil {
				return err
			}
			defer s.logger.Sync()

			res, report, err := s.reconcile(cmd.Context())
			if err != nil {
				return err
			}

			diag := lifecycle.ReportDiagnostics(res.Diagnostics)
			out := struct {
				lifecycle.DiagnosticsReport
				SkippedCells int `json:"skipped_cells"`
			}{diag, report.Skipped()}
			if err := writeDocument(cmd.OutOrStdout(), "", true, out); err != nil {
				return err
			}

			if strict && diag.Warning {
				return fmt.Errorf("%w: %d unmatched, %d dropped", ErrWarnings,
					res.Diagnostics.Unmatched(), res.Diagnostics.DroppedRows())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when any record is unmatched or any row is dropped")
	return cmd
}
