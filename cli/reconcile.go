package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charkitch/general-apportionment/lifecycle"
	"github.com/charkitch/general-apportionment/store/sqlite"
)

func newReconcileCommand(opts *options) *cobra.Command {
	var (
		output string
		pretty bool
		store  bool
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile the sources and write the output document",
		Long: `Loads both feeds, reconciles them on the full account identifier and
writes {metadata, records, diagnostics} as JSON. With --store the run is
also appended to the run history database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.session()
			if err != nil {
				return err
			}
			defer s.logger.Sync()

			res, _, err := s.reconcile(cmd.Context())
			if err != nil {
				return err
			}

			var doc lifecycle.Document
			if store {
				path := dbPath
				if path == "" {
					path = s.cfg.DB.Path
				}
				st, err := sqlite.New(path)
				if err != nil {
					return err
				}
				defer st.Close()

				run := lifecycle.NewRun(lifecycle.TriggerCLI, "cli", res, time.Now())
				if err := st.SaveRun(cmd.Context(), run); err != nil {
					return err
				}
				s.logger.Info("run stored", zap.String("run_id", run.ID), zap.String("db", path))
				doc = run.Document()
			} else {
				doc = lifecycle.NewDocument("", time.Now(), res.Records, res.Diagnostics)
			}

			return writeDocument(cmd.OutOrStdout(), output, pretty, doc)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the document to this file (default: stdout)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON output")
	cmd.Flags().BoolVar(&store, "store", false, "Append the run to the run history database")
	cmd.Flags().StringVar(&dbPath, "db", "", "Run history database (default: db.path from config)")
	return cmd
}

func writeDocument(stdout io.Writer, path string, pretty bool, v any) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
