package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/charkitch/general-apportionment/lifecycle"
)

func newRollupCommand(opts *options) *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Print totals and rates grouped along one dimension",
		Long: `Groups the reconciled records by sub_unit, account, availability_type,
fund_type, budget_category or match_status. Rates are recomputed from the
group totals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dim, err := lifecycle.ParseDimension(by)
			if err != nil {
				return err
			}

			s, err := opts.session()
			if err != nil {
				return err
			}
			defer s.logger.Sync()

			res, _, err := s.reconcile(cmd.Context())
			if err != nil {
				return err
			}

			rows, err := lifecycle.Rollup(res.Records, dim)
			if err != nil {
				return err
			}
			rows = append(rows, lifecycle.Totals(res.Records))

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintf(tw, "%s\trecords\tapportionment\tobligations\toutlays\tobligation_rate\toutlay_rate\texecution_rate\t\n", dim)
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
					r.Key, r.Records,
					r.Apportionment.StringFixed(2), r.Obligations.StringFixed(2), r.Outlays.StringFixed(2),
					r.Rates.ObligationRate.StringFixed(4), r.Rates.OutlayRate.StringFixed(4), r.Rates.ExecutionRate.StringFixed(4))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&by, "by", string(lifecycle.BySubUnit), "Rollup dimension")
	return cmd
}
