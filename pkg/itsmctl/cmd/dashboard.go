package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telekom/itsmctl/pkg/itsmctl/client"
	"github.com/telekom/itsmctl/pkg/itsmctl/output"
)

// dashboardSections is the number of sections Aggregate loads.
const dashboardSections = 7

func NewDashboardCommand() *cobra.Command {
	opts := client.AggregateOptions{Days: 7, Months: 6, Limit: 10}
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show KPIs, trends and recent activity in one view",
		Long: `Loads every dashboard section in parallel. Sections that fail are
reported as warnings and the rest is still printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, c, err := clientFor(cmd)
			if err != nil {
				return err
			}
			d, err := c.Dashboard().Aggregate(cmd.Context(), opts)
			if err != nil && len(d.Errors) >= dashboardSections {
				return fmt.Errorf("dashboard unavailable: %w", err)
			}
			format := rt.OutputFormat()
			if format.Structured() {
				if err := output.WriteObject(rt.Writer(), format, d); err != nil {
					return err
				}
				output.WriteWarnings(rt.ErrWriter(), d.Errors)
				return nil
			}
			output.WriteDashboard(rt.Writer(), d)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Days, "days", opts.Days, "Days of ticket trend")
	cmd.Flags().IntVar(&opts.Months, "months", opts.Months, "Months of satisfaction data")
	cmd.Flags().IntVar(&opts.Limit, "limit", opts.Limit, "Number of recent activities")
	return cmd
}
