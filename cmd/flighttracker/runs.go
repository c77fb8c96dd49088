package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func runsCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sync passes from the ClickHouse run log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			runLog, err := a.openRunLog(ctx)
			if err != nil {
				return err
			}
			if runLog == nil {
				return errors.New("clickhouse.addr is not configured")
			}
			defer runLog.Close()

			runs, err := runLog.ListRuns(ctx, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSTRATEGY\tOK\tCREATED\tDELETED\tUPDATED\tPROCESSED\tDURATION\tMESSAGE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\t%d\t%d\t%s\t%s\n",
					r.StartedAt.UTC().Format(time.RFC3339),
					r.Strategy,
					r.Success,
					r.Created,
					r.Deleted,
					r.Updated,
					r.Processed,
					r.Duration.Round(time.Millisecond),
					r.Message,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}
