package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func syncCommand(a *app) *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass against the upstream feed",
		Long: `Fetch the upstream state vectors once, apply them to the flight store and
print the run summary as JSON. Exits non-zero when the pass fails.

Examples:
  flighttracker sync
  flighttracker sync --strategy upsert`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if strategy != "" {
				a.settings.Sync.Strategy = strategy
				if err := a.settings.Validate(); err != nil {
					return err
				}
			}

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.CreateSchema(ctx); err != nil {
				return err
			}

			p, err := a.newPipeline(ctx, store, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			summary := p.reconciler.Run(ctx)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			if !summary.Success {
				return errors.New(summary.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Override sync.strategy (replace or upsert)")
	return cmd
}
