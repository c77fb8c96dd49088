package main

import (
	"github.com/spf13/cobra"
)

func migrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the flight table and, if configured, the ClickHouse run log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.CreateSchema(ctx); err != nil {
				return err
			}
			a.logger.Info().Msg("flight schema ready")

			runLog, err := a.openRunLog(ctx)
			if err != nil {
				return err
			}
			if runLog == nil {
				return nil
			}
			defer runLog.Close()

			if err := runLog.CreateSchema(ctx); err != nil {
				return err
			}
			a.logger.Info().Str("addr", a.settings.ClickHouse.Addr).Msg("run log schema ready")
			return nil
		},
	}
}
