package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"flight_tracker/internal/api"
	"flight_tracker/internal/logging"
	"flight_tracker/internal/metrics"
	"flight_tracker/internal/reconcile"
	"flight_tracker/internal/scheduler"
)

func serveCommand(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the flight API and optionally sync on an interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if port > 0 {
				a.settings.API.Port = port
			}

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.CreateSchema(ctx); err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			syncMetrics, err := metrics.NewSyncMetrics(registry)
			if err != nil {
				return err
			}

			p, err := a.newPipeline(ctx, store, syncMetrics)
			if err != nil {
				return err
			}
			defer p.Close()

			trigger := reconcile.NewTrigger(p.reconciler)

			apiCfg := a.settings.API
			server := api.NewServer(store, api.Config{
				Port:        apiCfg.Port,
				AuthEnabled: apiCfg.AuthEnabled,
				APIKeys:     apiCfg.APIKeys,
				CacheTTL:    apiCfg.CacheTTL,
			}, logging.Component(a.logger, "api"),
				api.WithSyncTrigger(trigger),
				api.WithMetrics(syncMetrics.Handler()),
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Run(gctx)
			})
			if interval := a.settings.Sync.Interval; interval > 0 {
				sched := scheduler.New(trigger, interval, true, logging.Component(a.logger, "scheduler"))
				g.Go(func() error {
					sched.Run(gctx)
					return nil
				})
			}

			err = g.Wait()
			a.logger.Info().Msg("flight API stopped")
			return err
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Override api.port")
	return cmd
}
