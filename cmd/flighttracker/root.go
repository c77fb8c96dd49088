package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"flight_tracker/internal/config"
	"flight_tracker/internal/logging"
	"flight_tracker/internal/metrics"
	"flight_tracker/internal/notify"
	"flight_tracker/internal/reconcile"
	"flight_tracker/internal/source"
	"flight_tracker/internal/storage"
)

// app carries what every subcommand needs once settings are resolved.
type app struct {
	configPath  string
	logLevel    string
	databaseURL string

	settings *config.Settings
	logger   zerolog.Logger
}

func rootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "flighttracker",
		Short:         "Mirror a live aircraft state feed into a database and serve it",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML config file (default ./flighttracker.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log.level")
	rootCmd.PersistentFlags().StringVar(&a.databaseURL, "database-url", "", "Override database.url")

	rootCmd.AddCommand(
		syncCommand(a),
		serveCommand(a),
		migrateCommand(a),
		exportCommand(a),
		runsCommand(a),
	)

	return rootCmd
}

// initialize loads settings and builds the root logger. Flags take
// precedence over the file and the environment.
func (a *app) initialize() error {
	settings, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		settings.Log.Level = a.logLevel
	}
	if a.databaseURL != "" {
		settings.Database.URL = a.databaseURL
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(settings.Log.Level, settings.Log.Format)
	if err != nil {
		return err
	}

	a.settings = settings
	a.logger = logger
	return nil
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	store, err := storage.Open(ctx, a.settings.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open flight store: %w", err)
	}
	return store, nil
}

// openRunLog connects to ClickHouse. It returns nil when no address is set.
func (a *app) openRunLog(ctx context.Context) (*storage.ClickHouseDB, error) {
	ch := a.settings.ClickHouse
	if ch.Addr == "" {
		return nil, nil
	}
	db, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
		Addr:     ch.Addr,
		Database: ch.Database,
		User:     ch.User,
		Password: ch.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return db, nil
}

// pipeline is a reconciler plus the resources its hooks hold open.
type pipeline struct {
	reconciler *reconcile.Reconciler
	closers    []func()
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// newPipeline wires the fetcher, the store and every configured run hook.
// m may be nil.
func (a *app) newPipeline(ctx context.Context, store storage.Store, m *metrics.SyncMetrics) (*pipeline, error) {
	p := &pipeline{}
	var hooks []reconcile.RunHook

	if m != nil {
		hooks = append(hooks, m)
	}

	runLog, err := a.openRunLog(ctx)
	if err != nil {
		return nil, err
	}
	if runLog != nil {
		p.closers = append(p.closers, func() { _ = runLog.Close() })
		hooks = append(hooks, reconcile.NewAuditHook(runLog))
	}

	if url := a.settings.NATS.URL; url != "" {
		nc, err := notify.Connect(url, logging.Component(a.logger, "notify"))
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, func() { _ = nc.Drain() })
		hooks = append(hooks, notify.New(nc, a.settings.NATS.Subject, logging.Component(a.logger, "notify")))
	}

	src := a.settings.Source
	client := source.NewClient(source.Config{
		URL:        src.URL,
		APIKey:     src.APIKey,
		AuthScheme: src.AuthScheme,
		Timeout:    src.Timeout,
	}, logging.Component(a.logger, "source"))

	p.reconciler = reconcile.New(reconcile.Config{
		Strategy: a.settings.Strategy(),
		Limit:    a.settings.Sync.Limit,
		DataKey:  src.DataKey,
	}, client, store, logging.Component(a.logger, "reconcile"), hooks...)

	return p, nil
}
