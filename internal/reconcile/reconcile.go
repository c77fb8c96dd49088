// Package reconcile runs one pass of fetch, extract, normalise and apply
// against the flight store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flight_tracker/internal/statevector"
	"flight_tracker/internal/storage"
)

// DefaultLimit is the per-run processing ceiling.
const DefaultLimit = 350

// Strategy selects how normalised flights are applied to the store.
type Strategy string

const (
	// StrategyReplace deletes every flight and bulk inserts the new snapshot
	// in one transaction.
	StrategyReplace Strategy = "replace"
	// StrategyUpsert creates or overwrites flights by flight_id. Flights
	// missing from the snapshot are kept.
	StrategyUpsert Strategy = "upsert"
)

// ParseStrategy validates a strategy name. Empty means replace.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyReplace:
		return StrategyReplace, nil
	case StrategyUpsert:
		return StrategyUpsert, nil
	default:
		return "", fmt.Errorf("unknown sync strategy %q (want %q or %q)", s, StrategyReplace, StrategyUpsert)
	}
}

// Fetcher retrieves the upstream document. Implemented by *source.Client.
type Fetcher interface {
	Fetch(ctx context.Context) (any, error)
}

// Store is the part of the flight table a run writes to.
type Store interface {
	ReplaceFlights(ctx context.Context, flights []storage.Flight) (int, error)
	UpsertFlight(ctx context.Context, f storage.Flight) (bool, error)
}

// Config controls a Reconciler.
type Config struct {
	Strategy Strategy
	Limit    int    // Records processed per run; DefaultLimit when zero.
	DataKey  string // Document key holding the record list; "states" when empty.
}

// Reconciler applies upstream snapshots to the store.
type Reconciler struct {
	cfg     Config
	fetcher Fetcher
	store   Store
	hooks   []RunHook
	norm    *statevector.Normaliser
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a Reconciler. Hooks are called in order after every run.
func New(cfg Config, fetcher Fetcher, store Store, logger zerolog.Logger, hooks ...RunHook) *Reconciler {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyReplace
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.DataKey == "" {
		cfg.DataKey = statevector.DefaultDataKey
	}

	return &Reconciler{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		hooks:   hooks,
		norm:    statevector.NewNormaliser(logger),
		logger:  logger,
		now:     time.Now,
	}
}

// Run performs one pass and reports its outcome. It never returns an error
// and never panics; failures are described by the summary.
func (r *Reconciler) Run(ctx context.Context) Summary {
	start := r.now()
	s := Summary{
		RunID:     uuid.New(),
		Strategy:  r.cfg.Strategy,
		StartedAt: start.UTC(),
	}
	log := r.logger.With().
		Str("run_id", s.RunID.String()).
		Str("strategy", string(s.Strategy)).
		Logger()

	log.Info().Msg("sync run started")
	r.execute(ctx, &s, log)
	s.Duration = r.now().Sub(start)

	if s.Success {
		ev := log.Info().
			Int("created", s.Created).
			Int("deleted", s.Deleted).
			Int("updated", s.Updated).
			Int("processed", s.Processed)
		if s.TotalFromSource != nil {
			ev = ev.Int("total_from_source", *s.TotalFromSource)
		}
		ev.Dur("duration", s.Duration).Msg(s.Message)
	} else {
		log.Error().Dur("duration", s.Duration).Msg(s.Message)
	}

	for _, h := range r.hooks {
		if err := h.RunCompleted(ctx, s); err != nil {
			log.Warn().Err(err).Str("hook", fmt.Sprintf("%T", h)).Msg("run hook failed")
		}
	}
	return s
}

func (r *Reconciler) execute(ctx context.Context, s *Summary, log zerolog.Logger) {
	defer func() {
		if p := recover(); p != nil {
			*s = Summary{RunID: s.RunID, Strategy: s.Strategy, StartedAt: s.StartedAt, TotalFromSource: s.TotalFromSource}
			s.Message = fmt.Sprintf("Unexpected error during update: %v", p)
		}
	}()

	doc, err := r.fetcher.Fetch(ctx)
	if err != nil {
		log.Error().Err(err).Msg("fetch failed")
		s.Message = fmt.Sprintf("Failed to fetch data from API (%v). Database not modified.", err)
		return
	}

	ext, err := statevector.Extract(doc, r.cfg.DataKey, log)
	if err != nil {
		var ee *statevector.ExtractionError
		if errors.As(err, &ee) && ee.Reason == statevector.ReasonNotList {
			s.Message = "Expected data from API is not a list. Database not modified."
		} else {
			log.Warn().Str("key", r.cfg.DataKey).Msg("source document does not contain the data key")
			s.Message = "API data structure not as expected. Database not modified."
		}
		return
	}
	total := ext.Total
	s.TotalFromSource = &total

	records := ext.Records
	if len(records) > r.cfg.Limit {
		records = records[:r.cfg.Limit]
	}
	if len(ext.Records) > 0 {
		log.Info().
			Int("total", ext.Total).
			Int("limit", r.cfg.Limit).
			Int("processing", len(records)).
			Msg("records extracted from source")
	}

	switch r.cfg.Strategy {
	case StrategyUpsert:
		r.upsert(ctx, s, records, log)
	default:
		r.replace(ctx, s, records, log)
	}
}

func (r *Reconciler) replace(ctx context.Context, s *Summary, records []statevector.Record, log zerolog.Logger) {
	flights := r.normaliseAll(records, log)
	s.Processed = len(flights)

	deleted, err := r.store.ReplaceFlights(ctx, flights)
	if err != nil {
		log.Error().Err(err).Int("flights", len(flights)).Msg("replace failed, transaction rolled back")
		s.Message = fmt.Sprintf("Error replacing flight data: %v. Database not modified.", err)
		return
	}
	s.Deleted = deleted

	if len(records) == 0 {
		log.Warn().Int("deleted", deleted).Msg("source returned no records, all previous flight data deleted")
		s.Success = true
		s.Message = "No new data items to process. All previous data deleted."
		return
	}

	s.Created = len(flights)
	s.Success = true
	s.Message = "Data update process finished (delete and reload)."
}

func (r *Reconciler) upsert(ctx context.Context, s *Summary, records []statevector.Record, log zerolog.Logger) {
	if len(records) == 0 {
		s.Success = true
		s.Message = "No new data items to process."
		return
	}

	for _, f := range r.normaliseAll(records, log) {
		if err := ctx.Err(); err != nil {
			s.Message = fmt.Sprintf("Sync interrupted: %v", err)
			return
		}
		s.Processed++

		created, err := r.store.UpsertFlight(ctx, f)
		if err != nil {
			log.Error().Err(err).Str("flight_id", f.FlightID).Msg("upsert failed, skipping record")
			continue
		}
		if created {
			s.Created++
		} else {
			s.Updated++
		}
	}

	s.Success = true
	s.Message = "Data update process finished (upsert)."
}

func (r *Reconciler) normaliseAll(records []statevector.Record, log zerolog.Logger) []storage.Flight {
	flights := make([]storage.Flight, 0, len(records))
	for _, rec := range records {
		f, err := r.norm.Normalise(rec)
		if err != nil {
			logDropped(log, rec, err)
			continue
		}
		flights = append(flights, *f)
	}
	return flights
}

func logDropped(log zerolog.Logger, rec statevector.Record, err error) {
	switch {
	case errors.Is(err, statevector.ErrMissingID):
		log.Warn().Msg("skipping record without flight_id")
	case errors.Is(err, statevector.ErrShortRecord):
		log.Error().Err(err).Int("length", len(rec)).Str("flight_id", statevector.Identifier(rec)).
			Msg("error processing record, array too short")
	default:
		log.Error().Err(err).Str("flight_id", statevector.Identifier(rec)).Msg("error processing record")
	}
}
