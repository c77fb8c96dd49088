package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Store is the flight table as seen by the reconciler, the API and the CLI.
// Both the PostgreSQL and SQLite backends implement it.
type Store interface {
	CreateSchema(ctx context.Context) error
	ReplaceFlights(ctx context.Context, flights []Flight) (int, error)
	UpsertFlight(ctx context.Context, f Flight) (bool, error)
	GetFlight(ctx context.Context, flightID string) (*Flight, error)
	ListFlights(ctx context.Context, limit, offset int) ([]Flight, error)
	CountFlights(ctx context.Context) (int, error)
	Close() error
}

var (
	_ Store = (*PostgresDB)(nil)
	_ Store = (*SQLiteDB)(nil)
)

// Open picks a backend from the database URL:
//
//	postgres://... or postgresql://...  PostgreSQL
//	sqlite://path, sqlite://:memory:     SQLite
//	file:..., or a bare path             SQLite
func Open(ctx context.Context, databaseURL string) (Store, error) {
	switch {
	case databaseURL == "":
		return nil, fmt.Errorf("database URL is empty")

	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		pg, err := OpenPostgres(ctx, PostgresConfig{URL: databaseURL})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return pg, nil

	case strings.HasPrefix(databaseURL, "sqlite://"):
		return openSQLiteStore(strings.TrimPrefix(databaseURL, "sqlite://"))

	case strings.HasPrefix(databaseURL, "file:"):
		return openSQLiteStore(databaseURL)

	case strings.Contains(databaseURL, "://"):
		scheme, _, _ := strings.Cut(databaseURL, "://")
		return nil, fmt.Errorf("unsupported database scheme %q", scheme)

	default:
		return openSQLiteStore(databaseURL)
	}
}

func openSQLiteStore(path string) (Store, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return db, nil
}

// decodeRawData restores raw_data with integers kept as json.Number,
// matching how the fetcher decodes the upstream document.
func decodeRawData(raw []byte) (map[string]any, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}
