package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Addr     string // host:port of the native protocol listener.
	Database string
	User     string
	Password string
}

// SyncRun is one row of the run audit log. Positions are never stored here.
type SyncRun struct {
	RunID           uuid.UUID
	Strategy        string
	Success         bool
	Message         string
	Created         int
	Deleted         int
	Updated         int
	Processed       int
	TotalFromSource *int
	StartedAt       time.Time
	Duration        time.Duration
}

// ClickHouseDB wraps a ClickHouse connection for the run audit log.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the sync_runs table.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_runs (
		run_id            UUID,
		strategy          LowCardinality(String),
		success           Bool,
		message           String,
		created           UInt32,
		deleted           UInt32,
		updated           UInt32,
		processed         UInt32,
		total_from_source Nullable(UInt32),
		started_at        DateTime64(3, 'UTC'),
		duration_ms       UInt32,
		recorded_at       DateTime64(3, 'UTC') DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(started_at)
	ORDER BY (started_at, run_id)
	TTL toDateTime(started_at) + INTERVAL 90 DAY
	`

	if err := d.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create sync_runs: %w", err)
	}
	return nil
}

// InsertRun appends one run to the audit log.
func (d *ClickHouseDB) InsertRun(ctx context.Context, r SyncRun) error {
	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO sync_runs (run_id, strategy, success, message, created, deleted, updated, processed, total_from_source, started_at, duration_ms)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	var total *uint32
	if r.TotalFromSource != nil {
		v := uint32(*r.TotalFromSource)
		total = &v
	}

	err = batch.Append(
		r.RunID,
		r.Strategy,
		r.Success,
		r.Message,
		uint32(r.Created),
		uint32(r.Deleted),
		uint32(r.Updated),
		uint32(r.Processed),
		total,
		r.StartedAt.UTC(),
		uint32(r.Duration.Milliseconds()),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (d *ClickHouseDB) ListRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := d.conn.Query(ctx, `
		SELECT run_id, strategy, success, message, created, deleted, updated, processed, total_from_source, started_at, duration_ms
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync_runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []SyncRun
	for rows.Next() {
		var (
			r                                    SyncRun
			created, deleted, updated, processed uint32
			total                                *uint32
			durationMS                           uint32
		)
		if err := rows.Scan(&r.RunID, &r.Strategy, &r.Success, &r.Message,
			&created, &deleted, &updated, &processed, &total, &r.StartedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan sync_runs: %w", err)
		}

		r.Created = int(created)
		r.Deleted = int(deleted)
		r.Updated = int(updated)
		r.Processed = int(processed)
		if total != nil {
			v := int(*total)
			r.TotalFromSource = &v
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
