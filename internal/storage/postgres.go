package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	URL string // postgres:// connection URL, as accepted by pgx.
}

// PostgresDB wraps a PostgreSQL connection pool holding the flight table.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgres URL is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() error {
	d.pool.Close()
	return nil
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	-- Current flight positions, one row per aircraft.
	CREATE TABLE IF NOT EXISTS flight_data (
		flight_id               VARCHAR(100) PRIMARY KEY CHECK (btrim(flight_id) <> ''),
		latitude                DOUBLE PRECISION,
		longitude               DOUBLE PRECISION,
		altitude                DOUBLE PRECISION NOT NULL DEFAULT 0,
		speed                   DOUBLE PRECISION,
		heading                 DOUBLE PRECISION,
		timestamp               TIMESTAMPTZ NOT NULL,
		raw_data                JSONB,
		last_updated_by_system  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_flight_data_timestamp ON flight_data(timestamp DESC);
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

var flightCopyColumns = []string{
	"flight_id", "latitude", "longitude", "altitude", "speed", "heading", "timestamp", "raw_data",
}

// ReplaceFlights deletes every row and bulk inserts flights in one transaction.
// On any error the transaction is rolled back and the table is unchanged.
func (d *PostgresDB) ReplaceFlights(ctx context.Context, flights []Flight) (int, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM flight_data`)
	if err != nil {
		return 0, fmt.Errorf("delete flights: %w", err)
	}
	deleted := int(tag.RowsAffected())

	if len(flights) > 0 {
		rows := make([][]any, 0, len(flights))
		for _, f := range flights {
			raw, err := json.Marshal(f.RawData)
			if err != nil {
				return 0, fmt.Errorf("marshal raw_data for %s: %w", f.FlightID, err)
			}
			rows = append(rows, []any{
				f.FlightID, f.Latitude, f.Longitude, f.Altitude, f.Speed, f.Heading, f.Timestamp.UTC(), raw,
			})
		}

		// last_updated_by_system is filled by the column default.
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"flight_data"}, flightCopyColumns, pgx.CopyFromRows(rows)); err != nil {
			return 0, fmt.Errorf("bulk insert flights: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return deleted, nil
}

// UpsertFlight inserts f or overwrites every column of the existing row with the
// same flight_id. It reports whether a new row was created.
func (d *PostgresDB) UpsertFlight(ctx context.Context, f Flight) (bool, error) {
	raw, err := json.Marshal(f.RawData)
	if err != nil {
		return false, fmt.Errorf("marshal raw_data: %w", err)
	}

	var created bool
	err = d.pool.QueryRow(ctx, `
		INSERT INTO flight_data (flight_id, latitude, longitude, altitude, speed, heading, timestamp, raw_data, last_updated_by_system)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (flight_id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			altitude = EXCLUDED.altitude,
			speed = EXCLUDED.speed,
			heading = EXCLUDED.heading,
			timestamp = EXCLUDED.timestamp,
			raw_data = EXCLUDED.raw_data,
			last_updated_by_system = NOW()
		RETURNING (xmax = 0)
	`, f.FlightID, f.Latitude, f.Longitude, f.Altitude, f.Speed, f.Heading, f.Timestamp.UTC(), raw).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert flight %s: %w", f.FlightID, err)
	}
	return created, nil
}

// GetFlight retrieves a flight by ID. Returns nil, nil if it does not exist.
func (d *PostgresDB) GetFlight(ctx context.Context, flightID string) (*Flight, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT flight_id, latitude, longitude, altitude, speed, heading, timestamp, raw_data, last_updated_by_system
		FROM flight_data WHERE flight_id = $1
	`, flightID)

	f, err := scanPostgresFlight(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListFlights returns flights newest first. A limit of zero or less returns all rows.
func (d *PostgresDB) ListFlights(ctx context.Context, limit, offset int) ([]Flight, error) {
	query := `
		SELECT flight_id, latitude, longitude, altitude, speed, heading, timestamp, raw_data, last_updated_by_system
		FROM flight_data
		ORDER BY timestamp DESC, flight_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query flights: %w", err)
	}
	defer rows.Close()

	var flights []Flight
	for rows.Next() {
		f, err := scanPostgresFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, *f)
	}
	return flights, rows.Err()
}

// CountFlights returns the number of stored flights.
func (d *PostgresDB) CountFlights(ctx context.Context) (int, error) {
	var n int
	if err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM flight_data`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count flights: %w", err)
	}
	return n, nil
}

// Pool returns the underlying connection pool for advanced operations.
func (d *PostgresDB) Pool() *pgxpool.Pool {
	return d.pool
}

func scanPostgresFlight(row pgx.Row) (*Flight, error) {
	var f Flight
	var raw []byte
	err := row.Scan(&f.FlightID, &f.Latitude, &f.Longitude, &f.Altitude, &f.Speed, &f.Heading,
		&f.Timestamp, &raw, &f.LastUpdatedBySystem)
	if err != nil {
		return nil, err
	}
	if f.RawData, err = decodeRawData(raw); err != nil {
		return nil, fmt.Errorf("decode raw_data for %s: %w", f.FlightID, err)
	}
	f.Timestamp = f.Timestamp.UTC()
	f.LastUpdatedBySystem = f.LastUpdatedBySystem.UTC()
	return &f, nil
}
