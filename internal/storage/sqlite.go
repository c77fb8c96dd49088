// Package storage persists current flight positions and sync run history.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Fixed-width UTC layout so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteDB wraps a SQLite database holding the flight table.
type SQLiteDB struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates a SQLite database at the given path.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteDB, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: in-memory databases are per-connection, and SQLite
	// allows a single writer anyway.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteDB{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

// CreateSchema creates the database tables and indices.
func (d *SQLiteDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS flight_data (
		flight_id TEXT PRIMARY KEY CHECK (trim(flight_id) <> '' AND length(flight_id) <= 100),
		latitude REAL,
		longitude REAL,
		altitude REAL NOT NULL DEFAULT 0,
		speed REAL,
		heading REAL,
		timestamp TEXT NOT NULL,
		raw_data TEXT,
		last_updated_by_system TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_flight_data_timestamp ON flight_data(timestamp DESC);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const sqliteInsertFlight = `
	INSERT INTO flight_data (flight_id, latitude, longitude, altitude, speed, heading, timestamp, raw_data, last_updated_by_system)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ReplaceFlights deletes every row and inserts flights in one transaction.
// On any error the transaction is rolled back and the table is unchanged.
func (d *SQLiteDB) ReplaceFlights(ctx context.Context, flights []Flight) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM flight_data`)
	if err != nil {
		return 0, fmt.Errorf("delete flights: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete flights: %w", err)
	}

	if len(flights) > 0 {
		stmt, err := tx.PrepareContext(ctx, sqliteInsertFlight)
		if err != nil {
			return 0, fmt.Errorf("prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		stamp := d.stamp()
		for _, f := range flights {
			args, err := sqliteFlightArgs(f, stamp)
			if err != nil {
				return 0, err
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return 0, fmt.Errorf("insert flight %s: %w", f.FlightID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(deleted), nil
}

// UpsertFlight inserts f or overwrites every column of the existing row with the
// same flight_id. It reports whether a new row was created.
func (d *SQLiteDB) UpsertFlight(ctx context.Context, f Flight) (bool, error) {
	args, err := sqliteFlightArgs(f, d.stamp())
	if err != nil {
		return false, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM flight_data WHERE flight_id = ?`, f.FlightID).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup flight %s: %w", f.FlightID, err)
	}

	_, err = tx.ExecContext(ctx, sqliteInsertFlight+`
		ON CONFLICT (flight_id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			altitude = excluded.altitude,
			speed = excluded.speed,
			heading = excluded.heading,
			timestamp = excluded.timestamp,
			raw_data = excluded.raw_data,
			last_updated_by_system = excluded.last_updated_by_system`, args...)
	if err != nil {
		return false, fmt.Errorf("upsert flight %s: %w", f.FlightID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return exists == 0, nil
}

// GetFlight retrieves a flight by ID. Returns nil, nil if it does not exist.
func (d *SQLiteDB) GetFlight(ctx context.Context, flightID string) (*Flight, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT flight_id, latitude, longitude, altitude, speed, heading, timestamp, raw_data, last_updated_by_system
		FROM flight_data WHERE flight_id = ?`, flightID)

	f, err := scanSQLiteFlight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListFlights returns flights newest first. A limit of zero or less returns all rows.
func (d *SQLiteDB) ListFlights(ctx context.Context, limit, offset int) ([]Flight, error) {
	if limit <= 0 {
		limit, offset = -1, 0
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT flight_id, latitude, longitude, altitude, speed, heading, timestamp, raw_data, last_updated_by_system
		FROM flight_data
		ORDER BY timestamp DESC, flight_id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query flights: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var flights []Flight
	for rows.Next() {
		f, err := scanSQLiteFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, *f)
	}
	return flights, rows.Err()
}

// CountFlights returns the number of stored flights.
func (d *SQLiteDB) CountFlights(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flight_data`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count flights: %w", err)
	}
	return n, nil
}

func (d *SQLiteDB) stamp() string {
	return d.now().UTC().Format(sqliteTimeLayout)
}

func sqliteFlightArgs(f Flight, stamp string) ([]any, error) {
	raw, err := json.Marshal(f.RawData)
	if err != nil {
		return nil, fmt.Errorf("marshal raw_data for %s: %w", f.FlightID, err)
	}
	return []any{
		f.FlightID,
		nullFloat(f.Latitude),
		nullFloat(f.Longitude),
		f.Altitude,
		nullFloat(f.Speed),
		nullFloat(f.Heading),
		f.Timestamp.UTC().Format(sqliteTimeLayout),
		string(raw),
		stamp,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteFlight(row rowScanner) (*Flight, error) {
	var f Flight
	var lat, lon, speed, heading sql.NullFloat64
	var ts, updated string
	var raw sql.NullString

	err := row.Scan(&f.FlightID, &lat, &lon, &f.Altitude, &speed, &heading, &ts, &raw, &updated)
	if err != nil {
		return nil, err
	}

	f.Latitude = floatPtr(lat)
	f.Longitude = floatPtr(lon)
	f.Speed = floatPtr(speed)
	f.Heading = floatPtr(heading)

	if f.Timestamp, err = time.Parse(sqliteTimeLayout, ts); err != nil {
		return nil, fmt.Errorf("parse timestamp for %s: %w", f.FlightID, err)
	}
	if f.LastUpdatedBySystem, err = time.Parse(sqliteTimeLayout, updated); err != nil {
		return nil, fmt.Errorf("parse last_updated_by_system for %s: %w", f.FlightID, err)
	}
	f.Timestamp = f.Timestamp.UTC()
	f.LastUpdatedBySystem = f.LastUpdatedBySystem.UTC()

	if raw.Valid {
		if f.RawData, err = decodeRawData([]byte(raw.String)); err != nil {
			return nil, fmt.Errorf("decode raw_data for %s: %w", f.FlightID, err)
		}
	}
	return &f, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
