package statevector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"flight_tracker/internal/storage"
)

var (
	// ErrMissingID is returned for records whose identifier is empty or blank.
	ErrMissingID = errors.New("missing flight_id")
	// ErrShortRecord is returned when a position the normaliser needs is absent.
	ErrShortRecord = errors.New("record too short")
)

// Epoch seconds representable as a calendar date between years 1 and 9999.
const (
	minEpoch = -62135596800
	maxEpoch = 253402300799
)

// Normaliser converts raw records into flights.
type Normaliser struct {
	Now func() time.Time
	Log zerolog.Logger
}

// NewNormaliser returns a Normaliser using the wall clock.
func NewNormaliser(log zerolog.Logger) *Normaliser {
	return &Normaliser{Now: time.Now, Log: log}
}

// Normalise converts rec using the wall clock and no logging.
func Normalise(rec Record) (*storage.Flight, error) {
	return NewNormaliser(zerolog.Nop()).Normalise(rec)
}

// Normalise converts one raw record. A non-nil error means the record must be
// dropped; the flight is nil in that case.
//
// Positions are read lazily: last_contact is only consulted when time_position
// is falsy, geo_altitude only when baro_altitude is falsy. A short record is
// rejected only if one of the positions actually read is missing.
func (n *Normaliser) Normalise(rec Record) (*storage.Flight, error) {
	r := reader{rec: rec}

	rawID, err := r.at(IdxICAO24)
	if err != nil {
		return nil, err
	}
	if !truthy(rawID) {
		return nil, ErrMissingID
	}
	flightID := strings.TrimSpace(idString(rawID))
	if flightID == "" {
		return nil, ErrMissingID
	}

	rawTS, err := r.first(IdxTimePosition, IdxLastContact)
	if err != nil {
		return nil, err
	}
	timestamp := n.now()
	if truthy(rawTS) {
		if ts, ok := parseEpoch(rawTS); ok {
			timestamp = ts
		} else {
			n.Log.Warn().
				Str("flight_id", flightID).
				Interface("raw_timestamp", rawTS).
				Msg("could not parse timestamp, using current time")
		}
	}

	latitude, err := r.optionalFloat(IdxLatitude)
	if err != nil {
		return nil, err
	}
	longitude, err := r.optionalFloat(IdxLongitude)
	if err != nil {
		return nil, err
	}

	// A zero barometric altitude falls through to geo altitude, same as null.
	rawAlt, err := r.first(IdxBaroAltitude, IdxGeoAltitude)
	if err != nil {
		return nil, err
	}
	altitude := 0.0
	if truthy(rawAlt) {
		if altitude, err = asFloat(rawAlt); err != nil {
			return nil, fmt.Errorf("altitude: %w", err)
		}
	}

	speed, err := r.optionalFloat(IdxVelocity)
	if err != nil {
		return nil, err
	}
	heading, err := r.optionalFloat(IdxTrueTrack)
	if err != nil {
		return nil, err
	}

	return &storage.Flight{
		FlightID:  flightID,
		Latitude:  latitude,
		Longitude: longitude,
		Altitude:  altitude,
		Speed:     speed,
		Heading:   heading,
		Timestamp: timestamp,
		RawData:   rec.Named(),
	}, nil
}

func (n *Normaliser) now() time.Time {
	if n.Now == nil {
		return time.Now().UTC()
	}
	return n.Now().UTC()
}

// Identifier returns the record's identifier for log lines, or "N/A".
func Identifier(rec Record) string {
	if len(rec) == 0 || rec[IdxICAO24] == nil {
		return "N/A"
	}
	return strings.TrimSpace(idString(rec[IdxICAO24]))
}

type reader struct {
	rec Record
}

func (r reader) at(i int) (any, error) {
	if i >= len(r.rec) {
		return nil, fmt.Errorf("%w: no %s at position %d (length %d)", ErrShortRecord, FieldNames[i], i, len(r.rec))
	}
	return r.rec[i], nil
}

// first returns the value at primary if truthy, otherwise the value at fallback.
func (r reader) first(primary, fallback int) (any, error) {
	v, err := r.at(primary)
	if err != nil {
		return nil, err
	}
	if truthy(v) {
		return v, nil
	}
	return r.at(fallback)
}

func (r reader) optionalFloat(i int) (*float64, error) {
	v, err := r.at(i)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	f, err := asFloat(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FieldNames[i], err)
	}
	return &f, nil
}

// truthy mirrors the loose truth test the upstream feed was designed around:
// null, false, zero, "" and empty containers are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t != ""
		}
		return f != 0
	case float64:
		return t != 0
	case float32:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(t)
	}
}

// asFloat converts a loosely typed value. NaN and infinities are rejected
// since no store column can hold them.
func asFloat(v any) (float64, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", v)
	}
	return f, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case json.Number:
		return t.Float64()
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

// parseEpoch converts an epoch-seconds value to UTC. Fractional numbers are
// truncated; strings must hold an integer.
func parseEpoch(v any) (time.Time, bool) {
	var secs int64
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			secs = i
		} else if f, err := t.Float64(); err == nil && inRange(f) {
			secs = int64(math.Trunc(f))
		} else {
			return time.Time{}, false
		}
	case float64:
		if !inRange(t) {
			return time.Time{}, false
		}
		secs = int64(math.Trunc(t))
	case int:
		secs = int64(t)
	case int64:
		secs = t
	case bool:
		if t {
			secs = 1
		}
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		secs = i
	default:
		return time.Time{}, false
	}

	if secs < minEpoch || secs > maxEpoch {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}

func inRange(f float64) bool {
	return !math.IsNaN(f) && f >= minEpoch && f <= maxEpoch
}
