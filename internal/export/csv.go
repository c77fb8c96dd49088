package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"flight_tracker/internal/storage"
)

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{
	"flight_id", "callsign", "latitude", "longitude", "altitude",
	"speed", "heading", "timestamp", "last_updated_by_system",
}

// WriteCSV writes a header and one row per flight. Unknown values are empty.
func WriteCSV(w io.Writer, flights []storage.Flight) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(CSVHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, f := range flights {
		updated := ""
		if !f.LastUpdatedBySystem.IsZero() {
			updated = f.LastUpdatedBySystem.UTC().Format(time.RFC3339)
		}
		row := []string{
			f.FlightID,
			Callsign(f),
			formatOptional(f.Latitude),
			formatOptional(f.Longitude),
			formatFloat(f.Altitude),
			formatOptional(f.Speed),
			formatOptional(f.Heading),
			f.Timestamp.UTC().Format(time.RFC3339),
			updated,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", f.FlightID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// Callsign returns the trimmed callsign from raw_data, or "".
func Callsign(f storage.Flight) string {
	cs, ok := f.RawData["callsign"].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(cs)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
