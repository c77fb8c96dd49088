package export

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flight_tracker/internal/storage"
)

func ptr(v float64) *float64 { return &v }

func sampleFlights() []storage.Flight {
	ts := time.Date(2026, 1, 27, 12, 0, 0, 0, time.UTC)
	return []storage.Flight{
		{
			FlightID:  "4b1815",
			Latitude:  ptr(47.4511),
			Longitude: ptr(8.5432),
			Altitude:  10972.8,
			Speed:     ptr(231.4),
			Heading:   ptr(87),
			Timestamp: ts,
			RawData:   map[string]any{"callsign": "SWR123  "},
		},
		{
			FlightID:  "a0b1c2",
			Altitude:  0,
			Timestamp: ts.Add(-time.Minute),
		},
	}
}

func TestWriteKML(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteKML(&buf, sampleFlights())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "flights without a position are skipped")

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, xml.Header))
	assert.Contains(t, out, `<kml xmlns="http://www.opengis.net/kml/2.2">`)
	assert.Contains(t, out, "<coordinates>8.543200,47.451100,10972.8</coordinates>")
	assert.Contains(t, out, "<name>SWR123 (4b1815)</name>")
	assert.Contains(t, out, "<when>2026-01-27T12:00:00Z</when>")
	assert.NotContains(t, out, "a0b1c2")

	var doc kmlRoot
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Document.Placemarks, 1)
	assert.Equal(t, "#aircraftStyle", doc.Document.Placemarks[0].StyleURL)
}

func TestWriteKMLEmpty(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteKML(&buf, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, buf.String(), "0 aircraft")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleFlights()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"4b1815", "SWR123", "47.4511", "8.5432", "10972.8", "231.4", "87", "2026-01-27T12:00:00Z", ""}, rows[1])
	assert.Equal(t, []string{"a0b1c2", "", "", "", "0", "", "", "2026-01-27T11:59:00Z", ""}, rows[2])
}
