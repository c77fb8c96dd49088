package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flight_tracker/internal/metrics"
	"flight_tracker/internal/reconcile"
	"flight_tracker/internal/storage"
)

func setupTestStore(t *testing.T, n int) *storage.SQLiteDB {
	t.Helper()
	db, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	require.NoError(t, db.CreateSchema(ctx))

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	flights := make([]storage.Flight, 0, n)
	for i := 0; i < n; i++ {
		lat, lon := 51.47, -0.45
		flights = append(flights, storage.Flight{
			FlightID:  fmt.Sprintf("4ca%03d", i),
			Latitude:  &lat,
			Longitude: &lon,
			Altitude:  float64(1000 * i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			RawData:   map[string]any{"callsign": fmt.Sprintf("EIN%d", i)},
		})
	}
	_, err = db.ReplaceFlights(ctx, flights)
	require.NoError(t, err)
	return db
}

func getJSON(t *testing.T, h http.Handler, target string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(setupTestStore(t, 0), Config{}, zerolog.Nop())

	rec, body := getJSON(t, srv.Router(), "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	srv := NewServer(setupTestStore(t, 0), Config{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/flightdata", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}

func TestListFlightsPagination(t *testing.T) {
	srv := NewServer(setupTestStore(t, 23), Config{}, zerolog.Nop())
	h := srv.Router()

	tests := []struct {
		name      string
		target    string
		wantFirst string
		wantLen   int
		wantNext  any
		wantPrev  any
	}{
		{
			name:      "first page",
			target:    "/api/v1/flightdata",
			wantFirst: "4ca022",
			wantLen:   10,
			wantNext:  "http://example.com/api/v1/flightdata?page=2",
			wantPrev:  nil,
		},
		{
			name:      "middle page",
			target:    "/api/v1/flightdata?page=2",
			wantFirst: "4ca012",
			wantLen:   10,
			wantNext:  "http://example.com/api/v1/flightdata?page=3",
			wantPrev:  "http://example.com/api/v1/flightdata",
		},
		{
			name:      "last page by keyword",
			target:    "/api/v1/flightdata?page=last",
			wantFirst: "4ca002",
			wantLen:   3,
			wantNext:  nil,
			wantPrev:  "http://example.com/api/v1/flightdata?page=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := getJSON(t, h, tt.target, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			assert.Equal(t, float64(23), body["count"])
			assert.Equal(t, tt.wantNext, body["next"])
			assert.Equal(t, tt.wantPrev, body["previous"])

			results := body["results"].([]any)
			require.Len(t, results, tt.wantLen)
			first := results[0].(map[string]any)
			assert.Equal(t, tt.wantFirst, first["flight_id"])
		})
	}
}

func TestListFlightsInvalidPage(t *testing.T) {
	srv := NewServer(setupTestStore(t, 5), Config{}, zerolog.Nop())
	h := srv.Router()

	for _, page := range []string{"0", "2", "abc", "-1"} {
		rec, body := getJSON(t, h, "/api/v1/flightdata?page="+page, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, "page=%s", page)
		assert.Equal(t, "Invalid page.", body["detail"])
	}
}

func TestListFlightsEmpty(t *testing.T) {
	srv := NewServer(setupTestStore(t, 0), Config{}, zerolog.Nop())

	rec, body := getJSON(t, srv.Router(), "/api/v1/flightdata", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["count"])
	assert.Nil(t, body["next"])
	assert.Empty(t, body["results"])
	assert.NotNil(t, body["results"])
}

func TestGetFlight(t *testing.T) {
	srv := NewServer(setupTestStore(t, 3), Config{}, zerolog.Nop())
	h := srv.Router()

	rec, body := getJSON(t, h, "/api/v1/flightdata/4ca001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4ca001", body["flight_id"])
	assert.Equal(t, float64(1000), body["altitude"])
	raw := body["raw_data"].(map[string]any)
	assert.Equal(t, "EIN1", raw["callsign"])

	rec, body = getJSON(t, h, "/api/v1/flightdata/nosuch", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found.", body["detail"])
}

type countingReader struct {
	FlightReader
	counts int
}

func (c *countingReader) CountFlights(ctx context.Context) (int, error) {
	c.counts++
	return c.FlightReader.CountFlights(ctx)
}

func TestResponseCache(t *testing.T) {
	reader := &countingReader{FlightReader: setupTestStore(t, 2)}
	srv := NewServer(reader, Config{CacheTTL: time.Minute}, zerolog.Nop())
	h := srv.Router()

	rec, _ := getJSON(t, h, "/api/v1/flightdata", nil)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))

	rec, body := getJSON(t, h, "/api/v1/flightdata", nil)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, 1, reader.counts)

	// A different Authorization header is a different cache entry.
	rec, _ = getJSON(t, h, "/api/v1/flightdata", map[string]string{"Authorization": "Bearer someone"})
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 2, reader.counts)

	// So is a different query string.
	rec, _ = getJSON(t, h, "/api/v1/flightdata?page=1", nil)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 3, reader.counts)
}

func TestResponseCacheSkipsErrors(t *testing.T) {
	srv := NewServer(setupTestStore(t, 1), Config{CacheTTL: time.Minute}, zerolog.Nop())
	h := srv.Router()

	rec, _ := getJSON(t, h, "/api/v1/flightdata/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = getJSON(t, h, "/api/v1/flightdata/missing", nil)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

type failingReader struct{}

func (failingReader) GetFlight(context.Context, string) (*storage.Flight, error) {
	return nil, errors.New("db down")
}

func (failingReader) ListFlights(context.Context, int, int) ([]storage.Flight, error) {
	return nil, errors.New("db down")
}

func (failingReader) CountFlights(context.Context) (int, error) {
	return 0, errors.New("db down")
}

func TestStoreErrors(t *testing.T) {
	srv := NewServer(failingReader{}, Config{}, zerolog.Nop())
	h := srv.Router()

	rec, body := getJSON(t, h, "/api/v1/flightdata", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "db down", body["error"])

	rec, _ = getJSON(t, h, "/api/v1/flightdata/abc", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakeTrigger struct {
	summary reconcile.Summary
	calls   int
}

func (f *fakeTrigger) Run(context.Context) (reconcile.Summary, bool) {
	f.calls++
	return f.summary, false
}

func postSync(h http.Handler, headers map[string]string, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync"+query, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSyncRequiresAuth(t *testing.T) {
	trig := &fakeTrigger{summary: reconcile.Summary{Success: true, Strategy: reconcile.StrategyReplace, Message: "ok"}}
	srv := NewServer(setupTestStore(t, 0), Config{AuthEnabled: true, APIKeys: []string{"secret"}}, zerolog.Nop(), WithSyncTrigger(trig))
	h := srv.Router()

	rec := postSync(h, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postSync(h, map[string]string{"X-API-Key": "wrong"}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, trig.calls)

	rec = postSync(h, map[string]string{"X-API-Key": "secret"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postSync(h, map[string]string{"Authorization": "Bearer secret"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postSync(h, nil, "?api_key=secret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, trig.calls)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ok", body["message"])
}

func TestSyncFailureIsBadGateway(t *testing.T) {
	trig := &fakeTrigger{summary: reconcile.Summary{Success: false, Message: "Failed to fetch data from API (boom). Database not modified."}}
	srv := NewServer(setupTestStore(t, 0), Config{AuthEnabled: true, APIKeys: []string{"secret"}}, zerolog.Nop(), WithSyncTrigger(trig))

	rec := postSync(srv.Router(), map[string]string{"X-API-Key": "secret"}, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Database not modified.")
}

func TestSyncNotMountedWithoutAuth(t *testing.T) {
	trig := &fakeTrigger{}
	srv := NewServer(setupTestStore(t, 0), Config{}, zerolog.Nop(), WithSyncTrigger(trig))

	rec := postSync(srv.Router(), nil, "")
	assert.NotEqual(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, trig.calls)
}

func TestMetricsEndpoint(t *testing.T) {
	m, err := metrics.NewSyncMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, m.RunCompleted(context.Background(), reconcile.Summary{Success: true, Strategy: reconcile.StrategyUpsert, Created: 2}))

	srv := NewServer(setupTestStore(t, 0), Config{}, zerolog.Nop(), WithMetrics(m.Handler()))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flighttracker_sync_runs_total")
}

type staticReader struct {
	flights []storage.Flight
}

func (s staticReader) GetFlight(_ context.Context, id string) (*storage.Flight, error) {
	for i := range s.flights {
		if s.flights[i].FlightID == id {
			return &s.flights[i], nil
		}
	}
	return nil, nil
}

func (s staticReader) ListFlights(context.Context, int, int) ([]storage.Flight, error) {
	return s.flights, nil
}

func (s staticReader) CountFlights(context.Context) (int, error) {
	return len(s.flights), nil
}

func TestUnencodableFlightIsServerError(t *testing.T) {
	inf := math.Inf(1)
	reader := staticReader{flights: []storage.Flight{{FlightID: "infspd", Speed: &inf}}}
	srv := NewServer(reader, Config{CacheTTL: time.Minute}, zerolog.Nop())
	h := srv.Router()

	for _, target := range []string{"/api/v1/flightdata/infspd/", "/api/v1/flightdata/"} {
		rec, body := getJSON(t, h, target, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, target)
		assert.Contains(t, body["error"], "encode response", target)

		// Failed responses are not cached.
		rec, _ = getJSON(t, h, target, nil)
		assert.Equal(t, "MISS", rec.Header().Get("X-Cache"), target)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, target)
	}
}

func TestResponseCacheVariesOnForwardedProto(t *testing.T) {
	srv := NewServer(setupTestStore(t, 12), Config{CacheTTL: time.Minute}, zerolog.Nop())
	h := srv.Router()

	rec, body := getJSON(t, h, "/api/v1/flightdata", map[string]string{"X-Forwarded-Proto": "https"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com/api/v1/flightdata?page=2", body["next"])

	rec, body = getJSON(t, h, "/api/v1/flightdata", nil)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "http://example.com/api/v1/flightdata?page=2", body["next"])

	rec, body = getJSON(t, h, "/api/v1/flightdata", map[string]string{"X-Forwarded-Proto": "https"})
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, "https://example.com/api/v1/flightdata?page=2", body["next"])
}
