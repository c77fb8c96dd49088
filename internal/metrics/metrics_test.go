package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flight_tracker/internal/reconcile"
)

func newTestMetrics(t *testing.T) *SyncMetrics {
	t.Helper()
	m, err := NewSyncMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestRunCompletedCountsRuns(t *testing.T) {
	m := newTestMetrics(t)
	ctx := context.Background()
	total := 500
	started := time.Date(2026, 1, 27, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.RunCompleted(ctx, reconcile.Summary{
		Strategy:        reconcile.StrategyReplace,
		Success:         true,
		Created:         350,
		Deleted:         340,
		Processed:       350,
		TotalFromSource: &total,
		StartedAt:       started,
		Duration:        2 * time.Second,
	}))
	require.NoError(t, m.RunCompleted(ctx, reconcile.Summary{Strategy: reconcile.StrategyReplace}))
	require.NoError(t, m.RunCompleted(ctx, reconcile.Summary{Strategy: reconcile.StrategyUpsert, Success: true, Updated: 4, Processed: 4}))

	assert.InDelta(t, 1, testutil.ToFloat64(m.runsTotal.WithLabelValues("replace", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runsTotal.WithLabelValues("replace", "failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runsTotal.WithLabelValues("upsert", "success")), 0)

	assert.InDelta(t, 350, testutil.ToFloat64(m.recordsTotal.WithLabelValues("created")), 0)
	assert.InDelta(t, 340, testutil.ToFloat64(m.recordsTotal.WithLabelValues("deleted")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.recordsTotal.WithLabelValues("updated")), 0)
	assert.InDelta(t, 354, testutil.ToFloat64(m.recordsTotal.WithLabelValues("processed")), 0)

	assert.InDelta(t, 500, testutil.ToFloat64(m.sourceRecords), 0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.lastSuccess), float64(started.Unix()))
}

func TestFailedRunLeavesLastSuccess(t *testing.T) {
	m := newTestMetrics(t)
	require.NoError(t, m.RunCompleted(context.Background(), reconcile.Summary{Strategy: reconcile.StrategyReplace}))
	assert.Zero(t, testutil.ToFloat64(m.lastSuccess))
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewSyncMetrics(reg)
	require.NoError(t, err)
	_, err = NewSyncMetrics(reg)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	m := newTestMetrics(t)
	require.NoError(t, m.RunCompleted(context.Background(), reconcile.Summary{Strategy: reconcile.StrategyReplace, Success: true}))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `flighttracker_sync_runs_total{result="success",strategy="replace"} 1`)
	assert.Contains(t, string(body), "flighttracker_sync_duration_seconds_bucket")
}
