package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flight_tracker/internal/reconcile"
)

// chdirTemp moves into an empty directory so no flighttracker.yaml is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	s, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, s.Source.URL)
	assert.Equal(t, 30*time.Second, s.Source.Timeout)
	assert.Equal(t, "states", s.Source.DataKey)
	assert.Equal(t, "sqlite://flights.db", s.Database.URL)
	assert.Equal(t, reconcile.StrategyReplace, s.Strategy())
	assert.Equal(t, 350, s.Sync.Limit)
	assert.Zero(t, s.Sync.Interval)
	assert.Equal(t, 8000, s.API.Port)
	assert.False(t, s.API.AuthEnabled)
	assert.Equal(t, 60*time.Second, s.API.CacheTTL)
	assert.Equal(t, "flights", s.ClickHouse.Database)
	assert.Equal(t, "flights.sync.completed", s.NATS.Subject)
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, "console", s.Log.Format)
}

func TestLoadLegacyEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("EXTERNAL_API_URL", "https://opensky-network.org/api/states/all")
	t.Setenv("EXTERNAL_API_KEY", "secret")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/flights")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://opensky-network.org/api/states/all", s.Source.URL)
	assert.Equal(t, "secret", s.Source.APIKey)
	assert.Equal(t, "postgres://u:p@db:5432/flights", s.Database.URL)
	assert.Equal(t, 9090, s.API.Port)
	assert.Equal(t, "debug", s.Log.Level)
}

func TestLoadPrefixedEnvironmentWins(t *testing.T) {
	chdirTemp(t)
	t.Setenv("EXTERNAL_API_URL", "https://legacy.example")
	t.Setenv("FLIGHTS_SOURCE_URL", "https://new.example")
	t.Setenv("FLIGHTS_SYNC_STRATEGY", "upsert")
	t.Setenv("FLIGHTS_SYNC_INTERVAL", "5m")
	t.Setenv("FLIGHTS_API_AUTH_ENABLED", "true")
	t.Setenv("FLIGHTS_API_API_KEYS", "k1,k2")

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://new.example", s.Source.URL)
	assert.Equal(t, reconcile.StrategyUpsert, s.Strategy())
	assert.Equal(t, 5*time.Minute, s.Sync.Interval)
	assert.True(t, s.API.AuthEnabled)
	assert.Equal(t, []string{"k1", "k2"}, s.API.APIKeys)
}

func TestLoadFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  url: https://file.example/states
  data_key: aircraft
sync:
  strategy: upsert
  limit: 100
clickhouse:
  addr: localhost:9000
log:
  format: json
`), 0o600))
	t.Setenv("FLIGHTS_SYNC_LIMIT", "200")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example/states", s.Source.URL)
	assert.Equal(t, "aircraft", s.Source.DataKey)
	assert.Equal(t, reconcile.StrategyUpsert, s.Strategy())
	assert.Equal(t, 200, s.Sync.Limit, "environment overrides the file")
	assert.Equal(t, "localhost:9000", s.ClickHouse.Addr)
	assert.Equal(t, "json", s.Log.Format)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := chdirTemp(t)
	_, err := Load(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Settings {
		return &Settings{
			Source:   SourceSettings{Timeout: time.Second},
			Database: DatabaseSettings{URL: ":memory:"},
			Sync:     SyncSettings{Strategy: "replace", Limit: 350},
			API:      APISettings{Port: 8000},
			Log:      LogSettings{Level: "info", Format: "console"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
		errMsg string
	}{
		{"valid", func(*Settings) {}, ""},
		{"unknown strategy", func(s *Settings) { s.Sync.Strategy = "merge" }, "unknown sync strategy"},
		{"zero limit", func(s *Settings) { s.Sync.Limit = 0 }, "sync.limit"},
		{"negative interval", func(s *Settings) { s.Sync.Interval = -time.Second }, "sync.interval"},
		{"bad port", func(s *Settings) { s.API.Port = 70000 }, "api.port"},
		{"auth without keys", func(s *Settings) { s.API.AuthEnabled = true }, "api.api_keys"},
		{"no database", func(s *Settings) { s.Database.URL = "" }, "database.url"},
		{"bad log level", func(s *Settings) { s.Log.Level = "loud" }, "log level"},
		{"bad log format", func(s *Settings) { s.Log.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := s.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
