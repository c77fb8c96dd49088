// Package api provides the read-only REST API over current flight positions.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"flight_tracker/internal/reconcile"
	"flight_tracker/internal/storage"
)

// DefaultPageSize is the number of flights per list page.
const DefaultPageSize = 10

// FlightReader is the read side of the flight store.
type FlightReader interface {
	GetFlight(ctx context.Context, flightID string) (*storage.Flight, error)
	ListFlights(ctx context.Context, limit, offset int) ([]storage.Flight, error)
	CountFlights(ctx context.Context) (int, error)
}

// SyncTrigger runs one reconciliation pass, joining one already in flight.
type SyncTrigger interface {
	Run(ctx context.Context) (reconcile.Summary, bool)
}

// Config holds configuration for the API server.
type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string      // List of valid API keys.
	CacheTTL    time.Duration // Zero disables response caching.
	PageSize    int
}

// Option configures optional server features.
type Option func(*Server)

// WithSyncTrigger mounts POST /api/v1/sync. It is only reachable when
// authentication is enabled.
func WithSyncTrigger(t SyncTrigger) Option {
	return func(s *Server) { s.sync = t }
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server provides REST API access to flight data.
type Server struct {
	flights     FlightReader
	sync        SyncTrigger
	metrics     http.Handler
	cache       *cache.Cache
	cacheTTL    time.Duration
	port        int
	pageSize    int
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).
	logger      zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(flights FlightReader, cfg Config, logger zerolog.Logger, opts ...Option) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	s := &Server{
		flights:     flights,
		port:        cfg.Port,
		pageSize:    cfg.PageSize,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
		cacheTTL:    cfg.CacheTTL,
		logger:      logger,
	}
	if cfg.CacheTTL > 0 {
		s.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", srv.Addr).Msg("flight API starting")
	if s.authEnabled {
		s.logger.Info().Msg("authentication enabled, POST /api/v1/sync available")
	} else {
		s.logger.Info().Msg("authentication disabled, sync endpoint not mounted")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	// CORS for browser access.
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/health", s.handleHealth)

			r.Group(func(r chi.Router) {
				r.Use(s.cacheResponses)
				r.Get("/flightdata", s.handleListFlights)
				r.Get("/flightdata/{flight_id}", s.handleGetFlight)
			})
		})

		// Passes may outlast the request timeout, so sync has its own group.
		if s.authEnabled && s.sync != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Post("/sync", s.handleSync)
			})
		}
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	// A client disconnect must not abort a pass other callers may share.
	summary, shared := s.sync.Run(context.WithoutCancel(r.Context()))
	s.logger.Info().
		Str("run_id", summary.RunID.String()).
		Bool("shared", shared).
		Bool("success", summary.Success).
		Msg("sync triggered over HTTP")

	status := http.StatusOK
	if !summary.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, summary)
}

// Helper functions.

// writeJSON encodes before writing the status, so a value that cannot be
// encoded becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(map[string]string{"error": "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
