// Package source fetches state vector snapshots from the upstream flight-tracking API.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single fetch.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent identifies the client to the upstream API.
const DefaultUserAgent = "flight_tracker/1.0"

// AuthBearer sends the API key as "Authorization: Bearer <key>".
const AuthBearer = "bearer"

// Config holds upstream API settings.
type Config struct {
	URL    string
	APIKey string
	// AuthScheme controls how APIKey is applied. Empty means the key is
	// accepted but not sent; OpenSky's anonymous endpoint needs none.
	AuthScheme string
	Timeout    time.Duration
	UserAgent  string
}

// FetchError describes why a fetch produced no document.
type FetchError struct {
	Cause string
	Err   error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return e.Cause + ": " + e.Err.Error()
	}
	return e.Cause
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client performs one GET per Fetch call. No retries.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a source client. A missing URL is reported by Fetch, not here,
// so a misconfigured deployment still produces a failed run summary.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.URL == "" {
		logger.Error().Msg("source client created without a URL; fetches will fail")
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Fetch retrieves and decodes the upstream document. Numbers are decoded as
// json.Number. Every failure is a *FetchError.
func (c *Client) Fetch(ctx context.Context) (any, error) {
	if c.cfg.URL == "" {
		return nil, &FetchError{Cause: "source URL is not configured"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, http.NoBody)
	if err != nil {
		return nil, &FetchError{Cause: "error creating request", Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	c.applyAuth(req)

	c.logger.Info().Str("url", c.cfg.URL).Msg("fetching data from source")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Cause: "error fetching data from source", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{Cause: fmt.Sprintf("received non-2xx response: %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Cause: "error reading response body", Err: err}
	}

	doc, err := decodeDocument(body)
	if err != nil {
		return nil, &FetchError{Cause: "error parsing JSON response", Err: err}
	}
	return doc, nil
}

func (c *Client) applyAuth(req *http.Request) {
	if c.cfg.APIKey == "" {
		return
	}
	switch c.cfg.AuthScheme {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func decodeDocument(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	// Reject trailing garbage after the first value.
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON document")
	}
	return doc, nil
}
