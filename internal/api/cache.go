package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status int
	header http.Header
	body   []byte
}

// captureWriter copies everything written to the client so successful
// responses can be stored.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.buf.Write(p)
	return c.ResponseWriter.Write(p)
}

// cacheResponses serves repeated GETs from memory for the cache TTL. Entries
// vary on host, path, query, Authorization and X-Forwarded-Proto. Only 200
// responses are stored.
func (s *Server) cacheResponses(next http.Handler) http.Handler {
	if s.cache == nil {
		return next
	}
	maxAge := "public, max-age=" + strconv.Itoa(int(s.cacheTTL.Seconds()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		// Page links are built from the forwarded scheme, so it is part of the key.
		key := r.Host + r.URL.RequestURI() + "\x00" + r.Header.Get("Authorization") + "\x00" + r.Header.Get("X-Forwarded-Proto")
		w.Header().Set("Vary", "Authorization, X-Forwarded-Proto")

		if v, ok := s.cache.Get(key); ok {
			resp := v.(*cachedResponse)
			for k, vals := range resp.header {
				w.Header()[k] = vals
			}
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(resp.status)
			_, _ = w.Write(resp.body)
			return
		}

		w.Header().Set("Cache-Control", maxAge)
		w.Header().Set("X-Cache", "MISS")
		cw := &captureWriter{ResponseWriter: w}
		next.ServeHTTP(cw, r)

		if cw.status == http.StatusOK {
			header := w.Header().Clone()
			header.Del("X-Cache")
			s.cache.Set(key, &cachedResponse{status: cw.status, header: header, body: cw.buf.Bytes()}, cache.DefaultExpiration)
		}
	})
}
