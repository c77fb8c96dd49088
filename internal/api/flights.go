package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"flight_tracker/internal/storage"
)

// FlightPage is one page of the flight list.
type FlightPage struct {
	Count    int              `json:"count"`
	Next     *string          `json:"next"`
	Previous *string          `json:"previous"`
	Results  []storage.Flight `json:"results"`
}

func (s *Server) handleListFlights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := s.flights.CountFlights(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// An empty table still has page 1.
	numPages := (count + s.pageSize - 1) / s.pageSize
	if numPages == 0 {
		numPages = 1
	}

	page, ok := parsePage(r.URL.Query().Get("page"), numPages)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Invalid page.")
		return
	}

	flights, err := s.flights.ListFlights(ctx, s.pageSize, (page-1)*s.pageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if flights == nil {
		flights = []storage.Flight{}
	}

	resp := FlightPage{Count: count, Results: flights}
	if page < numPages {
		next := pageURL(r, page+1)
		resp.Next = &next
	}
	if page > 1 {
		prev := pageURL(r, page-1)
		resp.Previous = &prev
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetFlight(w http.ResponseWriter, r *http.Request) {
	flightID := chi.URLParam(r, "flight_id")
	if flightID == "" {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	f, err := s.flights.GetFlight(r.Context(), flightID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if f == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	writeJSON(w, http.StatusOK, f)
}

// parsePage accepts a 1-based page number or "last". Missing means page 1.
func parsePage(raw string, numPages int) (int, bool) {
	switch raw {
	case "":
		return 1, true
	case "last":
		return numPages, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 || page > numPages {
		return 0, false
	}
	return page, true
}

// pageURL builds the absolute URL of another page of the current request.
// Page 1 is linked without a page parameter.
func pageURL(r *http.Request, page int) string {
	u := url.URL{
		Scheme: "http",
		Host:   r.Host,
		Path:   r.URL.Path,
	}
	if r.TLS != nil {
		u.Scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		u.Scheme = proto
	}

	q := r.URL.Query()
	if page == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
