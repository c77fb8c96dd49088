// Package main provides the flighttracker command.
//
// flighttracker mirrors a live aircraft state-vector feed into a relational
// store and serves the current positions over a read-only REST API.
//
// Usage:
//
//	flighttracker [--config FILE] [--log-level LEVEL] <command>
//
// Commands:
//
//	sync      Run one reconciliation pass and print the summary.
//	serve     Start the read API, optionally syncing on an interval.
//	migrate   Create the flight table (and the ClickHouse run log if configured).
//	export    Write the current snapshot as KML or CSV.
//	runs      List recent passes from the ClickHouse run log.
//
// Settings come from flighttracker.yaml, FLIGHTS_* environment variables and
// the legacy names EXTERNAL_API_URL, EXTERNAL_API_KEY, DATABASE_URL, PORT and
// LOG_LEVEL.
//
// API Endpoints:
//
//	GET /api/v1/health
//	    Health check endpoint.
//
//	GET /api/v1/flightdata/?page=N
//	    Paginated flights, newest first, ten per page.
//
//	GET /api/v1/flightdata/{flight_id}/
//	    A single flight.
//
//	POST /api/v1/sync
//	    Run a pass now. Only available with api.auth_enabled.
//
//	GET /metrics
//	    Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
