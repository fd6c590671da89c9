// Package httpapi exposes the process's ops surface: /health and
// /metrics, wrapped in the shared middleware chain.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"podolsknews/middleware"
	"podolsknews/monitoring"
)

// HealthStatus reports process liveness plus a shallow dependency check.
type HealthStatus struct {
	Status string `json:"status"`
	DBOK   bool   `json:"db_ok"`
}

// Pinger is the subset of *sql.DB health needs.
type Pinger interface {
	Ping() error
}

// NewHealthHandler returns ok/degraded based on a DB ping.
func NewHealthHandler(db Pinger) http.HandlerFunc {
	return middleware.Chain(func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{Status: "ok", DBOK: true}
		code := http.StatusOK

		if db != nil {
			if err := db.Ping(); err != nil {
				status.Status = "degraded"
				status.DBOK = false
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}, middleware.Logging, middleware.Recovery, middleware.CORS, middleware.Timeout(5*time.Second))
}

// NewMetricsHandler renders the current counters as Prometheus-style text
// exposition, matching the field names in monitoring.Metrics.
func NewMetricsHandler() http.HandlerFunc {
	return middleware.Chain(func(w http.ResponseWriter, r *http.Request) {
		m := monitoring.GetMetrics()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w, "ingest_ticks_total %d\n", m.IngestTicksTotal)
		fmt.Fprintf(w, "ingest_tick_errors_total %d\n", m.IngestTickErrors)
		fmt.Fprintf(w, "sources_fetched_total %d\n", m.SourcesFetchedTotal)
		fmt.Fprintf(w, "sources_fetch_errors_total %d\n", m.SourcesFetchErrors)
		fmt.Fprintf(w, "items_processed_total %d\n", m.ItemsProcessedTotal)
		fmt.Fprintf(w, "articles_inserted_total %d\n", m.ArticlesInsertedTotal)
		fmt.Fprintf(w, "articles_rejected_total %d\n", m.ArticlesRejectedTotal)
		fmt.Fprintf(w, "clusters_created_total %d\n", m.ClustersCreatedTotal)
		fmt.Fprintf(w, "clusters_matched_total %d\n", m.ClustersMatchedTotal)
		fmt.Fprintf(w, "classify_invocations_total %d\n", m.ClassifyInvocationsTotal)
		fmt.Fprintf(w, "classify_fallbacks_total %d\n", m.ClassifyFallbacksTotal)
		fmt.Fprintf(w, "classify_errors_total %d\n", m.ClassifyErrorsTotal)
		fmt.Fprintf(w, "reactor_commands_total %d\n", m.ReactorCommandsTotal)
		fmt.Fprintf(w, "reactor_success_total %d\n", m.ReactorSuccessTotal)
		fmt.Fprintf(w, "reactor_failure_total %d\n", m.ReactorFailureTotal)
		fmt.Fprintf(w, "bus_reconnects_total %d\n", m.BusReconnectsTotal)
		fmt.Fprintf(w, "circuit_breaker_trips_total %d\n", m.CircuitBreakerTripsTotal)
		fmt.Fprintf(w, "db_queries_total %d\n", m.DBQueriesTotal)
		fmt.Fprintf(w, "db_queries_errors_total %d\n", m.DBQueriesErrors)
		fmt.Fprintf(w, "log_errors_total %d\n", m.LogErrorsTotal)
	}, middleware.Logging, middleware.Recovery)
}

// NewServer builds the ops HTTP server bound to addr.
func NewServer(addr string, db Pinger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", NewHealthHandler(db))
	mux.HandleFunc("/metrics", NewMetricsHandler())

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
