// Package metrics provides the Prometheus registry reference and the
// exposition server for the CPS audit. All metrics are defined in their
// respective packages (batch, audit, client, cache, ratelimit, progress)
// to maintain modularity and avoid circular dependencies.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the audit.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Server exposes /metrics and /health while an audit runs.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer listens on addr. Use ":0" for an ephemeral port.
func NewServer(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	s.logger.Info().Str("addr", s.Addr()).Msg("Metrics server listening")
	go func() {
		if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Metrics Documentation
//
// Batch Metrics (pkg/batch):
//   - cps_fetch_outcomes_total{pass, result} (Counter): Enrollment fetch outcomes after inline retry
//   - cps_inline_retries_total{kind} (Counter): Inline re-attempts by failure kind
//   - cps_inline_backoff_seconds (Histogram): Waits before inline re-attempts
//   - cps_pool_in_flight{pass} (Gauge): Fetches holding a pool slot
//   - cps_batch_duration_seconds{pass} (Histogram): Batch execution time
//
// Audit Metrics (pkg/audit):
//   - cps_audit_pass_duration_seconds{pass} (Histogram): Duration of a whole pass
//   - cps_audit_contracts_total{pass} (Counter): Contracts processed
//   - cps_audit_batch_failures_total{pass} (Counter): Batches failed as a whole
//   - cps_audit_enrollments_unresolved (Gauge): Enrollments still failed after the last audit
//
// Request Metrics (pkg/client):
//   - cps_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - cps_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - cps_errors_total{class} (Counter): Errors by class (client, auth, server, rate_limit, network)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - cps_rate_limit_penalties_total (Counter): 429 penalties recorded
//   - cps_rate_limit_blocks_total (Counter): Requests held by an active penalty
//   - cps_rate_limit_throttles_total (Counter): Requests delayed by a full window
//
// Cache Metrics (pkg/cache):
//   - cps_cache_hits_total (Counter): Cache hits
//   - cps_cache_misses_total (Counter): Cache misses
//   - cps_cache_stored_bytes_total (Counter): Payload bytes written
//   - cps_cache_errors_total{operation} (Counter): Cache operation errors
//
// Progress Metrics (pkg/progress):
//   - cps_progress_events_dropped_total (Counter): Events dropped by a full async reporter
//
// Example Prometheus Queries:
//
//   # Share of enrollments needing an inline retry
//   sum(rate(cps_inline_retries_total[5m])) / sum(rate(cps_fetch_outcomes_total[5m]))
//
//   # Rate limit pressure
//   rate(cps_requests_total{status="429"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(cps_request_duration_seconds_bucket[5m]))
