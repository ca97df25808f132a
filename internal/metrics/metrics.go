package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProbeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securescan_probe_requests_total",
			Help: "Total number of HTTP probes dispatched",
		},
		[]string{"method", "outcome"},
	)

	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "securescan_probe_duration_seconds",
			Help:    "Duration of HTTP probes in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method"},
	)

	FindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securescan_findings_total",
			Help: "Total findings reported, by category and severity",
		},
		[]string{"category", "severity"},
	)

	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securescan_scans_total",
			Help: "Total scans finished, by terminal status",
		},
		[]string{"status"},
	)

	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "securescan_scan_duration_seconds",
			Help:    "Wall-clock duration of whole scans in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	PagesCrawled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "securescan_pages_crawled_total",
			Help: "Total pages fetched by the crawler",
		},
	)
)

// RecordProbe updates the probe metrics for one dispatched request.
func RecordProbe(method string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ProbeRequestsTotal.WithLabelValues(method, outcome).Inc()
	ProbeDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordFinding counts one reported finding.
func RecordFinding(category, severity string) {
	FindingsTotal.WithLabelValues(category, severity).Inc()
}

// RecordScan counts one finished scan.
func RecordScan(status string, d time.Duration) {
	ScansTotal.WithLabelValues(status).Inc()
	ScanDuration.WithLabelValues(status).Observe(d.Seconds())
}

// Server serves /metrics for Prometheus scrapes on the loopback interface.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// Start exposes /metrics on the given port in a background goroutine. Stop
// must be called to release the listener.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s := &Server{
		srv: &http.Server{
			Addr:        fmt.Sprintf("127.0.0.1:%d", port),
			Handler:     mux,
			ReadTimeout: 5 * time.Second,
			IdleTimeout: 30 * time.Second,
		},
		logger: logger,
	}

	go func() {
		err := s.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "err", err)
		}
	}()

	return s
}

// Stop gracefully shuts down the metrics server, waiting at most the
// deadline on ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
