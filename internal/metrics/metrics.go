// file: internal/metrics/metrics.go

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tick outcomes recorded by IncTick
const (
	OutcomeOK           = "ok"
	OutcomeTokenError   = "token_error"
	OutcomePlayingError = "playing_error"
)

// Metrics provides centralized metrics collection for cover-display.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tokenRefreshTotal    *prometheus.CounterVec
	tokenRefreshDuration prometheus.Histogram
	ticksTotal           *prometheus.CounterVec
	artworkUpdatesTotal  prometheus.Counter
	backoffSecondsTotal  *prometheus.CounterVec
}

// NewMetrics creates a new metrics instance and registers the collectors.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,

		tokenRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coverdisplay_token_refresh_total",
				Help: "Total number of access token refresh exchanges by result.",
			},
			[]string{"result"},
		),
		tokenRefreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "coverdisplay_token_refresh_duration_seconds",
				Help:    "Duration of access token refresh exchanges.",
				Buckets: prometheus.DefBuckets,
			},
		),
		ticksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coverdisplay_ticks_total",
				Help: "Total number of polling ticks by outcome.",
			},
			[]string{"outcome"},
		),
		artworkUpdatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "coverdisplay_artwork_updates_total",
				Help: "Total number of artwork changes written to the sink.",
			},
		),
		backoffSecondsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coverdisplay_backoff_seconds_total",
				Help: "Total seconds spent backing off after failures by kind.",
			},
			[]string{"kind"},
		),
	}

	toRegister := []prometheus.Collector{
		m.tokenRefreshTotal,
		m.tokenRefreshDuration,
		m.ticksTotal,
		m.artworkUpdatesTotal,
		m.backoffSecondsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}

	for _, c := range toRegister {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// IncTokenRefresh records a refresh exchange and its duration
func (m *Metrics) IncTokenRefresh(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.tokenRefreshTotal.WithLabelValues(result).Inc()
	m.tokenRefreshDuration.Observe(duration.Seconds())
}

// IncTick records the outcome of one polling tick
func (m *Metrics) IncTick(outcome string) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues(outcome).Inc()
}

// IncArtworkUpdate records an artwork change
func (m *Metrics) IncArtworkUpdate() {
	if m == nil {
		return
	}
	m.artworkUpdatesTotal.Inc()
}

// AddBackoff records time spent sleeping after a failure
func (m *Metrics) AddBackoff(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.backoffSecondsTotal.WithLabelValues(kind).Add(d.Seconds())
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server serves the metrics endpoint until Shutdown is called
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics HTTP server on address, serving path
func NewServer(m *Metrics, address, path string) *Server {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return &Server{srv: &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// ListenAndServe blocks until the server stops. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
