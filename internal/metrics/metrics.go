package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Media cache metrics
	MediaLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagate_media_loads_total",
			Help: "Total media load requests, by source and asset class",
		},
		[]string{"source", "class"},
	)

	MediaFetchErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediagate_media_fetch_errors_total",
			Help: "Upstream media fetch failures",
		},
	)

	MediaFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediagate_media_fetch_duration_seconds",
			Help:    "Upstream media fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CacheEntriesSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediagate_cache_entries_swept_total",
			Help: "Stale cache entries removed by sweeps",
		},
	)

	CacheWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediagate_cache_write_failures_total",
			Help: "Best-effort cache writes that failed after a successful fetch",
		},
	)

	// Quota metrics
	PlaysRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagate_plays_recorded_total",
			Help: "Completed plays recorded against the daily quota",
		},
		[]string{"class"},
	)

	QuotaRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagate_quota_rejections_total",
			Help: "Media requests refused because the daily quota was exhausted",
		},
		[]string{"class"},
	)

	QuotaResets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagate_quota_resets_total",
			Help: "Quota state resets, by reason (rollover, tamper, corrupt)",
		},
		[]string{"reason"},
	)

	// Session metrics
	UnlockAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagate_unlock_attempts_total",
			Help: "Password unlock attempts, by outcome",
		},
		[]string{"outcome"},
	)

	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediagate_session_active",
			Help: "Whether a viewing session is currently active (0 or 1)",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		MediaLoadsTotal,
		MediaFetchErrors,
		MediaFetchDuration,
		CacheEntriesSwept,
		CacheWriteFailures,
		PlaysRecorded,
		QuotaRejections,
		QuotaResets,
		UnlockAttempts,
		SessionActive,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
