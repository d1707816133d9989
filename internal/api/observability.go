package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"space-arena/internal/arena"
	"space-arena/internal/arena/spatial"
	"space-arena/internal/journal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics with bounded cardinality: labels are body kinds, event and action
// types, never body ids.
var (
	tickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent processing one body tick",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	}, []string{"kind"})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_events_total",
		Help: "Events detected by body pipelines",
	}, []string{"type"})

	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_actions_total",
		Help: "Actions executed by body pipelines",
	}, []string{"type", "executor"})

	bodiesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arena_bodies",
		Help: "Body counters by state",
	}, []string{"state"}) // Bounded: "created", "alive", "dead", "dynamic"

	droppedNotices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_dropped_spawn_notices",
		Help: "Spawn notices dropped because the queue was full",
	})

	gridCells = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arena_grid_cells",
		Help: "Spatial grid cells by occupancy",
	}, []string{"occupancy"}) // Bounded: "empty", "non_empty"

	gridMaxBucket = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_grid_max_bucket_size",
		Help: "Members in the most crowded grid cell",
	})

	gridPairChecks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_grid_pair_checks",
		Help: "Sum of candidate pairs over all grid cells",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket frames broadcast",
	})
)

// MetricsObserver feeds pipeline activity into prometheus. It implements
// arena.Observer and is called from every body goroutine.
type MetricsObserver struct{}

// ObserveTick implements arena.Observer.
func (MetricsObserver) ObserveTick(kind arena.Kind, d time.Duration) {
	tickDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
}

// ObserveEvents implements arena.Observer.
func (MetricsObserver) ObserveEvents(events []arena.Event) {
	for _, e := range events {
		eventsTotal.WithLabelValues(e.Type.String()).Inc()
	}
}

// ObserveActions implements arena.Observer.
func (MetricsObserver) ObserveActions(actions []arena.Action) {
	for _, a := range actions {
		actionsTotal.WithLabelValues(a.Type.String(), a.Executor.String()).Inc()
	}
}

// StatsSource is what the gauge updater samples.
type StatsSource interface {
	Counters() arena.Counters
	GridStats() spatial.Stats
}

// UpdateGauges copies the current counters and grid stats into gauges.
func UpdateGauges(src StatsSource) {
	c := src.Counters()
	bodiesGauge.WithLabelValues("created").Set(float64(c.Created))
	bodiesGauge.WithLabelValues("alive").Set(float64(c.Alive))
	bodiesGauge.WithLabelValues("dead").Set(float64(c.Dead))
	bodiesGauge.WithLabelValues("dynamic").Set(float64(c.Dynamic))
	droppedNotices.Set(float64(c.DroppedNotices))

	g := src.GridStats()
	gridCells.WithLabelValues("empty").Set(float64(g.EmptyCells))
	gridCells.WithLabelValues("non_empty").Set(float64(g.NonEmptyCells))
	gridMaxBucket.Set(float64(g.MaxBucketSize))
	gridPairChecks.Set(float64(g.PairChecks))
}

// RunGaugeUpdater refreshes the gauges every interval until ctx is done.
func RunGaugeUpdater(ctx context.Context, src StatsSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			UpdateGauges(src)
		}
	}
}

// RegisterJournalMetrics exposes journal counters sampled at scrape time.
func RegisterJournalMetrics(reg prometheus.Registerer, stats func() journal.Stats) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "journal_entries_total",
			Help: "Journal entries accepted",
		}, func() float64 { return float64(stats().Total) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "journal_dropped_total",
			Help: "Journal entries dropped by rate limits or a full buffer",
		}, func() float64 { return float64(stats().Dropped) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "journal_pending",
			Help: "Journal entries waiting to be written",
		}, func() float64 { return float64(stats().Pending) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordConnectionRejected increments the rejection counter.
// reason must be one of: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string
	AllowExternal bool // permit a non-loopback ListenAddr
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// DebugHandler serves pprof, prometheus metrics and a health check.
func DebugHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// isLoopback reports whether addr binds to a loopback host.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// StartDebugServer starts the observability listener in the background and
// returns it for shutdown. It returns nil when disabled. Non-loopback
// addresses are forced to localhost unless AllowExternal is set.
func StartDebugServer(cfg ObservabilityConfig, log zerolog.Logger) *http.Server {
	log = log.With().Str("component", "debug").Logger()
	if !cfg.Enabled {
		log.Info().Msg("Debug server disabled")
		return nil
	}

	if !isLoopback(cfg.ListenAddr) && !cfg.AllowExternal {
		log.Warn().Str("requested", cfg.ListenAddr).Msg("Debug server forced to localhost")
		cfg.ListenAddr = DefaultObservabilityConfig().ListenAddr
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           DebugHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().
			Str("pprof", "http://"+cfg.ListenAddr+"/debug/pprof/").
			Str("metrics", "http://"+cfg.ListenAddr+"/metrics").
			Msg("Debug server starting")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Debug server error")
		}
	}()
	return srv
}
