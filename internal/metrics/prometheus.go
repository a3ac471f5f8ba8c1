package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the sync worker and query engine

var (
	// Feed metrics
	FeedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridiron_feed_requests_total",
			Help: "Total number of feed requests by response status",
		},
		[]string{"status"},
	)

	// Poll cycle metrics
	PollCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridiron_poll_cycles_total",
			Help: "Total number of poll cycles",
		},
	)

	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridiron_poll_cycle_duration_seconds",
			Help:    "Duration of full poll cycles in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	// Per-game sync metrics
	GameSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridiron_game_syncs_total",
			Help: "Total number of per-game sync attempts by outcome",
		},
		[]string{"outcome"},
	)

	GameSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridiron_game_sync_duration_seconds",
			Help:    "Duration of per-game sync attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PlaysApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridiron_plays_applied_total",
			Help: "Total number of new plays committed",
		},
	)

	StatsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridiron_stats_applied_total",
			Help: "Total number of statistical events committed",
		},
	)

	CorrectionsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridiron_corrections_applied_total",
			Help: "Total number of already-committed plays rewritten after a feed correction",
		},
	)

	SequenceGaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridiron_sequence_gaps_total",
			Help: "Total number of snapshots rejected for missing the watermark play",
		},
	)

	RostersRefreshed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridiron_rosters_refreshed_total",
			Help: "Total number of team roster refreshes committed",
		},
	)

	ActiveGames = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridiron_active_games",
			Help: "Number of games currently in progress",
		},
	)

	TrackedGames = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridiron_tracked_games",
			Help: "Number of non-final games the poller is watching",
		},
	)

	// Query engine metrics
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridiron_query_duration_seconds",
			Help:    "Duration of criteria queries in seconds by result shape",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"shape"},
	)

	// Database metrics
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridiron_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridiron_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridiron_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridiron_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridiron_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridiron_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)

	LastSuccessfulCycle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridiron_last_successful_cycle_timestamp",
			Help: "Timestamp of the last poll cycle that completed without errors",
		},
	)
)

// RecordCycle records a completed poll cycle.
func RecordCycle(duration float64, clean bool) {
	PollCyclesTotal.Inc()
	PollCycleDuration.Observe(duration)
	if clean {
		LastSuccessfulCycle.SetToCurrentTime()
	}
}

// RecordGameSync records one per-game sync attempt.
func RecordGameSync(outcome string, duration float64) {
	GameSyncsTotal.WithLabelValues(outcome).Inc()
	GameSyncDuration.Observe(duration)
}

// RecordCacheHit records a cache hit.
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss.
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordError records an error.
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int32) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
