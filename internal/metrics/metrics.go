package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BotsLaunched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetbot_bots_launched_total",
			Help: "Total number of bot containers successfully launched",
		},
		[]string{"platform"},
	)

	BotsStopped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetbot_bots_stopped_total",
			Help: "Total number of bot containers stopped",
		},
		[]string{"platform", "result"}, // result: stopped/not_found/stop_failed
	)

	LockConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetbot_lock_conflicts_total",
			Help: "Total number of request-bot calls that lost the triple-lock race",
		},
		[]string{"platform"},
	)

	LaunchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetbot_launch_failures_total",
			Help: "Total number of container launches that failed",
		},
		[]string{"platform"},
	)

	LaunchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meetbot_launch_duration_seconds",
			Help:    "Time taken to launch a bot container, lock acquisition to mapping write",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	SegmentsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meetbot_segments_ingested_total",
			Help: "Total number of transcript segments persisted",
		},
	)

	SegmentsFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetbot_segments_filtered_total",
			Help: "Total number of segments dropped by the informativeness filter",
		},
		[]string{"reason"},
	)

	SegmentsDeduped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetbot_segments_deduped_total",
			Help: "Total number of segments dropped as duplicates of an already-seen interval",
		},
		[]string{"reason"}, // reason: dedup_key_hit
	)

	IngestorConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meetbot_ingestor_connections",
			Help: "Number of currently open transcription-worker connections",
		},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetbot_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the per-tenant rate limiter",
		},
		[]string{"route"},
	)
)
