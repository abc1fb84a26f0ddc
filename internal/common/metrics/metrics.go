package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoresProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_stores_processed_total",
			Help: "Total number of stores processed by terminal state",
		},
		[]string{"state"},
	)

	ProductsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_products_processed_total",
			Help: "Total number of products processed by terminal state",
		},
		[]string{"state"},
	)

	ScraperRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_scraper_retries_total",
			Help: "Total number of scraper call retries",
		},
		[]string{"operation"},
	)

	MatchStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "scout_match_stage_duration_seconds",
			Help: "Duration of each source-matching pipeline stage",
		},
		[]string{"stage"},
	)

	MatchConfidence = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_match_confidence_total",
			Help: "Match attempts by resulting confidence tier",
		},
		[]string{"tier"},
	)

	ImageCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_image_cache_lookups_total",
			Help: "Image cache lookups by result (hit/miss)",
		},
		[]string{"kind", "result"},
	)

	ImageCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_image_cache_evictions_total",
			Help: "Cache entries removed by the eviction pass",
		},
	)

	ImageCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scout_image_cache_bytes",
			Help: "Total bytes currently held by the on-disk image cache",
		},
	)

	ExportFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_export_failures_total",
			Help: "Failed attempts to index a store result",
		},
	)
)
