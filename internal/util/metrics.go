package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchemaSynthesesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schema_syntheses_total",
		Help: "Total number of schema synthesis requests by result",
	}, []string{"result"})

	SchemaCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schema_cache_lookups_total",
		Help: "Schema cache lookups by outcome",
	}, []string{"outcome"})

	SchemaSynthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "schema_synthesis_latency_seconds",
		Help:    "Latency of schema synthesis from the catalog",
		Buckets: prometheus.DefBuckets,
	})

	SchemaInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schema_cache_invalidated_entries_total",
		Help: "Total number of cached schemas dropped by invalidation",
	})

	OptionExtensionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "option_extensions_total",
		Help: "Attribute option extensions by outcome",
	}, []string{"outcome"})

	IdentifierChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identifier_checks_total",
		Help: "External identifier uniqueness checks by result",
	}, []string{"result"})

	VariantGraphsSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "variant_graphs_saved_total",
		Help: "Total number of product variant graphs persisted",
	})

	VariantsSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "variants_saved_total",
		Help: "Total number of variants persisted",
	})

	EditingSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "editing_sessions_active",
		Help: "Number of open variant editing sessions",
	})

	AssetBatchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_batch_items_total",
		Help: "Asset batch items by operation and result",
	}, []string{"operation", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
