// Package metrics exposes Prometheus counters and gauges for the
// pipeline. The shape — counts broken down by mode and by source —
// mirrors the project's prior in-process stats.Tracker, now exported
// for scraping instead of printed to the console.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every metric this process exposes under one
// Prometheus registerer, so internal/supervisor can wire a single
// /metrics handler.
type Registry struct {
	SpotsByMode          *prometheus.CounterVec
	SpotsBySource        *prometheus.CounterVec
	SpotsClassifyDropped prometheus.Counter
	SpotsBroadcastReady  prometheus.Counter

	DedupHits   prometheus.Counter
	DedupMisses prometheus.Counter

	GeoCacheHits    prometheus.Counter
	GeoCacheMisses  prometheus.Counter
	GeoUnresolvable prometheus.Counter

	QrzRefreshFailures prometheus.Counter

	BroadcastActiveSubscribers prometheus.Gauge
	PersistQueueDropped        prometheus.Counter
}

// New registers every metric against reg (use prometheus.NewRegistry()
// for test isolation, or prometheus.DefaultRegisterer in production).
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		SpotsByMode: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "holycluster_spots_by_mode_total",
			Help: "Enriched spots observed, partitioned by mode.",
		}, []string{"mode"}),
		SpotsBySource: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "holycluster_spots_by_source_total",
			Help: "Enriched spots observed, partitioned by source cluster endpoint.",
		}, []string{"source"}),
		SpotsClassifyDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "holycluster_spots_classification_dropped_total",
			Help: "Spots dropped because frequency classification failed.",
		}),
		SpotsBroadcastReady: factory.NewCounter(prometheus.CounterOpts{
			Name: "holycluster_spots_broadcast_ready_total",
			Help: "Enriched spots that passed the broadcast filter and were queued for fanout.",
		}),
		DedupHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "holycluster_dedup_hits_total",
			Help: "Spots rejected as duplicates by the cross-source deduplicator.",
		}),
		DedupMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "holycluster_dedup_misses_total",
			Help: "Spots admitted by the cross-source deduplicator.",
		}),
		GeoCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "holycluster_geo_cache_hits_total",
			Help: "Geo resolutions served from cache.",
		}),
		GeoCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "holycluster_geo_cache_misses_total",
			Help: "Geo resolutions that required a QRZ or prefix-table lookup.",
		}),
		GeoUnresolvable: factory.NewCounter(prometheus.CounterOpts{
			Name: "holycluster_geo_unresolvable_total",
			Help: "Enriched spots with no locator resolved for the spotter, the DX, or both.",
		}),
		QrzRefreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "holycluster_qrz_refresh_failures_total",
			Help: "QRZ session token acquisition/refresh attempts that were exhausted.",
		}),
		BroadcastActiveSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "holycluster_broadcast_active_subscribers",
			Help: "Current count of connected /spots_ws subscribers.",
		}),
		PersistQueueDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "holycluster_persist_queue_dropped_total",
			Help: "Enriched spots dropped because the persistence queue was full.",
		}),
	}
}
