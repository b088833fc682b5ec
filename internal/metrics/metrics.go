package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotSourceStatus Record snapshot source status (up/down)
	SnapshotSourceStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mapcore_snapshot_source_status",
			Help: "Status of the record snapshot source (0 = last load failed, 1 = last load succeeded)",
		},
		[]string{"source"},
	)

	SnapshotLastLoaded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mapcore_snapshot_last_loaded_timestamp_seconds",
		Help: "Unix time of the last successful snapshot load",
	}, []string{"source"})
)

var (
	IndexRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapcore_index_records",
		Help: "Number of records with valid coordinates in the cluster index",
	})

	IndexRejectedRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapcore_index_rejected_records",
		Help: "Number of records skipped by the last rebuild because their coordinates are invalid or unset",
	})

	IndexClusters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapcore_index_clusters",
		Help: "Number of multi-record clusters across all zoom levels",
	})

	IndexRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mapcore_index_rebuilds_total",
		Help: "Number of cluster index rebuilds",
	})

	IndexRebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapcore_index_rebuild_duration_seconds",
		Help:    "Time spent rebuilding the cluster index",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	ClusterQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapcore_cluster_queries_total",
		Help: "Number of viewport cluster queries, by indexed zoom level",
	}, []string{"zoom"})
)

var (
	// RecordDensity counts indexed records per S2 cell.
	RecordDensity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mapcore_record_density",
		Help: "Number of indexed records per S2 cell",
	}, []string{"cell_id"})
)

var (
	PolygonVertices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapcore_polygon_vertices",
		Help: "Number of vertices in the user-drawn polygon",
	})

	PolygonMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapcore_polygon_matches",
		Help: "Number of records inside the closed polygon at the last filter",
	})
)

var (
	TourFocusEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapcore_tour_focus_events_total",
		Help: "Number of tour focus events, by group",
	}, []string{"group"})

	TourRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapcore_tour_running",
		Help: "1 while a tour is playing, 0 otherwise",
	})
)

var (
	OutgoingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mapcore_outgoing_request_duration_seconds",
		Help:    "Latency of outgoing HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"url", "method", "status"})
)
