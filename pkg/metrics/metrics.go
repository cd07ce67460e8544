package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Catalog metrics
	DatabasesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "solidb_databases_total",
			Help: "Total number of databases hosted on this node",
		},
	)

	CollectionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solidb_collections_total",
			Help: "Total number of collections by database",
		},
		[]string{"database"},
	)

	DocumentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solidb_documents_total",
			Help: "Total number of documents by database and collection",
		},
		[]string{"database", "collection"},
	)

	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solidb_nodes_total",
			Help: "Total number of cluster members by status",
		},
		[]string{"status"},
	)

	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "solidb_raft_is_leader",
			Help: "Whether this node is the Raft leader for shard-table coordination (1 = leader, 0 = follower)",
		},
	)

	ShardsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solidb_shards_total",
			Help: "Total number of shards by database and collection",
		},
		[]string{"database", "collection"},
	)

	// Transport metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solidb_http_requests_total",
			Help: "Total number of HTTP API requests by route and status",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solidb_http_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RPCCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solidb_rpc_commands_total",
			Help: "Total number of binary-protocol commands by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	ChangefeedSubscribersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "solidb_changefeed_subscribers_total",
			Help: "Total number of live change-feed WebSocket subscribers",
		},
	)

	ChangefeedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solidb_changefeed_events_total",
			Help: "Total number of change-feed events published by change type",
		},
		[]string{"type"},
	)

	// Query engine metrics
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solidb_queries_total",
			Help: "Total number of SDBQL queries executed by outcome",
		},
		[]string{"outcome"},
	)

	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solidb_query_duration_seconds",
			Help:    "SDBQL query execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SlowQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "solidb_slow_queries_total",
			Help: "Total number of queries that exceeded the slow-query threshold",
		},
	)

	// Cache metrics
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solidb_cache_hits_total",
			Help: "Total number of cache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solidb_cache_misses_total",
			Help: "Total number of cache misses by cache name",
		},
		[]string{"cache"},
	)

	// Replication metrics
	ReplicationLagSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solidb_replication_lag_seconds",
			Help: "Replication lag in seconds by peer node",
		},
		[]string{"peer"},
	)

	ReplicationApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solidb_replication_apply_duration_seconds",
			Help:    "Time taken to apply a replicated log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(DatabasesTotal)
	prometheus.MustRegister(CollectionsTotal)
	prometheus.MustRegister(DocumentsTotal)
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(ShardsTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(RPCCommandsTotal)
	prometheus.MustRegister(ChangefeedSubscribersTotal)
	prometheus.MustRegister(ChangefeedEventsTotal)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(SlowQueriesTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(ReplicationLagSeconds)
	prometheus.MustRegister(ReplicationApplyDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
