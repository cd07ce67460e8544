/*
Package metrics provides Prometheus metrics collection and exposition for
SoliDB.

The metrics package defines and registers every SoliDB metric using the
Prometheus client library: catalog size, cluster membership, shard
placement, the transport layer's HTTP/RPC/change-feed traffic, SDBQL
query outcomes, cache effectiveness, and replication lag. Metrics are
exposed over HTTP for scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Sources                  │          │
	│  │                                              │          │
	│  │  Collector: periodic catalog/cluster sample │          │
	│  │  pkg/transport: inline per-request counters │          │
	│  │  pkg/replicator: inline per-entry histograms│          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Collector (collector.go):
  - Samples storage.Catalog and cluster.Membership/ShardTables on a
    15-second ticker
  - Updates DatabasesTotal, CollectionsTotal, NodesTotal, RaftLeader,
    ShardsTotal
  - membership/shards/isLeader may be nil outside cluster mode

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to a histogram (optionally with labels)

# Metrics Catalog

Catalog Metrics:

solidb_databases_total:
  - Type: Gauge
  - Description: Total number of databases hosted on this node

solidb_collections_total{database}:
  - Type: Gauge
  - Description: Total number of collections by database

solidb_documents_total{database,collection}:
  - Type: Gauge
  - Description: Total number of documents by database and collection,
    maintained incrementally at insert/delete call sites rather than by
    periodic Documents.Scan (a full scan per collection per tick would
    scale with data size, not cluster size)

Cluster Metrics:

solidb_nodes_total{status}:
  - Type: Gauge
  - Description: Total cluster members by status (active/suspected/dead)

solidb_raft_is_leader:
  - Type: Gauge
  - Description: Whether this node is the Raft leader for shard-table
    coordination (1=leader, 0=follower)

solidb_shards_total{database,collection}:
  - Type: Gauge
  - Description: Total number of shards by database and collection

Transport Metrics:

solidb_http_requests_total{route,status}:
  - Type: Counter
  - Description: Total HTTP API requests by matched chi route pattern
    and status text

solidb_http_request_duration_seconds{route}:
  - Type: Histogram
  - Description: HTTP API request duration in seconds

solidb_rpc_commands_total{op,outcome}:
  - Type: Counter
  - Description: Total binary-protocol commands by Command.Op and
    outcome (ok/error)

solidb_changefeed_subscribers_total:
  - Type: Gauge
  - Description: Total live change-feed WebSocket subscribers

solidb_changefeed_events_total{type}:
  - Type: Counter
  - Description: Total change-feed events published by change type
    (insert/update/delete)

Query Engine Metrics:

solidb_queries_total{outcome}:
  - Type: Counter
  - Description: Total SDBQL queries executed by outcome (ok/error)

solidb_query_duration_seconds:
  - Type: Histogram
  - Description: SDBQL query execution duration in seconds

solidb_slow_queries_total:
  - Type: Counter
  - Description: Total queries that exceeded the slow-query threshold
    and were appended to _system/_slow_queries

Cache Metrics:

solidb_cache_hits_total{cache}:
  - Type: Counter
  - Description: Total cache hits by cache name (document/query)

solidb_cache_misses_total{cache}:
  - Type: Counter
  - Description: Total cache misses by cache name

Replication Metrics:

solidb_replication_lag_seconds{peer}:
  - Type: Gauge
  - Description: Seconds between a replicated entry's origin timestamp
    and the moment this node applied it

solidb_replication_apply_duration_seconds:
  - Type: Histogram
  - Description: Time taken to apply one replicated log entry

# Usage

Updating Gauge Metrics:

	import "github.com/cuemby/solidb/pkg/metrics"

	metrics.DatabasesTotal.Set(5)
	metrics.NodesTotal.WithLabelValues("active").Set(3)

Updating Counter Metrics:

	metrics.QueriesTotal.WithLabelValues("ok").Inc()
	metrics.HTTPRequestsTotal.WithLabelValues("/_api/database/{db}/document/{collection}", "OK").Inc()

Recording Histogram Observations:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.QueryDuration)

Using Timer with Labels:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.HTTPRequestDuration, route)

# Integration Points

This package integrates with:

  - pkg/transport: instruments every HTTP/RPC request, query, cache
    lookup, and change-feed subscription
  - pkg/replicator: instruments per-entry apply duration and lag
  - pkg/cluster: the Collector reads Membership and Coordinator state
  - pkg/storage: the Collector reads Catalog state
  - Prometheus: scrapes /metrics

# Design Patterns

Package Init Registration:
  - All metrics registered in init()
  - MustRegister panics on duplicate registration

Label Discipline:
  - route, status, op, outcome, database, collection, cache, peer are
    all bounded by the set of routes/commands/databases/peers a node
    actually serves -- never a document key or query string

Timer Pattern:
  - Create a timer at operation start, observe duration at the end
  - Works for both plain and vector histograms

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
