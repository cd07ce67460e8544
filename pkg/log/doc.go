/*
Package log provides structured logging for SoliDB using zerolog.

The log package wraps the zerolog library to provide JSON-structured
logging with component-specific loggers, configurable log levels, and
helper functions for common logging patterns. All logs include
timestamps and support filtering by severity level for production
debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("transport")                │          │
	│  │  - WithNodeID("node-1")                      │          │
	│  │  - WithDatabase("app")                       │          │
	│  │  - WithCollection("widgets")                 │          │
	│  │  - WithShard(3)                              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all packages, thread-safe for concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (defaults to stdout)

Context Loggers:
  - WithComponent: tag logs with a subsystem name (transport, cluster,
    replicator, storage)
  - WithNodeID: tag logs with the local node ID
  - WithDatabase / WithCollection: tag logs with the database/collection
    a request or query touched
  - WithShard: tag logs with a shard ID

# Usage

Initializing the logger:

	import "github.com/cuemby/solidb/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("catalog loaded")
	log.Warn("replication lag exceeds threshold")
	log.Error("shard rebalance failed")
	log.Fatal("cannot open data directory") // exits process

Component loggers:

	txLog := log.WithComponent("transport")
	txLog.Info().Str("route", "/_api/database/{db}/document/{collection}").Msg("request handled")

	replLog := log.WithComponent("replicator").With().Str("peer", peerID).Logger()
	replLog.Error().Err(err).Msg("apply failed")

Context logger helpers:

	dbLog := log.WithDatabase("app")
	dbLog.Info().Msg("database opened")

	shardLog := log.WithShard(3)
	shardLog.Warn().Msg("shard table stale")

# Integration Points

This package integrates with:

  - cmd/solidbd: initializes the logger at startup from CLI flags
  - pkg/transport (and pkg/transport/grpcapi): logs request handling and
    server lifecycle
  - pkg/replicator: logs failed sync and apply rounds
  - pkg/index: logs from the TTL index's expiry handling

pkg/cluster and pkg/storage do not log through this package.

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance, initialized once at startup
  - Accessible from all packages without passing it through call chains

Context Logger Pattern:
  - Create child loggers with context fields, pass them down instead of
    re-specifying component/node/database on every call site

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err) instead of string concatenation
    so logs stay parseable by log aggregation tools

# Security

Never log secrets, passwords, or auth tokens. Use structured fields for
user-supplied values rather than concatenating them into the message,
to avoid log injection.

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
