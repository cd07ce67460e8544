/*
Package transport is SoliDB's single network edge (spec §4.11). One TCP
listener accepts every connection; a peek at the first bytes decides
whether the connection is handed to the HTTP server (JSON/MessagePack
REST plus the change-feed WebSocket) or read as the length-prefixed
MessagePack binary protocol. Bearer-token auth, content negotiation, and
the document/query caches all live at this edge rather than in the
storage layer beneath it, matching the "thin locator at the transport
edge" placement spec §5 calls out for otherwise process-wide state.

A Server owns one storage.Engine/storage.Catalog pair, a per-database
storage.Documents and txn.Manager built lazily on first use, a
changefeed.Hub, and (when the node runs in cluster mode) the
cluster.Membership and cluster.ShardTables used to answer the sharding
inspection endpoint. Listen accepts on a single address and dispatches
each connection to the HTTP or binary path.
*/
package transport
