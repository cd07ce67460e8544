/*
Package cluster implements SoliDB's cluster plane: node membership with a
heartbeat/suspect/dead lifecycle, shard assignment and key routing, and a
raft-backed coordinator that keeps the cluster's shard table monotonically
versioned across an election (spec §4.9).

Membership is purely local bookkeeping: a health monitor tick inspects
timestamps the transport layer updates on heartbeat receipt, and never
contacts a peer itself. Shard routing is a pure function of the key and the
shard count, stable across nodes and releases. The shard table itself is
authoritative only at the elected coordinator; Coordinator wraps raft to
give that election and to replicate shard-table updates as a monotonic
raft-applied log, mirroring the teacher's `pkg/manager` package but
replacing its container/service/task commands with a single
"set shard table" command.
*/
package cluster
