/*
Package replicator tails a peer's replication log and applies its entries
to local storage, idempotently (spec §4.10 "Replication loops").

Each Peer runs its own tailing loop: fetch entries after the last
acknowledged sequence from the peer (via an injected PeerClient, backed in
production by pkg/transport's binary RPC), hand each entry to an Applier,
and advance the acknowledged sequence only once the Applier confirms it
landed. A peer whose Applier keeps failing is quarantined rather than
retried forever, and RPC failures back off exponentially with jitter so a
flapping peer does not busy-loop the tailer.

Idempotence is enforced by a Dedup store keyed on (origin_node,
origin_sequence): the protocol.rs-style replication message carries both
an entry's own sequence (local to the log it was tailed from) and its
origin_sequence (assigned once, at the node that first originated the
write), so re-applying the same origin entry after a retry or a
reconnect is a no-op.
*/
package replicator
