/*
Package changefeed fans out per-collection document mutations to
subscribers (spec §4.11 "Change-feed"): every Insert/Update/Delete
SoliDB commits is published here, and WebSocket (or binary-protocol)
subscribers receive it as an ordered stream of events.

A Hub holds one broadcast Broker per (database, collection) pair, built
on the same buffered-channel, drop-if-full subscriber pattern the
teacher's pkg/events.Broker uses. Change-feed subscribers additionally
get spec's slow-consumer policy: a subscriber whose buffer is full is
disconnected outright rather than silently missing events, so a client
can tell a gap happened instead of trusting a stream that quietly
skipped entries.

The Hub's global feed aggregates every collection's events and
deduplicates by (origin node, origin sequence) so a change replicated
to this node from its origin and also observed locally (e.g. during
catch-up) is delivered at most once.
*/
package changefeed
