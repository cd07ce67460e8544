/*
Package columnar implements SoliDB's columnar storage layer for columnar
collections: fixed-size row chunks, one typed block per column, lz4
compression, zone maps for chunk pruning, and aggregation with time-bucket
grouping (spec §4.7).

Rows are buffered in chunks of ChunkSize; a chunk is sealed (compressed
and written) once full. Each sealed chunk carries a zone map — per-column
{min, max, null_count} — so a scan with a range predicate can skip whole
chunks without decompressing them. Each chunk also stores, per column, a
mask of its null rows. Once the table's cumulative row count (rows in
earlier chunks plus this chunk's own) exceeds RoaringThreshold, the mask
is roaring-encoded; below that it is kept as a plain bitset (decided in
DESIGN.md).
*/
package columnar
