package columnar

import (
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// Table buffers rows for a columnar collection and seals them into
// Chunks of ChunkSize, persisting each sealed chunk through the shared
// storage Engine (spec §4.7).
type Table struct {
	engine     *storage.Engine
	database   string
	collection string
	columns    []types.ColumnDef

	pending      map[string][]types.Value
	pendingRows  int
	sealedChunks int
	totalRows    int
}

func NewTable(e *storage.Engine, database, collection string, columns []types.ColumnDef) *Table {
	return &Table{engine: e, database: database, collection: collection, columns: columns, pending: map[string][]types.Value{}}
}

// AppendRow adds one row, keyed by column name, sealing a chunk once
// ChunkSize rows have accumulated.
func (t *Table) AppendRow(row map[string]types.Value) error {
	for _, col := range t.columns {
		v, ok := row[col.Name]
		if !ok {
			v = types.Null()
		}
		t.pending[col.Name] = append(t.pending[col.Name], v)
	}
	t.pendingRows++
	t.totalRows++
	if t.pendingRows >= ChunkSize {
		return t.seal()
	}
	return nil
}

// Flush seals any partially-filled chunk, used when writes stop short of
// a full ChunkSize (spec §4.7 does not require chunks to be full-sized,
// only that full chunks are exactly ChunkSize).
func (t *Table) Flush() error {
	if t.pendingRows == 0 {
		return nil
	}
	return t.seal()
}

func (t *Table) seal() error {
	chunk, err := Build(t.columns, t.pending, t.totalRows-t.pendingRows)
	if err != nil {
		return err
	}
	if err := SaveChunk(t.engine, t.database, t.collection, t.sealedChunks, chunk); err != nil {
		return err
	}
	t.sealedChunks++
	t.pending = map[string][]types.Value{}
	t.pendingRows = 0
	return nil
}

// ChunkCount returns the number of sealed chunks.
func (t *Table) ChunkCount() int { return t.sealedChunks }

// ScanStats records the pruning counters EXPLAIN ANALYZE surfaces (spec
// §4.8, §11 supplemented "chunks_scanned"/"chunks_skipped" counters
// alongside documents_scanned/documents_returned).
type ScanStats struct {
	ChunksScanned int
	ChunksSkipped int
	RowsScanned   int
	RowsReturned  int
}

// Scan decompresses and visits every row across all sealed chunks whose
// zone map could satisfy [lo, hi) on rangeColumn, calling fn with each
// row's values keyed by column name. An empty rangeColumn disables pruning.
func (t *Table) Scan(rangeColumn string, lo, hi *types.Value, fn func(row map[string]types.Value) (keep bool, err error)) (*ScanStats, error) {
	stats := &ScanStats{}
	for i := 0; i < t.sealedChunks; i++ {
		chunk, err := LoadChunk(t.engine, t.database, t.collection, i)
		if err != nil {
			return stats, err
		}
		if chunk == nil {
			continue
		}
		if rangeColumn != "" && !chunk.MatchesRange(rangeColumn, lo, hi) {
			stats.ChunksSkipped++
			continue
		}
		stats.ChunksScanned++

		decoded := map[string][]types.Value{}
		for _, col := range t.columns {
			vs, err := chunk.Decode(col)
			if err != nil {
				return stats, err
			}
			decoded[col.Name] = vs
		}
		for r := 0; r < chunk.RowCount; r++ {
			row := make(map[string]types.Value, len(t.columns))
			for _, col := range t.columns {
				row[col.Name] = decoded[col.Name][r]
			}
			stats.RowsScanned++
			keep, err := fn(row)
			if err != nil {
				return stats, err
			}
			if keep {
				stats.RowsReturned++
			}
		}
	}
	return stats, nil
}

// AggFunc enumerates the aggregation functions COLLECT/AGGREGATE supports
// over columnar data (spec §4.8 "COLLECT/AGGREGATE").
type AggFunc string

const (
	AggCount AggFunc = "count"
	AggSum   AggFunc = "sum"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
	AggAvg   AggFunc = "avg"
)

// TimeBucket truncates a unix-seconds timestamp value down to the nearest
// multiple of bucketSeconds, the grouping key for time-bucketed
// aggregation (spec §4.8 "aggregation with time-bucket grouping").
func TimeBucket(ts types.Value, bucketSeconds int64) types.Value {
	if !ts.IsNumber() || bucketSeconds <= 0 {
		return ts
	}
	t := int64(ts.AsFloat())
	return types.Int((t / bucketSeconds) * bucketSeconds)
}

type aggState struct {
	count int64
	sum   float64
	min   types.Value
	max   types.Value
	hasMM bool
}

// Aggregate groups rows from Scan by groupColumn (pass "" for a single
// ungrouped group) and computes aggFunc over valueColumn per group.
func (t *Table) Aggregate(groupColumn, valueColumn string, bucketSeconds int64, aggFunc AggFunc) (map[string]types.Value, error) {
	groups := map[string]*aggState{}
	_, err := t.Scan("", nil, nil, func(row map[string]types.Value) (bool, error) {
		var key string
		if groupColumn == "" {
			key = "*"
		} else {
			g := row[groupColumn]
			if bucketSeconds > 0 {
				g = TimeBucket(g, bucketSeconds)
			}
			key = g.String()
		}
		st, ok := groups[key]
		if !ok {
			st = &aggState{}
			groups[key] = st
		}
		v := row[valueColumn]
		st.count++
		if v.IsNumber() {
			st.sum += v.AsFloat()
			if !st.hasMM {
				st.min, st.max = v, v
				st.hasMM = true
			} else {
				if types.Compare(v, st.min) < 0 {
					st.min = v
				}
				if types.Compare(v, st.max) > 0 {
					st.max = v
				}
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]types.Value, len(groups))
	for key, st := range groups {
		switch aggFunc {
		case AggCount:
			out[key] = types.Int(st.count)
		case AggSum:
			out[key] = types.Float(st.sum)
		case AggAvg:
			if st.count == 0 {
				out[key] = types.Null()
			} else {
				out[key] = types.Float(st.sum / float64(st.count))
			}
		case AggMin:
			out[key] = st.min
		case AggMax:
			out[key] = st.max
		}
	}
	return out, nil
}
