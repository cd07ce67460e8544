package columnar

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pierrec/lz4/v4"

	"github.com/cuemby/solidb/pkg/codec"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// ChunkSize is the fixed number of rows per columnar chunk (spec §4.7
// "fixed 1000-row chunks").
const ChunkSize = 1000

// RoaringThreshold is the row count above which a chunk's null bitmap is
// roaring-encoded rather than kept as a plain bitset (spec §9 Open
// Question, decided in DESIGN.md in favor of the spec's own 10k-row
// cutoff... this package operates per-chunk at 1000 rows, so the roaring
// encoding applies to the table's cumulative row count, tracked by the
// Table wrapper in aggregate.go).
const RoaringThreshold = 10000

// ZoneMap summarizes one column's values within a chunk so predicates can
// skip the chunk without decompressing it (spec §4.7 "zone maps").
type ZoneMap struct {
	Min       types.Value `json:"min"`
	Max       types.Value `json:"max"`
	NullCount int         `json:"null_count"`
}

// Chunk is ChunkSize rows of one columnar collection, one block per
// column, each independently lz4-compressed.
type Chunk struct {
	Columns   []types.ColumnDef       `json:"-"`
	Blocks    map[string][]byte       `json:"blocks"` // compressed, one per column
	ZoneMaps  map[string]ZoneMap      `json:"zone_maps"`
	NullMasks map[string][]byte       `json:"null_masks"` // roaring-serialized or raw bitset
	RowCount  int                     `json:"row_count"`
}

// Build compresses rows (column name -> row-ordered values) into a sealed
// Chunk, computing zone maps and null masks per column.
func Build(columns []types.ColumnDef, rows map[string][]types.Value, cumulativeRows int) (*Chunk, error) {
	n := 0
	for _, vs := range rows {
		if len(vs) > n {
			n = len(vs)
		}
	}
	c := &Chunk{
		Columns:   columns,
		Blocks:    map[string][]byte{},
		ZoneMaps:  map[string]ZoneMap{},
		NullMasks: map[string][]byte{},
		RowCount:  n,
	}
	for _, col := range columns {
		values := rows[col.Name]
		raw := encodeColumn(col.Type, values)
		compressed, err := compress(raw)
		if err != nil {
			return nil, err
		}
		c.Blocks[col.Name] = compressed
		c.ZoneMaps[col.Name] = computeZoneMap(values)
		c.NullMasks[col.Name] = encodeNullMask(values, cumulativeRows+n)
	}
	return c, nil
}

func encodeNullMask(values []types.Value, cumulativeRows int) []byte {
	if cumulativeRows > RoaringThreshold {
		bm := roaring.New()
		for i, v := range values {
			if v.IsNull() {
				bm.Add(uint32(i))
			}
		}
		buf, _ := bm.ToBytes()
		return buf
	}
	mask := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v.IsNull() {
			mask[i/8] |= 1 << uint(i%8)
		}
	}
	return mask
}

func computeZoneMap(values []types.Value) ZoneMap {
	zm := ZoneMap{Min: types.Null(), Max: types.Null()}
	first := true
	for _, v := range values {
		if v.IsNull() {
			zm.NullCount++
			continue
		}
		if first {
			zm.Min, zm.Max = v, v
			first = false
			continue
		}
		if types.Compare(v, zm.Min) < 0 {
			zm.Min = v
		}
		if types.Compare(v, zm.Max) > 0 {
			zm.Max = v
		}
	}
	return zm
}

// encodeColumn serializes a typed column's values into a flat byte
// buffer: fixed-width for int/float/bool, length-prefixed for string.
func encodeColumn(colType string, values []types.Value) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		switch colType {
		case "int":
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(v.AsInt()))
			buf.Write(b[:])
		case "float":
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.AsFloat()))
			buf.Write(b[:])
		case "bool":
			if v.AsBool() {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		default: // "string"
			s := v.AsString()
			var lb [4]byte
			binary.LittleEndian.PutUint32(lb[:], uint32(len(s)))
			buf.Write(lb[:])
			buf.WriteString(s)
		}
	}
	return buf.Bytes()
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	r := lz4.NewReader(bytes.NewReader(data))
	if _, err := out.ReadFrom(r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// MatchesRange reports whether the chunk's zone map for column could
// contain a value in [lo, hi) — used to skip decompression entirely when
// it cannot (spec §4.7: EXPLAIN ANALYZE's chunks_skipped counter).
func (c *Chunk) MatchesRange(column string, lo, hi *types.Value) bool {
	zm, ok := c.ZoneMaps[column]
	if !ok {
		return true
	}
	if lo != nil && types.Compare(zm.Max, *lo) < 0 {
		return false
	}
	if hi != nil && types.Compare(zm.Min, *hi) >= 0 {
		return false
	}
	return true
}

// Marshal/Unmarshal persist a Chunk as JSON via the storage engine's
// generic byte buckets (columns themselves are already lz4-compressed,
// so the JSON envelope overhead is just metadata).
func (c *Chunk) Marshal() ([]byte, error) { return json.Marshal(c) }

func UnmarshalChunk(data []byte) (*Chunk, error) {
	var c Chunk
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Decode returns a column's decompressed, typed values.
func (c *Chunk) Decode(col types.ColumnDef) ([]types.Value, error) {
	raw, err := decompress(c.Blocks[col.Name])
	if err != nil {
		return nil, err
	}
	return decodeColumn(col.Type, raw, c.RowCount), nil
}

func decodeColumn(colType string, raw []byte, rowCount int) []types.Value {
	out := make([]types.Value, 0, rowCount)
	off := 0
	for len(out) < rowCount && off < len(raw) {
		switch colType {
		case "int":
			out = append(out, types.Int(int64(binary.LittleEndian.Uint64(raw[off:]))))
			off += 8
		case "float":
			out = append(out, types.Float(math.Float64frombits(binary.LittleEndian.Uint64(raw[off:]))))
			off += 8
		case "bool":
			out = append(out, types.Bool(raw[off] == 1))
			off++
		default:
			l := int(binary.LittleEndian.Uint32(raw[off:]))
			off += 4
			out = append(out, types.String(string(raw[off:off+l])))
			off += l
		}
	}
	return out
}

// SaveChunk/LoadChunk persist a sealed chunk under the collection's
// columnar bucket, keyed by its chunk index.
func SaveChunk(e *storage.Engine, database, collection string, chunkIndex int, c *Chunk) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return e.Put(database, "col:"+collection, codec.EncodeSequence(uint64(chunkIndex)), data)
}

func LoadChunk(e *storage.Engine, database, collection string, chunkIndex int) (*Chunk, error) {
	data, err := e.Get(database, "col:"+collection, codec.EncodeSequence(uint64(chunkIndex)))
	if err != nil || data == nil {
		return nil, err
	}
	return UnmarshalChunk(data)
}
