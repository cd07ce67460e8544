package index

import (
	"encoding/json"
	"math"
	"math/bits"
	"sort"
	"sync"

	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// hnswNode is one persisted graph vertex: its vector, optional scalar
// quantization, and per-layer neighbor lists.
type hnswNode struct {
	DocKey    string      `json:"doc_key"`
	Vector    []float32   `json:"vector,omitempty"`
	Quantized []int8      `json:"quantized,omitempty"`
	Scale     float32     `json:"scale,omitempty"`
	Layer     int         `json:"layer"`
	Neighbors [][]string  `json:"neighbors"` // Neighbors[level] = doc keys
}

// Vector implements a layered-proximity-graph (HNSW) index (spec §4.3
// "vector: layered proximity graph"). Graph state is held in memory and
// mirrored to the storage engine so it survives a restart; production
// deployments with very large vector sets would want an on-disk graph
// representation, which the spec leaves as a future refinement.
type Vector struct {
	engine     *storage.Engine
	database   string
	collection string
	name       string
	params     types.HNSWParams

	mu       sync.RWMutex
	nodes    map[string]*hnswNode
	entry    string
	maxLevel int
}

func NewVector(e *storage.Engine, database, collection, name string, params types.HNSWParams) (*Vector, error) {
	v := &Vector{engine: e, database: database, collection: collection, name: name, params: params, nodes: map[string]*hnswNode{}}
	if err := v.load(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vector) bucket() string { return bucketName("vector", v.database, v.collection, v.name) }

func (v *Vector) load() error {
	return v.engine.ForEach(v.database, v.bucket(), func(k, val []byte) error {
		var n hnswNode
		if err := json.Unmarshal(val, &n); err != nil {
			return err
		}
		v.nodes[n.DocKey] = &n
		if v.entry == "" || n.Layer > v.maxLevel {
			v.maxLevel = n.Layer
			v.entry = n.DocKey
		}
		return nil
	})
}

func (v *Vector) persist(n *hnswNode) error {
	if v.params.Quantization == "scalar" {
		quantizeScalar(n)
	}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return v.engine.Put(v.database, v.bucket(), []byte(n.DocKey), data)
}

// quantizeScalar maps a node's float32 components into int8 buckets
// scaled to the vector's own max magnitude (spec §4.3 "optional
// quantization"). The codes are stored alongside the full-precision
// vector, which is still persisted and used for distances, so the stored
// size is not reduced.
func quantizeScalar(n *hnswNode) {
	if len(n.Vector) == 0 {
		return
	}
	var maxAbs float32
	for _, f := range n.Vector {
		if abs := float32(math.Abs(float64(f))); abs > maxAbs {
			maxAbs = abs
		}
	}
	if maxAbs == 0 {
		return
	}
	scale := maxAbs / 127
	n.Quantized = make([]int8, len(n.Vector))
	for i, f := range n.Vector {
		n.Quantized[i] = int8(f / scale)
	}
	n.Scale = scale
}

func randomLevel() int {
	// Geometric distribution with p=1/2, matching the standard HNSW level
	// assignment so the graph's expected layer sizes halve each level up.
	n := bits.TrailingZeros32(uint32(1)<<31 | uint32(pseudoRand()))
	if n > 16 {
		n = 16
	}
	return n
}

var randState uint64 = 0x9E3779B97F4A7C15

func pseudoRand() uint32 {
	randState ^= randState << 13
	randState ^= randState >> 7
	randState ^= randState << 17
	return uint32(randState)
}

func distance(metric types.DistanceMetric, a, b []float32) float32 {
	switch metric {
	case types.DistanceL2:
		var sum float32
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return float32(math.Sqrt(float64(sum)))
	case types.DistanceInnerProduct:
		var dot float32
		for i := range a {
			dot += a[i] * b[i]
		}
		return -dot
	default: // cosine
		var dot, na, nb float32
		for i := range a {
			dot += a[i] * b[i]
			na += a[i] * a[i]
			nb += b[i] * b[i]
		}
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
	}
}

type candidate struct {
	key  string
	dist float32
}

// Insert adds vec under docKey to the graph (spec §4.3: M controls max
// neighbors per layer, EfConstruction controls search-list width while
// building).
func (v *Vector) Insert(docKey string, vec []float32) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	level := randomLevel()
	node := &hnswNode{DocKey: docKey, Vector: vec, Layer: level, Neighbors: make([][]string, level+1)}

	if v.entry == "" {
		v.nodes[docKey] = node
		v.entry = docKey
		v.maxLevel = level
		return v.persist(node)
	}

	entry := v.entry
	for l := v.maxLevel; l > level; l-- {
		entry = v.greedyClosest(entry, vec, l)
	}

	touched := map[string]*hnswNode{}
	for l := minInt(level, v.maxLevel); l >= 0; l-- {
		candidates := v.searchLayer(vec, entry, v.params.EfConstruction, l)
		neighbors := v.selectNeighborsHeuristic(candidates, v.params.M)
		node.Neighbors[l] = neighbors
		for _, nk := range neighbors {
			nn := v.nodes[nk]
			nn.Neighbors[l] = appendUnique(nn.Neighbors[l], docKey)
			if len(nn.Neighbors[l]) > v.params.M {
				nn.Neighbors[l] = v.selectNeighborsHeuristic(v.toCandidates(nn.Vector, nn.Neighbors[l]), v.params.M)
			}
			touched[nk] = nn
		}
		if len(candidates) > 0 {
			entry = candidates[0].key
		}
	}

	v.nodes[docKey] = node
	touched[docKey] = node
	if level > v.maxLevel {
		v.maxLevel = level
		v.entry = docKey
	}
	for _, n := range touched {
		if err := v.persist(n); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vector) toCandidates(query []float32, keys []string) []candidate {
	out := make([]candidate, 0, len(keys))
	for _, k := range keys {
		if n, ok := v.nodes[k]; ok {
			out = append(out, candidate{key: k, dist: distance(v.params.Metric, query, n.Vector)})
		}
	}
	return out
}

func appendUnique(list []string, k string) []string {
	for _, e := range list {
		if e == k {
			return list
		}
	}
	return append(list, k)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (v *Vector) greedyClosest(from string, vec []float32, level int) string {
	current := from
	for {
		node := v.nodes[current]
		best := current
		bestDist := distance(v.params.Metric, vec, node.Vector)
		improved := false
		if level < len(node.Neighbors) {
			for _, nk := range node.Neighbors[level] {
				nn := v.nodes[nk]
				d := distance(v.params.Metric, vec, nn.Vector)
				if d < bestDist {
					bestDist = d
					best = nk
					improved = true
				}
			}
		}
		if !improved {
			return best
		}
		current = best
	}
}

// searchLayer performs a best-first search of width ef at level, starting
// from entry, returning candidates sorted nearest-first.
func (v *Vector) searchLayer(vec []float32, entry string, ef int, level int) []candidate {
	visited := map[string]bool{entry: true}
	entryNode := v.nodes[entry]
	found := []candidate{{key: entry, dist: distance(v.params.Metric, vec, entryNode.Vector)}}
	frontier := append([]candidate(nil), found...)

	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool { return frontier[i].dist < frontier[j].dist })
		c := frontier[0]
		frontier = frontier[1:]

		node := v.nodes[c.key]
		if level >= len(node.Neighbors) {
			continue
		}
		for _, nk := range node.Neighbors[level] {
			if visited[nk] {
				continue
			}
			visited[nk] = true
			nn := v.nodes[nk]
			d := distance(v.params.Metric, vec, nn.Vector)
			found = append(found, candidate{key: nk, dist: d})
			frontier = append(frontier, candidate{key: nk, dist: d})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].dist < found[j].dist })
	if len(found) > ef {
		found = found[:ef]
	}
	return found
}

// selectNeighborsHeuristic implements HNSW's heuristic neighbor selection
// (spec §9 Open Question, decided in favor of heuristic over simple
// nearest-M): a candidate is kept only if it is closer to the query than
// to every neighbor already selected, which spreads the graph's edges
// across directions instead of clustering them.
func (v *Vector) selectNeighborsHeuristic(candidates []candidate, m int) []string {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	var selected []candidate
	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		good := true
		for _, s := range selected {
			if distance(v.params.Metric, v.nodes[c.key].Vector, v.nodes[s.key].Vector) < c.dist {
				good = false
				break
			}
		}
		if good {
			selected = append(selected, c)
		}
	}
	out := make([]string, len(selected))
	for i, s := range selected {
		out[i] = s.key
	}
	return out
}

// Search returns the k nearest document keys to vec (spec §4.3
// EfSearch controls the candidate list width during query time).
func (v *Vector) Search(vec []float32, k int) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.entry == "" {
		return nil
	}
	entry := v.entry
	for l := v.maxLevel; l > 0; l-- {
		entry = v.greedyClosest(entry, vec, l)
	}
	ef := v.params.EfSearch
	if ef < k {
		ef = k
	}
	candidates := v.searchLayer(vec, entry, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.key
	}
	return out
}

func (v *Vector) OnInsert(doc *types.Document) error {
	vec, ok := v.vectorOf(doc)
	if !ok {
		return nil
	}
	return v.Insert(doc.Key(), vec)
}

// OnUpdate re-inserts the vector; graph nodes are never pruned mid-life
// (a full incremental-delete HNSW needs tombstones the spec does not
// require).
func (v *Vector) OnUpdate(old, new *types.Document) error {
	return v.OnInsert(new)
}

func (v *Vector) OnDelete(*types.Document) error { return nil }

func (v *Vector) vectorOf(doc *types.Document) ([]float32, bool) {
	fv, ok := doc.Fields.Get("vector")
	if !ok || fv.Kind() != types.KindArray {
		return nil, false
	}
	arr := fv.AsArray()
	out := make([]float32, len(arr))
	for i, e := range arr {
		if !e.IsNumber() {
			return nil, false
		}
		out[i] = float32(e.AsFloat())
	}
	return out, true
}
