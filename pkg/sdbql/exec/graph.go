package exec

import (
	"strings"

	"github.com/cuemby/solidb/pkg/sdbql/ast"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// traverse performs the BFS behind `FOR v, e, p IN min..max
// OUTBOUND|INBOUND|ANY start edges` (spec §4.8 "Graph traversal"). The
// visited set is keyed by vertex _id so cycles terminate the walk instead
// of looping; path values are only built when f.Path is bound, since
// materializing them is otherwise wasted work.
func (ex *Executor) traverse(f *ast.For, base Row, startID string) ([]Row, error) {
	edges := storage.NewEdges(ex.Engine, ex.Database, f.Graph)
	needPath := f.Path != ""

	type frontierItem struct {
		vertexID string
		depth    int
		path     []types.Value // alternating vertex/edge objects, only when needPath
	}

	visited := map[string]bool{startID: true}
	frontier := []frontierItem{{vertexID: startID, depth: 0}}
	var out []Row

	for len(frontier) > 0 {
		var next []frontierItem
		for _, item := range frontier {
			var edgeKeys, neighbors []string
			var err error
			switch f.Direction {
			case "OUTBOUND":
				edgeKeys, neighbors, err = edges.Outbound(item.vertexID)
			case "INBOUND":
				edgeKeys, neighbors, err = edges.Inbound(item.vertexID)
			case "ANY":
				ok, on, oErr := edges.Outbound(item.vertexID)
				if oErr != nil {
					err = oErr
					break
				}
				ik, in, iErr := edges.Inbound(item.vertexID)
				if iErr != nil {
					err = iErr
					break
				}
				edgeKeys = append(ok, ik...)
				neighbors = append(on, in...)
			}
			if err != nil {
				return nil, err
			}
			if item.depth >= f.MaxDepth {
				continue
			}
			for i, nbr := range neighbors {
				if visited[nbr] {
					continue
				}
				depth := item.depth + 1
				edgeDoc, err := ex.fetchByID(f.Graph, edgeKeys[i])
				if err != nil {
					return nil, err
				}
				vertexDoc, err := ex.fetchByID(idCollection(nbr), idKey(nbr))
				if err != nil {
					return nil, err
				}

				var path []types.Value
				if needPath {
					path = append(append([]types.Value{}, item.path...), edgeDoc.Value(), vertexDoc.Value())
				}

				if depth >= f.MinDepth {
					row := base.clone()
					row[f.Var] = vertexDoc.Value()
					if f.Edge != "" {
						row[f.Edge] = edgeDoc.Value()
					}
					if needPath {
						row[f.Path] = pathObject(path)
					}
					out = append(out, row)
				}
				visited[nbr] = true
				next = append(next, frontierItem{vertexID: nbr, depth: depth, path: path})
			}
		}
		frontier = next
	}
	return out, nil
}

func idCollection(id string) string {
	if i := strings.IndexByte(id, '/'); i >= 0 {
		return id[:i]
	}
	return ""
}

func idKey(id string) string {
	if i := strings.IndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}

func (ex *Executor) fetchByID(collection, key string) (*types.Document, error) {
	doc, err := ex.Documents.Get(collection, key)
	if err != nil {
		return nil, err
	}
	ex.counters.DocumentsScanned++
	return doc, nil
}

// pathObject builds the `{vertices: [...], edges: [...]}` shape RETURN p
// exposes, splitting the alternating edge/vertex sequence collected
// during traversal.
func pathObject(seq []types.Value) types.Value {
	out := types.NewObject()
	var vertices, edgesArr []types.Value
	for i, v := range seq {
		if i%2 == 0 {
			edgesArr = append(edgesArr, v)
		} else {
			vertices = append(vertices, v)
		}
	}
	out.Set("edges", types.Array(edgesArr))
	out.Set("vertices", types.Array(vertices))
	return types.ObjectVal(out)
}
