package transport

import (
	"github.com/cuemby/solidb/pkg/index"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

// maintainerFor builds the index.Maintainer for one descriptor. There is
// no central index-manager/hook-registration layer in pkg/index yet
// (every maintainer type is constructed directly against a
// *storage.Engine), so the transport layer -- the one place that already
// knows about every collection's declared indexes via storage.Catalog --
// is what wires a new index's maintainer into existence and backfills it.
func maintainerFor(e *storage.Engine, documents *storage.Documents, database, collection string, idx *types.Index) (index.Maintainer, error) {
	switch idx.Kind {
	case types.IndexHash:
		return index.NewHash(e, database, collection, idx.Name, idx.Fields, idx.Unique), nil
	case types.IndexPersistent:
		return index.NewPersistent(e, database, collection, idx.Name, idx.Fields, idx.Unique), nil
	case types.IndexFulltext:
		field := ""
		if len(idx.Fields) > 0 {
			field = idx.Fields[0]
		}
		minLen := idx.MinTokenLength
		if minLen == 0 {
			minLen = 3
		}
		return index.NewFulltext(e, database, collection, idx.Name, []string{field}, minLen), nil
	case types.IndexGeo:
		lat, lon := "lat", "lon"
		if len(idx.Fields) >= 2 {
			lat, lon = idx.Fields[0], idx.Fields[1]
		}
		return index.NewGeo(e, database, collection, idx.Name, lat, lon), nil
	case types.IndexTTL:
		field := "_expire_at"
		if len(idx.Fields) > 0 {
			field = idx.Fields[0]
		}
		return index.NewTTL(e, documents, database, collection, field, idx.ExpireAfterSeconds), nil
	case types.IndexBloom:
		field := ""
		if len(idx.Fields) > 0 {
			field = idx.Fields[0]
		}
		return index.NewBloom(e, database, collection, idx.Name, field, 100000, 0.01)
	case types.IndexVector:
		params := types.HNSWParams{Dimension: 128, Metric: types.DistanceCosine, M: 16, EfConstruction: 200, EfSearch: 50}
		if idx.HNSW != nil {
			params = *idx.HNSW
		}
		return index.NewVector(e, database, collection, idx.Name, params)
	default:
		return nil, types.NewError(types.ErrInvalidArgument, "unknown index kind %q", idx.Kind)
	}
}

// createIndex persists a new index descriptor on the collection and
// backfills it against every existing document via Documents.Scan,
// matching the non-index-aware write path's existing documents.
func (s *Server) createIndex(database, collection, kind, name string, fields []string, unique bool) (*types.Index, error) {
	col, err := s.catalog.GetCollection(database, collection)
	if err != nil {
		return nil, err
	}
	for _, existing := range col.Indexes {
		if existing.Name == name {
			return nil, types.NewError(types.ErrDuplicateKey, "index %q already exists on %s/%s", name, database, collection)
		}
	}
	idx := &types.Index{
		Name:   name,
		Kind:   types.IndexKind(kind),
		Fields: fields,
		Unique: unique,
		Status: types.IndexBuilding,
	}

	documents, err := s.documentsFor(database)
	if err != nil {
		return nil, err
	}
	maintainer, err := maintainerFor(s.engine, documents, database, collection, idx)
	if err != nil {
		return nil, err
	}
	if err := documents.Scan(collection, func(doc *types.Document) error {
		return maintainer.OnInsert(doc)
	}); err != nil {
		return nil, err
	}
	idx.Status = types.IndexReady

	col.Indexes = append(col.Indexes, idx)
	if err := s.catalog.UpdateCollection(database, col); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *Server) deleteIndex(database, collection, name string) error {
	col, err := s.catalog.GetCollection(database, collection)
	if err != nil {
		return err
	}
	kept := col.Indexes[:0]
	found := false
	for _, idx := range col.Indexes {
		if idx.Name == name {
			found = true
			continue
		}
		kept = append(kept, idx)
	}
	if !found {
		return types.NewError(types.ErrNotFound, "index %q not found on %s/%s", name, database, collection)
	}
	col.Indexes = kept
	return s.catalog.UpdateCollection(database, col)
}
