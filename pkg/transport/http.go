package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cuemby/solidb/pkg/log"
	"github.com/cuemby/solidb/pkg/metrics"
	"github.com/cuemby/solidb/pkg/types"
)

// newHTTPHandler builds the chi router serving spec §6's REST surface
// plus the change-feed WebSocket upgrade.
func (s *Server) newHTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.requestMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Post("/auth/login", s.handleLogin)
	r.Get("/_api/ws/changefeed", s.handleChangefeedWS)

	r.Route("/_api/database", func(r chi.Router) {
		r.Get("/", s.handleListDatabases)
		r.Post("/", s.handleCreateDatabase)
		r.Delete("/{db}", s.handleDeleteDatabase)

		r.Post("/{db}/collection", s.handleCreateCollection)
		r.Put("/{db}/collection/{collection}/properties", s.handleUpdateCollectionProperties)
		r.Delete("/{db}/collection/{collection}", s.handleDeleteCollection)
		r.Get("/{db}/collection/{collection}/sharding", s.handleSharding)

		r.Post("/{db}/collection/{collection}/index", s.handleCreateIndex)
		r.Get("/{db}/collection/{collection}/index", s.handleListIndexes)
		r.Delete("/{db}/collection/{collection}/index/{name}", s.handleDeleteIndex)

		r.Post("/{db}/document/{collection}", s.handleInsertDocument)
		r.Get("/{db}/document/{collection}/{key}", s.handleGetDocument)
		r.Put("/{db}/document/{collection}/{key}", s.handleUpdateDocument)
		r.Delete("/{db}/document/{collection}/{key}", s.handleDeleteDocument)

		r.Post("/{db}/cursor", s.handleCursor)
		r.Post("/{db}/explain", s.handleExplain)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	logger := log.WithComponent("transport-http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("http request")
		next.ServeHTTP(w, r)
	})
}

// requestMetrics records HTTPRequestsTotal/HTTPRequestDuration labeled by
// the matched chi route pattern rather than the raw path, so "/document/
// widgets/abc" and "/document/widgets/xyz" aggregate to one series.
func (s *Server) requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		timer.ObserveDurationVec(metrics.HTTPRequestDuration, route)
		metrics.HTTPRequestsTotal.WithLabelValues(route, http.StatusText(status)).Inc()
	})
}

func decodeJSONBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

// writeAPIError maps a domain *types.Error (or any error) to an HTTP
// status and writes the tagged error body (spec §7 "stable kind tag").
func writeAPIError(w http.ResponseWriter, format apiFormat, err error) {
	kind := types.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case types.ErrNotFound:
		status = http.StatusNotFound
	case types.ErrDuplicateKey, types.ErrRevisionConflict, types.ErrSerializationConflict:
		status = http.StatusConflict
	case types.ErrSchemaViolation, types.ErrTypeError, types.ErrParseError, types.ErrInvalidArgument:
		status = http.StatusBadRequest
	case types.ErrTimeout:
		status = http.StatusGatewayTimeout
	case types.ErrUnavailable:
		status = http.StatusServiceUnavailable
	case types.ErrForbidden:
		status = http.StatusForbidden
	case types.ErrUnauthenticated:
		status = http.StatusUnauthorized
	}
	message := err.Error()
	if e, ok := err.(*types.Error); ok {
		message = e.Message
	}
	writeError(w, format, status, string(kind), message)
}

// --- databases ---

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	dbs, err := s.catalog.ListDatabases()
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	names := make([]string, len(dbs))
	for i, d := range dbs {
		names[i] = d.Name
	}
	writeResponse(w, format, http.StatusOK, map[string]any{"databases": names})
}

func (s *Server) handleCreateDatabase(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	if err := s.requireAdminRequest(r); err != nil {
		writeAPIError(w, format, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, format, http.StatusBadRequest, string(types.ErrInvalidArgument), err.Error())
		return
	}
	db, err := s.catalog.CreateDatabase(req.Name)
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	writeResponse(w, format, http.StatusCreated, map[string]any{"name": db.Name})
}

func (s *Server) handleDeleteDatabase(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	if err := s.requireAdminRequest(r); err != nil {
		writeAPIError(w, format, err)
		return
	}
	if err := s.catalog.DeleteDatabase(chi.URLParam(r, "db")); err != nil {
		writeAPIError(w, format, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- collections ---

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	database := chi.URLParam(r, "db")
	var req struct {
		Name              string `json:"name"`
		Type              string `json:"type"`
		NumShards         int    `json:"num_shards"`
		ReplicationFactor int    `json:"replication_factor"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, format, http.StatusBadRequest, string(types.ErrInvalidArgument), err.Error())
		return
	}
	kind := types.CollectionDocument
	if req.Type != "" {
		kind = types.CollectionKind(req.Type)
	}
	col := &types.Collection{
		Name: req.Name,
		Kind: kind,
		Shards: types.ShardConfig{
			NumShards:         maxInt(req.NumShards, 1),
			ReplicationFactor: maxInt(req.ReplicationFactor, 1),
		},
	}
	if err := s.catalog.CreateCollection(database, col); err != nil {
		writeAPIError(w, format, err)
		return
	}
	writeResponse(w, format, http.StatusCreated, map[string]any{"name": col.Name, "kind": string(col.Kind)})
}

func (s *Server) handleUpdateCollectionProperties(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	database := chi.URLParam(r, "db")
	name := chi.URLParam(r, "collection")
	col, err := s.catalog.GetCollection(database, name)
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	var req struct {
		NumShards         *int `json:"num_shards"`
		ReplicationFactor *int `json:"replication_factor"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, format, http.StatusBadRequest, string(types.ErrInvalidArgument), err.Error())
		return
	}
	if req.NumShards != nil {
		col.Shards.NumShards = *req.NumShards
	}
	if req.ReplicationFactor != nil {
		col.Shards.ReplicationFactor = *req.ReplicationFactor
	}
	if err := s.catalog.UpdateCollection(database, col); err != nil {
		writeAPIError(w, format, err)
		return
	}
	writeResponse(w, format, http.StatusOK, map[string]any{"name": col.Name, "shards": col.Shards})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	if err := s.catalog.DeleteCollection(chi.URLParam(r, "db"), chi.URLParam(r, "collection")); err != nil {
		writeAPIError(w, format, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- documents ---

func (s *Server) handleInsertDocument(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	database := chi.URLParam(r, "db")
	collection := chi.URLParam(r, "collection")
	docs, err := s.documentsFor(database)
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		writeError(w, format, http.StatusBadRequest, string(types.ErrInvalidArgument), err.Error())
		return
	}
	fields, err := types.FromObjectOrdered(body)
	if err != nil {
		writeError(w, format, http.StatusBadRequest, string(types.ErrInvalidArgument), err.Error())
		return
	}
	doc, err := docs.Insert(collection, fields)
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	metrics.DocumentsTotal.WithLabelValues(database, collection).Inc()
	s.publishChange(database, collection, changeInsert, doc, nil)
	writeResponse(w, format, http.StatusCreated, documentToGo(doc))
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	database := chi.URLParam(r, "db")
	collection := chi.URLParam(r, "collection")
	key := chi.URLParam(r, "key")
	docs, err := s.documentsFor(database)
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	if cached, ok := s.docCache.Get(collection, key); ok {
		metrics.CacheHitsTotal.WithLabelValues("document").Inc()
		writeResponse(w, format, http.StatusOK, documentToGo(cached))
		return
	}
	metrics.CacheMissesTotal.WithLabelValues("document").Inc()
	doc, err := docs.Get(collection, key)
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	s.docCache.Put(collection, key, doc)
	writeResponse(w, format, http.StatusOK, documentToGo(doc))
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	database := chi.URLParam(r, "db")
	collection := chi.URLParam(r, "collection")
	key := chi.URLParam(r, "key")
	docs, err := s.documentsFor(database)
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		writeError(w, format, http.StatusBadRequest, string(types.ErrInvalidArgument), err.Error())
		return
	}
	patch, err := types.FromObjectOrdered(body)
	if err != nil {
		writeError(w, format, http.StatusBadRequest, string(types.ErrInvalidArgument), err.Error())
		return
	}
	old, _ := docs.Get(collection, key)
	doc, err := docs.Update(collection, key, patch, r.URL.Query().Get("rev"))
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	s.docCache.InvalidateKey(collection, key)
	s.publishChange(database, collection, changeUpdate, doc, old)
	writeResponse(w, format, http.StatusOK, documentToGo(doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	database := chi.URLParam(r, "db")
	collection := chi.URLParam(r, "collection")
	key := chi.URLParam(r, "key")
	docs, err := s.documentsFor(database)
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	old, _ := docs.Get(collection, key)
	if err := docs.Delete(collection, key, r.URL.Query().Get("rev")); err != nil {
		writeAPIError(w, format, err)
		return
	}
	s.docCache.InvalidateKey(collection, key)
	metrics.DocumentsTotal.WithLabelValues(database, collection).Dec()
	s.publishChange(database, collection, changeDelete, nil, old)
	w.WriteHeader(http.StatusNoContent)
}

// --- cursor / explain ---

type cursorRequest struct {
	Query    string                   `json:"query"`
	BindVars map[string]*types.Value  `json:"bindVars"`
	Count    bool                     `json:"count"`
}

func (s *Server) handleCursor(w http.ResponseWriter, r *http.Request) {
	s.runCursor(w, r, false)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	s.runCursor(w, r, true)
}

func (s *Server) runCursor(w http.ResponseWriter, r *http.Request, explainOnly bool) {
	format := formatFromRequest(r)
	database := chi.URLParam(r, "db")
	var req cursorRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, format, http.StatusBadRequest, string(types.ErrInvalidArgument), err.Error())
		return
	}
	binds := make(map[string]types.Value, len(req.BindVars))
	for k, v := range req.BindVars {
		if v != nil {
			binds[k] = *v
		}
	}
	rows, explain, err := s.runQuery(database, req.Query, binds, explainOnly)
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	resp := map[string]any{"result": rowsToGo(rows)}
	if req.Count {
		resp["count"] = len(rows)
	}
	if explain != nil {
		resp["sdbql"] = explainToGo(explain)
	}
	writeResponse(w, format, http.StatusOK, resp)
}

// --- indexes ---

type createIndexRequest struct {
	Name   string   `json:"name"`
	Kind   string   `json:"type"`
	Fields []string `json:"fields"`
	Unique bool     `json:"unique"`
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	database := chi.URLParam(r, "db")
	collection := chi.URLParam(r, "collection")
	var req createIndexRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, format, http.StatusBadRequest, string(types.ErrInvalidArgument), err.Error())
		return
	}
	idx, err := s.createIndex(database, collection, req.Kind, req.Name, req.Fields, req.Unique)
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	writeResponse(w, format, http.StatusCreated, indexToGo(idx))
}

func (s *Server) handleListIndexes(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	col, err := s.catalog.GetCollection(chi.URLParam(r, "db"), chi.URLParam(r, "collection"))
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	out := make([]map[string]any, len(col.Indexes))
	for i, idx := range col.Indexes {
		out[i] = indexToGo(idx)
	}
	writeResponse(w, format, http.StatusOK, map[string]any{"indexes": out})
}

func (s *Server) handleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	if err := s.deleteIndex(chi.URLParam(r, "db"), chi.URLParam(r, "collection"), chi.URLParam(r, "name")); err != nil {
		writeAPIError(w, format, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func indexToGo(idx *types.Index) map[string]any {
	return map[string]any{
		"name":   idx.Name,
		"type":   string(idx.Kind),
		"fields": idx.Fields,
		"unique": idx.Unique,
		"status": string(idx.Status),
	}
}

// --- sharding inspection ---

func (s *Server) handleSharding(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r)
	database := chi.URLParam(r, "db")
	collection := chi.URLParam(r, "collection")

	if s.shardTables == nil {
		writeResponse(w, format, http.StatusOK, map[string]any{"sharded": false, "shards": []any{}})
		return
	}
	table, ok, err := s.shardTables.Get(database, collection)
	if err != nil {
		writeAPIError(w, format, err)
		return
	}
	if !ok {
		writeResponse(w, format, http.StatusOK, map[string]any{"sharded": false, "shards": []any{}})
		return
	}
	shards := make([]map[string]any, len(table.Shards))
	for i, a := range table.Shards {
		shards[i] = map[string]any{
			"shard_id": a.ShardID,
			"status":   s.shardStatus(a.Primary),
			"primary":  a.Primary,
			"replicas": a.Replicas,
		}
	}
	writeResponse(w, format, http.StatusOK, map[string]any{"sharded": true, "shards": shards})
}

func (s *Server) shardStatus(nodeID string) string {
	if s.membership == nil {
		return string(types.NodeActive)
	}
	member, ok := s.membership.Get(nodeID)
	if !ok {
		return string(types.NodeDead)
	}
	return string(member.Status)
}

func (s *Server) requireAdminRequest(r *http.Request) error {
	c, err := s.authenticate(r)
	if err != nil {
		return err
	}
	return requireAdminErr(c)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
