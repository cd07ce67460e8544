package transport

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/solidb/pkg/cache"
	"github.com/cuemby/solidb/pkg/changefeed"
	"github.com/cuemby/solidb/pkg/cluster"
	"github.com/cuemby/solidb/pkg/log"
	"github.com/cuemby/solidb/pkg/metrics"
	"github.com/cuemby/solidb/pkg/replog"
	"github.com/cuemby/solidb/pkg/sdbql/exec"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/txn"
	"github.com/cuemby/solidb/pkg/types"
)

const (
	changeInsert = changefeed.Insert
	changeUpdate = changefeed.Update
	changeDelete = changefeed.Delete
)

// slowQueryThreshold is the duration above which a query is appended to
// _system/_slow_queries (spec §4.8 "Slow-query capture").
const slowQueryThreshold = 100 * time.Millisecond

func defaultQueryCacheTTL(seconds int) time.Duration {
	if seconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// Server wires the storage, query, transaction and change-feed layers
// into the single network edge spec §4.11 describes. One Server serves
// every database hosted on this node.
type Server struct {
	engine  *storage.Engine
	catalog *storage.Catalog
	nodeID  string

	mu        sync.Mutex
	documents map[string]*storage.Documents
	txns      map[string]*txn.Manager
	logs      map[string]*replog.Log

	changefeed *changefeed.Hub
	docCache   *cache.DocumentCache
	queryCache *cache.QueryCache

	shardTables *cluster.ShardTables
	membership  *cluster.Membership

	jwtSecret     []byte
	adminPassword string

	httpHandler http.Handler
}

// Config collects Server's constructor arguments.
type Config struct {
	Engine        *storage.Engine
	Catalog       *storage.Catalog
	NodeID        string
	AdminPassword string
	JWTSecret     string
	ShardTables   *cluster.ShardTables // nil outside cluster mode
	Membership    *cluster.Membership  // nil outside cluster mode
	DocCacheSize  int
	QueryCacheTTLSeconds int
}

func NewServer(cfg Config) (*Server, error) {
	docCache, err := cache.NewDocumentCache(maxIntOr(cfg.DocCacheSize, 10000))
	if err != nil {
		return nil, err
	}
	s := &Server{
		engine:        cfg.Engine,
		catalog:       cfg.Catalog,
		nodeID:        cfg.NodeID,
		documents:     map[string]*storage.Documents{},
		txns:          map[string]*txn.Manager{},
		logs:          map[string]*replog.Log{},
		changefeed:    changefeed.NewHub(4096),
		docCache:      docCache,
		queryCache:    cache.NewQueryCache(1000, defaultQueryCacheTTL(cfg.QueryCacheTTLSeconds), true),
		shardTables:   cfg.ShardTables,
		membership:    cfg.Membership,
		jwtSecret:     []byte(cfg.JWTSecret),
		adminPassword: cfg.AdminPassword,
	}
	s.httpHandler = s.newHTTPHandler()
	return s, nil
}

func maxIntOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Listen accepts connections on addr, demultiplexing each one between
// the HTTP server and the binary protocol (spec §4.11).
func (s *Server) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger := log.WithComponent("transport")
	logger.Info().Str("addr", addr).Msg("listening")

	for {
		conn, err := lis.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	pc := newPeekedConn(conn)
	if pc.isHTTP() {
		// http.Server.Serve wants a net.Listener; a single accepted
		// connection is served through a one-shot listener that yields
		// it once and blocks until the connection's own lifecycle ends,
		// matching the teacher corpus's ChannelListener role of adapting
		// an already-accepted connection into the Listener shape an
		// HTTP server expects. A fresh *http.Server per connection lets
		// ConnState close that one listener without coordinating with
		// every other open connection.
		l := newSingleConnListener(pc)
		srv := &http.Server{
			Handler: s.httpHandler,
			ConnState: func(_ net.Conn, state http.ConnState) {
				if state == http.StateClosed || state == http.StateHijacked {
					l.Close()
				}
			},
		}
		_ = srv.Serve(l)
		return
	}
	s.serveBinary(pc)
}

// documentsFor returns (creating if necessary) the per-database
// Documents/txn.Manager/replog.Log triple, lazily so a node doesn't pay
// replog-open cost for databases nobody has queried yet.
func (s *Server) documentsFor(database string) (*storage.Documents, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.documents[database]; ok {
		return d, nil
	}
	if _, err := s.catalog.GetDatabase(database); err != nil {
		return nil, err
	}
	l, err := replog.Open(s.engine, s.nodeID)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "open replication log: %v", err)
	}
	d := storage.NewDocuments(s.engine, s.catalog, database, s.nodeID)
	s.documents[database] = d
	s.logs[database] = l
	s.txns[database] = txn.NewManager(d, l)
	return d, nil
}

func (s *Server) txnManagerFor(database string) (*txn.Manager, error) {
	if _, err := s.documentsFor(database); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns[database], nil
}

func (s *Server) publishChange(database, collection string, kind changefeed.ChangeType, doc, old *types.Document) {
	change := &changefeed.Change{Type: kind, Database: database, Collection: collection}
	if doc != nil {
		change.Key = doc.Key()
		change.Data = doc.Fields
	} else if old != nil {
		change.Key = old.Key()
	}
	if old != nil {
		change.OldData = old.Fields
	}
	metrics.ChangefeedEventsTotal.WithLabelValues(string(kind)).Inc()
	s.changefeed.Publish(change)
	s.queryCache.OnWrite()
	s.docCache.InvalidateCollection(collection)
}

// runQuery evaluates an SDBQL query, building the Executor directly
// (rather than through sdbql.Run) because this is exactly the "callers
// that issue many queries... should build and reuse an exec.Executor"
// case sdbql.Run's doc comment calls out, and because only direct
// construction exposes the Analyze option the /explain route needs.
func (s *Server) runQuery(database, query string, bindVars map[string]types.Value, analyze bool) ([]types.Value, *exec.Explain, error) {
	timer := metrics.NewTimer()
	cacheable := !analyze && !queryMutates(query)
	cacheKey := ""
	if cacheable {
		cacheKey = database + "\x00" + cache.Key(query, bindVars)
		if rows, ok := s.queryCache.Get(cacheKey); ok {
			metrics.CacheHitsTotal.WithLabelValues("query").Inc()
			metrics.QueriesTotal.WithLabelValues("ok").Inc()
			timer.ObserveDuration(metrics.QueryDuration)
			return rows, nil, nil
		}
		metrics.CacheMissesTotal.WithLabelValues("query").Inc()
	}

	documents, err := s.documentsFor(database)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("error").Inc()
		return nil, nil, err
	}
	txManager, err := s.txnManagerFor(database)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("error").Inc()
		return nil, nil, err
	}
	ex := &exec.Executor{
		Documents:          documents,
		Engine:             s.engine,
		Database:           database,
		Txn:                txManager,
		SlowQueryThreshold: slowQueryThreshold,
		SlowQuerySink:      s.recordSlowQuery(database),
	}
	result, err := ex.Run(query, exec.Options{BindVars: bindVars, Analyze: analyze})
	timer.ObserveDuration(metrics.QueryDuration)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("error").Inc()
		return nil, nil, err
	}
	metrics.QueriesTotal.WithLabelValues("ok").Inc()
	if cacheable {
		s.queryCache.Put(cacheKey, result.Rows)
	}
	return result.Rows, result.Explain, nil
}

// queryMutates is a cheap lexical guard against caching a query that
// writes: the executor itself knows precisely via its AST (exec.go's
// unexported mutates(*ast.Query)), but re-parsing here just to ask that
// question would double the parse cost of every cached read. A
// keyword scan is conservative in the safe direction -- it only ever
// skips caching a query that could have been cached, never caches one
// that shouldn't be.
func queryMutates(query string) bool {
	upper := strings.ToUpper(query)
	for _, kw := range []string{"INSERT", "UPDATE", "REMOVE", "UPSERT", "REPLACE"} {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

func explainToGo(e *exec.Explain) map[string]any {
	if e == nil {
		return nil
	}
	return map[string]any{
		"plan": e.Plan,
		"counters": map[string]any{
			"documents_scanned":  e.Counters.DocumentsScanned,
			"documents_returned": e.Counters.DocumentsReturned,
		},
	}
}

// recordSlowQuery appends a slow-query record to _system/_slow_queries
// through the same Documents.Insert path any other write uses, so the
// collection is queryable like any other (SPEC_FULL.md "Slow query log
// as a real admin collection").
func (s *Server) recordSlowQuery(database string) func(exec.SlowQuery) {
	return func(sq exec.SlowQuery) {
		metrics.SlowQueriesTotal.Inc()
		documents, err := s.documentsFor(types.SystemDatabase)
		if err != nil {
			return
		}
		fields := types.NewObject()
		fields.Set("database", types.String(database))
		fields.Set("query", types.String(sq.Query))
		fields.Set("duration_ms", types.Int(sq.Duration.Milliseconds()))
		_, _ = documents.Insert(types.SystemSlowQueries, fields)
	}
}
