// Package exec walks an SDBQL AST (pkg/sdbql/ast) against the storage
// layer: it is the pipeline described in spec §4.8 -- Source, Filter,
// Join (nested FOR), Let/Collect/Aggregate, Sort/Limit, Body mutation,
// Return/Projection -- implemented as a sequence of row-list transforms
// rather than a lazily-streamed iterator chain, trading some memory for
// a much simpler, easier-to-verify implementation.
package exec

import (
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/solidb/pkg/codec"
	"github.com/cuemby/solidb/pkg/sdbql/ast"
	"github.com/cuemby/solidb/pkg/sdbql/parser"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/txn"
	"github.com/cuemby/solidb/pkg/types"
)

// Executor runs SDBQL queries against one database's document store and
// (for graph traversal) its edge indexes.
type Executor struct {
	Documents *storage.Documents
	Engine    *storage.Engine
	Database  string
	Txn       *txn.Manager

	SlowQueryThreshold time.Duration
	SlowQuerySink      func(SlowQuery)

	counters  Counters
	activeTxn *txn.Transaction
}

// SlowQuery is one record appended to _system/_slow_queries (spec §4.8
// "Slow-query capture").
type SlowQuery struct {
	Query    string
	BindVars map[string]types.Value
	Duration time.Duration
	Database string
}

// Counters are EXPLAIN ANALYZE's observed plan statistics (spec §4.8).
type Counters struct {
	DocumentsScanned   int
	DocumentsReturned  int
	StageDurations     map[string]time.Duration
}

// Explain is the plan tree plus, when Analyze is requested, observed
// counters.
type Explain struct {
	Plan     []string
	Counters Counters
}

// Options configures one Run call.
type Options struct {
	BindVars map[string]types.Value
	Analyze  bool
}

// Result is Run's output: the projected rows and, when requested, the
// explain plan.
type Result struct {
	Rows    []types.Value
	Explain *Explain
}

// Run parses and executes query. Mutation clauses (INSERT/UPDATE/
// REPLACE/REMOVE/UPSERT) run inside one transaction that is committed
// after the RETURN projection, matching "Autocommit treats each
// statement as a trivial transaction" (spec §4.12).
func (ex *Executor) Run(query string, opts Options) (*Result, error) {
	start := time.Now()
	q, err := parser.Parse(query)
	if err != nil {
		return nil, err
	}

	bindVars := opts.BindVars
	if bindVars == nil {
		bindVars = map[string]types.Value{}
	}

	ex.counters = Counters{StageDurations: map[string]time.Duration{}}
	if mutates(q) {
		if ex.Txn == nil {
			return nil, types.NewError(types.ErrInternal, "executor has no transaction manager for a mutating query")
		}
		ex.activeTxn = ex.Txn.Begin(types.ReadCommitted)
	}
	defer func() { ex.activeTxn = nil }()

	rows := []Row{{}}
	declared := map[string]bool{}
	var plan []string

	for _, c := range q.Clauses {
		stageStart := time.Now()
		next, desc, err := ex.applyClause(c, rows, bindVars, declared)
		if err != nil {
			if ex.activeTxn != nil {
				ex.activeTxn.Rollback()
			}
			return nil, err
		}
		rows = next
		plan = append(plan, desc)
		if opts.Analyze {
			ex.counters.StageDurations[desc] += time.Since(stageStart)
		}
	}

	var out []types.Value
	if q.Return != nil {
		out, err = ex.applyReturn(q.Return, rows, bindVars)
		if err != nil {
			if ex.activeTxn != nil {
				ex.activeTxn.Rollback()
			}
			return nil, err
		}
	}

	if ex.activeTxn != nil {
		if err := ex.activeTxn.Commit(); err != nil {
			return nil, err
		}
	}

	ex.counters.DocumentsReturned = len(out)
	duration := time.Since(start)
	if ex.SlowQueryThreshold > 0 && duration >= ex.SlowQueryThreshold && ex.SlowQuerySink != nil {
		ex.SlowQuerySink(SlowQuery{Query: query, BindVars: bindVars, Duration: duration, Database: ex.Database})
	}

	res := &Result{Rows: out}
	if opts.Analyze {
		res.Explain = &Explain{Plan: plan, Counters: ex.counters}
	}
	return res, nil
}

func mutates(q *ast.Query) bool {
	for _, c := range q.Clauses {
		switch c.(type) {
		case *ast.Insert, *ast.Update, *ast.Replace, *ast.Remove, *ast.Upsert:
			return true
		}
	}
	return false
}

func (ex *Executor) applyClause(c ast.Clause, rows []Row, bindVars map[string]types.Value, declared map[string]bool) ([]Row, string, error) {
	switch n := c.(type) {
	case *ast.For:
		return ex.applyFor(n, rows, bindVars, declared)
	case *ast.Filter:
		return ex.applyFilter(n, rows, bindVars)
	case *ast.Let:
		return ex.applyLet(n, rows, bindVars, declared)
	case *ast.Collect:
		return ex.applyCollect(n, rows, bindVars, declared)
	case *ast.Sort:
		return ex.applySort(n, rows, bindVars)
	case *ast.Limit:
		return ex.applyLimit(n, rows, bindVars)
	case *ast.Insert:
		return ex.applyInsert(n, rows, bindVars)
	case *ast.Update:
		return ex.applyUpdate(n, rows, bindVars)
	case *ast.Replace:
		return ex.applyReplace(n, rows, bindVars)
	case *ast.Remove:
		return ex.applyRemove(n, rows, bindVars)
	case *ast.Upsert:
		return ex.applyUpsert(n, rows, bindVars)
	case *ast.WindowClause:
		return ex.applyWindow(n, rows, bindVars)
	case *ast.CreateView:
		return ex.applyCreateView(n, rows, bindVars)
	case *ast.RefreshView:
		return ex.applyRefreshView(n, rows, bindVars)
	case *ast.CreateStream:
		return ex.applyCreateStream(n, rows, bindVars)
	default:
		return nil, "", types.NewError(types.ErrInternal, "unhandled clause %T", c)
	}
}

func (ex *Executor) applyFor(f *ast.For, rows []Row, bindVars map[string]types.Value, declared map[string]bool) ([]Row, string, error) {
	if f.Graph != "" {
		var out []Row
		for _, row := range rows {
			en := &env{row: row, bindVars: bindVars}
			startVal, err := ex.eval(f.Source, en)
			if err != nil {
				return nil, "", err
			}
			startID := startVal.AsString()
			if startVal.Kind() == types.KindObject {
				if idv, ok := startVal.AsObject().Get(types.FieldID); ok {
					startID = idv.AsString()
				}
			}
			traversed, err := ex.traverse(f, row, startID)
			if err != nil {
				return nil, "", err
			}
			out = append(out, traversed...)
		}
		declared[f.Var] = true
		if f.Edge != "" {
			declared[f.Edge] = true
		}
		if f.Path != "" {
			declared[f.Path] = true
		}
		return out, fmt.Sprintf("GraphTraversal(%s, %d..%d %s %s)", f.Var, f.MinDepth, f.MaxDepth, f.Direction, f.Graph), nil
	}

	collection := ""
	if ident, ok := f.Source.(*ast.Ident); ok && !declared[ident.Name] {
		collection = ident.Name
	}
	if bv, ok := f.Source.(*ast.BindVar); ok && bv.Collection {
		v, ok := bindVars[bv.Name]
		if !ok {
			return nil, "", types.NewError(types.ErrInvalidArgument, "undeclared collection bind variable @@%s", bv.Name)
		}
		collection = v.AsString()
	}

	if collection != "" {
		var out []Row
		err := ex.Documents.Scan(collection, func(doc *types.Document) error {
			ex.counters.DocumentsScanned++
			for _, row := range rows {
				nr := row.clone()
				nr[f.Var] = doc.Value()
				out = append(out, nr)
			}
			return nil
		})
		if err != nil {
			return nil, "", err
		}
		declared[f.Var] = true
		return out, fmt.Sprintf("Scan(%s IN %s)", f.Var, collection), nil
	}

	var out []Row
	for _, row := range rows {
		en := &env{row: row, bindVars: bindVars}
		v, err := ex.eval(f.Source, en)
		if err != nil {
			return nil, "", err
		}
		if v.IsNull() {
			continue
		}
		if v.Kind() != types.KindArray {
			return nil, "", types.NewError(types.ErrTypeError, "FOR source must evaluate to an array")
		}
		for _, el := range v.AsArray() {
			nr := row.clone()
			nr[f.Var] = el
			out = append(out, nr)
		}
	}
	declared[f.Var] = true
	return out, fmt.Sprintf("Enumerate(%s)", f.Var), nil
}

func (ex *Executor) applyFilter(n *ast.Filter, rows []Row, bindVars map[string]types.Value) ([]Row, string, error) {
	var out []Row
	for _, row := range rows {
		en := &env{row: row, bindVars: bindVars}
		v, err := ex.eval(n.Cond, en)
		if err != nil {
			return nil, "", err
		}
		if v.Truthy() {
			out = append(out, row)
		}
	}
	return out, "Filter", nil
}

func (ex *Executor) applyLet(n *ast.Let, rows []Row, bindVars map[string]types.Value, declared map[string]bool) ([]Row, string, error) {
	out := make([]Row, len(rows))
	for i, row := range rows {
		en := &env{row: row, bindVars: bindVars}
		v, err := ex.eval(n.Value, en)
		if err != nil {
			return nil, "", err
		}
		nr := row.clone()
		nr[n.Var] = v
		out[i] = nr
	}
	declared[n.Var] = true
	return out, fmt.Sprintf("Let(%s)", n.Var), nil
}

func (ex *Executor) applySort(s *ast.Sort, rows []Row, bindVars map[string]types.Value) ([]Row, string, error) {
	type keyedRow struct {
		row  Row
		keys []types.Value
	}
	keyed := make([]keyedRow, len(rows))
	for i, row := range rows {
		en := &env{row: row, bindVars: bindVars}
		keys := make([]types.Value, len(s.Keys))
		for j, k := range s.Keys {
			v, err := ex.eval(k.Expr, en)
			if err != nil {
				return nil, "", err
			}
			keys[j] = v
		}
		keyed[i] = keyedRow{row: row, keys: keys}
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		for idx, sk := range s.Keys {
			c := types.Compare(keyed[i].keys[idx], keyed[j].keys[idx])
			if c == 0 {
				continue
			}
			if sk.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	out := make([]Row, len(keyed))
	for i, kr := range keyed {
		out[i] = kr.row
	}
	return out, "Sort", nil
}

func (ex *Executor) applyLimit(l *ast.Limit, rows []Row, bindVars map[string]types.Value) ([]Row, string, error) {
	en := &env{row: Row{}, bindVars: bindVars}
	offset := 0
	if l.Offset != nil {
		v, err := ex.eval(l.Offset, en)
		if err != nil {
			return nil, "", err
		}
		offset = int(v.AsInt())
	}
	cv, err := ex.eval(l.Count, en)
	if err != nil {
		return nil, "", err
	}
	count := int(cv.AsInt())
	if offset > len(rows) {
		offset = len(rows)
	}
	end := offset + count
	if count < 0 || end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], fmt.Sprintf("Limit(%d, %d)", offset, count), nil
}

func (ex *Executor) applyInsert(n *ast.Insert, rows []Row, bindVars map[string]types.Value) ([]Row, string, error) {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		en := &env{row: row, bindVars: bindVars}
		v, err := ex.eval(n.Fields, en)
		if err != nil {
			return nil, "", err
		}
		if v.Kind() != types.KindObject {
			return nil, "", types.NewError(types.ErrTypeError, "INSERT requires an object")
		}
		doc, err := ex.activeTxn.Insert(n.Collection, v.AsObject().Clone())
		if err != nil {
			return nil, "", err
		}
		nr := row.clone()
		nr["__new"] = doc.Value()
		out = append(out, nr)
	}
	return out, fmt.Sprintf("Insert(%s)", n.Collection), nil
}

func (ex *Executor) applyUpdate(n *ast.Update, rows []Row, bindVars map[string]types.Value) ([]Row, string, error) {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		en := &env{row: row, bindVars: bindVars}
		keyVal, err := ex.eval(n.Key, en)
		if err != nil {
			return nil, "", err
		}
		key := documentKey(keyVal)
		old, err := ex.activeTxn.Get(n.Collection, key)
		if err != nil {
			return nil, "", err
		}
		patchVal, err := ex.eval(n.Patch, en)
		if err != nil {
			return nil, "", err
		}
		if patchVal.Kind() != types.KindObject {
			return nil, "", types.NewError(types.ErrTypeError, "UPDATE WITH requires an object")
		}
		if err := ex.activeTxn.Update(n.Collection, key, patchVal.AsObject(), ""); err != nil {
			return nil, "", err
		}
		updated, err := ex.activeTxn.Get(n.Collection, key)
		if err != nil {
			return nil, "", err
		}
		nr := row.clone()
		nr["__old"] = old.Value()
		nr["__new"] = updated.Value()
		out = append(out, nr)
	}
	return out, fmt.Sprintf("Update(%s)", n.Collection), nil
}

func (ex *Executor) applyReplace(n *ast.Replace, rows []Row, bindVars map[string]types.Value) ([]Row, string, error) {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		en := &env{row: row, bindVars: bindVars}
		keyVal, err := ex.eval(n.Key, en)
		if err != nil {
			return nil, "", err
		}
		key := documentKey(keyVal)
		old, err := ex.activeTxn.Get(n.Collection, key)
		if err != nil {
			return nil, "", err
		}
		fieldsVal, err := ex.eval(n.Fields, en)
		if err != nil {
			return nil, "", err
		}
		if fieldsVal.Kind() != types.KindObject {
			return nil, "", types.NewError(types.ErrTypeError, "REPLACE WITH requires an object")
		}
		if err := ex.activeTxn.Replace(n.Collection, key, fieldsVal.AsObject().Clone(), ""); err != nil {
			return nil, "", err
		}
		updated, err := ex.activeTxn.Get(n.Collection, key)
		if err != nil {
			return nil, "", err
		}
		nr := row.clone()
		nr["__old"] = old.Value()
		nr["__new"] = updated.Value()
		out = append(out, nr)
	}
	return out, fmt.Sprintf("Replace(%s)", n.Collection), nil
}

func (ex *Executor) applyRemove(n *ast.Remove, rows []Row, bindVars map[string]types.Value) ([]Row, string, error) {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		en := &env{row: row, bindVars: bindVars}
		keyVal, err := ex.eval(n.Key, en)
		if err != nil {
			return nil, "", err
		}
		key := documentKey(keyVal)
		old, err := ex.activeTxn.Get(n.Collection, key)
		if err != nil {
			return nil, "", err
		}
		if err := ex.activeTxn.Delete(n.Collection, key, ""); err != nil {
			return nil, "", err
		}
		nr := row.clone()
		nr["__old"] = old.Value()
		out = append(out, nr)
	}
	return out, fmt.Sprintf("Remove(%s)", n.Collection), nil
}

func (ex *Executor) applyUpsert(n *ast.Upsert, rows []Row, bindVars map[string]types.Value) ([]Row, string, error) {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		en := &env{row: row, bindVars: bindVars}
		searchVal, err := ex.eval(n.Search, en)
		if err != nil {
			return nil, "", err
		}
		if searchVal.Kind() != types.KindObject {
			return nil, "", types.NewError(types.ErrTypeError, "UPSERT search term must be an object")
		}
		keyVal, hasKey := searchVal.AsObject().Get(types.FieldKey)
		nr := row.clone()
		if hasKey {
			if _, err := ex.activeTxn.Get(n.Collection, keyVal.AsString()); err == nil {
				patchVal, err := ex.eval(n.Update, en)
				if err != nil {
					return nil, "", err
				}
				if err := ex.activeTxn.Update(n.Collection, keyVal.AsString(), patchVal.AsObject(), ""); err != nil {
					return nil, "", err
				}
				updated, err := ex.activeTxn.Get(n.Collection, keyVal.AsString())
				if err != nil {
					return nil, "", err
				}
				nr["__new"] = updated.Value()
				out = append(out, nr)
				continue
			}
		}
		insVal, err := ex.eval(n.Insert, en)
		if err != nil {
			return nil, "", err
		}
		if insVal.Kind() != types.KindObject {
			return nil, "", types.NewError(types.ErrTypeError, "UPSERT INSERT term must be an object")
		}
		doc, err := ex.activeTxn.Insert(n.Collection, insVal.AsObject().Clone())
		if err != nil {
			return nil, "", err
		}
		nr["__new"] = doc.Value()
		out = append(out, nr)
	}
	return out, fmt.Sprintf("Upsert(%s)", n.Collection), nil
}

func documentKey(v types.Value) string {
	if v.Kind() == types.KindObject {
		if kv, ok := v.AsObject().Get(types.FieldKey); ok {
			return kv.AsString()
		}
	}
	return v.AsString()
}

func (ex *Executor) applyReturn(r *ast.ReturnClause, rows []Row, bindVars map[string]types.Value) ([]types.Value, error) {
	out := make([]types.Value, 0, len(rows))
	for _, row := range rows {
		var v types.Value
		switch r.NewOld {
		case "NEW":
			v = row["__new"]
		case "OLD":
			v = row["__old"]
		default:
			en := &env{row: row, bindVars: bindVars}
			val, err := ex.eval(r.Expr, en)
			if err != nil {
				return nil, err
			}
			v = val
		}
		out = append(out, v)
	}
	if !r.Distinct {
		return out, nil
	}
	seen := map[string]bool{}
	deduped := make([]types.Value, 0, len(out))
	for _, v := range out {
		key := string(codec.EncodeValue(v))
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, v)
	}
	return deduped, nil
}

// runSubquery evaluates a `(FOR ... RETURN ...)` expression against the
// outer row's bindings, so a correlated reference to an outer variable
// resolves like any other identifier (spec §4.8 "Subqueries").
func (ex *Executor) runSubquery(q *ast.Query, outer *env) ([]types.Value, error) {
	rows := []Row{outer.row.clone()}
	declared := make(map[string]bool, len(outer.row))
	for k := range outer.row {
		declared[k] = true
	}
	var err error
	for _, c := range q.Clauses {
		rows, _, err = ex.applyClause(c, rows, outer.bindVars, declared)
		if err != nil {
			return nil, err
		}
	}
	if q.Return == nil {
		return nil, nil
	}
	return ex.applyReturn(q.Return, rows, outer.bindVars)
}

// rowToObject projects a row's user-visible variables (internal "__new"/
// "__old" mutation bindings excluded) into a plain object, used by
// COLLECT ... INTO.
func rowToObject(row Row) types.Value {
	out := types.NewObject()
	for k, v := range row {
		if len(k) >= 2 && k[0] == '_' && k[1] == '_' {
			continue
		}
		out.Set(k, v)
	}
	return types.ObjectVal(out)
}
