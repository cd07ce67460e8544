// Package ast defines the SDBQL abstract syntax tree produced by
// pkg/sdbql/parser and walked by pkg/sdbql/exec (spec §4.8).
package ast

// Query is one parsed SDBQL statement: a sequence of pipeline clauses
// ending in a Return (or a body mutation whose own RETURN NEW/OLD clause
// is folded into Return).
type Query struct {
	Clauses []Clause
	Return  *ReturnClause // nil for a bare mutation with no RETURN
}

// Clause is any pipeline stage: For, Filter, Let, Collect, Sort, Limit,
// or a body mutation (Update, Insert, Remove, Upsert).
type Clause interface{ clause() }

// For binds Var to each element produced by Source. When two or three
// loop variables are written (Edge, and optionally Path, non-empty) this
// is a graph traversal: Var is the vertex, Edge the edge document, Path
// the accumulated path (materialized only when referenced).
type For struct {
	Var    string
	Edge   string
	Path   string
	Source Expr

	// Graph traversal fields; Source is the BFS start vertex expression
	// and Graph, always set for a traversal, is the edge collection name.
	Graph     string
	MinDepth  int
	MaxDepth  int
	Direction string // OUTBOUND | INBOUND | ANY
}

func (*For) clause() {}

// Filter drops rows where Cond is falsy.
type Filter struct{ Cond Expr }

func (*Filter) clause() {}

// Let binds Var to Value evaluated per row.
type Let struct {
	Var   string
	Value Expr
}

func (*Let) clause() {}

// CollectGroup is one `var = expr` grouping key in a COLLECT clause.
type CollectGroup struct {
	Var   string
	Value Expr
}

// CollectAggregate is one `var = AGG(expr)` aggregate in a COLLECT
// clause's AGGREGATE sub-clause.
type CollectAggregate struct {
	Var  string
	Func string // SUM|AVG|MIN|MAX|COUNT|UNIQUE|STDDEV|VARIANCE
	Expr Expr
}

// Collect groups rows by Groups and computes Aggregates per group; Into,
// when non-empty, binds the group's raw rows to that variable instead of
// discarding them.
type Collect struct {
	Groups     []CollectGroup
	Aggregates []CollectAggregate
	Into       string
}

func (*Collect) clause() {}

// SortKey is one `expr ASC|DESC` term in a SORT clause.
type SortKey struct {
	Expr       Expr
	Descending bool
}

type Sort struct{ Keys []SortKey }

func (*Sort) clause() {}

// Limit bounds rows to [Offset, Offset+Count).
type Limit struct {
	Offset Expr // nil if omitted
	Count  Expr
}

func (*Limit) clause() {}

// Insert stages a document creation per row.
type Insert struct {
	Collection string
	Fields     Expr
}

func (*Insert) clause() {}

// Update stages a merge-patch write per row.
type Update struct {
	Collection string
	Key        Expr
	Patch      Expr
}

func (*Update) clause() {}

// Replace stages a wholesale field replacement per row.
type Replace struct {
	Collection string
	Key        Expr
	Fields     Expr
}

func (*Replace) clause() {}

// Remove stages a document removal per row.
type Remove struct {
	Collection string
	Key        Expr
}

func (*Remove) clause() {}

// Upsert inserts Insert when Search matches no row, else applies Update.
type Upsert struct {
	Collection string
	Search     Expr
	Insert     Expr
	Update     Expr
}

func (*Upsert) clause() {}

// ReturnClause is the final per-row projection. NewOld is "NEW" or "OLD"
// for a mutation clause's result-exposure form, empty otherwise.
type ReturnClause struct {
	Expr     Expr
	Distinct bool
	NewOld   string
}

// Expr is any SDBQL expression node.
type Expr interface{ expr() }

type Ident struct{ Name string }

func (*Ident) expr() {}

// BindVar is `@name` (value bind var) or `@@name` (collection-name bind
// var).
type BindVar struct {
	Name       string
	Collection bool
}

func (*BindVar) expr() {}

type Literal struct{ Value interface{} } // nil, bool, int64, float64, string

func (*Literal) expr() {}

type ArrayLit struct{ Elements []Expr }

func (*ArrayLit) expr() {}

// ObjectField is one `key: value`, shorthand `key` (value == Ident with
// the same name), or spread `...expr` (Key == "").
type ObjectField struct {
	Key    string
	Value  Expr
	Spread bool
}

type ObjectLit struct{ Fields []ObjectField }

func (*ObjectLit) expr() {}

type Unary struct {
	Op string // "-" | "!" (the parser maps NOT to "!")
	X  Expr
}

func (*Unary) expr() {}

type Binary struct {
	Op   string
	X, Y Expr
}

func (*Binary) expr() {}

// Member is `x.field`; Optional marks `x?.field` short-circuiting to
// null instead of erroring when x is null or not an object.
type Member struct {
	X        Expr
	Field    string
	Optional bool
}

func (*Member) expr() {}

// Index is `x[expr]`.
type Index struct {
	X   Expr
	Idx Expr
}

func (*Index) expr() {}

type Call struct {
	Func string
	Args []Expr
}

func (*Call) expr() {}

// In is `x IN y` / `x NOT IN y`.
type In struct {
	X, Y Expr
	Not  bool
}

func (*In) expr() {}

// Range is `lo..hi`. The parser produces no Range node: graph traversal
// depth bounds are stored as For.MinDepth and For.MaxDepth.
type Range struct{ Lo, Hi Expr }

func (*Range) expr() {}

// Ternary is `cond ? a : b`.
type Ternary struct{ Cond, Then, Else Expr }

func (*Ternary) expr() {}

// Subquery is `(FOR ... RETURN ...)` used as an expression; it evaluates
// eagerly to an array, re-evaluated per outer row when it references
// outer variables.
type Subquery struct{ Query *Query }

func (*Subquery) expr() {}

// Pipe is `x |> f(args)`: f is called with x spliced in as its first
// argument, the rest of args following (spec §4.7 pipeline operator).
type Pipe struct {
	X    Expr
	Call *Call
}

func (*Pipe) expr() {}

// TemplateStringPart is one piece of a `$"..."` interpolated string
// literal: either a literal run of text (Expr == nil) or a `${expr}`
// substitution (Text == "").
type TemplateStringPart struct {
	Text string
	Expr Expr
}

// TemplateString is `$"...${expr}..."`, evaluated by concatenating its
// parts, substitutions rendered the same way CONCAT renders a value
// (spec §4.7 string interpolation).
type TemplateString struct{ Parts []TemplateStringPart }

func (*TemplateString) expr() {}

// WindowClause computes one analytic window function's result per row
// into Var, partitioned by Partition and ordered by OrderBy (spec
// §4.7/§4.8 window functions). It runs at its own position in the clause
// list; a SORT written after it reorders rows after the values are
// computed.
// Arg is nil for ROW_NUMBER/RANK/DENSE_RANK; Offset is only meaningful
// for LAG/LEAD (nil means an offset of 1).
type WindowClause struct {
	Var       string
	Func      string // ROW_NUMBER|RANK|DENSE_RANK|LAG|LEAD|FIRST_VALUE|LAST_VALUE|SUM|AVG
	Arg       Expr
	Offset    Expr
	Partition []Expr
	OrderBy   []SortKey
}

func (*WindowClause) clause() {}

// CreateView persists a materialized view's recipe and immediately
// populates Target by running Query once (spec §4.7 "CREATE MATERIALIZED
// VIEW"). Query is the raw SDBQL source of the `FOR ... RETURN ...` body
// captured at parse time, not a nested *Query, since it is stored
// verbatim and re-parsed whenever the view is refreshed.
type CreateView struct {
	Name       string
	Query      string
	Target     string
	RefreshSec Expr // nil if no WITH REFRESH INTERVAL given
}

func (*CreateView) clause() {}

// RefreshView re-runs a previously created view's recorded query (spec
// §4.7 "REFRESH MATERIALIZED VIEW").
type RefreshView struct{ Name string }

func (*RefreshView) clause() {}

// StreamWindow is a CREATE STREAM's `WINDOW TUMBLING(size)` or
// `WINDOW HOPPING(size, hop)` sub-clause (spec §4.7 TUMBLING/HOPPING).
type StreamWindow struct {
	Kind string // TUMBLING | HOPPING
	Size Expr
	Hop  Expr // HOPPING only
}

// CreateStream registers a continuous query recipe, optionally windowed
// over time (spec §4.7 "CREATE STREAM").
type CreateStream struct {
	Name   string
	Query  string
	Window *StreamWindow
}

func (*CreateStream) clause() {}
