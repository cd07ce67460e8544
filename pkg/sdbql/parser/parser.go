// Package parser turns a lexer.Token stream into a pkg/sdbql/ast.Query.
// Expression parsing is a hand-written Pratt/precedence-climbing parser;
// clause parsing is ordinary recursive descent over the fixed SDBQL
// grammar (spec §4.8). Precedence, loosest to tightest: pipeline `|>`,
// ternary, `||`, `&&`, comparison/IN/fuzzy-match `~=`, additive,
// multiplicative, unary, postfix (call/member/index/optional-chain).
// Clause parsing additionally covers WINDOW (analytic window functions
// over PARTITION BY/ORDER BY), and CREATE STREAM / CREATE MATERIALIZED
// VIEW / REFRESH MATERIALIZED VIEW, whose embedded `(FOR ... RETURN ...)`
// query bodies are captured as raw source text rather than nested AST,
// since they are persisted and re-parsed on every refresh.
package parser

import (
	"strconv"
	"strings"

	"github.com/cuemby/solidb/pkg/sdbql/ast"
	"github.com/cuemby/solidb/pkg/sdbql/lexer"
	"github.com/cuemby/solidb/pkg/types"
)

// Parse tokenizes and parses a complete SDBQL statement.
func Parse(query string) (*ast.Query, error) {
	toks, err := lexer.Tokenize(query)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, src: query}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		return nil, p.errorf("unexpected trailing input %q", p.cur().Value)
	}
	return q, nil
}

type parser struct {
	toks []lexer.Token
	pos  int
	src  string // original source text, sliced by token Pos to capture a CREATE VIEW/STREAM's raw query body
}

func (p *parser) cur() lexer.Token  { return p.toks[p.pos] }
func (p *parser) atEOF() bool       { return p.cur().Kind == lexer.KindEOF }
func (p *parser) advance() lexer.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return types.NewError(types.ErrParseError, format, args...)
}

// kw reports whether the current token is the identifier kw, matched
// case-insensitively (SDBQL keywords are case-insensitive).
func (p *parser) kw(kw string) bool {
	t := p.cur()
	return t.Kind == lexer.KindIdent && strings.EqualFold(t.Value, kw)
}

func (p *parser) punct(v string) bool {
	t := p.cur()
	return t.Kind == lexer.KindPunct && t.Value == v
}

func (p *parser) expectPunct(v string) error {
	if !p.punct(v) {
		return p.errorf("expected %q, got %q", v, p.cur().Value)
	}
	p.advance()
	return nil
}

func (p *parser) expectKw(kw string) error {
	if !p.kw(kw) {
		return p.errorf("expected keyword %q, got %q", kw, p.cur().Value)
	}
	p.advance()
	return nil
}

func (p *parser) expectIdent() (string, error) {
	if p.cur().Kind != lexer.KindIdent {
		return "", p.errorf("expected identifier, got %q", p.cur().Value)
	}
	return p.advance().Value, nil
}

// ---- clause grammar ----

func (p *parser) parseQuery() (*ast.Query, error) {
	q := &ast.Query{}
	for {
		switch {
		case p.kw("FOR"):
			c, err := p.parseFor()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case p.kw("FILTER"):
			p.advance()
			cond, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, &ast.Filter{Cond: cond})
		case p.kw("LET"):
			p.advance()
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("="); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, &ast.Let{Var: name, Value: val})
		case p.kw("COLLECT"):
			c, err := p.parseCollect()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case p.kw("SORT"):
			c, err := p.parseSort()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case p.kw("LIMIT"):
			c, err := p.parseLimit()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case p.kw("INSERT"):
			c, err := p.parseInsert()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case p.kw("UPDATE"):
			c, err := p.parseUpdate()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case p.kw("REPLACE"):
			c, err := p.parseReplace()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case p.kw("REMOVE"):
			c, err := p.parseRemove()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case p.kw("UPSERT"):
			c, err := p.parseUpsert()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case p.kw("RETURN"):
			r, err := p.parseReturn()
			if err != nil {
				return nil, err
			}
			q.Return = r
			return q, nil
		case p.kw("WINDOW"):
			c, err := p.parseWindowClause()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case p.kw("CREATE"):
			c, err := p.parseCreate()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case p.kw("REFRESH"):
			c, err := p.parseRefreshView()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		default:
			return q, nil
		}
	}
}

// captureSubquery parses a parenthesized `(FOR ... RETURN ...)` body and
// returns its raw source text (not the parsed AST), for clauses that
// persist a query recipe to re-run verbatim later (CREATE MATERIALIZED
// VIEW / CREATE STREAM).
func (p *parser) captureSubquery() (string, error) {
	if err := p.expectPunct("("); err != nil {
		return "", err
	}
	start := p.cur().Pos
	if _, err := p.parseQuery(); err != nil {
		return "", err
	}
	end := p.cur().Pos // position of the ")" about to be consumed
	if err := p.expectPunct(")"); err != nil {
		return "", err
	}
	return strings.TrimSpace(p.src[start:end]), nil
}

var windowFuncs = map[string]bool{
	"ROW_NUMBER": true, "RANK": true, "DENSE_RANK": true,
	"LAG": true, "LEAD": true, "FIRST_VALUE": true, "LAST_VALUE": true,
	"SUM": true, "AVG": true,
}

// parseWindowClause parses `WINDOW var = FUNC(arg[, offset]) OVER
// (PARTITION BY e, ... ORDER BY e [ASC|DESC], ...)` (spec §4.7/§4.8
// window functions).
func (p *parser) parseWindowClause() (*ast.WindowClause, error) {
	p.advance() // WINDOW
	varName, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	fnName, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	fn := strings.ToUpper(fnName)
	if !windowFuncs[fn] {
		return nil, p.errorf("unknown window function %q", fnName)
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	wc := &ast.WindowClause{Var: varName, Func: fn}
	if !p.punct(")") {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		wc.Arg = arg
		if p.punct(",") {
			p.advance()
			offset, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			wc.Offset = offset
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if err := p.expectKw("OVER"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	if p.kw("PARTITION") {
		p.advance()
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			wc.Partition = append(wc.Partition, e)
			if !p.punct(",") {
				break
			}
			p.advance()
		}
	}
	if p.kw("ORDER") {
		p.advance()
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			desc := false
			if p.kw("ASC") {
				p.advance()
			} else if p.kw("DESC") {
				p.advance()
				desc = true
			}
			wc.OrderBy = append(wc.OrderBy, ast.SortKey{Expr: e, Descending: desc})
			if !p.punct(",") {
				break
			}
			p.advance()
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return wc, nil
}

// parseCreate dispatches CREATE STREAM vs CREATE MATERIALIZED VIEW (spec
// §4.7 keywords).
func (p *parser) parseCreate() (ast.Clause, error) {
	p.advance() // CREATE
	if p.kw("STREAM") {
		return p.parseCreateStream()
	}
	if err := p.expectKw("MATERIALIZED"); err != nil {
		return nil, err
	}
	if err := p.expectKw("VIEW"); err != nil {
		return nil, err
	}
	return p.parseCreateView()
}

// parseCreateView parses `<name> AS (FOR ... RETURN ...) INTO <collection>
// [WITH REFRESH INTERVAL <seconds>]`.
func (p *parser) parseCreateView() (*ast.CreateView, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("AS"); err != nil {
		return nil, err
	}
	raw, err := p.captureSubquery()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("INTO"); err != nil {
		return nil, err
	}
	target, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	cv := &ast.CreateView{Name: name, Query: raw, Target: target}
	if p.kw("WITH") {
		p.advance()
		if err := p.expectKw("REFRESH"); err != nil {
			return nil, err
		}
		if err := p.expectKw("INTERVAL"); err != nil {
			return nil, err
		}
		refresh, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		cv.RefreshSec = refresh
	}
	return cv, nil
}

// parseCreateStream parses `STREAM <name> AS (FOR ... RETURN ...)
// [WINDOW TUMBLING(size) | WINDOW HOPPING(size, hop)]`.
func (p *parser) parseCreateStream() (*ast.CreateStream, error) {
	p.advance() // STREAM
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("AS"); err != nil {
		return nil, err
	}
	raw, err := p.captureSubquery()
	if err != nil {
		return nil, err
	}
	cs := &ast.CreateStream{Name: name, Query: raw}
	if p.kw("WINDOW") {
		p.advance()
		kindName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		kind := strings.ToUpper(kindName)
		if kind != "TUMBLING" && kind != "HOPPING" {
			return nil, p.errorf("expected TUMBLING or HOPPING, got %q", kindName)
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		size, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		w := &ast.StreamWindow{Kind: kind, Size: size}
		if kind == "HOPPING" {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
			hop, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			w.Hop = hop
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		cs.Window = w
	}
	return cs, nil
}

// parseRefreshView parses `REFRESH MATERIALIZED VIEW <name>`.
func (p *parser) parseRefreshView() (*ast.RefreshView, error) {
	p.advance() // REFRESH
	if err := p.expectKw("MATERIALIZED"); err != nil {
		return nil, err
	}
	if err := p.expectKw("VIEW"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &ast.RefreshView{Name: name}, nil
}

func (p *parser) parseFor() (*ast.For, error) {
	p.advance() // FOR
	vars := []string{}
	first, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	vars = append(vars, first)
	for p.punct(",") {
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		vars = append(vars, name)
	}
	if err := p.expectKw("IN"); err != nil {
		return nil, err
	}

	f := &ast.For{Var: vars[0]}
	if len(vars) > 1 {
		f.Edge = vars[1]
	}
	if len(vars) > 2 {
		f.Path = vars[2]
	}

	if len(vars) > 1 {
		return p.parseGraphFor(f)
	}

	src, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	f.Source = src
	return f, nil
}

// parseGraphFor parses the `min..max DIRECTION start edgeCollection`
// tail of a graph-traversal FOR (spec §4.8 "Graph traversal").
func (p *parser) parseGraphFor(f *ast.For) (*ast.For, error) {
	lo, err := p.expectInt()
	if err != nil {
		return nil, err
	}
	hi := lo
	if p.punct("..") {
		p.advance()
		hi, err = p.expectInt()
		if err != nil {
			return nil, err
		}
	}
	f.MinDepth, f.MaxDepth = lo, hi

	dir, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	switch strings.ToUpper(dir) {
	case "OUTBOUND", "INBOUND", "ANY":
		f.Direction = strings.ToUpper(dir)
	default:
		return nil, p.errorf("expected OUTBOUND|INBOUND|ANY, got %q", dir)
	}

	start, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	f.Source = start

	edgeCol, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	f.Graph = edgeCol
	return f, nil
}

func (p *parser) expectInt() (int, error) {
	if p.cur().Kind != lexer.KindNumber {
		return 0, p.errorf("expected integer, got %q", p.cur().Value)
	}
	v, err := strconv.Atoi(p.advance().Value)
	if err != nil {
		return 0, p.errorf("invalid integer: %v", err)
	}
	return v, nil
}

func (p *parser) parseCollect() (*ast.Collect, error) {
	p.advance() // COLLECT
	c := &ast.Collect{}
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Groups = append(c.Groups, ast.CollectGroup{Var: name, Value: val})
		if !p.punct(",") {
			break
		}
		p.advance()
	}
	if p.kw("INTO") {
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		c.Into = name
	}
	if p.kw("AGGREGATE") {
		p.advance()
		for {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("="); err != nil {
				return nil, err
			}
			fn, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("("); err != nil {
				return nil, err
			}
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			c.Aggregates = append(c.Aggregates, ast.CollectAggregate{Var: name, Func: strings.ToUpper(fn), Expr: arg})
			if !p.punct(",") {
				break
			}
			p.advance()
		}
	}
	return c, nil
}

func (p *parser) parseSort() (*ast.Sort, error) {
	p.advance() // SORT
	s := &ast.Sort{}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		desc := false
		if p.kw("ASC") {
			p.advance()
		} else if p.kw("DESC") {
			p.advance()
			desc = true
		}
		s.Keys = append(s.Keys, ast.SortKey{Expr: e, Descending: desc})
		if !p.punct(",") {
			break
		}
		p.advance()
	}
	return s, nil
}

func (p *parser) parseLimit() (*ast.Limit, error) {
	p.advance() // LIMIT
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.punct(",") {
		p.advance()
		second, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Limit{Offset: first, Count: second}, nil
	}
	return &ast.Limit{Count: first}, nil
}

func (p *parser) parseInsert() (*ast.Insert, error) {
	p.advance() // INSERT
	fields, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("INTO"); err != nil {
		return nil, err
	}
	col, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &ast.Insert{Collection: col, Fields: fields}, nil
}

func (p *parser) parseUpdate() (*ast.Update, error) {
	p.advance() // UPDATE
	key, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("WITH"); err != nil {
		return nil, err
	}
	patch, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if in, ok := patch.(*ast.In); ok && !in.Not {
		if id, ok := in.Y.(*ast.Ident); ok {
			return &ast.Update{Collection: id.Name, Key: key, Patch: in.X}, nil
		}
	}
	if err := p.expectKw("IN"); err != nil {
		return nil, err
	}
	col, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &ast.Update{Collection: col, Key: key, Patch: patch}, nil
}

func (p *parser) parseReplace() (*ast.Replace, error) {
	p.advance() // REPLACE
	key, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("WITH"); err != nil {
		return nil, err
	}
	fields, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if in, ok := fields.(*ast.In); ok && !in.Not {
		if id, ok := in.Y.(*ast.Ident); ok {
			return &ast.Replace{Collection: id.Name, Key: key, Fields: in.X}, nil
		}
	}
	if err := p.expectKw("IN"); err != nil {
		return nil, err
	}
	col, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &ast.Replace{Collection: col, Key: key, Fields: fields}, nil
}

func (p *parser) parseRemove() (*ast.Remove, error) {
	p.advance() // REMOVE
	key, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if in, ok := key.(*ast.In); ok && !in.Not {
		if id, ok := in.Y.(*ast.Ident); ok {
			return &ast.Remove{Collection: id.Name, Key: in.X}, nil
		}
	}
	if err := p.expectKw("IN"); err != nil {
		return nil, err
	}
	col, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &ast.Remove{Collection: col, Key: key}, nil
}

func (p *parser) parseUpsert() (*ast.Upsert, error) {
	p.advance() // UPSERT
	search, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("INSERT"); err != nil {
		return nil, err
	}
	ins, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("UPDATE"); err != nil {
		return nil, err
	}
	upd, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if in, ok := upd.(*ast.In); ok && !in.Not {
		if id, ok := in.Y.(*ast.Ident); ok {
			return &ast.Upsert{Collection: id.Name, Search: search, Insert: ins, Update: in.X}, nil
		}
	}
	if err := p.expectKw("IN"); err != nil {
		return nil, err
	}
	col, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &ast.Upsert{Collection: col, Search: search, Insert: ins, Update: upd}, nil
}

func (p *parser) parseReturn() (*ast.ReturnClause, error) {
	p.advance() // RETURN
	r := &ast.ReturnClause{}
	if p.kw("DISTINCT") {
		p.advance()
		r.Distinct = true
	}
	if p.kw("NEW") {
		p.advance()
		r.NewOld = "NEW"
		return r, nil
	}
	if p.kw("OLD") {
		p.advance()
		r.NewOld = "OLD"
		return r, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	r.Expr = e
	return r, nil
}

// ---- expression grammar ----

func (p *parser) parseExpr() (ast.Expr, error) { return p.parsePipe() }

// parsePipe handles `x |> f(args)`, the loosest-binding operator: f is
// called with x spliced in as its first argument (spec §4.7 pipeline
// operator). Left-associative, so `x |> f() |> g()` pipes through f then g.
func (p *parser) parsePipe() (ast.Expr, error) {
	x, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	for p.punct("|>") {
		p.advance()
		rhs, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		call, ok := rhs.(*ast.Call)
		if !ok {
			return nil, p.errorf("pipeline operator |> requires a function call on its right-hand side")
		}
		x = &ast.Pipe{X: x, Call: call}
	}
	return x, nil
}

func (p *parser) parseTernary() (ast.Expr, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.punct("?") {
		p.advance()
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		els, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Ternary{Cond: cond, Then: then, Else: els}, nil
	}
	return cond, nil
}

func (p *parser) parseOr() (ast.Expr, error) {
	x, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.punct("||") || p.kw("OR") {
		p.advance()
		y, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		x = &ast.Binary{Op: "||", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseAnd() (ast.Expr, error) {
	x, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.punct("&&") || p.kw("AND") {
		p.advance()
		y, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		x = &ast.Binary{Op: "&&", X: x, Y: y}
	}
	return x, nil
}

// comparisonOps also includes "~=", SDBQL's fuzzy-match operator (spec
// §4.7): `a ~= b` is true when a and b's phonetic codes match.
var comparisonOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true, "~=": true}

func (p *parser) parseComparison() (ast.Expr, error) {
	x, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind == lexer.KindPunct && comparisonOps[p.cur().Value] {
		op := p.advance().Value
		y, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &ast.Binary{Op: op, X: x, Y: y}, nil
	}
	if p.kw("NOT") {
		p.advance()
		if err := p.expectKw("IN"); err != nil {
			return nil, err
		}
		y, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &ast.In{X: x, Y: y, Not: true}, nil
	}
	if p.kw("IN") {
		p.advance()
		y, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &ast.In{X: x, Y: y}, nil
	}
	return x, nil
}

func (p *parser) parseAdditive() (ast.Expr, error) {
	x, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.punct("+") || p.punct("-") {
		op := p.advance().Value
		y, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		x = &ast.Binary{Op: op, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseMultiplicative() (ast.Expr, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.punct("*") || p.punct("/") || p.punct("%") {
		op := p.advance().Value
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		x = &ast.Binary{Op: op, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseUnary() (ast.Expr, error) {
	if p.punct("-") || p.punct("!") || p.kw("NOT") {
		op := p.advance().Value
		if strings.EqualFold(op, "NOT") {
			op = "!"
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Op: op, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (ast.Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.punct("."):
			p.advance()
			field, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			x = &ast.Member{X: x, Field: field}
		case p.punct("?."):
			p.advance()
			field, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			x = &ast.Member{X: x, Field: field, Optional: true}
		case p.punct("["):
			p.advance()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			x = &ast.Index{X: x, Idx: idx}
		default:
			return x, nil
		}
	}
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	t := p.cur()
	switch {
	case t.Kind == lexer.KindNumber:
		p.advance()
		if strings.Contains(t.Value, ".") {
			f, err := strconv.ParseFloat(t.Value, 64)
			if err != nil {
				return nil, p.errorf("invalid number %q: %v", t.Value, err)
			}
			return &ast.Literal{Value: f}, nil
		}
		i, err := strconv.ParseInt(t.Value, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q: %v", t.Value, err)
		}
		return &ast.Literal{Value: i}, nil
	case t.Kind == lexer.KindString:
		p.advance()
		return &ast.Literal{Value: unquote(t.Value)}, nil
	case t.Kind == lexer.KindTemplateString:
		p.advance()
		return parseTemplateString(t.Value)
	case t.Kind == lexer.KindBindVar:
		p.advance()
		collection := strings.HasPrefix(t.Value, "@@")
		name := strings.TrimPrefix(strings.TrimPrefix(t.Value, "@@"), "@")
		return &ast.BindVar{Name: name, Collection: collection}, nil
	case p.punct("("):
		p.advance()
		if p.kw("FOR") {
			q, err := p.parseQuery()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return &ast.Subquery{Query: q}, nil
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil
	case p.punct("["):
		return p.parseArrayLit()
	case p.punct("{"):
		return p.parseObjectLit()
	case t.Kind == lexer.KindIdent:
		switch strings.ToUpper(t.Value) {
		case "NULL":
			p.advance()
			return &ast.Literal{Value: nil}, nil
		case "TRUE":
			p.advance()
			return &ast.Literal{Value: true}, nil
		case "FALSE":
			p.advance()
			return &ast.Literal{Value: false}, nil
		}
		name := p.advance().Value
		if p.punct("(") {
			p.advance()
			var args []ast.Expr
			for !p.punct(")") {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.punct(",") {
					p.advance()
					continue
				}
				break
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return &ast.Call{Func: strings.ToUpper(name), Args: args}, nil
		}
		return &ast.Ident{Name: name}, nil
	default:
		return nil, p.errorf("unexpected token %q", t.Value)
	}
}

func (p *parser) parseArrayLit() (ast.Expr, error) {
	p.advance() // [
	lit := &ast.ArrayLit{}
	for !p.punct("]") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		lit.Elements = append(lit.Elements, e)
		if p.punct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *parser) parseObjectLit() (ast.Expr, error) {
	p.advance() // {
	lit := &ast.ObjectLit{}
	for !p.punct("}") {
		if p.punct("..") {
			// spread: "..." lexes as ".." followed by "."
			p.advance()
			if err := p.expectPunct("."); err != nil {
				return nil, err
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			lit.Fields = append(lit.Fields, ast.ObjectField{Spread: true, Value: e})
		} else {
			var key string
			if p.cur().Kind == lexer.KindString {
				key = unquote(p.advance().Value)
			} else {
				k, err := p.expectIdent()
				if err != nil {
					return nil, err
				}
				key = k
			}
			if p.punct(":") {
				p.advance()
				v, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				lit.Fields = append(lit.Fields, ast.ObjectField{Key: key, Value: v})
			} else {
				lit.Fields = append(lit.Fields, ast.ObjectField{Key: key, Value: &ast.Ident{Name: key}})
			}
		}
		if p.punct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return lit, nil
}

// parseTemplateString splits a `$"...${expr}..."` token's raw text into
// literal runs and `${expr}` substitutions, parsing each substitution as
// its own expression (spec §4.7 string interpolation).
func parseTemplateString(raw string) (*ast.TemplateString, error) {
	inner := raw[2 : len(raw)-1] // strip leading $" and trailing "
	var parts []ast.TemplateStringPart
	var lit strings.Builder
	i := 0
	for i < len(inner) {
		c := inner[i]
		if c == '\\' && i+1 < len(inner) {
			switch inner[i+1] {
			case 'n':
				lit.WriteByte('\n')
			case 't':
				lit.WriteByte('\t')
			default:
				lit.WriteByte(inner[i+1])
			}
			i += 2
			continue
		}
		if c == '$' && i+1 < len(inner) && inner[i+1] == '{' {
			if lit.Len() > 0 {
				parts = append(parts, ast.TemplateStringPart{Text: lit.String()})
				lit.Reset()
			}
			depth := 1
			j := i + 2
			for j < len(inner) && depth > 0 {
				switch inner[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
				if depth == 0 {
					break
				}
				j++
			}
			if depth != 0 {
				return nil, types.NewError(types.ErrParseError, "unterminated ${...} substitution in template string")
			}
			exprSrc := inner[i+2 : j]
			toks, err := lexer.Tokenize(exprSrc)
			if err != nil {
				return nil, err
			}
			sub := &parser{toks: toks, src: exprSrc}
			e, err := sub.parseExpr()
			if err != nil {
				return nil, err
			}
			if !sub.atEOF() {
				return nil, sub.errorf("unexpected trailing input %q in template substitution", sub.cur().Value)
			}
			parts = append(parts, ast.TemplateStringPart{Expr: e})
			i = j + 1
			continue
		}
		lit.WriteByte(c)
		i++
	}
	if lit.Len() > 0 {
		parts = append(parts, ast.TemplateStringPart{Text: lit.String()})
	}
	return &ast.TemplateString{Parts: parts}, nil
}

func unquote(raw string) string {
	if len(raw) < 2 {
		return raw
	}
	inner := raw[1 : len(raw)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
			switch inner[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(inner[i])
			}
			continue
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}
