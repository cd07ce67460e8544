package exec

import (
	"math"
	"strings"

	"github.com/cuemby/solidb/pkg/sdbql/ast"
	"github.com/cuemby/solidb/pkg/types"
)

// Row is one pipeline binding: the variables accumulated by the clauses
// seen so far (FOR/LET/COLLECT targets), keyed by name.
type Row map[string]types.Value

func (r Row) clone() Row {
	out := make(Row, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// env is what expression evaluation sees: a row's variables layered over
// the query's bind variables.
type env struct {
	row      Row
	bindVars map[string]types.Value
}

func (e *env) lookup(name string) (types.Value, bool) {
	if v, ok := e.row[name]; ok {
		return v, true
	}
	return types.Null(), false
}

// eval evaluates expr against env, implementing SDBQL's short-circuit
// rules for missing fields (spec §4.8: "a.b.c on a = null yields null,
// not an error; a?.b does the same even on non-object a").
func (ex *Executor) eval(e ast.Expr, en *env) (types.Value, error) {
	switch n := e.(type) {
	case *ast.Literal:
		return literalValue(n.Value), nil
	case *ast.Ident:
		v, ok := en.lookup(n.Name)
		if !ok {
			return types.Null(), nil
		}
		return v, nil
	case *ast.BindVar:
		if n.Collection {
			return types.Null(), types.NewError(types.ErrTypeError, "collection bind var @@%s cannot be used as a value", n.Name)
		}
		v, ok := en.bindVars[n.Name]
		if !ok {
			return types.Null(), types.NewError(types.ErrInvalidArgument, "undeclared bind variable @%s", n.Name)
		}
		return v, nil
	case *ast.ArrayLit:
		vals := make([]types.Value, 0, len(n.Elements))
		for _, el := range n.Elements {
			v, err := ex.eval(el, en)
			if err != nil {
				return types.Null(), err
			}
			vals = append(vals, v)
		}
		return types.Array(vals), nil
	case *ast.ObjectLit:
		return ex.evalObjectLit(n, en)
	case *ast.Unary:
		return ex.evalUnary(n, en)
	case *ast.Binary:
		return ex.evalBinary(n, en)
	case *ast.Member:
		return ex.evalMember(n, en)
	case *ast.Index:
		return ex.evalIndex(n, en)
	case *ast.In:
		return ex.evalIn(n, en)
	case *ast.Ternary:
		cond, err := ex.eval(n.Cond, en)
		if err != nil {
			return types.Null(), err
		}
		if cond.Truthy() {
			return ex.eval(n.Then, en)
		}
		return ex.eval(n.Else, en)
	case *ast.Call:
		return ex.evalCall(n, en)
	case *ast.Subquery:
		vals, err := ex.runSubquery(n.Query, en)
		if err != nil {
			return types.Null(), err
		}
		return types.Array(vals), nil
	case *ast.Pipe:
		return ex.evalPipe(n, en)
	case *ast.TemplateString:
		return ex.evalTemplateString(n, en)
	default:
		return types.Null(), types.NewError(types.ErrInternal, "unhandled expression node %T", e)
	}
}

func literalValue(v interface{}) types.Value {
	switch t := v.(type) {
	case nil:
		return types.Null()
	case bool:
		return types.Bool(t)
	case int64:
		return types.Int(t)
	case float64:
		return types.Float(t)
	case string:
		return types.String(t)
	default:
		return types.Null()
	}
}

func (ex *Executor) evalObjectLit(n *ast.ObjectLit, en *env) (types.Value, error) {
	out := types.NewObject()
	for _, f := range n.Fields {
		if f.Spread {
			v, err := ex.eval(f.Value, en)
			if err != nil {
				return types.Null(), err
			}
			if v.Kind() != types.KindObject {
				continue
			}
			for _, k := range v.AsObject().Keys() {
				fv, _ := v.AsObject().Get(k)
				out.Set(k, fv)
			}
			continue
		}
		v, err := ex.eval(f.Value, en)
		if err != nil {
			return types.Null(), err
		}
		out.Set(f.Key, v)
	}
	return types.ObjectVal(out), nil
}

func (ex *Executor) evalUnary(n *ast.Unary, en *env) (types.Value, error) {
	v, err := ex.eval(n.X, en)
	if err != nil {
		return types.Null(), err
	}
	switch n.Op {
	case "!":
		return types.Bool(!v.Truthy()), nil
	case "-":
		if !v.IsNumber() {
			return types.Null(), types.NewError(types.ErrTypeError, "unary - requires a number")
		}
		if v.Kind() == types.KindInt {
			return types.Int(-v.AsInt()), nil
		}
		return types.Float(-v.AsFloat()), nil
	default:
		return types.Null(), types.NewError(types.ErrInternal, "unknown unary operator %q", n.Op)
	}
}

func (ex *Executor) evalBinary(n *ast.Binary, en *env) (types.Value, error) {
	if n.Op == "&&" {
		x, err := ex.eval(n.X, en)
		if err != nil {
			return types.Null(), err
		}
		if !x.Truthy() {
			return types.Bool(false), nil
		}
		y, err := ex.eval(n.Y, en)
		if err != nil {
			return types.Null(), err
		}
		return types.Bool(y.Truthy()), nil
	}
	if n.Op == "||" {
		x, err := ex.eval(n.X, en)
		if err != nil {
			return types.Null(), err
		}
		if x.Truthy() {
			return types.Bool(true), nil
		}
		y, err := ex.eval(n.Y, en)
		if err != nil {
			return types.Null(), err
		}
		return types.Bool(y.Truthy()), nil
	}

	x, err := ex.eval(n.X, en)
	if err != nil {
		return types.Null(), err
	}
	y, err := ex.eval(n.Y, en)
	if err != nil {
		return types.Null(), err
	}

	switch n.Op {
	case "==":
		return types.Bool(types.Compare(x, y) == 0), nil
	case "!=":
		return types.Bool(types.Compare(x, y) != 0), nil
	case "<":
		return types.Bool(types.Compare(x, y) < 0), nil
	case "<=":
		return types.Bool(types.Compare(x, y) <= 0), nil
	case ">":
		return types.Bool(types.Compare(x, y) > 0), nil
	case ">=":
		return types.Bool(types.Compare(x, y) >= 0), nil
	case "~=":
		return types.Bool(soundex(x.AsString()) == soundex(y.AsString())), nil
	case "+":
		if x.Kind() == types.KindString || y.Kind() == types.KindString {
			return types.String(toDisplayString(x) + toDisplayString(y)), nil
		}
		return arith(x, y, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
	case "-":
		return arith(x, y, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
	case "*":
		return arith(x, y, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
	case "/":
		if !x.IsNumber() || !y.IsNumber() {
			return types.Null(), types.NewError(types.ErrTypeError, "/ requires numbers")
		}
		if y.AsFloat() == 0 {
			return types.Null(), types.NewError(types.ErrInvalidArgument, "division by zero")
		}
		return types.Float(x.AsFloat() / y.AsFloat()), nil
	case "%":
		if !x.IsNumber() || !y.IsNumber() {
			return types.Null(), types.NewError(types.ErrTypeError, "%% requires numbers")
		}
		if y.AsInt() == 0 {
			return types.Null(), types.NewError(types.ErrInvalidArgument, "modulo by zero")
		}
		return types.Int(x.AsInt() % y.AsInt()), nil
	default:
		return types.Null(), types.NewError(types.ErrInternal, "unknown binary operator %q", n.Op)
	}
}

func arith(x, y types.Value, ints func(a, b int64) int64, floats func(a, b float64) float64) (types.Value, error) {
	if !x.IsNumber() || !y.IsNumber() {
		return types.Null(), types.NewError(types.ErrTypeError, "arithmetic requires numbers")
	}
	if x.Kind() == types.KindInt && y.Kind() == types.KindInt {
		return types.Int(ints(x.AsInt(), y.AsInt())), nil
	}
	return types.Float(floats(x.AsFloat(), y.AsFloat())), nil
}

func (ex *Executor) evalMember(n *ast.Member, en *env) (types.Value, error) {
	v, err := ex.eval(n.X, en)
	if err != nil {
		return types.Null(), err
	}
	if v.Kind() != types.KindObject {
		if v.IsNull() || n.Optional {
			return types.Null(), nil
		}
		return types.Null(), types.NewError(types.ErrTypeError, "member access %q on non-object value", n.Field)
	}
	fv, ok := v.AsObject().Get(n.Field)
	if !ok {
		return types.Null(), nil
	}
	return fv, nil
}

func (ex *Executor) evalIndex(n *ast.Index, en *env) (types.Value, error) {
	v, err := ex.eval(n.X, en)
	if err != nil {
		return types.Null(), err
	}
	idx, err := ex.eval(n.Idx, en)
	if err != nil {
		return types.Null(), err
	}
	switch v.Kind() {
	case types.KindNull:
		return types.Null(), nil
	case types.KindArray:
		if !idx.IsNumber() {
			return types.Null(), types.NewError(types.ErrTypeError, "array index must be a number")
		}
		i := int(idx.AsInt())
		arr := v.AsArray()
		if i < 0 {
			i += len(arr)
		}
		if i < 0 || i >= len(arr) {
			return types.Null(), nil
		}
		return arr[i], nil
	case types.KindObject:
		if idx.Kind() != types.KindString {
			return types.Null(), types.NewError(types.ErrTypeError, "object index must be a string")
		}
		fv, ok := v.AsObject().Get(idx.AsString())
		if !ok {
			return types.Null(), nil
		}
		return fv, nil
	default:
		return types.Null(), types.NewError(types.ErrTypeError, "cannot index a %v", v.Kind())
	}
}

func (ex *Executor) evalIn(n *ast.In, en *env) (types.Value, error) {
	x, err := ex.eval(n.X, en)
	if err != nil {
		return types.Null(), err
	}
	y, err := ex.eval(n.Y, en)
	if err != nil {
		return types.Null(), err
	}
	if y.Kind() != types.KindArray {
		return types.Null(), types.NewError(types.ErrTypeError, "IN requires an array on the right-hand side")
	}
	found := false
	for _, el := range y.AsArray() {
		if types.Compare(x, el) == 0 {
			found = true
			break
		}
	}
	if n.Not {
		found = !found
	}
	return types.Bool(found), nil
}

// evalPipe evaluates `x |> f(args)` by calling f with x spliced in as its
// first argument, ahead of any explicit args (spec §4.7 pipeline
// operator).
func (ex *Executor) evalPipe(n *ast.Pipe, en *env) (types.Value, error) {
	x, err := ex.eval(n.X, en)
	if err != nil {
		return types.Null(), err
	}
	args := make([]types.Value, 0, len(n.Call.Args)+1)
	args = append(args, x)
	for _, a := range n.Call.Args {
		v, err := ex.eval(a, en)
		if err != nil {
			return types.Null(), err
		}
		args = append(args, v)
	}
	fn, ok := builtins[n.Call.Func]
	if !ok {
		return types.Null(), types.NewError(types.ErrInvalidArgument, "unknown function %s", n.Call.Func)
	}
	return fn(args)
}

func (ex *Executor) evalTemplateString(n *ast.TemplateString, en *env) (types.Value, error) {
	var b strings.Builder
	for _, part := range n.Parts {
		if part.Expr == nil {
			b.WriteString(part.Text)
			continue
		}
		v, err := ex.eval(part.Expr, en)
		if err != nil {
			return types.Null(), err
		}
		b.WriteString(toDisplayString(v))
	}
	return types.String(b.String()), nil
}

func toDisplayString(v types.Value) string {
	switch v.Kind() {
	case types.KindString:
		return v.AsString()
	case types.KindNull:
		return ""
	case types.KindInt:
		return formatInt(v.AsInt())
	case types.KindFloat:
		return formatFloat(v.AsFloat())
	case types.KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	default:
		b, _ := v.MarshalJSON()
		return string(b)
	}
}

func formatInt(i int64) string {
	b, _ := types.Int(i).MarshalJSON()
	return string(b)
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "null"
	}
	b, _ := types.Float(f).MarshalJSON()
	return string(b)
}
