package exec

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/solidb/pkg/sdbql/ast"
	"github.com/cuemby/solidb/pkg/types"
)

// builtin is one SDBQL function implementation; args have already been
// evaluated left to right.
type builtin func(args []types.Value) (types.Value, error)

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"LENGTH":      fnLength,
		"UPPER":       fnUpper,
		"LOWER":       fnLower,
		"CONCAT":      fnConcat,
		"SUBSTRING":   fnSubstring,
		"CONTAINS":    fnContains,
		"SPLIT":       fnSplit,
		"TRIM":        fnTrim,
		"ABS":         fnAbs,
		"ROUND":       fnRound,
		"FLOOR":       fnFloor,
		"CEIL":        fnCeil,
		"SQRT":        fnSqrt,
		"IS_NULL":     fnIsNull,
		"IS_NUMBER":   fnIsNumber,
		"IS_STRING":   fnIsString,
		"IS_ARRAY":    fnIsArray,
		"IS_OBJECT":   fnIsObject,
		"KEYS":        fnKeys,
		"VALUES":      fnValues,
		"MERGE":       fnMerge,
		"APPEND":      fnAppend,
		"UNIQUE":      fnUnique,
		"FLATTEN":     fnFlatten,
		"TO_STRING":   fnToString,
		"TO_NUMBER":   fnToNumber,
		"TO_BOOL":     fnToBool,
		"MIN":         fnMin,
		"MAX":         fnMax,
		"FIRST":       fnFirst,
		"LAST":        fnLast,
		"HYBRID_SCORE": fnHybridScore,

		"SOUNDEX":           fnSoundex,
		"COLOGNE_PHONETIC":  fnColognePhonetic,
		"CAVERPHONE":        fnCaverphone,
		"NYSIIS":            fnNysiis,
		"DOUBLE_METAPHONE":  fnDoubleMetaphone,
	}
}

func (ex *Executor) evalCall(n *ast.Call, en *env) (types.Value, error) {
	args := make([]types.Value, 0, len(n.Args))
	for _, a := range n.Args {
		v, err := ex.eval(a, en)
		if err != nil {
			return types.Null(), err
		}
		args = append(args, v)
	}
	fn, ok := builtins[n.Func]
	if !ok {
		return types.Null(), types.NewError(types.ErrInvalidArgument, "unknown function %s", n.Func)
	}
	return fn(args)
}

func arg(args []types.Value, i int) types.Value {
	if i < len(args) {
		return args[i]
	}
	return types.Null()
}

func fnLength(args []types.Value) (types.Value, error) {
	v := arg(args, 0)
	switch v.Kind() {
	case types.KindString:
		return types.Int(int64(len([]rune(v.AsString())))), nil
	case types.KindArray:
		return types.Int(int64(len(v.AsArray()))), nil
	case types.KindObject:
		return types.Int(int64(v.AsObject().Len())), nil
	case types.KindNull:
		return types.Int(0), nil
	default:
		return types.Null(), types.NewError(types.ErrTypeError, "LENGTH requires a string, array or object")
	}
}

func fnUpper(args []types.Value) (types.Value, error) {
	return types.String(strings.ToUpper(arg(args, 0).AsString())), nil
}

func fnLower(args []types.Value) (types.Value, error) {
	return types.String(strings.ToLower(arg(args, 0).AsString())), nil
}

func fnConcat(args []types.Value) (types.Value, error) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(toDisplayString(a))
	}
	return types.String(b.String()), nil
}

func fnSubstring(args []types.Value) (types.Value, error) {
	s := []rune(arg(args, 0).AsString())
	start := int(arg(args, 1).AsInt())
	if start < 0 {
		start = 0
	}
	if start > len(s) {
		start = len(s)
	}
	length := len(s) - start
	if len(args) > 2 {
		length = int(arg(args, 2).AsInt())
	}
	end := start + length
	if end > len(s) {
		end = len(s)
	}
	if end < start {
		end = start
	}
	return types.String(string(s[start:end])), nil
}

func fnContains(args []types.Value) (types.Value, error) {
	return types.Bool(strings.Contains(arg(args, 0).AsString(), arg(args, 1).AsString())), nil
}

func fnSplit(args []types.Value) (types.Value, error) {
	parts := strings.Split(arg(args, 0).AsString(), arg(args, 1).AsString())
	vals := make([]types.Value, len(parts))
	for i, p := range parts {
		vals[i] = types.String(p)
	}
	return types.Array(vals), nil
}

func fnTrim(args []types.Value) (types.Value, error) {
	return types.String(strings.TrimSpace(arg(args, 0).AsString())), nil
}

func fnAbs(args []types.Value) (types.Value, error) {
	v := arg(args, 0)
	if v.Kind() == types.KindInt {
		n := v.AsInt()
		if n < 0 {
			n = -n
		}
		return types.Int(n), nil
	}
	return types.Float(math.Abs(v.AsFloat())), nil
}

func fnRound(args []types.Value) (types.Value, error) {
	return types.Float(math.Round(arg(args, 0).AsFloat())), nil
}

func fnFloor(args []types.Value) (types.Value, error) {
	return types.Float(math.Floor(arg(args, 0).AsFloat())), nil
}

func fnCeil(args []types.Value) (types.Value, error) {
	return types.Float(math.Ceil(arg(args, 0).AsFloat())), nil
}

func fnSqrt(args []types.Value) (types.Value, error) {
	return types.Float(math.Sqrt(arg(args, 0).AsFloat())), nil
}

func fnIsNull(args []types.Value) (types.Value, error)   { return types.Bool(arg(args, 0).IsNull()), nil }
func fnIsNumber(args []types.Value) (types.Value, error) { return types.Bool(arg(args, 0).IsNumber()), nil }
func fnIsString(args []types.Value) (types.Value, error) {
	return types.Bool(arg(args, 0).Kind() == types.KindString), nil
}
func fnIsArray(args []types.Value) (types.Value, error) {
	return types.Bool(arg(args, 0).Kind() == types.KindArray), nil
}
func fnIsObject(args []types.Value) (types.Value, error) {
	return types.Bool(arg(args, 0).Kind() == types.KindObject), nil
}

func fnKeys(args []types.Value) (types.Value, error) {
	v := arg(args, 0)
	if v.Kind() != types.KindObject {
		return types.Null(), types.NewError(types.ErrTypeError, "KEYS requires an object")
	}
	keys := v.AsObject().Keys()
	vals := make([]types.Value, len(keys))
	for i, k := range keys {
		vals[i] = types.String(k)
	}
	return types.Array(vals), nil
}

func fnValues(args []types.Value) (types.Value, error) {
	v := arg(args, 0)
	if v.Kind() != types.KindObject {
		return types.Null(), types.NewError(types.ErrTypeError, "VALUES requires an object")
	}
	keys := v.AsObject().Keys()
	vals := make([]types.Value, len(keys))
	for i, k := range keys {
		vals[i], _ = v.AsObject().Get(k)
	}
	return types.Array(vals), nil
}

func fnMerge(args []types.Value) (types.Value, error) {
	out := types.NewObject()
	for _, a := range args {
		if a.Kind() != types.KindObject {
			continue
		}
		for _, k := range a.AsObject().Keys() {
			v, _ := a.AsObject().Get(k)
			out.Set(k, v)
		}
	}
	return types.ObjectVal(out), nil
}

func fnAppend(args []types.Value) (types.Value, error) {
	base := arg(args, 0)
	if base.Kind() != types.KindArray {
		return types.Null(), types.NewError(types.ErrTypeError, "APPEND requires an array")
	}
	extra := arg(args, 1)
	var extraVals []types.Value
	if extra.Kind() == types.KindArray {
		extraVals = extra.AsArray()
	} else {
		extraVals = []types.Value{extra}
	}
	return types.Array(append(append([]types.Value{}, base.AsArray()...), extraVals...)), nil
}

func fnUnique(args []types.Value) (types.Value, error) {
	v := arg(args, 0)
	if v.Kind() != types.KindArray {
		return types.Null(), types.NewError(types.ErrTypeError, "UNIQUE requires an array")
	}
	var out []types.Value
	for _, el := range v.AsArray() {
		dup := false
		for _, seen := range out {
			if types.Compare(seen, el) == 0 {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, el)
		}
	}
	return types.Array(out), nil
}

func fnFlatten(args []types.Value) (types.Value, error) {
	v := arg(args, 0)
	if v.Kind() != types.KindArray {
		return types.Null(), types.NewError(types.ErrTypeError, "FLATTEN requires an array")
	}
	var out []types.Value
	for _, el := range v.AsArray() {
		if el.Kind() == types.KindArray {
			out = append(out, el.AsArray()...)
			continue
		}
		out = append(out, el)
	}
	return types.Array(out), nil
}

func fnToString(args []types.Value) (types.Value, error) {
	return types.String(toDisplayString(arg(args, 0))), nil
}

func fnToNumber(args []types.Value) (types.Value, error) {
	v := arg(args, 0)
	if v.IsNumber() {
		return v, nil
	}
	if v.Kind() == types.KindString {
		if f, err := strconv.ParseFloat(v.AsString(), 64); err == nil {
			return types.Float(f), nil
		}
	}
	return types.Int(0), nil
}

func fnToBool(args []types.Value) (types.Value, error) {
	return types.Bool(arg(args, 0).Truthy()), nil
}

func fnMin(args []types.Value) (types.Value, error) { return extreme(args, -1) }
func fnMax(args []types.Value) (types.Value, error) { return extreme(args, 1) }

func extreme(args []types.Value, want int) (types.Value, error) {
	vals := flattenArgs(args)
	if len(vals) == 0 {
		return types.Null(), nil
	}
	best := vals[0]
	for _, v := range vals[1:] {
		if (types.Compare(v, best) < 0 && want < 0) || (types.Compare(v, best) > 0 && want > 0) {
			best = v
		}
	}
	return best, nil
}

func flattenArgs(args []types.Value) []types.Value {
	if len(args) == 1 && args[0].Kind() == types.KindArray {
		return args[0].AsArray()
	}
	return args
}

func fnFirst(args []types.Value) (types.Value, error) {
	v := arg(args, 0)
	if v.Kind() != types.KindArray || len(v.AsArray()) == 0 {
		return types.Null(), nil
	}
	return v.AsArray()[0], nil
}

func fnLast(args []types.Value) (types.Value, error) {
	v := arg(args, 0)
	if v.Kind() != types.KindArray || len(v.AsArray()) == 0 {
		return types.Null(), nil
	}
	arr := v.AsArray()
	return arr[len(arr)-1], nil
}

// fnHybridScore blends a fulltext score and a vector-distance score into
// one ranking value, exposed as SDBQL's HYBRID_SCORE(fulltext, vector,
// weight) builtin (spec's hybrid-search note). weight in [0,1] favors the
// fulltext term as it approaches 1; vector distance is treated as
// "smaller is better" and converted to a similarity via 1/(1+d).
func fnHybridScore(args []types.Value) (types.Value, error) {
	fulltext := arg(args, 0).AsFloat()
	distance := arg(args, 1).AsFloat()
	weight := 0.5
	if len(args) > 2 {
		weight = arg(args, 2).AsFloat()
	}
	similarity := 1.0 / (1.0 + distance)
	return types.Float(weight*fulltext + (1-weight)*similarity), nil
}

// sortValues stable-sorts vals, descending when desc is set. The SORT
// clause and COLLECT do not call it.
func sortValues(vals []types.Value, desc bool) {
	sort.SliceStable(vals, func(i, j int) bool {
		c := types.Compare(vals[i], vals[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}
