package exec

import (
	"bytes"
	"math"

	"github.com/cuemby/solidb/pkg/codec"
	"github.com/cuemby/solidb/pkg/sdbql/ast"
	"github.com/cuemby/solidb/pkg/types"
)

type collectGroup struct {
	keyRow  Row
	members []Row
}

// applyCollect groups rows by tuple and computes per-group aggregates
// (spec §4.8 "COLLECT groups by tuple; AGGREGATE computes SUM/AVG/MIN/
// MAX/COUNT/UNIQUE/STDDEV/VARIANCE per group"). Group order is first-seen
// order, matching a single linear pass over the input rows.
func (ex *Executor) applyCollect(c *ast.Collect, rows []Row, bindVars map[string]types.Value, declared map[string]bool) ([]Row, string, error) {
	groups := map[string]*collectGroup{}
	var order []string

	for _, row := range rows {
		en := &env{row: row, bindVars: bindVars}
		keyRow := Row{}
		var keyBuf bytes.Buffer
		for _, g := range c.Groups {
			v, err := ex.eval(g.Value, en)
			if err != nil {
				return nil, "", err
			}
			keyRow[g.Var] = v
			codec.AppendValue(&keyBuf, v)
		}
		k := keyBuf.String()
		grp, ok := groups[k]
		if !ok {
			grp = &collectGroup{keyRow: keyRow}
			groups[k] = grp
			order = append(order, k)
		}
		grp.members = append(grp.members, row)
	}

	out := make([]Row, 0, len(order))
	for _, k := range order {
		grp := groups[k]
		result := grp.keyRow.clone()
		if c.Into != "" {
			arr := make([]types.Value, 0, len(grp.members))
			for _, m := range grp.members {
				arr = append(arr, rowToObject(m))
			}
			result[c.Into] = types.Array(arr)
		}
		for _, agg := range c.Aggregates {
			vals := make([]types.Value, 0, len(grp.members))
			for _, m := range grp.members {
				en := &env{row: m, bindVars: bindVars}
				v, err := ex.eval(agg.Expr, en)
				if err != nil {
					return nil, "", err
				}
				vals = append(vals, v)
			}
			av, err := aggregate(agg.Func, vals)
			if err != nil {
				return nil, "", err
			}
			result[agg.Var] = av
		}
		out = append(out, result)
	}

	for _, g := range c.Groups {
		declared[g.Var] = true
	}
	for _, a := range c.Aggregates {
		declared[a.Var] = true
	}
	if c.Into != "" {
		declared[c.Into] = true
	}
	return out, "Collect", nil
}

func aggregate(fn string, vals []types.Value) (types.Value, error) {
	switch fn {
	case "COUNT":
		return types.Int(int64(len(vals))), nil
	case "SUM":
		sum, allInt := 0.0, true
		for _, v := range vals {
			if !v.IsNumber() {
				continue
			}
			sum += v.AsFloat()
			if v.Kind() != types.KindInt {
				allInt = false
			}
		}
		if allInt {
			return types.Int(int64(sum)), nil
		}
		return types.Float(sum), nil
	case "AVG":
		sum, n := 0.0, 0
		for _, v := range vals {
			if !v.IsNumber() {
				continue
			}
			sum += v.AsFloat()
			n++
		}
		if n == 0 {
			return types.Null(), nil
		}
		return types.Float(sum / float64(n)), nil
	case "MIN":
		return extreme(vals, -1)
	case "MAX":
		return extreme(vals, 1)
	case "UNIQUE":
		return fnUnique([]types.Value{types.Array(vals)})
	case "VARIANCE":
		return types.Float(varianceOf(vals)), nil
	case "STDDEV":
		return types.Float(math.Sqrt(varianceOf(vals))), nil
	default:
		return types.Null(), types.NewError(types.ErrInvalidArgument, "unknown aggregate function %s", fn)
	}
}

func varianceOf(vals []types.Value) float64 {
	var nums []float64
	for _, v := range vals {
		if v.IsNumber() {
			nums = append(nums, v.AsFloat())
		}
	}
	if len(nums) == 0 {
		return 0
	}
	mean := 0.0
	for _, n := range nums {
		mean += n
	}
	mean /= float64(len(nums))
	var sq float64
	for _, n := range nums {
		d := n - mean
		sq += d * d
	}
	return sq / float64(len(nums))
}
