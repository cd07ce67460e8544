package exec

import (
	"fmt"
	"sort"

	"github.com/cuemby/solidb/pkg/codec"
	"github.com/cuemby/solidb/pkg/sdbql/ast"
	"github.com/cuemby/solidb/pkg/types"
)

// windowRow is one row's precomputed inputs to a window function: its
// partition key, its OVER (ORDER BY ...) sort keys, the function's
// argument value, and (LAG/LEAD only) its offset.
type windowRow struct {
	partition string
	orderKeys []types.Value
	arg       types.Value
	offset    int64
}

// applyWindow computes one analytic window function per row, partitioned
// by n.Partition and ordered within each partition by n.OrderBy (spec
// §4.7/§4.8 window functions). It runs at its own position in the clause
// list, like any other pipeline stage: the partition/order-by here
// governs only the function's own computation, not the row order the
// pipeline carries forward, and a SORT clause written after the WINDOW
// reorders rows after these values are computed.
func (ex *Executor) applyWindow(n *ast.WindowClause, rows []Row, bindVars map[string]types.Value) ([]Row, string, error) {
	kr := make([]windowRow, len(rows))
	for i, row := range rows {
		en := &env{row: row, bindVars: bindVars}

		partVals := make([]types.Value, len(n.Partition))
		for j, pe := range n.Partition {
			v, err := ex.eval(pe, en)
			if err != nil {
				return nil, "", err
			}
			partVals[j] = v
		}

		orderKeys := make([]types.Value, len(n.OrderBy))
		for j, ok := range n.OrderBy {
			v, err := ex.eval(ok.Expr, en)
			if err != nil {
				return nil, "", err
			}
			orderKeys[j] = v
		}

		var arg types.Value
		if n.Arg != nil {
			v, err := ex.eval(n.Arg, en)
			if err != nil {
				return nil, "", err
			}
			arg = v
		}

		offset := int64(1)
		if n.Offset != nil {
			v, err := ex.eval(n.Offset, en)
			if err != nil {
				return nil, "", err
			}
			offset = v.AsInt()
		}

		kr[i] = windowRow{
			partition: string(codec.EncodeValues(partVals...)),
			orderKeys: orderKeys,
			arg:       arg,
			offset:    offset,
		}
	}

	partitions := map[string][]int{}
	var partitionOrder []string
	for i, r := range kr {
		if _, ok := partitions[r.partition]; !ok {
			partitionOrder = append(partitionOrder, r.partition)
		}
		partitions[r.partition] = append(partitions[r.partition], i)
	}

	results := make(map[int]types.Value, len(rows))
	for _, pkey := range partitionOrder {
		members := partitions[pkey]
		sort.SliceStable(members, func(a, b int) bool {
			ka, kb := kr[members[a]].orderKeys, kr[members[b]].orderKeys
			for j := range n.OrderBy {
				c := types.Compare(ka[j], kb[j])
				if c == 0 {
					continue
				}
				if n.OrderBy[j].Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
		computeWindowPartition(n.Func, members, kr, results)
	}

	out := make([]Row, len(rows))
	for i, row := range rows {
		nr := row.clone()
		nr[n.Var] = results[i]
		out[i] = nr
	}
	return out, fmt.Sprintf("Window(%s, %s)", n.Var, n.Func), nil
}

func equalOrderKeys(a, b []types.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if types.Compare(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

// computeWindowPartition fills results[idx] for every row index in
// members, which is already sorted into the partition's window order.
func computeWindowPartition(fn string, members []int, kr []windowRow, results map[int]types.Value) {
	switch fn {
	case "ROW_NUMBER":
		for i, idx := range members {
			results[idx] = types.Int(int64(i + 1))
		}
	case "RANK":
		rank := 1
		for i, idx := range members {
			if i > 0 && !equalOrderKeys(kr[members[i-1]].orderKeys, kr[idx].orderKeys) {
				rank = i + 1
			}
			results[idx] = types.Int(int64(rank))
		}
	case "DENSE_RANK":
		rank := 1
		for i, idx := range members {
			if i > 0 && !equalOrderKeys(kr[members[i-1]].orderKeys, kr[idx].orderKeys) {
				rank++
			}
			results[idx] = types.Int(int64(rank))
		}
	case "LAG":
		for i, idx := range members {
			off := int(kr[idx].offset)
			j := i - off
			if j < 0 || j >= len(members) {
				results[idx] = types.Null()
				continue
			}
			results[idx] = kr[members[j]].arg
		}
	case "LEAD":
		for i, idx := range members {
			off := int(kr[idx].offset)
			j := i + off
			if j < 0 || j >= len(members) {
				results[idx] = types.Null()
				continue
			}
			results[idx] = kr[members[j]].arg
		}
	case "FIRST_VALUE":
		first := kr[members[0]].arg
		for _, idx := range members {
			results[idx] = first
		}
	case "LAST_VALUE":
		last := kr[members[len(members)-1]].arg
		for _, idx := range members {
			results[idx] = last
		}
	case "SUM":
		runningSum(members, kr, results)
	case "AVG":
		runningAvg(members, kr, results)
	}
}

// runningSum accumulates members' arg values in window order, keeping
// int64 accumulation (matching arith()'s int-preserving style in env.go)
// until a float value is seen, at which point it switches to float64 for
// the remainder of the partition; non-numeric values leave the total
// unchanged.
func runningSum(members []int, kr []windowRow, results map[int]types.Value) {
	intTotal := int64(0)
	floatTotal := 0.0
	isFloat := false
	for _, idx := range members {
		v := kr[idx].arg
		switch {
		case !isFloat && v.Kind() == types.KindInt:
			intTotal += v.AsInt()
			results[idx] = types.Int(intTotal)
		case !isFloat && v.Kind() == types.KindFloat:
			isFloat = true
			floatTotal = float64(intTotal) + v.AsFloat()
			results[idx] = types.Float(floatTotal)
		case isFloat:
			floatTotal += v.AsFloat()
			results[idx] = types.Float(floatTotal)
		default:
			results[idx] = types.Int(intTotal)
		}
	}
}

// runningAvg accumulates a running mean of members' arg values in window
// order, treating a non-numeric arg as 0 for the running total but still
// advancing the row count (spec "running SUM/AVG").
func runningAvg(members []int, kr []windowRow, results map[int]types.Value) {
	total := 0.0
	for i, idx := range members {
		v := kr[idx].arg
		if v.IsNumber() {
			total += v.AsFloat()
		}
		results[idx] = types.Float(total / float64(i+1))
	}
}
