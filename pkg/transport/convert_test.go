package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/solidb/pkg/types"
)

func TestValueToGoScalars(t *testing.T) {
	assert.Nil(t, valueToGo(types.Null()))
	assert.Equal(t, true, valueToGo(types.Bool(true)))
	assert.Equal(t, int64(42), valueToGo(types.Int(42)))
	assert.Equal(t, 3.5, valueToGo(types.Float(3.5)))
	assert.Equal(t, "hi", valueToGo(types.String("hi")))
}

func TestValueToGoArrayAndObject(t *testing.T) {
	arr := types.Array([]types.Value{types.Int(1), types.String("x")})
	got, ok := valueToGo(arr).([]any)
	require.True(t, ok)
	assert.Equal(t, []any{int64(1), "x"}, got)

	obj := types.NewObject()
	obj.Set("a", types.Int(1))
	m := objectToGo(obj)
	assert.Equal(t, int64(1), m["a"])
}

func TestDocumentToGoNilDocumentIsNil(t *testing.T) {
	assert.Nil(t, documentToGo(nil))
}

func TestValueFromGoRoundTripsThroughCommonMsgpackShapes(t *testing.T) {
	assert.Equal(t, types.Null(), valueFromGo(nil))
	assert.Equal(t, types.Bool(true), valueFromGo(true))
	assert.Equal(t, types.Int(7), valueFromGo(int64(7)))
	assert.Equal(t, types.Int(7), valueFromGo(7))
	assert.Equal(t, types.Int(7), valueFromGo(uint64(7)))
	assert.Equal(t, types.Float(1.5), valueFromGo(float64(1.5)))
	assert.Equal(t, types.String("x"), valueFromGo("x"))
	assert.Equal(t, types.String("x"), valueFromGo([]byte("x")))
}

func TestValueFromGoArray(t *testing.T) {
	v := valueFromGo([]any{int64(1), "a"})
	require.Equal(t, types.KindArray, v.Kind())
	arr := v.AsArray()
	require.Len(t, arr, 2)
	assert.Equal(t, types.Int(1), arr[0])
	assert.Equal(t, types.String("a"), arr[1])
}

func TestValueFromGoMapStringAny(t *testing.T) {
	v := valueFromGo(map[string]any{"k": "v"})
	require.Equal(t, types.KindObject, v.Kind())
	obj := v.AsObject()
	got, ok := obj.Get("k")
	require.True(t, ok)
	assert.Equal(t, types.String("v"), got)
}

func TestValueFromGoMapAnyAnyUsesToString(t *testing.T) {
	v := valueFromGo(map[any]any{"k": int64(9)})
	obj := v.AsObject()
	got, ok := obj.Get("k")
	require.True(t, ok)
	assert.Equal(t, types.Int(9), got)
}

func TestObjectFromGoBuildsObject(t *testing.T) {
	o := objectFromGo(map[string]any{"name": "doc", "count": int64(3)})
	name, _ := o.Get("name")
	count, _ := o.Get("count")
	assert.Equal(t, types.String("doc"), name)
	assert.Equal(t, types.Int(3), count)
}
