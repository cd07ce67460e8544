package codec

import (
	"bytes"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/cuemby/solidb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeValueOrderMatchesLogicalOrder(t *testing.T) {
	// Ordering is guaranteed within a type tag (§4.1), not across the
	// int/float split, since those now encode through distinct,
	// precision-preserving paths rather than a shared float64 channel.
	values := []types.Value{
		types.Null(),
		types.Bool(false),
		types.Bool(true),
		types.Int(-100),
		types.Int(-1),
		types.Int(0),
		types.Int(1),
		types.Int(100),
		types.Float(-100.5),
		types.Float(0.5),
		types.Float(100.5),
		types.String("a"),
		types.String("ab"),
		types.String("b"),
	}

	encoded := make([][]byte, len(values))
	for i, v := range values {
		encoded[i] = EncodeValue(v)
	}

	shuffled := append([][]byte(nil), encoded...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	sort.Slice(shuffled, func(i, j int) bool { return bytes.Compare(shuffled[i], shuffled[j]) < 0 })

	assert.Equal(t, encoded, shuffled)
}

func TestAppendValueLargeIntsDoNotCollide(t *testing.T) {
	// MaxInt64 and MaxInt64-1 both round to the same float64 (2^63) once
	// their magnitude exceeds the 52-bit mantissa's exact range, which is
	// exactly the collision AsFloat()-routing used to produce.
	a := types.Int(math.MaxInt64)
	b := types.Int(math.MaxInt64 - 1)
	require.NotEqual(t, a.AsInt(), b.AsInt())

	encA := EncodeValue(a)
	encB := EncodeValue(b)
	assert.NotEqual(t, encA, encB, "distinct int64 values must not collide in their encoded key")
	assert.True(t, bytes.Compare(encB, encA) < 0, "MaxInt64-1 must sort before MaxInt64")

	decoded, rest, err := DecodeValue(encA)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, int64(math.MaxInt64), decoded.AsInt())
}

func TestEncodeSequenceRoundTrip(t *testing.T) {
	for _, seq := range []uint64{0, 1, 255, 256, 1 << 40} {
		b := EncodeSequence(seq)
		assert.Len(t, b, 8)
		assert.Equal(t, seq, DecodeSequence(b))
	}
}

func TestEncodeSequenceOrdersAsCounter(t *testing.T) {
	a := EncodeSequence(5)
	b := EncodeSequence(6)
	assert.True(t, bytes.Compare(a, b) < 0)
}

func TestEncodeValuesCompositeKeyOrdering(t *testing.T) {
	k1 := EncodeValues(types.String("alice"), types.Int(1))
	k2 := EncodeValues(types.String("alice"), types.Int(2))
	k3 := EncodeValues(types.String("bob"), types.Int(0))
	assert.True(t, bytes.Compare(k1, k2) < 0)
	assert.True(t, bytes.Compare(k2, k3) < 0)
}

// assertRoundTrip encodes v, decodes it back, and asserts the decoded
// value equals v with no bytes left over — the property spec §4.1/§8
// require of every encoder: decode(encode(v)) == v.
func assertRoundTrip(t *testing.T, v types.Value) {
	t.Helper()
	encoded := EncodeValue(v)
	decoded, rest, err := DecodeValue(encoded)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, v, decoded)
}

func TestDecodeValueRoundTripScalars(t *testing.T) {
	assertRoundTrip(t, types.Null())
	assertRoundTrip(t, types.Bool(true))
	assertRoundTrip(t, types.Bool(false))
	assertRoundTrip(t, types.Int(0))
	assertRoundTrip(t, types.Int(-1))
	assertRoundTrip(t, types.Int(math.MinInt64))
	assertRoundTrip(t, types.Int(math.MaxInt64))
	assertRoundTrip(t, types.Float(0))
	assertRoundTrip(t, types.Float(-0.0))
	assertRoundTrip(t, types.Float(3.14159))
	assertRoundTrip(t, types.Float(-3.14159))
	assertRoundTrip(t, types.Float(math.MaxFloat64))
	assertRoundTrip(t, types.Float(-math.MaxFloat64))
	assertRoundTrip(t, types.String(""))
	assertRoundTrip(t, types.String("hello"))
	assertRoundTrip(t, types.String("a\x00b\x00\x00c"))
	assertRoundTrip(t, types.String("unicode: é中\U0001F600"))
}

func TestDecodeValueRoundTripArrays(t *testing.T) {
	assertRoundTrip(t, types.Array(nil))
	assertRoundTrip(t, types.Array([]types.Value{types.Int(1), types.Int(2), types.Int(3)}))
	// A leading/trailing/sole null element must not be mistaken for the
	// array terminator during decode.
	assertRoundTrip(t, types.Array([]types.Value{types.Null()}))
	assertRoundTrip(t, types.Array([]types.Value{types.Null(), types.Int(1)}))
	assertRoundTrip(t, types.Array([]types.Value{types.Int(1), types.Null()}))
	assertRoundTrip(t, types.Array([]types.Value{
		types.String("x"),
		types.Array([]types.Value{types.Null(), types.Bool(true)}),
		types.Float(1.5),
	}))
}

func TestDecodeValueRoundTripObjects(t *testing.T) {
	empty := types.NewObject()
	assertRoundTrip(t, types.ObjectVal(empty))

	obj := types.NewObject()
	obj.Set("name", types.String("ada"))
	obj.Set("age", types.Int(36))
	obj.Set("tags", types.Array([]types.Value{types.String("a"), types.String("b")}))
	obj.Set("deleted_at", types.Null())
	assertRoundTrip(t, types.ObjectVal(obj))

	nested := types.NewObject()
	nested.Set("inner", types.ObjectVal(obj))
	assertRoundTrip(t, types.ObjectVal(nested))
}

func TestDecodeValueRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		v := randomValue(rng, 3)
		assertRoundTrip(t, v)
	}
}

func randomValue(rng *rand.Rand, depth int) types.Value {
	kind := rng.Intn(7)
	if depth <= 0 && kind >= 5 {
		kind = rng.Intn(5)
	}
	switch kind {
	case 0:
		return types.Null()
	case 1:
		return types.Bool(rng.Intn(2) == 0)
	case 2:
		return types.Int(int64(rng.Uint64()))
	case 3:
		return types.Float(rng.NormFloat64() * math.Pow(10, float64(rng.Intn(40)-20)))
	case 4:
		n := rng.Intn(8)
		b := make([]byte, n)
		rng.Read(b)
		for i := range b {
			if b[i] == 0x00 {
				b[i] = 0x41
			}
		}
		return types.String(string(b))
	case 5:
		n := rng.Intn(4)
		elems := make([]types.Value, n)
		for i := range elems {
			elems[i] = randomValue(rng, depth-1)
		}
		return types.Array(elems)
	default:
		n := rng.Intn(4)
		obj := types.NewObject()
		for i := 0; i < n; i++ {
			obj.Set(string(rune('a'+i)), randomValue(rng, depth-1))
		}
		return types.ObjectVal(obj)
	}
}

func TestDecodeValueErrors(t *testing.T) {
	_, _, err := DecodeValue(nil)
	assert.Error(t, err)

	_, _, err = DecodeValue([]byte{0xFE})
	assert.Error(t, err)

	_, _, err = DecodeValue([]byte{tagInt, 0x01, 0x02})
	assert.Error(t, err)

	_, _, err = DecodeValue([]byte{tagArray, tagInt})
	assert.Error(t, err, "truncated element inside an unterminated array")
}
