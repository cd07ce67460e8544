package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cuemby/solidb/pkg/types"
)

// term is the structural terminator written after the last element of an
// array or object encoding. It is reserved exclusively for this purpose
// (no value tag below is ever 0x00) so a decoder can always tell a
// terminator apart from the tag byte of a nested Null element.
const term byte = 0x00

const (
	tagNull   byte = 0x01
	tagFalse  byte = 0x02
	tagTrue   byte = 0x03
	tagInt    byte = 0x04
	tagFloat  byte = 0x05
	tagString byte = 0x06
	tagBytes  byte = 0x07
	tagArray  byte = 0x08
	tagObject byte = 0x09
)

// stringEscape rewrites 0x00 to the two-byte sequence 0x00 0xFF so an
// embedded NUL can never be confused with the terminator, then terminates
// with a bare 0x00. This keeps lexicographic byte order equal to string
// order: 0x00 0xFF sorts before any component starting with a plain 0x01+.
func appendEscapedString(buf *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0x00 {
			buf.WriteByte(0x00)
			buf.WriteByte(0xFF)
		} else {
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(0x00)
}

// decodeEscapedString is the inverse of appendEscapedString: it reads up to
// and including the terminating bare 0x00, unescaping 0x00 0xFF pairs back
// to a literal NUL, and returns the remaining, unconsumed bytes.
func decodeEscapedString(data []byte) (string, []byte, error) {
	var out []byte
	i := 0
	for {
		if i >= len(data) {
			return "", nil, fmt.Errorf("codec: unterminated string")
		}
		c := data[i]
		if c == 0x00 {
			if i+1 < len(data) && data[i+1] == 0xFF {
				out = append(out, 0x00)
				i += 2
				continue
			}
			return string(out), data[i+1:], nil
		}
		out = append(out, c)
		i++
	}
}

// numberOrder maps a float64 to a uint64 whose unsigned big-endian byte
// order matches IEEE-754 numeric order across the full range, including
// negative values (flip all bits for negatives, flip only the sign bit
// for non-negatives).
func numberOrder(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

// decodeNumberOrder is the inverse of numberOrder.
func decodeNumberOrder(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}

// intOrder maps an int64 to a uint64 whose unsigned big-endian byte order
// matches signed numeric order, by flipping the sign bit of its two's
// complement representation. Unlike routing ints through AsFloat(), this
// preserves all 64 bits of precision: two distinct int64 values never
// collide just because they'd round to the same nearest float64.
func intOrder(i int64) uint64 {
	return uint64(i) ^ (1 << 63)
}

// decodeIntOrder is the inverse of intOrder (XOR by a fixed mask is its
// own inverse).
func decodeIntOrder(u uint64) int64 {
	return int64(u ^ (1 << 63))
}

// AppendValue appends the binary-comparable encoding of v to buf.
func AppendValue(buf *bytes.Buffer, v types.Value) {
	switch v.Kind() {
	case types.KindNull:
		buf.WriteByte(tagNull)
	case types.KindBool:
		if v.AsBool() {
			buf.WriteByte(tagTrue)
		} else {
			buf.WriteByte(tagFalse)
		}
	case types.KindInt:
		buf.WriteByte(tagInt)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], intOrder(v.AsInt()))
		buf.Write(b[:])
	case types.KindFloat:
		buf.WriteByte(tagFloat)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], numberOrder(v.AsFloat()))
		buf.Write(b[:])
	case types.KindString:
		buf.WriteByte(tagString)
		appendEscapedString(buf, v.AsString())
	case types.KindArray:
		buf.WriteByte(tagArray)
		for _, e := range v.AsArray() {
			AppendValue(buf, e)
		}
		buf.WriteByte(term)
	case types.KindObject:
		buf.WriteByte(tagObject)
		for _, k := range v.AsObject().Keys() {
			appendEscapedString(buf, k)
			fv, _ := v.AsObject().Get(k)
			AppendValue(buf, fv)
		}
		buf.WriteByte(term)
	}
}

// EncodeValue returns the standalone binary-comparable encoding of v.
func EncodeValue(v types.Value) []byte {
	var buf bytes.Buffer
	AppendValue(&buf, v)
	return buf.Bytes()
}

// EncodeValues concatenates the encodings of vs, used for composite
// (multi-field) index keys where comparison must proceed field by field.
func EncodeValues(vs ...types.Value) []byte {
	var buf bytes.Buffer
	for _, v := range vs {
		AppendValue(&buf, v)
	}
	return buf.Bytes()
}

// EncodeBytes encodes raw as the bytes tag followed by the same escaped,
// terminated form strings use (no length prefix), used for document
// keys and other identifiers that are already byte-comparable strings.
func EncodeBytes(raw []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(tagBytes)
	appendEscapedString(&buf, string(raw))
	return buf.Bytes()
}

// DecodeValue decodes one binary-comparable value from the front of data,
// dispatching on its leading tag byte, and returns the value along with
// whatever bytes remain after it — composite keys built by EncodeValues
// decode by calling DecodeValue repeatedly on the tail it returns. It is
// the inverse of AppendValue/EncodeValue for every tag AppendValue can
// produce (tagBytes is not one of them — EncodeBytes encodes raw byte
// strings outside the types.Value sum type, so it has no DecodeValue case).
func DecodeValue(data []byte) (types.Value, []byte, error) {
	if len(data) == 0 {
		return types.Value{}, nil, fmt.Errorf("codec: empty input")
	}
	tag := data[0]
	rest := data[1:]
	switch tag {
	case tagNull:
		return types.Null(), rest, nil
	case tagFalse:
		return types.Bool(false), rest, nil
	case tagTrue:
		return types.Bool(true), rest, nil
	case tagInt:
		if len(rest) < 8 {
			return types.Value{}, nil, fmt.Errorf("codec: truncated int")
		}
		u := binary.BigEndian.Uint64(rest[:8])
		return types.Int(decodeIntOrder(u)), rest[8:], nil
	case tagFloat:
		if len(rest) < 8 {
			return types.Value{}, nil, fmt.Errorf("codec: truncated float")
		}
		u := binary.BigEndian.Uint64(rest[:8])
		return types.Float(decodeNumberOrder(u)), rest[8:], nil
	case tagString:
		s, remaining, err := decodeEscapedString(rest)
		if err != nil {
			return types.Value{}, nil, err
		}
		return types.String(s), remaining, nil
	case tagArray:
		var elems []types.Value
		remaining := rest
		for {
			if len(remaining) == 0 {
				return types.Value{}, nil, fmt.Errorf("codec: unterminated array")
			}
			if remaining[0] == term {
				remaining = remaining[1:]
				break
			}
			v, next, err := DecodeValue(remaining)
			if err != nil {
				return types.Value{}, nil, err
			}
			elems = append(elems, v)
			remaining = next
		}
		return types.Array(elems), remaining, nil
	case tagObject:
		obj := types.NewObject()
		remaining := rest
		for {
			if len(remaining) == 0 {
				return types.Value{}, nil, fmt.Errorf("codec: unterminated object")
			}
			if remaining[0] == term {
				remaining = remaining[1:]
				break
			}
			key, next, err := decodeEscapedString(remaining)
			if err != nil {
				return types.Value{}, nil, err
			}
			val, next2, err := DecodeValue(next)
			if err != nil {
				return types.Value{}, nil, err
			}
			obj.Set(key, val)
			remaining = next2
		}
		return types.ObjectVal(obj), remaining, nil
	default:
		return types.Value{}, nil, fmt.Errorf("codec: unknown tag %#x", tag)
	}
}

// EncodeSequence encodes a uint64 sequence number as 8 fixed-width
// big-endian bytes, so sequence keys sort as plain unsigned counters
// (replication log keys, spec §4.5: "repl:<seq20>").
func EncodeSequence(seq uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return b[:]
}

// DecodeSequence is the inverse of EncodeSequence.
func DecodeSequence(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
