// Package codec provides the fixed-width big-endian binary codec for the
// scalar numeric types the point and row packages serialize. It mirrors the
// teacher's encoding/custom discriminant-plus-fixed-payload approach, trimmed
// to the primitive numeric variants the geometric data model needs.
package codec

import (
	"fmt"
	"math"

	"eyros/pkg/dberrors"
)

// Numeric is the set of scalar types a coordinate axis may hold.
type Numeric interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// TypeID discriminates the wire encoding of a Numeric value. Encode and
// Decode never write or read it, and no other package uses it: pkg/point
// fixes the type per axis at compile time, and pkg/value tags its
// payloads with its own value.Kind byte.
type TypeID uint8

const (
	TypeInt32 TypeID = iota
	TypeInt64
	TypeFloat32
	TypeFloat64
)

// Size returns the encoded width in bytes of T.
func Size[T Numeric]() int {
	var z T
	switch any(z).(type) {
	case int32:
		return 4
	case int64:
		return 8
	case float32:
		return 4
	case float64:
		return 8
	default:
		panic(fmt.Sprintf("codec: unsupported numeric type %T", z))
	}
}

// Encode writes v to dst in big-endian order and returns the number of
// bytes written. dst must have at least Size[T]() bytes available.
func Encode[T Numeric](v T, dst []byte) int {
	switch x := any(v).(type) {
	case int32:
		putU32(dst, uint32(x))
		return 4
	case int64:
		putU64(dst, uint64(x))
		return 8
	case float32:
		putU32(dst, math.Float32bits(x))
		return 4
	case float64:
		putU64(dst, math.Float64bits(x))
		return 8
	default:
		panic(fmt.Sprintf("codec: unsupported numeric type %T", v))
	}
}

// Decode reads a T from the front of src and returns the value and the
// number of bytes consumed.
func Decode[T Numeric](src []byte) (T, int, error) {
	var zero T
	n := Size[T]()
	if len(src) < n {
		return zero, 0, dberrors.New(dberrors.Corrupt, "codec.Decode",
			fmt.Errorf("need %d bytes, have %d", n, len(src)))
	}
	switch any(zero).(type) {
	case int32:
		return any(int32(getU32(src))).(T), 4, nil
	case int64:
		return any(int64(getU64(src))).(T), 8, nil
	case float32:
		return any(math.Float32frombits(getU32(src))).(T), 4, nil
	case float64:
		return any(math.Float64frombits(getU64(src))).(T), 8, nil
	default:
		panic(fmt.Sprintf("codec: unsupported numeric type %T", zero))
	}
}

func putU32(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}

func getU32(src []byte) uint32 {
	return uint32(src[0])<<24 | uint32(src[1])<<16 | uint32(src[2])<<8 | uint32(src[3])
}

func putU64(dst []byte, v uint64) {
	dst[0] = byte(v >> 56)
	dst[1] = byte(v >> 48)
	dst[2] = byte(v >> 40)
	dst[3] = byte(v >> 32)
	dst[4] = byte(v >> 24)
	dst[5] = byte(v >> 16)
	dst[6] = byte(v >> 8)
	dst[7] = byte(v)
}

func getU64(src []byte) uint64 {
	return uint64(src[0])<<56 | uint64(src[1])<<48 | uint64(src[2])<<40 | uint64(src[3])<<32 |
		uint64(src[4])<<24 | uint64(src[5])<<16 | uint64(src[6])<<8 | uint64(src[7])
}
