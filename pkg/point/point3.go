package point

import (
	"eyros/internal/engine"
	"eyros/pkg/codec"
)

// Point3 is a 3-dimensional point, e.g. for spatiotemporal records whose
// third axis is a timestamp or altitude.
type Point3[A, B, C Numeric] struct {
	V0 Coord[A]
	V1 Coord[B]
	V2 Coord[C]
}

// Bounds3 is the axis-aligned query box over a Point3 family.
type Bounds3[A, B, C Numeric] struct {
	LowA, HighA A
	LowB, HighB B
	LowC, HighC C
}

func (p Point3[A, B, C]) Dim() int { return 3 }

func (p Point3[A, B, C]) CmpAt(other Point3[A, B, C], level int) int {
	switch level % 3 {
	case 0:
		return cmpCoord(p.V0, other.V0)
	case 1:
		return cmpCoord(p.V1, other.V1)
	default:
		return cmpCoord(p.V2, other.V2)
	}
}

func (p Point3[A, B, C]) MidpointUpper(other Point3[A, B, C]) Point3[A, B, C] {
	return Point3[A, B, C]{
		V0: midpointUpper(p.V0, other.V0),
		V1: midpointUpper(p.V1, other.V1),
		V2: midpointUpper(p.V2, other.V2),
	}
}

func (p Point3[A, B, C]) Overlaps(b Bounds3[A, B, C]) bool {
	return overlapsCoord(p.V0, b.LowA, b.HighA) &&
		overlapsCoord(p.V1, b.LowB, b.HighB) &&
		overlapsCoord(p.V2, b.LowC, b.HighC)
}

func (p Point3[A, B, C]) SerializeAt(level int, dst []byte) (int, error) {
	switch level % 3 {
	case 0:
		return codec.Encode(p.V0.upper(), dst), nil
	case 1:
		return codec.Encode(p.V1.upper(), dst), nil
	default:
		return codec.Encode(p.V2.upper(), dst), nil
	}
}

func (p Point3[A, B, C]) PivotBytesAt(level int) int {
	switch level % 3 {
	case 0:
		return codec.Size[A]()
	case 1:
		return codec.Size[B]()
	default:
		return codec.Size[C]()
	}
}

func (p Point3[A, B, C]) QueryBranch(buf []byte, b Bounds3[A, B, C], bf int, level int) ([]engine.Cursor, []uint64, error) {
	switch level % 3 {
	case 0:
		return branchDecode(buf, b.LowA, b.HighA, bf, level)
	case 1:
		return branchDecode(buf, b.LowB, b.HighB, bf, level)
	default:
		return branchDecode(buf, b.LowC, b.HighC, bf, level)
	}
}

// CountBytesFull reports the whole-record encoded size.
func (p Point3[A, B, C]) CountBytesFull() int {
	return 1 + countBytesCoord(p.V0) + countBytesCoord(p.V1) + countBytesCoord(p.V2)
}

// EncodeFull writes the whole point: one header byte of interval bits
// (bit0=V0, bit1=V1, bit2=V2) followed by each coordinate's value(s).
func (p Point3[A, B, C]) EncodeFull(dst []byte) (int, error) {
	var header byte
	if p.V0.Kind == Interval {
		header |= 1 << 0
	}
	if p.V1.Kind == Interval {
		header |= 1 << 1
	}
	if p.V2.Kind == Interval {
		header |= 1 << 2
	}
	dst[0] = header
	offset := 1
	offset += encodeCoordFull(p.V0, dst[offset:])
	offset += encodeCoordFull(p.V1, dst[offset:])
	offset += encodeCoordFull(p.V2, dst[offset:])
	return offset, nil
}

// DecodePoint3 reads a Point3 encoded by EncodeFull from the front of src.
func DecodePoint3[A, B, C Numeric](src []byte) (Point3[A, B, C], int, error) {
	var zero Point3[A, B, C]
	if len(src) < 1 {
		return zero, 0, errFullShort(len(src))
	}
	header := src[0]
	offset := 1

	kindOf := func(bit uint) Kind {
		if header&(1<<bit) != 0 {
			return Interval
		}
		return Scalar
	}

	v0, n, err := decodeCoordFull[A](src[offset:], kindOf(0))
	if err != nil {
		return zero, 0, err
	}
	offset += n

	v1, n, err := decodeCoordFull[B](src[offset:], kindOf(1))
	if err != nil {
		return zero, 0, err
	}
	offset += n

	v2, n, err := decodeCoordFull[C](src[offset:], kindOf(2))
	if err != nil {
		return zero, 0, err
	}
	offset += n

	return Point3[A, B, C]{V0: v0, V1: v1, V2: v2}, offset, nil
}

// Bounds3Of computes the componentwise bounding box of points, or false if
// points is empty.
func Bounds3Of[A, B, C Numeric](points []Point3[A, B, C]) (Bounds3[A, B, C], bool) {
	var zero Bounds3[A, B, C]
	if len(points) == 0 {
		return zero, false
	}
	acc := Bounds3[A, B, C]{
		LowA: points[0].V0.lower(), HighA: points[0].V0.upper(),
		LowB: points[0].V1.lower(), HighB: points[0].V1.upper(),
		LowC: points[0].V2.lower(), HighC: points[0].V2.upper(),
	}
	for _, m := range points[1:] {
		if l := m.V0.lower(); l < acc.LowA {
			acc.LowA = l
		}
		if u := m.V0.upper(); u > acc.HighA {
			acc.HighA = u
		}
		if l := m.V1.lower(); l < acc.LowB {
			acc.LowB = l
		}
		if u := m.V1.upper(); u > acc.HighB {
			acc.HighB = u
		}
		if l := m.V2.lower(); l < acc.LowC {
			acc.LowC = l
		}
		if u := m.V2.upper(); u > acc.HighC {
			acc.HighC = u
		}
	}
	return acc, true
}
