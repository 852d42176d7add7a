package point

import (
	"eyros/internal/engine"
	"eyros/pkg/codec"
)

// Point2 is a 2-dimensional point with independently typed axes.
type Point2[A, B Numeric] struct {
	V0 Coord[A]
	V1 Coord[B]
}

// Bounds2 is the axis-aligned query box over a Point2 family.
type Bounds2[A, B Numeric] struct {
	LowA, HighA A
	LowB, HighB B
}

func (p Point2[A, B]) Dim() int { return 2 }

func (p Point2[A, B]) CmpAt(other Point2[A, B], level int) int {
	if level%2 == 0 {
		return cmpCoord(p.V0, other.V0)
	}
	return cmpCoord(p.V1, other.V1)
}

func (p Point2[A, B]) MidpointUpper(other Point2[A, B]) Point2[A, B] {
	return Point2[A, B]{
		V0: midpointUpper(p.V0, other.V0),
		V1: midpointUpper(p.V1, other.V1),
	}
}

func (p Point2[A, B]) Overlaps(b Bounds2[A, B]) bool {
	return overlapsCoord(p.V0, b.LowA, b.HighA) && overlapsCoord(p.V1, b.LowB, b.HighB)
}

func (p Point2[A, B]) SerializeAt(level int, dst []byte) (int, error) {
	if level%2 == 0 {
		return codec.Encode(p.V0.upper(), dst), nil
	}
	return codec.Encode(p.V1.upper(), dst), nil
}

func (p Point2[A, B]) PivotBytesAt(level int) int {
	if level%2 == 0 {
		return codec.Size[A]()
	}
	return codec.Size[B]()
}

func (p Point2[A, B]) QueryBranch(buf []byte, b Bounds2[A, B], bf int, level int) ([]engine.Cursor, []uint64, error) {
	if level%2 == 0 {
		return branchDecode(buf, b.LowA, b.HighA, bf, level)
	}
	return branchDecode(buf, b.LowB, b.HighB, bf, level)
}

// CountBytesFull reports the whole-record encoded size, used by staging
// and the data store (as opposed to PivotBytesAt's single-level size).
func (p Point2[A, B]) CountBytesFull() int {
	return 1 + countBytesCoord(p.V0) + countBytesCoord(p.V1)
}

// EncodeFull writes the whole point: one header byte of interval bits
// (bit0 = V0 is Interval, bit1 = V1 is Interval) followed by each
// coordinate's value(s). Mirrors Mix2::write_bytes in the original point
// family.
func (p Point2[A, B]) EncodeFull(dst []byte) (int, error) {
	var header byte
	if p.V0.Kind == Interval {
		header |= 1 << 0
	}
	if p.V1.Kind == Interval {
		header |= 1 << 1
	}
	dst[0] = header
	offset := 1
	offset += encodeCoordFull(p.V0, dst[offset:])
	offset += encodeCoordFull(p.V1, dst[offset:])
	return offset, nil
}

// DecodePoint2 reads a Point2 encoded by EncodeFull from the front of src.
func DecodePoint2[A, B Numeric](src []byte) (Point2[A, B], int, error) {
	var zero Point2[A, B]
	if len(src) < 1 {
		return zero, 0, errFullShort(len(src))
	}
	header := src[0]
	offset := 1
	v0Kind := Scalar
	if header&(1<<0) != 0 {
		v0Kind = Interval
	}
	v0, n, err := decodeCoordFull[A](src[offset:], v0Kind)
	if err != nil {
		return zero, 0, err
	}
	offset += n

	v1Kind := Scalar
	if header&(1<<1) != 0 {
		v1Kind = Interval
	}
	v1, n, err := decodeCoordFull[B](src[offset:], v1Kind)
	if err != nil {
		return zero, 0, err
	}
	offset += n

	return Point2[A, B]{V0: v0, V1: v1}, offset, nil
}

// Bounds2Of computes the componentwise bounding box of points, or false if
// points is empty.
func Bounds2Of[A, B Numeric](points []Point2[A, B]) (Bounds2[A, B], bool) {
	var zero Bounds2[A, B]
	if len(points) == 0 {
		return zero, false
	}
	acc := Bounds2[A, B]{
		LowA: points[0].V0.lower(), HighA: points[0].V0.upper(),
		LowB: points[0].V1.lower(), HighB: points[0].V1.upper(),
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
	}
	return acc, true
}
