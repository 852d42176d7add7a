// Package point implements the Point abstraction: the per-dimension
// coordinate type (scalar or interval), and the concrete 2-D and 3-D point
// families the tree and staging layers are built against. The algorithms
// here are a direct transliteration of the original Mix/Mix2/Mix3 point
// family (cmp_at, midpoint_upper, overlaps, query_branch), kept in the
// shape the teacher expresses similar per-dimension dispatch: a small
// closed switch over level%dim rather than compile-time specialization.
package point

import (
	"math/bits"

	"eyros/internal/engine"
	"eyros/pkg/codec"
	"eyros/pkg/dberrors"
)

// Numeric restates codec.Numeric locally so callers of this package do not
// need to import codec just to name the constraint.
type Numeric = codec.Numeric

// FullCodec is implemented by concrete point families (Point2, Point3)
// for whole-record (de)serialization, used by staging and the data
// store. This is distinct from the per-level scalar pivot codec the
// tree's block traversal uses (SerializeAt/PivotBytesAt). Grounded
// directly on Mix2's ToBytes/FromBytes: a header byte of per-dimension
// interval bits, followed by each coordinate's raw value(s).
type FullCodec interface {
	CountBytesFull() int
	EncodeFull(dst []byte) (int, error)
}

// Kind discriminates a Coord as a single value or a closed interval.
type Kind uint8

const (
	Scalar Kind = iota
	Interval
)

// Coord is a single dimension's value: either a scalar or a closed
// interval [Lo, Hi]. For Scalar coordinates Lo holds the value and Hi is
// ignored.
type Coord[T Numeric] struct {
	Kind Kind
	Lo   T
	Hi   T
}

// NewScalar builds a point coordinate.
func NewScalar[T Numeric](v T) Coord[T] { return Coord[T]{Kind: Scalar, Lo: v, Hi: v} }

// NewInterval builds an interval coordinate; lo must be <= hi.
func NewInterval[T Numeric](lo, hi T) Coord[T] { return Coord[T]{Kind: Interval, Lo: lo, Hi: hi} }

func (c Coord[T]) lower() T {
	return c.Lo
}

func (c Coord[T]) upper() T {
	if c.Kind == Scalar {
		return c.Lo
	}
	return c.Hi
}

// cmpScalar returns -1/0/1 for a<b/a==b/a>b. Incomparable values (NaN) fall
// through to -1, matching the engine's "incomparable treated as Less" policy.
func cmpScalar[T Numeric](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	default:
		return -1
	}
}

// cmpCoord orders two coordinates along one dimension per the Mix ordering
// table: scalar/scalar is natural order; scalar/interval and
// interval/scalar are Equal when the scalar lies inside the interval,
// else compare against the interval's lower bound; interval/interval is
// Equal when they overlap, else compare lower bounds.
func cmpCoord[T Numeric](a, b Coord[T]) int {
	switch {
	case a.Kind == Scalar && b.Kind == Scalar:
		return cmpScalar(a.Lo, b.Lo)
	case a.Kind == Interval && b.Kind == Scalar:
		if b.Lo >= a.Lo && b.Lo <= a.Hi {
			return 0
		}
		return cmpScalar(a.Lo, b.Lo)
	case a.Kind == Scalar && b.Kind == Interval:
		if a.Lo >= b.Lo && a.Lo <= b.Hi {
			return 0
		}
		return cmpScalar(b.Lo, a.Lo)
	default: // Interval, Interval
		if a.Lo <= b.Hi && b.Lo <= a.Hi {
			return 0
		}
		return cmpScalar(a.Lo, b.Lo)
	}
}

// midpointUpper returns a Scalar coordinate at the mean of a and b's upper
// bounds.
func midpointUpper[T Numeric](a, b Coord[T]) Coord[T] {
	return NewScalar(divBy2(a.upper() + b.upper()))
}

func divBy2[T Numeric](v T) T {
	return v / T(2)
}

// overlapsCoord reports whether coordinate c intersects the closed scalar
// range [lo, hi].
func overlapsCoord[T Numeric](c Coord[T], lo, hi T) bool {
	if c.Kind == Scalar {
		return lo <= c.Lo && c.Lo <= hi
	}
	return lo <= c.Hi && c.Lo <= hi
}

// countBytesCoord reports the full (not per-level-pivot) encoded size of
// a coordinate: one value for Scalar, two for Interval.
func countBytesCoord[T Numeric](c Coord[T]) int {
	if c.Kind == Scalar {
		return codec.Size[T]()
	}
	return 2 * codec.Size[T]()
}

// encodeCoordFull writes a coordinate's full value(s) (not just the
// upper-bound pivot representative) and returns the bytes written.
func encodeCoordFull[T Numeric](c Coord[T], dst []byte) int {
	if c.Kind == Scalar {
		return codec.Encode(c.Lo, dst)
	}
	n := codec.Encode(c.Lo, dst)
	n += codec.Encode(c.Hi, dst[n:])
	return n
}

// decodeCoordFull reads a coordinate of the given kind from the front of
// src.
func decodeCoordFull[T Numeric](src []byte, kind Kind) (Coord[T], int, error) {
	if kind == Scalar {
		v, n, err := codec.Decode[T](src)
		if err != nil {
			return Coord[T]{}, 0, err
		}
		return NewScalar(v), n, nil
	}
	lo, n1, err := codec.Decode[T](src)
	if err != nil {
		return Coord[T]{}, 0, err
	}
	hi, n2, err := codec.Decode[T](src[n1:])
	if err != nil {
		return Coord[T]{}, 0, err
	}
	return NewInterval(lo, hi), n1 + n2, nil
}

// HeapToInOrder maps a 0-based breadth-first heap index c, within a
// complete binary tree of n total nodes (bf need not be a power of two,
// so the tree need not be perfect), to the rank it would occupy under an
// in-order traversal. It walks the root-to-c path, adding the size of
// every left subtree it passes on a right turn (plus one for the node
// turned at), so the ranks of c = 0..n-1 form a permutation of 0..n-1
// for any n, not just n = 2^k-1. Exported because
// pkg/tree's Build uses the same mapping to decide where a
// recursively-chosen pivot lands in the physical (sorted, in-order)
// pivot array, and pkg/point's own branchDecode uses it to read that
// array back during traversal.
func HeapToInOrder(n, c int) int {
	// size counts the nodes of the subtree rooted at heap index j.
	size := func(j int) int {
		total := 0
		for lo, hi := j, j; lo < n; lo, hi = 2*lo+1, 2*hi+2 {
			total += min(hi, n-1) - lo + 1
		}
		return total
	}
	i := c + 1 // 1-based heap index
	depth := bits.Len(uint(i)) - 1
	lo, node := 0, 0
	for d := depth - 1; d >= 0; d-- {
		if (i>>uint(d))&1 == 0 {
			node = 2*node + 1
		} else {
			lo += size(2*node+1) + 1
			node = 2*node + 2
		}
	}
	return lo + size(2*node+1)
}

// branchDecode walks one encoded tree block for a single dimension's
// pivot type T and returns the cursors to follow and bucket offsets
// (already +1-decoded) to read. It implements the traversal in spec
// section 4.5: pivot array, data bitfield, intersection pointers, bucket
// pointers, all in big-endian u64 where noted.
func branchDecode[T Numeric](buf []byte, lo, hi T, bf, level int) ([]engine.Cursor, []uint64, error) {
	n := 2*bf - 1
	pivots := make([]T, n)
	offset := 0
	for i := 0; i < n; i++ {
		v, size, err := codec.Decode[T](buf[offset:])
		if err != nil {
			return nil, nil, dberrors.New(dberrors.Corrupt, "point.branchDecode: pivot", err)
		}
		pivots[i] = v
		offset += size
	}
	dStart := offset
	bitfieldLen := (n + bf + 7) / 8
	iStart := dStart + bitfieldLen
	bStart := iStart + n*8

	if len(buf) < bStart+bf*8 {
		return nil, nil, dberrors.New(dberrors.Corrupt, "point.branchDecode",
			errShortBlock(len(buf), bStart+bf*8))
	}

	isData := func(i int) bool {
		return (buf[dStart+i/8]>>(uint(i)%8))&1 == 1
	}
	readPtr := func(base []byte) uint64 {
		return uint64(base[0])<<56 | uint64(base[1])<<48 | uint64(base[2])<<40 | uint64(base[3])<<32 |
			uint64(base[4])<<24 | uint64(base[5])<<16 | uint64(base[6])<<8 | uint64(base[7])
	}

	var cursors []engine.Cursor
	var buckets []uint64
	bucketMarked := make([]bool, bf)

	stack := []int{0}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		i := HeapToInOrder(n, c)
		pivot := pivots[i]
		cmpLow := lo <= pivot
		cmpHigh := pivot <= hi

		if isData(i) {
			if ptr := readPtr(buf[iStart+i*8:]); ptr > 0 {
				buckets = append(buckets, ptr-1)
			}
		} else {
			if ptr := readPtr(buf[iStart+i*8:]); ptr > 0 {
				cursors = append(cursors, engine.Cursor{BlockOffset: ptr - 1, Level: level + 1})
			}
		}

		if cmpLow {
			if 2*c+1 < n {
				stack = append(stack, 2*c+1)
			} else if idx := i / 2; idx < bf {
				bucketMarked[idx] = true
			}
		}
		if cmpHigh {
			if 2*c+2 < n {
				stack = append(stack, 2*c+2)
			} else if idx := i/2 + 1; idx < bf {
				bucketMarked[idx] = true
			}
		}
	}

	for i, marked := range bucketMarked {
		if !marked {
			continue
		}
		j := i + n
		base := buf[bStart+i*8:]
		ptr := readPtr(base)
		if ptr == 0 {
			continue
		}
		if isData(j) {
			buckets = append(buckets, ptr-1)
		} else {
			cursors = append(cursors, engine.Cursor{BlockOffset: ptr - 1, Level: level + 1})
		}
	}

	return cursors, buckets, nil
}

type errFullShortType int

func (e errFullShortType) Error() string { return "point: buffer too short for a full-record decode" }

func errFullShort(have int) error { return errFullShortType(have) }

type errShortBlockType struct {
	have, want int
}

func (e errShortBlockType) Error() string {
	return "tree block too short to decode"
}

func errShortBlock(have, want int) error {
	return errShortBlockType{have: have, want: want}
}
