package point

import (
	"encoding/binary"
	"testing"
)

func TestCmpCoordScalarScalar(t *testing.T) {
	a := NewScalar[int32](3)
	b := NewScalar[int32](5)
	if cmpCoord(a, b) != -1 {
		t.Fatalf("cmpCoord(3,5) = %d, want -1", cmpCoord(a, b))
	}
	if cmpCoord(b, a) != 1 {
		t.Fatalf("cmpCoord(5,3) = %d, want 1", cmpCoord(b, a))
	}
	if cmpCoord(a, a) != 0 {
		t.Fatalf("cmpCoord(3,3) = %d, want 0", cmpCoord(a, a))
	}
}

func TestCmpCoordIntervalScalar(t *testing.T) {
	iv := NewInterval[int32](0, 10)
	inside := NewScalar[int32](5)
	if cmpCoord(iv, inside) != 0 {
		t.Fatalf("interval [0,10] vs scalar 5: want Equal")
	}
	outside := NewScalar[int32](20)
	if cmpCoord(iv, outside) != -1 {
		t.Fatalf("interval [0,10] vs scalar 20: want Less, got %d", cmpCoord(iv, outside))
	}
}

func TestCmpCoordIntervalInterval(t *testing.T) {
	a := NewInterval[int32](0, 5)
	b := NewInterval[int32](4, 9)
	if cmpCoord(a, b) != 0 {
		t.Fatalf("overlapping intervals: want Equal")
	}
	c := NewInterval[int32](10, 20)
	if cmpCoord(a, c) != -1 {
		t.Fatalf("disjoint intervals: want Less, got %d", cmpCoord(a, c))
	}
}

func TestCmpCoordNaN(t *testing.T) {
	a := NewScalar[float64](0)
	nan := NewScalar(nan64())
	if cmpCoord(a, nan) != -1 {
		t.Fatalf("NaN comparison must fall back to Less, got %d", cmpCoord(a, nan))
	}
}

func nan64() float64 {
	var zero float64
	return zero / zero
}

func TestMidpointUpper(t *testing.T) {
	a := NewScalar[int32](0)
	b := NewScalar[int32](10)
	m := midpointUpper(a, b)
	if m.Kind != Scalar || m.Lo != 5 {
		t.Fatalf("midpointUpper(0,10) = %+v, want Scalar(5)", m)
	}
}

func TestOverlapsCoord(t *testing.T) {
	iv := NewInterval[int32](2, 8)
	if !overlapsCoord(iv, 5, 10) {
		t.Fatal("interval [2,8] should overlap [5,10]")
	}
	if overlapsCoord(iv, 9, 10) {
		t.Fatal("interval [2,8] should not overlap [9,10]")
	}
}

func TestPoint2OverlapsAndCmp(t *testing.T) {
	p := Point2[int32, int32]{V0: NewScalar[int32](1), V1: NewScalar[int32](1)}
	b := Bounds2[int32, int32]{LowA: 0, HighA: 1, LowB: 0, HighB: 1}
	if !p.Overlaps(b) {
		t.Fatal("point (1,1) should overlap [0,1]x[0,1]")
	}
	b2 := Bounds2[int32, int32]{LowA: 0, HighA: 0, LowB: 0, HighB: 0}
	if p.Overlaps(b2) {
		t.Fatal("point (1,1) should not overlap [0,0]x[0,0]")
	}
	other := Point2[int32, int32]{V0: NewScalar[int32](2), V1: NewScalar[int32](0)}
	if p.CmpAt(other, 0) >= 0 {
		t.Fatal("1 should compare Less than 2 at level 0")
	}
}

func TestPoint2FullRoundTrip(t *testing.T) {
	p := Point2[int32, float64]{V0: NewInterval[int32](1, 5), V1: NewScalar(2.5)}
	buf := make([]byte, p.CountBytesFull())
	n, err := p.EncodeFull(buf)
	if err != nil {
		t.Fatalf("EncodeFull: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("EncodeFull wrote %d, CountBytesFull said %d", n, len(buf))
	}
	got, consumed, err := DecodePoint2[int32, float64](buf)
	if err != nil {
		t.Fatalf("DecodePoint2: %v", err)
	}
	if consumed != n || got != p {
		t.Fatalf("DecodePoint2 = %+v, %d, want %+v, %d", got, consumed, p, n)
	}
}

func TestPoint3FullRoundTrip(t *testing.T) {
	p := Point3[int32, int32, int32]{
		V0: NewScalar[int32](1),
		V1: NewInterval[int32](2, 9),
		V2: NewScalar[int32](-3),
	}
	buf := make([]byte, p.CountBytesFull())
	n, err := p.EncodeFull(buf)
	if err != nil {
		t.Fatalf("EncodeFull: %v", err)
	}
	got, consumed, err := DecodePoint3[int32, int32, int32](buf)
	if err != nil {
		t.Fatalf("DecodePoint3: %v", err)
	}
	if consumed != n || got != p {
		t.Fatalf("DecodePoint3 = %+v, %d, want %+v, %d", got, consumed, p, n)
	}
}

func TestHeapToInOrderSortedPivots(t *testing.T) {
	// For bf=4 (n=7) the in-order ranks visited across c=0..6 must be a
	// permutation of 0..6, matching the block layout's "sorted pivots"
	// invariant.
	n := 7
	seen := make(map[int]bool)
	for c := 0; c < n; c++ {
		r := HeapToInOrder(n, c)
		if r < 0 || r >= n {
			t.Fatalf("HeapToInOrder(%d,%d) = %d out of range", n, c, r)
		}
		if seen[r] {
			t.Fatalf("HeapToInOrder(%d,%d) = %d is a duplicate rank", n, c, r)
		}
		seen[r] = true
	}
}

// TestHeapToInOrderNonPowerOfTwoBranchFactor covers bf=6 (n=11), the
// config.Default() branch factor: not 2^k-1, so the tree is complete but
// not perfect. HeapToInOrder must still return a permutation of 0..n-1
// without panicking for every heap index, including the bottom-level
// indices (7..10) a batch large enough to fill every leaf reaches.
func TestHeapToInOrderNonPowerOfTwoBranchFactor(t *testing.T) {
	n := 2*6 - 1 // 11
	seen := make(map[int]bool, n)
	for c := 0; c < n; c++ {
		r := HeapToInOrder(n, c)
		if r < 0 || r >= n {
			t.Fatalf("HeapToInOrder(%d,%d) = %d out of range", n, c, r)
		}
		if seen[r] {
			t.Fatalf("HeapToInOrder(%d,%d) = %d is a duplicate rank", n, c, r)
		}
		seen[r] = true
	}
}

// buildTestBlock constructs a minimal bf=2 (n=3) block with pivots
// [10,20,30] (in-order, matching the "sorted pivots" layout), no
// intersection records, and two data buckets at offsets 99 and 199
// (stored as actual+1).
func buildTestBlock(t *testing.T) []byte {
	t.Helper()
	bf := 2
	n := 2*bf - 1 // 3
	buf := make([]byte, 0, 64)

	for _, v := range []int32{10, 20, 30} {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		buf = append(buf, b[:]...)
	}

	// data_bitfield: n+bf = 5 bits; only bucket slots (index n, n+1) are
	// data buckets, intersection slots (0,1,2) are absent/interior.
	dbyte := byte(0)
	dbyte |= 1 << uint(n+0)
	dbyte |= 1 << uint(n+1)
	buf = append(buf, dbyte)

	// intersections[3] x u64, all zero (absent).
	for i := 0; i < n; i++ {
		buf = append(buf, make([]byte, 8)...)
	}

	// buckets[2] x u64: bucket0 = 99+1, bucket1 = 199+1.
	appendU64 := func(v uint64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	appendU64(100)
	appendU64(200)

	return buf
}

func TestBranchDecodeSelectsOverlappingBucketOnly(t *testing.T) {
	buf := buildTestBlock(t)
	cursors, buckets, err := branchDecode[int32](buf, 15, 25, 2, 0)
	if err != nil {
		t.Fatalf("branchDecode: %v", err)
	}
	if len(cursors) != 0 {
		t.Fatalf("expected no interior cursors, got %v", cursors)
	}
	if len(buckets) != 1 || buckets[0] != 199 {
		t.Fatalf("expected buckets=[199], got %v", buckets)
	}
}

func TestBranchDecodeFullRangeSelectsBothBuckets(t *testing.T) {
	buf := buildTestBlock(t)
	_, buckets, err := branchDecode[int32](buf, 0, 1000, 2, 0)
	if err != nil {
		t.Fatalf("branchDecode: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected both buckets for a full-range query, got %v", buckets)
	}
	seen := map[uint64]bool{buckets[0]: true}
	if len(buckets) > 1 {
		seen[buckets[1]] = true
	}
	if !seen[99] || !seen[199] {
		t.Fatalf("expected buckets {99,199}, got %v", buckets)
	}
}
