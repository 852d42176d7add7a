// Package tree implements the fixed-capacity balanced tree built from a
// sorted batch: block encode/build and block-wise decode/traversal. The
// block layout (pivots, data bitfield, intersection pointers, bucket
// pointers, pointer-plus-one sentinel) is spec.md §4.5 transliterated
// directly; the traversal reuses pkg/point's branchDecode (already
// written against this exact layout) per block, and tree.go supplies the
// cross-block orchestration — following interior cursors into further
// blocks — the way the teacher's pkg/persistence/sstable.go walks an
// index into data blocks by explicit offset arithmetic, generalized from
// one flat index to a recursive block-of-blocks structure.
package tree

import (
	"encoding/binary"
	"sort"

	"eyros/internal/engine"
	"eyros/pkg/datastore"
	"eyros/pkg/dberrors"
	"eyros/pkg/point"
	"eyros/pkg/writecache"
)

// Pt is the constraint tree drives points through: the shared Point
// contract plus whole-record (de)serialization for bucket storage.
type Pt[Self any, B any] interface {
	engine.Point[Self, B]
	CountBytesFull() int
	EncodeFull(dst []byte) (int, error)
}

// Tree is one level's block store plus its companion data store.
type Tree[P Pt[P, B], B any] struct {
	blocks    *writecache.Cache
	data      *datastore.Store[P]
	bf        int
	maxBucket int
}

// Open wraps a block backend and a data backend into a Tree. bf is the
// branch factor (bf leaf pivot slots per block, n = 2*bf-1 total); records
// beyond maxBucket in one leaf partition spawn a nested block instead of a
// bucket.
func Open[P Pt[P, B], B any](blockBackend, dataBackend engine.Storage, decode func([]byte) (P, int, error), bf, maxBucket int) (*Tree[P, B], error) {
	bc, err := writecache.Open(blockBackend)
	if err != nil {
		return nil, dberrors.New(dberrors.IO, "tree.Open: blocks", err)
	}
	ds, err := datastore.Open[P](dataBackend, decode)
	if err != nil {
		return nil, dberrors.New(dberrors.IO, "tree.Open: data", err)
	}
	return &Tree[P, B]{blocks: bc, data: ds, bf: bf, maxBucket: maxBucket}, nil
}

// rootHeaderSize is an 8-byte root-offset pointer reserved at the front of
// the block store so a reopened Tree can find its root without the caller
// (pkg/forest) separately persisting it; blocks proper start right after.
const rootHeaderSize = 8

// Build writes records as a new tree (discarding any prior contents of
// both backends) and returns the root block's offset.
func (t *Tree[P, B]) Build(records []datastore.Record[P]) (uint64, error) {
	if err := t.blocks.Truncate(0); err != nil {
		return 0, dberrors.New(dberrors.IO, "tree.Build: truncate blocks", err)
	}
	if err := t.data.Truncate(); err != nil {
		return 0, dberrors.New(dberrors.IO, "tree.Build: truncate data", err)
	}
	if err := t.blocks.Write(0, make([]byte, rootHeaderSize)); err != nil {
		return 0, dberrors.New(dberrors.IO, "tree.Build: reserve root header", err)
	}
	root, err := t.buildBlock(records, 0)
	if err != nil {
		return 0, err
	}
	header := make([]byte, rootHeaderSize)
	binary.BigEndian.PutUint64(header, root)
	if err := t.blocks.Write(0, header); err != nil {
		return 0, dberrors.New(dberrors.IO, "tree.Build: write root header", err)
	}
	return root, nil
}

// RootOffset reads back the root block offset Build recorded.
func (t *Tree[P, B]) RootOffset() (uint64, error) {
	buf, err := t.blocks.Read(0, rootHeaderSize)
	if err != nil {
		return 0, dberrors.New(dberrors.IO, "tree.RootOffset", err)
	}
	if len(buf) < rootHeaderSize {
		return 0, dberrors.New(dberrors.Corrupt, "tree.RootOffset", errShortBlockHeader(len(buf)))
	}
	return binary.BigEndian.Uint64(buf), nil
}

func (t *Tree[P, B]) buildBlock(records []datastore.Record[P], level int) (uint64, error) {
	n := 2*t.bf - 1
	var zero P
	pivotWidth := zero.PivotBytesAt(level)

	pivots := make([][]byte, n)
	intersectionOffsets := make([]uint64, n)
	leafRecords := make([][]datastore.Record[P], t.bf)

	var recurse func(c int, subset []datastore.Record[P]) error
	recurse = func(c int, subset []datastore.Record[P]) error {
		if len(subset) == 0 {
			return nil
		}
		i := point.HeapToInOrder(n, c)
		sorted := sortByLevel(subset, level)
		mid := len(sorted) / 2
		pivotPoint := sorted[mid].Point

		var less, equal, greater []datastore.Record[P]
		for _, r := range sorted {
			switch r.Point.CmpAt(pivotPoint, level) {
			case 0:
				equal = append(equal, r)
			case -1:
				less = append(less, r)
			default:
				greater = append(greater, r)
			}
		}

		buf := make([]byte, pivotPoint.PivotBytesAt(level))
		if _, err := pivotPoint.SerializeAt(level, buf); err != nil {
			return dberrors.New(dberrors.Invariant, "tree.buildBlock: serialize pivot", err)
		}
		pivots[i] = buf

		if 2*c+2 >= n && i/2+1 >= t.bf {
			// No bucket slot lies right of the rightmost leaf pivot, so the
			// records greater than it share its intersection bucket, which
			// traversal reads whenever it visits this pivot.
			equal = append(equal, greater...)
			greater = nil
		}
		if len(equal) > 0 {
			off, err := t.data.AppendBucket(equal)
			if err != nil {
				return err
			}
			intersectionOffsets[i] = off + 1
		}

		if 2*c+1 < n {
			if err := recurse(2*c+1, less); err != nil {
				return err
			}
		} else if idx := i / 2; idx < t.bf {
			leafRecords[idx] = append(leafRecords[idx], less...)
		}
		if 2*c+2 < n {
			if err := recurse(2*c+2, greater); err != nil {
				return err
			}
		} else if idx := i/2 + 1; idx < t.bf {
			leafRecords[idx] = append(leafRecords[idx], greater...)
		}
		return nil
	}
	if err := recurse(0, records); err != nil {
		return 0, err
	}

	for i, b := range pivots {
		if b == nil {
			pivots[i] = make([]byte, pivotWidth)
		}
	}

	isData := make([]bool, n+t.bf)
	for i, off := range intersectionOffsets {
		isData[i] = off > 0
	}
	bucketPtrs := make([]uint64, t.bf)
	for idx, subset := range leafRecords {
		if len(subset) == 0 {
			continue
		}
		if len(subset) <= t.maxBucket {
			off, err := t.data.AppendBucket(subset)
			if err != nil {
				return 0, err
			}
			bucketPtrs[idx] = off + 1
			isData[n+idx] = true
		} else {
			childOff, err := t.buildBlock(subset, level+1)
			if err != nil {
				return 0, err
			}
			bucketPtrs[idx] = childOff + 1
			isData[n+idx] = false
		}
	}

	body := encodeBlock(pivots, isData, intersectionOffsets, bucketPtrs, n, t.bf)
	framed := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(framed[0:4], uint32(len(body)))
	copy(framed[4:], body)

	at, err := t.blocks.Len()
	if err != nil {
		return 0, dberrors.New(dberrors.IO, "tree.buildBlock: len", err)
	}
	if err := t.blocks.Write(at, framed); err != nil {
		return 0, dberrors.New(dberrors.IO, "tree.buildBlock: write", err)
	}
	return uint64(at), nil
}

// encodeBlock lays out one block exactly as pkg/point's branchDecode
// expects: pivots[n] || data_bitfield[(n+bf+7)/8] || intersections[n]*u64
// || buckets[bf]*u64, all pointers already +1 adjusted.
func encodeBlock(pivots [][]byte, isData []bool, intersections []uint64, buckets []uint64, n, bf int) []byte {
	pivotWidth := 0
	if len(pivots) > 0 {
		pivotWidth = len(pivots[0])
	}
	bitfieldLen := (n + bf + 7) / 8
	size := n*pivotWidth + bitfieldLen + n*8 + bf*8
	buf := make([]byte, size)

	offset := 0
	for _, p := range pivots {
		copy(buf[offset:], p)
		offset += pivotWidth
	}
	dStart := offset
	for i, d := range isData {
		if d {
			buf[dStart+i/8] |= 1 << uint(i%8)
		}
	}
	offset = dStart + bitfieldLen
	for _, ptr := range intersections {
		binary.BigEndian.PutUint64(buf[offset:offset+8], ptr)
		offset += 8
	}
	for _, ptr := range buckets {
		binary.BigEndian.PutUint64(buf[offset:offset+8], ptr)
		offset += 8
	}
	return buf
}

func sortByLevel[P Pt[P, B], B any](records []datastore.Record[P], level int) []datastore.Record[P] {
	out := make([]datastore.Record[P], len(records))
	copy(out, records)
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Point.CmpAt(out[b].Point, level) < 0
	})
	return out
}

// Query traverses the tree rooted at rootOffset and returns every record
// whose point overlaps bounds, per the overlaps predicate (e.g.
// P.Overlaps), alongside each record's absolute data-store offset (for
// Location bookkeeping at the pkg/db layer). Block traversal narrows to
// candidate buckets only — a bucket groups several records along one
// subtree path, some of which may fall outside bounds — so Query applies
// overlaps itself to each bucket's contents before returning, guaranteeing
// soundness the way pkg/staging.Query does for the staging layer.
func (t *Tree[P, B]) Query(rootOffset uint64, bounds B, overlaps func(P, B) bool) ([]datastore.LocatedRecord[P], error) {
	var out []datastore.LocatedRecord[P]
	pending := []engine.Cursor{{BlockOffset: rootOffset, Level: 0}}
	seenBuckets := make(map[uint64]bool)

	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		raw, err := t.readBlock(cur.BlockOffset)
		if err != nil {
			return nil, err
		}
		var zero P
		cursors, buckets, err := zero.QueryBranch(raw, bounds, t.bf, cur.Level)
		if err != nil {
			return nil, dberrors.New(dberrors.Corrupt, "tree.Query: decode block", err)
		}
		pending = append(pending, cursors...)
		for _, bOff := range buckets {
			if seenBuckets[bOff] {
				continue
			}
			seenBuckets[bOff] = true
			recs, err := t.data.ReadBucketLocated(bOff)
			if err != nil {
				return nil, err
			}
			for _, r := range recs {
				if overlaps(r.Record.Point, bounds) {
					out = append(out, r)
				}
			}
		}
	}
	return out, nil
}

// ReadAll streams every record stored in this tree's data store, for a
// cascade merge's full scan of a lower level — a sequential scan of the
// data store, bypassing block traversal entirely, since every record the
// build algorithm wrote appears in exactly one bucket.
func (t *Tree[P, B]) ReadAll() ([]datastore.LocatedRecord[P], error) {
	return t.data.ReadAllLocated()
}

func (t *Tree[P, B]) readBlock(offset uint64) ([]byte, error) {
	header, err := t.blocks.Read(int64(offset), 4)
	if err != nil {
		return nil, dberrors.New(dberrors.IO, "tree.readBlock: header", err)
	}
	if len(header) < 4 {
		return nil, dberrors.New(dberrors.Corrupt, "tree.readBlock", errShortBlockHeader(len(header)))
	}
	size := binary.BigEndian.Uint32(header)
	body, err := t.blocks.Read(int64(offset)+4, int64(size))
	if err != nil {
		return nil, dberrors.New(dberrors.IO, "tree.readBlock: body", err)
	}
	return body, nil
}

type errShortBlockHeaderType int

func (e errShortBlockHeaderType) Error() string { return "tree: buffer too short for a block header" }

func errShortBlockHeader(have int) error { return errShortBlockHeaderType(have) }

// Commit syncs both the block and data backends.
func (t *Tree[P, B]) Commit() error {
	if err := t.blocks.SyncAll(); err != nil {
		return dberrors.New(dberrors.IO, "tree.Commit: blocks", err)
	}
	if err := t.data.Commit(); err != nil {
		return dberrors.New(dberrors.IO, "tree.Commit: data", err)
	}
	return nil
}
