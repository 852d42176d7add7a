// Package staging implements the staging layer: an append-only log plus
// in-memory mirror of pending inserts and deletes, with a delete_set for
// O(1) tombstone checks and a bbox-filtered query iterator. The algorithm
// is a direct transliteration of original_source/src/staging.rs
// (open/load/batch/commit/clear/delete/query); the log lifecycle
// (Open replays into memory, Batch appends without syncing, Commit
// flushes) follows pkg/wal.WAL's Append/Replay/Close split, kept over
// pkg/writecache instead of a bufio.Writer so truncate-on-merge stays a
// single call.
package staging

import (
	"eyros/internal/engine"
	"eyros/pkg/dberrors"
	"eyros/pkg/rows"
	"eyros/pkg/value"
	"eyros/pkg/writecache"

	"github.com/zhangyunhao116/skipset"
)

// Pt is the constraint staging and the tree package drive points
// through: the shared Point contract plus whole-record (de)serialization.
type Pt[Self any, B any] interface {
	engine.Point[Self, B]
	CountBytesFull() int
	EncodeFull(dst []byte) (int, error)
}

// Record is one staged insert.
type Record[P any] struct {
	Point P
	Value value.Value
}

// QueryResult is one row returned by Staging.Query.
type QueryResult[P any] struct {
	Point    P
	Value    value.Value
	Location rows.Location
}

// Staging holds the pending inserts and deletes for one database.
type Staging[P Pt[P, B], B any] struct {
	insertStore *writecache.Cache
	deleteStore *writecache.Cache
	decode      func([]byte) (P, int, error)

	inserts   []Record[P]
	deletes   []rows.Location
	deleteSet *skipset.FuncSet[rows.Location]
}

// newDeleteSet builds a delete_set ordered by (TreeID, Offset). Location
// has no natural operator ordering, so this uses skipset's comparator
// variant instead of its ordered-primitive New[T ordered]().
func newDeleteSet() *skipset.FuncSet[rows.Location] {
	return skipset.NewFunc(func(a, b rows.Location) bool {
		if a.TreeID != b.TreeID {
			return a.TreeID < b.TreeID
		}
		return a.Offset < b.Offset
	})
}

// Open wraps the insert and delete log backends in write-caches and
// replays their contents into memory. decode reconstructs a P from the
// bytes EncodeFull wrote (e.g. point.DecodePoint2[A,B]).
func Open[P Pt[P, B], B any](istore, dstore engine.Storage, decode func([]byte) (P, int, error)) (*Staging[P, B], error) {
	ic, err := writecache.Open(istore)
	if err != nil {
		return nil, dberrors.New(dberrors.IO, "staging.Open: inserts", err)
	}
	dc, err := writecache.Open(dstore)
	if err != nil {
		return nil, dberrors.New(dberrors.IO, "staging.Open: deletes", err)
	}
	s := &Staging[P, B]{
		insertStore: ic,
		deleteStore: dc,
		decode:      decode,
		deleteSet:   newDeleteSet(),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Staging[P, B]) load() error {
	empty, err := s.insertStore.IsEmpty()
	if err != nil {
		return dberrors.New(dberrors.IO, "staging.load: inserts", err)
	}
	if !empty {
		n, err := s.insertStore.Len()
		if err != nil {
			return dberrors.New(dberrors.IO, "staging.load: inserts len", err)
		}
		buf, err := s.insertStore.Read(0, n)
		if err != nil {
			return dberrors.New(dberrors.IO, "staging.load: inserts read", err)
		}
		s.inserts = s.inserts[:0]
		offset := 0
		for offset < len(buf) {
			p, size, err := s.decode(buf[offset:])
			if err != nil {
				return dberrors.New(dberrors.Corrupt, "staging.load: decode point", err)
			}
			offset += size
			v, vsize, err := value.Decode(buf[offset:])
			if err != nil {
				return dberrors.New(dberrors.Corrupt, "staging.load: decode value", err)
			}
			offset += vsize
			s.inserts = append(s.inserts, Record[P]{Point: p, Value: v})
		}
	}

	empty, err = s.deleteStore.IsEmpty()
	if err != nil {
		return dberrors.New(dberrors.IO, "staging.load: deletes", err)
	}
	if !empty {
		n, err := s.deleteStore.Len()
		if err != nil {
			return dberrors.New(dberrors.IO, "staging.load: deletes len", err)
		}
		buf, err := s.deleteStore.Read(0, n)
		if err != nil {
			return dberrors.New(dberrors.IO, "staging.load: deletes read", err)
		}
		s.deletes = s.deletes[:0]
		s.deleteSet = newDeleteSet()
		offset := 0
		for offset < len(buf) {
			loc, size, err := rows.DecodeLocation(buf[offset:])
			if err != nil {
				return dberrors.New(dberrors.Corrupt, "staging.load: decode location", err)
			}
			offset += size
			s.deletes = append(s.deletes, loc)
			s.deleteSet.Add(loc)
		}
	}
	return nil
}

// Batch appends inserts and deletes to both logs (unsynced) and extends
// the in-memory mirrors and delete_set.
func (s *Staging[P, B]) Batch(inserts []Record[P], deletes []rows.Location) error {
	iSize := 0
	for _, r := range inserts {
		iSize += r.Point.CountBytesFull() + r.Value.CountBytes()
	}
	ibuf := make([]byte, iSize)
	offset := 0
	for _, r := range inserts {
		n, err := r.Point.EncodeFull(ibuf[offset:])
		if err != nil {
			return dberrors.New(dberrors.Invariant, "staging.Batch: encode point", err)
		}
		offset += n
		n, err = value.Encode(r.Value, ibuf[offset:])
		if err != nil {
			return dberrors.New(dberrors.Invariant, "staging.Batch: encode value", err)
		}
		offset += n
	}

	dSize := len(deletes) * rows.LocationSize
	dbuf := make([]byte, dSize)
	for i, loc := range deletes {
		loc.Encode(dbuf[i*rows.LocationSize:])
	}

	iOffset, err := s.insertStore.Len()
	if err != nil {
		return dberrors.New(dberrors.IO, "staging.Batch: inserts len", err)
	}
	if err := s.insertStore.Write(iOffset, ibuf); err != nil {
		return dberrors.New(dberrors.IO, "staging.Batch: inserts write", err)
	}
	dOffset, err := s.deleteStore.Len()
	if err != nil {
		return dberrors.New(dberrors.IO, "staging.Batch: deletes len", err)
	}
	if err := s.deleteStore.Write(dOffset, dbuf); err != nil {
		return dberrors.New(dberrors.IO, "staging.Batch: deletes write", err)
	}

	s.inserts = append(s.inserts, inserts...)
	s.deletes = append(s.deletes, deletes...)
	for _, loc := range deletes {
		s.deleteSet.Add(loc)
	}
	return nil
}

// Commit syncs both logs.
func (s *Staging[P, B]) Commit() error {
	if err := s.insertStore.SyncAll(); err != nil {
		return dberrors.New(dberrors.IO, "staging.Commit: inserts", err)
	}
	if err := s.deleteStore.SyncAll(); err != nil {
		return dberrors.New(dberrors.IO, "staging.Commit: deletes", err)
	}
	return nil
}

// Clear truncates both logs and drops all in-memory state.
func (s *Staging[P, B]) Clear() error {
	if err := s.ClearInserts(); err != nil {
		return err
	}
	return s.ClearDeletes()
}

func (s *Staging[P, B]) ClearInserts() error {
	if err := s.insertStore.Truncate(0); err != nil {
		return dberrors.New(dberrors.IO, "staging.ClearInserts", err)
	}
	s.inserts = nil
	return nil
}

func (s *Staging[P, B]) ClearDeletes() error {
	if err := s.deleteStore.Truncate(0); err != nil {
		return dberrors.New(dberrors.IO, "staging.ClearDeletes", err)
	}
	s.deletes = nil
	s.deleteSet = newDeleteSet()
	return nil
}

// Delete removes staged inserts referenced by locations (tree_id 0) by
// position. A location with tree_id 0 whose offset is no longer a valid
// index into the current inserts slice is rejected with dberrors.Misuse,
// per the engine's decision not to silently renumber or guess intent
// (spec design notes: stale staging offsets are a caller error, not a
// no-op).
func (s *Staging[P, B]) Delete(locations []rows.Location) error {
	toDrop := make(map[uint64]bool)
	for _, loc := range locations {
		if !loc.Staging() {
			continue
		}
		if loc.Offset >= uint64(len(s.inserts)) {
			return dberrors.New(dberrors.Misuse, "staging.Delete",
				errStaleOffset(loc))
		}
		toDrop[loc.Offset] = true
	}
	if len(toDrop) == 0 {
		return nil
	}
	kept := s.inserts[:0:0]
	for i, r := range s.inserts {
		if !toDrop[uint64(i)] {
			kept = append(kept, r)
		}
	}
	s.inserts = kept
	return nil
}

type errStaleOffsetType rows.Location

func (e errStaleOffsetType) Error() string { return "staging: delete references a stale staging offset" }

func errStaleOffset(loc rows.Location) error { return errStaleOffsetType(loc) }

// Bytes returns the combined byte length of both logs, for threshold
// evaluation.
func (s *Staging[P, B]) Bytes() (uint64, error) {
	in, err := s.insertStore.Len()
	if err != nil {
		return 0, err
	}
	dn, err := s.deleteStore.Len()
	if err != nil {
		return 0, err
	}
	return uint64(in) + uint64(dn), nil
}

// Len is the combined count of staged inserts and deletes.
func (s *Staging[P, B]) Len() int {
	return len(s.inserts) + len(s.deletes)
}

// InsertCount is the number of entries in the insert mirror. Inserts
// tombstoned through Batch's delete_set are still counted; only Delete
// removes entries.
func (s *Staging[P, B]) InsertCount() int {
	return len(s.inserts)
}

// Inserts exposes the current insert mirror (for the cascade merge to
// stream from). Callers must not retain the slice across a mutation.
func (s *Staging[P, B]) Inserts() []Record[P] {
	return s.inserts
}

// IsDeleted reports whether loc is present in the tombstone set.
func (s *Staging[P, B]) IsDeleted(loc rows.Location) bool {
	return s.deleteSet.Contains(loc)
}

// Query yields every staged insert not present in delete_set whose point
// overlaps bounds. The result is snapshotted at call time (see spec
// design notes on interior mutability): staging is not safe to mutate
// while a returned slice is still being read by the caller, but the
// returned slice itself is never mutated afterward.
func (s *Staging[P, B]) Query(bounds B, overlaps func(P, B) bool) []QueryResult[P] {
	var out []QueryResult[P]
	for i, r := range s.inserts {
		loc := rows.Location{TreeID: 0, Offset: uint64(i)}
		if s.deleteSet.Contains(loc) {
			continue
		}
		if !overlaps(r.Point, bounds) {
			continue
		}
		out = append(out, QueryResult[P]{Point: r.Point, Value: r.Value, Location: loc})
	}
	return out
}
