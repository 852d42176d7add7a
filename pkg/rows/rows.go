// Package rows implements Location and the tagged Row record, the unit of
// a batch operation. The Location codec is grounded on pkg/wal/wal.go's
// Entry struct, whose writeEntry/readEntry pair writes fixed-width header
// fields with encoding/binary ahead of a variable payload; Location here
// is exactly that fixed-width header with no payload of its own.
package rows

import (
	"encoding/binary"

	"eyros/pkg/dberrors"
)

// LocationSize is the encoded width of a Location: tree_id u32 BE || offset u64 BE.
const LocationSize = 4 + 8

// Location uniquely identifies a stored record. TreeID 0 designates the
// staging layer, where Offset is an insertion index; for TreeID >= 1,
// Offset is a byte offset into that tree's data store.
type Location struct {
	TreeID uint32
	Offset uint64
}

// Staging reports whether this Location refers to the staging layer.
func (l Location) Staging() bool { return l.TreeID == 0 }

// Encode writes l to dst (which must have at least LocationSize bytes)
// and returns LocationSize.
func (l Location) Encode(dst []byte) int {
	binary.BigEndian.PutUint32(dst[0:4], l.TreeID)
	binary.BigEndian.PutUint64(dst[4:12], l.Offset)
	return LocationSize
}

// DecodeLocation reads a Location from the front of src.
func DecodeLocation(src []byte) (Location, int, error) {
	if len(src) < LocationSize {
		return Location{}, 0, dberrors.New(dberrors.Corrupt, "rows.DecodeLocation", errShort(len(src)))
	}
	return Location{
		TreeID: binary.BigEndian.Uint32(src[0:4]),
		Offset: binary.BigEndian.Uint64(src[4:12]),
	}, LocationSize, nil
}

type shortErr int

func (e shortErr) Error() string { return "rows: buffer shorter than a Location" }

func errShort(n int) error { return shortErr(n) }

// Op discriminates a Row as an insert or a delete.
type Op uint8

const (
	OpInsert Op = iota
	OpDelete
)

// Row is a tagged record submitted to DB.Batch: either Insert(Point,
// Value) or Delete(Location). P and V are the concrete point and value
// types for one database instance.
type Row[P any, V any] struct {
	Op       Op
	Point    P
	Value    V
	Location Location // meaningful only when Op == OpDelete
}

// NewInsert builds an insert Row.
func NewInsert[P any, V any](p P, v V) Row[P, V] {
	return Row[P, V]{Op: OpInsert, Point: p, Value: v}
}

// NewDelete builds a delete Row.
func NewDelete[P any, V any](loc Location) Row[P, V] {
	var zp P
	var zv V
	return Row[P, V]{Op: OpDelete, Point: zp, Value: zv, Location: loc}
}
