// Package engine defines the contracts shared by every concrete package in
// the indexing engine: the storage trait, the point abstraction, and the
// value abstraction. It carries no logic of its own, the way the teacher's
// own internal/engine skeleton held only Memtable/Mutation contracts.
package engine

// Storage is the byte-addressed random-access backend every other component
// is built on. Implementations live in pkg/storage.
type Storage interface {
	Read(offset, length int64) ([]byte, error)
	Write(offset int64, data []byte) error
	Truncate(length int64) error
	Len() (int64, error)
	IsEmpty() (bool, error)
	SyncAll() error
}

// Factory opens a named storage handle. File names are mechanically derived
// by the engine (meta, staging_inserts, staging_deletes, tree_<L>, data_<L>).
type Factory func(name string) (Storage, error)

// Value is an opaque user payload with a deterministic byte codec.
type Value interface {
	Bin() []byte
	CountBytes() int
}

// Cursor is a pending interior-block read produced during query traversal.
type Cursor struct {
	BlockOffset uint64
	Level       int
}

// Point is the per-shape-family contract the indexer drives the tree and
// staging layer through. Self is the concrete point type implementing the
// interface; B is its companion Bounds type. Both type parameters let
// pkg/tree and pkg/staging stay generic while every method still operates
// on concrete, non-boxed values.
type Point[Self any, B any] interface {
	// Dim reports the number of dimensions D.
	Dim() int
	// CmpAt orders self and other along dimension level mod D.
	CmpAt(other Self, level int) int
	// MidpointUpper returns, per dimension, the mean of the upper bounds.
	MidpointUpper(other Self) Self
	// Overlaps reports whether self intersects the axis-aligned box b.
	Overlaps(b B) bool
	// SerializeAt writes the scalar representative at dimension level mod D.
	SerializeAt(level int, dst []byte) (int, error)
	// PivotBytesAt reports the serialized size of the pivot at this level.
	PivotBytesAt(level int) int
	// QueryBranch decodes one tree block and returns the cursors to follow
	// and the data-store offsets (already +1 decoded) to read.
	QueryBranch(buf []byte, b B, branchFactor int, level int) (cursors []Cursor, buckets []uint64, err error)
}
