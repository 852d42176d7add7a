// Package forest implements the meta file and the forest of per-level
// trees it describes, including the cascade merge that folds staging and
// the low levels into a single new tree. The meta layout is spec.md §6's
// fixed binary prefix rather than the teacher's JSON manifest, since the
// spec mandates bit-exact bytes; the per-level bookkeeping (one tree per
// level, geometric capacity, newest-levels-first merge trigger) follows
// pkg/persistance/levels.go's LevelManager shape, generalized from an
// unbounded table list per level to the spec's at-most-one-tree-per-level
// forest.
package forest

import (
	"encoding/binary"
	"fmt"

	"eyros/internal/engine"
	"eyros/pkg/datastore"
	"eyros/pkg/dberrors"
	"eyros/pkg/rows"
	"eyros/pkg/staging"
	"eyros/pkg/tree"
	"eyros/pkg/value"
)

const (
	metaMagic   = "EYR0"
	metaVersion = 1
	metaSize    = 4 + 1 + 1 + 4 + 8 // magic + version + branch_factor + base_capacity + presence

	// maxLevels bounds the presence bitmap to the width of Meta.Presence.
	maxLevels = 64
)

// Meta is the forest's small on-disk header: schema tag, branch factor,
// base capacity, and which levels currently hold a tree.
type Meta struct {
	Version      uint8
	BranchFactor uint8
	BaseCapacity uint32
	Presence     uint64
}

// NewMeta builds a fresh Meta with no levels present.
func NewMeta(branchFactor uint8, baseCapacity uint32) Meta {
	return Meta{Version: metaVersion, BranchFactor: branchFactor, BaseCapacity: baseCapacity}
}

// Present reports whether level currently holds a tree.
func (m Meta) Present(level int) bool {
	return level >= 0 && level < maxLevels && m.Presence&(1<<uint(level)) != 0
}

func (m *Meta) setPresent(level int, present bool) {
	if present {
		m.Presence |= 1 << uint(level)
	} else {
		m.Presence &^= 1 << uint(level)
	}
}

// Capacity is the record capacity of level L: base_capacity * 2^L.
func (m Meta) Capacity(level int) uint64 {
	return uint64(m.BaseCapacity) << uint(level)
}

// EncodeMeta writes m in the fixed format spec.md §6 mandates:
// magic[4] || version u8 || branch_factor u8 || base_capacity u32 BE ||
// presence u64 BE.
func EncodeMeta(m Meta) []byte {
	buf := make([]byte, metaSize)
	copy(buf[0:4], metaMagic)
	buf[4] = m.Version
	buf[5] = m.BranchFactor
	binary.BigEndian.PutUint32(buf[6:10], m.BaseCapacity)
	binary.BigEndian.PutUint64(buf[10:18], m.Presence)
	return buf
}

// DecodeMeta parses a Meta from the front of buf.
func DecodeMeta(buf []byte) (Meta, error) {
	if len(buf) < metaSize {
		return Meta{}, dberrors.New(dberrors.Corrupt, "forest.DecodeMeta", errShortMeta(len(buf)))
	}
	if string(buf[0:4]) != metaMagic {
		return Meta{}, dberrors.New(dberrors.Corrupt, "forest.DecodeMeta", errBadMagic(buf[0:4]))
	}
	return Meta{
		Version:      buf[4],
		BranchFactor: buf[5],
		BaseCapacity: binary.BigEndian.Uint32(buf[6:10]),
		Presence:     binary.BigEndian.Uint64(buf[10:18]),
	}, nil
}

type errShortMetaType int

func (e errShortMetaType) Error() string { return "forest: meta buffer too short" }

func errShortMeta(n int) error { return errShortMetaType(n) }

type errBadMagicType string

func (e errBadMagicType) Error() string {
	return fmt.Sprintf("forest: unrecognized meta magic %q", string(e))
}

func errBadMagic(b []byte) error { return errBadMagicType(b) }

// LoadMeta reads Meta from backend, initializing and persisting a fresh
// one (per spec.md §4.8, "on first use initializes meta with defaults")
// when backend is empty.
func LoadMeta(backend engine.Storage, branchFactor uint8, baseCapacity uint32) (Meta, error) {
	empty, err := backend.IsEmpty()
	if err != nil {
		return Meta{}, dberrors.New(dberrors.IO, "forest.LoadMeta: is empty", err)
	}
	if empty {
		m := NewMeta(branchFactor, baseCapacity)
		if err := SaveMeta(backend, m); err != nil {
			return Meta{}, err
		}
		return m, nil
	}
	buf, err := backend.Read(0, metaSize)
	if err != nil {
		return Meta{}, dberrors.New(dberrors.IO, "forest.LoadMeta: read", err)
	}
	return DecodeMeta(buf)
}

// SaveMeta writes and syncs m. This is always the commit point for a
// cascade merge: per spec.md §5's ordering guarantee, new tree/data files
// are written and synced first, meta is synced here, and only afterward
// are obsolete files dropped.
func SaveMeta(backend engine.Storage, m Meta) error {
	if err := backend.Write(0, EncodeMeta(m)); err != nil {
		return dberrors.New(dberrors.IO, "forest.SaveMeta: write", err)
	}
	if err := backend.SyncAll(); err != nil {
		return dberrors.New(dberrors.IO, "forest.SaveMeta: sync", err)
	}
	return nil
}

func treeName(level int) string { return fmt.Sprintf("tree_%d", level) }
func dataName(level int) string { return fmt.Sprintf("data_%d", level) }

// QueryResult is one row a Forest query produced.
type QueryResult[P any] struct {
	Point    P
	Value    value.Value
	Location rows.Location
}

// Forest owns the meta file and one *tree.Tree handle per present level,
// and performs the cascade merge that keeps the forest to at most one
// tree per level.
type Forest[P tree.Pt[P, B], B any] struct {
	factory   engine.Factory
	metaStore engine.Storage
	meta      Meta
	decode    func([]byte) (P, int, error)
	maxBucket int
	trees     map[int]*tree.Tree[P, B]
}

// Open opens the meta file and every level its presence bitmap marks,
// through factory. branchFactor/baseCapacity seed a fresh meta file only
// when none exists yet; maxBucket is a runtime option not persisted in
// the meta file (spec.md §6 omits it from the fixed prefix).
func Open[P tree.Pt[P, B], B any](factory engine.Factory, decode func([]byte) (P, int, error), branchFactor uint8, baseCapacity uint32, maxBucket int) (*Forest[P, B], error) {
	metaStore, err := factory("meta")
	if err != nil {
		return nil, dberrors.New(dberrors.IO, "forest.Open: meta", err)
	}
	m, err := LoadMeta(metaStore, branchFactor, baseCapacity)
	if err != nil {
		return nil, err
	}

	f := &Forest[P, B]{
		factory:   factory,
		metaStore: metaStore,
		meta:      m,
		decode:    decode,
		maxBucket: maxBucket,
		trees:     make(map[int]*tree.Tree[P, B]),
	}
	for level := 0; level < maxLevels; level++ {
		if !m.Present(level) {
			continue
		}
		if err := f.openLevel(level); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Forest[P, B]) openLevel(level int) error {
	blocks, err := f.factory(treeName(level))
	if err != nil {
		return dberrors.New(dberrors.IO, "forest.openLevel: blocks", err)
	}
	data, err := f.factory(dataName(level))
	if err != nil {
		return dberrors.New(dberrors.IO, "forest.openLevel: data", err)
	}
	tr, err := tree.Open[P, B](blocks, data, f.decode, int(f.meta.BranchFactor), f.maxBucket)
	if err != nil {
		return err
	}
	f.trees[level] = tr
	return nil
}

// Meta returns the current meta snapshot.
func (f *Forest[P, B]) Meta() Meta { return f.meta }

// Levels returns the present level numbers, ascending (level 0 first —
// the order pkg/db's query fan-out visits trees in, per spec.md §4.8).
func (f *Forest[P, B]) Levels() []int {
	var out []int
	for level := 0; level < maxLevels; level++ {
		if f.meta.Present(level) {
			out = append(out, level)
		}
	}
	return out
}

// ShouldMerge reports whether stagingCount meets the threshold rule
// (spec.md §4.7: "After every batch, if staging's record count >= N0").
func (f *Forest[P, B]) ShouldMerge(stagingCount int) bool {
	return uint64(stagingCount) >= uint64(f.meta.BaseCapacity)
}

// Query runs bounds against every present tree in level order, filtering
// each tree's results through overlaps, and reports each surviving
// record's rows.Location (TreeID = level+1, so TreeID 0 stays reserved
// for staging per pkg/rows.Location's contract).
func (f *Forest[P, B]) Query(bounds B, overlaps func(P, B) bool) ([]QueryResult[P], error) {
	var out []QueryResult[P]
	for _, level := range f.Levels() {
		recs, err := f.QueryLevel(level, bounds, overlaps)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// QueryLevel runs bounds against exactly one present level. pkg/db's
// QueryIterator calls this one level at a time instead of Query so a
// scan can stop after the first few levels without reading the rest —
// the on-demand-block-reads laziness spec.md §4.8 asks for, at tree-level
// granularity.
func (f *Forest[P, B]) QueryLevel(level int, bounds B, overlaps func(P, B) bool) ([]QueryResult[P], error) {
	tr, ok := f.trees[level]
	if !ok {
		return nil, nil
	}
	root, err := tr.RootOffset()
	if err != nil {
		return nil, err
	}
	recs, err := tr.Query(root, bounds, overlaps)
	if err != nil {
		return nil, err
	}
	out := make([]QueryResult[P], len(recs))
	for i, r := range recs {
		out[i] = QueryResult[P]{
			Point:    r.Record.Point,
			Value:    r.Record.Value,
			Location: rows.Location{TreeID: uint32(level + 1), Offset: r.Offset},
		}
	}
	return out, nil
}

// mergeLevel finds the target level for a cascade merge: the smallest
// *unoccupied* level M that can hold insertCount plus everything folded
// in along the way. Climbing from level 0, any already-present level is
// itself absorbed into the merge (its full capacity is carried forward)
// rather than accepted as a destination, since CascadeMerge always
// builds target as a brand new tree — handing it a level that still
// holds its own prior data would silently discard that data instead of
// merging it (invariant 5: no level >= M existed before the merge).
// This is binary-counter carry semantics: a run of N0-sized batches
// produces exactly the present-level pattern of the batch count's binary
// representation.
func (f *Forest[P, B]) mergeLevel(insertCount uint64) int {
	absorbed := insertCount
	for m := 0; m < maxLevels; m++ {
		if f.meta.Present(m) {
			absorbed += f.meta.Capacity(m)
			continue
		}
		if absorbed <= f.meta.Capacity(m) {
			return m
		}
	}
	return maxLevels - 1
}

// CascadeMerge folds staging and every tree at a level below the
// computed target M into one new level-M tree (spec.md §4.7):
//  1. stream every present lower-level tree's records plus staging's
//     inserts, dropping anything staging's delete_set tombstones;
//  2. build a fresh tree_M/data_M from the survivors (spec.md §4.5's
//     build algorithm, via pkg/tree.Build);
//  3. sync the new meta (presence bitmap: levels < M cleared, M set) —
//     the commit point;
//  4. only afterward, truncate the now-obsolete lower-level tree/data
//     files and staging's logs.
//
// This ordering (new files, then meta, then deletions) is spec.md §5's
// atomicity guarantee: a merge interrupted before step 3 leaves meta
// unchanged, so a fresh Open still sees the pre-merge forest untouched.
func (f *Forest[P, B]) CascadeMerge(st *staging.Staging[P, B]) error {
	insertCount := uint64(st.InsertCount())
	target := f.mergeLevel(insertCount)

	var survivors []datastore.Record[P]
	for level := 0; level < target; level++ {
		tr, ok := f.trees[level]
		if !ok {
			continue
		}
		recs, err := tr.ReadAll()
		if err != nil {
			return err
		}
		for _, r := range recs {
			loc := rows.Location{TreeID: uint32(level + 1), Offset: r.Offset}
			if st.IsDeleted(loc) {
				continue
			}
			survivors = append(survivors, r.Record)
		}
	}
	for i, r := range st.Inserts() {
		loc := rows.Location{TreeID: 0, Offset: uint64(i)}
		if st.IsDeleted(loc) {
			continue
		}
		survivors = append(survivors, datastore.Record[P]{Point: r.Point, Value: r.Value})
	}

	blocks, err := f.factory(treeName(target))
	if err != nil {
		return dberrors.New(dberrors.IO, "forest.CascadeMerge: open blocks", err)
	}
	data, err := f.factory(dataName(target))
	if err != nil {
		return dberrors.New(dberrors.IO, "forest.CascadeMerge: open data", err)
	}
	newTree, err := tree.Open[P, B](blocks, data, f.decode, int(f.meta.BranchFactor), f.maxBucket)
	if err != nil {
		return err
	}
	if _, err := newTree.Build(survivors); err != nil {
		return err
	}
	if err := newTree.Commit(); err != nil {
		return err
	}

	newMeta := f.meta
	for level := 0; level < target; level++ {
		newMeta.setPresent(level, false)
	}
	newMeta.setPresent(target, true)
	if err := SaveMeta(f.metaStore, newMeta); err != nil {
		return err
	}
	f.meta = newMeta

	for level := 0; level < target; level++ {
		tr, ok := f.trees[level]
		if !ok {
			continue
		}
		if _, err := tr.Build(nil); err != nil {
			return err
		}
		delete(f.trees, level)
	}
	if err := st.Clear(); err != nil {
		return err
	}

	f.trees[target] = newTree
	return nil
}
