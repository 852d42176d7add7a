// Package db implements the facade spec.md §4.8 describes: Open wires
// staging and the forest together behind one handle; Batch routes rows to
// staging and then consults the merge threshold; Query returns a
// forward-only iterator that visits staging first and then each present
// tree level, advancing one source at a time. The split (thin facade
// delegating to a memtable-equivalent plus a level manager-equivalent)
// follows pkg/store/store.go's Store, trimmed of WAL/clock/background
// flush machinery the engine's single-threaded, no-cancellation model
// (spec.md §5) does not need.
package db

import (
	"eyros/internal/engine"
	"eyros/pkg/config"
	"eyros/pkg/dberrors"
	"eyros/pkg/forest"
	"eyros/pkg/rows"
	"eyros/pkg/staging"
	"eyros/pkg/tree"
	"eyros/pkg/value"
)

// QueryResult is one row produced by a query, tagged with the Location a
// caller can later pass to a delete Row.
type QueryResult[P any] struct {
	Point    P
	Value    value.Value
	Location rows.Location
}

// DB is the facade over one database: the staging layer plus the forest
// of merged trees.
type DB[P tree.Pt[P, B], B any] struct {
	staging *staging.Staging[P, B]
	forest  *forest.Forest[P, B]
}

// Open opens meta, staging, and every present tree via factory,
// initializing meta with opts's defaults on first use.
func Open[P tree.Pt[P, B], B any](factory engine.Factory, decode func([]byte) (P, int, error), opts config.Options) (*DB[P, B], error) {
	ist, err := factory("staging_inserts")
	if err != nil {
		return nil, dberrors.New(dberrors.IO, "db.Open: staging_inserts", err)
	}
	dst, err := factory("staging_deletes")
	if err != nil {
		return nil, dberrors.New(dberrors.IO, "db.Open: staging_deletes", err)
	}
	st, err := staging.Open[P, B](ist, dst, decode)
	if err != nil {
		return nil, err
	}
	f, err := forest.Open[P, B](factory, decode, opts.BranchFactor, opts.BaseCapacity, int(opts.MaxBucket))
	if err != nil {
		return nil, err
	}
	return &DB[P, B]{staging: st, forest: f}, nil
}

// Batch splits rows into inserts and deletes, appends them to staging,
// and runs a cascade merge if the threshold rule now triggers (spec.md
// §4.7: "After every batch, if staging's record count >= N0").
func (d *DB[P, B]) Batch(items []rows.Row[P, value.Value]) error {
	var inserts []staging.Record[P]
	var deletes []rows.Location
	for _, r := range items {
		switch r.Op {
		case rows.OpInsert:
			inserts = append(inserts, staging.Record[P]{Point: r.Point, Value: r.Value})
		case rows.OpDelete:
			deletes = append(deletes, r.Location)
		}
	}
	if err := d.staging.Batch(inserts, deletes); err != nil {
		return err
	}
	if err := d.staging.Commit(); err != nil {
		return err
	}
	if d.forest.ShouldMerge(d.staging.InsertCount()) {
		if err := d.forest.CascadeMerge(d.staging); err != nil {
			return err
		}
	}
	return nil
}

// Query constructs a fused iterator emitting results from staging first,
// then each present tree in level order, with tree results filtered
// against staging's delete_set so tombstones in staging mask older
// records (spec.md §4.8).
func (d *DB[P, B]) Query(bounds B, overlaps func(P, B) bool) *QueryIterator[P] {
	levels := d.forest.Levels()
	pending := make([]func() ([]QueryResult[P], error), 0, len(levels)+1)

	pending = append(pending, func() ([]QueryResult[P], error) {
		res := d.staging.Query(bounds, overlaps)
		out := make([]QueryResult[P], len(res))
		for i, r := range res {
			out[i] = QueryResult[P]{Point: r.Point, Value: r.Value, Location: r.Location}
		}
		return out, nil
	})
	for _, level := range levels {
		level := level
		pending = append(pending, func() ([]QueryResult[P], error) {
			res, err := d.forest.QueryLevel(level, bounds, overlaps)
			if err != nil {
				return nil, err
			}
			var out []QueryResult[P]
			for _, r := range res {
				if d.staging.IsDeleted(r.Location) {
					continue
				}
				out = append(out, QueryResult[P]{Point: r.Point, Value: r.Value, Location: r.Location})
			}
			return out, nil
		})
	}
	return &QueryIterator[P]{pending: pending}
}

// QueryIterator is the forward-only cursor Query returns: staging's
// results, then each tree level's, advancing one source at a time —
// trimmed from the teacher's Iterator contract (Seek/First/Last/Prev
// dropped, since a bbox scan has no ordering to seek within, only a
// sequence of sources to drain).
type QueryIterator[P any] struct {
	pending []func() ([]QueryResult[P], error)
	buf     []QueryResult[P]
	idx     int
	current QueryResult[P]
	err     error
}

// Next advances to the next result, pulling the next pending source only
// once the current one is exhausted. It returns false at end of stream or
// on error; check Err to distinguish the two.
func (it *QueryIterator[P]) Next() bool {
	for {
		if it.idx < len(it.buf) {
			it.current = it.buf[it.idx]
			it.idx++
			return true
		}
		if len(it.pending) == 0 {
			return false
		}
		next := it.pending[0]
		it.pending = it.pending[1:]
		buf, err := next()
		if err != nil {
			it.err = err
			return false
		}
		it.buf = buf
		it.idx = 0
	}
}

// Current returns the result Next last advanced to.
func (it *QueryIterator[P]) Current() QueryResult[P] { return it.current }

// Err returns the first error encountered, if Next stopped because of one.
func (it *QueryIterator[P]) Err() error { return it.err }

// Close releases the iterator. Dropping it without calling Close is safe
// per spec.md §5 ("A query iterator may be dropped at any time without
// side effects"); Close exists for symmetry with the teacher's Iterator
// contract and callers that prefer an explicit defer.
func (it *QueryIterator[P]) Close() error { return nil }

// All drains the iterator into a slice, for callers that do not need
// incremental consumption.
func (it *QueryIterator[P]) All() ([]QueryResult[P], error) {
	var out []QueryResult[P]
	for it.Next() {
		out = append(out, it.Current())
	}
	return out, it.Err()
}
