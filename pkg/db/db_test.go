package db

import (
	"fmt"
	"testing"

	"github.com/zhangyunhao116/fastrand"

	"eyros/pkg/config"
	"eyros/pkg/point"
	"eyros/pkg/rows"
	"eyros/pkg/storage"
	"eyros/pkg/value"
)

type pt = point.Point2[float64, float64]
type bd = point.Bounds2[float64, float64]

func overlaps(p pt, b bd) bool { return p.Overlaps(b) }

func open(t *testing.T, opts config.Options) *DB[pt, bd] {
	t.Helper()
	factory := storage.MemoryFactory()
	d, err := Open[pt, bd](factory, point.DecodePoint2[float64, float64], opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return d
}

func p2(x, y float64) pt {
	return pt{V0: point.NewScalar(x), V1: point.NewScalar(y)}
}

func insert(p pt, v string) rows.Row[pt, value.Value] {
	return rows.NewInsert[pt, value.Value](p, value.Bytes(v))
}

func labels(t *testing.T, results []QueryResult[pt]) map[string]bool {
	t.Helper()
	out := make(map[string]bool, len(results))
	for _, r := range results {
		out[string(r.Value.(value.Bytes))] = true
	}
	return out
}

func TestS1PointOnly2D(t *testing.T) {
	d := open(t, config.Default())
	batch := []rows.Row[pt, value.Value]{
		insert(p2(0, 0), "1"),
		insert(p2(1, 1), "2"),
		insert(p2(0.5, 0.5), "3"),
	}
	if err := d.Batch(batch); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	got, err := d.Query(bd{LowA: 0, HighA: 1, LowB: 0, HighB: 1}, overlaps).All()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := map[string]bool{"1": true, "2": true, "3": true}
	if gotSet := labels(t, got); !mapsEqual(gotSet, want) {
		t.Fatalf("Query((0,0),(1,1)) = %v, want %v", gotSet, want)
	}

	got2, err := d.Query(bd{LowA: 0.6, HighA: 1, LowB: 0.6, HighB: 1}, overlaps).All()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want2 := map[string]bool{"2": true}
	if gotSet := labels(t, got2); !mapsEqual(gotSet, want2) {
		t.Fatalf("Query((0.6,0.6),(1,1)) = %v, want %v", gotSet, want2)
	}
}

func TestS2IntervalsStraddlingPivot(t *testing.T) {
	d := open(t, config.Default())
	wide := pt{V0: point.NewInterval(0.0, 1.0), V1: point.NewInterval(0.0, 1.0)}
	mid := pt{V0: point.NewInterval(0.5, 0.9), V1: point.NewInterval(0.0, 0.2)}
	corner := pt{V0: point.NewInterval(0.95, 1.0), V1: point.NewInterval(0.95, 1.0)}
	batch := []rows.Row[pt, value.Value]{
		insert(wide, "wide"),
		insert(mid, "mid"),
		insert(corner, "corner"),
	}
	if err := d.Batch(batch); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	got, err := d.Query(bd{LowA: 0.4, HighA: 0.6, LowB: 0.4, HighB: 0.6}, overlaps).All()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := map[string]bool{"wide": true, "mid": true}
	if gotSet := labels(t, got); !mapsEqual(gotSet, want) {
		t.Fatalf("Query((0.4,0.4),(0.6,0.6)) = %v, want %v", gotSet, want)
	}
}

func TestS5EmptyAndDegenerate(t *testing.T) {
	d := open(t, config.Default())
	got, err := d.Query(bd{LowA: -1, HighA: 1, LowB: -1, HighB: 1}, overlaps).All()
	if err != nil {
		t.Fatalf("Query on empty db: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Query on empty db returned %d results, want 0", len(got))
	}

	if err := d.Batch([]rows.Row[pt, value.Value]{insert(p2(1, 1), "only")}); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	got2, err := d.Query(bd{LowA: 1, HighA: 1, LowB: 1, HighB: 1}, overlaps).All()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got2) != 1 || string(got2[0].Value.(value.Bytes)) != "only" {
		t.Fatalf("Query((1,1),(1,1)) = %+v, want [only]", got2)
	}
}

func TestS6Reopen(t *testing.T) {
	factory := storage.MemoryFactory()
	opts := config.Default()
	d1, err := Open[pt, bd](factory, point.DecodePoint2[float64, float64], opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d1.Batch([]rows.Row[pt, value.Value]{
		insert(p2(0, 0), "a"),
		insert(p2(2, 2), "b"),
	}); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	before, err := d1.Query(bd{LowA: -10, HighA: 10, LowB: -10, HighB: 10}, overlaps).All()
	if err != nil {
		t.Fatalf("Query before reopen: %v", err)
	}

	d2, err := Open[pt, bd](factory, point.DecodePoint2[float64, float64], opts)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	after, err := d2.Query(bd{LowA: -10, HighA: 10, LowB: -10, HighB: 10}, overlaps).All()
	if err != nil {
		t.Fatalf("Query after reopen: %v", err)
	}
	if !mapsEqual(labels(t, before), labels(t, after)) {
		t.Fatalf("reopen results = %v, want %v", labels(t, after), labels(t, before))
	}
}

func TestDeleteAcrossMerge(t *testing.T) {
	opts := config.Default()
	opts.BranchFactor = 2
	opts.BaseCapacity = 4
	opts.MaxBucket = 2
	d := open(t, opts)

	var batch []rows.Row[pt, value.Value]
	for i := 0; i < 10; i++ {
		batch = append(batch, insert(p2(float64(i), float64(i)), fmt.Sprintf("v%d", i)))
	}
	if err := d.Batch(batch); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	got, err := d.Query(bd{LowA: -1, HighA: 100, LowB: -1, HighB: 100}, overlaps).All()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("Query returned %d records after merge, want 10", len(got))
	}

	var toDelete []rows.Row[pt, value.Value]
	var deletedLabels []string
	for _, r := range got {
		label := string(r.Value.(value.Bytes))
		if label == "v2" || label == "v7" {
			toDelete = append(toDelete, rows.NewDelete[pt, value.Value](r.Location))
			deletedLabels = append(deletedLabels, label)
		}
	}
	if len(toDelete) != 2 {
		t.Fatalf("expected to find v2 and v7 in query results, found %d matches", len(toDelete))
	}
	if err := d.Batch(toDelete); err != nil {
		t.Fatalf("Batch(deletes): %v", err)
	}

	final, err := d.Query(bd{LowA: -1, HighA: 100, LowB: -1, HighB: 100}, overlaps).All()
	if err != nil {
		t.Fatalf("final Query: %v", err)
	}
	if len(final) != 8 {
		t.Fatalf("final Query returned %d records, want 8", len(final))
	}
	finalSet := labels(t, final)
	for _, label := range deletedLabels {
		if finalSet[label] {
			t.Fatalf("deleted record %q still present after merge", label)
		}
	}
}

// TestS3TenBatchesForceMultipleCascadeMerges drives spec.md §8 scenario
// S3: 10 batches of N0 records each, forcing more than one cascade merge.
// It runs against config.Default() (BranchFactor 6, a non-power-of-two
// branch factor), which exercises tree blocks with n = 2*6-1 = 11 pivot
// slots — the shape that previously panicked HeapToInOrder on any batch
// large enough to reach heap indices 7..10.
func TestS3TenBatchesForceMultipleCascadeMerges(t *testing.T) {
	opts := config.Default()
	d := open(t, opts)

	const batches = 10
	total := 0
	for b := 0; b < batches; b++ {
		batch := make([]rows.Row[pt, value.Value], 0, int(opts.BaseCapacity))
		for i := 0; i < int(opts.BaseCapacity); i++ {
			x := float64(fastrand.Intn(1_000_000))
			y := float64(fastrand.Intn(1_000_000))
			batch = append(batch, insert(p2(x, y), fmt.Sprintf("b%d-%d", b, i)))
		}
		if err := d.Batch(batch); err != nil {
			t.Fatalf("Batch %d: %v", b, err)
		}
		total += len(batch)
	}

	got, err := d.Query(bd{LowA: -1, HighA: 2_000_000, LowB: -1, HighB: 2_000_000}, overlaps).All()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != total {
		t.Fatalf("Query returned %d records after %d batches, want %d", len(got), batches, total)
	}

	// batches=10 is binary 1010: a binary-counter cascade should leave
	// exactly the levels at bit positions 1 and 3 present (2*N0 and
	// 8*N0 records respectively), never a level still holding stale data
	// from a merge that clobbered it instead of absorbing it.
	levels := d.forest.Levels()
	if len(levels) != 2 {
		t.Fatalf("Levels() = %v, want exactly 2 present levels for 10 batches", levels)
	}
}

// TestS4VariableSizeValuesAtScale inserts 500 records in one batch, which
// triggers one cascade merge into a single tree, each record carrying a
// randomly sized value payload (spec.md §8 S4), and checks every record
// survives the merge with its payload intact.
// Each payload starts with its own index so a record can be matched back
// to what was inserted without a second bookkeeping structure.
func TestS4VariableSizeValuesAtScale(t *testing.T) {
	opts := config.Default()
	opts.BranchFactor = 4
	opts.BaseCapacity = 16
	opts.MaxBucket = 4
	d := open(t, opts)

	const n = 500
	sizes := make([]int, n)
	var batch []rows.Row[pt, value.Value]
	for i := 0; i < n; i++ {
		size := 4 + fastrand.Intn(64)
		sizes[i] = size
		payload := make([]byte, size)
		binaryPutInt(payload, i)
		for j := 4; j < size; j++ {
			payload[j] = byte(fastrand.Intn(256))
		}
		p := p2(float64(i%50), float64(i/50))
		batch = append(batch, rows.NewInsert[pt, value.Value](p, value.Bytes(payload)))
	}

	if err := d.Batch(batch); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	got, err := d.Query(bd{LowA: -1, HighA: 1000, LowB: -1, HighB: 1000}, overlaps).All()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != n {
		t.Fatalf("Query returned %d records, want %d", len(got), n)
	}
	seenIdx := make(map[int]bool, n)
	for _, r := range got {
		payload := []byte(r.Value.(value.Bytes))
		idx := int(binaryGetInt(payload))
		if idx < 0 || idx >= n {
			t.Fatalf("payload decoded out-of-range index %d", idx)
		}
		if len(payload) != sizes[idx] {
			t.Fatalf("record %d payload length = %d, want %d", idx, len(payload), sizes[idx])
		}
		seenIdx[idx] = true
	}
	if len(seenIdx) != n {
		t.Fatalf("saw %d distinct indices, want %d", len(seenIdx), n)
	}
}

func binaryPutInt(dst []byte, v int) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

func binaryGetInt(src []byte) int32 {
	return int32(src[0]) | int32(src[1])<<8 | int32(src[2])<<16 | int32(src[3])<<24
}

func mapsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
