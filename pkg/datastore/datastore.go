// Package datastore implements the append-only record log a tree's leaf
// buckets and intersection slots point into. Each entry is a bucket: a
// flat list of (Point, Value) records sharing one subtree path, written
// with a length prefix so a reader can fetch the exact byte range in one
// call — the same append-and-remember-the-offset shape as the teacher's
// WriteSSTableData, generalized from a single byte-string value to a
// length-framed list of geometric records.
package datastore

import (
	"encoding/binary"

	"eyros/internal/engine"
	"eyros/pkg/dberrors"
	"eyros/pkg/value"
	"eyros/pkg/writecache"
)

// FullCodec is the whole-record point codec datastore needs (mirrors
// staging.Pt's non-engine half, kept independent so this package does not
// import pkg/staging).
type FullCodec interface {
	CountBytesFull() int
	EncodeFull(dst []byte) (int, error)
}

// Record is one (Point, Value) pair stored in a bucket.
type Record[P FullCodec] struct {
	Point P
	Value value.Value
}

// Store is the append-only bucket log for one tree level.
type Store[P FullCodec] struct {
	cache  *writecache.Cache
	decode func([]byte) (P, int, error)
}

// Open wraps backend in a Store. decode reconstructs a P from the bytes
// EncodeFull wrote.
func Open[P FullCodec](backend engine.Storage, decode func([]byte) (P, int, error)) (*Store[P], error) {
	c, err := writecache.Open(backend)
	if err != nil {
		return nil, dberrors.New(dberrors.IO, "datastore.Open", err)
	}
	return &Store[P]{cache: c, decode: decode}, nil
}

// AppendBucket writes a bucket (the flat list of records sharing one
// subtree path, or the set of records straddling one pivot) as a single
// length-framed blob and returns its byte offset (not yet +1 adjusted —
// callers building tree blocks add one for the sentinel).
func (s *Store[P]) AppendBucket(records []Record[P]) (uint64, error) {
	bodySize := 0
	for _, r := range records {
		bodySize += r.Point.CountBytesFull() + r.Value.CountBytes()
	}
	buf := make([]byte, 8+bodySize)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(records)))
	offset := 8
	for _, r := range records {
		n, err := r.Point.EncodeFull(buf[offset:])
		if err != nil {
			return 0, dberrors.New(dberrors.Invariant, "datastore.AppendBucket: encode point", err)
		}
		offset += n
		vn, err := value.Encode(r.Value, buf[offset:])
		if err != nil {
			return 0, dberrors.New(dberrors.Invariant, "datastore.AppendBucket: encode value", err)
		}
		offset += vn
	}
	binary.BigEndian.PutUint32(buf[0:4], uint32(offset-8))

	at, err := s.cache.Len()
	if err != nil {
		return 0, dberrors.New(dberrors.IO, "datastore.AppendBucket: len", err)
	}
	if err := s.cache.Write(at, buf[:offset]); err != nil {
		return 0, dberrors.New(dberrors.IO, "datastore.AppendBucket: write", err)
	}
	return uint64(at), nil
}

// LocatedRecord pairs a Record with the absolute byte offset its encoding
// starts at, which is stable and unique per record (two records never
// start at the same offset) and so doubles as a rows.Location offset for
// records that have been promoted out of staging into a tree.
type LocatedRecord[P FullCodec] struct {
	Offset uint64
	Record Record[P]
}

// ReadBucket decodes the bucket at offset back into its record list.
func (s *Store[P]) ReadBucket(offset uint64) ([]Record[P], error) {
	located, err := s.readBucketAt(offset)
	if err != nil {
		return nil, err
	}
	out := make([]Record[P], len(located))
	for i, l := range located {
		out[i] = l.Record
	}
	return out, nil
}

// ReadBucketLocated is ReadBucket, additionally reporting each record's
// absolute byte offset for Location bookkeeping.
func (s *Store[P]) ReadBucketLocated(offset uint64) ([]LocatedRecord[P], error) {
	return s.readBucketAt(offset)
}

func (s *Store[P]) readBucketAt(offset uint64) ([]LocatedRecord[P], error) {
	header, err := s.cache.Read(int64(offset), 8)
	if err != nil {
		return nil, dberrors.New(dberrors.IO, "datastore.ReadBucket: header", err)
	}
	if len(header) < 8 {
		return nil, dberrors.New(dberrors.Corrupt, "datastore.ReadBucket", errShortHeader(len(header)))
	}
	bodyLen := binary.BigEndian.Uint32(header[0:4])
	count := binary.BigEndian.Uint32(header[4:8])

	body, err := s.cache.Read(int64(offset)+8, int64(bodyLen))
	if err != nil {
		return nil, dberrors.New(dberrors.IO, "datastore.ReadBucket: body", err)
	}
	records := make([]LocatedRecord[P], 0, count)
	pos := 0
	for i := uint32(0); i < count; i++ {
		recStart := offset + 8 + uint64(pos)
		p, n, err := s.decode(body[pos:])
		if err != nil {
			return nil, dberrors.New(dberrors.Corrupt, "datastore.ReadBucket: decode point", err)
		}
		pos += n
		v, vn, err := value.Decode(body[pos:])
		if err != nil {
			return nil, dberrors.New(dberrors.Corrupt, "datastore.ReadBucket: decode value", err)
		}
		pos += vn
		records = append(records, LocatedRecord[P]{Offset: recStart, Record: Record[P]{Point: p, Value: v}})
	}
	return records, nil
}

// ReadAll scans every bucket in the store from the front, for a cascade
// merge's full-scan of a lower tree level (every record the build
// algorithm wrote appears in exactly one bucket, so this is a complete
// enumeration without walking the tree's block structure at all).
func (s *Store[P]) ReadAll() ([]Record[P], error) {
	located, err := s.ReadAllLocated()
	if err != nil {
		return nil, err
	}
	out := make([]Record[P], len(located))
	for i, l := range located {
		out[i] = l.Record
	}
	return out, nil
}

// ReadAllLocated is ReadAll, additionally reporting each record's
// absolute byte offset.
func (s *Store[P]) ReadAllLocated() ([]LocatedRecord[P], error) {
	total, err := s.cache.Len()
	if err != nil {
		return nil, dberrors.New(dberrors.IO, "datastore.ReadAll: len", err)
	}
	var out []LocatedRecord[P]
	var offset int64
	for offset < total {
		recs, err := s.readBucketAt(uint64(offset))
		if err != nil {
			return nil, err
		}
		header, err := s.cache.Read(offset, 8)
		if err != nil {
			return nil, dberrors.New(dberrors.IO, "datastore.ReadAll: header", err)
		}
		bodyLen := binary.BigEndian.Uint32(header[0:4])
		out = append(out, recs...)
		offset += 8 + int64(bodyLen)
	}
	return out, nil
}

type errShortHeaderType int

func (e errShortHeaderType) Error() string { return "datastore: buffer too short for a bucket header" }

func errShortHeader(have int) error { return errShortHeaderType(have) }

// Len reports the current byte length of the store.
func (s *Store[P]) Len() (int64, error) { return s.cache.Len() }

// Truncate discards the store's contents (used when a tree level is
// dropped during a cascade merge).
func (s *Store[P]) Truncate() error { return s.cache.Truncate(0) }

// Commit syncs the underlying write-cache.
func (s *Store[P]) Commit() error { return s.cache.SyncAll() }
