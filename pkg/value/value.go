// Package value implements the Value abstraction: an opaque user payload
// with a self-describing byte codec. It follows the teacher's small
// value-wrapper-type pattern (String/Blob/Int32 in pkg/store/types.go,
// each carrying its own typeOf()/bin()) generalized to a single leading
// discriminant byte the decoder switches on, the way pkg/store/md.go
// packs a type tag alongside an operation tag.
package value

import (
	"encoding/binary"

	"eyros/pkg/compression"
	"eyros/pkg/dberrors"
)

// Kind discriminates the wire encoding of a Value.
type Kind uint8

const (
	KindBytes Kind = iota
	KindZBytes
)

// Value is an opaque user payload with a deterministic byte codec.
// Concrete variants are Bytes (raw) and ZBytes (zstd-compressed).
type Value interface {
	Kind() Kind
	Bin() []byte
	CountBytes() int
}

// Bytes is a raw, uncompressed payload.
type Bytes []byte

func (b Bytes) Kind() Kind      { return KindBytes }
func (b Bytes) Bin() []byte     { return []byte(b) }
func (b Bytes) CountBytes() int { return 1 + 4 + len(b) }

// ZBytes is a payload stored zstd-compressed on disk and transparently
// decompressed on read. Bin returns the decompressed form.
type ZBytes []byte

func (z ZBytes) Kind() Kind      { return KindZBytes }
func (z ZBytes) Bin() []byte     { return []byte(z) }
func (z ZBytes) CountBytes() int { return 1 + 4 + len(z) }

// Encode writes a self-describing record: kind byte, u32 BE length,
// payload (compressed for ZBytes).
func Encode(v Value, dst []byte) (int, error) {
	payload := v.Bin()
	if v.Kind() == KindZBytes {
		compressed, err := compression.Compress(payload)
		if err != nil {
			return 0, dberrors.New(dberrors.IO, "value.Encode", err)
		}
		payload = compressed
	}
	need := 1 + 4 + len(payload)
	if len(dst) < need {
		return 0, dberrors.New(dberrors.Invariant, "value.Encode",
			errShort(len(dst), need))
	}
	dst[0] = byte(v.Kind())
	binary.BigEndian.PutUint32(dst[1:5], uint32(len(payload)))
	copy(dst[5:], payload)
	return need, nil
}

// Decode reads a Value encoded by Encode from the front of src and
// returns the value and the number of bytes consumed.
func Decode(src []byte) (Value, int, error) {
	if len(src) < 5 {
		return nil, 0, dberrors.New(dberrors.Corrupt, "value.Decode", errShort(len(src), 5))
	}
	kind := Kind(src[0])
	n := int(binary.BigEndian.Uint32(src[1:5]))
	if len(src) < 5+n {
		return nil, 0, dberrors.New(dberrors.Corrupt, "value.Decode", errShort(len(src), 5+n))
	}
	payload := src[5 : 5+n]
	switch kind {
	case KindBytes:
		out := make([]byte, n)
		copy(out, payload)
		return Bytes(out), 5 + n, nil
	case KindZBytes:
		dec, err := compression.Decompress(payload, nil)
		if err != nil {
			return nil, 0, dberrors.New(dberrors.Corrupt, "value.Decode", err)
		}
		return ZBytes(dec), 5 + n, nil
	default:
		return nil, 0, dberrors.New(dberrors.Corrupt, "value.Decode", errUnknownKind(kind))
	}
}

// CountBytes reports how many bytes Decode would consume from the front
// of src without materializing the payload.
func CountBytes(src []byte) (int, error) {
	if len(src) < 5 {
		return 0, dberrors.New(dberrors.Corrupt, "value.CountBytes", errShort(len(src), 5))
	}
	n := int(binary.BigEndian.Uint32(src[1:5]))
	if len(src) < 5+n {
		return 0, dberrors.New(dberrors.Corrupt, "value.CountBytes", errShort(len(src), 5+n))
	}
	return 5 + n, nil
}

type shortBufErr struct{ have, want int }

func (e shortBufErr) Error() string { return "value: buffer too small" }

func errShort(have, want int) error { return shortBufErr{have, want} }

type unknownKindErr Kind

func (e unknownKindErr) Error() string { return "value: unknown kind discriminant" }

func errUnknownKind(k Kind) error { return unknownKindErr(k) }
