package storage

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestMemoryReadWrite(t *testing.T) {
	m := NewMemory()
	if err := m.Write(10, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := m.Read(10, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("Read = %q, want %q", got, "hello")
	}
	n, err := m.Len()
	if err != nil || n != 15 {
		t.Fatalf("Len = %d, %v, want 15, nil", n, err)
	}
}

func TestMemoryTruncate(t *testing.T) {
	m := NewMemory()
	m.Write(0, []byte("0123456789"))
	if err := m.Truncate(3); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	n, _ := m.Len()
	if n != 3 {
		t.Fatalf("Len after truncate = %d, want 3", n)
	}
	if err := m.Truncate(6); err != nil {
		t.Fatalf("Truncate grow: %v", err)
	}
	got, _ := m.Read(0, 6)
	if !bytes.Equal(got, []byte{'0', '1', '2', 0, 0, 0}) {
		t.Fatalf("Read after grow = %v", got)
	}
}

func TestMemoryIsEmpty(t *testing.T) {
	m := NewMemory()
	empty, _ := m.IsEmpty()
	if !empty {
		t.Fatal("fresh Memory should be empty")
	}
	m.Write(0, []byte{1})
	empty, _ = m.IsEmpty()
	if empty {
		t.Fatal("Memory with data should not be empty")
	}
}

func TestMemoryFactoryReturnsSameHandle(t *testing.T) {
	factory := MemoryFactory()
	a, err := factory("meta")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	a.Write(0, []byte("x"))
	b, err := factory("meta")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	got, _ := b.Read(0, 1)
	if !bytes.Equal(got, []byte("x")) {
		t.Fatal("factory should return the same handle for the same name")
	}
}

func TestDiskReadWriteTruncate(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDisk(filepath.Join(dir, "tree_0"))
	if err != nil {
		t.Fatalf("OpenDisk: %v", err)
	}
	if err := d.Write(0, []byte("abcdef")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := d.Read(2, 3)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("cde")) {
		t.Fatalf("Read = %q, want %q", got, "cde")
	}
	if err := d.SyncAll(); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if err := d.Truncate(2); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	n, err := d.Len()
	if err != nil || n != 2 {
		t.Fatalf("Len after truncate = %d, %v, want 2, nil", n, err)
	}
}

func TestDiskFactoryDerivesNames(t *testing.T) {
	dir := t.TempDir()
	factory := DiskFactory(dir)
	s, err := factory("meta")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if err := s.Write(0, []byte("EYR0")); err != nil {
		t.Fatalf("Write: %v", err)
	}
}
