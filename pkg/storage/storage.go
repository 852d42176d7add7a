// Package storage implements the engine.Storage trait: a Disk backend
// for real files and a Memory backend for tests and ephemeral databases.
// Disk's open sequence (clean the directory path, MkdirAll with a
// restrictive mode, OpenFile with explicit flags, fmt.Errorf wrapping)
// follows wal.New; Memory's mutex-guarded buffer follows
// persistence.BlockCacheImpl's locking.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"eyros/internal/engine"
)

// Disk is a file-backed engine.Storage.
type Disk struct {
	mu   sync.Mutex
	file *os.File
}

// OpenDisk opens (creating if absent) the file at path.
func OpenDisk(path string) (*Disk, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("storage: create parent dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &Disk{file: f}, nil
}

// DiskFactory returns an engine.Factory that opens files named "<dir>/<name>".
func DiskFactory(dir string) engine.Factory {
	return func(name string) (engine.Storage, error) {
		return OpenDisk(filepath.Join(dir, name))
	}
}

func (d *Disk) Read(offset, length int64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, length)
	n, err := d.file.ReadAt(buf, offset)
	if err != nil && n < int(length) {
		return nil, fmt.Errorf("storage: read at %d: %w", offset, err)
	}
	return buf[:n], nil
}

func (d *Disk) Write(offset int64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("storage: write at %d: %w", offset, err)
	}
	return nil
}

func (d *Disk) Truncate(length int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.file.Truncate(length); err != nil {
		return fmt.Errorf("storage: truncate to %d: %w", length, err)
	}
	return nil
}

func (d *Disk) Len() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fi, err := d.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("storage: stat: %w", err)
	}
	return fi.Size(), nil
}

func (d *Disk) IsEmpty() (bool, error) {
	n, err := d.Len()
	return n == 0, err
}

func (d *Disk) SyncAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.file.Sync(); err != nil {
		return fmt.Errorf("storage: sync: %w", err)
	}
	return nil
}

// Memory is a byte-slice-backed engine.Storage, useful for tests and for
// databases that do not require durability across process restarts.
type Memory struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemory returns an empty in-memory storage handle.
func NewMemory() *Memory { return &Memory{} }

// MemoryFactory returns an engine.Factory backed by independent Memory
// handles, one per distinct name requested.
func MemoryFactory() engine.Factory {
	var mu sync.Mutex
	handles := make(map[string]*Memory)
	return func(name string) (engine.Storage, error) {
		mu.Lock()
		defer mu.Unlock()
		if h, ok := handles[name]; ok {
			return h, nil
		}
		h := NewMemory()
		handles[name] = h
		return h, nil
	}
}

func (m *Memory) Read(offset, length int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset >= int64(len(m.data)) {
		return nil, nil
	}
	end := offset + length
	if end > int64(len(m.data)) {
		end = int64(len(m.data))
	}
	out := make([]byte, end-offset)
	copy(out, m.data[offset:end])
	return out, nil
}

func (m *Memory) Write(offset int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := offset + int64(len(data))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[offset:end], data)
	return nil
}

func (m *Memory) Truncate(length int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if length <= int64(len(m.data)) {
		m.data = m.data[:length]
		return nil
	}
	grown := make([]byte, length)
	copy(grown, m.data)
	m.data = grown
	return nil
}

func (m *Memory) Len() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data)), nil
}

func (m *Memory) IsEmpty() (bool, error) {
	n, _ := m.Len()
	return n == 0, nil
}

func (m *Memory) SyncAll() error { return nil }
