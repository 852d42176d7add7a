// Package writecache implements the write-cache: an in-memory buffer in
// front of an engine.Storage that coalesces writes and defers syscalls
// until Sync. The buffered-writes-then-explicit-flush split follows
// wal.WAL's bufio.Writer-plus-Sync separation; the offset-keyed pending
// map follows persistence.BlockCacheImpl's map-backed cache.
package writecache

import (
	"sort"
	"sync"

	"eyros/internal/engine"
)

type pendingWrite struct {
	offset int64
	data   []byte
}

// Cache buffers writes to a backing engine.Storage until SyncAll flushes
// them. Reads are served by overlaying pending writes atop the backing
// store's contents so a caller sees its own unflushed writes immediately.
type Cache struct {
	mu      sync.Mutex
	backend engine.Storage
	pending []pendingWrite
	highEnd int64 // max(backend length, highest pending end-offset), lazily tracked
}

// Open wraps backend in a Cache.
func Open(backend engine.Storage) (*Cache, error) {
	n, err := backend.Len()
	if err != nil {
		return nil, err
	}
	return &Cache{backend: backend, highEnd: n}, nil
}

// Write buffers data at offset; it is not visible to the backend until
// SyncAll.
func (c *Cache) Write(offset int64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.pending = append(c.pending, pendingWrite{offset: offset, data: cp})
	if end := offset + int64(len(data)); end > c.highEnd {
		c.highEnd = end
	}
	return nil
}

// Read merges the backend's contents with any pending writes overlapping
// [offset, offset+length).
func (c *Cache) Read(offset, length int64) ([]byte, error) {
	c.mu.Lock()
	pending := make([]pendingWrite, len(c.pending))
	copy(pending, c.pending)
	c.mu.Unlock()

	out, err := c.backend.Read(offset, length)
	if err != nil {
		return nil, err
	}
	if int64(len(out)) < length {
		grown := make([]byte, length)
		copy(grown, out)
		out = grown
	}

	for _, w := range pending {
		overlapLo := max64(offset, w.offset)
		overlapHi := min64(offset+length, w.offset+int64(len(w.data)))
		if overlapLo >= overlapHi {
			continue
		}
		copy(out[overlapLo-offset:overlapHi-offset], w.data[overlapLo-w.offset:overlapHi-w.offset])
	}
	return out, nil
}

// Len is the max of the backend's length and the highest pending
// end-offset.
func (c *Cache) Len() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highEnd, nil
}

func (c *Cache) IsEmpty() (bool, error) {
	n, err := c.Len()
	return n == 0, err
}

// Truncate(0) discards pending writes and truncates the backend;
// truncating to a nonzero length flushes first (simplest correct
// behavior, since a partial discard of buffered writes would need
// byte-range splitting).
func (c *Cache) Truncate(length int64) error {
	c.mu.Lock()
	if length == 0 {
		c.pending = nil
		c.highEnd = 0
		c.mu.Unlock()
		return c.backend.Truncate(0)
	}
	c.mu.Unlock()
	if err := c.flushLocked(); err != nil {
		return err
	}
	if err := c.backend.Truncate(length); err != nil {
		return err
	}
	c.mu.Lock()
	c.highEnd = length
	c.mu.Unlock()
	return nil
}

// SyncAll flushes the buffer to the backing store in offset order and
// syncs it. Writes at the same offset apply in submission order; a later
// write at a lower offset that overlaps an earlier write at a higher
// offset is applied first, so the earlier write wins the overlap.
func (c *Cache) SyncAll() error {
	if err := c.flushLocked(); err != nil {
		return err
	}
	return c.backend.SyncAll()
}

func (c *Cache) flushLocked() error {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	sort.SliceStable(pending, func(i, j int) bool { return pending[i].offset < pending[j].offset })
	for _, w := range pending {
		if err := c.backend.Write(w.offset, w.data); err != nil {
			return err
		}
	}
	return nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
