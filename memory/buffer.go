package memory

import (
	"sync"

	"github.com/becomeliminal/nim-pipeline/core"
)

// RoleExecutor tags entries written by the execute stage.
const RoleExecutor = "executor"

// Buffer is an append-only log of role-tagged entries.
// It is safe for concurrent use.
type Buffer struct {
	mu      sync.RWMutex
	entries []core.MemoryEntry
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add appends an entry.
func (b *Buffer) Add(role, content string) {
	b.mu.Lock()
	b.entries = append(b.entries, core.MemoryEntry{Role: role, Content: content})
	b.mu.Unlock()
}

// Recent returns the last min(n, Len()) entries in insertion order.
// The returned slice is a copy and never aliases the buffer.
func (b *Buffer) Recent(n int) []core.MemoryEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 {
		return []core.MemoryEntry{}
	}
	if n > len(b.entries) {
		n = len(b.entries)
	}
	out := make([]core.MemoryEntry, n)
	copy(out, b.entries[len(b.entries)-n:])
	return out
}

// Len returns the number of entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
