package orchestrator

import (
	"sync"
	"sync/atomic"

	"github.com/becomeliminal/nim-pipeline/core"
)

// entry holds the latest published snapshot of one task. Snapshots are
// replaced wholesale and never mutated in place.
type entry struct {
	snap atomic.Pointer[core.Task]

	mu      sync.Mutex
	changed chan struct{}
}

func newEntry(t core.Task) *entry {
	e := &entry{changed: make(chan struct{})}
	e.snap.Store(&t)
	return e
}

func (e *entry) load() core.Task {
	return e.snap.Load().Clone()
}

// publish stores a copy of t and wakes every watcher.
func (e *entry) publish(t core.Task) {
	c := t.Clone()
	e.mu.Lock()
	e.snap.Store(&c)
	close(e.changed)
	e.changed = make(chan struct{})
	e.mu.Unlock()
}

// watch returns the current snapshot and a channel closed on the next publish.
func (e *entry) watch() (core.Task, <-chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.Load().Clone(), e.changed
}

// registry maps task ids to entries. Entries are never removed.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

// create registers t and reports false if its id is already taken.
func (r *registry) create(t core.Task) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[t.ID]; ok {
		return nil, false
	}
	e := newEntry(t)
	r.entries[t.ID] = e
	r.order = append(r.order, t.ID)
	return e, true
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// list returns snapshots newest first.
func (r *registry) list() []core.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Task, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.entries[r.order[i]].load())
	}
	return out
}
