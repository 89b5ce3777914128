package procmanager

import (
	"maps"
	"slices"
	"sync"

	"github.com/shiv122/ecsexec/internal/procmanager/stream"
)

// Entry binds a caller-chosen id to a running Process and, for interactive
// sessions, its input Queue.
type Entry struct {
	ID      string
	Process *Process
	Input   *stream.Queue

	// reaped is closed once the owner of the Process' exit (reaper or waiter)
	// has finished with it.
	reaped chan struct{}
}

func newEntry(id string, p *Process, input *stream.Queue) *Entry {
	return &Entry{
		ID:      id,
		Process: p,
		Input:   input,
		reaped:  make(chan struct{}),
	}
}

// Reaped returns a channel that is closed once the Entry's exit has been fully
// handled.
func (e *Entry) Reaped() <-chan struct{} {
	return e.reaped
}

// Registry maps ids to Entries. Whoever removes an Entry owns the right to
// kill its Process; removal and return of the Entry happen under one lock
// acquisition, so two callers can never both obtain it.
//
// The lock is only ever held for map access, never while waiting on a process
// or doing I/O.
type Registry struct {
	entries map[string]*Entry

	mu sync.Mutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Insert stores e under e.ID and returns the Entry it displaced, if any. The
// caller becomes the owner of the displaced Entry.
func (r *Registry) Insert(e *Entry) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	prior := r.entries[e.ID]
	r.entries[e.ID] = e

	return prior
}

// Remove takes the Entry for id out of the Registry, or returns nil if there
// is none.
func (r *Registry) Remove(id string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil
	}

	delete(r.entries, id)

	return e
}

// RemoveIf removes the Entry for id only if it is e. It reports whether the
// removal happened, i.e. whether the caller still owned e.
func (r *Registry) RemoveIf(id string, e *Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries[id]; !ok || cur != e {
		return false
	}

	delete(r.entries, id)

	return true
}

// closeInput closes the Entry's input Queue, if it has one, and returns the
// number of chunks that were still waiting to be written.
func (e *Entry) closeInput() int {
	if e.Input == nil {
		return 0
	}

	pending := e.Input.Len()
	e.Input.Close()

	return pending
}

// Input returns the input Queue for id.
func (r *Registry) Input(id string) (*stream.Queue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.Input == nil {
		return nil, false
	}

	return e.Input, true
}

// Has reports whether an Entry exists for id.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[id]

	return ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Sorted(maps.Keys(r.entries))
}

// Drain removes and returns every Entry.
func (r *Registry) Drain() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := slices.Collect(maps.Values(r.entries))
	clear(r.entries)

	return entries
}
