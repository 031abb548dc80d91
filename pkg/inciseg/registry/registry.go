package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cognicore/inciseg/pkg/inciseg/internalerr"
)

// Entry is one registered ingredient name.
type Entry struct {
	ID   int64
	Name string
}

// Registry maps case-insensitive ingredient names to stable ids.
//
// Ids are allocated from a monotonic counter that starts at the largest id
// already present, so they are never reused or renumbered. The registry is
// safe for concurrent use; Merge holds one lock across lookup and insert.
type Registry struct {
	mu      sync.Mutex
	byName  map[string]int64 // lower-cased name -> id
	entries []Entry          // insertion order
	lastID  int64
	loaded  int // entries present before the first insert
}

// New creates an empty registry. The first allocated id is 1.
func New() *Registry {
	return &Registry{byName: make(map[string]int64)}
}

// FromEntries builds a registry from persisted entries, keeping their order.
// Non-positive ids, duplicate ids and duplicate names are rejected: allocating
// on top of an inconsistent registry could hand one id to two names.
func FromEntries(entries []Entry) (*Registry, error) {
	r := New()
	ids := make(map[int64]struct{}, len(entries))

	for i, e := range entries {
		if e.ID <= 0 {
			return nil, fmt.Errorf("%w: ingredient #%d (%q) has id %d", internalerr.ErrInvalidInput, i, e.Name, e.ID)
		}
		if _, ok := ids[e.ID]; ok {
			return nil, fmt.Errorf("%w: ingredient id %d", internalerr.ErrDuplicate, e.ID)
		}
		key := strings.ToLower(e.Name)
		if prev, ok := r.byName[key]; ok {
			return nil, fmt.Errorf("%w: ingredient name %q (ids %d and %d)", internalerr.ErrDuplicate, e.Name, prev, e.ID)
		}

		ids[e.ID] = struct{}{}
		r.byName[key] = e.ID
		r.entries = append(r.entries, e)
		if e.ID > r.lastID {
			r.lastID = e.ID
		}
	}
	r.loaded = len(r.entries)
	return r, nil
}

// Merge returns one id per candidate, in order, registering unseen names.
// Lookup is exact after lower-casing; a new name keeps its original spelling.
func (r *Registry) Merge(candidates []string) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(candidates))
	for _, name := range candidates {
		ids = append(ids, r.lookupOrInsert(name))
	}
	return ids
}

func (r *Registry) lookupOrInsert(name string) int64 {
	key := strings.ToLower(name)
	if id, ok := r.byName[key]; ok {
		return id
	}
	r.lastID++
	r.byName[key] = r.lastID
	r.entries = append(r.entries, Entry{ID: r.lastID, Name: name})
	return r.lastID
}

// Lookup returns the id registered for name, ignoring case.
func (r *Registry) Lookup(name string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byName[strings.ToLower(name)]
	return id, ok
}

// Entries returns all entries in insertion order.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Added returns the entries inserted since the registry was built.
func (r *Registry) Added() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries)-r.loaded)
	copy(out, r.entries[r.loaded:])
	return out
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// MaxID returns the largest id allocated so far, 0 for an empty registry.
func (r *Registry) MaxID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastID
}
