// Package session holds the per-user workbench state: which dataset is
// active, what the user did, and where they are in the UI.
package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/starford/autods/internal/apperr"
	"github.com/starford/autods/internal/frame"
)

// Entry is the last-touched state of one logical dataset.
type Entry struct {
	Name      string
	ID        string
	Path      string
	Frame     *frame.Frame
	UpdatedAt time.Time
}

// Registry maps logical dataset names to their latest snapshot and tracks
// which one is active. It is not safe for concurrent use on its own;
// Session guards it.
type Registry struct {
	entries map[string]Entry
	active  string
}

// NewRegistry returns an empty registry with nothing active.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Record stores the result of a save and makes it the active dataset.
func (r *Registry) Record(name, id, path string, f *frame.Frame) Entry {
	e := Entry{Name: name, ID: id, Path: path, Frame: f, UpdatedAt: time.Now()}
	r.entries[name] = e
	r.active = name
	return e
}

// Forget drops every entry that points at id. If the active dataset pointed
// at it, nothing is active afterwards. It reports whether anything changed.
func (r *Registry) Forget(id string) bool {
	changed := false
	for name, e := range r.entries {
		if e.ID != id {
			continue
		}
		delete(r.entries, name)
		if r.active == name {
			r.active = ""
		}
		changed = true
	}
	return changed
}

// Select switches the active pointer to name without touching disk.
func (r *Registry) Select(name string) (Entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("session: dataset %q: %w", name, apperr.ErrNotFound)
	}
	r.active = name
	return e, nil
}

// Active returns the active entry, if any.
func (r *Registry) Active() (Entry, bool) {
	if r.active == "" {
		return Entry{}, false
	}
	e, ok := r.entries[r.active]
	return e, ok
}

// Datasets returns all entries sorted by name.
func (r *Registry) Datasets() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
