// Package roster tracks the names of users currently present in the room.
// Membership is unique and case-sensitive; every mutation is a single
// critical section, so concurrent joins with the same name can never both
// succeed.
package roster

import (
	"errors"
	"sync"
)

// ErrAlreadyPresent is returned by Join when the name is already a member.
var ErrAlreadyPresent = errors.New("roster: name already present")

// Roster is the set of present user names, kept in join order.
type Roster struct {
	mu    sync.RWMutex
	names []string
	index map[string]int // name -> position in names
}

// New creates an empty Roster.
func New() *Roster {
	return &Roster{index: make(map[string]int)}
}

// Join adds name, or returns ErrAlreadyPresent if it is already a member.
func (r *Roster) Join(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[name]; ok {
		return ErrAlreadyPresent
	}
	r.index[name] = len(r.names)
	r.names = append(r.names, name)
	return nil
}

// Leave removes name and reports whether it was present. Removing an absent
// name is a no-op.
func (r *Roster) Leave(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[name]
	if !ok {
		return false
	}
	copy(r.names[i:], r.names[i+1:])
	r.names = r.names[:len(r.names)-1]
	delete(r.index, name)
	for j := i; j < len(r.names); j++ {
		r.index[r.names[j]] = j
	}
	return true
}

// Contains reports whether name is currently present.
func (r *Roster) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[name]
	return ok
}

// Snapshot returns a copy of the current membership in join order. The
// returned slice is never nil and does not track later changes.
func (r *Roster) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of present users.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
