// Package lock serialises mutating operations per entity. Status
// transitions read, validate, and write in separate steps, so two
// concurrent requests against the same entity must not interleave.
package lock

import (
	"sync"
)

// Keyed hands out one mutex per key. Entries are reference counted and
// removed when the last holder releases, so the table stays bounded by
// the number of entities currently being mutated.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty lock table.
func New() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock blocks until the key's mutex is held and returns the unlock
// function. Callers defer the returned function.
func (k *Keyed) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// LockEntity locks the (entityType, id) pair.
func (k *Keyed) LockEntity(entityType, id string) func() {
	return k.Lock(entityType + "/" + id)
}

// Len reports the number of live entries. Used by tests to check that
// released keys are cleaned up.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
