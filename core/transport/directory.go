// Package transport holds helpers shared by chat transports whose native
// conversation handles are not integers.
package transport

import "sync"

// Directory assigns stable int64 conversation ids to transport handles such
// as Keybase channel names or Matrix room ids. Ids start at 1 and are never
// reused during the process lifetime.
type Directory[K comparable] struct {
	mu   sync.RWMutex
	next int64
	ids  map[K]int64
	keys map[int64]K
}

// NewDirectory returns an empty directory.
func NewDirectory[K comparable]() *Directory[K] {
	return &Directory[K]{
		ids:  make(map[K]int64),
		keys: make(map[int64]K),
	}
}

// ID returns the id for key, assigning a new one on first sight.
func (d *Directory[K]) ID(key K) int64 {
	d.mu.RLock()
	id, ok := d.ids[key]
	d.mu.RUnlock()
	if ok {
		return id
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.ids[key]; ok {
		return id
	}
	d.next++
	d.ids[key] = d.next
	d.keys[d.next] = key
	return d.next
}

// Key resolves an id back to its handle.
func (d *Directory[K]) Key(id int64) (K, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	k, ok := d.keys[id]
	return k, ok
}

// Len reports how many handles are known.
func (d *Directory[K]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.ids)
}
