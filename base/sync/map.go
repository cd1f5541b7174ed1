// Package sync provides typed wrappers around the standard sync package.
package sync

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Map is a generic synchronized map with atomic insert-if-absent.
// Entries are never removed: the map only grows.
type Map[K comparable, V any] struct {
	m    sync.Map
	size atomic.Int64
}

// Load returns the value stored for a key and whether it was present.
func (sm *Map[K, V]) Load(k K) (v V, ok bool) {
	vAny, ok := sm.m.Load(k)
	if !ok {
		return
	}
	return vAny.(V), true
}

// Has returns true if a value has been stored for a key.
func (sm *Map[K, V]) Has(k K) bool {
	_, ok := sm.m.Load(k)
	return ok
}

// LoadOrStore returns the existing value for the key if present.
// Otherwise, it stores and returns the given value.
// The loaded result is true if the value was loaded, false if stored.
// The check and the insertion are a single atomic operation.
func (sm *Map[K, V]) LoadOrStore(k K, v V) (actual V, loaded bool) {
	vAny, loaded := sm.m.LoadOrStore(k, v)
	if !loaded {
		sm.size.Add(1)
	}
	return vAny.(V), loaded
}

// Size returns the number of elements in the map.
func (sm *Map[K, V]) Size() int {
	return int(sm.size.Load())
}

// Iter returns an iterator to range over the elements of the map.
// The order is not specified.
func (sm *Map[K, V]) Iter() func(func(K, V) bool) {
	return func(yield func(K, V) bool) {
		sm.m.Range(func(k, v any) bool {
			return yield(k.(K), v.(V))
		})
	}
}

// SortedKeys returns the keys of the map sorted with a less function.
func (sm *Map[K, V]) SortedKeys(less func(a, b K) bool) []K {
	var keys []K
	for k := range sm.Iter() {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}
