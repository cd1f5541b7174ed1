// Package ordered provides data structures iterating in insertion order.
package ordered

import "iter"

// Map is a map iterating over its entries in the order in which the keys
// have been first stored.
type Map[K comparable, V any] struct {
	keys []K
	m    map[K]V
}

// NewMap returns an empty map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V)}
}

// Store a value. Storing a key again keeps its position.
func (m *Map[K, V]) Store(k K, v V) {
	if _, in := m.m[k]; !in {
		m.keys = append(m.keys, k)
	}
	m.m[k] = v
}

// Update replaces the value of a key with the result of f.
// f receives the zero value if the key is not in the map.
func (m *Map[K, V]) Update(k K, f func(V) V) {
	m.Store(k, f(m.m[k]))
}

// Load returns the value of a key.
func (m *Map[K, V]) Load(k K) (V, bool) {
	v, ok := m.m[k]
	return v, ok
}

// All iterates over the entries of the map.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, k := range m.keys {
			if !yield(k, m.m[k]) {
				return
			}
		}
	}
}

// Keys iterates over the keys of the map.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for _, k := range m.keys {
			if !yield(k) {
				return
			}
		}
	}
}

// Len returns the number of keys.
func (m *Map[K, V]) Len() int {
	return len(m.keys)
}
