package ordered

import (
	"iter"
	"slices"
)

// Set is a set iterating over its elements in insertion order.
type Set[K comparable] struct {
	m *Map[K, struct{}]
}

// NewSet returns a set of elements.
func NewSet[K comparable](elements ...K) *Set[K] {
	s := &Set[K]{m: NewMap[K, struct{}]()}
	for _, el := range elements {
		s.Add(el)
	}
	return s
}

// Add an element. Adding an element already in the set does not change its order.
func (s *Set[K]) Add(k K) {
	s.m.Store(k, struct{}{})
}

// Contains returns true if an element is in the set.
func (s *Set[K]) Contains(k K) bool {
	_, ok := s.m.Load(k)
	return ok
}

// All iterates over the elements of the set.
func (s *Set[K]) All() iter.Seq[K] {
	return s.m.Keys()
}

// Slice returns the elements of the set in insertion order.
func (s *Set[K]) Slice() []K {
	return slices.Collect(s.All())
}

// Len returns the number of elements.
func (s *Set[K]) Len() int {
	return s.m.Len()
}
