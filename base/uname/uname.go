// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package uname provides unique names for the objects of a graph.
package uname

import (
	"fmt"
	"sync"
)

// Unique generates unique names.
// It is safe to call from multiple goroutines.
type Unique struct {
	mu    sync.Mutex
	taken map[string]bool
	next  map[string]int
}

// New name generator.
func New() *Unique {
	return &Unique{
		taken: make(map[string]bool),
		next:  make(map[string]int),
	}
}

// Register reserves a name. It returns false if the name was already taken.
func (n *Unique) Register(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.taken[name] {
		return false
	}
	n.taken[name] = true
	return true
}

// Name returns a unique name given a desired base name.
// If the base name is available, it is returned directly.
// Else, the first available suffix _1, _2, ... is appended.
func (n *Unique) Name(root string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	name := root
	for n.taken[name] {
		n.next[root]++
		name = fmt.Sprintf("%s_%d", root, n.next[root])
	}
	n.taken[name] = true
	return name
}
