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

package reduce

import (
	"github.com/pkg/errors"

	"github.com/gx-org/popfuse/graph"
)

// ComputeSetList hands out the compute sets of a reduction in order.
// Copies of a list share its compute sets but have their own position, so
// that reductions on different tiles share the compute sets of a stage.
type ComputeSetList struct {
	css *[]*graph.ComputeSet
	pos int
}

// NewComputeSetList returns an empty list.
func NewComputeSetList() ComputeSetList {
	return ComputeSetList{css: new([]*graph.ComputeSet)}
}

// Add returns the compute set at the current position and moves to the
// next one. A compute set is added to the graph if there is none.
func (l *ComputeSetList) Add(g *graph.Graph, name string) *graph.ComputeSet {
	if l.pos == len(*l.css) {
		*l.css = append(*l.css, g.AddComputeSet(name))
	}
	cs := (*l.css)[l.pos]
	l.pos++
	return cs
}

// Pos returns the current position.
func (l *ComputeSetList) Pos() int {
	return l.pos
}

// SetPos moves to a position. The position cannot be past the end of the list.
func (l *ComputeSetList) SetPos(pos int) error {
	if pos < 0 || pos > len(*l.css) {
		return errors.Errorf("position %d out of range: %d compute set(s) in the list", pos, len(*l.css))
	}
	l.pos = pos
	return nil
}

// ComputeSets returns all the compute sets of the list.
func (l *ComputeSetList) ComputeSets() []*graph.ComputeSet {
	return *l.css
}

// Schedule appends the execution of all the compute sets to a sequence.
func (l *ComputeSetList) Schedule(prog *graph.Sequence) {
	for _, cs := range *l.css {
		prog.Add(&graph.Execute{CS: cs})
	}
}
