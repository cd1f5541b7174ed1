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

package graph

import (
	"github.com/pkg/errors"

	"github.com/gx-org/popfuse/base/ordered"
	"github.com/gx-org/popfuse/kernels"
)

type (
	// Impl computes the outputs of a vertex on the host.
	Impl func(*VertexState) error

	// Codelet is a unit of compute logic executed by vertices.
	Codelet struct {
		// Name of the codelet. Names are unique in a graph.
		Name string
		// Source of the codelet for the device.
		// Empty for codelets provided by the runtime.
		Source string
		// Impl executes the codelet on the host.
		Impl Impl
	}

	// ComputeSet is a set of vertices executed in parallel.
	ComputeSet struct {
		id       int
		name     string
		vertices []*Vertex
	}

	// Vertex is an instance of a codelet connected to tensors.
	Vertex struct {
		codelet *Codelet
		tile    int
		cycles  uint64
		fields  *ordered.Map[string, []Tensor]
		values  map[string]any
	}
)

// Name of the compute set.
func (cs *ComputeSet) Name() string {
	return cs.name
}

// Vertices returns the vertices of the compute set.
func (cs *ComputeSet) Vertices() []*Vertex {
	return cs.vertices
}

// CycleEstimate returns the estimated number of cycles of the compute set,
// that is the maximum over all tiles of the sum of the vertex estimates.
func (cs *ComputeSet) CycleEstimate() uint64 {
	perTile := make(map[int]uint64)
	var r uint64
	for _, v := range cs.vertices {
		perTile[v.tile] += v.cycles
		r = max(r, perTile[v.tile])
	}
	return r
}

// Codelet returns the codelet run by the vertex.
func (v *Vertex) Codelet() *Codelet {
	return v.codelet
}

// Tile returns the tile of the vertex (-1 if the vertex has not been placed).
func (v *Vertex) Tile() int {
	return v.tile
}

// CycleEstimate returns the estimated number of cycles of the vertex.
func (v *Vertex) CycleEstimate() uint64 {
	return v.cycles
}

// Field returns the tensors connected to a field.
func (v *Vertex) Field(name string) []Tensor {
	ts, _ := v.fields.Load(name)
	return ts
}

// Fields returns the names of the connected fields in connection order.
func (v *Vertex) Fields() []string {
	var names []string
	for name := range v.fields.Keys() {
		names = append(names, name)
	}
	return names
}

// Value returns the initial value of a field.
func (v *Vertex) Value(name string) (any, bool) {
	val, ok := v.values[name]
	return val, ok
}

// VertexState is the state of a vertex when it is executed on the host.
type VertexState struct {
	vertex  *Vertex
	inputs  map[string][]kernels.Array
	outputs map[string]map[int]kernels.Array
}

// Vertex returns the vertex being executed.
func (s *VertexState) Vertex() *Vertex {
	return s.vertex
}

// Input returns the value of a field connected to a single tensor.
func (s *VertexState) Input(field string) (kernels.Array, error) {
	vals := s.inputs[field]
	if len(vals) != 1 {
		return nil, errors.Errorf("codelet %s: field %s connected to %d tensor(s), not 1", s.vertex.codelet.Name, field, len(vals))
	}
	return vals[0], nil
}

// Inputs returns the values of all the tensors connected to a field.
func (s *VertexState) Inputs(field string) []kernels.Array {
	return s.inputs[field]
}

// Value returns the initial value of a field.
func (s *VertexState) Value(field string) (any, error) {
	val, ok := s.vertex.values[field]
	if !ok {
		return nil, errors.Errorf("codelet %s: field %s has no value", s.vertex.codelet.Name, field)
	}
	return val, nil
}

// Output writes the value of a field connected to a single tensor.
func (s *VertexState) Output(field string, a kernels.Array) error {
	return s.OutputAt(field, 0, a)
}

// OutputAt writes the value of the i-th tensor connected to a field.
func (s *VertexState) OutputAt(field string, i int, a kernels.Array) error {
	ts := s.vertex.Field(field)
	if i < 0 || i >= len(ts) {
		return errors.Errorf("codelet %s: no tensor %d connected to field %s", s.vertex.codelet.Name, i, field)
	}
	if ts[i].NumElements() != a.Len() || ts[i].Type() != a.Type() {
		return errors.Errorf("codelet %s: cannot write %d %s element(s) into field %s of %d %s element(s)", s.vertex.codelet.Name, a.Len(), a.Type(), field, ts[i].NumElements(), ts[i].Type())
	}
	if s.outputs[field] == nil {
		s.outputs[field] = make(map[int]kernels.Array)
	}
	s.outputs[field][i] = a
	return nil
}
