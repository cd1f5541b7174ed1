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

	"github.com/gx-org/popfuse/kernels"
)

// Engine executes the programs of a graph on the host.
// Variables are stored in their device representation.
type Engine struct {
	g   *Graph
	mem [][]byte
}

// NewEngine returns an engine with zero-initialized variables.
// Constants are initialized with their value.
func NewEngine(g *Graph) *Engine {
	return &Engine{g: g}
}

func (e *Engine) memory(id VariableID) []byte {
	for len(e.mem) < len(e.g.vars) {
		v := e.g.vars[len(e.mem)]
		var buf []byte
		if v.init != nil {
			buf = v.init.Buffer()
		} else {
			buf = make([]byte, len(v.tiles)*v.typ.Size())
		}
		e.mem = append(e.mem, buf)
	}
	return e.mem[id]
}

// Write host values into the elements of a tensor.
func (e *Engine) Write(t Tensor, a kernels.Array) error {
	if t.NumElements() != a.Len() || t.Type() != a.Type() {
		return errors.Errorf("cannot write %d %s element(s) into a tensor of %d %s element(s)", a.Len(), a.Type(), t.NumElements(), t.Type())
	}
	src := a.Buffer()
	size := t.Type().Size()
	t.element(func(i int, v VariableID, el int) {
		copy(e.memory(v)[el*size:(el+1)*size], src[i*size:(i+1)*size])
	})
	return nil
}

// Read the elements of a tensor.
func (e *Engine) Read(t Tensor) (kernels.Array, error) {
	size := t.Type().Size()
	buf := make([]byte, 0, t.NumElements()*size)
	for _, s := range t.segs {
		buf = append(buf, e.memory(s.v)[s.Begin*size:s.End*size]...)
	}
	return kernels.NewArrayFromRaw(t.Type(), buf)
}

// Run a program.
func (e *Engine) Run(p Program) error {
	return p.run(e)
}

func (e *Engine) runVertex(v *Vertex) error {
	if v.codelet.Impl == nil {
		return errors.Errorf("codelet %s has no host implementation", v.codelet.Name)
	}
	state := &VertexState{
		vertex:  v,
		inputs:  make(map[string][]kernels.Array),
		outputs: make(map[string]map[int]kernels.Array),
	}
	for field, ts := range v.fields.All() {
		for _, t := range ts {
			a, err := e.Read(t)
			if err != nil {
				return err
			}
			state.inputs[field] = append(state.inputs[field], a)
		}
	}
	if err := v.codelet.Impl(state); err != nil {
		return errors.WithMessagef(err, "codelet %s on tile %d", v.codelet.Name, v.tile)
	}
	for field, outs := range state.outputs {
		ts := v.Field(field)
		for i, a := range outs {
			if err := e.Write(ts[i], a); err != nil {
				return err
			}
		}
	}
	return nil
}
