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

// Package graph models the dataflow graph of a tiled device.
//
// A graph owns variables mapped onto tiles, a registry of codelets,
// compute sets of vertices and the connections between vertex fields
// and tensors. Programs built on a graph can be executed on the host
// by an Engine.
package graph

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/gx-org/popfuse/base/ordered"
	gsync "github.com/gx-org/popfuse/base/sync"
	"github.com/gx-org/popfuse/base/uname"
	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/kernels"
	"github.com/gx-org/popfuse/target"
)

type (
	variable struct {
		name  string
		typ   elem.Type
		shape []int
		// tiles maps every element to a tile (-1 if the element is not mapped).
		tiles []int
		// init is the value of a constant variable.
		init kernels.Array
	}

	// Graph is a dataflow graph of a tiled device.
	Graph struct {
		target      target.Target
		names       *uname.Unique
		vars        []*variable
		codelets    gsync.Map[string, *Codelet]
		computeSets []*ComputeSet
	}
)

// New returns a new graph for a target.
func New(tgt target.Target) (*Graph, error) {
	if err := tgt.Validate(); err != nil {
		return nil, err
	}
	return &Graph{target: tgt, names: uname.New()}, nil
}

// Target returns the device description of the graph.
func (g *Graph) Target() target.Target {
	return g.target
}

// AddVariable adds a variable to the graph and returns a tensor over all its elements.
// The variable is not mapped to any tile.
func (g *Graph) AddVariable(typ elem.Type, shape []int, name string) Tensor {
	v := &variable{
		name:  g.names.Name(name),
		typ:   typ,
		shape: append([]int{}, shape...),
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	v.tiles = make([]int, n)
	for i := range v.tiles {
		v.tiles[i] = -1
	}
	id := VariableID(len(g.vars))
	g.vars = append(g.vars, v)
	return newTensor(typ, shape, []segment{{v: id, Interval: Interval{Begin: 0, End: n}}})
}

// AddConstant adds a constant variable initialized with a value.
// The constant is mapped to a tile.
func (g *Graph) AddConstant(value kernels.Array, shape []int, name string, tile int) (Tensor, error) {
	t := g.AddVariable(value.Type(), shape, name)
	if t.NumElements() != value.Len() {
		return Tensor{}, errors.Errorf("constant %s: shape %v requires %d elements but got %d", name, shape, t.NumElements(), value.Len())
	}
	g.vars[t.segs[0].v].init = value
	if err := g.SetTileMapping(t, tile); err != nil {
		return Tensor{}, err
	}
	return t, nil
}

// VariableName returns the unique name of the variable of a tensor.
func (g *Graph) VariableName(id VariableID) string {
	return g.vars[id].name
}

// NumVariables returns the number of variables in the graph.
func (g *Graph) NumVariables() int {
	return len(g.vars)
}

// IsParallelWriteable returns true if the tensor can be written by
// several workers in parallel, that is if it is not a constant and
// no element appears twice in the view.
func (g *Graph) IsParallelWriteable(t Tensor) bool {
	for _, s := range t.segs {
		if g.vars[s.v].init != nil {
			return false
		}
	}
	return !t.selfOverlaps()
}

// IsConstant returns true if all elements of the tensor belong to constants.
func (g *Graph) IsConstant(t Tensor) bool {
	for _, s := range t.segs {
		if g.vars[s.v].init == nil {
			return false
		}
	}
	return true
}

func (g *Graph) checkTile(tile int) error {
	if tile < 0 || tile >= g.target.NumTiles {
		return errors.Errorf("tile %d out of range: the target has %d tiles", tile, g.target.NumTiles)
	}
	return nil
}

// SetTileMapping maps all elements of a tensor to a tile.
func (g *Graph) SetTileMapping(t Tensor, tile int) error {
	if err := g.checkTile(tile); err != nil {
		return err
	}
	t.element(func(_ int, v VariableID, e int) {
		g.vars[v].tiles[e] = tile
	})
	return nil
}

// SetTileMappingIntervals maps intervals of the flattened tensor to tiles.
// mapping[tile] lists the intervals mapped to the tile.
func (g *Graph) SetTileMappingIntervals(t Tensor, mapping [][]Interval) error {
	if len(mapping) > g.target.NumTiles {
		return errors.Errorf("mapping over %d tiles but the target has %d tiles", len(mapping), g.target.NumTiles)
	}
	for tile, intervals := range mapping {
		for _, iv := range intervals {
			if iv.Begin < 0 || iv.End > t.NumElements() || iv.End < iv.Begin {
				return errors.Errorf("interval %s out of range for a tensor of %d elements", iv, t.NumElements())
			}
			if err := g.SetTileMapping(t.Slice(iv.Begin, iv.End), tile); err != nil {
				return err
			}
		}
	}
	return nil
}

// MapLinearly spreads the elements of a tensor evenly over the tiles
// in chunks that are multiples of a grain size.
func (g *Graph) MapLinearly(t Tensor, grain int) error {
	grain = max(grain, 1)
	n := t.NumElements()
	numGrains := (n + grain - 1) / grain
	perTile := (numGrains + g.target.NumTiles - 1) / g.target.NumTiles * grain
	if perTile == 0 {
		return nil
	}
	for tile, begin := 0, 0; begin < n; tile, begin = tile+1, begin+perTile {
		if err := g.SetTileMapping(t.Slice(begin, min(begin+perTile, n)), tile); err != nil {
			return err
		}
	}
	return nil
}

// TileMapping returns, for every tile, the intervals of the flattened
// tensor mapped to the tile. Unmapped elements are an error.
func (g *Graph) TileMapping(t Tensor) ([][]Interval, error) {
	mapping := make([][]Interval, g.target.NumTiles)
	var err error
	t.element(func(i int, v VariableID, e int) {
		tile := g.vars[v].tiles[e]
		if tile < 0 {
			if err == nil {
				err = errors.Errorf("element %d of variable %s is not mapped to a tile", e, g.vars[v].name)
			}
			return
		}
		ivs := mapping[tile]
		if n := len(ivs); n > 0 && ivs[n-1].End == i {
			ivs[n-1].End++
			return
		}
		mapping[tile] = append(ivs, Interval{Begin: i, End: i + 1})
	})
	if err != nil {
		return nil, err
	}
	return mapping, nil
}

// ContiguousRegionsByTile returns, for every tile, the regions of the
// flattened tensor stored contiguously in memory on the tile.
// Regions are sorted by memory address. A region is a list of tensor
// intervals which are consecutive in memory.
func (g *Graph) ContiguousRegionsByTile(t Tensor) ([][][]Interval, error) {
	type ref struct {
		i int
		v VariableID
		e int
	}
	perTile := make([][]ref, g.target.NumTiles)
	var err error
	t.element(func(i int, v VariableID, e int) {
		tile := g.vars[v].tiles[e]
		if tile < 0 {
			if err == nil {
				err = errors.Errorf("element %d of variable %s is not mapped to a tile", e, g.vars[v].name)
			}
			return
		}
		perTile[tile] = append(perTile[tile], ref{i: i, v: v, e: e})
	})
	if err != nil {
		return nil, err
	}
	regions := make([][][]Interval, g.target.NumTiles)
	for tile, refs := range perTile {
		sort.SliceStable(refs, func(a, b int) bool {
			if refs[a].v != refs[b].v {
				return refs[a].v < refs[b].v
			}
			return refs[a].e < refs[b].e
		})
		var region []Interval
		for j, r := range refs {
			if j > 0 && (refs[j-1].v != r.v || refs[j-1].e+1 != r.e) {
				regions[tile] = append(regions[tile], region)
				region = nil
			}
			if n := len(region); n > 0 && region[n-1].End == r.i {
				region[n-1].End++
			} else {
				region = append(region, Interval{Begin: r.i, End: r.i + 1})
			}
		}
		if region != nil {
			regions[tile] = append(regions[tile], region)
		}
	}
	return regions, nil
}

// HasCodelet returns true if a codelet has been registered with a name.
func (g *Graph) HasCodelet(name string) bool {
	return g.codelets.Has(name)
}

// AddCodelet registers a codelet if no codelet with the same name exists.
// It returns false if a codelet was already registered with that name,
// in which case the graph is left unchanged.
// Registration is atomic: concurrent calls register a codelet at most once.
func (g *Graph) AddCodelet(c *Codelet) bool {
	_, loaded := g.codelets.LoadOrStore(c.Name, c)
	return !loaded
}

// Codelet returns the codelet registered with a name.
func (g *Graph) Codelet(name string) (*Codelet, bool) {
	return g.codelets.Load(name)
}

// Codelets returns the names of all registered codelets, sorted.
func (g *Graph) Codelets() []string {
	return g.codelets.SortedKeys(func(a, b string) bool { return a < b })
}

// AddComputeSet adds an empty compute set to the graph.
func (g *Graph) AddComputeSet(name string) *ComputeSet {
	cs := &ComputeSet{
		id:   len(g.computeSets),
		name: g.names.Name(name),
	}
	g.computeSets = append(g.computeSets, cs)
	return cs
}

// AddVertex adds a vertex running a registered codelet to a compute set.
func (g *Graph) AddVertex(cs *ComputeSet, codelet string) (*Vertex, error) {
	c, ok := g.Codelet(codelet)
	if !ok {
		return nil, errors.Errorf("codelet %q has not been registered", codelet)
	}
	v := &Vertex{
		codelet: c,
		tile:    -1,
		fields:  ordered.NewMap[string, []Tensor](),
		values:  make(map[string]any),
	}
	cs.vertices = append(cs.vertices, v)
	return v, nil
}

// Connect connects a tensor to a field of a vertex.
// Connecting a field more than once makes it a vector of tensors.
func (g *Graph) Connect(v *Vertex, field string, t Tensor) {
	v.fields.Update(field, func(ts []Tensor) []Tensor { return append(ts, t) })
}

// SetVertexTile places a vertex on a tile.
func (g *Graph) SetVertexTile(v *Vertex, tile int) error {
	if err := g.checkTile(tile); err != nil {
		return err
	}
	v.tile = tile
	return nil
}

// SetCycleEstimate sets the estimated number of cycles of a vertex.
func (g *Graph) SetCycleEstimate(v *Vertex, cycles uint64) {
	v.cycles = cycles
}

// SetInitialValue sets the value of a non-tensor field of a vertex.
func (g *Graph) SetInitialValue(v *Vertex, field string, value any) {
	v.values[field] = value
}

// MapLike maps every element of dst to the tile of the element of src
// with the same index in the flattened views.
func (g *Graph) MapLike(dst, src Tensor) error {
	if dst.NumElements() != src.NumElements() {
		return errors.Errorf("cannot map %d element(s) like %d element(s)", dst.NumElements(), src.NumElements())
	}
	tiles := make([]int, 0, src.NumElements())
	var err error
	src.element(func(_ int, v VariableID, e int) {
		tile := g.vars[v].tiles[e]
		if tile < 0 && err == nil {
			err = errors.Errorf("element %d of variable %s is not mapped to a tile", e, g.vars[v].name)
		}
		tiles = append(tiles, tile)
	})
	if err != nil {
		return err
	}
	dst.element(func(i int, v VariableID, e int) {
		g.vars[v].tiles[e] = tiles[i]
	})
	return nil
}

// SimplifyingOrder returns an order of the elements of a tensor, as
// intervals of its flattened view, such that elements are grouped by
// tile and sorted by memory address. Applying the same order to tensors
// used together keeps their elements in correspondence while reducing
// the number of contiguous regions on each tile.
func (g *Graph) SimplifyingOrder(t Tensor) ([]Interval, error) {
	type ref struct {
		i, tile int
		v       VariableID
		e       int
	}
	refs := make([]ref, 0, t.NumElements())
	var err error
	t.element(func(i int, v VariableID, e int) {
		tile := g.vars[v].tiles[e]
		if tile < 0 && err == nil {
			err = errors.Errorf("element %d of variable %s is not mapped to a tile", e, g.vars[v].name)
		}
		refs = append(refs, ref{i: i, tile: tile, v: v, e: e})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(refs, func(a, b int) bool {
		ra, rb := refs[a], refs[b]
		if ra.tile != rb.tile {
			return ra.tile < rb.tile
		}
		if ra.v != rb.v {
			return ra.v < rb.v
		}
		return ra.e < rb.e
	})
	var order []Interval
	for _, r := range refs {
		if n := len(order); n > 0 && order[n-1].End == r.i {
			order[n-1].End++
			continue
		}
		order = append(order, Interval{Begin: r.i, End: r.i + 1})
	}
	return order, nil
}
