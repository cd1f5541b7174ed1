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

// Package dispatch distributes the elements of the operands of a codelet
// between the workers of every tile.
package dispatch

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/gx-org/popfuse/codegen/emit"
	"github.com/gx-org/popfuse/cycles"
	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/graph"
)

// Request describes the execution of an element-wise codelet.
type Request struct {
	// Codelet is the name of a registered codelet.
	Codelet string
	// Name of the compute set executing the codelet.
	Name string
	// Operands connected to the in1, in2, ... fields of the codelet.
	Operands []graph.Tensor
	// InPlace is true if the result is written into the first operand.
	InPlace bool
	// OutputType is the element type of the result.
	OutputType elem.Type
	// VectorWidth is the number of elements processed by one vector iteration.
	VectorWidth int
	// NumFusedOps is the number of operators computed for every element.
	NumFusedOps int
}

// SplitRegions partitions the intervals of a list of regions into groups.
// The number of groups is at most numPartitions, reduced so that a group has
// at least minPerPartition elements, and raised so that a group has at most
// maxPerPartition elements. Groups are cut at multiples of grain elements.
// A zero bound is ignored.
func SplitRegions(regions [][]graph.Interval, grain, minPerPartition, maxPerPartition, numPartitions int) [][]graph.Interval {
	grain = max(grain, 1)
	total := lo.SumBy(lo.Flatten(regions), graph.Interval.Size)
	if total == 0 {
		return nil
	}
	numGrains := (total + grain - 1) / grain
	parts := min(max(numPartitions, 1), numGrains)
	if minPerPartition > 0 {
		parts = min(parts, max(1, total/minPerPartition))
	}
	if maxPerPartition > 0 {
		parts = max(parts, (total+maxPerPartition-1)/maxPerPartition)
	}
	perPart := (numGrains + parts - 1) / parts * grain

	var (
		r       [][]graph.Interval
		current []graph.Interval
		size    int
	)
	for _, region := range regions {
		for _, iv := range region {
			for iv.Size() > 0 {
				take := min(iv.Size(), perPart-size)
				piece := graph.Interval{Begin: iv.Begin, End: iv.Begin + take}
				if n := len(current); n > 0 && current[n-1].End == piece.Begin {
					current[n-1].End = piece.End
				} else {
					current = append(current, piece)
				}
				size += take
				iv.Begin += take
				if size == perPart {
					r = append(r, current)
					current, size = nil, 0
				}
			}
		}
	}
	if current != nil {
		r = append(r, current)
	}
	return r
}

// Dispatch creates the vertices executing a codelet over its operands
// and appends their execution to a program. It returns the tensor
// receiving the result: the first operand if the codelet runs in place,
// or a new tensor mapped like the first non-scalar operand otherwise.
func Dispatch(g *graph.Graph, prog *graph.Sequence, req Request) (graph.Tensor, error) {
	if len(req.Operands) == 0 {
		return graph.Tensor{}, errors.Errorf("codelet %s: no operand to dispatch", req.Codelet)
	}
	views := make([]graph.Tensor, len(req.Operands))
	ref := -1
	for i, op := range req.Operands {
		views[i] = op.Flatten()
		if ref < 0 && !views[i].IsScalar() {
			ref = i
		}
	}
	var out, outView graph.Tensor
	switch {
	case req.InPlace:
		out, outView = req.Operands[0], views[0]
	case ref < 0:
		out = g.AddVariable(req.OutputType, nil, req.Name+"/out")
		outView = out.Flatten()
		if err := g.MapLike(outView, views[0]); err != nil {
			return graph.Tensor{}, err
		}
	default:
		order, err := g.SimplifyingOrder(views[ref])
		if err != nil {
			return graph.Tensor{}, err
		}
		out = g.AddVariable(req.OutputType, req.Operands[ref].Shape(), req.Name+"/out")
		if err := g.MapLike(out.Flatten(), views[ref]); err != nil {
			return graph.Tensor{}, err
		}
		outView = out.Flatten().Slices(order)
		for i, view := range views {
			if !view.IsScalar() {
				views[i] = view.Slices(order)
			}
		}
	}
	regions, err := g.ContiguousRegionsByTile(outView)
	if err != nil {
		return graph.Tensor{}, err
	}
	tgt := g.Target()
	vw := max(req.VectorWidth, 1)
	grain := max(vw, tgt.AtomicStoreElements(req.OutputType))
	cs := g.AddComputeSet(req.Name)
	for tile, tileRegions := range regions {
		for _, part := range SplitRegions(tileRegions, grain, 2*grain, tgt.RptCountMax*vw, tgt.NumWorkers) {
			v, err := g.AddVertex(cs, req.Codelet)
			if err != nil {
				return graph.Tensor{}, err
			}
			for i, view := range views {
				if view.IsScalar() {
					g.Connect(v, emit.InputField(i), view)
					continue
				}
				g.Connect(v, emit.InputField(i), view.Slices(part))
			}
			if !req.InPlace {
				g.Connect(v, emit.OutputField(false), outView.Slices(part))
			}
			if err := g.SetVertexTile(v, tile); err != nil {
				return graph.Tensor{}, err
			}
			n := 0
			for _, iv := range part {
				n += iv.Size()
			}
			g.SetCycleEstimate(v, cycles.FusedCodelet(n, vw, req.NumFusedOps, len(views)))
		}
	}
	prog.Add(&graph.Execute{CS: cs})
	return out, nil
}
