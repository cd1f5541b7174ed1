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
	"fmt"
	"slices"
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/graph"
	"github.com/gx-org/popfuse/target"
)

type (
	// PartialsPattern describes runs of elements of the same output column
	// within a contiguous region of a tile.
	PartialsPattern struct {
		// Length is the number of consecutive elements in a run.
		Length int
		// RegionOffset is the offset of the first run in the region.
		RegionOffset int
		// Stride is the distance between the beginning of two runs.
		// It is 0 if the pattern has a single run.
		Stride int
		// Repetitions is the number of runs.
		Repetitions int
		// RegionIdx is the index of the region on the tile.
		RegionIdx int
	}

	// PartialsDescription lists the patterns of the partials of a set of
	// output columns. When several columns share a description, the
	// partials of the columns are interleaved in the order of Columns.
	PartialsDescription struct {
		Columns  []int
		Patterns []PartialsPattern
	}

	// RegionReduction reduces partials into an output.
	// The element i of a partial is reduced into the element
	// i%Output.NumElements() of the output.
	RegionReduction struct {
		Output   graph.Tensor
		Partials []graph.Tensor
	}
)

func (p PartialsPattern) String() string {
	return fmt.Sprintf("{len:%d off:%d stride:%d reps:%d region:%d}", p.Length, p.RegionOffset, p.Stride, p.Repetitions, p.RegionIdx)
}

func (d PartialsDescription) clone() PartialsDescription {
	return PartialsDescription{
		Columns:  slices.Clone(d.Columns),
		Patterns: slices.Clone(d.Patterns),
	}
}

// elementRef locates an element in the regions of a tile.
type elementRef struct {
	region, offset int
}

// elementRefs returns, for every column, the references of its elements
// in the order they appear in the regions.
func elementRefs(regions [][]graph.Interval, numColumns int) [][]elementRef {
	refs := make([][]elementRef, numColumns)
	for r, region := range regions {
		offset := 0
		for _, iv := range region {
			for e := iv.Begin; e < iv.End; e++ {
				col := e % numColumns
				refs[col] = append(refs[col], elementRef{region: r, offset: offset})
				offset++
			}
		}
	}
	return refs
}

// patternBuilder detects the patterns of a column by following the edges
// of the signal "the element belongs to the column" along a region.
type patternBuilder struct {
	desc     *PartialsDescription
	colEnd   bool
	ref      int
	building bool
}

func (b *patternBuilder) last() *PartialsPattern {
	return &b.desc.Patterns[len(b.desc.Patterns)-1]
}

func (b *patternBuilder) push(p PartialsPattern) {
	b.desc.Patterns = append(b.desc.Patterns, p)
}

func (b *patternBuilder) start(refs []elementRef) {
	regionEnd := len(refs) == 1 || refs[0].region != refs[1].region
	first := 0
	if regionEnd {
		first = 1
	}
	b.push(PartialsPattern{
		Length:       first,
		RegionOffset: refs[0].offset,
		Repetitions:  first,
		RegionIdx:    refs[0].region,
	})
	b.ref = refs[0].offset
	b.colEnd = false
	b.building = !regionEnd
}

// update processes the element at an offset of a region.
// inColumn is true if the element belongs to the column.
func (b *patternBuilder) update(inColumn bool, region, offset int, regionEnd bool) {
	if inColumn && !b.building {
		b.ref = offset
		b.push(PartialsPattern{RegionOffset: offset, RegionIdx: region})
		b.colEnd = false
		b.building = true
	}
	if !b.building {
		return
	}
	length := offset - b.ref
	if !b.colEnd && !inColumn {
		// Falling edge: a run ends.
		switch p := b.last(); {
		case p.Length == 0:
			p.Length = length
		case p.Length != length:
			b.push(PartialsPattern{Length: length, RegionOffset: b.ref, RegionIdx: region})
		}
		b.colEnd = true
		b.last().Repetitions++
	}
	if inColumn && b.colEnd {
		// Rising edge: a run starts.
		b.colEnd = false
		switch p := b.last(); {
		case p.Stride == 0:
			p.Stride = length
		case p.Stride != length:
			b.push(PartialsPattern{RegionOffset: offset, RegionIdx: region})
		}
		b.ref = offset
		length = 0
	}
	if !regionEnd {
		return
	}
	if !b.colEnd {
		p := b.last()
		if p.Length != 0 {
			if p.Length == length+1 {
				p.Repetitions++
			} else {
				b.push(PartialsPattern{Length: length + 1, RegionOffset: b.ref, Repetitions: 1, RegionIdx: region})
			}
		}
		if p := b.last(); p.Length == 0 {
			p.Length = length + 1
			p.Repetitions = 1
		}
	}
	b.building = false
}

func (b *patternBuilder) gather(refs []elementRef) {
	b.start(refs)
	for j := 1; j < len(refs); j++ {
		prev, cur := refs[j-1], refs[j]
		newRegion := cur.region != prev.region
		if newRegion || cur.offset != prev.offset+1 {
			b.update(false, prev.region, prev.offset+1, newRegion)
			if !newRegion {
				b.update(false, cur.region, cur.offset-1, false)
			}
		}
		b.update(true, cur.region, cur.offset, j == len(refs)-1)
	}
}

// GatherPatterns finds the patterns of the partials of columns in the
// contiguous regions of a tile. The column of the element e of the
// flattened input is e%numColumns.
//
// Every description in descs requests the patterns of its first column.
// If descs is empty, a description is returned for every column found
// in the regions.
func GatherPatterns(descs []PartialsDescription, regions [][]graph.Interval, numColumns int) ([]PartialsDescription, error) {
	if numColumns <= 0 {
		return nil, errors.Errorf("invalid number of columns %d", numColumns)
	}
	detect := len(descs) == 0
	r := make([]PartialsDescription, len(descs))
	index := make(map[int]int, len(descs))
	for i, desc := range descs {
		if len(desc.Columns) == 0 {
			return nil, errors.Errorf("description %d has no column", i)
		}
		col := desc.Columns[0]
		if col < 0 || col >= numColumns {
			return nil, errors.Errorf("description %d: column %d out of range [0,%d)", i, col, numColumns)
		}
		if _, dup := index[col]; dup {
			return nil, errors.Errorf("description %d: column %d requested twice", i, col)
		}
		index[col] = i
		r[i] = desc.clone()
	}
	for col, refs := range elementRefs(regions, numColumns) {
		if len(refs) == 0 {
			continue
		}
		i, ok := index[col]
		if !ok {
			if !detect {
				continue
			}
			r = append(r, PartialsDescription{Columns: []int{col}})
			i = len(r) - 1
		}
		b := patternBuilder{desc: &r[i]}
		b.gather(refs)
	}
	return r, nil
}

func isAdjacent(base, next []PartialsPattern) bool {
	if len(base) != len(next) {
		return false
	}
	for i, a := range base {
		b := next[i]
		if a.RegionOffset+a.Length != b.RegionOffset ||
			a.Length != b.Length ||
			a.Stride != b.Stride ||
			a.Repetitions != b.Repetitions ||
			a.RegionIdx != b.RegionIdx {
			return false
		}
	}
	return true
}

// GroupPartials merges single column descriptions whose partials are
// adjacent in memory and follow the same patterns.
// Descriptions without patterns are dropped.
func GroupPartials(descs []PartialsDescription) []PartialsDescription {
	sorted := lo.Filter(descs, func(d PartialsDescription, _ int) bool {
		return len(d.Patterns) > 0 && len(d.Columns) > 0
	})
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Patterns[0].RegionOffset < sorted[j].Patterns[0].RegionOffset
	})
	grouped := make([]bool, len(sorted))
	var r []PartialsDescription
	for i, base := range sorted {
		if grouped[i] {
			continue
		}
		group := PartialsDescription{
			Columns:  []int{base.Columns[0]},
			Patterns: slices.Clone(base.Patterns),
		}
		cursor := slices.Clone(base.Patterns)
		for j := i + 1; j < len(sorted); j++ {
			if grouped[j] || !isAdjacent(cursor, sorted[j].Patterns) {
				continue
			}
			group.Columns = append(group.Columns, sorted[j].Columns[0])
			grouped[j] = true
			for k := range cursor {
				cursor[k].RegionOffset += cursor[k].Length
			}
		}
		r = append(r, group)
	}
	return r
}

// DividePartials splits groups of columns.
// Groups with runs longer than one element are split into one description
// per column. Groups are then split to balance the number of output
// elements between the workers of a tile.
func DividePartials(groups []PartialsDescription, tgt target.Target, op Op, t elem.Type) []PartialsDescription {
	var split []PartialsDescription
	for _, group := range groups {
		unitLength := lo.EveryBy(group.Patterns, func(p PartialsPattern) bool { return p.Length == 1 })
		if len(group.Columns) == 1 || unitLength {
			split = append(split, group.clone())
			continue
		}
		for j, col := range group.Columns {
			desc := PartialsDescription{Columns: []int{col}, Patterns: slices.Clone(group.Patterns)}
			for k := range desc.Patterns {
				desc.Patterns[k].RegionOffset += j * desc.Patterns[k].Length
			}
			split = append(split, desc)
		}
	}
	regions := lo.Map(split, func(d PartialsDescription, _ int) graph.Interval {
		return graph.Interval{Begin: d.Columns[0], End: d.Columns[0] + len(d.Columns)}
	})
	for _, region := range SplitOutputRegionsForWorkers(tgt, tgt.NumWorkers, op, t, regions) {
		// Only picked up when the columns of a group are consecutive.
		i := slices.IndexFunc(split, func(d PartialsDescription) bool {
			return d.Columns[0] == region.Begin
		})
		if i < 0 || len(split[i].Columns) <= region.Size() {
			continue
		}
		rest := PartialsDescription{
			Columns:  slices.Clone(split[i].Columns[region.Size():]),
			Patterns: slices.Clone(split[i].Patterns),
		}
		for k := range rest.Patterns {
			rest.Patterns[k].RegionOffset += region.Size()
		}
		split[i].Columns = split[i].Columns[:region.Size()]
		split = append(split, rest)
	}
	return split
}

func reductionGrain(tgt target.Target, op Op, t elem.Type) int {
	grain := max(tgt.VectorWidth(t), 1)
	if op == Add || op == SquareAdd {
		grain *= 2
	}
	return grain
}

// SplitOutputRegionsForWorkers splits output regions until there is one
// region per worker. The largest region is split first, at a multiple
// of the vector width of the type. Regions smaller than two grains are
// never split.
func SplitOutputRegionsForWorkers(tgt target.Target, numWorkers int, op Op, t elem.Type, regions []graph.Interval) []graph.Interval {
	grain := reductionGrain(tgt, op, t)
	r := slices.Clone(regions)
	for len(r) > 0 && len(r) < numWorkers {
		i := 0
		for j, iv := range r {
			if iv.Size() > r[i].Size() {
				i = j
			}
		}
		if r[i].Size() < 2*grain {
			break
		}
		iv := r[i]
		half := (iv.Size()/2 + grain - 1) / grain * grain
		r[i].End = iv.Begin + half
		r = slices.Insert(r, i+1, graph.Interval{Begin: iv.Begin + half, End: iv.End})
	}
	return r
}

// RegionTensors returns, for every region of a tile, the elements of the
// flattened input in the region.
func RegionTensors(in graph.Tensor, regions [][]graph.Interval) []graph.Tensor {
	flat := in.Flatten()
	return lo.Map(regions, func(region []graph.Interval, _ int) graph.Tensor {
		return flat.Slices(region)
	})
}

// ListPartials returns the partials of every description.
// The outputs of the returned reductions are not set.
func ListPartials(descs []PartialsDescription, regionTensors []graph.Tensor) ([]RegionReduction, error) {
	r := make([]RegionReduction, len(descs))
	for i, desc := range descs {
		numCols := len(desc.Columns)
		for _, p := range desc.Patterns {
			if p.RegionIdx < 0 || p.RegionIdx >= len(regionTensors) {
				return nil, errors.Errorf("pattern %s of columns %v: no region %d (%d regions)", p, desc.Columns, p.RegionIdx, len(regionTensors))
			}
			region := regionTensors[p.RegionIdx]
			var intervals []graph.Interval
			switch {
			case p.Repetitions > 1 && p.Stride == numCols && p.Length == 1:
				intervals = []graph.Interval{{Begin: p.RegionOffset, End: p.RegionOffset + p.Stride*(p.Repetitions-1) + numCols}}
			case p.Repetitions > 1:
				for k := range p.Repetitions {
					begin := p.RegionOffset + k*p.Stride
					intervals = append(intervals, graph.Interval{Begin: begin, End: begin + p.Length*numCols})
				}
			default:
				intervals = []graph.Interval{{Begin: p.RegionOffset, End: p.RegionOffset + p.Length*numCols}}
			}
			if last := intervals[len(intervals)-1]; p.RegionOffset < 0 || last.End > region.NumElements() {
				return nil, errors.Errorf("pattern %s of columns %v out of region %d of %d elements", p, desc.Columns, p.RegionIdx, region.NumElements())
			}
			r[i].Partials = append(r[i].Partials, region.Slices(intervals))
		}
	}
	return r, nil
}
