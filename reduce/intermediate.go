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
	"slices"
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/graph"
)

type (
	// IntermediatePartials stores, for every tile, the partial results of a
	// reduction for a subset of the output columns.
	IntermediatePartials struct {
		dataType   elem.Type
		outputSize int
		tiles      map[int]*tilePartials
		order      []int
		// reduced is true if the partials have been computed by a stage
		// rather than taken from the input.
		reduced bool
	}

	tilePartials struct {
		data    graph.Tensor
		regions []graph.Interval
	}

	// OutputTiles lists the tiles storing partials of an interval of output columns.
	OutputTiles struct {
		graph.Interval
		Tiles []int
	}
)

// NewIntermediatePartials returns an empty set of partials.
func NewIntermediatePartials(dataType elem.Type, outputSize int) *IntermediatePartials {
	return &IntermediatePartials{
		dataType:   dataType,
		outputSize: outputSize,
		tiles:      make(map[int]*tilePartials),
	}
}

// DataType returns the element type of the partials.
func (ip *IntermediatePartials) DataType() elem.Type {
	return ip.dataType
}

// OutputSize returns the number of output columns.
func (ip *IntermediatePartials) OutputSize() int {
	return ip.outputSize
}

// ColumnOrder returns the order in which the tiles store their columns,
// if there is one other than 0, 1, 2, ...
func (ip *IntermediatePartials) ColumnOrder() ([]int, bool) {
	return ip.order, ip.order != nil
}

// SetTensor sets the partials of a tile. Element i of data is the partial
// of the i-th column of the sorted, non-overlapping output regions.
func (ip *IntermediatePartials) SetTensor(tile int, data graph.Tensor, regions []graph.Interval) error {
	if data.Type() != ip.dataType {
		return errors.Errorf("tile %d: partials of type %s but want %s", tile, data.Type(), ip.dataType)
	}
	if _, ok := ip.tiles[tile]; ok {
		return errors.Errorf("tile %d already has partials", tile)
	}
	regions = mergeIntervals(regions)
	for i, iv := range regions {
		if iv.Begin < 0 || iv.End > ip.outputSize || iv.Size() <= 0 {
			return errors.Errorf("tile %d: invalid output region %s for %d column(s)", tile, iv, ip.outputSize)
		}
		if i > 0 && regions[i-1].End > iv.Begin {
			return errors.Errorf("tile %d: output regions %s and %s overlap", tile, regions[i-1], iv)
		}
	}
	if n := intervalsSize(regions); n != data.NumElements() {
		return errors.Errorf("tile %d: %d partial(s) for %d output column(s)", tile, data.NumElements(), n)
	}
	ip.tiles[tile] = &tilePartials{data: data, regions: regions}
	return nil
}

// Tiles returns the tiles storing partials, sorted.
func (ip *IntermediatePartials) Tiles() []int {
	tiles := lo.Keys(ip.tiles)
	slices.Sort(tiles)
	return tiles
}

// Data returns the partials of a tile.
func (ip *IntermediatePartials) Data(tile int) graph.Tensor {
	tp, ok := ip.tiles[tile]
	if !ok {
		return graph.Tensor{}
	}
	return tp.data
}

// OutputRegions returns the output columns of the partials of a tile.
func (ip *IntermediatePartials) OutputRegions(tile int) []graph.Interval {
	tp, ok := ip.tiles[tile]
	if !ok {
		return nil
	}
	return slices.Clone(tp.regions)
}

// DataElement returns the index in the data of a tile of the partial of a column.
func (ip *IntermediatePartials) DataElement(tile, column int) (int, error) {
	tp, ok := ip.tiles[tile]
	if !ok {
		return 0, errors.Errorf("no partials on tile %d", tile)
	}
	offset := 0
	for _, iv := range tp.regions {
		if column >= iv.Begin && column < iv.End {
			return offset + column - iv.Begin, nil
		}
		offset += iv.Size()
	}
	return 0, errors.Errorf("no partial of column %d on tile %d", column, tile)
}

// slice returns the partials of an interval of columns on a tile.
func (ip *IntermediatePartials) slice(tile int, iv graph.Interval) (graph.Tensor, error) {
	begin, err := ip.DataElement(tile, iv.Begin)
	if err != nil {
		return graph.Tensor{}, err
	}
	last, err := ip.DataElement(tile, iv.End-1)
	if err != nil {
		return graph.Tensor{}, err
	}
	if last-begin+1 != iv.Size() {
		return graph.Tensor{}, errors.Errorf("columns %s are not contiguous on tile %d", iv, tile)
	}
	return ip.Data(tile).Slice(begin, last+1), nil
}

// TilesForOutput splits the output columns into intervals for which the
// same tiles store partials. Columns without partials are skipped.
func (ip *IntermediatePartials) TilesForOutput() []OutputTiles {
	var bounds []int
	for _, tp := range ip.tiles {
		for _, iv := range tp.regions {
			bounds = append(bounds, iv.Begin, iv.End)
		}
	}
	slices.Sort(bounds)
	bounds = slices.Compact(bounds)
	tiles := ip.Tiles()
	var r []OutputTiles
	for i := 1; i < len(bounds); i++ {
		iv := graph.Interval{Begin: bounds[i-1], End: bounds[i]}
		holders := lo.Filter(tiles, func(tile int, _ int) bool {
			return lo.ContainsBy(ip.tiles[tile].regions, func(region graph.Interval) bool {
				return region.Begin <= iv.Begin && iv.End <= region.End
			})
		})
		if len(holders) == 0 {
			continue
		}
		if n := len(r); n > 0 && r[n-1].End == iv.Begin && slices.Equal(r[n-1].Tiles, holders) {
			r[n-1].End = iv.End
			continue
		}
		r = append(r, OutputTiles{Interval: iv, Tiles: holders})
	}
	return r
}

// MaxPartials returns the largest number of partials of an output column.
func (ip *IntermediatePartials) MaxPartials() int {
	return lo.Max(lo.Map(ip.TilesForOutput(), func(ot OutputTiles, _ int) int {
		return len(ot.Tiles)
	}))
}

func intervalsSize(ivs []graph.Interval) int {
	return lo.SumBy(ivs, func(iv graph.Interval) int { return iv.Size() })
}

// mergeIntervals sorts intervals and merges the touching ones.
func mergeIntervals(ivs []graph.Interval) []graph.Interval {
	sorted := slices.Clone(ivs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Begin < sorted[j].Begin })
	var r []graph.Interval
	for _, iv := range sorted {
		if n := len(r); n > 0 && r[n-1].End == iv.Begin {
			r[n-1].End = iv.End
			continue
		}
		r = append(r, iv)
	}
	return r
}

// columnIntervals returns the intervals covering a set of columns.
func columnIntervals(cols []int) []graph.Interval {
	return mergeIntervals(lo.Map(lo.Uniq(cols), func(col int, _ int) graph.Interval {
		return graph.Interval{Begin: col, End: col + 1}
	}))
}

// rowInterval is an interval of columns in a row of a matrix.
type rowInterval struct {
	row int
	graph.Interval
}

// wrapToRows splits intervals of a flattened matrix at the end of every row.
func wrapToRows(ivs []graph.Interval, numColumns int) []rowInterval {
	var r []rowInterval
	for _, iv := range ivs {
		for begin := iv.Begin; begin < iv.End; {
			row := begin / numColumns
			end := min(iv.End, (row+1)*numColumns)
			r = append(r, rowInterval{
				row:      row,
				Interval: graph.Interval{Begin: begin - row*numColumns, End: end - row*numColumns},
			})
			begin = end
		}
	}
	sort.SliceStable(r, func(i, j int) bool { return r[i].Begin < r[j].Begin })
	return r
}

func overlapping(rows []rowInterval) (int, bool) {
	for i := 1; i < len(rows); i++ {
		if rows[i].Begin < rows[i-1].End {
			return i, true
		}
	}
	return 0, false
}

// MultipleValuesFromOneColumnOnSameTile returns true if a tile stores
// several elements of the same column of a matrix with wrapSize columns.
// mapping[tile] lists the intervals of the flattened matrix on the tile.
func MultipleValuesFromOneColumnOnSameTile(mapping [][]graph.Interval, wrapSize int) bool {
	if wrapSize <= 0 {
		return false
	}
	return lo.SomeBy(mapping, func(ivs []graph.Interval) bool {
		_, found := overlapping(wrapToRows(ivs, wrapSize))
		return found
	})
}

// TensorToIntermediatePartials uses the elements of a matrix as the
// partials of the reduction of its rows. No tile may store two elements
// of the same column.
func TensorToIntermediatePartials(in graph.Tensor, mapping [][]graph.Interval) (*IntermediatePartials, error) {
	shape := in.Shape()
	if len(shape) != 2 {
		return nil, errors.Errorf("partials of shape %v: not a matrix", shape)
	}
	numColumns := shape[1]
	flat := in.Flatten()
	ip := NewIntermediatePartials(in.Type(), numColumns)
	for tile, ivs := range mapping {
		if len(ivs) == 0 {
			continue
		}
		rows := wrapToRows(ivs, numColumns)
		if i, found := overlapping(rows); found {
			return nil, errors.Errorf("tile %d stores several elements of the columns %s and %s", tile, rows[i-1].Interval, rows[i].Interval)
		}
		data := flat.Slices(lo.Map(rows, func(r rowInterval, _ int) graph.Interval {
			offset := r.row * numColumns
			return graph.Interval{Begin: offset + r.Begin, End: offset + r.End}
		}))
		regions := lo.Map(rows, func(r rowInterval, _ int) graph.Interval { return r.Interval })
		if err := ip.SetTensor(tile, data, regions); err != nil {
			return nil, err
		}
	}
	return ip, nil
}
