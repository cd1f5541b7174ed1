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
	"context"
	"slices"
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/graph"
)

const (
	// minPieceRows is the smallest number of partials reduced by an
	// intermediate stage for one output column.
	minPieceRows = 2
	// minPieceSize is the smallest number of partials reduced on a tile
	// by an intermediate stage.
	minPieceSize = 64
)

// Stage builds the stages of a reduction. All the stages built by a Stage
// share the same list of compute sets.
type Stage struct {
	g   *graph.Graph
	op  Op
	cfg *config
	css ComputeSetList
}

// NewStage returns a builder of the stages of a reduction with an operator.
func NewStage(g *graph.Graph, op Op, opts ...Option) (*Stage, error) {
	if _, ok := opNames[op]; !ok {
		return nil, errors.Errorf("reduction operator %s not supported", op)
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Stage{g: g, op: op, cfg: cfg, css: NewComputeSetList()}, nil
}

// ComputeSets returns the compute sets of the stages built so far.
func (s *Stage) ComputeSets() *ComputeSetList {
	return &s.css
}

// opFor returns the operator reducing intermediate partials.
func (s *Stage) opFor(ip *IntermediatePartials) Op {
	if ip.reduced {
		return s.op.partialsOp()
	}
	return s.op
}

func matrixShape(in graph.Tensor) (rows, cols int, err error) {
	shape := in.Shape()
	if len(shape) != 2 {
		return 0, 0, errors.Errorf("cannot reduce a tensor of shape %v: not a matrix", shape)
	}
	if shape[0] <= 0 || shape[1] <= 0 {
		return 0, 0, errors.Errorf("cannot reduce an empty matrix of shape %v", shape)
	}
	return shape[0], shape[1], nil
}

// describeTiles gathers, groups and divides the partials of every tile.
// Tiles are processed concurrently.
func (s *Stage) describeTiles(ctx context.Context, regions [][][]graph.Interval, numColumns int, t elem.Type) ([][]PartialsDescription, error) {
	tgt := s.g.Target()
	descs := make([][]PartialsDescription, len(regions))
	eg, ctx := errgroup.WithContext(ctx)
	for tile, tileRegions := range regions {
		if len(tileRegions) == 0 {
			continue
		}
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			gathered, err := GatherPatterns(nil, tileRegions, numColumns)
			if err != nil {
				return errors.WithMessagef(err, "tile %d", tile)
			}
			descs[tile] = DividePartials(GroupPartials(gathered), tgt, s.op, t)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return descs, nil
}

// inputReductions returns the reductions of the partials of every tile of
// an input matrix. The outputs of the reductions are not set.
func (s *Stage) inputReductions(ctx context.Context, in graph.Tensor, numColumns int) ([][]PartialsDescription, [][]RegionReduction, error) {
	regions, err := s.g.ContiguousRegionsByTile(in.Flatten())
	if err != nil {
		return nil, nil, err
	}
	descs, err := s.describeTiles(ctx, regions, numColumns, in.Type())
	if err != nil {
		return nil, nil, err
	}
	reductions := make([][]RegionReduction, len(regions))
	for tile, tileDescs := range descs {
		if len(tileDescs) == 0 {
			continue
		}
		if reductions[tile], err = ListPartials(tileDescs, RegionTensors(in, regions[tile])); err != nil {
			return nil, nil, errors.WithMessagef(err, "tile %d", tile)
		}
	}
	return descs, reductions, nil
}

// connectTiles connects the reductions of all tiles. Reductions on
// different tiles share compute sets.
func (s *Stage) connectTiles(name string, op Op, outType elem.Type, reductions [][]RegionReduction) error {
	name = s.cfg.name + "/" + name
	end := s.css.Pos()
	for tile, reds := range reductions {
		fork := s.css
		if err := connectReductions(s.g, &fork, name, op, outType, tile, reds, s.cfg.logger); err != nil {
			return errors.WithMessage(err, name)
		}
		end = max(end, fork.Pos())
	}
	return s.css.SetPos(end)
}

func columnsOutput(out graph.Tensor, cols []int) graph.Tensor {
	return out.Slices(lo.Map(cols, func(col int, _ int) graph.Interval {
		return graph.Interval{Begin: col, End: col + 1}
	}))
}

// InputToOutput reduces the rows of a matrix into an output without
// exchanging data between tiles. All the elements of a column must be
// stored on the same tile.
func (s *Stage) InputToOutput(ctx context.Context, in, out graph.Tensor) error {
	_, numColumns, err := matrixShape(in)
	if err != nil {
		return err
	}
	if out.NumElements() != numColumns {
		return errors.Errorf("cannot reduce %d column(s) into %d element(s)", numColumns, out.NumElements())
	}
	if err := s.op.check(out.Type()); err != nil {
		return err
	}
	descs, reductions, err := s.inputReductions(ctx, in, numColumns)
	if err != nil {
		return err
	}
	flatOut := out.Flatten()
	reducedOn := make(map[int]int)
	for tile, tileDescs := range descs {
		for i, desc := range tileDescs {
			for _, col := range desc.Columns {
				if other, ok := reducedOn[col]; ok && other != tile {
					return errors.Errorf("column %d stored on tiles %d and %d: the reduction requires an exchange", col, other, tile)
				}
				reducedOn[col] = tile
			}
			reductions[tile][i].Output = columnsOutput(flatOut, desc.Columns)
		}
	}
	return s.connectTiles("InputToOutput", s.op, out.Type(), reductions)
}

// InputToIntermediate reduces the elements of a matrix stored on every
// tile into partials stored on the same tile.
func (s *Stage) InputToIntermediate(ctx context.Context, in graph.Tensor) (*IntermediatePartials, error) {
	_, numColumns, err := matrixShape(in)
	if err != nil {
		return nil, err
	}
	if err := s.op.check(in.Type()); err != nil {
		return nil, err
	}
	descs, reductions, err := s.inputReductions(ctx, in, numColumns)
	if err != nil {
		return nil, err
	}
	partialsType := s.op.partialsType(in.Type())
	ip := NewIntermediatePartials(partialsType, numColumns)
	ip.reduced = true
	for tile, tileDescs := range descs {
		if len(tileDescs) == 0 {
			continue
		}
		cols := lo.Uniq(lo.FlatMap(tileDescs, func(d PartialsDescription, _ int) []int { return d.Columns }))
		slices.Sort(cols)
		data := s.g.AddVariable(partialsType, []int{len(cols)}, s.cfg.name+"/partials")
		if err := s.g.SetTileMapping(data, tile); err != nil {
			return nil, err
		}
		position := make(map[int]int, len(cols))
		for i, col := range cols {
			position[col] = i
		}
		for i, desc := range tileDescs {
			reductions[tile][i].Output = columnsOutput(data, lo.Map(desc.Columns, func(col int, _ int) int {
				return position[col]
			}))
		}
		if err := ip.SetTensor(tile, data, columnIntervals(cols)); err != nil {
			return nil, err
		}
	}
	if order, ok := FindCommonColumnOrder(descs); ok {
		ip.order = order
	}
	if err := s.connectTiles("InputToIntermediate", s.op, partialsType, reductions); err != nil {
		return nil, err
	}
	return ip, nil
}

// split is a piece of the output columns reduced by an intermediate stage.
type split struct {
	OutputTiles
	// count is the number of tiles between which the partials are split.
	count int
}

func ceilDiv(x, y int) int {
	return (x + y - 1) / y
}

// calculateSplit splits the output columns into pieces, and the partials
// of every piece between tiles, so that every tile reduces about the same
// number of partials.
func (s *Stage) calculateSplit(ip *IntermediatePartials, op Op) []split {
	tgt := s.g.Target()
	grain := reductionGrain(tgt, op, ip.DataType())
	segments := ip.TilesForOutput()
	total := lo.SumBy(segments, func(ot OutputTiles) int { return ot.Size() * len(ot.Tiles) })
	perTile := max(ceilDiv(total, tgt.NumTiles), minPieceSize)
	var r []split
	for _, seg := range segments {
		rows := len(seg.Tiles)
		colPieces := min(max(ceilDiv(seg.Size()*rows, perTile), 1), ceilDiv(seg.Size(), grain))
		chunk := ceilDiv(ceilDiv(seg.Size(), colPieces), grain) * grain
		for begin := seg.Begin; begin < seg.End; begin += chunk {
			iv := graph.Interval{Begin: begin, End: min(begin+chunk, seg.End)}
			count := min(max(iv.Size()*rows/perTile, 1), max(rows/minPieceRows, 1))
			r = append(r, split{OutputTiles: OutputTiles{Interval: iv, Tiles: seg.Tiles}, count: count})
		}
	}
	return r
}

// assignment lists the tiles of the partials of an interval reduced on a tile.
type assignment struct {
	iv      graph.Interval
	sources []int
}

// IntermediateToIntermediate reduces intermediate partials into fewer
// partials spread over the tiles.
func (s *Stage) IntermediateToIntermediate(ip *IntermediatePartials) (*IntermediatePartials, error) {
	op := s.opFor(ip)
	partialsType := s.op.partialsType(ip.DataType())
	numTiles := s.g.Target().NumTiles
	perTile := make([][]assignment, numTiles)
	dest := 0
	for _, sp := range s.calculateSplit(ip, op) {
		n := max(minPieceRows, ceilDiv(len(sp.Tiles), sp.count))
		for _, sources := range lo.Chunk(sp.Tiles, n) {
			as := perTile[dest]
			if i := slices.IndexFunc(as, func(a assignment) bool { return a.iv == sp.Interval }); i >= 0 {
				as[i].sources = append(as[i].sources, sources...)
			} else {
				perTile[dest] = append(as, assignment{iv: sp.Interval, sources: sources})
			}
			dest = (dest + 1) % numTiles
		}
	}
	next := NewIntermediatePartials(partialsType, ip.OutputSize())
	next.reduced = true
	next.order = ip.order
	reductions := make([][]RegionReduction, numTiles)
	for tile, as := range perTile {
		if len(as) == 0 {
			continue
		}
		regions := lo.Map(as, func(a assignment, _ int) graph.Interval { return a.iv })
		data := s.g.AddVariable(partialsType, []int{intervalsSize(regions)}, s.cfg.name+"/partials")
		if err := s.g.SetTileMapping(data, tile); err != nil {
			return nil, err
		}
		if err := next.SetTensor(tile, data, regions); err != nil {
			return nil, err
		}
		for _, a := range as {
			out, err := next.slice(tile, a.iv)
			if err != nil {
				return nil, err
			}
			partials, err := partialsOf(ip, a)
			if err != nil {
				return nil, err
			}
			reductions[tile] = append(reductions[tile], RegionReduction{Output: out, Partials: partials})
		}
	}
	if err := s.connectTiles("IntermediateToIntermediate", op, partialsType, reductions); err != nil {
		return nil, err
	}
	return next, nil
}

// partialsOf returns the partials of an assignment.
func partialsOf(ip *IntermediatePartials, a assignment) ([]graph.Tensor, error) {
	partials := make([]graph.Tensor, len(a.sources))
	for i, src := range a.sources {
		var err error
		if partials[i], err = ip.slice(src, a.iv); err != nil {
			return nil, err
		}
	}
	return partials, nil
}

// IntermediateToOutput reduces intermediate partials into an output on
// the tiles where the output is mapped.
func (s *Stage) IntermediateToOutput(ip *IntermediatePartials, out graph.Tensor) error {
	if out.NumElements() != ip.OutputSize() {
		return errors.Errorf("cannot reduce partials of %d column(s) into %d element(s)", ip.OutputSize(), out.NumElements())
	}
	if err := s.op.check(out.Type()); err != nil {
		return err
	}
	op := s.opFor(ip)
	flatOut := out.Flatten()
	mapping, err := s.g.TileMapping(flatOut)
	if err != nil {
		return err
	}
	segments := ip.TilesForOutput()
	if n := lo.SumBy(segments, func(ot OutputTiles) int { return ot.Size() }); n != ip.OutputSize() {
		return errors.Errorf("partials cover %d of %d output column(s)", n, ip.OutputSize())
	}
	tgt := s.g.Target()
	reductions := make([][]RegionReduction, len(mapping))
	for tile, ivs := range mapping {
		var pieces []graph.Interval
		for _, iv := range ivs {
			for _, seg := range segments {
				if piece := (graph.Interval{Begin: max(iv.Begin, seg.Begin), End: min(iv.End, seg.End)}); piece.Size() > 0 {
					pieces = append(pieces, piece)
				}
			}
		}
		for _, piece := range SplitOutputRegionsForWorkers(tgt, tgt.NumWorkers, op, ip.DataType(), pieces) {
			i := sort.Search(len(segments), func(i int) bool { return segments[i].End > piece.Begin })
			partials, err := partialsOf(ip, assignment{iv: piece, sources: segments[i].Tiles})
			if err != nil {
				return err
			}
			reductions[tile] = append(reductions[tile], RegionReduction{
				Output:   flatOut.Slice(piece.Begin, piece.End),
				Partials: partials,
			})
		}
	}
	return s.connectTiles("IntermediateToOutput", op, out.Type(), reductions)
}
