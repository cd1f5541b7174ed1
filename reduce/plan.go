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

// Package reduce plans the reduction of the rows of a matrix distributed
// over the tiles of a graph.
//
// The partials of every output column are found in the contiguous regions
// of each tile (Gather), merged with the partials of adjacent columns
// following the same patterns (Group), split between the workers of the
// tile (Divide), and connected to reduction vertices (ListPartials).
// Partials stored on several tiles are reduced by successive stages.
package reduce

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/graph"
)

type (
	// Output of a planned reduction: either the final output or
	// intermediate partials.
	Output interface {
		// Final returns the tensor storing the result of the reduction.
		Final() (graph.Tensor, bool)
		// Partials returns the partials left on the tiles.
		Partials() (*IntermediatePartials, bool)
	}

	// FinalOutput is a reduction reduced into a tensor.
	FinalOutput struct {
		Tensor graph.Tensor
	}

	// Intermediate is a reduction stopped at partials stored on the tiles.
	Intermediate struct {
		IP *IntermediatePartials
	}
)

// Final returns the output tensor.
func (o FinalOutput) Final() (graph.Tensor, bool) {
	return o.Tensor, true
}

// Partials returns false.
func (FinalOutput) Partials() (*IntermediatePartials, bool) {
	return nil, false
}

// Final returns false.
func (Intermediate) Final() (graph.Tensor, bool) {
	return graph.Tensor{}, false
}

// Partials returns the intermediate partials.
func (o Intermediate) Partials() (*IntermediatePartials, bool) {
	return o.IP, true
}

// columnTiles returns the tile of every column of a matrix if all the
// elements of every column are stored on the same tile.
func columnTiles(mapping [][]graph.Interval, numColumns int) ([]int, bool) {
	tiles := make([]int, numColumns)
	for i := range tiles {
		tiles[i] = -1
	}
	for tile, ivs := range mapping {
		for _, r := range wrapToRows(ivs, numColumns) {
			for col := r.Begin; col < r.End; col++ {
				if tiles[col] >= 0 && tiles[col] != tile {
					return nil, false
				}
				tiles[col] = tile
			}
		}
	}
	return tiles, true
}

// Plan builds the programs reducing the rows of a matrix with an operator
// and appends them to prog.
//
// The stages are chosen from the tile mapping of the input:
//   - if every column is stored on a single tile, the rows are reduced
//     into the output without exchange;
//   - otherwise, every tile reduces its elements into intermediate partials
//     (or the input is used as partials if no tile stores two elements of
//     the same column), intermediate stages reduce the partials until no
//     column has more than the maximum number of partials, and a last stage
//     reduces them into an output spread over the tiles.
func Plan(ctx context.Context, g *graph.Graph, in graph.Tensor, op Op, prog *graph.Sequence, opts ...Option) (Output, error) {
	s, err := NewStage(g, op, opts...)
	if err != nil {
		return nil, err
	}
	rows, numColumns, err := matrixShape(in)
	if err != nil {
		return nil, err
	}
	if err := op.check(in.Type()); err != nil {
		return nil, err
	}
	outType := lo.Ternary(s.cfg.outType == elem.Invalid, in.Type(), s.cfg.outType)
	if err := op.check(outType); err != nil {
		return nil, errors.WithMessage(err, "output")
	}
	mapping, err := g.TileMapping(in.Flatten())
	if err != nil {
		return nil, err
	}
	logger := s.cfg.logger.With("op", op.String(), "rows", rows, "columns", numColumns)
	if tiles, ok := columnTiles(mapping, numColumns); ok {
		logger.Debug("reducing input to output without exchange")
		out := g.AddVariable(outType, []int{numColumns}, s.cfg.name+"/out")
		perTile := make([][]int, g.Target().NumTiles)
		for col, tile := range tiles {
			perTile[tile] = append(perTile[tile], col)
		}
		if err := g.SetTileMappingIntervals(out, lo.Map(perTile, func(cols []int, _ int) []graph.Interval {
			return columnIntervals(cols)
		})); err != nil {
			return nil, err
		}
		if err := s.InputToOutput(ctx, in, out); err != nil {
			return nil, err
		}
		s.css.Schedule(prog)
		return FinalOutput{Tensor: out}, nil
	}
	var ip *IntermediatePartials
	if s.cfg.noExchange || MultipleValuesFromOneColumnOnSameTile(mapping, numColumns) {
		logger.Debug("reducing input to intermediate partials")
		ip, err = s.InputToIntermediate(ctx, in)
	} else {
		logger.Debug("using input as intermediate partials")
		ip, err = TensorToIntermediatePartials(in, mapping)
	}
	if err != nil {
		return nil, err
	}
	if s.cfg.noExchange {
		s.css.Schedule(prog)
		return Intermediate{IP: ip}, nil
	}
	for ip.MaxPartials() > s.cfg.maxPartials {
		logger.Debug("reducing intermediate partials", "maxPartials", ip.MaxPartials())
		if ip, err = s.IntermediateToIntermediate(ip); err != nil {
			return nil, err
		}
	}
	out := g.AddVariable(outType, []int{numColumns}, s.cfg.name+"/out")
	if err := mapOutput(g, out, ip); err != nil {
		return nil, err
	}
	logger.Debug("reducing intermediate partials to output", "maxPartials", ip.MaxPartials())
	if err := s.IntermediateToOutput(ip, out); err != nil {
		return nil, err
	}
	s.css.Schedule(prog)
	return FinalOutput{Tensor: out}, nil
}

// mapOutput spreads an output over the tiles. Columns are assigned to
// tiles following the column order of the partials if there is one.
func mapOutput(g *graph.Graph, out graph.Tensor, ip *IntermediatePartials) error {
	tgt := g.Target()
	grain := max(tgt.VectorWidth(out.Type()), 1)
	order, ok := ip.ColumnOrder()
	if !ok || len(order) != out.NumElements() {
		return g.MapLinearly(out, grain)
	}
	perTile := ceilDiv(ceilDiv(len(order), tgt.NumTiles), grain) * grain
	mapping := lo.Map(lo.Chunk(order, perTile), func(cols []int, _ int) []graph.Interval {
		return columnIntervals(cols)
	})
	return g.SetTileMappingIntervals(out, mapping)
}
