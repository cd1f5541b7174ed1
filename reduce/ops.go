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
	"log/slog"
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/gx-org/popfuse/cycles"
	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr"
	"github.com/gx-org/popfuse/graph"
	"github.com/gx-org/popfuse/kernels"
)

// Op is a reduction operator.
type Op int

// Reduction operators.
const (
	Add Op = iota
	SquareAdd
	Mul
	Max
	Min
	LogicalAnd
	LogicalOr
)

var opNames = map[Op]string{
	Add:        "ADD",
	SquareAdd:  "SQUARE_ADD",
	Mul:        "MUL",
	Max:        "MAX",
	Min:        "MIN",
	LogicalAnd: "LOGICAL_AND",
	LogicalOr:  "LOGICAL_OR",
}

func (op Op) String() string {
	name, ok := opNames[op]
	if !ok {
		return fmt.Sprintf("Op(%d)", int(op))
	}
	return name
}

// ParseOp returns the operator with a name, for example SQUARE_ADD.
func ParseOp(name string) (Op, error) {
	op, ok := lo.FindKey(opNames, strings.ToUpper(name))
	if !ok {
		return 0, errors.Errorf("unknown reduction operator %q", name)
	}
	return op, nil
}

func (op Op) isLogical() bool {
	return op == LogicalAnd || op == LogicalOr
}

// check returns an error if the operator cannot reduce elements of a type.
func (op Op) check(t elem.Type) error {
	if _, ok := opNames[op]; !ok {
		return errors.Errorf("reduction operator %s not supported", op)
	}
	if op.isLogical() != (t == elem.Bool) {
		return errors.Errorf("cannot reduce %s elements with %s", t, op)
	}
	return nil
}

// partialsOp returns the operator reducing the partials computed by op.
func (op Op) partialsOp() Op {
	if op == SquareAdd {
		return Add
	}
	return op
}

// partialsType returns the type of the partials of the reduction of
// elements of a type.
func (op Op) partialsType(t elem.Type) elem.Type {
	if t == elem.Half && (op == Add || op == SquareAdd) {
		return elem.Float
	}
	return t
}

// binaryOp returns the element-wise operator accumulating two values.
func (op Op) binaryOp() expr.BinaryOpType {
	switch op {
	case Mul:
		return expr.OpMultiply
	case Max:
		return expr.OpMaximum
	case Min:
		return expr.OpMinimum
	case LogicalAnd:
		return expr.OpLogicalAnd
	case LogicalOr:
		return expr.OpLogicalOr
	}
	return expr.OpAdd
}

func (op Op) combine(acc, x float64) float64 {
	switch op {
	case Mul:
		return acc * x
	case Max:
		return math.Max(acc, x)
	case Min:
		return math.Min(acc, x)
	case LogicalAnd:
		return lo.Ternary(acc != 0 && x != 0, 1.0, 0.0)
	case LogicalOr:
		return lo.Ternary(acc != 0 || x != 0, 1.0, 0.0)
	}
	return acc + x
}

func (op Op) identity(t elem.Type) float64 {
	switch op {
	case Mul, LogicalAnd:
		return 1
	case Max:
		return lo.Ternary(t.IsFloat(), math.Inf(-1), 0)
	case Min:
		return lo.Ternary(t.IsFloat(), math.Inf(1), 0)
	}
	return 0
}

const (
	partialsField = "partials"
	outField      = "out"
)

func codeletName(op Op, partialsType, outType elem.Type) string {
	return fmt.Sprintf("Reduce<%s,%s,%s>", op, partialsType, outType)
}

// addReduceCodelet registers the codelet reducing partials with an operator.
func addReduceCodelet(g *graph.Graph, op Op, partialsType, outType elem.Type) string {
	name := codeletName(op, partialsType, outType)
	g.AddCodelet(&graph.Codelet{Name: name, Impl: reduceImpl(op, outType)})
	return name
}

func reduceImpl(op Op, outType elem.Type) graph.Impl {
	return func(s *graph.VertexState) error {
		outs := s.Vertex().Field(outField)
		if len(outs) != 1 {
			return errors.Errorf("%d output(s) connected", len(outs))
		}
		n := outs[0].NumElements()
		acc := make([]float64, n)
		seen := make([]bool, n)
		for i, partial := range s.Inputs(partialsField) {
			if partial.Len()%n != 0 {
				return errors.Errorf("partial %d of %d element(s) does not wrap over an output of %d element(s)", i, partial.Len(), n)
			}
			for k, x := range partial.Float64s() {
				if op == SquareAdd {
					x *= x
				}
				j := k % n
				if !seen[j] {
					acc[j], seen[j] = x, true
					continue
				}
				acc[j] = op.combine(acc[j], x)
			}
		}
		for j := range acc {
			if !seen[j] {
				acc[j] = op.identity(outType)
			}
		}
		f, err := kernels.FactoryFor(outType)
		if err != nil {
			return err
		}
		return s.Output(outField, f.FromFloat64s(acc))
	}
}

// connectReductions adds a vertex for every reduction of a tile to the
// next compute set of a list.
func connectReductions(g *graph.Graph, css *ComputeSetList, name string, op Op, outType elem.Type, tile int, reductions []RegionReduction, logger *slog.Logger) error {
	if len(reductions) == 0 {
		return nil
	}
	for i, red := range reductions {
		if len(red.Partials) == 0 {
			return errors.Errorf("tile %d: reduction %d has no partial", tile, i)
		}
		if red.Output.Type() != outType {
			return errors.Errorf("tile %d: reduction %d writes into a %s tensor but want %s", tile, i, red.Output.Type(), outType)
		}
	}
	partialsType := reductions[0].Partials[0].Type()
	codelet := addReduceCodelet(g, op, partialsType, outType)
	cs := css.Add(g, name)
	tgt := g.Target()
	for _, red := range reductions {
		v, err := g.AddVertex(cs, codelet)
		if err != nil {
			return err
		}
		for _, partial := range red.Partials {
			g.Connect(v, partialsField, partial)
		}
		g.Connect(v, outField, red.Output)
		if err := g.SetVertexTile(v, tile); err != nil {
			return err
		}
		sizes := lo.Map(red.Partials, func(p graph.Tensor, _ int) int { return p.NumElements() })
		estimate, err := cycles.BinaryOp2D(tgt, op.binaryOp(), partialsType, sizes)
		if errors.Cause(err) == cycles.ErrUnsupported {
			logger.Debug("no cycle estimate", "codelet", codelet, "error", err)
			continue
		}
		if err != nil {
			return err
		}
		g.SetCycleEstimate(v, estimate)
	}
	return nil
}
