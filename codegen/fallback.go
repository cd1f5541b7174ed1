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

package codegen

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gx-org/popfuse/codegen/emit"
	"github.com/gx-org/popfuse/cycles"
	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr"
	"github.com/gx-org/popfuse/graph"
	"github.com/gx-org/popfuse/kernels"
	"github.com/gx-org/popfuse/target"
)

// costFunc estimates the cycles of a primitive vertex processing n elements
// split in contiguous regions of the given sizes.
type costFunc func(tgt target.Target, n int, sizes []int) (uint64, error)

// primitive is a pre-built codelet computing one operator.
type primitive struct {
	codelet string
	outType elem.Type
	// compute is the operator applied to placeholders _1, _2, ...
	compute expr.Expr
	cost    costFunc
}

// fallback sequences one compute set of primitive vertices per operator.
type fallback struct {
	g        *graph.Graph
	prog     *graph.Sequence
	cfg      *config
	types    expr.Types
	operands []graph.Tensor
}

func (f *fallback) run(e expr.Expr) (graph.Tensor, error) {
	r, err := f.eval(e)
	if err != nil {
		return graph.Tensor{}, err
	}
	ref, hasRef := f.reference()
	if r.IsScalar() && hasRef {
		if r, err = f.broadcast(r, ref); err != nil {
			return graph.Tensor{}, err
		}
	}
	if f.cfg.inPlace {
		dst := f.operands[0]
		if r.String() != dst.String() {
			f.prog.Add(&graph.Copy{Src: r.Flatten(), Dst: dst.Flatten()})
		}
		return dst, nil
	}
	for _, op := range f.operands {
		if !graph.Overlaps(r, op) {
			continue
		}
		// Never return an operand: the caller owns the result.
		out := f.g.AddVariable(r.Type(), r.Shape(), f.cfg.name+"/out")
		if err := f.g.MapLike(out.Flatten(), r.Flatten()); err != nil {
			return graph.Tensor{}, err
		}
		f.prog.Add(&graph.Copy{Src: r.Flatten(), Dst: out.Flatten()})
		return out, nil
	}
	return r, nil
}

func (f *fallback) reference() (graph.Tensor, bool) {
	for _, op := range f.operands {
		if !op.IsScalar() {
			return op, true
		}
	}
	return graph.Tensor{}, false
}

func (f *fallback) eval(e expr.Expr) (graph.Tensor, error) {
	switch n := e.(type) {
	case *expr.Const:
		return f.constant(n)
	case *expr.PlaceHolder:
		if n.Index < 1 || n.Index > len(f.operands) {
			return graph.Tensor{}, errors.Errorf("placeholder %s out of range: %d operand(s)", n, len(f.operands))
		}
		return f.operands[n.Index-1], nil
	case *expr.Cast:
		x, err := f.eval(n.X)
		if err != nil {
			return graph.Tensor{}, err
		}
		if x.Type() == n.To {
			return x, nil
		}
		return f.vertices(castPrimitive(x.Type(), n.To), []graph.Tensor{x})
	case *expr.UnaryOp:
		x, err := f.eval(n.X)
		if err != nil {
			return graph.Tensor{}, err
		}
		return f.vertices(unaryPrimitive(n.Op, x.Type()), []graph.Tensor{x})
	case *expr.BinaryOp:
		args, err := f.evalAll(n.X, n.Y)
		if err != nil {
			return graph.Tensor{}, err
		}
		return f.vertices(binaryPrimitive(n.Op, args[0], args[1]), args)
	case *expr.TernaryOp:
		args, err := f.evalAll(n.X, n.Y, n.Z)
		if err != nil {
			return graph.Tensor{}, err
		}
		return f.vertices(ternaryPrimitive(n.Op, args), args)
	}
	return graph.Tensor{}, errors.Errorf("expression %s of type %T not supported", e, e)
}

func (f *fallback) evalAll(es ...expr.Expr) ([]graph.Tensor, error) {
	args := make([]graph.Tensor, len(es))
	for i, e := range es {
		var err error
		if args[i], err = f.eval(e); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func (f *fallback) constant(c *expr.Const) (graph.Tensor, error) {
	t := f.types.Of(c)
	value, err := kernels.FromConst(c, t, 1)
	if err != nil {
		return graph.Tensor{}, err
	}
	return f.g.AddConstant(value, nil, f.cfg.name+"/const", 0)
}

func (f *fallback) broadcast(x, like graph.Tensor) (graph.Tensor, error) {
	p := primitive{
		codelet: fmt.Sprintf("Fill<%s>", x.Type()),
		outType: x.Type(),
		compute: expr.P1,
		cost: func(tgt target.Target, _ int, sizes []int) (uint64, error) {
			return cycles.Zero2D(tgt, x.Type(), sizes), nil
		},
	}
	return f.verticesLike(p, []graph.Tensor{x}, like)
}

func (f *fallback) vertices(p primitive, args []graph.Tensor) (graph.Tensor, error) {
	like := args[0]
	for _, arg := range args {
		if !arg.IsScalar() {
			like = arg
			break
		}
	}
	return f.verticesLike(p, args, like)
}

// verticesLike creates one vertex per tile computing a primitive over the
// elements of a new tensor mapped like another tensor.
func (f *fallback) verticesLike(p primitive, args []graph.Tensor, like graph.Tensor) (graph.Tensor, error) {
	f.g.AddCodelet(&graph.Codelet{Name: p.codelet, Impl: primitiveImpl(p.compute, len(args))})
	out := f.g.AddVariable(p.outType, like.Shape(), f.cfg.name+"/"+p.codelet)
	outView := out.Flatten()
	if err := f.g.MapLike(outView, like.Flatten()); err != nil {
		return graph.Tensor{}, err
	}
	regions, err := f.g.ContiguousRegionsByTile(outView)
	if err != nil {
		return graph.Tensor{}, err
	}
	tgt := f.g.Target()
	cs := f.g.AddComputeSet(f.cfg.name + "/" + p.codelet)
	for tile, tileRegions := range regions {
		if len(tileRegions) == 0 {
			continue
		}
		var intervals []graph.Interval
		sizes := make([]int, len(tileRegions))
		n := 0
		for i, region := range tileRegions {
			for _, iv := range region {
				sizes[i] += iv.Size()
			}
			n += sizes[i]
			intervals = append(intervals, region...)
		}
		v, err := f.g.AddVertex(cs, p.codelet)
		if err != nil {
			return graph.Tensor{}, err
		}
		for i, arg := range args {
			view := arg.Flatten()
			if !view.IsScalar() {
				view = view.Slices(intervals)
			}
			f.g.Connect(v, emit.InputField(i), view)
		}
		f.g.Connect(v, emit.OutputField(false), outView.Slices(intervals))
		if err := f.g.SetVertexTile(v, tile); err != nil {
			return graph.Tensor{}, err
		}
		estimate, err := p.cost(tgt, n, sizes)
		if errors.Cause(err) == cycles.ErrUnsupported {
			f.cfg.logger.Debug("no cycle estimate", "codelet", p.codelet, "error", err)
			continue
		}
		if err != nil {
			return graph.Tensor{}, err
		}
		f.g.SetCycleEstimate(v, estimate)
	}
	f.prog.Add(&graph.Execute{CS: cs})
	return out, nil
}

func primitiveImpl(compute expr.Expr, numInputs int) graph.Impl {
	return func(s *graph.VertexState) error {
		inputs := make([]kernels.Array, numInputs)
		for i := range inputs {
			var err error
			if inputs[i], err = s.Input(emit.InputField(i)); err != nil {
				return err
			}
		}
		r, err := kernels.Eval(compute, nil, inputs)
		if err != nil {
			return err
		}
		outField := emit.OutputField(false)
		n := 1
		for _, t := range s.Vertex().Field(outField) {
			n = t.NumElements()
		}
		return s.Output(outField, kernels.Broadcast(r, n))
	}
}

func castPrimitive(from, to elem.Type) primitive {
	return primitive{
		codelet: fmt.Sprintf("Cast1D<%s,%s>", from, to),
		outType: to,
		compute: expr.CastTo(expr.P1, to),
		cost: func(tgt target.Target, n int, _ []int) (uint64, error) {
			return cycles.CastSupervisor(tgt, from, to, n), nil
		},
	}
}

func unaryPrimitive(op expr.UnaryOpType, t elem.Type) primitive {
	return primitive{
		codelet: fmt.Sprintf("UnaryOp1D<%s,%s>", op, t),
		outType: expr.UnaryReturnType(op, t),
		compute: expr.Unary(op, expr.P1),
		cost: func(tgt target.Target, n int, _ []int) (uint64, error) {
			return cycles.UnaryOp1DSupervisor(tgt, op, t, n)
		},
	}
}

func binaryPrimitive(op expr.BinaryOpType, x, y graph.Tensor) primitive {
	t := x.Type()
	p := primitive{
		codelet: fmt.Sprintf("BinaryOp1D<%s,%s>", op, t),
		outType: expr.BinaryReturnType(op, t),
		compute: expr.Binary(op, expr.P1, expr.P2),
		cost: func(tgt target.Target, n int, _ []int) (uint64, error) {
			return cycles.BinaryOp1DSupervisor(tgt, op, t, n)
		},
	}
	if x.IsScalar() || !y.IsScalar() {
		return p
	}
	binaryCost := p.cost
	p.codelet = fmt.Sprintf("BroadcastScalar1D<%s,%s>", op, t)
	p.cost = func(tgt target.Target, n int, sizes []int) (uint64, error) {
		if estimate, err := cycles.BroadcastScalar1DSupervisor(tgt, op, t, n); err == nil {
			return estimate, nil
		}
		return binaryCost(tgt, n, sizes)
	}
	return p
}

func ternaryPrimitive(op expr.TernaryOpType, args []graph.Tensor) primitive {
	t := args[0].Type()
	p := primitive{
		codelet: fmt.Sprintf("%s<%s>", op.FuncName(), t),
		outType: t,
		compute: expr.Ternary(op, expr.P1, expr.P2, expr.P3),
	}
	switch {
	case op == expr.OpClamp:
		p.cost = func(tgt target.Target, _ int, sizes []int) (uint64, error) {
			return cycles.Clamp(tgt, t, sizes), nil
		}
	case args[0].IsScalar() && args[1].IsScalar():
		p.codelet = fmt.Sprintf("BroadcastSelect<%s>", t)
		p.cost = func(_ target.Target, _ int, sizes []int) (uint64, error) {
			return cycles.BroadcastSelect(t, sizes)
		}
	default:
		p.cost = func(_ target.Target, _ int, sizes []int) (uint64, error) {
			return cycles.Select(sizes), nil
		}
	}
	return p
}
