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

// Package codegen computes element-wise expressions over tensors of a graph.
//
// Map either fuses an expression into a single generated codelet executed
// by one compute set, or sequences one compute set of primitive vertices
// per operator. Both produce the same result.
package codegen

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gx-org/popfuse/codegen/analyze"
	"github.com/gx-org/popfuse/codegen/dispatch"
	"github.com/gx-org/popfuse/codegen/emit"
	"github.com/gx-org/popfuse/codegen/synth"
	"github.com/gx-org/popfuse/expr"
	"github.com/gx-org/popfuse/graph"
	"github.com/gx-org/popfuse/target"
)

// Describe returns the descriptors of graph tensors used as operands.
// With inPlace set, the first operand is aliased if it cannot be written
// by several workers in parallel.
func Describe(g *graph.Graph, operands []graph.Tensor, inPlace bool) []expr.Operand {
	descs := make([]expr.Operand, len(operands))
	for i, op := range operands {
		descs[i] = expr.Operand{
			Type:    op.Type(),
			Shape:   op.Shape(),
			Aliased: inPlace && i == 0 && !g.IsParallelWriteable(op),
		}
	}
	return descs
}

// Map computes an expression element-wise over operands and appends the
// programs computing it to prog. Placeholder _i refers to operands[i-1].
// Scalar operands are broadcast.
//
// It returns the tensor holding the result: operands[0] in place, or a new
// tensor with the shape and the tile mapping of the first non-scalar operand.
func Map(g *graph.Graph, e expr.Expr, operands []graph.Tensor, prog *graph.Sequence, opts ...Option) (graph.Tensor, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return graph.Tensor{}, err
	}
	descs := Describe(g, operands, cfg.inPlace)
	types, err := analyze.Validate(e, descs, cfg.inPlace)
	if err != nil {
		return graph.Tensor{}, err
	}
	res := analyze.Analyze(e, descs, cfg.force)
	logger := cfg.logger.With("expr", e.String())
	if !cfg.generate || !res.Eligible {
		logger.Debug("sequencing primitive vertices", "generate", cfg.generate, "eligible", res.Eligible, "numOps", res.NumOps)
		f := &fallback{g: g, prog: prog, cfg: cfg, types: types, operands: operands}
		return f.run(e)
	}
	c, err := synth.Synthesize(e, types, descs)
	if err != nil {
		return graph.Tensor{}, err
	}
	emitted, err := emit.Emit(g, g.Target(), emit.Request{
		Expr:      e,
		Types:     types,
		Codelet:   c,
		InPlace:   cfg.inPlace,
		AllScalar: res.AllScalar,
	})
	if err != nil {
		return graph.Tensor{}, err
	}
	if emitted.Registered {
		logger.Debug("adding codelet to graph", "codelet", emitted.Name, "vectorized", emitted.Vectorized)
	} else {
		logger.Debug("codelet already in graph", "codelet", emitted.Name)
	}
	return dispatch.Dispatch(g, prog, dispatch.Request{
		Codelet:     emitted.Name,
		Name:        cfg.name + "/" + emitted.Name,
		Operands:    operands,
		InPlace:     cfg.inPlace,
		OutputType:  emitted.ReturnType,
		VectorWidth: emitted.VectorWidth,
		NumFusedOps: emitted.NumFusedOps,
	})
}

// Generation requests the generation of the codelet of an expression.
type Generation struct {
	Expr     expr.Expr
	Operands []expr.Operand
	InPlace  bool
}

// GenerateAll generates and registers the fused codelets of several
// expressions concurrently. Expressions with a single operator are fused.
// Identical codelets are registered once.
func GenerateAll(ctx context.Context, reg emit.Registry, tgt target.Target, gens []Generation) ([]*emit.Emitted, error) {
	r := make([]*emit.Emitted, len(gens))
	eg, ctx := errgroup.WithContext(ctx)
	for i, gen := range gens {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			emitted, err := generate(reg, tgt, gen)
			if err != nil {
				return errors.WithMessagef(err, "expression %d %s", i, gen.Expr)
			}
			r[i] = emitted
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return r, nil
}

func generate(reg emit.Registry, tgt target.Target, gen Generation) (*emit.Emitted, error) {
	types, err := analyze.Validate(gen.Expr, gen.Operands, gen.InPlace)
	if err != nil {
		return nil, err
	}
	res := analyze.Analyze(gen.Expr, gen.Operands, true)
	if !res.Eligible {
		return nil, errors.Errorf("expression cannot be fused")
	}
	c, err := synth.Synthesize(gen.Expr, types, gen.Operands)
	if err != nil {
		return nil, err
	}
	return emit.Emit(reg, tgt, emit.Request{
		Expr:      gen.Expr,
		Types:     types,
		Codelet:   c,
		InPlace:   gen.InPlace,
		AllScalar: res.AllScalar,
	})
}
