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

// Command popfuse prints how an element-wise expression is computed on a
// graph: the result of the fusion analysis, the source of the generated
// codelets and the estimated cycles of every compute set.
//
// Example:
//
//	popfuse -expr 'Add(_1,Mul(_2,_3))' -types float,float,float -shapes 16,16,16 -cycles
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/gx-org/popfuse/codegen"
	"github.com/gx-org/popfuse/codegen/analyze"
	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr/exprparse"
	"github.com/gx-org/popfuse/graph"
	"github.com/gx-org/popfuse/reduce"
	"github.com/gx-org/popfuse/target"
	"github.com/gx-org/popfuse/tools/popflag"
)

var (
	exprSrc    = flag.String("expr", "", "element-wise expression, for example Add(_1,Mul(_2,_3))")
	types      = popflag.StringList("types", "comma separated element types of the operands")
	shapes     = popflag.StringList("shapes", "comma separated shapes of the operands, for example 16,4x4,"+popflag.Scalar)
	force      = flag.Bool("force", false, "fuse expressions with a single operator")
	inPlace    = flag.Bool("inplace", false, "write the result into the first operand")
	showCycles = flag.Bool("cycles", false, "print the estimated cycles of every compute set")
	numTiles   = flag.Int("tiles", 4, "number of tiles of the target")
	reduceOp   = flag.String("reduce", "", "reduce the rows of the result with an operator, for example ADD")
	verbose    = flag.Bool("v", false, "log debug messages on the standard error")
)

type request struct {
	src        string
	types      []string
	shapes     []string
	force      bool
	inPlace    bool
	showCycles bool
	numTiles   int
	reduceOp   string
	logger     *slog.Logger
}

func main() {
	flag.Parse()
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	req := request{
		src:        *exprSrc,
		types:      *types,
		shapes:     *shapes,
		force:      *force,
		inPlace:    *inPlace,
		showCycles: *showCycles,
		numTiles:   *numTiles,
		reduceOp:   *reduceOp,
		logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
	if err := run(context.Background(), os.Stdout, req); err != nil {
		fmt.Fprintf(os.Stderr, "popfuse: %v\n", err)
		os.Exit(1)
	}
}

func addOperands(g *graph.Graph, req request) ([]graph.Tensor, error) {
	if len(req.types) != len(req.shapes) {
		return nil, errors.Errorf("%d type(s) for %d shape(s)", len(req.types), len(req.shapes))
	}
	operands := make([]graph.Tensor, len(req.types))
	for i, typeName := range req.types {
		t, err := elem.Parse(typeName)
		if err != nil {
			return nil, err
		}
		shape, err := popflag.ParseShape(req.shapes[i])
		if err != nil {
			return nil, err
		}
		x := g.AddVariable(t, shape, fmt.Sprintf("_%d", i+1))
		if len(shape) == 0 {
			err = g.SetTileMapping(x, 0)
		} else {
			err = g.MapLinearly(x, g.Target().VectorWidth(t))
		}
		if err != nil {
			return nil, err
		}
		operands[i] = x
	}
	return operands, nil
}

func run(ctx context.Context, w io.Writer, req request) error {
	if req.src == "" {
		return errors.Errorf("no expression: please use -expr to specify one")
	}
	if req.logger == nil {
		req.logger = slog.Default()
	}
	e, err := exprparse.Parse(req.src)
	if err != nil {
		return err
	}
	g, err := graph.New(target.New(req.numTiles))
	if err != nil {
		return err
	}
	operands, err := addOperands(g, req)
	if err != nil {
		return err
	}
	res := analyze.Analyze(e, codegen.Describe(g, operands, req.inPlace), req.force)
	fmt.Fprintf(w, "expression: %s\n", e)
	fmt.Fprintf(w, "operators: %d\n", res.NumOps)
	fmt.Fprintf(w, "all scalar: %t\n", res.AllScalar)
	fmt.Fprintf(w, "fused: %t\n", res.Eligible)

	opts := []codegen.Option{
		codegen.ForceGenerateCodelet(req.force),
		codegen.WithLogger(req.logger),
	}
	if req.inPlace {
		opts = append(opts, codegen.InPlace())
	}
	before := g.Codelets()
	prog := graph.NewSequence()
	out, err := codegen.Map(g, e, operands, prog, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "output: %s\n", out)
	if req.reduceOp != "" {
		if out, err = reduceRows(ctx, g, out, req, prog); err != nil {
			return err
		}
		fmt.Fprintf(w, "reduced: %s\n", out)
	}
	for _, name := range lo.Without(g.Codelets(), before...) {
		c, _ := g.Codelet(name)
		if c.Source == "" {
			continue
		}
		fmt.Fprintf(w, "\n// codelet %s\n%s\n", name, c.Source)
	}
	if req.showCycles {
		printCycles(w, prog)
	}
	return nil
}

// reduceRows reduces the rows of a tensor of rank 2 or more. The
// dimensions after the first are flattened into columns.
func reduceRows(ctx context.Context, g *graph.Graph, x graph.Tensor, req request, prog *graph.Sequence) (graph.Tensor, error) {
	op, err := reduce.ParseOp(req.reduceOp)
	if err != nil {
		return graph.Tensor{}, err
	}
	shape := x.Shape()
	if len(shape) < 2 {
		return graph.Tensor{}, errors.Errorf("cannot reduce the rows of a tensor of shape %v", shape)
	}
	m, err := x.Reshape([]int{shape[0], x.NumElements() / shape[0]})
	if err != nil {
		return graph.Tensor{}, err
	}
	out, err := reduce.Plan(ctx, g, m, op, prog, reduce.WithLogger(req.logger))
	if err != nil {
		return graph.Tensor{}, err
	}
	final, ok := out.Final()
	if !ok {
		return graph.Tensor{}, errors.Errorf("reduction stopped at intermediate partials")
	}
	return final, nil
}

func printCycles(w io.Writer, prog *graph.Sequence) {
	var total uint64
	fmt.Fprintln(w)
	for _, p := range prog.Programs() {
		x, ok := p.(*graph.Execute)
		if !ok {
			continue
		}
		estimate := x.CS.CycleEstimate()
		total += estimate
		fmt.Fprintf(w, "%s: %d cycles\n", x.CS.Name(), estimate)
	}
	fmt.Fprintf(w, "total: %d cycles\n", total)
}
