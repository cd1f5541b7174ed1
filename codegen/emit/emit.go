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

// Package emit generates the source of a fused codelet and registers it.
package emit

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/gx-org/popfuse/base/tmpl"
	"github.com/gx-org/popfuse/codegen/synth"
	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr"
	"github.com/gx-org/popfuse/graph"
	"github.com/gx-org/popfuse/kernels"
	"github.com/gx-org/popfuse/target"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Registry stores the codelets of a graph.
type Registry interface {
	// HasCodelet returns true if a codelet has already been registered.
	HasCodelet(name string) bool
	// AddCodelet registers a codelet if no codelet with the same name exists.
	// It returns false if the codelet was already registered.
	AddCodelet(*graph.Codelet) bool
}

var _ Registry = (*graph.Graph)(nil)

// Request describes the codelet to emit.
type Request struct {
	// Expr is the expression computed by the codelet.
	Expr expr.Expr
	// Types of the constants of the expression.
	Types expr.Types
	// Codelet synthesized from the expression.
	Codelet *synth.Codelet
	// InPlace is true if the result is written into the first operand.
	InPlace bool
	// AllScalar is true if every operand has a single element.
	AllScalar bool
}

// Emitted describes a codelet emitted into a registry.
type Emitted struct {
	// Name of the codelet.
	Name string
	// Source of the codelet. Empty if the codelet had already been registered.
	Source string
	// Registered is true if this call registered the codelet.
	Registered bool
	// Vectorized is true if the source has a vectorized loop.
	Vectorized bool
	// VectorWidth is the number of elements processed by one iteration of the vectorized loop.
	VectorWidth int
	// NumFusedOps is the number of operators fused in the codelet.
	NumFusedOps int
	// ReturnType is the element type written by the codelet.
	ReturnType elem.Type
}

// Name returns the name of the codelet computing an expression.
// The name is derived from the structure of the expression, the in-place and
// scalar flags, and a hash of the canonical form of the expression.
func Name(req Request) string {
	operands := req.Codelet.Operands
	var b strings.Builder
	b.WriteString("Fused_")
	b.WriteString(expr.Name(req.Expr, operands))
	b.WriteString(digit(req.InPlace))
	b.WriteString(digit(req.AllScalar))
	for _, op := range operands {
		b.WriteString(digit(op.IsScalar()))
	}
	b.WriteString("_")
	b.WriteString(expr.Hash(expr.Canonical(req.Expr, req.Types, operands))[:8])
	return b.String()
}

func digit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// VectorWidth returns the narrowest vector width of the types used by a codelet.
func VectorWidth(tgt target.Target, c *synth.Codelet) int {
	width := 0
	for _, t := range c.AliasTypes {
		w := tgt.VectorWidth(t)
		if width == 0 || w < width {
			width = w
		}
	}
	return max(width, 1)
}

// Emit generates the source of a codelet and registers it.
// No source is generated if a codelet with the same name is already registered.
func Emit(reg Registry, tgt target.Target, req Request) (*Emitted, error) {
	c := req.Codelet
	vw := VectorWidth(tgt, c)
	out := &Emitted{
		Name:        Name(req),
		Vectorized:  c.IsVectorized() && vw > 1 && !req.AllScalar,
		VectorWidth: vw,
		NumFusedOps: c.NumFusedOps,
		ReturnType:  c.ReturnType(),
	}
	if reg.HasCodelet(out.Name) {
		return out, nil
	}
	if req.InPlace && c.ReturnType() != c.Operands[0].Type {
		return nil, errors.Errorf("codelet %s returns %s and cannot write in place into %s", out.Name, c.ReturnType(), c.Operands[0].Type)
	}
	data, err := newSourceData(out, req, vw)
	if err != nil {
		return nil, err
	}
	src, err := tmpl.Render(templates, "codelet", data)
	if err != nil {
		return nil, err
	}
	out.Source = src
	out.Registered = reg.AddCodelet(&graph.Codelet{
		Name:   out.Name,
		Source: src,
		Impl:   hostImpl(req),
	})
	return out, nil
}

// OutputField returns the field of a codelet receiving its result.
func OutputField(inPlace bool) string {
	if inPlace {
		return InputField(0)
	}
	return "out"
}

// InputField returns the field of a codelet receiving the i-th operand (0-based).
func InputField(i int) string {
	return fmt.Sprintf("in%d", i+1)
}

type (
	aliasData struct {
		Name, Scalar, Vector string
	}

	constantData struct {
		Name, Alias, Scalar, Vector string
	}

	loadData struct {
		Name, Alias, Field, Pointer, Broadcast string
		Scalar                                 bool
	}

	sourceData struct {
		Name        string
		Fields      string
		Size        string
		Out         string
		OutScalar   bool
		Vectorized  bool
		VectorWidth int
		Aliases     []aliasData
		Constants   []constantData
		Loads       []loadData
		Body        string
		Result      string
		ResultAlias string
	}
)

func broadcast(value string, width int) string {
	vals := make([]string, width)
	for i := range vals {
		vals[i] = value
	}
	return "{" + strings.Join(vals, ", ") + "}"
}

func newSourceData(e *Emitted, req Request, vw int) (*sourceData, error) {
	c := req.Codelet
	outField := OutputField(req.InPlace)
	data := &sourceData{
		Name:        e.Name,
		Out:         outField,
		OutScalar:   req.AllScalar,
		Vectorized:  e.Vectorized,
		VectorWidth: vw,
		Result:      c.Result.Name,
		ResultAlias: c.ReturnType().Alias(),
	}
	if req.AllScalar {
		data.Size = "1"
	} else {
		data.Size = outField + ".size()"
	}
	for _, t := range c.AliasTypes {
		data.Aliases = append(data.Aliases, aliasData{
			Name:   t.Alias(),
			Scalar: t.String(),
			Vector: fmt.Sprintf("%s%d", t.ShortName(), vw),
		})
	}
	for _, k := range c.Constants {
		data.Constants = append(data.Constants, constantData{
			Name:   k.Name,
			Alias:  k.Type.Alias(),
			Scalar: k.Literal,
			Vector: broadcast(k.Literal, vw),
		})
	}
	for _, idx := range c.UsedPlaceholders {
		op := c.Operands[idx-1]
		field := InputField(idx - 1)
		data.Loads = append(data.Loads, loadData{
			Name:      fmt.Sprintf("load%d", idx),
			Alias:     op.Type.Alias(),
			Field:     field,
			Pointer:   "In" + field[len("in"):],
			Broadcast: broadcast(field, vw),
			Scalar:    op.IsScalar(),
		})
	}
	var err error
	if data.Fields, err = fields(req); err != nil {
		return nil, err
	}
	data.Body = tmpl.Indent(strings.TrimSuffix(strings.Join(c.Initializers, ""), "\n"), "        ")
	return data, nil
}

func fields(req Request) (string, error) {
	c := req.Codelet
	var decls []string
	if !req.InPlace {
		ret := c.ReturnType().String()
		if req.AllScalar {
			decls = append(decls, fmt.Sprintf("Output<%s> out;", ret))
		} else {
			decls = append(decls, fmt.Sprintf("Output<Vector<%s, VectorLayout::SPAN, 8>> out;", ret))
		}
	}
	inputs, err := tmpl.IterateFunc(c.Operands, func(i int, op expr.Operand) (string, error) {
		field := InputField(i)
		t := op.Type.String()
		switch {
		case req.InPlace && i == 0 && op.IsScalar():
			return fmt.Sprintf("InOut<%s> %s;", t, field), nil
		case req.InPlace && i == 0:
			return fmt.Sprintf("InOut<Vector<%s, VectorLayout::SPAN, 8>> %s;", t, field), nil
		case op.IsScalar():
			return fmt.Sprintf("Input<%s> %s;", t, field), nil
		}
		return fmt.Sprintf("Input<Vector<%s, VectorLayout::ONE_PTR, 8>> %s;", t, field), nil
	})
	if err != nil {
		return "", err
	}
	decls = append(decls, inputs)
	return tmpl.Indent(strings.Join(decls, "\n"), "  "), nil
}

// hostImpl returns the host implementation of a fused codelet.
// It evaluates the expression with the host kernels.
func hostImpl(req Request) graph.Impl {
	e, types, inPlace := req.Expr, req.Types, req.InPlace
	numOperands := len(req.Codelet.Operands)
	return func(s *graph.VertexState) error {
		operands := make([]kernels.Array, numOperands)
		for i := range operands {
			var err error
			if operands[i], err = s.Input(InputField(i)); err != nil {
				return err
			}
		}
		r, err := kernels.Eval(e, types, operands)
		if err != nil {
			return err
		}
		outField := OutputField(inPlace)
		n := 1
		for _, t := range s.Vertex().Field(outField) {
			n = t.NumElements()
		}
		return s.Output(outField, kernels.Broadcast(r, n))
	}
}
