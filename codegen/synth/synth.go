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

// Package synth translates an expression into the statements of a codelet.
//
// The expression is visited once in post-order. Every node pushes one value
// on a stack. Internal nodes pop their arguments and append an initializer
// statement declaring the variable holding their result. Placeholders are
// not loaded: the emitter loads operands inside the loops of the codelet.
package synth

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"

	"github.com/gx-org/popfuse/base/ordered"
	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr"
)

type (
	// Value is a variable of the generated code.
	Value struct {
		// Name of the variable.
		Name string
		// Type of the variable.
		Type elem.Type
		// IsConstant is true if the value only depends on constants.
		IsConstant bool
	}

	// Constant declared by a codelet.
	Constant struct {
		Name    string
		Type    elem.Type
		Literal string
	}

	// Codelet is the result of the synthesis of an expression.
	Codelet struct {
		// Initializers declare a variable for every internal node, in post-order.
		Initializers []string
		// Constants in order of appearance.
		Constants []Constant
		// AliasTypes are the types used by the code, in order of appearance.
		// The code refers to them with their alias.
		AliasTypes []elem.Type
		// UsedPlaceholders lists the indices of the operands read by the code, in increasing order.
		UsedPlaceholders []int
		// Result is the value computed by the code.
		Result Value
		// NumFusedOps is the number of operators fused in the code.
		NumFusedOps int
		// Vectorized is true if the code can be executed on vectors of elements.
		Vectorized bool
		// Pushes and Pops count the stack operations of the synthesis.
		Pushes, Pops int
		// Operands of the expression.
		Operands []expr.Operand
	}
)

// ReturnType returns the type of the value computed by the codelet.
func (c *Codelet) ReturnType() elem.Type {
	return c.Result.Type
}

// IsVectorized returns true if the codelet can be vectorized.
func (c *Codelet) IsVectorized() bool {
	return c.Vectorized
}

type synthesizer struct {
	types    expr.Types
	operands []expr.Operand

	stack      []Value
	inits      []string
	constants  []Constant
	aliases    *ordered.Set[elem.Type]
	used       *ordered.Set[int]
	numOps     int
	vectorized bool
	pushes     int
	pops       int
}

// Synthesize generates the statements computing an expression.
// Constant types must have been resolved by expr.InferTypes.
func Synthesize(e expr.Expr, types expr.Types, operands []expr.Operand) (*Codelet, error) {
	s := &synthesizer{
		types:      types,
		operands:   operands,
		aliases:    ordered.NewSet[elem.Type](),
		used:       ordered.NewSet[int](),
		vectorized: true,
	}
	if err := s.visit(e); err != nil {
		return nil, err
	}
	if len(s.stack) != 1 {
		return nil, errors.Errorf("synthesis of %s left %d value(s) on the stack", e, len(s.stack))
	}
	used := s.used.Slice()
	slices.Sort(used)
	return &Codelet{
		Initializers:     s.inits,
		Constants:        s.constants,
		AliasTypes:       s.aliases.Slice(),
		UsedPlaceholders: used,
		Result:           s.stack[0],
		NumFusedOps:      s.numOps,
		Vectorized:       s.vectorized,
		Pushes:           s.pushes,
		Pops:             s.pops,
		Operands:         operands,
	}, nil
}

func (s *synthesizer) push(v Value) {
	s.pushes++
	s.stack = append(s.stack, v)
}

func (s *synthesizer) pop() Value {
	s.pops++
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v
}

func (s *synthesizer) newVar() string {
	return fmt.Sprintf("var_%d", len(s.inits))
}

func (s *synthesizer) declare(t elem.Type, format string, args ...any) Value {
	s.aliases.Add(t)
	name := s.newVar()
	s.inits = append(s.inits, fmt.Sprintf("const %s %s = %s;\n", t.Alias(), name, fmt.Sprintf(format, args...)))
	return Value{Name: name, Type: t}
}

func (s *synthesizer) visit(e expr.Expr) error {
	switch n := e.(type) {
	case *expr.Const:
		s.visitConst(n)
	case *expr.PlaceHolder:
		return s.visitPlaceHolder(n)
	case *expr.Cast:
		if err := s.visit(n.X); err != nil {
			return err
		}
		x := s.pop()
		v := s.declare(n.To, "(%s)%s", n.To.Alias(), x.Name)
		v.IsConstant = x.IsConstant
		s.vectorized = false
		s.push(v)
	case *expr.UnaryOp:
		if err := s.visit(n.X); err != nil {
			return err
		}
		return s.visitUnary(n.Op, s.pop())
	case *expr.BinaryOp:
		if err := s.visit(n.Y); err != nil {
			return err
		}
		if err := s.visit(n.X); err != nil {
			return err
		}
		x := s.pop()
		y := s.pop()
		return s.visitBinary(n.Op, x, y)
	case *expr.TernaryOp:
		for _, arg := range []expr.Expr{n.Z, n.Y, n.X} {
			if err := s.visit(arg); err != nil {
				return err
			}
		}
		x := s.pop()
		y := s.pop()
		z := s.pop()
		return s.visitTernary(n.Op, x, y, z)
	default:
		return errors.Errorf("cannot synthesize expression node %T", e)
	}
	return nil
}

func (s *synthesizer) visitConst(c *expr.Const) {
	t := s.types.Of(c)
	s.aliases.Add(t)
	name := fmt.Sprintf("C%d", len(s.constants)+1)
	s.constants = append(s.constants, Constant{
		Name:    name,
		Type:    t,
		Literal: c.Print(),
	})
	if !t.SupportsVectorization() {
		s.vectorized = false
	}
	s.push(Value{Name: name, Type: t, IsConstant: true})
}

func (s *synthesizer) visitPlaceHolder(p *expr.PlaceHolder) error {
	if p.Index < 1 || p.Index > len(s.operands) {
		return errors.Errorf("placeholder %s out of range: %d operand(s)", p, len(s.operands))
	}
	t := s.operands[p.Index-1].Type
	s.aliases.Add(t)
	s.used.Add(p.Index)
	if !t.SupportsVectorization() {
		s.vectorized = false
	}
	s.push(Value{Name: fmt.Sprintf("load%d", p.Index), Type: t})
	return nil
}

func (s *synthesizer) visitUnary(op expr.UnaryOpType, x Value) error {
	s.numOps++
	t := expr.UnaryReturnType(op, x.Type)
	code, err := unaryCode(op, x)
	if err != nil {
		return err
	}
	s.vectorized = s.vectorized && op.Vectorizable() && t.SupportsVectorization()
	v := s.declare(t, "%s", code)
	v.IsConstant = x.IsConstant
	s.push(v)
	return nil
}

func (s *synthesizer) visitBinary(op expr.BinaryOpType, x, y Value) error {
	s.numOps++
	t := expr.BinaryReturnType(op, x.Type)
	code, err := binaryCode(op, x, y)
	if err != nil {
		return err
	}
	s.vectorized = s.vectorized && op.Vectorizable() && t.SupportsVectorization()
	v := s.declare(t, "%s", code)
	v.IsConstant = x.IsConstant && y.IsConstant
	s.push(v)
	return nil
}

func (s *synthesizer) visitTernary(op expr.TernaryOpType, x, y, z Value) error {
	s.numOps++
	switch op {
	case expr.OpSelect:
		t := x.Type
		if x.IsConstant {
			t = y.Type
		}
		s.aliases.Add(t)
		name := s.newVar()
		s.inits = append(s.inits, fmt.Sprintf("%s %s;\nif (%s) {\n  %s = %s;\n} else {\n  %s = %s;\n}\n",
			t.Alias(), name, z.Name, name, x.Name, name, y.Name))
		// The branch needs a scalar condition.
		s.vectorized = false
		s.push(Value{Name: name, Type: t})
	case expr.OpClamp:
		maxFn, minFn := "max", "min"
		if x.Type.IsFloat() {
			maxFn, minFn = "NAMESPACE::fmax", "NAMESPACE::fmin"
		}
		s.push(s.declare(x.Type, "%s(%s, %s(%s, %s))", maxFn, y.Name, minFn, x.Name, z.Name))
	default:
		return errors.Errorf("ternary operator %s not supported", op)
	}
	return nil
}
