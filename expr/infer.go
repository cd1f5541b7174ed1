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

package expr

import (
	"github.com/pkg/errors"

	"github.com/gx-org/popfuse/elem"
)

// Types maps every constant of an expression to its resolved element type.
type Types map[*Const]elem.Type

// Of returns the resolved type of a constant, or its host type if unresolved.
func (ts Types) Of(c *Const) elem.Type {
	if t, ok := ts[c]; ok {
		return t
	}
	return c.host
}

type inferer struct {
	operands []Operand
	types    Types
}

// InferTypes resolves the type of every constant from the operand it is combined with.
// A constant combined only with other constants keeps its host type.
func InferTypes(e Expr, operands []Operand) (Types, error) {
	inf := &inferer{operands: operands, types: make(Types)}
	if _, _, err := inf.typeOf(e); err != nil {
		return nil, err
	}
	return inf.types, nil
}

// TypeOf returns the element type of the value of an expression.
func TypeOf(e Expr, operands []Operand) (elem.Type, error) {
	inf := &inferer{operands: operands, types: make(Types)}
	t, _, err := inf.typeOf(e)
	return t, err
}

// typeOf returns the type of an expression and whether it depends only on constants.
func (inf *inferer) typeOf(e Expr) (elem.Type, bool, error) {
	switch n := e.(type) {
	case *Const:
		if _, ok := inf.types[n]; !ok {
			inf.types[n] = n.host
		}
		return n.host, true, nil
	case *PlaceHolder:
		if n.Index < 1 || n.Index > len(inf.operands) {
			return elem.Invalid, false, errors.Errorf("placeholder %s out of range: %d operand(s)", n, len(inf.operands))
		}
		return inf.operands[n.Index-1].Type, false, nil
	case *Cast:
		_, isConst, err := inf.typeOf(n.X)
		return n.To, isConst, err
	case *UnaryOp:
		t, isConst, err := inf.typeOf(n.X)
		return UnaryReturnType(n.Op, t), isConst, err
	case *BinaryOp:
		t, isConst, err := inf.unify(n, n.X, n.Y)
		return BinaryReturnType(n.Op, t), isConst, err
	case *TernaryOp:
		if n.Op == OpSelect {
			if err := inf.expect(n.Z, elem.Bool); err != nil {
				return elem.Invalid, false, err
			}
			return inf.unify(n, n.X, n.Y)
		}
		return inf.unify(n, n.X, n.Y, n.Z)
	}
	return elem.Invalid, false, errors.Errorf("expression node %T not supported", e)
}

// unify resolves the constants of a set of arguments which must share the same type.
func (inf *inferer) unify(parent Expr, args ...Expr) (elem.Type, bool, error) {
	types := make([]elem.Type, len(args))
	isConst := make([]bool, len(args))
	ref := -1
	for i, arg := range args {
		var err error
		types[i], isConst[i], err = inf.typeOf(arg)
		if err != nil {
			return elem.Invalid, false, err
		}
		if ref < 0 && !isConst[i] {
			ref = i
		}
	}
	if ref < 0 {
		return types[0], true, nil
	}
	for i, arg := range args {
		if isConst[i] {
			if err := inf.assign(arg, types[ref]); err != nil {
				return elem.Invalid, false, errors.Wrapf(err, "in %s", parent)
			}
			continue
		}
		if types[i] != types[ref] {
			return elem.Invalid, false, errors.Errorf("type mismatch in %s: %s and %s", parent, types[ref], types[i])
		}
	}
	return types[ref], false, nil
}

// expect checks or resolves the type of an argument which must be of a given type.
func (inf *inferer) expect(arg Expr, want elem.Type) error {
	got, isConst, err := inf.typeOf(arg)
	if err != nil {
		return err
	}
	if isConst {
		return inf.assign(arg, want)
	}
	if got != want {
		return errors.Errorf("%s is of type %s but want %s", arg, got, want)
	}
	return nil
}

// assign sets the type of every constant of a constant-only subtree.
func (inf *inferer) assign(e Expr, t elem.Type) error {
	switch n := e.(type) {
	case *Const:
		if err := checkRepresentable(n, t); err != nil {
			return err
		}
		if prev, ok := inf.types[n]; ok && prev != n.host && prev != t {
			return errors.Errorf("constant %s used with types %s and %s", n, prev, t)
		}
		inf.types[n] = t
	case *UnaryOp:
		if !n.Op.ReturnsBool() {
			return inf.assign(n.X, t)
		}
	case *BinaryOp:
		if !n.Op.ReturnsBool() {
			if err := inf.assign(n.X, t); err != nil {
				return err
			}
			return inf.assign(n.Y, t)
		}
	case *TernaryOp:
		if err := inf.assign(n.X, t); err != nil {
			return err
		}
		if err := inf.assign(n.Y, t); err != nil {
			return err
		}
		if n.Op == OpClamp {
			return inf.assign(n.Z, t)
		}
	}
	return nil
}

func checkRepresentable(c *Const, t elem.Type) error {
	switch {
	case c.host.IsFloat() && !t.IsFloat():
		return errors.Errorf("floating point constant %s cannot be used with a %s operand", c.Print(), t)
	case c.host == elem.Bool && t != elem.Bool:
		return errors.Errorf("boolean constant %s cannot be used with a %s operand", c.Print(), t)
	case c.host != elem.Bool && t == elem.Bool:
		return errors.Errorf("numeric constant %s cannot be used with a bool operand", c.Print())
	case t.IsInteger() && !t.IsSigned() && c.IsNegative():
		return errors.Errorf("negative constant %s cannot be used with a %s operand", c.Print(), t)
	}
	return nil
}
