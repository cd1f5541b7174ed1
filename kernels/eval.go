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

package kernels

import (
	"github.com/pkg/errors"

	"github.com/gx-org/popfuse/expr"
)

// Eval evaluates an expression element-wise over operand arrays.
// Constants are converted to the types resolved by expr.InferTypes.
// Scalar operands and constants are broadcast.
func Eval(e expr.Expr, types expr.Types, operands []Array) (Array, error) {
	switch n := e.(type) {
	case *expr.Const:
		return FromConst(n, types.Of(n), 1)
	case *expr.PlaceHolder:
		if n.Index < 1 || n.Index > len(operands) {
			return nil, errors.Errorf("placeholder %s out of range: %d operand(s)", n, len(operands))
		}
		return operands[n.Index-1], nil
	case *expr.Cast:
		x, err := Eval(n.X, types, operands)
		if err != nil {
			return nil, err
		}
		return Cast(x, n.To)
	case *expr.UnaryOp:
		x, err := Eval(n.X, types, operands)
		if err != nil {
			return nil, err
		}
		kernel, err := x.Factory().UnaryOp(n.Op)
		if err != nil {
			return nil, err
		}
		return kernel(x)
	case *expr.BinaryOp:
		x, err := Eval(n.X, types, operands)
		if err != nil {
			return nil, err
		}
		y, err := Eval(n.Y, types, operands)
		if err != nil {
			return nil, err
		}
		kernel, err := x.Factory().BinaryOp(n.Op)
		if err != nil {
			return nil, err
		}
		return kernel(x, y)
	case *expr.TernaryOp:
		x, err := Eval(n.X, types, operands)
		if err != nil {
			return nil, err
		}
		y, err := Eval(n.Y, types, operands)
		if err != nil {
			return nil, err
		}
		z, err := Eval(n.Z, types, operands)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case expr.OpSelect:
			return Select(x, y, z)
		case expr.OpClamp:
			kernel, err := x.Factory().Clamp()
			if err != nil {
				return nil, err
			}
			return kernel(x, y, z)
		}
		return nil, errors.Errorf("ternary operator %s not supported", n.Op)
	}
	return nil, errors.Errorf("expression %T not supported", e)
}
