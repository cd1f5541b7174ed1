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

// Package analyze decides if an element-wise expression can be fused
// into a single generated codelet.
package analyze

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gx-org/popfuse/expr"
)

var (
	// ErrShape is the cause of errors reporting operands with incompatible shapes.
	ErrShape = errors.New("incompatible shapes")
	// ErrAlias is the cause of errors reporting an operand that cannot be written in place.
	ErrAlias = errors.New("aliased operand")
	// ErrType is the cause of errors reporting incompatible element types.
	ErrType = errors.New("incompatible types")
)

// Is returns true if one of the errors combined in err has target as its cause.
func Is(err, target error) bool {
	for _, e := range multierr.Errors(err) {
		if errors.Cause(e) == target {
			return true
		}
	}
	return false
}

// Result of the analysis of an expression.
type Result struct {
	// Eligible is true if the expression can be fused.
	Eligible bool
	// AllScalar is true if every operand has a single element.
	AllScalar bool
	// NumOps is the number of unary, binary and ternary operators in the expression.
	NumOps int
}

// Analyze returns if an expression can be fused given its operands.
// A single operator is not worth fusing unless force is set.
// Analyze has no side effect.
func Analyze(e expr.Expr, operands []expr.Operand, force bool) Result {
	if len(operands) == 0 {
		return Result{}
	}
	allScalar := true
	var shape *expr.Operand
	compatible := true
	for i, op := range operands {
		if op.Aliased {
			compatible = false
		}
		if op.IsScalar() {
			continue
		}
		allScalar = false
		if shape == nil {
			shape = &operands[i]
			continue
		}
		if !shape.SameShape(op) {
			compatible = false
		}
	}
	numOps := 0
	ok := check(e, operands, &numOps)
	return Result{
		Eligible:  compatible && ok && (force || numOps > 1),
		AllScalar: allScalar,
		NumOps:    numOps,
	}
}

func check(e expr.Expr, operands []expr.Operand, numOps *int) bool {
	switch n := e.(type) {
	case *expr.Const:
		return n.HostType().FusionSupported() && n.IsFinite()
	case *expr.PlaceHolder:
		if n.Index < 1 || n.Index > len(operands) {
			return false
		}
		return operands[n.Index-1].Type.FusionSupported()
	case *expr.Cast:
		ok := check(n.X, operands, numOps)
		return n.To.FusionSupported() && ok
	case *expr.UnaryOp:
		*numOps++
		return check(n.X, operands, numOps)
	case *expr.BinaryOp:
		*numOps++
		ok := check(n.Y, operands, numOps)
		ok = check(n.X, operands, numOps) && ok
		return ok && n.Op != expr.OpVarianceToInvStdDev && n.Op != expr.OpInvStdDevToVariance
	case *expr.TernaryOp:
		*numOps++
		ok := check(n.Z, operands, numOps)
		ok = check(n.Y, operands, numOps) && ok
		return check(n.X, operands, numOps) && ok
	}
	return false
}

// Validate checks that an expression can be computed with a set of operands.
// All the problems found are returned as a single combined error.
// Use Is to test for ErrShape, ErrAlias or ErrType.
func Validate(e expr.Expr, operands []expr.Operand, inPlace bool) (expr.Types, error) {
	if len(operands) == 0 {
		return nil, errors.Wrap(ErrShape, "no operand")
	}
	var err error
	if maxP := expr.MaxPlaceholder(e); maxP > len(operands) {
		err = multierr.Append(err, errors.Wrapf(ErrShape, "expression uses placeholder _%d but only %d operand(s) are given", maxP, len(operands)))
	}
	var ref *expr.Operand
	for i, op := range operands {
		if op.IsScalar() {
			continue
		}
		if ref == nil {
			ref = &operands[i]
			continue
		}
		if !ref.SameShape(op) {
			err = multierr.Append(err, errors.Wrapf(ErrShape, "operand %d %s does not match operand shape %v and is not a scalar", i+1, op, ref.Shape))
		}
	}
	if inPlace {
		out := operands[0]
		if out.Aliased {
			err = multierr.Append(err, errors.Wrapf(ErrAlias, "operand 1 %s is not writeable in place", out))
		}
		if ref != nil && out.IsScalar() {
			err = multierr.Append(err, errors.Wrapf(ErrShape, "scalar operand 1 cannot store a result of shape %v in place", ref.Shape))
		}
	}
	if err != nil {
		return nil, err
	}
	types, errT := expr.InferTypes(e, operands)
	if errT != nil {
		return nil, errors.Wrapf(ErrType, "%v", errT)
	}
	if inPlace {
		ret, errR := expr.TypeOf(e, operands)
		if errR != nil {
			return nil, errors.Wrapf(ErrType, "%v", errR)
		}
		if ret != operands[0].Type {
			return nil, errors.Wrapf(ErrType, "expression returns %s and cannot be written in place into operand 1 of type %s", ret, operands[0].Type)
		}
	}
	return types, nil
}
