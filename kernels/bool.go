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

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr"
)

type (
	boolFactory struct{}

	boolConverter struct{}
)

var _ Factory = boolFactory{}

func (boolConverter) toFloat64(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func (c boolConverter) toInt64(v bool) int64 { return int64(c.toFloat64(v)) }
func (boolConverter) toBool(v bool) bool     { return v }

// ToBoolArray returns an array of booleans.
func ToBoolArray(values []bool) Array {
	return &arrayT[bool]{factory: boolFactory{}, conv: boolConverter{}, values: values}
}

func (boolFactory) Type() elem.Type {
	return elem.Bool
}

func (boolFactory) Zeros(n int) Array {
	return ToBoolArray(make([]bool, n))
}

func (boolFactory) FromFloat64s(vals []float64) Array {
	return ToBoolArray(mapValues(vals, func(v float64) bool { return v != 0 }))
}

func (boolFactory) FromInt64s(vals []int64) Array {
	return ToBoolArray(mapValues(vals, func(v int64) bool { return v != 0 }))
}

func (boolFactory) FromBools(vals []bool) Array {
	return ToBoolArray(vals)
}

func (boolFactory) UnaryOp(op expr.UnaryOpType) (Unary, error) {
	if op != expr.OpLogicalNot {
		return nil, errors.Errorf("unary operator %s not supported for bool", op)
	}
	return unaryKernel(func(x bool) bool { return !x }, ToBoolArray), nil
}

func (boolFactory) BinaryOp(op expr.BinaryOpType) (Binary, error) {
	var fn func(x, y bool) bool
	switch op {
	case expr.OpLogicalAnd, expr.OpBitwiseAnd, expr.OpMinimum:
		fn = func(x, y bool) bool { return x && y }
	case expr.OpLogicalOr, expr.OpBitwiseOr, expr.OpMaximum:
		fn = func(x, y bool) bool { return x || y }
	case expr.OpEqual:
		fn = func(x, y bool) bool { return x == y }
	case expr.OpNotEqual, expr.OpBitwiseXor:
		fn = func(x, y bool) bool { return x != y }
	default:
		return nil, errors.Errorf("binary operator %s not supported for bool", op)
	}
	return binaryKernel(fn, ToBoolArray), nil
}

func (boolFactory) Clamp() (Ternary, error) {
	return nil, errors.Errorf("clamp not supported for bool")
}
