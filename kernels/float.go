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
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr"
)

type (
	floatFactory[T constraints.Float] struct {
		typ elem.Type
	}

	floatConverter[T constraints.Float] struct{}
)

var _ Factory = floatFactory[float32]{}

func (floatConverter[T]) toFloat64(v T) float64 { return float64(v) }
func (floatConverter[T]) toInt64(v T) int64     { return int64(v) }
func (floatConverter[T]) toBool(v T) bool       { return v != 0 }

// ToFloatArray returns an array of floating point values.
func ToFloatArray[T constraints.Float](t elem.Type, values []T) Array {
	return floatFactory[T]{typ: t}.array(values)
}

func (f floatFactory[T]) array(values []T) *arrayT[T] {
	return &arrayT[T]{factory: f, conv: floatConverter[T]{}, values: values}
}

func (f floatFactory[T]) build(values []T) Array {
	return f.array(values)
}

func (f floatFactory[T]) Type() elem.Type {
	return f.typ
}

func (f floatFactory[T]) Zeros(n int) Array {
	return f.array(make([]T, n))
}

func (f floatFactory[T]) FromFloat64s(vals []float64) Array {
	return f.array(mapValues(vals, func(v float64) T { return T(v) }))
}

func (f floatFactory[T]) FromInt64s(vals []int64) Array {
	return f.array(mapValues(vals, func(v int64) T { return T(v) }))
}

func (f floatFactory[T]) FromBools(vals []bool) Array {
	return f.array(mapValues(vals, func(v bool) T {
		if v {
			return 1
		}
		return 0
	}))
}

func kernelize[T constraints.Float](fn func(float64) float64) func(T) T {
	return func(x T) T { return T(fn(float64(x))) }
}

func floatUnaryFunc[T constraints.Float](op expr.UnaryOpType) func(T) T {
	switch op {
	case expr.OpAbs:
		return kernelize[T](math.Abs)
	case expr.OpAsin:
		return kernelize[T](math.Asin)
	case expr.OpCbrt:
		return kernelize[T](math.Cbrt)
	case expr.OpCeil:
		return kernelize[T](math.Ceil)
	case expr.OpCos:
		return kernelize[T](math.Cos)
	case expr.OpExp:
		return kernelize[T](math.Exp)
	case expr.OpExpMinusOne:
		return kernelize[T](math.Expm1)
	case expr.OpFloor:
		return kernelize[T](math.Floor)
	case expr.OpInverse:
		return func(x T) T { return 1 / x }
	case expr.OpLog:
		return kernelize[T](math.Log)
	case expr.OpLogOnePlus:
		return kernelize[T](math.Log1p)
	case expr.OpNegate:
		return func(x T) T { return -x }
	case expr.OpSignum:
		return func(x T) T {
			switch {
			case x > 0:
				return 1
			case x < 0:
				return -1
			}
			return x
		}
	case expr.OpSin:
		return kernelize[T](math.Sin)
	case expr.OpTan:
		return kernelize[T](math.Tan)
	case expr.OpTanh:
		return kernelize[T](math.Tanh)
	case expr.OpRound:
		return kernelize[T](math.Round)
	case expr.OpSqrt:
		return kernelize[T](math.Sqrt)
	case expr.OpSquare:
		return func(x T) T { return x * x }
	case expr.OpSigmoid:
		return kernelize[T](func(x float64) float64 { return 1 / (1 + math.Exp(-x)) })
	case expr.OpRsqrt:
		return kernelize[T](func(x float64) float64 { return 1 / math.Sqrt(x) })
	case expr.OpRelu:
		return func(x T) T { return max(x, 0) }
	}
	return nil
}

func floatPredicate[T constraints.Float](op expr.UnaryOpType) func(T) bool {
	switch op {
	case expr.OpIsFinite:
		return func(x T) bool { return !math.IsNaN(float64(x)) && !math.IsInf(float64(x), 0) }
	case expr.OpIsInf:
		return func(x T) bool { return math.IsInf(float64(x), 0) }
	case expr.OpIsNaN:
		return func(x T) bool { return math.IsNaN(float64(x)) }
	}
	return nil
}

func (f floatFactory[T]) UnaryOp(op expr.UnaryOpType) (Unary, error) {
	if fn := floatUnaryFunc[T](op); fn != nil {
		return unaryKernel(fn, f.build), nil
	}
	if fn := floatPredicate[T](op); fn != nil {
		return unaryKernel(fn, ToBoolArray), nil
	}
	return nil, errors.Errorf("unary operator %s not supported for %s", op, f.typ)
}

func floatBinaryFunc[T constraints.Float](op expr.BinaryOpType) func(T, T) T {
	switch op {
	case expr.OpAdd:
		return func(x, y T) T { return x + y }
	case expr.OpSubtract:
		return func(x, y T) T { return x - y }
	case expr.OpMultiply:
		return func(x, y T) T { return x * y }
	case expr.OpDivide:
		return func(x, y T) T { return x / y }
	case expr.OpMaximum:
		return func(x, y T) T { return max(x, y) }
	case expr.OpMinimum:
		return func(x, y T) T { return min(x, y) }
	case expr.OpAtan2:
		return func(x, y T) T { return T(math.Atan2(float64(x), float64(y))) }
	case expr.OpPower:
		return func(x, y T) T { return T(math.Pow(float64(x), float64(y))) }
	case expr.OpRemainder:
		return func(x, y T) T { return T(math.Mod(float64(x), float64(y))) }
	case expr.OpInvStdDevToVariance:
		return func(x, y T) T { return 1/(x*x) - y }
	case expr.OpVarianceToInvStdDev:
		return func(x, y T) T { return T(1 / math.Sqrt(float64(x+y))) }
	}
	return nil
}

func comparison[T constraints.Ordered](op expr.BinaryOpType) func(T, T) bool {
	switch op {
	case expr.OpEqual:
		return func(x, y T) bool { return x == y }
	case expr.OpNotEqual:
		return func(x, y T) bool { return x != y }
	case expr.OpGreaterThan:
		return func(x, y T) bool { return x > y }
	case expr.OpGreaterThanEqual:
		return func(x, y T) bool { return x >= y }
	case expr.OpLessThan:
		return func(x, y T) bool { return x < y }
	case expr.OpLessThanEqual:
		return func(x, y T) bool { return x <= y }
	}
	return nil
}

func (f floatFactory[T]) BinaryOp(op expr.BinaryOpType) (Binary, error) {
	if fn := floatBinaryFunc[T](op); fn != nil {
		return binaryKernel(fn, f.build), nil
	}
	if fn := comparison[T](op); fn != nil {
		return binaryKernel(fn, ToBoolArray), nil
	}
	return nil, errors.Errorf("binary operator %s not supported for %s", op, f.typ)
}

func (f floatFactory[T]) Clamp() (Ternary, error) {
	return clampKernel(f.build), nil
}

func clampKernel[T constraints.Ordered](build func([]T) Array) Ternary {
	return func(xVal, lowVal, highVal Array) (Array, error) {
		x, low, err := binaryValues[T](xVal, lowVal)
		if err != nil {
			return nil, err
		}
		_, high, err := binaryValues[T](xVal, highVal)
		if err != nil {
			return nil, err
		}
		n, err := broadcastLen(len(x), len(low), len(high))
		if err != nil {
			return nil, err
		}
		z := make([]T, n)
		for i := range z {
			v := min(x[min(i, len(x)-1)], high[min(i, len(high)-1)])
			z[i] = max(low[min(i, len(low)-1)], v)
		}
		return build(z), nil
	}
}
