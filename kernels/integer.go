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
	"math/bits"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr"
)

type (
	integerFactory[T constraints.Integer] struct {
		typ elem.Type
	}

	integerConverter[T constraints.Integer] struct{}
)

var _ Factory = integerFactory[int32]{}

func (integerConverter[T]) toFloat64(v T) float64 { return float64(v) }
func (integerConverter[T]) toInt64(v T) int64     { return int64(v) }
func (integerConverter[T]) toBool(v T) bool       { return v != 0 }

// ToIntegerArray returns an array of integer values.
func ToIntegerArray[T constraints.Integer](t elem.Type, values []T) Array {
	return integerFactory[T]{typ: t}.build(values)
}

func integerFromRaw[T constraints.Integer](t elem.Type, data []byte) (Array, error) {
	vals, err := decode[T](data)
	if err != nil {
		return nil, err
	}
	return ToIntegerArray(t, vals), nil
}

func (f integerFactory[T]) build(values []T) Array {
	return &arrayT[T]{factory: f, conv: integerConverter[T]{}, values: values}
}

func (f integerFactory[T]) Type() elem.Type {
	return f.typ
}

func (f integerFactory[T]) Zeros(n int) Array {
	return f.build(make([]T, n))
}

func (f integerFactory[T]) FromFloat64s(vals []float64) Array {
	return f.build(mapValues(vals, func(v float64) T { return T(int64(v)) }))
}

func (f integerFactory[T]) FromInt64s(vals []int64) Array {
	return f.build(mapValues(vals, func(v int64) T { return T(v) }))
}

func (f integerFactory[T]) FromBools(vals []bool) Array {
	return f.build(mapValues(vals, func(v bool) T {
		if v {
			return 1
		}
		return 0
	}))
}

// numBits returns the number of bits of the device type.
func (f integerFactory[T]) numBits() int {
	return 8 * f.typ.Size()
}

// unsigned returns the bits of a value zero-extended to 64 bits.
func (f integerFactory[T]) unsigned(x T) uint64 {
	nb := f.numBits()
	if nb == 64 {
		return uint64(x)
	}
	return uint64(x) & (1<<nb - 1)
}

// signed returns a value sign-extended to 64 bits.
func (f integerFactory[T]) signed(x T) int64 {
	shift := 64 - f.numBits()
	return int64(uint64(x)<<shift) >> shift
}

func (f integerFactory[T]) unaryFunc(op expr.UnaryOpType) func(T) T {
	var zero T
	switch op {
	case expr.OpAbs:
		return func(x T) T {
			if x < zero {
				return -x
			}
			return x
		}
	case expr.OpBitwiseNot:
		return func(x T) T { return ^x }
	case expr.OpCountLeadingZeros:
		return func(x T) T { return T(bits.LeadingZeros64(f.unsigned(x)) - (64 - f.numBits())) }
	case expr.OpNegate:
		return func(x T) T { return -x }
	case expr.OpPopcount:
		return func(x T) T { return T(bits.OnesCount64(f.unsigned(x))) }
	case expr.OpSignum:
		return func(x T) T {
			switch {
			case x > zero:
				return 1
			case x < zero:
				return zero - 1
			}
			return zero
		}
	case expr.OpSqrt:
		return func(x T) T { return T(math.Sqrt(float64(x))) }
	case expr.OpSquare:
		return func(x T) T { return x * x }
	case expr.OpRelu:
		return func(x T) T { return max(x, zero) }
	}
	return nil
}

func (f integerFactory[T]) UnaryOp(op expr.UnaryOpType) (Unary, error) {
	if fn := f.unaryFunc(op); fn != nil {
		return unaryKernel(fn, f.build), nil
	}
	return nil, errors.Errorf("unary operator %s not supported for %s", op, f.typ)
}

func (f integerFactory[T]) binaryFunc(op expr.BinaryOpType) func(T, T) T {
	switch op {
	case expr.OpAdd:
		return func(x, y T) T { return x + y }
	case expr.OpSubtract:
		return func(x, y T) T { return x - y }
	case expr.OpMultiply:
		return func(x, y T) T { return x * y }
	case expr.OpMaximum:
		return func(x, y T) T { return max(x, y) }
	case expr.OpMinimum:
		return func(x, y T) T { return min(x, y) }
	case expr.OpBitwiseAnd:
		return func(x, y T) T { return x & y }
	case expr.OpBitwiseOr:
		return func(x, y T) T { return x | y }
	case expr.OpBitwiseXor:
		return func(x, y T) T { return x ^ y }
	case expr.OpBitwiseXnor:
		return func(x, y T) T { return ^(x ^ y) }
	case expr.OpShiftLeft:
		return func(x, y T) T { return x << f.unsigned(y) }
	case expr.OpShiftRight:
		return func(x, y T) T { return T(f.unsigned(x) >> f.unsigned(y)) }
	case expr.OpShiftRightSignExtend:
		return func(x, y T) T { return T(f.signed(x) >> f.unsigned(y)) }
	case expr.OpPower:
		return func(x, y T) T { return T(math.Pow(float64(x), float64(y))) }
	}
	return nil
}

func (f integerFactory[T]) division(op expr.BinaryOpType) func(T, T) (T, error) {
	switch op {
	case expr.OpDivide:
		return func(x, y T) (T, error) {
			if y == 0 {
				return 0, errors.Errorf("integer division by zero")
			}
			return x / y, nil
		}
	case expr.OpRemainder:
		return func(x, y T) (T, error) {
			if y == 0 {
				return 0, errors.Errorf("integer remainder by zero")
			}
			return x % y, nil
		}
	}
	return nil
}

func (f integerFactory[T]) BinaryOp(op expr.BinaryOpType) (Binary, error) {
	if fn := f.binaryFunc(op); fn != nil {
		return binaryKernel(fn, f.build), nil
	}
	if fn := comparison[T](op); fn != nil {
		return binaryKernel(fn, ToBoolArray), nil
	}
	if fn := f.division(op); fn != nil {
		return func(xVal, yVal Array) (Array, error) {
			var err error
			z, errB := binaryKernel(func(x, y T) T {
				v, errV := fn(x, y)
				if errV != nil && err == nil {
					err = errV
				}
				return v
			}, f.build)(xVal, yVal)
			if errB != nil {
				return nil, errB
			}
			if err != nil {
				return nil, err
			}
			return z, nil
		}, nil
	}
	return nil, errors.Errorf("binary operator %s not supported for %s", op, f.typ)
}

func (f integerFactory[T]) Clamp() (Ternary, error) {
	return clampKernel(f.build), nil
}
