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

// Package kernels implements host reference kernels for all device element types.
//
// The kernels compute the element-wise operations of fused and primitive
// vertices so that programs built for the device can be executed on the host.
package kernels

import (
	"slices"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr"
)

type (
	// Array is a flat array of device elements stored on the host.
	Array interface {
		// Factory returns the kernels available for the array.
		Factory() Factory

		// Type returns the element type of the array.
		Type() elem.Type

		// Len returns the number of elements.
		Len() int

		// Shape returns the shape of the array as a backend shape.
		// It returns false if the element type has no backend equivalent.
		Shape() (*shape.Shape, bool)

		// Buffer returns the little-endian device representation of the array.
		Buffer() []byte

		// Float64s returns the values converted to float64.
		Float64s() []float64

		// Int64s returns the values converted to int64.
		// Floating point values are truncated.
		Int64s() []int64

		// Bools returns true for every non-zero value.
		Bools() []bool

		// Slice returns the elements in [begin, end).
		Slice(begin, end int) Array

		// String representation of the array.
		String() string

		// pick returns, for each element, the element of the array if cond is true
		// or the element of other otherwise.
		pick(other Array, cond []bool) (Array, error)

		// concat returns the array followed by other arrays of the same type.
		concat(others []Array) (Array, error)

		// broadcast returns an array of n elements from a scalar array.
		broadcast(n int) Array
	}

	// Unary is an element-wise kernel with one operand.
	Unary func(Array) (Array, error)

	// Binary is an element-wise kernel with two operands.
	// A single element operand is broadcast.
	Binary func(Array, Array) (Array, error)

	// Ternary is an element-wise kernel with three operands.
	Ternary func(Array, Array, Array) (Array, error)

	// Factory creates arrays and kernels for a given element type.
	Factory interface {
		// Type of the elements.
		Type() elem.Type

		// Zeros returns an array of n zero elements.
		Zeros(n int) Array

		// FromFloat64s converts float64 values to an array.
		FromFloat64s([]float64) Array

		// FromInt64s converts int64 values to an array.
		FromInt64s([]int64) Array

		// FromBools converts boolean values to an array (1 for true).
		FromBools([]bool) Array

		// UnaryOp returns the kernel of a unary operator.
		UnaryOp(expr.UnaryOpType) (Unary, error)

		// BinaryOp returns the kernel of a binary operator.
		BinaryOp(expr.BinaryOpType) (Binary, error)

		// Clamp returns the kernel clamping a value between a low and a high bound.
		Clamp() (Ternary, error)
	}
)

// FactoryFor returns a factory given an element type.
func FactoryFor(t elem.Type) (Factory, error) {
	switch t {
	case elem.Bool:
		return boolFactory{}, nil
	case elem.Half:
		return halfFactory{}, nil
	case elem.Float:
		return floatFactory[float32]{typ: t}, nil
	case elem.Char, elem.SignedChar:
		return integerFactory[int8]{typ: t}, nil
	case elem.UnsignedChar:
		return integerFactory[uint8]{typ: t}, nil
	case elem.Short:
		return integerFactory[int16]{typ: t}, nil
	case elem.UnsignedShort:
		return integerFactory[uint16]{typ: t}, nil
	case elem.Int:
		return integerFactory[int32]{typ: t}, nil
	case elem.UnsignedInt:
		return integerFactory[uint32]{typ: t}, nil
	case elem.LongLong:
		return integerFactory[int64]{typ: t}, nil
	case elem.UnsignedLongLong:
		return integerFactory[uint64]{typ: t}, nil
	default:
		return nil, errors.Errorf("no factory for %s", t)
	}
}

// NewArrayFromRaw returns a new array from little-endian device data.
func NewArrayFromRaw(t elem.Type, data []byte) (Array, error) {
	if t == elem.Invalid || len(data)%t.Size() != 0 {
		return nil, errors.Errorf("buffer of %d bytes does not contain a whole number of %s", len(data), t)
	}
	if len(data) == 0 {
		f, err := FactoryFor(t)
		if err != nil {
			return nil, err
		}
		return f.Zeros(0), nil
	}
	switch t {
	case elem.Bool:
		return ToBoolArray(slices.Clone(dtype.ToSlice[bool](data))), nil
	case elem.Float:
		return ToFloatArray(t, slices.Clone(dtype.ToSlice[float32](data))), nil
	case elem.Int:
		return ToIntegerArray(t, slices.Clone(dtype.ToSlice[int32](data))), nil
	case elem.UnsignedInt:
		return ToIntegerArray(t, slices.Clone(dtype.ToSlice[uint32](data))), nil
	case elem.LongLong:
		return ToIntegerArray(t, slices.Clone(dtype.ToSlice[int64](data))), nil
	case elem.UnsignedLongLong:
		return ToIntegerArray(t, slices.Clone(dtype.ToSlice[uint64](data))), nil
	case elem.Half:
		vals, err := decode[float16.Float16](data)
		if err != nil {
			return nil, err
		}
		return ToHalfArray(vals), nil
	case elem.Char, elem.SignedChar:
		return integerFromRaw[int8](t, data)
	case elem.UnsignedChar:
		return integerFromRaw[uint8](t, data)
	case elem.Short:
		return integerFromRaw[int16](t, data)
	case elem.UnsignedShort:
		return integerFromRaw[uint16](t, data)
	}
	return nil, errors.Errorf("cannot create an array from raw data: %s not supported", t)
}

// FromConst returns an array of n elements equal to a constant converted to a type.
func FromConst(c *expr.Const, t elem.Type, n int) (Array, error) {
	f, err := FactoryFor(t)
	if err != nil {
		return nil, err
	}
	var scalar Array
	switch {
	case t.IsFloat():
		scalar = f.FromFloat64s([]float64{c.Float()})
	default:
		scalar = f.FromInt64s([]int64{c.Int()})
	}
	return scalar.broadcast(n), nil
}

// Cast converts the elements of an array to another type.
func Cast(x Array, to elem.Type) (Array, error) {
	f, err := FactoryFor(to)
	if err != nil {
		return nil, err
	}
	switch {
	case to == elem.Bool:
		return f.FromBools(x.Bools()), nil
	case to.IsFloat():
		return f.FromFloat64s(x.Float64s()), nil
	default:
		return f.FromInt64s(x.Int64s()), nil
	}
}

// Select returns whenTrue where cond is true and whenFalse elsewhere.
// Scalar operands are broadcast.
func Select(whenTrue, whenFalse, cond Array) (Array, error) {
	if whenTrue.Type() != whenFalse.Type() {
		return nil, errors.Errorf("cannot select between %s and %s", whenTrue.Type(), whenFalse.Type())
	}
	if cond.Type() != elem.Bool {
		return nil, errors.Errorf("select condition is %s, not bool", cond.Type())
	}
	n, err := broadcastLen(whenTrue.Len(), whenFalse.Len(), cond.Len())
	if err != nil {
		return nil, err
	}
	return Broadcast(whenTrue, n).pick(Broadcast(whenFalse, n), Broadcast(cond, n).Bools())
}

// Concat concatenates arrays of the same type.
func Concat(arrays []Array) (Array, error) {
	if len(arrays) == 0 {
		return nil, errors.Errorf("nothing to concatenate")
	}
	return arrays[0].concat(arrays[1:])
}

// Broadcast returns an array of n elements.
// A scalar array is repeated; other arrays are returned unchanged.
func Broadcast(x Array, n int) Array {
	if x.Len() != 1 || n == 1 {
		return x
	}
	return x.broadcast(n)
}

func broadcastLen(lens ...int) (int, error) {
	n := 1
	for _, l := range lens {
		if l == 1 {
			continue
		}
		if n != 1 && n != l {
			return 0, errors.Errorf("cannot broadcast arrays of %v elements", lens)
		}
		n = l
	}
	return n, nil
}

func backendShape(t elem.Type, n int) (*shape.Shape, bool) {
	dt, ok := t.DType()
	if !ok {
		return nil, false
	}
	return &shape.Shape{DType: dt, AxisLengths: []int{n}}, true
}
