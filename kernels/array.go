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
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/gx-org/backend/shape"
	"github.com/pkg/errors"

	"github.com/gx-org/popfuse/elem"
)

type (
	// converter converts a Go element to canonical host values.
	converter[T any] interface {
		toFloat64(T) float64
		toInt64(T) int64
		toBool(T) bool
	}

	// arrayT is a flat array of device elements stored as Go values.
	arrayT[T any] struct {
		factory Factory
		conv    converter[T]
		values  []T
	}
)

func toArray[T any](a Array) *arrayT[T] {
	return a.(*arrayT[T])
}

func (a *arrayT[T]) with(values []T) *arrayT[T] {
	return &arrayT[T]{factory: a.factory, conv: a.conv, values: values}
}

// Factory returns the kernels available for the array.
func (a *arrayT[T]) Factory() Factory {
	return a.factory
}

// Type of the elements.
func (a *arrayT[T]) Type() elem.Type {
	return a.factory.Type()
}

// Len returns the number of elements.
func (a *arrayT[T]) Len() int {
	return len(a.values)
}

// Values returns the Go values of the array.
func (a *arrayT[T]) Values() []T {
	return a.values
}

// Shape returns a one-dimensional backend shape.
func (a *arrayT[T]) Shape() (*shape.Shape, bool) {
	return backendShape(a.Type(), len(a.values))
}

// Buffer returns the data of the array as little-endian bytes.
func (a *arrayT[T]) Buffer() []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, a.values); err != nil {
		// All element types have a fixed size.
		panic(err)
	}
	return buf.Bytes()
}

func (a *arrayT[T]) Float64s() []float64 {
	r := make([]float64, len(a.values))
	for i, v := range a.values {
		r[i] = a.conv.toFloat64(v)
	}
	return r
}

func (a *arrayT[T]) Int64s() []int64 {
	r := make([]int64, len(a.values))
	for i, v := range a.values {
		r[i] = a.conv.toInt64(v)
	}
	return r
}

func (a *arrayT[T]) Bools() []bool {
	r := make([]bool, len(a.values))
	for i, v := range a.values {
		r[i] = a.conv.toBool(v)
	}
	return r
}

// Slice returns the elements in [begin, end).
func (a *arrayT[T]) Slice(begin, end int) Array {
	return a.with(slices.Clone(a.values[begin:end]))
}

func (a *arrayT[T]) String() string {
	return fmt.Sprintf("%s%v", a.Type(), a.values)
}

func (a *arrayT[T]) pick(other Array, cond []bool) (Array, error) {
	o, ok := other.(*arrayT[T])
	if !ok {
		return nil, errors.Errorf("cannot pick values between %s and %s", a.Type(), other.Type())
	}
	r := make([]T, len(a.values))
	for i := range r {
		if cond[i] {
			r[i] = a.values[i]
		} else {
			r[i] = o.values[i]
		}
	}
	return a.with(r), nil
}

func (a *arrayT[T]) concat(others []Array) (Array, error) {
	r := slices.Clone(a.values)
	for _, other := range others {
		o, ok := other.(*arrayT[T])
		if !ok || other.Type() != a.Type() {
			return nil, errors.Errorf("cannot concatenate %s with %s", a.Type(), other.Type())
		}
		r = append(r, o.values...)
	}
	return a.with(r), nil
}

func (a *arrayT[T]) broadcast(n int) Array {
	r := make([]T, n)
	for i := range r {
		r[i] = a.values[0]
	}
	return a.with(r)
}

func decode[T any](data []byte) ([]T, error) {
	var zero T
	size := binary.Size(zero)
	if size <= 0 || len(data)%size != 0 {
		return nil, errors.Errorf("cannot decode %d bytes into %T values", len(data), zero)
	}
	vals := make([]T, len(data)/size)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, vals); err != nil {
		return nil, errors.Wrapf(err, "cannot decode %T values", zero)
	}
	return vals, nil
}

// elements applies a binary function element by element, broadcasting scalars.
func elements[T, R any](x, y []T, f func(T, T) R) ([]R, error) {
	n, err := broadcastLen(len(x), len(y))
	if err != nil {
		return nil, err
	}
	r := make([]R, n)
	for i := range r {
		r[i] = f(x[min(i, len(x)-1)], y[min(i, len(y)-1)])
	}
	return r, nil
}

func mapValues[T, R any](x []T, f func(T) R) []R {
	r := make([]R, len(x))
	for i, xi := range x {
		r[i] = f(xi)
	}
	return r
}

func binaryValues[T any](xVal, yVal Array) ([]T, []T, error) {
	x, xOk := xVal.(*arrayT[T])
	y, yOk := yVal.(*arrayT[T])
	if !xOk || !yOk || xVal.Type() != yVal.Type() {
		return nil, nil, errors.Errorf("operands of type %s and %s do not match", xVal.Type(), yVal.Type())
	}
	return x.values, y.values, nil
}

func binaryKernel[T, R any](fn func(T, T) R, build func([]R) Array) Binary {
	return func(xVal, yVal Array) (Array, error) {
		x, y, err := binaryValues[T](xVal, yVal)
		if err != nil {
			return nil, err
		}
		z, err := elements(x, y, fn)
		if err != nil {
			return nil, err
		}
		return build(z), nil
	}
}

func unaryKernel[T, R any](fn func(T) R, build func([]R) Array) Unary {
	return func(xVal Array) (Array, error) {
		x, ok := xVal.(*arrayT[T])
		if !ok {
			return nil, errors.Errorf("unexpected operand of type %s", xVal.Type())
		}
		return build(mapValues(x.values, fn)), nil
	}
}
