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
	"github.com/x448/float16"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr"
)

// Half precision kernels compute in single precision and round the result.
type (
	halfFactory struct{}

	halfConverter struct{}
)

var (
	_ Factory = halfFactory{}

	singleFactory = floatFactory[float32]{typ: elem.Float}
)

func (halfConverter) toFloat64(v float16.Float16) float64 { return float64(v.Float32()) }
func (halfConverter) toInt64(v float16.Float16) int64     { return int64(v.Float32()) }
func (halfConverter) toBool(v float16.Float16) bool       { return v.Float32() != 0 }

// ToHalfArray returns an array of half precision values.
func ToHalfArray(values []float16.Float16) Array {
	return halfFactory{}.build(values)
}

func (f halfFactory) build(values []float16.Float16) Array {
	return &arrayT[float16.Float16]{factory: f, conv: halfConverter{}, values: values}
}

func (halfFactory) Type() elem.Type {
	return elem.Half
}

func (f halfFactory) Zeros(n int) Array {
	return f.build(make([]float16.Float16, n))
}

func (f halfFactory) FromFloat64s(vals []float64) Array {
	return f.build(mapValues(vals, func(v float64) float16.Float16 { return float16.Fromfloat32(float32(v)) }))
}

func (f halfFactory) FromInt64s(vals []int64) Array {
	return f.build(mapValues(vals, func(v int64) float16.Float16 { return float16.Fromfloat32(float32(v)) }))
}

func (f halfFactory) FromBools(vals []bool) Array {
	return f.FromFloat64s(singleFactory.FromBools(vals).Float64s())
}

func toSingle(x Array) Array {
	return singleFactory.FromFloat64s(x.Float64s())
}

// fromSingle rounds single precision results back to half.
// Boolean results are returned unchanged.
func (f halfFactory) fromSingle(x Array) Array {
	if x.Type() != elem.Float {
		return x
	}
	return f.build(mapValues(toArray[float32](x).values, float16.Fromfloat32))
}

func (f halfFactory) checkHalf(xs ...Array) error {
	for _, x := range xs {
		if x.Type() != elem.Half {
			return errors.Errorf("unexpected operand of type %s in a half kernel", x.Type())
		}
	}
	return nil
}

func (f halfFactory) UnaryOp(op expr.UnaryOpType) (Unary, error) {
	single, err := singleFactory.UnaryOp(op)
	if err != nil {
		return nil, err
	}
	return func(x Array) (Array, error) {
		if err := f.checkHalf(x); err != nil {
			return nil, err
		}
		z, err := single(toSingle(x))
		if err != nil {
			return nil, err
		}
		return f.fromSingle(z), nil
	}, nil
}

func (f halfFactory) BinaryOp(op expr.BinaryOpType) (Binary, error) {
	single, err := singleFactory.BinaryOp(op)
	if err != nil {
		return nil, err
	}
	return func(x, y Array) (Array, error) {
		if err := f.checkHalf(x, y); err != nil {
			return nil, err
		}
		z, err := single(toSingle(x), toSingle(y))
		if err != nil {
			return nil, err
		}
		return f.fromSingle(z), nil
	}, nil
}

func (f halfFactory) Clamp() (Ternary, error) {
	single, err := singleFactory.Clamp()
	if err != nil {
		return nil, err
	}
	return func(x, low, high Array) (Array, error) {
		if err := f.checkHalf(x, low, high); err != nil {
			return nil, err
		}
		z, err := single(toSingle(x), toSingle(low), toSingle(high))
		if err != nil {
			return nil, err
		}
		return f.fromSingle(z), nil
	}, nil
}
