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

package kernels_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gx-org/backend/dtype"
	"github.com/x448/float16"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr"
	"github.com/gx-org/popfuse/kernels"
)

func TestRawRoundTrip(t *testing.T) {
	tests := []kernels.Array{
		kernels.ToFloatArray(elem.Float, []float32{1, -2.5, 3}),
		kernels.ToHalfArray([]float16.Float16{float16.Fromfloat32(0.5), float16.Fromfloat32(-8)}),
		kernels.ToIntegerArray(elem.Int, []int32{-1, 2, 1 << 30}),
		kernels.ToIntegerArray(elem.UnsignedShort, []uint16{1, 65535}),
		kernels.ToIntegerArray(elem.SignedChar, []int8{-128, 127}),
		kernels.ToIntegerArray(elem.UnsignedLongLong, []uint64{1 << 63, 7}),
		kernels.ToBoolArray([]bool{true, false, true}),
	}
	for i, want := range tests {
		raw := want.Buffer()
		if len(raw) != want.Len()*want.Type().Size() {
			t.Errorf("test %d: got %d bytes but want %d", i, len(raw), want.Len()*want.Type().Size())
			continue
		}
		got, err := kernels.NewArrayFromRaw(want.Type(), raw)
		if err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		if got.String() != want.String() {
			t.Errorf("test %d: got %s but want %s", i, got, want)
		}
	}
}

func TestShape(t *testing.T) {
	sh, ok := kernels.ToFloatArray(elem.Float, []float32{1, 2, 3}).Shape()
	if !ok {
		t.Fatalf("float array has no backend shape")
	}
	if sh.DType != dtype.Float32 || sh.Size() != 3 {
		t.Errorf("got shape %v but want a float32 shape of 3 elements", sh)
	}
	if _, ok := kernels.ToHalfArray(nil).Shape(); ok {
		t.Errorf("half array has a backend shape")
	}
}

func TestEval(t *testing.T) {
	floats := func(vals ...float32) kernels.Array { return kernels.ToFloatArray(elem.Float, vals) }
	ints := func(vals ...int32) kernels.Array { return kernels.ToIntegerArray(elem.Int, vals) }
	tests := []struct {
		e        expr.Expr
		operands []kernels.Array
		want     []float64
	}{
		{
			e:        expr.Add(expr.Sub(expr.P1, expr.Mul(expr.P2, expr.P3)), expr.Mul(expr.P2, expr.P3)),
			operands: []kernels.Array{floats(1, 2, 3), floats(4, 5, 6), floats(7, 8, 9)},
			want:     []float64{1, 2, 3},
		},
		{
			e:        expr.Mul(expr.P1, expr.NewConst(2.5)),
			operands: []kernels.Array{floats(2, 4)},
			want:     []float64{5, 10},
		},
		{
			e:        expr.Select(expr.P1, expr.P2, expr.Lt(expr.P1, expr.P2)),
			operands: []kernels.Array{ints(1, 5, 3), ints(4, 2, 3)},
			want:     []float64{1, 2, 3},
		},
		{
			e:        expr.Clamp(expr.P1, expr.NewConst(0), expr.NewConst(10)),
			operands: []kernels.Array{ints(-4, 5, 12)},
			want:     []float64{0, 5, 10},
		},
		{
			e:        expr.Add(expr.P1, expr.P2),
			operands: []kernels.Array{ints(1, 2, 3), ints(10)},
			want:     []float64{11, 12, 13},
		},
		{
			e:        expr.Sqrt(expr.CastTo(expr.P1, elem.Half)),
			operands: []kernels.Array{floats(4, 9)},
			want:     []float64{2, 3},
		},
		{
			e:        expr.ShiftRight(expr.P1, expr.NewConst(1)),
			operands: []kernels.Array{ints(-2)},
			want:     []float64{1<<31 - 1},
		},
		{
			e:        expr.ShiftRightSignExtend(expr.P1, expr.NewConst(1)),
			operands: []kernels.Array{ints(-2)},
			want:     []float64{-1},
		},
		{
			e:        expr.Popcount(expr.P1),
			operands: []kernels.Array{ints(-1, 6)},
			want:     []float64{32, 2},
		},
		{
			e:        expr.Clz(expr.P1),
			operands: []kernels.Array{ints(1)},
			want:     []float64{31},
		},
	}
	for i, test := range tests {
		var operands []expr.Operand
		for _, op := range test.operands {
			operands = append(operands, expr.Operand{Type: op.Type(), Shape: []int{op.Len()}})
		}
		types, err := expr.InferTypes(test.e, operands)
		if err != nil {
			t.Errorf("test %d: cannot infer types: %v", i, err)
			continue
		}
		got, err := kernels.Eval(test.e, types, test.operands)
		if err != nil {
			t.Errorf("test %d: cannot evaluate %s: %v", i, test.e, err)
			continue
		}
		if diff := cmp.Diff(test.want, got.Float64s(), cmpopts.EquateApprox(0, 1e-3)); diff != "" {
			t.Errorf("test %d: unexpected result for %s:\n%s", i, test.e, diff)
		}
	}
}

func TestEvalBoolResult(t *testing.T) {
	x := kernels.ToHalfArray([]float16.Float16{float16.Fromfloat32(1), float16.Inf(1), float16.NaN()})
	got, err := kernels.Eval(expr.IsFinite(expr.P1), expr.Types{}, []kernels.Array{x})
	if err != nil {
		t.Fatal(err)
	}
	if got.Type() != elem.Bool {
		t.Errorf("got type %s but want bool", got.Type())
	}
	if diff := cmp.Diff([]bool{true, false, false}, got.Bools()); diff != "" {
		t.Errorf("unexpected result:\n%s", diff)
	}
}

func TestErrors(t *testing.T) {
	ints := kernels.ToIntegerArray(elem.Int, []int32{1, 2})
	tests := []struct {
		e        expr.Expr
		operands []kernels.Array
	}{
		{e: expr.Div(expr.P1, expr.P2), operands: []kernels.Array{ints, kernels.ToIntegerArray(elem.Int, []int32{1, 0})}},
		{e: expr.Add(expr.P1, expr.P2), operands: []kernels.Array{ints, kernels.ToIntegerArray(elem.Int, []int32{1, 2, 3})}},
		{e: expr.Add(expr.P1, expr.P2), operands: []kernels.Array{ints, kernels.ToFloatArray(elem.Float, []float32{1, 2})}},
		{e: expr.Sin(expr.P1), operands: []kernels.Array{ints}},
		{e: expr.Neg(expr.P3), operands: []kernels.Array{ints}},
	}
	for i, test := range tests {
		if _, err := kernels.Eval(test.e, expr.Types{}, test.operands); err == nil {
			t.Errorf("test %d: evaluating %s: expected an error", i, test.e)
		}
	}
}

func TestConcatAndSlice(t *testing.T) {
	a := kernels.ToIntegerArray(elem.Int, []int32{1, 2})
	b := kernels.ToIntegerArray(elem.Int, []int32{3, 4, 5})
	c, err := kernels.Concat([]kernels.Array{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{2, 3, 4}, c.Slice(1, 4).Int64s()); diff != "" {
		t.Errorf("unexpected slice:\n%s", diff)
	}
	if _, err := kernels.Concat([]kernels.Array{a, kernels.ToBoolArray([]bool{true})}); err == nil {
		t.Errorf("concatenating int and bool arrays: expected an error")
	}
}
