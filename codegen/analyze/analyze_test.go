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

package analyze_test

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gx-org/popfuse/codegen/analyze"
	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr"
)

func vec(t elem.Type) expr.Operand {
	return expr.Operand{Type: t, Shape: []int{16}}
}

func scalar(t elem.Type) expr.Operand {
	return expr.Operand{Type: t}
}

func TestAnalyze(t *testing.T) {
	f3 := []expr.Operand{vec(elem.Float), vec(elem.Float), vec(elem.Float)}
	tests := []struct {
		e        expr.Expr
		operands []expr.Operand
		force    bool
		want     analyze.Result
	}{
		{
			e:        expr.Add(expr.Sub(expr.P1, expr.Mul(expr.P2, expr.P3)), expr.Mul(expr.P2, expr.P3)),
			operands: f3,
			want:     analyze.Result{Eligible: true, NumOps: 4},
		},
		{
			e:        expr.Add(expr.P1, expr.P2),
			operands: f3,
			want:     analyze.Result{NumOps: 1},
		},
		{
			e:        expr.Add(expr.P1, expr.P2),
			operands: f3,
			force:    true,
			want:     analyze.Result{Eligible: true, NumOps: 1},
		},
		{
			e:        expr.Add(expr.CastTo(expr.P1, elem.Half), expr.P2),
			operands: []expr.Operand{vec(elem.Float), vec(elem.Half)},
			want:     analyze.Result{NumOps: 1},
		},
		{
			e:        expr.Mul(expr.Add(expr.P1, expr.NewConst(float32(math.NaN()))), expr.P2),
			operands: f3,
			want:     analyze.Result{NumOps: 2},
		},
		{
			e:        expr.Mul(expr.Add(expr.P1, expr.ConstHalf(float32(math.Inf(1)))), expr.P2),
			operands: []expr.Operand{vec(elem.Half), vec(elem.Half)},
			want:     analyze.Result{NumOps: 2},
		},
		{
			e:        expr.Mul(expr.Add(expr.P1, expr.P2), expr.P3),
			operands: []expr.Operand{scalar(elem.Int), scalar(elem.Int), scalar(elem.Int)},
			want:     analyze.Result{Eligible: true, AllScalar: true, NumOps: 2},
		},
		{
			e:        expr.Mul(expr.Add(expr.P1, expr.P2), expr.P3),
			operands: []expr.Operand{vec(elem.Float), scalar(elem.Float), vec(elem.Float)},
			want:     analyze.Result{Eligible: true, NumOps: 2},
		},
		{
			e:        expr.Mul(expr.Add(expr.P1, expr.P2), expr.P3),
			operands: []expr.Operand{vec(elem.Float), {Type: elem.Float, Shape: []int{4, 4}}, vec(elem.Float)},
			want:     analyze.Result{NumOps: 2},
		},
		{
			e:        expr.Mul(expr.Add(expr.P1, expr.P2), expr.P3),
			operands: []expr.Operand{vec(elem.Float), {Type: elem.Float, Shape: []int{16}, Aliased: true}, vec(elem.Float)},
			want:     analyze.Result{NumOps: 2},
		},
		{
			e:        expr.Add(expr.VarianceToInvStdDev(expr.P1, expr.P2), expr.P3),
			operands: f3,
			want:     analyze.Result{NumOps: 2},
		},
		{
			e:        expr.Mul(expr.Add(expr.P1, expr.P2), expr.P2),
			operands: []expr.Operand{vec(elem.Short), vec(elem.Short)},
			want:     analyze.Result{NumOps: 2},
		},
		{
			e:        expr.Clamp(expr.P1, expr.P2, expr.P3),
			operands: f3,
			force:    true,
			want:     analyze.Result{Eligible: true, NumOps: 1},
		},
		{
			e:        expr.Mul(expr.Add(expr.P1, expr.P2), expr.P4),
			operands: f3,
			want:     analyze.Result{NumOps: 2},
		},
		{
			e:    expr.Mul(expr.Add(expr.P1, expr.P2), expr.P3),
			want: analyze.Result{},
		},
	}
	for i, test := range tests {
		got := analyze.Analyze(test.e, test.operands, test.force)
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("test %d: unexpected result for %s:\n%s", i, test.e, diff)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		e        expr.Expr
		operands []expr.Operand
		inPlace  bool
		want     []error
	}{
		{
			e:        expr.Add(expr.P1, expr.Mul(expr.P2, expr.NewConst(float32(2)))),
			operands: []expr.Operand{vec(elem.Float), scalar(elem.Float)},
			inPlace:  true,
		},
		{
			e:    expr.Add(expr.P1, expr.P2),
			want: []error{analyze.ErrShape},
		},
		{
			e:        expr.Add(expr.P1, expr.P3),
			operands: []expr.Operand{vec(elem.Float), vec(elem.Float)},
			want:     []error{analyze.ErrShape},
		},
		{
			e:        expr.Add(expr.P1, expr.P2),
			operands: []expr.Operand{scalar(elem.Float), vec(elem.Float)},
			inPlace:  true,
			want:     []error{analyze.ErrShape},
		},
		{
			e:        expr.Add(expr.P1, expr.P2),
			operands: []expr.Operand{{Type: elem.Float, Shape: []int{16}, Aliased: true}, {Type: elem.Float, Shape: []int{8}}},
			inPlace:  true,
			want:     []error{analyze.ErrShape, analyze.ErrAlias},
		},
		{
			e:        expr.Add(expr.P1, expr.NewConst(float32(0.5))),
			operands: []expr.Operand{vec(elem.Int)},
			want:     []error{analyze.ErrType},
		},
		{
			e:        expr.Add(expr.P1, expr.P2),
			operands: []expr.Operand{vec(elem.Int), vec(elem.Float)},
			want:     []error{analyze.ErrType},
		},
		{
			e:        expr.Lt(expr.P1, expr.P2),
			operands: []expr.Operand{vec(elem.Float), vec(elem.Float)},
			inPlace:  true,
			want:     []error{analyze.ErrType},
		},
	}
	all := []error{analyze.ErrShape, analyze.ErrAlias, analyze.ErrType}
	for i, test := range tests {
		_, err := analyze.Validate(test.e, test.operands, test.inPlace)
		if len(test.want) == 0 {
			if err != nil {
				t.Errorf("test %d: unexpected error: %v", i, err)
			}
			continue
		}
		if err == nil {
			t.Errorf("test %d: expected an error", i)
			continue
		}
		for _, target := range all {
			want := false
			for _, w := range test.want {
				want = want || w == target
			}
			if got := analyze.Is(err, target); got != want {
				t.Errorf("test %d: Is(%v, %v): got %t but want %t", i, err, target, got, want)
			}
		}
	}
}
