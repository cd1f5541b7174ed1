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

package emit_test

import (
	"strings"
	"testing"

	"github.com/gx-org/popfuse/codegen/emit"
	"github.com/gx-org/popfuse/codegen/synth"
	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr"
	"github.com/gx-org/popfuse/graph"
	"github.com/gx-org/popfuse/target"
)

type registry struct {
	codelets map[string]*graph.Codelet
	adds     int
}

func newRegistry() *registry {
	return &registry{codelets: make(map[string]*graph.Codelet)}
}

func (r *registry) HasCodelet(name string) bool {
	_, ok := r.codelets[name]
	return ok
}

func (r *registry) AddCodelet(c *graph.Codelet) bool {
	r.adds++
	if r.HasCodelet(c.Name) {
		return false
	}
	r.codelets[c.Name] = c
	return true
}

var (
	vecFloat    = expr.Operand{Type: elem.Float, Shape: []int{64}}
	scalarFloat = expr.Operand{Type: elem.Float}
	e2e         = expr.Add(expr.Sub(expr.P1, expr.Mul(expr.P2, expr.P3)), expr.Mul(expr.P2, expr.P3))
)

func request(t *testing.T, e expr.Expr, ops []expr.Operand, inPlace bool) emit.Request {
	t.Helper()
	types, err := expr.InferTypes(e, ops)
	if err != nil {
		t.Fatal(err)
	}
	c, err := synth.Synthesize(e, types, ops)
	if err != nil {
		t.Fatal(err)
	}
	allScalar := true
	for _, op := range ops {
		allScalar = allScalar && op.IsScalar()
	}
	return emit.Request{Expr: e, Types: types, Codelet: c, InPlace: inPlace, AllScalar: allScalar}
}

func TestIdempotentRegistration(t *testing.T) {
	reg := newRegistry()
	tgt := target.New(4)
	req := request(t, e2e, []expr.Operand{vecFloat, vecFloat, vecFloat}, false)
	first, err := emit.Emit(reg, tgt, req)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Registered || first.Source == "" {
		t.Fatalf("codelet %s not registered", first.Name)
	}
	second, err := emit.Emit(reg, tgt, request(t, e2e, []expr.Operand{vecFloat, vecFloat, vecFloat}, false))
	if err != nil {
		t.Fatal(err)
	}
	if second.Name != first.Name {
		t.Errorf("got name %s but want %s", second.Name, first.Name)
	}
	if second.Registered || second.Source != "" {
		t.Errorf("codelet %s generated twice", second.Name)
	}
	if reg.adds != 1 {
		t.Errorf("got %d registration(s) but want 1", reg.adds)
	}
	if first.NumFusedOps != 4 {
		t.Errorf("got %d fused ops but want 4", first.NumFusedOps)
	}
}

func TestNames(t *testing.T) {
	base := emit.Name(request(t, e2e, []expr.Operand{vecFloat, vecFloat, vecFloat}, false))
	if !strings.HasPrefix(base, "Fused_ADDu_SUBu_float_1_") {
		t.Errorf("name %s does not start with the structural name", base)
	}
	if !strings.Contains(base, "_d00000_") {
		t.Errorf("name %s does not contain the flags", base)
	}
	half := expr.Operand{Type: elem.Half, Shape: []int{64}}
	others := []emit.Request{
		request(t, e2e, []expr.Operand{vecFloat, vecFloat, vecFloat}, true),
		request(t, e2e, []expr.Operand{vecFloat, scalarFloat, vecFloat}, false),
		request(t, e2e, []expr.Operand{scalarFloat, scalarFloat, scalarFloat}, false),
		request(t, e2e, []expr.Operand{half, half, half}, false),
	}
	seen := map[string]bool{base: true}
	for i, req := range others {
		name := emit.Name(req)
		if seen[name] {
			t.Errorf("test %d: name %s already generated", i, name)
		}
		seen[name] = true
	}
}

func TestVectorWidth(t *testing.T) {
	tgt := target.New(1)
	tests := []struct {
		e    expr.Expr
		ops  []expr.Operand
		want int
	}{
		{
			e:    expr.Add(expr.P1, expr.P2),
			ops:  []expr.Operand{{Type: elem.Half, Shape: []int{8}}, {Type: elem.Half, Shape: []int{8}}},
			want: 4,
		},
		{
			e:    expr.Add(expr.CastTo(expr.P1, elem.Half), expr.P2),
			ops:  []expr.Operand{vecFloat, {Type: elem.Half, Shape: []int{64}}},
			want: 2,
		},
		{
			e:    expr.Lt(expr.P1, expr.P2),
			ops:  []expr.Operand{vecFloat, vecFloat},
			want: 2,
		},
	}
	for i, test := range tests {
		req := request(t, test.e, test.ops, false)
		if got := emit.VectorWidth(tgt, req.Codelet); got != test.want {
			t.Errorf("test %d: got vector width %d but want %d", i, got, test.want)
		}
	}
}

func TestSource(t *testing.T) {
	tests := []struct {
		e       expr.Expr
		ops     []expr.Operand
		inPlace bool
		want    []string
		notWant []string
	}{
		{
			e:   e2e,
			ops: []expr.Operand{vecFloat, vecFloat, vecFloat},
			want: []string{
				"#define NAMESPACE ipu",
				"Output<Vector<float, VectorLayout::SPAN, 8>> out;",
				"Input<Vector<float, VectorLayout::ONE_PTR, 8>> in1;",
				"using float_ty = float2;",
				"using float_ty = float;",
				"const float_ty *In2 = reinterpret_cast<const float_ty *>(&in2[0]);",
				"const float_ty load1 = ipu::load_postinc(&In1, 1);",
				"        const float_ty var_3 = var_2 + var_0;\n",
				"ipu::store_postinc(&Out, var_3, 1);",
				"const float_ty load3 = in3[i];",
				"out[i] = var_3;",
			},
		},
		{
			e:   expr.Mul(expr.Add(expr.P1, expr.NewConst(2.5)), expr.P2),
			ops: []expr.Operand{vecFloat, scalarFloat},
			want: []string{
				"Input<float> in2;",
				"const float_ty load2 = {in2, in2};",
				"const float_ty C1 = {2.5f, 2.5f};",
				"const float_ty C1 = 2.5f;",
				"const float_ty load2 = in2;",
			},
		},
		{
			e:       expr.Add(expr.CastTo(expr.P1, elem.Float), expr.P2),
			ops:     []expr.Operand{{Type: elem.Int, Shape: []int{64}}, vecFloat},
			want:    []string{"using int_ty = int;", "const float_ty var_0 = (float_ty)load1;"},
			notWant: []string{"ipu::load_postinc"},
		},
		{
			e:       e2e,
			ops:     []expr.Operand{scalarFloat, scalarFloat, scalarFloat},
			want:    []string{"Output<float> out;", "unsigned remainder = 1;", "*out = var_3;"},
			notWant: []string{"ipu::load_postinc", "VectorLayout"},
		},
		{
			e:       expr.Mul(expr.Add(expr.P1, expr.P2), expr.P2),
			ops:     []expr.Operand{vecFloat, vecFloat},
			inPlace: true,
			want: []string{
				"InOut<Vector<float, VectorLayout::SPAN, 8>> in1;",
				"unsigned remainder = in1.size();",
				"in1[i] = var_1;",
			},
			notWant: []string{"Output<"},
		},
	}
	for i, test := range tests {
		reg := newRegistry()
		got, err := emit.Emit(reg, target.New(1), request(t, test.e, test.ops, test.inPlace))
		if err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		if !strings.Contains(got.Source, "class "+got.Name+" : public Vertex") {
			t.Errorf("test %d: no class %s in source:\n%s", i, got.Name, got.Source)
		}
		for _, want := range test.want {
			if !strings.Contains(got.Source, want) {
				t.Errorf("test %d: %q not found in source:\n%s", i, want, got.Source)
			}
		}
		for _, notWant := range test.notWant {
			if strings.Contains(got.Source, notWant) {
				t.Errorf("test %d: unexpected %q in source:\n%s", i, notWant, got.Source)
			}
		}
	}
}

func TestInPlaceTypeMismatch(t *testing.T) {
	req := request(t, expr.Lt(expr.P1, expr.P2), []expr.Operand{vecFloat, vecFloat}, true)
	if _, err := emit.Emit(newRegistry(), target.New(1), req); err == nil {
		t.Errorf("expected an error when writing bool in place into float")
	}
}
