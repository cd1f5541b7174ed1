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

package tmpl_test

import (
	"fmt"
	"testing"
	"text/template"

	"github.com/gx-org/popfuse/base/tmpl"
)

func TestIterateFunc(t *testing.T) {
	got, err := tmpl.IterateFunc([]string{"in1", "in2"}, func(i int, name string) (string, error) {
		return fmt.Sprintf("Input<float> %s; // %d", name, i), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "Input<float> in1; // 0\nInput<float> in2; // 1"
	if got != want {
		t.Errorf("got %q but want %q", got, want)
	}
}

func TestRender(t *testing.T) {
	tmpls := template.Must(template.New("root").Parse(`{{define "decl"}}const {{.}} x;{{end}}`))
	got, err := tmpl.Render(tmpls, "decl", "float_ty")
	if err != nil {
		t.Fatal(err)
	}
	if want := "const float_ty x;"; got != want {
		t.Errorf("got %q but want %q", got, want)
	}
	if _, err := tmpl.Render(tmpls, "unknown", nil); err == nil {
		t.Errorf("expected an error for an unknown template")
	}
}

func TestIndent(t *testing.T) {
	tests := []struct {
		s, want string
	}{
		{s: "a;\nb;\n", want: "  a;\n  b;\n"},
		{s: "a;\n\nb;", want: "  a;\n\n  b;"},
		{s: "", want: ""},
	}
	for i, test := range tests {
		if got := tmpl.Indent(test.s, "  "); got != test.want {
			t.Errorf("test %d: got %q but want %q", i, got, test.want)
		}
	}
}
