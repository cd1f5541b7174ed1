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

package popflag_test

import (
	"flag"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gx-org/popfuse/tools/popflag"
)

func TestStringList(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	types := popflag.StringListVar(fs, "types", "element types")
	if err := fs.Parse([]string{"-types", "float, half,,int", "-types", "bool"}); err != nil {
		t.Fatal(err)
	}
	want := []string{"float", "half", "int", "bool"}
	if diff := cmp.Diff(want, *types); diff != "" {
		t.Errorf("unexpected list (-want +got):\n%s", diff)
	}
}

func TestParseShape(t *testing.T) {
	tests := []struct {
		src  string
		want []int
		err  bool
	}{
		{src: "16", want: []int{16}},
		{src: "4x3", want: []int{4, 3}},
		{src: "scalar", want: []int{}},
		{src: "4x", err: true},
		{src: "0", err: true},
		{src: "a", err: true},
	}
	for i, test := range tests {
		got, err := popflag.ParseShape(test.src)
		if test.err {
			if err == nil {
				t.Errorf("test %d: expected an error but got nil", i)
			}
			continue
		}
		if err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("test %d: unexpected shape (-want +got):\n%s", i, diff)
		}
	}
}
