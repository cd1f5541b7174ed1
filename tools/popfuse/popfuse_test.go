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

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	tests := []struct {
		req  request
		want []string
	}{
		{
			req: request{
				src:        "Add(_1,Mul(_2,_3))",
				types:      []string{"float", "float", "float"},
				shapes:     []string{"16", "16", "16"},
				showCycles: true,
				numTiles:   2,
			},
			want: []string{"operators: 2", "fused: true", "// codelet Fused_", "total: "},
		},
		{
			req: request{
				src:      "Add(_1,_2)",
				types:    []string{"float", "float"},
				shapes:   []string{"16", "scalar"},
				numTiles: 2,
			},
			want: []string{"operators: 1", "fused: false"},
		},
		{
			req: request{
				src:      "Add(_1,_2)",
				types:    []string{"float", "float"},
				shapes:   []string{"16", "16"},
				force:    true,
				inPlace:  true,
				numTiles: 2,
			},
			want: []string{"fused: true", "// codelet Fused_"},
		},
		{
			req: request{
				src:        "Mul(_1,_2)",
				types:      []string{"float", "float"},
				shapes:     []string{"8x4", "8x4"},
				force:      true,
				showCycles: true,
				numTiles:   2,
				reduceOp:   "add",
			},
			want: []string{"reduced: ", "Reduce/", "total: "},
		},
	}
	for i, test := range tests {
		var buf bytes.Buffer
		if err := run(context.Background(), &buf, test.req); err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		got := buf.String()
		for _, want := range test.want {
			if !strings.Contains(got, want) {
				t.Errorf("test %d: %q not found in:\n%s", i, want, got)
			}
		}
	}
}

func TestRunErrors(t *testing.T) {
	tests := []request{
		{},
		{src: "Add(_1,", types: []string{"float"}, shapes: []string{"4"}, numTiles: 1},
		{src: "Add(_1,_2)", types: []string{"float"}, shapes: []string{"4", "4"}, numTiles: 1},
		{src: "Add(_1,_2)", types: []string{"float", "complex"}, shapes: []string{"4", "4"}, numTiles: 1},
		{src: "Add(_1,_2)", types: []string{"float", "float"}, shapes: []string{"4", "4y"}, numTiles: 1},
		{src: "Add(_1,_2)", types: []string{"float", "float"}, shapes: []string{"4", "4"}, numTiles: 1, reduceOp: "ADD"},
		{src: "Add(_1,_2)", types: []string{"float", "float"}, shapes: []string{"4x2", "4x2"}, numTiles: 1, reduceOp: "AVG"},
	}
	for i, req := range tests {
		var buf bytes.Buffer
		if err := run(context.Background(), &buf, req); err == nil {
			t.Errorf("test %d: expected an error but got nil", i)
		}
	}
}
