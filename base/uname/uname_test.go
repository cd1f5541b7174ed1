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

package uname_test

import (
	"sync"
	"testing"

	"github.com/gx-org/popfuse/base/uname"
)

func TestName(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{name: "x", want: "x"},
		{name: "x", want: "x_1"},
		{name: "x_1", want: "x_1_1"},
		{name: "x", want: "x_2"},
		{name: "reduce", want: "reduce_3"},
		{name: "reduce", want: "reduce_4"},
		{name: "out", want: "out"},
	}
	unames := uname.New()
	for _, name := range []string{"reduce", "reduce_1", "reduce_2"} {
		if !unames.Register(name) {
			t.Fatalf("cannot register %s", name)
		}
	}
	for i, test := range tests {
		got := unames.Name(test.name)
		if got != test.want {
			t.Errorf("test %d: for name %s, got %s but want %s", i, test.name, got, test.want)
		}
	}
	if unames.Register("out") {
		t.Errorf("name out registered twice")
	}
}

func TestConcurrentNames(t *testing.T) {
	unames := uname.New()
	const numNames = 32
	names := make([]string, numNames)
	var wg sync.WaitGroup
	for i := range numNames {
		wg.Add(1)
		go func() {
			defer wg.Done()
			names[i] = unames.Name("cs")
		}()
	}
	wg.Wait()
	seen := make(map[string]bool)
	for _, name := range names {
		if seen[name] {
			t.Errorf("name %s generated twice", name)
		}
		seen[name] = true
	}
}
