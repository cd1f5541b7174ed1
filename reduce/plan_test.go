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

package reduce_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/graph"
	"github.com/gx-org/popfuse/kernels"
	"github.com/gx-org/popfuse/reduce"
	"github.com/gx-org/popfuse/target"
)

func newGraph(t *testing.T, numTiles int) *graph.Graph {
	t.Helper()
	g, err := graph.New(target.New(numTiles))
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func write(t *testing.T, eng *graph.Engine, x graph.Tensor, values []float64) {
	t.Helper()
	f, err := kernels.FactoryFor(x.Type())
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Write(x, f.FromFloat64s(values)); err != nil {
		t.Fatal(err)
	}
}

func read(t *testing.T, eng *graph.Engine, x graph.Tensor) []float64 {
	t.Helper()
	got, err := eng.Read(x)
	if err != nil {
		t.Fatal(err)
	}
	return got.Float64s()
}

func count(n int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	return vals
}

// byColumns maps the columns [0, split) of every row of a matrix to tile 0
// and the other columns to tile 1.
func byColumns(t *testing.T, g *graph.Graph, in graph.Tensor, split int) {
	t.Helper()
	shape := in.Shape()
	mapping := make([][]graph.Interval, 2)
	for r := range shape[0] {
		offset := r * shape[1]
		mapping[0] = append(mapping[0], iv(offset, offset+split))
		mapping[1] = append(mapping[1], iv(offset+split, offset+shape[1]))
	}
	if err := g.SetTileMappingIntervals(in.Flatten(), mapping); err != nil {
		t.Fatal(err)
	}
}

func TestPlan(t *testing.T) {
	tests := []struct {
		numTiles int
		typ      elem.Type
		shape    []int
		values   []float64
		mapping  func(*testing.T, *graph.Graph, graph.Tensor)
		op       reduce.Op
		opts     []reduce.Option
		want     []float64
		wantCS   int
	}{
		{
			numTiles: 2,
			typ:      elem.Float,
			shape:    []int{4, 6},
			values:   count(24),
			mapping: func(t *testing.T, g *graph.Graph, in graph.Tensor) {
				byColumns(t, g, in, 3)
			},
			op:     reduce.Add,
			want:   []float64{40, 44, 48, 52, 56, 60},
			wantCS: 1,
		},
		{
			numTiles: 2,
			typ:      elem.Float,
			shape:    []int{4, 6},
			values:   count(24),
			mapping: func(t *testing.T, g *graph.Graph, in graph.Tensor) {
				byColumns(t, g, in, 2)
			},
			op:     reduce.Max,
			want:   []float64{19, 20, 21, 22, 23, 24},
			wantCS: 1,
		},
		{
			numTiles: 2,
			typ:      elem.Float,
			shape:    []int{8, 6},
			values:   count(48),
			op:       reduce.Add,
			want:     []float64{176, 184, 192, 200, 208, 216},
			wantCS:   2,
		},
		{
			numTiles: 8,
			typ:      elem.Float,
			shape:    []int{16, 4},
			values:   count(64),
			op:       reduce.Add,
			opts:     []reduce.Option{reduce.WithMaxPartials(2)},
			want:     []float64{496, 512, 528, 544},
			wantCS:   3,
		},
		{
			numTiles: 8,
			typ:      elem.Float,
			shape:    []int{16, 4},
			values:   count(64),
			op:       reduce.Min,
			opts:     []reduce.Option{reduce.WithMaxPartials(2)},
			want:     []float64{1, 2, 3, 4},
			wantCS:   3,
		},
		{
			numTiles: 4,
			typ:      elem.Float,
			shape:    []int{4, 6},
			values:   count(24),
			op:       reduce.SquareAdd,
			want:     []float64{580, 664, 756, 856, 964, 1080},
			wantCS:   1,
		},
		{
			numTiles: 1,
			typ:      elem.Half,
			shape:    []int{3, 2},
			values:   count(6),
			op:       reduce.SquareAdd,
			opts:     []reduce.Option{reduce.WithOutputType(elem.Float)},
			want:     []float64{35, 56},
			wantCS:   1,
		},
		{
			numTiles: 2,
			typ:      elem.Int,
			shape:    []int{3, 2},
			values:   []float64{5, -1, 3, 7, -2, 4},
			op:       reduce.Max,
			want:     []float64{5, 7},
			wantCS:   2,
		},
		{
			numTiles: 2,
			typ:      elem.Int,
			shape:    []int{3, 2},
			values:   []float64{5, -1, 3, 7, -2, 4},
			op:       reduce.Mul,
			want:     []float64{-30, -28},
			wantCS:   2,
		},
		{
			numTiles: 1,
			typ:      elem.Bool,
			shape:    []int{2, 3},
			values:   []float64{0, 1, 0, 0, 0, 0},
			op:       reduce.LogicalOr,
			want:     []float64{0, 1, 0},
			wantCS:   1,
		},
		{
			numTiles: 1,
			typ:      elem.Bool,
			shape:    []int{2, 3},
			values:   []float64{1, 1, 0, 1, 0, 0},
			op:       reduce.LogicalAnd,
			want:     []float64{1, 0, 0},
			wantCS:   1,
		},
	}
	for i, test := range tests {
		g := newGraph(t, test.numTiles)
		in := g.AddVariable(test.typ, test.shape, "in")
		if test.mapping != nil {
			test.mapping(t, g, in)
		} else if err := g.MapLinearly(in, test.shape[1]); err != nil {
			t.Fatal(err)
		}
		prog := graph.NewSequence()
		out, err := reduce.Plan(context.Background(), g, in, test.op, prog, test.opts...)
		if err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		if got := len(prog.Programs()); got != test.wantCS {
			t.Errorf("test %d: got %d compute set(s) but want %d", i, got, test.wantCS)
		}
		final, ok := out.Final()
		if !ok {
			t.Errorf("test %d: reduction has no final output", i)
			continue
		}
		eng := graph.NewEngine(g)
		write(t, eng, in, test.values)
		if err := eng.Run(prog); err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		if diff := cmp.Diff(test.want, read(t, eng, final)); diff != "" {
			t.Errorf("test %d: unexpected reduction (-want +got):\n%s", i, diff)
		}
	}
}

func TestPlanWithoutExchange(t *testing.T) {
	g := newGraph(t, 2)
	in := g.AddVariable(elem.Float, []int{8, 6}, "in")
	if err := g.MapLinearly(in, 6); err != nil {
		t.Fatal(err)
	}
	prog := graph.NewSequence()
	out, err := reduce.Plan(context.Background(), g, in, reduce.Add, prog, reduce.WithoutExchange())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out.Final(); ok {
		t.Errorf("got a final output but want intermediate partials")
	}
	ip, ok := out.Partials()
	if !ok {
		t.Fatalf("no intermediate partials")
	}
	if diff := cmp.Diff([]int{0, 1}, ip.Tiles()); diff != "" {
		t.Errorf("unexpected tiles (-want +got):\n%s", diff)
	}
	eng := graph.NewEngine(g)
	write(t, eng, in, count(48))
	if err := eng.Run(prog); err != nil {
		t.Fatal(err)
	}
	want := [][]float64{
		{40, 44, 48, 52, 56, 60},
		{136, 140, 144, 148, 152, 156},
	}
	for tile, wantData := range want {
		if diff := cmp.Diff(wantData, read(t, eng, ip.Data(tile))); diff != "" {
			t.Errorf("tile %d: unexpected partials (-want +got):\n%s", tile, diff)
		}
		if diff := cmp.Diff([]graph.Interval{iv(0, 6)}, ip.OutputRegions(tile)); diff != "" {
			t.Errorf("tile %d: unexpected output regions (-want +got):\n%s", tile, diff)
		}
	}
}

type unknownOption struct{}

func (unknownOption) String() string { return "unknownOption" }

func TestPlanErrors(t *testing.T) {
	tests := []struct {
		typ   elem.Type
		shape []int
		op    reduce.Op
		opts  []reduce.Option
	}{
		{typ: elem.Float, shape: []int{4, 2}, op: reduce.Add, opts: []reduce.Option{unknownOption{}}},
		{typ: elem.Float, shape: []int{4, 2}, op: reduce.Add, opts: []reduce.Option{reduce.WithMaxPartials(1)}},
		{typ: elem.Float, shape: []int{4, 2}, op: reduce.Add, opts: []reduce.Option{reduce.WithLogger(nil)}},
		{typ: elem.Float, shape: []int{8}, op: reduce.Add},
		{typ: elem.Bool, shape: []int{4, 2}, op: reduce.Add},
		{typ: elem.Float, shape: []int{4, 2}, op: reduce.LogicalOr},
		{typ: elem.Float, shape: []int{4, 2}, op: reduce.Max, opts: []reduce.Option{reduce.WithOutputType(elem.Bool)}},
		{typ: elem.Float, shape: []int{4, 2}, op: reduce.Op(42)},
	}
	for i, test := range tests {
		g := newGraph(t, 2)
		in := g.AddVariable(test.typ, test.shape, "in")
		if err := g.MapLinearly(in, 2); err != nil {
			t.Fatal(err)
		}
		if _, err := reduce.Plan(context.Background(), g, in, test.op, graph.NewSequence(), test.opts...); err == nil {
			t.Errorf("test %d: expected an error but got nil", i)
		}
	}
}

func TestComputeSetList(t *testing.T) {
	g := newGraph(t, 1)
	l := reduce.NewComputeSetList()
	a := l.Add(g, "a")
	fork := l
	b := fork.Add(g, "b")
	if got := l.Add(g, "c"); got != b {
		t.Errorf("got compute set %s but want %s", got.Name(), b.Name())
	}
	if err := l.SetPos(0); err != nil {
		t.Fatal(err)
	}
	if got := l.Add(g, "d"); got != a {
		t.Errorf("got compute set %s but want %s", got.Name(), a.Name())
	}
	if err := l.SetPos(3); err == nil {
		t.Errorf("expected an error but got nil")
	}
	prog := graph.NewSequence()
	l.Schedule(prog)
	if got := len(prog.Programs()); got != 2 {
		t.Errorf("got %d program(s) but want 2", got)
	}
}

func TestMultipleValuesFromOneColumnOnSameTile(t *testing.T) {
	tests := []struct {
		mapping [][]graph.Interval
		want    bool
	}{
		{mapping: [][]graph.Interval{{iv(0, 6)}}, want: false},
		{mapping: [][]graph.Interval{{iv(0, 7)}}, want: true},
		{mapping: [][]graph.Interval{{iv(0, 3), iv(6, 9)}}, want: true},
		{mapping: [][]graph.Interval{{iv(0, 3)}, {iv(6, 9)}}, want: false},
		{mapping: [][]graph.Interval{{iv(3, 6), iv(6, 9)}}, want: false},
	}
	for i, test := range tests {
		if got := reduce.MultipleValuesFromOneColumnOnSameTile(test.mapping, 6); got != test.want {
			t.Errorf("test %d: got %t but want %t", i, got, test.want)
		}
	}
}

func TestTensorToIntermediatePartials(t *testing.T) {
	g := newGraph(t, 2)
	in := g.AddVariable(elem.Float, []int{2, 4}, "in")
	flat := in.Flatten()
	mapping := [][]graph.Interval{
		{iv(0, 2), iv(6, 8)},
		{iv(2, 6)},
	}
	ip, err := reduce.TensorToIntermediatePartials(in, mapping)
	if err != nil {
		t.Fatal(err)
	}
	wantData := []graph.Tensor{
		flat.Slices([]graph.Interval{iv(0, 2), iv(6, 8)}),
		flat.Slices([]graph.Interval{iv(4, 6), iv(2, 4)}),
	}
	for tile, want := range wantData {
		if got := ip.Data(tile).String(); got != want.String() {
			t.Errorf("tile %d: got data %s but want %s", tile, got, want)
		}
	}
	wantTiles := []reduce.OutputTiles{{Interval: iv(0, 4), Tiles: []int{0, 1}}}
	if diff := cmp.Diff(wantTiles, ip.TilesForOutput()); diff != "" {
		t.Errorf("unexpected output tiles (-want +got):\n%s", diff)
	}
	if got, err := ip.DataElement(1, 2); err != nil || got != 2 {
		t.Errorf("got element %d (error: %v) but want 2", got, err)
	}
	if _, err := reduce.TensorToIntermediatePartials(in, [][]graph.Interval{{iv(0, 5)}}); err == nil {
		t.Errorf("expected an error for overlapping columns but got nil")
	}
	if _, err := reduce.TensorToIntermediatePartials(flat, mapping); err == nil {
		t.Errorf("expected an error for a vector but got nil")
	}
}

func TestIntermediatePartials(t *testing.T) {
	g := newGraph(t, 3)
	ip := reduce.NewIntermediatePartials(elem.Float, 6)
	sets := []struct {
		size    int
		regions []graph.Interval
	}{
		{size: 4, regions: []graph.Interval{iv(0, 4)}},
		{size: 4, regions: []graph.Interval{iv(2, 6)}},
		{size: 4, regions: []graph.Interval{iv(4, 6), iv(0, 2)}},
	}
	for tile, set := range sets {
		data := g.AddVariable(elem.Float, []int{set.size}, "data")
		if err := ip.SetTensor(tile, data, set.regions); err != nil {
			t.Fatalf("tile %d: %v", tile, err)
		}
	}
	want := []reduce.OutputTiles{
		{Interval: iv(0, 2), Tiles: []int{0, 2}},
		{Interval: iv(2, 4), Tiles: []int{0, 1}},
		{Interval: iv(4, 6), Tiles: []int{1, 2}},
	}
	if diff := cmp.Diff(want, ip.TilesForOutput()); diff != "" {
		t.Errorf("unexpected output tiles (-want +got):\n%s", diff)
	}
	if got := ip.MaxPartials(); got != 2 {
		t.Errorf("got %d partials but want 2", got)
	}
	if got, err := ip.DataElement(2, 5); err != nil || got != 3 {
		t.Errorf("got element %d (error: %v) but want 3", got, err)
	}
	errs := []struct {
		tile    int
		typ     elem.Type
		size    int
		regions []graph.Interval
	}{
		{tile: 0, typ: elem.Float, size: 1, regions: []graph.Interval{iv(0, 1)}},
		{tile: 3, typ: elem.Int, size: 1, regions: []graph.Interval{iv(0, 1)}},
		{tile: 3, typ: elem.Float, size: 4, regions: []graph.Interval{iv(0, 3), iv(2, 3)}},
		{tile: 3, typ: elem.Float, size: 2, regions: []graph.Interval{iv(5, 7)}},
		{tile: 3, typ: elem.Float, size: 3, regions: []graph.Interval{iv(0, 2)}},
	}
	for i, test := range errs {
		data := g.AddVariable(test.typ, []int{test.size}, "bad")
		if err := ip.SetTensor(test.tile, data, test.regions); err == nil {
			t.Errorf("test %d: expected an error but got nil", i)
		}
	}
}
