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
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/graph"
	"github.com/gx-org/popfuse/reduce"
	"github.com/gx-org/popfuse/target"
)

func iv(begin, end int) graph.Interval {
	return graph.Interval{Begin: begin, End: end}
}

func pat(length, offset, stride, reps, region int) reduce.PartialsPattern {
	return reduce.PartialsPattern{
		Length:       length,
		RegionOffset: offset,
		Stride:       stride,
		Repetitions:  reps,
		RegionIdx:    region,
	}
}

func desc(cols []int, patterns ...reduce.PartialsPattern) reduce.PartialsDescription {
	return reduce.PartialsDescription{Columns: cols, Patterns: patterns}
}

func cols(cs ...int) []int {
	return cs
}

func TestGatherPatterns(t *testing.T) {
	tests := []struct {
		descs      []reduce.PartialsDescription
		regions    [][]graph.Interval
		numColumns int
		want       []reduce.PartialsDescription
	}{
		{
			regions:    [][]graph.Interval{{iv(0, 9)}},
			numColumns: 3,
			descs:      []reduce.PartialsDescription{desc(cols(0))},
			want:       []reduce.PartialsDescription{desc(cols(0), pat(1, 0, 3, 3, 0))},
		},
		{
			regions:    [][]graph.Interval{{iv(0, 10)}},
			numColumns: 2,
			want: []reduce.PartialsDescription{
				desc(cols(0), pat(1, 0, 2, 5, 0)),
				desc(cols(1), pat(1, 1, 2, 5, 0)),
			},
		},
		{
			regions:    [][]graph.Interval{{iv(0, 20)}},
			numColumns: 4,
			descs:      []reduce.PartialsDescription{desc(cols(0)), desc(cols(2))},
			want: []reduce.PartialsDescription{
				desc(cols(0), pat(1, 0, 4, 5, 0)),
				desc(cols(2), pat(1, 2, 4, 5, 0)),
			},
		},
		{
			regions: [][]graph.Interval{{
				iv(1, 2), iv(11, 13), iv(21, 22), iv(31, 33), iv(41, 42),
				iv(51, 54), iv(61, 62), iv(71, 74), iv(81, 82), iv(91, 95),
			}},
			numColumns: 10,
			descs:      []reduce.PartialsDescription{desc(cols(1))},
			want:       []reduce.PartialsDescription{desc(cols(1), pat(2, 0, 3, 3, 0), pat(2, 10, 4, 2, 0))},
		},
		{
			regions: [][]graph.Interval{{
				iv(1, 2), iv(4, 5), iv(8, 9), iv(12, 14), iv(16, 17),
				iv(20, 21), iv(24, 26), iv(28, 29), iv(32, 33),
			}},
			numColumns: 4,
			descs:      []reduce.PartialsDescription{desc(cols(0))},
			want:       []reduce.PartialsDescription{desc(cols(0), pat(3, 1, 4, 2, 0), pat(2, 9, 0, 1, 0))},
		},
		{
			regions: [][]graph.Interval{{
				iv(1, 2), iv(4, 5), iv(8, 10), iv(12, 13), iv(16, 18), iv(20, 21), iv(24, 28),
			}},
			numColumns: 4,
			descs:      []reduce.PartialsDescription{desc(cols(0))},
			want:       []reduce.PartialsDescription{desc(cols(0), pat(2, 1, 3, 3, 0))},
		},
		{
			regions:    [][]graph.Interval{{iv(4, 5), iv(8, 9), iv(12, 13)}},
			numColumns: 4,
			descs:      []reduce.PartialsDescription{desc(cols(0))},
			want:       []reduce.PartialsDescription{desc(cols(0), pat(3, 0, 0, 1, 0))},
		},
		{
			regions:    [][]graph.Interval{{iv(4, 5), iv(8, 9), iv(12, 13)}},
			numColumns: 4,
			descs:      []reduce.PartialsDescription{desc(cols(1))},
			want:       []reduce.PartialsDescription{desc(cols(1))},
		},
		{
			regions:    [][]graph.Interval{{iv(4, 5)}, {iv(0, 3), iv(8, 9)}, {iv(12, 13)}},
			numColumns: 4,
			descs:      []reduce.PartialsDescription{desc(cols(0))},
			want: []reduce.PartialsDescription{desc(cols(0),
				pat(1, 0, 0, 1, 0),
				pat(1, 0, 3, 2, 1),
				pat(1, 0, 0, 1, 2),
			)},
		},
		{
			regions: [][]graph.Interval{{
				iv(1, 3), iv(4, 5), iv(8, 10), iv(12, 13), iv(16, 18),
				iv(20, 21), iv(24, 25), iv(28, 29), iv(32, 35),
			}},
			numColumns: 4,
			descs:      []reduce.PartialsDescription{desc(cols(0))},
			want:       []reduce.PartialsDescription{desc(cols(0), pat(2, 2, 3, 2, 0), pat(4, 8, 0, 1, 0))},
		},
		{
			regions: [][]graph.Interval{{
				iv(1, 3), iv(4, 5), iv(8, 9), iv(12, 14), iv(16, 17),
				iv(20, 21), iv(24, 26), iv(28, 33),
			}},
			numColumns: 4,
			descs:      []reduce.PartialsDescription{desc(cols(0))},
			want:       []reduce.PartialsDescription{desc(cols(0), pat(3, 2, 4, 2, 0), pat(1, 10, 4, 2, 0))},
		},
		{
			regions: [][]graph.Interval{{
				iv(1, 3), iv(4, 5), iv(8, 10), iv(12, 13), iv(16, 18), iv(20, 21), iv(24, 25),
			}},
			numColumns: 4,
			descs:      []reduce.PartialsDescription{desc(cols(0))},
			want:       []reduce.PartialsDescription{desc(cols(0), pat(2, 2, 3, 3, 0))},
		},
		{
			regions:    [][]graph.Interval{{iv(0, 5), iv(5, 8), iv(15, 20)}, {iv(8, 15)}},
			numColumns: 4,
			descs:      []reduce.PartialsDescription{desc(cols(3))},
			want: []reduce.PartialsDescription{desc(cols(3),
				pat(1, 3, 4, 1, 0),
				pat(2, 7, 5, 1, 0),
				pat(1, 12, 0, 1, 0),
				pat(1, 3, 0, 1, 1),
			)},
		},
	}
	for i, test := range tests {
		got, err := reduce.GatherPatterns(test.descs, test.regions, test.numColumns)
		if err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("test %d: unexpected patterns (-want +got):\n%s", i, diff)
		}
	}
}

func TestGatherPatternsErrors(t *testing.T) {
	regions := [][]graph.Interval{{iv(0, 4)}}
	tests := []struct {
		descs      []reduce.PartialsDescription
		numColumns int
	}{
		{numColumns: 0},
		{descs: []reduce.PartialsDescription{{}}, numColumns: 2},
		{descs: []reduce.PartialsDescription{desc(cols(2))}, numColumns: 2},
		{descs: []reduce.PartialsDescription{desc(cols(1)), desc(cols(1))}, numColumns: 2},
	}
	for i, test := range tests {
		if _, err := reduce.GatherPatterns(test.descs, regions, test.numColumns); err == nil {
			t.Errorf("test %d: expected an error but got nil", i)
		}
	}
}

func TestGroupPartials(t *testing.T) {
	tests := []struct {
		regions    [][]graph.Interval
		numColumns int
		want       []reduce.PartialsDescription
	}{
		{
			regions:    [][]graph.Interval{{iv(0, 24)}},
			numColumns: 4,
			want:       []reduce.PartialsDescription{desc(cols(0, 1, 2, 3), pat(1, 0, 4, 6, 0))},
		},
		{
			regions: [][]graph.Interval{{
				iv(0, 2), iv(4, 6), iv(8, 10), iv(12, 14), iv(16, 18), iv(20, 22), iv(24, 27),
			}},
			numColumns: 4,
			want: []reduce.PartialsDescription{
				desc(cols(0, 1), pat(1, 0, 2, 7, 0)),
				desc(cols(2), pat(1, 14, 0, 1, 0)),
			},
		},
		{
			regions:    [][]graph.Interval{{iv(0, 23)}},
			numColumns: 6,
			want: []reduce.PartialsDescription{
				desc(cols(0, 1, 2, 3, 4), pat(1, 0, 6, 4, 0)),
				desc(cols(5), pat(1, 5, 6, 3, 0)),
			},
		},
		{
			regions:    [][]graph.Interval{{iv(0, 24)}, {iv(24, 48)}},
			numColumns: 2,
			want:       []reduce.PartialsDescription{desc(cols(0, 1), pat(1, 0, 2, 12, 0), pat(1, 0, 2, 12, 1))},
		},
	}
	for i, test := range tests {
		gathered, err := reduce.GatherPatterns(nil, test.regions, test.numColumns)
		if err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		got := reduce.GroupPartials(gathered)
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("test %d: unexpected groups (-want +got):\n%s", i, diff)
		}
	}
}

func TestGroupAdjacency(t *testing.T) {
	tests := []struct {
		next int
		want []reduce.PartialsDescription
	}{
		{
			next: 1,
			want: []reduce.PartialsDescription{desc(cols(0, 1), pat(1, 0, 2, 5, 0))},
		},
		{
			next: 2,
			want: []reduce.PartialsDescription{
				desc(cols(0), pat(1, 0, 2, 5, 0)),
				desc(cols(1), pat(1, 2, 2, 5, 0)),
			},
		},
	}
	for i, test := range tests {
		got := reduce.GroupPartials([]reduce.PartialsDescription{
			desc(cols(1), pat(1, test.next, 2, 5, 0)),
			desc(cols(0), pat(1, 0, 2, 5, 0)),
		})
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("test %d: unexpected groups (-want +got):\n%s", i, diff)
		}
	}
}

func TestDividePartials(t *testing.T) {
	tgt := target.New(1)
	tests := []struct {
		groups []reduce.PartialsDescription
		op     reduce.Op
		want   []reduce.PartialsDescription
	}{
		{
			groups: []reduce.PartialsDescription{desc(cols(1, 2), pat(8, 0, 16, 3, 0), pat(12, 48, 24, 6, 0))},
			op:     reduce.Add,
			want: []reduce.PartialsDescription{
				desc(cols(1), pat(8, 0, 16, 3, 0), pat(12, 48, 24, 6, 0)),
				desc(cols(2), pat(8, 8, 16, 3, 0), pat(12, 60, 24, 6, 0)),
			},
		},
		{
			groups: []reduce.PartialsDescription{desc(cols(0, 1, 2, 3), pat(1, 0, 4, 6, 0))},
			op:     reduce.Max,
			want: []reduce.PartialsDescription{
				desc(cols(0, 1), pat(1, 0, 4, 6, 0)),
				desc(cols(2, 3), pat(1, 2, 4, 6, 0)),
			},
		},
		{
			groups: []reduce.PartialsDescription{desc(cols(0, 1, 2, 3), pat(1, 0, 4, 6, 0))},
			op:     reduce.Add,
			want:   []reduce.PartialsDescription{desc(cols(0, 1, 2, 3), pat(1, 0, 4, 6, 0))},
		},
	}
	for i, test := range tests {
		got := reduce.DividePartials(test.groups, tgt, test.op, elem.Float)
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("test %d: unexpected descriptions (-want +got):\n%s", i, diff)
		}
	}
}

func TestSplitOutputRegionsForWorkers(t *testing.T) {
	tgt := target.New(1)
	tests := []struct {
		op      reduce.Op
		workers int
		regions []graph.Interval
		want    []graph.Interval
	}{
		{
			op:      reduce.Add,
			workers: 6,
			regions: []graph.Interval{iv(0, 100)},
			want:    []graph.Interval{iv(0, 16), iv(16, 28), iv(28, 40), iv(40, 52), iv(52, 76), iv(76, 100)},
		},
		{
			op:      reduce.Add,
			workers: 6,
			regions: []graph.Interval{iv(0, 3)},
			want:    []graph.Interval{iv(0, 3)},
		},
		{
			op:      reduce.Max,
			workers: 3,
			regions: []graph.Interval{iv(0, 5), iv(10, 12)},
			want:    []graph.Interval{iv(0, 2), iv(2, 5), iv(10, 12)},
		},
	}
	for i, test := range tests {
		got := reduce.SplitOutputRegionsForWorkers(tgt, test.workers, test.op, elem.Float, test.regions)
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("test %d: unexpected regions (-want +got):\n%s", i, diff)
		}
	}
}

func TestListPartials(t *testing.T) {
	g, err := graph.New(target.New(1))
	if err != nil {
		t.Fatal(err)
	}
	in := g.AddVariable(elem.Float, []int{9}, "in")
	regions := reduce.RegionTensors(in, [][]graph.Interval{{iv(0, 9)}})
	tests := []struct {
		desc reduce.PartialsDescription
		want []graph.Tensor
	}{
		{
			desc: desc(cols(0), pat(1, 0, 3, 3, 0)),
			want: []graph.Tensor{in.Slices([]graph.Interval{iv(0, 1), iv(3, 4), iv(6, 7)})},
		},
		{
			desc: desc(cols(0, 1, 2), pat(1, 0, 3, 3, 0)),
			want: []graph.Tensor{in.Slice(0, 9)},
		},
		{
			desc: desc(cols(1), pat(4, 2, 0, 1, 0), pat(1, 7, 0, 1, 0)),
			want: []graph.Tensor{in.Slice(2, 6), in.Slice(7, 8)},
		},
	}
	for i, test := range tests {
		got, err := reduce.ListPartials([]reduce.PartialsDescription{test.desc}, regions)
		if err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		if len(got) != 1 {
			t.Errorf("test %d: got %d reductions but want 1", i, len(got))
			continue
		}
		gotS := make([]string, len(got[0].Partials))
		for j, p := range got[0].Partials {
			gotS[j] = p.String()
		}
		wantS := make([]string, len(test.want))
		for j, p := range test.want {
			wantS[j] = p.String()
		}
		if diff := cmp.Diff(wantS, gotS); diff != "" {
			t.Errorf("test %d: unexpected partials (-want +got):\n%s", i, diff)
		}
	}
	for i, d := range []reduce.PartialsDescription{
		desc(cols(0), pat(1, 0, 3, 3, 1)),
		desc(cols(0), pat(1, 0, 4, 4, 0)),
	} {
		if _, err := reduce.ListPartials([]reduce.PartialsDescription{d}, regions); err == nil {
			t.Errorf("error test %d: expected an error but got nil", i)
		}
	}
}

// randomRegions cuts [0,n) into short intervals spread over at most
// three regions in a random order.
func randomRegions(rng *rand.Rand, n int) [][]graph.Interval {
	var ivs []graph.Interval
	for begin := 0; begin < n; {
		end := min(begin+1+rng.IntN(4), n)
		ivs = append(ivs, iv(begin, end))
		begin = end
	}
	rng.Shuffle(len(ivs), func(i, j int) { ivs[i], ivs[j] = ivs[j], ivs[i] })
	regions := make([][]graph.Interval, 1+rng.IntN(3))
	for _, x := range ivs {
		r := rng.IntN(len(regions))
		regions[r] = append(regions[r], x)
	}
	var r [][]graph.Interval
	for _, region := range regions {
		if len(region) > 0 {
			r = append(r, region)
		}
	}
	return r
}

func TestPartialsCoverColumns(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	tgt := target.New(1)
	ops := []reduce.Op{reduce.Add, reduce.Max}
	for i := range 500 {
		numColumns := 1 + rng.IntN(12)
		n := numColumns * (1 + rng.IntN(6))
		regions := randomRegions(rng, n)
		op := ops[rng.IntN(len(ops))]
		gathered, err := reduce.GatherPatterns(nil, regions, numColumns)
		if err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		descs := reduce.DividePartials(reduce.GroupPartials(gathered), tgt, op, elem.Float)
		g := newGraph(t, 1)
		in := g.AddVariable(elem.Float, []int{n}, "in")
		if err := g.SetTileMapping(in, 0); err != nil {
			t.Fatal(err)
		}
		reductions, err := reduce.ListPartials(descs, reduce.RegionTensors(in, regions))
		if err != nil {
			t.Errorf("test %d: regions %v: %v", i, regions, err)
			continue
		}
		eng := graph.NewEngine(g)
		write(t, eng, in, count(n))
		seen := make([]int, n)
		for j, red := range reductions {
			columns := descs[j].Columns
			for _, partial := range red.Partials {
				vals := read(t, eng, partial)
				if len(vals)%len(columns) != 0 {
					t.Errorf("test %d: regions %v: partial of %d element(s) for columns %v", i, regions, len(vals), columns)
				}
				for k, v := range vals {
					e := int(v) - 1
					seen[e]++
					if got, want := e%numColumns, columns[k%len(columns)]; got != want {
						t.Errorf("test %d: regions %v: element %d of column %d reduced into column %d", i, regions, e, got, want)
					}
				}
			}
		}
		for e, c := range seen {
			if c != 1 {
				t.Errorf("test %d: regions %v: element %d found in %d partial(s)", i, regions, e, c)
			}
		}
	}
}

func tiles(descs ...[][]int) [][]reduce.PartialsDescription {
	r := make([][]reduce.PartialsDescription, len(descs))
	for i, tile := range descs {
		for _, cs := range tile {
			r[i] = append(r[i], reduce.PartialsDescription{Columns: cs})
		}
	}
	return r
}

func TestFindCommonColumnOrder(t *testing.T) {
	tests := []struct {
		tiles [][]reduce.PartialsDescription
		want  []int
	}{
		{
			tiles: tiles(
				[][]int{{0, 1, 2, 3}, {4, 5, 6, 7}},
				[][]int{{0, 1, 2, 3}},
				[][]int{{4, 5, 6, 7, 8, 9}},
				[][]int{{4, 5, 6, 7, 8, 9}},
				[][]int{{4, 5, 6, 7}},
				[][]int{{10}},
			),
		},
		{
			tiles: tiles([][]int{{0, 2, 3, 1}}, [][]int{{7, 0, 2, 3, 1, 4, 5, 6}}),
			want:  []int{7, 0, 2, 3, 1, 4, 5, 6},
		},
		{
			tiles: tiles([][]int{{3, 2, 1, 0}}),
			want:  []int{3, 2, 1, 0},
		},
		{
			tiles: tiles([][]int{{3, 2, 1, 0}}, [][]int{{3, 2, 1, 0, 4, 6, 5, 7}}),
			want:  []int{3, 2, 1, 0, 4, 6, 5, 7},
		},
		{
			tiles: tiles([][]int{{0, 2, 3}}, [][]int{{3, 1, 4}}, [][]int{{1, 4, 0}}),
			want:  []int{0, 2, 3, 1, 4},
		},
		{
			tiles: tiles(
				[][]int{{0, 2, 3}, {4, 7, 6, 1}},
				[][]int{{3, 0, 2}},
				[][]int{{4, 7, 6}, {2, 3, 0}},
				[][]int{{5}, {9}, {7, 6}},
				[][]int{{8}, {9, 10}},
				[][]int{{9, 10}},
			),
			want: []int{0, 2, 3, 4, 7, 6, 1, 5, 8, 9, 10},
		},
		{
			tiles: tiles([][]int{{0, 2, 4, 5}}, [][]int{{0, 2, 3, 1, 4, 5, 6, 7}}),
			want:  []int{0, 2, 4, 5, 6, 7, 3, 1},
		},
		{
			tiles: tiles(
				[][]int{{0, 2, 3}}, [][]int{{3, 1, 4}}, [][]int{{1, 4, 0}},
				[][]int{{4, 6, 5}}, [][]int{{6, 7, 8}}, [][]int{{8, 4, 6}},
			),
			want: []int{0, 2, 3, 1, 4, 6, 5, 7, 8},
		},
		{
			tiles: tiles([][]int{{0, 2, 4, 5}}, [][]int{{1, 2, 4, 5}}, [][]int{{0, 2, 3, 1, 4, 5, 6, 7}}),
			want:  []int{0, 2, 4, 5, 6, 7, 3, 1},
		},
		{
			tiles: tiles([][]int{{0, 1, 2, 3}}, [][]int{{2, 4}}, [][]int{{2, 5, 6, 7}}, [][]int{{8, 2, 9, 10}}),
		},
		{
			tiles: tiles([][]int{{0, 2, 1, 3}}, [][]int{{2, 4}}, [][]int{{2, 5, 6, 7}}, [][]int{{8, 2, 9, 10}}),
			want:  []int{0, 2, 1, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	}
	for i, test := range tests {
		got, ok := reduce.FindCommonColumnOrder(test.tiles)
		if ok != (test.want != nil) {
			t.Errorf("test %d: got order %v (found: %t) but want %v", i, got, ok, test.want)
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("test %d: unexpected order (-want +got):\n%s", i, diff)
		}
	}
}
