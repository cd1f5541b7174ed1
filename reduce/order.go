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

package reduce

import (
	"slices"
	"sort"

	"github.com/samber/lo"
)

// FindCommonColumnOrder finds an order of the columns in which the columns
// grouped on the tiles are, as much as possible, consecutive.
//
// A column is followed by the first column noted to follow it in a group.
// Columns are chained starting from columns that no remaining column
// precedes. Cycles start from their lowest column. Chains are then
// concatenated in the order of their lowest column.
//
// It returns false if the order found is 0, 1, 2, ...
func FindCommonColumnOrder(tiles [][]PartialsDescription) ([]int, bool) {
	numColumns := 0
	for _, descs := range tiles {
		for _, desc := range descs {
			for _, col := range desc.Columns {
				numColumns = max(numColumns, col+1)
			}
		}
	}
	followers := make([][]int, numColumns)
	preceders := make([][]int, numColumns)
	for _, descs := range tiles {
		for _, desc := range descs {
			for i := 1; i < len(desc.Columns); i++ {
				a, b := desc.Columns[i-1], desc.Columns[i]
				if a < 0 || b < 0 || slices.Contains(followers[a], b) {
					continue
				}
				followers[a] = append(followers[a], b)
				preceders[b] = append(preceders[b], a)
			}
		}
	}
	visited := make([]bool, numColumns)
	unvisited := func(cols []int) int {
		for _, col := range cols {
			if !visited[col] {
				return col
			}
		}
		return -1
	}
	nextStart := func() int {
		first := -1
		for col := range numColumns {
			if visited[col] {
				continue
			}
			if unvisited(preceders[col]) < 0 {
				return col
			}
			if first < 0 {
				first = col
			}
		}
		return first
	}
	var chains [][]int
	for start := nextStart(); start >= 0; start = nextStart() {
		var chain []int
		for col := start; col >= 0; col = unvisited(followers[col]) {
			visited[col] = true
			chain = append(chain, col)
		}
		chains = append(chains, chain)
	}
	sort.SliceStable(chains, func(i, j int) bool {
		return slices.Min(chains[i]) < slices.Min(chains[j])
	})
	order := lo.Flatten(chains)
	if slices.IsSorted(order) {
		return nil, false
	}
	return order, true
}
