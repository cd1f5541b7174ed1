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

package cycles

import (
	"math/bits"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/target"
)

// halfOrWordWidth is the vector width used by copy-like vertices.
func halfOrWordWidth(tgt target.Target, t elem.Type) int {
	if t == elem.Half {
		return tgt.DataPathWidth / 16
	}
	return tgt.DataPathWidth / 32
}

// HadamardProd returns the cost of an element-wise product of 2D fields.
func HadamardProd(tgt target.Target, t elem.Type, sizes []int) uint64 {
	cycles := uint64(5)
	vectorWidth := halfOrWordWidth(tgt, t)
	for _, n := range sizes {
		cycles += 5 + 1 + 2*u64(ceilDiv(n, vectorWidth))
	}
	return cycles
}

// Zero returns the cost of zeroing n elements.
func Zero(tgt target.Target, t elem.Type, n int) uint64 {
	return 20 + u64(n/halfOrWordWidth(tgt, t))
}

// Zero2D returns the cost of zeroing the regions of a 2D field.
func Zero2D(tgt target.Target, t elem.Type, sizes []int) uint64 {
	var cycles uint64
	for _, n := range sizes {
		cycles += Zero(tgt, t, n)
	}
	return cycles
}

// DynamicSlice2D returns the cost of copying numSubElements slices of
// every region. Updating a dynamic slice has the same cost.
func DynamicSlice2D(tgt target.Target, t elem.Type, regionSizes []int, numSubElements int) uint64 {
	cycles := uint64(23)
	vectorWidth := halfOrWordWidth(tgt, t)
	for _, n := range regionSizes {
		numVectors := u64(ceilDiv(n, vectorWidth))
		if t == elem.Half {
			cycles += (31+2*numVectors)*u64(numSubElements) + 13
		} else {
			cycles += (29+numVectors)*u64(numSubElements) + 13
		}
	}
	return cycles
}

// DynamicSlice1D returns the cost of copying numSubElements slices of
// regionSize elements, shared between the workers of a tile.
// Updating a dynamic slice has the same cost.
func DynamicSlice1D(tgt target.Target, t elem.Type, regionSize, numSubElements int) uint64 {
	super := supervisorOverhead(NotAVector) + 1 + 6 + 1 + 6
	nCopies := u64(perWorker(regionSize, tgt.NumWorkers) / halfOrWordWidth(tgt, t))
	worker := 41 + (27+nCopies)*u64(numSubElements)
	return super + worker*u64(tgt.NumWorkers)
}

// MultiSlice returns the cost of gathering numOffsets slices of regionSize
// elements. Updating multiple slices has the same cost.
func MultiSlice(tgt target.Target, t elem.Type, regionSize, numOffsets int) uint64 {
	copiesPerOffset := u64(ceilDiv(regionSize, halfOrWordWidth(tgt, t)))
	return 16 + u64(numOffsets)*(19+copiesPerOffset*3)
}

// Iota returns the cost of writing consecutive integers into the regions
// of a 2D field.
func Iota(tgt target.Target, t elem.Type, sizes []int) uint64 {
	cycles := uint64(10)
	vectorWidth := max(tgt.VectorWidth(t), 1)
	for _, n := range sizes {
		cycles += 4 + 3*u64(ceilDiv(n, vectorWidth))
	}
	return cycles
}

func heapSort(n int) uint64 {
	nn := u64(n)
	var log2 uint64
	if nn > 0 {
		log2 = uint64(bits.Len64(nn) - 1)
	}
	return 19*nn*log2 + 6*nn + 2
}

// HeapSort returns the worst case cost of sorting n elements.
func HeapSort(n int) uint64 {
	return 8 * heapSort(n)
}

// HeapSortKV returns the worst case cost of sorting n keys with their values.
func HeapSortKV(n int) uint64 {
	return 16 * heapSort(n)
}

// HasNaN returns the cost of looking for a NaN in the regions of a 2D field
// without NaN.
func HasNaN(t elem.Type, sizes []int) uint64 {
	cycles := uint64(4)
	if len(sizes) == 0 {
		return cycles
	}
	cycles += 2
	perElement := uint64(10)
	if t == elem.Float {
		perElement = 9
	}
	for _, n := range sizes {
		cycles += 3
		if n == 0 {
			continue
		}
		cycles += perElement*u64(n) + 3
	}
	return cycles
}

// Transpose2D returns the cost of transposing matrices of rows x columns
// elements.
func Transpose2D(tgt target.Target, t elem.Type, rows, columns, matrices int) (uint64, error) {
	rptLimit := tgt.RptCountMax + 1
	r, c, m := u64(rows), u64(columns), u64(matrices)
	switch t.Size() {
	case 4:
		if rows&1 == 0 && columns&1 == 0 && columns >= 2 &&
			columns/2 < rptLimit &&
			rows*(columns-2)/2 < 512 &&
			rows < 512 {
			return 27 + m*(11+(r/2)*(6+3*(c/2-1))), nil
		}
		return 13 + m*(8+c*(5+(r*4)/2)), nil
	case 2:
		switch {
		case rows&3 == 0 && columns&3 == 0 && columns >= 8 &&
			columns/4 < rptLimit &&
			1+3*(columns/4) < 512:
			return 37 + m*(12+(r/4)*(15+4*(c/4-2))), nil
		case rows&3 == 0 && rows >= 4 && columns == 4 &&
			rows/4 < rptLimit &&
			1+3*(rows/4) < 512:
			if rows == 4 {
				return 32 + 15*m, nil
			}
			return 28 + m*(17+(20+4*(r/4-2))), nil
		}
		return 15 + m*(8+c*(5+(r*5)/2)), nil
	}
	return 0, unsupported("transpose of %s", t)
}

// TransposeWorker returns the cost of the fast transposition of matrices of
// 2-byte elements, with rowsD4 and columnsD4 the number of rows and columns
// divided by 4.
func TransposeWorker(rowsD4, columnsD4, matrices int, srcLayout Layout) uint64 {
	rowsD4, columnsD4, matrices = max(rowsD4, 1), max(columnsD4, 1), max(matrices, 1)
	r, c, m := u64(rowsD4), u64(columnsD4), u64(matrices)
	var cycles uint64
	switch {
	case rowsD4 == 1 && columnsD4 == 1:
		if matrices == 1 {
			cycles = 17 + 12
		} else {
			cycles = 17 + 20 + (m-2)*4
		}
	case columnsD4 == 1:
		cycles = 27 + m*(15+(20+4*(r-2)))
	default:
		cycles = 29 + m*(18+r*(12+4*(c-2)))
	}
	return cycles + srcLayout.unpackCost()
}
