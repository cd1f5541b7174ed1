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
	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/target"
)

func castWorkerFloat(numElems int, to elem.Type) uint64 {
	cycles := uint64(2)
	if to == elem.Half {
		cycles += 2
	}
	if numElems < 4 {
		return cycles + 11 + u64(numElems*14/3)
	}
	return cycles + 26 + 2*u64(numElems/4) + u64((numElems&3)*14/3)
}

func isFloatHalfCast(from, to elem.Type) bool {
	return (from == elem.Float && to == elem.Half) || (from == elem.Half && to == elem.Float)
}

// Cast returns the cost of converting n elements on a worker.
func Cast(tgt target.Target, from, to elem.Type, n int) uint64 {
	if isFloatHalfCast(from, to) {
		return castWorkerFloat(n, to)
	}
	return u64(ceilDiv(n, tgt.FloatVectorWidth())) + 5
}

// CastSupervisor returns the cost of converting n elements shared between
// the workers of a tile.
func CastSupervisor(tgt target.Target, from, to elem.Type, n int) uint64 {
	slowest := 20 + castWorkerFloat(perWorker(n, tgt.NumWorkers), to)
	return 7 + u64(tgt.NumWorkers)*slowest
}

// Cast2D returns the cost of converting the regions of a 2D field.
func Cast2D(tgt target.Target, from, to elem.Type, sizes []int) uint64 {
	cycles := uint64(5)
	for _, n := range sizes {
		cycles += 6 + u64(ceilDiv(n, tgt.FloatVectorWidth()))
	}
	return cycles
}

func selectCycles(numElems int) uint64 {
	return 6 + basicOpLoopCycles(numElems, 1, 5)
}

// Select returns the cost of selecting between the regions of two 2D fields.
// The in-place variant has the same cost.
func Select(sizes []int) uint64 {
	cycles := uint64(5)
	for _, n := range sizes {
		cycles += selectCycles(n)
	}
	return cycles
}

// BroadcastSelect returns the cost of selecting between two scalars
// with the regions of a 2D condition field.
func BroadcastSelect(t elem.Type, sizes []int) (uint64, error) {
	cycles := uint64(9 + 1)
	for _, n := range sizes {
		switch t.Size() {
		case 4:
			cycles += 5 + 4*u64(n) + 3
		case 2:
			// Assumes a misaligned pointer for even sizes.
			if n&1 != 0 {
				cycles += 23 + u64(n)*4
			} else {
				cycles += 30 + u64(n)*4
			}
		case 1:
			cycles += 40 + u64(n/4)*17 + 26
		default:
			return 0, unsupported("broadcast select on %s", t)
		}
	}
	return cycles, nil
}

// BroadcastSelectorSelect returns the cost of copying rows selected
// by a single condition.
func BroadcastSelectorSelect(t elem.Type, rowSizes []int) uint64 {
	cycles := uint64(11 + 1)
	for _, n := range rowSizes {
		bytes := u64(n * t.Size())
		cycles += 12 + 23 + bytes/4 + (bytes%4)*5
	}
	return cycles
}

func clampCycles(tgt target.Target, t elem.Type, numElems int) uint64 {
	cyclesPerVector, vectorWidth := uint64(1), 1
	switch t {
	case elem.Float, elem.Half:
		vectorWidth = tgt.VectorWidth(t)
		cyclesPerVector = 2
	case elem.Int:
		cyclesPerVector = 7
	}
	return 6 + basicOpLoopCycles(numElems, vectorWidth, cyclesPerVector)
}

// Clamp returns the cost of clamping the regions of a 2D field.
// The in-place and broadcast variants have the same cost.
func Clamp(tgt target.Target, t elem.Type, sizes []int) uint64 {
	cycles := uint64(5)
	for _, n := range sizes {
		cycles += clampCycles(tgt, t, n)
	}
	return cycles
}
