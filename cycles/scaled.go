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
	"slices"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/target"
)

// ScaledOp is a scaled accumulation A = f(A, B, scales).
type ScaledOp int

// Scaled accumulations.
const (
	// ScaledAdd computes A + b*B.
	ScaledAdd ScaledOp = iota
	// ScaledSubtract computes A - b*B.
	ScaledSubtract
	// AXPlusBY computes a*A + b*B.
	AXPlusBY
	// AXMinusBY computes a*A - b*B.
	AXMinusBY
	// XMinusAXPlusBY computes A - a*A + b*B.
	XMinusAXPlusBY
)

// Scaled describes a scaled accumulation vertex.
type Scaled struct {
	Op ScaledOp
	// DataType is the type of A.
	DataType elem.Type
	// DataBType is the type of B. Defaults to DataType.
	DataBType elem.Type
	// ScaleType is the type of the scales. Defaults to DataType.
	ScaleType elem.Type
	// IsConstant is true if the scales are constants of the vertex.
	IsConstant bool
	// MemConstrained is true if A and B are in the same memory element.
	MemConstrained bool
	// ALayout and BLayout are the layouts of the A and B fields.
	ALayout, BLayout Layout
}

func (s Scaled) bType() elem.Type {
	if s.DataBType == elem.Invalid {
		return s.DataType
	}
	return s.DataBType
}

func (s Scaled) scaleType() elem.Type {
	if s.ScaleType == elem.Invalid {
		return s.DataType
	}
	return s.ScaleType
}

func (s Scaled) isMixed() bool {
	return (s.Op == AXPlusBY || s.Op == XMinusAXPlusBY) && s.DataType == elem.Half && s.scaleType() == elem.Float
}

// XMinusaXPlusbY shares the cost of aXPlusbY.
func (s Scaled) costOp() ScaledOp {
	if s.Op == XMinusAXPlusBY {
		return AXPlusBY
	}
	return s.Op
}

func (s Scaled) isConstant() bool {
	return s.IsConstant && s.Op != ScaledSubtract
}

// ScaledSupervisor returns the cost of a scaled accumulation over n elements
// shared between the workers of a tile.
func ScaledSupervisor(tgt target.Target, s Scaled, n int) (uint64, error) {
	switch {
	case s.isMixed():
		return aXPlusBYMixedSupervisor(tgt, s, n), nil
	case s.DataType == elem.Int || s.DataType == elem.UnsignedInt:
		return scaledIntSupervisor(s, n), nil
	case isHalfOrFloat(s.DataType):
		return scaledFloatSupervisor(tgt, s, n), nil
	}
	return 0, unsupported("scaled accumulation on %s", s.DataType)
}

func scaledIntSupervisor(s Scaled, n int) uint64 {
	cycles := 53 + 26*u64(n/3)
	if s.costOp() == ScaledSubtract && !s.isConstant() {
		cycles++
	}
	cycles += 6
	if n%3 != 0 {
		cycles += 26 * u64(n%3)
	}
	cycles += 8
	if !s.isConstant() {
		cycles += 6
	}
	return cycles
}

func scaledFloatSupervisor(tgt target.Target, s Scaled, n int) uint64 {
	numWorkers := max(tgt.NumWorkers, 1)
	atomSize := 8 / tgt.TypeSize(s.DataType)
	count := n / numWorkers / atomSize * atomSize
	final := n % numWorkers
	rem := (n/numWorkers)%numWorkers + ceilDiv(final, atomSize)

	perTypeOverhead := uint64(21)
	if s.ALayout == ScaledPtr64 {
		perTypeOverhead += 6
	}
	cycles := perTypeOverhead + supervisorOverhead(NotAVector) + 12
	if final == 0 {
		cycles += 7
	} else {
		cycles += 13
	}
	op, constant := s.costOp(), s.isConstant()
	if op == AXPlusBY && !constant {
		cycles += 12 + s.ALayout.unpackCost() + s.BLayout.unpackCost()
	}
	if op == ScaledSubtract && !constant {
		cycles += 7
	}
	if !constant {
		cycles += 6
	}

	innerLoop := uint64(4)
	switch {
	case s.MemConstrained:
		innerLoop = 2
	case s.DataType == s.bType() || s.bType() == elem.Half:
		innerLoop = 3
	}
	numAtoms := count / atomSize
	var maxWorker uint64
	for wid := 0; wid <= numWorkers; wid++ {
		worker := uint64(15)
		if numAtoms != 0 {
			worker += 6 + innerLoop*u64(numAtoms-1)
		}
		worker += 2
		if wid == rem {
			worker++
			if final != 0 {
				worker += finalCycles(s.DataType, final)
			}
		}
		worker++
		maxWorker = max(maxWorker, worker)
	}
	return cycles + maxWorker*6
}

func finalCycles(t elem.Type, final int) uint64 {
	if t == elem.Float {
		return 8
	}
	cycles := uint64(5)
	if final >= 2 {
		cycles += 7
		if final == 3 {
			cycles += 6
		}
	}
	return cycles
}

// aXPlusBYMixedCore returns the cycles taken to process count half
// elements with float scales.
func aXPlusBYMixedCore(count int) uint64 {
	cycles := uint64(4)
	if countM4 := max(count-4, 0); countM4 > 0 {
		rptCount := u64(countM4/2 - 1)
		cycles += 11 + rptCount*5 + 4
		if countM4&1 != 0 {
			cycles += 9
		}
	} else {
		cycles++
		switch count {
		case 1:
			cycles += 4 + 10
		case 2:
			cycles += 12 + 1
		case 3:
			cycles += 12 + 10
		}
	}
	return cycles + 1
}

func aXPlusBYMixedSupervisor(tgt target.Target, s Scaled, n int) uint64 {
	scaledPtr64 := s.ALayout == ScaledPtr64
	var cycles uint64
	if s.IsConstant {
		cycles += 9 + 5
	} else {
		if s.MemConstrained {
			cycles += 2 + 5
		} else {
			cycles++
		}
		if scaledPtr64 {
			cycles += 12
		} else {
			cycles += 6
		}
		// Accuracy check of the scales on a worker.
		cycles += 10 + 15*6 + 9 + 5
	}

	numWorkers := max(tgt.NumWorkers, 1)
	const atomSize = 2
	count := n / numWorkers / atomSize * atomSize
	final := n % numWorkers
	rem := (n/numWorkers)%numWorkers + ceilDiv(final, atomSize)
	cycles += 28
	if scaledPtr64 {
		cycles += 2
	}
	if final == 0 {
		cycles += 5
	}

	workers := make([]uint64, numWorkers)
	for wid := range workers {
		workerCount := count
		if wid <= rem {
			workerCount += atomSize
		}
		if wid == rem {
			workerCount += final
		}
		workers[wid] = 19 + aXPlusBYMixedCore(workerCount)
		if wid == rem {
			workers[wid]++
		}
	}
	return cycles + slices.Max(workers)*6
}

// Scaled2D returns the cost of a scaled accumulation over 2D fields.
func Scaled2D(s Scaled, sizes []int) (uint64, error) {
	switch {
	case s.isMixed():
		return aXPlusBYMixed2D(s, sizes), nil
	case s.DataType == elem.Int || s.DataType == elem.UnsignedInt:
		cycles := uint64(8)
		for _, n := range sizes {
			cycles += 7 + u64(n)*5
		}
		if !s.isConstant() {
			cycles++
			if s.costOp() == ScaledSubtract {
				cycles++
			}
		}
		return cycles, nil
	case isHalfOrFloat(s.DataType):
		return scaledFloat2D(s, sizes), nil
	}
	return 0, unsupported("scaled accumulation on %s", s.DataType)
}

func scaledFloat2D(s Scaled, sizes []int) uint64 {
	innerLoop := uint64(3)
	if s.MemConstrained {
		innerLoop = 2
	}
	grain := 2
	if s.DataType == elem.Half {
		grain = 4
	}
	op, constant := s.costOp(), s.isConstant()
	cycles := uint64(9)
	if !constant {
		cycles++
	}
	switch {
	case op == ScaledSubtract && !constant:
		cycles += 2
	case op == AXPlusBY && !constant:
		cycles += 6
	case op == AXPlusBY && constant:
		cycles += 4
	}
	for _, n := range sizes {
		cycles += 15
		if s.ALayout == ShortSpan {
			cycles += s.BLayout.unpackCost()
		}
		if n/grain != 0 {
			cycles += 5 + u64(n/grain)*innerLoop
		}
		rem := n % grain
		if s.DataType == elem.Float {
			if rem != 0 {
				cycles += 7
			}
			continue
		}
		if rem > 0 {
			cycles += 4
		}
		if rem >= 2 {
			cycles += 6
		}
		if rem%2 == 1 {
			cycles += 7
		}
	}
	return cycles
}

func aXPlusBYMixed2D(s Scaled, sizes []int) uint64 {
	var cycles uint64
	if s.IsConstant {
		cycles += 2
	} else {
		if s.MemConstrained {
			cycles += 2
		} else {
			cycles++
		}
		cycles += 15
	}
	cycles += 6
	rowLoop := uint64(2 + 2 + 1)
	if s.ALayout == ShortSpan {
		rowLoop += 2
	}
	if s.BLayout == ScaledPtr64 {
		rowLoop++
	}
	for _, n := range sizes {
		cycles += rowLoop * aXPlusBYMixedCore(n)
	}
	return cycles
}
