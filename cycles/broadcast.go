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
	"github.com/gx-org/popfuse/expr"
	"github.com/gx-org/popfuse/target"
)

var broadcastPerf = map[binaryKey]PerfInfo{
	{expr.OpAdd, elem.Float}:                 {1, true},
	{expr.OpAdd, elem.Half}:                  {1, true},
	{expr.OpInvStdDevToVariance, elem.Float}: {4, true},
	{expr.OpInvStdDevToVariance, elem.Half}:  {8, true},
	{expr.OpMultiply, elem.Float}:            {1, true},
	{expr.OpMultiply, elem.Half}:             {1, true},
	{expr.OpSubtract, elem.Float}:            {1, true},
	{expr.OpSubtract, elem.Half}:             {1, true},
	{expr.OpVarianceToInvStdDev, elem.Float}: {5, true},
	{expr.OpVarianceToInvStdDev, elem.Half}:  {7, true},
}

func lookupBroadcast(op expr.BinaryOpType, t elem.Type) (PerfInfo, error) {
	if !isHalfOrFloat(t) {
		return PerfInfo{}, unsupported("broadcast operator %s on %s", op, t)
	}
	info, ok := broadcastPerf[binaryKey{op, t}]
	if !ok {
		return PerfInfo{}, unsupported("broadcast operator %s on %s", op, t)
	}
	return info, nil
}

func broadcastLoop(tgt target.Target, t elem.Type, info PerfInfo, numElems int, overheadPerLoop uint64) uint64 {
	cyclesPerLoop := info.CyclesPerVector + overheadPerLoop
	if info.Vectorize {
		return basicOpLoopCycles(numElems, tgt.VectorWidth(t), cyclesPerLoop)
	}
	return cyclesPerLoop * u64(numElems)
}

func broadcastOverhead(op expr.BinaryOpType, t elem.Type) uint64 {
	if hasExternalCodelet(op, t) {
		return 1
	}
	return 4
}

func broadcastScalarSupervisor(tgt target.Target, op expr.BinaryOpType, t elem.Type, n int, overheadPerLoop uint64) (uint64, error) {
	info, err := lookupBroadcast(op, t)
	if err != nil {
		return 0, err
	}
	cycles := 20 + broadcastLoop(tgt, t, info, perWorker(n, tgt.NumWorkers), overheadPerLoop)
	return cycles*u64(tgt.NumWorkers) + supervisorOverhead(NotAVector), nil
}

// BroadcastScalar1DSupervisor returns the cost of applying an operator
// between n elements and a scalar. The in-place variant has the same cost.
func BroadcastScalar1DSupervisor(tgt target.Target, op expr.BinaryOpType, t elem.Type, n int) (uint64, error) {
	return broadcastScalarSupervisor(tgt, op, t, n, broadcastOverhead(op, t))
}

// BroadcastScalar2Types1DSupervisor returns the cost of applying an operator
// between n float elements and a scalar, writing outType elements.
func BroadcastScalar2Types1DSupervisor(tgt target.Target, op expr.BinaryOpType, outType elem.Type, n int) (uint64, error) {
	overhead := uint64(1)
	if outType == elem.Float {
		overhead = 0
	}
	return broadcastScalarSupervisor(tgt, op, elem.Float, n, overhead)
}

func broadcastScalar2D(tgt target.Target, op expr.BinaryOpType, t elem.Type, sizes []int, overheadPerLoop uint64) (uint64, error) {
	info, err := lookupBroadcast(op, t)
	if err != nil {
		return 0, err
	}
	cycles := uint64(20)
	for _, n := range sizes {
		cycles += broadcastLoop(tgt, t, info, n, overheadPerLoop) + 28
	}
	return cycles, nil
}

// BroadcastScalar2DData returns the cost of applying an operator between
// the regions of a 2D field and a single scalar.
func BroadcastScalar2DData(tgt target.Target, op expr.BinaryOpType, t elem.Type, sizes []int) (uint64, error) {
	return broadcastScalar2D(tgt, op, t, sizes, broadcastOverhead(op, t))
}

// BroadcastScalar2Types2DData is BroadcastScalar2DData computed in float
// and writing outType elements.
func BroadcastScalar2Types2DData(tgt target.Target, op expr.BinaryOpType, outType elem.Type, sizes []int) (uint64, error) {
	overhead := uint64(1)
	if outType == elem.Float {
		overhead = 0
	}
	return broadcastScalar2D(tgt, op, elem.Float, sizes, overhead)
}

// BroadcastScalar2D returns the cost of applying an operator between every
// region of a 2D field and its own scalar.
func BroadcastScalar2D(tgt target.Target, op expr.BinaryOpType, t elem.Type, sizes []int) (uint64, error) {
	return broadcastScalar2D(tgt, op, t, sizes, 4)
}

// BroadcastVectorOuter returns the cost of applying an operator between
// a rows x columns matrix and a vector broadcast along its outer dimension.
// Work is split between the workers by row, or by column otherwise.
func BroadcastVectorOuter(tgt target.Target, op expr.BinaryOpType, t elem.Type, rows, columns int, byRow, allowMisaligned bool) (uint64, error) {
	info, err := lookupBroadcast(op, t)
	if err != nil {
		return 0, err
	}
	outerOverhead := uint64(7)
	if allowMisaligned {
		outerOverhead = 25
	}
	numWorkers := max(tgt.NumWorkers, 1)
	numElems := perWorker(columns, numWorkers)
	numOuterLoops := rows
	if byRow {
		numElems = columns
		numOuterLoops = perWorker(rows, numWorkers)
	}
	cycles := outerOverhead + broadcastLoop(tgt, t, info, numElems, 1)
	return (15+u64(numOuterLoops)*cycles)*u64(numWorkers) + supervisorOverhead(NotAVector), nil
}
