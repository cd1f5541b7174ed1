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

// Package cycles estimates the number of cycles taken by codelets.
//
// Every estimate is a pure function of the static description of a vertex:
// its element types, the sizes of its fields and the parameters of the
// target. Estimates never depend on the values processed by the vertex.
// Sizes passed as a slice are the sizes of the regions of a 2D field.
package cycles

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"

	"github.com/gx-org/popfuse/elem"
)

// Layout of a vector field in the memory of a vertex.
type Layout int

// Vector layouts.
const (
	NotAVector Layout = iota
	Span
	OnePtr
	ShortSpan
	ScaledPtr32
	ScaledPtr64
)

// unpackCost returns the cycles taken to unpack a pointer stored with a layout.
func (l Layout) unpackCost() uint64 {
	switch l {
	case ShortSpan, ScaledPtr32, ScaledPtr64:
		return 2
	}
	return 0
}

// PerfInfo is the cost of an operator on one vector.
type PerfInfo struct {
	// CyclesPerVector is the number of cycles to process one vector,
	// or one element if the operator is not vectorized.
	CyclesPerVector uint64
	// Vectorize is true if the operator processes a full vector at once.
	Vectorize bool
}

// ErrUnsupported is returned for an operator or a type without cost model.
var ErrUnsupported = errors.New("no cycle estimate")

func unsupported(format string, args ...any) error {
	return errors.Wrapf(ErrUnsupported, format, args...)
}

func ceilDiv[T constraints.Integer](x, y T) T {
	return (x + y - 1) / y
}

func u64[T constraints.Integer](x T) uint64 {
	if x < 0 {
		return 0
	}
	return uint64(x)
}

// supervisorOverhead is the cost shared by all supervisor vertices.
func supervisorOverhead(l Layout) uint64 {
	cycles := uint64(198)
	if l == ScaledPtr64 {
		cycles += 2
	}
	return cycles
}

// basicOpLoopCycles is the cost of a loop processing numElems elements
// vectorSize elements at a time.
func basicOpLoopCycles(numElems, vectorSize int, cyclesPerVector uint64) uint64 {
	vectorSize = max(vectorSize, 1)
	return cyclesPerVector * u64(numElems+vectorSize-1) / u64(vectorSize)
}

func perWorker(n, numWorkers int) int {
	return ceilDiv(n, max(numWorkers, 1))
}

func isHalfOrFloat(t elem.Type) bool {
	return t == elem.Half || t == elem.Float
}

// FusedCodelet returns the cost of a vertex of a fused codelet processing
// numElements elements with numFusedOps operators over numOperands operands.
func FusedCodelet(numElements, vectorWidth, numFusedOps, numOperands int) uint64 {
	vectorWidth = max(vectorWidth, 1)
	perOperand := u64(numElements/vectorWidth*numFusedOps) + u64(numElements%vectorWidth*numFusedOps)
	return 13 + u64(numOperands)*perOperand
}
