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

type (
	unaryKey struct {
		op expr.UnaryOpType
		t  elem.Type
	}

	binaryKey struct {
		op expr.BinaryOpType
		t  elem.Type
	}
)

// Operators implemented with instructions on float and half are bundled in
// pairs. Operators returning bool store their result one byte at a time.
var unaryPerf = map[unaryKey]PerfInfo{
	{expr.OpAbs, elem.Float}:                     {1, false},
	{expr.OpAbs, elem.Half}:                      {1, false},
	{expr.OpAbs, elem.Int}:                       {2, false},
	{expr.OpAsin, elem.Half}:                     {102, false},
	{expr.OpAsin, elem.Float}:                    {102, false},
	{expr.OpBitwiseNot, elem.Int}:                {1, true},
	{expr.OpBitwiseNot, elem.UnsignedInt}:        {1, true},
	{expr.OpCeil, elem.Float}:                    {2, true},
	{expr.OpCeil, elem.Half}:                     {2, true},
	{expr.OpCos, elem.Float}:                     {2300, false},
	{expr.OpCos, elem.Half}:                      {2300, false},
	{expr.OpInverse, elem.Half}:                  {15, true},
	{expr.OpInverse, elem.Float}:                 {5, true},
	{expr.OpCountLeadingZeros, elem.Int}:         {1, false},
	{expr.OpCountLeadingZeros, elem.UnsignedInt}: {1, false},
	{expr.OpExp, elem.Float}:                     {2, true},
	{expr.OpExp, elem.Half}:                      {2, true},
	{expr.OpExpMinusOne, elem.Float}:             {4, false},
	{expr.OpExpMinusOne, elem.Half}:              {5, true},
	{expr.OpFloor, elem.Float}:                   {2, true},
	{expr.OpFloor, elem.Half}:                    {2, true},
	{expr.OpIsFinite, elem.Float}:                {5, true},
	{expr.OpIsFinite, elem.Half}:                 {5, true},
	{expr.OpIsInf, elem.Float}:                   {3, true},
	{expr.OpIsInf, elem.Half}:                    {5, true},
	{expr.OpIsNaN, elem.Float}:                   {3, true},
	{expr.OpIsNaN, elem.Half}:                    {3, true},
	{expr.OpLog, elem.Float}:                     {60, true},
	{expr.OpLog, elem.Half}:                      {15, true},
	{expr.OpLogOnePlus, elem.Float}:              {180, true},
	{expr.OpLogOnePlus, elem.Half}:               {180, true},
	{expr.OpLogicalNot, elem.Bool}:               {17, false},
	{expr.OpNegate, elem.Float}:                  {1, true},
	{expr.OpNegate, elem.Half}:                   {1, true},
	{expr.OpNegate, elem.Int}:                    {2, false},
	{expr.OpPopcount, elem.Int}:                  {1, false},
	{expr.OpPopcount, elem.UnsignedInt}:          {1, false},
	{expr.OpRound, elem.Float}:                   {2, true},
	{expr.OpRound, elem.Half}:                    {2, true},
	{expr.OpSignum, elem.Float}:                  {5, true},
	{expr.OpSignum, elem.Half}:                   {5, true},
	{expr.OpSignum, elem.Int}:                    {5, false},
	{expr.OpSin, elem.Float}:                     {2300, false},
	{expr.OpSin, elem.Half}:                      {2300, false},
	{expr.OpSqrt, elem.Float}:                    {23, false},
	{expr.OpSqrt, elem.Half}:                     {23, false},
	{expr.OpSqrt, elem.Int}:                      {110, false},
	{expr.OpSquare, elem.Float}:                  {1, true},
	{expr.OpSquare, elem.Half}:                   {1, true},
	{expr.OpSquare, elem.Int}:                    {1, true},
	{expr.OpSquare, elem.UnsignedInt}:            {1, true},
	{expr.OpTan, elem.Float}:                     {3900, true},
	{expr.OpTan, elem.Half}:                      {3900, true},
	{expr.OpTanh, elem.Float}:                    {1, true},
	{expr.OpTanh, elem.Half}:                     {2, true}, // vectorized by 2 only
	{expr.OpSigmoid, elem.Float}:                 {1, false},
	{expr.OpSigmoid, elem.Half}:                  {2, true},
	{expr.OpRsqrt, elem.Float}:                   {1, false},
	{expr.OpRsqrt, elem.Half}:                    {3, true},
}

// In-place unary operators differ from unaryPerf on a few entries only.
var unaryInPlacePerf = func() map[unaryKey]PerfInfo {
	perf := make(map[unaryKey]PerfInfo, len(unaryPerf))
	for k, v := range unaryPerf {
		perf[k] = v
	}
	for _, k := range []unaryKey{
		{expr.OpAsin, elem.Float},
		{expr.OpAsin, elem.Half},
		{expr.OpIsFinite, elem.Float},
		{expr.OpIsFinite, elem.Half},
		{expr.OpIsInf, elem.Float},
		{expr.OpIsInf, elem.Half},
		{expr.OpIsNaN, elem.Float},
		{expr.OpIsNaN, elem.Half},
	} {
		delete(perf, k)
	}
	perf[unaryKey{expr.OpAbs, elem.Float}] = PerfInfo{1, true}
	perf[unaryKey{expr.OpAbs, elem.Half}] = PerfInfo{1, true}
	perf[unaryKey{expr.OpLogicalNot, elem.Bool}] = PerfInfo{17, true}
	perf[unaryKey{expr.OpTan, elem.Float}] = PerfInfo{3900, false}
	perf[unaryKey{expr.OpTanh, elem.Float}] = PerfInfo{1, false}
	return perf
}()

var binaryPerf = map[binaryKey]PerfInfo{
	{expr.OpAdd, elem.Float}:                {1, true},
	{expr.OpAdd, elem.Half}:                 {1, true},
	{expr.OpAdd, elem.Int}:                  {2, false},
	{expr.OpAdd, elem.UnsignedInt}:          {2, false},
	{expr.OpAtan2, elem.Float}:              {120, false},
	{expr.OpAtan2, elem.Half}:               {120, false},
	{expr.OpBitwiseAnd, elem.Int}:           {3, false},
	{expr.OpBitwiseAnd, elem.UnsignedInt}:   {3, false},
	{expr.OpBitwiseOr, elem.Int}:            {3, false},
	{expr.OpBitwiseOr, elem.UnsignedInt}:    {3, false},
	{expr.OpBitwiseXor, elem.Int}:           {3, false},
	{expr.OpBitwiseXor, elem.UnsignedInt}:   {3, false},
	{expr.OpBitwiseXnor, elem.Int}:          {3, false},
	{expr.OpBitwiseXnor, elem.UnsignedInt}:  {3, false},
	{expr.OpDivide, elem.Float}:             {10, false},
	{expr.OpDivide, elem.Half}:              {10, false},
	{expr.OpDivide, elem.Int}:               {40, false},
	{expr.OpDivide, elem.UnsignedInt}:       {40, false},
	{expr.OpLogicalAnd, elem.Bool}:          {20, false},
	{expr.OpLogicalOr, elem.Bool}:           {20, false},
	{expr.OpMaximum, elem.Float}:            {1, true},
	{expr.OpMaximum, elem.Half}:             {1, true},
	{expr.OpMaximum, elem.Int}:              {2, false},
	{expr.OpMaximum, elem.UnsignedInt}:      {2, false},
	{expr.OpMinimum, elem.Float}:            {1, true},
	{expr.OpMinimum, elem.Half}:             {1, true},
	{expr.OpMinimum, elem.Int}:              {2, false},
	{expr.OpMinimum, elem.UnsignedInt}:      {2, false},
	{expr.OpMultiply, elem.Float}:           {1, true},
	{expr.OpMultiply, elem.Half}:            {1, true},
	{expr.OpMultiply, elem.Int}:             {2, false},
	{expr.OpMultiply, elem.UnsignedInt}:     {2, false},
	{expr.OpPower, elem.Float}:              {200, false},
	{expr.OpPower, elem.Half}:               {200, false},
	{expr.OpRemainder, elem.Float}:          {10, false},
	{expr.OpRemainder, elem.Half}:           {10, false},
	{expr.OpRemainder, elem.Int}:            {40, false},
	{expr.OpRemainder, elem.UnsignedInt}:    {40, false},
	{expr.OpShiftLeft, elem.Int}:            {3, false},
	{expr.OpShiftLeft, elem.UnsignedInt}:    {3, false},
	{expr.OpShiftRight, elem.Int}:           {3, false},
	{expr.OpShiftRight, elem.UnsignedInt}:   {3, false},
	{expr.OpShiftRightSignExtend, elem.Int}: {4, false},
	{expr.OpSubtract, elem.Float}:           {1, true},
	{expr.OpSubtract, elem.Half}:            {1, true},
	{expr.OpSubtract, elem.Int}:             {2, false},
	{expr.OpSubtract, elem.UnsignedInt}:     {2, false},
}

// Comparisons are dominated by the byte stores of their result.
var comparisonPerf = func() map[binaryKey]PerfInfo {
	perf := make(map[binaryKey]PerfInfo)
	for _, op := range []expr.BinaryOpType{
		expr.OpEqual,
		expr.OpGreaterThan,
		expr.OpGreaterThanEqual,
		expr.OpLessThan,
		expr.OpLessThanEqual,
		expr.OpNotEqual,
	} {
		for _, t := range []elem.Type{elem.Float, elem.Half, elem.Int, elem.UnsignedInt, elem.Bool} {
			perf[binaryKey{op, t}] = PerfInfo{17, false}
		}
	}
	return perf
}()

func lookupUnary(op expr.UnaryOpType, t elem.Type, inPlace bool) (PerfInfo, error) {
	table := unaryPerf
	if inPlace {
		table = unaryInPlacePerf
	}
	info, ok := table[unaryKey{op, t}]
	if !ok {
		return PerfInfo{}, unsupported("unary operator %s on %s (in place: %v)", op, t, inPlace)
	}
	return info, nil
}

func lookupBinary(op expr.BinaryOpType, t elem.Type, inPlace bool) (PerfInfo, error) {
	if info, ok := comparisonPerf[binaryKey{op, t}]; ok {
		if inPlace && t != elem.Bool {
			return PerfInfo{}, unsupported("comparison %s in place on %s", op, t)
		}
		return info, nil
	}
	info, ok := binaryPerf[binaryKey{op, t}]
	if !ok {
		return PerfInfo{}, unsupported("binary operator %s on %s (in place: %v)", op, t, inPlace)
	}
	return info, nil
}

// UnaryPerf returns the cost of a unary operator on one vector.
func UnaryPerf(op expr.UnaryOpType, t elem.Type, inPlace bool) (PerfInfo, error) {
	return lookupUnary(op, t, inPlace)
}

// BinaryPerf returns the cost of a binary operator on one vector.
func BinaryPerf(op expr.BinaryOpType, t elem.Type, inPlace bool) (PerfInfo, error) {
	return lookupBinary(op, t, inPlace)
}

func hasExternalCodelet(op expr.BinaryOpType, t elem.Type) bool {
	if !isHalfOrFloat(t) {
		return false
	}
	return op == expr.OpAdd || op == expr.OpSubtract || op == expr.OpMultiply
}

func innerLoopCycles(tgt target.Target, t elem.Type, info PerfInfo, numElems int, overheadPerLoop uint64) uint64 {
	vectorWidth := 1
	if info.Vectorize {
		vectorWidth = tgt.VectorWidth(t)
	}
	return basicOpLoopCycles(numElems, vectorWidth, info.CyclesPerVector+overheadPerLoop)
}

// UnaryOp2D returns the cost of a unary operator over a 2D field.
func UnaryOp2D(tgt target.Target, op expr.UnaryOpType, t elem.Type, sizes []int) (uint64, error) {
	return unaryOp2D(tgt, op, t, sizes, false)
}

// UnaryOp2DInPlace returns the cost of a unary operator over a 2D field
// written in place.
func UnaryOp2DInPlace(tgt target.Target, op expr.UnaryOpType, t elem.Type, sizes []int) (uint64, error) {
	return unaryOp2D(tgt, op, t, sizes, true)
}

func unaryOp2D(tgt target.Target, op expr.UnaryOpType, t elem.Type, sizes []int, inPlace bool) (uint64, error) {
	info, err := lookupUnary(op, t, inPlace)
	if err != nil {
		return 0, err
	}
	cycles := uint64(20)
	for _, n := range sizes {
		cycles += innerLoopCycles(tgt, t, info, n, 4)
	}
	return cycles, nil
}

// UnaryOp1DSupervisor returns the cost of a unary operator over n elements
// shared between the workers of a tile.
func UnaryOp1DSupervisor(tgt target.Target, op expr.UnaryOpType, t elem.Type, n int) (uint64, error) {
	return unaryOp1DSupervisor(tgt, op, t, n, false)
}

// UnaryOp1DInPlaceSupervisor returns the cost of a unary operator over n
// elements written in place and shared between the workers of a tile.
func UnaryOp1DInPlaceSupervisor(tgt target.Target, op expr.UnaryOpType, t elem.Type, n int) (uint64, error) {
	return unaryOp1DSupervisor(tgt, op, t, n, true)
}

func unaryOp1DSupervisor(tgt target.Target, op expr.UnaryOpType, t elem.Type, n int, inPlace bool) (uint64, error) {
	info, err := lookupUnary(op, t, inPlace)
	if err != nil {
		return 0, err
	}
	workerCycles := 20 + innerLoopCycles(tgt, t, info, perWorker(n, tgt.NumWorkers), 4)
	return workerCycles*u64(tgt.NumWorkers) + 9 + supervisorOverhead(NotAVector), nil
}

func binaryLoopOverhead(op expr.BinaryOpType, t elem.Type) uint64 {
	if hasExternalCodelet(op, t) {
		return 2
	}
	return 5
}

// BinaryOp2D returns the cost of a binary operator over 2D fields.
func BinaryOp2D(tgt target.Target, op expr.BinaryOpType, t elem.Type, sizes []int) (uint64, error) {
	return binaryOp2D(tgt, op, t, sizes, 5, false)
}

// BinaryOp2DInPlace returns the cost of a binary operator over 2D fields,
// the result being written into the first operand.
func BinaryOp2DInPlace(tgt target.Target, op expr.BinaryOpType, t elem.Type, sizes []int) (uint64, error) {
	return binaryOp2D(tgt, op, t, sizes, 20, true)
}

func binaryOp2D(tgt target.Target, op expr.BinaryOpType, t elem.Type, sizes []int, cycles uint64, inPlace bool) (uint64, error) {
	info, err := lookupBinary(op, t, inPlace)
	if err != nil {
		return 0, err
	}
	for _, n := range sizes {
		cycles += innerLoopCycles(tgt, t, info, n, binaryLoopOverhead(op, t))
	}
	return cycles, nil
}

// BinaryOp1DSupervisor returns the cost of a binary operator over n elements
// shared between the workers of a tile.
func BinaryOp1DSupervisor(tgt target.Target, op expr.BinaryOpType, t elem.Type, n int) (uint64, error) {
	return binaryOp1DSupervisor(tgt, op, t, n, 22, false)
}

// BinaryOp1DInPlaceSupervisor returns the cost of a binary operator over n
// elements written in place and shared between the workers of a tile.
func BinaryOp1DInPlaceSupervisor(tgt target.Target, op expr.BinaryOpType, t elem.Type, n int) (uint64, error) {
	return binaryOp1DSupervisor(tgt, op, t, n, 13, true)
}

func binaryOp1DSupervisor(tgt target.Target, op expr.BinaryOpType, t elem.Type, n int, workerCycles uint64, inPlace bool) (uint64, error) {
	info, err := lookupBinary(op, t, inPlace)
	if err != nil {
		return 0, err
	}
	workerCycles += innerLoopCycles(tgt, t, info, perWorker(n, tgt.NumWorkers), binaryLoopOverhead(op, t))
	return u64(tgt.NumWorkers)*workerCycles + supervisorOverhead(NotAVector), nil
}
