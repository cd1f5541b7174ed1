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

package expr

import "github.com/gx-org/popfuse/elem"

type (
	// UnaryOpType is the kind of a unary operator.
	UnaryOpType int

	// BinaryOpType is the kind of a binary operator.
	BinaryOpType int

	// TernaryOpType is the kind of a ternary operator.
	TernaryOpType int

	opInfo struct {
		// name is the name of the operator in codelet names.
		name string
		// fn is the name of the constructor in textual expressions.
		fn string
	}
)

// Unary operators.
const (
	OpAbs UnaryOpType = iota
	OpAsin
	OpBitwiseNot
	OpCbrt
	OpCeil
	OpCos
	OpCountLeadingZeros
	OpExp
	OpExpMinusOne
	OpFloor
	OpInverse
	OpIsFinite
	OpIsInf
	OpIsNaN
	OpLog
	OpLogOnePlus
	OpLogicalNot
	OpNegate
	OpPopcount
	OpSignum
	OpSin
	OpTan
	OpTanh
	OpRound
	OpSqrt
	OpSquare
	OpSigmoid
	OpRsqrt
	OpRelu
)

// Binary operators.
const (
	OpAdd BinaryOpType = iota
	OpAtan2
	OpBitwiseAnd
	OpBitwiseOr
	OpBitwiseXor
	OpBitwiseXnor
	OpDivide
	OpEqual
	OpGreaterThanEqual
	OpGreaterThan
	OpInvStdDevToVariance
	OpLessThanEqual
	OpLogicalAnd
	OpLogicalOr
	OpLessThan
	OpMaximum
	OpMinimum
	OpMultiply
	OpNotEqual
	OpPower
	OpRemainder
	OpShiftLeft
	OpShiftRight
	OpShiftRightSignExtend
	OpSubtract
	OpVarianceToInvStdDev
)

// Ternary operators.
const (
	OpClamp TernaryOpType = iota
	OpSelect
)

var unaryOps = []opInfo{
	OpAbs:               {"ABS", "Abs"},
	OpAsin:              {"ASIN", "Asin"},
	OpBitwiseNot:        {"B_NOT", "BitwiseNot"},
	OpCbrt:              {"CBRT", "Cbrt"},
	OpCeil:              {"CEIL", "Ceil"},
	OpCos:               {"COS", "Cos"},
	OpCountLeadingZeros: {"COUNT_LEADING_ZEROS", "Clz"},
	OpExp:               {"EXP", "Exp"},
	OpExpMinusOne:       {"EXP_M_1", "Expm1"},
	OpFloor:             {"FLOOR", "Floor"},
	OpInverse:           {"INV", "Inv"},
	OpIsFinite:          {"IS_FINITE", "IsFinite"},
	OpIsInf:             {"IS_INF", "IsInf"},
	OpIsNaN:             {"IS_NAN", "IsNaN"},
	OpLog:               {"LOG", "Log"},
	OpLogOnePlus:        {"LOG_ONE_PLUS", "Log1p"},
	OpLogicalNot:        {"NOT", "Not"},
	OpNegate:            {"NEG", "Neg"},
	OpPopcount:          {"POPCOUNT", "Popcount"},
	OpSignum:            {"SIGNUM", "Signum"},
	OpSin:               {"SIN", "Sin"},
	OpTan:               {"TAN", "Tan"},
	OpTanh:              {"TANH", "Tanh"},
	OpRound:             {"ROUND", "Round"},
	OpSqrt:              {"SQRT", "Sqrt"},
	OpSquare:            {"SQU", "Square"},
	OpSigmoid:           {"SIGMOID", "Sigmoid"},
	OpRsqrt:             {"RSQRT", "Rsqrt"},
	OpRelu:              {"RELU", "Relu"},
}

var binaryOps = []opInfo{
	OpAdd:                  {"ADD", "Add"},
	OpAtan2:                {"ATAN2", "Atan2"},
	OpBitwiseAnd:           {"B_AND", "BitwiseAnd"},
	OpBitwiseOr:            {"B_OR", "BitwiseOr"},
	OpBitwiseXor:           {"B_XOR", "BitwiseXor"},
	OpBitwiseXnor:          {"B_XNOR", "BitwiseXnor"},
	OpDivide:               {"DIV", "Div"},
	OpEqual:                {"EQU", "Equal"},
	OpGreaterThanEqual:     {"G_T_EQ", "Gte"},
	OpGreaterThan:          {"G_T", "Gt"},
	OpInvStdDevToVariance:  {"INV_STD_DEV_TO_VARIANCE", "InvStdDevToVariance"},
	OpLessThanEqual:        {"L_T_EQ", "Lte"},
	OpLogicalAnd:           {"AND", "And"},
	OpLogicalOr:            {"OR", "Or"},
	OpLessThan:             {"L_T", "Lt"},
	OpMaximum:              {"MAX", "Max"},
	OpMinimum:              {"MIN", "Min"},
	OpMultiply:             {"MUL", "Mul"},
	OpNotEqual:             {"N_EQ", "Neq"},
	OpPower:                {"POW", "Pow"},
	OpRemainder:            {"REM", "Rem"},
	OpShiftLeft:            {"SHIFT_LEFT", "ShiftLeft"},
	OpShiftRight:           {"SHIFT_RIGHT", "ShiftRight"},
	OpShiftRightSignExtend: {"SHIFT_RIGHT_SIGN_EXTEND", "ShiftRightSignExtend"},
	OpSubtract:             {"SUB", "Sub"},
	OpVarianceToInvStdDev:  {"VARIANCE_TO_INV_STD_DEV", "VarianceToInvStdDev"},
}

var ternaryOps = []opInfo{
	OpClamp:  {"CLAMP", "Clamp"},
	OpSelect: {"SELECT", "Select"},
}

func lookup(ops []opInfo, i int) opInfo {
	if i < 0 || i >= len(ops) {
		return opInfo{name: "INVALID", fn: "Invalid"}
	}
	return ops[i]
}

// String returns the name of the operator used in codelet names.
func (op UnaryOpType) String() string { return lookup(unaryOps, int(op)).name }

// FuncName returns the name of the constructor in textual expressions.
func (op UnaryOpType) FuncName() string { return lookup(unaryOps, int(op)).fn }

// String returns the name of the operator used in codelet names.
func (op BinaryOpType) String() string { return lookup(binaryOps, int(op)).name }

// FuncName returns the name of the constructor in textual expressions.
func (op BinaryOpType) FuncName() string { return lookup(binaryOps, int(op)).fn }

// String returns the name of the operator used in codelet names.
func (op TernaryOpType) String() string { return lookup(ternaryOps, int(op)).name }

// FuncName returns the name of the constructor in textual expressions.
func (op TernaryOpType) FuncName() string { return lookup(ternaryOps, int(op)).fn }

// UnaryOps returns all the unary operators.
func UnaryOps() []UnaryOpType {
	ops := make([]UnaryOpType, len(unaryOps))
	for i := range ops {
		ops[i] = UnaryOpType(i)
	}
	return ops
}

// BinaryOps returns all the binary operators.
func BinaryOps() []BinaryOpType {
	ops := make([]BinaryOpType, len(binaryOps))
	for i := range ops {
		ops[i] = BinaryOpType(i)
	}
	return ops
}

// TernaryOps returns all the ternary operators.
func TernaryOps() []TernaryOpType {
	return []TernaryOpType{OpClamp, OpSelect}
}

// ReturnsBool returns true if the operator always produces a boolean.
func (op UnaryOpType) ReturnsBool() bool {
	switch op {
	case OpIsFinite, OpIsInf, OpIsNaN, OpLogicalNot:
		return true
	}
	return false
}

// ReturnsBool returns true if the operator always produces a boolean.
func (op BinaryOpType) ReturnsBool() bool {
	switch op {
	case OpEqual, OpGreaterThan, OpGreaterThanEqual, OpLessThan, OpLessThanEqual, OpNotEqual, OpLogicalAnd, OpLogicalOr:
		return true
	}
	return false
}

// UnaryReturnType returns the type of a unary operator applied to an operand of type t.
func UnaryReturnType(op UnaryOpType, t elem.Type) elem.Type {
	if op.ReturnsBool() {
		return elem.Bool
	}
	return t
}

// BinaryReturnType returns the type of a binary operator applied to operands of type t.
func BinaryReturnType(op BinaryOpType, t elem.Type) elem.Type {
	if op.ReturnsBool() {
		return elem.Bool
	}
	return t
}

// Vectorizable returns true if the unary operator has a vector implementation.
func (op UnaryOpType) Vectorizable() bool {
	switch op {
	case OpAbs, OpCeil, OpExp, OpFloor, OpInverse, OpLog, OpNegate, OpRsqrt, OpSigmoid, OpSqrt, OpSquare, OpTanh:
		return true
	}
	return false
}

// Vectorizable returns true if the binary operator has a vector implementation.
func (op BinaryOpType) Vectorizable() bool {
	switch op {
	case OpAdd, OpAtan2, OpDivide, OpMaximum, OpMinimum, OpMultiply, OpPower, OpRemainder, OpSubtract:
		return true
	}
	return false
}
