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

package synth

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gx-org/popfuse/expr"
)

// Functions called by unary operators.
var unaryFuncs = map[expr.UnaryOpType]string{
	expr.OpAsin:              "NAMESPACE::asin",
	expr.OpCbrt:              "NAMESPACE::cbrt",
	expr.OpCeil:              "NAMESPACE::ceil",
	expr.OpCos:               "NAMESPACE::cos",
	expr.OpCountLeadingZeros: "__builtin_clz",
	expr.OpExp:               "NAMESPACE::exp",
	expr.OpExpMinusOne:       "NAMESPACE::expm1",
	expr.OpFloor:             "NAMESPACE::floor",
	expr.OpIsFinite:          "NAMESPACE::isfinite",
	expr.OpIsInf:             "NAMESPACE::isinf",
	expr.OpIsNaN:             "NAMESPACE::isnan",
	expr.OpLog:               "NAMESPACE::log",
	expr.OpLogOnePlus:        "NAMESPACE::log1p",
	expr.OpPopcount:          "__builtin_popcount",
	expr.OpSin:               "NAMESPACE::sin",
	expr.OpTan:               "NAMESPACE::tan",
	expr.OpTanh:              "NAMESPACE::tanh",
	expr.OpRound:             "NAMESPACE::round",
	expr.OpSqrt:              "NAMESPACE::sqrt",
	expr.OpSigmoid:           "internal_sigmoid",
	expr.OpRsqrt:             "internal_rsqrt",
}

func unaryCode(op expr.UnaryOpType, x Value) (string, error) {
	switch op {
	case expr.OpAbs:
		if x.Type.IsFloat() {
			return fmt.Sprintf("NAMESPACE::fabs(%s)", x.Name), nil
		}
		return fmt.Sprintf("abs(%s)", x.Name), nil
	case expr.OpInverse:
		return fmt.Sprintf("(1 / %s)", x.Name), nil
	case expr.OpNegate:
		return "-" + x.Name, nil
	case expr.OpBitwiseNot:
		return "~" + x.Name, nil
	case expr.OpLogicalNot:
		return "!" + x.Name, nil
	case expr.OpSquare:
		return fmt.Sprintf("(%s * %s)", x.Name, x.Name), nil
	case expr.OpSignum:
		return fmt.Sprintf("(%s)((0 < %s) - (%s < 0))", x.Type.Alias(), x.Name, x.Name), nil
	case expr.OpRelu:
		return fmt.Sprintf("(%s > 0 ? %s : (%s)0)", x.Name, x.Name, x.Type.Alias()), nil
	}
	fn, ok := unaryFuncs[op]
	if !ok {
		return "", errors.Errorf("unary operator %s not supported in a fused codelet", op)
	}
	return fmt.Sprintf("%s(%s)", fn, x.Name), nil
}

// Infix operators.
var binaryInfix = map[expr.BinaryOpType]string{
	expr.OpAdd:                  "+",
	expr.OpSubtract:             "-",
	expr.OpMultiply:             "*",
	expr.OpDivide:               "/",
	expr.OpEqual:                "==",
	expr.OpGreaterThanEqual:     ">=",
	expr.OpGreaterThan:          ">",
	expr.OpLessThanEqual:        "<=",
	expr.OpLessThan:             "<",
	expr.OpNotEqual:             "!=",
	expr.OpLogicalAnd:           "&&",
	expr.OpLogicalOr:            "||",
	expr.OpBitwiseAnd:           "&",
	expr.OpBitwiseOr:            "|",
	expr.OpBitwiseXor:           "^",
	expr.OpShiftLeft:            "<<",
	expr.OpShiftRightSignExtend: ">>",
}

func binaryCode(op expr.BinaryOpType, x, y Value) (string, error) {
	switch op {
	case expr.OpAtan2:
		return fmt.Sprintf("NAMESPACE::atan2(%s, %s)", x.Name, y.Name), nil
	case expr.OpPower:
		return fmt.Sprintf("NAMESPACE::pow(%s, %s)", x.Name, y.Name), nil
	case expr.OpRemainder:
		return fmt.Sprintf("internal_remainder(%s, %s)", x.Name, y.Name), nil
	case expr.OpMaximum:
		if x.Type.IsFloat() {
			return fmt.Sprintf("NAMESPACE::fmax(%s, %s)", x.Name, y.Name), nil
		}
		return fmt.Sprintf("max(%s, %s)", x.Name, y.Name), nil
	case expr.OpMinimum:
		if x.Type.IsFloat() {
			return fmt.Sprintf("NAMESPACE::fmin(%s, %s)", x.Name, y.Name), nil
		}
		return fmt.Sprintf("min(%s, %s)", x.Name, y.Name), nil
	case expr.OpBitwiseXnor:
		return fmt.Sprintf("~(%s ^ %s)", x.Name, y.Name), nil
	case expr.OpShiftRight:
		if x.Type.IsSigned() {
			return fmt.Sprintf("(%s)((unsigned)%s >> %s)", x.Type.Alias(), x.Name, y.Name), nil
		}
		return fmt.Sprintf("%s >> %s", x.Name, y.Name), nil
	}
	infix, ok := binaryInfix[op]
	if !ok {
		return "", errors.Errorf("binary operator %s not supported in a fused codelet", op)
	}
	return fmt.Sprintf("%s %s %s", x.Name, infix, y.Name), nil
}
