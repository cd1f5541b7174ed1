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

// Unary operator constructors.

func Abs(x Expr) *UnaryOp { return Unary(OpAbs, x) }
func Asin(x Expr) *UnaryOp { return Unary(OpAsin, x) }
func BitwiseNot(x Expr) *UnaryOp { return Unary(OpBitwiseNot, x) }
func Cbrt(x Expr) *UnaryOp { return Unary(OpCbrt, x) }
func Ceil(x Expr) *UnaryOp { return Unary(OpCeil, x) }
func Cos(x Expr) *UnaryOp { return Unary(OpCos, x) }
func Clz(x Expr) *UnaryOp { return Unary(OpCountLeadingZeros, x) }
func Exp(x Expr) *UnaryOp { return Unary(OpExp, x) }
func Expm1(x Expr) *UnaryOp { return Unary(OpExpMinusOne, x) }
func Floor(x Expr) *UnaryOp { return Unary(OpFloor, x) }
func Inv(x Expr) *UnaryOp { return Unary(OpInverse, x) }
func IsFinite(x Expr) *UnaryOp { return Unary(OpIsFinite, x) }
func IsInf(x Expr) *UnaryOp { return Unary(OpIsInf, x) }
func IsNaN(x Expr) *UnaryOp { return Unary(OpIsNaN, x) }
func Log(x Expr) *UnaryOp { return Unary(OpLog, x) }
func Log1p(x Expr) *UnaryOp { return Unary(OpLogOnePlus, x) }
func Not(x Expr) *UnaryOp { return Unary(OpLogicalNot, x) }
func Neg(x Expr) *UnaryOp { return Unary(OpNegate, x) }
func Popcount(x Expr) *UnaryOp { return Unary(OpPopcount, x) }
func Signum(x Expr) *UnaryOp { return Unary(OpSignum, x) }
func Sin(x Expr) *UnaryOp { return Unary(OpSin, x) }
func Tan(x Expr) *UnaryOp { return Unary(OpTan, x) }
func Tanh(x Expr) *UnaryOp { return Unary(OpTanh, x) }
func Round(x Expr) *UnaryOp { return Unary(OpRound, x) }
func Sqrt(x Expr) *UnaryOp { return Unary(OpSqrt, x) }
func Square(x Expr) *UnaryOp { return Unary(OpSquare, x) }
func Sigmoid(x Expr) *UnaryOp { return Unary(OpSigmoid, x) }
func Rsqrt(x Expr) *UnaryOp { return Unary(OpRsqrt, x) }
func Relu(x Expr) *UnaryOp { return Unary(OpRelu, x) }

// Binary operator constructors.

func Add(x, y Expr) *BinaryOp { return Binary(OpAdd, x, y) }
func Atan2(x, y Expr) *BinaryOp { return Binary(OpAtan2, x, y) }
func BitwiseAnd(x, y Expr) *BinaryOp { return Binary(OpBitwiseAnd, x, y) }
func BitwiseOr(x, y Expr) *BinaryOp { return Binary(OpBitwiseOr, x, y) }
func BitwiseXor(x, y Expr) *BinaryOp { return Binary(OpBitwiseXor, x, y) }
func BitwiseXnor(x, y Expr) *BinaryOp { return Binary(OpBitwiseXnor, x, y) }
func Div(x, y Expr) *BinaryOp { return Binary(OpDivide, x, y) }
func Equal(x, y Expr) *BinaryOp { return Binary(OpEqual, x, y) }
func Gte(x, y Expr) *BinaryOp { return Binary(OpGreaterThanEqual, x, y) }
func Gt(x, y Expr) *BinaryOp { return Binary(OpGreaterThan, x, y) }
func InvStdDevToVariance(x, y Expr) *BinaryOp { return Binary(OpInvStdDevToVariance, x, y) }
func Lte(x, y Expr) *BinaryOp { return Binary(OpLessThanEqual, x, y) }
func And(x, y Expr) *BinaryOp { return Binary(OpLogicalAnd, x, y) }
func Or(x, y Expr) *BinaryOp { return Binary(OpLogicalOr, x, y) }
func Lt(x, y Expr) *BinaryOp { return Binary(OpLessThan, x, y) }
func Max(x, y Expr) *BinaryOp { return Binary(OpMaximum, x, y) }
func Min(x, y Expr) *BinaryOp { return Binary(OpMinimum, x, y) }
func Mul(x, y Expr) *BinaryOp { return Binary(OpMultiply, x, y) }
func Neq(x, y Expr) *BinaryOp { return Binary(OpNotEqual, x, y) }
func Pow(x, y Expr) *BinaryOp { return Binary(OpPower, x, y) }
func Rem(x, y Expr) *BinaryOp { return Binary(OpRemainder, x, y) }
func ShiftLeft(x, y Expr) *BinaryOp { return Binary(OpShiftLeft, x, y) }
func ShiftRight(x, y Expr) *BinaryOp { return Binary(OpShiftRight, x, y) }
func ShiftRightSignExtend(x, y Expr) *BinaryOp { return Binary(OpShiftRightSignExtend, x, y) }
func Sub(x, y Expr) *BinaryOp { return Binary(OpSubtract, x, y) }
func VarianceToInvStdDev(x, y Expr) *BinaryOp { return Binary(OpVarianceToInvStdDev, x, y) }

// Select returns whenTrue where cond is true and whenFalse elsewhere.
func Select(whenTrue, whenFalse, cond Expr) *TernaryOp {
	return Ternary(OpSelect, whenTrue, whenFalse, cond)
}

// Clamp returns x bounded by [low, high].
func Clamp(x, low, high Expr) *TernaryOp {
	return Ternary(OpClamp, x, low, high)
}
