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

// Package expr defines element-wise expressions over operands.
//
// An expression is a tree of nodes. Leaves are constants and placeholders
// referring to an operand by its 1-based index. Internal nodes are casts and
// unary, binary, or ternary operators. Nodes are immutable once built:
// analysis and code generation read the same tree without copying it.
package expr

import (
	"fmt"
	"strings"

	"github.com/gx-org/popfuse/elem"
)

type (
	// Expr is a node of an expression tree.
	// The set of nodes is closed: Const, PlaceHolder, Cast, UnaryOp, BinaryOp, TernaryOp.
	Expr interface {
		fmt.Stringer
		node()
	}

	// PlaceHolder refers to an operand.
	PlaceHolder struct {
		// Index of the operand, starting at 1.
		Index int
	}

	// Cast converts the value of a sub-expression to another type.
	Cast struct {
		X  Expr
		To elem.Type
	}

	// UnaryOp applies an operator to one sub-expression.
	UnaryOp struct {
		Op UnaryOpType
		X  Expr
	}

	// BinaryOp applies an operator to two sub-expressions.
	BinaryOp struct {
		Op   BinaryOpType
		X, Y Expr
	}

	// TernaryOp applies an operator to three sub-expressions.
	// For Select, the arguments are the value when true, the value when false
	// and the condition. For Clamp, the arguments are the value, the lower
	// bound and the upper bound.
	TernaryOp struct {
		Op      TernaryOpType
		X, Y, Z Expr
	}
)

func (*Const) node()       {}
func (*PlaceHolder) node() {}
func (*Cast) node()        {}
func (*UnaryOp) node()     {}
func (*BinaryOp) node()    {}
func (*TernaryOp) node()   {}

// Placeholders referring to the first operands.
var (
	P1 = P(1)
	P2 = P(2)
	P3 = P(3)
	P4 = P(4)
	P5 = P(5)
	P6 = P(6)
)

// P returns a placeholder for the operand at a given index (starting at 1).
func P(i int) *PlaceHolder {
	return &PlaceHolder{Index: i}
}

func (p *PlaceHolder) String() string {
	return fmt.Sprintf("_%d", p.Index)
}

// CastTo returns a cast of an expression to a type.
func CastTo(x Expr, to elem.Type) *Cast {
	return &Cast{X: x, To: to}
}

func (c *Cast) String() string {
	return fmt.Sprintf("Cast(%s, %s)", c.X, c.To.ShortName())
}

// Unary returns a new unary operator node.
func Unary(op UnaryOpType, x Expr) *UnaryOp {
	return &UnaryOp{Op: op, X: x}
}

func (u *UnaryOp) String() string {
	return fmt.Sprintf("%s(%s)", u.Op.FuncName(), u.X)
}

// Binary returns a new binary operator node.
func Binary(op BinaryOpType, x, y Expr) *BinaryOp {
	return &BinaryOp{Op: op, X: x, Y: y}
}

func (b *BinaryOp) String() string {
	return fmt.Sprintf("%s(%s, %s)", b.Op.FuncName(), b.X, b.Y)
}

// Ternary returns a new ternary operator node.
func Ternary(op TernaryOpType, x, y, z Expr) *TernaryOp {
	return &TernaryOp{Op: op, X: x, Y: y, Z: z}
}

func (t *TernaryOp) String() string {
	return fmt.Sprintf("%s(%s, %s, %s)", t.Op.FuncName(), t.X, t.Y, t.Z)
}

// Args returns the arguments of a node in declaration order.
func Args(e Expr) []Expr {
	switch n := e.(type) {
	case *Cast:
		return []Expr{n.X}
	case *UnaryOp:
		return []Expr{n.X}
	case *BinaryOp:
		return []Expr{n.X, n.Y}
	case *TernaryOp:
		return []Expr{n.X, n.Y, n.Z}
	}
	return nil
}

// Walk calls f for every node of the tree in pre-order.
// Children of a node are skipped if f returns false.
func Walk(e Expr, f func(Expr) bool) {
	if !f(e) {
		return
	}
	for _, arg := range Args(e) {
		Walk(arg, f)
	}
}

// MaxPlaceholder returns the largest placeholder index used by an expression.
func MaxPlaceholder(e Expr) int {
	maxIndex := 0
	Walk(e, func(e Expr) bool {
		if p, ok := e.(*PlaceHolder); ok {
			maxIndex = max(maxIndex, p.Index)
		}
		return true
	})
	return maxIndex
}

// Name returns a name identifying the structure of an expression.
// The name only contains characters valid in an identifier.
func Name(e Expr, operands []Operand) string {
	switch n := e.(type) {
	case *Const:
		r := strings.NewReplacer(".", "z", "-", "m", "+", "p")
		return r.Replace(n.Print())
	case *PlaceHolder:
		typ := elem.Invalid
		if n.Index >= 1 && n.Index <= len(operands) {
			typ = operands[n.Index-1].Type
		}
		return fmt.Sprintf("%s_%d_", typ.ShortName(), n.Index)
	case *Cast:
		return "Cast_" + Name(n.X, operands) + "_" + n.To.ShortName()
	case *UnaryOp:
		return buildName(n.Op.String(), Name(n.X, operands))
	case *BinaryOp:
		return buildName(n.Op.String(), Name(n.X, operands), Name(n.Y, operands))
	case *TernaryOp:
		return buildName(n.Op.String(), Name(n.X, operands), Name(n.Y, operands), Name(n.Z, operands))
	}
	return "invalid"
}

func buildName(op string, args ...string) string {
	return op + "u_" + strings.Join(args, "_") + "_d"
}
