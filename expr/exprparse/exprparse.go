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

// Package exprparse parses textual element-wise expressions such as
//
//	Add(Sub(_1, Mul(_2, _3)), Mul(_2, _3))
//
// Placeholders are written _1, _2, ... Constants are written Const(2.5),
// Const(3), Const(true), ConstHalf(0.5) or Const(3, ushort). Casts are
// written Cast(_1, half).
package exprparse

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gx-org/popfuse/elem"
	"github.com/gx-org/popfuse/expr"
)

var (
	unaryByName   = make(map[string]expr.UnaryOpType)
	binaryByName  = make(map[string]expr.BinaryOpType)
	ternaryByName = make(map[string]expr.TernaryOpType)
)

func init() {
	for _, op := range expr.UnaryOps() {
		unaryByName[op.FuncName()] = op
	}
	for _, op := range expr.BinaryOps() {
		binaryByName[op.FuncName()] = op
	}
	for _, op := range expr.TernaryOps() {
		ternaryByName[op.FuncName()] = op
	}
}

type parseError struct {
	pos token.Pos
	msg string
}

func (e *parseError) Error() string {
	return "column " + strconv.Itoa(int(e.pos)) + ": " + e.msg
}

func errorf(node ast.Node, format string, a ...any) error {
	return errors.WithStack(&parseError{pos: node.Pos(), msg: errors.Errorf(format, a...).Error()})
}

// Parse returns the expression tree of a textual expression.
func Parse(src string) (expr.Expr, error) {
	node, err := parser.ParseExpr(src)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse %q", src)
	}
	return toExpr(node)
}

func toExpr(node ast.Expr) (expr.Expr, error) {
	switch n := node.(type) {
	case *ast.ParenExpr:
		return toExpr(n.X)
	case *ast.Ident:
		return toPlaceholder(n)
	case *ast.CallExpr:
		return toCall(n)
	}
	return nil, errorf(node, "%T not supported in an expression", node)
}

func toPlaceholder(id *ast.Ident) (expr.Expr, error) {
	if !strings.HasPrefix(id.Name, "_") {
		return nil, errorf(id, "undefined: %s", id.Name)
	}
	i, err := strconv.Atoi(id.Name[1:])
	if err != nil || i < 1 {
		return nil, errorf(id, "invalid placeholder %s", id.Name)
	}
	return expr.P(i), nil
}

func toArgs(call *ast.CallExpr, n int) ([]expr.Expr, error) {
	if len(call.Args) != n {
		return nil, errorf(call, "%s expects %d argument(s) but got %d", funcName(call), n, len(call.Args))
	}
	args := make([]expr.Expr, n)
	for i, arg := range call.Args {
		var err error
		if args[i], err = toExpr(arg); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func funcName(call *ast.CallExpr) string {
	if id, ok := call.Fun.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

func toCall(call *ast.CallExpr) (expr.Expr, error) {
	name := funcName(call)
	switch name {
	case "Const":
		return toConst(call)
	case "ConstHalf":
		if len(call.Args) != 1 {
			return nil, errorf(call, "ConstHalf expects 1 argument but got %d", len(call.Args))
		}
		v, err := toNumber(call.Args[0])
		if err != nil {
			return nil, err
		}
		return expr.ConstHalf(float32(v)), nil
	case "Cast":
		if len(call.Args) != 2 {
			return nil, errorf(call, "Cast expects 2 arguments but got %d", len(call.Args))
		}
		x, err := toExpr(call.Args[0])
		if err != nil {
			return nil, err
		}
		to, err := toType(call.Args[1])
		if err != nil {
			return nil, err
		}
		return expr.CastTo(x, to), nil
	}
	if op, ok := unaryByName[name]; ok {
		args, err := toArgs(call, 1)
		if err != nil {
			return nil, err
		}
		return expr.Unary(op, args[0]), nil
	}
	if op, ok := binaryByName[name]; ok {
		args, err := toArgs(call, 2)
		if err != nil {
			return nil, err
		}
		return expr.Binary(op, args[0], args[1]), nil
	}
	if op, ok := ternaryByName[name]; ok {
		args, err := toArgs(call, 3)
		if err != nil {
			return nil, err
		}
		return expr.Ternary(op, args[0], args[1], args[2]), nil
	}
	return nil, errorf(call, "unknown operator %q", name)
}

func toType(node ast.Expr) (elem.Type, error) {
	id, ok := node.(*ast.Ident)
	if !ok {
		return elem.Invalid, errorf(node, "expected a type name")
	}
	t, err := elem.Parse(id.Name)
	if err != nil {
		return elem.Invalid, errorf(node, "%v", err)
	}
	return t, nil
}

func toConst(call *ast.CallExpr) (expr.Expr, error) {
	if len(call.Args) < 1 || len(call.Args) > 2 {
		return nil, errorf(call, "Const expects 1 or 2 arguments but got %d", len(call.Args))
	}
	if id, ok := call.Args[0].(*ast.Ident); ok && len(call.Args) == 1 {
		switch id.Name {
		case "true":
			return expr.ConstBool(true), nil
		case "false":
			return expr.ConstBool(false), nil
		}
	}
	v, err := toNumber(call.Args[0])
	if err != nil {
		return nil, err
	}
	if len(call.Args) == 2 {
		t, err := toType(call.Args[1])
		if err != nil {
			return nil, err
		}
		return expr.ConstTyped(t, v), nil
	}
	if isFloatLiteral(call.Args[0]) {
		return expr.NewConst(float32(v)), nil
	}
	return expr.NewConst(int32(v)), nil
}

func isFloatLiteral(node ast.Expr) bool {
	switch n := node.(type) {
	case *ast.BasicLit:
		return n.Kind == token.FLOAT
	case *ast.UnaryExpr:
		return isFloatLiteral(n.X)
	case *ast.ParenExpr:
		return isFloatLiteral(n.X)
	}
	return false
}

func toNumber(node ast.Expr) (float64, error) {
	switch n := node.(type) {
	case *ast.ParenExpr:
		return toNumber(n.X)
	case *ast.UnaryExpr:
		v, err := toNumber(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.SUB:
			return -v, nil
		case token.ADD:
			return v, nil
		}
		return 0, errorf(node, "operator %s not supported in a constant", n.Op)
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return 0, errorf(node, "%s literal not supported in a constant", n.Kind)
		}
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return 0, errorf(node, "invalid number %s: %v", n.Value, err)
		}
		return v, nil
	}
	return 0, errorf(node, "expected a number")
}
