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

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Canonical returns a serialization of an expression that includes
// every node kind, operator, constant type and value, placeholder index,
// and the type and scalar flag of every referenced operand.
// Two expressions with the same canonical form generate the same codelet.
func Canonical(e Expr, types Types, operands []Operand) string {
	var b strings.Builder
	writeCanonical(&b, e, types, operands)
	return b.String()
}

func writeCanonical(b *strings.Builder, e Expr, types Types, operands []Operand) {
	switch n := e.(type) {
	case *Const:
		fmt.Fprintf(b, "C(%s,%s,%x)", types.Of(n), n.host, n.raw)
	case *PlaceHolder:
		if n.Index < 1 || n.Index > len(operands) {
			fmt.Fprintf(b, "P(%d)", n.Index)
			return
		}
		op := operands[n.Index-1]
		fmt.Fprintf(b, "P(%d,%s,%t)", n.Index, op.Type, op.IsScalar())
	case *Cast:
		b.WriteString("T(")
		writeCanonical(b, n.X, types, operands)
		fmt.Fprintf(b, ",%s)", n.To)
	case *UnaryOp:
		writeCall(b, "U", n.Op.String(), types, operands, n.X)
	case *BinaryOp:
		writeCall(b, "B", n.Op.String(), types, operands, n.X, n.Y)
	case *TernaryOp:
		writeCall(b, "E", n.Op.String(), types, operands, n.X, n.Y, n.Z)
	}
}

func writeCall(b *strings.Builder, kind, op string, types Types, operands []Operand, args ...Expr) {
	b.WriteString(kind)
	b.WriteString("(")
	b.WriteString(op)
	for _, arg := range args {
		b.WriteString(",")
		writeCanonical(b, arg, types, operands)
	}
	b.WriteString(")")
}

// Hash returns the hexadecimal SHA-256 digest of a canonical serialization.
func Hash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
