// Package stringseq writes sequences of values as strings.
package stringseq

import (
	"fmt"
	"iter"
	"strings"
)

// AppendStringer writes the elements of seq into b, separated by sep.
func AppendStringer[T fmt.Stringer](b *strings.Builder, seq iter.Seq[T], sep string) {
	first := true
	for item := range seq {
		if !first {
			b.WriteString(sep)
		}
		first = false
		b.WriteString(item.String())
	}
}

// JoinStringer returns the elements of seq separated by sep.
func JoinStringer[T fmt.Stringer](seq iter.Seq[T], sep string) string {
	var b strings.Builder
	AppendStringer(&b, seq, sep)
	return b.String()
}
