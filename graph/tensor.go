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

package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/gx-org/popfuse/base/stringseq"
	"github.com/gx-org/popfuse/elem"
)

// Interval is a range [Begin, End) of element indices.
type Interval struct {
	Begin, End int
}

// Size returns the number of elements in the interval.
func (i Interval) Size() int {
	return i.End - i.Begin
}

func (i Interval) String() string {
	return fmt.Sprintf("[%d,%d)", i.Begin, i.End)
}

// VariableID identifies a variable in a graph.
type VariableID int

// segment is a range of elements of a variable.
type segment struct {
	v VariableID
	Interval
}

// Tensor is a view over the elements of one or more variables.
// Tensors are values: operations on a tensor return a new view
// and never modify the underlying variables.
type Tensor struct {
	typ   elem.Type
	shape []int
	segs  []segment
}

func newTensor(typ elem.Type, shape []int, segs []segment) Tensor {
	return Tensor{typ: typ, shape: slices.Clone(shape), segs: mergeSegments(segs)}
}

func mergeSegments(segs []segment) []segment {
	var r []segment
	for _, s := range segs {
		if s.Size() == 0 {
			continue
		}
		if n := len(r); n > 0 && r[n-1].v == s.v && r[n-1].End == s.Begin {
			r[n-1].End = s.End
			continue
		}
		r = append(r, s)
	}
	return r
}

// Type returns the element type.
func (t Tensor) Type() elem.Type {
	return t.typ
}

// Shape returns the shape of the tensor.
func (t Tensor) Shape() []int {
	return slices.Clone(t.shape)
}

// NumElements returns the number of elements in the view.
func (t Tensor) NumElements() int {
	n := 0
	for _, s := range t.segs {
		n += s.Size()
	}
	return n
}

// IsScalar returns true if the tensor has a single element.
func (t Tensor) IsScalar() bool {
	return t.NumElements() == 1
}

// IsEmpty returns true if the tensor has no element.
func (t Tensor) IsEmpty() bool {
	return len(t.segs) == 0
}

// Flatten returns a one-dimensional view of the tensor.
func (t Tensor) Flatten() Tensor {
	return newTensor(t.typ, []int{t.NumElements()}, t.segs)
}

// Reshape returns a view of the tensor with a different shape.
func (t Tensor) Reshape(shape []int) (Tensor, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != t.NumElements() {
		return Tensor{}, errors.Errorf("cannot reshape %v to %v: number of elements differ", t.shape, shape)
	}
	return newTensor(t.typ, shape, t.segs), nil
}

// Slice returns the elements [begin, end) of the flattened tensor.
// It panics if the range is out of bounds, as slicing a Go slice does.
func (t Tensor) Slice(begin, end int) Tensor {
	if begin < 0 || end < begin || end > t.NumElements() {
		panic(fmt.Sprintf("slice [%d,%d) out of range for a tensor of %d elements", begin, end, t.NumElements()))
	}
	var segs []segment
	offset := 0
	for _, s := range t.segs {
		sBegin, sEnd := max(begin, offset), min(end, offset+s.Size())
		if sBegin < sEnd {
			segs = append(segs, segment{v: s.v, Interval: Interval{
				Begin: s.Begin + sBegin - offset,
				End:   s.Begin + sEnd - offset,
			}})
		}
		offset += s.Size()
		if offset >= end {
			break
		}
	}
	return newTensor(t.typ, []int{end - begin}, segs)
}

// Slices returns the concatenation of several slices of the flattened tensor.
func (t Tensor) Slices(intervals []Interval) Tensor {
	var segs []segment
	for _, iv := range intervals {
		segs = append(segs, t.Slice(iv.Begin, iv.End).segs...)
	}
	return newTensor(t.typ, []int{intervalsSize(intervals)}, segs)
}

func intervalsSize(intervals []Interval) int {
	n := 0
	for _, iv := range intervals {
		n += iv.Size()
	}
	return n
}

// Concat concatenates flattened tensors of the same type.
func Concat(ts ...Tensor) (Tensor, error) {
	if len(ts) == 0 {
		return Tensor{}, errors.Errorf("no tensor to concatenate")
	}
	var segs []segment
	n := 0
	for _, t := range ts {
		if t.typ != ts[0].typ {
			return Tensor{}, errors.Errorf("cannot concatenate a %s tensor with a %s tensor", ts[0].typ, t.typ)
		}
		segs = append(segs, t.segs...)
		n += t.NumElements()
	}
	return newTensor(ts[0].typ, []int{n}, segs), nil
}

// element calls f for every element of the view with its index in the view,
// its variable and its index in the variable.
func (t Tensor) element(f func(i int, v VariableID, e int)) {
	i := 0
	for _, s := range t.segs {
		for e := s.Begin; e < s.End; e++ {
			f(i, s.v, e)
			i++
		}
	}
}

// Overlaps returns true if two tensors share at least one variable element.
func Overlaps(a, b Tensor) bool {
	for _, sa := range a.segs {
		for _, sb := range b.segs {
			if sa.v == sb.v && sa.Begin < sb.End && sb.Begin < sa.End {
				return true
			}
		}
	}
	return false
}

// selfOverlaps returns true if an element of a variable appears more than once in the view.
func (t Tensor) selfOverlaps() bool {
	for i, sa := range t.segs {
		for _, sb := range t.segs[i+1:] {
			if sa.v == sb.v && sa.Begin < sb.End && sb.Begin < sa.End {
				return true
			}
		}
	}
	return false
}

func (t Tensor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%v{", t.typ, t.shape)
	stringseq.AppendStringer(&b, slices.Values(t.segs), ",")
	b.WriteString("}")
	return b.String()
}

func (s segment) String() string {
	return fmt.Sprintf("v%d%s", s.v, s.Interval)
}
