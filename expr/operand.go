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
	"fmt"
	"slices"

	"github.com/gx-org/popfuse/elem"
)

// Operand describes the tensor bound to a placeholder.
type Operand struct {
	// Type of the elements.
	Type elem.Type
	// Shape of the tensor. An empty shape is a scalar.
	Shape []int
	// Aliased is true if the memory of the tensor overlaps itself
	// or another operand.
	Aliased bool
}

// NumElements returns the total number of elements.
func (o Operand) NumElements() int {
	n := 1
	for _, d := range o.Shape {
		n *= d
	}
	return n
}

// IsScalar returns true if the operand has a single element.
func (o Operand) IsScalar() bool {
	return o.NumElements() == 1
}

// SameShape returns true if both operands have the same shape.
func (o Operand) SameShape(other Operand) bool {
	return slices.Equal(o.Shape, other.Shape)
}

func (o Operand) String() string {
	return fmt.Sprintf("%s%v", o.Type, o.Shape)
}
