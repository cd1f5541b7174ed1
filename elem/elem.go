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

// Package elem defines the element types of the device.
package elem

import (
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/pkg/errors"
)

// Type of an element stored in a device tensor.
type Type int

// Element types.
const (
	Invalid Type = iota
	Bool
	Char
	UnsignedChar
	SignedChar
	Short
	UnsignedShort
	Half
	Float
	Int
	UnsignedInt
	LongLong
	UnsignedLongLong
)

var typeNames = map[Type]string{
	Invalid:          "invalid",
	Bool:             "bool",
	Char:             "char",
	UnsignedChar:     "unsigned char",
	SignedChar:       "signed char",
	Short:            "short",
	UnsignedShort:    "unsigned short",
	Half:             "half",
	Float:            "float",
	Int:              "int",
	UnsignedInt:      "unsigned int",
	LongLong:         "long long",
	UnsignedLongLong: "unsigned long long",
}

// All returns all the valid element types.
func All() []Type {
	return []Type{Bool, Char, UnsignedChar, SignedChar, Short, UnsignedShort, Half, Float, Int, UnsignedInt, LongLong, UnsignedLongLong}
}

// String returns the name of the type on the device.
func (t Type) String() string {
	name, ok := typeNames[t]
	if !ok {
		return "invalid"
	}
	return name
}

// ShortName returns a name of the type without spaces,
// shortened for the most common unsigned types.
func (t Type) ShortName() string {
	switch t {
	case UnsignedInt:
		return "uint"
	case UnsignedShort:
		return "ushort"
	}
	return strings.ReplaceAll(t.String(), " ", "_")
}

// Alias returns the name of the type alias used in generated code.
func (t Type) Alias() string {
	name := strings.ReplaceAll(t.String(), "unsigned ", "u")
	return strings.ReplaceAll(name, " ", "_") + "_ty"
}

// Size returns the size of one element in bytes.
func (t Type) Size() int {
	switch t {
	case Bool, Char, UnsignedChar, SignedChar:
		return 1
	case Short, UnsignedShort, Half:
		return 2
	case Float, Int, UnsignedInt:
		return 4
	case LongLong, UnsignedLongLong:
		return 8
	}
	return 0
}

// IsFloat returns true for floating point types.
func (t Type) IsFloat() bool {
	return t == Half || t == Float
}

// IsInteger returns true for integer types. Booleans are not integers.
func (t Type) IsInteger() bool {
	switch t {
	case Char, UnsignedChar, SignedChar, Short, UnsignedShort, Int, UnsignedInt, LongLong, UnsignedLongLong:
		return true
	}
	return false
}

// IsSigned returns true if the type can represent negative numbers.
func (t Type) IsSigned() bool {
	switch t {
	case Char, SignedChar, Short, Int, LongLong, Half, Float:
		return true
	}
	return false
}

// FusionSupported returns true if the type can appear in a generated codelet.
func (t Type) FusionSupported() bool {
	switch t {
	case Float, Half, Int, UnsignedInt, Bool:
		return true
	}
	return false
}

// SupportsVectorization returns true if generated code can use vector
// types of this element type.
func (t Type) SupportsVectorization() bool {
	switch t {
	case Half, Float, Bool:
		return true
	}
	return false
}

// DType returns the backend data type matching an element type.
// It returns false if the backend has no equivalent.
func (t Type) DType() (dtype.DataType, bool) {
	switch t {
	case Bool:
		return dtype.Bool, true
	case Float:
		return dtype.Float32, true
	case Int:
		return dtype.Int32, true
	case UnsignedInt:
		return dtype.Uint32, true
	case LongLong:
		return dtype.Int64, true
	case UnsignedLongLong:
		return dtype.Uint64, true
	}
	var invalid dtype.DataType
	return invalid, false
}

// Parse returns the element type given its device name or its short name.
func Parse(s string) (Type, error) {
	s = strings.TrimSpace(s)
	for _, t := range All() {
		if s == t.String() || s == t.ShortName() {
			return t, nil
		}
	}
	return Invalid, errors.Errorf("unknown element type %q", s)
}
