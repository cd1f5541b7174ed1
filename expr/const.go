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
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/x448/float16"
	"golang.org/x/exp/constraints"

	"github.com/gx-org/popfuse/elem"
)

// Const is a literal value.
// The host type is the type of the literal when it was written.
// Its type in a kernel is resolved from the surrounding operands (see InferTypes).
type Const struct {
	host elem.Type
	raw  []byte
}

// Number is a Go type from which a constant can be built.
type Number interface {
	constraints.Integer | constraints.Float
}

// NewConst returns a new constant from a Go value.
// Go floating point values are float constants,
// signed integers are int (or long long for 64-bit types)
// and unsigned integers are unsigned int (or unsigned long long).
func NewConst[T Number](v T) *Const {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return constFromBits(elem.Float, uint64(math.Float32bits(float32(rv.Float()))))
	case reflect.Int64:
		return constFromBits(elem.LongLong, uint64(rv.Int()))
	case reflect.Int8:
		return constFromBits(elem.SignedChar, uint64(rv.Int()))
	case reflect.Int16:
		return constFromBits(elem.Short, uint64(rv.Int()))
	case reflect.Int, reflect.Int32:
		return constFromBits(elem.Int, uint64(rv.Int()))
	case reflect.Uint64, reflect.Uintptr:
		return constFromBits(elem.UnsignedLongLong, rv.Uint())
	case reflect.Uint8:
		return constFromBits(elem.UnsignedChar, rv.Uint())
	case reflect.Uint16:
		return constFromBits(elem.UnsignedShort, rv.Uint())
	default:
		return constFromBits(elem.UnsignedInt, rv.Uint())
	}
}

// ConstHalf returns a half constant. The value is rounded to the nearest half.
func ConstHalf(v float32) *Const {
	return constFromBits(elem.Half, uint64(float16.Fromfloat32(v).Bits()))
}

// ConstBool returns a boolean constant.
func ConstBool(v bool) *Const {
	var bits uint64
	if v {
		bits = 1
	}
	return constFromBits(elem.Bool, bits)
}

// ConstTyped returns a constant with a given host type from its float64 value.
func ConstTyped(t elem.Type, v float64) *Const {
	switch {
	case t == elem.Half:
		return ConstHalf(float32(v))
	case t == elem.Float:
		return constFromBits(t, uint64(math.Float32bits(float32(v))))
	case t == elem.Bool:
		return ConstBool(v != 0)
	case t.IsSigned():
		return constFromBits(t, uint64(int64(v)))
	default:
		return constFromBits(t, uint64(v))
	}
}

func constFromBits(host elem.Type, bits uint64) *Const {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], bits)
	return &Const{host: host, raw: buf[:host.Size()]}
}

// HostType returns the type of the literal.
func (c *Const) HostType() elem.Type {
	return c.host
}

// Raw returns a copy of the little-endian bytes of the literal.
func (c *Const) Raw() []byte {
	return append([]byte{}, c.raw...)
}

func (c *Const) bits() uint64 {
	var buf [8]byte
	copy(buf[:], c.raw)
	return binary.LittleEndian.Uint64(buf[:])
}

// Float returns the value of the constant as a float64.
func (c *Const) Float() float64 {
	switch {
	case c.host == elem.Float:
		return float64(math.Float32frombits(uint32(c.bits())))
	case c.host == elem.Half:
		return float64(float16.Frombits(uint16(c.bits())).Float32())
	case c.host.IsSigned():
		return float64(c.Int())
	}
	return float64(c.bits())
}

// Int returns the value of the constant as an int64.
// Floating point values are truncated.
func (c *Const) Int() int64 {
	if c.host.IsFloat() {
		return int64(c.Float())
	}
	if !c.host.IsSigned() {
		return int64(c.bits())
	}
	shift := 64 - 8*len(c.raw)
	return int64(c.bits()<<shift) >> shift
}

// IsNegative returns true if the constant is negative.
func (c *Const) IsNegative() bool {
	if c.host.IsFloat() {
		return c.Float() < 0
	}
	return c.host.IsSigned() && c.Int() < 0
}

// IsFinite returns false if a floating point constant is NaN or infinite.
func (c *Const) IsFinite() bool {
	switch c.host {
	case elem.Half:
		return float16.Frombits(uint16(c.bits())).IsFinite()
	case elem.Float:
		f := c.Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return true
}

// Print returns the literal in the syntax of the generated code.
func (c *Const) Print() string {
	switch {
	case c.host == elem.Float:
		s := strconv.FormatFloat(c.Float(), 'g', 9, 32)
		if !strings.ContainsAny(s, ".e") {
			return s + ".f"
		}
		return s + "f"
	case c.host == elem.Half:
		return strconv.FormatFloat(c.Float(), 'g', 9, 32)
	case c.host == elem.Bool:
		return strconv.FormatBool(c.bits() != 0)
	case c.host.IsSigned():
		return strconv.FormatInt(c.Int(), 10)
	}
	return strconv.FormatUint(c.bits(), 10)
}

func (c *Const) String() string {
	switch c.host {
	case elem.Half:
		return fmt.Sprintf("ConstHalf(%s)", c.Print())
	case elem.Float, elem.Int, elem.Bool:
		return fmt.Sprintf("Const(%s)", strings.TrimSuffix(c.Print(), "f"))
	}
	return fmt.Sprintf("Const(%s, %s)", c.Print(), c.host.ShortName())
}
