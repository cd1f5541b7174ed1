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

// Package popflag provides flag types for popfuse tools.
package popflag

import (
	"flag"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Scalar is the shape of a scalar on the command line.
const Scalar = "scalar"

type stringList struct {
	list *[]string
}

func (sl *stringList) String() string {
	if sl.list == nil {
		return ""
	}
	return strings.Join(*sl.list, ",")
}

func (sl *stringList) Set(values string) error {
	for _, value := range strings.Split(values, ",") {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		*sl.list = append(*sl.list, value)
	}
	return nil
}

// StringList returns a flag to pass a list of string from the command line.
func StringList(name, doc string) *[]string {
	return StringListVar(flag.CommandLine, name, doc)
}

// StringListVar defines a list of string flag in a flag set.
func StringListVar(fs *flag.FlagSet, name, doc string) *[]string {
	var list []string
	sList := stringList{&list}
	fs.Var(&sList, name, doc)
	return sList.list
}

// ParseShape parses the shape of a tensor written as dimensions separated
// by x, for example 16x4. Scalar is the empty shape.
func ParseShape(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == Scalar {
		return []int{}, nil
	}
	var shape []int
	for _, dim := range strings.Split(s, "x") {
		n, err := strconv.Atoi(dim)
		if err != nil {
			return nil, errors.Errorf("invalid dimension %q in shape %q", dim, s)
		}
		if n <= 0 {
			return nil, errors.Errorf("dimension %d in shape %q is not positive", n, s)
		}
		shape = append(shape, n)
	}
	return shape, nil
}
