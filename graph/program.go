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

import "github.com/pkg/errors"

type (
	// Program is a step of the control program of a device.
	Program interface {
		run(*Engine) error
	}

	// Sequence runs programs one after the other.
	Sequence struct {
		progs []Program
	}

	// Execute runs all the vertices of a compute set.
	Execute struct {
		CS *ComputeSet
	}

	// Copy copies the elements of a tensor into another.
	Copy struct {
		Src, Dst Tensor
	}
)

var (
	_ Program = (*Sequence)(nil)
	_ Program = (*Execute)(nil)
	_ Program = (*Copy)(nil)
)

// NewSequence returns a new sequence of programs.
func NewSequence(progs ...Program) *Sequence {
	return &Sequence{progs: progs}
}

// Add a program at the end of the sequence.
func (s *Sequence) Add(p Program) {
	s.progs = append(s.progs, p)
}

// Programs returns the programs of the sequence.
func (s *Sequence) Programs() []Program {
	return s.progs
}

func (s *Sequence) run(e *Engine) error {
	for _, p := range s.progs {
		if err := p.run(e); err != nil {
			return err
		}
	}
	return nil
}

func (x *Execute) run(e *Engine) error {
	for _, v := range x.CS.vertices {
		if err := e.runVertex(v); err != nil {
			return errors.WithMessagef(err, "compute set %s", x.CS.name)
		}
	}
	return nil
}

func (c *Copy) run(e *Engine) error {
	if c.Src.NumElements() != c.Dst.NumElements() || c.Src.Type() != c.Dst.Type() {
		return errors.Errorf("cannot copy %s into %s", c.Src, c.Dst)
	}
	a, err := e.Read(c.Src)
	if err != nil {
		return err
	}
	return e.Write(c.Dst, a)
}
