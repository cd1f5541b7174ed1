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

package reduce

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/gx-org/popfuse/elem"
)

// Option configures a reduction.
type Option interface {
	fmt.Stringer
}

type (
	withLogger      struct{ logger *slog.Logger }
	withoutExchange struct{}
	withOutputType  elem.Type
	withDebugName   string
	withMaxPartials int
)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger: logger}
}

func (withLogger) String() string {
	return "WithLogger()"
}

// WithoutExchange reduces the elements of every tile without moving data
// between tiles. The reduction stops at intermediate partials unless every
// column is stored on a single tile.
func WithoutExchange() Option {
	return withoutExchange{}
}

func (withoutExchange) String() string {
	return "WithoutExchange()"
}

// WithOutputType sets the element type of the output.
// The default is the type of the input.
func WithOutputType(t elem.Type) Option {
	return withOutputType(t)
}

func (o withOutputType) String() string {
	return fmt.Sprintf("WithOutputType(%s)", elem.Type(o))
}

// WithDebugName prefixes the names of the variables and compute sets of the reduction.
func WithDebugName(name string) Option {
	return withDebugName(name)
}

func (o withDebugName) String() string {
	return fmt.Sprintf("WithDebugName(%q)", string(o))
}

// WithMaxPartials adds intermediate stages until no output column has more
// than n partials before the last stage. The default is 8.
func WithMaxPartials(n int) Option {
	return withMaxPartials(n)
}

func (o withMaxPartials) String() string {
	return fmt.Sprintf("WithMaxPartials(%d)", int(o))
}

type config struct {
	logger      *slog.Logger
	noExchange  bool
	outType     elem.Type
	name        string
	maxPartials int
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		logger:      slog.Default(),
		name:        "Reduce",
		maxPartials: 8,
	}
	for _, option := range opts {
		var err error
		switch optionT := option.(type) {
		case withLogger:
			if optionT.logger == nil {
				err = errors.Errorf("%s: nil logger", optionT)
				break
			}
			cfg.logger = optionT.logger
		case withoutExchange:
			cfg.noExchange = true
		case withOutputType:
			cfg.outType = elem.Type(optionT)
		case withDebugName:
			cfg.name = string(optionT)
		case withMaxPartials:
			if optionT < 2 {
				err = errors.Errorf("%s: at least 2 partials are required", optionT)
				break
			}
			cfg.maxPartials = int(optionT)
		default:
			err = errors.Errorf("option of type %T not supported", optionT)
		}
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
