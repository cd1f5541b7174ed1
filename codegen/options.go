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

package codegen

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

// Option configures Map.
type Option interface {
	fmt.Stringer
}

type (
	enableGenerateCodelet bool
	forceGenerateCodelet  bool
	inPlace               struct{}
	withLogger            struct{ logger *slog.Logger }
	withDebugName         string
)

// EnableGenerateCodelet enables or disables the generation of fused codelets.
// Generation is enabled by default. When disabled, Map always sequences
// primitive vertices.
func EnableGenerateCodelet(enable bool) Option {
	return enableGenerateCodelet(enable)
}

func (o enableGenerateCodelet) String() string {
	return fmt.Sprintf("EnableGenerateCodelet(%t)", bool(o))
}

// ForceGenerateCodelet fuses expressions with a single operator.
func ForceGenerateCodelet(force bool) Option {
	return forceGenerateCodelet(force)
}

func (o forceGenerateCodelet) String() string {
	return fmt.Sprintf("ForceGenerateCodelet(%t)", bool(o))
}

// InPlace writes the result into the first operand.
func InPlace() Option {
	return inPlace{}
}

func (inPlace) String() string {
	return "InPlace()"
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger: logger}
}

func (withLogger) String() string {
	return "WithLogger()"
}

// WithDebugName prefixes the names of the variables and compute sets created by Map.
func WithDebugName(name string) Option {
	return withDebugName(name)
}

func (o withDebugName) String() string {
	return fmt.Sprintf("WithDebugName(%q)", string(o))
}

type config struct {
	generate bool
	force    bool
	inPlace  bool
	logger   *slog.Logger
	name     string
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		generate: true,
		logger:   slog.Default(),
		name:     "Map",
	}
	for _, option := range opts {
		var err error
		switch optionT := option.(type) {
		case enableGenerateCodelet:
			cfg.generate = bool(optionT)
		case forceGenerateCodelet:
			cfg.force = bool(optionT)
		case inPlace:
			cfg.inPlace = true
		case withLogger:
			if optionT.logger == nil {
				err = errors.Errorf("%s: nil logger", optionT)
				break
			}
			cfg.logger = optionT.logger
		case withDebugName:
			cfg.name = string(optionT)
		default:
			err = errors.Errorf("option of type %T not supported", optionT)
		}
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
