// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry holds the catalogue of supported power-analysis tests.
//
// The catalogue is an embedded YAML document loaded once per process. Every
// accessor returns copies, so the registry is immutable after loading and
// safe for concurrent use without locking.
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Catalogue
// =============================================================================

//go:embed catalogue.yaml
var defaultCatalogueYAML []byte

// =============================================================================
// Types
// =============================================================================

// ParamType is the declared type of a test parameter.
type ParamType string

const (
	// TypeNumber accepts any real number.
	TypeNumber ParamType = "number"

	// TypeInteger accepts whole numbers only.
	TypeInteger ParamType = "integer"

	// TypeString accepts one of an enumeration of values.
	TypeString ParamType = "string"
)

// CatalogueSize is the number of tests the catalogue must declare.
const CatalogueSize = 16

// MaxCatalogueSize bounds the YAML document accepted by Load.
const MaxCatalogueSize = 1 << 20

// ErrUnknownTest is returned when a test id is not in the catalogue.
var ErrUnknownTest = errors.New("unknown test")

// ParamSpec describes one parameter of a test.
type ParamSpec struct {
	// Name is the parameter name as it appears in requests.
	Name string `yaml:"name" json:"name"`

	// Type is number, integer or string.
	Type ParamType `yaml:"type" json:"type"`

	// Description is shown in prompts and in the test listing.
	Description string `yaml:"description" json:"description"`

	// Enum lists the allowed values of a string parameter.
	Enum []string `yaml:"enum,omitempty" json:"enum,omitempty"`

	// Default is applied when the parameter is absent. float64 for numeric
	// types, string for enumerations, nil when the parameter is required.
	Default any `yaml:"default,omitempty" json:"default,omitempty"`

	// Required is true when no default exists. Derived at load time.
	Required bool `yaml:"-" json:"required"`
}

// TestDescriptor is the static schema of one test.
type TestDescriptor struct {
	ID           string      `yaml:"id" json:"id"`
	Description  string      `yaml:"description" json:"description"`
	ExampleQuery string      `yaml:"example_query" json:"example_query"`
	Result       string      `yaml:"result" json:"result"`
	Params       []ParamSpec `yaml:"params" json:"parameters"`
	UseCases     []string    `yaml:"use_cases" json:"use_cases"`
}

// ParamNames returns the parameter names in declared order.
func (d TestDescriptor) ParamNames() []string {
	names := make([]string, len(d.Params))
	for i, p := range d.Params {
		names[i] = p.Name
	}
	return names
}

// Param returns the ParamSpec of the named parameter.
func (d TestDescriptor) Param(name string) (ParamSpec, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

func (d TestDescriptor) clone() TestDescriptor {
	out := d
	out.Params = make([]ParamSpec, len(d.Params))
	for i, p := range d.Params {
		p.Enum = append([]string(nil), p.Enum...)
		out.Params[i] = p
	}
	out.UseCases = append([]string(nil), d.UseCases...)
	return out
}

type catalogueFile struct {
	Tests []TestDescriptor `yaml:"tests"`
}

// Registry is the loaded, validated catalogue.
//
// Thread Safety: Immutable after Load; safe for concurrent use.
type Registry struct {
	tests []TestDescriptor
	index map[string]int
}

// =============================================================================
// Loading
// =============================================================================

// Load parses and validates a catalogue document.
//
// Description:
//
//	Numeric defaults are normalized to float64. Required is derived from
//	the absence of a default. Validation rejects duplicate ids, duplicate
//	parameter names, unknown types, enumerations on non-string parameters,
//	defaults outside the enumeration, and catalogues that do not declare
//	exactly CatalogueSize tests.
//
// Inputs:
//
//	data - Raw YAML bytes.
//
// Outputs:
//
//	*Registry - The validated registry.
//	error - Non-nil if parsing or validation fails.
func Load(data []byte) (*Registry, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("registry.Load: empty catalogue")
	}
	if len(data) > MaxCatalogueSize {
		return nil, fmt.Errorf("registry.Load: catalogue exceeds maximum size (%d > %d)", len(data), MaxCatalogueSize)
	}

	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("registry.Load: parsing YAML: %w", err)
	}

	if len(file.Tests) != CatalogueSize {
		return nil, fmt.Errorf("registry.Load: catalogue declares %d tests, want %d", len(file.Tests), CatalogueSize)
	}

	reg := &Registry{
		tests: make([]TestDescriptor, 0, len(file.Tests)),
		index: make(map[string]int, len(file.Tests)),
	}
	for i, t := range file.Tests {
		if err := normalizeDescriptor(&t); err != nil {
			return nil, fmt.Errorf("registry.Load: tests[%d]: %w", i, err)
		}
		if _, dup := reg.index[t.ID]; dup {
			return nil, fmt.Errorf("registry.Load: duplicate test id %q", t.ID)
		}
		reg.index[t.ID] = len(reg.tests)
		reg.tests = append(reg.tests, t)
	}

	slog.Debug("test catalogue loaded", slog.Int("tests", len(reg.tests)))
	return reg, nil
}

func normalizeDescriptor(t *TestDescriptor) error {
	if t.ID == "" {
		return fmt.Errorf("id must not be empty")
	}
	if len(t.Params) == 0 {
		return fmt.Errorf("%s: params must not be empty", t.ID)
	}

	seen := make(map[string]bool, len(t.Params))
	for i := range t.Params {
		p := &t.Params[i]
		if p.Name == "" {
			return fmt.Errorf("%s: params[%d]: name must not be empty", t.ID, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%s: duplicate parameter %q", t.ID, p.Name)
		}
		seen[p.Name] = true

		switch p.Type {
		case TypeNumber, TypeInteger:
			if len(p.Enum) > 0 {
				return fmt.Errorf("%s.%s: enum is only allowed on string parameters", t.ID, p.Name)
			}
			if p.Default != nil {
				v, ok := toFloat(p.Default)
				if !ok {
					return fmt.Errorf("%s.%s: default %v is not numeric", t.ID, p.Name, p.Default)
				}
				if p.Type == TypeInteger && v != float64(int64(v)) {
					return fmt.Errorf("%s.%s: default %v is not a whole number", t.ID, p.Name, v)
				}
				p.Default = v
			}
		case TypeString:
			if len(p.Enum) == 0 {
				return fmt.Errorf("%s.%s: string parameters need an enum", t.ID, p.Name)
			}
			if p.Default != nil {
				s, ok := p.Default.(string)
				if !ok || !contains(p.Enum, s) {
					return fmt.Errorf("%s.%s: default %v is not one of %v", t.ID, p.Name, p.Default, p.Enum)
				}
			}
		default:
			return fmt.Errorf("%s.%s: unknown parameter type %q", t.ID, p.Name, p.Type)
		}

		p.Required = p.Default == nil
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// =============================================================================
// Default Registry
// =============================================================================

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the registry built from the embedded catalogue.
//
// The catalogue is parsed once per process; later calls return the same
// registry and error.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = Load(defaultCatalogueYAML)
	})
	return defaultReg, defaultErr
}

// MustDefault is Default for program initialization. It panics if the
// embedded catalogue is invalid.
func MustDefault() *Registry {
	reg, err := Default()
	if err != nil {
		panic(err)
	}
	return reg
}

// =============================================================================
// Accessors
// =============================================================================

// List returns every descriptor in catalogue order.
func (r *Registry) List() []TestDescriptor {
	out := make([]TestDescriptor, len(r.tests))
	for i, t := range r.tests {
		out[i] = t.clone()
	}
	return out
}

// IDs returns the test ids in catalogue order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.tests))
	for i, t := range r.tests {
		out[i] = t.ID
	}
	return out
}

// Len returns the number of tests.
func (r *Registry) Len() int {
	return len(r.tests)
}

// Has reports whether id is in the catalogue.
func (r *Registry) Has(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Describe returns the descriptor for id.
//
// Outputs:
//
//	TestDescriptor - A copy of the descriptor.
//	error - ErrUnknownTest wrapped with the id when it is not catalogued.
func (r *Registry) Describe(id string) (TestDescriptor, error) {
	i, ok := r.index[id]
	if !ok {
		return TestDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownTest, id)
	}
	return r.tests[i].clone(), nil
}
