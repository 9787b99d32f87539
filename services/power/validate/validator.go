// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate checks extracted parameters against the test catalogue.
//
// Validation is strict: the test must exist, every required parameter must
// be present, no undeclared parameter is accepted, and every value must
// have its declared type. Defaults are filled for optional parameters.
// Plausibility (power in (0, 1) and so on) is left to the calculations.
//
// Checks run in a fixed order so the reported error is deterministic:
// unknown test, then the first missing parameter in declared order, then
// unknown parameters in sorted order, then type errors in declared order.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/PowerFOSS/services/power/extract"
	"github.com/AleutianAI/PowerFOSS/services/power/registry"
	"github.com/go-playground/validator/v10"
)

// ValidatedRequest is a test id with a complete, typed parameter set.
//
// Every declared parameter is present; numeric values are float64 and
// enumerations are string.
type ValidatedRequest struct {
	TestID string         `json:"test_id"`
	Params map[string]any `json:"params"`
}

// Validator validates against one registry.
//
// Thread Safety: Safe for concurrent use.
type Validator struct {
	reg   *registry.Registry
	check *validator.Validate
}

// New creates a Validator over reg.
//
// Outputs:
//
//	*Validator - Ready for concurrent use.
//	error - Non-nil if a custom check cannot be registered.
func New(reg *registry.Registry) (*Validator, error) {
	check := validator.New()
	if err := check.RegisterValidation("finite", validateFinite); err != nil {
		return nil, fmt.Errorf("registering finite check: %w", err)
	}
	return &Validator{reg: reg, check: check}, nil
}

func validateFinite(fl validator.FieldLevel) bool {
	f := fl.Field().Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Validate checks result against reg. It is shorthand for New(reg).Validate.
func Validate(result extract.ExtractionResult, reg *registry.Registry) (ValidatedRequest, error) {
	v, err := New(reg)
	if err != nil {
		return ValidatedRequest{}, err
	}
	return v.Validate(result)
}

// Validate checks an extraction result.
func (v *Validator) Validate(result extract.ExtractionResult) (ValidatedRequest, error) {
	return v.ValidateParams(result.TestID, result.Params)
}

// ValidateParams checks raw parameters for testID.
//
// Inputs:
//
//	testID - Catalogue id.
//	params - Raw values. Nil is treated as empty; a nil value counts as
//	         absent.
//
// Outputs:
//
//	ValidatedRequest - The typed request with defaults applied.
//	error - *UnknownTestError, *MissingParameterError,
//	        *UnknownParameterError or *InvalidParameterError.
func (v *Validator) ValidateParams(testID string, params map[string]any) (ValidatedRequest, error) {
	desc, err := v.reg.Describe(testID)
	if err != nil {
		return ValidatedRequest{}, &UnknownTestError{TestID: testID}
	}

	for _, spec := range desc.Params {
		if spec.Required && absent(params, spec.Name) {
			return ValidatedRequest{}, &MissingParameterError{TestID: testID, Param: spec.Name}
		}
	}

	var unknown []string
	for name := range params {
		if _, ok := desc.Param(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return ValidatedRequest{}, &UnknownParameterError{TestID: testID, Param: unknown[0], All: unknown}
	}

	out := make(map[string]any, len(desc.Params))
	for _, spec := range desc.Params {
		if absent(params, spec.Name) {
			out[spec.Name] = spec.Default
			continue
		}
		value, reason := v.coerce(spec, params[spec.Name])
		if reason != "" {
			return ValidatedRequest{}, &InvalidParameterError{TestID: testID, Param: spec.Name, Reason: reason}
		}
		out[spec.Name] = value
	}

	return ValidatedRequest{TestID: testID, Params: out}, nil
}

func absent(params map[string]any, name string) bool {
	value, ok := params[name]
	return !ok || value == nil
}

// coerce converts raw to the declared type. A non-empty reason reports
// why it could not.
func (v *Validator) coerce(spec registry.ParamSpec, raw any) (any, string) {
	switch spec.Type {
	case registry.TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Sprintf("expected one of %v, got %T", spec.Enum, raw)
		}
		s = strings.TrimSpace(s)
		if err := v.check.Var(s, "oneof="+strings.Join(spec.Enum, " ")); err != nil {
			return nil, fmt.Sprintf("%q is not one of %v", s, spec.Enum)
		}
		return s, ""

	case registry.TypeNumber, registry.TypeInteger:
		f, ok := toNumber(raw)
		if !ok {
			return nil, fmt.Sprintf("expected a number, got %v", raw)
		}
		if err := v.check.Var(f, "finite"); err != nil {
			return nil, "value is not finite"
		}
		if spec.Type == registry.TypeInteger && f != math.Trunc(f) {
			return nil, fmt.Sprintf("expected a whole number, got %g", f)
		}
		return f, ""

	default:
		return nil, fmt.Sprintf("unsupported parameter type %q", spec.Type)
	}
}

// toNumber accepts JSON numbers, Go numeric types and numeric strings.
func toNumber(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
