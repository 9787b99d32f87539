// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package calc implements the sample-size calculations behind each test.
//
// Every function solves for the sample size that reaches the requested
// power at a fixed significance level of 0.05. Power functions follow the
// conventions of R's pwr package; the survival designs use the closed forms
// of Freedman (log-rank) and Hsieh-Lavori (Cox PH).
//
// Functions are pure and safe for concurrent use.
package calc

import (
	"errors"
	"fmt"
	"math"
)

// Alpha is the significance level used by every calculation.
const Alpha = 0.05

var (
	// ErrInvalidInput is returned for parameters outside a test's domain.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotAttainable is returned when no sample size in the search range
	// reaches the requested power.
	ErrNotAttainable = errors.New("requested power not attainable")

	// ErrNotRegistered is returned by callers that look up a test id with
	// no calculation.
	ErrNotRegistered = errors.New("no calculation registered")
)

// Alternative is the alternative hypothesis of a test.
type Alternative string

const (
	TwoSided Alternative = "two.sided"
	Greater  Alternative = "greater"
	Less     Alternative = "less"
)

// Params carries validated parameters by name. Numeric values are float64,
// enumerations are strings.
type Params map[string]any

// Number returns the named numeric parameter.
func (p Params) Number(name string) (float64, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: missing parameter %q", ErrInvalidInput, name)
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, fmt.Errorf("%w: parameter %q is %T, want number", ErrInvalidInput, name, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: parameter %q is not finite", ErrInvalidInput, name)
	}
	return f, nil
}

// Alternative returns the "alternative" parameter, two.sided when absent.
func (p Params) Alternative() (Alternative, error) {
	v, ok := p["alternative"]
	if !ok || v == nil {
		return TwoSided, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: alternative is %T, want string", ErrInvalidInput, v)
	}
	switch alt := Alternative(s); alt {
	case TwoSided, Greater, Less:
		return alt, nil
	default:
		return "", fmt.Errorf("%w: alternative %q", ErrInvalidInput, s)
	}
}

// Result is a calculated sample size: one value, or an ordered pair for
// two-arm designs.
type Result struct {
	Values []float64
}

// Single wraps one sample size.
func Single(n float64) Result { return Result{Values: []float64{n}} }

// Pair wraps two group sizes.
func Pair(a, b float64) Result { return Result{Values: []float64{a, b}} }

// Func computes a sample size from named parameters.
type Func func(Params) (Result, error)

func requirePower(p Params) (float64, error) {
	power, err := p.Number("power")
	if err != nil {
		return 0, err
	}
	if power <= 0 || power >= 1 {
		return 0, fmt.Errorf("%w: power must be in (0, 1), got %g", ErrInvalidInput, power)
	}
	return power, nil
}

func requirePositive(p Params, name string) (float64, error) {
	v, err := p.Number(name)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %g", ErrInvalidInput, name, v)
	}
	return v, nil
}

func requireNonZero(p Params, name string) (float64, error) {
	v, err := p.Number(name)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: %s must not be zero", ErrInvalidInput, name)
	}
	return v, nil
}

// requireOpenUnit checks 0 < v < 1.
func requireOpenUnit(p Params, name string) (float64, error) {
	v, err := p.Number(name)
	if err != nil {
		return 0, err
	}
	if v <= 0 || v >= 1 {
		return 0, fmt.Errorf("%w: %s must be in (0, 1), got %g", ErrInvalidInput, name, v)
	}
	return v, nil
}

func requireWholeAtLeast(p Params, name string, min float64) (float64, error) {
	v, err := p.Number(name)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) || v < min {
		return 0, fmt.Errorf("%w: %s must be a whole number >= %g, got %g", ErrInvalidInput, name, min, v)
	}
	return v, nil
}
