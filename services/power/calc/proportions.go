// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package calc

import (
	"fmt"
	"math"
)

const maxProportionN = 1e7

// cohenH is the arcsine-transformed difference between two proportions.
func cohenH(p1, p2 float64) float64 {
	return 2*math.Asin(math.Sqrt(p1)) - 2*math.Asin(math.Sqrt(p2))
}

// normalPower returns the power of a z test whose statistic has mean shift.
func normalPower(shift float64, alt Alternative) float64 {
	switch alt {
	case Greater:
		return stdNormal.Survival(zUpper(Alpha) - shift)
	case Less:
		return stdNormal.CDF(-zUpper(Alpha) - shift)
	default:
		z := zUpper(Alpha / 2)
		return stdNormal.Survival(z-shift) + stdNormal.CDF(-z-shift)
	}
}

func proportionsInput(p Params, a, b string) (pa, pb, power float64, alt Alternative, err error) {
	if pa, err = requireOpenUnit(p, a); err != nil {
		return
	}
	if pb, err = requireOpenUnit(p, b); err != nil {
		return
	}
	if pa == pb {
		err = fmt.Errorf("%w: %s and %s must differ", ErrInvalidInput, a, b)
		return
	}
	if power, err = requirePower(p); err != nil {
		return
	}
	alt, err = p.Alternative()
	return
}

// TwoProportions returns the per-group size for comparing p1 and p2 with
// Cohen's h and the normal approximation.
func TwoProportions(p Params) (Result, error) {
	p1, p2, power, alt, err := proportionsInput(p, "p1", "p2")
	if err != nil {
		return Result{}, err
	}
	h := cohenH(p1, p2)
	n, err := solveSampleSize(func(n float64) float64 {
		return normalPower(h*math.Sqrt(n/2), alt)
	}, power, 2, maxProportionN)
	if err != nil {
		return Result{}, err
	}
	return Single(n), nil
}

// SingleProportion returns the sample size for testing an alternative
// proportion p1 against the null p0.
func SingleProportion(p Params) (Result, error) {
	p0, p1, power, alt, err := proportionsInput(p, "p0", "p1")
	if err != nil {
		return Result{}, err
	}
	h := cohenH(p1, p0)
	n, err := solveSampleSize(func(n float64) float64 {
		return normalPower(h*math.Sqrt(n), alt)
	}, power, 2, maxProportionN)
	if err != nil {
		return Result{}, err
	}
	return Single(n), nil
}
