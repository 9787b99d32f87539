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

// correlationPower is the two-sided power of the test of zero correlation,
// via Fisher's z with the small-sample bias term.
func correlationPower(n, r float64) float64 {
	t := tUpper(Alpha/2, n-2)
	rc := math.Sqrt(t * t / (t*t + n - 2))
	zr := math.Atanh(r) + r/(2*(n-1))
	zrc := math.Atanh(rc)
	scale := math.Sqrt(n - 3)
	return stdNormal.CDF((zr-zrc)*scale) + stdNormal.CDF((-zr-zrc)*scale)
}

// Correlation returns the total sample size for detecting correlation r.
func Correlation(p Params) (Result, error) {
	r, err := requireNonZero(p, "r")
	if err != nil {
		return Result{}, err
	}
	if r <= -1 || r >= 1 {
		return Result{}, fmt.Errorf("%w: r must be in (-1, 1), got %g", ErrInvalidInput, r)
	}
	power, err := requirePower(p)
	if err != nil {
		return Result{}, err
	}
	n, err := solveSampleSize(func(n float64) float64 {
		return correlationPower(n, math.Abs(r))
	}, power, 4, maxProportionN)
	if err != nil {
		return Result{}, err
	}
	return Single(n), nil
}
