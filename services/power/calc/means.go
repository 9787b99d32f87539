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
	"math"
)

// pitmanARE is the asymptotic relative efficiency of the rank tests
// against their t and F counterparts under normality.
const pitmanARE = 3 / math.Pi

const maxMeansN = 1e7

type tDesign int

const (
	oneSample tDesign = iota
	twoSample
)

// tTestPower returns the power of a t test with n observations (per group
// for twoSample) and standardized effect d.
func tTestPower(n, d float64, design tDesign, alt Alternative) float64 {
	var nu, ncp float64
	switch design {
	case twoSample:
		nu = 2 * (n - 1)
		ncp = d * math.Sqrt(n/2)
	default:
		nu = n - 1
		ncp = d * math.Sqrt(n)
	}

	switch alt {
	case Greater:
		return noncentralTUpper(tUpper(Alpha, nu), nu, ncp)
	case Less:
		return noncentralTLower(-tUpper(Alpha, nu), nu, ncp)
	default:
		q := tUpper(Alpha/2, nu)
		ncp = math.Abs(ncp)
		return noncentralTUpper(q, nu, ncp) + noncentralTLower(-q, nu, ncp)
	}
}

func solveT(d, power float64, design tDesign, alt Alternative) (float64, error) {
	return solveSampleSize(func(n float64) float64 {
		return tTestPower(n, d, design, alt)
	}, power, 2, maxMeansN)
}

func oneSampleT(p Params) (float64, error) {
	d, err := requireNonZero(p, "d")
	if err != nil {
		return 0, err
	}
	power, err := requirePower(p)
	if err != nil {
		return 0, err
	}
	alt, err := p.Alternative()
	if err != nil {
		return 0, err
	}
	return solveT(d, power, oneSample, alt)
}

func twoSampleD(p Params) (float64, error) {
	d, err := requireNonZero(p, "d")
	if err != nil {
		return 0, err
	}
	power, err := requirePower(p)
	if err != nil {
		return 0, err
	}
	alt, err := p.Alternative()
	if err != nil {
		return 0, err
	}
	return solveT(d, power, twoSample, alt)
}

// TwoSampleT returns the per-group size for a two-sided two-sample t test
// on a raw difference delta with common standard deviation sd.
func TwoSampleT(p Params) (Result, error) {
	delta, err := requireNonZero(p, "delta")
	if err != nil {
		return Result{}, err
	}
	sd, err := requirePositive(p, "sd")
	if err != nil {
		return Result{}, err
	}
	power, err := requirePower(p)
	if err != nil {
		return Result{}, err
	}
	n, err := solveT(delta/sd, power, twoSample, TwoSided)
	if err != nil {
		return Result{}, err
	}
	return Single(n), nil
}

// PairedT returns the number of pairs for a paired t test on effect d.
func PairedT(p Params) (Result, error) {
	n, err := oneSampleT(p)
	if err != nil {
		return Result{}, err
	}
	return Single(n), nil
}

// OneMeanT returns the sample size for a one-sample t test on effect d.
func OneMeanT(p Params) (Result, error) {
	n, err := oneSampleT(p)
	if err != nil {
		return Result{}, err
	}
	return Single(n), nil
}

// OneMeanWilcoxon returns the one-sample t size inflated by the Pitman ARE.
func OneMeanWilcoxon(p Params) (Result, error) {
	n, err := oneSampleT(p)
	if err != nil {
		return Result{}, err
	}
	return Single(n / pitmanARE), nil
}

// PairedWilcoxon returns the paired t size inflated by the Pitman ARE.
func PairedWilcoxon(p Params) (Result, error) {
	n, err := oneSampleT(p)
	if err != nil {
		return Result{}, err
	}
	return Single(n / pitmanARE), nil
}

// MannWhitney returns the per-group two-sample t size on Cohen's d,
// inflated by the Pitman ARE.
func MannWhitney(p Params) (Result, error) {
	n, err := twoSampleD(p)
	if err != nil {
		return Result{}, err
	}
	return Single(n / pitmanARE), nil
}
