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

// Tests built on the noncentral F and chi-square distributions.

const maxVarianceN = 1e6

func anovaPower(n, k, f float64) float64 {
	d1 := k - 1
	d2 := (n - 1) * k
	return noncentralFUpper(fUpper(Alpha, d1, d2), d1, d2, k*n*f*f)
}

func anovaN(p Params) (float64, error) {
	k, err := requireWholeAtLeast(p, "k", 2)
	if err != nil {
		return 0, err
	}
	f, err := requirePositive(p, "f")
	if err != nil {
		return 0, err
	}
	power, err := requirePower(p)
	if err != nil {
		return 0, err
	}
	return solveSampleSize(func(n float64) float64 {
		return anovaPower(n, k, f)
	}, power, 2, maxVarianceN)
}

// OneWayANOVA returns the per-group size for a balanced one-way ANOVA with
// k groups and Cohen's f.
func OneWayANOVA(p Params) (Result, error) {
	n, err := anovaN(p)
	if err != nil {
		return Result{}, err
	}
	return Single(n), nil
}

// KruskalWallis returns the ANOVA per-group size inflated by the Pitman ARE.
func KruskalWallis(p Params) (Result, error) {
	n, err := anovaN(p)
	if err != nil {
		return Result{}, err
	}
	return Single(n / pitmanARE), nil
}

func regressionPower(v, u, f2 float64) float64 {
	return noncentralFUpper(fUpper(Alpha, u, v), u, v, f2*(u+v+1))
}

func regressionN(p Params) (float64, error) {
	u, err := requirePositive(p, "u")
	if err != nil {
		return 0, err
	}
	f2, err := requirePositive(p, "f2")
	if err != nil {
		return 0, err
	}
	power, err := requirePower(p)
	if err != nil {
		return 0, err
	}
	v, err := solveSampleSize(func(v float64) float64 {
		return regressionPower(v, u, f2)
	}, power, 1, maxVarianceN)
	if err != nil {
		return 0, err
	}
	return u + v + 1, nil
}

// SimpleLinearRegression returns the total sample size u + v + 1 for the
// F test of u predictors (one unless overridden) with effect f2.
func SimpleLinearRegression(p Params) (Result, error) {
	n, err := regressionN(p)
	if err != nil {
		return Result{}, err
	}
	return Single(n), nil
}

// MultipleLinearRegression returns the total sample size u + v + 1 for the
// F test of u predictors with effect f2.
func MultipleLinearRegression(p Params) (Result, error) {
	n, err := regressionN(p)
	if err != nil {
		return Result{}, err
	}
	return Single(n), nil
}

func chiSquaredPower(n, w, df float64) float64 {
	return noncentralChiSquaredUpper(chiSquaredUpper(Alpha, df), df, n*w*w)
}

// ChiSquared returns the total sample size for a chi-square test with
// Cohen's w on df degrees of freedom.
func ChiSquared(p Params) (Result, error) {
	w, err := requirePositive(p, "w")
	if err != nil {
		return Result{}, err
	}
	df, err := requireWholeAtLeast(p, "df", 1)
	if err != nil {
		return Result{}, err
	}
	power, err := requirePower(p)
	if err != nil {
		return Result{}, err
	}
	n, err := solveSampleSize(func(n float64) float64 {
		return chiSquaredPower(n, w, df)
	}, power, 1, maxVarianceN)
	if err != nil {
		return Result{}, err
	}
	return Single(n), nil
}
