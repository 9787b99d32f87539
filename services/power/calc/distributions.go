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

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

// Noncentral distributions are not in distuv. The t is integrated over the
// distribution of its scale; F and chi-square are Poisson mixtures of their
// central counterparts.

const (
	// scaleTail is the probability mass dropped from each end of the
	// chi-square scale distribution when integrating the noncentral t.
	scaleTail = 1e-12

	// quadPoints is the Gauss-Legendre order for the noncentral t.
	quadPoints = 256

	// mixtureSpread is how many standard deviations of the Poisson weights
	// are summed on each side of the mode.
	mixtureSpread = 12
)

var stdNormal = distuv.UnitNormal

// zUpper returns the standard normal quantile with upper tail p.
func zUpper(p float64) float64 {
	return stdNormal.Quantile(1 - p)
}

// tUpper returns the Student t quantile with upper tail p on nu degrees of
// freedom.
func tUpper(p, nu float64) float64 {
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: nu}.Quantile(1 - p)
}

// fUpper returns the F quantile with upper tail p.
func fUpper(p, d1, d2 float64) float64 {
	y := mathext.InvRegIncBeta(d1/2, d2/2, 1-p)
	if y >= 1 {
		return math.Inf(1)
	}
	return d2 * y / (d1 * (1 - y))
}

// chiSquaredUpper returns the chi-square quantile with upper tail p.
func chiSquaredUpper(p, df float64) float64 {
	return distuv.ChiSquared{K: df}.Quantile(1 - p)
}

// overScale integrates g(s) against the density of s = sqrt(V/nu), V ~ chi2(nu).
func overScale(nu float64, g func(s float64) float64) float64 {
	chi := distuv.ChiSquared{K: nu}
	lo := math.Sqrt(chi.Quantile(scaleTail) / nu)
	hi := math.Sqrt(chi.Quantile(1-scaleTail) / nu)
	f := func(s float64) float64 {
		return g(s) * chi.Prob(nu*s*s) * 2 * nu * s
	}
	return quad.Fixed(f, lo, hi, quadPoints, nil, 0)
}

// noncentralTUpper returns P(T > c) for T noncentral t(nu, ncp).
func noncentralTUpper(c, nu, ncp float64) float64 {
	return clampProb(overScale(nu, func(s float64) float64 {
		return stdNormal.CDF(ncp - c*s)
	}))
}

// noncentralTLower returns P(T < c) for T noncentral t(nu, ncp).
func noncentralTLower(c, nu, ncp float64) float64 {
	return clampProb(overScale(nu, func(s float64) float64 {
		return stdNormal.CDF(c*s - ncp)
	}))
}

// poissonMixture returns sum_j Pois(j; mean) term(j), summing only where
// the weights are numerically relevant.
func poissonMixture(mean float64, term func(j int) float64) float64 {
	if mean <= 0 {
		return term(0)
	}
	mode := int(math.Floor(mean))
	spread := int(mixtureSpread*math.Sqrt(mean)) + 50
	lo := mode - spread
	if lo < 0 {
		lo = 0
	}
	hi := mode + spread

	logMean := math.Log(mean)
	var sum float64
	for j := lo; j <= hi; j++ {
		lg, _ := math.Lgamma(float64(j) + 1)
		w := math.Exp(-mean + float64(j)*logMean - lg)
		if w == 0 {
			continue
		}
		sum += w * term(j)
	}
	return sum
}

// noncentralFUpper returns P(F > x) for F noncentral F(d1, d2, lambda).
func noncentralFUpper(x, d1, d2, lambda float64) float64 {
	if math.IsInf(x, 1) {
		return 0
	}
	y := d1 * x / (d1*x + d2)
	return clampProb(poissonMixture(lambda/2, func(j int) float64 {
		return 1 - mathext.RegIncBeta(d1/2+float64(j), d2/2, y)
	}))
}

// noncentralChiSquaredUpper returns P(X > x) for X noncentral chi2(df, lambda).
func noncentralChiSquaredUpper(x, df, lambda float64) float64 {
	return clampProb(poissonMixture(lambda/2, func(j int) float64 {
		return distuv.ChiSquared{K: df + 2*float64(j)}.Survival(x)
	}))
}

func clampProb(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return p
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
