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

// LogRank returns the experimental and control group sizes for a log-rank
// test by Freedman's method. Both sizes are rounded up.
//
// k is the allocation ratio, pE and pC the event probabilities in each
// arm, RR the postulated hazard ratio.
func LogRank(p Params) (Result, error) {
	power, err := requirePower(p)
	if err != nil {
		return Result{}, err
	}
	k, err := requirePositive(p, "k")
	if err != nil {
		return Result{}, err
	}
	pE, err := eventRate(p, "pE")
	if err != nil {
		return Result{}, err
	}
	pC, err := eventRate(p, "pC")
	if err != nil {
		return Result{}, err
	}
	rr, err := requirePositive(p, "RR")
	if err != nil {
		return Result{}, err
	}
	if rr == 1 {
		return Result{}, fmt.Errorf("%w: RR must differ from 1", ErrInvalidInput)
	}

	z := zUpper(Alpha/2) + stdNormal.Quantile(power)
	ratio := (k*rr + 1) / (rr - 1)
	events := ratio * ratio * z * z / k
	nE := math.Ceil(events / (k*pE + pC))
	nC := math.Ceil(k * nE)
	return Pair(nE, nC), nil
}

// CoxPH returns the total sample size for a Cox proportional hazards
// model on a binary covariate (Hsieh and Lavori), rounded up.
//
// theta is the hazard ratio, p the proportion with the covariate and psi
// the proportion experiencing the event.
func CoxPH(p Params) (Result, error) {
	power, err := requirePower(p)
	if err != nil {
		return Result{}, err
	}
	theta, err := requirePositive(p, "theta")
	if err != nil {
		return Result{}, err
	}
	if theta == 1 {
		return Result{}, fmt.Errorf("%w: theta must differ from 1", ErrInvalidInput)
	}
	share, err := requireOpenUnit(p, "p")
	if err != nil {
		return Result{}, err
	}
	psi, err := eventRate(p, "psi")
	if err != nil {
		return Result{}, err
	}

	z := zUpper(Alpha/2) + stdNormal.Quantile(power)
	logTheta := math.Log(theta)
	n := z * z / (share * (1 - share) * psi * logTheta * logTheta)
	return Single(math.Ceil(n)), nil
}

// eventRate checks 0 < v <= 1.
func eventRate(p Params, name string) (float64, error) {
	v, err := p.Number(name)
	if err != nil {
		return 0, err
	}
	if v <= 0 || v > 1 {
		return 0, fmt.Errorf("%w: %s must be in (0, 1], got %g", ErrInvalidInput, name, v)
	}
	return v, nil
}
