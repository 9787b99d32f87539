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

const (
	solverTolerance     = 1e-7
	solverMaxIterations = 200
)

// solveSampleSize finds the n in [lo, hi] where powerAt(n) reaches target.
//
// powerAt must be non-decreasing in n. When powerAt(lo) already meets the
// target, lo is returned. When powerAt(hi) falls short, ErrNotAttainable is
// returned.
func solveSampleSize(powerAt func(n float64) float64, target, lo, hi float64) (float64, error) {
	fLo := powerAt(lo) - target
	if math.IsNaN(fLo) {
		return 0, fmt.Errorf("%w: power undefined at n=%g", ErrNotAttainable, lo)
	}
	if fLo >= 0 {
		return lo, nil
	}
	fHi := powerAt(hi) - target
	if math.IsNaN(fHi) || fHi < 0 {
		return 0, fmt.Errorf("%w: power %.4f at n=%g", ErrNotAttainable, fHi+target, hi)
	}

	for i := 0; i < solverMaxIterations; i++ {
		mid := lo + (hi-lo)/2
		if hi-lo <= solverTolerance*math.Max(1, mid) {
			return mid, nil
		}
		fMid := powerAt(mid) - target
		if math.IsNaN(fMid) {
			return 0, fmt.Errorf("%w: power undefined at n=%g", ErrNotAttainable, mid)
		}
		if fMid < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo + (hi-lo)/2, nil
}
