// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import "github.com/AleutianAI/PowerFOSS/services/power/calc"

// DefaultTable returns a fresh copy of the registration table. Its keys
// must match the catalogue ids exactly.
func DefaultTable() map[string]CalculateFunc {
	return map[string]CalculateFunc{
		"two_sample_t_test":          calc.TwoSampleT,
		"paired_T_test":              calc.PairedT,
		"one_mean_T_test":            calc.OneMeanT,
		"one_way_ANOVA":              calc.OneWayANOVA,
		"log_rank_test":              calc.LogRank,
		"chi_squared_test":           calc.ChiSquared,
		"two_proportions_test":       calc.TwoProportions,
		"single_proportion_test":     calc.SingleProportion,
		"cox_ph":                     calc.CoxPH,
		"correlation":                calc.Correlation,
		"kruskal-wallace":            calc.KruskalWallis,
		"simple_linear_regression":   calc.SimpleLinearRegression,
		"multiple_linear_regression": calc.MultipleLinearRegression,
		"one_mean_wilcoxon":          calc.OneMeanWilcoxon,
		"mann_whitney_test":          calc.MannWhitney,
		"paired_wilcoxon_test":       calc.PairedWilcoxon,
	}
}
