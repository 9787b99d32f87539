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

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

var (
	calculationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "powerfoss",
			Subsystem: "calc",
			Name:      "duration_seconds",
			Help:      "Duration of sample size calculations in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"test_id"},
	)

	calculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "powerfoss",
			Subsystem: "calc",
			Name:      "total",
			Help:      "Total calculations by test and outcome.",
		},
		[]string{"test_id", "outcome"},
	)

	// cacheLookupsTotal labels: result = "hit", "miss", "error".
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "powerfoss",
			Subsystem: "calc",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result.",
		},
		[]string{"result"},
	)
)

func recordCalculation(testID, outcome string, duration time.Duration) {
	calculationsTotal.WithLabelValues(testID, outcome).Inc()
	if duration > 0 {
		calculationDuration.WithLabelValues(testID).Observe(duration.Seconds())
	}
}

func recordCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}
