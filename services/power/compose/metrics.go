// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess    = "success"
	outcomeParseError = "parse_error"
	outcomeError      = "error"
	outcomeSkipped    = "skipped"
)

var (
	explanationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "powerfoss",
			Subsystem: "compose",
			Name:      "duration_seconds",
			Help:      "Duration of explanation calls in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	explanationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "powerfoss",
			Subsystem: "compose",
			Name:      "total",
			Help:      "Total explanations by outcome.",
		},
		[]string{"outcome"},
	)

	// ExplanationFailures counts explanations replaced by the fallback
	// after a model call was attempted.
	ExplanationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "powerfoss",
			Subsystem: "compose",
			Name:      "explanation_failures_total",
			Help:      "Explanations that fell back to the template after a model failure.",
		},
	)
)

func recordExplanation(outcome string, duration time.Duration) {
	explanationTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		explanationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}
