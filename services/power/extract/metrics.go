// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess     = "success"
	outcomeParseError  = "parse_error"
	outcomeError       = "error"
	outcomeUnavailable = "unavailable"
)

var (
	extractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "powerfoss",
			Subsystem: "extract",
			Name:      "duration_seconds",
			Help:      "Duration of parameter extraction calls in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	extractionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "powerfoss",
			Subsystem: "extract",
			Name:      "total",
			Help:      "Total parameter extractions by outcome.",
		},
		[]string{"outcome"},
	)
)

func recordExtraction(outcome string, duration time.Duration) {
	extractionTotal.WithLabelValues(outcome).Inc()
	if outcome != outcomeUnavailable {
		extractionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}
