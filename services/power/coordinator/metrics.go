// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "powerfoss",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "End-to-end query pipeline duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"state"},
	)

	// pipelineRuns labels: state = "Done", "AIDisabled", or the state that failed.
	pipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "powerfoss",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Query pipeline runs by terminal or failing state.",
		},
		[]string{"state"},
	)
)

func recordRun(state State, duration time.Duration) {
	pipelineRuns.WithLabelValues(string(state)).Inc()
	pipelineDuration.WithLabelValues(string(state)).Observe(duration.Seconds())
}
