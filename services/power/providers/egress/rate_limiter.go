// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package egress

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter limits outbound model calls per provider with a token bucket.
//
// Description:
//
//	Each provider gets a rate.Limiter refilled at perMinute/60 tokens per
//	second with the configured burst. Allow never blocks: when the bucket is
//	empty the reservation is cancelled and the wait is reported back so the
//	caller can surface a retry hint instead of stalling a request goroutine.
//
// Thread Safety: Safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

// NewRateLimiter creates a rate limiter with per-provider limits.
//
// Inputs:
//   - limitsPerMin: Requests per minute per provider. Providers not in the
//     map, or mapped to zero, are not limited.
//   - burst: Bucket size. Values below 1 are treated as 1.
//
// Outputs:
//   - *RateLimiter: Configured rate limiter.
func NewRateLimiter(limitsPerMin map[string]int, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	limiters := make(map[string]*rate.Limiter, len(limitsPerMin))
	for provider, perMin := range limitsPerMin {
		if perMin <= 0 {
			continue
		}
		limiters[provider] = rate.NewLimiter(rate.Limit(float64(perMin)/60.0), burst)
	}
	return &RateLimiter{limiters: limiters, now: time.Now}
}

// Allow checks whether a request to the given provider may proceed now.
//
// Outputs:
//   - bool: True if the request is allowed and a token was consumed.
//   - time.Duration: When denied, how long until a token is available.
func (r *RateLimiter) Allow(provider string) (bool, time.Duration) {
	if r == nil {
		return true, 0
	}
	r.mu.Lock()
	lim, ok := r.limiters[provider]
	r.mu.Unlock()
	if !ok {
		return true, 0
	}

	now := r.now()
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}
