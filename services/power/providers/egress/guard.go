// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package egress gates outbound language-model traffic: per-provider rate
// limits, sealed credentials, and an admission record per call.
package egress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// ErrRateLimited is matched by RateLimitedError.
var ErrRateLimited = errors.New("egress rate limit exceeded")

// RateLimitedError reports a denied call and when to retry.
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("egress: provider %q rate limited, retry after %s", e.Provider, e.RetryAfter.Round(time.Millisecond))
}

// Is lets errors.Is match ErrRateLimited.
func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// Decision records one admission check.
type Decision struct {
	RequestID string
	Provider  string
	Purpose   string
	Allowed   bool
	At        time.Time
}

// Guard admits or rejects outbound calls.
//
// Thread Safety: Safe for concurrent use.
type Guard struct {
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewGuard creates a Guard. A nil limiter admits everything.
func NewGuard(limiter *RateLimiter, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{limiter: limiter, logger: logger}
}

// Admit checks the rate limit for provider and returns the decision. The
// decision carries a fresh request id either way so logs from a rejected
// call can still be correlated.
//
// Inputs:
//   - ctx: Context for tracing.
//   - provider: Provider name ("openai", "anthropic").
//   - purpose: Free-form label for logs and metrics ("extract", "explain").
//
// Outputs:
//   - Decision: The admission record.
//   - error: *RateLimitedError when denied.
func (g *Guard) Admit(ctx context.Context, provider, purpose string) (Decision, error) {
	_, span := otel.Tracer("powerfoss.egress").Start(ctx, "egress.Guard.Admit",
		oteltrace.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("purpose", purpose),
		),
	)
	defer span.End()

	d := Decision{
		RequestID: uuid.NewString(),
		Provider:  provider,
		Purpose:   purpose,
		At:        time.Now().UTC(),
	}

	allowed, retryAfter := g.limiter.Allow(provider)
	if !allowed {
		recordEgressBlocked(provider, purpose)
		err := &RateLimitedError{Provider: provider, RetryAfter: retryAfter}
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn("egress call rejected",
			slog.String("request_id", d.RequestID),
			slog.String("provider", provider),
			slog.String("purpose", purpose),
			slog.Duration("retry_after", retryAfter),
		)
		return d, err
	}

	d.Allowed = true
	recordEgressAllowed(provider, purpose)
	g.logger.Debug("egress call admitted",
		slog.String("request_id", d.RequestID),
		slog.String("provider", provider),
		slog.String("purpose", purpose),
	)
	return d, nil
}
