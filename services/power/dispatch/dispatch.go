// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch routes a validated request to its calculation.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/AleutianAI/PowerFOSS/services/power/calc"
	"github.com/AleutianAI/PowerFOSS/services/power/validate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("powerfoss.dispatch")

// ErrCalculation is matched by every *CalculationError.
var ErrCalculation = errors.New("calculation failed")

// CalculateFunc computes a sample size from validated parameters.
type CalculateFunc = calc.Func

// CalculationError wraps a calculation failure with its test id.
type CalculationError struct {
	TestID string
	Err    error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("calculation %s failed: %v", e.TestID, e.Err)
}

// Unwrap returns the cause. errors.Is also matches ErrCalculation.
func (e *CalculationError) Unwrap() error { return e.Err }

// Is matches ErrCalculation.
func (e *CalculationError) Is(target error) bool { return target == ErrCalculation }

// CalculationResult is a sample size or an ordered pair of group sizes.
type CalculationResult struct {
	Values []float64
}

// IsPair reports whether the result holds two group sizes.
func (r CalculationResult) IsPair() bool { return len(r.Values) == 2 }

// Single returns the only value. It is zero for a pair.
func (r CalculationResult) Single() float64 {
	if len(r.Values) != 1 {
		return 0
	}
	return r.Values[0]
}

// Pair returns both values of a pair.
func (r CalculationResult) Pair() (float64, float64) {
	if len(r.Values) != 2 {
		return 0, 0
	}
	return r.Values[0], r.Values[1]
}

// String renders the result the way explanations quote it.
func (r CalculationResult) String() string {
	if r.IsPair() {
		return fmt.Sprintf("[%g, %g]", r.Values[0], r.Values[1])
	}
	return fmt.Sprintf("%g", r.Single())
}

// MarshalJSON renders a number for one value and an array for a pair.
func (r CalculationResult) MarshalJSON() ([]byte, error) {
	if len(r.Values) == 1 {
		return json.Marshal(r.Values[0])
	}
	return json.Marshal(r.Values)
}

// UnmarshalJSON accepts a number or an array of numbers.
func (r *CalculationResult) UnmarshalJSON(data []byte) error {
	var single float64
	if err := json.Unmarshal(data, &single); err == nil {
		r.Values = []float64{single}
		return nil
	}
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("result must be a number or an array of numbers: %w", err)
	}
	r.Values = values
	return nil
}

// Options configures a Dispatcher.
type Options struct {
	// Table maps test ids to calculations. Nil uses DefaultTable().
	Table map[string]CalculateFunc

	// Cache stores results across requests. Nil disables caching.
	Cache ResultCache

	// Logger. Nil uses slog.Default().
	Logger *slog.Logger
}

// Dispatcher runs calculations by test id.
//
// Description:
//
//	Identical concurrent requests share one calculation through
//	singleflight. With a cache configured, repeated requests are answered
//	from it; cache failures are logged and the calculation runs as if no
//	cache were present. No failure is retried.
//
// Thread Safety: Safe for concurrent use.
type Dispatcher struct {
	table  map[string]CalculateFunc
	cache  ResultCache
	group  singleflight.Group
	logger *slog.Logger
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	table := opts.Table
	if table == nil {
		table = DefaultTable()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		table:  table,
		cache:  opts.Cache,
		logger: logger.With(slog.String("component", "dispatcher")),
	}
}

// Registered returns the test ids with a calculation, sorted.
func (d *Dispatcher) Registered() []string {
	ids := make([]string, 0, len(d.table))
	for id := range d.table {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dispatch computes the result for req.
//
// Outputs:
//
//	CalculationResult - One value, or two for paired designs.
//	error - *CalculationError for every failure, including an id with no
//	        registered calculation.
func (d *Dispatcher) Dispatch(ctx context.Context, req validate.ValidatedRequest) (CalculationResult, error) {
	ctx, span := tracer.Start(ctx, "dispatch.Dispatcher.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("test_id", req.TestID))

	fn, ok := d.table[req.TestID]
	if !ok {
		err := &CalculationError{TestID: req.TestID, Err: fmt.Errorf("%w: %q", calc.ErrNotRegistered, req.TestID)}
		span.SetStatus(codes.Error, "not registered")
		recordCalculation(req.TestID, outcomeError, 0)
		return CalculationResult{}, err
	}

	key := cacheKey(req)
	if d.cache != nil {
		cached, hit, err := d.cache.Load(ctx, key)
		switch {
		case err != nil:
			recordCacheLookup("error")
			d.logger.Warn("result cache load failed", slog.String("test_id", req.TestID), slog.String("error", err.Error()))
		case hit:
			recordCacheLookup("hit")
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		default:
			recordCacheLookup("miss")
		}
	}

	// The caller that runs the calculation saves it; joined callers only read.
	v, err, shared := d.group.Do(key, func() (any, error) {
		result, err := d.compute(req, fn)
		if err != nil {
			return nil, err
		}
		d.save(ctx, key, req.TestID, result)
		return result, nil
	})
	span.SetAttributes(attribute.Bool("shared", shared))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "calculation failed")
		return CalculationResult{}, err
	}
	return v.(CalculationResult), nil
}

func (d *Dispatcher) save(ctx context.Context, key, testID string, result CalculationResult) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Save(ctx, key, result); err != nil {
		d.logger.Warn("result cache save failed", slog.String("test_id", testID), slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) compute(req validate.ValidatedRequest, fn CalculateFunc) (result CalculationResult, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &CalculationError{TestID: req.TestID, Err: fmt.Errorf("calculation panicked: %v", r)}
		}
		outcome := outcomeSuccess
		if err != nil {
			outcome = outcomeError
		}
		recordCalculation(req.TestID, outcome, time.Since(start))
	}()

	res, err := fn(calc.Params(req.Params))
	if err != nil {
		return CalculationResult{}, &CalculationError{TestID: req.TestID, Err: err}
	}
	if n := len(res.Values); n != 1 && n != 2 {
		return CalculationResult{}, &CalculationError{TestID: req.TestID, Err: fmt.Errorf("calculation returned %d values", n)}
	}
	for _, v := range res.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return CalculationResult{}, &CalculationError{TestID: req.TestID, Err: fmt.Errorf("calculation returned non-finite value %g", v)}
		}
	}

	d.logger.Debug("calculation completed",
		slog.String("test_id", req.TestID),
		slog.Any("values", res.Values),
		slog.Duration("duration", time.Since(start)),
	)
	return CalculationResult{Values: append([]float64(nil), res.Values...)}, nil
}
