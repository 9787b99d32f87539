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
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/PowerFOSS/services/power/calc"
	"github.com/AleutianAI/PowerFOSS/services/power/registry"
	badgerstore "github.com/AleutianAI/PowerFOSS/services/power/storage/badger"
	"github.com/AleutianAI/PowerFOSS/services/power/validate"
)

func newCache(t *testing.T) *BadgerResultCache {
	t.Helper()
	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	cache, err := NewBadgerResultCache(db, time.Hour, nil)
	require.NoError(t, err)
	return cache
}

func twoSampleRequest() validate.ValidatedRequest {
	return validate.ValidatedRequest{
		TestID: "two_sample_t_test",
		Params: map[string]any{"delta": 0.5, "sd": 1.0, "power": 0.8},
	}
}

func TestDefaultTable_MatchesCatalogue(t *testing.T) {
	d := New(Options{})
	assert.Equal(t, registry.MustDefault().Len(), len(d.Registered()))
	for _, id := range registry.MustDefault().IDs() {
		assert.Contains(t, d.Registered(), id)
	}
}

func TestDispatch_TwoSampleT(t *testing.T) {
	d := New(Options{})
	res, err := d.Dispatch(context.Background(), twoSampleRequest())
	require.NoError(t, err)
	require.Len(t, res.Values, 1)
	assert.InDelta(t, 63.77, res.Single(), 0.05)
	assert.False(t, res.IsPair())
}

func TestDispatch_LogRankReturnsPair(t *testing.T) {
	d := New(Options{})
	res, err := d.Dispatch(context.Background(), validate.ValidatedRequest{
		TestID: "log_rank_test",
		Params: map[string]any{"power": 0.8, "k": 1.0, "pE": 0.3, "pC": 0.3, "RR": 0.5},
	})
	require.NoError(t, err)
	require.True(t, res.IsPair())
	nE, nC := res.Pair()
	assert.Greater(t, nE, 0.0)
	assert.Equal(t, nE, nC)
}

func TestDispatch_NotRegistered(t *testing.T) {
	d := New(Options{Table: map[string]CalculateFunc{}})
	_, err := d.Dispatch(context.Background(), twoSampleRequest())
	require.Error(t, err)

	var calcErr *CalculationError
	require.ErrorAs(t, err, &calcErr)
	assert.Equal(t, "two_sample_t_test", calcErr.TestID)
	assert.ErrorIs(t, err, ErrCalculation)
	assert.ErrorIs(t, err, calc.ErrNotRegistered)
}

func TestDispatch_CalculationFailure(t *testing.T) {
	d := New(Options{})
	_, err := d.Dispatch(context.Background(), validate.ValidatedRequest{
		TestID: "two_sample_t_test",
		Params: map[string]any{"delta": 0.5, "sd": -1.0, "power": 0.8},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCalculation)
	assert.ErrorIs(t, err, calc.ErrInvalidInput)
}

func TestDispatch_PanicBecomesError(t *testing.T) {
	d := New(Options{Table: map[string]CalculateFunc{
		"boom": func(calc.Params) (calc.Result, error) { panic("bad math") },
	}})
	_, err := d.Dispatch(context.Background(), validate.ValidatedRequest{TestID: "boom"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCalculation)
	assert.Contains(t, err.Error(), "bad math")
}

func TestDispatch_RejectsMalformedResults(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
	}{
		{"empty", nil},
		{"three values", []float64{1, 2, 3}},
		{"nan", []float64{nan()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := tt.values
			d := New(Options{Table: map[string]CalculateFunc{
				"odd": func(calc.Params) (calc.Result, error) { return calc.Result{Values: values}, nil },
			}})
			_, err := d.Dispatch(context.Background(), validate.ValidatedRequest{TestID: "odd"})
			assert.ErrorIs(t, err, ErrCalculation)
		})
	}
}

func TestDispatch_CacheIsTransparent(t *testing.T) {
	var calls atomic.Int32
	table := map[string]CalculateFunc{
		"two_sample_t_test": func(p calc.Params) (calc.Result, error) {
			calls.Add(1)
			return calc.TwoSampleT(p)
		},
	}
	plain := New(Options{Table: DefaultTable()})
	cached := New(Options{Table: table, Cache: newCache(t)})

	ctx := context.Background()
	want, err := plain.Dispatch(ctx, twoSampleRequest())
	require.NoError(t, err)

	first, err := cached.Dispatch(ctx, twoSampleRequest())
	require.NoError(t, err)
	second, err := cached.Dispatch(ctx, twoSampleRequest())
	require.NoError(t, err)

	assert.Equal(t, want, first)
	assert.Equal(t, want, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatch_FailuresAreNotCached(t *testing.T) {
	var calls atomic.Int32
	table := map[string]CalculateFunc{
		"flaky": func(calc.Params) (calc.Result, error) {
			calls.Add(1)
			return calc.Result{}, calc.ErrNotAttainable
		},
	}
	d := New(Options{Table: table, Cache: newCache(t)})
	req := validate.ValidatedRequest{TestID: "flaky", Params: map[string]any{"power": 0.8}}

	_, err := d.Dispatch(context.Background(), req)
	require.Error(t, err)
	_, err = d.Dispatch(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

type brokenCache struct{}

func (brokenCache) Load(context.Context, string) (CalculationResult, bool, error) {
	return CalculationResult{}, false, errors.New("disk on fire")
}

func (brokenCache) Save(context.Context, string, CalculationResult) error {
	return errors.New("disk on fire")
}

func TestDispatch_CacheFailureIsIgnored(t *testing.T) {
	d := New(Options{Cache: brokenCache{}})
	res, err := d.Dispatch(context.Background(), twoSampleRequest())
	require.NoError(t, err)
	assert.InDelta(t, 63.77, res.Single(), 0.05)
}

// burst sends workers identical requests while the calculation is held on
// release, and returns once every caller has an answer.
func burst(t *testing.T, d *Dispatcher, req validate.ValidatedRequest, workers int, calls *atomic.Int32, release chan struct{}) []CalculationResult {
	t.Helper()
	var wg sync.WaitGroup
	results := make([]CalculationResult, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := d.Dispatch(context.Background(), req)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "only one calculation may run while it is in flight")

	close(release)
	wg.Wait()
	return results
}

func blockingTable(calls *atomic.Int32, release chan struct{}) map[string]CalculateFunc {
	return map[string]CalculateFunc{
		"slow": func(calc.Params) (calc.Result, error) {
			calls.Add(1)
			<-release
			return calc.Single(10), nil
		},
	}
}

func TestDispatch_ConcurrentIdenticalRequests(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	d := New(Options{Table: blockingTable(&calls, release)})

	results := burst(t, d, validate.ValidatedRequest{TestID: "slow"}, 8, &calls, release)

	for _, res := range results {
		assert.Equal(t, 10.0, res.Single())
	}
}

func TestDispatch_SharedResultIsCached(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	cache := newCache(t)
	d := New(Options{Table: blockingTable(&calls, release), Cache: cache})
	req := validate.ValidatedRequest{TestID: "slow", Params: map[string]any{"power": 0.8}}

	burst(t, d, req, 4, &calls, release)

	cached, hit, err := cache.Load(context.Background(), cacheKey(req))
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 10.0, cached.Single())

	before := calls.Load()
	res, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.Single())
	assert.Equal(t, before, calls.Load())
}

func TestCacheKey_Canonical(t *testing.T) {
	a := validate.ValidatedRequest{TestID: "t", Params: map[string]any{"a": 0.8, "b": "less"}}
	b := validate.ValidatedRequest{TestID: "t", Params: map[string]any{"b": "less", "a": 0.80}}
	c := validate.ValidatedRequest{TestID: "u", Params: map[string]any{"a": 0.8, "b": "less"}}
	d := validate.ValidatedRequest{TestID: "t", Params: map[string]any{"a": 0.81, "b": "less"}}

	assert.Equal(t, cacheKey(a), cacheKey(b))
	assert.NotEqual(t, cacheKey(a), cacheKey(c))
	assert.NotEqual(t, cacheKey(a), cacheKey(d))
	assert.Len(t, cacheKey(a), 64)
}

func TestBadgerResultCache_MissThenHit(t *testing.T) {
	cache := newCache(t)
	ctx := context.Background()

	_, hit, err := cache.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Save(ctx, "k", CalculationResult{Values: []float64{157, 157}}))
	got, hit, err := cache.Load(ctx, "k")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []float64{157, 157}, got.Values)
}

func TestNewBadgerResultCache_NilDB(t *testing.T) {
	_, err := NewBadgerResultCache(nil, 0, nil)
	assert.Error(t, err)
}

func TestCalculationResult_JSON(t *testing.T) {
	single, err := json.Marshal(CalculationResult{Values: []float64{64}})
	require.NoError(t, err)
	assert.JSONEq(t, `64`, string(single))

	pair, err := json.Marshal(CalculationResult{Values: []float64{157, 157}})
	require.NoError(t, err)
	assert.JSONEq(t, `[157,157]`, string(pair))

	var back CalculationResult
	require.NoError(t, json.Unmarshal(pair, &back))
	assert.Equal(t, []float64{157, 157}, back.Values)
	require.NoError(t, json.Unmarshal(single, &back))
	assert.Equal(t, []float64{64}, back.Values)
	assert.Error(t, json.Unmarshal([]byte(`"x"`), &back))
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}
