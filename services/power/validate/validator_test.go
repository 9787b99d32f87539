// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/AleutianAI/PowerFOSS/services/power/extract"
	"github.com/AleutianAI/PowerFOSS/services/power/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(registry.MustDefault())
	require.NoError(t, err)
	return v
}

// completeParams returns a valid parameter set for every declared,
// required parameter of desc.
func completeParams(desc registry.TestDescriptor) map[string]any {
	out := map[string]any{}
	for _, p := range desc.Params {
		if !p.Required {
			continue
		}
		switch p.Type {
		case registry.TypeInteger:
			out[p.Name] = 3.0
		default:
			out[p.Name] = 0.5
		}
	}
	return out
}

func TestValidate_TwoSampleScenario(t *testing.T) {
	got, err := Validate(extract.ExtractionResult{
		TestID: "two_sample_t_test",
		Params: map[string]any{"delta": 0.5, "sd": 1.0, "power": 0.8},
	}, registry.MustDefault())
	require.NoError(t, err)
	assert.Equal(t, ValidatedRequest{
		TestID: "two_sample_t_test",
		Params: map[string]any{"delta": 0.5, "sd": 1.0, "power": 0.8},
	}, got)
}

func TestValidate_AppliesDefaults(t *testing.T) {
	v := newValidator(t)

	got, err := v.ValidateParams("paired_T_test", map[string]any{"d": 0.4, "power": 0.8})
	require.NoError(t, err)
	assert.Equal(t, "two.sided", got.Params["alternative"])

	got, err = v.ValidateParams("simple_linear_regression", map[string]any{"f2": 0.15, "power": 0.8})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Params["u"])

	got, err = v.ValidateParams("mann_whitney_test", map[string]any{"d": 0.5, "power": 0.8, "alternative": nil})
	require.NoError(t, err)
	assert.Equal(t, "two.sided", got.Params["alternative"])
}

func TestValidate_UnknownTest(t *testing.T) {
	_, err := newValidator(t).ValidateParams("bayesian_magic", map[string]any{"power": 0.8})
	var ute *UnknownTestError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, "bayesian_magic", ute.TestID)
	assert.True(t, errors.Is(err, registry.ErrUnknownTest))

	_, err = newValidator(t).ValidateParams("", nil)
	assert.ErrorIs(t, err, registry.ErrUnknownTest)
}

func TestValidate_MissingParameter_EveryTest(t *testing.T) {
	v := newValidator(t)
	for _, desc := range registry.MustDefault().List() {
		for _, spec := range desc.Params {
			if !spec.Required {
				continue
			}
			t.Run(desc.ID+"/"+spec.Name, func(t *testing.T) {
				params := completeParams(desc)
				delete(params, spec.Name)

				_, err := v.ValidateParams(desc.ID, params)
				var mpe *MissingParameterError
				require.ErrorAs(t, err, &mpe)
				assert.Equal(t, desc.ID, mpe.TestID)
				assert.Equal(t, spec.Name, mpe.Param)
				assert.ErrorIs(t, err, ErrMissingParameter)
			})
		}
	}
}

func TestValidate_MissingParameter_FirstInDeclaredOrder(t *testing.T) {
	_, err := newValidator(t).ValidateParams("log_rank_test", map[string]any{"power": 0.8, "pC": 0.5})
	var mpe *MissingParameterError
	require.ErrorAs(t, err, &mpe)
	assert.Equal(t, "k", mpe.Param)
}

func TestValidate_NullCountsAsAbsent(t *testing.T) {
	_, err := newValidator(t).ValidateParams("correlation", map[string]any{"r": nil, "power": 0.8})
	var mpe *MissingParameterError
	require.ErrorAs(t, err, &mpe)
	assert.Equal(t, "r", mpe.Param)
}

func TestValidate_UnknownParameter(t *testing.T) {
	_, err := newValidator(t).ValidateParams("correlation", map[string]any{
		"r": 0.5, "power": 0.8, "zeta": 1.0, "alpha": 0.05,
	})
	var upe *UnknownParameterError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, "alpha", upe.Param)
	assert.Equal(t, []string{"alpha", "zeta"}, upe.All)
	assert.ErrorIs(t, err, ErrUnknownParameter)
}

func TestValidate_MissingReportedBeforeUnknown(t *testing.T) {
	_, err := newValidator(t).ValidateParams("correlation", map[string]any{"power": 0.8, "extra": 1.0})
	assert.ErrorIs(t, err, ErrMissingParameter)
}

func TestValidate_Types(t *testing.T) {
	tests := []struct {
		name    string
		testID  string
		params  map[string]any
		want    map[string]any
		wantErr string
	}{
		{
			name:   "numeric strings accepted",
			testID: "correlation",
			params: map[string]any{"r": " 0.5 ", "power": "0.8"},
			want:   map[string]any{"r": 0.5, "power": 0.8},
		},
		{
			name:   "json number accepted",
			testID: "correlation",
			params: map[string]any{"r": json.Number("0.5"), "power": 0.8},
			want:   map[string]any{"r": 0.5, "power": 0.8},
		},
		{
			name:   "whole float is an integer",
			testID: "one_way_ANOVA",
			params: map[string]any{"k": 3.0, "f": 0.25, "power": 0.8},
			want:   map[string]any{"k": 3.0, "f": 0.25, "power": 0.8},
		},
		{
			name:   "go int accepted",
			testID: "chi_squared_test",
			params: map[string]any{"w": 0.3, "df": 2, "power": 0.9},
			want:   map[string]any{"w": 0.3, "df": 2.0, "power": 0.9},
		},
		{
			name:   "enum trimmed",
			testID: "one_mean_T_test",
			params: map[string]any{"d": 0.3, "power": 0.9, "alternative": " greater "},
			want:   map[string]any{"d": 0.3, "power": 0.9, "alternative": "greater"},
		},
		{
			name:    "fractional integer",
			testID:  "one_way_ANOVA",
			params:  map[string]any{"k": 2.5, "f": 0.25, "power": 0.8},
			wantErr: "k",
		},
		{
			name:    "non numeric string",
			testID:  "correlation",
			params:  map[string]any{"r": "strong", "power": 0.8},
			wantErr: "r",
		},
		{
			name:    "boolean",
			testID:  "correlation",
			params:  map[string]any{"r": true, "power": 0.8},
			wantErr: "r",
		},
		{
			name:    "not finite",
			testID:  "correlation",
			params:  map[string]any{"r": math.Inf(1), "power": 0.8},
			wantErr: "r",
		},
		{
			name:    "NaN string",
			testID:  "correlation",
			params:  map[string]any{"r": "NaN", "power": 0.8},
			wantErr: "r",
		},
		{
			name:    "enum case sensitive",
			testID:  "paired_T_test",
			params:  map[string]any{"d": 0.4, "power": 0.8, "alternative": "Two.Sided"},
			wantErr: "alternative",
		},
		{
			name:    "enum wrong type",
			testID:  "paired_T_test",
			params:  map[string]any{"d": 0.4, "power": 0.8, "alternative": 2.0},
			wantErr: "alternative",
		},
	}

	v := newValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.ValidateParams(tt.testID, tt.params)
			if tt.wantErr != "" {
				var ipe *InvalidParameterError
				require.ErrorAs(t, err, &ipe)
				assert.Equal(t, tt.wantErr, ipe.Param)
				assert.ErrorIs(t, err, ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Params)
		})
	}
}

func TestValidate_NoPlausibilityChecks(t *testing.T) {
	got, err := newValidator(t).ValidateParams("correlation", map[string]any{"r": 4.0, "power": 1.7})
	require.NoError(t, err)
	assert.Equal(t, 1.7, got.Params["power"])
}

func TestValidate_Idempotent(t *testing.T) {
	v := newValidator(t)
	for _, desc := range registry.MustDefault().List() {
		t.Run(desc.ID, func(t *testing.T) {
			first, err := v.ValidateParams(desc.ID, completeParams(desc))
			require.NoError(t, err)
			second, err := v.Validate(extract.ExtractionResult{TestID: first.TestID, Params: first.Params})
			require.NoError(t, err)
			assert.Equal(t, first, second)
			assert.Len(t, first.Params, len(desc.Params))
		})
	}
}

func TestNew_RegistersFiniteCheck(t *testing.T) {
	v, err := New(registry.MustDefault())
	require.NoError(t, err)

	assert.NoError(t, v.check.Var(0.8, "finite"))
	assert.Error(t, v.check.Var(math.NaN(), "finite"))
	assert.Error(t, v.check.Var(math.Inf(1), "finite"))
}

func TestValidate_ReturnsCoercedValues(t *testing.T) {
	got, err := newValidator(t).ValidateParams("mann_whitney_test", map[string]any{
		"d": "0.5", "power": 0.8, "alternative": "  greater ",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Params["d"])
	assert.Equal(t, "greater", got.Params["alternative"])
}
