// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package power

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/PowerFOSS/services/llm"
	"github.com/AleutianAI/PowerFOSS/services/power/coordinator"
	"github.com/AleutianAI/PowerFOSS/services/power/providers"
	"github.com/AleutianAI/PowerFOSS/services/power/providers/egress"
	"github.com/AleutianAI/PowerFOSS/services/power/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedModel answers extraction calls with extract and explanation
// calls with explain.
func scriptedModel(extract string, extractErr error, explain string) providers.ChatClient {
	return providers.ChatFunc(func(_ context.Context, _ []llm.Message, opts providers.ChatOptions) (string, error) {
		if opts.Purpose == "explain" {
			return explain, nil
		}
		return extract, extractErr
	})
}

func setupRouter(t *testing.T, chat providers.ChatClient) *gin.Engine {
	t.Helper()
	coord, err := coordinator.New(coordinator.Options{Chat: chat})
	require.NoError(t, err)
	return NewRouter(NewHandlers(coord), RouterConfig{})
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

const twoSampleExtraction = `{"test_id": "two_sample_t_test", "params": {"delta": 0.5, "sd": 1.0, "power": 0.8}, "confidence": 0.9}`

const explanationReply = `{"interpretation": "64 per group", "assumptions": ["normality"], "recommendations": ["pilot"], "educational_context": "ctx"}`

func TestHandleQuery_Success(t *testing.T) {
	router := setupRouter(t, scriptedModel(twoSampleExtraction, nil, explanationReply))

	w := doJSON(t, router, http.MethodPost, "/ai/query", QueryRequest{Query: "compare two groups"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "two_sample_t_test", body["test_id"])
	assert.Equal(t, true, body["ai_enabled"])
	assert.InDelta(t, 63.77, body["result"].(float64), 0.05)
	assert.Contains(t, body, "explanation")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandleQuery_SimpleFormat(t *testing.T) {
	router := setupRouter(t, scriptedModel(twoSampleExtraction, nil, explanationReply))

	w := doJSON(t, router, http.MethodPost, "/ai/query", map[string]any{"query": "q", "response_format": "simple"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.NotContains(t, body, "explanation")
	assert.Contains(t, body, "result")
}

func TestHandleQuery_AIDisabled(t *testing.T) {
	router := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/ai/query", QueryRequest{Query: "anything"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, false, body["ai_enabled"])
	assert.Equal(t, coordinator.DisabledMessage, body["error"])
}

func TestHandleQuery_Errors(t *testing.T) {
	tests := []struct {
		name       string
		chat       providers.ChatClient
		body       any
		wantStatus int
		wantCode   string
		wantState  string
		wantParam  string
	}{
		{
			name:       "malformed body",
			chat:       scriptedModel("", nil, ""),
			body:       `{"query": `,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "missing query",
			chat:       scriptedModel("", nil, ""),
			body:       map[string]any{},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "bad response format",
			chat:       scriptedModel("", nil, ""),
			body:       map[string]any{"query": "q", "response_format": "verbose"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "model unreachable",
			chat:       scriptedModel("", errors.New("dial tcp: refused"), ""),
			body:       QueryRequest{Query: "q"},
			wantStatus: http.StatusBadGateway,
			wantCode:   CodeExtractionFailed,
			wantState:  "Extracting",
		},
		{
			name:       "rate limited",
			chat:       scriptedModel("", &egress.RateLimitedError{Provider: "openai", RetryAfter: time.Second}, ""),
			body:       QueryRequest{Query: "q"},
			wantStatus: http.StatusTooManyRequests,
			wantCode:   CodeRateLimited,
			wantState:  "Extracting",
		},
		{
			name:       "unparseable reply",
			chat:       scriptedModel("no idea", nil, ""),
			body:       QueryRequest{Query: "q"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   CodeExtractionFailed,
			wantState:  "Extracting",
		},
		{
			name:       "unknown test",
			chat:       scriptedModel(`{"test_id": "not_a_real_test"}`, nil, ""),
			body:       QueryRequest{Query: "q"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   CodeUnknownTest,
			wantState:  "Validating",
		},
		{
			name:       "missing parameter",
			chat:       scriptedModel(`{"test_id": "correlation", "params": {"power": 0.8}}`, nil, ""),
			body:       QueryRequest{Query: "q"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   CodeMissingParameter,
			wantState:  "Validating",
			wantParam:  "r",
		},
		{
			name:       "calculation failure",
			chat:       scriptedModel(`{"test_id": "correlation", "params": {"r": 0, "power": 0.8}}`, nil, ""),
			body:       QueryRequest{Query: "q"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   CodeCalculationFailed,
			wantState:  "Dispatching",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(t, tt.chat)
			w := doJSON(t, router, http.MethodPost, "/ai/query", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantState, resp.State)
			assert.Equal(t, tt.wantParam, resp.Param)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestHandleListTests(t *testing.T) {
	router := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/ai/tests", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp TestsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, registry.CatalogueSize, resp.TotalTests)
	assert.Len(t, resp.AvailableTests, registry.CatalogueSize)
	assert.Len(t, resp.TestDetails, registry.CatalogueSize)
	assert.Equal(t, "two_sample_t_test", resp.AvailableTests[0])
	assert.False(t, resp.AIEnabled)
}

func TestHandleTestInfo(t *testing.T) {
	router := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/ai/test-info", TestInfoRequest{TestType: "cox_ph"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "cox_ph", body["id"])

	w = doJSON(t, router, http.MethodPost, "/ai/test-info", TestInfoRequest{TestType: "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decode(t, w)["code"])

	w = doJSON(t, router, http.MethodPost, "/ai/test-info", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetTest(t *testing.T) {
	router := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/ai/tests/kruskal-wallace", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/ai/tests/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleAIHealth(t *testing.T) {
	t.Run("degraded without model", func(t *testing.T) {
		w := doJSON(t, setupRouter(t, nil), http.MethodGet, "/ai/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, degradedMessage, body["message"])
		assert.Equal(t, float64(registry.CatalogueSize), body["available_tests"])
		assert.Contains(t, body, "timestamp")
	})

	t.Run("healthy with model", func(t *testing.T) {
		w := doJSON(t, setupRouter(t, scriptedModel("", nil, "")), http.MethodGet, "/ai/health", nil)
		body := decode(t, w)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, true, body["ai_enabled"])
	})
}

func TestHandleCalculate(t *testing.T) {
	router := setupRouter(t, nil)

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
		wantCode   string
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name:       "single result",
			path:       "/api/v1/two_sample_t_test",
			body:       map[string]any{"delta": 0.5, "sd": 1.0, "power": 0.8},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.InDelta(t, 63.77, body["result"].(float64), 0.05)
			},
		},
		{
			name:       "pair result",
			path:       "/api/v1/log_rank_test",
			body:       map[string]any{"power": 0.8, "k": 1, "pE": 0.3, "pC": 0.3, "RR": 0.5},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				pair, ok := body["result"].([]any)
				require.True(t, ok)
				assert.Len(t, pair, 2)
			},
		},
		{
			name:       "unknown test",
			path:       "/api/v1/not_a_real_test",
			body:       map[string]any{},
			wantStatus: http.StatusNotFound,
			wantCode:   CodeUnknownTest,
		},
		{
			name:       "missing parameter",
			path:       "/api/v1/correlation",
			body:       map[string]any{"power": 0.8},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeMissingParameter,
		},
		{
			name:       "unknown parameter",
			path:       "/api/v1/correlation",
			body:       map[string]any{"r": 0.3, "power": 0.8, "alpha": 0.01},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeUnknownParameter,
		},
		{
			name:       "invalid parameter",
			path:       "/api/v1/paired_T_test",
			body:       map[string]any{"d": 0.4, "power": 0.8, "alternative": "sideways"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidParameter,
		},
		{
			name:       "calculation failure",
			path:       "/api/v1/two_proportions_test",
			body:       map[string]any{"p1": 0.5, "p2": 0.5, "power": 0.8},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   CodeCalculationFailed,
		},
		{
			name:       "body not an object",
			path:       "/api/v1/correlation",
			body:       `[1, 2]`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			body := decode(t, w)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["code"])
			}
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	router := setupRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	w = doJSON(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "powerfoss_http_requests_total")
}

func TestRequestID_Propagated(t *testing.T) {
	router := setupRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestHandleQuery_RateLimitedSetsRetryAfter(t *testing.T) {
	limited := &egress.RateLimitedError{Provider: "openai", RetryAfter: 1500 * time.Millisecond}
	router := setupRouter(t, scriptedModel("", limited, ""))

	w := doJSON(t, router, http.MethodPost, "/ai/query", QueryRequest{Query: "q"})
	require.Equal(t, http.StatusTooManyRequests, w.Code, w.Body.String())
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, CodeRateLimited, decode(t, w)["code"])
}

func TestClassify_RateLimitedSentinel(t *testing.T) {
	err := fmt.Errorf("extract: model call: %w", egress.ErrRateLimited)

	status, resp := classify(err, surfaceQuery)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, CodeRateLimited, resp.Code)

	_, ok := retryAfter(err)
	assert.False(t, ok)
}
