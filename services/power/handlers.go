// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package power serves the power-analysis HTTP API.
package power

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"

	"github.com/AleutianAI/PowerFOSS/services/power/coordinator"
	"github.com/AleutianAI/PowerFOSS/services/power/registry"
)

// ServiceVersion is the power service version.
const ServiceVersion = "0.1.0"

const (
	healthyMessage  = "AI integration service is ready"
	degradedMessage = "AI features are disabled - statistical APIs still available"
)

// Handlers contains the HTTP handlers for the power service.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	coord *coordinator.Coordinator
	now   func() time.Time
}

// NewHandlers creates handlers backed by coord.
func NewHandlers(coord *coordinator.Coordinator) *Handlers {
	return &Handlers{coord: coord, now: time.Now}
}

// HandleQuery handles POST /ai/query.
//
// Description:
//
//	Runs the natural-language pipeline for one query.
//
// Response:
//
//	200 OK: QueryResponse, or DisabledResponse when AI is disabled
//	400 Bad Request: Malformed body
//	422 Unprocessable Entity: Extraction, validation or calculation failure
//	429 Too Many Requests: Model call refused by the egress rate limit
//	502 Bad Gateway: Model call failed
func (h *Handlers) HandleQuery(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleQuery")

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid request body: " + err.Error(),
			Code:      CodeInvalidRequest,
			RequestID: requestID,
		})
		return
	}

	outcome, err := h.coord.ProcessWithOptions(c.Request.Context(), req.Query, req.options())
	if err != nil {
		status, resp := classify(err, surfaceQuery)
		resp.RequestID = requestID
		logger.Warn("Query failed",
			slog.String("code", resp.Code),
			slog.String("state", resp.State),
			slog.Int("status", status),
		)
		if v, ok := retryAfter(err); ok {
			c.Header("Retry-After", v)
		}
		c.JSON(status, resp)
		return
	}

	if outcome.State == coordinator.StateAIDisabled {
		c.JSON(http.StatusOK, DisabledResponse{Success: false, DisabledEnvelope: *outcome.Disabled})
		return
	}

	logger.Info("Query answered", slog.String("test_id", outcome.Envelope.TestID))
	c.JSON(http.StatusOK, QueryResponse{Success: true, ResponseEnvelope: *outcome.Envelope})
}

// HandleListTests handles GET /ai/tests.
func (h *Handlers) HandleListTests(c *gin.Context) {
	tests := h.coord.ListTests()
	resp := TestsResponse{
		TotalTests:     len(tests),
		AvailableTests: make([]string, 0, len(tests)),
		TestDetails:    make(map[string]registry.TestDescriptor, len(tests)),
		AIEnabled:      h.coord.AIEnabled(),
	}
	for _, t := range tests {
		resp.AvailableTests = append(resp.AvailableTests, t.ID)
		resp.TestDetails[t.ID] = t
	}
	c.JSON(http.StatusOK, resp)
}

// HandleTestInfo handles POST /ai/test-info.
//
// Response:
//
//	200 OK: registry.TestDescriptor
//	400 Bad Request: Missing test_type
//	404 Not Found: Unknown test
func (h *Handlers) HandleTestInfo(c *gin.Context) {
	requestID := getOrCreateRequestID(c)

	var req TestInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "test_type is required",
			Code:      CodeInvalidRequest,
			RequestID: requestID,
		})
		return
	}
	h.describe(c, requestID, req.TestType)
}

// HandleGetTest handles GET /ai/tests/:id.
func (h *Handlers) HandleGetTest(c *gin.Context) {
	h.describe(c, getOrCreateRequestID(c), c.Param("id"))
}

func (h *Handlers) describe(c *gin.Context, requestID, id string) {
	d, err := h.coord.DescribeTest(id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "test type '" + id + "' not found",
			Code:      CodeNotFound,
			TestID:    id,
			RequestID: requestID,
		})
		return
	}
	c.JSON(http.StatusOK, d)
}

// HandleAIHealth handles GET /ai/health.
//
// The status is "degraded" rather than unhealthy without a model: the
// calculation routes keep working.
func (h *Handlers) HandleAIHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:         "healthy",
		Message:        healthyMessage,
		AIEnabled:      h.coord.AIEnabled(),
		AvailableTests: len(h.coord.ListTests()),
		Timestamp:      strfmt.DateTime(h.now().UTC()),
	}
	if !resp.AIEnabled {
		resp.Status = "degraded"
		resp.Message = degradedMessage
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCalculate handles POST /api/v1/:test_id.
//
// Description:
//
//	Validates the body strictly against the test's declared parameters
//	and runs the calculation. No model is involved.
//
// Response:
//
//	200 OK: CalculationResponse
//	400 Bad Request: Malformed body or parameter error
//	404 Not Found: Unknown test
//	422 Unprocessable Entity: Calculation failed
func (h *Handlers) HandleCalculate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	testID := c.Param("test_id")
	logger := slog.With("request_id", requestID, "handler", "HandleCalculate", "test_id", testID)

	var params map[string]any
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "body must be a JSON object of parameters: " + err.Error(),
			Code:      CodeInvalidRequest,
			TestID:    testID,
			RequestID: requestID,
		})
		return
	}

	result, err := h.coord.Calculate(c.Request.Context(), testID, params)
	if err != nil {
		status, resp := classify(err, surfaceCalculation)
		resp.RequestID = requestID
		logger.Info("Calculation rejected", slog.String("code", resp.Code), slog.Int("status", status))
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, CalculationResponse{Result: result})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": ServiceVersion,
	})
}
