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
	"github.com/go-openapi/strfmt"

	"github.com/AleutianAI/PowerFOSS/services/power/compose"
	"github.com/AleutianAI/PowerFOSS/services/power/coordinator"
	"github.com/AleutianAI/PowerFOSS/services/power/dispatch"
	"github.com/AleutianAI/PowerFOSS/services/power/registry"
)

// =============================================================================
// Requests
// =============================================================================

// QueryRequest is the body of POST /ai/query.
type QueryRequest struct {
	// Query is the natural-language question.
	Query string `json:"query" binding:"required"`

	// ResponseFormat is "detailed" (default) or "simple".
	ResponseFormat string `json:"response_format" binding:"omitempty,oneof=detailed simple"`

	// IncludeEducationalContent defaults to true when omitted.
	IncludeEducationalContent *bool `json:"include_educational_content"`
}

// options converts the request into coordinator options.
func (r QueryRequest) options() coordinator.QueryOptions {
	opts := coordinator.DefaultQueryOptions()
	if r.ResponseFormat != "" {
		opts.Format = coordinator.ResponseFormat(r.ResponseFormat)
	}
	if r.IncludeEducationalContent != nil {
		opts.IncludeEducational = *r.IncludeEducationalContent
	}
	return opts
}

// TestInfoRequest is the body of POST /ai/test-info.
type TestInfoRequest struct {
	TestType string `json:"test_type" binding:"required"`
}

// =============================================================================
// Responses
// =============================================================================

// QueryResponse is a successful POST /ai/query answer.
type QueryResponse struct {
	Success bool `json:"success"`
	compose.ResponseEnvelope
}

// DisabledResponse is the POST /ai/query answer when AI is disabled.
type DisabledResponse struct {
	Success bool `json:"success"`
	coordinator.DisabledEnvelope
}

// CalculationResponse is the POST /api/v1/:test_id answer.
type CalculationResponse struct {
	Result dispatch.CalculationResult `json:"result"`
}

// TestsResponse is the GET /ai/tests answer.
type TestsResponse struct {
	TotalTests     int                                `json:"total_tests"`
	AvailableTests []string                           `json:"available_tests"`
	TestDetails    map[string]registry.TestDescriptor `json:"test_details"`
	AIEnabled      bool                               `json:"ai_enabled"`
}

// HealthResponse is the GET /ai/health answer.
type HealthResponse struct {
	// Status is "healthy" or "degraded".
	Status         string          `json:"status"`
	Message        string          `json:"message"`
	AIEnabled      bool            `json:"ai_enabled"`
	AvailableTests int             `json:"available_tests"`
	Timestamp      strfmt.DateTime `json:"timestamp"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Success bool `json:"success"`

	// Error is the error message.
	Error string `json:"error"`

	// Code is the stable error code.
	Code string `json:"code"`

	// State is the pipeline state that failed, for /ai/query.
	State string `json:"state,omitempty"`

	// TestID is the test the failure concerns, when known.
	TestID string `json:"test_id,omitempty"`

	// Param names the offending parameter for parameter errors.
	Param string `json:"param,omitempty"`

	// RequestID echoes X-Request-ID.
	RequestID string `json:"request_id,omitempty"`
}
