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
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/AleutianAI/PowerFOSS/services/llm"
	"github.com/AleutianAI/PowerFOSS/services/power/coordinator"
	"github.com/AleutianAI/PowerFOSS/services/power/dispatch"
	"github.com/AleutianAI/PowerFOSS/services/power/extract"
	"github.com/AleutianAI/PowerFOSS/services/power/providers/egress"
	"github.com/AleutianAI/PowerFOSS/services/power/registry"
	"github.com/AleutianAI/PowerFOSS/services/power/validate"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeAIDisabled        = "AI_DISABLED"
	CodeExtractionFailed  = "EXTRACTION_FAILED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeUnknownTest       = "UNKNOWN_TEST"
	CodeMissingParameter  = "MISSING_PARAMETER"
	CodeUnknownParameter  = "UNKNOWN_PARAMETER"
	CodeInvalidParameter  = "INVALID_PARAMETER"
	CodeCalculationFailed = "CALCULATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInternalError     = "INTERNAL_ERROR"
)

// errorSurface selects the status mapping of the route family.
type errorSurface int

const (
	// surfaceQuery is /ai/query: input came from the model, so
	// validation failures are 422 and model failures are 502.
	surfaceQuery errorSurface = iota

	// surfaceCalculation is /api/v1/:test_id: input came from the caller.
	surfaceCalculation
)

// classify maps an error to a status and an ErrorResponse.
func classify(err error, surface errorSurface) (int, ErrorResponse) {
	resp := ErrorResponse{Success: false, Error: llm.SafeLogString(err.Error())}

	var pipeErr *coordinator.PipelineError
	if errors.As(err, &pipeErr) {
		resp.State = string(pipeErr.State)
	}

	var (
		unknownTest  *validate.UnknownTestError
		missing      *validate.MissingParameterError
		unknownParam *validate.UnknownParameterError
		invalid      *validate.InvalidParameterError
		calcErr      *dispatch.CalculationError
	)

	inputStatus := http.StatusUnprocessableEntity
	if surface == surfaceCalculation {
		inputStatus = http.StatusBadRequest
	}

	switch {
	case errors.Is(err, extract.ErrAIUnavailable):
		resp.Code = CodeAIDisabled
		return http.StatusServiceUnavailable, resp

	case errors.Is(err, egress.ErrRateLimited):
		resp.Code = CodeRateLimited
		return http.StatusTooManyRequests, resp

	case errors.Is(err, extract.ErrExtractionParse):
		resp.Code = CodeExtractionFailed
		return http.StatusUnprocessableEntity, resp

	case errors.As(err, &unknownTest):
		resp.Code = CodeUnknownTest
		resp.TestID = unknownTest.TestID
		if surface == surfaceCalculation {
			return http.StatusNotFound, resp
		}
		return http.StatusUnprocessableEntity, resp

	case errors.As(err, &missing):
		resp.Code = CodeMissingParameter
		resp.TestID, resp.Param = missing.TestID, missing.Param
		return inputStatus, resp

	case errors.As(err, &unknownParam):
		resp.Code = CodeUnknownParameter
		resp.TestID, resp.Param = unknownParam.TestID, unknownParam.Param
		return inputStatus, resp

	case errors.As(err, &invalid):
		resp.Code = CodeInvalidParameter
		resp.TestID, resp.Param = invalid.TestID, invalid.Param
		return inputStatus, resp

	case errors.As(err, &calcErr):
		resp.Code = CodeCalculationFailed
		resp.TestID = calcErr.TestID
		return http.StatusUnprocessableEntity, resp

	case errors.Is(err, coordinator.ErrNotFound), errors.Is(err, registry.ErrUnknownTest):
		resp.Code = CodeNotFound
		return http.StatusNotFound, resp
	}

	if pipeErr != nil && pipeErr.State == coordinator.StateExtracting {
		resp.Code = CodeExtractionFailed
		return http.StatusBadGateway, resp
	}
	resp.Code = CodeInternalError
	return http.StatusInternalServerError, resp
}

// retryAfter returns the Retry-After header value for a rate-limited
// model call, in whole seconds rounded up.
func retryAfter(err error) (string, bool) {
	var limited *egress.RateLimitedError
	if !errors.As(err, &limited) || limited.RetryAfter <= 0 {
		return "", false
	}
	return strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))), true
}
