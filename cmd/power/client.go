// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AleutianAI/PowerFOSS/services/power"
	"github.com/AleutianAI/PowerFOSS/services/power/registry"
)

// =============================================================================
// Client
// =============================================================================

// APIError is a non-2xx answer from powerd.
type APIError struct {
	Status int
	Body   power.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Error == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	if e.Body.Code != "" {
		return fmt.Sprintf("%s (%s, status %d)", e.Body.Error, e.Body.Code, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Body.Error, e.Status)
}

// QueryReply is the answer to Ask. Exactly one of Answer and Disabled is set.
type QueryReply struct {
	Answer   *power.QueryResponse
	Disabled *power.DisabledResponse
}

// Client talks to a powerd server.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL. Outbound requests carry the W3C
// trace context of their ctx.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Tests lists the catalogue.
func (c *Client) Tests(ctx context.Context) (power.TestsResponse, error) {
	var out power.TestsResponse
	err := c.do(ctx, http.MethodGet, "/ai/tests", nil, &out)
	return out, err
}

// Describe fetches one catalogue entry.
func (c *Client) Describe(ctx context.Context, id string) (registry.TestDescriptor, error) {
	var out registry.TestDescriptor
	err := c.do(ctx, http.MethodGet, "/ai/tests/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Calculate runs one calculation from explicit parameters.
func (c *Client) Calculate(ctx context.Context, id string, params map[string]any) (power.CalculationResponse, error) {
	var out power.CalculationResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/"+url.PathEscape(id), params, &out)
	return out, err
}

// Health fetches the AI health report.
func (c *Client) Health(ctx context.Context) (power.HealthResponse, error) {
	var out power.HealthResponse
	err := c.do(ctx, http.MethodGet, "/ai/health", nil, &out)
	return out, err
}

// Ask sends a natural-language query.
func (c *Client) Ask(ctx context.Context, req power.QueryRequest) (QueryReply, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/ai/query", req, &raw); err != nil {
		return QueryReply{}, err
	}

	var probe struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return QueryReply{}, fmt.Errorf("failed to parse query response: %w", err)
	}
	if !probe.Success {
		var disabled power.DisabledResponse
		if err := json.Unmarshal(raw, &disabled); err != nil {
			return QueryReply{}, fmt.Errorf("failed to parse query response: %w", err)
		}
		return QueryReply{Disabled: &disabled}, nil
	}
	var answer power.QueryResponse
	if err := json.Unmarshal(raw, &answer); err != nil {
		return QueryReply{}, fmt.Errorf("failed to parse query response: %w", err)
	}
	return QueryReply{Answer: &answer}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to create request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach power server at %s: %w", c.baseURL, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close response body", "error", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, &apiErr.Body); jsonErr != nil {
			apiErr.Body.Error = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
