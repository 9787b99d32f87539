// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose assembles the response envelope for a computed result.
//
// Compose never fails. When the model is disabled, errors, or replies with
// something unusable, the explanation falls back to a fixed template and
// the failure is only logged and counted.
package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/PowerFOSS/services/llm"
	"github.com/AleutianAI/PowerFOSS/services/power/dispatch"
	"github.com/AleutianAI/PowerFOSS/services/power/providers"
)

var tracer = otel.Tracer("powerfoss.compose")

// Explanation sources reported in the envelope.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Explanation is the human-readable part of a response.
type Explanation struct {
	Interpretation     string   `json:"interpretation"`
	Assumptions        []string `json:"assumptions"`
	Recommendations    []string `json:"recommendations"`
	EducationalContext string   `json:"educational_context"`
}

// ResponseEnvelope is the full answer to a natural-language query.
type ResponseEnvelope struct {
	Timestamp strfmt.DateTime `json:"timestamp"`
	Query     string          `json:"user_query"`
	TestID    string          `json:"test_id"`
	Params    map[string]any  `json:"parameters"`

	// Result is always the dispatcher's value.
	Result dispatch.CalculationResult `json:"result"`

	// Explanation is nil only when the caller asked to omit it.
	Explanation       *Explanation `json:"explanation,omitempty"`
	ExplanationSource string       `json:"explanation_source,omitempty"`

	Confidence float64 `json:"confidence"`

	// ExtractionNote is the model's own note on how it read the query.
	ExtractionNote string `json:"extraction_note,omitempty"`

	AIEnabled bool `json:"ai_enabled"`
}

// Config tunes the explanation call.
type Config struct {
	// Temperature for the explanation call. Default: 0.7
	Temperature float64

	// MaxTokens for the explanation reply. Default: 1000
	MaxTokens int

	// Timeout bounds one explanation call. Zero leaves it to the client.
	Timeout time.Duration
}

// DefaultConfig returns the explanation defaults.
func DefaultConfig() Config {
	return Config{
		Temperature: 0.7,
		MaxTokens:   1000,
	}
}

// Composer builds response envelopes.
//
// Thread Safety: Composer is safe for concurrent use.
type Composer struct {
	chat   providers.ChatClient
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewComposer creates a Composer. chat may be nil, in which case every
// envelope carries the fallback explanation.
func NewComposer(chat providers.ChatClient, config Config, logger *slog.Logger) *Composer {
	defaults := DefaultConfig()
	if config.Temperature <= 0 {
		config.Temperature = defaults.Temperature
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		chat:   chat,
		config: config,
		logger: logger.With(slog.String("component", "composer")),
		now:    time.Now,
	}
}

// Compose builds the envelope for a computed result.
//
// Description:
//
//	With aiEnabled false or no model client, no network call is made. With
//	aiEnabled true, exactly one model call is made and any failure in it
//	is replaced by the fallback explanation.
//
// Inputs:
//
//	ctx - Context for the model call.
//	query - The user's original query.
//	testID - The dispatched test.
//	params - The validated parameters.
//	result - The dispatcher's result.
//	aiEnabled - Whether to ask the model for an explanation.
//
// Outputs:
//
//	ResponseEnvelope - Always complete.
func (c *Composer) Compose(ctx context.Context, query, testID string, params map[string]any, result dispatch.CalculationResult, aiEnabled bool) ResponseEnvelope {
	env := ResponseEnvelope{
		Timestamp: strfmt.DateTime(c.now().UTC()),
		Query:     query,
		TestID:    testID,
		Params:    params,
		Result:    result,
		AIEnabled: aiEnabled,
	}

	if !aiEnabled || c.chat == nil {
		env.Explanation = Fallback(testID, result)
		env.ExplanationSource = SourceFallback
		recordExplanation(outcomeSkipped, 0)
		return env
	}

	explanation, err := c.explain(ctx, query, testID, params, result)
	if err != nil {
		ExplanationFailures.Inc()
		c.logger.Warn("explanation failed, using fallback",
			slog.String("test_id", testID),
			slog.String("error", llm.SafeLogString(err.Error())),
		)
		env.Explanation = Fallback(testID, result)
		env.ExplanationSource = SourceFallback
		return env
	}
	env.Explanation = explanation
	env.ExplanationSource = SourceModel
	return env
}

// Fallback returns the fixed explanation used whenever the model is not.
func Fallback(testID string, result dispatch.CalculationResult) *Explanation {
	return &Explanation{
		Interpretation:     fmt.Sprintf("Sample size calculation completed for %s: %s", testID, result),
		Assumptions:        []string{"Please consult statistical literature for assumptions"},
		Recommendations:    []string{"Consider consulting with a statistician"},
		EducationalContext: fmt.Sprintf("This is a %s power analysis result.", testID),
	}
}

type explainContext struct {
	Query  string                     `json:"user_query"`
	TestID string                     `json:"statistical_test"`
	Params map[string]any             `json:"parameters_used"`
	Result dispatch.CalculationResult `json:"result"`
}

func (c *Composer) explain(ctx context.Context, query, testID string, params map[string]any, result dispatch.CalculationResult) (*Explanation, error) {
	ctx, span := tracer.Start(ctx, "compose.Composer.explain")
	defer span.End()
	span.SetAttributes(attribute.String("test_id", testID))

	payload, err := json.MarshalIndent(explainContext{Query: query, TestID: testID, Params: params, Result: result}, "", "  ")
	if err != nil {
		span.SetStatus(codes.Error, "context encoding failed")
		recordExplanation(outcomeError, 0)
		return nil, fmt.Errorf("encoding explanation context: %w", err)
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := c.chat.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: explainSystemPrompt},
		{Role: llm.RoleUser, Content: string(payload)},
	}, providers.ChatOptions{
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		JSON:        true,
		Purpose:     "explain",
	})
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		recordExplanation(outcomeError, duration)
		return nil, fmt.Errorf("explanation model call: %w", err)
	}

	explanation, err := parseExplanation(reply, testID, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		recordExplanation(outcomeParseError, duration)
		return nil, err
	}

	recordExplanation(outcomeSuccess, duration)
	span.SetAttributes(attribute.Int64("compose.duration_ms", duration.Milliseconds()))
	c.logger.Debug("explanation generated", slog.String("test_id", testID), slog.Duration("duration", duration))
	return explanation, nil
}

type explanationPayload struct {
	Interpretation          string   `json:"interpretation"`
	Assumptions             []string `json:"assumptions"`
	Recommendations         []string `json:"recommendations"`
	EducationalContext      string   `json:"educational_context"`
	EducationalContextCamel string   `json:"educationalContext"`
}

var errEmptyInterpretation = errors.New("reply has no interpretation")

// parseExplanation reads the model's JSON reply. Missing lists are taken
// from the fallback; a missing interpretation rejects the reply.
func parseExplanation(reply, testID string, result dispatch.CalculationResult) (*Explanation, error) {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")

	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in explanation reply")
	}

	var payload explanationPayload
	if err := json.Unmarshal([]byte(reply[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("invalid explanation JSON: %w", err)
	}
	if strings.TrimSpace(payload.Interpretation) == "" {
		return nil, errEmptyInterpretation
	}

	fallback := Fallback(testID, result)
	out := &Explanation{
		Interpretation:     strings.TrimSpace(payload.Interpretation),
		Assumptions:        nonEmpty(payload.Assumptions),
		Recommendations:    nonEmpty(payload.Recommendations),
		EducationalContext: strings.TrimSpace(payload.EducationalContext),
	}
	if out.EducationalContext == "" {
		out.EducationalContext = strings.TrimSpace(payload.EducationalContextCamel)
	}
	if len(out.Assumptions) == 0 {
		out.Assumptions = fallback.Assumptions
	}
	if len(out.Recommendations) == 0 {
		out.Recommendations = fallback.Recommendations
	}
	if out.EducationalContext == "" {
		out.EducationalContext = fallback.EducationalContext
	}
	return out, nil
}

func nonEmpty(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
