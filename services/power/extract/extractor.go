// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract turns a natural-language question into a test id and raw
// parameters with one model call.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/PowerFOSS/services/llm"
	"github.com/AleutianAI/PowerFOSS/services/power/providers"
	"github.com/AleutianAI/PowerFOSS/services/power/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("powerfoss.extract")

var (
	// ErrAIUnavailable is returned before any call when no model client is
	// configured.
	ErrAIUnavailable = errors.New("AI features are disabled")

	// ErrExtractionParse is matched by every *ParseError.
	ErrExtractionParse = errors.New("extraction reply could not be parsed")
)

// ParseError reports a model reply that did not yield a usable extraction.
type ParseError struct {
	Reason string

	// Reply is a truncated, redacted copy of the model reply.
	Reply string
}

func (e *ParseError) Error() string {
	if e.Reply == "" {
		return fmt.Sprintf("extraction parse failed: %s", e.Reason)
	}
	return fmt.Sprintf("extraction parse failed: %s (reply: %s)", e.Reason, e.Reply)
}

// Unwrap lets errors.Is match ErrExtractionParse.
func (e *ParseError) Unwrap() error { return ErrExtractionParse }

// ExtractionResult is the model's reading of a query. Nothing in it has been
// validated against the catalogue.
type ExtractionResult struct {
	OriginalQuery string `json:"original_query"`

	// TestID is empty when the model named no test.
	TestID string `json:"test_id,omitempty"`

	// Params is nil when the model returned no parameter object.
	Params map[string]any `json:"params,omitempty"`

	// Confidence is in [0, 1]; 0 when the model gave none.
	Confidence float64 `json:"confidence"`

	Explanation string `json:"explanation,omitempty"`
}

// Config tunes the extraction call.
type Config struct {
	// Temperature for the extraction call. Default: 0.1
	Temperature float64

	// MaxTokens for the extraction reply. Default: 500
	MaxTokens int

	// Timeout bounds one extraction call. Zero leaves it to the client.
	Timeout time.Duration
}

// DefaultConfig returns the extraction defaults.
func DefaultConfig() Config {
	return Config{
		Temperature: 0.1,
		MaxTokens:   500,
	}
}

// Extractor calls the model with a catalogue-derived prompt and parses the
// JSON reply.
//
// Thread Safety: Extractor is safe for concurrent use.
type Extractor struct {
	chat         providers.ChatClient
	config       Config
	systemPrompt string
	logger       *slog.Logger
}

// NewExtractor builds an Extractor.
//
// Description:
//
//	The system prompt is rendered once from reg. A nil chat client is
//	allowed; every Extract then fails with ErrAIUnavailable without any
//	network activity.
//
// Inputs:
//
//	chat - Model client. May be nil.
//	reg - Test catalogue. Must not be nil.
//	config - Call tuning. Zero fields take defaults.
//	logger - Logger. Nil uses slog.Default().
//
// Outputs:
//
//	*Extractor - The extractor.
//	error - Non-nil if reg is nil or the prompt fails to render.
func NewExtractor(chat providers.ChatClient, reg *registry.Registry, config Config, logger *slog.Logger) (*Extractor, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry must not be nil")
	}
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

	builder, err := NewPromptBuilder()
	if err != nil {
		return nil, err
	}
	prompt, err := builder.BuildSystemPrompt(reg.List())
	if err != nil {
		return nil, fmt.Errorf("rendering extraction prompt: %w", err)
	}

	return &Extractor{
		chat:         chat,
		config:       config,
		systemPrompt: prompt,
		logger:       logger.With(slog.String("component", "extractor")),
	}, nil
}

// Available reports whether a model client is configured.
func (e *Extractor) Available() bool {
	return e.chat != nil
}

// Extract reads a test id and parameters out of query.
//
// Outputs:
//
//	ExtractionResult - The parsed reply.
//	error - ErrAIUnavailable, a *ParseError, or the wrapped model error.
func (e *Extractor) Extract(ctx context.Context, query string) (ExtractionResult, error) {
	if e.chat == nil {
		recordExtraction(outcomeUnavailable, 0)
		return ExtractionResult{}, ErrAIUnavailable
	}

	ctx, span := tracer.Start(ctx, "extract.Extractor.Extract")
	defer span.End()
	span.SetAttributes(attribute.String("query_preview", truncate(query, 100)))

	if strings.TrimSpace(query) == "" {
		err := &ParseError{Reason: "empty query"}
		span.SetStatus(codes.Error, "empty query")
		recordExtraction(outcomeParseError, 0)
		return ExtractionResult{}, err
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: e.systemPrompt},
		{Role: llm.RoleUser, Content: query},
	}
	opts := providers.ChatOptions{
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
		JSON:        true,
		Purpose:     "extract",
	}

	startTime := time.Now()
	reply, err := e.chat.Chat(ctx, messages, opts)
	if err != nil {
		duration := time.Since(startTime)
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		recordExtraction(outcomeError, duration)
		return ExtractionResult{}, fmt.Errorf("extract: model call: %w", err)
	}

	result, perr := parseReply(reply)
	duration := time.Since(startTime)
	if perr != nil {
		span.RecordError(perr)
		span.SetStatus(codes.Error, "parse failed")
		recordExtraction(outcomeParseError, duration)
		e.logger.Warn("extraction reply unusable",
			slog.String("reason", perr.Reason),
			slog.Duration("duration", duration),
		)
		return ExtractionResult{}, perr
	}
	result.OriginalQuery = query

	recordExtraction(outcomeSuccess, duration)
	span.SetAttributes(
		attribute.String("extract.test_id", result.TestID),
		attribute.Int("extract.param_count", len(result.Params)),
		attribute.Float64("extract.confidence", result.Confidence),
		attribute.Int64("extract.duration_ms", duration.Milliseconds()),
	)
	e.logger.Info("extraction succeeded",
		slog.String("test_id", result.TestID),
		slog.Int("params", len(result.Params)),
		slog.Duration("duration", duration),
	)
	return result, nil
}

// replyPayload accepts both the current keys and the test_type/parameters
// keys older prompts produced.
type replyPayload struct {
	TestID      string          `json:"test_id"`
	TestType    string          `json:"test_type"`
	Params      map[string]any  `json:"params"`
	Parameters  map[string]any  `json:"parameters"`
	Confidence  json.RawMessage `json:"confidence"`
	Explanation string          `json:"explanation"`
}

// parseReply extracts the outermost JSON object from a model reply.
func parseReply(reply string) (ExtractionResult, *ParseError) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return ExtractionResult{}, &ParseError{Reason: "empty reply"}
	}

	// Clean up markdown code blocks
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	reply = strings.TrimSpace(reply)

	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end == -1 || end <= start {
		return ExtractionResult{}, &ParseError{Reason: "no JSON object found", Reply: preview(reply)}
	}
	body := reply[start : end+1]

	var payload replyPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return ExtractionResult{}, &ParseError{Reason: "invalid JSON: " + err.Error(), Reply: preview(body)}
	}

	testID := strings.TrimSpace(payload.TestID)
	if testID == "" {
		testID = strings.TrimSpace(payload.TestType)
	}
	if testID == "" {
		return ExtractionResult{}, &ParseError{Reason: "reply names no test", Reply: preview(body)}
	}

	params := payload.Params
	if params == nil {
		params = payload.Parameters
	}

	return ExtractionResult{
		TestID:      testID,
		Params:      params,
		Confidence:  parseConfidence(payload.Confidence),
		Explanation: strings.TrimSpace(payload.Explanation),
	}, nil
}

// parseConfidence accepts a number or numeric string and clamps to [0, 1].
func parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		v = parsed
	}
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func preview(s string) string {
	return llm.SafeLogString(truncate(s, 200))
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
