// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/PowerFOSS/services/llm"
	"github.com/AleutianAI/PowerFOSS/services/power/providers/egress"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LLMChatAdapter wraps an llm.LLMClient to implement ChatClient.
//
// Description:
//
//	Converts ChatOptions to llm.GenerationParams, passes the call through
//	the egress guard when one is set, and records a span plus metrics for
//	every call.
//
// Thread Safety: LLMChatAdapter is safe for concurrent use.
type LLMChatAdapter struct {
	client   llm.LLMClient
	provider string
	guard    *egress.Guard
}

// NewLLMChatAdapter creates a new LLMChatAdapter.
//
// Inputs:
//   - client: The LLM client to wrap. Must not be nil.
//   - provider: Provider label for spans and metrics.
//   - guard: Optional egress guard. Nil admits every call.
//
// Outputs:
//   - *LLMChatAdapter: The configured adapter.
func NewLLMChatAdapter(client llm.LLMClient, provider string, guard *egress.Guard) *LLMChatAdapter {
	return &LLMChatAdapter{client: client, provider: provider, guard: guard}
}

// Chat implements ChatClient.
func (a *LLMChatAdapter) Chat(ctx context.Context, messages []llm.Message, opts ChatOptions) (string, error) {
	if a.client == nil {
		return "", fmt.Errorf("%s client is nil", a.provider)
	}

	ctx, span := otel.Tracer(chatTracerName).Start(ctx, "providers.LLMChatAdapter.Chat",
		trace.WithAttributes(
			attribute.String("provider", a.provider),
			attribute.String("model", a.client.Model()),
			attribute.String("purpose", opts.Purpose),
			attribute.Int("message_count", len(messages)),
			attribute.Float64("temperature", opts.Temperature),
		),
	)
	defer span.End()

	startTime := time.Now()

	if a.guard != nil {
		decision, err := a.guard.Admit(ctx, a.provider, opts.Purpose)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			recordChatMetrics(a.provider, time.Since(startTime), err)
			return "", err
		}
		span.SetAttributes(attribute.String("egress.request_id", decision.RequestID))
	}

	params := llm.GenerationParams{JSONMode: opts.JSON}
	if opts.Temperature >= 0 {
		temp := float32(opts.Temperature)
		params.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		params.MaxTokens = &maxTokens
	}

	result, err := a.client.Chat(ctx, messages, params)
	duration := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordChatMetrics(a.provider, duration, err)
		slog.Debug("chat call failed",
			slog.String("provider", a.provider),
			slog.String("purpose", opts.Purpose),
			slog.String("error", llm.SafeLogString(err.Error())),
		)
		return "", err
	}

	span.SetAttributes(attribute.Int("response_len", len(result)))
	recordChatMetrics(a.provider, duration, nil)
	return result, nil
}
