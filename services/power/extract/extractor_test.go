// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/AleutianAI/PowerFOSS/services/llm"
	"github.com/AleutianAI/PowerFOSS/services/power/providers"
	"github.com/AleutianAI/PowerFOSS/services/power/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(t *testing.T, chat providers.ChatClient) *Extractor {
	t.Helper()
	e, err := NewExtractor(chat, registry.MustDefault(), Config{}, nil)
	require.NoError(t, err)
	return e
}

func replyWith(reply string) providers.ChatFunc {
	return func(context.Context, []llm.Message, providers.ChatOptions) (string, error) {
		return reply, nil
	}
}

// =============================================================================
// Prompt
// =============================================================================

func TestBuildSystemPrompt_ListsEveryTest(t *testing.T) {
	b, err := NewPromptBuilder()
	require.NoError(t, err)

	reg := registry.MustDefault()
	prompt, err := b.BuildSystemPrompt(reg.List())
	require.NoError(t, err)

	for _, id := range reg.IDs() {
		assert.Contains(t, prompt, "### "+id)
	}
	assert.Contains(t, prompt, "alternative (string, optional, default: two.sided, one of: two.sided, greater, less)")
	assert.Contains(t, prompt, "u (integer, optional, default: 1)")
	assert.Contains(t, prompt, "delta (number, required)")
	assert.Contains(t, prompt, `"test_id"`)
}

// =============================================================================
// parseReply
// =============================================================================

func TestParseReply(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantID     string
		wantParams map[string]any
		wantConf   float64
		wantErr    bool
	}{
		{
			name:       "plain JSON",
			reply:      `{"test_id":"two_sample_t_test","params":{"delta":0.5,"sd":1,"power":0.8},"confidence":0.95,"explanation":"two groups"}`,
			wantID:     "two_sample_t_test",
			wantParams: map[string]any{"delta": 0.5, "sd": 1.0, "power": 0.8},
			wantConf:   0.95,
		},
		{
			name:       "code fence",
			reply:      "```json\n{\"test_id\":\"correlation\",\"params\":{\"r\":0.5,\"power\":0.8},\"confidence\":0.9}\n```",
			wantID:     "correlation",
			wantParams: map[string]any{"r": 0.5, "power": 0.8},
			wantConf:   0.9,
		},
		{
			name:       "surrounding prose",
			reply:      "Sure! Here it is: {\"test_id\":\"cox_ph\",\"params\":{}} Hope that helps.",
			wantID:     "cox_ph",
			wantParams: map[string]any{},
		},
		{
			name:       "legacy keys",
			reply:      `{"test_type":"one_way_ANOVA","parameters":{"k":3,"f":0.25,"power":0.8},"confidence":0.8}`,
			wantID:     "one_way_ANOVA",
			wantParams: map[string]any{"k": 3.0, "f": 0.25, "power": 0.8},
			wantConf:   0.8,
		},
		{
			name:     "confidence clamped high",
			reply:    `{"test_id":"correlation","confidence":7}`,
			wantID:   "correlation",
			wantConf: 1,
		},
		{
			name:     "confidence clamped low",
			reply:    `{"test_id":"correlation","confidence":-0.3}`,
			wantID:   "correlation",
			wantConf: 0,
		},
		{
			name:     "confidence as string",
			reply:    `{"test_id":"correlation","confidence":"0.6"}`,
			wantID:   "correlation",
			wantConf: 0.6,
		},
		{
			name:     "confidence missing",
			reply:    `{"test_id":"correlation","params":null}`,
			wantID:   "correlation",
			wantConf: 0,
		},
		{name: "empty", reply: "   ", wantErr: true},
		{name: "no object", reply: "I cannot help with that.", wantErr: true},
		{name: "broken JSON", reply: `{"test_id": "x",}`, wantErr: true},
		{name: "no test id", reply: `{"params":{"r":0.5}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, perr := parseReply(tt.reply)
			if tt.wantErr {
				require.NotNil(t, perr)
				assert.True(t, errors.Is(perr, ErrExtractionParse))
				return
			}
			require.Nil(t, perr)
			assert.Equal(t, tt.wantID, got.TestID)
			assert.Equal(t, tt.wantParams, got.Params)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
		})
	}
}

func TestParseReply_NoParamsIsNil(t *testing.T) {
	got, perr := parseReply(`{"test_id":"correlation"}`)
	require.Nil(t, perr)
	assert.Nil(t, got.Params)
}

// =============================================================================
// Extract
// =============================================================================

func TestExtract_NoClientIsUnavailable(t *testing.T) {
	e := newTestExtractor(t, nil)
	assert.False(t, e.Available())

	_, err := e.Extract(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrAIUnavailable)
}

func TestExtract_SendsPromptAndOptions(t *testing.T) {
	var seen providers.ChatOptions
	var msgs []llm.Message
	chat := providers.ChatFunc(func(_ context.Context, m []llm.Message, opts providers.ChatOptions) (string, error) {
		seen, msgs = opts, m
		return `{"test_id":"two_sample_t_test","params":{"delta":0.5,"sd":1.0,"power":0.8},"confidence":0.95,"explanation":"compare two groups"}`, nil
	})
	e := newTestExtractor(t, chat)

	query := "I need sample size for comparing two groups with 0.5 difference, SD of 1.0, and 80% power"
	got, err := e.Extract(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, query, got.OriginalQuery)
	assert.Equal(t, "two_sample_t_test", got.TestID)
	assert.Equal(t, "compare two groups", got.Explanation)

	assert.InDelta(t, 0.1, seen.Temperature, 1e-9)
	assert.Equal(t, 500, seen.MaxTokens)
	assert.True(t, seen.JSON)
	assert.Equal(t, "extract", seen.Purpose)

	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.True(t, strings.Contains(msgs[0].Content, "paired_wilcoxon_test"))
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, query, msgs[1].Content)
}

func TestExtract_ModelErrorWrapped(t *testing.T) {
	boom := errors.New("openai: API returned status 503")
	e := newTestExtractor(t, providers.ChatFunc(func(context.Context, []llm.Message, providers.ChatOptions) (string, error) {
		return "", boom
	}))

	_, err := e.Extract(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "extract: model call")
	assert.False(t, errors.Is(err, ErrExtractionParse))
}

func TestExtract_ParseErrorTyped(t *testing.T) {
	e := newTestExtractor(t, replyWith("no json here"))

	_, err := e.Extract(context.Background(), "q")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "no JSON object found", perr.Reason)
}

func TestExtract_EmptyQuerySkipsModel(t *testing.T) {
	var calls int32
	e := newTestExtractor(t, providers.ChatFunc(func(context.Context, []llm.Message, providers.ChatOptions) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "{}", nil
	}))

	_, err := e.Extract(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrExtractionParse)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestExtract_ConfigOverrides(t *testing.T) {
	var seen providers.ChatOptions
	chat := providers.ChatFunc(func(_ context.Context, _ []llm.Message, opts providers.ChatOptions) (string, error) {
		seen = opts
		return `{"test_id":"correlation"}`, nil
	})
	e, err := NewExtractor(chat, registry.MustDefault(), Config{Temperature: 0.3, MaxTokens: 200}, nil)
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), "q")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, seen.Temperature, 1e-9)
	assert.Equal(t, 200, seen.MaxTokens)
}

func TestNewExtractor_NilRegistry(t *testing.T) {
	_, err := NewExtractor(nil, nil, Config{}, nil)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"ascii cut", "abcdef", 3, "abc..."},
		{"inside two-byte rune", "aé", 2, "a..."},
		{"inside four-byte rune", "ab😀", 4, "ab..."},
		{"on rune boundary", "éé", 2, "é..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestExtract_ParseErrorReplyIsValidUTF8(t *testing.T) {
	reply := strings.Repeat("é", 150)
	e := newTestExtractor(t, providers.ChatFunc(func(context.Context, []llm.Message, providers.ChatOptions) (string, error) {
		return reply, nil
	}))

	_, err := e.Extract(context.Background(), "two groups")
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.True(t, utf8.ValidString(perr.Reply))
	assert.True(t, utf8.ValidString(err.Error()))
}
