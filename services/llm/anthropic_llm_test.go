// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicClient_Chat_SystemHoisted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "ant-key" {
			t.Errorf("x-api-key = %q, want ant-key", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicAPIVersion {
			t.Errorf("anthropic-version = %q", got)
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if req.System != "be precise" {
			t.Errorf("system = %q, want %q", req.System, "be precise")
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if req.MaxTokens != 1000 {
			t.Errorf("max_tokens = %d, want 1000", req.MaxTokens)
		}

		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{{Type: "text", Text: "part one, "}, {Type: "text", Text: "part two"}},
		})
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig(StaticKey("ant-key"), "", server.URL, 0)
	maxTokens := 1000
	got, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "be precise"},
		{Role: RoleUser, Content: "hello"},
	}, GenerationParams{MaxTokens: &maxTokens})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "part one, part two" {
		t.Errorf("got %q", got)
	}
}

func TestAnthropicClient_Chat_DefaultMaxTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.MaxTokens != defaultAnthropicMaxTokens {
			t.Errorf("max_tokens = %d, want %d", req.MaxTokens, defaultAnthropicMaxTokens)
		}
		json.NewEncoder(w).Encode(anthropicResponse{Content: []anthropicContent{{Type: "text", Text: "ok"}}})
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig(StaticKey("k"), "m", server.URL, 0)
	if _, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, GenerationParams{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAnthropicClient_Chat_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"http status", http.StatusTooManyRequests, `{"type":"error"}`, "status 429"},
		{"api error", http.StatusOK, `{"error":{"type":"overloaded_error","message":"busy"}}`, "overloaded_error"},
		{"no text", http.StatusOK, `{"content":[{"type":"thinking"}]}`, "no text content"},
		{"bad json", http.StatusOK, `not json`, "parsing response JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewAnthropicClientWithConfig(StaticKey("k"), "m", server.URL, 0)
			_, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, GenerationParams{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
