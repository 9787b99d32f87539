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
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestOpenAIClient(url string, keys KeySource) *OpenAIClient {
	c := NewOpenAIClientWithConfig(keys, "gpt-4o-mini", url, 0)
	return c
}

func TestNewOpenAIClientWithConfig_Defaults(t *testing.T) {
	c := NewOpenAIClientWithConfig(StaticKey("k"), "", "", 0)
	if c.model != DefaultOpenAIModel {
		t.Errorf("model = %q, want %q", c.model, DefaultOpenAIModel)
	}
	if c.baseURL != DefaultOpenAIBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultOpenAIBaseURL)
	}
	if c.httpClient.Timeout.Seconds() != 120 {
		t.Errorf("timeout = %v, want 120s", c.httpClient.Timeout)
	}
}

func TestOpenAIClient_Chat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q, want %q", auth, "Bearer test-key")
		}

		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("model = %q, want %q", req.Model, "gpt-4o-mini")
		}
		if req.Temperature == nil || *req.Temperature != 0.1 {
			t.Errorf("temperature = %v, want 0.1", req.Temperature)
		}
		if req.MaxCompletionTokens == nil || *req.MaxCompletionTokens != 500 {
			t.Errorf("max_completion_tokens = %v, want 500", req.MaxCompletionTokens)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format = %+v, want json_object", req.ResponseFormat)
		}

		resp := openaiResponse{
			Choices: []openaiChoice{
				{Message: openaiMessage{Role: "assistant", Content: `{"test_id":"correlation"}`}, FinishReason: "stop"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL, StaticKey("test-key"))
	temp := float32(0.1)
	maxTokens := 500

	result, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "extract"},
		{Role: RoleUser, Content: "correlation 0.5"},
	}, GenerationParams{Temperature: &temp, MaxTokens: &maxTokens, JSONMode: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `{"test_id":"correlation"}` {
		t.Errorf("result = %q", result)
	}
}

func TestOpenAIClient_Chat_UnknownRoleMappedToUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v, want single user message", req.Messages)
		}
		if req.ResponseFormat != nil {
			t.Errorf("response_format should be omitted without JSONMode")
		}
		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{Role: "assistant", Content: "ok"}}},
		})
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL, StaticKey("k"))
	if _, err := client.Chat(context.Background(), []Message{{Role: "tool", Content: "x"}}, GenerationParams{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenAIClient_Chat_NoKeyOmitsAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("Authorization = %q, want empty", auth)
		}
		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{Content: "ok"}}},
		})
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL, StaticKey(""))
	if _, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, GenerationParams{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenAIClient_Chat_HTTPErrorIsRedacted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key sk-abcdefghijklmnopqrstuvwxyz012345"}}`))
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL, StaticKey("k"))
	_, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, GenerationParams{})
	if err == nil {
		t.Fatal("expected error for 401")
	}
	if !strings.Contains(err.Error(), "status 401") {
		t.Errorf("error should mention status, got: %v", err)
	}
	if strings.Contains(err.Error(), "sk-abcdefghijklmnopqrstuvwxyz012345") {
		t.Errorf("error leaked API key: %v", err)
	}
}

func TestOpenAIClient_Chat_APIErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openaiResponse{Error: &openaiError{Type: "invalid_request_error", Message: "nope"}})
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL, StaticKey("k"))
	_, err := client.Chat(context.Background(), nil, GenerationParams{})
	if err == nil || !strings.Contains(err.Error(), "invalid_request_error") {
		t.Fatalf("err = %v, want API error", err)
	}
}

func TestOpenAIClient_Chat_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openaiResponse{})
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL, StaticKey("k"))
	_, err := client.Chat(context.Background(), nil, GenerationParams{})
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Fatalf("err = %v, want no choices error", err)
	}
}

type failingKeys struct{}

func (failingKeys) APIKey() (string, error) { return "", errors.New("vault sealed") }

func TestOpenAIClient_Chat_KeySourceError(t *testing.T) {
	client := newTestOpenAIClient("http://127.0.0.1:0", failingKeys{})
	_, err := client.Chat(context.Background(), nil, GenerationParams{})
	if err == nil || !strings.Contains(err.Error(), "vault sealed") {
		t.Fatalf("err = %v, want key source error", err)
	}
}

func TestOpenAIClient_Chat_ModelOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-4o" {
			t.Errorf("model = %q, want gpt-4o", req.Model)
		}
		json.NewEncoder(w).Encode(openaiResponse{Choices: []openaiChoice{{Message: openaiMessage{Content: "ok"}}}})
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL, StaticKey("k"))
	if _, err := client.Chat(context.Background(), nil, GenerationParams{ModelOverride: "gpt-4o"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
