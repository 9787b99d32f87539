// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm contains raw net/http clients for hosted chat-completion APIs.
package llm

import "context"

// Message roles understood by every client in this package.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams carries optional sampling controls. Nil pointers are
// omitted from the wire request so the provider default applies.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// ModelOverride replaces the client's configured model for one call.
	ModelOverride string `json:"model_override,omitempty"`

	// JSONMode asks the provider to constrain output to a JSON object when
	// it supports that natively. Providers without support ignore it.
	JSONMode bool `json:"json_mode,omitempty"`
}

// LLMClient is implemented by every backend client.
type LLMClient interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
	Model() string
}
