// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package providers defines the provider-agnostic chat interface used by the
// query pipeline and the factory that builds it from configuration.
//
// Thread Safety:
//
//	All interfaces in this package must be implemented as safe for concurrent use.
package providers

import (
	"context"

	"github.com/AleutianAI/PowerFOSS/services/llm"
)

// ChatClient is the minimal interface used by the extractor and composer.
//
// Description:
//
//	Both pipeline stages need one request/response exchange and nothing
//	else (no tools, no streaming), which keeps adapters trivial.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ChatClient interface {
	// Chat sends messages and returns the assistant's response text.
	//
	// Inputs:
	//   - ctx: Context for cancellation and timeout.
	//   - messages: Conversation messages (system, user).
	//   - opts: Provider-agnostic chat options.
	//
	// Outputs:
	//   - string: The assistant's response text.
	//   - error: Non-nil on failure.
	Chat(ctx context.Context, messages []llm.Message, opts ChatOptions) (string, error)
}

// ChatOptions holds provider-agnostic options for a chat request.
type ChatOptions struct {
	// Temperature controls randomness. A negative value omits it from the
	// request so the provider default applies. Zero is an explicit setting.
	Temperature float64

	// MaxTokens limits the response length. Zero leaves it to the provider.
	MaxTokens int

	// JSON asks for a JSON-object reply where the provider supports it.
	JSON bool

	// Purpose labels the call for egress accounting ("extract", "explain").
	Purpose string
}

// ChatFunc adapts an ordinary function to ChatClient.
type ChatFunc func(ctx context.Context, messages []llm.Message, opts ChatOptions) (string, error)

// Chat implements ChatClient.
func (f ChatFunc) Chat(ctx context.Context, messages []llm.Message, opts ChatOptions) (string, error) {
	return f(ctx, messages, opts)
}
