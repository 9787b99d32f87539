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
	"strings"
	"time"
)

// Provider constants for supported LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ValidProviders contains the set of valid provider names.
var ValidProviders = []string{ProviderOpenAI, ProviderAnthropic}

// IsValidProvider reports whether provider names a supported backend.
func IsValidProvider(provider string) bool {
	for _, p := range ValidProviders {
		if provider == p {
			return true
		}
	}
	return false
}

// EnvKeyFor returns the environment variable holding provider's API key.
func EnvKeyFor(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// ProviderConfig holds the configuration for the single model backend.
//
// Description:
//
//	APIKey may be empty when KeyFromEnv is set; the factory then resolves
//	the key through the secret manager. A config with neither yields an
//	unconfigured backend, which the pipeline reports as AI disabled.
type ProviderConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider string

	// Model is the provider-specific model identifier.
	Model string

	// BaseURL is an optional endpoint override.
	BaseURL string

	// APIKey is an explicitly configured key.
	APIKey string

	// KeyFromEnv allows falling back to the provider's environment key.
	KeyFromEnv bool

	// AllowKeyless permits an OpenAI-compatible BaseURL without a key
	// (local inference servers).
	AllowKeyless bool

	// Timeout bounds one HTTP request to the provider.
	Timeout time.Duration
}

// InferProvider maps a model name prefix to a provider: "claude-*" to
// anthropic, everything else to openai.
func InferProvider(model string) string {
	if strings.HasPrefix(strings.ToLower(model), "claude-") {
		return ProviderAnthropic
	}
	return ProviderOpenAI
}
