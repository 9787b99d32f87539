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
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/PowerFOSS/services/llm"
	"github.com/AleutianAI/PowerFOSS/services/power/providers/egress"
)

// ErrNotConfigured is returned when no credential or endpoint is available
// for the configured provider.
var ErrNotConfigured = errors.New("model backend not configured")

// ProviderFactory creates ChatClients from ProviderConfig.
//
// Thread Safety: ProviderFactory is safe for concurrent use after construction.
type ProviderFactory struct {
	secrets *egress.SecretManager
	guard   *egress.Guard
	logger  *slog.Logger
}

// NewProviderFactory creates a new ProviderFactory.
//
// Inputs:
//   - secrets: Secret manager for key resolution. Nil uses the environment.
//   - guard: Egress guard applied to every created client. May be nil.
//   - logger: Logger. Nil uses slog.Default().
//
// Outputs:
//   - *ProviderFactory: Configured factory.
func NewProviderFactory(secrets *egress.SecretManager, guard *egress.Guard, logger *slog.Logger) *ProviderFactory {
	if secrets == nil {
		secrets = egress.NewSecretManager(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderFactory{secrets: secrets, guard: guard, logger: logger}
}

// resolveKey returns the sealed key for cfg, nil with no error for a
// permitted keyless endpoint, or ErrNotConfigured.
func (f *ProviderFactory) resolveKey(ctx context.Context, cfg ProviderConfig) (*egress.LockedKey, error) {
	envKey := ""
	if cfg.KeyFromEnv {
		envKey = EnvKeyFor(cfg.Provider)
	}
	key, err := f.secrets.Resolve(ctx, cfg.APIKey, envKey)
	switch {
	case err == nil:
		return key, nil
	case errors.Is(err, egress.ErrSecretNotFound):
		if cfg.AllowKeyless && cfg.Provider == ProviderOpenAI && cfg.BaseURL != "" {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrNotConfigured)
	default:
		return nil, fmt.Errorf("resolving %s credential: %w", cfg.Provider, err)
	}
}

// Configured reports whether CreateChatClient would find a credential for
// cfg. It performs no network I/O.
func (f *ProviderFactory) Configured(ctx context.Context, cfg ProviderConfig) bool {
	if !IsValidProvider(cfg.Provider) {
		return false
	}
	key, err := f.resolveKey(ctx, cfg)
	if err != nil {
		return false
	}
	key.Destroy()
	return true
}

// CreateChatClient creates a ChatClient for cfg.
//
// Outputs:
//   - ChatClient: The chat adapter for the provider.
//   - error: ErrNotConfigured when no key is available, or an error for an
//     unsupported provider.
func (f *ProviderFactory) CreateChatClient(ctx context.Context, cfg ProviderConfig) (ChatClient, error) {
	if !IsValidProvider(cfg.Provider) {
		return nil, fmt.Errorf("unsupported provider: %q (valid: %v)", cfg.Provider, ValidProviders)
	}

	key, err := f.resolveKey(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var keys llm.KeySource = llm.StaticKey("")
	if key != nil {
		keys = key
	}

	var client llm.LLMClient
	switch cfg.Provider {
	case ProviderAnthropic:
		client = llm.NewAnthropicClientWithConfig(keys, cfg.Model, cfg.BaseURL, cfg.Timeout)
	default:
		client = llm.NewOpenAIClientWithConfig(keys, cfg.Model, cfg.BaseURL, cfg.Timeout)
	}

	f.logger.Info("model client created",
		slog.String("provider", cfg.Provider),
		slog.String("model", client.Model()),
		slog.Bool("keyless", key == nil),
	)
	return NewLLMChatAdapter(client, cfg.Provider, f.guard), nil
}
