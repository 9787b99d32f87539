// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/AleutianAI/PowerFOSS/services/power/providers"
)

const (
	// EnvPrefix prefixes every configuration variable.
	EnvPrefix = "POWER_"

	// EnvConfigPath names the YAML file to load when no path is given.
	EnvConfigPath = "POWER_CONFIG"
)

// Load builds a Config by layering defaults, an optional file, and env vars.
//
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. YAML file at path, or at $POWER_CONFIG when path is empty
//  3. env (prefix POWER_, "__" separates sections: POWER_LLM__API_KEY)
//  4. OPENAI_API_KEY, OPENAI_MODEL, OPENAI_BASE_URL for an openai
//     backend, only where the layers above left the field empty
//     or at its default
func Load(ctx context.Context, path string) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	base := New()
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: environment: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	applyOpenAIFallbacks(&cfg, k)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyOpenAIFallbacks reads the conventional OPENAI_* variables.
func applyOpenAIFallbacks(cfg *Config, k *koanf.Koanf) {
	if cfg.LLM.Provider != "" && cfg.LLM.Provider != providers.ProviderOpenAI {
		return
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" && !k.Exists("llm.model") {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = v
	}
}
