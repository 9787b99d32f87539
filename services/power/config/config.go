// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config defines the powerd configuration and its layered loader.
package config

import (
	"fmt"
	"time"

	"github.com/AleutianAI/PowerFOSS/services/power/compose"
	"github.com/AleutianAI/PowerFOSS/services/power/extract"
	"github.com/AleutianAI/PowerFOSS/services/power/providers"
)

// Config is the full process configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	LLM     LLMConfig     `koanf:"llm"`
	Cache   CacheConfig   `koanf:"cache"`
	Log     LogConfig     `koanf:"log"`
	Tracing TracingConfig `koanf:"tracing"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	// Port for the API. Default: 8080
	Port int `koanf:"port"`

	// MetricsPort serves /metrics separately when non-zero.
	MetricsPort int `koanf:"metrics_port"`

	// Debug enables gin debug mode and access logs.
	Debug bool `koanf:"debug"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LLMConfig configures the model backend. An empty APIKey with no key in
// the environment leaves AI disabled.
type LLMConfig struct {
	// Provider is "openai" or "anthropic". Empty infers from Model.
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`

	// AllowKeyless permits an OpenAI-compatible BaseURL without a key.
	AllowKeyless bool `koanf:"allow_keyless"`

	// Timeout bounds one HTTP request to the provider.
	Timeout time.Duration `koanf:"timeout"`

	ExtractTemperature float64 `koanf:"extract_temperature"`
	ExtractMaxTokens   int     `koanf:"extract_max_tokens"`
	ExplainTemperature float64 `koanf:"explain_temperature"`
	ExplainMaxTokens   int     `koanf:"explain_max_tokens"`

	// RatePerMinute caps outbound model calls. Zero is unlimited.
	RatePerMinute int `koanf:"rate_per_minute"`
	Burst         int `koanf:"burst"`
}

// CacheConfig configures the calculation result cache.
type CacheConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Path     string        `koanf:"path"`
	InMemory bool          `koanf:"in_memory"`
	TTL      time.Duration `koanf:"ttl"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `koanf:"level"`

	// Format is json, text or auto (text on a terminal).
	Format string `koanf:"format"`
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	// Exporter is none, stdout or otlp.
	Exporter string `koanf:"exporter"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `koanf:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `koanf:"insecure"`
}

// New returns a Config with defaults.
func New() *Config {
	extractDefaults := extract.DefaultConfig()
	composeDefaults := compose.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:           providers.ProviderOpenAI,
			Model:              "gpt-4o-mini",
			Timeout:            60 * time.Second,
			ExtractTemperature: extractDefaults.Temperature,
			ExtractMaxTokens:   extractDefaults.MaxTokens,
			ExplainTemperature: composeDefaults.Temperature,
			ExplainMaxTokens:   composeDefaults.MaxTokens,
			RatePerMinute:      60,
			Burst:              10,
		},
		Cache: CacheConfig{
			Enabled:  true,
			InMemory: true,
			TTL:      24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Tracing: TracingConfig{
			Exporter: "none",
			Endpoint: "localhost:4317",
			Insecure: true,
		},
	}
}

// Validate checks value ranges after loading.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 1 || c.Server.Port > 65535:
		return invalid("server.port %d out of range", c.Server.Port)
	case c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535:
		return invalid("server.metrics_port %d out of range", c.Server.MetricsPort)
	case c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.Port:
		return invalid("server.metrics_port must differ from server.port")
	case c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0:
		return invalid("server timeouts must not be negative")
	case c.LLM.Provider != "" && !providers.IsValidProvider(c.LLM.Provider):
		return invalid("llm.provider %q is not one of %v", c.LLM.Provider, providers.ValidProviders)
	case c.LLM.Timeout <= 0:
		return invalid("llm.timeout must be positive")
	case c.LLM.ExtractTemperature < 0 || c.LLM.ExplainTemperature < 0:
		return invalid("llm temperatures must not be negative")
	case c.LLM.ExtractMaxTokens < 0 || c.LLM.ExplainMaxTokens < 0:
		return invalid("llm token limits must not be negative")
	case c.LLM.RatePerMinute < 0 || c.LLM.Burst < 0:
		return invalid("llm.rate_per_minute and llm.burst must not be negative")
	case c.Cache.Enabled && !c.Cache.InMemory && c.Cache.Path == "":
		return invalid("cache.path is required for an on-disk cache")
	case c.Cache.TTL < 0:
		return invalid("cache.ttl must not be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text", "auto":
	default:
		return invalid("log.format %q is not one of json, text, auto", c.Log.Format)
	}
	switch c.Tracing.Exporter {
	case "none", "stdout":
	case "otlp":
		if c.Tracing.Endpoint == "" {
			return invalid("tracing.endpoint is required for the otlp exporter")
		}
	default:
		return invalid("tracing.exporter %q is not one of none, stdout, otlp", c.Tracing.Exporter)
	}
	return nil
}

// ProviderConfig converts the llm section for the provider factory.
func (c LLMConfig) ProviderConfig() providers.ProviderConfig {
	provider := c.Provider
	if provider == "" {
		provider = providers.InferProvider(c.Model)
	}
	return providers.ProviderConfig{
		Provider:     provider,
		Model:        c.Model,
		BaseURL:      c.BaseURL,
		APIKey:       c.APIKey,
		KeyFromEnv:   true,
		AllowKeyless: c.AllowKeyless,
		Timeout:      c.Timeout,
	}
}

// ExtractConfig returns the extraction call tuning.
func (c LLMConfig) ExtractConfig() extract.Config {
	return extract.Config{
		Temperature: c.ExtractTemperature,
		MaxTokens:   c.ExtractMaxTokens,
		Timeout:     c.Timeout,
	}
}

// ComposeConfig returns the explanation call tuning.
func (c LLMConfig) ComposeConfig() compose.Config {
	return compose.Config{
		Temperature: c.ExplainTemperature,
		MaxTokens:   c.ExplainMaxTokens,
		Timeout:     c.Timeout,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
