// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package egress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrSecretNotFound is returned when no value exists for a secret key.
var ErrSecretNotFound = errors.New("secret not found")

// ErrSecretDestroyed is returned by a LockedKey after Destroy.
var ErrSecretDestroyed = errors.New("secret destroyed")

// SecretBackend retrieves secrets by key.
//
// Thread Safety: Implementations must be safe for concurrent use.
type SecretBackend interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// EnvBackend reads secrets from environment variables, falling back to a
// container secret file under dir (e.g. /run/secrets/openai_api_key).
type EnvBackend struct {
	dir string
}

// NewEnvBackend creates an environment backend. An empty dir disables the
// secret file fallback.
func NewEnvBackend(dir string) *EnvBackend {
	return &EnvBackend{dir: dir}
}

// GetSecret implements SecretBackend.
func (e *EnvBackend) GetSecret(ctx context.Context, key string) (string, error) {
	if ctx.Err() != nil {
		return "", fmt.Errorf("retrieving secret %q: %w", key, ctx.Err())
	}
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v, nil
	}
	if e.dir != "" {
		path := e.dir + "/" + strings.ToLower(key)
		if content, err := os.ReadFile(path); err == nil {
			if v := strings.TrimSpace(string(content)); v != "" {
				return v, nil
			}
		}
	}
	return "", fmt.Errorf("secret %q: %w", key, ErrSecretNotFound)
}

// LockedKey keeps an API key sealed in a memguard enclave. The plaintext
// exists only for the duration of a single APIKey call.
//
// Thread Safety: Safe for concurrent use.
type LockedKey struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
}

// NewLockedKey seals value. The caller should drop its own copy.
// Returns nil for an empty value.
func NewLockedKey(value string) *LockedKey {
	if value == "" {
		return nil
	}
	return &LockedKey{enclave: memguard.NewEnclave([]byte(value))}
}

// APIKey opens the enclave and returns a copy of the key.
func (k *LockedKey) APIKey() (string, error) {
	if k == nil {
		return "", ErrSecretNotFound
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.enclave == nil {
		return "", ErrSecretDestroyed
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("opening key enclave: %w", err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// Destroy drops the enclave. Later APIKey calls fail.
func (k *LockedKey) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	k.enclave = nil
	k.mu.Unlock()
}

// SecretManager resolves provider credentials into LockedKeys.
//
// Description:
//
//	An explicitly configured value wins. Otherwise the backend is asked for
//	the provider's environment key (OPENAI_API_KEY, ANTHROPIC_API_KEY).
type SecretManager struct {
	backend SecretBackend
}

// NewSecretManager creates a secret manager over backend. A nil backend
// selects an EnvBackend reading /run/secrets.
func NewSecretManager(backend SecretBackend) *SecretManager {
	if backend == nil {
		backend = NewEnvBackend("/run/secrets")
	}
	return &SecretManager{backend: backend}
}

// Resolve returns a LockedKey for configured, or for the backend value of
// envKey when configured is empty. ErrSecretNotFound is returned when
// neither source yields a value.
func (s *SecretManager) Resolve(ctx context.Context, configured, envKey string) (*LockedKey, error) {
	if v := strings.TrimSpace(configured); v != "" {
		return NewLockedKey(v), nil
	}
	if envKey == "" {
		return nil, ErrSecretNotFound
	}
	v, err := s.backend.GetSecret(ctx, envKey)
	if err != nil {
		return nil, err
	}
	return NewLockedKey(v), nil
}
