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
	"sync"

	"github.com/AleutianAI/PowerFOSS/services/llm"
)

// LazyChatClient builds its underlying ChatClient on first use.
//
// Description:
//
//	The build function runs at most once, even under concurrent first
//	calls. A build error is sticky: every later Chat returns it, so a bad
//	credential is not retried on each request.
//
// Thread Safety: Safe for concurrent use.
type LazyChatClient struct {
	build func() (ChatClient, error)

	once   sync.Once
	client ChatClient
	err    error
}

// NewLazyChatClient wraps build.
func NewLazyChatClient(build func() (ChatClient, error)) *LazyChatClient {
	return &LazyChatClient{build: build}
}

// NewLazyFromFactory defers factory.CreateChatClient(cfg) to the first call.
func NewLazyFromFactory(factory *ProviderFactory, cfg ProviderConfig) *LazyChatClient {
	return NewLazyChatClient(func() (ChatClient, error) {
		return factory.CreateChatClient(context.Background(), cfg)
	})
}

func (l *LazyChatClient) get() (ChatClient, error) {
	l.once.Do(func() {
		l.client, l.err = l.build()
	})
	return l.client, l.err
}

// Chat implements ChatClient.
func (l *LazyChatClient) Chat(ctx context.Context, messages []llm.Message, opts ChatOptions) (string, error) {
	client, err := l.get()
	if err != nil {
		return "", err
	}
	return client.Chat(ctx, messages, opts)
}
