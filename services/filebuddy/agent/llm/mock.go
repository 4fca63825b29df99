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
	"sync"
	"time"
)

// MockClient is a scripted Client for tests.
//
// Responses are served in order; when the script is exhausted the
// last response repeats. A Handler can be set instead for
// content-dependent scripting. Every request is recorded.
//
// Thread Safety: safe for concurrent use.
type MockClient struct {
	mu sync.Mutex

	// Responses is the scripted response queue.
	Responses []string

	// Err, when set, fails every call with this error.
	Err error

	// Latency is added to every call before responding.
	Latency time.Duration

	// Handler, when set, overrides Responses entirely.
	Handler func(req *Request) (string, error)

	// ModelName reported by Model(). Defaults to "mock-model".
	ModelName string

	calls []Request
	next  int
}

// NewMockClient creates a mock that replies with the given responses
// in order.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{Responses: responses}
}

// Complete implements the Client interface.
func (m *MockClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if request != nil {
		m.calls = append(m.calls, *request)
	}

	if m.Err != nil {
		return nil, m.Err
	}

	if m.Handler != nil {
		content, err := m.Handler(request)
		if err != nil {
			return nil, err
		}
		return &Response{Content: content, Model: m.Model()}, nil
	}

	if len(m.Responses) == 0 {
		return nil, ErrEmptyResponse
	}

	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.next++
	}
	return &Response{Content: m.Responses[idx], Model: m.Model()}, nil
}

// Name implements the Client interface.
func (m *MockClient) Name() string { return "mock" }

// Model implements the Client interface.
func (m *MockClient) Model() string {
	if m.ModelName != "" {
		return m.ModelName
	}
	return "mock-model"
}

// Calls returns a copy of all recorded requests.
func (m *MockClient) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of requests received.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls and rewinds the response script.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
}

var _ Client = (*MockClient)(nil)
