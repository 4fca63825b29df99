// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the LLM completion boundary for the agent.
//
// This package defines the single interface the agent, selector, and
// supervisor use to talk to a language model, plus concrete adapters
// for OpenAI and Ollama and a scripted mock for tests. All provider
// shape normalization lives in the adapters; nothing outside this
// package sees a provider SDK type.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package llm

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for completion failures.
var (
	// ErrUnavailable indicates the provider could not be reached.
	// Callers treat this as a trigger for their non-LLM fallback path.
	ErrUnavailable = errors.New("llm provider unavailable")

	// ErrEmptyResponse indicates the provider answered with no content.
	ErrEmptyResponse = errors.New("llm returned empty response")
)

// Client defines the interface for LLM completions.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends a prompt to the LLM and returns a response.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   request - The completion request
	//
	// Outputs:
	//   *Response - The LLM response
	//   error - Non-nil if the request failed. Transport failures wrap
	//           ErrUnavailable so callers can detect degraded mode.
	Complete(ctx context.Context, request *Request) (*Response, error)

	// Name returns the provider name (e.g., "openai", "ollama").
	Name() string

	// Model returns the model being used.
	Model() string
}

// Request represents a completion request to the LLM.
type Request struct {
	// SystemPrompt is the system message. Optional.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Prompt is the user message.
	Prompt string `json:"prompt"`

	// MaxTokens limits the response length. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-1.0).
	Temperature float32 `json:"temperature,omitempty"`

	// JSONMode requests a JSON-only response from providers that
	// support constrained output. Callers must still parse defensively;
	// not every provider honors the constraint.
	JSONMode bool `json:"json_mode,omitempty"`

	// Timeout bounds this single call. Zero means the caller's ctx
	// deadline (or none) applies.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Response represents an LLM response.
type Response struct {
	// Content is the text response.
	Content string `json:"content"`

	// TokensUsed is the total tokens consumed (input + output),
	// zero when the provider does not report usage.
	TokensUsed int `json:"tokens_used"`

	// Duration is how long the request took.
	Duration time.Duration `json:"duration"`

	// Model is the model that generated this response.
	Model string `json:"model,omitempty"`
}

// applyTimeout derives a context honoring the request's per-call timeout.
func applyTimeout(ctx context.Context, req *Request) (context.Context, context.CancelFunc) {
	if req != nil && req.Timeout > 0 {
		return context.WithTimeout(ctx, req.Timeout)
	}
	return ctx, func() {}
}
