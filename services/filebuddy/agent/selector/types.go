// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package selector maps natural-language queries to workspace tools.
//
// The primary strategy asks the LLM to pick a tool from the registry's
// definitions. When the LLM is unavailable, returns malformed output,
// or reports low confidence, an ordered multilingual pattern table
// takes over. An empty Tool in the result means the agent should
// answer directly without calling a tool.
package selector

import (
	"fmt"
	"strings"
	"time"
)

// Result contains the outcome of tool selection for a query.
//
// Thread Safety: This type is immutable after creation and safe for
// concurrent read.
type Result struct {
	// Tool is the selected tool name. Empty means answer directly.
	Tool string `json:"tool,omitempty"`

	// Confidence is the selection confidence (0.0-1.0).
	Confidence float64 `json:"confidence,omitempty"`

	// Reasoning explains the selection decision.
	Reasoning string `json:"reasoning,omitempty"`

	// Alternatives are other plausible tools, best first.
	Alternatives []string `json:"alternatives,omitempty"`

	// Parameters are suggested parameters for the tool.
	Parameters map[string]any `json:"parameters,omitempty"`

	// FallbackUsed indicates the pattern fallback produced this result.
	FallbackUsed bool `json:"-"`

	// Cached indicates this result came from cache.
	Cached bool `json:"-"`

	// Duration is how long selection took.
	Duration time.Duration `json:"-"`
}

// Config configures the selector behavior.
//
// Thread Safety: This type should not be modified after passing to New.
type Config struct {
	// Temperature for selection calls. Must be in [0, 1].
	Temperature float32

	// MaxTokens limits the selection response length. Must be > 0.
	MaxTokens int

	// Timeout for each selection attempt. Must be > 0.
	Timeout time.Duration

	// MinConfidence below which the LLM's pick is discarded in favor
	// of the pattern fallback, or the empty tool. Must be in [0, 1].
	MinConfidence float64

	// CacheTTL is how long to cache selection results. 0 disables.
	CacheTTL time.Duration

	// CacheMaxSize is the maximum cache entries before LRU eviction.
	// Must be > 0 when CacheTTL > 0.
	CacheMaxSize int
}

// Validate checks that config values are within valid ranges.
func (c Config) Validate() error {
	var errs []string

	if c.Temperature < 0 || c.Temperature > 1 {
		errs = append(errs, "Temperature must be between 0.0 and 1.0")
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, "MaxTokens must be positive")
	}
	if c.Timeout <= 0 {
		errs = append(errs, "Timeout must be positive")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, "MinConfidence must be between 0.0 and 1.0")
	}
	if c.CacheTTL > 0 && c.CacheMaxSize <= 0 {
		errs = append(errs, "CacheMaxSize must be positive when CacheTTL > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid selector config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DefaultConfig returns production defaults.
//
// Description:
//
//	Low temperature keeps selection mostly deterministic. A small
//	non-zero value is used because some models return empty output
//	at exactly 0.0.
func DefaultConfig() Config {
	return Config{
		Temperature:   0.1,
		MaxTokens:     256,
		Timeout:       10 * time.Second,
		MinConfidence: 0.5,
		CacheTTL:      10 * time.Minute,
		CacheMaxSize:  1000,
	}
}
