// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package supervisor screens user requests before the agent acts on
// them.
//
// Screening runs in two stages: a fast pattern scan catches clearly
// dangerous requests without an LLM round trip, and everything else is
// escalated to an LLM verdict. The supervisor fails closed: when the
// LLM is unavailable, requests flagged by patterns are still rejected,
// and only pattern-clean requests pass with a low-confidence intent.
package supervisor

import (
	"fmt"
	"strings"
	"time"
)

// Decision is the moderation outcome for a request.
type Decision string

const (
	// Allow permits the request to proceed to the agent.
	Allow Decision = "allowed"

	// Reject blocks the request.
	Reject Decision = "rejected"

	// RequiresReview flags the request for human review.
	RequiresReview Decision = "requires_review"
)

// Intent categorizes what the user is asking for.
type Intent string

const (
	IntentFileRead        Intent = "file_read"
	IntentFileWrite       Intent = "file_write"
	IntentFileDelete      Intent = "file_delete"
	IntentFileList        Intent = "file_list"
	IntentFileQuestion    Intent = "file_question"
	IntentGeneralQuestion Intent = "general_question"
	IntentUnknown         Intent = "unknown"
)

// validIntents is the set accepted from LLM verdicts. Anything else
// maps to IntentUnknown.
var validIntents = map[Intent]struct{}{
	IntentFileRead:        {},
	IntentFileWrite:       {},
	IntentFileDelete:      {},
	IntentFileList:        {},
	IntentFileQuestion:    {},
	IntentGeneralQuestion: {},
	IntentUnknown:         {},
}

// normalizeIntent maps arbitrary strings to a known Intent.
func normalizeIntent(s string) Intent {
	intent := Intent(strings.TrimSpace(strings.ToLower(s)))
	if _, ok := validIntents[intent]; ok {
		return intent
	}
	return IntentUnknown
}

// Verdict is the supervisor's assessment of a request.
//
// Thread Safety: This type is immutable after creation and safe for
// concurrent read.
type Verdict struct {
	// Decision is the moderation outcome.
	Decision Decision `json:"decision"`

	// Intent is the categorized user intent. Unset on rejection.
	Intent Intent `json:"intent,omitempty"`

	// Confidence is the assessment confidence (0.0-1.0).
	Confidence float64 `json:"confidence,omitempty"`

	// Reason explains the decision in human-readable form.
	Reason string `json:"reason"`

	// RiskFactors names the detected risks, if any.
	RiskFactors []string `json:"risk_factors,omitempty"`

	// Alternatives suggests safe rephrasings for rejected requests.
	Alternatives []string `json:"alternatives,omitempty"`

	// FallbackUsed indicates the pattern-only path produced this
	// verdict because the LLM was unavailable.
	FallbackUsed bool `json:"-"`

	// Duration is how long screening took.
	Duration time.Duration `json:"-"`
}

// Allowed reports whether the request may proceed.
func (v *Verdict) Allowed() bool {
	return v.Decision == Allow
}

// Config configures the supervisor.
//
// Thread Safety: This type should not be modified after passing to New.
type Config struct {
	// Temperature for LLM verdict calls. Must be in [0, 1].
	Temperature float32

	// MaxTokens limits verdict response length. Must be > 0.
	MaxTokens int

	// Timeout for each LLM verdict attempt. Must be > 0.
	Timeout time.Duration

	// PatternRejectConfidence is the confidence assigned to pattern
	// short-circuit rejections. Must be in [0, 1].
	PatternRejectConfidence float64
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
	if c.PatternRejectConfidence < 0 || c.PatternRejectConfidence > 1 {
		errs = append(errs, "PatternRejectConfidence must be between 0.0 and 1.0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid supervisor config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Temperature:             0.1,
		MaxTokens:               512,
		Timeout:                 10 * time.Second,
		PatternRejectConfidence: 0.95,
	}
}
