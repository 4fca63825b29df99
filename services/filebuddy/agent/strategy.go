// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/llm"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/selector"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/tools"
)

// =============================================================================
// Strategy interface
// =============================================================================

// Decision is a strategy's proposal for the next loop iteration.
type Decision struct {
	// Thinking is the reasoning behind this decision.
	Thinking string `json:"thinking"`

	// ToolName is the tool to invoke, empty when no tool is needed.
	ToolName string `json:"tool_name"`

	// ToolArgs are the arguments for the tool.
	ToolArgs map[string]any `json:"tool_args"`

	// ContinueReasoning indicates another iteration should follow.
	ContinueReasoning bool `json:"continue_reasoning"`

	// FinalResponse is the answer for the user, set when the strategy
	// believes the goal is reached.
	FinalResponse string `json:"final_response"`

	// Confidence is the strategy's confidence in this decision (0-1).
	Confidence float64 `json:"confidence"`
}

// Strategy decides the next action for a reasoning iteration.
//
// Implementations must be safe for concurrent use; all per-run state
// lives in the Context.
type Strategy interface {
	// Next proposes the next decision given the run state so far.
	Next(ctx context.Context, run *Context) (*Decision, error)

	// Name identifies the strategy for logging.
	Name() string
}

// ErrNoDecision indicates a strategy could not produce a usable
// decision from the model output.
var ErrNoDecision = errors.New("strategy produced no usable decision")

// =============================================================================
// Consolidated strategy
// =============================================================================

// consolidatedPromptTemplate asks for thinking, tool choice, and final
// response in a single structured call.
const consolidatedPromptTemplate = `You are a file assistant working inside a sandboxed workspace.
You reason step by step: think, optionally call one tool, observe, repeat.

Available tools:
{{range .Tools}}{{.Name}}: {{.Brief}}
  Parameters: {{.Params}}
{{end}}
User request: {{.Query}}

Steps so far:
{{.Scratchpad}}

Decide the next step. Respond with ONLY valid JSON:
{"thinking": "<your reasoning>", "tool_name": "<tool to call, or empty string>", "tool_args": {<arguments>}, "continue_reasoning": <true|false>, "final_response": "<answer for the user, or empty string>", "confidence": <0.0-1.0>}

Rules:
- Call at most one tool per step.
- When an observation already answers the request, set final_response,
  continue_reasoning to false, and no tool.
- Answer final_response in the language of the user request.
- Never invent file contents; only report what observations showed.`

type consolidatedToolBrief struct {
	Name   string
	Brief  string
	Params string
}

type consolidatedPromptData struct {
	Tools      []consolidatedToolBrief
	Query      string
	Scratchpad string
}

// ConsolidatedStrategy drives one iteration with a single structured
// LLM call.
//
// Description:
//
//	The model returns thinking, tool choice, and final response
//	together, so a typical run costs one LLM call per iteration. The
//	response is parsed defensively; when only fragments can be
//	salvaged the decision continues reasoning only if a tool name was
//	recovered.
//
// Thread Safety: Safe for concurrent use.
type ConsolidatedStrategy struct {
	client  llm.Client
	prompt  *template.Template
	briefs  []consolidatedToolBrief
	options StrategyOptions
	logger  *slog.Logger
}

// StrategyOptions configures LLM-backed strategies.
type StrategyOptions struct {
	// Temperature for strategy calls. Slightly above zero because
	// some local models return empty output at 0.0.
	Temperature float32

	// MaxTokens limits the decision response.
	MaxTokens int
}

// DefaultStrategyOptions returns sensible defaults.
func DefaultStrategyOptions() StrategyOptions {
	return StrategyOptions{
		Temperature: 0.1,
		MaxTokens:   1024,
	}
}

// NewConsolidatedStrategy creates the single-call strategy.
//
// Inputs:
//   client - LLM client, required
//   defs - tool definitions offered to the model
//   options - generation settings
//
// Outputs:
//   *ConsolidatedStrategy - the strategy
//   error - Non-nil if client is nil or no tools were given
func NewConsolidatedStrategy(client llm.Client, defs []tools.ToolDefinition, options StrategyOptions) (*ConsolidatedStrategy, error) {
	if client == nil {
		return nil, errors.New("consolidated strategy requires an LLM client")
	}
	if len(defs) == 0 {
		return nil, errors.New("consolidated strategy requires at least one tool definition")
	}

	tmpl, err := template.New("consolidated").Parse(consolidatedPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing strategy prompt template: %w", err)
	}

	briefs := make([]consolidatedToolBrief, 0, len(defs))
	for _, def := range defs {
		briefs = append(briefs, consolidatedToolBrief{
			Name:   def.Name,
			Brief:  def.Description,
			Params: describeParams(def),
		})
	}

	return &ConsolidatedStrategy{
		client:  client,
		prompt:  tmpl,
		briefs:  briefs,
		options: options,
		logger:  slog.With("component", "consolidated_strategy"),
	}, nil
}

// Name identifies the strategy.
func (s *ConsolidatedStrategy) Name() string { return "consolidated" }

// Next asks the model for the next decision.
func (s *ConsolidatedStrategy) Next(ctx context.Context, run *Context) (*Decision, error) {
	var b strings.Builder
	data := consolidatedPromptData{
		Tools:      s.briefs,
		Query:      run.WorkingQuery,
		Scratchpad: run.Summary(),
	}
	if err := s.prompt.Execute(&b, data); err != nil {
		return nil, fmt.Errorf("rendering strategy prompt: %w", err)
	}

	resp, err := s.client.Complete(ctx, &llm.Request{
		Prompt:      b.String(),
		MaxTokens:   s.options.MaxTokens,
		Temperature: s.options.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("strategy completion: %w", err)
	}

	decision, err := parseDecision(resp.Content)
	if err != nil {
		s.logger.Warn("unparseable strategy response",
			"error", err,
			"response_length", len(resp.Content))
		return nil, err
	}
	return decision, nil
}

// describeParams renders a definition's parameters as a compact line.
func describeParams(def tools.ToolDefinition) string {
	if len(def.Parameters) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(def.Parameters))
	for _, name := range sortedParamNames(def.Parameters) {
		param := def.Parameters[name]
		if param.Required {
			parts = append(parts, name+" ("+string(param.Type)+", required)")
		} else {
			parts = append(parts, name+" ("+string(param.Type)+")")
		}
	}
	return strings.Join(parts, ", ")
}

func sortedParamNames(params map[string]tools.ParamDef) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// Decision parsing
// =============================================================================

var (
	thinkingFieldPattern = regexp.MustCompile(`"thinking"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	toolNameFieldPattern = regexp.MustCompile(`"tool_name"\s*:\s*"([^"]*)"`)
	finalFieldPattern    = regexp.MustCompile(`"final_response"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// parseDecision extracts a Decision from raw model output.
//
// Tries strict JSON first (after stripping code fences and slicing to
// the outermost braces), then regex salvage for the common failure
// mode of truncated or trailing-garbage JSON.
func parseDecision(raw string) (*Decision, error) {
	cleaned := stripCodeFences(raw)
	if body := sliceJSONObject(cleaned); body != "" {
		var parsed struct {
			Thinking          string         `json:"thinking"`
			ToolName          string         `json:"tool_name"`
			ToolArgs          map[string]any `json:"tool_args"`
			ContinueReasoning *bool          `json:"continue_reasoning"`
			FinalResponse     string         `json:"final_response"`
			Confidence        *float64       `json:"confidence"`
		}
		if err := json.Unmarshal([]byte(body), &parsed); err == nil {
			decision := &Decision{
				Thinking:          parsed.Thinking,
				ToolName:          strings.TrimSpace(parsed.ToolName),
				ToolArgs:          parsed.ToolArgs,
				ContinueReasoning: true,
				FinalResponse:     parsed.FinalResponse,
				Confidence:        0.8,
			}
			if parsed.ContinueReasoning != nil {
				decision.ContinueReasoning = *parsed.ContinueReasoning
			}
			if parsed.Confidence != nil {
				decision.Confidence = clampConfidence(*parsed.Confidence)
			}
			return decision, nil
		}
	}
	return salvageDecision(cleaned)
}

// salvageDecision recovers thinking and tool name from malformed JSON.
// A salvaged decision continues only when a tool name was recovered;
// a salvaged final_response is never trusted.
func salvageDecision(raw string) (*Decision, error) {
	thinkingMatch := thinkingFieldPattern.FindStringSubmatch(raw)
	toolMatch := toolNameFieldPattern.FindStringSubmatch(raw)
	if thinkingMatch == nil && toolMatch == nil {
		return nil, ErrNoDecision
	}

	decision := &Decision{Confidence: 0.8}
	if thinkingMatch != nil {
		decision.Thinking = unescapeJSONString(thinkingMatch[1])
	}
	if toolMatch != nil {
		decision.ToolName = strings.TrimSpace(toolMatch[1])
	}
	decision.ContinueReasoning = decision.ToolName != ""
	return decision, nil
}

// stripCodeFences removes markdown code fences around a response.
func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		if idx := strings.Index(trimmed, "\n"); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}

// sliceJSONObject returns the substring from the first '{' to the last
// '}' or empty when no object is present.
func sliceJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// =============================================================================
// Multi-call strategy
// =============================================================================

// MultiCallStrategy is the fallback strategy: it routes tool choice
// through the selector and composes the final response in a separate
// call once observations exist.
//
// Description:
//
//	Used when the consolidated call keeps producing unparseable
//	output, or standalone when a deployment prefers the smaller,
//	better-constrained selector prompt. The selector's own pattern
//	fallback means this path stays usable with no LLM at all.
//
// Thread Safety: Safe for concurrent use.
type MultiCallStrategy struct {
	client   llm.Client
	selector *selector.Selector
	options  StrategyOptions
	logger   *slog.Logger
}

// NewMultiCallStrategy creates the selector-backed strategy.
// The client may be nil; final responses then fall back to the last
// observation.
func NewMultiCallStrategy(client llm.Client, sel *selector.Selector, options StrategyOptions) (*MultiCallStrategy, error) {
	if sel == nil {
		return nil, errors.New("multi-call strategy requires a selector")
	}
	return &MultiCallStrategy{
		client:   client,
		selector: sel,
		options:  options,
		logger:   slog.With("component", "multicall_strategy"),
	}, nil
}

// Name identifies the strategy.
func (s *MultiCallStrategy) Name() string { return "multicall" }

// Next selects a tool for the working query, or finishes once an
// observation exists.
func (s *MultiCallStrategy) Next(ctx context.Context, run *Context) (*Decision, error) {
	// After an observation the goal of the original query is assumed
	// reachable from what was observed; compose the answer instead of
	// selecting again (the selector is stateless and would repeat the
	// same tool forever). The one exception is a content question whose
	// observation only named a file; that chains into a read first.
	if observation := run.LastObservation(); observation != "" {
		if next := s.contextualContinuation(run); next != nil {
			return next, nil
		}
		response := s.composeResponse(ctx, run, observation)
		return &Decision{
			Thinking:          "An observation is available; composing the final response.",
			ContinueReasoning: false,
			FinalResponse:     response,
			Confidence:        0.6,
		}, nil
	}

	selection, err := s.selector.Select(ctx, run.WorkingQuery)
	if err != nil {
		return nil, fmt.Errorf("selecting tool: %w", err)
	}
	if selection.Tool == "" {
		// No tool fits; answer directly.
		response := s.composeResponse(ctx, run, "")
		return &Decision{
			Thinking:          "No tool matches the request; answering directly.",
			ContinueReasoning: false,
			FinalResponse:     response,
			Confidence:        selection.Confidence,
		}, nil
	}

	return &Decision{
		Thinking:          selection.Reasoning,
		ToolName:          selection.Tool,
		ToolArgs:          selection.Parameters,
		ContinueReasoning: true,
		Confidence:        selection.Confidence,
	}, nil
}

// contentCues mark queries that ask about what a file contains rather
// than which file it is.
var contentCues = []string{
	"what is in", "what's in", "whats in", "content", "inside",
	"read", "says", "what does",
	"cosa c'è", "cosa contiene", "contenuto", "leggi", "dice",
}

// contextualContinuation chains a read after a discovery step. When
// the query asks about a file's contents but the tools so far only
// named a file, the discovered-file cache supplies the filename and
// read_file runs before any answer is composed. Without this the
// pattern-only path would answer "what is in the largest file?" with
// the filename instead of the contents.
func (s *MultiCallStrategy) contextualContinuation(run *Context) *Decision {
	if run.Invoked("read_file") || !asksForContents(run) {
		return nil
	}
	filename := resolveFileReference(run)
	if filename == "" {
		return nil
	}
	return &Decision{
		Thinking:          fmt.Sprintf("The request asks about file contents; reading %s.", filename),
		ToolName:          "read_file",
		ToolArgs:          map[string]any{"filename": filename},
		ContinueReasoning: true,
		Confidence:        0.6,
	}
}

func asksForContents(run *Context) bool {
	working := strings.ToLower(run.WorkingQuery)
	original := strings.ToLower(run.OriginalQuery)
	for _, cue := range contentCues {
		if strings.Contains(working, cue) || strings.Contains(original, cue) {
			return true
		}
	}
	return false
}

// composeResponse asks the LLM to phrase the final answer. Without a
// client, or when the call fails, the raw observation stands in.
func (s *MultiCallStrategy) composeResponse(ctx context.Context, run *Context, observation string) string {
	if s.client == nil {
		if observation != "" {
			return observation
		}
		return "I could not determine how to help with that request."
	}

	prompt := fmt.Sprintf(
		"User request: %s\n\nWhat was found:\n%s\n\nAnswer the request in the language it was asked in, using only what was found.",
		run.OriginalQuery, observation)
	resp, err := s.client.Complete(ctx, &llm.Request{
		Prompt:      prompt,
		MaxTokens:   s.options.MaxTokens,
		Temperature: 0.2,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		if err != nil {
			s.logger.Warn("response composition failed", "error", err)
		}
		if observation != "" {
			return observation
		}
		return "I could not determine how to help with that request."
	}
	return strings.TrimSpace(resp.Content)
}
