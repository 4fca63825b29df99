// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package selector

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/llm"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/tools"
	"github.com/AleutianAI/filebuddy/services/filebuddy/telemetry"
)

// selectionPromptTemplate asks the model to pick one tool and respond
// with bare JSON. Only names and short descriptions are included to
// keep the prompt small.
const selectionPromptTemplate = `You select the right tool for a file assistant.

The user works with files in a sandboxed workspace. Pick the single best
tool for their request, or no tool if the request needs a direct answer.

Available tools:
{{range .Tools}}- {{.Name}}: {{.Brief}}
{{end}}
Respond with ONLY valid JSON (no markdown, no preamble):
{"tool":"name or empty string","parameters":{},"reasoning":"brief","confidence":0.0-1.0,"alternatives":[]}`

type toolBrief struct {
	Name  string
	Brief string
}

// Selector chooses a tool for a user query.
//
// Description:
//
//	Uses the LLM as the primary strategy with caching, request
//	coalescing, and an ordered multilingual pattern fallback. Results
//	with a tool name not present in the registry are treated as
//	hallucinations and re-routed through the fallback.
//
// Thread Safety: This type is safe for concurrent use after
// initialization.
type Selector struct {
	client         llm.Client
	definitions    []tools.ToolDefinition
	available      map[string]struct{}
	toolsHash      string
	config         Config
	cache          *selectionCache
	fallback       *PatternFallback
	promptTemplate *template.Template
	inflight       singleflight.Group
}

// New creates a selector over the given tool definitions.
//
// Inputs:
//
//	client - LLM client. May be nil; selection then relies on patterns.
//	defs - Available tool definitions. Must not be empty.
//	config - Selector configuration. Validated before use.
//
// Outputs:
//
//	*Selector - Ready-to-use selector.
//	error - If defs is empty or config invalid.
//
// Thread Safety: The returned selector is safe for concurrent use.
func New(client llm.Client, defs []tools.ToolDefinition, config Config) (*Selector, error) {
	if len(defs) == 0 {
		return nil, errors.New("defs must not be empty")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	tmpl, err := template.New("select").Parse(selectionPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("compile prompt template: %w", err)
	}

	available := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		available[def.Name] = struct{}{}
	}

	var cache *selectionCache
	if config.CacheTTL > 0 {
		cache = newSelectionCache(config.CacheTTL, config.CacheMaxSize)
	}

	return &Selector{
		client:         client,
		definitions:    defs,
		available:      available,
		toolsHash:      computeToolsHash(defs),
		config:         config,
		cache:          cache,
		fallback:       NewPatternFallback(),
		promptTemplate: tmpl,
	}, nil
}

// Select picks a tool for the query.
//
// Description:
//
//	Checks the cache, then coalesces identical in-flight queries and
//	asks the LLM. On LLM failure, hallucinated tool names, or low
//	confidence the pattern fallback decides. An empty Tool in the
//	result means no tool fits and the agent should answer directly.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout.
//	query - The user's request. Empty queries select no tool.
//
// Outputs:
//
//	*Result - Selection outcome, never nil on nil error.
//	error - Only on context cancellation.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Selector) Select(ctx context.Context, query string) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	startTime := time.Now()

	ctx, span := otel.Tracer("filebuddy.selector").Start(ctx, "selector.Selector.Select",
		trace.WithAttributes(
			attribute.Int("query_length", len(query)),
		),
	)
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		span.SetAttributes(attribute.String("reason", "empty_query"))
		return &Result{
			Reasoning: "empty query",
			Duration:  time.Since(startTime),
		}, nil
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(query, s.toolsHash); ok {
			span.SetAttributes(
				attribute.Bool("cached", true),
				attribute.String("tool", cached.Tool),
			)
			cached.Duration = time.Since(startTime)
			telemetry.RecordSelection("cache")
			return cached, nil
		}
	}

	key := s.coalesceKey(query)
	resultInterface, err, _ := s.inflight.Do(key, func() (interface{}, error) {
		return s.selectWithLLM(ctx, query, startTime)
	})

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context cancelled")
			return nil, err
		}

		span.SetAttributes(
			attribute.Bool("fallback_used", true),
			attribute.String("fallback_reason", err.Error()),
		)
		return s.useFallback(query, startTime, err.Error()), nil
	}

	result := resultInterface.(*Result)

	if s.cache != nil && !result.FallbackUsed {
		s.cache.Set(query, s.toolsHash, result)
	}

	span.SetAttributes(
		attribute.String("tool", result.Tool),
		attribute.Float64("confidence", result.Confidence),
		attribute.Bool("fallback_used", result.FallbackUsed),
	)

	if result.FallbackUsed {
		telemetry.RecordSelection("fallback")
	} else {
		telemetry.RecordSelection("llm")
	}
	return result, nil
}

// selectWithLLM performs a single LLM selection attempt.
func (s *Selector) selectWithLLM(ctx context.Context, query string, startTime time.Time) (*Result, error) {
	if s.client == nil {
		return nil, errors.New("no llm client configured")
	}

	prompt, err := s.buildPrompt()
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	response, err := s.client.Complete(reqCtx, &llm.Request{
		SystemPrompt: prompt,
		Prompt:       query,
		MaxTokens:    s.config.MaxTokens,
		Temperature:  s.config.Temperature,
		JSONMode:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}

	result, err := parseSelectionResponse(response.Content)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	// Reject hallucinated tool names
	if result.Tool != "" {
		if _, ok := s.available[result.Tool]; !ok {
			slog.Warn("LLM selected unknown tool, using fallback",
				slog.String("tool", result.Tool),
			)
			return s.useFallback(query, startTime, "unknown tool: "+result.Tool), nil
		}
	}

	if result.Confidence < s.config.MinConfidence {
		slog.Debug("selection confidence below threshold",
			slog.Float64("confidence", result.Confidence),
			slog.Float64("threshold", s.config.MinConfidence),
		)
		return s.useFallback(query, startTime,
			fmt.Sprintf("low confidence: %.2f", result.Confidence)), nil
	}

	result.Duration = time.Since(startTime)
	return result, nil
}

// useFallback consults the pattern table; with no match the empty tool
// is returned so the agent answers directly.
func (s *Selector) useFallback(query string, startTime time.Time, reason string) *Result {
	if result, ok := s.fallback.Select(query, s.available); ok {
		result.Reasoning = "pattern fallback: " + reason
		result.Duration = time.Since(startTime)
		return result
	}
	return &Result{
		Reasoning:    "no tool matched: " + reason,
		FallbackUsed: true,
		Duration:     time.Since(startTime),
	}
}

// buildPrompt renders the selection prompt from the tool definitions.
func (s *Selector) buildPrompt() (string, error) {
	briefs := make([]toolBrief, 0, len(s.definitions))
	for _, def := range s.definitions {
		briefs = append(briefs, toolBrief{
			Name:  def.Name,
			Brief: truncateDescription(def.Description, 80),
		})
	}

	var buf bytes.Buffer
	err := s.promptTemplate.Execute(&buf, struct{ Tools []toolBrief }{Tools: briefs})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func truncateDescription(desc string, maxLen int) string {
	if len(desc) <= maxLen {
		return desc
	}
	// Back up to a rune boundary so multibyte text is never cut
	// mid-sequence.
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(desc[cut]) {
		cut--
	}
	return desc[:cut] + "..."
}

func (s *Selector) coalesceKey(query string) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte("|"))
	h.Write([]byte(s.toolsHash))
	return hex.EncodeToString(h.Sum(nil))
}

// computeToolsHash creates a stable hash of the tool set.
func computeToolsHash(defs []tools.ToolDefinition) string {
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte("|"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// =============================================================================
// Response parsing
// =============================================================================

var (
	toolFieldPattern       = regexp.MustCompile(`"tool"\s*:\s*"([^"]*)"`)
	confidenceFieldPattern = regexp.MustCompile(`"confidence"\s*:\s*([0-9.]+)`)
	reasoningFieldPattern  = regexp.MustCompile(`"reasoning"\s*:\s*"([^"]*)"`)
)

// parseSelectionResponse extracts a Result from LLM output.
//
// Description:
//
//	Strips markdown fences, slices out the outermost JSON object, and
//	unmarshals. When strict parsing fails, individual fields are
//	salvaged with regexes. Missing confidence defaults to 0.5 and the
//	final value is clamped to [0, 1].
func parseSelectionResponse(content string) (*Result, error) {
	cleaned := stripFences(content)
	payload := extractJSONObject(cleaned)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var raw struct {
		Tool         string         `json:"tool"`
		Parameters   map[string]any `json:"parameters"`
		Reasoning    string         `json:"reasoning"`
		Confidence   *float64       `json:"confidence"`
		Alternatives []string       `json:"alternatives"`
	}

	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		// Salvage individual fields from malformed JSON
		salvaged := salvageFields(payload)
		if salvaged == nil {
			return nil, fmt.Errorf("unmarshal selection: %w", err)
		}
		return salvaged, nil
	}

	result := &Result{
		Tool:         strings.TrimSpace(raw.Tool),
		Parameters:   raw.Parameters,
		Reasoning:    raw.Reasoning,
		Alternatives: raw.Alternatives,
		Confidence:   0.5,
	}
	if raw.Confidence != nil {
		result.Confidence = *raw.Confidence
	}
	result.Confidence = clamp01(result.Confidence)
	return result, nil
}

// stripFences removes markdown code fences around the payload.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// extractJSONObject returns the outermost brace-delimited object, or
// empty when none is present.
func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return ""
}

// salvageFields pulls fields out of malformed JSON with regexes.
// Returns nil when not even a tool field can be found.
func salvageFields(payload string) *Result {
	toolMatch := toolFieldPattern.FindStringSubmatch(payload)
	if toolMatch == nil {
		return nil
	}

	result := &Result{
		Tool:       strings.TrimSpace(toolMatch[1]),
		Confidence: 0.5,
		Reasoning:  "salvaged from malformed response",
	}
	if m := confidenceFieldPattern.FindStringSubmatch(payload); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			result.Confidence = clamp01(v)
		}
	}
	if m := reasoningFieldPattern.FindStringSubmatch(payload); m != nil {
		result.Reasoning = m[1]
	}
	return result
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
