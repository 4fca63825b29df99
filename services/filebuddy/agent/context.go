// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent runs the reasoning loop that turns user requests into
// workspace tool calls.
//
// Each iteration follows think, act, observe. A strategy decides the
// next action; the consolidated strategy does it in one structured LLM
// call, with a multi-call strategy as fallback when that output cannot
// be parsed. The loop terminates when the strategy produces a final
// response, the iteration ceiling hits, or no strategy can make
// progress.
package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Phase identifies the reasoning phase a step belongs to.
type Phase string

const (
	// PhaseThink records reasoning about what to do next.
	PhaseThink Phase = "THINK"

	// PhaseAct records a tool invocation.
	PhaseAct Phase = "ACT"

	// PhaseObserve records a tool result or error.
	PhaseObserve Phase = "OBSERVE"
)

// Step is one entry in the reasoning scratchpad.
type Step struct {
	// Phase is the reasoning phase.
	Phase Phase `json:"phase"`

	// Number is the 1-based step index.
	Number int `json:"number"`

	// Content is the reasoning text or observation.
	Content string `json:"content"`

	// ToolName is set for ACT steps.
	ToolName string `json:"tool_name,omitempty"`

	// ToolArgs are the arguments for ACT steps.
	ToolArgs map[string]any `json:"tool_args,omitempty"`

	// ToolResult is the textual result for OBSERVE steps.
	ToolResult string `json:"tool_result,omitempty"`

	// Timestamp is when the step was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Known discovered-file cache keys.
const (
	// DiscoveredNewest names the most recently modified file seen.
	DiscoveredNewest = "newest"

	// DiscoveredLargest names the largest file seen.
	DiscoveredLargest = "largest"

	// DiscoveredLatest names the first entry of the last listing.
	DiscoveredLatest = "latest"
)

// Context holds the state of one reasoning run.
//
// Description:
//
//	Accumulates the scratchpad, discovered files, and termination
//	state across iterations. Owned by a single loop run.
//
// Thread Safety: NOT safe for concurrent use. Each run owns its
// Context exclusively.
type Context struct {
	// ID identifies the conversation.
	ID string

	// OriginalQuery is the user's request verbatim.
	OriginalQuery string

	// WorkingQuery is the query the loop reasons over, translated to
	// English when the original was not.
	WorkingQuery string

	// Scratchpad is the append-only reasoning trace.
	Scratchpad []Step

	// Iterations counts completed loop iterations.
	Iterations int

	// DiscoveredFiles maps logical references (newest, largest,
	// latest) to concrete filenames found during the run.
	DiscoveredFiles map[string]string

	// Terminated indicates the run has concluded.
	Terminated bool

	// FinalResponse is the answer produced on termination.
	FinalResponse string
}

// NewContext creates a context for a fresh run.
func NewContext(query string) *Context {
	return &Context{
		ID:              uuid.NewString(),
		OriginalQuery:   query,
		WorkingQuery:    query,
		DiscoveredFiles: make(map[string]string),
	}
}

// AddStep appends a step, assigning its number and timestamp.
func (c *Context) AddStep(step Step) {
	step.Number = len(c.Scratchpad) + 1
	step.Timestamp = time.Now()
	c.Scratchpad = append(c.Scratchpad, step)
}

// summaryTail is how many scratchpad steps Summary renders. Older
// steps are omitted so long runs do not crowd the prompt.
const summaryTail = 5

// Summary renders the tail of the scratchpad for inclusion in prompts.
//
// Observations are truncated so long file contents do not crowd out
// the reasoning history, and only the last few steps are rendered.
func (c *Context) Summary() string {
	return c.SummaryTail(summaryTail)
}

// SummaryTail renders the last n scratchpad steps. n <= 0 renders the
// whole scratchpad.
func (c *Context) SummaryTail(n int) string {
	if len(c.Scratchpad) == 0 {
		return "No steps taken yet."
	}

	const maxObservation = 600

	steps := c.Scratchpad
	var b strings.Builder
	if n > 0 && len(steps) > n {
		fmt.Fprintf(&b, "(%d earlier steps omitted)\n", len(steps)-n)
		steps = steps[len(steps)-n:]
	}
	for _, step := range steps {
		switch step.Phase {
		case PhaseThink:
			fmt.Fprintf(&b, "Thought: %s\n", step.Content)
		case PhaseAct:
			fmt.Fprintf(&b, "Action: %s(%v)\n", step.ToolName, step.ToolArgs)
		case PhaseObserve:
			result := step.ToolResult
			if len(result) > maxObservation {
				result = result[:maxObservation] + "..."
			}
			fmt.Fprintf(&b, "Observation: %s\n", result)
		}
	}
	return b.String()
}

// Invoked reports whether a tool was executed during this run.
func (c *Context) Invoked(tool string) bool {
	for _, step := range c.Scratchpad {
		if step.Phase == PhaseAct && step.ToolName == tool {
			return true
		}
	}
	return false
}

// LastObservation returns the most recent OBSERVE step content, or
// empty when none exists.
func (c *Context) LastObservation() string {
	for i := len(c.Scratchpad) - 1; i >= 0; i-- {
		if c.Scratchpad[i].Phase == PhaseObserve {
			return c.Scratchpad[i].ToolResult
		}
	}
	return ""
}

// TerminationReason values for RunResult.
const (
	TerminationGoal    = "goal"
	TerminationCeiling = "ceiling"
	TerminationError   = "error"
)

// RunResult is the outcome of a complete loop run.
type RunResult struct {
	// Response is the final answer for the user.
	Response string

	// ToolsUsed lists the tools invoked, in order, without duplicates.
	ToolsUsed []string

	// Steps is the full reasoning trace.
	Steps []Step

	// Success indicates the run produced a useful response.
	Success bool

	// Iterations is how many loop iterations ran.
	Iterations int

	// Error holds a human-readable failure description when Success
	// is false.
	Error string

	// TerminationReason is goal, ceiling, or error.
	TerminationReason string
}
