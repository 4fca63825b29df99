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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/llm"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/supervisor"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/tools"
	"github.com/AleutianAI/filebuddy/services/filebuddy/telemetry"
)

// =============================================================================
// Configuration
// =============================================================================

// Options configures the reasoning loop.
type Options struct {
	// MaxIterations is the hard ceiling on loop iterations.
	MaxIterations int

	// LLMTimeout bounds each individual strategy call.
	LLMTimeout time.Duration
}

// Validate checks options for consistency.
func (o *Options) Validate() error {
	var errs []string
	if o.MaxIterations < 1 {
		errs = append(errs, "max_iterations must be at least 1")
	}
	if o.LLMTimeout <= 0 {
		errs = append(errs, "llm_timeout must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid loop options: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		MaxIterations: 10,
		LLMTimeout:    30 * time.Second,
	}
}

// Deps are the collaborators a Loop needs.
type Deps struct {
	// Client is the LLM used for translation and final responses.
	// May be nil; the loop then runs on pattern fallbacks alone.
	Client llm.Client

	// Registry resolves tool definitions for argument repair.
	Registry *tools.Registry

	// Executor runs tool invocations.
	Executor *tools.Executor

	// Supervisor screens queries before any reasoning happens.
	// May be nil to disable screening (tests only).
	Supervisor *supervisor.Supervisor

	// Primary is the main strategy, normally the consolidated one.
	Primary Strategy

	// Fallback takes over an iteration when Primary fails. Optional.
	Fallback Strategy
}

// =============================================================================
// Loop
// =============================================================================

// Loop runs the think, act, observe cycle for a user request.
//
// Description:
//
//	Screens the request through the supervisor, normalizes it to
//	English, then iterates: the strategy proposes a decision, tools
//	run through the executor, and results come back as observations.
//	Tool failures never abort a run; they become observations the
//	strategy can react to. The run ends when a final response is
//	produced, the iteration ceiling hits, or both strategies fail.
//
// Thread Safety: Safe for concurrent use; each Run owns its Context.
type Loop struct {
	client     llm.Client
	registry   *tools.Registry
	executor   *tools.Executor
	supervisor *supervisor.Supervisor
	primary    Strategy
	fallback   Strategy
	options    Options
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New creates a reasoning loop.
//
// Inputs:
//   deps - collaborators; Registry, Executor, and Primary are required
//   options - loop limits
//
// Outputs:
//   *Loop - the loop
//   error - Non-nil on missing deps or invalid options
func New(deps Deps, options Options) (*Loop, error) {
	if deps.Registry == nil {
		return nil, errors.New("loop requires a tool registry")
	}
	if deps.Executor == nil {
		return nil, errors.New("loop requires a tool executor")
	}
	if deps.Primary == nil {
		return nil, errors.New("loop requires a primary strategy")
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	return &Loop{
		client:     deps.Client,
		registry:   deps.Registry,
		executor:   deps.Executor,
		supervisor: deps.Supervisor,
		primary:    deps.Primary,
		fallback:   deps.Fallback,
		options:    options,
		logger:     slog.With("component", "agent_loop"),
		tracer:     otel.Tracer("filebuddy/agent"),
	}, nil
}

// Run processes one user request to completion.
//
// Inputs:
//   ctx - Context for cancellation; checked at the top of every
//         iteration
//   query - The user's request
//
// Outputs:
//   *RunResult - Always non-nil; inspect Success and
//                TerminationReason
//   error - Non-nil only for empty queries or context cancellation
func (l *Loop) Run(ctx context.Context, query string) (*RunResult, error) {
	ctx, span := l.tracer.Start(ctx, "agent.Loop.Run")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}

	run := NewContext(query)
	logger := l.logger.With("run_id", run.ID)
	span.SetAttributes(attribute.String("run.id", run.ID))

	if l.supervisor != nil {
		verdict, err := l.supervisor.Screen(ctx, query)
		if err != nil {
			span.SetStatus(codes.Error, "screening failed")
			return l.finish(run, span, RunResult{
				Response:          "I could not verify that request is safe, so I will not act on it.",
				Success:           false,
				Error:             fmt.Sprintf("safety screening failed: %v", err),
				TerminationReason: TerminationError,
			}), nil
		}
		if !verdict.Allowed() {
			logger.Info("request rejected by supervisor",
				"decision", string(verdict.Decision),
				"reason", verdict.Reason)
			return l.finish(run, span, RunResult{
				Response:          refusalMessage(verdict),
				Success:           true,
				TerminationReason: TerminationGoal,
			}), nil
		}
	}

	if translated, ok := translateQuery(ctx, l.client, query); ok {
		run.WorkingQuery = translated
		run.AddStep(Step{
			Phase:   PhaseThink,
			Content: fmt.Sprintf("Translated request to English: %s", translated),
		})
		logger.Debug("query translated", "working_query", translated)
	}

	var toolsUsed []string
	usedSet := make(map[string]struct{})

	for run.Iterations < l.options.MaxIterations {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return l.finish(run, span, RunResult{
				Response:          run.FinalResponse,
				ToolsUsed:         toolsUsed,
				Success:           false,
				Error:             err.Error(),
				TerminationReason: TerminationError,
			}), err
		}
		run.Iterations++

		decision, err := l.decide(ctx, run)
		if err != nil {
			logger.Warn("no strategy produced a decision", "error", err)
			response := l.finalizeResponse(ctx, run)
			return l.finish(run, span, RunResult{
				Response:          response,
				ToolsUsed:         toolsUsed,
				Success:           response != "",
				Error:             fmt.Sprintf("strategies exhausted: %v", err),
				TerminationReason: TerminationError,
			}), nil
		}

		if decision.Thinking != "" {
			run.AddStep(Step{Phase: PhaseThink, Content: decision.Thinking})
		}

		if decision.ToolName != "" {
			observation := l.act(ctx, run, decision)
			if _, seen := usedSet[decision.ToolName]; !seen {
				usedSet[decision.ToolName] = struct{}{}
				toolsUsed = append(toolsUsed, decision.ToolName)
			}
			run.AddStep(Step{
				Phase:      PhaseObserve,
				ToolResult: observation,
			})
		}

		if decision.FinalResponse != "" && !decision.ContinueReasoning {
			return l.finish(run, span, RunResult{
				Response:          decision.FinalResponse,
				ToolsUsed:         toolsUsed,
				Success:           true,
				TerminationReason: TerminationGoal,
			}), nil
		}
		if !decision.ContinueReasoning {
			response := l.finalizeResponse(ctx, run)
			return l.finish(run, span, RunResult{
				Response:          response,
				ToolsUsed:         toolsUsed,
				Success:           response != "",
				TerminationReason: TerminationGoal,
			}), nil
		}
	}

	logger.Warn("iteration ceiling reached", "iterations", run.Iterations)
	response := l.finalizeResponse(ctx, run)
	return l.finish(run, span, RunResult{
		Response:          response,
		ToolsUsed:         toolsUsed,
		Success:           false,
		Error:             "reached the iteration ceiling before completing the request",
		TerminationReason: TerminationCeiling,
	}), nil
}

// decide asks the primary strategy for the next decision, falling back
// to the secondary strategy on failure. Context cancellation is never
// retried on the fallback.
func (l *Loop) decide(ctx context.Context, run *Context) (*Decision, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.options.LLMTimeout)
	decision, err := l.primary.Next(callCtx, run)
	cancel()
	if err == nil {
		return decision, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if l.fallback == nil {
		return nil, err
	}

	l.logger.Debug("primary strategy failed, trying fallback",
		"primary", l.primary.Name(),
		"fallback", l.fallback.Name(),
		"error", err)

	callCtx, cancel = context.WithTimeout(ctx, l.options.LLMTimeout)
	decision, fallbackErr := l.fallback.Next(callCtx, run)
	cancel()
	if fallbackErr != nil {
		return nil, fmt.Errorf("%s: %w; %s: %v",
			l.primary.Name(), err, l.fallback.Name(), fallbackErr)
	}
	return decision, nil
}

// act executes the decision's tool and returns the observation text.
// Execution errors become observations so the strategy can recover.
func (l *Loop) act(ctx context.Context, run *Context, decision *Decision) string {
	args := l.repairArgs(run, decision.ToolName, decision.ToolArgs)

	run.AddStep(Step{
		Phase:    PhaseAct,
		ToolName: decision.ToolName,
		ToolArgs: args,
	})

	invocation := &tools.Invocation{
		ToolName:   decision.ToolName,
		Parameters: args,
		Reason:     decision.Thinking,
		StepNumber: len(run.Scratchpad),
	}
	result, err := l.executor.Execute(ctx, invocation)
	if err != nil {
		return fmt.Sprintf("Tool %s failed: %v", decision.ToolName, err)
	}
	if !result.Success {
		return fmt.Sprintf("Tool %s reported an error: %s", decision.ToolName, result.Error)
	}

	l.updateDiscoveredFiles(run, decision.ToolName, result)
	return result.OutputText
}

// repairArgs fills a missing required filename from files discovered
// earlier in the run, so "read it" style followups resolve to the file
// a previous step found.
func (l *Loop) repairArgs(run *Context, toolName string, args map[string]any) map[string]any {
	if args == nil {
		args = make(map[string]any)
	}

	tool, ok := l.registry.Get(toolName)
	if !ok {
		return args
	}
	def := tool.Definition()
	param, wantsFilename := def.Parameters["filename"]
	if !wantsFilename || !param.Required {
		return args
	}

	current, _ := args["filename"].(string)
	if current != "" && current != "LATEST_FILE" {
		return args
	}

	if resolved := resolveFileReference(run); resolved != "" {
		l.logger.Debug("filled missing filename from discovered files",
			"tool", toolName, "filename", resolved)
		args["filename"] = resolved
	}
	return args
}

// resolveFileReference picks the discovered file the working query
// most plausibly refers to.
func resolveFileReference(run *Context) string {
	query := strings.ToLower(run.WorkingQuery)

	switch {
	case strings.Contains(query, "largest") || strings.Contains(query, "biggest") ||
		strings.Contains(query, "più grande") || strings.Contains(query, "pesante"):
		if name := run.DiscoveredFiles[DiscoveredLargest]; name != "" {
			return name
		}
	case strings.Contains(query, "newest") || strings.Contains(query, "latest") ||
		strings.Contains(query, "most recent") || strings.Contains(query, "recente"):
		if name := run.DiscoveredFiles[DiscoveredNewest]; name != "" {
			return name
		}
	}

	for _, key := range []string{DiscoveredNewest, DiscoveredLargest, DiscoveredLatest} {
		if name := run.DiscoveredFiles[key]; name != "" {
			return name
		}
	}
	return ""
}

// updateDiscoveredFiles records files surfaced by tool results so
// later iterations can refer to them without re-listing.
func (l *Loop) updateDiscoveredFiles(run *Context, toolName string, result *tools.Result) {
	switch toolName {
	case "find_newest_file":
		if name, ok := result.Output.(string); ok && name != "" {
			run.DiscoveredFiles[DiscoveredNewest] = name
		}
	case "find_largest_file":
		if name, ok := result.Output.(string); ok && name != "" {
			run.DiscoveredFiles[DiscoveredLargest] = name
		}
	case "list_files", "list_files_recursive":
		// Listings are newest first, so the head doubles as the
		// newest file.
		if names, ok := result.Output.([]string); ok && len(names) > 0 {
			run.DiscoveredFiles[DiscoveredLatest] = names[0]
			if _, have := run.DiscoveredFiles[DiscoveredNewest]; !have {
				run.DiscoveredFiles[DiscoveredNewest] = names[0]
			}
		}
	}
}

// finalizeResponse produces a best-effort answer from the scratchpad
// when no strategy delivered one. Falls back to the last observation,
// then to a fixed apology.
func (l *Loop) finalizeResponse(ctx context.Context, run *Context) string {
	observation := run.LastObservation()

	if l.client != nil && len(run.Scratchpad) > 0 {
		prompt := fmt.Sprintf(
			"User request: %s\n\nWork performed:\n%s\n\nWrite a short answer to the request in the language it was asked in, based only on the work above. If the work did not answer it, say so.",
			run.OriginalQuery, run.Summary())
		resp, err := l.client.Complete(ctx, &llm.Request{
			Prompt:      prompt,
			MaxTokens:   512,
			Temperature: 0.2,
			Timeout:     l.options.LLMTimeout,
		})
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			return strings.TrimSpace(resp.Content)
		}
	}

	if observation != "" {
		return observation
	}
	return "I was unable to complete that request."
}

// finish stamps the shared result fields and records telemetry.
func (l *Loop) finish(run *Context, span trace.Span, result RunResult) *RunResult {
	run.Terminated = true
	run.FinalResponse = result.Response
	result.Steps = run.Scratchpad
	result.Iterations = run.Iterations

	span.SetAttributes(
		attribute.String("run.termination", result.TerminationReason),
		attribute.Int("run.iterations", result.Iterations),
		attribute.Bool("run.success", result.Success),
	)
	telemetry.RecordLoopRun(result.TerminationReason, result.Iterations)

	l.logger.Info("run finished",
		"run_id", run.ID,
		"termination", result.TerminationReason,
		"iterations", result.Iterations,
		"success", result.Success,
		"tools_used", len(result.ToolsUsed))
	return &result
}

// refusalMessage renders a supervisor rejection for the user.
func refusalMessage(verdict *supervisor.Verdict) string {
	var b strings.Builder
	b.WriteString("I can't help with that request.")
	if verdict.Reason != "" {
		b.WriteString(" ")
		b.WriteString(verdict.Reason)
	}
	if len(verdict.Alternatives) > 0 {
		b.WriteString("\n\nThings I can do instead:\n")
		for _, alt := range verdict.Alternatives {
			b.WriteString("  - ")
			b.WriteString(alt)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
