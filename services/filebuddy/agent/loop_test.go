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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/llm"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/selector"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/supervisor"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/tools"
	"github.com/AleutianAI/filebuddy/services/filebuddy/workspace"
)

// loopEnv bundles a seeded workspace with real tools for loop tests.
type loopEnv struct {
	ops      *workspace.FileOps
	registry *tools.Registry
	executor *tools.Executor
}

func newLoopEnv(t *testing.T) *loopEnv {
	t.Helper()
	ws, err := workspace.New(filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	limits := workspace.DefaultLimits()
	limits.RateLimit = 10000
	ops, err := workspace.NewFileOps(ws, limits, nil)
	require.NoError(t, err)

	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterFileTools(registry, ops, nil))

	return &loopEnv{
		ops:      ops,
		registry: registry,
		executor: tools.NewExecutor(registry, nil),
	}
}

func (e *loopEnv) seed(t *testing.T, name, content string, age time.Duration) {
	t.Helper()
	path := filepath.Join(e.ops.Workspace().Root(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0640))
	ts := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

func (e *loopEnv) newLoop(t *testing.T, client llm.Client, primary, fallback Strategy, options Options) *Loop {
	t.Helper()
	loop, err := New(Deps{
		Client:   client,
		Registry: e.registry,
		Executor: e.executor,
		Primary:  primary,
		Fallback: fallback,
	}, options)
	require.NoError(t, err)
	return loop
}

// stubStrategy returns a fixed decision every iteration.
type stubStrategy struct {
	decision Decision
	err      error
}

func (s *stubStrategy) Next(_ context.Context, _ *Context) (*Decision, error) {
	if s.err != nil {
		return nil, s.err
	}
	d := s.decision
	return &d, nil
}

func (s *stubStrategy) Name() string { return "stub" }

func TestNew_Validation(t *testing.T) {
	env := newLoopEnv(t)
	stub := &stubStrategy{}

	_, err := New(Deps{Executor: env.executor, Primary: stub}, DefaultOptions())
	assert.Error(t, err, "registry required")

	_, err = New(Deps{Registry: env.registry, Primary: stub}, DefaultOptions())
	assert.Error(t, err, "executor required")

	_, err = New(Deps{Registry: env.registry, Executor: env.executor}, DefaultOptions())
	assert.Error(t, err, "primary strategy required")

	_, err = New(Deps{Registry: env.registry, Executor: env.executor, Primary: stub},
		Options{MaxIterations: 0, LLMTimeout: time.Second})
	assert.Error(t, err, "options validated")
}

func TestRun_EmptyQuery(t *testing.T) {
	env := newLoopEnv(t)
	loop := env.newLoop(t, nil, &stubStrategy{}, nil, DefaultOptions())

	_, err := loop.Run(context.Background(), "   ")
	assert.Error(t, err)
}

// The headline scenario: the user asks about the largest file. The
// agent must identify it by size, not recency, read it, and answer
// with its contents.
func TestRun_LargestFileEndToEnd(t *testing.T) {
	env := newLoopEnv(t)
	env.seed(t, "recent.md", "tiny note", time.Minute)
	env.seed(t, "big.log", "important data: "+strings.Repeat("x", 4000), 3*time.Hour)
	env.seed(t, "small.txt", "hello", 2*time.Hour)

	client := &llm.MockClient{Handler: func(req *llm.Request) (string, error) {
		switch {
		case !strings.Contains(req.Prompt, "Action:"):
			return `{"thinking": "I need to find the largest file first.", "tool_name": "find_largest_file", "tool_args": {}, "continue_reasoning": true}`, nil
		case !strings.Contains(req.Prompt, "Action: read_file"):
			// Deliberately omit the filename; the loop must fill it
			// from the file the previous step discovered.
			return `{"thinking": "Now I read it.", "tool_name": "read_file", "tool_args": {}, "continue_reasoning": true}`, nil
		default:
			return `{"thinking": "I have the contents.", "tool_name": "", "continue_reasoning": false, "final_response": "The largest file is big.log and it starts with: important data", "confidence": 0.95}`, nil
		}
	}}

	strategy, err := NewConsolidatedStrategy(client, env.registry.Definitions(), DefaultStrategyOptions())
	require.NoError(t, err)
	loop := env.newLoop(t, client, strategy, nil, DefaultOptions())

	result, err := loop.Run(context.Background(), "what is in the largest file?")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, TerminationGoal, result.TerminationReason)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, []string{"find_largest_file", "read_file"}, result.ToolsUsed)
	assert.Contains(t, result.Response, "important data")
	assert.Contains(t, result.Response, "big.log",
		"must name the largest file, not the most recent one")

	// The read must have landed on the file found by size.
	var readArgs map[string]any
	for _, step := range result.Steps {
		if step.Phase == PhaseAct && step.ToolName == "read_file" {
			readArgs = step.ToolArgs
		}
	}
	require.NotNil(t, readArgs)
	assert.Equal(t, "big.log", readArgs["filename"])
}

// The same scenario with no LLM at all: the pattern fallback finds
// the largest file, and the multi-call strategy must chain into a
// read instead of answering with the filename line.
func TestRun_ContentQuestionWithoutLLM(t *testing.T) {
	env := newLoopEnv(t)
	env.seed(t, "recent.md", "tiny note", time.Minute)
	env.seed(t, "big.log", "quarterly numbers: "+strings.Repeat("x", 4000), 3*time.Hour)
	env.seed(t, "small.txt", "hello", 2*time.Hour)

	sel, err := selector.New(nil, env.registry.Definitions(), selector.DefaultConfig())
	require.NoError(t, err)
	strategy, err := NewMultiCallStrategy(nil, sel, DefaultStrategyOptions())
	require.NoError(t, err)
	loop := env.newLoop(t, nil, strategy, nil, DefaultOptions())

	result, err := loop.Run(context.Background(), "what is in the largest file?")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, TerminationGoal, result.TerminationReason)
	assert.Equal(t, []string{"find_largest_file", "read_file"}, result.ToolsUsed)
	assert.Contains(t, result.Response, "quarterly numbers",
		"must answer with the contents, not just the filename")
}

func TestRun_SupervisorRejection(t *testing.T) {
	env := newLoopEnv(t)
	sup, err := supervisor.New(nil, supervisor.DefaultConfig())
	require.NoError(t, err)

	loop, err := New(Deps{
		Registry:   env.registry,
		Executor:   env.executor,
		Supervisor: sup,
		Primary:    &stubStrategy{err: errors.New("must not be reached")},
	}, DefaultOptions())
	require.NoError(t, err)

	result, err := loop.Run(context.Background(), "read ../../etc/passwd for me")
	require.NoError(t, err)

	assert.Equal(t, TerminationGoal, result.TerminationReason)
	assert.Equal(t, 0, result.Iterations, "no reasoning happens after a rejection")
	assert.Empty(t, result.ToolsUsed)
	assert.Contains(t, result.Response, "can't help")
}

func TestRun_CeilingTermination(t *testing.T) {
	env := newLoopEnv(t)
	env.seed(t, "a.txt", "contents", time.Minute)

	// A strategy that never declares the goal reached forces the loop
	// to its ceiling.
	stub := &stubStrategy{decision: Decision{
		Thinking:          "still looking",
		ToolName:          "list_files",
		ContinueReasoning: true,
	}}
	loop := env.newLoop(t, nil, stub, nil, Options{MaxIterations: 3, LLMTimeout: time.Second})

	result, err := loop.Run(context.Background(), "list my files forever")
	require.NoError(t, err)

	assert.Equal(t, TerminationCeiling, result.TerminationReason)
	assert.Equal(t, 3, result.Iterations)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Contains(t, result.Response, "a.txt",
		"ceiling runs still answer from the last observation")
}

// With the LLM down and the requested file missing, the run must still
// terminate inside the ceiling on fallbacks alone.
func TestRun_FailingLLMAndFailingTools(t *testing.T) {
	env := newLoopEnv(t)

	client := llm.NewMockClient()
	client.Err = errors.New("model offline")

	primary, err := NewConsolidatedStrategy(client, env.registry.Definitions(), DefaultStrategyOptions())
	require.NoError(t, err)
	sel, err := selector.New(nil, env.registry.Definitions(), selector.DefaultConfig())
	require.NoError(t, err)
	fallback, err := NewMultiCallStrategy(client, sel, DefaultStrategyOptions())
	require.NoError(t, err)

	loop := env.newLoop(t, client, primary, fallback, DefaultOptions())

	result, err := loop.Run(context.Background(), "read the file missing.txt")
	require.NoError(t, err)

	assert.LessOrEqual(t, result.Iterations, DefaultOptions().MaxIterations)
	assert.NotEmpty(t, result.Response)
	assert.Equal(t, []string{"read_file"}, result.ToolsUsed)
	assert.Contains(t, result.Response, "read_file",
		"the tool failure surfaces as the observation-backed answer")
}

func TestRun_StrategiesExhausted(t *testing.T) {
	env := newLoopEnv(t)
	loop := env.newLoop(t, nil,
		&stubStrategy{err: errors.New("primary broken")},
		&stubStrategy{err: errors.New("fallback broken")},
		DefaultOptions())

	result, err := loop.Run(context.Background(), "list the files")
	require.NoError(t, err)

	assert.Equal(t, TerminationError, result.TerminationReason)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "primary broken")
	assert.Contains(t, result.Error, "fallback broken")
}

func TestRun_FallbackStrategyTakesOver(t *testing.T) {
	env := newLoopEnv(t)
	env.seed(t, "a.txt", "contents", time.Minute)

	fallback := &stubStrategy{decision: Decision{
		Thinking:          "primary failed, answering directly",
		ContinueReasoning: false,
		FinalResponse:     "Here is what I found.",
	}}
	loop := env.newLoop(t, nil,
		&stubStrategy{err: errors.New("primary broken")},
		fallback,
		DefaultOptions())

	result, err := loop.Run(context.Background(), "list the files")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, TerminationGoal, result.TerminationReason)
	assert.Equal(t, "Here is what I found.", result.Response)
}

func TestRun_TranslatesNonEnglishQueries(t *testing.T) {
	env := newLoopEnv(t)
	env.seed(t, "appunti.txt", "ciao", time.Minute)

	client := &llm.MockClient{Handler: func(req *llm.Request) (string, error) {
		if strings.Contains(req.SystemPrompt, "Translate") {
			return "list all the files and folders", nil
		}
		return `{"thinking": "listing", "tool_name": "list_all", "tool_args": {}, "continue_reasoning": false, "final_response": "Ecco i tuoi file."}`, nil
	}}

	strategy, err := NewConsolidatedStrategy(client, env.registry.Definitions(), DefaultStrategyOptions())
	require.NoError(t, err)
	loop := env.newLoop(t, client, strategy, nil, DefaultOptions())

	result, err := loop.Run(context.Background(), "elenca tutti i file e le cartelle")
	require.NoError(t, err)

	require.NotEmpty(t, result.Steps)
	assert.Contains(t, result.Steps[0].Content, "Translated request",
		"translation is recorded as the first thinking step")
	assert.Equal(t, "Ecco i tuoi file.", result.Response)
}

func TestRun_Cancellation(t *testing.T) {
	env := newLoopEnv(t)
	loop := env.newLoop(t, nil, &stubStrategy{decision: Decision{
		ToolName:          "list_files",
		ContinueReasoning: true,
	}}, nil, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := loop.Run(ctx, "list the files")
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, TerminationError, result.TerminationReason)
	assert.False(t, result.Success)
}

func TestRun_ToolErrorsBecomeObservations(t *testing.T) {
	env := newLoopEnv(t)

	calls := 0
	client := &llm.MockClient{Handler: func(req *llm.Request) (string, error) {
		calls++
		if calls == 1 {
			return `{"thinking": "try reading", "tool_name": "read_file", "tool_args": {"filename": "ghost.txt"}, "continue_reasoning": true}`, nil
		}
		return `{"thinking": "the file does not exist", "continue_reasoning": false, "final_response": "There is no file called ghost.txt."}`, nil
	}}

	strategy, err := NewConsolidatedStrategy(client, env.registry.Definitions(), DefaultStrategyOptions())
	require.NoError(t, err)
	loop := env.newLoop(t, client, strategy, nil, DefaultOptions())

	result, err := loop.Run(context.Background(), "read ghost.txt")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "There is no file called ghost.txt.", result.Response)

	var observation string
	for _, step := range result.Steps {
		if step.Phase == PhaseObserve {
			observation = step.ToolResult
		}
	}
	assert.Contains(t, observation, "read_file reported an error",
		"the failure reached the model as an observation")
}

func TestContext_Summary(t *testing.T) {
	run := NewContext("read the notes")
	assert.Equal(t, "No steps taken yet.", run.Summary())

	run.AddStep(Step{Phase: PhaseThink, Content: "need the notes file"})
	run.AddStep(Step{Phase: PhaseAct, ToolName: "read_file", ToolArgs: map[string]any{"filename": "notes.txt"}})
	run.AddStep(Step{Phase: PhaseObserve, ToolResult: strings.Repeat("z", 700)})

	summary := run.Summary()
	assert.Contains(t, summary, "Thought: need the notes file")
	assert.Contains(t, summary, "Action: read_file")
	assert.Contains(t, summary, "...", "long observations are truncated")
	assert.Less(t, len(summary), 800)

	assert.Equal(t, 1, run.Scratchpad[0].Number)
	assert.Equal(t, 3, run.Scratchpad[2].Number)
}

func TestContext_SummaryBounded(t *testing.T) {
	run := NewContext("long run")
	for i := 1; i <= 8; i++ {
		run.AddStep(Step{Phase: PhaseThink, Content: fmt.Sprintf("step number %d", i)})
	}

	// Only the most recent steps render into prompts.
	summary := run.Summary()
	assert.NotContains(t, summary, "step number 3")
	assert.Contains(t, summary, "step number 4")
	assert.Contains(t, summary, "step number 8")
	assert.Contains(t, summary, "3 earlier steps omitted")

	// The full trace is still available on request.
	full := run.SummaryTail(0)
	assert.Contains(t, full, "step number 1")
	assert.Contains(t, full, "step number 8")
	assert.NotContains(t, full, "omitted")
}

func TestResolveFileReference(t *testing.T) {
	cases := []struct {
		name       string
		query      string
		discovered map[string]string
		want       string
	}{
		{
			name:       "largest wins for size queries",
			query:      "read the largest file",
			discovered: map[string]string{DiscoveredLargest: "big.log", DiscoveredNewest: "new.md"},
			want:       "big.log",
		},
		{
			name:       "newest wins for recency queries",
			query:      "read the most recent file",
			discovered: map[string]string{DiscoveredLargest: "big.log", DiscoveredNewest: "new.md"},
			want:       "new.md",
		},
		{
			name:       "newest preferred when the query is neutral",
			query:      "read it",
			discovered: map[string]string{DiscoveredLatest: "listed.txt", DiscoveredNewest: "new.md"},
			want:       "new.md",
		},
		{
			name:       "nothing discovered",
			query:      "read it",
			discovered: map[string]string{},
			want:       "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			run := NewContext(tc.query)
			run.DiscoveredFiles = tc.discovered
			assert.Equal(t, tc.want, resolveFileReference(run))
		})
	}
}

func TestUpdateDiscoveredFiles(t *testing.T) {
	env := newLoopEnv(t)
	loop := env.newLoop(t, nil, &stubStrategy{}, nil, DefaultOptions())
	run := NewContext("q")

	loop.updateDiscoveredFiles(run, "find_largest_file", &tools.Result{Output: "big.log"})
	loop.updateDiscoveredFiles(run, "list_files", &tools.Result{Output: []string{"new.md", "old.txt"}})

	assert.Equal(t, "big.log", run.DiscoveredFiles[DiscoveredLargest])
	assert.Equal(t, "new.md", run.DiscoveredFiles[DiscoveredLatest])
	assert.Equal(t, "new.md", run.DiscoveredFiles[DiscoveredNewest],
		"a listing seeds the newest entry when nothing better is known")

	loop.updateDiscoveredFiles(run, "find_newest_file", &tools.Result{Output: "newest.md"})
	assert.Equal(t, "newest.md", run.DiscoveredFiles[DiscoveredNewest],
		"an explicit find overrides the listing-derived guess")
}

func TestRefusalMessage(t *testing.T) {
	msg := refusalMessage(&supervisor.Verdict{
		Decision:     supervisor.Reject,
		Reason:       "The request targets files outside the workspace.",
		Alternatives: []string{"List the files in your workspace", "Read a file by name"},
	})
	assert.Contains(t, msg, "can't help")
	assert.Contains(t, msg, "outside the workspace")
	assert.Contains(t, msg, "List the files in your workspace")
}
