// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/filebuddy/services/filebuddy/telemetry"
)

// Sentinel errors for the executor.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrValidationFailed indicates parameter validation failed.
	ErrValidationFailed = errors.New("parameter validation failed")

	// ErrExecutionFailed indicates tool execution failed.
	ErrExecutionFailed = errors.New("tool execution failed")

	// ErrTimeout indicates the tool execution timed out.
	ErrTimeout = errors.New("tool execution timed out")
)

// Executor handles tool invocations with validation and observability.
//
// Thread Safety:
//
//	Executor is safe for concurrent use. Multiple tool executions can
//	run simultaneously.
type Executor struct {
	registry *Registry
	options  ExecutorOptions
	cache    *resultCache
}

// NewExecutor creates a new tool executor.
//
// Inputs:
//
//	registry - The tool registry
//	opts - Executor options (uses defaults if nil)
//
// Outputs:
//
//	*Executor - The configured executor
func NewExecutor(registry *Registry, opts *ExecutorOptions) *Executor {
	options := DefaultExecutorOptions()
	if opts != nil {
		defaults := options
		options = *opts
		// Zero fields on caller-supplied options fall back to the
		// defaults; a zero timeout would expire every call instantly.
		if options.DefaultTimeout <= 0 {
			options.DefaultTimeout = defaults.DefaultTimeout
		}
		if options.MaxOutputBytes <= 0 {
			options.MaxOutputBytes = defaults.MaxOutputBytes
		}
		if options.CacheTTL <= 0 {
			options.CacheTTL = defaults.CacheTTL
		}
	}

	e := &Executor{
		registry: registry,
		options:  options,
	}

	if options.EnableCaching {
		e.cache = newResultCache(options.CacheTTL)
	}

	return e
}

// Execute runs a tool with the given invocation.
//
// Description:
//
//	Validates parameters against the tool's definition, applies the
//	per-tool timeout, executes, and records metrics. A panicking tool
//	is converted into ErrExecutionFailed; the agent observes the
//	failure instead of crashing.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout
//	invocation - The tool invocation to execute
//
// Outputs:
//
//	*Result - The execution result
//	error - Non-nil if execution failed
//
// Errors:
//
//	ErrToolNotFound - Tool does not exist
//	ErrValidationFailed - Parameter validation failed
//	ErrTimeout - Execution timed out
//	ErrExecutionFailed - Tool returned an error or panicked
//
// Thread Safety: This method is safe for concurrent use.
func (e *Executor) Execute(ctx context.Context, invocation *Invocation) (*Result, error) {
	if invocation == nil {
		return nil, fmt.Errorf("%w: nil invocation", ErrValidationFailed)
	}

	if invocation.ID == "" {
		invocation.ID = uuid.NewString()
	}

	logger := slog.With(
		"tool", invocation.ToolName,
		"invocation_id", invocation.ID,
	)

	tool, ok := e.registry.Get(invocation.ToolName)
	if !ok {
		logger.Warn("Tool not found")
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, invocation.ToolName)
	}

	if err := e.validateParams(tool, invocation.Parameters); err != nil {
		logger.Warn("Parameter validation failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	// Check cache
	if e.cache != nil && !tool.Definition().SideEffects {
		if cached, ok := e.cache.get(invocation.ToolName, invocation.Parameters); ok {
			logger.Debug("Cache hit")
			cached.Cached = true
			return cached, nil
		}
	}

	timeout := e.options.DefaultTimeout
	if tool.Definition().Timeout > 0 {
		timeout = tool.Definition().Timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	invocation.StartedAt = time.Now()
	logger.Debug("Executing tool")

	result, err := e.runTool(ctx, tool, invocation.Parameters)
	invocation.CompletedAt = time.Now()
	elapsed := invocation.CompletedAt.Sub(invocation.StartedAt)

	if err != nil {
		telemetry.RecordToolInvocation(invocation.ToolName, false, elapsed.Seconds())
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Error("Tool execution timed out", "timeout", timeout)
			return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, invocation.ToolName, timeout)
		}
		logger.Error("Tool execution failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	result.Duration = elapsed

	if e.options.MaxOutputBytes > 0 && len(result.OutputText) > e.options.MaxOutputBytes {
		result.OutputText = result.OutputText[:e.options.MaxOutputBytes] + "\n... [truncated]"
		result.Truncated = true
	}

	if e.cache != nil && result.Success && !tool.Definition().SideEffects {
		e.cache.set(invocation.ToolName, invocation.Parameters, result)
	}

	invocation.Result = result

	telemetry.RecordToolInvocation(invocation.ToolName, result.Success, elapsed.Seconds())
	logger.Debug("Tool executed",
		"success", result.Success,
		"duration", result.Duration,
	)

	return result, nil
}

// runTool dispatches to the tool, converting panics into errors.
func (e *Executor) runTool(ctx context.Context, tool Tool, params map[string]any) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Execute(ctx, params)
}

// validateParams validates tool parameters against the definition.
func (e *Executor) validateParams(tool Tool, params map[string]any) error {
	def := tool.Definition()

	// Check required parameters
	for name, paramDef := range def.Parameters {
		if paramDef.Required {
			if _, ok := params[name]; !ok {
				return &ValidationError{
					Parameter: name,
					Message:   "required parameter missing",
				}
			}
		}
	}

	// Validate provided parameters
	for name, value := range params {
		paramDef, ok := def.Parameters[name]
		if !ok {
			// Unknown parameters are ignored, matching lenient LLM output.
			continue
		}

		if err := e.validateParam(name, value, paramDef); err != nil {
			return err
		}
	}

	return nil
}

// validateParam validates a single parameter value.
func (e *Executor) validateParam(name string, value any, def ParamDef) error {
	if value == nil {
		if def.Required {
			return &ValidationError{
				Parameter: name,
				Message:   "required parameter is nil",
			}
		}
		return nil
	}

	switch def.Type {
	case ParamTypeString:
		if _, ok := value.(string); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "expected string",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeInt:
		// Accept both int and float64 (JSON unmarshals numbers as float64)
		switch value.(type) {
		case int, int64, float64:
		default:
			return &ValidationError{
				Parameter: name,
				Message:   "expected integer",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeFloat:
		switch value.(type) {
		case float64, float32, int:
		default:
			return &ValidationError{
				Parameter: name,
				Message:   "expected number",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeBool:
		if _, ok := value.(bool); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "expected boolean",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
	}

	// Check enum constraint
	if len(def.Enum) > 0 {
		found := false
		for _, allowed := range def.Enum {
			if value == allowed {
				found = true
				break
			}
		}
		if !found {
			return &ValidationError{
				Parameter: name,
				Message:   "value not in allowed enum",
				Expected:  fmt.Sprintf("%v", def.Enum),
				Actual:    fmt.Sprintf("%v", value),
			}
		}
	}

	return nil
}

// ClearCache clears the result cache.
//
// Thread Safety: This method is safe for concurrent use.
func (e *Executor) ClearCache() {
	if e.cache != nil {
		e.cache.clear()
	}
}

// resultCache provides thread-safe caching of tool results.
type resultCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	result    *Result
	expiresAt time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// key generates a deterministic cache key from tool name and parameters.
//
// Parameter keys are sorted so the same parameters always produce the
// same key regardless of map iteration order.
func (c *resultCache) key(toolName string, params map[string]any) string {
	if len(params) == 0 {
		return toolName
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var keyParts []string
	for _, k := range keys {
		keyParts = append(keyParts, fmt.Sprintf("%s=%v", k, params[k]))
	}

	return fmt.Sprintf("%s:{%s}", toolName, strings.Join(keyParts, ","))
}

func (c *resultCache) get(toolName string, params map[string]any) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[c.key(toolName, params)]
	if !ok {
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		return nil, false
	}

	// Return a copy to avoid mutation
	result := *entry.result
	return &result, true
}

func (c *resultCache) set(toolName string, params map[string]any, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[c.key(toolName, params)] = &cacheEntry{
		result:    result,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}
