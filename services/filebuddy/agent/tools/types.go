// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the tool registry and execution framework for the agent.
//
// Tools are the only mechanism through which the agent touches the
// workspace. Each tool is defined by a ToolDefinition that describes its
// parameters and carries example phrases in several languages; the
// selector builds its prompt exclusively from these definitions, so a
// tool's registered metadata is its single source of truth.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package tools

import (
	"context"
	"time"
)

// ToolCategory represents the category a tool belongs to.
type ToolCategory string

const (
	// CategoryFile includes primitive file CRUD tools.
	CategoryFile ToolCategory = "file"

	// CategoryAnalysis includes derived tools that inspect or reason
	// over workspace contents.
	CategoryAnalysis ToolCategory = "analysis"

	// CategoryMeta includes tools about the agent itself (help).
	CategoryMeta ToolCategory = "meta"
)

// String returns the string representation of the category.
func (c ToolCategory) String() string {
	return string(c)
}

// ParamType represents the type of a tool parameter.
type ParamType string

const (
	// ParamTypeString is a string parameter.
	ParamTypeString ParamType = "string"

	// ParamTypeInt is an integer parameter.
	ParamTypeInt ParamType = "integer"

	// ParamTypeFloat is a floating-point parameter.
	ParamTypeFloat ParamType = "number"

	// ParamTypeBool is a boolean parameter.
	ParamTypeBool ParamType = "boolean"
)

// ParamDef defines a single parameter for a tool.
type ParamDef struct {
	// Type is the parameter type.
	Type ParamType `json:"type"`

	// Description explains what the parameter is for.
	Description string `json:"description"`

	// Required indicates if the parameter must be provided.
	Required bool `json:"required"`

	// Default is the default value if not provided.
	Default any `json:"default,omitempty"`

	// Enum restricts values to a set of options.
	Enum []any `json:"enum,omitempty"`
}

// ToolDefinition describes a tool's interface for the LLM.
//
// The selector serializes definitions into its prompt; Examples carry
// natural-language trigger phrases (English and Italian) that both the
// LLM prompt and the pattern fallback draw from.
type ToolDefinition struct {
	// Name is the unique identifier for the tool.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// Parameters defines the input parameters.
	Parameters map[string]ParamDef `json:"parameters"`

	// Examples lists natural-language phrases that should trigger
	// this tool.
	Examples []string `json:"examples,omitempty"`

	// Category is the tool category (file, analysis, meta).
	Category ToolCategory `json:"category"`

	// Priority influences tool selection (higher = prefer).
	Priority int `json:"priority"`

	// SideEffects indicates if the tool modifies the workspace.
	SideEffects bool `json:"side_effects"`

	// Timeout is the default execution timeout.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// RequiredParams returns a list of required parameter names.
func (d *ToolDefinition) RequiredParams() []string {
	var required []string
	for name, param := range d.Parameters {
		if param.Required {
			required = append(required, name)
		}
	}
	return required
}

// Tool defines the interface for executable tools.
//
// Implementations must be safe for concurrent use.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Category returns the tool category.
	Category() ToolCategory

	// Definition returns the tool's parameter schema.
	Definition() ToolDefinition

	// Execute runs the tool with the given parameters.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   params - Input parameters (validated before call)
	//
	// Outputs:
	//   *Result - Execution result
	//   error - Non-nil if execution failed
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result contains the outcome of a tool execution.
type Result struct {
	// Success indicates if the tool succeeded.
	Success bool `json:"success"`

	// Output is the tool's output data.
	Output any `json:"output"`

	// OutputText is a text representation of the output.
	OutputText string `json:"output_text"`

	// Error contains any error message.
	Error string `json:"error,omitempty"`

	// Duration is how long execution took.
	Duration time.Duration `json:"duration"`

	// Cached indicates if result came from cache.
	Cached bool `json:"cached"`

	// Truncated indicates if output was truncated.
	Truncated bool `json:"truncated"`

	// ModifiedFiles lists files written or deleted by this tool.
	ModifiedFiles []string `json:"modified_files,omitempty"`
}

// Invocation represents a pending or completed tool call.
type Invocation struct {
	// ID is a unique identifier for this invocation.
	ID string `json:"id"`

	// ToolName is the tool to invoke.
	ToolName string `json:"tool_name"`

	// Parameters are the input parameters.
	Parameters map[string]any `json:"parameters"`

	// Reason explains why the agent chose this tool.
	Reason string `json:"reason,omitempty"`

	// StepNumber is the agent step when this was invoked.
	StepNumber int `json:"step_number"`

	// StartedAt is when execution started.
	StartedAt time.Time `json:"started_at,omitempty"`

	// CompletedAt is when execution completed.
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Result contains the execution result (after completion).
	Result *Result `json:"result,omitempty"`
}

// ExecutorOptions configures the tool executor.
type ExecutorOptions struct {
	// DefaultTimeout is the default execution timeout.
	DefaultTimeout time.Duration

	// MaxOutputBytes limits OutputText size.
	MaxOutputBytes int

	// EnableCaching enables result caching for side-effect-free tools.
	EnableCaching bool

	// CacheTTL is how long cached results are valid.
	CacheTTL time.Duration
}

// DefaultExecutorOptions returns sensible defaults.
func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		DefaultTimeout: 30 * time.Second,
		MaxOutputBytes: 16 * 1024,
		EnableCaching:  false,
		CacheTTL:       time.Minute,
	}
}

// ValidationError represents a parameter validation error.
type ValidationError struct {
	// Parameter is the parameter name that failed validation.
	Parameter string `json:"parameter"`

	// Message describes the validation failure.
	Message string `json:"message"`

	// Expected describes what was expected.
	Expected string `json:"expected,omitempty"`

	// Actual describes what was received.
	Actual string `json:"actual,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Expected != "" && e.Actual != "" {
		return e.Parameter + ": " + e.Message + " (expected " + e.Expected + ", got " + e.Actual + ")"
	}
	return e.Parameter + ": " + e.Message
}
