// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the filebuddy configuration file.
//
// The config lives at ~/.filebuddy/filebuddy.yaml and is created with
// defaults on first run. Structural validation uses struct tags via
// go-playground/validator; cross-field rules live in Validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// configValidate is the shared validator instance.
var configValidate = validator.New()

// FileBuddyConfig is the root configuration.
type FileBuddyConfig struct {
	// Workspace is the sandbox directory the agent operates in.
	Workspace WorkspaceConfig `yaml:"workspace" validate:"required"`

	// ModelBackend selects the LLM provider.
	ModelBackend BackendConfig `yaml:"model_backend" validate:"required"`

	// Agent tunes the reasoning loop.
	Agent AgentConfig `yaml:"agent"`

	// Safety controls query screening.
	Safety SafetyConfig `yaml:"safety"`

	// Features: toggles for system services.
	Features FeatureConfig `yaml:"features"`

	// Logging controls log output.
	Logging LoggingConfig `yaml:"logging"`
}

// WorkspaceConfig bounds the sandbox.
type WorkspaceConfig struct {
	// Root is the sandbox directory. Created if missing.
	Root string `yaml:"root" validate:"required"`

	// MaxReadBytes is the largest file the agent will read.
	MaxReadBytes int64 `yaml:"max_read_bytes" validate:"gt=0"`

	// MaxWriteBytes is the largest payload the agent will write.
	MaxWriteBytes int64 `yaml:"max_write_bytes" validate:"gt=0"`

	// RateLimit is the file operations-per-second ceiling.
	RateLimit float64 `yaml:"rate_limit" validate:"gt=0"`
}

// BackendConfig selects the LLM provider.
type BackendConfig struct {
	// Type can be "ollama", "openai", or "none" for pattern-only mode.
	Type string `yaml:"type" validate:"oneof=ollama openai none"`

	// BaseURL overrides the provider endpoint (ollama only).
	BaseURL string `yaml:"base_url,omitempty"`

	// Model names the model to use. Empty takes the provider default.
	Model string `yaml:"model,omitempty"`
}

// AgentConfig tunes the reasoning loop.
type AgentConfig struct {
	// MaxIterations is the hard ceiling on loop iterations.
	MaxIterations int `yaml:"max_iterations" validate:"gte=1,lte=50"`

	// LLMTimeoutSeconds bounds each strategy call.
	LLMTimeoutSeconds int `yaml:"llm_timeout_seconds" validate:"gte=1"`
}

// SafetyConfig controls the supervisor.
type SafetyConfig struct {
	// Enabled turns query screening on. Leave it on.
	Enabled bool `yaml:"enabled"`
}

// FeatureConfig toggles optional subsystems.
type FeatureConfig struct {
	// Telemetry enables Prometheus metrics.
	Telemetry bool `yaml:"telemetry"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Dir enables file logging to the given directory. Supports ~.
	Dir string `yaml:"dir,omitempty"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() FileBuddyConfig {
	root := "~/filebuddy_workspace"
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, "filebuddy_workspace")
	}
	return FileBuddyConfig{
		Workspace: WorkspaceConfig{
			Root:          root,
			MaxReadBytes:  10 * 1024 * 1024,
			MaxWriteBytes: 10 * 1024 * 1024,
			RateLimit:     10,
		},
		ModelBackend: BackendConfig{
			Type:    "ollama",
			BaseURL: "http://localhost:11434",
			Model:   "llama3.1",
		},
		Agent: AgentConfig{
			MaxIterations:     10,
			LLMTimeoutSeconds: 30,
		},
		Safety:   SafetyConfig{Enabled: true},
		Features: FeatureConfig{Telemetry: false},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.filebuddy/logs",
		},
	}
}

// Validate checks the configuration.
func (c *FileBuddyConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
