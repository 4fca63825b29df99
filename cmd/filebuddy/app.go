// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"time"

	"github.com/AleutianAI/filebuddy/cmd/filebuddy/config"
	"github.com/AleutianAI/filebuddy/pkg/logging"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/llm"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/selector"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/supervisor"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/tools"
	"github.com/AleutianAI/filebuddy/services/filebuddy/telemetry"
	"github.com/AleutianAI/filebuddy/services/filebuddy/workspace"
)

// App bundles the assembled agent stack for the CLI commands.
type App struct {
	Config   *config.FileBuddyConfig
	Client   llm.Client
	Ops      *workspace.FileOps
	Registry *tools.Registry
	Loop     *agent.Loop
	Logger   *logging.Logger
}

// buildApp assembles the full agent from the loaded configuration.
//
// Description:
//
//	Wires workspace, tools, selector, supervisor, and loop in
//	dependency order. A backend type of "none" leaves the LLM client
//	nil; the agent then runs entirely on pattern fallbacks, which
//	keeps the file tools usable offline.
func buildApp(cfg *config.FileBuddyConfig) (*App, error) {
	logger := logging.New(logging.Config{
		Level:   parseLogLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "cli",
		JSON:    cfg.Logging.JSON,
	})

	if cfg.Features.Telemetry {
		telemetry.InitMetrics()
	}

	client, err := buildClient(cfg.ModelBackend)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.New(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("opening workspace: %w", err)
	}
	limits := workspace.Limits{
		MaxRead:   cfg.Workspace.MaxReadBytes,
		MaxWrite:  cfg.Workspace.MaxWriteBytes,
		RateLimit: cfg.Workspace.RateLimit,
	}
	ops, err := workspace.NewFileOps(ws, limits, logger)
	if err != nil {
		return nil, fmt.Errorf("building file operations: %w", err)
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterFileTools(registry, ops, client); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	executor := tools.NewExecutor(registry, nil)

	sel, err := selector.New(client, registry.Definitions(), selector.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("building selector: %w", err)
	}

	var screen *supervisor.Supervisor
	if cfg.Safety.Enabled {
		screen, err = supervisor.New(client, supervisor.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("building supervisor: %w", err)
		}
	}

	fallback, err := agent.NewMultiCallStrategy(client, sel, agent.DefaultStrategyOptions())
	if err != nil {
		return nil, fmt.Errorf("building fallback strategy: %w", err)
	}

	deps := agent.Deps{
		Client:     client,
		Registry:   registry,
		Executor:   executor,
		Supervisor: screen,
		Fallback:   fallback,
	}
	if client != nil {
		primary, err := agent.NewConsolidatedStrategy(client, registry.Definitions(), agent.DefaultStrategyOptions())
		if err != nil {
			return nil, fmt.Errorf("building primary strategy: %w", err)
		}
		deps.Primary = primary
	} else {
		// No LLM at all: the selector-backed strategy leads.
		deps.Primary = fallback
		deps.Fallback = nil
	}

	loop, err := agent.New(deps, agent.Options{
		MaxIterations: cfg.Agent.MaxIterations,
		LLMTimeout:    time.Duration(cfg.Agent.LLMTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("building agent loop: %w", err)
	}

	return &App{
		Config:   cfg,
		Client:   client,
		Ops:      ops,
		Registry: registry,
		Loop:     loop,
		Logger:   logger,
	}, nil
}

// buildClient creates the LLM client the config asks for.
func buildClient(backend config.BackendConfig) (llm.Client, error) {
	switch backend.Type {
	case "ollama":
		if backend.BaseURL != "" || backend.Model != "" {
			baseURL := backend.BaseURL
			if baseURL == "" {
				baseURL = "http://localhost:11434"
			}
			model := backend.Model
			if model == "" {
				model = "llama3.1"
			}
			return llm.NewOllamaClientWith(baseURL, model), nil
		}
		return llm.NewOllamaClient()
	case "openai":
		return llm.NewOpenAIClient()
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown model backend type %q", backend.Type)
	}
}

func parseLogLevel(level string) logging.Level {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
