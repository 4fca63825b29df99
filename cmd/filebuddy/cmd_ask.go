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
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/filebuddy/cmd/filebuddy/config"
	"github.com/AleutianAI/filebuddy/pkg/ux"
	"github.com/AleutianAI/filebuddy/services/filebuddy/agent"
)

// runAsk answers a single question and exits.
func runAsk(cmd *cobra.Command, args []string) error {
	app, err := buildApp(&config.Global)
	if err != nil {
		return err
	}
	defer app.Logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	query := strings.Join(args, " ")
	result, err := askOnce(ctx, app, query)
	if err != nil {
		return err
	}
	if !result.Success && result.TerminationReason == agent.TerminationError {
		return fmt.Errorf("run failed: %s", result.Error)
	}
	return nil
}

// askOnce runs the agent for one query and prints the outcome.
func askOnce(ctx context.Context, app *App, query string) (*agent.RunResult, error) {
	spinner := ux.NewSpinner("Thinking")
	spinner.Start()

	result, err := app.Loop.Run(ctx, query)

	if err != nil {
		spinner.StopWithError("Interrupted")
		return nil, err
	}
	if result.Success {
		spinner.StopWithSuccess("Done")
	} else {
		spinner.StopWithWarning("Finished with problems")
	}

	fmt.Println()
	fmt.Println(result.Response)

	if len(result.ToolsUsed) > 0 {
		ux.Muted(fmt.Sprintf("tools: %s  iterations: %d",
			strings.Join(result.ToolsUsed, ", "), result.Iterations))
	}
	if showSteps {
		printSteps(result.Steps)
	}
	return result, nil
}

// printSteps renders the reasoning trace for --steps.
func printSteps(steps []agent.Step) {
	if len(steps) == 0 {
		return
	}
	ux.Title("Reasoning trace")
	for _, step := range steps {
		switch step.Phase {
		case agent.PhaseThink:
			ux.Info(fmt.Sprintf("%2d THINK   %s", step.Number, step.Content))
		case agent.PhaseAct:
			ux.Info(fmt.Sprintf("%2d ACT     %s %v", step.Number, step.ToolName, step.ToolArgs))
		case agent.PhaseObserve:
			preview := step.ToolResult
			if len(preview) > 120 {
				preview = preview[:120] + "..."
			}
			ux.Info(fmt.Sprintf("%2d OBSERVE %s", step.Number, preview))
		}
	}
}
