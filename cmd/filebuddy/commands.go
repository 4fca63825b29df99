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
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/filebuddy/cmd/filebuddy/config"
	"github.com/AleutianAI/filebuddy/pkg/ux"
)

// --- Global Command Variables ---
var (
	personalityLevel string // UX personality level (full/standard/minimal/machine)
	showSteps        bool   // print the reasoning trace after each answer

	rootCmd = &cobra.Command{
		Use:   "filebuddy",
		Short: "A natural-language assistant for a sandboxed file workspace",
		Long: `Filebuddy answers questions about, and performs operations on,
the files in a sandboxed workspace directory. Ask in plain English
or Italian; the agent picks the right file tool and reports back.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
			if err := config.Load(); err != nil {
				ux.Error(fmt.Sprintf("Could not load the configuration: %v", err))
			}
		},
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question about the workspace and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk, // Defined in cmd_ask.go
	}

	chatCmd = &cobra.Command{
		Use:     "chat",
		Short:   "Start an interactive session with the workspace agent",
		Aliases: []string{"repl"},
		RunE:    runChat, // Defined in cmd_chat.go
	}

	toolsCmd = &cobra.Command{
		Use:   "tools",
		Short: "List the tools the agent can use",
		RunE:  runTools,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Show the active configuration",
		RunE:  runConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output personality: full, standard, minimal, or machine")
	askCmd.Flags().BoolVar(&showSteps, "steps", false,
		"Print the reasoning steps after the answer")
	chatCmd.Flags().BoolVar(&showSteps, "steps", false,
		"Print the reasoning steps after each answer")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(configCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	app, err := buildApp(&config.Global)
	if err != nil {
		return err
	}
	defer app.Logger.Close()

	defs := app.Registry.Definitions()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	ux.Title("Available tools")
	for _, def := range defs {
		marker := " "
		if def.SideEffects {
			marker = "*"
		}
		ux.Info(fmt.Sprintf("%s %-28s %s", marker, def.Name, def.Description))
	}
	ux.Muted("Tools marked * modify the workspace.")
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := &config.Global
	ux.Title("Filebuddy configuration")
	ux.Info(fmt.Sprintf("Workspace root:  %s", cfg.Workspace.Root))
	ux.Info(fmt.Sprintf("Model backend:   %s", cfg.ModelBackend.Type))
	if cfg.ModelBackend.Model != "" {
		ux.Info(fmt.Sprintf("Model:           %s", cfg.ModelBackend.Model))
	}
	ux.Info(fmt.Sprintf("Max iterations:  %d", cfg.Agent.MaxIterations))
	ux.Info(fmt.Sprintf("Safety checks:   %t", cfg.Safety.Enabled))
	ux.Info(fmt.Sprintf("Telemetry:       %t", cfg.Features.Telemetry))
	return nil
}
