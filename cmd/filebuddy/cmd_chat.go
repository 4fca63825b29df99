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
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/filebuddy/cmd/filebuddy/config"
	"github.com/AleutianAI/filebuddy/pkg/ux"
)

// runChat starts the interactive session.
func runChat(cmd *cobra.Command, args []string) error {
	app, err := buildApp(&config.Global)
	if err != nil {
		return err
	}
	defer app.Logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ux.Title("Filebuddy")
	ux.Muted(fmt.Sprintf("Workspace: %s", app.Ops.Workspace().Root()))
	if app.Client == nil {
		ux.Warning("No model backend configured; running in pattern-matching mode.")
	}
	ux.Muted("Ask about your files. Type 'exit' or press Ctrl+C to leave.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "":
			continue
		case "exit", "quit", "esci":
			ux.Muted("Bye.")
			return nil
		}

		if _, err := askOnce(ctx, app, query); err != nil {
			if ctx.Err() != nil {
				break
			}
			ux.Error(fmt.Sprintf("Run failed: %v", err))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	ux.Muted("Bye.")
	return nil
}
