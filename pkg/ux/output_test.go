// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// captureStdout captures what f writes to stdout.
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// captureStderr captures what f writes to stderr.
func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func withLevel(t *testing.T, level PersonalityLevel, f func()) {
	t.Helper()
	original := GetPersonality()
	defer SetPersonality(original)
	SetPersonalityLevel(level)
	f()
}

func TestMachineMode_PlainOutput(t *testing.T) {
	withLevel(t, PersonalityMachine, func() {
		out := captureStdout(func() { Success("done") })
		if out != "OK: done\n" {
			t.Errorf("Success machine output = %q", out)
		}

		errOut := captureStderr(func() { Error("broke") })
		if errOut != "ERROR: broke\n" {
			t.Errorf("Error machine output = %q", errOut)
		}

		errOut = captureStderr(func() { Warning("careful") })
		if errOut != "WARN: careful\n" {
			t.Errorf("Warning machine output = %q", errOut)
		}

		out = captureStdout(func() { Info("plain line") })
		if out != "plain line\n" {
			t.Errorf("Info machine output = %q", out)
		}

		out = captureStdout(func() {
			Title("invisible")
			Muted("also invisible")
		})
		if out != "" {
			t.Errorf("Title and Muted must be silent in machine mode, got %q", out)
		}

		out = captureStdout(func() { Box("Config", "value") })
		if out != "Config: value\n" {
			t.Errorf("Box machine output = %q", out)
		}
	})
}

func TestStandardMode_ContainsText(t *testing.T) {
	withLevel(t, PersonalityStandard, func() {
		out := captureStdout(func() { Success("written notes.txt") })
		if !strings.Contains(out, "written notes.txt") {
			t.Errorf("message text missing from %q", out)
		}

		out = captureStdout(func() { Title("Filebuddy") })
		if !strings.Contains(out, "Filebuddy") {
			t.Errorf("title text missing from %q", out)
		}
	})
}

func TestFileStatus(t *testing.T) {
	withLevel(t, PersonalityMachine, func() {
		out := captureStdout(func() { FileStatus("notes.txt", IconSuccess, "read") })
		if !strings.Contains(out, "notes.txt") || !strings.Contains(out, "read") {
			t.Errorf("FileStatus machine output = %q", out)
		}
	})

	withLevel(t, PersonalityStandard, func() {
		out := captureStdout(func() { FileStatus("notes.txt", IconSuccess, "") })
		if !strings.Contains(out, "notes.txt") {
			t.Errorf("FileStatus output = %q", out)
		}
	})
}

func TestIconRender(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow, IconBullet} {
		if rendered := icon.Render(); !strings.Contains(rendered, string(icon)) {
			t.Errorf("Render() lost the glyph for %q: %q", icon, rendered)
		}
	}
}
