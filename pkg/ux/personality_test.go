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
	"testing"
)

func TestParsePersonalityLevel(t *testing.T) {
	cases := []struct {
		input string
		want  PersonalityLevel
	}{
		{"standard", PersonalityStandard},
		{"std", PersonalityStandard},
		{"full", PersonalityStandard}, // legacy alias
		{"minimal", PersonalityMinimal},
		{"min", PersonalityMinimal},
		{"M", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"quiet", PersonalityMachine},
		{"q", PersonalityMachine},
		{"", PersonalityStandard},
		{"bogus", PersonalityStandard},
	}
	for _, tc := range cases {
		if got := ParsePersonalityLevel(tc.input); got != tc.want {
			t.Errorf("ParsePersonalityLevel(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestSetPersonalityLevel(t *testing.T) {
	original := GetPersonality()
	defer SetPersonality(original)

	SetPersonalityLevel(PersonalityMachine)
	if GetPersonality().Level != PersonalityMachine {
		t.Error("level not updated")
	}

	SetPersonality(Personality{Level: PersonalityMinimal})
	if GetPersonality().Level != PersonalityMinimal {
		t.Error("personality not replaced")
	}
}

func TestInitPersonality_EnvOverride(t *testing.T) {
	original := GetPersonality()
	defer SetPersonality(original)

	t.Setenv("FILEBUDDY_PERSONALITY", "machine")
	InitPersonality()
	if GetPersonality().Level != PersonalityMachine {
		t.Errorf("env override not applied, got %q", GetPersonality().Level)
	}
}

func TestInitPersonality_NonTerminal(t *testing.T) {
	original := GetPersonality()
	defer SetPersonality(original)

	t.Setenv("FILEBUDDY_PERSONALITY", "")
	if isTerminal() {
		t.Skip("stdout is a terminal in this environment")
	}
	InitPersonality()
	if GetPersonality().Level != PersonalityMachine {
		t.Errorf("non-terminal runs should default to machine, got %q", GetPersonality().Level)
	}
}
