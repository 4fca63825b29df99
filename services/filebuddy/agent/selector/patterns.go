// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package selector

import (
	"regexp"
	"strings"
)

// patternRule maps a query pattern to a tool. Rules are evaluated in
// order, so more specific rules must precede broader ones.
type patternRule struct {
	tool       string
	pattern    *regexp.Regexp
	confidence float64

	// paramName, when set, names the parameter filled from the first
	// capture group.
	paramName string
}

// filenameToken matches a plausible filename with an extension.
const filenameToken = `([\w\-. ]+?\.\w+)`

// fallbackRules is the ordered pattern table for tool selection without
// an LLM. Combined listing rules come before files-only and dirs-only
// rules so "everything" style queries resolve to list_all. English and
// Italian phrasings are both covered.
var fallbackRules = []patternRule{
	// Combined listings first. "tutti i file e cartelle" must not be
	// captured by the files-only rule below.
	{tool: "list_all", confidence: 0.9, pattern: regexp.MustCompile(
		`(?i)\b(files?\s+(and|&)\s+(directories|folders)|everything|all\s+contents|` +
			`file\s+e\s+(le\s+)?cartelle|tutto\s+il\s+contenuto|elenca\s+tutto|lista\s+tutto)\b`)},

	// Tree view
	{tool: "tree", confidence: 0.9, pattern: regexp.MustCompile(
		`(?i)\b(tree|structure|albero|struttura)\b`)},

	// Recursive listing
	{tool: "list_files_recursive", confidence: 0.85, pattern: regexp.MustCompile(
		`(?i)\b(recursive(ly)?|subfolders?|subdirector(y|ies)|sottocartelle|ricorsiv)\b`)},

	// Superlatives before plain listings
	{tool: "find_newest_file", confidence: 0.9, pattern: regexp.MustCompile(
		`(?i)\b(newest|most\s+recent|latest|last\s+modified|più\s+recente|più\s+nuovo|ultimo\s+file)\b`)},
	{tool: "find_largest_file", confidence: 0.9, pattern: regexp.MustCompile(
		`(?i)\b(largest|biggest|most\s+space|più\s+grande|più\s+pesante)\b`)},

	// Pattern search
	{tool: "find_files_by_pattern", confidence: 0.85, paramName: "pattern", pattern: regexp.MustCompile(
		`(?i)(?:matching|ending\s+(?:in|with)|che\s+finiscono\s+con|corrispondenti\s+a)\s+(\*?\.?[\w*?.\[\]]+)`)},

	// Locate a specific file in the tree
	{tool: "find_file_by_name", confidence: 0.85, paramName: "filename", pattern: regexp.MustCompile(
		`(?i)(?:where\s+is|locate|find\s+the\s+file|dove\s+si\s+trova|trova\s+il\s+file)\s+` + filenameToken)},

	// File metadata
	{tool: "get_file_info", confidence: 0.85, paramName: "filename", pattern: regexp.MustCompile(
		`(?i)(?:how\s+big\s+is|size\s+of|info\s+(?:for|about)|when\s+was|quanto\s+è\s+grande|` +
			`dimensione\s+di|quando\s+è\s+stato\s+modificato)\s+` + filenameToken)},

	// Content operations with a filename
	{tool: "read_file", confidence: 0.9, paramName: "filename", pattern: regexp.MustCompile(
		`(?i)(?:read|show|open|contents?\s+of|what'?s\s+in|leggi|apri|contenuto\s+di|mostra\s+il\s+file)\s+(?:the\s+file\s+|il\s+file\s+)?` + filenameToken)},
	{tool: "write_file", confidence: 0.85, paramName: "filename", pattern: regexp.MustCompile(
		`(?i)(?:write|create|save|append|scrivi|crea|salva|aggiungi)\b.*?(?:to|in|into|called|named|nel\s+file|chiamato)\s+` + filenameToken)},
	{tool: "delete_file", confidence: 0.9, paramName: "filename", pattern: regexp.MustCompile(
		`(?i)(?:delete|remove|erase|elimina|cancella|rimuovi)\s+(?:the\s+file\s+|il\s+file\s+)?` + filenameToken)},

	// Plain listings after everything more specific
	{tool: "list_directories", confidence: 0.85, pattern: regexp.MustCompile(
		`(?i)\b(directories|folders|cartelle|directory)\b`)},
	{tool: "list_files", confidence: 0.8, pattern: regexp.MustCompile(
		`(?i)\b(list|show|elenca|lista|mostra|quali)\b.*\b(files?|file)\b|\bfiles\?$`)},

	// Questions about contents
	{tool: "answer_question_about_files", confidence: 0.7, pattern: regexp.MustCompile(
		`(?i)\b(what\s+does|summarize|about\s+the\s+contents|cosa\s+dice|riassumi)\b`)},

	// Help last
	{tool: "help", confidence: 0.9, pattern: regexp.MustCompile(
		`(?i)^\s*(help|aiuto)\s*$|\b(what\s+can\s+you\s+do|capabilities|cosa\s+sai\s+fare)\b`)},
}

// PatternFallback selects tools from an ordered regex table.
//
// Thread Safety: This type is safe for concurrent use after creation.
type PatternFallback struct {
	rules []patternRule
}

// NewPatternFallback creates a fallback selector with the default rules.
func NewPatternFallback() *PatternFallback {
	return &PatternFallback{rules: fallbackRules}
}

// Select matches the query against the rule table.
//
// Description:
//
//	Returns the first matching rule's tool, restricted to tools in the
//	available set. An empty available set accepts any rule. Returns
//	ok=false when no rule matches.
//
// Thread Safety: This method is safe for concurrent use.
func (p *PatternFallback) Select(query string, available map[string]struct{}) (*Result, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, false
	}

	for _, rule := range p.rules {
		if len(available) > 0 {
			if _, ok := available[rule.tool]; !ok {
				continue
			}
		}
		m := rule.pattern.FindStringSubmatch(query)
		if m == nil {
			continue
		}

		result := &Result{
			Tool:         rule.tool,
			Confidence:   rule.confidence,
			Reasoning:    "pattern match",
			FallbackUsed: true,
		}
		if rule.paramName != "" && len(m) > 1 && m[1] != "" {
			result.Parameters = map[string]any{
				rule.paramName: strings.TrimSpace(m[1]),
			}
		}
		return result, true
	}

	return nil, false
}
