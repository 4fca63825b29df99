// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"strings"

	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/llm"
)

// englishIndicators are common English function words. A query where
// more than englishRatio of words contain one of these is reasoned
// over as-is; anything else gets translated so the tool prompts stay
// in one language.
var englishIndicators = []string{
	"the", "a", "an", "and", "or", "but", "in", "on", "at",
	"to", "for", "of", "with", "by",
}

const englishRatio = 0.30

// looksEnglish reports whether the query is probably English.
//
// Edge cases: single-word queries almost never contain a function
// word, so they are treated as English and left untranslated; the
// selector's multilingual patterns still cover them.
func looksEnglish(query string) bool {
	words := strings.Fields(strings.ToLower(query))
	if len(words) <= 1 {
		return true
	}

	matches := 0
	for _, word := range words {
		for _, indicator := range englishIndicators {
			if strings.Contains(word, indicator) {
				matches++
				break
			}
		}
	}
	return float64(matches)/float64(len(words)) > englishRatio
}

// translateQuery returns an English rendering of the query, or the
// original when the query already looks English, the client is nil,
// or translation fails. Translation is best effort; the loop must
// never fail because of it.
func translateQuery(ctx context.Context, client llm.Client, query string) (string, bool) {
	if looksEnglish(query) || client == nil {
		return query, false
	}

	resp, err := client.Complete(ctx, &llm.Request{
		SystemPrompt: "Translate the user's message to English. Respond with ONLY the translation, nothing else. Keep filenames exactly as written.",
		Prompt:       query,
		MaxTokens:    256,
		Temperature:  0.1,
	})
	if err != nil {
		return query, false
	}
	translated := strings.TrimSpace(resp.Content)
	if translated == "" || translated == query {
		return query, false
	}
	return translated, true
}
