// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package supervisor

import "regexp"

// Risk factor names reported in verdicts.
const (
	RiskPathTraversal    = "path_traversal"
	RiskMaliciousCode    = "malicious_code"
	RiskSystemAccess     = "system_access"
	RiskDataExfiltration = "data_exfiltration"
	RiskPromptInjection  = "prompt_injection"
)

// riskRule pairs a risk name with its detection pattern.
type riskRule struct {
	risk    string
	pattern *regexp.Regexp
}

// dangerRules are the fast-path screening patterns. A match rejects
// the request without consulting the LLM, and still rejects when the
// LLM is down.
var dangerRules = []riskRule{
	// Escape attempts out of the workspace
	{RiskPathTraversal, regexp.MustCompile(`\.\./|\.\.\\`)},
	{RiskPathTraversal, regexp.MustCompile(`(?i)%2e%2e`)},

	// Destructive shell commands
	{RiskMaliciousCode, regexp.MustCompile(`(?i)\brm\s+-[rf]{1,2}\b`)},
	{RiskMaliciousCode, regexp.MustCompile(`(?i)\bformat\s+c:`)},
	{RiskMaliciousCode, regexp.MustCompile(`(?i)\bmkfs\b|\bdd\s+if=`)},
	{RiskMaliciousCode, regexp.MustCompile(`(?i):\(\)\s*\{\s*:\|:`)},

	// System path probes
	{RiskSystemAccess, regexp.MustCompile(`(?i)/etc/(passwd|shadow|sudoers)`)},
	{RiskSystemAccess, regexp.MustCompile(`(?i)\bsystem32\b|\bSAM\b.*registry|registry.*\bSAM\b`)},
	{RiskSystemAccess, regexp.MustCompile(`(?i)~?/\.ssh/|id_rsa`)},

	// Prompt injection markers
	{RiskPromptInjection, regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`)},
	{RiskPromptInjection, regexp.MustCompile(`(?i)you\s+are\s+now\s+(in\s+)?(developer|dan|jailbreak)\s*mode`)},
	{RiskPromptInjection, regexp.MustCompile(`(?i)disregard\s+your\s+(rules|guidelines|system\s+prompt)`)},

	// Exfiltration
	{RiskDataExfiltration, regexp.MustCompile(`(?i)\b(curl|wget|nc|netcat)\s+.*(http|://|\d+\.\d+\.\d+\.\d+)`)},
	{RiskDataExfiltration, regexp.MustCompile(`(?i)(upload|send|post|email)\s+.*\b(api[_\s]?key|password|secret|credential)`)},
}

// scanForRisks returns the risk factors matched by the danger rules.
// Duplicate risk names are collapsed.
func scanForRisks(query string) []string {
	var risks []string
	seen := make(map[string]struct{})
	for _, rule := range dangerRules {
		if rule.pattern.MatchString(query) {
			if _, dup := seen[rule.risk]; dup {
				continue
			}
			seen[rule.risk] = struct{}{}
			risks = append(risks, rule.risk)
		}
	}
	return risks
}

// intentRule maps request phrasings to an intent for the pattern-only
// fallback path. Ordered most specific first.
type intentRule struct {
	intent  Intent
	pattern *regexp.Regexp
}

var intentRules = []intentRule{
	{IntentFileDelete, regexp.MustCompile(`(?i)\b(delete|remove|erase|elimina|cancella|rimuovi)\b`)},
	{IntentFileWrite, regexp.MustCompile(`(?i)\b(write|create|save|append|scrivi|crea|salva|aggiungi)\b`)},
	{IntentFileRead, regexp.MustCompile(`(?i)\b(read|open|contents?|leggi|apri|contenuto)\b`)},
	{IntentFileList, regexp.MustCompile(`(?i)\b(list|show|tree|elenca|lista|mostra|albero|cartelle|directories|folders|files)\b`)},
	{IntentFileQuestion, regexp.MustCompile(`(?i)\b(what\s+does|summarize|about|cosa\s+dice|riassumi)\b`)},
}

// inferIntent guesses the intent from phrasing alone.
func inferIntent(query string) Intent {
	for _, rule := range intentRules {
		if rule.pattern.MatchString(query) {
			return rule.intent
		}
	}
	return IntentGeneralQuestion
}
