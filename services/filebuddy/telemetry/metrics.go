// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides Prometheus metrics for the agent.
//
// # Description
//
// Counters and histograms covering the agent loop, tool execution,
// safety moderation, and tool selection. Initialize once at startup
// via InitMetrics(); all recording helpers are nil-safe so library
// code can record unconditionally and tests need no registry.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "filebuddy"

// Subsystem for agent metrics
const agentSubsystem = "agent"

// AgentMetrics holds all Prometheus metrics for agent operations.
type AgentMetrics struct {
	// ToolInvocationsTotal counts tool executions.
	// Labels: tool, status (success, error)
	ToolInvocationsTotal *prometheus.CounterVec

	// ToolDurationSeconds measures tool execution latency.
	// Labels: tool
	ToolDurationSeconds *prometheus.HistogramVec

	// LoopIterations measures iterations consumed per agent run.
	LoopIterations prometheus.Histogram

	// LoopRunsTotal counts agent runs by termination reason.
	// Labels: reason (goal, ceiling, error)
	LoopRunsTotal *prometheus.CounterVec

	// SafetyDecisionsTotal counts supervisor verdicts.
	// Labels: decision (allowed, rejected, requires_review), stage (pattern, llm, fallback)
	SafetyDecisionsTotal *prometheus.CounterVec

	// SelectionsTotal counts tool selections by source.
	// Labels: source (llm, pattern, none)
	SelectionsTotal *prometheus.CounterVec

	// LLMRequestsTotal counts completion calls.
	// Labels: provider, status (success, error)
	LLMRequestsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of AgentMetrics.
// Nil until InitMetrics() is called; recording helpers tolerate nil.
var DefaultMetrics *AgentMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics against the default
// registry. Call once at application startup; calling twice panics on
// duplicate registration.
//
// # Outputs
//
//   - *AgentMetrics: The initialized metrics instance.
func InitMetrics() *AgentMetrics {
	DefaultMetrics = &AgentMetrics{
		ToolInvocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "tool_invocations_total",
				Help:      "Total tool executions by tool and status",
			},
			[]string{"tool", "status"},
		),

		ToolDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "tool_duration_seconds",
				Help:      "Tool execution latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"tool"},
		),

		LoopIterations: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "loop_iterations",
				Help:      "Iterations consumed per agent run",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
		),

		LoopRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "loop_runs_total",
				Help:      "Total agent runs by termination reason",
			},
			[]string{"reason"},
		),

		SafetyDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "safety_decisions_total",
				Help:      "Supervisor verdicts by decision and stage",
			},
			[]string{"decision", "stage"},
		),

		SelectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "selections_total",
				Help:      "Tool selections by source",
			},
			[]string{"source"},
		),

		LLMRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: agentSubsystem,
				Name:      "llm_requests_total",
				Help:      "Completion calls by provider and status",
			},
			[]string{"provider", "status"},
		),
	}

	return DefaultMetrics
}

// RecordToolInvocation records a completed tool execution.
func RecordToolInvocation(tool string, success bool, seconds float64) {
	m := DefaultMetrics
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolInvocationsTotal.WithLabelValues(tool, status).Inc()
	m.ToolDurationSeconds.WithLabelValues(tool).Observe(seconds)
}

// RecordLoopRun records a completed agent run.
func RecordLoopRun(reason string, iterations int) {
	m := DefaultMetrics
	if m == nil {
		return
	}
	m.LoopRunsTotal.WithLabelValues(reason).Inc()
	m.LoopIterations.Observe(float64(iterations))
}

// RecordSafetyDecision records a supervisor verdict.
func RecordSafetyDecision(decision, stage string) {
	m := DefaultMetrics
	if m == nil {
		return
	}
	m.SafetyDecisionsTotal.WithLabelValues(decision, stage).Inc()
}

// RecordSelection records a tool selection outcome.
func RecordSelection(source string) {
	m := DefaultMetrics
	if m == nil {
		return
	}
	m.SelectionsTotal.WithLabelValues(source).Inc()
}

// RecordLLMRequest records a completion call.
func RecordLLMRequest(provider string, success bool) {
	m := DefaultMetrics
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.LLMRequestsTotal.WithLabelValues(provider, status).Inc()
}
