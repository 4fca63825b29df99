// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrIncompleteDefinition indicates a tool whose definition is missing
// a name or description. Such a tool would be invisible to the
// selector, so registration refuses it outright rather than carrying
// an unselectable tool.
var ErrIncompleteDefinition = errors.New("tool definition incomplete")

// Registry manages tool registration and lookup.
//
// The selection prompt is built exclusively from registered
// definitions, so the registry is the single source of truth for what
// the agent can do.
//
// Thread Safety:
//
//	Registry is fully thread-safe. All methods can be called concurrently.
type Registry struct {
	mu sync.RWMutex

	// byName maps tool names to tool instances.
	byName map[string]Tool

	// byCategory maps categories to lists of tools.
	byCategory map[ToolCategory][]Tool
}

// NewRegistry creates a new empty tool registry.
//
// Outputs:
//
//	*Registry - Empty registry ready for tool registration
func NewRegistry() *Registry {
	return &Registry{
		byName:     make(map[string]Tool),
		byCategory: make(map[ToolCategory][]Tool),
	}
}

// Register adds a tool to the registry.
//
// Description:
//
//	Registers a tool under its Name() and Category(). If a tool with
//	the same name is already registered, it is replaced; the newest
//	registration wins. A tool whose definition lacks a name or
//	description is refused with ErrIncompleteDefinition.
//
// Inputs:
//
//	tool - The tool to register. Must not be nil.
//
// Outputs:
//
//	error - ErrIncompleteDefinition for an unselectable tool, nil otherwise
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("%w: nil tool", ErrIncompleteDefinition)
	}

	def := tool.Definition()
	if def.Name == "" || def.Description == "" {
		return fmt.Errorf("%w: %q must have a name and description", ErrIncompleteDefinition, def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	category := tool.Category()

	// Check if we're replacing an existing tool
	if existing, ok := r.byName[name]; ok {
		oldCategory := existing.Category()
		if oldCategory != category {
			r.removeFromCategory(oldCategory, name)
		}
	}

	r.byName[name] = tool

	if _, ok := r.byCategory[category]; !ok {
		r.byCategory[category] = make([]Tool, 0)
	}

	found := false
	for i, t := range r.byCategory[category] {
		if t.Name() == name {
			r.byCategory[category][i] = tool
			found = true
			break
		}
	}
	if !found {
		r.byCategory[category] = append(r.byCategory[category], tool)
	}
	return nil
}

// MustRegister registers a tool and panics on failure.
//
// Intended for static tool sets wired at startup, where an incomplete
// definition is a programming error.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// removeFromCategory removes a tool from a category list.
// Caller must hold the write lock.
func (r *Registry) removeFromCategory(category ToolCategory, name string) {
	tools, ok := r.byCategory[category]
	if !ok {
		return
	}

	for i, t := range tools {
		if t.Name() == name {
			r.byCategory[category] = append(tools[:i], tools[i+1:]...)
			return
		}
	}
}

// Get returns a tool by name.
//
// Inputs:
//
//	name - The tool name
//
// Outputs:
//
//	Tool - The registered tool, or nil if not found
//	bool - True if the tool was found
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.byName[name]
	return tool, ok
}

// GetByCategory returns all tools in a category.
//
// Inputs:
//
//	category - The category to filter by
//
// Outputs:
//
//	[]Tool - Tools in the category (may be empty)
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) GetByCategory(category ToolCategory) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools, ok := r.byCategory[category]
	if !ok {
		return nil
	}

	// Return a copy to avoid race conditions
	result := make([]Tool, len(tools))
	copy(result, tools)
	return result
}

// GetAll returns all registered tools.
//
// Outputs:
//
//	[]Tool - All registered tools
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) GetAll() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(r.byName))
	for _, tool := range r.byName {
		result = append(result, tool)
	}
	return result
}

// Names returns all registered tool names, sorted.
//
// Outputs:
//
//	[]string - All tool names
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Unregister removes a tool from the registry.
//
// Inputs:
//
//	name - The tool name to remove
//
// Outputs:
//
//	bool - True if the tool was found and removed
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tool, ok := r.byName[name]
	if !ok {
		return false
	}

	delete(r.byName, name)
	r.removeFromCategory(tool.Category(), name)
	return true
}

// Definitions returns definitions for all registered tools.
//
// Description:
//
//	Sorted by priority (higher first), then name, for stable prompt
//	construction.
//
// Outputs:
//
//	[]ToolDefinition - Definitions for all tools
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definitions := make([]ToolDefinition, 0, len(r.byName))
	for _, tool := range r.byName {
		definitions = append(definitions, tool.Definition())
	}

	sort.Slice(definitions, func(i, j int) bool {
		if definitions[i].Priority != definitions[j].Priority {
			return definitions[i].Priority > definitions[j].Priority
		}
		return definitions[i].Name < definitions[j].Name
	})

	return definitions
}
