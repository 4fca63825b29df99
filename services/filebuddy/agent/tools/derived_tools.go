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
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/filebuddy/services/filebuddy/agent/llm"
	"github.com/AleutianAI/filebuddy/services/filebuddy/workspace"
)

// =============================================================================
// Metadata tools
// =============================================================================

// GetFileInfoTool reports size and modification time for a file.
type GetFileInfoTool struct {
	ops *workspace.FileOps
}

// NewGetFileInfoTool creates the get_file_info tool.
func NewGetFileInfoTool(ops *workspace.FileOps) *GetFileInfoTool {
	return &GetFileInfoTool{ops: ops}
}

func (t *GetFileInfoTool) Name() string           { return "get_file_info" }
func (t *GetFileInfoTool) Category() ToolCategory { return CategoryAnalysis }

func (t *GetFileInfoTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_file_info",
		Description: "Get metadata about a file: size in bytes and last modification time.",
		Parameters: map[string]ParamDef{
			"filename": {
				Type:        ParamTypeString,
				Description: "Name of the file to inspect",
				Required:    true,
			},
		},
		Examples: []string{
			"how big is report.pdf",
			"when was notes.txt last modified",
			"file info for data.csv",
			"quanto è grande report.pdf",
			"quando è stato modificato appunti.txt",
		},
		Category: CategoryAnalysis,
		Priority: 55,
	}
}

func (t *GetFileInfoTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	filename, err := stringParam(params, "filename")
	if err != nil {
		return failure(err), nil
	}
	info, err := t.ops.Stat(filename)
	if err != nil {
		return failure(err), nil
	}
	text := fmt.Sprintf("%s: %d bytes, modified %s",
		info.Name, info.Size, info.ModTime.Format(time.RFC3339))
	return success(info, text), nil
}

// FindNewestFileTool finds the most recently modified file.
type FindNewestFileTool struct {
	ops *workspace.FileOps
}

// NewFindNewestFileTool creates the find_newest_file tool.
func NewFindNewestFileTool(ops *workspace.FileOps) *FindNewestFileTool {
	return &FindNewestFileTool{ops: ops}
}

func (t *FindNewestFileTool) Name() string           { return "find_newest_file" }
func (t *FindNewestFileTool) Category() ToolCategory { return CategoryAnalysis }

func (t *FindNewestFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "find_newest_file",
		Description: "Find the most recently modified file in the workspace.",
		Parameters:  map[string]ParamDef{},
		Examples: []string{
			"what is the newest file",
			"find the most recent file",
			"which file changed last",
			"qual è il file più recente",
			"trova il file più nuovo",
		},
		Category: CategoryAnalysis,
		Priority: 60,
	}
}

func (t *FindNewestFileTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	infos, err := t.ops.ListInfo()
	if err != nil {
		return failure(err), nil
	}
	var newest *workspace.FileInfo
	for i := range infos {
		if infos[i].IsDir {
			continue
		}
		if newest == nil || infos[i].ModTime.After(newest.ModTime) {
			newest = &infos[i]
		}
	}
	if newest == nil {
		return failure(fmt.Errorf("no files in the workspace")), nil
	}
	text := fmt.Sprintf("Newest file: %s (modified %s)",
		newest.Name, newest.ModTime.Format(time.RFC3339))
	return success(newest.Name, text), nil
}

// FindLargestFileTool finds the largest file by size.
type FindLargestFileTool struct {
	ops *workspace.FileOps
}

// NewFindLargestFileTool creates the find_largest_file tool.
func NewFindLargestFileTool(ops *workspace.FileOps) *FindLargestFileTool {
	return &FindLargestFileTool{ops: ops}
}

func (t *FindLargestFileTool) Name() string           { return "find_largest_file" }
func (t *FindLargestFileTool) Category() ToolCategory { return CategoryAnalysis }

func (t *FindLargestFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "find_largest_file",
		Description: "Find the largest file in the workspace by size in bytes.",
		Parameters:  map[string]ParamDef{},
		Examples: []string{
			"what is the biggest file",
			"find the largest file",
			"which file takes the most space",
			"qual è il file più grande",
			"trova il file più pesante",
		},
		Category: CategoryAnalysis,
		Priority: 60,
	}
}

func (t *FindLargestFileTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	infos, err := t.ops.ListInfo()
	if err != nil {
		return failure(err), nil
	}
	var largest *workspace.FileInfo
	for i := range infos {
		if infos[i].IsDir {
			continue
		}
		if largest == nil || infos[i].Size > largest.Size {
			largest = &infos[i]
		}
	}
	if largest == nil {
		return failure(fmt.Errorf("no files in the workspace")), nil
	}
	text := fmt.Sprintf("Largest file: %s (%d bytes)", largest.Name, largest.Size)
	return success(largest.Name, text), nil
}

// FindFilesByPatternTool matches filenames against a glob pattern.
type FindFilesByPatternTool struct {
	ops *workspace.FileOps
}

// NewFindFilesByPatternTool creates the find_files_by_pattern tool.
func NewFindFilesByPatternTool(ops *workspace.FileOps) *FindFilesByPatternTool {
	return &FindFilesByPatternTool{ops: ops}
}

func (t *FindFilesByPatternTool) Name() string           { return "find_files_by_pattern" }
func (t *FindFilesByPatternTool) Category() ToolCategory { return CategoryAnalysis }

func (t *FindFilesByPatternTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "find_files_by_pattern",
		Description: "Find files whose names match a glob pattern, for example *.txt or report_*.md.",
		Parameters: map[string]ParamDef{
			"pattern": {
				Type:        ParamTypeString,
				Description: "Glob pattern to match against filenames",
				Required:    true,
			},
		},
		Examples: []string{
			"find all txt files",
			"show files matching *.md",
			"which files end in .csv",
			"trova tutti i file txt",
			"cerca i file che finiscono con .csv",
		},
		Category: CategoryAnalysis,
		Priority: 55,
	}
}

func (t *FindFilesByPatternTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	pattern, err := stringParam(params, "pattern")
	if err != nil {
		return failure(err), nil
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return failure(fmt.Errorf("invalid pattern %q: %w", pattern, err)), nil
	}

	files, err := t.ops.ListFilesRecursive()
	if err != nil {
		return failure(err), nil
	}

	var matches []string
	for _, f := range files {
		ok, _ := filepath.Match(pattern, filepath.Base(f))
		if ok {
			matches = append(matches, f)
		}
	}
	if len(matches) == 0 {
		return success([]string{}, fmt.Sprintf("No files match pattern %q.", pattern)), nil
	}
	return success(matches, fmt.Sprintf("Files matching %q:\n%s", pattern, strings.Join(matches, "\n"))), nil
}

// FindFileByNameTool searches subdirectories for an exact filename.
type FindFileByNameTool struct {
	ops *workspace.FileOps
}

// NewFindFileByNameTool creates the find_file_by_name tool.
func NewFindFileByNameTool(ops *workspace.FileOps) *FindFileByNameTool {
	return &FindFileByNameTool{ops: ops}
}

func (t *FindFileByNameTool) Name() string           { return "find_file_by_name" }
func (t *FindFileByNameTool) Category() ToolCategory { return CategoryAnalysis }

func (t *FindFileByNameTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "find_file_by_name",
		Description: "Search the workspace tree for a file with an exact name and return its relative path.",
		Parameters: map[string]ParamDef{
			"filename": {
				Type:        ParamTypeString,
				Description: "Exact filename to search for",
				Required:    true,
			},
		},
		Examples: []string{
			"where is config.yaml",
			"find the file notes.txt",
			"locate report.pdf",
			"dove si trova config.yaml",
			"trova il file appunti.txt",
		},
		Category: CategoryAnalysis,
		Priority: 55,
	}
}

func (t *FindFileByNameTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	filename, err := stringParam(params, "filename")
	if err != nil {
		return failure(err), nil
	}
	path, found, err := t.ops.FindFileByName(filename)
	if err != nil {
		return failure(err), nil
	}
	if !found {
		return success("", fmt.Sprintf("No file named %q found in the workspace.", filename)), nil
	}
	return success(path, fmt.Sprintf("Found: %s", path)), nil
}

// =============================================================================
// LLM-backed tools
// =============================================================================

// answerQuestionMaxFiles caps how many files are read for a single question.
const answerQuestionMaxFiles = 5

// answerQuestionPerFileBudget caps the bytes read per file.
const answerQuestionPerFileBudget = 8 * 1024

// AnswerQuestionTool answers a natural-language question about file contents
// by reading the relevant files and asking the LLM.
type AnswerQuestionTool struct {
	ops    *workspace.FileOps
	client llm.Client
}

// NewAnswerQuestionTool creates the answer_question_about_files tool.
func NewAnswerQuestionTool(ops *workspace.FileOps, client llm.Client) *AnswerQuestionTool {
	return &AnswerQuestionTool{ops: ops, client: client}
}

func (t *AnswerQuestionTool) Name() string           { return "answer_question_about_files" }
func (t *AnswerQuestionTool) Category() ToolCategory { return CategoryAnalysis }

func (t *AnswerQuestionTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "answer_question_about_files",
		Description: "Answer a question about the contents of workspace files. Reads the named files (or the most recent ones) and asks the language model.",
		Parameters: map[string]ParamDef{
			"question": {
				Type:        ParamTypeString,
				Description: "The question to answer",
				Required:    true,
			},
			"filename": {
				Type:        ParamTypeString,
				Description: "Optional specific file to consider; defaults to the most recent files",
				Required:    false,
			},
		},
		Examples: []string{
			"what does the report say about revenue",
			"summarize notes.txt",
			"what topics are covered in these files",
			"cosa dice il report sui ricavi",
			"riassumi appunti.txt",
		},
		Category: CategoryAnalysis,
		Priority: 40,
		Timeout:  2 * time.Minute,
	}
}

func (t *AnswerQuestionTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	question, err := stringParam(params, "question")
	if err != nil {
		return failure(err), nil
	}
	if t.client == nil {
		return failure(fmt.Errorf("no language model available to answer questions")), nil
	}

	var candidates []string
	if f, ok := params["filename"].(string); ok && strings.TrimSpace(f) != "" {
		candidates = []string{strings.TrimSpace(f)}
	} else {
		files, err := t.ops.ListFiles()
		if err != nil {
			return failure(err), nil
		}
		if len(files) > answerQuestionMaxFiles {
			files = files[:answerQuestionMaxFiles]
		}
		candidates = files
	}
	if len(candidates) == 0 {
		return success("", "The workspace has no files to answer questions about."), nil
	}

	var b strings.Builder
	anyTruncated := false
	for _, name := range candidates {
		content, truncated, err := t.ops.ReadFileTruncated(name, answerQuestionPerFileBudget)
		if err != nil {
			// Unreadable candidates are skipped, not fatal.
			continue
		}
		anyTruncated = anyTruncated || truncated
		fmt.Fprintf(&b, "=== %s ===\n%s\n\n", name, content)
	}
	if b.Len() == 0 {
		return failure(fmt.Errorf("none of the candidate files could be read")), nil
	}

	resp, err := t.client.Complete(ctx, &llm.Request{
		SystemPrompt: "You answer questions about the user's files. Base your answer only on the file contents provided. If the answer is not in the files, say so.",
		Prompt:       fmt.Sprintf("Files:\n\n%sQuestion: %s", b.String(), question),
		MaxTokens:    1024,
		Temperature:  0.2,
	})
	if err != nil {
		return failure(fmt.Errorf("language model request failed: %w", err)), nil
	}

	result := success(resp.Content, resp.Content)
	result.Truncated = anyTruncated
	return result, nil
}

// =============================================================================
// Meta tools
// =============================================================================

// HelpTool describes the available tools.
type HelpTool struct {
	registry *Registry
}

// NewHelpTool creates the help tool. The registry is consulted at
// execution time, so tools registered after help still appear.
func NewHelpTool(registry *Registry) *HelpTool {
	return &HelpTool{registry: registry}
}

func (t *HelpTool) Name() string           { return "help" }
func (t *HelpTool) Category() ToolCategory { return CategoryMeta }

func (t *HelpTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "help",
		Description: "List the available tools and what each one does.",
		Parameters:  map[string]ParamDef{},
		Examples: []string{
			"help",
			"what can you do",
			"list your capabilities",
			"aiuto",
			"cosa sai fare",
		},
		Category: CategoryMeta,
		Priority: 30,
	}
}

func (t *HelpTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	defs := t.registry.Definitions()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, def := range defs {
		fmt.Fprintf(&b, "  %s - %s\n", def.Name, def.Description)
	}
	return success(defs, b.String()), nil
}

// RegisterFileTools registers the complete file tool set on the registry.
//
// Description:
//
//	Wires every primitive and derived tool over the given workspace
//	operations. The LLM client may be nil; the question-answering tool
//	then reports unavailability at execution time.
//
// Outputs:
//
//	error - Non-nil if any tool definition is incomplete
func RegisterFileTools(registry *Registry, ops *workspace.FileOps, client llm.Client) error {
	toolset := []Tool{
		NewListFilesTool(ops),
		NewListDirectoriesTool(ops),
		NewListAllTool(ops),
		NewListFilesRecursiveTool(ops),
		NewTreeTool(ops),
		NewReadFileTool(ops),
		NewWriteFileTool(ops),
		NewDeleteFileTool(ops),
		NewGetFileInfoTool(ops),
		NewFindNewestFileTool(ops),
		NewFindLargestFileTool(ops),
		NewFindFilesByPatternTool(ops),
		NewFindFileByNameTool(ops),
		NewAnswerQuestionTool(ops, client),
		NewHelpTool(registry),
	}
	for _, tool := range toolset {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("registering %s: %w", tool.Name(), err)
		}
	}
	return nil
}
