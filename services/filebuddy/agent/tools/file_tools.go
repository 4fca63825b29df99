// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the agent's tool registry, executor, and the
// workspace file tools the agent invokes.
//
// Tools are split into primitives, which map one-to-one onto workspace
// operations, and derived tools, which compose primitives or call the
// LLM to answer questions about file contents.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/filebuddy/services/filebuddy/workspace"
)

// =============================================================================
// Listing tools
// =============================================================================

// ListFilesTool lists regular files in the workspace root.
type ListFilesTool struct {
	ops *workspace.FileOps
}

// NewListFilesTool creates the list_files tool.
func NewListFilesTool(ops *workspace.FileOps) *ListFilesTool {
	return &ListFilesTool{ops: ops}
}

func (t *ListFilesTool) Name() string           { return "list_files" }
func (t *ListFilesTool) Category() ToolCategory { return CategoryFile }

func (t *ListFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "list_files",
		Description: "List all files in the workspace, newest first. Does not include directories.",
		Parameters:  map[string]ParamDef{},
		Examples: []string{
			"list files",
			"show me the files",
			"what files are there",
			"elenca i file",
			"mostra i file",
		},
		Category: CategoryFile,
		Priority: 50,
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	files, err := t.ops.ListFiles()
	if err != nil {
		return failure(err), nil
	}
	if len(files) == 0 {
		return success(files, "The workspace is empty."), nil
	}
	return success(files, "Files (newest first):\n"+strings.Join(files, "\n")), nil
}

// ListDirectoriesTool lists directories in the workspace root.
type ListDirectoriesTool struct {
	ops *workspace.FileOps
}

// NewListDirectoriesTool creates the list_directories tool.
func NewListDirectoriesTool(ops *workspace.FileOps) *ListDirectoriesTool {
	return &ListDirectoriesTool{ops: ops}
}

func (t *ListDirectoriesTool) Name() string           { return "list_directories" }
func (t *ListDirectoriesTool) Category() ToolCategory { return CategoryFile }

func (t *ListDirectoriesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "list_directories",
		Description: "List all directories in the workspace, newest first. Does not include files.",
		Parameters:  map[string]ParamDef{},
		Examples: []string{
			"list directories",
			"show folders",
			"what directories exist",
			"elenca le cartelle",
			"mostra le directory",
		},
		Category: CategoryFile,
		Priority: 50,
	}
}

func (t *ListDirectoriesTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	dirs, err := t.ops.ListDirectories()
	if err != nil {
		return failure(err), nil
	}
	if len(dirs) == 0 {
		return success(dirs, "No directories in the workspace."), nil
	}
	return success(dirs, "Directories (newest first):\n"+strings.Join(dirs, "\n")), nil
}

// ListAllTool lists both files and directories in the workspace root.
type ListAllTool struct {
	ops *workspace.FileOps
}

// NewListAllTool creates the list_all tool.
func NewListAllTool(ops *workspace.FileOps) *ListAllTool {
	return &ListAllTool{ops: ops}
}

func (t *ListAllTool) Name() string           { return "list_all" }
func (t *ListAllTool) Category() ToolCategory { return CategoryFile }

func (t *ListAllTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "list_all",
		Description: "List everything in the workspace, both files and directories, newest first. Directories are marked with a trailing slash.",
		Parameters:  map[string]ParamDef{},
		Examples: []string{
			"list everything",
			"list all files and folders",
			"show me all contents",
			"lista tutti i file e cartelle",
			"elenca tutto",
			"mostra file e cartelle",
		},
		Category: CategoryFile,
		// Higher priority than the files-only and dirs-only listings so
		// ambiguous "list everything" requests prefer this tool.
		Priority: 60,
	}
}

func (t *ListAllTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	entries, err := t.ops.ListAll()
	if err != nil {
		return failure(err), nil
	}
	if len(entries) == 0 {
		return success(entries, "The workspace is empty."), nil
	}
	return success(entries, "Workspace contents (newest first):\n"+strings.Join(entries, "\n")), nil
}

// ListFilesRecursiveTool lists files in all subdirectories.
type ListFilesRecursiveTool struct {
	ops *workspace.FileOps
}

// NewListFilesRecursiveTool creates the list_files_recursive tool.
func NewListFilesRecursiveTool(ops *workspace.FileOps) *ListFilesRecursiveTool {
	return &ListFilesRecursiveTool{ops: ops}
}

func (t *ListFilesRecursiveTool) Name() string           { return "list_files_recursive" }
func (t *ListFilesRecursiveTool) Category() ToolCategory { return CategoryFile }

func (t *ListFilesRecursiveTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "list_files_recursive",
		Description: "List all files in the workspace including subdirectories, newest first. Paths are relative to the workspace root.",
		Parameters:  map[string]ParamDef{},
		Examples: []string{
			"list all files recursively",
			"show files in all subfolders",
			"elenca i file in tutte le sottocartelle",
		},
		Category: CategoryFile,
		Priority: 55,
	}
}

func (t *ListFilesRecursiveTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	files, err := t.ops.ListFilesRecursive()
	if err != nil {
		return failure(err), nil
	}
	if len(files) == 0 {
		return success(files, "No files found in the workspace tree."), nil
	}
	return success(files, "All files (newest first):\n"+strings.Join(files, "\n")), nil
}

// TreeTool renders the workspace structure as a tree.
type TreeTool struct {
	ops *workspace.FileOps
}

// NewTreeTool creates the tree tool.
func NewTreeTool(ops *workspace.FileOps) *TreeTool {
	return &TreeTool{ops: ops}
}

func (t *TreeTool) Name() string           { return "tree" }
func (t *TreeTool) Category() ToolCategory { return CategoryFile }

func (t *TreeTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "tree",
		Description: "Generate a tree view of the workspace structure, like the Unix tree command.",
		Parameters:  map[string]ParamDef{},
		Examples: []string{
			"show the tree",
			"display workspace structure",
			"mostra l'albero",
			"struttura delle cartelle",
		},
		Category: CategoryFile,
		Priority: 55,
	}
}

func (t *TreeTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	rendered, err := t.ops.Tree()
	if err != nil {
		return failure(err), nil
	}
	return success(rendered, rendered), nil
}

// =============================================================================
// File content tools
// =============================================================================

// ReadFileTool reads the contents of a file.
type ReadFileTool struct {
	ops *workspace.FileOps
}

// NewReadFileTool creates the read_file tool.
func NewReadFileTool(ops *workspace.FileOps) *ReadFileTool {
	return &ReadFileTool{ops: ops}
}

func (t *ReadFileTool) Name() string           { return "read_file" }
func (t *ReadFileTool) Category() ToolCategory { return CategoryFile }

func (t *ReadFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "read_file",
		Description: "Read the full contents of a file in the workspace.",
		Parameters: map[string]ParamDef{
			"filename": {
				Type:        ParamTypeString,
				Description: "Name of the file to read",
				Required:    true,
			},
		},
		Examples: []string{
			"read notes.txt",
			"show me the contents of report.md",
			"what's in config.yaml",
			"leggi il file appunti.txt",
			"mostra il contenuto di report.md",
		},
		Category: CategoryFile,
		Priority: 50,
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	filename, err := stringParam(params, "filename")
	if err != nil {
		return failure(err), nil
	}
	content, err := t.ops.ReadFile(filename)
	if err != nil {
		return failure(err), nil
	}
	return success(content, content), nil
}

// WriteFileTool writes or appends content to a file.
type WriteFileTool struct {
	ops *workspace.FileOps
}

// NewWriteFileTool creates the write_file tool.
func NewWriteFileTool(ops *workspace.FileOps) *WriteFileTool {
	return &WriteFileTool{ops: ops}
}

func (t *WriteFileTool) Name() string           { return "write_file" }
func (t *WriteFileTool) Category() ToolCategory { return CategoryFile }

func (t *WriteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "write_file",
		Description: "Write content to a file in the workspace. Mode 'overwrite' replaces the file, 'append' adds to the end.",
		Parameters: map[string]ParamDef{
			"filename": {
				Type:        ParamTypeString,
				Description: "Name of the file to write",
				Required:    true,
			},
			"content": {
				Type:        ParamTypeString,
				Description: "Content to write",
				Required:    true,
			},
			"mode": {
				Type:        ParamTypeString,
				Description: "Write mode",
				Required:    false,
				Default:     workspace.ModeOverwrite,
				Enum:        []any{workspace.ModeOverwrite, workspace.ModeAppend},
			},
		},
		Examples: []string{
			"write 'hello' to greeting.txt",
			"create a file called todo.md",
			"append a line to log.txt",
			"scrivi nel file appunti.txt",
			"crea un file chiamato todo.md",
		},
		Category:    CategoryFile,
		Priority:    50,
		SideEffects: true,
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	filename, err := stringParam(params, "filename")
	if err != nil {
		return failure(err), nil
	}
	content, ok := params["content"].(string)
	if !ok {
		return failure(fmt.Errorf("missing or invalid 'content' parameter")), nil
	}
	mode := workspace.ModeOverwrite
	if m, ok := params["mode"].(string); ok && m != "" {
		mode = m
	}
	msg, err := t.ops.WriteFile(filename, content, mode)
	if err != nil {
		return failure(err), nil
	}
	result := success(msg, msg)
	result.ModifiedFiles = []string{filename}
	return result, nil
}

// DeleteFileTool deletes a file from the workspace.
type DeleteFileTool struct {
	ops *workspace.FileOps
}

// NewDeleteFileTool creates the delete_file tool.
func NewDeleteFileTool(ops *workspace.FileOps) *DeleteFileTool {
	return &DeleteFileTool{ops: ops}
}

func (t *DeleteFileTool) Name() string           { return "delete_file" }
func (t *DeleteFileTool) Category() ToolCategory { return CategoryFile }

func (t *DeleteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "delete_file",
		Description: "Delete a file from the workspace. Directories cannot be deleted.",
		Parameters: map[string]ParamDef{
			"filename": {
				Type:        ParamTypeString,
				Description: "Name of the file to delete",
				Required:    true,
			},
		},
		Examples: []string{
			"delete old_notes.txt",
			"remove the file draft.md",
			"elimina il file vecchio.txt",
			"cancella bozza.md",
		},
		Category:    CategoryFile,
		Priority:    50,
		SideEffects: true,
	}
}

func (t *DeleteFileTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	filename, err := stringParam(params, "filename")
	if err != nil {
		return failure(err), nil
	}
	msg, err := t.ops.DeleteFile(filename)
	if err != nil {
		return failure(err), nil
	}
	result := success(msg, msg)
	result.ModifiedFiles = []string{filename}
	return result, nil
}

// =============================================================================
// Helpers
// =============================================================================

// stringParam extracts a required non-empty string parameter.
func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string, got %T", name, v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("parameter %q must not be empty", name)
	}
	return s, nil
}

func success(output any, text string) *Result {
	return &Result{
		Success:    true,
		Output:     output,
		OutputText: text,
	}
}

func failure(err error) *Result {
	return &Result{
		Success: false,
		Error:   err.Error(),
	}
}
