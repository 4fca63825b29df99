// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace provides a sandboxed file system boundary for agent
// tool execution.
//
// A Workspace confines every operation to a single flat directory. Path
// resolution refuses directory separators, relative components, absolute
// paths, and symbolic links, so no tool can name a path outside the
// sandbox. FileOps layers size limits, a sliding-window rate limit, and
// per-file write serialization on top of the raw boundary.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// Workspace is a sandboxed root directory for file operations.
//
// Description:
//
//	All agent file access flows through SafeJoin, which validates that
//	the requested filename resolves to a regular path inside the root.
//	The workspace is flat: filenames must not contain separators, so
//	nested paths cannot be addressed at all.
//
// Thread Safety:
//
//	Workspace is immutable after construction and safe for concurrent use.
type Workspace struct {
	// root is the absolute, symlink-resolved sandbox directory.
	root string
}

// New creates a workspace rooted at the given directory.
//
// Description:
//
//	Resolves the directory to an absolute, symlink-free path, creates it
//	(including parents) if it does not exist, and verifies it is a
//	directory. Construction is idempotent; an existing directory is
//	reused as-is.
//
// Inputs:
//
//	root - The sandbox directory. Created with 0750 if absent.
//
// Outputs:
//
//	*Workspace - The ready workspace
//	error - *Error if the root cannot be created or is not a directory
func New(root string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, newError("init", root, nil, "workspace root cannot be empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, newError("init", root, err, "cannot resolve workspace root: %v", err)
	}

	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, newError("init", abs, err, "cannot create workspace root: %v", err)
	}

	// Resolve symlinks after creation so the containment check in
	// SafeJoin compares against the real path.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, newError("init", abs, err, "cannot resolve workspace root: %v", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, newError("init", resolved, err, "cannot access workspace root: %v", err)
	}
	if !info.IsDir() {
		return nil, newError("init", resolved, nil, "workspace root is not a directory")
	}

	return &Workspace{root: resolved}, nil
}

// Root returns the absolute path to the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// SafeJoin validates a filename and returns its absolute path inside
// the workspace.
//
// Description:
//
//	The filename must be a bare name: no directory separators, no "."
//	or "..", not absolute. The joined path is checked for containment
//	under the root, and both the path itself and every parent between
//	it and the root are refused if they are symbolic links. Hidden
//	files (leading dot) are addressable; they are only excluded from
//	listings.
//
// Inputs:
//
//	filename - The bare filename to resolve
//
// Outputs:
//
//	string - Absolute path inside the workspace
//	error - ErrInvalidFilename, *PathTraversalError, or *SymlinkError
//
// Thread Safety: This method is safe for concurrent use.
func (w *Workspace) SafeJoin(filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", ErrInvalidFilename
	}

	// A bare filename never contains a separator. This refuses both
	// nested paths and absolute paths in one check.
	if strings.ContainsAny(filename, `/\`) || strings.ContainsRune(filename, os.PathSeparator) {
		return "", ErrInvalidFilename
	}

	if filename == "." || filename == ".." || strings.HasPrefix(filename, "..") {
		return "", ErrInvalidFilename
	}

	candidate := filepath.Join(w.root, filename)

	// Containment check on the lexically cleaned path. With separators
	// refused above this cannot fail, but the invariant is cheap to
	// state explicitly and guards future changes to the checks above.
	rel, err := filepath.Rel(w.root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", &PathTraversalError{Path: candidate, Root: w.root}
	}

	// Refuse symlinks at the target itself. Lstat so the link is seen
	// rather than followed.
	if info, err := os.Lstat(candidate); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return "", &SymlinkError{Path: candidate}
		}
	}

	// Refuse symlinked parents between the candidate and the root.
	// The root itself was symlink-resolved at construction.
	for dir := filepath.Dir(candidate); dir != w.root && len(dir) > len(w.root); dir = filepath.Dir(dir) {
		if info, err := os.Lstat(dir); err == nil {
			if info.Mode()&os.ModeSymlink != 0 {
				return "", &SymlinkError{Path: dir}
			}
		}
	}

	return candidate, nil
}

// Exists reports whether a regular file with the given name exists in
// the workspace.
//
// Inputs:
//
//	filename - The bare filename to check
//
// Outputs:
//
//	bool - True if a regular file exists at the name. False for
//	       directories, missing files, and invalid names.
func (w *Workspace) Exists(filename string) bool {
	path, err := w.SafeJoin(filename)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// String returns a short description of the workspace.
func (w *Workspace) String() string {
	return "Workspace(root=" + w.root + ")"
}
