// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workspace

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Sentinel errors for workspace operations.
//
// These allow callers to check error categories with errors.Is
// without inspecting the concrete violation types.
var (
	// ErrInvalidFilename indicates a filename that is empty or
	// contains directory separators or relative path components.
	ErrInvalidFilename = errors.New("invalid filename")

	// ErrNotFound indicates the named file does not exist.
	// Wraps os.ErrNotExist so errors.Is(err, os.ErrNotExist) also holds.
	ErrNotFound = fmt.Errorf("file not found: %w", os.ErrNotExist)
)

// Error is the base type for workspace violations.
//
// All typed workspace errors embed path context so callers can
// report which path triggered the failure without string parsing.
type Error struct {
	// Op is the operation that failed ("read", "write", "list", ...).
	Op string

	// Path is the offending path, if known.
	Path string

	// Err is the underlying cause, if any.
	Err error

	// msg is the human-readable description.
	msg string
}

// Error returns the formatted message with path context if available.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s (path: %s)", e.msg, e.Path)
	}
	return e.msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// newError builds a workspace Error with a formatted message.
func newError(op, path string, err error, format string, args ...any) *Error {
	return &Error{Op: op, Path: path, Err: err, msg: fmt.Sprintf(format, args...)}
}

// PathTraversalError indicates a path that would escape the
// workspace sandbox. The operation is always refused; the resolved
// path is never returned to the caller.
type PathTraversalError struct {
	// Path is the attempted (resolved) path.
	Path string

	// Root is the workspace root the path escaped.
	Root string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("path traversal attempt blocked: %q outside workspace %q", e.Path, e.Root)
}

// SymlinkError indicates the path, or one of its parents inside the
// workspace, is a symbolic link. Symlinks are categorically refused
// because they can point outside the sandbox.
type SymlinkError struct {
	// Path is the symlinked path that was refused.
	Path string
}

func (e *SymlinkError) Error() string {
	return fmt.Sprintf("symbolic link access denied: %q", e.Path)
}

// SizeLimitError indicates a read or write whose size exceeds the
// configured limit. Oversized reads fail outright; content is never
// silently truncated.
type SizeLimitError struct {
	// Operation is "read" or "write".
	Operation string

	// Size is the observed size in bytes.
	Size int64

	// Limit is the configured maximum in bytes.
	Limit int64

	// Path is the file involved, if known.
	Path string
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("%s size %d bytes exceeds limit of %d bytes (path: %s)",
		e.Operation, e.Size, e.Limit, e.Path)
}

// InvalidModeError indicates an unrecognized write mode.
type InvalidModeError struct {
	// Mode is the rejected mode string.
	Mode string

	// ValidModes lists the accepted modes.
	ValidModes []string
}

func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("invalid mode %q, valid modes are: %s",
		e.Mode, strings.Join(e.ValidModes, ", "))
}

// RateLimitError indicates the sliding-window operation rate limit
// was exceeded. The operation was refused immediately, not queued.
type RateLimitError struct {
	// Ops is the number of operations observed in the window.
	Ops int

	// Limit is the configured operations-per-second ceiling.
	Limit float64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d ops/sec > %.2f ops/sec limit", e.Ops, e.Limit)
}

// NotFoundError indicates the named file does not exist in the
// workspace. It matches both ErrNotFound and os.ErrNotExist.
type NotFoundError struct {
	// Path is the missing file's name.
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file not found: %s", e.Path)
}

// Is reports whether target matches this error's category.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == os.ErrNotExist
}
