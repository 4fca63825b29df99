// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/filebuddy/pkg/logging"
)

// Write modes accepted by WriteFile.
const (
	// ModeOverwrite replaces the file's content.
	ModeOverwrite = "overwrite"

	// ModeAppend appends to the file's existing content.
	ModeAppend = "append"
)

// Default operation limits.
const (
	// DefaultMaxRead is the default maximum file read size (10 MiB).
	DefaultMaxRead = 10 * 1024 * 1024

	// DefaultMaxWrite is the default maximum write payload size (10 MiB).
	DefaultMaxWrite = 10 * 1024 * 1024

	// DefaultRateLimit is the default operations-per-second ceiling.
	DefaultRateLimit = 10.0
)

// Limits configures FileOps resource ceilings.
type Limits struct {
	// MaxRead is the maximum file size in bytes ReadFile will return.
	MaxRead int64

	// MaxWrite is the maximum payload size in bytes WriteFile accepts.
	MaxWrite int64

	// RateLimit is the per-instance operations-per-second ceiling,
	// measured over a one-second sliding window.
	RateLimit float64
}

// DefaultLimits returns the standard limits (10 MiB reads and writes,
// 10 operations per second).
func DefaultLimits() Limits {
	return Limits{
		MaxRead:   DefaultMaxRead,
		MaxWrite:  DefaultMaxWrite,
		RateLimit: DefaultRateLimit,
	}
}

// Validate checks that all limits are positive.
func (l Limits) Validate() error {
	if l.MaxRead <= 0 {
		return newError("config", "", nil, "max read must be positive, got %d", l.MaxRead)
	}
	if l.MaxWrite <= 0 {
		return newError("config", "", nil, "max write must be positive, got %d", l.MaxWrite)
	}
	if l.RateLimit <= 0 {
		return newError("config", "", nil, "rate limit must be positive, got %f", l.RateLimit)
	}
	return nil
}

// FileInfo describes a workspace entry.
type FileInfo struct {
	// Name is the bare entry name.
	Name string

	// Size is the entry size in bytes.
	Size int64

	// ModTime is the last modification time.
	ModTime time.Time

	// IsDir reports whether the entry is a directory.
	IsDir bool
}

// FileOps provides rate-limited, size-controlled file operations
// within a workspace.
//
// Description:
//
//	FileOps is the only layer tools use to touch the file system. It
//	enforces the workspace boundary (via SafeJoin), read/write size
//	limits, and a sliding-window rate limit across all operations.
//	Writes and deletes to the same filename are serialized with a
//	per-file mutex; concurrent writers never interleave within one
//	file, though last-writer-wins across whole operations.
//
// Thread Safety:
//
//	FileOps is safe for concurrent use. The rate limit window and the
//	per-file lock table are mutex-guarded.
type FileOps struct {
	ws     *Workspace
	limits Limits
	logger *logging.Logger

	// rateMu guards opTimes.
	rateMu  sync.Mutex
	opTimes []time.Time

	// now is the clock, replaceable in tests.
	now func() time.Time

	// lockMu guards fileLocks.
	lockMu    sync.Mutex
	fileLocks map[string]*sync.Mutex
}

// NewFileOps creates a FileOps layer over a workspace.
//
// Inputs:
//
//	ws - The sandbox boundary. Must not be nil.
//	limits - Resource ceilings. Use DefaultLimits() for defaults.
//	logger - Structured logger. Nil falls back to logging.Default().
//
// Outputs:
//
//	*FileOps - The operations layer
//	error - *Error if ws is nil or limits are invalid
func NewFileOps(ws *Workspace, limits Limits, logger *logging.Logger) (*FileOps, error) {
	if ws == nil {
		return nil, newError("config", "", nil, "workspace must not be nil")
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FileOps{
		ws:        ws,
		limits:    limits,
		logger:    logger.With("component", "fileops"),
		now:       time.Now,
		fileLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Workspace returns the underlying workspace.
func (f *FileOps) Workspace() *Workspace { return f.ws }

// Limits returns the configured limits.
func (f *FileOps) Limits() Limits { return f.limits }

// checkRate enforces the sliding-window rate limit.
//
// The window is one second. If admitting this operation would exceed
// the ceiling the operation is refused immediately; callers are never
// queued or delayed.
func (f *FileOps) checkRate() error {
	f.rateMu.Lock()
	defer f.rateMu.Unlock()

	now := f.now()
	cutoff := now.Add(-time.Second)

	kept := f.opTimes[:0]
	for _, t := range f.opTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	f.opTimes = kept

	if float64(len(f.opTimes)) >= f.limits.RateLimit {
		return &RateLimitError{Ops: len(f.opTimes), Limit: f.limits.RateLimit}
	}

	f.opTimes = append(f.opTimes, now)
	return nil
}

// fileLock returns the mutex serializing mutations to one resolved path.
func (f *FileOps) fileLock(path string) *sync.Mutex {
	f.lockMu.Lock()
	defer f.lockMu.Unlock()

	mu, ok := f.fileLocks[path]
	if !ok {
		mu = &sync.Mutex{}
		f.fileLocks[path] = mu
	}
	return mu
}

// ListFiles lists regular files in the workspace root, newest first.
//
// Description:
//
//	Returns file names only. Directories and hidden entries (leading
//	dot) are excluded. Sorted by modification time descending, so a
//	"newest file" consumer can take index zero.
//
// Outputs:
//
//	[]string - File names, newest first. Empty slice for an empty
//	           workspace, never nil.
//	error - *RateLimitError or *Error
func (f *FileOps) ListFiles() ([]string, error) {
	infos, err := f.listInfos()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir {
			names = append(names, info.Name)
		}
	}
	return names, nil
}

// ListDirectories lists directories in the workspace root, newest first.
//
// Hidden directories are excluded.
//
// Outputs:
//
//	[]string - Directory names, newest first
//	error - *RateLimitError or *Error
func (f *FileOps) ListDirectories() ([]string, error) {
	infos, err := f.listInfos()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir {
			names = append(names, info.Name)
		}
	}
	return names, nil
}

// ListAll lists files and directories in the workspace root, newest
// first, with directories suffixed by "/".
//
// Outputs:
//
//	[]string - Entry names, directories suffixed "/", newest first
//	error - *RateLimitError or *Error
func (f *FileOps) ListAll() ([]string, error) {
	infos, err := f.listInfos()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir {
			names = append(names, info.Name+"/")
		} else {
			names = append(names, info.Name)
		}
	}
	return names, nil
}

// ListInfo lists workspace entries with metadata, newest first.
//
// Outputs:
//
//	[]FileInfo - Entry metadata, newest first, hidden entries excluded
//	error - *RateLimitError or *Error
func (f *FileOps) ListInfo() ([]FileInfo, error) {
	return f.listInfos()
}

// listInfos reads the root directory once, filters hidden entries, and
// sorts by modification time descending.
func (f *FileOps) listInfos() ([]FileInfo, error) {
	if err := f.checkRate(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(f.ws.Root())
	if err != nil {
		return nil, newError("list", f.ws.Root(), err, "failed to list workspace: %v", err)
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			// Entries deleted between ReadDir and Info are skipped.
			continue
		}
		if !fi.IsDir() && !fi.Mode().IsRegular() {
			continue
		}
		infos = append(infos, FileInfo{
			Name:    entry.Name(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
			IsDir:   fi.IsDir(),
		})
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].ModTime.After(infos[j].ModTime)
	})
	return infos, nil
}

// ListFilesRecursive lists files in all subdirectories, newest first.
//
// Description:
//
//	Returns workspace-relative paths. Hidden files and directories are
//	skipped at every level.
//
// Outputs:
//
//	[]string - Relative file paths, newest first
//	error - *RateLimitError or *Error
func (f *FileOps) ListFilesRecursive() ([]string, error) {
	if err := f.checkRate(); err != nil {
		return nil, err
	}

	type entry struct {
		rel   string
		mtime time.Time
	}
	var found []entry

	root := f.ws.Root()
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable subtrees
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		found = append(found, entry{rel: rel, mtime: fi.ModTime()})
		return nil
	})
	if err != nil {
		return nil, newError("list", root, err, "failed to walk workspace: %v", err)
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].mtime.After(found[j].mtime)
	})
	names := make([]string, len(found))
	for i, e := range found {
		names[i] = e.rel
	}
	return names, nil
}

// FindFileByName searches all subdirectories for an exact filename.
//
// Inputs:
//
//	filename - Exact name to match (not a pattern)
//
// Outputs:
//
//	string - Workspace-relative path of the first match, "" if absent
//	bool - True if a match was found
//	error - *RateLimitError or *Error
func (f *FileOps) FindFileByName(filename string) (string, bool, error) {
	if err := f.checkRate(); err != nil {
		return "", false, err
	}
	if strings.TrimSpace(filename) == "" {
		return "", false, ErrInvalidFilename
	}

	root := f.ws.Root()
	var match string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && d.Name() == filename {
			if rel, rerr := filepath.Rel(root, path); rerr == nil {
				match = rel
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return "", false, newError("find", root, err, "failed to search workspace: %v", err)
	}
	return match, match != "", nil
}

// Tree renders the workspace structure as an indented tree.
//
// Description:
//
//	Produces output similar to the Unix tree command, rooted at the
//	workspace directory name, with hidden entries excluded. Entries
//	are sorted alphabetically at each level for stable output.
//
// Outputs:
//
//	string - The rendered tree
//	error - *RateLimitError or *Error
func (f *FileOps) Tree() (string, error) {
	if err := f.checkRate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(filepath.Base(f.ws.Root()))
	b.WriteString("/\n")
	if err := f.renderTree(&b, f.ws.Root(), ""); err != nil {
		return "", newError("tree", f.ws.Root(), err, "failed to render tree: %v", err)
	}
	return b.String(), nil
}

// renderTree appends one directory level to the builder.
func (f *FileOps) renderTree(b *strings.Builder, dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	visible := entries[:0]
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			visible = append(visible, e)
		}
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].Name() < visible[j].Name() })

	for i, e := range visible {
		connector := "├── "
		childPrefix := prefix + "│   "
		if i == len(visible)-1 {
			connector = "└── "
			childPrefix = prefix + "    "
		}
		b.WriteString(prefix)
		b.WriteString(connector)
		b.WriteString(e.Name())
		if e.IsDir() {
			b.WriteString("/")
		}
		b.WriteString("\n")
		if e.IsDir() {
			if err := f.renderTree(b, filepath.Join(dir, e.Name()), childPrefix); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadFile reads an entire file from the workspace.
//
// Description:
//
//	The file size is checked against MaxRead before any bytes are
//	read; an oversized file fails with *SizeLimitError rather than
//	returning truncated content. Content is returned as-is; invalid
//	UTF-8 sequences are replaced so the result is always a valid
//	string.
//
// Inputs:
//
//	filename - The bare filename to read
//
// Outputs:
//
//	string - The file content
//	error - *RateLimitError, *NotFoundError, *SizeLimitError, or *Error
func (f *FileOps) ReadFile(filename string) (string, error) {
	if err := f.checkRate(); err != nil {
		return "", err
	}

	path, err := f.ws.SafeJoin(filename)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &NotFoundError{Path: filename}
		}
		return "", newError("read", filename, err, "cannot access file: %v", err)
	}
	if info.IsDir() {
		return "", newError("read", filename, nil, "path is not a file: %s", filename)
	}
	if info.Size() > f.limits.MaxRead {
		return "", &SizeLimitError{
			Operation: "read",
			Size:      info.Size(),
			Limit:     f.limits.MaxRead,
			Path:      filename,
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", newError("read", filename, err, "cannot read file: %v", err)
	}

	f.logger.Debug("file read", "filename", filename, "bytes", len(data))
	return sanitizeUTF8(data), nil
}

// ReadFileTruncated reads at most budget bytes from a file.
//
// Description:
//
//	Unlike ReadFile, a file larger than the budget is not an error:
//	the content is cut at the budget (respecting rune boundaries) and
//	a truncation marker is appended. Used by analysis tools that scan
//	many files under a shared context budget.
//
// Inputs:
//
//	filename - The bare filename to read
//	budget - Maximum bytes to return. Non-positive means MaxRead.
//
// Outputs:
//
//	string - The (possibly truncated) content
//	bool - True if the content was truncated
//	error - *RateLimitError, *NotFoundError, or *Error
func (f *FileOps) ReadFileTruncated(filename string, budget int) (string, bool, error) {
	if budget <= 0 || int64(budget) > f.limits.MaxRead {
		budget = int(f.limits.MaxRead)
	}

	if err := f.checkRate(); err != nil {
		return "", false, err
	}

	path, err := f.ws.SafeJoin(filename)
	if err != nil {
		return "", false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, &NotFoundError{Path: filename}
		}
		return "", false, newError("read", filename, err, "cannot access file: %v", err)
	}
	if info.IsDir() {
		return "", false, newError("read", filename, nil, "path is not a file: %s", filename)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, newError("read", filename, err, "cannot read file: %v", err)
	}

	if len(data) <= budget {
		return sanitizeUTF8(data), false, nil
	}

	cut := budget
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	content := sanitizeUTF8(data[:cut]) + "\n... [content truncated]"
	return content, true, nil
}

// WriteFile writes content to a file in the workspace.
//
// Description:
//
//	Mode must be ModeOverwrite or ModeAppend; any other value fails
//	with *InvalidModeError before the payload is inspected. The
//	payload size is checked against MaxWrite. Writes to the same
//	filename are serialized; an interrupted agent run leaves either
//	the old or the new content, never an interleaving.
//
// Inputs:
//
//	filename - The bare filename to write
//	content - The payload
//	mode - ModeOverwrite or ModeAppend
//
// Outputs:
//
//	string - A confirmation message
//	error - *RateLimitError, *InvalidModeError, *SizeLimitError, or *Error
func (f *FileOps) WriteFile(filename, content, mode string) (string, error) {
	if err := f.checkRate(); err != nil {
		return "", err
	}

	if mode != ModeOverwrite && mode != ModeAppend {
		return "", &InvalidModeError{Mode: mode, ValidModes: []string{ModeOverwrite, ModeAppend}}
	}

	if int64(len(content)) > f.limits.MaxWrite {
		return "", &SizeLimitError{
			Operation: "write",
			Size:      int64(len(content)),
			Limit:     f.limits.MaxWrite,
			Path:      filename,
		}
	}

	path, err := f.ws.SafeJoin(filename)
	if err != nil {
		return "", err
	}

	mu := f.fileLock(path)
	mu.Lock()
	defer mu.Unlock()

	flags := os.O_CREATE | os.O_WRONLY
	action := "written"
	if mode == ModeAppend {
		flags |= os.O_APPEND
		action = "appended"
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0640)
	if err != nil {
		return "", newError("write", filename, err, "cannot open file for writing: %v", err)
	}
	defer file.Close()

	if _, err := file.WriteString(content); err != nil {
		return "", newError("write", filename, err, "cannot write file: %v", err)
	}

	f.logger.Debug("file written", "filename", filename, "bytes", len(content), "mode", mode)
	return fmt.Sprintf("Content %s to %s", action, filename), nil
}

// DeleteFile removes a file from the workspace.
//
// Description:
//
//	A missing file fails with *NotFoundError; deleting the same file
//	twice fails the second time with the same error, never a panic.
//	Deletes share the per-file lock with writes.
//
// Inputs:
//
//	filename - The bare filename to delete
//
// Outputs:
//
//	string - A confirmation message
//	error - *RateLimitError, *NotFoundError, or *Error
func (f *FileOps) DeleteFile(filename string) (string, error) {
	if err := f.checkRate(); err != nil {
		return "", err
	}

	path, err := f.ws.SafeJoin(filename)
	if err != nil {
		return "", err
	}

	mu := f.fileLock(path)
	mu.Lock()
	defer mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &NotFoundError{Path: filename}
		}
		return "", newError("delete", filename, err, "cannot access file: %v", err)
	}
	if info.IsDir() {
		return "", newError("delete", filename, nil, "path is not a file: %s", filename)
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return "", &NotFoundError{Path: filename}
		}
		return "", newError("delete", filename, err, "cannot delete file: %v", err)
	}

	f.logger.Info("file deleted", "filename", filename)
	return fmt.Sprintf("File deleted: %s", filename), nil
}

// Stat returns metadata for a single workspace file.
//
// Inputs:
//
//	filename - The bare filename to inspect
//
// Outputs:
//
//	FileInfo - Size, modification time, and kind
//	error - *RateLimitError, *NotFoundError, or *Error
func (f *FileOps) Stat(filename string) (FileInfo, error) {
	if err := f.checkRate(); err != nil {
		return FileInfo{}, err
	}

	path, err := f.ws.SafeJoin(filename)
	if err != nil {
		return FileInfo{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, &NotFoundError{Path: filename}
		}
		return FileInfo{}, newError("stat", filename, err, "cannot access file: %v", err)
	}

	return FileInfo{
		Name:    filename,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}, nil
}

// sanitizeUTF8 replaces invalid byte sequences so the result is a
// valid UTF-8 string. Mirrors a lenient text decode for binary-ish
// files rather than failing the read.
func sanitizeUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}
