// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace models the project being edited as immutable document
// snapshots, and translates text changes into line edits.
package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Document is an immutable snapshot of a project's source files.
//
// # Description
//
// File names are slash-separated and relative to Root. Every mutating
// method returns a new Document and leaves the receiver untouched, so a
// snapshot handed to a build can never change underneath it.
//
// # Thread Safety
//
// Safe for concurrent use.
type Document struct {
	root    string
	files   map[string]string
	version int64
}

// NewDocument creates a snapshot from in-memory files.
func NewDocument(root string, files map[string]string) *Document {
	cp := make(map[string]string, len(files))
	for name, text := range files {
		cp[path.Clean(filepath.ToSlash(name))] = text
	}
	return &Document{root: root, files: cp, version: 1}
}

// LoadOptions controls which files Load reads.
type LoadOptions struct {
	// Ignore holds base names or glob patterns of files and directories to skip.
	Ignore []string

	// MaxFileBytes skips larger files. Zero means no limit.
	MaxFileBytes int64
}

// DefaultLoadOptions returns the defaults used by the CLI.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Ignore:       []string{".git", "vendor", "node_modules", ".idea", "testdata"},
		MaxFileBytes: 4 << 20,
	}
}

// Load reads the Go sources and module files under root.
//
// # Inputs
//
//   - ctx: Cancels the walk.
//   - root: Project directory.
//   - opts: Which files to skip.
//
// # Outputs
//
//   - *Document: The snapshot, with Root set to the absolute root.
//   - error: ErrNotDirectory, or a wrapped read error.
func Load(ctx context.Context, root string, opts LoadOptions) (*Document, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}

	files := make(map[string]string)
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p != abs && Ignored(p, opts.Ignore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsSource(p) {
			return nil
		}
		if opts.MaxFileBytes > 0 {
			if fi, err := d.Info(); err == nil && fi.Size() > opts.MaxFileBytes {
				return nil
			}
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Document{root: abs, files: files, version: 1}, nil
}

// IsSource reports whether p is a file the document tracks.
func IsSource(p string) bool {
	base := filepath.Base(p)
	return strings.HasSuffix(base, ".go") || base == "go.mod" || base == "go.sum"
}

// Ignored reports whether any element of p matches one of the patterns.
func Ignored(p string, patterns []string) bool {
	base := filepath.Base(p)
	for _, pattern := range patterns {
		if base == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if strings.Contains(filepath.ToSlash(p), "/"+pattern+"/") {
			return true
		}
	}
	return false
}

// Root returns the project directory.
func (d *Document) Root() string { return d.root }

// Version increases by one with every derived snapshot.
func (d *Document) Version() int64 { return d.version }

// Files returns the file names, sorted.
func (d *Document) Files() []string {
	names := make([]string, 0, len(d.files))
	for n := range d.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Text returns the content of file.
func (d *Document) Text(file string) (string, bool) {
	t, ok := d.files[file]
	return t, ok
}

// Has reports whether file is part of the document.
func (d *Document) Has(file string) bool {
	_, ok := d.files[file]
	return ok
}

// Abs returns the absolute path of file.
func (d *Document) Abs(file string) string {
	return filepath.Join(d.root, filepath.FromSlash(file))
}

// Rel converts an absolute path under Root into a document file name.
func (d *Document) Rel(abs string) (string, bool) {
	rel, err := filepath.Rel(d.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// WithText returns a snapshot where file holds text. The file is added if
// it did not exist.
func (d *Document) WithText(file, text string) *Document {
	next := d.clone()
	next.files[file] = text
	return next
}

// Without returns a snapshot without file.
func (d *Document) Without(file string) *Document {
	next := d.clone()
	delete(next.files, file)
	return next
}

// WithRoot returns a snapshot rooted elsewhere with the same files.
func (d *Document) WithRoot(root string) *Document {
	next := d.clone()
	next.root = root
	return next
}

// Digest is a content hash over every file name and text.
func (d *Document) Digest() string {
	h := sha256.New()
	for _, name := range d.Files() {
		fmt.Fprintf(h, "%d:%s\x00%d:", len(name), name, len(d.files[name]))
		h.Write([]byte(d.files[name]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Document) clone() *Document {
	files := make(map[string]string, len(d.files))
	for k, v := range d.files {
		files[k] = v
	}
	return &Document{root: d.root, files: files, version: d.version + 1}
}
