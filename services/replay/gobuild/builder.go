// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gobuild

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/modfile"

	"github.com/AleutianAI/AleutianReplay/services/replay/buildcache"
	"github.com/AleutianAI/AleutianReplay/services/replay/supervisor"
	"github.com/AleutianAI/AleutianReplay/services/replay/workspace"
)

// BuilderConfig configures the Builder.
type BuilderConfig struct {
	// GoBinary is the go command. Default: "go"
	GoBinary string

	// Flags are extra "go build" flags, e.g. -race.
	Flags []string

	// Package is the main package to build, relative to the root.
	// Default: "."
	Package string

	// WorkDir holds overlays and artifacts. Default: a directory under
	// os.TempDir().
	WorkDir string

	// Env is added to the go command's environment.
	Env []string

	// Cache remembers build results. Nil disables caching.
	Cache *buildcache.Cache

	// Logger. Nil means slog.Default().
	Logger *slog.Logger
}

// Builder compiles documents with the go command.
//
// Thread Safety: Safe for concurrent use; every build gets its own
// overlay directory.
type Builder struct {
	config BuilderConfig
	logger *slog.Logger
}

var _ supervisor.Builder = (*Builder)(nil)

// NewBuilder creates a Builder.
func NewBuilder(config BuilderConfig) *Builder {
	if config.GoBinary == "" {
		config.GoBinary = "go"
	}
	if config.Package == "" {
		config.Package = "."
	}
	if config.WorkDir == "" {
		config.WorkDir = filepath.Join(os.TempDir(), "aleutian-replay")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{config: config, logger: logger}
}

// Build compiles doc.
//
// Description:
//
//	Every document file is written to a private overlay directory and
//	handed to "go build -overlay", so the files under doc.Root() are only
//	read, never written. Go files that exist on disk but not in the
//	document are hidden from the build. The artifact is written under
//	WorkDir/artifacts/<digest>/ and named after the module.
//
// Inputs:
//
//	ctx - Cancellation kills the go command.
//	doc - Snapshot to build.
//
// Outputs:
//
//	supervisor.BuildResult - Success, artifact and diagnostics.
//	error - ErrNoModule, ErrBuildCrashed, or an I/O failure.
func (b *Builder) Build(ctx context.Context, doc *workspace.Document) (supervisor.BuildResult, error) {
	name, err := moduleName(doc)
	if err != nil {
		return supervisor.BuildResult{}, err
	}
	key := b.cacheKey(doc)
	if b.config.Cache != nil {
		entry, ok, err := b.config.Cache.Get(ctx, key)
		if err != nil {
			b.logger.Warn("Build cache read failed", slog.String("error", err.Error()))
		} else if ok {
			b.logger.Debug("Build cache hit", slog.String("root", doc.Root()), slog.Bool("success", entry.Success))
			return supervisor.BuildResult{
				Success:      entry.Success,
				ArtifactPath: entry.ArtifactPath,
				Diagnostics:  entry.Diagnostics,
			}, nil
		}
	}

	digest := doc.Digest()
	if len(digest) > 16 {
		digest = digest[:16]
	}
	artifactDir := filepath.Join(b.config.WorkDir, "artifacts", digest)
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return supervisor.BuildResult{}, fmt.Errorf("create artifact dir: %w", err)
	}
	artifact := filepath.Join(artifactDir, name)

	overlayDir, err := os.MkdirTemp(b.config.WorkDir, "overlay-")
	if err != nil {
		return supervisor.BuildResult{}, fmt.Errorf("create overlay dir: %w", err)
	}
	defer os.RemoveAll(overlayDir)

	overlay, err := writeOverlay(doc, overlayDir)
	if err != nil {
		return supervisor.BuildResult{}, err
	}

	args := []string{"build", "-overlay=" + overlay, "-o", artifact}
	args = append(args, b.config.Flags...)
	args = append(args, b.config.Package)

	cmd := exec.CommandContext(ctx, b.config.GoBinary, args...)
	cmd.Dir = doc.Root()
	cmd.Env = append(os.Environ(), b.config.Env...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return supervisor.BuildResult{}, ctxErr
	}
	b.logger.Debug("go build finished",
		slog.String("root", doc.Root()),
		slog.Duration("elapsed", time.Since(start)),
		slog.Bool("ok", runErr == nil),
	)

	var result supervisor.BuildResult
	switch {
	case runErr == nil:
		result = supervisor.BuildResult{Success: true, ArtifactPath: artifact, Diagnostics: ParseOutput(doc, output.String())}
	default:
		var exitErr *exec.ExitError
		diags := ParseOutput(doc, output.String())
		if !errors.As(runErr, &exitErr) || len(diags) == 0 {
			return supervisor.BuildResult{}, fmt.Errorf("%w: %v: %s", ErrBuildCrashed, runErr, strings.TrimSpace(output.String()))
		}
		result = supervisor.BuildResult{Diagnostics: diags}
	}

	if b.config.Cache != nil {
		err := b.config.Cache.Put(ctx, key, buildcache.Entry{
			Success:      result.Success,
			ArtifactPath: result.ArtifactPath,
			Diagnostics:  result.Diagnostics,
		})
		if err != nil {
			b.logger.Warn("Build cache write failed", slog.String("error", err.Error()))
		}
	}
	return result, nil
}

func (b *Builder) cacheKey(doc *workspace.Document) string {
	return strings.Join([]string{doc.Digest(), doc.Root(), b.config.Package, strings.Join(b.config.Flags, " ")}, "|")
}

// moduleName returns the last element of the module path in doc's go.mod.
func moduleName(doc *workspace.Document) (string, error) {
	text, ok := doc.Text("go.mod")
	if !ok {
		return "", ErrNoModule
	}
	f, err := modfile.Parse("go.mod", []byte(text), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoModule, err)
	}
	if f.Module == nil || f.Module.Mod.Path == "" {
		return "", fmt.Errorf("%w: missing module directive", ErrNoModule)
	}
	return path.Base(f.Module.Mod.Path), nil
}

// overlayFile is the JSON accepted by "go build -overlay".
type overlayFile struct {
	Replace map[string]string
}

// writeOverlay writes doc's Go files under dir and returns the overlay
// description. Go files on disk that are missing from doc map to "".
func writeOverlay(doc *workspace.Document, dir string) (string, error) {
	replace := make(map[string]string)
	for _, file := range doc.Files() {
		if !strings.HasSuffix(file, ".go") {
			continue
		}
		text, _ := doc.Text(file)
		dst := filepath.Join(dir, "src", filepath.FromSlash(file))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return "", fmt.Errorf("write overlay: %w", err)
		}
		if err := os.WriteFile(dst, []byte(text), 0o644); err != nil {
			return "", fmt.Errorf("write overlay: %w", err)
		}
		replace[doc.Abs(file)] = dst
	}

	ignore := workspace.DefaultLoadOptions().Ignore
	_ = filepath.WalkDir(doc.Root(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != doc.Root() && workspace.Ignored(p, ignore) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(p, ".go") {
			return nil
		}
		if rel, ok := doc.Rel(p); ok && !doc.Has(rel) {
			replace[p] = ""
		}
		return nil
	})

	b, err := json.Marshal(overlayFile{Replace: replace})
	if err != nil {
		return "", fmt.Errorf("encode overlay: %w", err)
	}
	overlay := filepath.Join(dir, "overlay.json")
	if err := os.WriteFile(overlay, b, 0o644); err != nil {
		return "", fmt.Errorf("write overlay: %w", err)
	}
	return overlay, nil
}
