// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package buildcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
)

func TestCache_MissThenHit(t *testing.T) {
	c, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	artifact := filepath.Join(t.TempDir(), "app")
	require.NoError(t, os.WriteFile(artifact, []byte("bin"), 0o755))

	diags := []datatypes.Diagnostic{{Severity: datatypes.SeverityWarning, File: "a.go", Line: 3, Column: 1, Message: "unused"}}
	require.NoError(t, c.Put(ctx, "abc", Entry{Success: true, ArtifactPath: artifact, Diagnostics: diags}))

	got, ok, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Success)
	assert.Equal(t, artifact, got.ArtifactPath)
	assert.Equal(t, diags, got.Diagnostics)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCache_MissingArtifactIsMiss(t *testing.T) {
	c, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", Entry{Success: true, ArtifactPath: filepath.Join(t.TempDir(), "gone")}))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_FailedBuildNeedsNoArtifact(t *testing.T) {
	c, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	diags := []datatypes.Diagnostic{{Severity: datatypes.SeverityError, File: "a.go", Message: "undefined: x"}}
	require.NoError(t, c.Put(ctx, "k", Entry{Success: false, Diagnostics: diags}))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Success)
	assert.Len(t, got.Diagnostics, 1)

	require.NoError(t, c.Delete("k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Persists(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = 0

	c, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Put(context.Background(), "k", Entry{Success: false}))
	require.NoError(t, c.Close())

	c, err = Open(cfg)
	require.NoError(t, err)
	defer c.Close()
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
