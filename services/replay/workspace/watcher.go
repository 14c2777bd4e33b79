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
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler receives the new snapshot and the line edits that produced
// it. It is called from a single goroutine.
type ChangeHandler func(ctx context.Context, doc *Document, edits []LineEdit)

// WatcherOptions configures the Watcher.
type WatcherOptions struct {
	// Debounce is how long to wait for more changes before emitting.
	// Default: 150ms
	Debounce time.Duration

	// Ignore are base names or glob patterns to skip.
	Ignore []string

	// BufferSize is the size of the raw event channel.
	// Default: 256
	BufferSize int

	// Logger receives watch errors. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultWatcherOptions returns sensible defaults.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		Debounce:   150 * time.Millisecond,
		Ignore:     DefaultLoadOptions().Ignore,
		BufferSize: 256,
	}
}

// Watcher turns saved files into document snapshots and line edits.
//
// # Description
//
// Watches the document's root recursively. Raw fsnotify events are
// batched over a debounce window; each batch re-reads the touched source
// files, diffs them against the current snapshot with LineDiff and hands
// the resulting snapshot and edits to the handler.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is called from a single goroutine.
type Watcher struct {
	watcher  *fsnotify.Watcher
	handler  ChangeHandler
	debounce time.Duration
	ignore   []string
	logger   *slog.Logger

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	doc *Document
}

// NewWatcher creates a watcher seeded with doc. Call Run to start it.
func NewWatcher(doc *Document, handler ChangeHandler, opts *WatcherOptions) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 150 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		handler:  handler,
		debounce: opts.Debounce,
		ignore:   opts.Ignore,
		logger:   logger,
		changes:  make(chan string, opts.BufferSize),
		done:     make(chan struct{}),
		doc:      doc,
	}, nil
}

// Document returns the current snapshot.
func (w *Watcher) Document() *Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc
}

// Run watches until ctx is done or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addRecursive(w.Document().Root()); err != nil {
		return err
	}
	go w.processEvents(ctx)
	w.debounceLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && Ignored(path, w.ignore) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if Ignored(event.Name, w.ignore) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("Watch new directory failed", slog.String("path", event.Name), slog.String("error", err.Error()))
					}
					continue
				}
			}
			if !IsSource(event.Name) {
				continue
			}
			select {
			case w.changes <- event.Name:
			default:
				w.logger.Warn("Watch buffer full, dropping event", slog.String("path", event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(pending) > 0 {
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			w.apply(ctx, paths)
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case path := <-w.changes:
			pending[path] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// apply re-reads paths and emits the snapshot if anything changed.
func (w *Watcher) apply(ctx context.Context, paths []string) {
	w.mu.Lock()
	doc := w.doc
	var edits []LineEdit
	for _, p := range paths {
		file, ok := doc.Rel(p)
		if !ok {
			continue
		}
		before, existed := doc.Text(file)
		b, err := os.ReadFile(p)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if !existed {
				continue
			}
			doc = doc.Without(file)
			edits = append(edits, LineEdit{File: file, OldCount: CountLines(before)})
		case err != nil:
			w.logger.Warn("Read changed file failed", slog.String("path", p), slog.String("error", err.Error()))
		default:
			after := string(b)
			if existed && after == before {
				continue
			}
			if edit, changed := LineDiff(file, before, after); changed {
				edits = append(edits, edit)
			}
			doc = doc.WithText(file, after)
		}
	}
	w.doc = doc
	w.mu.Unlock()

	if len(edits) == 0 || w.handler == nil {
		return
	}
	w.logger.Debug("Files changed", slog.Int("edits", len(edits)), slog.Int64("version", doc.Version()))
	w.handler(ctx, doc, edits)
}
