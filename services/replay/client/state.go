// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package client

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianReplay/services/replay/adornments"
	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
	"github.com/AleutianAI/AleutianReplay/services/replay/protocol"
)

// lineItem is the content recorded for one source line.
type lineItem struct {
	file    string
	line    int
	content string
	hash    int32
}

func newLineItem(file string, line int, content string) lineItem {
	content = protocol.SanitizeContent(content)
	return lineItem{file: file, line: line, content: content, hash: adornments.StableHash(content)}
}

// state is everything the client remembers. It is owned by the Run loop.
//
// db holds what the program produced. sent holds, per file, the hash the
// host is believed to hold for each line; only differences are sent.
//
// Once ended is set the run is complete, so any later WATCH is answered with
// the full reconciliation: advertised lines the run never produced are
// removed.
type state struct {
	db     map[string]map[int]lineItem
	window *datatypes.WatchWindow
	sent   map[string]map[int]int32
	ended  bool
}

func newState() *state {
	return &state{
		db:   make(map[string]map[int]lineItem),
		sent: make(map[string]map[int]int32),
	}
}

func (s *state) watching(file string, line int) bool {
	return s.window != nil && s.window.Contains(file, line)
}

func (s *state) sentFor(file string) map[int]int32 {
	m := s.sent[file]
	if m == nil {
		m = make(map[int]int32)
		s.sent[file] = m
	}
	return m
}

// record stores li, folding it into earlier content on the same line, and
// returns the REPLAY line to send, if any.
func (s *state) record(li lineItem) (string, bool) {
	lines := s.db[li.file]
	if lines == nil {
		lines = make(map[int]lineItem)
		s.db[li.file] = lines
	}
	content := adornments.TrimConsoleNewline(li.content)
	if old, ok := lines[li.line]; ok {
		content = adornments.Fold(old.content, li.content)
	}
	li = newLineItem(li.file, li.line, content)
	lines[li.line] = li

	if !s.watching(li.file, li.line) {
		return "", false
	}
	sent := s.sentFor(li.file)
	if h, ok := sent[li.line]; ok && h == li.hash {
		return "", false
	}
	sent[li.line] = li.hash
	return protocol.EncodeReplayAdd(li.file, li.line, li.hash, li.content), true
}

// watch adopts cmd's window and the host's advertised hashes, and returns
// the REPLAY lines the host is missing followed by END watch. After the run
// has ended it also removes advertised lines the run never produced.
func (s *state) watch(cmd protocol.WatchCommand) []string {
	w := cmd.Window
	s.window = &w

	// The advertisement is the host's whole belief inside the window.
	for file, lines := range s.sent {
		for line := range lines {
			if w.Contains(file, line) {
				delete(lines, line)
			}
		}
	}
	for file, known := range cmd.Known {
		sent := s.sentFor(file)
		for line, h := range known {
			sent[line] = h
		}
	}

	var out []string
	for _, file := range sortedKeys(s.db) {
		if !w.CoversFile(file) {
			continue
		}
		lines := s.db[file]
		sent := s.sentFor(file)
		for _, line := range sortedLines(lines) {
			li := lines[line]
			if !w.Contains(file, line) {
				continue
			}
			if h, ok := sent[line]; ok && h == li.hash {
				continue
			}
			sent[line] = li.hash
			out = append(out, protocol.EncodeReplayAdd(file, line, li.hash, li.content))
		}
	}
	if s.ended {
		out = append(out, s.removeUnproduced(w)...)
	}
	if cmd.Correlation != "" {
		out = append(out, protocol.EncodeEndWatch(cmd.Correlation))
	}
	return out
}

// removeUnproduced forgets, and returns removals for, every line inside w
// the host is believed to hold but the program never reported.
func (s *state) removeUnproduced(w datatypes.WatchWindow) []string {
	var out []string
	for _, file := range sortedKeys(s.sent) {
		if !w.CoversFile(file) {
			continue
		}
		sent := s.sent[file]
		lines := s.db[file]
		for _, line := range sortedLines(sent) {
			if _, ok := lines[line]; ok || !w.Contains(file, line) {
				continue
			}
			out = append(out, protocol.EncodeReplayRemove(file, line, sent[line]))
			delete(sent, line)
		}
	}
	return out
}

// endRun reconciles the host's belief with what this run produced. Lines
// the host holds that never executed are removed.
func (s *state) endRun() []string {
	s.ended = true
	var out []string
	if s.window != nil {
		files := make(map[string]struct{})
		for f := range s.db {
			files[f] = struct{}{}
		}
		for f := range s.sent {
			files[f] = struct{}{}
		}
		for _, file := range sortedKeys(files) {
			if !s.window.CoversFile(file) {
				continue
			}
			lines := s.db[file]
			sent := s.sentFor(file)
			for _, line := range sortedLines(sent) {
				if !s.window.Contains(file, line) {
					continue
				}
				li, ok := lines[line]
				switch {
				case !ok:
					out = append(out, protocol.EncodeReplayRemove(file, line, sent[line]))
					delete(sent, line)
				case li.hash != sent[line]:
					out = append(out, protocol.EncodeError(fmt.Sprintf(
						"Upon exit, expected '%s:(%d)' to have hash %d but watcher has hash %d", file, line, li.hash, sent[line])))
				}
			}
			for _, line := range sortedLines(lines) {
				if _, ok := sent[line]; !ok && s.window.Contains(file, line) {
					out = append(out, protocol.EncodeError(fmt.Sprintf(
						"Upon exit, expected '%s:(%d)' to have adornment, but watcher has nothing", file, line)))
				}
			}
		}
	}
	return append(out, protocol.EncodeEndRun())
}

func (s *state) files() []string {
	out := make([]string, 0, len(s.db))
	for _, f := range sortedKeys(s.db) {
		out = append(out, protocol.EncodeFile(f))
	}
	return out
}

func (s *state) dump() []string {
	var out []string
	for _, file := range sortedKeys(s.db) {
		lines := s.db[file]
		for _, line := range sortedLines(lines) {
			out = append(out, protocol.EncodeDumpEntry(file, line, lines[line].content))
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedLines[V any](m map[int]V) []int {
	lines := make([]int, 0, len(m))
	for l := range m {
		lines = append(lines, l)
	}
	sort.Ints(lines)
	return lines
}
