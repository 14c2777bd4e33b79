// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianReplay/services/replay/datatypes"
)

// DefaultValueWidth is how many runes of an adornment are shown.
const DefaultValueWidth = 80

// ConsoleSink shows adornments and diagnostics on a terminal.
//
// # Description
//
// Each change is printed as it arrives, as "+ file:line  value" or
// "- file:line" in the full and minimal modes, or as the editor wire lines
// (ADORNMENT, DIAGNOSTIC, ERROR) in machine mode. The sink also keeps the
// current set so Render can print a snapshot grouped by file.
//
// Lines are shown 1-based.
//
// # Thread Safety
//
// Safe for concurrent use.
type ConsoleSink struct {
	mu          sync.Mutex
	printer     *Printer
	width       int
	adornments  map[int64]datatypes.Adornment
	diagnostics map[int64]datatypes.Diagnostic
}

// NewConsoleSink returns a sink writing to w in mode.
func NewConsoleSink(w io.Writer, mode Mode) *ConsoleSink {
	return &ConsoleSink{
		printer:     NewPrinter(w, mode),
		width:       DefaultValueWidth,
		adornments:  make(map[int64]datatypes.Adornment),
		diagnostics: make(map[int64]datatypes.Diagnostic),
	}
}

// SetValueWidth changes how many runes of each value are printed.
func (c *ConsoleSink) SetValueWidth(width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = width
}

// OnAdornmentChanged prints and records one adornment change.
func (c *ConsoleSink) OnAdornmentChanged(_ context.Context, isAdd bool, tag int64, file string, line int, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !isAdd {
		old, known := c.adornments[tag]
		delete(c.adornments, tag)
		if c.printer.mode == ModeMachine {
			c.printer.line(strings.Join([]string{"ADORNMENT", "remove", strconv.FormatInt(tag, 10), file}, "\t"))
			return nil
		}
		location := file
		if known {
			location = fmt.Sprintf("%s:%d", old.File, old.Line+1)
		}
		c.printer.line(c.icon(IconRemove) + " " + c.printer.style(Styles.Location, location))
		return nil
	}

	c.adornments[tag] = datatypes.Adornment{File: file, Line: line, Content: content, Tag: tag}
	if c.printer.mode == ModeMachine {
		c.printer.line(strings.Join([]string{
			"ADORNMENT", "add", strconv.FormatInt(tag, 10), file, strconv.Itoa(line + 1), Flatten(content),
		}, "\t"))
		return nil
	}
	c.printer.line(fmt.Sprintf("%s %s  %s",
		c.icon(IconAdd),
		c.printer.style(Styles.Location, fmt.Sprintf("%s:%d", file, line+1)),
		c.printer.style(Styles.Value, Truncate(Flatten(content), c.width)),
	))
	return nil
}

// OnDiagnosticChanged prints and records one diagnostic change.
func (c *ConsoleSink) OnDiagnosticChanged(_ context.Context, isAdd bool, d datatypes.Diagnostic) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !isAdd {
		old, known := c.diagnostics[d.Tag]
		delete(c.diagnostics, d.Tag)
		if c.printer.mode == ModeMachine {
			c.printer.line("DIAGNOSTIC\tremove\t" + strconv.FormatInt(d.Tag, 10))
			return nil
		}
		if known && old.Severity > datatypes.SeverityHidden {
			c.printer.line(c.icon(IconSuccess) + " " + c.printer.style(Styles.Muted, "resolved "+diagnosticLocation(old)))
		}
		return nil
	}

	c.diagnostics[d.Tag] = d
	if c.printer.mode == ModeMachine {
		c.printer.line(strings.Join([]string{
			"DIAGNOSTIC", "add", strconv.FormatInt(d.Tag, 10), d.File, d.Severity.String(),
			strconv.Itoa(d.Line), strconv.Itoa(d.Column), strconv.Itoa(d.Length), Flatten(d.FullMessage()),
		}, "\t"))
		return nil
	}
	if d.Severity == datatypes.SeverityHidden {
		return nil
	}
	icon, style := IconWarning, Styles.Warning
	if d.Severity == datatypes.SeverityError {
		icon, style = IconError, Styles.Error
	} else if d.Severity == datatypes.SeverityInfo {
		icon, style = IconArrow, Styles.Muted
	}
	c.printer.line(fmt.Sprintf("%s %s %s",
		c.icon(icon),
		c.printer.style(Styles.Location, diagnosticLocation(d)),
		c.printer.style(style, d.FullMessage()),
	))
	return nil
}

// OnError prints a one-shot error.
func (c *ConsoleSink) OnError(_ context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.printer.mode == ModeMachine:
		c.printer.line("ERROR\t" + Flatten(message))
	case strings.Contains(message, "\n"):
		c.printer.ErrorBox("Error", strings.TrimRight(message, "\n"))
	default:
		c.printer.Error(message)
	}
	return nil
}

// Adornments returns the current adornments ordered by file and line.
func (c *ConsoleSink) Adornments() []datatypes.Adornment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]datatypes.Adornment, 0, len(c.adornments))
	for _, a := range c.adornments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// Diagnostics returns the current diagnostics ordered by tag.
func (c *ConsoleSink) Diagnostics() []datatypes.Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]datatypes.Diagnostic, 0, len(c.diagnostics))
	for _, d := range c.diagnostics {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Render prints every current adornment grouped by file.
func (c *ConsoleSink) Render() {
	adornments := c.Adornments()

	c.mu.Lock()
	defer c.mu.Unlock()
	file := ""
	for _, a := range adornments {
		if a.File != file {
			file = a.File
			c.printer.Title(file)
		}
		value := Truncate(Flatten(a.Content), c.width)
		if c.printer.mode == ModeMachine {
			c.printer.line(fmt.Sprintf("%s\t%d\t%s", a.File, a.Line+1, value))
			continue
		}
		c.printer.line(fmt.Sprintf("%5d  %s", a.Line+1, c.printer.style(Styles.Value, value)))
	}
}

func (c *ConsoleSink) icon(i Icon) string {
	if c.printer.mode == ModeFull {
		return i.Render()
	}
	return string(i)
}

func diagnosticLocation(d datatypes.Diagnostic) string {
	if d.Line < 0 {
		return d.File
	}
	return fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Column)
}
