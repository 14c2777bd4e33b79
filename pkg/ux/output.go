// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux renders replay output on a terminal.
//
// Styling uses lipgloss with the Aleutian palette. Output adapts to its
// destination through Mode: full color on a terminal, plain tab-separated
// lines when piped.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian color palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Location  lipgloss.Style
	Value     lipgloss.Style
	ErrorBox  lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Location:  lipgloss.NewStyle().Foreground(ColorTealDeep),
	Value:     lipgloss.NewStyle().Foreground(ColorTealPrimary),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconAdd     Icon = "+"
	IconRemove  Icon = "-"
	IconArrow   Icon = "→"
)

// Render returns the icon with its color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess, IconAdd:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError, IconRemove:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes styled messages to one writer in one Mode.
//
// Printer is not safe for concurrent use; callers serialize.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter returns a Printer for w.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	return &Printer{w: w, mode: mode}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

// Title prints a heading. Machine mode prints nothing.
func (p *Printer) Title(text string) {
	if p.mode == ModeMachine {
		return
	}
	p.line(p.style(Styles.Title, text))
}

// Success prints a success message.
func (p *Printer) Success(text string) {
	p.status("OK", IconSuccess, Styles.Success, text)
}

// Warning prints a warning.
func (p *Printer) Warning(text string) {
	p.status("WARN", IconWarning, Styles.Warning, text)
}

// Error prints an error.
func (p *Printer) Error(text string) {
	p.status("ERROR", IconError, Styles.Error, text)
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if p.mode == ModeMachine {
		p.line(text)
		return
	}
	p.line(p.style(Styles.Muted, "│") + " " + text)
}

// ErrorBox prints a multi-line error in a box.
func (p *Printer) ErrorBox(title, content string) {
	if p.mode != ModeFull {
		p.line(fmt.Sprintf("ERROR %s: %s", title, content))
		return
	}
	p.line(Styles.ErrorBox.Width(72).Render(Styles.Error.Bold(true).Render(title) + "\n" + content))
}

func (p *Printer) status(prefix string, icon Icon, style lipgloss.Style, text string) {
	switch p.mode {
	case ModeMachine:
		p.line(prefix + ": " + text)
	case ModeMinimal:
		p.line(string(icon) + " " + text)
	default:
		p.line(icon.Render() + " " + style.Render(text))
	}
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if p.mode != ModeFull {
		return text
	}
	return s.Render(text)
}

func (p *Printer) line(text string) {
	_, _ = fmt.Fprintln(p.w, text)
}

// Truncate shortens s to width runes, ending it with "…" when cut.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}

// Flatten replaces line breaks and tabs so s fits on one terminal line.
func Flatten(s string) string {
	return strings.NewReplacer("\r\n", "⏎", "\n", "⏎", "\r", "⏎", "\t", " ").Replace(s)
}
