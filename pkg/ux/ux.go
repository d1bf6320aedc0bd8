// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders analysis results for human terminals.
//
// A Printer writes either styled or plain output. Styling is dropped
// automatically when the destination is not a terminal, when NO_COLOR
// is set, or when TERM is dumb, so piped output carries no escape
// sequences and stays grep-friendly. Plain listings are tab-separated
// for the same reason. JSON output never goes through this package.
package ux

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/deadwood/analysis/report"
)

// =============================================================================
// Palette
// =============================================================================

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, live symbols
	ColorTealPrimary = lipgloss.Color("#20B9B4") // main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorSuccess = ColorTealBright
	ColorWarning = lipgloss.Color("#F4D03F") // gold for warnings
	ColorError   = lipgloss.Color("#E74C3C") // red for dead symbols
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
}

// Status icons for symbol listings.
const (
	IconLive    = "✓"
	IconDead    = "✗"
	IconAllowed = "○"
	IconWarning = "⚠"
	IconArrow   = "→"
)

// =============================================================================
// Plain-mode detection
// =============================================================================

// PlainWriter reports whether styled output should be suppressed for
// the destination. Non-file writers are always plain.
func PlainWriter(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return true
	}
	f, ok := w.(*os.File)
	if !ok {
		return true
	}
	fd := f.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes analysis output to one destination.
type Printer struct {
	w     io.Writer
	plain bool
}

// NewPrinter builds a printer for w, detecting plain mode from the
// destination and environment.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, plain: PlainWriter(w)}
}

// SetPlain overrides plain-mode detection.
func (p *Printer) SetPlain(plain bool) {
	p.plain = plain
}

// render applies the style unless the printer is plain.
func (p *Printer) render(style lipgloss.Style, s string) string {
	if p.plain {
		return s
	}
	return style.Render(s)
}

// Successf prints a success line.
func (p *Printer) Successf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.plain {
		fmt.Fprintf(p.w, "OK: %s\n", msg)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n",
		Styles.Success.Render(IconLive), Styles.Success.Render(msg))
}

// Warningf prints a warning line.
func (p *Printer) Warningf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.plain {
		fmt.Fprintf(p.w, "WARN: %s\n", msg)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n",
		Styles.Warning.Render(IconWarning), Styles.Warning.Render(msg))
}

// Errorf prints an error line.
func (p *Printer) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.plain {
		fmt.Fprintf(p.w, "ERROR: %s\n", msg)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n",
		Styles.Error.Render(IconDead), Styles.Error.Render(msg))
}

// =============================================================================
// Report rendering
// =============================================================================

// Summary prints the headline counts on one line.
func (p *Printer) Summary(r *report.Report) {
	s := r.Summary
	if p.plain {
		fmt.Fprintf(p.w,
			"SUMMARY: symbols=%d roots=%d reachable=%d policy=%d dead=%d allowed=%d warnings=%d\n",
			s.SymbolsTotal, s.Roots, s.Reachable, s.Policy, s.Dead,
			s.Allowed, s.Warnings)
		return
	}

	deadStyle := Styles.Success
	if s.Dead > 0 {
		deadStyle = Styles.Error
	}
	fmt.Fprintf(p.w, "\n%s %s  %s %s  %s %s  %s %s",
		deadStyle.Render(strconv.Itoa(s.Dead)), Styles.Muted.Render("dead"),
		Styles.Success.Render(strconv.Itoa(s.Reachable)), Styles.Muted.Render("reachable"),
		Styles.Bold.Render(strconv.Itoa(s.Roots)), Styles.Muted.Render("roots"),
		Styles.Bold.Render(strconv.Itoa(s.SymbolsTotal)), Styles.Muted.Render("symbols"))
	if s.Allowed > 0 {
		fmt.Fprintf(p.w, "  %s %s",
			Styles.Muted.Render(strconv.Itoa(s.Allowed)), Styles.Muted.Render("allowed"))
	}
	if s.Warnings > 0 {
		fmt.Fprintf(p.w, "  %s %s",
			Styles.Warning.Render(strconv.Itoa(s.Warnings)), Styles.Muted.Render("warnings"))
	}
	fmt.Fprintln(p.w)
}

// DeadSymbols lists the dead symbols with their locations. A positive
// limit truncates the listing and notes how many were cut.
func (p *Printer) DeadSymbols(r *report.Report, limit int) {
	dead := r.Dead
	cut := 0
	if limit > 0 && len(dead) > limit {
		cut = len(dead) - limit
		dead = dead[:limit]
	}

	for _, n := range dead {
		loc := location(n)
		if p.plain {
			fmt.Fprintf(p.w, "dead\t%s\t%s\t%s\n", n.FQN, n.Kind, loc)
			continue
		}
		fmt.Fprintf(p.w, "%s %s %s %s\n",
			Styles.Error.Render(IconDead),
			Styles.Bold.Render(n.FQN),
			Styles.Muted.Render(n.Kind),
			Styles.Muted.Render(loc))
	}
	if cut > 0 {
		fmt.Fprintln(p.w, p.render(Styles.Muted, fmt.Sprintf("... and %d more", cut)))
	}
}

// AllowedSymbols lists unreachable symbols kept by allow markers.
func (p *Printer) AllowedSymbols(r *report.Report) {
	for _, n := range r.Allowed {
		loc := location(n)
		if p.plain {
			fmt.Fprintf(p.w, "allowed\t%s\t%s\t%s\n", n.FQN, n.Kind, loc)
			continue
		}
		fmt.Fprintf(p.w, "%s %s %s %s\n",
			Styles.Muted.Render(IconAllowed),
			Styles.Muted.Render(n.FQN),
			Styles.Muted.Render(n.Kind),
			Styles.Muted.Render(loc))
	}
}

// Warnings lists collection warnings.
func (p *Printer) Warnings(r *report.Report) {
	for _, w := range r.Warnings {
		if p.plain {
			fmt.Fprintf(p.w, "warning\t%s\n", w)
			continue
		}
		fmt.Fprintf(p.w, "%s %s\n",
			Styles.Warning.Render(IconWarning), Styles.Warning.Render(w))
	}
}

// Explain prints a witness query result. The step layout matches the
// report's path_edges so the text and JSON forms agree.
func (p *Printer) Explain(rec *report.ExplainRecord) {
	switch {
	case !rec.Found:
		msg := rec.Target + ": not reachable"
		if rec.Suppressed {
			msg += " (kept by allow marker)"
		}
		if p.plain {
			fmt.Fprintln(p.w, msg)
		} else {
			fmt.Fprintf(p.w, "%s %s\n", Styles.Error.Render(IconDead), msg)
		}
		return

	case rec.Verdict == "module":
		p.explainHeader(rec.Target + ": module, implicit analysis seed")
		return

	case rec.Verdict == "root":
		p.explainHeader(rec.Target + ": declared root")
		return
	}

	p.explainHeader(fmt.Sprintf("%s: reachable from %s", rec.Target, rec.Root))
	for _, e := range rec.PathEdges {
		step := fmt.Sprintf("%s %s %s [%s]", e.Src, IconArrow, e.Dst, e.Type)
		if e.Line > 0 {
			step += fmt.Sprintf(" line %d", e.Line)
		}
		fmt.Fprintf(p.w, "  %s\n", p.render(Styles.Muted, step))
	}
}

func (p *Printer) explainHeader(msg string) {
	if p.plain {
		fmt.Fprintln(p.w, msg)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Success.Render(IconLive), msg)
}

// location formats a node's file position, empty-safe for synthesized
// nodes.
func location(n report.NodeRecord) string {
	if n.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", n.File, n.Line)
}
