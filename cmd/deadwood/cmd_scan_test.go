// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/deadwood/analysis/config"
	"github.com/AleutianAI/deadwood/analysis/report"
	"github.com/AleutianAI/deadwood/pkg/ux"
)

// scanTestCmd builds a scratch command with freshly registered scan
// flags. Registration resets every bound variable, so each test
// starts from the defaults.
func scanTestCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "scan"}
	registerScanFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

// =============================================================================
// FLAG OVERRIDES
// =============================================================================

func TestApplyScanFlags_NothingSetLeavesConfig(t *testing.T) {
	cmd := scanTestCmd(t)

	cfg := config.Default()
	applyScanFlags(cmd, &cfg)

	if !reflect.DeepEqual(cfg, config.Default()) {
		t.Error("unset flags must not touch the config")
	}
}

func TestApplyScanFlags_ConfiguredValuesSurvive(t *testing.T) {
	cmd := scanTestCmd(t)

	cfg := config.Default()
	cfg.Analysis.Pattern = "call+"
	cfg.Output.MaxDead = 7
	applyScanFlags(cmd, &cfg)

	if cfg.Analysis.Pattern != "call+" {
		t.Errorf("pattern = %q, flag default clobbered the config", cfg.Analysis.Pattern)
	}
	if cfg.Output.MaxDead != 7 {
		t.Errorf("max_dead = %d, flag default clobbered the config", cfg.Output.MaxDead)
	}
}

func TestApplyScanFlags_Overrides(t *testing.T) {
	cmd := scanTestCmd(t,
		"--pattern", "call+",
		"--max", "5",
		"--workers", "4",
		"--output", "reports",
		"--plugins", "dispatch",
		"--module-export-closure",
		"--policy-anywhere",
	)

	cfg := config.Default()
	applyScanFlags(cmd, &cfg)

	if cfg.Analysis.Pattern != "call+" {
		t.Errorf("pattern = %q, want call+", cfg.Analysis.Pattern)
	}
	if cfg.Output.MaxDead != 5 {
		t.Errorf("max_dead = %d, want 5", cfg.Output.MaxDead)
	}
	if cfg.Scan.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Scan.Workers)
	}
	if cfg.Output.Dir != "reports" {
		t.Errorf("output dir = %q, want reports", cfg.Output.Dir)
	}
	if !reflect.DeepEqual(cfg.Analysis.Plugins, []string{"dispatch"}) {
		t.Errorf("plugins = %v, want [dispatch]", cfg.Analysis.Plugins)
	}
	if !cfg.Analysis.ModuleExportClosure {
		t.Error("module_export_closure should be set")
	}
	if !cfg.Analysis.PolicyAnywhere {
		t.Error("policy_anywhere should be set")
	}
}

// Explicit false must override a config true even though false is not
// the flag default state.
func TestApplyScanFlags_ExplicitFalse(t *testing.T) {
	cmd := scanTestCmd(t, "--protocol-nominal=false", "--strict-signature=false")

	cfg := config.Default()
	applyScanFlags(cmd, &cfg)

	if cfg.Analysis.ProtocolNominal {
		t.Error("protocol_nominal should be overridden to false")
	}
	if cfg.Analysis.ProtocolStrictSignature {
		t.Error("protocol_strict_signature should be overridden to false")
	}
}

func TestApplyScanFlags_WhitelistAppends(t *testing.T) {
	cmd := scanTestCmd(t, "--whitelist", "c.d", "--whitelist", "e.f")

	cfg := config.Default()
	cfg.Analysis.Whitelist = []string{"a.b"}
	applyScanFlags(cmd, &cfg)

	want := []string{"a.b", "c.d", "e.f"}
	if !reflect.DeepEqual(cfg.Analysis.Whitelist, want) {
		t.Errorf("whitelist = %v, want %v", cfg.Analysis.Whitelist, want)
	}
}

func TestApplyScanFlags_ExcludeReplaces(t *testing.T) {
	cmd := scanTestCmd(t, "--exclude", "generated/")

	cfg := config.Default()
	applyScanFlags(cmd, &cfg)

	if !reflect.DeepEqual(cfg.Paths.Exclude, []string{"generated/"}) {
		t.Errorf("exclude = %v, want the flag value alone", cfg.Paths.Exclude)
	}
}

func TestApplyScanFlags_CacheFlags(t *testing.T) {
	cmd := scanTestCmd(t, "--no-cache", "--cache-dir", "/tmp/dw-cache")

	cfg := config.Default()
	applyScanFlags(cmd, &cfg)

	if cfg.Cache.Enabled {
		t.Error("cache should be disabled by --no-cache")
	}
	if cfg.Cache.Dir != "/tmp/dw-cache" {
		t.Errorf("cache dir = %q, want /tmp/dw-cache", cfg.Cache.Dir)
	}
}

// A flag override that breaks validation must be caught before the
// scan starts.
func TestApplyScanFlags_BadPatternFailsValidation(t *testing.T) {
	cmd := scanTestCmd(t, "--pattern", "call|")

	cfg := config.Default()
	applyScanFlags(cmd, &cfg)

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a validation error for a dangling alternation")
	}
}

// =============================================================================
// SINGLE RUN
// =============================================================================

// exportedPackage is a package whose __init__ exports run while
// api._private stays unreferenced.
func exportedPackage(t *testing.T) string {
	t.Helper()
	return writeTree(t, map[string]string{
		"pkg/__init__.py": `__all__ = ["run"]

from .api import run
`,
		"pkg/api.py": `def run():
    helper()


def helper():
    pass


def _private():
    pass
`,
	})
}

func TestRunScanOnce_SummaryAndReport(t *testing.T) {
	scanTestCmd(t) // reset the flag-bound globals
	src := exportedPackage(t)
	outDir := t.TempDir()

	cfg := config.Default()
	cfg.Cache.Enabled = false
	cfg.Output.Dir = outDir

	var out bytes.Buffer
	printer := ux.NewPrinter(&out)

	a, err := runScanOnce(context.Background(), src, cfg, nil, printer)
	if err != nil {
		t.Fatalf("runScanOnce: %v", err)
	}
	if a.Report.Summary.Dead != 1 {
		t.Errorf("dead = %d, want 1", a.Report.Summary.Dead)
	}

	text := out.String()
	if !strings.Contains(text, "SUMMARY: symbols=4 roots=2 reachable=3 policy=0 dead=1 allowed=0") {
		t.Errorf("summary line missing from output:\n%s", text)
	}
	if !strings.Contains(text, "dead\tpkg.api._private\tfunction\tpkg/api.py:9") {
		t.Errorf("dead listing missing from output:\n%s", text)
	}

	data, err := os.ReadFile(filepath.Join(outDir, report.FileName))
	if err != nil {
		t.Fatalf("report file: %v", err)
	}
	var doc report.Report
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if doc.Version != report.Version {
		t.Errorf("report version = %q, want %q", doc.Version, report.Version)
	}
}

func TestRunScanOnce_GraphExports(t *testing.T) {
	scanTestCmd(t)
	scanDOT = true
	scanMermaid = true
	src := exportedPackage(t)
	outDir := t.TempDir()

	cfg := config.Default()
	cfg.Cache.Enabled = false
	cfg.Output.Dir = outDir

	var out bytes.Buffer
	if _, err := runScanOnce(context.Background(), src, cfg, nil, ux.NewPrinter(&out)); err != nil {
		t.Fatalf("runScanOnce: %v", err)
	}

	dot, err := os.ReadFile(filepath.Join(outDir, "dead_code.dot"))
	if err != nil {
		t.Fatalf("dot export: %v", err)
	}
	if !strings.HasPrefix(string(dot), "digraph deadwood {") {
		t.Errorf("unexpected dot prefix: %q", string(dot)[:40])
	}

	mmd, err := os.ReadFile(filepath.Join(outDir, "dead_code.mmd"))
	if err != nil {
		t.Fatalf("mermaid export: %v", err)
	}
	if !strings.HasPrefix(string(mmd), "flowchart TB") {
		t.Errorf("unexpected mermaid prefix: %q", string(mmd)[:40])
	}
}

func TestRunScanOnce_LimitTruncatesListing(t *testing.T) {
	scanTestCmd(t)
	scanLimit = 1
	src := writeTree(t, map[string]string{
		"m.py": `def a():
    pass


def b():
    pass


def c():
    pass
`,
	})
	outDir := t.TempDir()

	cfg := config.Default()
	cfg.Cache.Enabled = false
	cfg.Output.Dir = outDir

	var out bytes.Buffer
	a, err := runScanOnce(context.Background(), src, cfg, nil, ux.NewPrinter(&out))
	if err != nil {
		t.Fatalf("runScanOnce: %v", err)
	}
	if a.Report.Summary.Dead != 3 {
		t.Fatalf("dead = %d, want 3", a.Report.Summary.Dead)
	}
	if !strings.Contains(out.String(), "... and 2 more") {
		t.Errorf("truncation note missing:\n%s", out.String())
	}
}

func TestRunScanOnce_AnalysisErrorPropagates(t *testing.T) {
	scanTestCmd(t)
	src := writeTree(t, map[string]string{"bad.py": "def broken(:\n"})

	cfg := config.Default()
	cfg.Cache.Enabled = false
	cfg.Output.Dir = t.TempDir()

	var out bytes.Buffer
	if _, err := runScanOnce(context.Background(), src, cfg, nil, ux.NewPrinter(&out)); err == nil {
		t.Fatal("expected a parse error to propagate")
	}
}
