// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// These tests exercise the command helpers directly. The run
// functions terminate the process through exit and are covered by the
// helpers they delegate to.

package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/AleutianAI/deadwood/analysis/config"
)

// writeTree materializes a relative-path to content map under a temp
// directory.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return dir
}

// setCfgPath points the global --config value at path for one test.
func setCfgPath(t *testing.T, path string) {
	t.Helper()
	old := cfgPath
	cfgPath = path
	t.Cleanup(func() { cfgPath = old })
}

// =============================================================================
// ROOT RESOLUTION
// =============================================================================

func TestResolveRoot_Directory(t *testing.T) {
	dir := t.TempDir()

	root, err := resolveRoot(dir)
	if err != nil {
		t.Fatalf("resolveRoot: %v", err)
	}
	if !filepath.IsAbs(root) {
		t.Errorf("root %q is not absolute", root)
	}
}

func TestResolveRoot_PythonFile(t *testing.T) {
	dir := writeTree(t, map[string]string{"m.py": "x = 1\n"})

	root, err := resolveRoot(filepath.Join(dir, "m.py"))
	if err != nil {
		t.Fatalf("resolveRoot: %v", err)
	}
	if filepath.Base(root) != "m.py" {
		t.Errorf("root = %q, want m.py", root)
	}
}

func TestResolveRoot_MissingPath(t *testing.T) {
	if _, err := resolveRoot(filepath.Join(t.TempDir(), "gone")); err == nil {
		t.Fatal("expected error for a missing path")
	}
}

func TestResolveRoot_NonPythonFile(t *testing.T) {
	dir := writeTree(t, map[string]string{"notes.txt": "hi\n"})

	if _, err := resolveRoot(filepath.Join(dir, "notes.txt")); err == nil {
		t.Fatal("expected error for a non-Python file")
	}
}

// =============================================================================
// CONFIG RESOLUTION
// =============================================================================

func TestResolveConfig_ExplicitPath(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"custom.yaml": "analysis:\n  pattern: \"call+\"\n",
	})
	setCfgPath(t, filepath.Join(dir, "custom.yaml"))

	cfg, err := resolveConfig(t.TempDir())
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.Analysis.Pattern != "call+" {
		t.Errorf("pattern = %q, want call+", cfg.Analysis.Pattern)
	}
}

func TestResolveConfig_ExplicitPathMustExist(t *testing.T) {
	setCfgPath(t, filepath.Join(t.TempDir(), "gone.yaml"))

	if _, err := resolveConfig(t.TempDir()); err == nil {
		t.Fatal("expected error for a missing --config path")
	}
}

func TestResolveConfig_DiscoversProjectFile(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"deadwood.yaml": "output:\n  max_dead: 3\n",
	})
	setCfgPath(t, "")

	cfg, err := resolveConfig(dir)
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.Output.MaxDead != 3 {
		t.Errorf("max_dead = %d, want 3", cfg.Output.MaxDead)
	}
}

func TestResolveConfig_DiscoversDotfile(t *testing.T) {
	dir := writeTree(t, map[string]string{
		".deadwood.yml": "cache:\n  enabled: false\n",
	})
	setCfgPath(t, "")

	cfg, err := resolveConfig(dir)
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.Cache.Enabled {
		t.Error("cache.enabled should be false from the discovered dotfile")
	}
}

func TestResolveConfig_DefaultsWhenAbsent(t *testing.T) {
	setCfgPath(t, "")

	cfg, err := resolveConfig(t.TempDir())
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if !reflect.DeepEqual(cfg, config.Default()) {
		t.Error("config without any file should equal the defaults")
	}
}

// A broken project config must surface, not fall back to defaults.
func TestResolveConfig_BrokenProjectFileErrors(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"deadwood.yaml": "no_such_section: 1\n",
	})
	setCfgPath(t, "")

	if _, err := resolveConfig(dir); err == nil {
		t.Fatal("expected error for an unknown config key")
	}
}

// =============================================================================
// OUTPUT AND TELEMETRY
// =============================================================================

func TestOutputJSON_Indented(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	old := os.Stdout
	os.Stdout = w

	writeErr := outputJSON(map[string]int{"dead": 1})

	os.Stdout = old
	w.Close()
	data, readErr := io.ReadAll(r)
	if writeErr != nil {
		t.Fatalf("outputJSON: %v", writeErr)
	}
	if readErr != nil {
		t.Fatalf("read: %v", readErr)
	}
	want := "{\n  \"dead\": 1\n}\n"
	if string(data) != want {
		t.Errorf("output = %q, want %q", data, want)
	}
}

func TestInitTelemetry_ShutdownFlushes(t *testing.T) {
	// The stdout exporters bind os.Stdout at construction, so the
	// swap has to cover initTelemetry as well as the shutdown.
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	old := os.Stdout
	os.Stdout = w

	shutdown, initErr := initTelemetry(context.Background())
	var shutdownErr error
	if initErr == nil {
		shutdownErr = shutdown(context.Background())
	}

	os.Stdout = old
	w.Close()
	io.Copy(io.Discard, r)

	if initErr != nil {
		t.Fatalf("initTelemetry: %v", initErr)
	}
	if shutdown == nil {
		t.Fatal("expected a shutdown hook")
	}
	if shutdownErr != nil {
		t.Errorf("shutdown: %v", shutdownErr)
	}
}
