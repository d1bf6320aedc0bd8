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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/deadwood/analysis/config"
)

func TestWriteConfigTemplate_WritesStarterFile(t *testing.T) {
	dir := t.TempDir()

	path, err := writeConfigTemplate(dir, false)
	if err != nil {
		t.Fatalf("writeConfigTemplate: %v", err)
	}
	if filepath.Base(path) != config.DefaultFileName {
		t.Errorf("path = %q, want %s", path, config.DefaultFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != config.Template {
		t.Error("written file should be the template verbatim")
	}
}

func TestWriteConfigTemplate_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.DefaultFileName)
	if err := os.WriteFile(path, []byte("# tuned by hand\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := writeConfigTemplate(dir, false)
	if !errors.Is(err, errConfigExists) {
		t.Fatalf("err = %v, want errConfigExists", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "# tuned by hand\n" {
		t.Error("existing file must stay untouched without --force")
	}
}

func TestWriteConfigTemplate_ForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.DefaultFileName)
	if err := os.WriteFile(path, []byte("# stale\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := writeConfigTemplate(dir, true); err != nil {
		t.Fatalf("writeConfigTemplate: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != config.Template {
		t.Error("--force should replace the file with the template")
	}
}

func TestWriteConfigTemplate_RejectsFileTarget(t *testing.T) {
	dir := writeTree(t, map[string]string{"plain.txt": "x\n"})

	_, err := writeConfigTemplate(filepath.Join(dir, "plain.txt"), false)
	if err == nil {
		t.Fatal("expected error for a file target")
	}
	if errors.Is(err, errConfigExists) {
		t.Error("a file target is a bad path, not an existing config")
	}
}

func TestWriteConfigTemplate_MissingDirectory(t *testing.T) {
	if _, err := writeConfigTemplate(filepath.Join(t.TempDir(), "gone"), false); err == nil {
		t.Fatal("expected error for a missing directory")
	}
}
