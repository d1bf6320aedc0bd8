// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates deadwood run configuration.
//
// # Description
//
// A Config is a plain value: the loader produces it once and the
// pipeline threads it explicitly through builder and engine calls.
// Nothing here or downstream reads ambient global state, so two runs
// with equal Config values behave identically.
//
// Discovery looks for deadwood.yaml, then .deadwood.yml, in the
// project root. Decoding is strict: unknown keys are errors, so a
// typo fails the run instead of silently falling back to a default.
// Validation runs at load time and includes compiling the path
// pattern and resolving plugin names, so a malformed pattern or an
// unknown plugin aborts before any file is scanned.
//
// Thread Safety: Config is immutable by convention. Copies are
// independent; share freely across goroutines.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/AleutianAI/deadwood/analysis/extract"
	"github.com/AleutianAI/deadwood/analysis/pattern"
	"github.com/AleutianAI/deadwood/analysis/plugin"
)

// =============================================================================
// Schema
// =============================================================================

// Config is the complete configuration for one analysis run.
type Config struct {
	// Paths selects which files the scanner visits.
	Paths PathsConfig `yaml:"paths"`

	// Analysis tunes root collection, propagation, and reachability.
	Analysis AnalysisConfig `yaml:"analysis"`

	// Scan controls the parallel parse pass.
	Scan ScanConfig `yaml:"scan"`

	// Cache controls the content-addressed parse cache.
	Cache CacheConfig `yaml:"cache"`

	// Output controls report placement and the dead-count gate.
	Output OutputConfig `yaml:"output"`
}

// PathsConfig selects the file set.
type PathsConfig struct {
	// Include restricts the scan to matching globs. Empty scans the
	// whole tree.
	Include []string `yaml:"include"`

	// Exclude skips matching paths, gitignore syntax.
	Exclude []string `yaml:"exclude"`
}

// AnalysisConfig tunes the reachability pipeline.
type AnalysisConfig struct {
	// Whitelist holds extra roots beyond declared exports: exact FQNs
	// or dot-boundary suffixes.
	Whitelist []string `yaml:"whitelist" validate:"dive,required"`

	// Pattern is the path pattern expression over edge kinds. Empty
	// selects the built-in default.
	Pattern string `yaml:"pattern"`

	// Plugins lists enabled dynamic-usage extractors by name. Plugins
	// are never on by default.
	Plugins []string `yaml:"plugins"`

	// RegistryConstructors lists call names the registry plugin treats
	// as registration points.
	RegistryConstructors []string `yaml:"registry_constructors" validate:"dive,required"`

	// ModuleExportClosure expands an export naming a submodule into
	// that submodule's own exports, recursively.
	ModuleExportClosure bool `yaml:"module_export_closure"`

	// ProtocolNominal marks protocol method implementations used when
	// the protocol method is.
	ProtocolNominal bool `yaml:"protocol_nominal"`

	// ProtocolStrictSignature requires matching arity for protocol
	// implementations.
	ProtocolStrictSignature bool `yaml:"protocol_strict_signature"`

	// PolicyAnywhere lets policy-structural edges match anywhere in a
	// path instead of only as the first hop out of a root.
	PolicyAnywhere bool `yaml:"policy_anywhere"`
}

// ScanConfig controls the parse pass.
type ScanConfig struct {
	// Workers is the parallel parse worker count. 0 uses every
	// available CPU.
	Workers int `yaml:"workers" validate:"gte=0"`
}

// CacheConfig controls the parse cache.
type CacheConfig struct {
	// Enabled toggles the cache. Results are identical on or off.
	Enabled bool `yaml:"enabled"`

	// Dir overrides the cache location. Empty uses ~/.deadwood/cache.
	Dir string `yaml:"dir"`
}

// OutputConfig controls report placement.
type OutputConfig struct {
	// Dir receives dead_code.json and graph exports.
	Dir string `yaml:"dir" validate:"required"`

	// MaxDead fails the run (exit 1) when the dead symbol count
	// exceeds it. -1 disables the gate.
	MaxDead int `yaml:"max_dead" validate:"gte=-1"`
}

// =============================================================================
// Defaults
// =============================================================================

// defaultExcludes skips the directories Python tooling litters a
// project with. Template lists the same entries.
var defaultExcludes = []string{
	".git/",
	".venv/",
	"venv/",
	"__pycache__/",
	".mypy_cache/",
	".pytest_cache/",
	".tox/",
	"build/",
	"dist/",
}

// Default returns the configuration an absent or empty config file
// selects.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			Exclude: append([]string(nil), defaultExcludes...),
		},
		Analysis: AnalysisConfig{
			Pattern:                 pattern.DefaultSource,
			ProtocolNominal:         true,
			ProtocolStrictSignature: true,
		},
		Cache:  CacheConfig{Enabled: true},
		Output: OutputConfig{Dir: ".", MaxDead: -1},
	}
}

// =============================================================================
// Derived values
// =============================================================================

// CompilePattern compiles the configured path pattern.
//
// Outputs:
//
//	*pattern.Pattern - The compiled automaton, the shared default when
//	  the field is empty.
//	error - *pattern.CompileError on a malformed expression.
func (c Config) CompilePattern() (*pattern.Pattern, error) {
	if c.Analysis.Pattern == "" {
		return pattern.Default(), nil
	}
	return pattern.Compile(c.Analysis.Pattern)
}

// BuildPlugins constructs the configured plugin extractors.
//
// Outputs:
//
//	[]extract.Plugin - One extractor per configured name, empty when
//	  none are enabled.
//	error - Wraps plugin.ErrUnknownPlugin on an unrecognized name.
func (c Config) BuildPlugins() ([]extract.Plugin, error) {
	return plugin.FromNames(c.Analysis.Plugins, c.Analysis.RegistryConstructors)
}

// WorkerCount resolves the parse worker count.
func (c ScanConfig) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Path resolves the cache directory, defaulting under the user's home.
func (c CacheConfig) Path() (string, error) {
	if c.Dir != "" {
		return c.Dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache directory: %w", err)
	}
	return filepath.Join(home, ".deadwood", "cache"), nil
}
