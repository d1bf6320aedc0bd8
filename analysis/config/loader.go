// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/deadwood/analysis/plugin"
)

// DefaultFileName is the config file "deadwood init" writes.
const DefaultFileName = "deadwood.yaml"

// fileNames is the discovery order.
var fileNames = []string{DefaultFileName, ".deadwood.yml"}

// validate reports field names by their yaml tags, so a failure names
// the key the user actually wrote.
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// =============================================================================
// Loading
// =============================================================================

// Load reads, decodes, and validates a config file.
//
// # Description
//
// Decoding starts from Default(), so absent keys keep their default
// values and a present key overrides even when set to a zero value.
// Unknown keys are rejected. The returned Config has passed Validate,
// including pattern compilation and plugin name resolution.
//
// Inputs:
//
//	path - Config file path. Must exist.
//
// Outputs:
//
//	Config - The merged configuration.
//	error - Read, decode, or validation failure. Pattern failures
//	  unwrap to *pattern.CompileError, field failures to
//	  *ValidationError.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}

	slog.Debug("configuration loaded",
		slog.String("path", path),
		slog.Int("plugins", len(cfg.Analysis.Plugins)))
	return cfg, nil
}

// Discover returns the first recognized config file under dir.
//
// Outputs:
//
//	string - Path to deadwood.yaml or .deadwood.yml.
//	bool - False when neither exists.
func Discover(dir string) (string, bool) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks field rules and resolves every derived value that
// can fail, so a bad configuration surfaces before any file is
// scanned.
//
// Outputs:
//
//	error - *ValidationError for the first broken field rule,
//	  *pattern.CompileError for a malformed pattern, a
//	  plugin.ErrUnknownPlugin wrap for a bad plugin name, or an
//	  ErrInvalidConfig wrap for cross-field violations.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := fe.Namespace()
			if i := strings.Index(field, "."); i >= 0 {
				field = field[i+1:]
			}
			return &ValidationError{Field: field, Rule: fe.Tag(), Value: fe.Value()}
		}
		return err
	}

	if _, err := c.CompilePattern(); err != nil {
		return err
	}

	plugins, err := c.BuildPlugins()
	if err != nil {
		return err
	}
	if len(c.Analysis.RegistryConstructors) == 0 {
		for _, p := range plugins {
			if p.Name() == plugin.NameRegistry {
				return fmt.Errorf("%w: registry plugin enabled without registry_constructors", ErrInvalidConfig)
			}
		}
	}

	return nil
}
