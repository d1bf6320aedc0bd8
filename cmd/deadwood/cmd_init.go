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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/deadwood/analysis/config"
	"github.com/AleutianAI/deadwood/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	initForce bool // Overwrite an existing config file
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// initCmd writes a starter configuration file.
//
// # Description
//
// Writes a fully commented deadwood.yaml into the target directory.
// Every uncommented value in the file is a default, so a fresh file
// changes nothing until edited.
//
// # Examples
//
//	deadwood init               # Write ./deadwood.yaml
//	deadwood init ./myproject   # Write into a project directory
//	deadwood init --force       # Replace an existing file
//
// # Exit Codes
//
//	0 - Config written
//	1 - A config file already exists (use --force)
//	2 - Invalid path
var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a commented default deadwood.yaml",
	Long: `Write a commented default deadwood.yaml.

The file documents every setting with its default value. Scans pick it
up automatically when run from or pointed at the directory.

Examples:
  deadwood init               # Write ./deadwood.yaml
  deadwood init ./myproject   # Write into a project directory
  deadwood init --force       # Replace an existing file`,
	Args: cobra.MaximumNArgs(1),
	Run:  runInitCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false,
		"Overwrite an existing config file")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

var errConfigExists = errors.New("config file exists")

// runInitCommand executes the init command.
func runInitCommand(cmd *cobra.Command, args []string) {
	printer := ux.NewPrinter(os.Stdout)

	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	path, err := writeConfigTemplate(dir, initForce)
	if errors.Is(err, errConfigExists) {
		printer.Errorf("%s already exists (use --force to overwrite)", path)
		exit(exitFailure)
	}
	if err != nil {
		printer.Errorf("%v", err)
		exit(exitFatal)
	}
	printer.Successf("wrote %s", path)
	exit(exitSuccess)
}

// writeConfigTemplate writes the starter config under dir and returns
// its path. Refuses to clobber an existing file unless forced.
func writeConfigTemplate(dir string, force bool) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}

	path := filepath.Join(abs, config.DefaultFileName)
	if _, err := os.Stat(path); err == nil && !force {
		return path, errConfigExists
	}
	if err := os.WriteFile(path, []byte(config.Template), 0644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}
