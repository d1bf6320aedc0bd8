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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/deadwood/analysis/report"
)

// Build information, overridden by the release build:
//
//	go build -ldflags "-X main.version=1.2.0 -X main.commit=$(git rev-parse --short HEAD)"
var (
	version = "dev"
	commit  = "none"
)

var (
	versionJSONOutput bool // Output as JSON
)

func init() {
	versionCmd.Flags().BoolVar(&versionJSONOutput, "json", false,
		"Output as JSON for scripting")
}

// runVersionCommand prints the binary version and the report schema
// version it emits.
func runVersionCommand(cmd *cobra.Command, args []string) {
	if versionJSONOutput {
		if err := outputJSON(map[string]string{
			"version":       version,
			"commit":        commit,
			"report_schema": report.Version,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "encode version: %v\n", err)
			exit(exitFatal)
		}
		exit(exitSuccess)
	}
	fmt.Printf("deadwood %s (%s), report schema %s\n", version, commit, report.Version)
	exit(exitSuccess)
}
