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
	"testing"

	"github.com/AleutianAI/deadwood/analysis/report"
)

// setGraphFlags pins the graph flag globals for one test.
func setGraphFlags(t *testing.T, maxNodes int, direction string) {
	t.Helper()
	oldMax, oldDir := graphMaxNodes, graphDirection
	graphMaxNodes, graphDirection = maxNodes, direction
	t.Cleanup(func() { graphMaxNodes, graphDirection = oldMax, oldDir })
}

func TestGraphExportOptions_Defaults(t *testing.T) {
	setGraphFlags(t, 0, "")

	opts := graphExportOptions()
	want := report.DefaultGraphOptions()
	if opts.MaxNodes != want.MaxNodes {
		t.Errorf("max nodes = %d, want %d", opts.MaxNodes, want.MaxNodes)
	}
	if opts.Direction != want.Direction {
		t.Errorf("direction = %q, want %q", opts.Direction, want.Direction)
	}
}

func TestGraphExportOptions_Overrides(t *testing.T) {
	setGraphFlags(t, 100, "LR")

	opts := graphExportOptions()
	if opts.MaxNodes != 100 {
		t.Errorf("max nodes = %d, want 100", opts.MaxNodes)
	}
	if opts.Direction != "LR" {
		t.Errorf("direction = %q, want LR", opts.Direction)
	}
}
