// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reach

import "errors"

// Sentinel errors for reachability.
var (
	// ErrNilExtraction is returned when Analyze receives a nil or
	// incomplete extraction result.
	ErrNilExtraction = errors.New("nil extraction result")

	// ErrNilRoots is returned when Analyze receives a nil root set.
	ErrNilRoots = errors.New("nil root set")

	// ErrUnknownFQN is returned by Explain for an FQN the graph does
	// not contain.
	ErrUnknownFQN = errors.New("unknown fully qualified name")
)
