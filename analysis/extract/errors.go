// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import "errors"

var (
	// ErrInvalidSource indicates a source with an empty module FQN or
	// a nil parse result.
	ErrInvalidSource = errors.New("invalid source")

	// ErrDuplicateModule indicates two sources claiming the same
	// module FQN; the scanner must never produce this.
	ErrDuplicateModule = errors.New("duplicate module")

	// ErrPluginFailed wraps a plugin extraction failure.
	ErrPluginFailed = errors.New("plugin extraction failed")
)
