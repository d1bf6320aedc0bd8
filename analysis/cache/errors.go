// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import "errors"

var (
	// ErrClosed is returned by Get and Put after Close.
	ErrClosed = errors.New("cache store closed")

	// ErrCorruptEntry marks a stored entry that failed its checksum
	// or no longer decodes. Get converts it into a miss after
	// deleting the entry.
	ErrCorruptEntry = errors.New("corrupt cache entry")
)
