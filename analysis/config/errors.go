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
	"errors"
	"fmt"
)

// ErrInvalidConfig flags configuration that decodes cleanly but cannot
// drive a run.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError reports the first field rule a configuration broke.
type ValidationError struct {
	// Field is the yaml path of the offending field, e.g.
	// "scan.workers".
	Field string

	// Rule is the validation tag that failed, e.g. "gte".
	Rule string

	// Value is the rejected value.
	Value any
}

// Error formats the failure.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config field %s: value %v breaks rule %q", e.Field, e.Value, e.Rule)
}
