// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"errors"
	"fmt"
)

// Sentinel errors for parse failures.
var (
	// ErrFileTooLarge indicates the file exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidContent indicates the file is not valid UTF-8.
	ErrInvalidContent = errors.New("file content is not valid UTF-8")

	// ErrInvalidSymbol indicates a symbol failed structural validation.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrInvalidResult indicates a parse result failed validation.
	ErrInvalidResult = errors.New("invalid parse result")
)

// ParseError is a fatal per-file parse failure. Analysis aborts on the
// first ParseError rather than producing results from a partial graph.
type ParseError struct {
	// Path is the file that failed to parse.
	Path string

	// Line is the 1-indexed line of the failure when known, else 0.
	Line int

	// Err is the underlying cause.
	Err error
}

// Error formats the failure with its source position.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError wraps err as a fatal parse failure for path.
func NewParseError(path string, line int, err error) *ParseError {
	return &ParseError{Path: path, Line: line, Err: err}
}
