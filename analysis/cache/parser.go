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

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/deadwood/analysis/ast"
)

// Parser is an ast.Parser that consults the store before parsing.
//
// # Description
//
// On a hit the inner parser never runs; the cached result is rebound
// to the requested path, since entries are content-addressed and the
// same bytes may appear under several paths. On a miss the inner
// parser runs and its result is stored. Store failures degrade to
// plain parsing and never fail the scan. Parse errors are returned
// unchanged and never cached.
//
// Thread Safety: NOT safe for concurrent use; the inner parser is
// single-threaded. Each worker wraps its own inner parser around the
// shared Store.
type Parser struct {
	inner ast.Parser
	store *Store
}

var _ ast.Parser = (*Parser)(nil)

// NewParser wraps the inner parser with the store. A nil store
// disables caching and passes every call through.
func NewParser(store *Store, inner ast.Parser) *Parser {
	return &Parser{inner: inner, store: store}
}

// Parse implements ast.Parser.
func (p *Parser) Parse(ctx context.Context, content []byte, filePath string) (*ast.ParseResult, error) {
	if p.store == nil {
		return p.inner.Parse(ctx, content, filePath)
	}

	res, ok, err := p.store.Get(ctx, content)
	if err != nil {
		slog.Warn("parse cache read failed, parsing",
			slog.String("path", filePath),
			slog.String("error", err.Error()))
	}
	if ok {
		res.FilePath = filePath
		return res, nil
	}

	res, err = p.inner.Parse(ctx, content, filePath)
	if err != nil {
		return nil, err
	}

	if perr := p.store.Put(ctx, content, res); perr != nil {
		slog.Warn("parse cache write failed",
			slog.String("path", filePath),
			slog.String("error", perr.Error()))
	}
	return res, nil
}
