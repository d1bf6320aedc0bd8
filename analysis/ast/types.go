// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast parses Python source files into the symbol and reference
// stream consumed by the dead-code analysis pipeline.
//
// The package deliberately exposes a flat, language-neutral surface:
// definitions (Symbol), import statements (Import), and raw usage
// references (Reference). References carry unresolved dotted names
// exactly as written in the source; resolution against the module index
// happens downstream in analysis/extract, never here.
package ast

import (
	"fmt"
	"strings"
)

// Size limits for parsing.
const (
	// DefaultMaxFileSize is the maximum file size parsed (10MB).
	DefaultMaxFileSize = int64(10 * 1024 * 1024)

	// WarnFileSize triggers a warning log for large files (1MB).
	WarnFileSize = 1024 * 1024
)

// ArityUnknown marks a callable whose parameter count could not be
// determined statically (*args/**kwargs present, or unparsed).
// Unknown arity never blocks nominal propagation.
const ArityUnknown = -1

// =============================================================================
// Symbol Kinds
// =============================================================================

// SymbolKind identifies the kind of a parsed definition.
type SymbolKind int

const (
	// SymbolKindUnknown is the zero value; never emitted by the parser.
	SymbolKindUnknown SymbolKind = iota

	// SymbolKindClass is a class definition.
	SymbolKindClass

	// SymbolKindFunction is a module-level or nested function definition.
	SymbolKindFunction

	// SymbolKindMethod is a function defined directly in a class body.
	SymbolKindMethod
)

// symbolKindNames maps kinds to their wire names.
var symbolKindNames = map[SymbolKind]string{
	SymbolKindUnknown:  "unknown",
	SymbolKindClass:    "class",
	SymbolKindFunction: "function",
	SymbolKindMethod:   "method",
}

// String returns the lowercase name of the kind.
func (k SymbolKind) String() string {
	if name, ok := symbolKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("SymbolKind(%d)", int(k))
}

// =============================================================================
// Locations
// =============================================================================

// Location identifies a source range. Lines are 1-indexed, columns
// 0-indexed, matching tree-sitter points shifted to editor convention.
type Location struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
	StartCol  int `json:"start_col"`
	EndCol    int `json:"end_col"`
}

// =============================================================================
// Symbols
// =============================================================================

// Symbol is a single definition extracted from a source file.
//
// Symbols form a tree: classes hold their methods and nested classes as
// Children, functions hold their nested definitions. Names are local to
// the enclosing scope; fully-qualified names are assembled downstream
// from the module FQN plus the child path.
type Symbol struct {
	// Name is the local identifier of the definition.
	Name string `json:"name"`

	// Kind is the definition kind.
	Kind SymbolKind `json:"kind"`

	// Location is the source range of the whole definition.
	Location Location `json:"location"`

	// Exported reports whether the name is public by Python convention
	// (no leading underscore; dunder names count as public).
	Exported bool `json:"exported"`

	// Arity is the parameter count excluding an implicit leading
	// self/cls for methods, or ArityUnknown when variadic.
	// Zero for classes.
	Arity int `json:"arity"`

	// IsAsync is true for async def.
	IsAsync bool `json:"is_async,omitempty"`

	// Decorators holds raw decorator names in source order
	// (identifier or dotted attribute text, call parens stripped).
	Decorators []string `json:"decorators,omitempty"`

	// Bases holds raw base-class expressions for classes,
	// as written (identifier or dotted attribute text).
	Bases []string `json:"bases,omitempty"`

	// Children holds methods and nested definitions.
	Children []*Symbol `json:"children,omitempty"`
}

// Validate checks structural invariants on the symbol tree.
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty symbol name", ErrInvalidSymbol)
	}
	if s.Kind == SymbolKindUnknown {
		return fmt.Errorf("%w: unknown kind for %q", ErrInvalidSymbol, s.Name)
	}
	if s.Location.StartLine < 1 {
		return fmt.Errorf("%w: non-positive start line for %q", ErrInvalidSymbol, s.Name)
	}
	for _, child := range s.Children {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Imports
// =============================================================================

// ImportedName is one name bound by a from-import.
type ImportedName struct {
	// Name is the imported identifier (or dotted name).
	Name string `json:"name"`

	// Alias is the local binding when "as" is used, otherwise empty.
	Alias string `json:"alias,omitempty"`
}

// Local returns the name the import binds in the importing scope.
func (n ImportedName) Local() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

// Import is a single import statement.
//
// For "import a.b as c": Module="a.b", Alias="c", no Names.
// For "from .x import y as z": Module="x", Level=1, Names=[{y,z}].
// For "from .. import m": Module="", Level=2, Names=[{m,""}].
type Import struct {
	// Module is the dotted module path after any leading dots.
	// Empty for bare relative imports like "from . import x".
	Module string `json:"module"`

	// Alias is the local binding for plain imports with "as".
	Alias string `json:"alias,omitempty"`

	// Level counts leading dots: 0 for absolute imports, 1 for the
	// current package, each additional level one package further up.
	Level int `json:"level"`

	// Names lists the bound names for from-imports; nil for plain
	// imports.
	Names []ImportedName `json:"names,omitempty"`

	// IsWildcard is true for "from m import *".
	IsWildcard bool `json:"is_wildcard,omitempty"`

	// Scope is the dotted local scope containing the import, empty
	// for module level. Function-scope imports resolve names only
	// within that function's extraction pass.
	Scope string `json:"scope,omitempty"`

	// Line is the 1-indexed source line of the statement.
	Line int `json:"line"`
}

// =============================================================================
// References
// =============================================================================

// RefKind classifies a raw usage reference.
type RefKind int

const (
	// RefCall is an invocation: f(...), Cls(...), obj.m(...).
	RefCall RefKind = iota

	// RefValue is a callable reference in value position: a bare name
	// passed as a call argument or used as a default parameter value,
	// including names nested in container literals at those positions.
	RefValue

	// RefDecorator is a decorator applied to a definition, or a
	// reference passed as a decorator argument.
	RefDecorator

	// RefException is a type referenced by raise or except.
	RefException

	// RefIsinstance is a type referenced by isinstance or issubclass.
	RefIsinstance

	// RefProperty is an accessor passed to a property(...) construction
	// assigned to a class attribute.
	RefProperty

	// RefReturnEscape is an inner definition returned by its enclosing
	// function.
	RefReturnEscape

	// RefAlias is an assignment binding one name to another.
	// Module-level aliases become alias nodes; function-scope aliases
	// participate only in local resolution.
	RefAlias

	// RefFieldType records a learned attribute type from
	// "self.x = ClassName(...)" inside a method. Consumed during
	// attribute resolution, never edge-producing on its own.
	RefFieldType

	// RefDictValue is a callable reference in value position of a dict
	// literal bound by an assignment. Consumed only by the dispatch
	// table plugin.
	RefDictValue

	// RefString is a string literal inside a container argument of a
	// call. Consumed only by the registry plugin, which may resolve
	// dotted-name strings to symbols.
	RefString
)

// refKindNames maps reference kinds to wire names.
var refKindNames = map[RefKind]string{
	RefCall:         "call",
	RefValue:        "value",
	RefDecorator:    "decorator",
	RefException:    "exception",
	RefIsinstance:   "isinstance",
	RefProperty:     "property",
	RefReturnEscape: "return-escape",
	RefAlias:        "alias",
	RefFieldType:    "field-type",
	RefDictValue:    "dict-value",
	RefString:       "string",
}

// String returns the lowercase name of the reference kind.
func (k RefKind) String() string {
	if name, ok := refKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("RefKind(%d)", int(k))
}

// Reference is one raw usage occurrence inside a file.
//
// Target is the dotted name exactly as written ("helper", "obj.m",
// "pkg.mod.Cls"); super().m() is normalized to "super.m". Scope is the
// dotted path of the enclosing definition relative to the module, empty
// at module level.
type Reference struct {
	// Kind classifies the reference.
	Kind RefKind `json:"kind"`

	// Scope is the enclosing definition path within the module
	// ("" for module level, "Cls", "Cls.m", "f.inner").
	Scope string `json:"scope"`

	// Name is the bound local name for alias, property, field-type and
	// dict-value references; empty otherwise.
	Name string `json:"name,omitempty"`

	// Target is the referenced dotted name as written.
	Target string `json:"target"`

	// CallName is the callee of the enclosing call for references that
	// occur in argument position; empty elsewhere.
	CallName string `json:"call_name,omitempty"`

	// Line is the 1-indexed source line of the reference.
	Line int `json:"line"`
}

// =============================================================================
// Parse Results
// =============================================================================

// ParseResult is everything extracted from one source file.
type ParseResult struct {
	// FilePath is the path supplied to Parse, used in diagnostics.
	FilePath string `json:"file_path"`

	// Hash is the hex SHA-256 of the file content.
	Hash string `json:"hash"`

	// ParsedAtMilli is the Unix-millisecond parse timestamp.
	ParsedAtMilli int64 `json:"parsed_at_milli"`

	// Symbols holds the top-level definition tree.
	Symbols []*Symbol `json:"symbols"`

	// Imports holds every import statement, including function-scope
	// imports (Scope set).
	Imports []Import `json:"imports"`

	// References holds every raw usage reference in the file.
	References []Reference `json:"references"`

	// DunderAll holds the string elements of a top-level
	// __all__ = [...] assignment; nil when absent.
	DunderAll []string `json:"dunder_all,omitempty"`

	// AllowLines lists the lines carrying a "deadwood: allow" comment,
	// sorted ascending. A definition starting on one of these lines is
	// suppressed from dead-code reporting.
	AllowLines []int `json:"allow_lines,omitempty"`

	// HasSyntaxErrors reports whether tree-sitter flagged ERROR nodes.
	// The result may still contain partial symbols.
	HasSyntaxErrors bool `json:"has_syntax_errors,omitempty"`
}

// Validate checks structural invariants on the parse result.
func (r *ParseResult) Validate() error {
	if r.FilePath == "" {
		return fmt.Errorf("%w: empty file path", ErrInvalidResult)
	}
	for _, sym := range r.Symbols {
		if err := sym.Validate(); err != nil {
			return fmt.Errorf("%s: %w", r.FilePath, err)
		}
	}
	return nil
}

// SymbolCount returns the total number of definitions in the result,
// counted iteratively to stay safe on deep nesting.
func (r *ParseResult) SymbolCount() int {
	count := 0
	stack := make([]*Symbol, 0, len(r.Symbols))
	stack = append(stack, r.Symbols...)
	for len(stack) > 0 {
		sym := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		stack = append(stack, sym.Children...)
	}
	return count
}

// IsExportedName reports whether a Python name is public by convention:
// dunder names are public, any other leading underscore is private.
func IsExportedName(name string) bool {
	if name == "" {
		return false
	}
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return true
	}
	return !strings.HasPrefix(name, "_")
}
