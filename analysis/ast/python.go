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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// AllowMarker is the comment text that suppresses dead-code reporting
// for the definition starting on the same line.
const AllowMarker = "deadwood: allow"

// Parser is the file-level parse contract used by the scanner.
type Parser interface {
	// Parse extracts symbols, imports and references from one file.
	Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error)
}

// PythonParser parses Python source using tree-sitter.
//
// # Description
//
// The parser makes a single pass over the syntax tree and emits three
// streams: the definition tree (Symbol), import statements (Import),
// and raw usage references (Reference). Nothing is resolved here; all
// dotted names are recorded as written.
//
// A file that tree-sitter cannot parse cleanly is a fatal ParseError.
// Partial analysis over a broken syntax tree produces misleading
// liveness results, so the pipeline aborts instead.
//
// Thread Safety: NOT safe for concurrent use. Each worker goroutine
// must construct its own PythonParser.
type PythonParser struct {
	parser          *sitter.Parser
	maxFileSize     int64
	typeAnnotations bool
}

// PythonParserOption configures a PythonParser.
type PythonParserOption func(*PythonParser)

// WithMaxFileSize overrides the maximum accepted file size in bytes.
func WithMaxFileSize(size int64) PythonParserOption {
	return func(p *PythonParser) {
		if size > 0 {
			p.maxFileSize = size
		}
	}
}

// WithTypeAnnotations controls whether names referenced from type
// annotations (parameter types, return types, variable annotations)
// are emitted as value references. Off by default: annotation-only
// usage does not keep a symbol alive unless the gate enables it.
func WithTypeAnnotations(enabled bool) PythonParserOption {
	return func(p *PythonParser) {
		p.typeAnnotations = enabled
	}
}

// NewPythonParser creates a parser with the given options applied.
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{
		parser:      sitter.NewParser(),
		maxFileSize: DefaultMaxFileSize,
	}
	p.parser.SetLanguage(python.GetLanguage())
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts everything the analysis needs from one Python file.
//
// # Description
//
// Validates size and encoding, parses with tree-sitter, then walks the
// tree collecting definitions, imports and references. Syntax errors
// anywhere in the file are fatal and reported as *ParseError with the
// line of the first broken construct.
//
// Inputs:
//   - ctx: cancellation context, checked before and after the parse.
//   - content: raw file bytes.
//   - filePath: path used in diagnostics and the result.
//
// Outputs:
//   - *ParseResult: the extracted streams.
//   - error: *ParseError on any failure.
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	if ctx == nil {
		return nil, NewParseError(filePath, 0, fmt.Errorf("nil context"))
	}
	if err := ctx.Err(); err != nil {
		return nil, NewParseError(filePath, 0, err)
	}

	ctx, span := startParseSpan(ctx, filePath)
	defer span.End()
	start := time.Now()

	result, err := p.parse(ctx, content, filePath)
	if err != nil {
		recordParseMetrics(ctx, time.Since(start), 0, 0, false)
		setParseSpanResult(span, 0, 0, err)
		return nil, err
	}

	recordParseMetrics(ctx, time.Since(start), result.SymbolCount(), len(result.References), true)
	setParseSpanResult(span, result.SymbolCount(), len(result.References), nil)
	return result, nil
}

func (p *PythonParser) parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	if int64(len(content)) > p.maxFileSize {
		return nil, NewParseError(filePath, 0,
			fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, len(content), p.maxFileSize))
	}
	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			"path", filePath,
			"size_bytes", len(content))
	}
	if !utf8.Valid(content) {
		return nil, NewParseError(filePath, 0, ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	tree, err := p.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, NewParseError(filePath, 0, fmt.Errorf("tree-sitter parse: %w", err))
	}
	if tree == nil {
		return nil, NewParseError(filePath, 0, fmt.Errorf("tree-sitter returned nil tree"))
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		line := firstErrorLine(root)
		return nil, NewParseError(filePath, line, fmt.Errorf("syntax error"))
	}

	result := &ParseResult{
		FilePath:      filePath,
		Hash:          hex.EncodeToString(hash[:]),
		ParsedAtMilli: time.Now().UnixMilli(),
	}

	w := &walker{
		content:         content,
		result:          result,
		typeAnnotations: p.typeAnnotations,
	}
	w.walkBlock(root, scopeCtx{}, nil)
	result.AllowLines = collectAllowLines(root, content)

	if err := result.Validate(); err != nil {
		return nil, NewParseError(filePath, 0, err)
	}
	return result, nil
}

// collectAllowLines walks the whole tree once for comment nodes
// carrying the allow marker. A separate pass because tree-sitter
// attaches trailing comments inside whichever construct they follow,
// which the extraction walk does not always descend into.
func collectAllowLines(root *sitter.Node, content []byte) []int {
	var lines []int
	seen := make(map[int]bool)
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Type() == "comment" {
			if strings.Contains(n.Content(content), AllowMarker) {
				line := int(n.StartPoint().Row) + 1
				if !seen[line] {
					seen[line] = true
					lines = append(lines, line)
				}
			}
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if child := n.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
	sort.Ints(lines)
	return lines
}

// firstErrorLine finds the line of the first ERROR or missing node,
// walking iteratively to stay safe on deep trees.
func firstErrorLine(root *sitter.Node) int {
	stack := []*sitter.Node{root}
	best := 0
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !n.HasError() {
			continue
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			line := int(n.StartPoint().Row) + 1
			if best == 0 || line < best {
				best = line
			}
			continue
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if child := n.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
	if best == 0 {
		best = 1
	}
	return best
}

// Compile-time interface check.
var _ Parser = (*PythonParser)(nil)

// =============================================================================
// Tree Walker
// =============================================================================

// scopeCtx tracks the walker's position within the module.
type scopeCtx struct {
	// path is the dotted definition path, "" at module level.
	path string

	// inClass is true directly inside a class body.
	inClass bool

	// funcDepth counts enclosing function definitions.
	funcDepth int
}

// child returns the context for a definition named name.
func (sc scopeCtx) child(name string) string {
	if sc.path == "" {
		return name
	}
	return sc.path + "." + name
}

// walker performs the single extraction pass over a parsed tree.
type walker struct {
	content         []byte
	result          *ParseResult
	typeAnnotations bool
}

func (w *walker) text(n *sitter.Node) string {
	return n.Content(w.content)
}

func (w *walker) line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func (w *walker) location(n *sitter.Node) Location {
	return Location{
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
		StartCol:  int(n.StartPoint().Column),
		EndCol:    int(n.EndPoint().Column),
	}
}

func (w *walker) addRef(ref Reference) {
	if ref.Target == "" {
		return
	}
	w.result.References = append(w.result.References, ref)
}

func (w *walker) addSymbol(sym *Symbol, parent *Symbol) {
	if parent != nil {
		parent.Children = append(parent.Children, sym)
		return
	}
	w.result.Symbols = append(w.result.Symbols, sym)
}

// walkBlock dispatches every named child of a block node.
func (w *walker) walkBlock(block *sitter.Node, sc scopeCtx, parent *Symbol) {
	for i := 0; i < int(block.NamedChildCount()); i++ {
		if child := block.NamedChild(i); child != nil {
			w.walkNode(child, sc, parent)
		}
	}
}

// walkNode is the central dispatcher. Structured constructs are
// extracted explicitly; everything else recurses so that calls nested
// in arbitrary expressions (conditions, comprehensions, f-strings) are
// still found. Bare identifiers outside the recognized positions are
// deliberately not references.
func (w *walker) walkNode(n *sitter.Node, sc scopeCtx, parent *Symbol) {
	switch n.Type() {
	case "import_statement":
		w.processImport(n, sc)
	case "import_from_statement":
		w.processImportFrom(n, sc)
	case "future_import_statement":
		// No binding worth tracking.
	case "class_definition":
		w.processClass(n, sc, parent, nil)
	case "function_definition":
		w.processFunction(n, sc, parent, nil)
	case "decorated_definition":
		w.processDecorated(n, sc, parent)
	case "assignment":
		w.processAssignment(n, sc)
	case "call":
		w.processCall(n, sc)
	case "raise_statement":
		w.processRaise(n, sc)
	case "except_clause":
		w.processExcept(n, sc, parent)
	case "return_statement":
		// Handled by processFunction, which knows the local defs.
		// Reaching one here means a stray top-level return; walk it
		// for nested calls only.
		w.walkChildren(n, sc, parent)
	case "lambda":
		if body := n.ChildByFieldName("body"); body != nil {
			w.walkNode(body, sc, parent)
		}
	default:
		w.walkChildren(n, sc, parent)
	}
}

func (w *walker) walkChildren(n *sitter.Node, sc scopeCtx, parent *Symbol) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child != nil {
			w.walkNode(child, sc, parent)
		}
	}
}

// =============================================================================
// Imports
// =============================================================================

// processImport handles "import a.b" and "import a.b as c".
func (w *walker) processImport(n *sitter.Node, sc scopeCtx) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "dotted_name", "identifier":
			w.result.Imports = append(w.result.Imports, Import{
				Module: w.text(child),
				Scope:  sc.path,
				Line:   w.line(n),
			})
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			w.result.Imports = append(w.result.Imports, Import{
				Module: w.text(name),
				Alias:  w.text(alias),
				Scope:  sc.path,
				Line:   w.line(n),
			})
		}
	}
}

// processImportFrom handles "from x import a, b as c", relative forms
// ("from ..pkg import x") and wildcards ("from m import *").
func (w *walker) processImportFrom(n *sitter.Node, sc scopeCtx) {
	moduleNode := n.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}

	imp := Import{
		Scope: sc.path,
		Line:  w.line(n),
	}

	switch moduleNode.Type() {
	case "relative_import":
		for i := 0; i < int(moduleNode.NamedChildCount()); i++ {
			part := moduleNode.NamedChild(i)
			if part == nil {
				continue
			}
			switch part.Type() {
			case "import_prefix":
				imp.Level = strings.Count(w.text(part), ".")
			case "dotted_name", "identifier":
				imp.Module = w.text(part)
			}
		}
		// "from . import x" yields a bare import_prefix token.
		if imp.Level == 0 {
			imp.Level = strings.Count(w.text(moduleNode), ".")
		}
	default:
		imp.Module = w.text(moduleNode)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil || child.StartByte() == moduleNode.StartByte() {
			continue
		}
		switch child.Type() {
		case "wildcard_import":
			imp.IsWildcard = true
		case "dotted_name", "identifier":
			imp.Names = append(imp.Names, ImportedName{Name: w.text(child)})
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			imp.Names = append(imp.Names, ImportedName{
				Name:  w.text(name),
				Alias: w.text(alias),
			})
		}
	}

	w.result.Imports = append(w.result.Imports, imp)
}

// =============================================================================
// Definitions
// =============================================================================

// processDecorated unwraps decorator nodes, records decorator
// references against the decorated definition, and dispatches the
// inner definition.
func (w *walker) processDecorated(n *sitter.Node, sc scopeCtx, parent *Symbol) {
	var decorators []*sitter.Node
	var definition *sitter.Node

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "decorator":
			decorators = append(decorators, child)
		case "class_definition", "function_definition":
			definition = child
		}
	}
	if definition == nil {
		return
	}

	switch definition.Type() {
	case "class_definition":
		w.processClass(definition, sc, parent, decorators)
	case "function_definition":
		w.processFunction(definition, sc, parent, decorators)
	}
}

// decoratorName extracts the decorator's dotted name, stripping call
// parentheses: "@app.route(...)" yields "app.route".
func (w *walker) decoratorName(dec *sitter.Node) (string, *sitter.Node) {
	for i := 0; i < int(dec.NamedChildCount()); i++ {
		child := dec.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "identifier", "attribute":
			return w.dottedName(child), nil
		case "call":
			fn := child.ChildByFieldName("function")
			if fn == nil {
				return "", nil
			}
			return w.dottedName(fn), child.ChildByFieldName("arguments")
		}
	}
	return "", nil
}

// emitDecorators records decorator references from the decorated
// symbol. The symbol depends on its decorators: a decorator call
// argument that names a callable is a decorator reference as well.
func (w *walker) emitDecorators(decorators []*sitter.Node, symbolPath string, sym *Symbol, sc scopeCtx) {
	for _, dec := range decorators {
		name, args := w.decoratorName(dec)
		if name == "" {
			continue
		}
		sym.Decorators = append(sym.Decorators, name)
		w.addRef(Reference{
			Kind:   RefDecorator,
			Scope:  symbolPath,
			Target: name,
			Line:   w.line(dec),
		})
		if args == nil {
			continue
		}
		for i := 0; i < int(args.NamedChildCount()); i++ {
			arg := args.NamedChild(i)
			if arg == nil {
				continue
			}
			if arg.Type() == "keyword_argument" {
				if v := arg.NamedChild(int(arg.NamedChildCount()) - 1); v != nil {
					arg = v
				}
			}
			switch arg.Type() {
			case "identifier", "attribute":
				w.addRef(Reference{
					Kind:   RefDecorator,
					Scope:  symbolPath,
					Target: w.dottedName(arg),
					Line:   w.line(arg),
				})
			case "call":
				w.processCall(arg, sc)
			}
		}
	}
}

// processClass extracts a class definition and walks its body.
func (w *walker) processClass(n *sitter.Node, sc scopeCtx, parent *Symbol, decorators []*sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	path := sc.child(name)

	sym := &Symbol{
		Name:     name,
		Kind:     SymbolKindClass,
		Location: w.location(n),
		Exported: IsExportedName(name),
	}

	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		w.extractBases(supers, sym, path, sc)
	}
	w.emitDecorators(decorators, path, sym, sc)
	w.addSymbol(sym, parent)

	if body := n.ChildByFieldName("body"); body != nil {
		w.walkBlock(body, scopeCtx{
			path:      path,
			inClass:   true,
			funcDepth: sc.funcDepth,
		}, sym)
	}
}

// extractBases records raw base-class names. Subscripted bases such as
// Protocol[T] contribute their value part; keyword arguments
// (metaclass=...) are skipped.
func (w *walker) extractBases(args *sitter.Node, sym *Symbol, path string, sc scopeCtx) {
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg == nil {
			continue
		}
		switch arg.Type() {
		case "identifier", "attribute":
			if base := w.dottedName(arg); base != "" {
				sym.Bases = append(sym.Bases, base)
			}
		case "subscript":
			if value := arg.ChildByFieldName("value"); value != nil {
				if base := w.dottedName(value); base != "" {
					sym.Bases = append(sym.Bases, base)
				}
			}
		case "keyword_argument":
			// metaclass and class kwargs carry no inheritance.
		case "call":
			w.processCall(arg, sc)
		}
	}
}

// processFunction extracts a def, computes its arity, then walks the
// body in a deeper scope. Returned inner definitions become
// return-escape references.
func (w *walker) processFunction(n *sitter.Node, sc scopeCtx, parent *Symbol, decorators []*sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	path := sc.child(name)

	kind := SymbolKindFunction
	if sc.inClass {
		kind = SymbolKindMethod
	}

	sym := &Symbol{
		Name:     name,
		Kind:     kind,
		Location: w.location(n),
		Exported: IsExportedName(name),
		IsAsync:  isAsyncDef(n),
	}

	params := n.ChildByFieldName("parameters")
	sym.Arity = w.computeArity(params, kind == SymbolKindMethod)

	bodyCtx := scopeCtx{
		path:      path,
		inClass:   false,
		funcDepth: sc.funcDepth + 1,
	}

	if w.typeAnnotations {
		w.emitParamAnnotations(params, bodyCtx)
		if ret := n.ChildByFieldName("return_type"); ret != nil {
			w.emitTypeNames(ret, bodyCtx)
		}
	}
	w.emitDefaultValues(params, bodyCtx)
	w.emitDecorators(decorators, path, sym, sc)
	w.addSymbol(sym, parent)

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}

	localDefs := w.collectLocalDefs(body)
	w.walkFunctionBody(body, bodyCtx, sym, localDefs)
}

// isAsyncDef reports whether the definition starts with "async".
func isAsyncDef(n *sitter.Node) bool {
	first := n.Child(0)
	return first != nil && first.Type() == "async"
}

// collectLocalDefs gathers definition names declared directly in this
// function body (at any block depth, not inside nested definitions),
// so that "return inner" can be recognized as an escape.
func (w *walker) collectLocalDefs(body *sitter.Node) map[string]bool {
	defs := make(map[string]bool)
	stack := []*sitter.Node{body}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child == nil {
				continue
			}
			switch child.Type() {
			case "function_definition", "class_definition":
				if nameNode := child.ChildByFieldName("name"); nameNode != nil {
					defs[w.text(nameNode)] = true
				}
				// Do not descend: inner bodies have their own scope.
			case "decorated_definition":
				stack = append(stack, child)
			case "if_statement", "elif_clause", "else_clause", "try_statement",
				"except_clause", "finally_clause", "while_statement",
				"for_statement", "with_statement", "block", "match_statement",
				"case_clause":
				stack = append(stack, child)
			}
		}
	}
	return defs
}

// walkFunctionBody walks a function body, intercepting return
// statements so escapes of local definitions are recorded. Exception
// handlers are unpacked inline so returns inside them are still seen.
func (w *walker) walkFunctionBody(body *sitter.Node, sc scopeCtx, sym *Symbol, localDefs map[string]bool) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch {
		case n.Type() == "return_statement":
			w.processReturn(n, sc, localDefs)
			return
		case n.Type() == "except_clause":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child == nil {
					continue
				}
				if child.Type() == "block" {
					walk(child)
				} else {
					w.emitExceptType(child, sc)
				}
			}
			return
		case isScopeBoundary(n.Type()):
			w.walkNode(n, sc, sym)
			return
		}
		if handled := w.dispatchStructured(n, sc, sym); handled {
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child != nil {
				walk(child)
			}
		}
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		if child := body.NamedChild(i); child != nil {
			walk(child)
		}
	}
}

// isScopeBoundary reports node types that open a new definition scope.
func isScopeBoundary(nodeType string) bool {
	switch nodeType {
	case "function_definition", "class_definition", "decorated_definition":
		return true
	}
	return false
}

// dispatchStructured runs the explicit extractors for structured
// constructs, returning true when the node was consumed.
func (w *walker) dispatchStructured(n *sitter.Node, sc scopeCtx, parent *Symbol) bool {
	switch n.Type() {
	case "import_statement":
		w.processImport(n, sc)
	case "import_from_statement":
		w.processImportFrom(n, sc)
	case "assignment":
		w.processAssignment(n, sc)
	case "call":
		w.processCall(n, sc)
	case "raise_statement":
		w.processRaise(n, sc)
	case "except_clause":
		w.processExcept(n, sc, parent)
	case "lambda":
		if body := n.ChildByFieldName("body"); body != nil {
			w.walkNode(body, sc, parent)
		}
	default:
		return false
	}
	return true
}

// processReturn emits return-escape references for returned local
// definitions and walks any other returned expression for calls.
func (w *walker) processReturn(n *sitter.Node, sc scopeCtx, localDefs map[string]bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		w.emitReturnValue(child, sc, localDefs)
	}
}

func (w *walker) emitReturnValue(n *sitter.Node, sc scopeCtx, localDefs map[string]bool) {
	switch n.Type() {
	case "identifier":
		name := w.text(n)
		if localDefs[name] {
			w.addRef(Reference{
				Kind:   RefReturnEscape,
				Scope:  sc.path,
				Target: name,
				Line:   w.line(n),
			})
		}
	case "expression_list", "tuple", "list":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child != nil {
				w.emitReturnValue(child, sc, localDefs)
			}
		}
	case "call":
		w.processCall(n, sc)
	default:
		w.walkChildren(n, sc, nil)
	}
}

// computeArity counts declared parameters, excluding a leading
// self/cls on methods. Variadic signatures are ArityUnknown.
func (w *walker) computeArity(params *sitter.Node, isMethod bool) int {
	if params == nil {
		return 0
	}
	count := 0
	first := ""
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p == nil {
			continue
		}
		switch p.Type() {
		case "list_splat_pattern", "dictionary_splat_pattern":
			return ArityUnknown
		case "identifier":
			if count == 0 {
				first = w.text(p)
			}
			count++
		case "typed_parameter", "default_parameter", "typed_default_parameter", "tuple_pattern":
			if count == 0 {
				first = w.paramName(p)
			}
			count++
		case "keyword_separator", "positional_separator":
			// Bare * and / markers declare no parameter.
		}
	}
	if isMethod && count > 0 && (first == "self" || first == "cls") {
		count--
	}
	return count
}

// paramName extracts the identifier of a typed or defaulted parameter.
func (w *walker) paramName(p *sitter.Node) string {
	if name := p.ChildByFieldName("name"); name != nil {
		return w.text(name)
	}
	for i := 0; i < int(p.NamedChildCount()); i++ {
		child := p.NamedChild(i)
		if child != nil && child.Type() == "identifier" {
			return w.text(child)
		}
	}
	return ""
}

// emitDefaultValues records callable references used as default
// parameter values, a recognized value-flow position.
func (w *walker) emitDefaultValues(params *sitter.Node, sc scopeCtx) {
	if params == nil {
		return
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p == nil {
			continue
		}
		if p.Type() != "default_parameter" && p.Type() != "typed_default_parameter" {
			continue
		}
		value := p.ChildByFieldName("value")
		if value == nil {
			continue
		}
		w.emitArgumentValue(value, sc, "", false)
	}
}

// emitParamAnnotations records annotation type names for each typed
// parameter when the type-annotation gate is enabled.
func (w *walker) emitParamAnnotations(params *sitter.Node, sc scopeCtx) {
	if params == nil {
		return
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p == nil {
			continue
		}
		if t := p.ChildByFieldName("type"); t != nil {
			w.emitTypeNames(t, sc)
		}
	}
}

// emitTypeNames walks a type expression and emits a value reference
// for each named type, including dotted names, generic parameters and
// string forward references.
func (w *walker) emitTypeNames(n *sitter.Node, sc scopeCtx) {
	switch n.Type() {
	case "identifier":
		w.addRef(Reference{
			Kind:   RefValue,
			Scope:  sc.path,
			Target: w.text(n),
			Line:   w.line(n),
		})
	case "attribute":
		w.addRef(Reference{
			Kind:   RefValue,
			Scope:  sc.path,
			Target: w.dottedName(n),
			Line:   w.line(n),
		})
	case "string":
		if content, ok := w.stringContent(n); ok && isDottedIdentifier(content) {
			w.addRef(Reference{
				Kind:   RefValue,
				Scope:  sc.path,
				Target: content,
				Line:   w.line(n),
			})
		}
	default:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child != nil {
				w.emitTypeNames(child, sc)
			}
		}
	}
}

// =============================================================================
// Assignments
// =============================================================================

// processAssignment classifies an assignment by scope and shape:
// __all__ lists, module aliases, dispatch tables, class attributes
// (property constructions), local aliases and learned field types.
func (w *walker) processAssignment(n *sitter.Node, sc scopeCtx) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")

	if w.typeAnnotations {
		if t := n.ChildByFieldName("type"); t != nil {
			w.emitTypeNames(t, sc)
		}
	}
	if right == nil || left == nil {
		return
	}

	moduleLevel := sc.path == "" && sc.funcDepth == 0

	// self.field = Cls(...) learns an attribute type for resolution.
	if left.Type() == "attribute" && sc.funcDepth > 0 {
		w.processSelfAssignment(left, right, sc)
		w.walkValueSide(right, sc)
		return
	}

	if left.Type() != "identifier" {
		w.walkValueSide(right, sc)
		return
	}
	leftName := w.text(left)

	if moduleLevel && leftName == "__all__" {
		w.processDunderAll(right)
		return
	}

	switch right.Type() {
	case "identifier", "attribute":
		target := w.dottedName(right)
		if target == "" {
			return
		}
		if moduleLevel || sc.funcDepth > 0 {
			w.addRef(Reference{
				Kind:   RefAlias,
				Scope:  sc.path,
				Name:   leftName,
				Target: target,
				Line:   w.line(n),
			})
		}
	case "dictionary", "list", "tuple", "set":
		if moduleLevel {
			w.processContainerTable(right, leftName, sc)
		} else {
			w.walkValueSide(right, sc)
		}
	case "call":
		if sc.inClass {
			w.processClassAttrCall(right, leftName, sc)
			return
		}
		w.processCall(right, sc)
	default:
		w.walkValueSide(right, sc)
	}
}

// processSelfAssignment records "self.x = Cls(...)" as a learned field
// type keyed by the attribute name.
func (w *walker) processSelfAssignment(left, right *sitter.Node, sc scopeCtx) {
	obj := left.ChildByFieldName("object")
	attr := left.ChildByFieldName("attribute")
	if obj == nil || attr == nil {
		return
	}
	if obj.Type() != "identifier" || w.text(obj) != "self" {
		return
	}
	if right.Type() != "call" {
		return
	}
	fn := right.ChildByFieldName("function")
	if fn == nil {
		return
	}
	target := w.dottedName(fn)
	if target == "" {
		return
	}
	w.addRef(Reference{
		Kind:   RefFieldType,
		Scope:  sc.path,
		Name:   w.text(attr),
		Target: target,
		Line:   w.line(left),
	})
}

// processDunderAll captures the string elements of __all__.
func (w *walker) processDunderAll(right *sitter.Node) {
	if right.Type() != "list" && right.Type() != "tuple" {
		return
	}
	all := make([]string, 0, right.NamedChildCount())
	for i := 0; i < int(right.NamedChildCount()); i++ {
		child := right.NamedChild(i)
		if child == nil || child.Type() != "string" {
			continue
		}
		if content, ok := w.stringContent(child); ok && content != "" {
			all = append(all, content)
		}
	}
	w.result.DunderAll = all
}

// processContainerTable records the callable values of a module-level
// container assignment. These become edges only when the dispatch
// table plugin is enabled; static analysis cannot see through dynamic
// lookup, so they stay out of the core value-flow stream.
func (w *walker) processContainerTable(container *sitter.Node, name string, sc scopeCtx) {
	for i := 0; i < int(container.NamedChildCount()); i++ {
		child := container.NamedChild(i)
		if child == nil {
			continue
		}
		value := child
		if child.Type() == "pair" {
			value = child.ChildByFieldName("value")
			if value == nil {
				continue
			}
		}
		switch value.Type() {
		case "identifier", "attribute":
			if target := w.dottedName(value); target != "" {
				w.addRef(Reference{
					Kind:   RefDictValue,
					Scope:  sc.path,
					Name:   name,
					Target: target,
					Line:   w.line(value),
				})
			}
		case "call":
			w.processCall(value, sc)
		case "dictionary", "list", "tuple", "set":
			w.processContainerTable(value, name, sc)
		}
	}
}

// processClassAttrCall handles a call assigned to a class attribute.
// property(...) constructions yield property references to their
// accessors; any other call is extracted normally, which covers
// descriptor constructions since the descriptor class is called.
func (w *walker) processClassAttrCall(call *sitter.Node, attrName string, sc scopeCtx) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return
	}
	callee := w.dottedName(fn)
	if callee != "property" {
		w.processCall(call, sc)
		return
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg == nil {
			continue
		}
		if arg.Type() == "keyword_argument" {
			if v := arg.NamedChild(int(arg.NamedChildCount()) - 1); v != nil {
				arg = v
			}
		}
		if arg.Type() != "identifier" && arg.Type() != "attribute" {
			continue
		}
		if target := w.dottedName(arg); target != "" {
			w.addRef(Reference{
				Kind:   RefProperty,
				Scope:  sc.path,
				Name:   attrName,
				Target: target,
				Line:   w.line(arg),
			})
		}
	}
}

// walkValueSide walks an arbitrary right-hand side for nested calls
// without treating bare names as references.
func (w *walker) walkValueSide(n *sitter.Node, sc scopeCtx) {
	w.walkNode(n, sc, nil)
}

// =============================================================================
// Calls and Arguments
// =============================================================================

// processCall emits the call reference and walks arguments for value
// references, registry strings and nested calls. isinstance and
// issubclass are intercepted so their type arguments become isinstance
// references instead of opaque builtin calls.
func (w *walker) processCall(n *sitter.Node, sc scopeCtx) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")

	callee := ""
	if fn != nil {
		switch fn.Type() {
		case "identifier", "attribute":
			callee = w.dottedName(fn)
		case "call":
			// curried call: extract the inner call, outer stays opaque
			w.processCall(fn, sc)
		default:
			w.walkNode(fn, sc, nil)
		}
	}

	if callee == "isinstance" || callee == "issubclass" {
		w.processTypeCheck(args, sc)
		return
	}

	if callee != "" {
		w.addRef(Reference{
			Kind:   RefCall,
			Scope:  sc.path,
			Target: callee,
			Line:   w.line(n),
		})
	}
	if args != nil {
		w.processArguments(args, sc, callee)
	}
}

// processTypeCheck extracts the type argument of isinstance/issubclass,
// including tuple forms, and still walks the value argument for calls.
func (w *walker) processTypeCheck(args *sitter.Node, sc scopeCtx) {
	if args == nil {
		return
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg == nil {
			continue
		}
		if i == 0 {
			// The checked value: only nested calls matter.
			w.walkNode(arg, sc, nil)
			continue
		}
		w.emitTypeCheckArg(arg, sc)
	}
}

func (w *walker) emitTypeCheckArg(arg *sitter.Node, sc scopeCtx) {
	switch arg.Type() {
	case "identifier", "attribute":
		if target := w.dottedName(arg); target != "" {
			w.addRef(Reference{
				Kind:   RefIsinstance,
				Scope:  sc.path,
				Target: target,
				Line:   w.line(arg),
			})
		}
	case "tuple":
		for i := 0; i < int(arg.NamedChildCount()); i++ {
			if child := arg.NamedChild(i); child != nil {
				w.emitTypeCheckArg(child, sc)
			}
		}
	}
}

// processArguments walks a call argument list.
func (w *walker) processArguments(args *sitter.Node, sc scopeCtx, callee string) {
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg == nil {
			continue
		}
		w.emitArgumentValue(arg, sc, callee, false)
	}
}

// emitArgumentValue classifies one argument expression. Bare names are
// value references, container literals are recursed, strings inside
// the argument list are recorded for the registry plugin, and nested
// calls are extracted in full.
func (w *walker) emitArgumentValue(arg *sitter.Node, sc scopeCtx, callee string, inContainer bool) {
	switch arg.Type() {
	case "identifier", "attribute":
		if target := w.dottedName(arg); target != "" {
			w.addRef(Reference{
				Kind:     RefValue,
				Scope:    sc.path,
				Target:   target,
				CallName: callee,
				Line:     w.line(arg),
			})
		}
	case "keyword_argument":
		if v := arg.NamedChild(int(arg.NamedChildCount()) - 1); v != nil {
			w.emitArgumentValue(v, sc, callee, inContainer)
		}
	case "list_splat", "dictionary_splat":
		for i := 0; i < int(arg.NamedChildCount()); i++ {
			if child := arg.NamedChild(i); child != nil {
				w.emitArgumentValue(child, sc, callee, inContainer)
			}
		}
	case "list", "tuple", "set":
		for i := 0; i < int(arg.NamedChildCount()); i++ {
			if child := arg.NamedChild(i); child != nil {
				w.emitArgumentValue(child, sc, callee, true)
			}
		}
	case "dictionary":
		for i := 0; i < int(arg.NamedChildCount()); i++ {
			pair := arg.NamedChild(i)
			if pair == nil {
				continue
			}
			if pair.Type() != "pair" {
				w.emitArgumentValue(pair, sc, callee, true)
				continue
			}
			if key := pair.ChildByFieldName("key"); key != nil {
				w.emitArgumentValue(key, sc, callee, true)
			}
			if value := pair.ChildByFieldName("value"); value != nil {
				w.emitArgumentValue(value, sc, callee, true)
			}
		}
	case "string":
		// Only dotted strings in named calls can name a symbol; plain
		// string arguments are data, not references.
		if callee == "" {
			return
		}
		if content, ok := w.stringContent(arg); ok &&
			strings.Contains(content, ".") && isDottedIdentifier(content) {
			w.addRef(Reference{
				Kind:     RefString,
				Scope:    sc.path,
				Target:   content,
				CallName: callee,
				Line:     w.line(arg),
			})
		}
	case "call":
		w.processCall(arg, sc)
	case "lambda":
		if body := arg.ChildByFieldName("body"); body != nil {
			w.walkNode(body, sc, nil)
		}
	default:
		// Arbitrary expressions may still contain calls.
		w.walkNode(arg, sc, nil)
	}
}

// =============================================================================
// Exceptions
// =============================================================================

// processRaise emits an exception reference for the raised type. When
// the exception is constructed inline, the constructor arguments are
// walked but the construction itself stays an exception reference,
// not a call.
func (w *walker) processRaise(n *sitter.Node, sc scopeCtx) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "identifier", "attribute":
			if target := w.dottedName(child); target != "" {
				w.addRef(Reference{
					Kind:   RefException,
					Scope:  sc.path,
					Target: target,
					Line:   w.line(child),
				})
			}
			// Only the first expression is the raised value; a
			// trailing name belongs to "from".
			return
		case "call":
			fn := child.ChildByFieldName("function")
			if fn != nil {
				if target := w.dottedName(fn); target != "" {
					w.addRef(Reference{
						Kind:   RefException,
						Scope:  sc.path,
						Target: target,
						Line:   w.line(child),
					})
				}
			}
			if args := child.ChildByFieldName("arguments"); args != nil {
				w.processArguments(args, sc, "")
			}
			return
		}
	}
}

// processExcept emits exception references for handled types, then
// walks the handler block.
func (w *walker) processExcept(n *sitter.Node, sc scopeCtx, parent *Symbol) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "block":
			w.walkBlock(child, sc, parent)
		default:
			w.emitExceptType(child, sc)
		}
	}
}

func (w *walker) emitExceptType(n *sitter.Node, sc scopeCtx) {
	switch n.Type() {
	case "identifier", "attribute":
		if target := w.dottedName(n); target != "" {
			w.addRef(Reference{
				Kind:   RefException,
				Scope:  sc.path,
				Target: target,
				Line:   w.line(n),
			})
		}
	case "tuple":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child != nil {
				w.emitExceptType(child, sc)
			}
		}
	case "as_pattern":
		if first := n.NamedChild(0); first != nil {
			w.emitExceptType(first, sc)
		}
	}
}

// =============================================================================
// Name Helpers
// =============================================================================

// dottedName normalizes an identifier or attribute chain to its dotted
// text. super().m() chains normalize to "super.m". Chains rooted in
// anything else (subscripts, call results) return "".
func (w *walker) dottedName(n *sitter.Node) string {
	switch n.Type() {
	case "identifier":
		return w.text(n)
	case "attribute":
		obj := n.ChildByFieldName("object")
		attr := n.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return ""
		}
		if obj.Type() == "call" {
			fn := obj.ChildByFieldName("function")
			if fn != nil && fn.Type() == "identifier" && w.text(fn) == "super" {
				return "super." + w.text(attr)
			}
			return ""
		}
		base := w.dottedName(obj)
		if base == "" {
			return ""
		}
		return base + "." + w.text(attr)
	}
	return ""
}

// stringContent extracts the literal text of a plain string node.
// Returns ok=false for non-string nodes; f-strings yield only their
// literal fragments and are rejected via the interpolation check.
func (w *walker) stringContent(n *sitter.Node) (string, bool) {
	if n.Type() != "string" {
		return "", false
	}
	var sb strings.Builder
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "string_content":
			sb.WriteString(w.text(child))
		case "interpolation":
			return "", false
		}
	}
	return sb.String(), true
}

// isDottedIdentifier reports whether s looks like a Python dotted name,
// the only string shape the registry plugin and forward references can
// resolve.
func isDottedIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
			isDigit := r >= '0' && r <= '9'
			if i == 0 && !isLetter {
				return false
			}
			if !isLetter && !isDigit {
				return false
			}
		}
	}
	return true
}
