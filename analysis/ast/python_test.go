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
	"errors"
	"testing"
	"time"
)

// Test source code samples (embedded, no file I/O).
const (
	testPyEmpty = ``

	testPyFunctions = `def helper(a, b):
    return a + b


def _private(x):
    return x


async def fetch(url, timeout=30):
    pass


def variadic(*args, **kwargs):
    pass
`

	testPyClass = `class Animal(Base, abc.ABC):
    def __init__(self, name):
        self.name = name

    def speak(self, volume):
        pass

    def _internal(self):
        pass


class _Hidden:
    pass
`

	testPyImports = `import os
import json as j
from collections import OrderedDict, defaultdict as dd
from ..models import User
from . import sibling
from os.path import *


def scoped():
    from app.lazy import loader
    return loader
`

	testPyDunderAll = `__all__ = ["visible", "Widget"]


def visible():
    pass


def hidden():
    pass


class Widget:
    pass
`

	testPyCalls = `def caller():
    helper()
    obj.method()
    pkg.mod.build()


class Child(Parent):
    def validate(self):
        super().validate()
`

	testPyValueFlow = `def run(callback=fallback):
    schedule(worker)
    register([handler_a, handler_b])
    configure(handlers={"x": handle_x})
`

	testPyDecorators = `@app.route("/health")
def health():
    pass


@retry(on_error=notify)
def flaky():
    pass
`

	testPyExceptions = `def risky():
    try:
        step()
    except (IOError, custom.AppError) as exc:
        raise WrappedError("failed")
    except ValueError:
        raise
`

	testPyIsinstance = `def check(x):
    if isinstance(x, (Circle, shapes.Square)):
        return True
    return issubclass(type(x), Shape)
`

	testPyProperty = `class Account:
    def _get_balance(self):
        return self._raw

    def _set_balance(self, v):
        self._raw = v

    balance = property(_get_balance, _set_balance)
`

	testPyReturnEscape = `def make_counter():
    count = 0

    def increment():
        return count

    return increment
`

	testPyAliases = `new_api = legacy_api


def wrapper():
    fn = target_fn
    return fn()
`

	testPyDispatch = `HANDLERS = {
    "create": handle_create,
    "delete": handle_delete,
}

PIPELINE = [stage_one, stage_two]
`

	testPyRegistry = `REGISTRY = Registry(["app.handlers.process", "plain"])
register_plugin("app.plugins.audit")
`

	testPyFieldTypes = `class Service:
    def __init__(self, cfg):
        self.repo = Repository(cfg)
        self.name = "svc"

    def handle(self):
        self.repo.save()
`

	testPyAnnotations = `def transform(item: Widget, factory: "models.Factory") -> Result:
    pass
`

	testPyAllowMarkers = `def keep_me():  # deadwood: allow
    pass


def drop_me():
    pass


class Legacy:  # deadwood: allow
    def method(self):
        pass
`

	testPySyntaxError = `def broken(:
    pass
`

	// Invalid UTF-8 bytes.
	testPyInvalidUTF8 = "\xff\xfe"
)

func TestPythonParser_Parse_EmptyFile(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyEmpty), "empty.py")

	if err != nil {
		t.Fatalf("expected no error for empty file, got: %v", err)
	}
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result.FilePath != "empty.py" {
		t.Errorf("expected FilePath 'empty.py', got %q", result.FilePath)
	}
	if result.Hash == "" {
		t.Error("expected non-empty hash")
	}
	if len(result.Symbols) != 0 {
		t.Errorf("expected no symbols, got %d", len(result.Symbols))
	}
}

func TestPythonParser_Parse_Functions(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyFunctions), "funcs.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	funcs := filterByKind(result.Symbols, SymbolKindFunction)
	if len(funcs) != 4 {
		t.Fatalf("expected 4 functions, got %d", len(funcs))
	}

	helper := findSymbol(result.Symbols, "helper")
	if helper == nil {
		t.Fatal("expected to find 'helper'")
	}
	if helper.Arity != 2 {
		t.Errorf("expected helper arity 2, got %d", helper.Arity)
	}
	if !helper.Exported {
		t.Error("helper should be exported")
	}
	if helper.Location.StartLine != 1 {
		t.Errorf("expected helper at line 1, got %d", helper.Location.StartLine)
	}

	private := findSymbol(result.Symbols, "_private")
	if private == nil {
		t.Fatal("expected to find '_private'")
	}
	if private.Exported {
		t.Error("_private should not be exported")
	}

	fetch := findSymbol(result.Symbols, "fetch")
	if fetch == nil {
		t.Fatal("expected to find 'fetch'")
	}
	if !fetch.IsAsync {
		t.Error("fetch should be async")
	}
	if fetch.Arity != 2 {
		t.Errorf("expected fetch arity 2, got %d", fetch.Arity)
	}

	variadic := findSymbol(result.Symbols, "variadic")
	if variadic == nil {
		t.Fatal("expected to find 'variadic'")
	}
	if variadic.Arity != ArityUnknown {
		t.Errorf("expected variadic arity unknown, got %d", variadic.Arity)
	}
}

func TestPythonParser_Parse_ClassWithMethods(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyClass), "animals.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	animal := findSymbol(result.Symbols, "Animal")
	if animal == nil {
		t.Fatal("expected to find class 'Animal'")
	}
	if animal.Kind != SymbolKindClass {
		t.Errorf("expected class kind, got %s", animal.Kind)
	}
	if len(animal.Bases) != 2 || animal.Bases[0] != "Base" || animal.Bases[1] != "abc.ABC" {
		t.Errorf("expected bases [Base abc.ABC], got %v", animal.Bases)
	}

	methods := filterByKind(animal.Children, SymbolKindMethod)
	if len(methods) != 3 {
		t.Fatalf("expected 3 methods, got %d", len(methods))
	}

	speak := findSymbol(animal.Children, "speak")
	if speak == nil {
		t.Fatal("expected to find method 'speak'")
	}
	if speak.Arity != 1 {
		t.Errorf("expected speak arity 1 (self excluded), got %d", speak.Arity)
	}

	init := findSymbol(animal.Children, "__init__")
	if init == nil {
		t.Fatal("expected to find '__init__'")
	}
	if !init.Exported {
		t.Error("dunder method should count as exported")
	}

	hidden := findSymbol(result.Symbols, "_Hidden")
	if hidden == nil || hidden.Exported {
		t.Error("_Hidden should exist and be private")
	}
}

func TestPythonParser_Parse_Imports(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyImports), "imports.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if len(result.Imports) != 7 {
		t.Fatalf("expected 7 imports, got %d: %+v", len(result.Imports), result.Imports)
	}

	osImp := result.Imports[0]
	if osImp.Module != "os" || osImp.Level != 0 || osImp.Alias != "" {
		t.Errorf("unexpected plain import: %+v", osImp)
	}

	jsonImp := result.Imports[1]
	if jsonImp.Module != "json" || jsonImp.Alias != "j" {
		t.Errorf("unexpected aliased import: %+v", jsonImp)
	}

	collections := result.Imports[2]
	if collections.Module != "collections" || len(collections.Names) != 2 {
		t.Fatalf("unexpected from-import: %+v", collections)
	}
	if collections.Names[1].Name != "defaultdict" || collections.Names[1].Alias != "dd" {
		t.Errorf("unexpected aliased name: %+v", collections.Names[1])
	}
	if collections.Names[1].Local() != "dd" {
		t.Errorf("expected local binding 'dd', got %q", collections.Names[1].Local())
	}

	relative := result.Imports[3]
	if relative.Level != 2 || relative.Module != "models" {
		t.Errorf("expected level 2 import of 'models', got %+v", relative)
	}
	if len(relative.Names) != 1 || relative.Names[0].Name != "User" {
		t.Errorf("unexpected relative names: %+v", relative.Names)
	}

	bare := result.Imports[4]
	if bare.Level != 1 || bare.Module != "" {
		t.Errorf("expected bare relative import, got %+v", bare)
	}
	if len(bare.Names) != 1 || bare.Names[0].Name != "sibling" {
		t.Errorf("unexpected bare relative names: %+v", bare.Names)
	}

	wildcard := result.Imports[5]
	if !wildcard.IsWildcard || wildcard.Module != "os.path" {
		t.Errorf("expected wildcard import of os.path, got %+v", wildcard)
	}

	scoped := result.Imports[6]
	if scoped.Scope != "scoped" {
		t.Errorf("expected function-scope import in 'scoped', got %q", scoped.Scope)
	}
	if scoped.Module != "app.lazy" || len(scoped.Names) != 1 {
		t.Errorf("unexpected scoped import: %+v", scoped)
	}
}

func TestPythonParser_Parse_DunderAll(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyDunderAll), "api.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if len(result.DunderAll) != 2 {
		t.Fatalf("expected 2 __all__ entries, got %v", result.DunderAll)
	}
	if result.DunderAll[0] != "visible" || result.DunderAll[1] != "Widget" {
		t.Errorf("unexpected __all__ contents: %v", result.DunderAll)
	}
}

func TestPythonParser_Parse_CallReferences(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyCalls), "calls.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	calls := refsOfKind(result.References, RefCall)
	if !hasRef(calls, "caller", "helper") {
		t.Error("expected call reference caller -> helper")
	}
	if !hasRef(calls, "caller", "obj.method") {
		t.Error("expected call reference caller -> obj.method")
	}
	if !hasRef(calls, "caller", "pkg.mod.build") {
		t.Error("expected call reference caller -> pkg.mod.build")
	}
	if !hasRef(calls, "Child.validate", "super.validate") {
		t.Error("expected super call normalized to super.validate")
	}
}

func TestPythonParser_Parse_ValueReferences(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyValueFlow), "values.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	values := refsOfKind(result.References, RefValue)
	if !hasRef(values, "run", "fallback") {
		t.Error("expected default-value reference to fallback")
	}
	if !hasRef(values, "run", "worker") {
		t.Error("expected argument reference to worker")
	}
	if !hasRef(values, "run", "handler_a") || !hasRef(values, "run", "handler_b") {
		t.Error("expected references to names inside list argument")
	}
	if !hasRef(values, "run", "handle_x") {
		t.Error("expected reference to name inside dict argument")
	}

	for _, ref := range values {
		if ref.Target == "worker" && ref.CallName != "schedule" {
			t.Errorf("expected worker reference to carry call name 'schedule', got %q", ref.CallName)
		}
	}
}

func TestPythonParser_Parse_Decorators(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyDecorators), "decorators.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	health := findSymbol(result.Symbols, "health")
	if health == nil {
		t.Fatal("expected to find 'health'")
	}
	if len(health.Decorators) != 1 || health.Decorators[0] != "app.route" {
		t.Errorf("expected decorator app.route, got %v", health.Decorators)
	}

	decs := refsOfKind(result.References, RefDecorator)
	if !hasRef(decs, "health", "app.route") {
		t.Error("expected decorator reference health -> app.route")
	}
	if !hasRef(decs, "flaky", "retry") {
		t.Error("expected decorator reference flaky -> retry")
	}
	if !hasRef(decs, "flaky", "notify") {
		t.Error("expected decorator-argument reference flaky -> notify")
	}
}

func TestPythonParser_Parse_ExceptionReferences(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyExceptions), "exceptions.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	excs := refsOfKind(result.References, RefException)
	if !hasRef(excs, "risky", "IOError") {
		t.Error("expected except reference to IOError")
	}
	if !hasRef(excs, "risky", "custom.AppError") {
		t.Error("expected except reference to custom.AppError")
	}
	if !hasRef(excs, "risky", "WrappedError") {
		t.Error("expected raise reference to WrappedError")
	}
	if !hasRef(excs, "risky", "ValueError") {
		t.Error("expected except reference to ValueError")
	}

	calls := refsOfKind(result.References, RefCall)
	if !hasRef(calls, "risky", "step") {
		t.Error("expected call reference inside try block")
	}
	if hasRef(calls, "risky", "WrappedError") {
		t.Error("raise construction should not also be a call reference")
	}
}

func TestPythonParser_Parse_IsinstanceReferences(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyIsinstance), "checks.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	checks := refsOfKind(result.References, RefIsinstance)
	if !hasRef(checks, "check", "Circle") {
		t.Error("expected isinstance reference to Circle")
	}
	if !hasRef(checks, "check", "shapes.Square") {
		t.Error("expected isinstance reference to shapes.Square")
	}
	if !hasRef(checks, "check", "Shape") {
		t.Error("expected issubclass reference to Shape")
	}

	calls := refsOfKind(result.References, RefCall)
	if hasRef(calls, "check", "isinstance") {
		t.Error("isinstance itself should not be a call reference")
	}
}

func TestPythonParser_Parse_PropertyAccessors(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyProperty), "account.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	props := refsOfKind(result.References, RefProperty)
	if !hasRef(props, "Account", "_get_balance") {
		t.Error("expected property reference to _get_balance")
	}
	if !hasRef(props, "Account", "_set_balance") {
		t.Error("expected property reference to _set_balance")
	}
	for _, ref := range props {
		if ref.Name != "balance" {
			t.Errorf("expected property refs named 'balance', got %q", ref.Name)
		}
	}
}

func TestPythonParser_Parse_ReturnEscape(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyReturnEscape), "closures.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	escapes := refsOfKind(result.References, RefReturnEscape)
	if !hasRef(escapes, "make_counter", "increment") {
		t.Error("expected return-escape reference to increment")
	}
	if hasRef(escapes, "increment", "count") {
		t.Error("returning a plain local must not be an escape")
	}

	outer := findSymbol(result.Symbols, "make_counter")
	if outer == nil {
		t.Fatal("expected to find make_counter")
	}
	if inner := findSymbol(outer.Children, "increment"); inner == nil {
		t.Error("expected increment as child of make_counter")
	}
}

func TestPythonParser_Parse_Aliases(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyAliases), "aliases.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	aliases := refsOfKind(result.References, RefAlias)
	var moduleAlias, localAlias *Reference
	for i := range aliases {
		switch aliases[i].Name {
		case "new_api":
			moduleAlias = &aliases[i]
		case "fn":
			localAlias = &aliases[i]
		}
	}

	if moduleAlias == nil {
		t.Fatal("expected module-level alias new_api")
	}
	if moduleAlias.Scope != "" || moduleAlias.Target != "legacy_api" {
		t.Errorf("unexpected module alias: %+v", moduleAlias)
	}

	if localAlias == nil {
		t.Fatal("expected function-scope alias fn")
	}
	if localAlias.Scope != "wrapper" || localAlias.Target != "target_fn" {
		t.Errorf("unexpected local alias: %+v", localAlias)
	}
}

func TestPythonParser_Parse_DispatchTable(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyDispatch), "dispatch.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	table := refsOfKind(result.References, RefDictValue)
	if !hasRef(table, "", "handle_create") || !hasRef(table, "", "handle_delete") {
		t.Error("expected dispatch-table references for dict values")
	}
	if !hasRef(table, "", "stage_one") || !hasRef(table, "", "stage_two") {
		t.Error("expected dispatch-table references for list elements")
	}

	values := refsOfKind(result.References, RefValue)
	if hasRef(values, "", "handle_create") {
		t.Error("dict values must not leak into the core value-flow stream")
	}
}

func TestPythonParser_Parse_RegistryStrings(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyRegistry), "registry.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	strRefs := refsOfKind(result.References, RefString)
	if !hasRef(strRefs, "", "app.handlers.process") {
		t.Error("expected registry string reference to app.handlers.process")
	}
	if !hasRef(strRefs, "", "app.plugins.audit") {
		t.Error("expected registry string reference to app.plugins.audit")
	}
	if hasRef(strRefs, "", "plain") {
		t.Error("undotted strings must not become references")
	}

	for _, ref := range strRefs {
		if ref.Target == "app.handlers.process" && ref.CallName != "Registry" {
			t.Errorf("expected call name Registry, got %q", ref.CallName)
		}
	}
}

func TestPythonParser_Parse_FieldTypes(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyFieldTypes), "service.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	fields := refsOfKind(result.References, RefFieldType)
	if len(fields) != 1 {
		t.Fatalf("expected exactly 1 field-type reference, got %d", len(fields))
	}
	ref := fields[0]
	if ref.Scope != "Service.__init__" || ref.Name != "repo" || ref.Target != "Repository" {
		t.Errorf("unexpected field-type reference: %+v", ref)
	}

	calls := refsOfKind(result.References, RefCall)
	if !hasRef(calls, "Service.__init__", "Repository") {
		t.Error("constructor call should still produce a call reference")
	}
	if !hasRef(calls, "Service.handle", "self.repo.save") {
		t.Error("expected attribute call through self field")
	}
}

func TestPythonParser_Parse_TypeAnnotations(t *testing.T) {
	ctx := context.Background()

	// Gate off: annotations contribute nothing.
	off := NewPythonParser()
	result, err := off.Parse(ctx, []byte(testPyAnnotations), "annotations.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	values := refsOfKind(result.References, RefValue)
	if hasRef(values, "transform", "Widget") {
		t.Error("annotations must be ignored when the gate is off")
	}

	// Gate on: parameter, forward-reference and return types count.
	on := NewPythonParser(WithTypeAnnotations(true))
	result, err = on.Parse(ctx, []byte(testPyAnnotations), "annotations.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	values = refsOfKind(result.References, RefValue)
	if !hasRef(values, "transform", "Widget") {
		t.Error("expected annotation reference to Widget")
	}
	if !hasRef(values, "transform", "models.Factory") {
		t.Error("expected forward-reference annotation to models.Factory")
	}
	if !hasRef(values, "transform", "Result") {
		t.Error("expected return annotation reference to Result")
	}
}

func TestPythonParser_Parse_AllowMarkers(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	result, err := parser.Parse(ctx, []byte(testPyAllowMarkers), "allow.py")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	keep := findSymbol(result.Symbols, "keep_me")
	if keep == nil {
		t.Fatal("expected symbol keep_me")
	}
	if len(result.AllowLines) != 2 {
		t.Fatalf("expected 2 allow lines, got %d: %v",
			len(result.AllowLines), result.AllowLines)
	}
	if result.AllowLines[0] != keep.Location.StartLine {
		t.Errorf("expected first allow line %d to match keep_me at %d",
			result.AllowLines[0], keep.Location.StartLine)
	}

	legacy := findSymbol(result.Symbols, "Legacy")
	if legacy == nil {
		t.Fatal("expected symbol Legacy")
	}
	if result.AllowLines[1] != legacy.Location.StartLine {
		t.Errorf("expected second allow line %d to match Legacy at %d",
			result.AllowLines[1], legacy.Location.StartLine)
	}

	// The unmarked definition shares no allow line.
	drop := findSymbol(result.Symbols, "drop_me")
	if drop == nil {
		t.Fatal("expected symbol drop_me")
	}
	for _, line := range result.AllowLines {
		if line == drop.Location.StartLine {
			t.Error("drop_me must not be allow-covered")
		}
	}
}

func TestPythonParser_Parse_SyntaxError(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	_, err := parser.Parse(ctx, []byte(testPySyntaxError), "broken.py")
	if err == nil {
		t.Fatal("expected fatal error for syntax error")
	}

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if parseErr.Path != "broken.py" {
		t.Errorf("expected path broken.py, got %q", parseErr.Path)
	}
	if parseErr.Line < 1 {
		t.Errorf("expected positive error line, got %d", parseErr.Line)
	}
}

func TestPythonParser_Parse_InvalidUTF8(t *testing.T) {
	parser := NewPythonParser()
	ctx := context.Background()

	_, err := parser.Parse(ctx, []byte(testPyInvalidUTF8), "bad.py")
	if err == nil {
		t.Fatal("expected error for invalid UTF-8")
	}
	if !errors.Is(err, ErrInvalidContent) {
		t.Errorf("expected ErrInvalidContent, got %v", err)
	}
}

func TestPythonParser_Parse_FileTooLarge(t *testing.T) {
	parser := NewPythonParser(WithMaxFileSize(16))
	ctx := context.Background()

	_, err := parser.Parse(ctx, []byte(testPyFunctions), "big.py")
	if err == nil {
		t.Fatal("expected error for oversized file")
	}
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestPythonParser_Parse_WithTimeout(t *testing.T) {
	parser := NewPythonParser()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()

	time.Sleep(1 * time.Millisecond)

	_, err := parser.Parse(ctx, []byte(testPyFunctions), "timeout.py")
	if err == nil {
		t.Fatal("expected error for expired context")
	}
}

func TestPythonParser_InterfaceCompliance(t *testing.T) {
	// Compile-time check that PythonParser implements Parser.
	var _ Parser = (*PythonParser)(nil)
}

// Helper function to filter symbols by kind.
func filterByKind(symbols []*Symbol, kind SymbolKind) []*Symbol {
	result := make([]*Symbol, 0)
	for _, s := range symbols {
		if s.Kind == kind {
			result = append(result, s)
		}
	}
	return result
}

// Helper function to find a symbol by name at one level.
func findSymbol(symbols []*Symbol, name string) *Symbol {
	for _, s := range symbols {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Helper function to filter references by kind.
func refsOfKind(refs []Reference, kind RefKind) []Reference {
	result := make([]Reference, 0)
	for _, r := range refs {
		if r.Kind == kind {
			result = append(result, r)
		}
	}
	return result
}

// Helper function to check for a reference by scope and target.
func hasRef(refs []Reference, scope, target string) bool {
	for _, r := range refs {
		if r.Scope == scope && r.Target == target {
			return true
		}
	}
	return false
}
