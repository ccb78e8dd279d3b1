package python

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/c360studio/semguard/semantic"
)

const handlerSource = `"""Handlers."""
import os as operating_system
import json
from typing import (
    Any,
    Dict,
)
from typing import List
from .models import *

mod = importlib.import_module("plugins.extra")


# @intent:admin
def purge(path: str) -> None:
    operating_system.remove(path)


class UserService(BaseService, metaclass=Meta):
    def __init__(self, repo):
        self.repo = repo

    @cached
    @retry(times=3)
    async def get(self, user_id: int) -> Dict[str, Any]:
        """Fetch one user.

        @intent:read-only
        """
        try:
            return await self.repo.fetch(user_id)
        except KeyError:
            log.warning("missing")
        return {}

    def list(self): ...

    def _cache_key(self, user_id):
        return f"user:{user_id}"

    def __secret(self):
        del self.repo.items[0]
        self.count += 1


def _private_helper():
    pass

TEMPLATE = """
import fake_module
def fake(): pass
"""
`

func parse(t *testing.T, src string) *semantic.Model {
	t.Helper()
	m, err := NewParser().Parse(context.Background(), "handlers.py", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return m
}

func importsByModule(m *semantic.Model) map[string]semantic.Import {
	out := make(map[string]semantic.Import)
	for _, imp := range m.Imports {
		out[imp.Module] = imp
	}
	return out
}

func TestParse_Imports(t *testing.T) {
	m := parse(t, handlerSource)
	imports := importsByModule(m)

	if imports["os"].Alias != "operating_system" {
		t.Errorf("os alias = %q, want operating_system", imports["os"].Alias)
	}
	if _, ok := imports["operating_system"]; ok {
		t.Error("alias must not be recorded as a module")
	}

	typing := imports["typing"]
	if len(typing.Named) != 3 {
		t.Errorf("typing named = %v, want Any, Dict, List merged", typing.Named)
	}
	if typing.Line != 4 {
		t.Errorf("typing line = %d, want 4", typing.Line)
	}

	if !imports[".models"].Wildcard {
		t.Error("from .models import * should be a wildcard import")
	}
	if !imports["plugins.extra"].Dynamic {
		t.Error("importlib.import_module should record a dynamic import")
	}
	if _, ok := imports["fake_module"]; ok {
		t.Error("imports inside string literals must be ignored")
	}
}

func TestParse_ClassAndVisibility(t *testing.T) {
	m := parse(t, handlerSource)

	svc, ok := m.FindClass("UserService")
	if !ok {
		t.Fatal("UserService not found")
	}
	if len(svc.Extends) != 1 || svc.Extends[0] != "BaseService" {
		t.Errorf("Extends = %v, want [BaseService]", svc.Extends)
	}

	want := map[string]semantic.Visibility{
		"__init__":   semantic.VisibilityPrivate,
		"get":        semantic.VisibilityPublic,
		"list":       semantic.VisibilityPublic,
		"_cache_key": semantic.VisibilityProtected,
		"__secret":   semantic.VisibilityPrivate,
	}
	if len(svc.Methods) != len(want) {
		t.Fatalf("Methods = %d, want %d", len(svc.Methods), len(want))
	}
	for _, fn := range svc.Methods {
		if fn.Visibility != want[fn.Name] {
			t.Errorf("%s visibility = %q, want %q", fn.Name, fn.Visibility, want[fn.Name])
		}
		if fn.Receiver != "UserService" {
			t.Errorf("%s receiver = %q", fn.Name, fn.Receiver)
		}
	}
	if svc.PublicMethods() != 2 {
		t.Errorf("PublicMethods = %d, want 2", svc.PublicMethods())
	}
}

func TestParse_MethodDetails(t *testing.T) {
	m := parse(t, handlerSource)
	svc, _ := m.FindClass("UserService")

	var get semantic.Function
	for _, fn := range svc.Methods {
		if fn.Name == "get" {
			get = fn
		}
	}
	if !get.Async {
		t.Error("get should be async")
	}
	if get.ParamCount != 1 {
		t.Errorf("ParamCount = %d, want 1 (self excluded)", get.ParamCount)
	}
	if len(get.Decorators) != 2 || get.Decorators[0].Name != "cached" || get.Decorators[1].Name != "retry" {
		t.Errorf("Decorators = %+v", get.Decorators)
	}
	if get.Decorators[1].Args != "(times=3)" {
		t.Errorf("retry args = %q", get.Decorators[1].Args)
	}
	if !get.HasIntent("read-only") {
		t.Errorf("docstring intent missing: %v", get.Intents)
	}
	if get.StartLine != 23 {
		t.Errorf("StartLine = %d, want 23 (first decorator)", get.StartLine)
	}
}

func TestParse_FunctionIntents(t *testing.T) {
	m := parse(t, handlerSource)

	var purge semantic.Function
	for _, fn := range m.Functions {
		if fn.Name == "purge" {
			purge = fn
		}
	}
	if !purge.HasIntent("admin") {
		t.Errorf("purge intents = %v, want admin", purge.Intents)
	}
	if purge.StartLine != 15 || purge.EndLine != 16 {
		t.Errorf("purge lines = %d-%d, want 15-16", purge.StartLine, purge.EndLine)
	}
}

func TestParse_Calls(t *testing.T) {
	m := parse(t, handlerSource)

	var fetch, warning, remove *semantic.Call
	for i := range m.Calls {
		switch m.Calls[i].Callee {
		case "self.repo.fetch":
			fetch = &m.Calls[i]
		case "log.warning":
			warning = &m.Calls[i]
		case "operating_system.remove":
			remove = &m.Calls[i]
		}
	}
	if fetch == nil || !fetch.InTry || fetch.Receiver != "self.repo" || fetch.Method != "fetch" {
		t.Errorf("fetch call = %+v, want in try", fetch)
	}
	if fetch != nil && fetch.Enclosing != "UserService.get" {
		t.Errorf("Enclosing = %q, want UserService.get", fetch.Enclosing)
	}
	if warning == nil || warning.InTry {
		t.Errorf("handler call = %+v, want outside try body", warning)
	}
	if remove == nil || remove.Enclosing != "purge" || remove.ArgCount != 1 {
		t.Errorf("remove call = %+v", remove)
	}
}

func TestParse_Mutations(t *testing.T) {
	m := parse(t, handlerSource)

	ops := make(map[string]string)
	for _, mut := range m.Mutations {
		ops[mut.Target] = mut.Operator
	}
	if ops["self.repo"] != "=" {
		t.Errorf("self.repo = %q, want =", ops["self.repo"])
	}
	if ops["self.repo.items[0]"] != "del" {
		t.Errorf("del target = %q", ops["self.repo.items[0]"])
	}
	if ops["self.count"] != "+=" {
		t.Errorf("self.count = %q, want +=", ops["self.count"])
	}
	if _, ok := ops["mod"]; ok {
		t.Error("plain name assignment is not a mutation")
	}
}

func TestParse_ExportsWithoutAll(t *testing.T) {
	m := parse(t, handlerSource)

	names := make(map[string]bool)
	for _, e := range m.Exports {
		names[e.Name] = true
	}
	if !names["purge"] || !names["UserService"] {
		t.Errorf("Exports = %+v", m.Exports)
	}
	if names["_private_helper"] {
		t.Error("underscore names are not exported")
	}
}

func TestParse_Fixture(t *testing.T) {
	content, err := os.ReadFile(filepath.Join("testdata", "edge_cases.py"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	m, err := NewParser().Parse(context.Background(), "edge_cases.py", content)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	imports := importsByModule(m)
	for _, mod := range []string{"__future__", "sys", "typing", "winreg", "pwd", "collections.abc", "re", "warnings"} {
		if _, ok := imports[mod]; !ok {
			t.Errorf("missing import %q", mod)
		}
	}
	if _, ok := imports["fake_module"]; ok {
		t.Error("import inside a string literal was extracted")
	}

	if len(m.Exports) != 15 {
		t.Errorf("Exports = %d, want 15 from __all__", len(m.Exports))
	}

	if c, ok := m.FindClass("Singleton"); !ok || len(c.Extends) != 0 {
		t.Errorf("Singleton = %+v, metaclass is not a base", c)
	}
	if _, ok := m.FindClass("FakeClass"); ok {
		t.Error("class inside a string literal was extracted")
	}

	temp, ok := m.FindClass("Temperature")
	if !ok {
		t.Fatal("Temperature not found")
	}
	if len(temp.Methods) != 6 {
		t.Errorf("Temperature methods = %d, want 6", len(temp.Methods))
	}

	var decorated semantic.Function
	for _, fn := range m.Functions {
		if fn.Name == "complex_decorated" {
			decorated = fn
		}
	}
	if len(decorated.Decorators) != 2 || decorated.Decorators[0].Name != "repeat" {
		t.Errorf("complex_decorated decorators = %+v", decorated.Decorators)
	}
}

func TestVisibility(t *testing.T) {
	tests := []struct {
		name string
		want semantic.Visibility
	}{
		{"run", semantic.VisibilityPublic},
		{"_run", semantic.VisibilityProtected},
		{"__run", semantic.VisibilityPrivate},
		{"__init__", semantic.VisibilityPrivate},
	}
	for _, tt := range tests {
		if got := visibility(tt.name); got != tt.want {
			t.Errorf("visibility(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParse_MethodKinds(t *testing.T) {
	m := parse(t, `class Account:
    def __init__(self, owner):
        self.owner = owner

    @property
    def balance(self):
        return 0

    @balance.setter
    def balance(self, value):
        pass

    def deposit(self, n):
        pass
`)
	acc, ok := m.FindClass("Account")
	if !ok {
		t.Fatal("Account not found")
	}

	var kinds []semantic.FunctionKind
	for _, fn := range acc.Methods {
		kinds = append(kinds, fn.Kind)
	}
	want := []semantic.FunctionKind{semantic.FuncConstructor, semantic.FuncAccessor, semantic.FuncAccessor, semantic.FuncPlain}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("method %d kind = %q, want %q", i, kinds[i], want[i])
		}
	}
	if acc.PublicMethods() != 1 {
		t.Errorf("PublicMethods = %d, want 1", acc.PublicMethods())
	}
}
