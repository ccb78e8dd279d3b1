package ts

import (
	"context"
	"testing"

	"github.com/c360studio/semguard/semantic"
)

const serviceSource = `import axios from 'axios';
import { readFile, writeFile as write } from "fs/promises";
import * as path from 'path';
import type { User } from './types';
import {
  Injectable,
} from '@nestjs/common';
import './polyfill';

const legacy = require('lodash');

// @intent:admin
export async function purge(dir: string, force = false): Promise<void> {
  try {
    await fs.rm(dir);
  } catch (err) {
    console.error(err);
  }
}

function helper() {
  return path.join('a', 'b');
}

@Injectable()
export class UserService extends BaseService implements Repo<User>, Disposable {
  #secret = 1;

  constructor(private readonly http: Http) {
    super();
  }

  /**
   * Loads a user.
   * @intent:read-only
   */
  @Get(':id')
  public async find(id: string): Promise<User> {
    const mod = await import('./lazy');
    this.cache[id] = mod;
    return axios.get('/users/' + id);
  }

  private reset(): void {
    delete this.cache.all;
    this.count++;
  }

  protected log(msg: string) {}

  #hidden() {}

  onClick = (event) => {
    window.location.href = '/';
  };
}

export default UserService;

const text = "import nothing from 'nowhere'; eval('x')";
`

func parse(t *testing.T, path, src string) *semantic.Model {
	t.Helper()
	lang := semantic.LangTypeScript
	m, err := NewParser(lang).Parse(context.Background(), path, []byte(src))
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
	m := parse(t, "service.ts", serviceSource)
	imports := importsByModule(m)

	if imports["axios"].Default != "axios" {
		t.Errorf("axios default = %q", imports["axios"].Default)
	}
	fsImp := imports["fs/promises"]
	if len(fsImp.Named) != 2 || fsImp.Named[0] != "readFile" || fsImp.Named[1] != "writeFile" {
		t.Errorf("fs/promises named = %v, want original names", fsImp.Named)
	}
	if imports["path"].Namespace != "path" {
		t.Errorf("path namespace = %q", imports["path"].Namespace)
	}
	if !imports["./types"].TypeOnly {
		t.Error("import type should be TypeOnly")
	}
	if len(imports["@nestjs/common"].Named) != 1 {
		t.Errorf("multi-line import = %+v", imports["@nestjs/common"])
	}
	if _, ok := imports["./polyfill"]; !ok {
		t.Error("side-effect import missing")
	}
	if _, ok := imports["lodash"]; !ok {
		t.Error("require() should be recorded as an import")
	}
	if !imports["./lazy"].Dynamic {
		t.Error("import() should be a dynamic import")
	}
	if _, ok := imports["nowhere"]; ok {
		t.Error("imports inside string literals must be ignored")
	}
}

func TestParse_Class(t *testing.T) {
	m := parse(t, "service.ts", serviceSource)

	svc, ok := m.FindClass("UserService")
	if !ok {
		t.Fatal("UserService not found")
	}
	if len(svc.Extends) != 1 || svc.Extends[0] != "BaseService" {
		t.Errorf("Extends = %v", svc.Extends)
	}
	if len(svc.Implements) != 2 || svc.Implements[0] != "Repo" || svc.Implements[1] != "Disposable" {
		t.Errorf("Implements = %v", svc.Implements)
	}
	if len(svc.Decorators) != 1 || svc.Decorators[0].Name != "Injectable" {
		t.Errorf("Decorators = %+v", svc.Decorators)
	}
	if svc.Visibility != semantic.VisibilityPublic {
		t.Errorf("exported class visibility = %q", svc.Visibility)
	}

	want := map[string]semantic.Visibility{
		"constructor": semantic.VisibilityPublic,
		"find":        semantic.VisibilityPublic,
		"reset":       semantic.VisibilityPrivate,
		"log":         semantic.VisibilityProtected,
		"#hidden":     semantic.VisibilityPrivate,
		"onClick":     semantic.VisibilityPublic,
	}
	if len(svc.Methods) != len(want) {
		t.Fatalf("Methods = %+v", svc.Methods)
	}
	for _, fn := range svc.Methods {
		if fn.Visibility != want[fn.Name] {
			t.Errorf("%s visibility = %q, want %q", fn.Name, fn.Visibility, want[fn.Name])
		}
		if fn.Name == "constructor" && fn.Kind != semantic.FuncConstructor {
			t.Errorf("constructor Kind = %q", fn.Kind)
		}
	}
	// find and onClick; the constructor is not a method
	if svc.PublicMethods() != 2 {
		t.Errorf("PublicMethods = %d, want 2", svc.PublicMethods())
	}
}

func TestParse_ConstructorAndAccessorsNotCounted(t *testing.T) {
	m := parse(t, "account.ts", `export class Account {
  constructor(private id: string) {}
  get balance(): number { return 0; }
  set balance(v: number) {}
  deposit(n: number) {}
  withdraw(n: number) {}
  get() { return this.id; }
}
`)
	acc, ok := m.FindClass("Account")
	if !ok {
		t.Fatal("Account not found")
	}

	kinds := make(map[string][]semantic.FunctionKind)
	for _, fn := range acc.Methods {
		kinds[fn.Name] = append(kinds[fn.Name], fn.Kind)
	}
	if got := kinds["balance"]; len(got) != 2 || got[0] != semantic.FuncAccessor || got[1] != semantic.FuncAccessor {
		t.Errorf("balance kinds = %v, want two accessors", got)
	}
	if got := kinds["get"]; len(got) != 1 || got[0] != semantic.FuncPlain {
		t.Errorf("a method named get is a plain method, got %v", got)
	}
	if acc.PublicMethods() != 3 {
		t.Errorf("PublicMethods = %d, want 3 (deposit, withdraw, get)", acc.PublicMethods())
	}
}

func TestParse_DecoratorsAcrossComments(t *testing.T) {
	m := parse(t, "ctrl.ts", `class Controller {
  @Get()
  // fetch all
  list() {}

  @Post()

  create() {}

  plain() {}
}
`)
	ctrl, ok := m.FindClass("Controller")
	if !ok {
		t.Fatal("Controller not found")
	}

	decorators := make(map[string][]string)
	for _, fn := range ctrl.Methods {
		for _, d := range fn.Decorators {
			decorators[fn.Name] = append(decorators[fn.Name], d.Name)
		}
	}
	tests := []struct {
		method string
		want   []string
	}{
		{"list", []string{"Get"}},
		{"create", []string{"Post"}},
		{"plain", nil},
	}
	for _, tt := range tests {
		got := decorators[tt.method]
		if len(got) != len(tt.want) || (len(got) == 1 && got[0] != tt.want[0]) {
			t.Errorf("%s decorators = %v, want %v", tt.method, got, tt.want)
		}
	}
}

func TestParse_ImportRequire(t *testing.T) {
	m := parse(t, "legacy.ts", "import fs = require('fs');\nfs.readFileSync('x');\n")
	imports := importsByModule(m)

	fsImp, ok := imports["fs"]
	if !ok {
		t.Fatalf("import = require() missing, imports = %+v", m.Imports)
	}
	if fsImp.Default != "fs" || fsImp.Line != 1 {
		t.Errorf("fs import = %+v", fsImp)
	}
}

func TestParse_MethodDetails(t *testing.T) {
	m := parse(t, "service.ts", serviceSource)
	svc, _ := m.FindClass("UserService")

	var find semantic.Function
	for _, fn := range svc.Methods {
		if fn.Name == "find" {
			find = fn
		}
	}
	if !find.Async {
		t.Error("find should be async")
	}
	if find.ParamCount != 1 {
		t.Errorf("ParamCount = %d, want 1", find.ParamCount)
	}
	if len(find.Decorators) != 1 || find.Decorators[0].Name != "Get" || find.Decorators[0].Args != "(':id')" {
		t.Errorf("Decorators = %+v", find.Decorators)
	}
	if !find.HasIntent("read-only") {
		t.Errorf("Intents = %v, want read-only from JSDoc", find.Intents)
	}
}

func TestParse_Functions(t *testing.T) {
	m := parse(t, "service.ts", serviceSource)

	fns := make(map[string]semantic.Function)
	for _, fn := range m.Functions {
		fns[fn.Name] = fn
	}

	purge, ok := fns["purge"]
	if !ok {
		t.Fatal("purge not found")
	}
	if !purge.Async || purge.ParamCount != 2 {
		t.Errorf("purge = %+v", purge)
	}
	if purge.Visibility != semantic.VisibilityPublic {
		t.Errorf("exported function visibility = %q", purge.Visibility)
	}
	if !purge.HasIntent("admin") {
		t.Errorf("purge intents = %v", purge.Intents)
	}
	if purge.StartLine != 13 || purge.EndLine != 19 {
		t.Errorf("purge lines = %d-%d, want 13-19", purge.StartLine, purge.EndLine)
	}

	if fns["helper"].Visibility != semantic.VisibilityPrivate {
		t.Errorf("unexported function visibility = %q", fns["helper"].Visibility)
	}
}

func TestParse_CallsAndTry(t *testing.T) {
	m := parse(t, "service.ts", serviceSource)

	calls := make(map[string]semantic.Call)
	for _, c := range m.Calls {
		calls[c.Callee] = c
	}

	rm, ok := calls["fs.rm"]
	if !ok || !rm.InTry || rm.Enclosing != "purge" {
		t.Errorf("fs.rm = %+v, want in try inside purge", rm)
	}
	if c := calls["console.error"]; c.InTry {
		t.Error("catch handler is not inside the try body")
	}
	get := calls["axios.get"]
	if get.Receiver != "axios" || get.Method != "get" || get.Enclosing != "UserService.find" {
		t.Errorf("axios.get = %+v", get)
	}
	if _, ok := calls["eval"]; ok {
		t.Error("calls inside string literals must be ignored")
	}
	if _, ok := calls["import"]; ok {
		t.Error("dynamic import is not a call")
	}
}

func TestParse_Mutations(t *testing.T) {
	m := parse(t, "service.ts", serviceSource)

	ops := make(map[string]string)
	roots := make(map[string]string)
	for _, mut := range m.Mutations {
		ops[mut.Target] = mut.Operator
		roots[mut.Target] = mut.Root
	}
	if ops["this.cache[id]"] != "=" {
		t.Errorf("this.cache[id] = %q", ops["this.cache[id]"])
	}
	if ops["this.cache.all"] != "delete" {
		t.Errorf("delete = %q", ops["this.cache.all"])
	}
	if ops["this.count"] != "++" {
		t.Errorf("this.count = %q", ops["this.count"])
	}
	if roots["window.location.href"] != "window" {
		t.Errorf("window root = %q", roots["window.location.href"])
	}
}

func TestParse_Exports(t *testing.T) {
	m := parse(t, "service.ts", serviceSource)

	var names []string
	var hasDefault bool
	for _, e := range m.Exports {
		names = append(names, e.Name)
		if e.Default && e.Name == "UserService" {
			hasDefault = true
		}
	}
	if len(m.Exports) != 3 {
		t.Errorf("Exports = %v", names)
	}
	if !hasDefault {
		t.Errorf("default export missing: %+v", m.Exports)
	}
}

func TestParse_CommonJS(t *testing.T) {
	src := `const fs = require('fs');

function read(p) { return fs.readFileSync(p); }

module.exports = { read, write: () => {} };
exports.extra = 1;
`
	m, err := NewParser(semantic.LangJavaScript).Parse(context.Background(), "lib.js", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Language != semantic.LangJavaScript {
		t.Errorf("Language = %q", m.Language)
	}
	if !m.HasImport("fs") {
		t.Error("require('fs') missing")
	}

	names := make(map[string]bool)
	for _, e := range m.Exports {
		names[e.Name] = true
	}
	for _, n := range []string{"default", "read", "write", "extra"} {
		if !names[n] {
			t.Errorf("export %q missing: %+v", n, m.Exports)
		}
	}
}

func TestParse_TSX(t *testing.T) {
	src := `import React from 'react';

export function Button({ label }: { label: string }) {
  return <button onClick={() => track('click')}>{label}</button>;
}
`
	m := parse(t, "Button.tsx", src)
	if len(m.Diagnostics) != 0 {
		t.Errorf("Diagnostics = %+v", m.Diagnostics)
	}
	found := false
	for _, c := range m.Calls {
		if c.Callee == "track" && c.Enclosing == "Button" {
			found = true
		}
	}
	if !found {
		t.Errorf("track call in JSX missing: %+v", m.Calls)
	}
}

func TestParse_PartialFile(t *testing.T) {
	src := "import a from 'a';\nexport function ok() { a(); }\nfunction broken( {\n"
	m := parse(t, "broken.ts", src)
	if len(m.Diagnostics) == 0 {
		t.Error("expected diagnostics")
	}
	if !m.HasImport("a") {
		t.Error("import before the error should be kept")
	}
}

func TestRegisteredInDefaultRegistry(t *testing.T) {
	tests := map[string]semantic.Language{
		"a.ts":  semantic.LangTypeScript,
		"a.tsx": semantic.LangTypeScript,
		"a.mjs": semantic.LangJavaScript,
		"a.jsx": semantic.LangJavaScript,
	}
	for path, want := range tests {
		a, err := semantic.DefaultRegistry.AdapterFor(path)
		if err != nil {
			t.Fatalf("AdapterFor(%s): %v", path, err)
		}
		if a.Language() != want {
			t.Errorf("%s language = %q, want %q", path, a.Language(), want)
		}
	}
}
