package constraint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semguard/registry"
	"github.com/c360studio/semguard/semantic"
	"github.com/c360studio/semguard/semantic/golang"
	"github.com/c360studio/semguard/semantic/python"
	"github.com/c360studio/semguard/semantic/ts"
)

func parseConstraint(t *testing.T, doc string) registry.Constraint {
	t.Helper()
	var c registry.Constraint
	require.NoError(t, yaml.Unmarshal([]byte(doc), &c))
	return c
}

func pythonModel(t *testing.T, path, src string) *semantic.Model {
	t.Helper()
	m, err := python.NewParser().Parse(context.Background(), path, []byte(src))
	require.NoError(t, err)
	return m
}

func contextFor(m *semantic.Model) *Context {
	return &Context{FilePath: m.Path, Model: m, Content: m.Content, ArchID: "test.arch"}
}

func TestForbidImport_AliasedImport(t *testing.T) {
	c := parseConstraint(t, "rule: forbid_import\nvalue: [os]\n")

	m := pythonModel(t, "app/tool.py", "import os as operating_system\nimport json\n")
	out := DefaultSet().Validate(c, contextFor(m))

	require.Len(t, out.Violations, 1)
	v := out.Violations[0]
	assert.False(t, out.Passed)
	assert.Equal(t, registry.RuleForbidImport, v.Rule)
	assert.Equal(t, "os", v.Value)
	assert.Equal(t, 1, v.Line)
	assert.Equal(t, registry.SeverityError, v.Severity)
}

func TestForbidImport_UnrelatedImport(t *testing.T) {
	c := parseConstraint(t, "rule: forbid_import\nvalue: [os]\n")

	m := pythonModel(t, "app/tool.py", "import json\n")
	out := DefaultSet().Validate(c, contextFor(m))

	assert.True(t, out.Passed)
	assert.Empty(t, out.Violations)
}

func TestMaxPublicMethods_CountsOnlyPublic(t *testing.T) {
	c := parseConstraint(t, "rule: max_public_methods\nvalue: 3\n")

	method := func(name string, vis semantic.Visibility) semantic.Function {
		return semantic.Function{Name: name, Visibility: vis, StartLine: 2, EndLine: 3}
	}
	m := &semantic.Model{
		Path:     "svc.ts",
		Language: semantic.LangTypeScript,
		Classes: []semantic.Class{{
			Name:      "UserService",
			Kind:      semantic.KindClass,
			StartLine: 1,
			EndLine:   20,
			Methods: []semantic.Function{
				method("a", semantic.VisibilityPublic),
				method("b", semantic.VisibilityPublic),
				method("c", semantic.VisibilityPublic),
				method("d", semantic.VisibilityPublic),
				method("e", semantic.VisibilityPrivate),
				method("f", semantic.VisibilityProtected),
				method("g", semantic.VisibilityPrivate),
			},
		}},
	}

	out := DefaultSet().Validate(c, contextFor(m))
	require.Len(t, out.Violations, 1)
	assert.Equal(t, 4, out.Violations[0].Count)
	assert.Equal(t, 3, out.Violations[0].Limit)
	assert.Equal(t, 1, out.Violations[0].Line)
	assert.Nil(t, out.Violations[0].Suggestion)
}

const shellSource = `import subprocess


# @intent:shell-allowed
def run_build():
    subprocess.run(["make"])


def run_other():
    subprocess.run(["ls"])
`

func TestUnless_ExemptionScoping(t *testing.T) {
	c := parseConstraint(t, `
rule: forbid_call
value: [subprocess.run]
unless: ["@intent:shell-allowed", "import:shlex"]
`)
	m := pythonModel(t, "tools/build.py", shellSource)

	t.Run("match inside exempt function is dropped", func(t *testing.T) {
		out := DefaultSet().Validate(c, contextFor(m))
		require.Len(t, out.Violations, 1)
		assert.Equal(t, 10, out.Violations[0].Line)
		assert.Equal(t, "subprocess.run", out.Violations[0].Value)
	})

	t.Run("file intent skips the constraint", func(t *testing.T) {
		ctx := contextFor(m)
		ctx.Intents = []string{"shell-allowed"}
		out := DefaultSet().Validate(c, ctx)
		assert.True(t, out.Passed)
		assert.True(t, out.Skipped)
		assert.Empty(t, out.Violations)
	})

	t.Run("import presence skips the constraint", func(t *testing.T) {
		withShlex := pythonModel(t, "tools/build.py", "import shlex\n"+shellSource)
		out := DefaultSet().Validate(c, contextFor(withShlex))
		assert.True(t, out.Skipped)
		assert.Empty(t, out.Violations)
	})

	t.Run("without intent exemption every match stays", func(t *testing.T) {
		plain := parseConstraint(t, "rule: forbid_call\nvalue: [subprocess.*]\n")
		out := DefaultSet().Validate(plain, contextFor(m))
		assert.Len(t, out.Violations, 2)
	})
}

const tsShellSource = `import { exec } from 'child_process';

export class Builder {
  /**
   * Runs the release script.
   * @intent:shell-allowed
   */
  @Command()
  release() {
    exec('make release');
  }

  @Command()
  clean() {
    exec('rm -rf dist');
  }
}
`

const goShellSource = `package build

import "os/exec"

// Release runs the release script.
//
// @intent:shell-allowed
func Release() error {
	cmd := exec.Command("make", "release")
	return cmd.Run()
}

func Clean() error {
	cmd := exec.Command("rm", "-rf", "dist")
	return cmd.Run()
}
`

func TestUnless_ExemptionScopingAcrossLanguages(t *testing.T) {
	tests := []struct {
		name   string
		parser semantic.Adapter
		path   string
		src    string
		callee string
		line   int
	}{
		{
			name:   "typescript jsdoc above decorated method",
			parser: ts.NewParser(semantic.LangTypeScript),
			path:   "src/builder.ts",
			src:    tsShellSource,
			callee: "exec",
			line:   15,
		},
		{
			name:   "go doc comment above func",
			parser: golang.NewParser(),
			path:   "build/build.go",
			src:    goShellSource,
			callee: "exec.Command",
			line:   14,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.parser.Parse(context.Background(), tt.path, []byte(tt.src))
			require.NoError(t, err)

			c := parseConstraint(t, "rule: forbid_call\nvalue: ["+tt.callee+"]\nunless: [\"@intent:shell-allowed\"]\n")
			out := DefaultSet().Validate(c, contextFor(m))
			require.Len(t, out.Violations, 1)
			assert.Equal(t, tt.line, out.Violations[0].Line)
			assert.Equal(t, tt.callee, out.Violations[0].Value)
		})
	}
}

func TestAppliesWhen(t *testing.T) {
	m := &semantic.Model{Path: "a.ts", Content: "export const x = 1;\n", CodeLines: 1}

	t.Run("no match skips", func(t *testing.T) {
		c := parseConstraint(t, "rule: max_file_lines\nvalue: 0\napplies_when: 'React'\n")
		out := DefaultSet().Validate(c, contextFor(m))
		assert.True(t, out.Skipped)
		assert.True(t, out.Passed)
	})

	t.Run("match evaluates", func(t *testing.T) {
		c := parseConstraint(t, "rule: max_file_lines\nvalue: 0\napplies_when: 'export'\n")
		out := DefaultSet().Validate(c, contextFor(m))
		require.Len(t, out.Violations, 1)
		assert.Equal(t, 1, out.Violations[0].Count)
		assert.Equal(t, 0, out.Violations[0].Limit)
	})

	t.Run("invalid regex is a rule error", func(t *testing.T) {
		c := parseConstraint(t, "rule: max_file_lines\nvalue: 0\napplies_when: '(['\n")
		out := DefaultSet().Validate(c, contextFor(m))
		require.Len(t, out.Violations, 1)
		assert.True(t, out.Violations[0].RuleError)
		assert.Equal(t, registry.SeverityError, out.Violations[0].Severity)
	})
}

func TestRuleErrors(t *testing.T) {
	m := &semantic.Model{Path: "a.py", Content: "x = 1\n"}

	t.Run("malformed value", func(t *testing.T) {
		c := parseConstraint(t, "rule: max_file_lines\nvalue: lots\nseverity: warning\n")
		require.Error(t, c.ValueErr)
		out := DefaultSet().Validate(c, contextFor(m))
		require.Len(t, out.Violations, 1)
		v := out.Violations[0]
		assert.True(t, v.RuleError)
		assert.Equal(t, registry.RuleMaxFileLines, v.Rule)
		assert.Equal(t, registry.SeverityError, v.Severity)
		assert.Contains(t, v.Message, "invalid max_file_lines constraint")
	})

	t.Run("invalid pattern keeps other patterns", func(t *testing.T) {
		c := parseConstraint(t, "rule: forbid_pattern\nvalue: ['(unclosed', 'x = \\d']\n")
		out := DefaultSet().Validate(c, contextFor(m))
		require.Len(t, out.Violations, 2)
		assert.True(t, out.Violations[0].RuleError)
		assert.False(t, out.Violations[1].RuleError)
		assert.Equal(t, 1, out.Violations[1].Line)
	})

	t.Run("unregistered rule", func(t *testing.T) {
		c := parseConstraint(t, "rule: forbid_import\nvalue: [os]\n")
		out := NewSet().Validate(c, contextFor(m))
		require.Len(t, out.Violations, 1)
		assert.True(t, out.Violations[0].RuleError)
	})
}

func TestForbidPattern_LinesAndDotAll(t *testing.T) {
	content := "a\nTODO: one\nb\nTODO: two\n/* start\nend */\n"
	m := &semantic.Model{Path: "x.ts", Content: content}

	c := parseConstraint(t, "rule: forbid_pattern\nvalue: ['^TODO:.*?$', '/\\*.*?\\*/']\n")
	out := DefaultSet().Validate(c, contextFor(m))

	require.Len(t, out.Violations, 3)
	assert.Equal(t, 2, out.Violations[0].Line)
	assert.Equal(t, "TODO: one", out.Violations[0].Value)
	assert.Equal(t, 4, out.Violations[1].Line)
	assert.Equal(t, 5, out.Violations[2].Line)
	assert.Equal(t, "/* start...", out.Violations[2].Value)
}

func TestRequirePattern(t *testing.T) {
	m := &semantic.Model{Path: "x.py", Content: "# Copyright 2024\nx = 1\n"}

	ok := parseConstraint(t, "rule: require_pattern\nvalue: ['^# Copyright \\d{4}']\n")
	assert.True(t, DefaultSet().Validate(ok, contextFor(m)).Passed)

	missing := parseConstraint(t, "rule: require_pattern\nvalue: ['SPDX-License-Identifier']\n")
	out := DefaultSet().Validate(missing, contextFor(m))
	require.Len(t, out.Violations, 1)
	assert.Equal(t, 0, out.Violations[0].Line)
}

func TestRemediation(t *testing.T) {
	m := &semantic.Model{
		Path:     "src/api/users.ts",
		Language: semantic.LangTypeScript,
		Imports:  []semantic.Import{{Module: "axios", Default: "axios", Line: 3}},
	}
	patterns := []registry.Pattern{{
		Name:      "http",
		Canonical: "src/lib/http.ts",
		Exports:   []string{"httpClient"},
		Usage:     "Shared HTTP client",
		Keywords:  []string{"axios", "fetch"},
	}}

	tests := []struct {
		name           string
		doc            string
		wantSuggestion Suggestion
		wantDidYouMean *DidYouMean
	}{
		{
			name: "single alternative",
			doc:  "rule: forbid_import\nvalue: [axios]\nalternative: ky\n",
			wantSuggestion: Suggestion{
				Action:          ActionReplace,
				Target:          "axios",
				Replacement:     "ky",
				ImportStatement: "import 'ky';",
			},
		},
		{
			name: "structured alternatives",
			doc: `
rule: forbid_import
value: [axios]
alternatives:
  - module: src/lib/http
    export: httpClient
    description: Shared client with retries
    example: httpClient.get(url)
  - module: ky
`,
			wantSuggestion: Suggestion{
				Action:          ActionReplace,
				Target:          "axios",
				Replacement:     "src/lib/http",
				ImportStatement: "import { httpClient } from 'src/lib/http';",
			},
			wantDidYouMean: &DidYouMean{
				File:        "src/lib/http",
				Export:      "httpClient",
				Description: "Shared client with retries",
				Example:     "httpClient.get(url)",
			},
		},
		{
			name:           "pattern registry keyword",
			doc:            "rule: forbid_import\nvalue: [axios]\n",
			wantSuggestion: Suggestion{Action: ActionRemove, Target: "axios"},
			wantDidYouMean: &DidYouMean{
				File:        "src/lib/http.ts",
				Export:      "httpClient",
				Description: "Shared HTTP client",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := contextFor(m)
			ctx.Patterns = patterns
			out := DefaultSet().Validate(parseConstraint(t, tt.doc), ctx)
			require.Len(t, out.Violations, 1)
			v := out.Violations[0]
			require.NotNil(t, v.Suggestion)
			assert.Equal(t, tt.wantSuggestion, *v.Suggestion)
			assert.Equal(t, tt.wantDidYouMean, v.DidYouMean)
		})
	}

	t.Run("plain removal", func(t *testing.T) {
		out := DefaultSet().Validate(parseConstraint(t, "rule: forbid_import\nvalue: [axios]\n"), contextFor(m))
		require.Len(t, out.Violations, 1)
		assert.Equal(t, &Suggestion{Action: ActionRemove, Target: "axios"}, out.Violations[0].Suggestion)
		assert.Nil(t, out.Violations[0].DidYouMean)
	})
}

func TestStructuralRules(t *testing.T) {
	m := &semantic.Model{
		Path:     "src/services/user.py",
		Language: semantic.LangPython,
		Imports: []semantic.Import{
			{Module: "typing", Named: []string{"Any"}, Line: 1},
			{Module: "app.models", Wildcard: true, Line: 2},
		},
		Exports: []semantic.Export{{Name: "UserService", Line: 5}, {Name: "make_user", Line: 30}},
		Classes: []semantic.Class{{
			Name:       "UserService",
			Kind:       semantic.KindClass,
			Extends:    []string{"base.BaseService", "Generic[T]"},
			Decorators: []semantic.Decorator{{Name: "dataclass", Line: 4}},
			StartLine:  5,
			EndLine:    25,
			Methods: []semantic.Function{{
				Name:       "save",
				Visibility: semantic.VisibilityPublic,
				Decorators: []semantic.Decorator{{Name: "app.route", Line: 9}},
				StartLine:  10,
				EndLine:    14,
			}},
		}},
		Functions: []semantic.Function{{Name: "make_user", Visibility: semantic.VisibilityPublic, StartLine: 30, EndLine: 32}},
		Calls: []semantic.Call{
			{Callee: "requests.get", Receiver: "requests", Method: "get", Line: 11, InTry: true},
			{Callee: "requests.post", Receiver: "requests", Method: "post", Line: 12},
			{Callee: "print", Method: "print", Line: 31},
		},
		Mutations: []semantic.Mutation{
			{Target: "os.environ[\"HOME\"]", Root: "os", Path: []string{"environ", "[\"HOME\"]"}, Operator: "=", Line: 13},
			{Target: "self.count", Root: "self", Path: []string{"count"}, Operator: "+=", Line: 14},
		},
	}

	tests := []struct {
		name      string
		doc       string
		wantLines []int
	}{
		{"require_import satisfied by sub-module wildcard", "rule: require_import\nvalue: [app]\n", nil},
		{"require_import missing", "rule: require_import\nvalue: [logging]\n", []int{0}},
		{"require_try_catch", "rule: require_try_catch\nvalue: ['requests.*']\n", []int{12}},
		{"forbid_call glob", "rule: forbid_call\nvalue: ['*.post', print]\n", []int{12, 31}},
		{"require_call present", "rule: require_call\nvalue: [print]\n", nil},
		{"require_call missing", "rule: require_call\nvalue: [logger.info]\n", []int{0}},
		{"allow_call never fails", "rule: allow_call\nvalue: [print]\n", nil},
		{"forbid_mutation by prefix", "rule: forbid_mutation\nvalue: [os.environ]\n", []int{13}},
		{"forbid_mutation by root", "rule: forbid_mutation\nvalue: [self]\n", []int{14}},
		{"forbid_decorator on method", "rule: forbid_decorator\nvalue: ['@app.route']\n", []int{9}},
		{"require_decorator present", "rule: require_decorator\nvalue: [dataclass]\n", nil},
		{"require_decorator missing", "rule: require_decorator\nvalue: [injectable]\n", []int{5}},
		{"must_extend qualified base", "rule: must_extend\nvalue: BaseService\n", nil},
		{"must_extend generic base", "rule: must_extend\nvalue: Generic\n", nil},
		{"must_extend missing", "rule: must_extend\nvalue: Model\n", []int{5}},
		{"implements via extends", "rule: implements\nvalue: [BaseService]\n", nil},
		{"implements missing", "rule: implements\nvalue: [Repository]\n", []int{0}},
		{"require_export wildcard", "rule: require_export\nvalue: ['*Service']\n", nil},
		{"require_export missing", "rule: require_export\nvalue: [default]\n", []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := DefaultSet().Validate(parseConstraint(t, tt.doc), contextFor(m))
			var lines []int
			for _, v := range out.Violations {
				assert.False(t, v.RuleError, v.Message)
				lines = append(lines, v.Line)
			}
			assert.Equal(t, tt.wantLines, lines)
			assert.Equal(t, len(tt.wantLines) == 0, out.Passed)
		})
	}
}

func TestNamingPattern(t *testing.T) {
	m := &semantic.Model{
		Path:      "src/services/UserService.ts",
		Classes:   []semantic.Class{{Name: "UserService", StartLine: 3}, {Name: "helper_thing", StartLine: 9}},
		Functions: []semantic.Function{{Name: "makeUser", Visibility: semantic.VisibilityPublic, StartLine: 20}},
		Exports:   []semantic.Export{{Name: "UserService", Line: 3}, {Name: "default", Default: true, Line: 30}},
	}

	tests := []struct {
		name      string
		value     string
		wantLines []int
	}{
		{"file case and suffix", "{case: PascalCase, suffix: Service}", nil},
		{"file extension", "{extension: .service.ts}", []int{0}},
		{"file regex over base name", "'^[A-Z]\\w+\\.ts$'", nil},
		{"file kebab", "{case: kebab-case}", []int{0}},
		{"class case", "{target: class, case: PascalCase}", []int{9}},
		{"function prefix", "{target: function, prefix: make}", nil},
		{"export ignores default", "{target: export, case: PascalCase}", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := parseConstraint(t, "rule: naming_pattern\nvalue: "+tt.value+"\n")
			require.NoError(t, c.ValueErr)
			out := DefaultSet().Validate(c, contextFor(m))
			var lines []int
			for _, v := range out.Violations {
				lines = append(lines, v.Line)
			}
			assert.Equal(t, tt.wantLines, lines)
		})
	}

	t.Run("invalid regex", func(t *testing.T) {
		c := parseConstraint(t, "rule: naming_pattern\nvalue: '(['\n")
		out := DefaultSet().Validate(c, contextFor(m))
		require.Len(t, out.Violations, 1)
		assert.True(t, out.Violations[0].RuleError)
	})
}

func TestLocationPattern(t *testing.T) {
	m := &semantic.Model{Path: "src/services/user.service.ts"}

	tests := []struct {
		pattern string
		pass    bool
	}{
		{"src/services/*.ts", true},
		{"services/**", true},
		{"**/*.service.ts", true},
		{"src/controllers/**", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			c := parseConstraint(t, "rule: location_pattern\nvalue: '"+tt.pattern+"'\n")
			out := DefaultSet().Validate(c, contextFor(m))
			assert.Equal(t, tt.pass, out.Passed)
			if !tt.pass {
				require.Len(t, out.Violations, 1)
				assert.Equal(t, ActionMove, out.Violations[0].Suggestion.Action)
			}
		})
	}
}

func TestLayer(t *testing.T) {
	reg, err := registry.Parse([]byte(`
layers:
  domain: ["src/domain/**"]
  infra: ["src/infra/**"]
  shared: ["src/shared/**"]
`))
	require.NoError(t, err)

	m := &semantic.Model{
		Path:     "src/domain/user.ts",
		Language: semantic.LangTypeScript,
		Imports: []semantic.Import{
			{Module: "./order", Line: 1},
			{Module: "../shared/ids", Line: 2},
			{Module: "../infra/db", Line: 3},
			{Module: "lodash", Line: 4},
		},
	}
	c := parseConstraint(t, "rule: layer\nvalue: {name: domain, may_import: [shared]}\n")

	ctx := contextFor(m)
	ctx.Layers = reg
	out := DefaultSet().Validate(c, ctx)
	require.Len(t, out.Violations, 1)
	assert.Equal(t, 3, out.Violations[0].Line)
	assert.Equal(t, "../infra/db", out.Violations[0].Value)
	assert.Contains(t, out.Violations[0].Message, `layer "infra"`)

	t.Run("file outside its layer", func(t *testing.T) {
		other := *m
		other.Path = "src/infra/user.ts"
		other.Imports = nil
		ctx := contextFor(&other)
		ctx.Layers = reg
		out := DefaultSet().Validate(c, ctx)
		require.Len(t, out.Violations, 1)
		assert.Equal(t, "infra", out.Violations[0].Value)
	})

	t.Run("python relative imports", func(t *testing.T) {
		assert.Equal(t, "src/infra/db", semantic.ImportTarget("src/domain/user.py", "..infra.db", semantic.LangPython))
		assert.Equal(t, "src/domain/order", semantic.ImportTarget("src/domain/user.py", ".order", semantic.LangPython))
		assert.Equal(t, "app/infra", semantic.ImportTarget("src/domain/user.py", "app.infra", semantic.LangPython))
	})
}

func TestDefaultSet_CoversKnownRules(t *testing.T) {
	s := DefaultSet()
	assert.Equal(t, registry.KnownRules(), s.Rules())
	for _, r := range registry.KnownRules() {
		_, ok := s.Lookup(r)
		assert.True(t, ok, r)
	}
}

func TestCalleeMatcher(t *testing.T) {
	m := newCalleeMatcher([]string{"fs.*", "eval", "*.exec*"})
	assert.True(t, m.match("fs.readFile"))
	assert.True(t, m.match("fs.promises.readFile"))
	assert.False(t, m.match("fs"))
	assert.True(t, m.match("eval"))
	assert.False(t, m.match("window.eval"))
	assert.True(t, m.match("child_process.execSync"))
	assert.False(t, m.match("fsx.readFile"))
}
