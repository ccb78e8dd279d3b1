package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semguard/constraint"
	"github.com/c360studio/semguard/engine"
	"github.com/c360studio/semguard/registry"
)

const testRegistry = `
nodes:
  app.base:
    constraints:
      - rule: forbid_import
        value: [axios]
        why: Use the shared http client
  app.service:
    inherits: app.base
    description: Application services
mixins:
  no-console:
    inline: allowed
    constraints:
      - rule: forbid_call
        value: [console.log]
`

const testConfig = `
registry:
  path: registry.yaml
repo:
  path: .
cache:
  backend: none
`

func writeProject(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	files := map[string]string{
		"semguard.yaml":   testConfig,
		"registry.yaml":   testRegistry,
		"src/good.ts":     "// @arch app.service\nexport const ok = 1;\n",
		"src/bad.ts":      "// @arch app.service\nimport axios from 'axios';\nexport const get = axios.get;\n",
		"src/untagged.ts": "export const x = 1;\n",
	}
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheck_Text(t *testing.T) {
	dir := writeProject(t)
	cfg := filepath.Join(dir, "semguard.yaml")

	out, err := execute(t, "check", "--config", cfg)
	require.ErrorIs(t, err, errViolations)

	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "src/bad.ts [app.service]")
	assert.Contains(t, out, "why: Use the shared http client")
	assert.Contains(t, out, "MISSING_ARCH")
	assert.NotContains(t, out, "src/good.ts", "passing files are hidden without --verbose")
	assert.Contains(t, out, "3 files: 1 passed, 1 failed")
}

func TestCheck_JSONAndPaths(t *testing.T) {
	dir := writeProject(t)
	cfg := filepath.Join(dir, "semguard.yaml")

	out, err := execute(t, "check", "--config", cfg, "--format", "json", filepath.Join(dir, "src", "good.ts"))
	require.NoError(t, err)

	var batch engine.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	require.Len(t, batch.Results, 1)
	assert.Equal(t, "src/good.ts", batch.Results[0].File)
	assert.Equal(t, engine.StatusPass, batch.Results[0].Status)
	assert.Equal(t, 1, batch.Summary.Passed)
	assert.NotEmpty(t, batch.RunID)
}

func TestCheck_BadFormat(t *testing.T) {
	_, err := execute(t, "check", "--format", "xml")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errViolations)
}

func TestCheck_RegistryLoadError(t *testing.T) {
	dir := writeProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "registry.yaml"), []byte("nodes:\n  a:\n    inherits: missing\n"), 0o644))

	_, err := execute(t, "check", "--config", filepath.Join(dir, "semguard.yaml"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errViolations)
	assert.Contains(t, err.Error(), "load registry")
}

func TestResolve(t *testing.T) {
	dir := writeProject(t)
	cfg := filepath.Join(dir, "semguard.yaml")

	out, err := execute(t, "resolve", "--config", cfg, "app.service", "+no-console")
	require.NoError(t, err)
	assert.Contains(t, out, "chain:  app.base -> app.service")
	assert.Contains(t, out, "mixins: no-console")
	assert.Contains(t, out, "forbid_import axios")

	out, err = execute(t, "resolve", "--config", cfg, "--format", "json", "app.service")
	require.NoError(t, err)
	var res engine.ResolveResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "app.service", res.ArchID)
	assert.NotEmpty(t, res.RegistryChecksum)

	_, err = execute(t, "resolve", "--config", cfg, "app.servce")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.service")
}

func TestInit(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()

	out, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "semguard.yaml")
	assert.FileExists(t, filepath.Join(dir, "semguard.yaml"))

	_, err = execute(t, "init", dir)
	require.Error(t, err)

	_, err = execute(t, "init", "--force", dir)
	require.NoError(t, err)
}

func TestRelativeTo(t *testing.T) {
	root := t.TempDir()
	got := relativeTo(root, []string{filepath.Join(root, "src", "a.ts"), filepath.Join(root, "..", "elsewhere.ts")})
	assert.Equal(t, "src/a.ts", got[0])
	assert.Equal(t, filepath.Join(root, "..", "elsewhere.ts"), got[1])
	assert.Nil(t, relativeTo(root, nil))
}

func TestWriteResult_OrdersByRank(t *testing.T) {
	r := &engine.ValidationResult{
		File:   "src/a.ts",
		Status: engine.StatusFail,
		Violations: []constraint.Violation{
			{Rule: registry.RuleForbidCall, Message: "late error", Severity: registry.SeverityError, Line: 9},
			{Rule: registry.RuleForbidImport, Message: "early error", Severity: registry.SeverityError, Line: 2},
		},
		Warnings: []constraint.Violation{
			{Rule: registry.RuleMaxFileLines, Message: "note", Severity: registry.SeverityInfo, Line: 1},
			{Rule: registry.RuleForbidImport, Message: "soft", Severity: registry.SeverityWarning, Line: 4},
		},
	}

	var out bytes.Buffer
	writeResult(&out, r, false)
	text := out.String()

	order := []string{"early error", "late error", "soft", "note"}
	last := -1
	for _, msg := range order {
		at := strings.Index(text, msg)
		require.GreaterOrEqual(t, at, 0, msg)
		assert.Greater(t, at, last, "%q out of order", msg)
		last = at
	}
}
