package constraint

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/semguard/registry"
	"github.com/c360studio/semguard/semantic"
)

// patternFlags gives pattern rules multiline and dot-all semantics.
const patternFlags = "ms"

// forbidPattern reports every match of every regex as its own violation.
// Matching runs over the raw text; exclusions come from applies_when and
// unless.
func forbidPattern(c registry.Constraint, ctx *Context) Outcome {
	var out Outcome
	var offsets []int
	for _, expr := range c.List() {
		re, err := compile(expr, patternFlags)
		if err != nil {
			out.Violations = append(out.Violations, ruleError(c, fmt.Errorf("pattern %q: %w", expr, err)))
			continue
		}
		for _, loc := range re.FindAllStringIndex(ctx.Content, -1) {
			if loc[0] == loc[1] {
				continue
			}
			if offsets == nil {
				offsets = semantic.LineOffsets(ctx.Content)
			}
			out.Violations = append(out.Violations, Violation{
				Value:   truncate(ctx.Content[loc[0]:loc[1]], 80),
				Message: fmt.Sprintf("forbidden pattern %s matched", expr),
				Line:    semantic.LineAt(offsets, loc[0]),
			})
		}
	}
	return out
}

func requirePattern(c registry.Constraint, ctx *Context) Outcome {
	var out Outcome
	for _, expr := range c.List() {
		re, err := compile(expr, patternFlags)
		if err != nil {
			out.Violations = append(out.Violations, ruleError(c, fmt.Errorf("pattern %q: %w", expr, err)))
			continue
		}
		if !re.MatchString(ctx.Content) {
			out.Violations = append(out.Violations, Violation{
				Value:   expr,
				Message: fmt.Sprintf("required pattern %s not found", expr),
			})
		}
	}
	return out
}

// namingPattern checks the file's base name or each declared symbol of the
// configured target.
func namingPattern(c registry.Constraint, ctx *Context) Outcome {
	nv, _ := c.Value.(registry.NamingValue)

	var re *regexp.Regexp
	if nv.Pattern != "" {
		var err error
		if re, err = compile(nv.Pattern, ""); err != nil {
			return failed(ruleError(c, fmt.Errorf("pattern %q: %w", nv.Pattern, err)))
		}
	}

	var out Outcome
	check := func(kind, name string, line int) {
		if problems := nameProblems(nv, re, kind, name); len(problems) > 0 {
			out.Violations = append(out.Violations, Violation{
				Value:   name,
				Message: fmt.Sprintf("%s name %q %s", kind, name, strings.Join(problems, "; ")),
				Line:    line,
			})
		}
	}

	switch nv.Target {
	case registry.TargetClass:
		for _, cls := range ctx.Model.Classes {
			check(registry.TargetClass, cls.Name, cls.StartLine)
		}
	case registry.TargetFunction:
		for _, fn := range ctx.Model.Functions {
			if fn.Visibility == semantic.VisibilityPublic {
				check(registry.TargetFunction, fn.Name, fn.StartLine)
			}
		}
	case registry.TargetExport:
		for _, exp := range ctx.Model.Exports {
			if exp.Name != "default" {
				check(registry.TargetExport, exp.Name, exp.Line)
			}
		}
	default:
		check(registry.TargetFile, path.Base(filepath.ToSlash(ctx.FilePath)), 0)
	}
	return out
}

// nameProblems lists how name fails the naming spec. For files the regex
// sees the whole base name while case, prefix and suffix see the stem
// before the extension.
func nameProblems(nv registry.NamingValue, re *regexp.Regexp, kind, name string) []string {
	var problems []string
	stem := name

	if kind == registry.TargetFile {
		if nv.Extension != "" {
			ext := "." + strings.TrimPrefix(nv.Extension, ".")
			if !strings.HasSuffix(name, ext) {
				problems = append(problems, fmt.Sprintf("must have extension %s", ext))
			}
			stem = strings.TrimSuffix(name, ext)
		} else if i := strings.IndexByte(name, '.'); i > 0 {
			stem = name[:i]
		}
	}

	if re != nil && !re.MatchString(name) {
		problems = append(problems, fmt.Sprintf("does not match %s", nv.Pattern))
	}
	if nv.Prefix != "" && !strings.HasPrefix(stem, nv.Prefix) {
		problems = append(problems, fmt.Sprintf("must start with %s", nv.Prefix))
	}
	if nv.Suffix != "" && !strings.HasSuffix(stem, nv.Suffix) {
		problems = append(problems, fmt.Sprintf("must end with %s", nv.Suffix))
	}
	if cr, ok := caseRes[nv.Case]; ok && !cr.MatchString(stem) {
		problems = append(problems, fmt.Sprintf("is not %s", nv.Case))
	}
	return problems
}

// locationPattern requires the file path to match a doublestar glob. A
// relative glob may match at any depth.
func locationPattern(c registry.Constraint, ctx *Context) Outcome {
	pattern := c.ValueString()
	if !doublestar.ValidatePattern(pattern) {
		return failed(ruleError(c, fmt.Errorf("invalid glob %q", pattern)))
	}

	p := filepath.ToSlash(filepath.Clean(ctx.FilePath))
	if ok, _ := doublestar.Match(pattern, p); ok {
		return Outcome{Passed: true}
	}
	if !strings.HasPrefix(pattern, "/") && !strings.HasPrefix(pattern, "**") {
		if ok, _ := doublestar.Match("**/"+pattern, p); ok {
			return Outcome{Passed: true}
		}
	}

	return Outcome{Violations: []Violation{{
		Value:      p,
		Message:    fmt.Sprintf("file %s is outside %s", p, pattern),
		Suggestion: &Suggestion{Action: ActionMove, Target: p, Replacement: pattern},
	}}}
}

// layer checks that the file sits in its declared layer and that every
// import resolving into a known layer targets the same layer or one listed
// in may_import.
func layer(c registry.Constraint, ctx *Context) Outcome {
	lv, _ := c.Value.(registry.LayerValue)
	if ctx.Layers == nil {
		return Outcome{Passed: true}
	}

	allowed := map[string]bool{lv.Name: true}
	for _, l := range lv.MayImport {
		allowed[l] = true
	}

	var out Outcome
	if own, ok := ctx.Layers.LayerFor(ctx.FilePath); ok && own != lv.Name {
		out.Violations = append(out.Violations, Violation{
			Value:   own,
			Message: fmt.Sprintf("file lies in layer %q but its architecture declares layer %q", own, lv.Name),
		})
	}

	for _, imp := range ctx.Model.Imports {
		target := semantic.ImportTarget(ctx.FilePath, imp.Module, ctx.Model.Language)
		l, ok := ctx.Layers.LayerFor(target)
		if !ok || allowed[l] {
			continue
		}
		out.Violations = append(out.Violations, Violation{
			Value:   imp.Module,
			Message: fmt.Sprintf("layer %q may not import from layer %q (%s)", lv.Name, l, imp.Module),
			Line:    imp.Line,
		})
	}
	return out
}
