package constraint

import (
	"fmt"
	"strings"

	"github.com/c360studio/semguard/registry"
	"github.com/c360studio/semguard/semantic"
)

// remediable rules are the ones where the offending code is present and
// can be replaced or removed.
var remediable = map[registry.Rule]bool{
	registry.RuleForbidImport:    true,
	registry.RuleForbidCall:      true,
	registry.RuleForbidPattern:   true,
	registry.RuleForbidDecorator: true,
	registry.RuleForbidMutation:  true,
	registry.RuleLayer:           true,
}

// remediate fills Suggestion and DidYouMean, in order of preference: the
// constraint's single alternative, its first structured alternative, a
// canonical pattern whose keyword appears in the offending text, removal.
func remediate(v *Violation, c registry.Constraint, ctx *Context) {
	if v.Suggestion != nil || !remediable[c.Rule] {
		return
	}

	var lang semantic.Language
	if ctx.Model != nil {
		lang = ctx.Model.Language
	}

	switch {
	case c.Alternative != "":
		s := &Suggestion{Action: ActionReplace, Target: v.Value, Replacement: c.Alternative}
		if c.Rule == registry.RuleForbidImport {
			s.ImportStatement = importStatement(lang, c.Alternative, "")
		}
		v.Suggestion = s

	case len(c.Alternatives) > 0:
		a := c.Alternatives[0]
		replacement := a.Module
		if c.Rule != registry.RuleForbidImport && a.Export != "" {
			replacement = a.Export
		}
		s := &Suggestion{Action: ActionReplace, Target: v.Value, Replacement: replacement}
		if a.Module != "" {
			s.ImportStatement = importStatement(lang, a.Module, a.Export)
		}
		v.Suggestion = s
		v.DidYouMean = &DidYouMean{
			File:        a.Module,
			Export:      a.Export,
			Description: a.Description,
			Example:     a.Example,
		}

	default:
		if p, ok := canonicalFor(ctx.Patterns, v.Value); ok {
			v.DidYouMean = &DidYouMean{File: p.Canonical, Description: p.Usage}
			if len(p.Exports) > 0 {
				v.DidYouMean.Export = p.Exports[0]
			}
		}
		v.Suggestion = &Suggestion{Action: ActionRemove, Target: v.Value}
	}
}

// canonicalFor finds the first pattern, in name order, with a keyword
// contained in text.
func canonicalFor(patterns []registry.Pattern, text string) (registry.Pattern, bool) {
	text = strings.ToLower(text)
	if text == "" {
		return registry.Pattern{}, false
	}
	for _, p := range patterns {
		for _, kw := range p.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return p, true
			}
		}
	}
	return registry.Pattern{}, false
}

// importStatement renders an import line in the file's language.
func importStatement(lang semantic.Language, module, export string) string {
	switch lang {
	case semantic.LangPython:
		if export != "" {
			return fmt.Sprintf("from %s import %s", module, export)
		}
		return "import " + module
	case semantic.LangGo:
		return fmt.Sprintf("import %q", module)
	case semantic.LangTypeScript, semantic.LangJavaScript:
		if export != "" {
			return fmt.Sprintf("import { %s } from '%s';", export, module)
		}
		return fmt.Sprintf("import '%s';", module)
	}
	return ""
}
