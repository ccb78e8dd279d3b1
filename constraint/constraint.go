// Package constraint evaluates flattened architecture rules against a
// Semantic Model. Each rule has one evaluator; a Set applies the checks
// shared by every rule (value errors, applies_when, unless exemptions and
// remediation) around the evaluator.
package constraint

import (
	"fmt"
	"sort"

	"github.com/c360studio/semguard/registry"
	"github.com/c360studio/semguard/semantic"
)

// Validator evaluates one constraint against one file.
type Validator interface {
	Validate(c registry.Constraint, ctx *Context) Outcome
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(c registry.Constraint, ctx *Context) Outcome

// Validate implements Validator.
func (f ValidatorFunc) Validate(c registry.Constraint, ctx *Context) Outcome {
	return f(c, ctx)
}

// LayerMap assigns file paths to architectural layers.
type LayerMap interface {
	LayerFor(path string) (string, bool)
}

// Context bundles everything an evaluator may look at for one file.
type Context struct {
	// FilePath is the path of the file, relative to the project root
	FilePath string

	Model   *semantic.Model
	Content string

	// ArchID is the architecture the file is tagged with
	ArchID string

	// Intents are the file-level intents from the header
	Intents []string

	// Patterns is the canonical pattern registry used for did-you-mean
	Patterns []registry.Pattern

	// Layers maps imported files to layers; nil disables the layer rule
	Layers LayerMap
}

// HasIntent reports whether the file header declares intent.
func (ctx *Context) HasIntent(intent string) bool {
	for _, in := range ctx.Intents {
		if in == intent {
			return true
		}
	}
	return false
}

// Outcome is the result of evaluating one constraint.
type Outcome struct {
	Passed bool `json:"passed"`

	// Skipped is set when applies_when did not match or a file-level
	// exemption applied
	Skipped bool `json:"skipped,omitempty"`

	Violations []Violation `json:"violations,omitempty"`
}

// Suggestion actions.
const (
	ActionReplace = "replace"
	ActionRemove  = "remove"
	ActionAdd     = "add"
	ActionMove    = "move"
)

// Suggestion is a structured fix for a violation.
type Suggestion struct {
	Action          string `json:"action"`
	Target          string `json:"target,omitempty"`
	Replacement     string `json:"replacement,omitempty"`
	ImportStatement string `json:"import_statement,omitempty"`
}

// DidYouMean points at a canonical implementation to use instead.
type DidYouMean struct {
	File        string `json:"file"`
	Export      string `json:"export,omitempty"`
	Description string `json:"description,omitempty"`
	Example     string `json:"example,omitempty"`
}

// Violation is one broken rule.
type Violation struct {
	Rule     registry.Rule     `json:"rule"`
	Value    string            `json:"value"`
	Message  string            `json:"message"`
	Severity registry.Severity `json:"severity"`
	Line     int               `json:"line,omitempty"`
	Why      string            `json:"why,omitempty"`
	FixHint  string            `json:"fix_hint,omitempty"`

	// Source is the node or mixin that contributed the rule
	Source string `json:"source,omitempty"`

	Count int `json:"count,omitempty"`
	Limit int `json:"limit,omitempty"`

	// RuleError marks a violation raised because the constraint itself is
	// malformed rather than because the code broke it
	RuleError bool `json:"rule_error,omitempty"`

	CodeExample string      `json:"code_example,omitempty"`
	Suggestion  *Suggestion `json:"suggestion,omitempty"`
	DidYouMean  *DidYouMean `json:"did_you_mean,omitempty"`
}

// Set maps rule names to evaluators.
type Set struct {
	validators map[registry.Rule]Validator
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{validators: make(map[registry.Rule]Validator)}
}

// Register adds or replaces the evaluator for rule.
func (s *Set) Register(rule registry.Rule, v Validator) {
	s.validators[rule] = v
}

// Lookup returns the evaluator for rule.
func (s *Set) Lookup(rule registry.Rule) (Validator, bool) {
	v, ok := s.validators[rule]
	return v, ok
}

// Rules returns the registered rule names, sorted.
func (s *Set) Rules() []registry.Rule {
	rules := make([]registry.Rule, 0, len(s.validators))
	for r := range s.validators {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i] < rules[j] })
	return rules
}

// DefaultSet returns a set with an evaluator for every known rule.
func DefaultSet() *Set {
	s := NewSet()
	s.Register(registry.RuleForbidImport, ValidatorFunc(forbidImport))
	s.Register(registry.RuleAllowImport, ValidatorFunc(allow))
	s.Register(registry.RuleRequireImport, ValidatorFunc(requireImport))
	s.Register(registry.RuleForbidCall, ValidatorFunc(forbidCall))
	s.Register(registry.RuleAllowCall, ValidatorFunc(allow))
	s.Register(registry.RuleRequireCall, ValidatorFunc(requireCall))
	s.Register(registry.RuleRequireTryCatch, ValidatorFunc(requireTryCatch))
	s.Register(registry.RuleForbidMutation, ValidatorFunc(forbidMutation))
	s.Register(registry.RuleForbidPattern, ValidatorFunc(forbidPattern))
	s.Register(registry.RuleAllowPattern, ValidatorFunc(allow))
	s.Register(registry.RuleRequirePattern, ValidatorFunc(requirePattern))
	s.Register(registry.RuleForbidDecorator, ValidatorFunc(forbidDecorator))
	s.Register(registry.RuleRequireDecorator, ValidatorFunc(requireDecorator))
	s.Register(registry.RuleMustExtend, ValidatorFunc(mustExtend))
	s.Register(registry.RuleImplements, ValidatorFunc(implements))
	s.Register(registry.RuleRequireExport, ValidatorFunc(requireExport))
	s.Register(registry.RuleMaxPublicMethods, ValidatorFunc(maxPublicMethods))
	s.Register(registry.RuleMaxFileLines, ValidatorFunc(maxFileLines))
	s.Register(registry.RuleNamingPattern, ValidatorFunc(namingPattern))
	s.Register(registry.RuleLocationPattern, ValidatorFunc(locationPattern))
	s.Register(registry.RuleLayer, ValidatorFunc(layer))
	return s
}

// Validate runs the evaluator for c.Rule with the shared checks applied:
//   - a value that failed to decode becomes a single rule-error violation
//   - applies_when must match the content, otherwise the rule is skipped
//   - an unless predicate satisfied by the whole file skips the rule
//   - an intent predicate drops matches inside functions carrying it
func (s *Set) Validate(c registry.Constraint, ctx *Context) Outcome {
	if c.ValueErr != nil {
		return failed(ruleError(c, c.ValueErr))
	}
	if ctx.Model == nil {
		cp := *ctx
		cp.Model = &semantic.Model{Path: ctx.FilePath, Content: ctx.Content}
		ctx = &cp
	}

	v, ok := s.validators[c.Rule]
	if !ok {
		return failed(ruleError(c, fmt.Errorf("no evaluator for rule %q", c.Rule)))
	}

	if c.AppliesWhen != "" {
		re, err := compile(c.AppliesWhen, "")
		if err != nil {
			return failed(ruleError(c, fmt.Errorf("applies_when: %w", err)))
		}
		if !re.MatchString(ctx.Content) {
			return Outcome{Passed: true, Skipped: true}
		}
	}

	if fileExempt(c, ctx) {
		return Outcome{Passed: true, Skipped: true}
	}

	out := v.Validate(c, ctx)
	out.Violations = dropScopedExemptions(c, ctx, out.Violations)

	for i := range out.Violations {
		finish(&out.Violations[i], c, ctx)
	}
	out.Passed = len(out.Violations) == 0
	return out
}

// fileExempt is the first exemption tier: an intent declared in the file
// header, or an import present anywhere in the file.
func fileExempt(c registry.Constraint, ctx *Context) bool {
	for _, p := range c.Unless {
		switch p.Kind {
		case registry.PredicateIntent:
			if ctx.HasIntent(p.Value) {
				return true
			}
		case registry.PredicateImport:
			if ctx.Model != nil && ctx.Model.HasImport(p.Value) {
				return true
			}
		}
	}
	return false
}

// dropScopedExemptions is the second tier: a match inside a function whose
// own intents include an exempting intent is dropped. Only the innermost
// enclosing function counts.
func dropScopedExemptions(c registry.Constraint, ctx *Context, violations []Violation) []Violation {
	if !c.HasIntentExemption() || ctx.Model == nil || len(violations) == 0 {
		return violations
	}

	kept := violations[:0]
	for _, v := range violations {
		if v.Line > 0 && !v.RuleError {
			if fn, ok := ctx.Model.EnclosingFunction(v.Line); ok && exemptFunction(c, fn) {
				continue
			}
		}
		kept = append(kept, v)
	}
	return kept
}

func exemptFunction(c registry.Constraint, fn semantic.Function) bool {
	for _, p := range c.Unless {
		if p.Kind == registry.PredicateIntent && fn.HasIntent(p.Value) {
			return true
		}
	}
	return false
}

// finish stamps constraint metadata onto a violation and synthesizes a
// remediation when the evaluator did not supply one.
func finish(v *Violation, c registry.Constraint, ctx *Context) {
	v.Rule = c.Rule
	if v.Severity == "" {
		v.Severity = c.Severity
	}
	if v.Why == "" {
		v.Why = c.Why
	}
	if v.FixHint == "" {
		v.FixHint = c.FixHint
	}
	if v.CodeExample == "" {
		v.CodeExample = c.CodeExample
	}
	if !v.RuleError {
		remediate(v, c, ctx)
	}
}

func failed(v Violation) Outcome {
	return Outcome{Violations: []Violation{v}}
}

// ruleError reports a malformed constraint. It is always error severity.
func ruleError(c registry.Constraint, err error) Violation {
	return Violation{
		Rule:      c.Rule,
		Value:     c.ValueString(),
		Message:   fmt.Sprintf("invalid %s constraint: %v", c.Rule, err),
		Severity:  registry.SeverityError,
		Why:       c.Why,
		RuleError: true,
	}
}

func allow(registry.Constraint, *Context) Outcome {
	return Outcome{Passed: true}
}
