package registry

import "sort"

// Rule names a constraint evaluator.
type Rule string

// The closed set of rule names.
const (
	RuleForbidImport     Rule = "forbid_import"
	RuleAllowImport      Rule = "allow_import"
	RuleRequireImport    Rule = "require_import"
	RuleForbidCall       Rule = "forbid_call"
	RuleAllowCall        Rule = "allow_call"
	RuleRequireCall      Rule = "require_call"
	RuleRequireTryCatch  Rule = "require_try_catch"
	RuleForbidMutation   Rule = "forbid_mutation"
	RuleForbidPattern    Rule = "forbid_pattern"
	RuleAllowPattern     Rule = "allow_pattern"
	RuleRequirePattern   Rule = "require_pattern"
	RuleForbidDecorator  Rule = "forbid_decorator"
	RuleRequireDecorator Rule = "require_decorator"
	RuleMustExtend       Rule = "must_extend"
	RuleImplements       Rule = "implements"
	RuleRequireExport    Rule = "require_export"
	RuleMaxPublicMethods Rule = "max_public_methods"
	RuleMaxFileLines     Rule = "max_file_lines"
	RuleNamingPattern    Rule = "naming_pattern"
	RuleLocationPattern  Rule = "location_pattern"
	RuleLayer            Rule = "layer"
)

// ValueKind is the shape a rule's value must have.
type ValueKind string

const (
	KindList   ValueKind = "list"
	KindString ValueKind = "string"
	KindInt    ValueKind = "int"
	KindNaming ValueKind = "naming"
	KindLayer  ValueKind = "layer"
)

var ruleKinds = map[Rule]ValueKind{
	RuleForbidImport:     KindList,
	RuleAllowImport:      KindList,
	RuleRequireImport:    KindList,
	RuleForbidCall:       KindList,
	RuleAllowCall:        KindList,
	RuleRequireCall:      KindList,
	RuleRequireTryCatch:  KindList,
	RuleForbidMutation:   KindList,
	RuleForbidPattern:    KindList,
	RuleAllowPattern:     KindList,
	RuleRequirePattern:   KindList,
	RuleForbidDecorator:  KindList,
	RuleRequireDecorator: KindList,
	RuleMustExtend:       KindString,
	RuleImplements:       KindList,
	RuleRequireExport:    KindList,
	RuleMaxPublicMethods: KindInt,
	RuleMaxFileLines:     KindInt,
	RuleNamingPattern:    KindNaming,
	RuleLocationPattern:  KindString,
	RuleLayer:            KindLayer,
}

// opposites pairs each allow rule with its forbid counterpart
var opposites = map[Rule]Rule{
	RuleForbidImport:  RuleAllowImport,
	RuleAllowImport:   RuleForbidImport,
	RuleForbidCall:    RuleAllowCall,
	RuleAllowCall:     RuleForbidCall,
	RuleForbidPattern: RuleAllowPattern,
	RuleAllowPattern:  RuleForbidPattern,
}

// KnownRules returns every rule name, sorted.
func KnownRules() []Rule {
	rules := make([]Rule, 0, len(ruleKinds))
	for r := range ruleKinds {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i] < rules[j] })
	return rules
}

// Known reports whether r is in the closed rule set.
func (r Rule) Known() bool {
	_, ok := ruleKinds[r]
	return ok
}

// ValueKind returns the value shape r expects.
func (r Rule) ValueKind() ValueKind {
	return ruleKinds[r]
}

// Opposite returns the opposite-polarity rule for allow/forbid pairs.
func (r Rule) Opposite() (Rule, bool) {
	o, ok := opposites[r]
	return o, ok
}

// Severity grades a violation or conflict.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Valid reports whether s is one of the three severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// Rank orders severities; error ranks highest.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	}
	return 0
}
