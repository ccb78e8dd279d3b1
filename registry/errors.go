package registry

import "fmt"

// LoadErrorKind classifies a fatal registry problem.
type LoadErrorKind string

const (
	ErrKindSyntax          LoadErrorKind = "syntax"
	ErrKindDuplicate       LoadErrorKind = "duplicate_id"
	ErrKindUnknownRule     LoadErrorKind = "unknown_rule"
	ErrKindCycle           LoadErrorKind = "cycle"
	ErrKindDanglingParent  LoadErrorKind = "dangling_parent"
	ErrKindDanglingMixin   LoadErrorKind = "dangling_mixin"
	ErrKindInlineOnlyMixin LoadErrorKind = "inline_only_mixin"
	ErrKindInlinePolicy    LoadErrorKind = "inline_policy"
	ErrKindPredicate       LoadErrorKind = "malformed_predicate"
	ErrKindUnknownLayer    LoadErrorKind = "unknown_layer"
)

// LoadError is a fatal problem found while loading a registry. It names the
// offending node or mixin.
type LoadError struct {
	Kind LoadErrorKind

	// ID is the node or mixin the problem belongs to
	ID string

	// Ref is the referenced id, rule or predicate, when there is one
	Ref string

	// Source is the document the definition came from
	Source string

	Detail string
}

func (e *LoadError) Error() string {
	var msg string
	switch e.Kind {
	case ErrKindSyntax:
		msg = "invalid registry document"
	case ErrKindDuplicate:
		msg = fmt.Sprintf("%q is defined more than once", e.ID)
	case ErrKindUnknownRule:
		msg = fmt.Sprintf("%q uses unknown rule %q", e.ID, e.Ref)
	case ErrKindCycle:
		msg = fmt.Sprintf("inheritance cycle through %q: %s", e.ID, e.Ref)
	case ErrKindDanglingParent:
		msg = fmt.Sprintf("%q inherits unknown node %q", e.ID, e.Ref)
	case ErrKindDanglingMixin:
		msg = fmt.Sprintf("%q references unknown mixin %q", e.ID, e.Ref)
	case ErrKindInlineOnlyMixin:
		msg = fmt.Sprintf("%q references inline-only mixin %q", e.ID, e.Ref)
	case ErrKindInlinePolicy:
		msg = fmt.Sprintf("mixin %q has unknown inline policy %q", e.ID, e.Ref)
	case ErrKindPredicate:
		msg = fmt.Sprintf("%q has a malformed unless predicate", e.ID)
	case ErrKindUnknownLayer:
		msg = fmt.Sprintf("%q names undeclared layer %q", e.ID, e.Ref)
	default:
		msg = fmt.Sprintf("%q: %s", e.ID, e.Kind)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	return "registry: " + msg
}
