// Package resolver flattens an architecture node into one effective rule
// set by walking its inheritance chain and expanding mixins.
package resolver

import (
	"fmt"
	"strings"

	"github.com/c360studio/semguard/registry"
)

// SourceKind identifies where a constraint came from.
type SourceKind string

const (
	SourceNode   SourceKind = "node"
	SourceMixin  SourceKind = "mixin"
	SourceInline SourceKind = "inline"
)

// Source is the node or mixin that contributed a constraint.
type Source struct {
	Kind SourceKind `json:"kind"`
	ID   string     `json:"id"`
}

// String renders nodes by id and mixins as "mixin:<id>".
func (s Source) String() string {
	if s.Kind == SourceNode {
		return s.ID
	}
	return string(s.Kind) + ":" + s.ID
}

// Constraint is a merged constraint tagged with its origin.
type Constraint struct {
	Constraint registry.Constraint `json:"constraint"`
	Source     Source              `json:"source"`
}

// Conflict records two contributions that met on the same key while merging.
// OverriddenRule differs from Rule when an allow/forbid pair collided.
type Conflict struct {
	Rule           registry.Rule     `json:"rule"`
	Value          string            `json:"value"`
	Winner         Source            `json:"winner"`
	Overridden     Source            `json:"overridden"`
	OverriddenRule registry.Rule     `json:"overridden_rule"`
	Severity       registry.Severity `json:"severity"`
	Resolution     string            `json:"resolution"`
}

// Hint is guidance text tagged with its origin.
type Hint struct {
	registry.Hint
	Source Source `json:"source"`
}

// Placement is where files of an architecture are expected to live.
type Placement struct {
	DefaultPath string `json:"default_path,omitempty"`
	FilePattern string `json:"file_pattern,omitempty"`
}

// Deprecation is set when the resolved node is deprecated.
type Deprecation struct {
	From           string `json:"from"`
	MigrationGuide string `json:"migration_guide,omitempty"`
}

// Flattened is the effective rule set for one architecture id.
type Flattened struct {
	ArchID        string       `json:"arch_id"`
	Chain         []string     `json:"chain"`
	MixinsApplied []string     `json:"mixins_applied"`
	Constraints   []Constraint `json:"constraints"`
	Conflicts     []Conflict   `json:"conflicts"`
	Hints         []Hint       `json:"hints,omitempty"`
	Description   string       `json:"description,omitempty"`
	Placement     Placement    `json:"placement"`
	Deprecation   *Deprecation `json:"deprecation,omitempty"`
}

// NotFoundError is returned when an architecture id is not in the registry.
type NotFoundError struct {
	ID          string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("architecture %q not found", e.ID)
	}
	return fmt.Sprintf("architecture %q not found (did you mean %s?)", e.ID, strings.Join(e.Suggestions, ", "))
}

// InlineMixinError is returned when a header names a mixin that cannot be
// applied inline.
type InlineMixinError struct {
	Mixin  string
	Reason string
}

func (e *InlineMixinError) Error() string {
	return fmt.Sprintf("inline mixin %q: %s", e.Mixin, e.Reason)
}

// maxSuggestions bounds the "did you mean" list.
const maxSuggestions = 3

// Resolve flattens the node with the given id.
func Resolve(reg *registry.Registry, id string) (*Flattened, error) {
	return ResolveWith(reg, id, nil)
}

// ResolveWith flattens the node with the given id and then applies inline
// mixins named by a file header, in order, after the leaf.
func ResolveWith(reg *registry.Registry, id string, inlineMixins []string) (*Flattened, error) {
	leaf, ok := reg.Node(id)
	if !ok {
		return nil, &NotFoundError{ID: id, Suggestions: reg.Suggest(id, maxSuggestions)}
	}

	chain, err := inheritanceChain(reg, leaf)
	if err != nil {
		return nil, err
	}

	out := &Flattened{
		ArchID:        id,
		Chain:         make([]string, 0, len(chain)),
		MixinsApplied: []string{},
		Constraints:   []Constraint{},
		Conflicts:     []Conflict{},
	}

	m := newMerger(Source{Kind: SourceNode, ID: id})
	applied := make(map[string]bool)
	seenHints := make(map[string]bool)

	addHints := func(hints []registry.Hint, src Source) {
		for _, h := range hints {
			if h.Text == "" || seenHints[h.Text] {
				continue
			}
			seenHints[h.Text] = true
			out.Hints = append(out.Hints, Hint{Hint: h, Source: src})
		}
	}

	applyMixin := func(mx *registry.Mixin, kind SourceKind) {
		if applied[mx.ID] {
			return
		}
		applied[mx.ID] = true
		out.MixinsApplied = append(out.MixinsApplied, mx.ID)
		src := Source{Kind: kind, ID: mx.ID}
		for _, c := range mx.Constraints {
			m.add(c, src)
		}
		addHints(mx.Hints, src)
	}

	for _, n := range chain {
		out.Chain = append(out.Chain, n.ID)
		for _, mixinID := range n.Mixins {
			mx, ok := reg.Mixin(mixinID)
			if !ok {
				// Dangling mixins fail the load, so a snapshot never has one.
				return nil, fmt.Errorf("node %q references unknown mixin %q", n.ID, mixinID)
			}
			applyMixin(mx, SourceMixin)
		}
		src := Source{Kind: SourceNode, ID: n.ID}
		for _, c := range n.Constraints {
			m.add(c, src)
		}
		addHints(n.Hints, src)
	}

	for _, mixinID := range inlineMixins {
		mx, ok := reg.Mixin(mixinID)
		if !ok {
			return nil, &InlineMixinError{Mixin: mixinID, Reason: "unknown mixin"}
		}
		if mx.Inline == registry.InlineForbidden {
			return nil, &InlineMixinError{Mixin: mixinID, Reason: "mixin may not be applied inline"}
		}
		applyMixin(mx, SourceInline)
	}

	out.Constraints = m.result()
	out.Conflicts = m.conflicts

	// Leaf metadata wins; ancestors fill the gaps.
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		if out.Description == "" {
			out.Description = n.Summary()
		}
		if out.Placement.DefaultPath == "" {
			out.Placement.DefaultPath = n.DefaultPath
		}
		if out.Placement.FilePattern == "" {
			out.Placement.FilePattern = n.FilePattern
		}
	}
	if leaf.Deprecated() {
		out.Deprecation = &Deprecation{From: leaf.DeprecatedFrom, MigrationGuide: leaf.MigrationGuide}
	}

	return out, nil
}

// inheritanceChain returns the nodes from root to leaf.
func inheritanceChain(reg *registry.Registry, leaf *registry.Node) ([]*registry.Node, error) {
	var chain []*registry.Node
	seen := make(map[string]bool)
	for n := leaf; n != nil; {
		if seen[n.ID] {
			return nil, fmt.Errorf("inheritance cycle through %q", n.ID)
		}
		seen[n.ID] = true
		chain = append(chain, n)

		if n.Inherits == "" {
			break
		}
		parent, ok := reg.Node(n.Inherits)
		if !ok {
			return nil, fmt.Errorf("node %q inherits unknown node %q", n.ID, n.Inherits)
		}
		n = parent
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
