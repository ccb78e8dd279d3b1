package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Node is an architecture definition.
type Node struct {
	// ID is the dot-segmented node id, filled from the document key
	ID string `yaml:"-"`

	// Inherits is the parent node id
	Inherits string `yaml:"inherits"`

	Description string `yaml:"description"`
	Rationale   string `yaml:"rationale"`

	// Mixins are applied in listed order, before the node's own constraints
	Mixins      stringList   `yaml:"mixins"`
	Constraints []Constraint `yaml:"constraints"`
	Hints       []Hint       `yaml:"hints"`

	DefaultPath string `yaml:"default_path"`
	FilePattern string `yaml:"file_pattern"`

	DeprecatedFrom string `yaml:"deprecated_from"`
	MigrationGuide string `yaml:"migration_guide"`

	// Source is the document the node was loaded from
	Source string `yaml:"-"`
}

// Summary returns the description, falling back to the rationale.
func (n Node) Summary() string {
	if n.Description != "" {
		return n.Description
	}
	return n.Rationale
}

// Deprecated reports whether the node carries deprecation metadata.
func (n Node) Deprecated() bool {
	return n.DeprecatedFrom != ""
}

// InlinePolicy governs whether a mixin may be applied ad hoc from a file
// header instead of through the registry.
type InlinePolicy string

const (
	InlineAllowed   InlinePolicy = "allowed"
	InlineOnly      InlinePolicy = "only"
	InlineForbidden InlinePolicy = "forbidden"
)

// Mixin is a reusable bundle of constraints and hints.
type Mixin struct {
	ID          string       `yaml:"-"`
	Description string       `yaml:"description"`
	Constraints []Constraint `yaml:"constraints"`
	Hints       []Hint       `yaml:"hints"`
	Inline      InlinePolicy `yaml:"inline"`
	Source      string       `yaml:"-"`
}

// Hint is guidance text attached to a node or mixin. In yaml a hint is
// either a plain string or {text, example}.
type Hint struct {
	Text    string `yaml:"text" json:"text"`
	Example string `yaml:"example,omitempty" json:"example,omitempty"`
}

// UnmarshalYAML accepts the plain string form.
func (h *Hint) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		h.Text = node.Value
		return nil
	}
	type plain Hint
	return node.Decode((*plain)(h))
}

// Alternative is a structured remediation pointing at a canonical module.
type Alternative struct {
	Module      string `yaml:"module" json:"module,omitempty"`
	Export      string `yaml:"export" json:"export,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
	Example     string `yaml:"example" json:"example,omitempty"`
}

// PredicateKind is the kind of an exemption predicate.
type PredicateKind string

const (
	PredicateIntent PredicateKind = "intent"
	PredicateImport PredicateKind = "import"
)

// Predicate is one `unless` entry: "@intent:<name>" or "import:<module>".
type Predicate struct {
	Kind  PredicateKind
	Value string
}

func (p Predicate) String() string {
	if p.Kind == PredicateIntent {
		return "@intent:" + p.Value
	}
	return "import:" + p.Value
}

// ParsePredicate parses an `unless` entry.
func ParsePredicate(s string) (Predicate, error) {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"@intent:", "intent:"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			if rest = strings.TrimSpace(rest); rest != "" {
				return Predicate{Kind: PredicateIntent, Value: rest}, nil
			}
		}
	}
	if rest, ok := strings.CutPrefix(s, "import:"); ok {
		if rest = strings.TrimSpace(rest); rest != "" {
			return Predicate{Kind: PredicateImport, Value: rest}, nil
		}
	}
	return Predicate{}, fmt.Errorf("malformed unless predicate %q: want @intent:<name> or import:<module>", s)
}

// Constraint is one rule applied by a node or mixin.
type Constraint struct {
	Rule     Rule     `json:"rule"`
	Severity Severity `json:"severity"`

	// Value is nil when ValueErr is set
	Value Value `json:"-"`

	// ValueErr records a value that does not fit the rule. The constraint
	// is still loaded and reports the problem when it is evaluated.
	ValueErr error `json:"-"`

	Why          string        `json:"why,omitempty"`
	FixHint      string        `json:"fix_hint,omitempty"`
	Alternative  string        `json:"alternative,omitempty"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	AppliesWhen  string        `json:"applies_when,omitempty"`
	Unless       []Predicate   `json:"-"`
	CodeExample  string        `json:"code_example,omitempty"`

	// unlessErrs holds malformed predicates; load validation reports them
	unlessErrs []error
}

// UnmarshalYAML decodes a constraint, narrowing its value to the type the
// rule expects.
func (c *Constraint) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Rule         string        `yaml:"rule"`
		Value        yaml.Node     `yaml:"value"`
		Severity     string        `yaml:"severity"`
		Why          string        `yaml:"why"`
		FixHint      string        `yaml:"fix_hint"`
		Alternative  string        `yaml:"alternative"`
		Alternatives []Alternative `yaml:"alternatives"`
		AppliesWhen  string        `yaml:"applies_when"`
		Unless       stringList    `yaml:"unless"`
		CodeExample  string        `yaml:"code_example"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	*c = Constraint{
		Rule:         Rule(strings.TrimSpace(raw.Rule)),
		Severity:     Severity(raw.Severity),
		Why:          raw.Why,
		FixHint:      raw.FixHint,
		Alternative:  raw.Alternative,
		Alternatives: raw.Alternatives,
		AppliesWhen:  raw.AppliesWhen,
		CodeExample:  raw.CodeExample,
	}
	if c.Severity == "" {
		c.Severity = SeverityError
	}

	if c.Rule.Known() {
		c.Value, c.ValueErr = decodeValue(c.Rule, &raw.Value)
	}
	if c.ValueErr == nil && !c.Severity.Valid() {
		c.ValueErr = fmt.Errorf("unknown severity %q", raw.Severity)
		c.Severity = SeverityError
	}

	for _, s := range raw.Unless {
		p, err := ParsePredicate(s)
		if err != nil {
			c.unlessErrs = append(c.unlessErrs, err)
			continue
		}
		c.Unless = append(c.Unless, p)
	}
	return nil
}

// MarshalJSON renders the constraint with its narrowed value, or the value
// error when the value did not fit the rule.
func (c Constraint) MarshalJSON() ([]byte, error) {
	type view struct {
		Rule         Rule          `json:"rule"`
		Value        Value         `json:"value,omitempty"`
		ValueError   string        `json:"value_error,omitempty"`
		Severity     Severity      `json:"severity"`
		Why          string        `json:"why,omitempty"`
		FixHint      string        `json:"fix_hint,omitempty"`
		Alternative  string        `json:"alternative,omitempty"`
		Alternatives []Alternative `json:"alternatives,omitempty"`
		AppliesWhen  string        `json:"applies_when,omitempty"`
		Unless       []string      `json:"unless,omitempty"`
		CodeExample  string        `json:"code_example,omitempty"`
	}
	v := view{
		Rule:         c.Rule,
		Value:        c.Value,
		Severity:     c.Severity,
		Why:          c.Why,
		FixHint:      c.FixHint,
		Alternative:  c.Alternative,
		Alternatives: c.Alternatives,
		AppliesWhen:  c.AppliesWhen,
		CodeExample:  c.CodeExample,
	}
	if c.ValueErr != nil {
		v.ValueError = c.ValueErr.Error()
	}
	for _, p := range c.Unless {
		v.Unless = append(v.Unless, p.String())
	}
	return json.Marshal(v)
}

// List returns the items of a list value.
func (c Constraint) List() []string {
	if v, ok := c.Value.(ListValue); ok {
		return v
	}
	return nil
}

// WithList returns a copy of c carrying items as its list value.
func (c Constraint) WithList(items []string) Constraint {
	c.Value = ListValue(append([]string(nil), items...))
	return c
}

// ValueString renders the value for messages and merge keys.
func (c Constraint) ValueString() string {
	if c.Value == nil {
		return ""
	}
	return c.Value.String()
}

// HasIntentExemption reports whether any unless predicate names an intent.
func (c Constraint) HasIntentExemption() bool {
	for _, p := range c.Unless {
		if p.Kind == PredicateIntent {
			return true
		}
	}
	return false
}

// Layer maps a layer name to the file globs that belong to it.
type Layer struct {
	Name  string
	Globs []string
}

// Pattern is a canonical implementation that violations can point to.
type Pattern struct {
	Name      string     `yaml:"-"`
	Canonical string     `yaml:"canonical"`
	Exports   stringList `yaml:"exports"`
	Usage     string     `yaml:"usage"`
	Keywords  stringList `yaml:"keywords"`
}
