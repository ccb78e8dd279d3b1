package registry

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Value is a rule value narrowed to the shape its rule expects. The concrete
// type is one of ListValue, StringValue, IntValue, NamingValue or LayerValue.
type Value interface {
	Kind() ValueKind
	String() string
}

// ListValue is a list of module specifiers, callee patterns, regexes or names.
type ListValue []string

func (v ListValue) Kind() ValueKind { return KindList }
func (v ListValue) String() string  { return strings.Join(v, ", ") }

// StringValue is a single string (must_extend, location_pattern).
type StringValue string

func (v StringValue) Kind() ValueKind { return KindString }
func (v StringValue) String() string  { return string(v) }

// IntValue is a numeric limit.
type IntValue int

func (v IntValue) Kind() ValueKind { return KindInt }
func (v IntValue) String() string  { return fmt.Sprintf("%d", int(v)) }

// NamingValue is the structured form of naming_pattern. A bare regex string
// decodes into Pattern with the file as target.
type NamingValue struct {
	// Target is file (default), class, function or export
	Target    string `yaml:"target" json:"target"`
	Pattern   string `yaml:"pattern" json:"pattern,omitempty"`
	Case      string `yaml:"case" json:"case,omitempty"`
	Prefix    string `yaml:"prefix" json:"prefix,omitempty"`
	Suffix    string `yaml:"suffix" json:"suffix,omitempty"`
	Extension string `yaml:"extension" json:"extension,omitempty"`
}

func (v NamingValue) Kind() ValueKind { return KindNaming }

func (v NamingValue) String() string {
	var parts []string
	add := func(k, val string) {
		if val != "" {
			parts = append(parts, k+"="+val)
		}
	}
	add("target", v.Target)
	add("pattern", v.Pattern)
	add("case", v.Case)
	add("prefix", v.Prefix)
	add("suffix", v.Suffix)
	add("extension", v.Extension)
	return strings.Join(parts, ";")
}

// Naming targets.
const (
	TargetFile     = "file"
	TargetClass    = "class"
	TargetFunction = "function"
	TargetExport   = "export"
)

// Case styles accepted by naming_pattern.
var knownCases = map[string]bool{
	"camelCase":            true,
	"PascalCase":           true,
	"snake_case":           true,
	"kebab-case":           true,
	"SCREAMING_SNAKE_CASE": true,
}

// LayerValue names the file's layer and the layers it may import from.
type LayerValue struct {
	Name      string   `yaml:"name" json:"name"`
	MayImport []string `yaml:"may_import" json:"may_import,omitempty"`
}

func (v LayerValue) Kind() ValueKind { return KindLayer }

func (v LayerValue) String() string {
	return fmt.Sprintf("name=%s;may_import=%s", v.Name, strings.Join(v.MayImport, ","))
}

var errMissingValue = errors.New("value is required")

// decodeValue narrows a raw yaml value to the type rule expects
func decodeValue(rule Rule, node *yaml.Node) (Value, error) {
	if node == nil || node.Kind == 0 {
		return nil, errMissingValue
	}
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}

	switch rule.ValueKind() {
	case KindList:
		items, err := decodeStrings(node)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%s expects a non-empty list", rule)
		}
		return ListValue(items), nil

	case KindString:
		if node.Kind != yaml.ScalarNode || strings.TrimSpace(node.Value) == "" {
			return nil, fmt.Errorf("%s expects a string", rule)
		}
		return StringValue(strings.TrimSpace(node.Value)), nil

	case KindInt:
		var n int
		if node.Kind != yaml.ScalarNode || node.Decode(&n) != nil {
			return nil, fmt.Errorf("%s expects an integer, got %q", rule, node.Value)
		}
		if n < 0 {
			return nil, fmt.Errorf("%s expects a non-negative integer, got %d", rule, n)
		}
		return IntValue(n), nil

	case KindNaming:
		return decodeNaming(node)

	case KindLayer:
		return decodeLayer(node)
	}
	return nil, fmt.Errorf("unknown rule %q", rule)
}

// decodeStrings accepts a scalar or a sequence of scalars
func decodeStrings(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if strings.TrimSpace(node.Value) == "" {
			return nil, nil
		}
		return []string{strings.TrimSpace(node.Value)}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: list items must be strings", item.Line)
			}
			if v := strings.TrimSpace(item.Value); v != "" {
				out = append(out, v)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
}

func decodeNaming(node *yaml.Node) (Value, error) {
	var v NamingValue
	switch node.Kind {
	case yaml.ScalarNode:
		v.Pattern = strings.TrimSpace(node.Value)
	case yaml.MappingNode:
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("naming_pattern: %w", err)
		}
	default:
		return nil, fmt.Errorf("naming_pattern expects a regex or a mapping")
	}

	if v.Target == "" {
		v.Target = TargetFile
	}
	switch v.Target {
	case TargetFile, TargetClass, TargetFunction, TargetExport:
	default:
		return nil, fmt.Errorf("naming_pattern: unknown target %q", v.Target)
	}
	if v.Case != "" && !knownCases[v.Case] {
		return nil, fmt.Errorf("naming_pattern: unknown case %q", v.Case)
	}
	if v.Pattern == "" && v.Case == "" && v.Prefix == "" && v.Suffix == "" && v.Extension == "" {
		return nil, fmt.Errorf("naming_pattern: nothing to check")
	}
	return v, nil
}

func decodeLayer(node *yaml.Node) (Value, error) {
	var v LayerValue
	switch node.Kind {
	case yaml.ScalarNode:
		v.Name = strings.TrimSpace(node.Value)
	case yaml.MappingNode:
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("layer: %w", err)
		}
	default:
		return nil, fmt.Errorf("layer expects a name or {name, may_import}")
	}
	if v.Name == "" {
		return nil, fmt.Errorf("layer: name is required")
	}
	return v, nil
}

// stringList decodes a scalar or a sequence of scalars
type stringList []string

func (s *stringList) UnmarshalYAML(node *yaml.Node) error {
	items, err := decodeStrings(node)
	if err != nil {
		return err
	}
	*s = items
	return nil
}
