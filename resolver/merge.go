package resolver

import (
	"fmt"
	"strings"

	"github.com/c360studio/semguard/registry"
)

// element is one merge unit: a list value contributes one element per item,
// any other value contributes a single element.
type element struct {
	rule  registry.Rule
	raw   string
	group int
	src   Source
	live  bool
}

// group is one contributed constraint before splitting.
type group struct {
	c   registry.Constraint
	src Source
}

// merger folds contributions in order, root first. Later contributions win.
type merger struct {
	leaf      Source
	groups    []group
	elems     []element
	index     map[string]int // rule + key -> live element
	conflicts []Conflict
}

func newMerger(leaf Source) *merger {
	return &merger{
		leaf:      leaf,
		index:     make(map[string]int),
		conflicts: []Conflict{},
	}
}

func (m *merger) add(c registry.Constraint, src Source) {
	g := len(m.groups)
	m.groups = append(m.groups, group{c: c, src: src})

	// A constraint whose value failed to decode is never merged; it has to
	// survive to report its rule error.
	if c.ValueErr != nil || c.Value == nil {
		m.elems = append(m.elems, element{rule: c.Rule, group: g, src: src, live: true})
		return
	}

	items := c.List()
	if items == nil {
		items = []string{c.ValueString()}
	}
	for _, raw := range items {
		m.addElement(c.Rule, raw, g, src)
	}
}

func (m *merger) addElement(rule registry.Rule, raw string, g int, src Source) {
	key := normalize(rule, raw)

	if prev, ok := m.index[indexKey(rule, key)]; ok {
		p := &m.elems[prev]
		p.live = false
		m.conflicts = append(m.conflicts, Conflict{
			Rule:           rule,
			Value:          raw,
			Winner:         src,
			Overridden:     p.src,
			OverriddenRule: rule,
			Severity:       registry.SeverityInfo,
			Resolution:     fmt.Sprintf("duplicate %s %q from %s; keeping the contribution from %s", rule, raw, p.src, src),
		})
	}

	if opp, ok := rule.Opposite(); ok {
		if prev, ok := m.index[indexKey(opp, key)]; ok {
			p := &m.elems[prev]
			p.live = false
			delete(m.index, indexKey(opp, key))
			m.conflicts = append(m.conflicts, Conflict{
				Rule:           rule,
				Value:          raw,
				Winner:         src,
				Overridden:     p.src,
				OverriddenRule: opp,
				Severity:       m.pairSeverity(p.src, src),
				Resolution:     fmt.Sprintf("%s %q from %s overrides %s from %s", rule, raw, src, opp, p.src),
			})
		}
	}

	m.index[indexKey(rule, key)] = len(m.elems)
	m.elems = append(m.elems, element{rule: rule, raw: raw, group: g, src: src, live: true})
}

// pairSeverity grades an allow/forbid collision. A source contradicting
// itself is an error; the leaf overriding what it inherits is expected.
func (m *merger) pairSeverity(loser, winner Source) registry.Severity {
	switch {
	case loser == winner:
		return registry.SeverityError
	case winner == m.leaf:
		return registry.SeverityInfo
	default:
		return registry.SeverityWarning
	}
}

// result rebuilds constraints from live elements in contribution order.
// Constraints whose elements were all overridden are dropped.
func (m *merger) result() []Constraint {
	out := make([]Constraint, 0, len(m.groups))

	i := 0
	for g, grp := range m.groups {
		var (
			survivors []string
			total     int
			alive     bool
		)
		for ; i < len(m.elems) && m.elems[i].group == g; i++ {
			total++
			if m.elems[i].live {
				alive = true
				survivors = append(survivors, m.elems[i].raw)
			}
		}
		if !alive {
			continue
		}

		c := grp.c
		if c.List() != nil && len(survivors) != total {
			c = c.WithList(survivors)
		}
		out = append(out, Constraint{Constraint: c, Source: grp.src})
	}
	return out
}

func normalize(rule registry.Rule, raw string) string {
	s := strings.TrimSpace(raw)
	if rule == registry.RuleForbidDecorator || rule == registry.RuleRequireDecorator {
		s = strings.TrimPrefix(s, "@")
	}
	return s
}

func indexKey(rule registry.Rule, key string) string {
	return string(rule) + "\x00" + key
}
