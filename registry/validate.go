package registry

import (
	"errors"
	"strings"
)

// validate reports every fatal problem in a deterministic order
func (r *Registry) validate() error {
	var errs []error

	for _, id := range sortedKeys(r.mixins) {
		m := r.mixins[id]
		switch m.Inline {
		case InlineAllowed, InlineOnly, InlineForbidden:
		default:
			errs = append(errs, &LoadError{Kind: ErrKindInlinePolicy, ID: id, Ref: string(m.Inline), Source: m.Source})
		}
		errs = append(errs, checkConstraints(id, m.Source, m.Constraints)...)
		errs = append(errs, r.checkLayers(id, m.Source, m.Constraints)...)
	}

	for _, id := range sortedKeys(r.nodes) {
		n := r.nodes[id]
		if n.Inherits != "" {
			if _, ok := r.nodes[n.Inherits]; !ok {
				errs = append(errs, &LoadError{Kind: ErrKindDanglingParent, ID: id, Ref: n.Inherits, Source: n.Source})
			}
		}
		for _, mixinID := range n.Mixins {
			m, ok := r.mixins[mixinID]
			switch {
			case !ok:
				errs = append(errs, &LoadError{Kind: ErrKindDanglingMixin, ID: id, Ref: mixinID, Source: n.Source})
			case m.Inline == InlineOnly:
				errs = append(errs, &LoadError{Kind: ErrKindInlineOnlyMixin, ID: id, Ref: mixinID, Source: n.Source})
			}
		}
		errs = append(errs, checkConstraints(id, n.Source, n.Constraints)...)
		errs = append(errs, r.checkLayers(id, n.Source, n.Constraints)...)
	}

	errs = append(errs, r.checkCycles()...)

	return errors.Join(errs...)
}

func checkConstraints(id, src string, constraints []Constraint) []error {
	var errs []error
	for _, c := range constraints {
		if !c.Rule.Known() {
			errs = append(errs, &LoadError{Kind: ErrKindUnknownRule, ID: id, Ref: string(c.Rule), Source: src})
		}
		for _, perr := range c.unlessErrs {
			errs = append(errs, &LoadError{Kind: ErrKindPredicate, ID: id, Ref: string(c.Rule), Source: src, Detail: perr.Error()})
		}
	}
	return errs
}

// checkLayers reports layer constraints naming a layer the layer map does
// not declare. Registries without a layer map are not checked.
func (r *Registry) checkLayers(id, src string, constraints []Constraint) []error {
	if len(r.layers) == 0 {
		return nil
	}
	var errs []error
	for _, c := range constraints {
		lv, ok := c.Value.(LayerValue)
		if !ok {
			continue
		}
		for _, name := range append([]string{lv.Name}, lv.MayImport...) {
			if _, ok := r.Layer(name); !ok {
				errs = append(errs, &LoadError{Kind: ErrKindUnknownLayer, ID: id, Ref: name, Source: src})
			}
		}
	}
	return errs
}

// checkCycles reports each inheritance cycle once, named by its smallest id
func (r *Registry) checkCycles() []error {
	var errs []error
	reported := make(map[string]bool)

	for _, start := range sortedKeys(r.nodes) {
		seen := make(map[string]int)
		var path []string
		for id := start; id != ""; {
			if at, ok := seen[id]; ok {
				cycle := path[at:]
				key := minString(cycle)
				if !reported[key] {
					reported[key] = true
					errs = append(errs, &LoadError{
						Kind:   ErrKindCycle,
						ID:     key,
						Ref:    strings.Join(append(rotate(cycle, key), key), " -> "),
						Source: r.nodes[key].Source,
					})
				}
				break
			}
			n, ok := r.nodes[id]
			if !ok {
				break
			}
			seen[id] = len(path)
			path = append(path, id)
			id = n.Inherits
		}
	}
	return errs
}

func minString(ss []string) string {
	m := ss[0]
	for _, s := range ss[1:] {
		if s < m {
			m = s
		}
	}
	return m
}

// rotate returns ss starting at first
func rotate(ss []string, first string) []string {
	for i, s := range ss {
		if s == first {
			return append(append([]string(nil), ss[i:]...), ss[:i]...)
		}
	}
	return ss
}
