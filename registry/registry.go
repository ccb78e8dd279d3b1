// Package registry loads architecture definitions (nodes, mixins, layers and
// canonical patterns) from yaml documents into an immutable snapshot.
package registry

import (
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/agnivade/levenshtein"
	"github.com/bmatcuk/doublestar/v4"
)

// Registry is an immutable snapshot of loaded architecture definitions.
// It is safe for concurrent use; a reload produces a new Registry.
type Registry struct {
	nodes    map[string]*Node
	mixins   map[string]*Mixin
	layers   []Layer   // sorted by name
	patterns []Pattern // sorted by name
	checksum string
}

// Checksum identifies the source bytes the snapshot was built from.
func (r *Registry) Checksum() string {
	return r.checksum
}

// Node returns the node with the given id. Callers must not modify it.
func (r *Registry) Node(id string) (*Node, bool) {
	n, ok := r.nodes[id]
	return n, ok
}

// Mixin returns the mixin with the given id. Callers must not modify it.
func (r *Registry) Mixin(id string) (*Mixin, bool) {
	m, ok := r.mixins[id]
	return m, ok
}

// NodeIDs returns all node ids, sorted.
func (r *Registry) NodeIDs() []string {
	return sortedKeys(r.nodes)
}

// MixinIDs returns all mixin ids, sorted.
func (r *Registry) MixinIDs() []string {
	return sortedKeys(r.mixins)
}

// Layer returns the named layer.
func (r *Registry) Layer(name string) (Layer, bool) {
	i := sort.Search(len(r.layers), func(i int) bool { return r.layers[i].Name >= name })
	if i < len(r.layers) && r.layers[i].Name == name {
		return r.layers[i], true
	}
	return Layer{}, false
}

// LayerFor returns the first layer, in name order, with a glob matching
// path. Paths are compared in slash form.
func (r *Registry) LayerFor(path string) (string, bool) {
	path = filepath.ToSlash(filepath.Clean(path))
	for _, l := range r.layers {
		for _, g := range l.Globs {
			if ok, _ := doublestar.Match(g, path); ok {
				return l.Name, true
			}
		}
	}
	return "", false
}

// Patterns returns the canonical pattern registry in name order.
func (r *Registry) Patterns() []Pattern {
	return r.patterns
}

// Suggest returns up to n node ids close to id, best first. Ids sharing a
// dot segment with id rank ahead of ids that are only textually close.
func (r *Registry) Suggest(id string, n int) []string {
	type candidate struct {
		id    string
		score int
	}

	segments := strings.Split(id, ".")
	var cands []candidate
	for nodeID := range r.nodes {
		dist := levenshtein.ComputeDistance(id, nodeID)
		shared := sharesSegment(segments, nodeID)

		limit := len(id)/3 + 1
		if limit < 2 {
			limit = 2
		}
		if dist > limit && !shared && !strings.Contains(nodeID, id) {
			continue
		}
		score := dist
		if shared {
			score -= 100
		}
		cands = append(cands, candidate{id: nodeID, score: score})
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score < cands[j].score
		}
		return cands[i].id < cands[j].id
	})

	out := make([]string, 0, n)
	for _, c := range cands {
		if len(out) == n {
			break
		}
		out = append(out, c.id)
	}
	return out
}

func sharesSegment(segments []string, id string) bool {
	for _, s := range strings.Split(id, ".") {
		for _, want := range segments {
			if s == want && len(s) > 2 {
				return true
			}
		}
	}
	return false
}

// Holder publishes the current registry snapshot. Swap replaces the whole
// snapshot at once, so in-flight readers keep the snapshot they loaded.
type Holder struct {
	current atomic.Pointer[Registry]
}

// NewHolder creates a holder publishing r.
func NewHolder(r *Registry) *Holder {
	h := &Holder{}
	h.current.Store(r)
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() *Registry {
	return h.current.Load()
}

// Swap publishes r and returns the previous snapshot.
func (h *Holder) Swap(r *Registry) *Registry {
	return h.current.Swap(r)
}
