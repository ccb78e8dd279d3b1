package registry

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// document is the on-disk shape of one registry file
type document struct {
	Nodes    map[string]*Node      `yaml:"nodes"`
	Mixins   map[string]*Mixin     `yaml:"mixins"`
	Layers   map[string]stringList `yaml:"layers"`
	Patterns map[string]*Pattern   `yaml:"patterns"`
}

type source struct {
	name string
	data []byte
}

// DocumentGlob selects the registry documents of a directory.
const DocumentGlob = "**/*.{yaml,yml}"

// Load loads a registry from a single document or, when path is a
// directory, from every document below it.
func Load(path string) (*Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat registry: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadFile loads a registry from one yaml document.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return build([]source{{name: path, data: data}})
}

// LoadDir merges every yaml document under dir in lexical path order.
// Ids must be unique across documents.
func LoadDir(dir string) (*Registry, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), DocumentGlob)
	if err != nil {
		return nil, fmt.Errorf("glob registry: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no registry documents under %s", dir)
	}
	sort.Strings(matches)

	sources := make([]source, 0, len(matches))
	for _, m := range matches {
		path := filepath.Join(dir, filepath.FromSlash(m))
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read registry: %w", err)
		}
		sources = append(sources, source{name: m, data: data})
	}
	return build(sources)
}

// Parse loads a registry from document bytes.
func Parse(data []byte) (*Registry, error) {
	return build([]source{{data: data}})
}

// build decodes and merges documents, then validates the result
func build(sources []source) (*Registry, error) {
	r := &Registry{
		nodes:  make(map[string]*Node),
		mixins: make(map[string]*Mixin),
	}
	layers := make(map[string][]string)
	patterns := make(map[string]*Pattern)

	h := sha256.New()
	for _, src := range sources {
		// name and length prefix keep renamed or split files distinct
		fmt.Fprintf(h, "%s\x00%d\x00", src.name, len(src.data))
		h.Write(src.data)

		doc, err := decode(src)
		if err != nil {
			return nil, err
		}

		for _, id := range sortedKeys(doc.Nodes) {
			if _, dup := r.nodes[id]; dup {
				return nil, &LoadError{Kind: ErrKindDuplicate, ID: id, Source: src.name}
			}
			n := doc.Nodes[id]
			if n == nil {
				n = &Node{}
			}
			n.ID = id
			n.Source = src.name
			r.nodes[id] = n
		}
		for _, id := range sortedKeys(doc.Mixins) {
			if _, dup := r.mixins[id]; dup {
				return nil, &LoadError{Kind: ErrKindDuplicate, ID: id, Source: src.name}
			}
			m := doc.Mixins[id]
			if m == nil {
				m = &Mixin{}
			}
			m.ID = id
			m.Source = src.name
			if m.Inline == "" {
				m.Inline = InlineAllowed
			}
			r.mixins[id] = m
		}
		for _, name := range sortedKeys(doc.Layers) {
			if _, dup := layers[name]; dup {
				return nil, &LoadError{Kind: ErrKindDuplicate, ID: "layer " + name, Source: src.name}
			}
			layers[name] = doc.Layers[name]
		}
		for _, name := range sortedKeys(doc.Patterns) {
			if _, dup := patterns[name]; dup {
				return nil, &LoadError{Kind: ErrKindDuplicate, ID: "pattern " + name, Source: src.name}
			}
			p := doc.Patterns[name]
			if p == nil {
				p = &Pattern{}
			}
			p.Name = name
			patterns[name] = p
		}
	}

	for _, name := range sortedKeys(layers) {
		r.layers = append(r.layers, Layer{Name: name, Globs: layers[name]})
	}
	for _, name := range sortedKeys(patterns) {
		r.patterns = append(r.patterns, *patterns[name])
	}
	r.checksum = hex.EncodeToString(h.Sum(nil))

	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func decode(src source) (*document, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(src.data))
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Kind: ErrKindSyntax, Source: src.name, Detail: err.Error()}
	}
	return &doc, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
