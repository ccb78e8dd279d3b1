package semantic

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNoAdapter is returned when no adapter is registered for a file.
var ErrNoAdapter = errors.New("no adapter registered")

// Adapter turns raw source text into a Semantic Model.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// Language returns the language tag the adapter produces
	Language() Language

	// Parse builds a best-effort model. It returns an error only when no
	// model at all can be produced.
	Parse(ctx context.Context, path string, content []byte) (*Model, error)
}

// AdapterFactory creates an Adapter for a language.
type AdapterFactory func() Adapter

// Registry maps languages and file extensions to adapter factories.
// Thread-safe for concurrent access.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Language]AdapterFactory // language → factory
	extMap   map[string]Language         // extension → language
}

// NewRegistry creates a new empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[Language]AdapterFactory),
		extMap:   make(map[string]Language),
	}
}

// Register adds an adapter factory for the given extensions.
// The first registration wins if there's an extension conflict.
// Extensions should include the leading dot (e.g., ".go", ".ts").
func (r *Registry) Register(lang Language, extensions []string, factory AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters[lang] = factory

	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if _, exists := r.extMap[ext]; !exists {
			r.extMap[ext] = lang
		}
	}
}

// LanguageFor returns the language registered for a file path's extension.
func (r *Registry) LanguageFor(path string) (Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang, ok := r.extMap[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Adapter instantiates the adapter registered for a language.
func (r *Registry) Adapter(lang Language) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.adapters[lang]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: language %s", ErrNoAdapter, lang)
	}
	return factory(), nil
}

// AdapterFor instantiates the adapter for a file path's extension.
func (r *Registry) AdapterFor(path string) (Adapter, error) {
	lang, ok := r.LanguageFor(path)
	if !ok {
		return nil, fmt.Errorf("%w: extension %q", ErrNoAdapter, filepath.Ext(path))
	}
	return r.Adapter(lang)
}

// Languages returns all registered languages, sorted.
func (r *Registry) Languages() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs := make([]Language, 0, len(r.adapters))
	for lang := range r.adapters {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Extensions returns all registered file extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.extMap))
	for ext := range r.extMap {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// DefaultRegistry is the global adapter registry.
// Language adapters register themselves via init() functions.
var DefaultRegistry = NewRegistry()
