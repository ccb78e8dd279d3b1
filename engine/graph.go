package engine

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/c360studio/semguard/semantic"
)

// DependentDepth is how many import hops incremental validation follows
// back from a changed file.
const DependentDepth = 2

// ImportGraph records which project files import which.
type ImportGraph struct {
	imports   map[string]map[string]bool // file -> files it imports
	importers map[string]map[string]bool // file -> files importing it
}

// NewImportGraph creates an empty graph.
func NewImportGraph() *ImportGraph {
	return &ImportGraph{
		imports:   make(map[string]map[string]bool),
		importers: make(map[string]map[string]bool),
	}
}

// AddEdge records that from imports to.
func (g *ImportGraph) AddEdge(from, to string) {
	if from == to {
		return
	}
	if g.imports[from] == nil {
		g.imports[from] = make(map[string]bool)
	}
	if g.importers[to] == nil {
		g.importers[to] = make(map[string]bool)
	}
	g.imports[from][to] = true
	g.importers[to][from] = true
}

// Imports returns the files file imports, sorted.
func (g *ImportGraph) Imports(file string) []string {
	return sortedSet(g.imports[file])
}

// Importers returns the files importing file, sorted.
func (g *ImportGraph) Importers(file string) []string {
	return sortedSet(g.importers[file])
}

// Dependents returns the files that reach a changed file within depth
// import hops. Changed files are not part of the result. The walk is
// breadth-first, and the sorted output does not depend on input order.
func (g *ImportGraph) Dependents(changed []string, depth int) []string {
	seen := make(map[string]bool, len(changed))
	frontier := make([]string, 0, len(changed))
	for _, c := range changed {
		if !seen[c] {
			seen[c] = true
			frontier = append(frontier, c)
		}
	}

	var out []string
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, f := range frontier {
			for from := range g.importers[f] {
				if seen[from] {
					continue
				}
				seen[from] = true
				out = append(out, from)
				next = append(next, from)
			}
		}
		frontier = next
	}

	sort.Strings(out)
	return out
}

func sortedSet(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// sourceExts are tried, in order, when an import names a file without its
// extension.
var sourceExts = []string{".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs", ".py", ".go"}

// fileIndex resolves import targets to project files.
type fileIndex struct {
	files map[string]bool
	dirs  map[string][]string
}

func newFileIndex(files []File) fileIndex {
	ix := fileIndex{files: make(map[string]bool, len(files)), dirs: make(map[string][]string)}
	for _, f := range files {
		p := cleanPath(f.Path)
		ix.files[p] = true
		if strings.HasSuffix(p, ".go") {
			dir := path.Dir(p)
			ix.dirs[dir] = append(ix.dirs[dir], p)
		}
	}
	return ix
}

func (ix fileIndex) resolve(target string, lang semantic.Language) []string {
	target = path.Clean(target)

	if lang == semantic.LangGo {
		// Go imports name a package directory; pick the longest directory
		// the import path ends with
		best := ""
		for dir := range ix.dirs {
			if (target == dir || strings.HasSuffix(target, "/"+dir)) && len(dir) > len(best) {
				best = dir
			}
		}
		if best == "" {
			return nil
		}
		return append([]string(nil), ix.dirs[best]...)
	}

	candidates := []string{target}
	if ext := path.Ext(target); ext == ".js" || ext == ".jsx" || ext == ".mjs" || ext == ".cjs" {
		// TS sources are imported by their emitted .js name
		stem := strings.TrimSuffix(target, ext)
		candidates = append(candidates, stem+".ts", stem+".tsx")
	}
	for _, ext := range sourceExts {
		candidates = append(candidates, target+ext)
	}
	for _, ext := range sourceExts {
		candidates = append(candidates, target+"/index"+ext)
	}
	candidates = append(candidates, target+"/__init__.py")

	for _, c := range candidates {
		if ix.files[c] {
			return []string{c}
		}
	}
	return nil
}

// BuildImportGraph parses files and links each import that resolves to
// another file of the set. Files no adapter understands have no edges.
func BuildImportGraph(ctx context.Context, adapters *semantic.Registry, files []File) *ImportGraph {
	g := NewImportGraph()
	ix := newFileIndex(files)

	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		from := cleanPath(f.Path)
		adapter, err := adapters.AdapterFor(from)
		if err != nil {
			continue
		}
		model, err := parse(ctx, adapter, from, f.Content)
		if err != nil {
			continue
		}
		for _, imp := range model.Imports {
			target := semantic.ImportTarget(from, imp.Module, model.Language)
			for _, to := range ix.resolve(target, model.Language) {
				if path.Dir(to) == path.Dir(from) && model.Language == semantic.LangGo {
					continue
				}
				g.AddEdge(from, to)
			}
		}
	}
	return g
}

// ImportGraph builds the import graph of files with the engine's adapters.
func (e *Engine) ImportGraph(ctx context.Context, files []File) *ImportGraph {
	return BuildImportGraph(ctx, e.adapters, files)
}

// ValidateIncremental validates the changed files plus every file within
// DependentDepth import hops of them. all is the whole project; changed
// paths that are no longer in it still pull in their dependents.
func (e *Engine) ValidateIncremental(ctx context.Context, changed []string, all []File) (*BatchResult, error) {
	graph := e.ImportGraph(ctx, all)

	wanted := make(map[string]bool, len(changed))
	cleaned := make([]string, 0, len(changed))
	for _, c := range changed {
		c = cleanPath(c)
		wanted[c] = true
		cleaned = append(cleaned, c)
	}
	dependents := graph.Dependents(cleaned, DependentDepth)
	for _, d := range dependents {
		wanted[d] = true
	}

	var files []File
	for _, f := range all {
		if wanted[cleanPath(f.Path)] {
			files = append(files, f)
		}
	}

	e.logger.Debug("Incremental selection", "changed", len(changed),
		"dependents", len(dependents), "selected", len(files))
	return e.ValidateBatch(ctx, files)
}

func cleanPath(p string) string {
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}
