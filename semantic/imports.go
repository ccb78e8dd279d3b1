package semantic

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ModuleMatches reports whether specifier refers to module or one of its
// sub-modules. "axios/lib/x" and "os.path" match "axios" and "os"
// respectively; "axios-retry" does not match "axios".
func ModuleMatches(specifier, module string) bool {
	if specifier == module {
		return true
	}
	if !strings.HasPrefix(specifier, module) {
		return false
	}
	rest := specifier[len(module)]
	return rest == '/' || rest == '.'
}

// MergeImports folds repeated imports of the same specifier into a single
// record. The first occurrence keeps its position and line; named bindings
// are unioned in order of appearance.
func MergeImports(imports []Import) []Import {
	if len(imports) == 0 {
		return nil
	}

	index := make(map[string]int, len(imports))
	out := make([]Import, 0, len(imports))

	for _, imp := range imports {
		i, seen := index[imp.Module]
		if !seen {
			index[imp.Module] = len(out)
			imp.Named = dedupe(imp.Named)
			out = append(out, imp)
			continue
		}

		merged := &out[i]
		if merged.Default == "" {
			merged.Default = imp.Default
		}
		if merged.Alias == "" {
			merged.Alias = imp.Alias
		}
		if merged.Namespace == "" {
			merged.Namespace = imp.Namespace
		}
		merged.Wildcard = merged.Wildcard || imp.Wildcard
		// A static import anywhere makes the module statically imported
		merged.Dynamic = merged.Dynamic && imp.Dynamic
		merged.TypeOnly = merged.TypeOnly && imp.TypeOnly
		merged.Named = dedupe(append(merged.Named, imp.Named...))
	}

	return out
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(names))
	out := names[:0:0]
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// SortExports orders exports by line, then name.
func SortExports(exports []Export) {
	sort.SliceStable(exports, func(i, j int) bool {
		if exports[i].Line != exports[j].Line {
			return exports[i].Line < exports[j].Line
		}
		return exports[i].Name < exports[j].Name
	})
}

// SplitTarget splits an assignment target such as "this.state[key].count"
// into its root object and property path. Element accesses keep their
// brackets as a single path segment.
func SplitTarget(target string) (root string, path []string) {
	var segments []string
	var cur strings.Builder
	depth := 0

	flush := func() {
		if cur.Len() > 0 {
			segments = append(segments, cur.String())
			cur.Reset()
		}
	}

	for _, r := range target {
		switch {
		case r == '[' && depth == 0:
			flush()
			depth++
			cur.WriteRune(r)
		case r == '[':
			depth++
			cur.WriteRune(r)
		case r == ']':
			depth--
			cur.WriteRune(r)
			if depth == 0 {
				flush()
			}
		case r == '.' && depth == 0:
			flush()
		case (r == ' ' || r == '\n' || r == '\t') && depth == 0:
			// optional-chaining and line breaks inside member chains
		default:
			cur.WriteRune(r)
		}
	}
	flush()

	if len(segments) == 0 {
		return "", nil
	}
	root = strings.TrimSuffix(segments[0], "?")
	for _, s := range segments[1:] {
		path = append(path, strings.TrimSuffix(s, "?"))
	}
	return root, path
}

// ImportTarget maps an import specifier to the slash path it names,
// relative to the project root. Relative specifiers resolve against the
// importing file; Python dotted modules become directories.
func ImportTarget(file, module string, lang Language) string {
	dir := path.Dir(filepath.ToSlash(file))

	if lang == LangPython {
		if !strings.HasPrefix(module, ".") {
			return strings.ReplaceAll(module, ".", "/")
		}
		rest := strings.TrimLeft(module, ".")
		for i := 1; i < len(module)-len(rest); i++ {
			dir = path.Dir(dir)
		}
		return path.Join(dir, strings.ReplaceAll(rest, ".", "/"))
	}

	switch {
	case module == "." || module == ".." || strings.HasPrefix(module, "./") || strings.HasPrefix(module, "../"):
		return path.Join(dir, module)
	case strings.HasPrefix(module, "/"):
		return strings.TrimPrefix(module, "/")
	}
	return module
}
