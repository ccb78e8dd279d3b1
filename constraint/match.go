package constraint

import (
	"regexp"
	"strings"
	"sync"
)

// Case styles for naming_pattern.
var caseRes = map[string]*regexp.Regexp{
	"camelCase":            regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`),
	"PascalCase":           regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`),
	"snake_case":           regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`),
	"kebab-case":           regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`),
	"SCREAMING_SNAKE_CASE": regexp.MustCompile(`^[A-Z][A-Z0-9]*(_[A-Z0-9]+)*$`),
}

type compiled struct {
	re  *regexp.Regexp
	err error
}

// regexCache holds compiled registry regexes keyed by flags and source.
// Registry snapshots are immutable, so the set of expressions is small.
var regexCache sync.Map

// compile compiles expr with the given inline flags ("ms" for pattern
// rules), caching the result and any error.
func compile(expr, flags string) (*regexp.Regexp, error) {
	key := flags + "\x00" + expr
	if v, ok := regexCache.Load(key); ok {
		c := v.(compiled)
		return c.re, c.err
	}

	src := expr
	if flags != "" {
		src = "(?" + flags + ")" + expr
	}
	re, err := regexp.Compile(src)
	regexCache.Store(key, compiled{re: re, err: err})
	return re, err
}

// calleeMatcher matches call sites against callee patterns. "fs.*" matches
// every member of fs, "*.log" every log method, a bare name matches exactly.
type calleeMatcher struct {
	exact    map[string]bool
	prefixes []string
	globs    []*regexp.Regexp
}

func newCalleeMatcher(patterns []string) *calleeMatcher {
	m := &calleeMatcher{exact: make(map[string]bool)}
	for _, p := range patterns {
		switch {
		case !strings.Contains(p, "*"):
			m.exact[p] = true
		case strings.HasSuffix(p, ".*") && !strings.Contains(strings.TrimSuffix(p, ".*"), "*"):
			m.prefixes = append(m.prefixes, strings.TrimSuffix(p, "*"))
		default:
			m.globs = append(m.globs, globRegexp(p))
		}
	}
	return m
}

func (m *calleeMatcher) match(callee string) bool {
	if m.exact[callee] {
		return true
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(callee, p) {
			return true
		}
	}
	for _, re := range m.globs {
		if re.MatchString(callee) {
			return true
		}
	}
	return false
}

// globRegexp turns a "*" wildcard pattern into an anchored regexp.
func globRegexp(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

// wildcardMatch reports whether name matches a "*" wildcard pattern.
func wildcardMatch(pattern, name string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == name
	}
	return globRegexp(pattern).MatchString(name)
}

// truncate shortens matched text for messages.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + "..."
	}
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// baseName returns the last dotted segment of a qualified name.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, "./"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// stripGenerics removes type arguments from a heritage name.
func stripGenerics(name string) string {
	if i := strings.IndexByte(name, '<'); i >= 0 {
		return strings.TrimSpace(name[:i])
	}
	if i := strings.IndexByte(name, '['); i >= 0 {
		return strings.TrimSpace(name[:i])
	}
	return strings.TrimSpace(name)
}
