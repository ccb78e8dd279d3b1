package engine

import (
	"regexp"
	"strings"
	"time"

	"github.com/c360studio/semguard/registry"
	"github.com/c360studio/semguard/semantic"
)

// ExpiresLayout is the date format of @expires.
const ExpiresLayout = "2006-01-02"

// Tag is the architecture marker read from a file header.
type Tag struct {
	// ArchID is the architecture node the file claims; empty when untagged
	ArchID string `json:"arch_id,omitempty"`

	// Mixins are inline mixins given as "+name" after the id
	Mixins []string `json:"mixins,omitempty"`

	// Intents are file-level @intent:<name> annotations
	Intents []string `json:"intents,omitempty"`

	Overrides []Override `json:"overrides,omitempty"`
}

// Override suppresses violations of one rule value for the file.
type Override struct {
	Rule    registry.Rule `json:"rule"`
	Value   string        `json:"value"`
	Reason  string        `json:"reason,omitempty"`
	Expires string        `json:"expires,omitempty"`
	Line    int           `json:"line"`
}

// Matches reports whether the override covers a violation. A trailing "*"
// matches any suffix, so "*" alone covers every value of the rule.
func (o Override) Matches(rule registry.Rule, value string) bool {
	if o.Rule != rule {
		return false
	}
	if prefix, ok := strings.CutSuffix(o.Value, "*"); ok {
		return strings.HasPrefix(value, prefix)
	}
	return o.Value == value
}

// expiring reports whether any override carries an expiry date.
func (t *Tag) expiring() bool {
	for _, o := range t.Overrides {
		if o.Expires != "" {
			return true
		}
	}
	return false
}

// Expired reports whether the override's expiry date lies before now.
// An override without a date never expires.
func (o Override) Expired(now time.Time) (bool, error) {
	if o.Expires == "" {
		return false, nil
	}
	day, err := time.Parse(ExpiresLayout, o.Expires)
	if err != nil {
		return false, err
	}
	// The override still holds on the expiry day itself
	return !now.Before(day.AddDate(0, 0, 1)), nil
}

var (
	archRe     = regexp.MustCompile(`@arch\s+([A-Za-z0-9_.\-/]+)((?:\s+\+[A-Za-z0-9_.\-/]+)*)`)
	overrideRe = regexp.MustCompile(`@override\s+([a-z_]+):(\S+)`)
	reasonRe   = regexp.MustCompile(`@reason\s+(.+)`)
	expiresRe  = regexp.MustCompile(`@expires\s+(\S+)`)

	// declRe spots the first line of a declaration. The comment group
	// directly above it documents the declaration, not the file.
	declRe = regexp.MustCompile(`^(?:export\s+|async\s+|default\s+|abstract\s+)*(?:def|class|function|func|interface|type)\b|^@`)
)

// ParseHeader reads the tag from the leading comment block of content. The
// block ends at the first line of code. Line comments (//, #), block
// comments and Python docstrings are understood.
func ParseHeader(content string) Tag {
	var tag Tag

	for _, group := range headerGroups(content) {
		for _, hl := range group {
			text := hl.text

			if tag.ArchID == "" {
				if m := archRe.FindStringSubmatch(text); m != nil {
					tag.ArchID = m[1]
					for _, f := range strings.Fields(m[2]) {
						tag.Mixins = append(tag.Mixins, strings.TrimPrefix(f, "+"))
					}
				}
			}

			for _, in := range semantic.ExtractIntents(text) {
				if !contains(tag.Intents, in) {
					tag.Intents = append(tag.Intents, in)
				}
			}

			if m := overrideRe.FindStringSubmatch(text); m != nil {
				tag.Overrides = append(tag.Overrides, Override{
					Rule:  registry.Rule(m[1]),
					Value: m[2],
					Line:  hl.line,
				})
			}
			if n := len(tag.Overrides); n > 0 {
				last := &tag.Overrides[n-1]
				if m := reasonRe.FindStringSubmatch(text); m != nil && last.Reason == "" {
					last.Reason = strings.TrimSpace(trimCommentEnd(m[1]))
				}
				if m := expiresRe.FindStringSubmatch(text); m != nil && last.Expires == "" {
					last.Expires = trimCommentEnd(m[1])
				}
			}
		}
	}
	return tag
}

type headerLine struct {
	line int
	text string
}

// headerGroups splits the leading comment block into groups separated by
// blank lines. When code starts with a declaration, a group touching it is
// that declaration's own comment and is left out unless it names an @arch.
func headerGroups(content string) [][]headerLine {
	var (
		groups  [][]headerLine
		current []headerLine
		closer  string // set while inside a block comment or docstring
	)

	flush := func() {
		if len(current) > 0 {
			groups = append(groups, current)
			current = nil
		}
	}

	lines := strings.Split(content, "\n")
	for i, raw := range lines {
		n := i + 1
		line := strings.TrimSpace(raw)

		if closer != "" {
			current = append(current, headerLine{n, line})
			if strings.Contains(line, closer) {
				closer = ""
			}
			continue
		}

		switch {
		case line == "":
			flush()
			continue
		case i == 0 && strings.HasPrefix(line, "#!"):
			continue
		case strings.HasPrefix(line, "//"), strings.HasPrefix(line, "#"):
			current = append(current, headerLine{n, line})
			continue
		case strings.HasPrefix(line, "/*"):
			current = append(current, headerLine{n, line})
			if !strings.Contains(line[2:], "*/") {
				closer = "*/"
			}
			continue
		}

		if q, ok := docstringQuote(line); ok {
			current = append(current, headerLine{n, line})
			if rest := strings.TrimPrefix(strings.TrimLeft(line, "rRbBuU"), q); !strings.Contains(rest, q) {
				closer = q
			}
			continue
		}

		// First line of code
		if len(current) > 0 && declRe.MatchString(line) && !groupHasArch(current) {
			current = nil
		}
		break
	}
	flush()
	return groups
}

func docstringQuote(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, "rRbBuU")
	for _, q := range []string{`"""`, `'''`} {
		if strings.HasPrefix(trimmed, q) {
			return q, true
		}
	}
	return "", false
}

func groupHasArch(group []headerLine) bool {
	for _, hl := range group {
		if archRe.MatchString(hl.text) {
			return true
		}
	}
	return false
}

func trimCommentEnd(s string) string {
	s = strings.TrimSpace(s)
	for _, end := range []string{"*/", `"""`, `'''`} {
		s = strings.TrimSpace(strings.TrimSuffix(s, end))
	}
	return s
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
