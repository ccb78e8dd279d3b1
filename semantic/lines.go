package semantic

import (
	"regexp"
	"sort"
	"strings"
)

// Span is a half-open byte range [Start, End) of the source.
type Span struct {
	Start int
	End   int
}

// CountLines counts the lines of content. A trailing newline does not
// start a new line; empty content has zero lines.
func CountLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := 1
	for _, b := range content {
		if b == '\n' {
			n++
		}
	}
	if content[len(content)-1] == '\n' {
		n--
	}
	return n
}

// CountCodeLines counts lines that still contain non-whitespace text once
// every comment span has been blanked out. Adapters pass the comment spans
// reported by their syntax tree, so comment markers inside string literals
// are never mistaken for comments.
func CountCodeLines(content []byte, comments []Span) int {
	masked := []byte(string(content))

	spans := append([]Span(nil), comments...)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	for _, s := range spans {
		start, end := clamp(s.Start, len(masked)), clamp(s.End, len(masked))
		for i := start; i < end; i++ {
			if masked[i] != '\n' {
				masked[i] = ' '
			}
		}
	}

	count := 0
	for _, line := range strings.Split(string(masked), "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// LineOffsets returns the byte offset at which each line starts.
func LineOffsets(content string) []int {
	offsets := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// LineAt converts a byte offset into a 1-indexed line number using the
// offsets produced by LineOffsets.
func LineAt(offsets []int, offset int) int {
	i := sort.Search(len(offsets), func(i int) bool { return offsets[i] > offset })
	return i
}

var intentRe = regexp.MustCompile(`@intent:([A-Za-z0-9_.\-]+)`)

// ExtractIntents returns every @intent:<name> token in text, in order of
// appearance and without duplicates.
func ExtractIntents(text string) []string {
	matches := intentRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// DecoratorName strips the "@" prefix and call arguments from decorator text
// and returns the bare name and argument text.
func DecoratorName(text string) (name, args string) {
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "@"))
	if i := strings.Index(text, "("); i >= 0 {
		args = strings.TrimSpace(text[i:])
		text = text[:i]
	}
	return strings.TrimSpace(text), args
}
