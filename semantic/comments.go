package semantic

import "strings"

// CommentIndex records the lines of a file that hold nothing but comment
// text, so adapters can find the comment block sitting directly above a
// declaration without rescanning the source.
type CommentIndex struct {
	lines map[int]bool
	text  map[int]string // start line → comment text
}

// NewCommentIndex creates an empty index.
func NewCommentIndex() *CommentIndex {
	return &CommentIndex{
		lines: make(map[int]bool),
		text:  make(map[int]string),
	}
}

// Add records a comment spanning startLine..endLine. ownLine is false for
// trailing comments that share their first line with code; those are not
// part of any leading block.
func (ci *CommentIndex) Add(startLine, endLine int, text string, ownLine bool) {
	if !ownLine {
		return
	}
	for l := startLine; l <= endLine; l++ {
		ci.lines[l] = true
	}
	ci.text[startLine] = text
}

// Above returns the text of the contiguous comment block that ends on the
// line just above line. A blank line ends the block.
func (ci *CommentIndex) Above(line int) string {
	var parts []string
	for l := line - 1; l >= 1 && ci.lines[l]; l-- {
		if t, ok := ci.text[l]; ok {
			parts = append(parts, t)
		}
	}
	// collected bottom-up
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "\n")
}

// OwnLine reports whether the text before byte offset start on its line is
// only whitespace.
func OwnLine(content []byte, start int) bool {
	for i := start - 1; i >= 0; i-- {
		switch content[i] {
		case '\n':
			return true
		case ' ', '\t', '\r':
		default:
			return false
		}
	}
	return true
}
