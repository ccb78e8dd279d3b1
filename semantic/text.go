package semantic

import "context"

// TextAdapter produces a model carrying only raw content and line totals.
// The engine uses it for tagged files in languages without an adapter, so
// text-level rules (patterns, file length, naming) still apply.
type TextAdapter struct{}

// Language implements Adapter.
func (TextAdapter) Language() Language { return LangText }

// Parse implements Adapter.
func (TextAdapter) Parse(_ context.Context, path string, content []byte) (*Model, error) {
	return &Model{
		Path:      path,
		Content:   string(content),
		Language:  LangText,
		Hash:      ComputeHash(content),
		LineCount: CountLines(content),
		CodeLines: CountCodeLines(content, nil),
	}, nil
}
