// Package semantic defines the language-agnostic Semantic Model that every
// language adapter produces, together with the adapter registry.
package semantic

import (
	"crypto/sha256"
	"encoding/hex"
)

// Language tags the source language of a model.
type Language string

const (
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangGo         Language = "go"
	LangText       Language = "text" // no adapter; raw text only
)

// Visibility is the shared visibility vocabulary across languages.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityProtected Visibility = "protected"
	VisibilityPrivate   Visibility = "private"
)

// ClassKind classifies a declared type.
type ClassKind string

const (
	KindClass     ClassKind = "class"
	KindInterface ClassKind = "interface"
	KindStruct    ClassKind = "struct"
)

// FunctionKind separates ordinary functions and methods from class members
// that are callable but are not methods.
type FunctionKind string

const (
	FuncPlain       FunctionKind = ""
	FuncConstructor FunctionKind = "constructor"
	FuncAccessor    FunctionKind = "accessor"
)

// Model is the normalized structural summary of one source file.
// A Model is never mutated after the adapter returns it.
type Model struct {
	// Path is the file path as given to the adapter
	Path string `json:"path"`

	// Content is the raw file text
	Content string `json:"-"`

	Language Language `json:"language"`

	// Hash is the content checksum
	Hash string `json:"hash"`

	// LineCount is the total number of lines
	LineCount int `json:"line_count"`

	// CodeLines counts lines that are neither blank nor comment-only
	CodeLines int `json:"code_lines"`

	Imports   []Import   `json:"imports,omitempty"`
	Exports   []Export   `json:"exports,omitempty"`
	Classes   []Class    `json:"classes,omitempty"`
	Functions []Function `json:"functions,omitempty"`
	Calls     []Call     `json:"calls,omitempty"`
	Mutations []Mutation `json:"mutations,omitempty"`

	// Diagnostics lists syntax problems found while building a best-effort model
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Import is one logical import record per module specifier.
type Import struct {
	// Module is the original specifier, never the local alias
	Module string `json:"module"`

	// Default is the default binding (TS) if any
	Default string `json:"default,omitempty"`

	// Named lists the named bindings imported from the module
	Named []string `json:"named,omitempty"`

	// Alias is the local name when the module itself is renamed (import x as y)
	Alias string `json:"alias,omitempty"`

	// Namespace is set for "import * as ns" bindings
	Namespace string `json:"namespace,omitempty"`

	// Wildcard marks "from module import *"
	Wildcard bool `json:"wildcard,omitempty"`

	// Dynamic marks runtime imports (import(), importlib.import_module)
	Dynamic bool `json:"dynamic,omitempty"`

	TypeOnly bool `json:"type_only,omitempty"`

	Line int `json:"line"`
}

// Export is a symbol exported from the module.
type Export struct {
	Name    string `json:"name"`
	Kind    string `json:"kind,omitempty"`
	Default bool   `json:"default,omitempty"`
	Line    int    `json:"line"`
}

// Decorator is an annotation applied to a class or function.
type Decorator struct {
	// Name excludes the leading "@" and any call arguments
	Name string `json:"name"`
	Args string `json:"args,omitempty"`
	Line int    `json:"line"`
}

// Class is a declared class, interface or struct.
type Class struct {
	Name       string      `json:"name"`
	Kind       ClassKind   `json:"kind"`
	Visibility Visibility  `json:"visibility"`
	Extends    []string    `json:"extends,omitempty"`
	Implements []string    `json:"implements,omitempty"`
	Decorators []Decorator `json:"decorators,omitempty"`
	Methods    []Function  `json:"methods,omitempty"`
	StartLine  int         `json:"start_line"`
	EndLine    int         `json:"end_line"`
}

// Function is a free function or a method.
type Function struct {
	Name string `json:"name"`

	// Receiver is the owning class or Go receiver type for methods
	Receiver string `json:"receiver,omitempty"`

	// Kind is empty for ordinary functions and methods
	Kind FunctionKind `json:"kind,omitempty"`

	Async      bool        `json:"async,omitempty"`
	Visibility Visibility  `json:"visibility"`
	Decorators []Decorator `json:"decorators,omitempty"`

	// Intents are @intent annotations from the comment block above the function
	Intents []string `json:"intents,omitempty"`

	ParamCount int `json:"param_count"`
	StartLine  int `json:"start_line"`
	EndLine    int `json:"end_line"`
}

// Call is a function-call site.
type Call struct {
	// Callee is the full callee expression, e.g. "fs.readFile"
	Callee string `json:"callee"`

	// Receiver is the object part of a member call ("fs"), empty for plain calls
	Receiver string `json:"receiver,omitempty"`

	// Method is the final name segment ("readFile")
	Method string `json:"method"`

	ArgCount int `json:"arg_count"`
	Line     int `json:"line"`

	// InTry is true when the call sits inside the body of a try block
	InTry bool `json:"in_try,omitempty"`

	// Enclosing names the innermost enclosing function, empty at top level
	Enclosing string `json:"enclosing,omitempty"`
}

// Mutation is an assignment to a property or element.
type Mutation struct {
	// Target is the assigned expression, e.g. "this.state.count"
	Target string `json:"target"`

	// Root is the base object ("this")
	Root string `json:"root"`

	// Path holds the property path below Root ("state", "count")
	Path []string `json:"path,omitempty"`

	// Operator is "=", "+=", "++", "delete", ...
	Operator string `json:"operator"`

	Line int `json:"line"`
}

// Diagnostic is a syntax problem found while parsing.
type Diagnostic struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ComputeHash computes a SHA256 hash of the given content.
func ComputeHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// AllFunctions returns free functions followed by every class method.
func (m *Model) AllFunctions() []Function {
	out := make([]Function, 0, len(m.Functions))
	out = append(out, m.Functions...)
	for _, c := range m.Classes {
		out = append(out, c.Methods...)
	}
	return out
}

// EnclosingFunction returns the innermost function or method whose line
// range contains line. The range of a function is the half-open interval
// [StartLine, EndLine+1).
func (m *Model) EnclosingFunction(line int) (Function, bool) {
	var best Function
	found := false
	for _, fn := range m.AllFunctions() {
		if fn.StartLine <= 0 || line < fn.StartLine || line >= fn.EndLine+1 {
			continue
		}
		if !found || fn.EndLine-fn.StartLine < best.EndLine-best.StartLine {
			best = fn
			found = true
		}
	}
	return best, found
}

// HasImport reports whether the model imports module, either exactly or
// one of its sub-paths.
func (m *Model) HasImport(module string) bool {
	for _, imp := range m.Imports {
		if ModuleMatches(imp.Module, module) {
			return true
		}
	}
	return false
}

// FindClass returns the named class.
func (m *Model) FindClass(name string) (Class, bool) {
	for _, c := range m.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return Class{}, false
}

// PublicMethods counts the methods of c whose visibility is public.
// Constructors and accessors are not methods.
func (c Class) PublicMethods() int {
	n := 0
	for _, fn := range c.Methods {
		if fn.Kind == FuncPlain && fn.Visibility == VisibilityPublic {
			n++
		}
	}
	return n
}

// HasIntent reports whether fn carries the named intent.
func (fn Function) HasIntent(name string) bool {
	for _, in := range fn.Intents {
		if in == name {
			return true
		}
	}
	return false
}
