// Package python provides the Python adapter built on tree-sitter.
package python

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/c360studio/semguard/semantic"
)

func init() {
	semantic.DefaultRegistry.Register(semantic.LangPython, []string{".py", ".pyi"},
		func() semantic.Adapter {
			return NewParser()
		})
}

// Parser extracts a Semantic Model from Python source files using tree-sitter.
// A fresh tree-sitter parser is created per call, so one Parser may be
// shared across goroutines.
type Parser struct{}

// NewParser creates a new Python parser.
func NewParser() *Parser {
	return &Parser{}
}

// Language implements semantic.Adapter.
func (p *Parser) Language() semantic.Language {
	return semantic.LangPython
}

// Parse implements semantic.Adapter.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) (*semantic.Model, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}
	defer tree.Close()

	model := &semantic.Model{
		Path:      path,
		Content:   string(content),
		Language:  semantic.LangPython,
		Hash:      semantic.ComputeHash(content),
		LineCount: semantic.CountLines(content),
	}

	root := tree.RootNode()
	w := &walker{
		src:      content,
		model:    model,
		comments: semantic.NewCommentIndex(),
	}

	// Comments first, so declarations can look up their leading block
	w.indexComments(root)
	model.CodeLines = semantic.CountCodeLines(content, w.spans)

	w.walk(root, scope{})

	model.Imports = semantic.MergeImports(w.imports)
	w.collectExports(root)

	return model, nil
}

// scope carries the context of the node being visited
type scope struct {
	class     *semantic.Class // set only for direct children of a class body
	enclosing string          // qualified name of the innermost function
	inTry     bool
	depth     int // function nesting depth
}

type walker struct {
	src      []byte
	model    *semantic.Model
	comments *semantic.CommentIndex
	spans    []semantic.Span
	imports  []semantic.Import
}

func (w *walker) text(n *sitter.Node) string {
	return n.Content(w.src)
}

func line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func endLine(n *sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}

// indexComments records comment spans and syntax errors over the whole tree
func (w *walker) indexComments(n *sitter.Node) {
	switch {
	case n.Type() == "comment":
		w.spans = append(w.spans, semantic.Span{Start: int(n.StartByte()), End: int(n.EndByte())})
		w.comments.Add(line(n), endLine(n), w.text(n), semantic.OwnLine(w.src, int(n.StartByte())))
		return
	case n.IsMissing():
		w.model.Diagnostics = append(w.model.Diagnostics, semantic.Diagnostic{
			Line:    line(n),
			Message: fmt.Sprintf("missing %s", n.Type()),
		})
	case n.IsError():
		w.model.Diagnostics = append(w.model.Diagnostics, semantic.Diagnostic{
			Line:    line(n),
			Message: fmt.Sprintf("syntax error near %q", truncate(w.text(n), 40)),
		})
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil {
			w.indexComments(child)
		}
	}
}

// walk visits n and its descendants
func (w *walker) walk(n *sitter.Node, sc scope) {
	switch n.Type() {
	case "comment":
		return

	case "import_statement":
		w.importStatement(n)
		return

	case "import_from_statement":
		w.importFrom(n)
		return

	case "future_import_statement":
		w.imports = append(w.imports, semantic.Import{Module: "__future__", Line: line(n)})
		return

	case "decorated_definition":
		def := n.ChildByFieldName("definition")
		if def == nil {
			return
		}
		decorators := w.decorators(n)
		switch def.Type() {
		case "class_definition":
			w.class(def, n, decorators, sc)
		case "function_definition":
			w.function(def, n, decorators, sc)
		}
		return

	case "class_definition":
		w.class(n, n, nil, sc)
		return

	case "function_definition":
		w.function(n, n, nil, sc)
		return

	case "try_statement":
		body := n.ChildByFieldName("body")
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			inner := sc
			inner.class = nil
			if sameNode(child, body) {
				inner.inTry = true
			}
			w.walk(child, inner)
		}
		return

	case "call":
		w.call(n, sc)

	case "assignment", "augmented_assignment":
		w.assignment(n)

	case "delete_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.deleteTarget(n.NamedChild(i), line(n))
		}
	}

	inner := sc
	inner.class = nil
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), inner)
	}
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// importStatement handles "import a.b, c as d"
func (w *walker) importStatement(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			w.imports = append(w.imports, semantic.Import{Module: w.text(child), Line: line(n)})
		case "aliased_import":
			imp := semantic.Import{Line: line(n)}
			if name := child.ChildByFieldName("name"); name != nil {
				imp.Module = w.text(name)
			}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				imp.Alias = w.text(alias)
			}
			if imp.Module != "" {
				w.imports = append(w.imports, imp)
			}
		}
	}
}

// importFrom handles "from m import a, b as c", parenthesized lists and "*"
func (w *walker) importFrom(n *sitter.Node) {
	moduleNode := n.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	imp := semantic.Import{Module: w.text(moduleNode), Line: line(n)}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if sameNode(child, moduleNode) {
			continue
		}
		switch child.Type() {
		case "wildcard_import":
			imp.Wildcard = true
		case "dotted_name":
			imp.Named = append(imp.Named, w.text(child))
		case "aliased_import":
			// the original name is what the module exports
			if name := child.ChildByFieldName("name"); name != nil {
				imp.Named = append(imp.Named, w.text(name))
			}
		}
	}
	w.imports = append(w.imports, imp)
}

// decorators extracts decorators of a decorated_definition in source order
func (w *walker) decorators(n *sitter.Node) []semantic.Decorator {
	var out []semantic.Decorator
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "decorator" {
			continue
		}
		name, args := semantic.DecoratorName(w.text(child))
		out = append(out, semantic.Decorator{Name: name, Args: args, Line: line(child)})
	}
	return out
}

// class extracts a class and its methods. outer is the decorated_definition
// when present, used for the leading comment lookup.
func (w *walker) class(n, outer *sitter.Node, decorators []semantic.Decorator, sc scope) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)

	class := semantic.Class{
		Name:       name,
		Kind:       semantic.KindClass,
		Visibility: visibility(name),
		Decorators: decorators,
		StartLine:  line(outer),
		EndLine:    endLine(n),
	}

	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			arg := supers.NamedChild(i)
			switch arg.Type() {
			case "keyword_argument", "comment":
				// metaclass=... and friends are not base classes
				continue
			}
			class.Extends = append(class.Extends, w.text(arg))
		}
	}

	if body := n.ChildByFieldName("body"); body != nil {
		inner := scope{class: &class, enclosing: sc.enclosing, inTry: sc.inTry, depth: sc.depth}
		for i := 0; i < int(body.NamedChildCount()); i++ {
			w.walk(body.NamedChild(i), inner)
		}
	}

	w.model.Classes = append(w.model.Classes, class)
}

// function extracts a function, or a method when sc.class is set
func (w *walker) function(n, outer *sitter.Node, decorators []semantic.Decorator, sc scope) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)

	fn := semantic.Function{
		Name:       name,
		Visibility: visibility(name),
		Decorators: decorators,
		StartLine:  line(outer),
		EndLine:    endLine(n),
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "async" {
			fn.Async = true
			break
		}
	}

	isMethod := sc.class != nil
	if isMethod {
		fn.Kind = methodKind(name, decorators)
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		fn.ParamCount = w.countParams(params, isMethod)
	}

	intentText := w.comments.Above(line(outer))
	body := n.ChildByFieldName("body")
	if body != nil {
		intentText += "\n" + w.docstring(body)
	}
	fn.Intents = semantic.ExtractIntents(intentText)

	qualified := name
	if isMethod {
		fn.Receiver = sc.class.Name
		qualified = sc.class.Name + "." + name
	} else if sc.enclosing != "" {
		qualified = sc.enclosing + "." + name
	}

	if body != nil {
		inner := scope{enclosing: qualified, depth: sc.depth + 1}
		for i := 0; i < int(body.NamedChildCount()); i++ {
			w.walk(body.NamedChild(i), inner)
		}
	}

	if isMethod {
		sc.class.Methods = append(sc.class.Methods, fn)
		return
	}
	w.model.Functions = append(w.model.Functions, fn)
}

// countParams counts declared parameters, excluding separators and the
// implicit self/cls of methods
func (w *walker) countParams(params *sitter.Node, isMethod bool) int {
	n := 0
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "comment", "positional_separator", "keyword_separator":
			continue
		}
		if isMethod && n == 0 && i == 0 {
			first := w.text(p)
			if first == "self" || first == "cls" {
				continue
			}
		}
		n++
	}
	return n
}

// docstring returns the leading string statement of a body
func (w *walker) docstring(body *sitter.Node) string {
	if body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() == "expression_statement" && first.NamedChildCount() > 0 {
		if expr := first.NamedChild(0); expr.Type() == "string" {
			return unquote(w.text(expr))
		}
	}
	return ""
}

// call records a call site; importlib.import_module and __import__ with a
// literal argument are also recorded as dynamic imports
func (w *walker) call(n *sitter.Node, sc scope) {
	fnNode := n.ChildByFieldName("function")
	if fnNode == nil {
		return
	}

	c := semantic.Call{
		Callee:    collapse(w.text(fnNode)),
		Line:      line(n),
		InTry:     sc.inTry,
		Enclosing: sc.enclosing,
	}
	switch fnNode.Type() {
	case "attribute":
		if obj := fnNode.ChildByFieldName("object"); obj != nil {
			c.Receiver = collapse(w.text(obj))
		}
		if attr := fnNode.ChildByFieldName("attribute"); attr != nil {
			c.Method = w.text(attr)
		}
	case "identifier":
		c.Method = c.Callee
	default:
		c.Method = c.Callee
	}

	var firstArg *sitter.Node
	if args := n.ChildByFieldName("arguments"); args != nil {
		if args.Type() == "generator_expression" {
			c.ArgCount = 1
		} else {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				a := args.NamedChild(i)
				if a.Type() == "comment" {
					continue
				}
				if firstArg == nil {
					firstArg = a
				}
				c.ArgCount++
			}
		}
	}
	w.model.Calls = append(w.model.Calls, c)

	if (c.Callee == "importlib.import_module" || c.Callee == "__import__") &&
		firstArg != nil && firstArg.Type() == "string" {
		w.imports = append(w.imports, semantic.Import{
			Module:  unquote(w.text(firstArg)),
			Dynamic: true,
			Line:    line(n),
		})
	}
}

// assignment records attribute and subscript assignments, and collects
// module-level __all__ definitions
func (w *walker) assignment(n *sitter.Node) {
	left := n.ChildByFieldName("left")
	if left == nil {
		return
	}

	op := "="
	if n.Type() == "augmented_assignment" {
		if opNode := n.ChildByFieldName("operator"); opNode != nil {
			op = w.text(opNode)
		} else if right := n.ChildByFieldName("right"); right != nil {
			op = strings.TrimSpace(string(w.src[left.EndByte():right.StartByte()]))
		}
	}

	targets := []*sitter.Node{left}
	if left.Type() == "pattern_list" || left.Type() == "tuple_pattern" {
		targets = targets[:0]
		for i := 0; i < int(left.NamedChildCount()); i++ {
			targets = append(targets, left.NamedChild(i))
		}
	}
	for _, t := range targets {
		w.mutation(t, op, line(n))
	}
}

func (w *walker) deleteTarget(n *sitter.Node, ln int) {
	if n.Type() == "expression_list" {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.mutation(n.NamedChild(i), "del", ln)
		}
		return
	}
	w.mutation(n, "del", ln)
}

func (w *walker) mutation(target *sitter.Node, op string, ln int) {
	switch target.Type() {
	case "attribute", "subscript":
	default:
		return
	}
	text := collapse(w.text(target))
	root, path := semantic.SplitTarget(text)
	w.model.Mutations = append(w.model.Mutations, semantic.Mutation{
		Target:   text,
		Root:     root,
		Path:     path,
		Operator: op,
		Line:     ln,
	})
}

// collectExports uses __all__ when the module defines it and otherwise
// every public top-level class and function
func (w *walker) collectExports(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() != "expression_statement" || stmt.NamedChildCount() == 0 {
			continue
		}
		assign := stmt.NamedChild(0)
		if assign.Type() != "assignment" {
			continue
		}
		left := assign.ChildByFieldName("left")
		right := assign.ChildByFieldName("right")
		if left == nil || right == nil || w.text(left) != "__all__" {
			continue
		}
		var exports []semantic.Export
		for j := 0; j < int(right.NamedChildCount()); j++ {
			item := right.NamedChild(j)
			if item.Type() == "string" {
				exports = append(exports, semantic.Export{Name: unquote(w.text(item)), Kind: "all", Line: line(item)})
			}
		}
		w.model.Exports = exports
		return
	}

	for _, c := range w.model.Classes {
		if c.Visibility == semantic.VisibilityPublic && isTopLevel(root, c.StartLine) {
			w.model.Exports = append(w.model.Exports, semantic.Export{Name: c.Name, Kind: "class", Line: c.StartLine})
		}
	}
	for _, fn := range w.model.Functions {
		if fn.Visibility == semantic.VisibilityPublic && isTopLevel(root, fn.StartLine) {
			w.model.Exports = append(w.model.Exports, semantic.Export{Name: fn.Name, Kind: "function", Line: fn.StartLine})
		}
	}
	semantic.SortExports(w.model.Exports)
}

// isTopLevel reports whether a module-level statement starts on ln
func isTopLevel(root *sitter.Node, ln int) bool {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		if line(root.NamedChild(i)) == ln {
			return true
		}
	}
	return false
}

// methodKind marks __init__ as the constructor and property methods as
// accessors
func methodKind(name string, decorators []semantic.Decorator) semantic.FunctionKind {
	if name == "__init__" {
		return semantic.FuncConstructor
	}
	for _, d := range decorators {
		switch {
		case d.Name == "property", d.Name == "functools.cached_property", d.Name == "cached_property":
			return semantic.FuncAccessor
		case strings.HasSuffix(d.Name, ".setter"), strings.HasSuffix(d.Name, ".getter"), strings.HasSuffix(d.Name, ".deleter"):
			return semantic.FuncAccessor
		}
	}
	return semantic.FuncPlain
}

// visibility applies Python naming conventions: __x private, _x protected
func visibility(name string) semantic.Visibility {
	switch {
	case strings.HasPrefix(name, "__"):
		return semantic.VisibilityPrivate
	case strings.HasPrefix(name, "_"):
		return semantic.VisibilityProtected
	}
	return semantic.VisibilityPublic
}

// unquote strips string prefixes and quotes from a Python string literal
func unquote(raw string) string {
	raw = strings.TrimLeft(raw, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(raw) >= 2*len(q) && strings.HasPrefix(raw, q) && strings.HasSuffix(raw, q) {
			return strings.TrimSpace(raw[len(q) : len(raw)-len(q)])
		}
	}
	return strings.TrimSpace(raw)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
