// Package ts provides the TypeScript and JavaScript adapter built on
// tree-sitter.
package ts

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/c360studio/semguard/semantic"
)

func init() {
	semantic.DefaultRegistry.Register(semantic.LangTypeScript,
		[]string{".ts", ".tsx", ".mts", ".cts"},
		func() semantic.Adapter {
			return NewParser(semantic.LangTypeScript)
		})
	semantic.DefaultRegistry.Register(semantic.LangJavaScript,
		[]string{".js", ".jsx", ".mjs", ".cjs"},
		func() semantic.Adapter {
			return NewParser(semantic.LangJavaScript)
		})
}

// Parser extracts a Semantic Model from TypeScript/JavaScript source files
// using tree-sitter. The grammar is picked per file from its extension.
type Parser struct {
	lang semantic.Language
}

// NewParser creates a parser reporting models in the given language.
func NewParser(lang semantic.Language) *Parser {
	return &Parser{lang: lang}
}

// Language implements semantic.Adapter.
func (p *Parser) Language() semantic.Language {
	return p.lang
}

// Parse implements semantic.Adapter.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) (*semantic.Model, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(p.grammar(path))

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	defer tree.Close()

	model := &semantic.Model{
		Path:      path,
		Content:   string(content),
		Language:  p.lang,
		Hash:      semantic.ComputeHash(content),
		LineCount: semantic.CountLines(content),
	}

	root := tree.RootNode()
	w := &walker{
		src:      content,
		model:    model,
		comments: semantic.NewCommentIndex(),
	}

	w.indexComments(root)
	model.CodeLines = semantic.CountCodeLines(content, w.spans)

	w.walk(root, scope{topLevel: true})

	model.Imports = semantic.MergeImports(w.imports)
	w.applyExportVisibility()
	semantic.SortExports(model.Exports)

	return model, nil
}

// grammar returns the tree-sitter language for the file type
func (p *Parser) grammar(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx":
		return tsx.GetLanguage()
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage()
	case ".js", ".jsx", ".mjs", ".cjs":
		return javascript.GetLanguage()
	}
	if p.lang == semantic.LangTypeScript {
		return typescript.GetLanguage()
	}
	return javascript.GetLanguage()
}

type scope struct {
	enclosing string
	inTry     bool
	topLevel  bool
}

type walker struct {
	src      []byte
	model    *semantic.Model
	comments *semantic.CommentIndex
	spans    []semantic.Span
	imports  []semantic.Import

	// indices of top-level declarations whose visibility depends on exports
	topClasses   []int
	topFunctions []int
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

func (w *walker) walkChildren(n *sitter.Node, sc scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), sc)
	}
}

// walk visits n and its descendants
func (w *walker) walk(n *sitter.Node, sc scope) {
	inner := sc
	if n.Type() != "program" {
		inner.topLevel = false
	}

	switch n.Type() {
	case "comment", "string", "template_string", "regex":
		// Template substitutions may hold calls
		if n.Type() == "template_string" {
			w.walkChildren(n, inner)
		}
		return

	case "import_statement":
		w.importStatement(n)
		return

	case "export_statement":
		w.exportStatement(n, sc)
		return

	case "class_declaration", "abstract_class_declaration", "class":
		w.class(n, n, nil, sc)
		return

	case "interface_declaration":
		w.iface(n, sc)
		return

	case "function_declaration", "generator_function_declaration":
		w.function(n, n, nameOf(w, n), sc)
		return

	case "lexical_declaration", "variable_declaration":
		w.variables(n, n, sc)
		return

	case "try_statement":
		body := n.ChildByFieldName("body")
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			s := inner
			if sameNode(child, body) {
				s.inTry = true
			}
			w.walk(child, s)
		}
		return

	case "call_expression":
		w.call(n, sc)

	case "new_expression":
		w.newExpression(n, sc)

	case "assignment_expression":
		w.assignment(n, "=")

	case "augmented_assignment_expression":
		op := "="
		if opNode := n.ChildByFieldName("operator"); opNode != nil {
			op = w.text(opNode)
		}
		w.assignment(n, op)

	case "update_expression":
		if arg := n.ChildByFieldName("argument"); arg != nil {
			op := "++"
			if strings.Contains(w.text(n), "--") {
				op = "--"
			}
			w.mutation(arg, op, line(n))
		}

	case "unary_expression":
		if opNode := n.ChildByFieldName("operator"); opNode != nil && w.text(opNode) == "delete" {
			if arg := n.ChildByFieldName("argument"); arg != nil {
				w.mutation(arg, "delete", line(n))
			}
		}
	}

	w.walkChildren(n, inner)
}

// importStatement handles every static import form, including side-effect
// imports and "import type"
func (w *walker) importStatement(n *sitter.Node) {
	source := n.ChildByFieldName("source")
	if source == nil {
		// import fs = require('fs')
		for i := 0; i < int(n.NamedChildCount()) && source == nil; i++ {
			if child := n.NamedChild(i); child.Type() == "import_require_clause" {
				source = child.ChildByFieldName("source")
			}
		}
	}
	if source == nil {
		return
	}
	imp := semantic.Import{Module: unquote(w.text(source)), Line: line(n)}

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "type":
			imp.TypeOnly = true
		case "import_clause":
			w.importClause(child, &imp)
		case "import_require_clause":
			if id := child.NamedChild(0); id != nil && id.Type() == "identifier" {
				imp.Default = w.text(id)
			}
		}
	}
	w.imports = append(w.imports, imp)
}

func (w *walker) importClause(clause *sitter.Node, imp *semantic.Import) {
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "identifier":
			imp.Default = w.text(child)
		case "namespace_import":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if id := child.NamedChild(j); id.Type() == "identifier" {
					imp.Namespace = w.text(id)
				}
			}
		case "named_imports":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				// The imported name, not the local alias, is what the
				// module exports
				if name := spec.ChildByFieldName("name"); name != nil {
					imp.Named = append(imp.Named, w.text(name))
				}
			}
		}
	}
}

// exportStatement records exported names and walks the exported declaration
func (w *walker) exportStatement(n *sitter.Node, sc scope) {
	isDefault := false
	var decorators []semantic.Decorator
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "default":
			isDefault = true
		case "decorator":
			decorators = append(decorators, w.decorator(child))
		}
	}

	// Re-exports depend on their source module
	if source := n.ChildByFieldName("source"); source != nil {
		imp := semantic.Import{Module: unquote(w.text(source)), Line: line(n)}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			switch child.Type() {
			case "export_clause":
				for _, spec := range w.exportSpecifiers(child) {
					imp.Named = append(imp.Named, spec.local)
					w.export(spec.exported, "reexport", false, line(n))
				}
			case "namespace_export":
				imp.Namespace = strings.TrimSpace(strings.TrimPrefix(w.text(child), "* as"))
				w.export(imp.Namespace, "reexport", false, line(n))
			}
		}
		if imp.Namespace == "" && len(imp.Named) == 0 {
			imp.Wildcard = true
		}
		w.imports = append(w.imports, imp)
		return
	}

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		switch decl.Type() {
		case "class_declaration", "abstract_class_declaration":
			name := nameOf(w, decl)
			w.export(exportName(name, isDefault), "class", isDefault, line(n))
			w.class(decl, n, decorators, sc)
		case "function_declaration", "generator_function_declaration":
			name := nameOf(w, decl)
			w.export(exportName(name, isDefault), "function", isDefault, line(n))
			w.function(decl, n, name, sc)
		case "lexical_declaration", "variable_declaration":
			for _, name := range w.declaratorNames(decl) {
				w.export(name, "variable", false, line(n))
			}
			w.variables(decl, n, sc)
		case "interface_declaration":
			w.export(nameOf(w, decl), "interface", false, line(n))
			w.iface(decl, sc)
		case "type_alias_declaration":
			w.export(nameOf(w, decl), "type", false, line(n))
		case "enum_declaration":
			w.export(nameOf(w, decl), "enum", false, line(n))
		default:
			w.walk(decl, sc)
		}
		return
	}

	if value := n.ChildByFieldName("value"); value != nil {
		// export default <expression>
		kind := "default"
		name := "default"
		switch value.Type() {
		case "class":
			kind = "class"
			if id := value.ChildByFieldName("name"); id != nil {
				name = w.text(id)
			}
			w.export(name, kind, true, line(n))
			w.class(value, n, decorators, sc)
			return
		case "function", "function_expression", "arrow_function":
			kind = "function"
			if id := value.ChildByFieldName("name"); id != nil {
				name = w.text(id)
			}
			w.export(name, kind, true, line(n))
			w.function(value, n, name, sc)
			return
		case "identifier":
			name = w.text(value)
		}
		w.export(name, kind, true, line(n))
		w.walk(value, sc)
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == "export_clause" {
			for _, spec := range w.exportSpecifiers(child) {
				w.export(spec.exported, "binding", spec.exported == "default", line(n))
			}
		}
	}
}

type exportSpec struct {
	local    string
	exported string
}

func (w *walker) exportSpecifiers(clause *sitter.Node) []exportSpec {
	var specs []exportSpec
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		spec := clause.NamedChild(i)
		if spec.Type() != "export_specifier" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		s := exportSpec{local: w.text(nameNode)}
		s.exported = s.local
		if alias := spec.ChildByFieldName("alias"); alias != nil {
			s.exported = w.text(alias)
		}
		specs = append(specs, s)
	}
	return specs
}

func (w *walker) export(name, kind string, isDefault bool, ln int) {
	if name == "" {
		return
	}
	w.model.Exports = append(w.model.Exports, semantic.Export{
		Name:    name,
		Kind:    kind,
		Default: isDefault,
		Line:    ln,
	})
}

func exportName(name string, isDefault bool) string {
	if name == "" && isDefault {
		return "default"
	}
	return name
}

func nameOf(w *walker, n *sitter.Node) string {
	if id := n.ChildByFieldName("name"); id != nil {
		return w.text(id)
	}
	return ""
}

func (w *walker) decorator(n *sitter.Node) semantic.Decorator {
	name, args := semantic.DecoratorName(w.text(n))
	return semantic.Decorator{Name: name, Args: args, Line: line(n)}
}

// class extracts a class declaration or expression. outer is the export
// statement when there is one; its start line anchors the leading comment.
func (w *walker) class(n, outer *sitter.Node, decorators []semantic.Decorator, sc scope) {
	name := nameOf(w, n)
	if name == "" {
		// anonymous class expression; still walk it for calls
		w.walkClassBody(n, nil, sc)
		return
	}

	class := semantic.Class{
		Name:       name,
		Kind:       semantic.KindClass,
		Visibility: semantic.VisibilityPublic,
		Decorators: decorators,
		StartLine:  line(outer),
		EndLine:    endLine(n),
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "decorator":
			class.Decorators = append(class.Decorators, w.decorator(child))
		case "class_heritage":
			w.heritage(child, &class)
		}
	}

	w.walkClassBody(n, &class, sc)

	w.model.Classes = append(w.model.Classes, class)
	if sc.topLevel {
		w.topClasses = append(w.topClasses, len(w.model.Classes)-1)
	}
}

// heritage reads extends and implements clauses. The javascript grammar puts
// the superclass expression directly under class_heritage.
func (w *walker) heritage(n *sitter.Node, class *semantic.Class) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		switch clause.Type() {
		case "extends_clause":
			for j := 0; j < int(clause.NamedChildCount()); j++ {
				if t := clause.NamedChild(j); t.Type() != "type_arguments" {
					class.Extends = append(class.Extends, stripGenerics(w.text(t)))
				}
			}
		case "implements_clause":
			for j := 0; j < int(clause.NamedChildCount()); j++ {
				class.Implements = append(class.Implements, stripGenerics(w.text(clause.NamedChild(j))))
			}
		case "comment":
		default:
			class.Extends = append(class.Extends, stripGenerics(w.text(clause)))
		}
	}
}

// walkClassBody extracts members. Decorators on methods are siblings that
// precede the method_definition in the class body.
func (w *walker) walkClassBody(n *sitter.Node, class *semantic.Class, sc scope) {
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}

	className := ""
	if class != nil {
		className = class.Name
	}

	var pending []semantic.Decorator
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "decorator":
			pending = append(pending, w.decorator(member))
			continue

		case "comment":
			continue

		case "method_definition", "abstract_method_signature", "method_signature":
			fn := w.method(member, pending, className, sc)
			if class != nil && fn.Name != "" {
				class.Methods = append(class.Methods, fn)
			}

		case "public_field_definition", "field_definition":
			decorators := pending
			for j := 0; j < int(member.ChildCount()); j++ {
				if d := member.Child(j); d.Type() == "decorator" {
					decorators = append(decorators, w.decorator(d))
				}
			}
			// Arrow-function fields behave as methods
			value := member.ChildByFieldName("value")
			if value != nil && isFunctionNode(value) {
				fn := w.methodLike(member, value, decorators, className, sc)
				if class != nil && fn.Name != "" {
					class.Methods = append(class.Methods, fn)
				}
			} else if value != nil {
				s := scope{enclosing: qualify(className, ""), inTry: sc.inTry}
				w.walk(value, s)
			}

		default:
			w.walk(member, scope{enclosing: sc.enclosing, inTry: sc.inTry})
		}
		pending = nil
	}
}

// method extracts a method definition and walks its body
func (w *walker) method(n *sitter.Node, decorators []semantic.Decorator, className string, sc scope) semantic.Function {
	for i := 0; i < int(n.ChildCount()); i++ {
		if d := n.Child(i); d.Type() == "decorator" {
			decorators = append(decorators, w.decorator(d))
		}
	}
	fn := w.methodLike(n, n, decorators, className, sc)
	switch {
	case fn.Name == "constructor":
		fn.Kind = semantic.FuncConstructor
	case hasChild(n, "get"), hasChild(n, "set"):
		fn.Kind = semantic.FuncAccessor
	}
	return fn
}

// methodLike builds a method record from a member node and the node holding
// its parameters and body (the same node for method definitions, the arrow
// function for fields)
func (w *walker) methodLike(member, fnNode *sitter.Node, decorators []semantic.Decorator, className string, sc scope) semantic.Function {
	name := nameOf(w, member)
	if name == "" {
		if prop := member.ChildByFieldName("property"); prop != nil {
			name = w.text(prop)
		}
	}

	start := line(member)
	if len(decorators) > 0 && decorators[0].Line < start {
		start = decorators[0].Line
	}

	fn := semantic.Function{
		Name:       name,
		Receiver:   className,
		Async:      hasChild(member, "async") || hasChild(fnNode, "async"),
		Visibility: memberVisibility(w, member, name),
		Decorators: decorators,
		Intents:    semantic.ExtractIntents(w.comments.Above(start)),
		ParamCount: w.countParams(fnNode),
		StartLine:  start,
		EndLine:    endLine(member),
	}

	if body := fnNode.ChildByFieldName("body"); body != nil {
		w.walk(body, scope{enclosing: qualify(className, name)})
	}
	return fn
}

// iface extracts an interface declaration
func (w *walker) iface(n *sitter.Node, sc scope) {
	name := nameOf(w, n)
	if name == "" {
		return
	}
	class := semantic.Class{
		Name:       name,
		Kind:       semantic.KindInterface,
		Visibility: semantic.VisibilityPublic,
		StartLine:  line(n),
		EndLine:    endLine(n),
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() == "extends_type_clause" || clause.Type() == "extends_clause" {
			for j := 0; j < int(clause.NamedChildCount()); j++ {
				class.Extends = append(class.Extends, stripGenerics(w.text(clause.NamedChild(j))))
			}
		}
	}
	w.model.Classes = append(w.model.Classes, class)
	if sc.topLevel {
		w.topClasses = append(w.topClasses, len(w.model.Classes)-1)
	}
}

// function extracts a named function. outer anchors the start line.
func (w *walker) function(n, outer *sitter.Node, name string, sc scope) {
	qualified := qualify(sc.enclosing, name)
	if name == "" {
		qualified = sc.enclosing
	}

	if name != "" {
		fn := semantic.Function{
			Name:       name,
			Async:      hasChild(n, "async"),
			Visibility: semantic.VisibilityPublic,
			Intents:    semantic.ExtractIntents(w.comments.Above(line(outer))),
			ParamCount: w.countParams(n),
			StartLine:  line(outer),
			EndLine:    endLine(n),
		}
		if !sc.topLevel {
			fn.Visibility = semantic.VisibilityPrivate
		}
		w.model.Functions = append(w.model.Functions, fn)
		if sc.topLevel {
			w.topFunctions = append(w.topFunctions, len(w.model.Functions)-1)
		}
	}

	if body := n.ChildByFieldName("body"); body != nil {
		w.walk(body, scope{enclosing: qualified})
	}
}

// variables handles const/let/var declarations, treating declarators bound
// to function expressions as functions and walking other initializers
func (w *walker) variables(decl, outer *sitter.Node, sc scope) {
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		d := decl.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		nameNode := d.ChildByFieldName("name")
		value := d.ChildByFieldName("value")
		if value == nil {
			continue
		}
		switch {
		case nameNode != nil && nameNode.Type() == "identifier" && isFunctionNode(value):
			w.function(value, outer, w.text(nameNode), sc)
		case nameNode != nil && nameNode.Type() == "identifier" && value.Type() == "class":
			if value.ChildByFieldName("name") == nil {
				w.walkClassBody(value, nil, sc)
				continue
			}
			w.class(value, outer, nil, sc)
		default:
			w.walk(value, scope{enclosing: sc.enclosing, inTry: sc.inTry})
		}
	}
}

func (w *walker) declaratorNames(decl *sitter.Node) []string {
	var names []string
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		d := decl.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		if nameNode := d.ChildByFieldName("name"); nameNode != nil && nameNode.Type() == "identifier" {
			names = append(names, w.text(nameNode))
		}
	}
	return names
}

// call records a call site. require() with a literal argument is a static
// import; import() is a dynamic one.
func (w *walker) call(n *sitter.Node, sc scope) {
	fnNode := n.ChildByFieldName("function")
	if fnNode == nil {
		return
	}
	args := n.ChildByFieldName("arguments")
	firstArg, argCount := w.arguments(args)

	if fnNode.Type() == "import" {
		if firstArg != nil && isStringNode(firstArg) {
			w.imports = append(w.imports, semantic.Import{
				Module:  unquote(w.text(firstArg)),
				Dynamic: true,
				Line:    line(n),
			})
		}
		return
	}

	c := semantic.Call{
		Callee:    collapse(w.text(fnNode)),
		ArgCount:  argCount,
		Line:      line(n),
		InTry:     sc.inTry,
		Enclosing: sc.enclosing,
	}
	if fnNode.Type() == "member_expression" {
		if obj := fnNode.ChildByFieldName("object"); obj != nil {
			c.Receiver = collapse(w.text(obj))
		}
		if prop := fnNode.ChildByFieldName("property"); prop != nil {
			c.Method = w.text(prop)
		}
	} else {
		c.Method = c.Callee
	}
	w.model.Calls = append(w.model.Calls, c)

	if c.Callee == "require" && firstArg != nil && isStringNode(firstArg) {
		w.imports = append(w.imports, semantic.Import{
			Module: unquote(w.text(firstArg)),
			Line:   line(n),
		})
	}
}

// newExpression records "new X(...)" as a call to "new X"
func (w *walker) newExpression(n *sitter.Node, sc scope) {
	ctor := n.ChildByFieldName("constructor")
	if ctor == nil {
		return
	}
	_, argCount := w.arguments(n.ChildByFieldName("arguments"))
	target := collapse(w.text(ctor))
	w.model.Calls = append(w.model.Calls, semantic.Call{
		Callee:    "new " + target,
		Method:    target,
		ArgCount:  argCount,
		Line:      line(n),
		InTry:     sc.inTry,
		Enclosing: sc.enclosing,
	})
}

func (w *walker) arguments(args *sitter.Node) (*sitter.Node, int) {
	if args == nil {
		return nil, 0
	}
	if args.Type() == "template_string" {
		// tagged template
		return args, 1
	}
	var first *sitter.Node
	count := 0
	for i := 0; i < int(args.NamedChildCount()); i++ {
		a := args.NamedChild(i)
		if a.Type() == "comment" {
			continue
		}
		if first == nil {
			first = a
		}
		count++
	}
	return first, count
}

// assignment records member and element assignments, and CommonJS exports
func (w *walker) assignment(n *sitter.Node, op string) {
	left := n.ChildByFieldName("left")
	if left == nil {
		return
	}
	target := collapse(w.text(left))
	switch {
	case target == "module.exports":
		w.export("default", "commonjs", true, line(n))
		if right := n.ChildByFieldName("right"); right != nil && right.Type() == "object" {
			for i := 0; i < int(right.NamedChildCount()); i++ {
				prop := right.NamedChild(i)
				switch prop.Type() {
				case "shorthand_property_identifier":
					w.export(w.text(prop), "commonjs", false, line(prop))
				case "pair", "method_definition":
					if key := prop.ChildByFieldName("key"); key != nil {
						w.export(unquote(w.text(key)), "commonjs", false, line(prop))
					} else if key := prop.ChildByFieldName("name"); key != nil {
						w.export(w.text(key), "commonjs", false, line(prop))
					}
				}
			}
		}
	case strings.HasPrefix(target, "exports."), strings.HasPrefix(target, "module.exports."):
		_, path := semantic.SplitTarget(target)
		if len(path) > 0 {
			w.export(path[len(path)-1], "commonjs", false, line(n))
		}
	}
	w.mutation(left, op, line(n))
}

func (w *walker) mutation(target *sitter.Node, op string, ln int) {
	switch target.Type() {
	case "member_expression", "subscript_expression":
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

// applyExportVisibility marks top-level declarations public only when a
// matching name is exported
func (w *walker) applyExportVisibility() {
	exported := make(map[string]bool, len(w.model.Exports))
	for _, e := range w.model.Exports {
		exported[e.Name] = true
	}
	for _, i := range w.topClasses {
		if !exported[w.model.Classes[i].Name] {
			w.model.Classes[i].Visibility = semantic.VisibilityPrivate
		}
	}
	for _, i := range w.topFunctions {
		if !exported[w.model.Functions[i].Name] {
			w.model.Functions[i].Visibility = semantic.VisibilityPrivate
		}
	}
}

func (w *walker) countParams(fnNode *sitter.Node) int {
	params := fnNode.ChildByFieldName("parameters")
	if params == nil {
		// x => x has a bare parameter
		if p := fnNode.ChildByFieldName("parameter"); p != nil {
			return 1
		}
		return 0
	}
	n := 0
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p.Type() == "comment" {
			continue
		}
		// "this" parameters are type annotations only
		if strings.HasPrefix(w.text(p), "this:") || strings.HasPrefix(w.text(p), "this :") {
			continue
		}
		n++
	}
	return n
}

// memberVisibility reads accessibility modifiers and #private names
func memberVisibility(w *walker, member *sitter.Node, name string) semantic.Visibility {
	if strings.HasPrefix(name, "#") {
		return semantic.VisibilityPrivate
	}
	for i := 0; i < int(member.ChildCount()); i++ {
		child := member.Child(i)
		if child.Type() != "accessibility_modifier" {
			continue
		}
		switch w.text(child) {
		case "private":
			return semantic.VisibilityPrivate
		case "protected":
			return semantic.VisibilityProtected
		}
	}
	return semantic.VisibilityPublic
}

func isFunctionNode(n *sitter.Node) bool {
	switch n.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}

func isStringNode(n *sitter.Node) bool {
	return n.Type() == "string" || (n.Type() == "template_string" && n.NamedChildCount() == 0)
}

func hasChild(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == typ {
			return true
		}
	}
	return false
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func qualify(outer, name string) string {
	switch {
	case outer == "":
		return name
	case name == "":
		return outer
	}
	return outer + "." + name
}

// stripGenerics removes type arguments: Repository<User> → Repository
func stripGenerics(s string) string {
	if i := strings.IndexByte(s, '<'); i > 0 {
		s = s[:i]
	}
	return collapse(s)
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
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
