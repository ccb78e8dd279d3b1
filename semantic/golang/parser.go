// Package golang provides the Go adapter built on go/parser.
package golang

import (
	"context"
	"errors"
	"fmt"
	goast "go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"strconv"
	"strings"

	"github.com/c360studio/semguard/semantic"
)

func init() {
	semantic.DefaultRegistry.Register(semantic.LangGo, []string{".go"},
		func() semantic.Adapter {
			return NewParser()
		})
}

// Parser extracts a Semantic Model from Go source files.
type Parser struct{}

// NewParser creates a new Go parser.
func NewParser() *Parser {
	return &Parser{}
}

// Language implements semantic.Adapter.
func (p *Parser) Language() semantic.Language {
	return semantic.LangGo
}

// Parse implements semantic.Adapter. Syntax errors still yield a partial
// model whenever go/parser returns a file node.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) (*semantic.Model, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments|parser.AllErrors)
	if file == nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}

	model := &semantic.Model{
		Path:      path,
		Content:   string(content),
		Language:  semantic.LangGo,
		Hash:      semantic.ComputeHash(content),
		LineCount: semantic.CountLines(content),
	}

	if err != nil {
		var list scanner.ErrorList
		if errors.As(err, &list) {
			for _, e := range list {
				model.Diagnostics = append(model.Diagnostics, semantic.Diagnostic{
					Line:    e.Pos.Line,
					Message: e.Msg,
				})
			}
		} else {
			model.Diagnostics = append(model.Diagnostics, semantic.Diagnostic{Message: err.Error()})
		}
	}

	e := &extractor{fset: fset, model: model}
	e.extractImports(file)
	e.extractDecls(file)
	e.extractComments(file, content)

	return model, nil
}

type extractor struct {
	fset  *token.FileSet
	model *semantic.Model

	methods []semantic.Function
}

func (e *extractor) line(pos token.Pos) int {
	return e.fset.Position(pos).Line
}

// extractImports records one import per path. Dot imports are treated as
// wildcard imports; blank imports keep no binding.
func (e *extractor) extractImports(file *goast.File) {
	var imports []semantic.Import
	for _, spec := range file.Imports {
		importPath, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}

		imp := semantic.Import{
			Module: importPath,
			Line:   e.line(spec.Pos()),
		}
		if spec.Name != nil {
			switch spec.Name.Name {
			case ".":
				imp.Wildcard = true
			case "_":
			default:
				imp.Alias = spec.Name.Name
			}
		}
		imports = append(imports, imp)
	}
	e.model.Imports = semantic.MergeImports(imports)
}

// extractDecls walks top-level declarations
func (e *extractor) extractDecls(file *goast.File) {
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *goast.FuncDecl:
			e.extractFunction(d)

		case *goast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *goast.TypeSpec:
					e.extractTypeSpec(s)
				case *goast.ValueSpec:
					kind := "var"
					if d.Tok == token.CONST {
						kind = "const"
					}
					for _, name := range s.Names {
						if name.IsExported() {
							e.export(name.Name, kind, name.Pos())
						}
					}
					// Package-level initializers may call functions too
					for _, v := range s.Values {
						e.extractBody(v, "")
					}
				}
			}
		}
	}

	e.attachMethods()
	semantic.SortExports(e.model.Exports)
}

func (e *extractor) export(name, kind string, pos token.Pos) {
	e.model.Exports = append(e.model.Exports, semantic.Export{
		Name: name,
		Kind: kind,
		Line: e.line(pos),
	})
}

// extractFunction extracts a function or method
func (e *extractor) extractFunction(fn *goast.FuncDecl) {
	f := semantic.Function{
		Name:       fn.Name.Name,
		Visibility: visibility(fn.Name.Name),
		ParamCount: countFields(fn.Type.Params),
		StartLine:  e.line(fn.Pos()),
		EndLine:    e.line(fn.End()),
	}
	if fn.Doc != nil {
		f.Intents = semantic.ExtractIntents(fn.Doc.Text())
	}

	enclosing := f.Name
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		f.Receiver = typeName(fn.Recv.List[0].Type)
		enclosing = f.Receiver + "." + f.Name
		e.methods = append(e.methods, f)
	} else {
		e.model.Functions = append(e.model.Functions, f)
		if fn.Name.IsExported() {
			e.export(f.Name, "function", fn.Name.Pos())
		}
	}

	if fn.Body != nil {
		e.extractBody(fn.Body, enclosing)
	}
}

// extractTypeSpec extracts struct and interface types
func (e *extractor) extractTypeSpec(ts *goast.TypeSpec) {
	if ts.Name.IsExported() {
		e.export(ts.Name.Name, "type", ts.Name.Pos())
	}

	class := semantic.Class{
		Name:       ts.Name.Name,
		Visibility: visibility(ts.Name.Name),
		StartLine:  e.line(ts.Pos()),
		EndLine:    e.line(ts.End()),
	}

	switch t := ts.Type.(type) {
	case *goast.StructType:
		class.Kind = semantic.KindStruct
		if t.Fields != nil {
			for _, field := range t.Fields.List {
				// Embedded fields are the closest Go has to inheritance
				if len(field.Names) == 0 {
					if name := typeName(field.Type); name != "" {
						class.Extends = append(class.Extends, name)
					}
				}
			}
		}

	case *goast.InterfaceType:
		class.Kind = semantic.KindInterface
		if t.Methods != nil {
			for _, m := range t.Methods.List {
				if len(m.Names) == 0 {
					if name := typeName(m.Type); name != "" {
						class.Extends = append(class.Extends, name)
					}
				}
			}
		}

	default:
		return
	}

	e.model.Classes = append(e.model.Classes, class)
}

// attachMethods moves methods onto the struct they are declared on. Methods
// whose receiver type lives in another file stay free functions with the
// receiver recorded.
func (e *extractor) attachMethods() {
	for _, m := range e.methods {
		attached := false
		for i := range e.model.Classes {
			if e.model.Classes[i].Name == m.Receiver {
				e.model.Classes[i].Methods = append(e.model.Classes[i].Methods, m)
				attached = true
				break
			}
		}
		if !attached {
			e.model.Functions = append(e.model.Functions, m)
		}
	}
}

// extractBody records call sites and property mutations below node
func (e *extractor) extractBody(node goast.Node, enclosing string) {
	goast.Inspect(node, func(n goast.Node) bool {
		switch x := n.(type) {
		case *goast.CallExpr:
			e.model.Calls = append(e.model.Calls, e.call(x, enclosing))

		case *goast.AssignStmt:
			if x.Tok == token.DEFINE {
				return true
			}
			for _, lhs := range x.Lhs {
				if m, ok := e.mutation(lhs, x.Tok.String(), x.Pos()); ok {
					e.model.Mutations = append(e.model.Mutations, m)
				}
			}

		case *goast.IncDecStmt:
			if m, ok := e.mutation(x.X, x.Tok.String(), x.Pos()); ok {
				e.model.Mutations = append(e.model.Mutations, m)
			}
		}
		return true
	})
}

func (e *extractor) call(x *goast.CallExpr, enclosing string) semantic.Call {
	c := semantic.Call{
		Callee:    types.ExprString(x.Fun),
		ArgCount:  len(x.Args),
		Line:      e.line(x.Pos()),
		Enclosing: enclosing,
	}
	switch fn := x.Fun.(type) {
	case *goast.SelectorExpr:
		c.Receiver = types.ExprString(fn.X)
		c.Method = fn.Sel.Name
	case *goast.Ident:
		c.Method = fn.Name
	default:
		c.Method = c.Callee
	}
	return c
}

// mutation reports assignments whose target is a field or element. Plain
// local variable assignments are not mutations of shared state.
func (e *extractor) mutation(lhs goast.Expr, op string, pos token.Pos) (semantic.Mutation, bool) {
	switch lhs.(type) {
	case *goast.SelectorExpr, *goast.IndexExpr, *goast.StarExpr:
	default:
		return semantic.Mutation{}, false
	}

	target := types.ExprString(lhs)
	root, path := semantic.SplitTarget(strings.TrimPrefix(target, "*"))
	return semantic.Mutation{
		Target:   target,
		Root:     root,
		Path:     path,
		Operator: op,
		Line:     e.line(pos),
	}, true
}

// extractComments computes code-line totals with comment groups masked
func (e *extractor) extractComments(file *goast.File, content []byte) {
	var spans []semantic.Span
	for _, group := range file.Comments {
		for _, c := range group.List {
			spans = append(spans, semantic.Span{
				Start: e.fset.Position(c.Pos()).Offset,
				End:   e.fset.Position(c.End()).Offset,
			})
		}
	}
	e.model.CodeLines = semantic.CountCodeLines(content, spans)
}

// typeName extracts the bare name from a type expression
func typeName(expr goast.Expr) string {
	switch t := expr.(type) {
	case *goast.Ident:
		return t.Name
	case *goast.SelectorExpr:
		if x, ok := t.X.(*goast.Ident); ok {
			return x.Name + "." + t.Sel.Name
		}
	case *goast.StarExpr:
		return typeName(t.X)
	case *goast.IndexExpr:
		// Generic instantiation: Type[T]
		return typeName(t.X)
	case *goast.IndexListExpr:
		return typeName(t.X)
	}
	return ""
}

// countFields counts parameters; "a, b int" is one field with two names
func countFields(list *goast.FieldList) int {
	if list == nil {
		return 0
	}
	n := 0
	for _, field := range list.List {
		if len(field.Names) == 0 {
			n++
			continue
		}
		n += len(field.Names)
	}
	return n
}

// visibility maps Go export rules onto the shared vocabulary
func visibility(name string) semantic.Visibility {
	if goast.IsExported(name) {
		return semantic.VisibilityPublic
	}
	return semantic.VisibilityPrivate
}
