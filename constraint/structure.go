package constraint

import (
	"fmt"
	"strings"

	"github.com/c360studio/semguard/registry"
	"github.com/c360studio/semguard/semantic"
)

func forbidImport(c registry.Constraint, ctx *Context) Outcome {
	var out Outcome
	for _, imp := range ctx.Model.Imports {
		for _, module := range c.List() {
			if !semantic.ModuleMatches(imp.Module, module) {
				continue
			}
			out.Violations = append(out.Violations, Violation{
				Value:   imp.Module,
				Message: fmt.Sprintf("import of %q is forbidden", imp.Module),
				Line:    imp.Line,
			})
			break
		}
	}
	return out
}

// requireImport is satisfied by any import of the module or one of its
// sub-modules, including a wildcard import from it.
func requireImport(c registry.Constraint, ctx *Context) Outcome {
	var out Outcome
	for _, module := range c.List() {
		if ctx.Model.HasImport(module) {
			continue
		}
		out.Violations = append(out.Violations, Violation{
			Value:   module,
			Message: fmt.Sprintf("required import %q is missing", module),
			Suggestion: &Suggestion{
				Action:          ActionAdd,
				Target:          module,
				ImportStatement: importStatement(ctx.Model.Language, module, ""),
			},
		})
	}
	return out
}

func forbidCall(c registry.Constraint, ctx *Context) Outcome {
	m := newCalleeMatcher(c.List())
	var out Outcome
	for _, call := range ctx.Model.Calls {
		if !m.match(call.Callee) {
			continue
		}
		out.Violations = append(out.Violations, Violation{
			Value:   call.Callee,
			Message: fmt.Sprintf("call to %s is forbidden", call.Callee),
			Line:    call.Line,
		})
	}
	return out
}

func requireCall(c registry.Constraint, ctx *Context) Outcome {
	var out Outcome
	for _, pattern := range c.List() {
		m := newCalleeMatcher([]string{pattern})
		found := false
		for _, call := range ctx.Model.Calls {
			if m.match(call.Callee) {
				found = true
				break
			}
		}
		if !found {
			out.Violations = append(out.Violations, Violation{
				Value:      pattern,
				Message:    fmt.Sprintf("required call to %s not found", pattern),
				Suggestion: &Suggestion{Action: ActionAdd, Target: pattern},
			})
		}
	}
	return out
}

// requireTryCatch reports matching calls that sit outside a try body.
func requireTryCatch(c registry.Constraint, ctx *Context) Outcome {
	m := newCalleeMatcher(c.List())
	var out Outcome
	for _, call := range ctx.Model.Calls {
		if call.InTry || !m.match(call.Callee) {
			continue
		}
		out.Violations = append(out.Violations, Violation{
			Value:      call.Callee,
			Message:    fmt.Sprintf("call to %s must be wrapped in try/catch", call.Callee),
			Line:       call.Line,
			Suggestion: &Suggestion{Action: ActionAdd, Target: call.Callee, Replacement: "try/catch"},
		})
	}
	return out
}

// forbidMutation matches a mutation whose target is the forbidden target,
// lies below it, or whose root object is it.
func forbidMutation(c registry.Constraint, ctx *Context) Outcome {
	var out Outcome
	for _, mut := range ctx.Model.Mutations {
		for _, target := range c.List() {
			if !mutationMatches(mut, target) {
				continue
			}
			out.Violations = append(out.Violations, Violation{
				Value:   mut.Target,
				Message: fmt.Sprintf("mutation of %s is forbidden", mut.Target),
				Line:    mut.Line,
			})
			break
		}
	}
	return out
}

func mutationMatches(mut semantic.Mutation, target string) bool {
	switch {
	case mut.Target == target, mut.Root == target:
		return true
	case strings.HasPrefix(mut.Target, target+"."), strings.HasPrefix(mut.Target, target+"["):
		return true
	}
	return false
}

func forbidDecorator(c registry.Constraint, ctx *Context) Outcome {
	forbidden := make(map[string]bool)
	for _, d := range c.List() {
		forbidden[strings.TrimPrefix(d, "@")] = true
	}

	var out Outcome
	report := func(d semantic.Decorator, on string) {
		if forbidden[d.Name] {
			out.Violations = append(out.Violations, Violation{
				Value:   d.Name,
				Message: fmt.Sprintf("decorator @%s on %s is forbidden", d.Name, on),
				Line:    d.Line,
			})
		}
	}
	for _, cls := range ctx.Model.Classes {
		for _, d := range cls.Decorators {
			report(d, cls.Name)
		}
	}
	for _, fn := range ctx.Model.AllFunctions() {
		for _, d := range fn.Decorators {
			report(d, fn.Name)
		}
	}
	return out
}

// requireDecorator requires every class in the file to carry each listed
// decorator. A file without classes passes.
func requireDecorator(c registry.Constraint, ctx *Context) Outcome {
	var out Outcome
	for _, cls := range ctx.Model.Classes {
		if cls.Kind != semantic.KindClass {
			continue
		}
		for _, want := range c.List() {
			want = strings.TrimPrefix(want, "@")
			if hasDecorator(cls.Decorators, want) {
				continue
			}
			out.Violations = append(out.Violations, Violation{
				Value:      want,
				Message:    fmt.Sprintf("class %s is missing required decorator @%s", cls.Name, want),
				Line:       cls.StartLine,
				Suggestion: &Suggestion{Action: ActionAdd, Target: cls.Name, Replacement: "@" + want},
			})
		}
	}
	return out
}

func hasDecorator(decorators []semantic.Decorator, name string) bool {
	for _, d := range decorators {
		if d.Name == name || baseName(d.Name) == name {
			return true
		}
	}
	return false
}

// mustExtend requires at least one class in the file to extend the base.
func mustExtend(c registry.Constraint, ctx *Context) Outcome {
	base := c.ValueString()
	line := 0
	for _, cls := range ctx.Model.Classes {
		if cls.Kind == semantic.KindInterface {
			continue
		}
		if line == 0 {
			line = cls.StartLine
		}
		for _, ext := range cls.Extends {
			if heritageMatches(ext, base) {
				return Outcome{Passed: true}
			}
		}
	}

	msg := fmt.Sprintf("no class extends %s", base)
	if line == 0 {
		msg = fmt.Sprintf("file declares no class extending %s", base)
	}
	return Outcome{Violations: []Violation{{
		Value:   base,
		Message: msg,
		Line:    line,
	}}}
}

// implements requires some class to implement each listed interface.
// Python and JavaScript have no implements clause, so extending counts.
func implements(c registry.Constraint, ctx *Context) Outcome {
	var out Outcome
	for _, iface := range c.List() {
		found := false
		for _, cls := range ctx.Model.Classes {
			for _, name := range append(append([]string(nil), cls.Implements...), cls.Extends...) {
				if heritageMatches(name, iface) {
					found = true
				}
			}
		}
		if !found {
			out.Violations = append(out.Violations, Violation{
				Value:   iface,
				Message: fmt.Sprintf("no class implements %s", iface),
			})
		}
	}
	return out
}

func heritageMatches(name, want string) bool {
	name = stripGenerics(name)
	return name == want || baseName(name) == want
}

// requireExport requires an export matching each pattern. "default" names
// the default export.
func requireExport(c registry.Constraint, ctx *Context) Outcome {
	var out Outcome
	for _, pattern := range c.List() {
		found := false
		for _, exp := range ctx.Model.Exports {
			if (pattern == "default" && exp.Default) || wildcardMatch(pattern, exp.Name) {
				found = true
				break
			}
		}
		if !found {
			out.Violations = append(out.Violations, Violation{
				Value:      pattern,
				Message:    fmt.Sprintf("required export %s not found", pattern),
				Suggestion: &Suggestion{Action: ActionAdd, Target: pattern},
			})
		}
	}
	return out
}

// maxPublicMethods checks each class separately. Interfaces only declare
// shapes and are not counted.
func maxPublicMethods(c registry.Constraint, ctx *Context) Outcome {
	limit := intValue(c)
	var out Outcome
	for _, cls := range ctx.Model.Classes {
		if cls.Kind == semantic.KindInterface {
			continue
		}
		n := cls.PublicMethods()
		if n <= limit {
			continue
		}
		out.Violations = append(out.Violations, Violation{
			Value:   cls.Name,
			Message: fmt.Sprintf("class %s has %d public methods (limit %d)", cls.Name, n, limit),
			Line:    cls.StartLine,
			Count:   n,
			Limit:   limit,
		})
	}
	return out
}

func maxFileLines(c registry.Constraint, ctx *Context) Outcome {
	limit := intValue(c)
	n := ctx.Model.CodeLines
	if n <= limit {
		return Outcome{Passed: true}
	}
	return Outcome{Violations: []Violation{{
		Value:   c.ValueString(),
		Message: fmt.Sprintf("file has %d lines of code (limit %d)", n, limit),
		Count:   n,
		Limit:   limit,
	}}}
}

func intValue(c registry.Constraint) int {
	if v, ok := c.Value.(registry.IntValue); ok {
		return int(v)
	}
	return 0
}
