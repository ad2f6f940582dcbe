// Package enumvalidator reports string literals assigned to enum-typed fields.
//
// An enum is a named string type whose package declares at least one constant of
// that type, such as model.DiscussionStatus or events.EventKind. Writing
// d.Status = "paused" compiles but bypasses the constant set, so typos reach the
// database and the wire unnoticed.
package enumvalidator

import (
	"go/ast"
	"go/token"
	"go/types"
	"strconv"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

var Analyzer = &analysis.Analyzer{
	Name:     "enumvalidator",
	Doc:      "reports string literals assigned to enum-typed struct fields",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (any, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)
	cache := map[*types.Named]bool{}

	filter := []ast.Node{(*ast.AssignStmt)(nil), (*ast.CompositeLit)(nil)}
	insp.Preorder(filter, func(n ast.Node) {
		switch node := n.(type) {
		case *ast.AssignStmt:
			if len(node.Lhs) != len(node.Rhs) {
				return
			}
			for i, lhs := range node.Lhs {
				sel, ok := lhs.(*ast.SelectorExpr)
				if !ok {
					continue
				}
				check(pass, cache, sel.Sel.Name, node.Rhs[i])
			}
		case *ast.CompositeLit:
			for _, elt := range node.Elts {
				kv, ok := elt.(*ast.KeyValueExpr)
				if !ok {
					continue
				}
				if key, ok := kv.Key.(*ast.Ident); ok {
					check(pass, cache, key.Name, kv.Value)
				}
			}
		}
	})
	return nil, nil
}

func check(pass *analysis.Pass, cache map[*types.Named]bool, field string, value ast.Expr) {
	lit, ok := value.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return
	}
	// The zero value is how optional enums are cleared.
	if s, err := strconv.Unquote(lit.Value); err == nil && s == "" {
		return
	}

	named, ok := pass.TypesInfo.TypeOf(lit).(*types.Named)
	if !ok || !isEnum(cache, named) {
		return
	}
	pass.Reportf(lit.Pos(), "enum field %s assigned string literal %s, use a %s constant",
		field, lit.Value, named.Obj().Name())
}

func isEnum(cache map[*types.Named]bool, named *types.Named) bool {
	if v, ok := cache[named]; ok {
		return v
	}

	enum := false
	basic, ok := named.Underlying().(*types.Basic)
	if ok && basic.Kind() == types.String && named.Obj().Pkg() != nil {
		scope := named.Obj().Pkg().Scope()
		for _, name := range scope.Names() {
			if c, ok := scope.Lookup(name).(*types.Const); ok && types.Identical(c.Type(), named) {
				enum = true
				break
			}
		}
	}
	cache[named] = enum
	return enum
}
