// Package buildutil provides utilities for reading directive arguments from
// buildtools AST nodes.
package buildutil

import (
	"strconv"

	"github.com/bazelbuild/buildtools/build"
)

// Keyword splits a `name = value` call argument.
// Returns false for positional arguments and non-identifier left-hand sides.
func Keyword(arg build.Expr) (string, build.Expr, bool) {
	assign, ok := arg.(*build.AssignExpr)
	if !ok || assign.Op != "=" {
		return "", nil, false
	}
	lhs, ok := assign.LHS.(*build.Ident)
	if !ok {
		return "", nil, false
	}
	return lhs.Name, assign.RHS, true
}

// String returns the value of a string literal.
func String(expr build.Expr) (string, bool) {
	if str, ok := expr.(*build.StringExpr); ok {
		return str.Value, true
	}
	return "", false
}

// StringList returns the values of a list of string literals.
// When expr is not a list, ok is false. When an element is not a string,
// values is nil and bad is that element.
func StringList(expr build.Expr) (values []string, bad build.Expr, ok bool) {
	list, ok := expr.(*build.ListExpr)
	if !ok {
		return nil, nil, false
	}
	values = make([]string, 0, len(list.List))
	for _, elem := range list.List {
		str, isStr := elem.(*build.StringExpr)
		if !isStr {
			return nil, elem, true
		}
		values = append(values, str.Value)
	}
	return values, nil, true
}

// Elements returns the elements of a list expression, or nil.
func Elements(expr build.Expr) []build.Expr {
	if list, ok := expr.(*build.ListExpr); ok {
		return list.List
	}
	return nil
}

// Start returns the 1-based line and column where expr begins.
func Start(expr build.Expr) (line, column int) {
	start, _ := expr.Span()
	return start.Line, start.LineRune
}

// Kind describes the syntactic kind of expr for diagnostics.
func Kind(expr build.Expr) string {
	switch e := expr.(type) {
	case *build.StringExpr:
		return "string"
	case *build.LiteralExpr:
		if _, err := strconv.Atoi(e.Token); err == nil {
			return "integer"
		}
		return "literal"
	case *build.Ident:
		switch e.Name {
		case "True", "False":
			return "boolean"
		case "None":
			return "None"
		}
		return "identifier"
	case *build.ListExpr:
		return "list"
	case *build.TupleExpr:
		return "tuple"
	case *build.DictExpr:
		return "dict"
	case *build.CallExpr:
		return "call"
	default:
		return "expression"
	}
}

// FuncName returns the function name from a CallExpr.
// Returns empty string if the call is not a simple function call
// (e.g., method calls like foo.bar()).
func FuncName(call *build.CallExpr) string {
	if ident, ok := call.X.(*build.Ident); ok {
		return ident.Name
	}
	return ""
}

// IsFuncCall returns true if the call is for the specified function name.
func IsFuncCall(call *build.CallExpr, name string) bool {
	return FuncName(call) == name
}
