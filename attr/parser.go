// Package attr parses multiversion directives.
//
// A directive is a line comment directly above a function declaration:
//
//	//multiversion: targets = ["x86_64+avx2+fma", "aarch64+neon"], dispatcher = "indirect"
//	func BaseSum(x []float32) float32 { ... }
//
// The text after the prefix is a comma-separated list of options:
//
//   - targets: a list of target strings, or a preset name ("simd"). Required.
//   - attrs: a list of //go: directives copied above every generated variant.
//   - dispatcher: "default", "static", "direct" or "indirect". Defaults to "default".
//
// Each option may appear at most once. The text is parsed as the argument list
// of a Starlark call, so string quoting and list syntax follow Starlark rules.
package attr

import (
	"fmt"
	"strings"

	"github.com/bazelbuild/buildtools/build"

	"github.com/albertocavalcante/go-multiversion/diag"
	"github.com/albertocavalcante/go-multiversion/dispatch"
	"github.com/albertocavalcante/go-multiversion/internal/buildutil"
	"github.com/albertocavalcante/go-multiversion/target"
)

// Prefix starts every directive comment.
const Prefix = "//multiversion:"

const (
	callName = "multiversion"
	callOpen = callName + "("
)

// Option names.
const (
	OptionTargets    = "targets"
	OptionAttrs      = "attrs"
	OptionDispatcher = "dispatcher"
)

// IsDirective reports whether comment is a multiversion directive.
func IsDirective(comment string) bool {
	return strings.HasPrefix(comment, Prefix)
}

// ParseComment parses a full directive comment located at pos.
func ParseComment(pos diag.Position, comment string) (*Attribute, error) {
	text, ok := strings.CutPrefix(comment, Prefix)
	if !ok {
		return nil, &diag.ParseError{
			Pos:     pos,
			Message: fmt.Sprintf("directive must start with %q", Prefix),
			Wrapped: diag.ErrSyntax,
		}
	}
	if pos.Column > 0 {
		pos.Column += len(Prefix)
	}
	return Parse(pos, text)
}

// Parse parses directive text. pos locates the first character of text and
// is used to position diagnostics.
func Parse(pos diag.Position, text string) (*Attribute, error) {
	p := &parser{base: pos, seen: make(map[string]diag.Position)}
	return p.parse(text)
}

type parser struct {
	base diag.Position
	seen map[string]diag.Position
}

func (p *parser) parse(text string) (*Attribute, error) {
	f, err := build.ParseDefault(p.base.Filename, []byte(callOpen+text+")"))
	if err != nil {
		return nil, &diag.ParseError{
			Pos:     p.base,
			Message: fmt.Sprintf("malformed directive: %v", err),
			Wrapped: diag.ErrSyntax,
		}
	}
	if len(f.Stmt) != 1 {
		return nil, p.syntaxError()
	}
	call, ok := f.Stmt[0].(*build.CallExpr)
	if !ok || !buildutil.IsFuncCall(call, callName) {
		return nil, p.syntaxError()
	}

	a := &Attribute{Pos: p.base}
	for _, arg := range call.List {
		if err := p.option(a, arg); err != nil {
			return nil, err
		}
	}
	if _, ok := p.seen[OptionTargets]; !ok {
		return nil, &diag.ValidationError{
			Pos:     p.base,
			Message: "expected `targets`",
			Wrapped: diag.ErrMissingTargets,
		}
	}
	return a, nil
}

func (p *parser) syntaxError() error {
	return &diag.ParseError{
		Pos:     p.base,
		Message: "directive must be a comma-separated list of `name = value` options",
		Wrapped: diag.ErrSyntax,
	}
}

func (p *parser) option(a *Attribute, arg build.Expr) error {
	pos := p.position(arg)
	name, value, ok := buildutil.Keyword(arg)
	if !ok {
		return &diag.ParseError{
			Pos:     pos,
			Message: fmt.Sprintf("expected `name = value` option, got %s", buildutil.Kind(arg)),
			Wrapped: diag.ErrSyntax,
		}
	}

	switch name {
	case OptionTargets, OptionAttrs, OptionDispatcher:
	default:
		return &diag.ParseError{
			Pos:     pos,
			Message: fmt.Sprintf("unrecognized option `%s`, expected `targets`, `attrs`, or `dispatcher`", name),
			Wrapped: diag.ErrUnknownOption,
		}
	}
	if first, dup := p.seen[name]; dup {
		return &diag.ValidationError{
			Pos:     pos,
			Message: fmt.Sprintf("`%s` may only be specified once (first specified at %s)", name, first),
			Wrapped: diag.ErrDuplicateOption,
		}
	}
	p.seen[name] = pos

	switch name {
	case OptionTargets:
		return p.targets(a, value)
	case OptionAttrs:
		return p.attrs(a, value)
	default:
		return p.dispatcher(a, value)
	}
}

func (p *parser) targets(a *Attribute, value build.Expr) error {
	a.TargetsPos = p.position(value)

	if name, ok := buildutil.String(value); ok {
		list, err := target.FromPreset(name)
		if err != nil {
			return diag.At(err, a.TargetsPos)
		}
		a.Preset, a.Targets = name, list
		return nil
	}

	values, err := p.stringList(OptionTargets, value, "a list of target strings or a preset name")
	if err != nil {
		return err
	}
	elems := buildutil.Elements(value)
	targets := make([]target.Target, len(values))
	for i, s := range values {
		t, err := target.Parse(s)
		if err != nil {
			return diag.At(err, p.position(elems[i]))
		}
		targets[i] = t
	}
	list, err := target.FromExplicit(targets)
	if err != nil {
		return diag.At(err, a.TargetsPos)
	}
	a.Targets = list
	return nil
}

func (p *parser) attrs(a *Attribute, value build.Expr) error {
	values, err := p.stringList(OptionAttrs, value, "a list of strings")
	if err != nil {
		return err
	}
	elems := buildutil.Elements(value)
	for i, v := range values {
		if !strings.HasPrefix(v, "//go:") || len(v) == len("//go:") || strings.ContainsAny(v, "\r\n") {
			return &diag.ParseError{
				Pos:     p.position(elems[i]),
				Message: fmt.Sprintf("attrs entry %q must be a single-line //go: directive", v),
				Wrapped: diag.ErrInvalidOption,
			}
		}
	}
	a.Attrs = values
	return nil
}

func (p *parser) dispatcher(a *Attribute, value build.Expr) error {
	pos := p.position(value)
	s, ok := buildutil.String(value)
	if !ok {
		return &diag.ParseError{
			Pos:     pos,
			Message: fmt.Sprintf("`dispatcher` must be a string, got %s", buildutil.Kind(value)),
			Wrapped: diag.ErrInvalidOption,
		}
	}
	m, err := dispatch.ParseMethod(s)
	if err != nil {
		return diag.At(err, pos)
	}
	a.Dispatcher, a.DispatcherPos = m, pos
	return nil
}

func (p *parser) stringList(option string, value build.Expr, want string) ([]string, error) {
	values, bad, ok := buildutil.StringList(value)
	if !ok {
		return nil, &diag.ParseError{
			Pos:     p.position(value),
			Message: fmt.Sprintf("`%s` must be %s, got %s", option, want, buildutil.Kind(value)),
			Wrapped: diag.ErrInvalidOption,
		}
	}
	if bad != nil {
		return nil, &diag.ParseError{
			Pos:     p.position(bad),
			Message: fmt.Sprintf("`%s` entries must be strings, got %s", option, buildutil.Kind(bad)),
			Wrapped: diag.ErrInvalidOption,
		}
	}
	return values, nil
}

// position maps an expression of the wrapped call back to the directive text.
func (p *parser) position(expr build.Expr) diag.Position {
	line, col := buildutil.Start(expr)
	pos := diag.Position{Filename: p.base.Filename, Line: p.base.Line + line - 1, Column: col}
	if line == 1 {
		pos.Column = max(p.base.Column, 1) + col - 1 - len(callOpen)
	}
	if p.base.Line == 0 {
		pos.Line = 0
	}
	return pos
}
