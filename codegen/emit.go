package codegen

import (
	"bytes"
	"fmt"
	"go/build/constraint"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/tools/imports"

	"github.com/albertocavalcante/go-multiversion/dispatch"
)

// Header starts every generated file.
const Header = "// Code generated by multiversion. DO NOT EDIT."

const (
	selectorImport = "github.com/albertocavalcante/go-multiversion/selector"
	dispatchImport = "github.com/albertocavalcante/go-multiversion/dispatch"
)

// Planned is a multiversioned function and its plan.
type Planned struct {
	Function *Function
	Plan     *dispatch.Plan
}

// Output is a generated file.
type Output struct {
	Path       string
	Constraint string
	Content    []byte
}

// writer accumulates the declarations of one generated file.
type writer struct {
	pkg        *Package
	file       *File
	path       string
	constraint string
	runtime    bool
	buf        bytes.Buffer
}

func (w *writer) printf(format string, args ...any) {
	fmt.Fprintf(&w.buf, format, args...)
}

// emit renders the generated files of one source file.
func emit(pkg *Package, file *File, planned []Planned) ([]Output, error) {
	base := strings.TrimSuffix(file.Path, ".go")
	main := &writer{pkg: pkg, file: file, path: base + SuffixMain, constraint: file.Constraint}
	var static, dynamic *writer

	for _, p := range planned {
		main.variants(p)

		if p.Plan.Method != dispatch.Static {
			main.site(p.Function, p.Plan)
			continue
		}

		if static == nil {
			guard := p.Plan.Config.BuildConstraint()
			on, err := andConstraints(file.Constraint, guard)
			if err != nil {
				return nil, err
			}
			off, err := andConstraints(file.Constraint, "!("+guard+")")
			if err != nil {
				return nil, err
			}
			static = &writer{pkg: pkg, file: file, path: base + SuffixStatic, constraint: on}
			dynamic = &writer{pkg: pkg, file: file, path: base + SuffixDynamic, constraint: off}
		}
		static.static(p.Function, p.Plan)

		if p.Plan.Requested != dispatch.Default {
			dynamic.unavailable(p.Function, p.Plan)
			continue
		}
		fallback, err := dynamicPlan(p)
		if err != nil {
			return nil, err
		}
		dynamic.site(p.Function, fallback)
	}

	var outs []Output
	for _, w := range []*writer{main, static, dynamic} {
		if w == nil || w.buf.Len() == 0 {
			continue
		}
		out, err := w.render()
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, nil
}

// dynamicPlan is the plan a Default dispatcher falls back to when the build
// does not match the static configuration: nothing is known, so every
// variant needs a runtime probe.
func dynamicPlan(p Planned) (*dispatch.Plan, error) {
	cfg := dispatch.Config{IndirectBranchHardening: p.Plan.Config.IndirectBranchHardening}
	return dispatch.Build(p.Function.Attr.Targets, cfg.DynamicMethod(), p.Function.Signature, cfg)
}

// variants writes a copy of the baseline for every variant the package does
// not specialize by hand.
func (w *writer) variants(p Planned) {
	all := slices.Concat(p.Plan.Variants, p.Plan.Pruned)
	slices.SortFunc(all, func(a, b dispatch.Variant) int { return a.Priority - b.Priority })

	fn := p.Function
	for _, v := range all {
		if w.pkg.Declared(v.Name) {
			continue
		}
		w.printf("// %s is %s specialized for %s.\n", v.Name, fn.Baseline, v.Target)
		if len(fn.Attr.Attrs) > 0 {
			w.printf("//\n")
			for _, a := range fn.Attr.Attrs {
				w.printf("%s\n", a)
			}
		}
		w.printf("%s\n\n", w.clone(fn, v.Name))
	}
}

// clone returns the source of the baseline declaration renamed to name.
func (w *writer) clone(fn *Function, name string) string {
	fset := w.pkg.fset
	start := fset.Position(fn.decl.Pos()).Offset
	nameStart := fset.Position(fn.decl.Name.Pos()).Offset
	nameEnd := fset.Position(fn.decl.Name.End()).Offset
	end := fset.Position(fn.decl.End()).Offset
	src := w.file.src
	return string(src[start:nameStart]) + name + string(src[nameEnd:end])
}

// site writes a registered selector and the dispatcher calling through it.
func (w *writer) site(fn *Function, plan *dispatch.Plan) {
	w.runtime = true
	site := "multiversionSite_" + fn.Name
	funcType := plan.Signature.FuncType()

	w.printf("var %s = selector.MustRegister(%q, dispatch.%s, %s,\n",
		site, w.pkg.ImportPath+"."+fn.Name, capitalize(plan.Method.String()), fn.Baseline)
	for _, v := range plan.Variants {
		w.printf("\tselector.Impl[%s]{Target: %q, Fn: %s},\n", funcType, v.Target.String(), v.Name)
	}
	w.printf(")\n\n")

	w.printf("// %s calls the implementation of %s best suited to the executing processor.\n", fn.Name, fn.Baseline)
	w.dispatcher(fn, site+".Get()")
}

// static writes a dispatcher calling the variant resolved at build time.
func (w *writer) static(fn *Function, plan *dispatch.Plan) {
	callee := fn.Baseline
	if v, ok := plan.Selected(); ok {
		callee = v.Name
	}
	w.printf("// %s calls %s, selected at build time.\n", fn.Name, callee)
	w.dispatcher(fn, callee)
}

// unavailable writes a declaration that fails to compile in builds the
// static configuration does not match. An explicit static dispatcher has no
// runtime fallback.
func (w *writer) unavailable(fn *Function, plan *dispatch.Plan) {
	msg := fmt.Sprintf("%s: static dispatch requires a build matching %s", fn.Name, plan.Config.BuildConstraint())
	w.printf("// %s has no implementation in this build.\n", fn.Name)
	w.printf("const _ int = %q\n\n", msg)
}

func (w *writer) dispatcher(fn *Function, callee string) {
	sig := fn.Signature
	params := make([]string, len(sig.Params))
	args := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		name := p.Name
		if name == "" || name == "_" {
			name = "arg" + strconv.Itoa(i)
		}
		params[i] = name + " " + p.Type
		args[i] = name
		if i == len(sig.Params)-1 && sig.Variadic() {
			args[i] += "..."
		}
	}

	results := make([]string, len(sig.Results))
	for i, r := range sig.Results {
		results[i] = r.Type
	}
	var ret string
	switch len(results) {
	case 0:
	case 1:
		ret = " " + results[0]
	default:
		ret = " (" + strings.Join(results, ", ") + ")"
	}

	w.printf("func %s(%s)%s {\n\t", fn.Name, strings.Join(params, ", "), ret)
	if len(results) > 0 {
		w.printf("return ")
	}
	w.printf("%s(%s)\n}\n\n", callee, strings.Join(args, ", "))
}

func (w *writer) render() (Output, error) {
	var b bytes.Buffer
	b.WriteString(Header + "\n\n")
	if w.constraint != "" {
		b.WriteString("//go:build " + w.constraint + "\n\n")
	}
	b.WriteString("package " + w.pkg.Name + "\n\n")

	b.WriteString("import (\n")
	for _, spec := range w.file.file.Imports {
		if spec.Name != nil && spec.Name.Name == "_" {
			continue
		}
		if spec.Name != nil {
			b.WriteString("\t" + spec.Name.Name + " ")
		} else {
			b.WriteString("\t")
		}
		b.WriteString(spec.Path.Value + "\n")
	}
	if w.runtime {
		b.WriteString("\t" + strconv.Quote(dispatchImport) + "\n")
		b.WriteString("\t" + strconv.Quote(selectorImport) + "\n")
	}
	b.WriteString(")\n\n")
	b.Write(w.buf.Bytes())

	content, err := imports.Process(w.path, b.Bytes(), &imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	})
	if err != nil {
		return Output{}, fmt.Errorf("format %s: %w", w.path, err)
	}
	return Output{Path: w.path, Constraint: w.constraint, Content: content}, nil
}

// andConstraints joins build expressions with &&, skipping empty ones.
func andConstraints(exprs ...string) (string, error) {
	var result constraint.Expr
	for _, e := range exprs {
		if e == "" {
			continue
		}
		x, err := constraint.Parse("//go:build " + e)
		if err != nil {
			return "", fmt.Errorf("build constraint %q: %w", e, err)
		}
		if result == nil {
			result = x
		} else {
			result = &constraint.AndExpr{X: result, Y: x}
		}
	}
	if result == nil {
		return "", nil
	}
	return result.String(), nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
