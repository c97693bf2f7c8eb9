package codegen

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/mod/modfile"

	"github.com/albertocavalcante/go-multiversion/attr"
	"github.com/albertocavalcante/go-multiversion/diag"
	"github.com/albertocavalcante/go-multiversion/dispatch"
)

// Suffixes of generated files, appended to the source file name without ".go".
const (
	SuffixMain    = "_multiversion.go"
	SuffixStatic  = "_multiversion_static.go"
	SuffixDynamic = "_multiversion_dynamic.go"
)

// Function is a function carrying a multiversion directive.
type Function struct {
	// Baseline is the annotated function, e.g. "BaseSum".
	Baseline string
	// Name is the dispatcher name derived from Baseline, e.g. "Sum".
	Name string
	// Signature is the signature shared by the baseline, every variant and
	// the dispatcher. Signature.Name is Name.
	Signature dispatch.Signature
	Attr      *attr.Attribute
	Pos       diag.Position

	decl *ast.FuncDecl
}

// File is a source file with at least one multiversioned function.
type File struct {
	// Path is the source file path.
	Path string
	// Constraint is the file's //go:build expression, or "".
	Constraint string
	Functions  []*Function

	src  []byte
	file *ast.File
}

// Package is the scan result of one directory.
type Package struct {
	Dir string
	// Name is the package name.
	Name string
	// ImportPath is the import path, or Name when no go.mod encloses Dir.
	ImportPath string
	Files      []*File

	fset     *token.FileSet
	declared map[string]bool
}

// Declared reports whether the package declares a top-level identifier.
func (p *Package) Declared(name string) bool {
	return p.declared[name]
}

// IsGeneratedName reports whether path names a file this package writes.
func IsGeneratedName(path string) bool {
	return strings.HasSuffix(path, SuffixMain) ||
		strings.HasSuffix(path, SuffixStatic) ||
		strings.HasSuffix(path, SuffixDynamic)
}

// Scan parses the Go files of dir and collects multiversioned functions.
//
// Test files and files written by this package are skipped. Other generated
// files contribute declarations but are not searched for directives.
func Scan(dir string) (*Package, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	pkg := &Package{
		Dir:      dir,
		fset:     token.NewFileSet(),
		declared: make(map[string]bool),
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") || IsGeneratedName(name) {
			continue
		}
		path := filepath.Join(dir, name)
		if err := pkg.scanFile(path); err != nil {
			return nil, err
		}
	}

	pkg.ImportPath = importPath(dir, pkg.Name)
	return pkg, nil
}

func (p *Package) scanFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	f, err := parser.ParseFile(p.fset, path, src, parser.ParseComments)
	if err != nil {
		return err
	}
	constraint := buildConstraint(f)
	if constraint == "ignore" {
		return nil
	}
	if p.Name == "" {
		p.Name = f.Name.Name
	} else if f.Name.Name != p.Name {
		return fmt.Errorf("%s: found package %s, expected %s", path, f.Name.Name, p.Name)
	}

	collectDecls(f, p.declared)
	if ast.IsGenerated(f) {
		return nil
	}

	file := &File{Path: path, Constraint: constraint, src: src, file: f}
	for _, decl := range f.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Doc == nil {
			continue
		}
		fn, err := p.function(fd)
		if err != nil {
			return err
		}
		if fn != nil {
			file.Functions = append(file.Functions, fn)
		}
	}
	if len(file.Functions) > 0 {
		p.Files = append(p.Files, file)
	}
	return nil
}

// function returns the multiversioned function declared by fd, or nil when
// fd carries no directive.
func (p *Package) function(fd *ast.FuncDecl) (*Function, error) {
	var directive *ast.Comment
	for _, c := range fd.Doc.List {
		if !attr.IsDirective(c.Text) {
			continue
		}
		if directive != nil {
			return nil, &diag.ValidationError{
				Pos:     p.position(c.Slash),
				Message: fmt.Sprintf("function %s has more than one multiversion directive", fd.Name.Name),
				Wrapped: diag.ErrDuplicateOption,
			}
		}
		directive = c
	}
	if directive == nil {
		return nil, nil
	}

	pos := p.position(directive.Slash)
	if fd.Recv != nil {
		return nil, &diag.ValidationError{
			Pos:     pos,
			Message: fmt.Sprintf("method %s cannot be multiversioned", fd.Name.Name),
			Wrapped: diag.ErrInvalidSignature,
		}
	}
	name, ok := dispatcherName(fd.Name.Name)
	if !ok {
		return nil, &diag.ValidationError{
			Pos:     pos,
			Message: fmt.Sprintf("multiversioned function %s must be named Base<Name> or base<Name>", fd.Name.Name),
			Wrapped: diag.ErrInvalidSignature,
		}
	}

	sig := signature(name, fd.Type)
	if err := sig.Validate(); err != nil {
		return nil, diag.At(err, pos)
	}
	a, err := attr.ParseComment(pos, directive.Text)
	if err != nil {
		return nil, err
	}
	return &Function{
		Baseline:  fd.Name.Name,
		Name:      name,
		Signature: sig,
		Attr:      a,
		Pos:       pos,
		decl:      fd,
	}, nil
}

func (p *Package) position(pos token.Pos) diag.Position {
	position := p.fset.Position(pos)
	return diag.Position{Filename: position.Filename, Line: position.Line, Column: position.Column}
}

// dispatcherName strips the Base or base prefix: BaseSum -> Sum, baseSum -> sum.
func dispatcherName(baseline string) (string, bool) {
	rest, exported := strings.CutPrefix(baseline, "Base")
	if !exported {
		var ok bool
		if rest, ok = strings.CutPrefix(baseline, "base"); !ok {
			return "", false
		}
	}
	r, size := utf8.DecodeRuneInString(rest)
	if !unicode.IsUpper(r) {
		return "", false
	}
	if !exported {
		rest = string(unicode.ToLower(r)) + rest[size:]
	}
	return rest, true
}

func signature(name string, ft *ast.FuncType) dispatch.Signature {
	return dispatch.Signature{
		Name:       name,
		TypeParams: fields(ft.TypeParams, false),
		Params:     fields(ft.Params, false),
		Results:    fields(ft.Results, true),
	}
}

func fields(list *ast.FieldList, results bool) []dispatch.Field {
	if list == nil {
		return nil
	}
	var out []dispatch.Field
	for _, f := range list.List {
		field := dispatch.Field{Type: types.ExprString(f.Type), Opaque: results && opaque(f.Type)}
		if len(f.Names) == 0 {
			out = append(out, field)
			continue
		}
		for _, n := range f.Names {
			field.Name = n.Name
			out = append(out, field)
		}
	}
	return out
}

// opaque reports whether expr is an interface literal with methods.
func opaque(expr ast.Expr) bool {
	it, ok := expr.(*ast.InterfaceType)
	return ok && it.Methods != nil && len(it.Methods.List) > 0
}

func buildConstraint(f *ast.File) string {
	for _, cg := range f.Comments {
		if cg.Pos() >= f.Package {
			break
		}
		for _, c := range cg.List {
			if expr, ok := strings.CutPrefix(c.Text, "//go:build "); ok {
				return strings.TrimSpace(expr)
			}
		}
	}
	return ""
}

func collectDecls(f *ast.File, declared map[string]bool) {
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil {
				declared[d.Name.Name] = true
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					declared[s.Name.Name] = true
				case *ast.ValueSpec:
					for _, n := range s.Names {
						declared[n.Name] = true
					}
				}
			}
		}
	}
}

// importPath derives the import path of dir from the enclosing go.mod.
func importPath(dir, fallback string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fallback
	}
	for d := abs; ; d = filepath.Dir(d) {
		data, err := os.ReadFile(filepath.Join(d, "go.mod"))
		if err == nil {
			mod := modfile.ModulePath(data)
			if mod == "" {
				return fallback
			}
			rel, err := filepath.Rel(d, abs)
			if err != nil || rel == "." {
				return mod
			}
			return mod + "/" + filepath.ToSlash(rel)
		}
		if parent := filepath.Dir(d); parent == d {
			return fallback
		}
	}
}
