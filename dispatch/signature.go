package dispatch

import (
	"go/token"
	"strings"

	"github.com/albertocavalcante/go-multiversion/diag"
)

// Field is a parameter or result of a multiversioned function.
type Field struct {
	// Name is the declared name; empty for unnamed fields.
	Name string `json:"name,omitempty"`
	// Type is the Go source spelling of the type. A variadic parameter is
	// spelled with its ellipsis (e.g., "...float32").
	Type string `json:"type"`
	// Opaque marks a result whose type is an anonymous interface literal
	// with methods: each variant could return a different dynamic type
	// behind it, so there is no single named type all variants share.
	Opaque bool `json:"opaque,omitempty"`
}

// Signature is the signature of the function being multiversioned.
type Signature struct {
	Name       string  `json:"name"`
	TypeParams []Field `json:"type_params,omitempty"`
	Params     []Field `json:"params,omitempty"`
	Results    []Field `json:"results,omitempty"`
}

// Validate checks that every variant and the baseline can share the signature.
func (s Signature) Validate() error {
	for _, r := range s.Results {
		if r.Opaque {
			return diag.Validationf(diag.ErrOpaqueReturn,
				"function %s returns opaque type %s; all variants must return one shared concrete type",
				s.Name, r.Type)
		}
	}
	if !token.IsIdentifier(s.Name) {
		return diag.Validationf(diag.ErrInvalidSignature, "invalid function name %q", s.Name)
	}
	if len(s.TypeParams) > 0 {
		return diag.Validationf(diag.ErrInvalidSignature,
			"function %s has type parameters; generic functions cannot be multiversioned", s.Name)
	}
	for i, p := range s.Params {
		if p.Type == "" {
			return diag.Validationf(diag.ErrInvalidSignature, "function %s: parameter %d has no type", s.Name, i)
		}
		if strings.HasPrefix(p.Type, "...") && i != len(s.Params)-1 {
			return diag.Validationf(diag.ErrInvalidSignature,
				"function %s: only the final parameter may be variadic", s.Name)
		}
	}
	for i, r := range s.Results {
		if r.Type == "" {
			return diag.Validationf(diag.ErrInvalidSignature, "function %s: result %d has no type", s.Name, i)
		}
	}
	return nil
}

// Variadic reports whether the final parameter is variadic.
func (s Signature) Variadic() bool {
	return len(s.Params) > 0 && strings.HasPrefix(s.Params[len(s.Params)-1].Type, "...")
}

// FuncType returns the function type, e.g. "func(a []float32, b []float32) float32".
func (s Signature) FuncType() string {
	var b strings.Builder
	b.WriteString("func(")
	writeFields(&b, s.Params)
	b.WriteString(")")
	switch {
	case len(s.Results) == 1 && s.Results[0].Name == "":
		b.WriteString(" " + s.Results[0].Type)
	case len(s.Results) > 0:
		b.WriteString(" (")
		writeFields(&b, s.Results)
		b.WriteString(")")
	}
	return b.String()
}

// String returns the declaration header, e.g. "func Sum(a []float32) float32".
func (s Signature) String() string {
	return "func " + s.Name + strings.TrimPrefix(s.FuncType(), "func")
}

func writeFields(b *strings.Builder, fields []Field) {
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		if f.Name != "" {
			b.WriteString(f.Name + " ")
		}
		b.WriteString(f.Type)
	}
}
