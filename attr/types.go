package attr

import (
	"strconv"

	"github.com/albertocavalcante/go-multiversion/diag"
	"github.com/albertocavalcante/go-multiversion/dispatch"
	"github.com/albertocavalcante/go-multiversion/target"
)

// Attribute is a parsed multiversion directive.
type Attribute struct {
	Pos diag.Position

	// Targets is the target list, in declaration order.
	Targets target.List
	// TargetsPos locates the targets option.
	TargetsPos diag.Position
	// Preset is the preset name when targets names one instead of a list.
	Preset string

	// Attrs are decorations copied verbatim above every generated variant
	// (e.g., "//go:noinline").
	Attrs []string

	// Dispatcher is the requested dispatch method. Default when unspecified.
	Dispatcher    dispatch.Method
	DispatcherPos diag.Position
}

// String renders the attribute as directive text.
func (a *Attribute) String() string {
	var b []byte
	b = append(b, "targets = "...)
	if a.Preset != "" {
		b = appendQuoted(b, a.Preset)
	} else {
		b = appendList(b, a.Targets.Strings())
	}
	if len(a.Attrs) > 0 {
		b = append(b, ", attrs = "...)
		b = appendList(b, a.Attrs)
	}
	if a.Dispatcher != dispatch.Default {
		b = append(b, ", dispatcher = "...)
		b = appendQuoted(b, a.Dispatcher.String())
	}
	return string(b)
}

func appendQuoted(b []byte, s string) []byte {
	return strconv.AppendQuote(b, s)
}

func appendList(b []byte, items []string) []byte {
	b = append(b, '[')
	for i, item := range items {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = appendQuoted(b, item)
	}
	return append(b, ']')
}
