package dispatch

import (
	"fmt"

	"github.com/albertocavalcante/go-multiversion/diag"
)

// Method is the strategy governing when and how a dispatch site selects its variant.
type Method uint8

const (
	// Default resolves to Static when every target is decidable at build time,
	// otherwise to Direct under indirect-branch hardening, otherwise to Indirect.
	Default Method = iota
	// Static resolves the variant at build time. No selection code runs.
	Static
	// Direct probes and walks the priority list on every call. Nothing is cached.
	Direct
	// Indirect probes and walks once, then calls through a cached selection.
	Indirect
)

var methodNames = [...]string{
	Default:  "default",
	Static:   "static",
	Direct:   "direct",
	Indirect: "indirect",
}

// String returns the method as spelled in the dispatcher option.
func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return fmt.Sprintf("Method(%d)", m)
}

// ParseMethod parses a dispatcher name. Names are case-sensitive.
func ParseMethod(s string) (Method, error) {
	for i, name := range methodNames {
		if name == s {
			return Method(i), nil
		}
	}
	return Default, diag.Validationf(diag.ErrUnknownDispatcher,
		"expected `default`, `static`, `direct`, or `indirect`, got %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	if int(m) >= len(methodNames) {
		return nil, fmt.Errorf("invalid dispatch method %d", m)
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
