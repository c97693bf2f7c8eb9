package dispatch

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-multiversion/internal/compat"
	"github.com/albertocavalcante/go-multiversion/target"
)

// Satisfaction is what the build configuration guarantees about a target.
type Satisfaction uint8

const (
	// Unknown means a runtime probe is needed.
	Unknown Satisfaction = iota
	// Always means every required capability is guaranteed present.
	Always
	// Never means at least one required capability is guaranteed absent.
	Never
)

func (s Satisfaction) String() string {
	switch s {
	case Always:
		return "always"
	case Never:
		return "never"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Satisfaction) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config describes what is statically known about the compilation target.
//
// The zero Config knows nothing: every target is undecidable and Default
// resolves to Indirect.
type Config struct {
	// Arch is the architecture being compiled for. The zero value means unknown.
	Arch target.Architecture `json:"arch"`
	// Level is the architecture level the capabilities in Enabled derive from
	// (e.g., "v3" for GOAMD64=v3). Used for build constraints.
	Level string `json:"level,omitempty"`
	// Enabled lists capabilities guaranteed present.
	Enabled []string `json:"enabled,omitempty"`
	// Disabled lists capabilities guaranteed absent.
	Disabled []string `json:"disabled,omitempty"`
	// Exhaustive makes every capability not in Enabled guaranteed absent.
	Exhaustive bool `json:"exhaustive,omitempty"`
	// Tags are extra build tags that must be set for Enabled to hold.
	// Capabilities enabled beyond Level are only guarded by these tags.
	Tags []string `json:"tags,omitempty"`
	// IndirectBranchHardening reports whether the indirect-branch hardening
	// mitigation is active for this compilation.
	IndirectBranchHardening bool `json:"indirect_branch_hardening,omitempty"`
}

// Validate checks the configuration for contradictions.
func (c Config) Validate() error {
	var errs []error
	if !c.Arch.IsValid() && (c.Level != "" || len(c.Enabled) > 0 || len(c.Disabled) > 0 || c.Exhaustive) {
		errs = append(errs, errors.New("capabilities configured without an architecture"))
	}
	if c.Level != "" && c.Arch.IsValid() && !compat.IsLevel(c.Arch, c.Level) {
		errs = append(errs, fmt.Errorf("unknown %s level %q", c.Arch, c.Level))
	}
	for _, f := range c.Enabled {
		if slices.Contains(c.Disabled, f) {
			errs = append(errs, fmt.Errorf("feature %q is both enabled and disabled", f))
		}
	}
	return errors.Join(errs...)
}

// Decide reports what the configuration guarantees about t.
//
// A target for another architecture never holds. A capability the catalog
// does not know for the architecture never holds either, since no probe can
// report it.
func (c Config) Decide(t target.Target) Satisfaction {
	if !c.Arch.IsValid() {
		return Unknown
	}
	if t.Architecture() != c.Arch {
		return Never
	}
	all := true
	for _, f := range t.Features() {
		if !compat.Known(c.Arch, f) || slices.Contains(c.Disabled, f) {
			return Never
		}
		if !slices.Contains(c.Enabled, f) {
			if c.Exhaustive {
				return Never
			}
			all = false
		}
	}
	if all {
		return Always
	}
	return Unknown
}

// DynamicMethod is the runtime strategy Default falls back to when static
// resolution is not possible.
func (c Config) DynamicMethod() Method {
	if c.IndirectBranchHardening {
		return Direct
	}
	return Indirect
}

// BuildConstraint returns a //go:build expression that holds whenever the
// compilation matches this configuration, e.g. "amd64.v3" or
// "(ppc64.power9 || ppc64le.power9) && fleet". Returns "" when the
// configuration has no architecture.
func (c Config) BuildConstraint() string {
	if !c.Arch.IsValid() {
		return ""
	}
	goarchs := c.Arch.GOARCH()
	terms := make([]string, len(goarchs))
	for i, goarch := range goarchs {
		terms[i] = goarch
		if c.Level != "" {
			terms[i] = goarch + "." + c.Level
		}
	}
	expr := strings.Join(terms, " || ")
	if len(c.Tags) == 0 {
		return expr
	}
	if len(terms) > 1 {
		expr = "(" + expr + ")"
	}
	return expr + " && " + strings.Join(c.Tags, " && ")
}

// HardeningFromGOFLAGS reports whether GOFLAGS passes -spectre=ret or
// -spectre=all to the compiler through -gcflags.
//
// Fields are split the way the go command splits GOFLAGS, so a quoted
// value such as -gcflags='all=-N -spectre=ret' is one field. A bare
// -spectre= field following -gcflags is read as part of its value.
func HardeningFromGOFLAGS(goflags string) bool {
	inGcflags := false
	for _, field := range splitQuoted(goflags) {
		if v, ok := strings.CutPrefix(field, "-gcflags="); ok {
			if HardeningFromGcflags(v) {
				return true
			}
			inGcflags = true
			continue
		}
		if inGcflags && strings.HasPrefix(field, "-spectre") {
			if HardeningFromGcflags(field) {
				return true
			}
			continue
		}
		inGcflags = false
	}
	return false
}

// HardeningFromGcflags reports whether one -gcflags value, as recorded in
// the build settings of a binary (e.g., "all=-N -l -spectre=ret"), enables
// -spectre=ret or -spectre=all.
func HardeningFromGcflags(value string) bool {
	value = strings.Trim(strings.TrimSpace(value), `"'`)
	// Drop a package pattern such as "all=".
	if !strings.HasPrefix(value, "-") {
		if pattern, rest, ok := strings.Cut(value, "="); ok && !strings.ContainsAny(pattern, " \t") {
			value = rest
		}
	}
	flags := strings.Fields(value)
	for i, flag := range flags {
		name, mode, hasValue := strings.Cut(strings.TrimPrefix(flag, "-"), "=")
		if name != "spectre" && name != "-spectre" {
			continue
		}
		if !hasValue {
			if i+1 >= len(flags) {
				continue
			}
			mode = flags[i+1]
		}
		for _, m := range strings.Split(mode, ",") {
			if m == "ret" || m == "all" {
				return true
			}
		}
	}
	return false
}

// splitQuoted splits s at unquoted white space. Single and double quotes
// group text and are removed.
func splitQuoted(s string) []string {
	var (
		fields []string
		b      strings.Builder
		quote  rune
		inside bool
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				b.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inside = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inside {
				fields = append(fields, b.String())
				b.Reset()
				inside = false
			}
		default:
			b.WriteRune(r)
			inside = true
		}
	}
	if inside {
		fields = append(fields, b.String())
	}
	return fields
}
