// Package capability answers whether the executing processor supports a
// capability named in a target string.
//
// [Host] probes the real processor once per process. [Set] is a fixed,
// simulated capability set for tests and what-if planning. Probes never fail
// and never block: a capability a probe cannot recognize is reported absent.
package capability

import (
	"slices"
	"strings"

	"github.com/albertocavalcante/go-multiversion/diag"
	"github.com/albertocavalcante/go-multiversion/target"
)

// Probe reports whether feature is supported on arch.
//
// Implementations must be safe for concurrent use and must answer false for
// every architecture other than the one they describe.
type Probe interface {
	Supports(arch target.Architecture, feature string) bool
}

// Func adapts an ordinary function to the Probe interface.
type Func func(arch target.Architecture, feature string) bool

// Supports calls f(arch, feature).
func (f Func) Supports(arch target.Architecture, feature string) bool {
	return f(arch, feature)
}

// Satisfies reports whether p supports every capability t requires.
func Satisfies(p Probe, t target.Target) bool {
	for _, f := range t.Features() {
		if !p.Supports(t.Architecture(), f) {
			return false
		}
	}
	return true
}

// Set is a fixed capability set of one architecture.
type Set struct {
	arch     target.Architecture
	features map[string]bool
}

// NewSet returns a Set holding features on arch.
func NewSet(arch target.Architecture, features ...string) *Set {
	s := &Set{arch: arch, features: make(map[string]bool, len(features))}
	for _, f := range features {
		s.features[f] = true
	}
	return s
}

// ParseSet parses a simulated set written as a target string without the
// requirement that it lists any capability, e.g. "x86_64+avx2+fma" or "aarch64".
func ParseSet(s string) (*Set, error) {
	archName, rest, _ := strings.Cut(s, "+")
	arch, ok := target.ParseArchitecture(archName)
	if !ok {
		return nil, diag.Parsef(diag.ErrUnknownArchitecture, "unknown architecture %q", archName)
	}
	if rest == "" {
		return NewSet(arch), nil
	}
	t, err := target.New(arch, strings.Split(rest, "+")...)
	if err != nil {
		return nil, err
	}
	return NewSet(arch, t.Features()...), nil
}

// Supports implements Probe.
func (s *Set) Supports(arch target.Architecture, feature string) bool {
	return arch == s.arch && s.features[feature]
}

// Architecture returns the architecture of the set.
func (s *Set) Architecture() target.Architecture {
	return s.arch
}

// Features returns the capabilities in the set, sorted.
func (s *Set) Features() []string {
	out := make([]string, 0, len(s.features))
	for f := range s.features {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// DisableAll is the mask entry that disables every capability.
const DisableAll = "all"

// Masked returns a probe reporting the capabilities of p except those in
// disabled. A disabled entry of DisableAll masks every capability.
func Masked(p Probe, disabled ...string) Probe {
	if len(disabled) == 0 {
		return p
	}
	if slices.Contains(disabled, DisableAll) {
		return Func(func(target.Architecture, string) bool { return false })
	}
	mask := make(map[string]bool, len(disabled))
	for _, f := range disabled {
		mask[f] = true
	}
	return Func(func(arch target.Architecture, feature string) bool {
		return !mask[feature] && p.Supports(arch, feature)
	})
}

// ParseDisableList splits a comma-separated disable list such as
// "avx2, fma" into its trimmed, non-empty entries.
func ParseDisableList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(strings.ToLower(f)); f != "" {
			out = append(out, f)
		}
	}
	return out
}
