package capability

import (
	"errors"
	"runtime"
	"slices"
	"testing"

	"golang.org/x/sys/cpu"

	"github.com/albertocavalcante/go-multiversion/diag"
	"github.com/albertocavalcante/go-multiversion/internal/compat"
	"github.com/albertocavalcante/go-multiversion/target"
)

func TestSet(t *testing.T) {
	s := NewSet(target.X86_64, "avx2", "fma", "sse4.2")

	if !s.Supports(target.X86_64, "avx2") {
		t.Error("Supports(x86_64, avx2) = false, want true")
	}
	if s.Supports(target.X86_64, "avx512f") {
		t.Error("Supports(x86_64, avx512f) = true, want false")
	}
	if s.Supports(target.X86, "avx2") {
		t.Error("Supports(x86, avx2) = true, another architecture is never supported")
	}
	if got, want := s.Features(), []string{"avx2", "fma", "sse4.2"}; !slices.Equal(got, want) {
		t.Errorf("Features() = %v, want %v", got, want)
	}
	if got := s.Architecture(); got != target.X86_64 {
		t.Errorf("Architecture() = %v, want %v", got, target.X86_64)
	}
}

func TestSatisfies(t *testing.T) {
	s := NewSet(target.X86_64, "avx2", "sse4.2")

	tests := []struct {
		target string
		want   bool
	}{
		{"x86_64+avx2", true},
		{"x86_64+sse4.2+avx2", true},
		{"x86_64+avx2+fma", false},
		{"aarch64+neon", false},
	}
	for _, tt := range tests {
		if got := Satisfies(s, target.MustParse(tt.target)); got != tt.want {
			t.Errorf("Satisfies(%s) = %v, want %v", tt.target, got, tt.want)
		}
	}
}

func TestParseSet(t *testing.T) {
	s, err := ParseSet("aarch64+neon+lse")
	if err != nil {
		t.Fatalf("ParseSet() unexpected error: %v", err)
	}
	if s.Architecture() != target.AArch64 {
		t.Errorf("Architecture() = %v, want %v", s.Architecture(), target.AArch64)
	}
	if got, want := s.Features(), []string{"lse", "neon"}; !slices.Equal(got, want) {
		t.Errorf("Features() = %v, want %v", got, want)
	}

	bare, err := ParseSet("x86_64")
	if err != nil {
		t.Fatalf("ParseSet(x86_64) unexpected error: %v", err)
	}
	if got := bare.Features(); len(got) != 0 {
		t.Errorf("Features() = %v, want none", got)
	}

	if _, err := ParseSet("sparc+vis"); !errors.Is(err, diag.ErrUnknownArchitecture) {
		t.Errorf("ParseSet(sparc+vis) error = %v, want %v", err, diag.ErrUnknownArchitecture)
	}
	if _, err := ParseSet("x86_64+avx2+avx2"); !errors.Is(err, diag.ErrDuplicateFeature) {
		t.Errorf("ParseSet(x86_64+avx2+avx2) error = %v, want %v", err, diag.ErrDuplicateFeature)
	}
}

func TestMasked(t *testing.T) {
	s := NewSet(target.X86_64, "avx2", "fma", "sse4.2")

	m := Masked(s, "fma")
	if !m.Supports(target.X86_64, "avx2") {
		t.Error("masked probe lost avx2")
	}
	if m.Supports(target.X86_64, "fma") {
		t.Error("masked probe still reports fma")
	}

	if Masked(s, DisableAll).Supports(target.X86_64, "sse4.2") {
		t.Error("Masked(all) still reports sse4.2")
	}
	if got := Masked(s); got != Probe(s) {
		t.Errorf("Masked() with no mask = %v, want the probe unchanged", got)
	}
}

func TestFunc(t *testing.T) {
	calls := 0
	p := Func(func(arch target.Architecture, feature string) bool {
		calls++
		return arch == target.AArch64 && feature == "neon"
	})
	if !p.Supports(target.AArch64, "neon") {
		t.Error("Supports(aarch64, neon) = false, want true")
	}
	if p.Supports(target.AArch64, "sve") {
		t.Error("Supports(aarch64, sve) = true, want false")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestParseDisableList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{" AVX2, ,fma ", []string{"avx2", "fma"}},
		{"all", []string{"all"}},
	}
	for _, tt := range tests {
		if got := ParseDisableList(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("ParseDisableList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDetectLevelImplied(t *testing.T) {
	h := detect("amd64", map[string]string{"GOAMD64": "v3"}, nil)

	if h.Architecture() != target.X86_64 {
		t.Fatalf("Architecture() = %v, want %v", h.Architecture(), target.X86_64)
	}
	for _, f := range []string{"sse2", "sse4.2", "avx2", "fma"} {
		if !h.Supports(target.X86_64, f) {
			t.Errorf("GOAMD64=v3 should guarantee %s", f)
		}
	}
	if h.Supports(target.AArch64, "neon") {
		t.Error("Supports(aarch64, neon) = true on an amd64 probe")
	}
}

func TestDetectOptionalExtensionFollowsHardware(t *testing.T) {
	for _, level := range []string{"v9.0", "v9.2"} {
		h := detect("arm64", map[string]string{"GOARM64": level}, nil)

		if !h.Supports(target.AArch64, "lse") {
			t.Errorf("GOARM64=%s should guarantee lse", level)
		}
		if got := h.Supports(target.AArch64, "sve"); got != cpu.ARM64.HasSVE {
			t.Errorf("GOARM64=%s: Supports(aarch64, sve) = %v, want hardware flag %v", level, got, cpu.ARM64.HasSVE)
		}
		if got := h.Supports(target.AArch64, "sve2"); got != cpu.ARM64.HasSVE2 {
			t.Errorf("GOARM64=%s: Supports(aarch64, sve2) = %v, want hardware flag %v", level, got, cpu.ARM64.HasSVE2)
		}
	}
}

func TestDetectMask(t *testing.T) {
	h := detect("amd64", map[string]string{"GOAMD64": "v3"}, []string{"avx2"})
	if h.Supports(target.X86_64, "avx2") {
		t.Error("masked avx2 is still reported")
	}
	if !h.Supports(target.X86_64, "fma") {
		t.Error("unmasked fma is not reported")
	}
	if got := h.Disabled(); !slices.Equal(got, []string{"avx2"}) {
		t.Errorf("Disabled() = %v, want [avx2]", got)
	}

	all := detect("amd64", map[string]string{"GOAMD64": "v4"}, []string{DisableAll})
	if got := all.Features(); len(got) != 0 {
		t.Errorf("Features() with all disabled = %v, want none", got)
	}
	if all.Architecture() != target.X86_64 {
		t.Errorf("Architecture() = %v, want %v", all.Architecture(), target.X86_64)
	}
}

func TestDetectUnknownGOARCH(t *testing.T) {
	h := detect("sparc64", nil, nil)
	if h.Architecture().IsValid() {
		t.Errorf("Architecture() = %v, want invalid", h.Architecture())
	}
	if got := h.Features(); len(got) != 0 {
		t.Errorf("Features() = %v, want none", got)
	}
}

func TestConfigFromSettings(t *testing.T) {
	tests := []struct {
		name       string
		goarch     string
		settings   map[string]string
		wantLevel  string
		wantHarden bool
	}{
		{"no settings", "amd64", nil, "v1", false},
		{"level", "amd64", map[string]string{"GOAMD64": "v3"}, "v3", false},
		{"single flag", "amd64", map[string]string{"-gcflags": "-spectre=ret"}, "v1", true},
		{"several flags", "amd64", map[string]string{"-gcflags": "-N -l -spectre=ret"}, "v1", true},
		{"pattern and several flags", "arm64", map[string]string{"-gcflags": "all=-l -spectre=all"}, "v8.0", true},
		{"other spectre mode", "arm64", map[string]string{"-gcflags": "all=-N -spectre=index"}, "v8.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := configFromSettings(tt.goarch, tt.settings)
			if cfg.Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", cfg.Level, tt.wantLevel)
			}
			if cfg.IndirectBranchHardening != tt.wantHarden {
				t.Errorf("IndirectBranchHardening = %v, want %v", cfg.IndirectBranchHardening, tt.wantHarden)
			}
		})
	}
}

func TestHost(t *testing.T) {
	h := Host()
	if h == nil {
		t.Fatal("Host() returned nil")
	}
	if Host() != h {
		t.Error("Host() should detect the host probe once")
	}

	arch, ok := target.ArchitectureForGOARCH(runtime.GOARCH)
	if !ok {
		t.Skipf("GOARCH %s has no target spelling", runtime.GOARCH)
	}
	if h.Architecture() != arch {
		t.Errorf("Architecture() = %v, want %v", h.Architecture(), arch)
	}

	for _, f := range h.Features() {
		if !compat.Known(arch, f) {
			t.Errorf("detected capability %q is not cataloged", f)
		}
	}
	for _, other := range target.Architectures() {
		if other == arch {
			continue
		}
		for _, f := range h.Features() {
			if h.Supports(other, f) {
				t.Errorf("%s reported on %s", f, other)
			}
		}
	}
}
