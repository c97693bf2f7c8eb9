package multiversion

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/albertocavalcante/go-multiversion/attr"
	"github.com/albertocavalcante/go-multiversion/diag"
	"github.com/albertocavalcante/go-multiversion/dispatch"
	"github.com/albertocavalcante/go-multiversion/target"
)

var sumSig = dispatch.Signature{
	Name:    "Sum",
	Params:  []dispatch.Field{{Name: "x", Type: "[]float32"}},
	Results: []dispatch.Field{{Type: "float32"}},
}

func amd64Config(t *testing.T, level string) dispatch.Config {
	t.Helper()
	enabled, err := dispatch.EnabledForLevel(target.X86_64, level)
	if err != nil {
		t.Fatalf("EnabledForLevel(%s) error = %v", level, err)
	}
	return dispatch.Config{Arch: target.X86_64, Level: level, Enabled: enabled}
}

func exhaustive(cfg dispatch.Config) dispatch.Config {
	cfg.Exhaustive = true
	return cfg
}

func TestBuildDirective(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		opts     []Option
		method   dispatch.Method
		variants []string
	}{
		{
			name:     "default resolves statically on x86-64-v3",
			text:     `//multiversion: targets = "simd"`,
			opts:     []Option{WithConfig(amd64Config(t, "v3"))},
			method:   dispatch.Static,
			variants: []string{"Sum_x86_64_avx2_fma"},
		},
		{
			name:     "exhaustive x86-64-v2 resolves statically to sse4.2",
			text:     `//multiversion: targets = "simd"`,
			opts:     []Option{WithConfig(exhaustive(amd64Config(t, "v2")))},
			method:   dispatch.Static,
			variants: []string{"Sum_x86_64_sse4_2"},
		},
		{
			name:     "default falls back to indirect",
			text:     `targets = "simd"`,
			opts:     []Option{WithConfig(amd64Config(t, "v1"))},
			method:   dispatch.Indirect,
			variants: []string{"Sum_x86_64_avx2_fma", "Sum_x86_64_sse4_2", "Sum_x86_avx2_fma", "Sum_x86_sse4_2", "Sum_x86_sse2", "Sum_aarch64_neon"},
		},
		{
			name:     "hardening selects direct",
			text:     `targets = ["x86_64+avx2+fma", "aarch64+neon"]`,
			opts:     []Option{WithConfig(amd64Config(t, "v1")), WithHardening(true)},
			method:   dispatch.Direct,
			variants: []string{"Sum_x86_64_avx2_fma", "Sum_aarch64_neon"},
		},
		{
			name:     "explicit indirect ignores hardening",
			text:     `targets = ["x86_64+avx2+fma"], dispatcher = "indirect"`,
			opts:     []Option{WithConfig(amd64Config(t, "v3")), WithHardening(true)},
			method:   dispatch.Indirect,
			variants: []string{"Sum_x86_64_avx2_fma"},
		},
		{
			name:     "enabled features decide a static plan",
			text:     `targets = ["x86_64+avx512f+avx512bw", "x86_64+avx2"], dispatcher = "static"`,
			opts:     []Option{WithConfig(amd64Config(t, "v3")), WithEnabledFeatures("avx512f", "avx512bw"), WithBuildTags("avx512")},
			method:   dispatch.Static,
			variants: []string{"Sum_x86_64_avx512f_avx512bw"},
		},
		{
			name:     "disabled features decide a static plan",
			text:     `targets = ["x86_64+avx512f", "x86_64+avx2"], dispatcher = "static"`,
			opts:     []Option{WithConfig(amd64Config(t, "v3")), WithDisabledFeatures("avx512f")},
			method:   dispatch.Static,
			variants: []string{"Sum_x86_64_avx2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := BuildDirective("sum.go", 12, tt.text, sumSig, tt.opts...)
			if err != nil {
				t.Fatalf("BuildDirective() error = %v", err)
			}
			if plan.Method != tt.method {
				t.Errorf("Method = %v, want %v (%s)", plan.Method, tt.method, plan.Reason)
			}
			if got := plan.Names(); !slices.Equal(got, tt.variants) {
				t.Errorf("Names() = %v, want %v", got, tt.variants)
			}
		})
	}
}

func TestBuildDirectiveFromEnvironment(t *testing.T) {
	t.Setenv("GOARCH", "arm64")
	t.Setenv("GOARM64", "v8.0")
	t.Setenv("GOFLAGS", "")

	plan, err := BuildDirective("sum.go", 1, `targets = ["aarch64+neon", "x86_64+avx2"]`, sumSig)
	if err != nil {
		t.Fatalf("BuildDirective() error = %v", err)
	}
	if plan.Method != dispatch.Static {
		t.Fatalf("Method = %v, want static (%s)", plan.Method, plan.Reason)
	}
	if v, ok := plan.Selected(); !ok || v.Name != "Sum_aarch64_neon" {
		t.Errorf("Selected() = %v, %v, want Sum_aarch64_neon", v.Name, ok)
	}
	if got := plan.Config.BuildConstraint(); got != "arm64.v8.0" {
		t.Errorf("BuildConstraint() = %q, want %q", got, "arm64.v8.0")
	}
}

func TestBuildDirectiveHardeningFromEnvironment(t *testing.T) {
	t.Setenv("GOARCH", "amd64")
	t.Setenv("GOAMD64", "v1")
	t.Setenv("GOFLAGS", "-gcflags=all=-spectre=ret")

	plan, err := BuildDirective("sum.go", 1, `targets = ["x86_64+avx2"]`, sumSig)
	if err != nil {
		t.Fatalf("BuildDirective() error = %v", err)
	}
	if plan.Method != dispatch.Direct {
		t.Errorf("Method = %v, want direct", plan.Method)
	}

	plan, err = BuildDirective("sum.go", 1, `targets = ["x86_64+avx2"]`, sumSig, WithHardening(false))
	if err != nil {
		t.Fatalf("BuildDirective() error = %v", err)
	}
	if plan.Method != dispatch.Indirect {
		t.Errorf("Method with hardening overridden = %v, want indirect", plan.Method)
	}
}

func TestBuildDirectiveErrors(t *testing.T) {
	opaque := dispatch.Signature{
		Name:    "Iter",
		Results: []dispatch.Field{{Type: "interface{ Next() bool }", Opaque: true}},
	}

	tests := []struct {
		name     string
		text     string
		sig      dispatch.Signature
		opts     []Option
		sentinel error
		prefix   string
	}{
		{
			name:     "opaque result is rejected before targets",
			text:     `targets = []`,
			sig:      opaque,
			sentinel: ErrOpaqueReturn,
			prefix:   "sum.go:12: ",
		},
		{
			name:     "opaque result is rejected before parsing",
			text:     `not a directive (`,
			sig:      opaque,
			sentinel: ErrOpaqueReturn,
		},
		{
			name:     "static on undecidable targets",
			text:     `//multiversion: targets = ["x86_64+avx2"], dispatcher = "static"`,
			sig:      sumSig,
			opts:     []Option{WithConfig(amd64Config(t, "v1"))},
			sentinel: ErrAmbiguousTarget,
			prefix:   "sum.go:12:57: ambiguous target cannot be statically resolved: x86_64+avx2",
		},
		{
			name:     "static without a build configuration",
			text:     `targets = ["aarch64+neon"], dispatcher = "static"`,
			sig:      sumSig,
			opts:     []Option{WithConfig(dispatch.Config{})},
			sentinel: ErrAmbiguousTarget,
		},
		{
			name:     "unknown preset",
			text:     `//multiversion: targets = "avx"`,
			sig:      sumSig,
			sentinel: ErrUnknownPreset,
			prefix:   "sum.go:12:27: ",
		},
		{
			name:     "missing targets",
			text:     `//multiversion: dispatcher = "direct"`,
			sig:      sumSig,
			sentinel: ErrMissingTargets,
		},
		{
			name:     "generic function",
			text:     `targets = "simd"`,
			sig:      dispatch.Signature{Name: "Sum", TypeParams: []dispatch.Field{{Name: "T", Type: "any"}}},
			sentinel: ErrInvalidSignature,
		},
		{
			name:     "colliding variant names",
			text:     `targets = ["x86_64+sse4.2", "x86_64+sse4-2"]`,
			sig:      sumSig,
			sentinel: ErrDuplicateTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			if opts == nil {
				opts = []Option{WithConfig(amd64Config(t, "v1"))}
			}
			_, err := BuildDirective("sum.go", 12, tt.text, tt.sig, opts...)
			if err == nil {
				t.Fatal("BuildDirective() expected error")
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("BuildDirective() error = %v, want %v", err, tt.sentinel)
			}
			if !strings.HasPrefix(err.Error(), tt.prefix) {
				t.Errorf("BuildDirective() error = %q, want prefix %q", err.Error(), tt.prefix)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	a, err := attr.Parse(diag.Position{Filename: "dot.go", Line: 3, Column: 16}, `targets = ["x86_64+avx2+fma", "x86_64+avx2"]`)
	if err != nil {
		t.Fatalf("attr.Parse() error = %v", err)
	}
	sig := dispatch.Signature{Name: "Dot", Params: []dispatch.Field{{Name: "a", Type: "[]float32"}, {Name: "b", Type: "[]float32"}}}

	plan, err := Build(a, sig, WithConfig(amd64Config(t, "v1")))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got, want := plan.Names(), []string{"Dot_x86_64_avx2_fma", "Dot_x86_64_avx2"}; !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if !plan.BaselineReachable() {
		t.Error("BaselineReachable() = false, want true")
	}

	if _, err := Build(nil, sig); err == nil {
		t.Error("Build(nil) expected error")
	}
}

func TestBuildLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	plan, err := BuildDirective("sum.go", 7, `targets = ["x86_64+avx9000", "x86_64+avx2"]`, sumSig,
		WithConfig(amd64Config(t, "v3")), WithLogger(logger))
	if err != nil {
		t.Fatalf("BuildDirective() error = %v", err)
	}
	if v, ok := plan.Selected(); !ok || v.Name != "Sum_x86_64_avx2" {
		t.Errorf("Selected() = %v, %v, want Sum_x86_64_avx2", v.Name, ok)
	}

	out := buf.String()
	for _, want := range []string{
		"level=WARN",
		`feature \"avx9000\" is not known for x86_64`,
		"resolved default dispatcher",
		"method=static",
		"function=Sum",
		"selected=Sum_x86_64_avx2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestOptionErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"empty enabled feature", []Option{WithConfig(amd64Config(t, "v1")), WithEnabledFeatures("")}},
		{"empty disabled feature", []Option{WithConfig(amd64Config(t, "v1")), WithDisabledFeatures("")}},
		{"empty build tag", []Option{WithConfig(amd64Config(t, "v1")), WithBuildTags("")}},
		{"overrides without architecture", []Option{WithConfig(dispatch.Config{}), WithEnabledFeatures("avx2")}},
		{"enabled and disabled", []Option{WithConfig(amd64Config(t, "v3")), WithDisabledFeatures("avx2")}},
		{"unknown level", []Option{WithConfig(dispatch.Config{Arch: target.X86_64, Level: "v9"})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildDirective("sum.go", 1, `targets = "simd"`, sumSig, tt.opts...); err == nil {
				t.Error("BuildDirective() expected error")
			}
		})
	}
}

func TestReexportedSentinels(t *testing.T) {
	_, err := BuildDirective("sum.go", 1, `targets = ["sparc+vis"]`, sumSig, WithConfig(amd64Config(t, "v1")))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %T, want *ParseError", err)
	}
	if !errors.Is(err, ErrUnknownArchitecture) {
		t.Errorf("error = %v, want ErrUnknownArchitecture", err)
	}
	if pe.Pos.Line != 1 {
		t.Errorf("Pos.Line = %d, want 1", pe.Pos.Line)
	}
}
