package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/albertocavalcante/go-multiversion/target"
)

const source = `package kernels

//multiversion: targets = "simd"
func BaseSum(x []float32) float32 {
	var s float32
	for _, v := range x {
		s += v
	}
	return s
}
`

func writeModule(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/kernels\n"), 0o644); err != nil {
		t.Fatalf("Failed to write go.mod: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sum.go"), []byte(source), 0o644); err != nil {
		t.Fatalf("Failed to write sum.go: %v", err)
	}
	return dir
}

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRunGenerates(t *testing.T) {
	dir := writeModule(t)
	var stdout, stderr bytes.Buffer

	if code := run(context.Background(), []string{"-goarch", "amd64", "-level", "v1", dir}, env(nil), &stdout, &stderr); code != 0 {
		t.Fatalf("run() = %d, want 0\n%s", code, stderr.String())
	}
	if !fileExists(filepath.Join(dir, "sum_multiversion.go")) {
		t.Error("sum_multiversion.go was not written")
	}
	if fileExists(filepath.Join(dir, "sum_multiversion_static.go")) {
		t.Error("sum_multiversion_static.go written for an undecidable plan")
	}
}

func TestRunStaticFromEnvironment(t *testing.T) {
	dir := writeModule(t)
	var stdout, stderr bytes.Buffer

	if code := run(context.Background(), []string{dir}, env(map[string]string{"GOARCH": "amd64", "GOAMD64": "v3"}), &stdout, &stderr); code != 0 {
		t.Fatalf("run() = %d, want 0\n%s", code, stderr.String())
	}
	for _, name := range []string{"sum_multiversion_static.go", "sum_multiversion_dynamic.go"} {
		if !fileExists(filepath.Join(dir, name)) {
			t.Errorf("%s was not written", name)
		}
	}
}

func TestRunDryRunExplainJSON(t *testing.T) {
	dir := writeModule(t)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"-goarch", "amd64", "-level", "v1", "-spectre", "-n", "-explain", "json", dir}, env(nil), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run() = %d, want 0\n%s", code, stderr.String())
	}
	if fileExists(filepath.Join(dir, "sum_multiversion.go")) {
		t.Error("dry run wrote sum_multiversion.go")
	}

	out := stdout.String()
	var plan struct {
		Function string `json:"function"`
		Method   string `json:"method"`
	}
	if err := json.NewDecoder(strings.NewReader(out)).Decode(&plan); err != nil {
		t.Fatalf("Failed to decode plan: %v\n%s", err, out)
	}
	if plan.Function != "Sum" || plan.Method != "direct" {
		t.Errorf("plan = %+v, want function Sum with method direct", plan)
	}
	if want := "would write " + filepath.Join(dir, "sum_multiversion.go"); !strings.Contains(out, want) {
		t.Errorf("stdout does not contain %q:\n%s", want, out)
	}
}

func TestRunExplainText(t *testing.T) {
	dir := writeModule(t)
	var stdout, stderr bytes.Buffer

	if code := run(context.Background(), []string{"-goarch", "arm64", "-n", "-explain", "text", dir}, env(nil), &stdout, &stderr); code != 0 {
		t.Fatalf("run() = %d, want 0\n%s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{
		"Dispatch plan for func Sum(x []float32) float32",
		"Method: static (requested default)",
		"Build constraint: arm64.v8.0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout does not contain %q:\n%s", want, out)
		}
	}
}

func TestRunErrors(t *testing.T) {
	dir := writeModule(t)
	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"bad explain format", []string{"-explain", "yaml", dir}, 2, "-explain must be text or json"},
		{"unknown flag", []string{"-bogus", dir}, 2, "flag provided but not defined"},
		{"level without levels", []string{"-goarch", "s390x", "-level", "z15", dir}, 1, "has no architecture level"},
		{"unknown level", []string{"-goarch", "amd64", "-level", "v9", dir}, 1, "GOAMD64"},
		{"missing directory", []string{filepath.Join(dir, "missing")}, 1, "missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), tt.args, env(nil), &stdout, &stderr); code != tt.code {
				t.Errorf("run() = %d, want %d", code, tt.code)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tt.want)
			}
		})
	}
}

func TestRunCapability(t *testing.T) {
	var stdout, stderr bytes.Buffer

	if code := run(context.Background(), []string{"capability"}, env(nil), &stdout, &stderr); code != 0 {
		t.Errorf("run(capability) = %d, want 0", code)
	}
	for _, want := range []string{"Architecture:", "Hardening:"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("stdout does not contain %q:\n%s", want, stdout.String())
		}
	}
}

func TestBuildConfig(t *testing.T) {
	cfg, err := buildConfig(env(map[string]string{"GOARCH": "amd64", "GOAMD64": "v2"}), "", "")
	if err != nil {
		t.Fatalf("buildConfig() error = %v", err)
	}
	if cfg.Arch != target.X86_64 || cfg.Level != "v2" {
		t.Errorf("buildConfig() = %v %q, want x86_64 v2", cfg.Arch, cfg.Level)
	}

	cfg, err = buildConfig(env(map[string]string{"GOARCH": "amd64", "GOAMD64": "v2"}), "", "v4")
	if err != nil {
		t.Fatalf("buildConfig() error = %v", err)
	}
	if cfg.Level != "v4" {
		t.Errorf("Level = %q, want v4", cfg.Level)
	}
	if !slices.Contains(cfg.Enabled, "avx512f") {
		t.Errorf("Enabled = %v, missing avx512f", cfg.Enabled)
	}

	for _, goflags := range []string{"-gcflags=-spectre=all", "'-gcflags=all=-N -l -spectre=ret'"} {
		cfg, err = buildConfig(env(map[string]string{"GOFLAGS": goflags}), "arm64", "")
		if err != nil {
			t.Fatalf("buildConfig() error = %v", err)
		}
		if cfg.Arch != target.AArch64 {
			t.Errorf("Arch = %v, want %v", cfg.Arch, target.AArch64)
		}
		if !cfg.IndirectBranchHardening {
			t.Errorf("GOFLAGS=%s: IndirectBranchHardening = false, want true", goflags)
		}
	}
}

func TestSplitList(t *testing.T) {
	if got := splitList(""); got != nil {
		t.Errorf("splitList(\"\") = %v, want nil", got)
	}
	if got, want := splitList("avx2, fma,"), []string{"avx2", "fma"}; !slices.Equal(got, want) {
		t.Errorf("splitList() = %v, want %v", got, want)
	}
}
