package e2e

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	multiversion "github.com/albertocavalcante/go-multiversion"
	"github.com/albertocavalcante/go-multiversion/codegen"
	"github.com/albertocavalcante/go-multiversion/dispatch"
	"github.com/albertocavalcante/go-multiversion/target"
)

const kernelSource = `package kernels

// BaseSum adds up x.
//
//multiversion: targets = "simd", attrs = ["//go:noinline"]
func BaseSum(x []float32) float32 {
	var s float32
	for _, v := range x {
		s += v
	}
	return s
}

// baseScale multiplies x by k in place.
//
//multiversion: targets = ["x86_64+avx2", "aarch64+neon"], dispatcher = "direct"
func baseScale(x []float32, k float32) {
	for i := range x {
		x[i] *= k
	}
}

// Scaled returns a scaled copy of x.
func Scaled(x []float32, k float32) []float32 {
	out := append([]float32(nil), x...)
	scale(out, k)
	return out
}
`

const mainSource = `package main

import (
	"fmt"

	"example.com/e2e/kernels"
)

func main() {
	fmt.Println(kernels.Sum(kernels.Scaled([]float32{1, 2, 3}, 2)))
}
`

// createTestWorkspace creates a module depending on this repository through
// a replace directive.
func createTestWorkspace(t *testing.T) string {
	t.Helper()
	root, err := filepath.Abs("..")
	if err != nil {
		t.Fatalf("Failed to locate repository root: %v", err)
	}

	dir := t.TempDir()
	gomod := fmt.Sprintf(`module example.com/e2e

go 1.25

require github.com/albertocavalcante/go-multiversion v0.0.0

replace github.com/albertocavalcante/go-multiversion => %s
`, filepath.ToSlash(root))

	files := map[string]string{
		"go.mod":          gomod,
		"main.go":         mainSource,
		"kernels/sum.go":  kernelSource,
		"kernels/doc.go":  "// Package kernels holds multiversioned kernels.\npackage kernels\n",
		"kernels/none.go": "//go:build ignore\n\npackage main\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("Failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return dir
}

// goCommand runs the go tool in dir with extra environment variables.
func goCommand(t *testing.T, dir string, env []string, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// prepareWorkspace generates the kernels and resolves module requirements.
// Tests are skipped when the go tool or the dependencies are unavailable.
func prepareWorkspace(t *testing.T, cfg dispatch.Config) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("Skipping E2E test: go tool not found")
	}

	dir := createTestWorkspace(t)
	_, err := codegen.Generate(context.Background(), []string{filepath.Join(dir, "kernels")}, codegen.Options{
		Plan: []multiversion.Option{multiversion.WithConfig(cfg)},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if out, err := goCommand(t, dir, nil, "mod", "tidy"); err != nil {
		t.Skipf("Skipping E2E test: dependencies unavailable: %v\n%s", err, out)
	}
	return dir
}

func TestE2E_RuntimeDispatch(t *testing.T) {
	dir := prepareWorkspace(t, dispatch.Config{Arch: target.X86_64})

	for _, disable := range []string{"", "all", "avx2,fma"} {
		out, err := goCommand(t, dir, []string{"MULTIVERSION_DISABLE=" + disable}, "run", ".")
		if err != nil {
			t.Fatalf("go run with MULTIVERSION_DISABLE=%q failed: %v\n%s", disable, err, out)
		}
		if got := strings.TrimSpace(out); got != "12" {
			t.Errorf("go run with MULTIVERSION_DISABLE=%q = %q, want %q", disable, got, "12")
		}
	}
}

func TestE2E_StaticAndDynamicBuilds(t *testing.T) {
	enabled, err := dispatch.EnabledForLevel(target.X86_64, "v3")
	if err != nil {
		t.Fatalf("EnabledForLevel() error = %v", err)
	}
	dir := prepareWorkspace(t, dispatch.Config{Arch: target.X86_64, Level: "v3", Enabled: enabled})

	for _, name := range []string{"sum_multiversion.go", "sum_multiversion_static.go", "sum_multiversion_dynamic.go"} {
		if _, err := os.Stat(filepath.Join(dir, "kernels", name)); err != nil {
			t.Errorf("expected generated file %s: %v", name, err)
		}
	}

	// Every build selects exactly one of the static and dynamic files.
	builds := [][]string{
		{"GOOS=linux", "GOARCH=amd64", "GOAMD64=v1"},
		{"GOOS=linux", "GOARCH=amd64", "GOAMD64=v3"},
		{"GOOS=linux", "GOARCH=arm64"},
		{"GOOS=linux", "GOARCH=amd64", "GOFLAGS=-gcflags=all=-spectre=ret"},
	}
	for _, env := range builds {
		if out, err := goCommand(t, dir, env, "build", "-o", os.DevNull, "."); err != nil {
			t.Errorf("go build with %v failed: %v\n%s", env, err, out)
		}
		if out, err := goCommand(t, dir, env, "vet", "./..."); err != nil {
			t.Errorf("go vet with %v failed: %v\n%s", env, err, out)
		}
	}
}
