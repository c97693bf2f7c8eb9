// Command multiversion generates variants and dispatchers for functions
// annotated with //multiversion: directives, and reports the capabilities of
// the executing processor.
//
// Usage:
//
//	multiversion [flags] [dir ...]
//	multiversion capability
//
// Without flags, planning uses the Go environment (GOARCH, GOAMD64, GOARM64,
// GOFLAGS, ...). Typical invocation from a go:generate line:
//
//	//go:generate go run github.com/albertocavalcante/go-multiversion/cmd/multiversion
//
// Plan for a specific build and print the plans instead of writing files:
//
//	multiversion -goarch amd64 -level v3 -n -explain text ./internal/kernels
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	multiversion "github.com/albertocavalcante/go-multiversion"
	"github.com/albertocavalcante/go-multiversion/capability"
	"github.com/albertocavalcante/go-multiversion/codegen"
	"github.com/albertocavalcante/go-multiversion/dispatch"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Getenv, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "capability" {
		printCapabilities(stdout)
		return 0
	}

	fs := flag.NewFlagSet("multiversion", flag.ContinueOnError)
	fs.SetOutput(stderr)
	goarch := fs.String("goarch", "", "plan for this GOARCH instead of $GOARCH")
	level := fs.String("level", "", "architecture level of the GOARCH (e.g., v3 for amd64, v8.2 for arm64)")
	enable := fs.String("enable", "", "comma-separated capabilities guaranteed present")
	disable := fs.String("disable", "", "comma-separated capabilities guaranteed absent")
	tags := fs.String("tags", "", "comma-separated build tags guarding -enable")
	spectre := fs.Bool("spectre", false, "plan as if indirect-branch hardening were active (default from GOFLAGS)")
	dryRun := fs.Bool("n", false, "print the files that would be written without writing them")
	explain := fs.String("explain", "", "print each plan: text or json")
	verbose := fs.Bool("v", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: multiversion [flags] [dir ...]")
		fmt.Fprintln(stderr, "       multiversion capability")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *explain != "" && *explain != "text" && *explain != "json" {
		fmt.Fprintf(stderr, "Error: -explain must be text or json, got %q\n", *explain)
		return 2
	}

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := buildConfig(getenv, *goarch, *level)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	opts := []multiversion.Option{multiversion.WithConfig(cfg)}
	if values := splitList(*enable); len(values) > 0 {
		opts = append(opts, multiversion.WithEnabledFeatures(values...))
	}
	if values := splitList(*disable); len(values) > 0 {
		opts = append(opts, multiversion.WithDisabledFeatures(values...))
	}
	if values := splitList(*tags); len(values) > 0 {
		opts = append(opts, multiversion.WithBuildTags(values...))
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "spectre" {
			opts = append(opts, multiversion.WithHardening(*spectre))
		}
	})

	dirs := fs.Args()
	if len(dirs) == 0 {
		dirs = []string{"."}
	}

	results, err := codegen.Generate(ctx, dirs, codegen.Options{
		Plan:   opts,
		Logger: logger,
		DryRun: *dryRun,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	for _, r := range results {
		for _, p := range r.Functions {
			if err := explainPlan(stdout, *explain, p); err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
		}
		if *dryRun {
			for _, out := range r.Outputs {
				fmt.Fprintf(stdout, "would write %s\n", out.Path)
			}
			for _, path := range r.Removed {
				fmt.Fprintf(stdout, "would remove %s\n", path)
			}
		}
	}
	return 0
}

// buildConfig derives the planning configuration from the environment,
// with -goarch and -level taking precedence.
func buildConfig(getenv func(string) string, goarch, level string) (dispatch.Config, error) {
	if goarch == "" {
		goarch = getenv("GOARCH")
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	levelVar := ""
	if level != "" {
		lv, ok := dispatch.LevelVarFor(goarch)
		if !ok {
			return dispatch.Config{}, fmt.Errorf("-level: GOARCH %q has no architecture level", goarch)
		}
		levelVar = lv.Name
	}
	return dispatch.ConfigFromEnv(func(key string) string {
		switch {
		case key == "GOARCH":
			return goarch
		case levelVar != "" && key == levelVar:
			return level
		}
		return getenv(key)
	})
}

func explainPlan(w io.Writer, format string, p codegen.Planned) error {
	switch format {
	case "text":
		fmt.Fprintf(w, "%s: %s\n", p.Function.Pos, p.Function.Baseline)
		fmt.Fprintln(w, p.Plan.ToText())
	case "json":
		data, err := p.Plan.ToJSON()
		if err != nil {
			return fmt.Errorf("encode plan of %s: %w", p.Function.Baseline, err)
		}
		fmt.Fprintln(w, string(data))
	}
	return nil
}

func printCapabilities(w io.Writer) {
	host := capability.Host()
	cfg := capability.BuildConfig()

	if cpu := capability.CPU(); cpu != "" {
		fmt.Fprintf(w, "CPU:              %s\n", cpu)
	}
	arch := "unknown"
	if host.Architecture().IsValid() {
		arch = host.Architecture().String()
	}
	fmt.Fprintf(w, "Architecture:     %s\n", arch)
	fmt.Fprintf(w, "Capabilities:     %s\n", strings.Join(host.Features(), " "))
	if disabled := host.Disabled(); len(disabled) > 0 {
		fmt.Fprintf(w, "Disabled (%s): %s\n", capability.DisableEnv, strings.Join(disabled, " "))
	}
	if cfg.Level != "" {
		fmt.Fprintf(w, "Built for level:  %s\n", cfg.Level)
	}
	if c := cfg.BuildConstraint(); c != "" {
		fmt.Fprintf(w, "Build constraint: %s\n", c)
	}
	fmt.Fprintf(w, "Hardening:        %t\n", cfg.IndirectBranchHardening)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
