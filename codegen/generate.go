// Package codegen turns multiversion directives in Go source into variant
// clones and dispatchers.
//
// For every function annotated with a //multiversion: directive and named
// Base<Name> (or base<Name>), Generate writes next to the source file:
//
//   - <file>_multiversion.go with one copy of the baseline per variant the
//     package does not already declare by hand, and, for direct and indirect
//     plans, a registered selector site plus the <Name> dispatcher;
//   - for static plans, <file>_multiversion_static.go calling the selected
//     variant under a build constraint matching the planning configuration,
//     and <file>_multiversion_dynamic.go for every other build. A plan that
//     resolved from the default dispatcher dispatches at run time there; an
//     explicit dispatcher = "static" fails to compile there instead.
//
// Generated files left over from a previous run are removed.
package codegen

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	multiversion "github.com/albertocavalcante/go-multiversion"
	"github.com/albertocavalcante/go-multiversion/diag"
)

// Options configures Generate.
type Options struct {
	// Plan configures planning, e.g. multiversion.WithConfig.
	Plan []multiversion.Option
	// Logger receives progress at debug level. Nil discards output.
	Logger *slog.Logger
	// DryRun computes the outputs without touching the file system.
	DryRun bool
	// Parallelism bounds the number of directories processed at once.
	// Zero means runtime.GOMAXPROCS(0).
	Parallelism int
}

// Result is the outcome for one directory.
type Result struct {
	Dir       string
	Package   string
	Functions []Planned
	// Outputs are the generated files, written unless DryRun is set.
	Outputs []Output
	// Removed are stale generated files, removed unless DryRun is set.
	Removed []string
}

// Generate processes each directory and returns the results in the same
// order. The first error cancels the remaining work.
func Generate(ctx context.Context, dirs []string, opts Options) ([]Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limit := opts.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(dirs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := generateDir(dir, opts, logger.With("dir", dir))
			if err != nil {
				return err
			}
			results[i] = *r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func generateDir(dir string, opts Options, logger *slog.Logger) (*Result, error) {
	pkg, err := Scan(dir)
	if err != nil {
		return nil, err
	}
	result := &Result{Dir: dir, Package: pkg.Name}

	for _, file := range pkg.Files {
		planned := make([]Planned, 0, len(file.Functions))
		for _, fn := range file.Functions {
			if err := checkFunction(pkg, fn); err != nil {
				return nil, err
			}
			planOpts := append(slices.Clip(opts.Plan), multiversion.WithLogger(logger.With("function", fn.Baseline)))
			plan, err := multiversion.Build(fn.Attr, fn.Signature, planOpts...)
			if err != nil {
				return nil, err
			}
			planned = append(planned, Planned{Function: fn, Plan: plan})
		}
		outs, err := emit(pkg, file, planned)
		if err != nil {
			return nil, err
		}
		result.Functions = append(result.Functions, planned...)
		result.Outputs = append(result.Outputs, outs...)
	}

	keep := make(map[string]bool, len(result.Outputs))
	for _, out := range result.Outputs {
		keep[out.Path] = true
	}
	stale, err := staleFiles(dir, keep)
	if err != nil {
		return nil, err
	}
	result.Removed = stale

	if opts.DryRun {
		return result, nil
	}
	for _, out := range result.Outputs {
		if current, err := os.ReadFile(out.Path); err == nil && bytes.Equal(current, out.Content) {
			logger.Debug("unchanged", "file", out.Path)
			continue
		}
		if err := os.WriteFile(out.Path, out.Content, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", out.Path, err)
		}
		logger.Debug("wrote", "file", out.Path)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove %s: %w", path, err)
		}
		logger.Debug("removed stale file", "file", path)
	}
	return result, nil
}

// checkFunction rejects dispatchers whose name the package already uses.
func checkFunction(pkg *Package, fn *Function) error {
	if pkg.Declared(fn.Name) {
		return &diag.ValidationError{
			Pos:     fn.Pos,
			Message: fmt.Sprintf("dispatcher %s is already declared in package %s", fn.Name, pkg.Name),
			Wrapped: diag.ErrInvalidSignature,
		}
	}
	return nil
}

// staleFiles lists files in dir this package generated that are not in keep.
func staleFiles(dir string, keep map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var stale []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() || !IsGeneratedName(e.Name()) || keep[path] {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if strings.HasPrefix(string(data), Header+"\n") {
			stale = append(stale, path)
		}
	}
	return stale, nil
}
