// Package multiversion plans function multiversioning: compiling one function
// into several variants, each specialized for a set of processor
// capabilities, plus a selector that picks the best variant for the executing
// processor.
//
// # Overview
//
// The package ties together the building blocks in its subpackages:
//
//   - target: validated capability requirements ("x86_64+avx2+fma") and target lists
//   - attr: the //multiversion: directive that annotates a function
//   - dispatch: the planner turning a target list, a dispatch method and a
//     function signature into a [dispatch.Plan]
//   - capability: processor capability probes (host detection, simulated sets)
//   - selector: the runtime selector executing plans
//   - codegen: the source generator emitting variants and dispatchers
//
// # Quick Start
//
// Plan a directive against the build configuration of the environment
// (GOARCH, GOAMD64, GOARM64, GOFLAGS, ...):
//
//	plan, err := multiversion.BuildDirective("sum.go", 12,
//	    `//multiversion: targets = "simd"`,
//	    dispatch.Signature{Name: "Sum", Params: []dispatch.Field{{Name: "x", Type: "[]float32"}}})
//
// Plan for a specific build instead:
//
//	cfg := dispatch.Config{Arch: target.X86_64, Level: "v3", Enabled: []string{"avx2", "fma"}}
//	plan, err := multiversion.Build(a, sig, multiversion.WithConfig(cfg))
//
// # Errors
//
// Planning either succeeds or fails with a [ParseError] or [ValidationError]
// positioned at the offending directive. There is no runtime error path:
// every plan has a baseline that is valid on any processor.
//
// # Thread Safety
//
// Build and BuildDirective are safe for concurrent use.
package multiversion

import (
	"errors"
	"fmt"

	"github.com/albertocavalcante/go-multiversion/attr"
	"github.com/albertocavalcante/go-multiversion/diag"
	"github.com/albertocavalcante/go-multiversion/dispatch"
	"github.com/albertocavalcante/go-multiversion/internal/compat"
)

// Build plans the dispatch of the function described by sig, annotated with a.
//
// The signature is validated first: a function returning an anonymous
// interface is rejected before its targets are looked at.
func Build(a *attr.Attribute, sig dispatch.Signature, opts ...Option) (*dispatch.Plan, error) {
	if a == nil {
		return nil, errors.New("attribute cannot be nil")
	}
	c, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	if err := sig.Validate(); err != nil {
		return nil, diag.At(err, a.Pos)
	}
	return c.plan(a, sig)
}

// BuildDirective parses a directive and plans sig with it.
//
// text is either a full comment ("//multiversion: targets = ...") or the
// option list alone. Diagnostics are positioned at filename:line.
func BuildDirective(filename string, line int, text string, sig dispatch.Signature, opts ...Option) (*dispatch.Plan, error) {
	c, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	pos := diag.Position{Filename: filename, Line: line}
	if err := sig.Validate(); err != nil {
		return nil, diag.At(err, pos)
	}

	var a *attr.Attribute
	if attr.IsDirective(text) {
		pos.Column = 1
		a, err = attr.ParseComment(pos, text)
	} else {
		a, err = attr.Parse(pos, text)
	}
	if err != nil {
		return nil, err
	}
	return c.plan(a, sig)
}

func (c *config) plan(a *attr.Attribute, sig dispatch.Signature) (*dispatch.Plan, error) {
	log := c.log().With("function", sig.Name, "pos", a.Pos.String())

	for _, t := range a.Targets.Targets() {
		for _, w := range compat.CheckTarget(t) {
			log.Warn(w.String())
		}
	}

	plan, err := dispatch.Build(a.Targets, a.Dispatcher, sig, c.build)
	if err != nil {
		pos := a.Pos
		if errors.Is(err, diag.ErrAmbiguousTarget) && a.DispatcherPos.IsValid() {
			pos = a.DispatcherPos
		} else if a.TargetsPos.IsValid() && !errors.Is(err, diag.ErrInvalidSignature) {
			pos = a.TargetsPos
		}
		return nil, diag.At(err, pos)
	}

	if a.Dispatcher == dispatch.Default {
		log.Debug("resolved default dispatcher",
			"method", plan.Method.String(),
			"reason", plan.Reason)
	}
	if plan.Method == dispatch.Static {
		selected := sig.Name
		if v, ok := plan.Selected(); ok {
			selected = v.Name
		}
		log.Debug("resolved statically",
			"selected", selected,
			"pruned", len(plan.Pruned))
	} else {
		log.Debug("planned runtime dispatch",
			"method", plan.Method.String(),
			"variants", fmt.Sprint(plan.Names()),
			"baseline_reachable", plan.BaselineReachable())
	}
	return plan, nil
}
