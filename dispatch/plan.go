package dispatch

import (
	"fmt"
	"slices"

	"github.com/albertocavalcante/go-multiversion/diag"
	"github.com/albertocavalcante/go-multiversion/target"
)

// Variant is one capability-specific implementation in a plan.
type Variant struct {
	// Name is the Go identifier of the implementation, e.g. "Sum_x86_64_avx2_fma".
	Name string `json:"name"`
	// Target is the capability requirement gating the variant.
	Target target.Target `json:"-"`
	// Priority is the position in the selection walk; 0 is tried first.
	Priority int `json:"priority"`
	// Satisfaction is what the build configuration guarantees about Target.
	Satisfaction Satisfaction `json:"satisfaction"`
}

// Plan is the dispatcher output for one dispatch site.
//
// Variants are in priority order: specificity descending, declaration order
// among equal specificity. The baseline is implicit and always last.
type Plan struct {
	// Signature is the signature shared by every variant and the baseline.
	Signature Signature
	// Requested is the method as written; Method is the resolved concrete
	// method and is never Default.
	Requested Method
	Method    Method
	// Reason explains how Method was chosen.
	Reason string
	// Variants are the variants that can run, in priority order. A static
	// plan has at most one.
	Variants []Variant
	// Pruned are variants a static plan resolved away.
	Pruned []Variant
	// Config is the build configuration the plan was built against.
	Config Config
}

// VariantName returns the identifier of the variant of function for t.
func VariantName(function string, t target.Target) string {
	return function + "_" + t.Suffix()
}

// Build composes a target list, a dispatch method and a function signature
// into a plan.
//
// The signature is checked first: an opaque result type is rejected before
// the target list is looked at.
func Build(list target.List, method Method, sig Signature, cfg Config) (*Plan, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	if list.IsEmpty() {
		return nil, diag.Validationf(diag.ErrEmptyTargetList, "expected at least one target")
	}
	if int(method) >= len(methodNames) {
		return nil, diag.Validationf(diag.ErrUnknownDispatcher, "invalid dispatch method %d", method)
	}

	variants, err := prioritize(list, sig.Name, cfg)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Signature: sig,
		Requested: method,
		Config:    cfg,
	}

	ambiguous := firstUndecidable(variants)
	switch method {
	case Static:
		if ambiguous != nil {
			return nil, diag.Validationf(diag.ErrAmbiguousTarget,
				"ambiguous target cannot be statically resolved: %s", ambiguous.Target)
		}
		plan.Method = Static
		plan.Reason = "static dispatch requested"
	case Direct, Indirect:
		plan.Method = method
		plan.Reason = method.String() + " dispatch requested"
	default:
		switch {
		case ambiguous == nil:
			plan.Method = Static
			plan.Reason = "every target is decidable at build time"
		case cfg.IndirectBranchHardening:
			plan.Method = Direct
			plan.Reason = fmt.Sprintf("target %s needs a runtime probe and indirect-branch hardening is active", ambiguous.Target)
		default:
			plan.Method = Indirect
			plan.Reason = fmt.Sprintf("target %s needs a runtime probe", ambiguous.Target)
		}
	}

	if plan.Method == Static {
		plan.Variants, plan.Pruned = collapse(variants)
	} else {
		plan.Variants = variants
	}
	return plan, nil
}

// prioritize orders the targets by specificity descending, keeping
// declaration order among equal specificity.
func prioritize(list target.List, function string, cfg Config) ([]Variant, error) {
	targets := list.Targets()
	slices.SortStableFunc(targets, func(a, b target.Target) int {
		return b.Specificity() - a.Specificity()
	})

	variants := make([]Variant, len(targets))
	names := make(map[string]target.Target, len(targets))
	for i, t := range targets {
		name := VariantName(function, t)
		if prev, ok := names[name]; ok {
			return nil, diag.Validationf(diag.ErrDuplicateTarget,
				"targets %s and %s both produce variant %s", prev, t, name)
		}
		names[name] = t
		variants[i] = Variant{
			Name:         name,
			Target:       t,
			Priority:     i,
			Satisfaction: cfg.Decide(t),
		}
	}
	return variants, nil
}

func firstUndecidable(variants []Variant) *Variant {
	for i := range variants {
		if variants[i].Satisfaction == Unknown {
			return &variants[i]
		}
	}
	return nil
}

// collapse keeps the highest-priority variant guaranteed to hold.
// With none, the baseline is the only survivor.
func collapse(variants []Variant) (kept, pruned []Variant) {
	for i, v := range variants {
		if v.Satisfaction == Always {
			kept = []Variant{v}
			pruned = slices.Concat(variants[:i], variants[i+1:])
			return kept, pruned
		}
	}
	return nil, slices.Clone(variants)
}

// Selected returns the variant a static plan resolved to.
// Returns false when the baseline was selected or the plan is not static.
func (p *Plan) Selected() (Variant, bool) {
	if p.Method != Static || len(p.Variants) == 0 {
		return Variant{}, false
	}
	return p.Variants[0], true
}

// BaselineReachable reports whether the baseline can ever run.
func (p *Plan) BaselineReachable() bool {
	if p.Method == Static {
		return len(p.Variants) == 0
	}
	// A variant guaranteed to hold ends the walk before the baseline.
	for _, v := range p.Variants {
		if v.Satisfaction == Always {
			return false
		}
	}
	return true
}

// Lookup returns the variant named name.
func (p *Plan) Lookup(name string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// Names returns the variant names in priority order.
func (p *Plan) Names() []string {
	names := make([]string, len(p.Variants))
	for i, v := range p.Variants {
		names[i] = v.Name
	}
	return names
}

// Dynamic reports whether the plan needs a runtime selector.
func (p *Plan) Dynamic() bool {
	return p.Method == Direct || p.Method == Indirect
}
