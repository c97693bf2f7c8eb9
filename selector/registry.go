package selector

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/albertocavalcante/go-multiversion/capability"
	"github.com/albertocavalcante/go-multiversion/dispatch"
	"github.com/albertocavalcante/go-multiversion/target"
)

// Impl is a hand-written implementation for one target string.
type Impl[F any] struct {
	Target string
	Fn     F
}

// Reporter is a dispatch site as seen by metrics: any Site, whatever its
// function type.
type Reporter interface {
	Status() Status
}

var registry = struct {
	sync.Mutex
	sites map[string]Reporter
}{sites: make(map[string]Reporter)}

// Register plans and registers a dispatch site from hand-written
// implementations, without code generation.
//
// name identifies the site in logs and metrics (e.g., "vecmath.Dot") and must
// be unique in the process. Its last dot-separated element names the baseline
// and prefixes variant names. The plan is built against WithConfig, or the
// build configuration of the running binary.
func Register[F any](name string, method dispatch.Method, baseline F, impls []Impl[F], opts ...Option) (*Site[F], error) {
	cfg, err := newSiteConfig(opts)
	if err != nil {
		return nil, err
	}
	buildCfg := capability.BuildConfig()
	if cfg.config != nil {
		buildCfg = *cfg.config
	}

	targets := make([]string, len(impls))
	for i, impl := range impls {
		targets[i] = impl.Target
	}
	list, err := target.FromStrings(targets)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", name, err)
	}

	function := name[strings.LastIndex(name, ".")+1:]
	plan, err := dispatch.Build(list, method, dispatch.Signature{Name: function}, buildCfg)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", name, err)
	}

	byName := make(map[string]F, len(impls))
	for i, impl := range impls {
		byName[dispatch.VariantName(function, list.At(i))] = impl.Fn
	}

	site, err := New(plan, baseline, byName, append(slices.Clone(opts), WithName(name))...)
	if err != nil {
		return nil, err
	}

	registry.Lock()
	defer registry.Unlock()
	if _, ok := registry.sites[name]; ok {
		return nil, fmt.Errorf("site %s already registered", name)
	}
	registry.sites[name] = site
	return site, nil
}

// MustRegister is like Register but panics on error. It is meant for
// package-level variable initialization.
func MustRegister[F any](name string, method dispatch.Method, baseline F, impls ...Impl[F]) *Site[F] {
	site, err := Register(name, method, baseline, impls)
	if err != nil {
		panic(err)
	}
	return site
}

// Track adds a site built with New to the process registry so the default
// Collector reports it.
func Track(r Reporter) error {
	name := r.Status().Name
	registry.Lock()
	defer registry.Unlock()
	if _, ok := registry.sites[name]; ok {
		return fmt.Errorf("site %s already registered", name)
	}
	registry.sites[name] = r
	return nil
}

// Sites returns the registered sites sorted by name.
func Sites() []Reporter {
	registry.Lock()
	defer registry.Unlock()
	names := make([]string, 0, len(registry.sites))
	for name := range registry.sites {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]Reporter, len(names))
	for i, name := range names {
		out[i] = registry.sites[name]
	}
	return out
}

// Lookup returns the registered site named name.
func Lookup(name string) (Reporter, bool) {
	registry.Lock()
	defer registry.Unlock()
	r, ok := registry.sites[name]
	return r, ok
}
