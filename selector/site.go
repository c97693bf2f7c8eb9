// Package selector runs dispatch plans: it picks, for each dispatch site, the
// implementation matching the executing processor.
//
// A [Site] binds a [dispatch.Plan] to one Go function value per variant plus
// the baseline. Calling [Site.Get] returns the implementation to call:
//
//   - static sites return the variant chosen at build time;
//   - direct sites probe and walk the priority order on every call;
//   - indirect sites walk once, publish the choice in their [Cell], and
//     return the cached implementation afterwards.
//
// Sites are safe for concurrent use. Get never blocks and never fails: the
// baseline is always a valid answer.
package selector

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/albertocavalcante/go-multiversion/capability"
	"github.com/albertocavalcante/go-multiversion/dispatch"
	"github.com/albertocavalcante/go-multiversion/target"
)

// Site is one dispatch site: a plan and the implementations it selects from.
type Site[F any] struct {
	name    string
	plan    *dispatch.Plan
	impls   []F // parallel to targets, baseline last
	targets []target.Target
	names   []string
	probe   capability.Probe
	cell    *Cell
	logger  *slog.Logger

	resolutions atomic.Uint64
}

// Option configures a Site.
type Option func(*siteConfig) error

type siteConfig struct {
	name   string
	probe  capability.Probe
	cell   *Cell
	logger *slog.Logger
	config *dispatch.Config
}

// WithProbe sets the probe answering capability queries.
// The default is capability.Host().
func WithProbe(p capability.Probe) Option {
	return func(c *siteConfig) error {
		if p == nil {
			return errors.New("probe cannot be nil")
		}
		c.probe = p
		return nil
	}
}

// WithCell sets the cache cell of an indirect site. The default is a cell
// owned by the site.
func WithCell(cell *Cell) Option {
	return func(c *siteConfig) error {
		if cell == nil {
			return errors.New("cell cannot be nil")
		}
		c.cell = cell
		return nil
	}
}

// WithLogger sets the logger used to report resolutions.
// Resolutions are logged at debug level. The default discards all output.
func WithLogger(l *slog.Logger) Option {
	return func(c *siteConfig) error {
		c.logger = l
		return nil
	}
}

// WithName sets the name the site reports in logs and metrics.
// The default is the function name of the plan.
func WithName(name string) Option {
	return func(c *siteConfig) error {
		if name == "" {
			return errors.New("site name cannot be empty")
		}
		c.name = name
		return nil
	}
}

// WithConfig sets the build configuration Register plans against.
// The default is capability.BuildConfig(). New ignores it.
func WithConfig(cfg dispatch.Config) Option {
	return func(c *siteConfig) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid build configuration: %w", err)
		}
		c.config = &cfg
		return nil
	}
}

func newSiteConfig(opts []Option) (*siteConfig, error) {
	cfg := &siteConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.probe == nil {
		cfg.probe = capability.Host()
	}
	if cfg.cell == nil {
		cfg.cell = new(Cell)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	return cfg, nil
}

// New binds plan to implementations.
//
// impls maps variant names to implementations and must hold one entry per
// plan variant. Entries for variants a static plan resolved away are accepted
// and ignored.
func New[F any](plan *dispatch.Plan, baseline F, impls map[string]F, opts ...Option) (*Site[F], error) {
	if plan == nil {
		return nil, errors.New("plan cannot be nil")
	}
	if plan.Method == dispatch.Default {
		return nil, errors.New("plan method must be resolved")
	}
	cfg, err := newSiteConfig(opts)
	if err != nil {
		return nil, err
	}

	s := &Site[F]{
		name:    cmp.Or(cfg.name, plan.Signature.Name),
		plan:    plan,
		impls:   make([]F, 0, len(plan.Variants)+1),
		targets: make([]target.Target, 0, len(plan.Variants)),
		names:   make([]string, 0, len(plan.Variants)+1),
		probe:   cfg.probe,
		cell:    cfg.cell,
		logger:  cfg.logger,
	}

	for _, v := range plan.Variants {
		fn, ok := impls[v.Name]
		if !ok {
			return nil, fmt.Errorf("site %s: no implementation for variant %s (%s)", s.name, v.Name, v.Target)
		}
		s.impls = append(s.impls, fn)
		s.targets = append(s.targets, v.Target)
		s.names = append(s.names, v.Name)
	}
	for name := range impls {
		if _, ok := plan.Lookup(name); ok {
			continue
		}
		if !slices.ContainsFunc(plan.Pruned, func(v dispatch.Variant) bool { return v.Name == name }) {
			return nil, fmt.Errorf("site %s: implementation %s matches no variant", s.name, name)
		}
	}
	s.impls = append(s.impls, baseline)
	s.names = append(s.names, plan.Signature.Name)
	return s, nil
}

// Get returns the implementation to call.
func (s *Site[F]) Get() F {
	return s.impls[s.index()]
}

func (s *Site[F]) index() int {
	switch s.plan.Method {
	case dispatch.Static:
		// A static plan keeps at most one variant; with none the baseline is at 0.
		return 0
	case dispatch.Direct:
		return s.walk()
	default:
		if i, ok := s.cell.Load(); ok {
			return i
		}
		return s.resolve()
	}
}

// walk returns the index of the first variant the probe satisfies, or the
// baseline index.
func (s *Site[F]) walk() int {
	for i, t := range s.targets {
		if capability.Satisfies(s.probe, t) {
			return i
		}
	}
	return len(s.targets)
}

func (s *Site[F]) resolve() int {
	i := s.walk()
	s.cell.Store(i)
	s.resolutions.Add(1)
	s.logger.Debug("resolved dispatch site",
		"site", s.name,
		"variant", s.names[i],
		"method", s.plan.Method.String())
	return i
}

// Name returns the name of the site.
func (s *Site[F]) Name() string {
	return s.name
}

// Plan returns the plan the site runs.
func (s *Site[F]) Plan() *dispatch.Plan {
	return s.plan
}

// Selected returns the name of the implementation Get returns on this machine,
// resolving an indirect site if needed.
func (s *Site[F]) Selected() string {
	return s.names[s.index()]
}

// Resolved reports whether the site needs no further probing: static sites
// always, indirect sites once their cell is published, direct sites never.
func (s *Site[F]) Resolved() bool {
	switch s.plan.Method {
	case dispatch.Static:
		return true
	case dispatch.Direct:
		return false
	default:
		return s.cell.Resolved()
	}
}

// Status is a point-in-time view of a site.
type Status struct {
	Name   string
	Method dispatch.Method
	// Variant is the selected implementation; empty while an indirect site
	// is unresolved.
	Variant string
	// Resolutions counts how often an indirect site ran the selection walk.
	// Racing first calls may each run it once.
	Resolutions uint64
}

// Status reports the site without resolving it.
func (s *Site[F]) Status() Status {
	st := Status{
		Name:        s.name,
		Method:      s.plan.Method,
		Resolutions: s.resolutions.Load(),
	}
	switch s.plan.Method {
	case dispatch.Indirect:
		if i, ok := s.cell.Load(); ok {
			st.Variant = s.names[i]
		}
	default:
		st.Variant = s.names[s.index()]
	}
	return st
}
