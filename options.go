package multiversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/albertocavalcante/go-multiversion/dispatch"
)

// Option configures planning.
type Option func(*config) error

// config holds all planning configuration.
type config struct {
	// build is what is statically known about the compilation target.
	// Defaults to the environment (dispatch.ConfigFromEnv(os.Getenv)).
	build    dispatch.Config
	buildSet bool

	hardening *bool
	enabled   []string
	disabled  []string
	tags      []string

	// logger is the structured logger for debug/warn output.
	// If nil, logging is disabled (silent mode).
	logger *slog.Logger
}

// WithConfig sets the build configuration to plan against, replacing the one
// derived from the environment.
func WithConfig(cfg dispatch.Config) Option {
	return func(c *config) error {
		c.build = cfg
		c.buildSet = true
		return nil
	}
}

// WithHardening overrides whether indirect-branch hardening is active.
// By default it is derived from GOFLAGS (-gcflags=-spectre=ret or all).
func WithHardening(active bool) Option {
	return func(c *config) error {
		c.hardening = &active
		return nil
	}
}

// WithEnabledFeatures declares capabilities guaranteed present in addition to
// those implied by the architecture level, e.g. for a known fleet.
// Pair it with WithBuildTags so static plans stay guarded.
func WithEnabledFeatures(features ...string) Option {
	return func(c *config) error {
		if slices.Contains(features, "") {
			return errors.New("enabled feature cannot be empty")
		}
		c.enabled = append(c.enabled, features...)
		return nil
	}
}

// WithDisabledFeatures declares capabilities guaranteed absent.
func WithDisabledFeatures(features ...string) Option {
	return func(c *config) error {
		if slices.Contains(features, "") {
			return errors.New("disabled feature cannot be empty")
		}
		c.disabled = append(c.disabled, features...)
		return nil
	}
}

// WithBuildTags adds build tags that must be set for the declared
// capabilities to hold. Static plans are guarded by them.
func WithBuildTags(tags ...string) Option {
	return func(c *config) error {
		if slices.Contains(tags, "") {
			return errors.New("build tag cannot be empty")
		}
		c.tags = append(c.tags, tags...)
		return nil
	}
}

// WithLogger sets a structured logger for planning diagnostics.
// If not set, logging is disabled (silent mode).
//
// Default-method resolutions are logged at debug level; capabilities the
// catalog does not know for their architecture are logged as warnings.
//
// Example:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "multiversion")
//	plan, err := multiversion.Build(a, sig, multiversion.WithLogger(logger))
func WithLogger(l *slog.Logger) Option {
	return func(c *config) error {
		c.logger = l
		return nil
	}
}

// validate checks the configuration for logical consistency and folds the
// overrides into the build configuration.
func (c *config) validate() error {
	if c.hardening != nil {
		c.build.IndirectBranchHardening = *c.hardening
	}
	if len(c.enabled) > 0 || len(c.disabled) > 0 || len(c.tags) > 0 {
		if !c.build.Arch.IsValid() {
			return errors.New("feature overrides require a known architecture")
		}
	}
	c.build.Enabled = mergeSorted(c.build.Enabled, c.enabled)
	c.build.Disabled = mergeSorted(c.build.Disabled, c.disabled)
	c.build.Tags = append(slices.Clone(c.build.Tags), c.tags...)

	if err := c.build.Validate(); err != nil {
		return fmt.Errorf("invalid build configuration: %w", err)
	}
	return nil
}

func mergeSorted(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	out := slices.Concat(base, extra)
	slices.Sort(out)
	return slices.Compact(out)
}

// log returns the configured logger, or a no-op logger if none was set.
// This allows internal code to call logging methods without nil checks.
func (c *config) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(discardHandler{})
}

// discardHandler is a slog.Handler that discards all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// newConfig creates a planning configuration by applying the given options
// and validating the result.
func newConfig(opts ...Option) (*config, error) {
	c := &config{}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if !c.buildSet {
		env, err := dispatch.ConfigFromEnv(os.Getenv)
		if err != nil {
			return nil, fmt.Errorf("build configuration from environment: %w", err)
		}
		c.build = env
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}
