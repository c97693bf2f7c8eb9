package dispatch

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-multiversion/internal/compat"
	"github.com/albertocavalcante/go-multiversion/target"
)

// LevelVar describes the environment variable selecting the architecture
// level of a GOARCH.
type LevelVar struct {
	// Name is the environment variable (e.g., "GOAMD64").
	Name string
	// Default is the level the Go toolchain uses when Name is unset.
	Default string
	// List reports whether the value is a comma-separated list of levels
	// rather than a single level (GOWASM).
	List bool
}

// levelVars maps GOARCH values to their level variable.
//
// Reference: https://go.dev/doc/install/source#environment
var levelVars = map[string]LevelVar{
	"amd64":    {Name: "GOAMD64", Default: "v1"},
	"386":      {Name: "GO386", Default: "sse2"},
	"arm":      {Name: "GOARM", Default: "7"},
	"arm64":    {Name: "GOARM64", Default: "v8.0"},
	"ppc64":    {Name: "GOPPC64", Default: "power8"},
	"ppc64le":  {Name: "GOPPC64", Default: "power8"},
	"riscv64":  {Name: "GORISCV64", Default: "rva20u64"},
	"wasm":     {Name: "GOWASM", List: true},
	"mips":     {Name: "GOMIPS", Default: "hardfloat"},
	"mipsle":   {Name: "GOMIPS", Default: "hardfloat"},
	"mips64":   {Name: "GOMIPS64", Default: "hardfloat"},
	"mips64le": {Name: "GOMIPS64", Default: "hardfloat"},
}

// LevelVarFor returns the level variable of goarch.
// Returns false if goarch has none.
func LevelVarFor(goarch string) (LevelVar, bool) {
	v, ok := levelVars[goarch]
	return v, ok
}

// NormalizeLevel strips option suffixes from a level value: "v8.1,lse"
// becomes "v8.1" and "7,softfloat" becomes "7". Suffix options are not
// reflected in build tags, so capabilities they add are left to the probe.
func NormalizeLevel(value string) string {
	level, _, _ := strings.Cut(value, ",")
	return level
}

// EnabledForLevel returns the capabilities guaranteed by level on arch.
//
// Levels with no cataloged capabilities (such as GOMIPS=hardfloat) enable
// nothing. An unrecognized level is an error.
func EnabledForLevel(arch target.Architecture, level string) ([]string, error) {
	if level == "" {
		return nil, nil
	}
	if !compat.IsLevel(arch, level) {
		if hasLevels(arch) {
			return nil, fmt.Errorf("unknown %s level %q", arch, level)
		}
		return nil, nil
	}
	return compat.Implied(arch, level), nil
}

func hasLevels(arch target.Architecture) bool {
	return compat.Levels(arch) != nil || arch == target.AArch64 || arch == target.Wasm32
}

// ConfigFromEnv derives the build configuration from Go environment variables
// read through getenv: GOARCH, the level variable of that GOARCH, and GOFLAGS.
// An empty GOARCH means runtime.GOARCH.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	goarch := getenv("GOARCH")
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	cfg := Config{IndirectBranchHardening: HardeningFromGOFLAGS(getenv("GOFLAGS"))}

	arch, ok := target.ArchitectureForGOARCH(goarch)
	if !ok {
		// Every target is undecidable on an architecture we cannot name.
		return cfg, nil
	}
	cfg.Arch = arch

	lv, ok := levelVars[goarch]
	if !ok {
		return cfg, nil
	}
	value := getenv(lv.Name)
	if value == "" {
		value = lv.Default
	}

	if lv.List {
		for _, item := range strings.Split(value, ",") {
			if item == "" {
				continue
			}
			enabled, err := EnabledForLevel(arch, item)
			if err != nil {
				return Config{}, fmt.Errorf("%s: %w", lv.Name, err)
			}
			cfg.Enabled = append(cfg.Enabled, enabled...)
			cfg.Tags = append(cfg.Tags, goarch+"."+item)
		}
		slices.Sort(cfg.Enabled)
		cfg.Enabled = slices.Compact(cfg.Enabled)
		return cfg, nil
	}

	level := NormalizeLevel(value)
	enabled, err := EnabledForLevel(arch, level)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", lv.Name, err)
	}
	if compat.IsLevel(arch, level) {
		cfg.Level = level
	}
	cfg.Enabled = enabled
	return cfg, nil
}
