package capability

import (
	"os"
	"runtime"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sys/cpu"

	"github.com/albertocavalcante/go-multiversion/dispatch"
	"github.com/albertocavalcante/go-multiversion/internal/compat"
	"github.com/albertocavalcante/go-multiversion/target"
)

// DisableEnv names the environment variable masking host capabilities.
// Its value is a comma-separated list of capability names, or "all" to make
// every dispatch site fall back to its baseline.
const DisableEnv = "MULTIVERSION_DISABLE"

type detector func() bool

func has(id cpuid.FeatureID) detector {
	return func() bool { return cpuid.CPU.Supports(id) }
}

func flag(v *bool) detector {
	return func() bool { return *v }
}

var x86Detectors = map[string]detector{
	"sse":             has(cpuid.SSE),
	"sse2":            flag(&cpu.X86.HasSSE2),
	"sse3":            flag(&cpu.X86.HasSSE3),
	"ssse3":           flag(&cpu.X86.HasSSSE3),
	"sse4.1":          flag(&cpu.X86.HasSSE41),
	"sse4.2":          flag(&cpu.X86.HasSSE42),
	"popcnt":          flag(&cpu.X86.HasPOPCNT),
	"cmpxchg16b":      flag(&cpu.X86.HasCX16),
	"avx":             flag(&cpu.X86.HasAVX),
	"avx2":            flag(&cpu.X86.HasAVX2),
	"bmi1":            flag(&cpu.X86.HasBMI1),
	"bmi2":            flag(&cpu.X86.HasBMI2),
	"fma":             flag(&cpu.X86.HasFMA),
	"f16c":            has(cpuid.F16C),
	"lzcnt":           has(cpuid.LZCNT),
	"movbe":           has(cpuid.MOVBE),
	"xsave":           has(cpuid.XSAVE),
	"avx512f":         flag(&cpu.X86.HasAVX512F),
	"avx512bw":        flag(&cpu.X86.HasAVX512BW),
	"avx512cd":        flag(&cpu.X86.HasAVX512CD),
	"avx512dq":        flag(&cpu.X86.HasAVX512DQ),
	"avx512vl":        flag(&cpu.X86.HasAVX512VL),
	"avx512vnni":      flag(&cpu.X86.HasAVX512VNNI),
	"avx512vbmi":      flag(&cpu.X86.HasAVX512VBMI),
	"avx512vbmi2":     flag(&cpu.X86.HasAVX512VBMI2),
	"avx512bitalg":    flag(&cpu.X86.HasAVX512BITALG),
	"avx512vpopcntdq": flag(&cpu.X86.HasAVX512VPOPCNTDQ),
	"avx512bf16":      flag(&cpu.X86.HasAVX512BF16),
	"avx512fp16":      has(cpuid.AVX512FP16),
	"avxvnni":         flag(&cpu.X86.HasAVXVNNI),
	"aes":             flag(&cpu.X86.HasAES),
	"pclmulqdq":       flag(&cpu.X86.HasPCLMULQDQ),
	"sha":             has(cpuid.SHA),
	"gfni":            has(cpuid.GFNI),
	"vaes":            has(cpuid.VAES),
	"vpclmulqdq":      has(cpuid.VPCLMULQDQ),
	"adx":             flag(&cpu.X86.HasADX),
	"rdrand":          flag(&cpu.X86.HasRDRAND),
	"rdseed":          flag(&cpu.X86.HasRDSEED),
	"erms":            flag(&cpu.X86.HasERMS),
}

var detectors = map[target.Architecture]map[string]detector{
	target.X86_64: x86Detectors,
	target.X86:    x86Detectors,
	target.AArch64: {
		"fp":      flag(&cpu.ARM64.HasFP),
		"neon":    flag(&cpu.ARM64.HasASIMD),
		"crc":     flag(&cpu.ARM64.HasCRC32),
		"lse":     flag(&cpu.ARM64.HasATOMICS),
		"rdm":     flag(&cpu.ARM64.HasASIMDRDM),
		"rcpc":    flag(&cpu.ARM64.HasLRCPC),
		"jsconv":  flag(&cpu.ARM64.HasJSCVT),
		"fcma":    flag(&cpu.ARM64.HasFCMA),
		"pacg":    has(cpuid.GPA),
		"dit":     flag(&cpu.ARM64.HasDIT),
		"i8mm":    flag(&cpu.ARM64.HasI8MM),
		"sve":     flag(&cpu.ARM64.HasSVE),
		"sve2":    flag(&cpu.ARM64.HasSVE2),
		"aes":     flag(&cpu.ARM64.HasAES),
		"pmull":   flag(&cpu.ARM64.HasPMULL),
		"sha2":    flag(&cpu.ARM64.HasSHA2),
		"sha3":    flag(&cpu.ARM64.HasSHA3),
		"sm4":     flag(&cpu.ARM64.HasSM4),
		"fp16":    func() bool { return cpu.ARM64.HasFPHP && cpu.ARM64.HasASIMDHP },
		"dotprod": flag(&cpu.ARM64.HasASIMDDP),
	},
	target.ARM: {
		"vfp2":  flag(&cpu.ARM.HasVFP),
		"vfp3":  flag(&cpu.ARM.HasVFPv3),
		"vfp4":  flag(&cpu.ARM.HasVFPv4),
		"neon":  flag(&cpu.ARM.HasNEON),
		"idiva": flag(&cpu.ARM.HasIDIVA),
		"crc":   flag(&cpu.ARM.HasCRC32),
		"aes":   flag(&cpu.ARM.HasAES),
		"sha2":  flag(&cpu.ARM.HasSHA2),
	},
	target.MIPS64: {
		"msa": flag(&cpu.MIPS64X.HasMSA),
	},
	target.PowerPC64: {
		"altivec":        flag(&cpu.PPC64.IsPOWER8),
		"vsx":            flag(&cpu.PPC64.IsPOWER8),
		"power8-altivec": flag(&cpu.PPC64.IsPOWER8),
		"power8-vector":  flag(&cpu.PPC64.IsPOWER8),
		"power8-crypto":  flag(&cpu.PPC64.IsPOWER8),
		"power9-altivec": flag(&cpu.PPC64.IsPOWER9),
		"power9-vector":  flag(&cpu.PPC64.IsPOWER9),
	},
	target.RISCV64: {
		"c":   flag(&cpu.RISCV64.HasC),
		"v":   flag(&cpu.RISCV64.HasV),
		"zba": flag(&cpu.RISCV64.HasZba),
		"zbb": flag(&cpu.RISCV64.HasZbb),
		"zbs": flag(&cpu.RISCV64.HasZbs),
	},
	target.LoongArch64: {
		"lsx":  flag(&cpu.Loong64.HasLSX),
		"lasx": flag(&cpu.Loong64.HasLASX),
	},
	target.S390X: {
		"vector":                flag(&cpu.S390X.HasVX),
		"vector-enhancements-1": flag(&cpu.S390X.HasVXE),
		"dfp":                   flag(&cpu.S390X.HasDFP),
		"msa":                   flag(&cpu.S390X.HasMSA),
	},
}

// HostProbe reports the capabilities of the executing processor.
//
// Capabilities are detected once. Capabilities mandated by the level the
// binary was compiled for (its GOAMD64, GOARM64, ...) are reported present
// even when no runtime flag exposes them. Extensions no level mandates, such
// as SVE, are only reported from the runtime flags.
type HostProbe struct {
	arch     target.Architecture
	features map[string]bool
	disabled []string
}

var (
	hostOnce sync.Once
	host     *HostProbe
)

// Host returns the process-wide probe of the executing processor, honoring
// the MULTIVERSION_DISABLE mask read on first use.
func Host() *HostProbe {
	hostOnce.Do(func() {
		host = detect(runtime.GOARCH, buildSettings(), ParseDisableList(os.Getenv(DisableEnv)))
	})
	return host
}

// BuildConfig returns the build configuration of the running binary: its
// architecture, the level it was compiled for, and whether it was compiled
// with indirect-branch hardening.
func BuildConfig() dispatch.Config {
	return buildConfig()
}

var buildConfig = sync.OnceValue(func() dispatch.Config {
	return configFromSettings(runtime.GOARCH, buildSettings())
})

// configFromSettings derives the build configuration of a binary from the
// build settings it records. The recorded -gcflags is a single value, so it
// is read as such rather than as GOFLAGS.
func configFromSettings(goarch string, settings map[string]string) dispatch.Config {
	cfg, err := dispatch.ConfigFromEnv(func(key string) string {
		switch key {
		case "GOARCH":
			return goarch
		case "GOFLAGS":
			return ""
		}
		return settings[key]
	})
	if err != nil {
		return dispatch.Config{}
	}
	cfg.IndirectBranchHardening = dispatch.HardeningFromGcflags(settings["-gcflags"])
	return cfg
}

// buildSettings returns the build settings recorded in the running binary.
func buildSettings() map[string]string {
	settings := make(map[string]string)
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			settings[s.Key] = s.Value
		}
	}
	return settings
}

// detect builds a probe for goarch from the runtime flags and the level the
// binary was built for.
func detect(goarch string, settings map[string]string, disabled []string) *HostProbe {
	h := &HostProbe{features: make(map[string]bool), disabled: disabled}
	arch, ok := target.ArchitectureForGOARCH(goarch)
	if !ok {
		return h
	}
	h.arch = arch

	if slices.Contains(disabled, DisableAll) {
		return h
	}

	for name, d := range detectors[arch] {
		if compat.Known(arch, name) && d() {
			h.features[name] = true
		}
	}

	// Capabilities mandated by the level the binary was built for hold even
	// when no runtime flag exposes them.
	getenv := func(key string) string {
		if key == "GOARCH" {
			return goarch
		}
		return settings[key]
	}
	if cfg, err := dispatch.ConfigFromEnv(getenv); err == nil {
		for _, name := range cfg.Enabled {
			h.features[name] = true
		}
	}

	for _, name := range disabled {
		delete(h.features, name)
	}
	return h
}

// Supports implements Probe.
func (h *HostProbe) Supports(arch target.Architecture, feature string) bool {
	return arch == h.arch && h.features[feature]
}

// Architecture returns the architecture of the executing processor.
// The zero Architecture means the GOARCH has no target spelling.
func (h *HostProbe) Architecture() target.Architecture {
	return h.arch
}

// Features returns the detected capabilities after masking, sorted.
func (h *HostProbe) Features() []string {
	out := make([]string, 0, len(h.features))
	for f := range h.features {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Disabled returns the mask read from MULTIVERSION_DISABLE.
func (h *HostProbe) Disabled() []string {
	return slices.Clone(h.disabled)
}

// CPU returns the processor brand name, or "" when it is not known.
func CPU() string {
	return cpuid.CPU.BrandName
}
