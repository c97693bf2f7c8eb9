// Package compat provides the catalog of processor capabilities known per architecture.
// This is an internal package used by the planner to warn about capability names
// no probe recognizes, and to compute which capabilities a Go architecture level
// (GOAMD64, GOARM64, ...) guarantees at build time.
package compat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/albertocavalcante/go-multiversion/target"
)

// Feature describes one capability of an architecture.
type Feature struct {
	// Arch is the architecture the capability belongs to.
	Arch target.Architecture
	// Name is the capability as spelled in target strings (e.g., "avx2", "sse4.2").
	Name string
	// Level is the lowest architecture level that guarantees the capability
	// (e.g., "v3" for GOAMD64). Empty when no level does.
	Level string
	// Description explains what the capability provides.
	Description string
}

// featureRegistry contains all known capabilities.
//
// Level references:
// - GOAMD64: https://go.dev/wiki/MinimumRequirements#amd64 (x86-64 psABI levels)
// - GOARM64: https://go.dev/wiki/MinimumRequirements#arm64
// - GOPPC64: https://go.dev/wiki/MinimumRequirements#ppc64
// - GORISCV64: https://go.dev/wiki/MinimumRequirements#riscv64 (RVA profiles)
var featureRegistry = []Feature{
	// x86_64
	{target.X86_64, "sse", "v1", "Streaming SIMD Extensions"},
	{target.X86_64, "sse2", "v1", "SSE2 integer and double-precision SIMD"},
	{target.X86_64, "sse3", "v2", "SSE3 horizontal arithmetic"},
	{target.X86_64, "ssse3", "v2", "Supplemental SSE3 shuffles"},
	{target.X86_64, "sse4.1", "v2", "SSE4.1 blends and rounding"},
	{target.X86_64, "sse4.2", "v2", "SSE4.2 string and CRC32 instructions"},
	{target.X86_64, "popcnt", "v2", "Population count"},
	{target.X86_64, "cmpxchg16b", "v2", "16-byte compare and exchange"},
	{target.X86_64, "avx", "v3", "256-bit floating-point SIMD"},
	{target.X86_64, "avx2", "v3", "256-bit integer SIMD"},
	{target.X86_64, "bmi1", "v3", "Bit manipulation set 1"},
	{target.X86_64, "bmi2", "v3", "Bit manipulation set 2"},
	{target.X86_64, "fma", "v3", "Fused multiply-add"},
	{target.X86_64, "f16c", "v3", "Half-precision conversion"},
	{target.X86_64, "lzcnt", "v3", "Leading zero count"},
	{target.X86_64, "movbe", "v3", "Byte-swapping move"},
	{target.X86_64, "xsave", "v3", "Extended state save"},
	{target.X86_64, "avx512f", "v4", "AVX-512 foundation"},
	{target.X86_64, "avx512bw", "v4", "AVX-512 byte and word"},
	{target.X86_64, "avx512cd", "v4", "AVX-512 conflict detection"},
	{target.X86_64, "avx512dq", "v4", "AVX-512 doubleword and quadword"},
	{target.X86_64, "avx512vl", "v4", "AVX-512 vector length extensions"},
	{target.X86_64, "avx512vnni", "", "AVX-512 vector neural network instructions"},
	{target.X86_64, "avx512vbmi", "", "AVX-512 vector byte manipulation"},
	{target.X86_64, "avx512vbmi2", "", "AVX-512 vector byte manipulation 2"},
	{target.X86_64, "avx512bitalg", "", "AVX-512 bit algorithms"},
	{target.X86_64, "avx512vpopcntdq", "", "AVX-512 vector population count"},
	{target.X86_64, "avx512bf16", "", "AVX-512 bfloat16"},
	{target.X86_64, "avx512fp16", "", "AVX-512 half precision"},
	{target.X86_64, "avxvnni", "", "AVX vector neural network instructions"},
	{target.X86_64, "aes", "", "AES-NI"},
	{target.X86_64, "pclmulqdq", "", "Carry-less multiplication"},
	{target.X86_64, "sha", "", "SHA extensions"},
	{target.X86_64, "gfni", "", "Galois field instructions"},
	{target.X86_64, "vaes", "", "Vector AES"},
	{target.X86_64, "vpclmulqdq", "", "Vector carry-less multiplication"},
	{target.X86_64, "adx", "", "Multi-precision add-carry"},
	{target.X86_64, "rdrand", "", "Hardware random number generator"},
	{target.X86_64, "rdseed", "", "Hardware random seed"},
	{target.X86_64, "erms", "", "Enhanced REP MOVSB/STOSB"},

	// x86
	{target.X86, "sse", "sse2", "Streaming SIMD Extensions"},
	{target.X86, "sse2", "sse2", "SSE2 integer and double-precision SIMD"},
	{target.X86, "sse3", "", "SSE3 horizontal arithmetic"},
	{target.X86, "ssse3", "", "Supplemental SSE3 shuffles"},
	{target.X86, "sse4.1", "", "SSE4.1 blends and rounding"},
	{target.X86, "sse4.2", "", "SSE4.2 string and CRC32 instructions"},
	{target.X86, "popcnt", "", "Population count"},
	{target.X86, "avx", "", "256-bit floating-point SIMD"},
	{target.X86, "avx2", "", "256-bit integer SIMD"},
	{target.X86, "bmi1", "", "Bit manipulation set 1"},
	{target.X86, "bmi2", "", "Bit manipulation set 2"},
	{target.X86, "fma", "", "Fused multiply-add"},
	{target.X86, "f16c", "", "Half-precision conversion"},
	{target.X86, "aes", "", "AES-NI"},
	{target.X86, "pclmulqdq", "", "Carry-less multiplication"},

	// aarch64
	{target.AArch64, "fp", "v8.0", "Floating point"},
	{target.AArch64, "neon", "v8.0", "Advanced SIMD"},
	{target.AArch64, "crc", "v8.1", "CRC32 instructions"},
	{target.AArch64, "lse", "v8.1", "Large System Extensions atomics"},
	{target.AArch64, "rdm", "v8.1", "Rounding double multiply accumulate"},
	{target.AArch64, "rcpc", "v8.3", "Release consistent processor consistent loads"},
	{target.AArch64, "jsconv", "v8.3", "JavaScript floating-point conversion"},
	{target.AArch64, "fcma", "v8.3", "Floating-point complex multiply-add"},
	{target.AArch64, "paca", "v8.3", "Pointer authentication (address)"},
	{target.AArch64, "pacg", "v8.3", "Pointer authentication (generic)"},
	{target.AArch64, "dit", "v8.4", "Data independent timing"},
	{target.AArch64, "flagm", "v8.4", "Flag manipulation"},
	{target.AArch64, "sb", "v8.5", "Speculation barrier"},
	{target.AArch64, "bti", "v8.5", "Branch target identification"},
	{target.AArch64, "i8mm", "v8.6", "Int8 matrix multiplication"},
	{target.AArch64, "bf16", "v8.6", "BFloat16"},
	// SVE is optional at every level: Armv9 parts such as Apple M4 omit it.
	{target.AArch64, "sve", "", "Scalable Vector Extension"},
	{target.AArch64, "sve2", "", "Scalable Vector Extension 2"},
	{target.AArch64, "aes", "", "AES instructions"},
	{target.AArch64, "pmull", "", "Polynomial multiply long"},
	{target.AArch64, "sha2", "", "SHA-1 and SHA-256 instructions"},
	{target.AArch64, "sha3", "", "SHA-3 and SHA-512 instructions"},
	{target.AArch64, "sm4", "", "SM3 and SM4 instructions"},
	{target.AArch64, "fp16", "", "Half-precision arithmetic"},
	{target.AArch64, "dotprod", "", "Int8 dot product"},

	// arm
	{target.ARM, "v6", "6", "ARMv6 instructions"},
	{target.ARM, "vfp2", "6", "VFPv2 floating point"},
	{target.ARM, "v7", "7", "ARMv7 instructions"},
	{target.ARM, "vfp3", "7", "VFPv3 floating point"},
	{target.ARM, "thumb2", "7", "Thumb-2 instructions"},
	{target.ARM, "vfp4", "", "VFPv4 floating point"},
	{target.ARM, "neon", "", "Advanced SIMD"},
	{target.ARM, "idiva", "", "Hardware integer divide"},
	{target.ARM, "crc", "", "CRC32 instructions"},
	{target.ARM, "aes", "", "AES instructions"},
	{target.ARM, "sha2", "", "SHA-1 and SHA-256 instructions"},

	// mips, mips64
	{target.MIPS, "fp64", "", "64-bit floating-point registers"},
	{target.MIPS, "msa", "", "MIPS SIMD Architecture"},
	{target.MIPS64, "fp64", "", "64-bit floating-point registers"},
	{target.MIPS64, "msa", "", "MIPS SIMD Architecture"},

	// powerpc, powerpc64
	{target.PowerPC, "altivec", "", "AltiVec SIMD"},
	{target.PowerPC64, "altivec", "power8", "AltiVec SIMD"},
	{target.PowerPC64, "vsx", "power8", "Vector-scalar extension"},
	{target.PowerPC64, "power8-altivec", "power8", "POWER8 AltiVec additions"},
	{target.PowerPC64, "power8-vector", "power8", "POWER8 vector additions"},
	{target.PowerPC64, "power8-crypto", "power8", "POWER8 cryptographic instructions"},
	{target.PowerPC64, "power9-altivec", "power9", "POWER9 AltiVec additions"},
	{target.PowerPC64, "power9-vector", "power9", "POWER9 vector additions"},
	{target.PowerPC64, "power10-vector", "power10", "POWER10 vector additions"},

	// riscv64
	{target.RISCV64, "m", "rva20u64", "Integer multiply and divide"},
	{target.RISCV64, "a", "rva20u64", "Atomic instructions"},
	{target.RISCV64, "f", "rva20u64", "Single-precision floating point"},
	{target.RISCV64, "d", "rva20u64", "Double-precision floating point"},
	{target.RISCV64, "c", "rva20u64", "Compressed instructions"},
	{target.RISCV64, "zba", "rva22u64", "Address generation bit manipulation"},
	{target.RISCV64, "zbb", "rva22u64", "Basic bit manipulation"},
	{target.RISCV64, "zbs", "rva22u64", "Single-bit instructions"},
	{target.RISCV64, "v", "rva23u64", "Vector extension"},
	{target.RISCV64, "zicond", "rva23u64", "Integer conditional operations"},
	{target.RISCV64, "zbc", "", "Carry-less multiplication"},

	// loongarch64
	{target.LoongArch64, "f", "", "Single-precision floating point"},
	{target.LoongArch64, "d", "", "Double-precision floating point"},
	{target.LoongArch64, "lsx", "", "128-bit SIMD"},
	{target.LoongArch64, "lasx", "", "256-bit SIMD"},

	// s390x
	{target.S390X, "vector", "", "Vector facility"},
	{target.S390X, "vector-enhancements-1", "", "Vector enhancements facility 1"},
	{target.S390X, "dfp", "", "Decimal floating point"},
	{target.S390X, "msa", "", "Message security assist"},

	// wasm32
	{target.Wasm32, "sign-ext", "signext", "Sign-extension operators"},
	{target.Wasm32, "nontrapping-fptoint", "satconv", "Saturating float-to-int conversion"},
	{target.Wasm32, "simd128", "", "128-bit packed SIMD"},
}

// levelOrder lists the architecture levels from least to most capable.
// A level guarantees every capability introduced at or below it.
//
// AArch64 is absent: its levels are not totally ordered (see arm64Implies).
// Wasm32 levels name individual capabilities and are not ordered.
var levelOrder = map[target.Architecture][]string{
	target.X86_64:    {"v1", "v2", "v3", "v4"},
	target.X86:       {"softfloat", "sse2"},
	target.ARM:       {"5", "6", "7"},
	target.PowerPC64: {"power8", "power9", "power10"},
	target.RISCV64:   {"rva20u64", "rva22u64", "rva23u64"},
}

// FeatureWarning represents a capability no catalog entry recognizes.
type FeatureWarning struct {
	// Target is the target string that names the capability.
	Target string
	// Feature is the unrecognized capability.
	Feature string
	// Arch is the architecture of the target.
	Arch target.Architecture
}

// String returns a human-readable warning message.
func (w *FeatureWarning) String() string {
	return fmt.Sprintf("feature %q is not known for %s (target %s); it will never be satisfied",
		w.Feature, w.Arch, w.Target)
}

// Known reports whether name is a cataloged capability of arch.
func Known(arch target.Architecture, name string) bool {
	return Lookup(arch, name) != nil
}

// Lookup returns the catalog entry for a capability, or nil if not found.
func Lookup(arch target.Architecture, name string) *Feature {
	for i := range featureRegistry {
		if featureRegistry[i].Arch == arch && featureRegistry[i].Name == name {
			return &featureRegistry[i]
		}
	}
	return nil
}

// ForArchitecture returns all cataloged capabilities of arch in catalog order.
func ForArchitecture(arch target.Architecture) []Feature {
	var result []Feature
	for _, f := range featureRegistry {
		if f.Arch == arch {
			result = append(result, f)
		}
	}
	return result
}

// CheckTarget returns a warning for every capability of t that is not cataloged.
// Returns nil if all capabilities are known.
func CheckTarget(t target.Target) []FeatureWarning {
	var warnings []FeatureWarning
	for _, f := range t.Features() {
		if !Known(t.Architecture(), f) {
			warnings = append(warnings, FeatureWarning{
				Target:  t.String(),
				Feature: f,
				Arch:    t.Architecture(),
			})
		}
	}
	return warnings
}

// Levels returns the ordered levels of arch, or nil if its levels are not ordered.
func Levels(arch target.Architecture) []string {
	return append([]string(nil), levelOrder[arch]...)
}

// IsLevel reports whether level is a recognized level of arch.
func IsLevel(arch target.Architecture, level string) bool {
	switch arch {
	case target.AArch64:
		_, _, ok := parseARM64Level(level)
		return ok
	case target.Wasm32:
		for _, f := range featureRegistry {
			if f.Arch == arch && f.Level == level {
				return true
			}
		}
		return false
	}
	return levelIndex(arch, level) >= 0
}

// Implied returns the capabilities guaranteed by level, in catalog order.
// Returns nil for an unrecognized level.
func Implied(arch target.Architecture, level string) []string {
	if !IsLevel(arch, level) {
		return nil
	}
	var result []string
	for _, f := range featureRegistry {
		if f.Arch == arch && f.Level != "" && implies(arch, level, f.Level) {
			result = append(result, f.Name)
		}
	}
	return result
}

// implies reports whether having level have guarantees level need.
func implies(arch target.Architecture, have, need string) bool {
	switch arch {
	case target.AArch64:
		return arm64Implies(have, need)
	case target.Wasm32:
		return have == need
	}
	h, n := levelIndex(arch, have), levelIndex(arch, need)
	return h >= 0 && n >= 0 && h >= n
}

func levelIndex(arch target.Architecture, level string) int {
	for i, l := range levelOrder[arch] {
		if l == level {
			return i
		}
	}
	return -1
}

// arm64Implies follows the Arm architecture rule that v9.n includes v8.(n+5).
func arm64Implies(have, need string) bool {
	hMajor, hMinor, ok := parseARM64Level(have)
	if !ok {
		return false
	}
	nMajor, nMinor, ok := parseARM64Level(need)
	if !ok {
		return false
	}
	switch {
	case hMajor == nMajor:
		return hMinor >= nMinor
	case hMajor == 9 && nMajor == 8:
		return hMinor+5 >= nMinor
	default:
		return false
	}
}

func parseARM64Level(level string) (major, minor int, ok bool) {
	rest, found := strings.CutPrefix(level, "v")
	if !found {
		return 0, 0, false
	}
	majStr, minStr, found := strings.Cut(rest, ".")
	if !found {
		return 0, 0, false
	}
	major, err := strconv.Atoi(majStr)
	if err != nil {
		return 0, 0, false
	}
	minor, err = strconv.Atoi(minStr)
	if err != nil {
		return 0, 0, false
	}
	switch {
	case major == 8 && minor >= 0 && minor <= 9:
	case major == 9 && minor >= 0 && minor <= 5:
	default:
		return 0, 0, false
	}
	return major, minor, true
}
