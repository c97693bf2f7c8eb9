// Package dispatch turns a validated target list into a dispatch plan.
//
// A plan answers, for one multiversioned function, which variants exist, in
// which order they are tried, and when the choice is made.
//
// # Priority Order
//
// Targets are ordered by specificity (number of required capabilities)
// descending. Targets of equal specificity keep their declaration order. The
// baseline implementation is implicit and always tried last:
//
//	targets = ["x86_64+sse4.2", "x86_64+avx2+fma", "aarch64+neon"]
//
//	1. Sum_x86_64_avx2_fma
//	2. Sum_x86_64_sse4_2
//	3. Sum_aarch64_neon
//	-  Sum (baseline)
//
// # Methods
//
// [Static] resolves the variant at build time from a [Config]. It is only
// legal when the configuration decides every target: either all required
// capabilities are guaranteed present, or one of them is guaranteed absent.
// The plan then keeps a single variant, the first guaranteed to hold, or none
// when the baseline wins.
//
// [Direct] walks the priority order on every call and caches nothing.
//
// [Indirect] walks the priority order once per process and calls through the
// cached selection afterwards.
//
// [Default] picks Static when it is legal. Otherwise it picks Direct when
// indirect-branch hardening makes calls through a function value expensive,
// and Indirect when it does not.
//
// # Build Configuration
//
// [ConfigFromEnv] derives a [Config] the way the Go toolchain sees the build:
// GOARCH selects the architecture, the level variable of that GOARCH (GOAMD64,
// GO386, GOARM, GOARM64, GOPPC64, GORISCV64, GOWASM) selects the capabilities
// guaranteed present, and GOFLAGS carrying -gcflags=-spectre=ret (or all)
// turns on indirect-branch hardening.
package dispatch
