//go:build !(amd64 || 386 || arm || mips || mipsle || wasm) && !epochmap_disable_padding && !epochmap_enable_padding

package opt

import "unsafe"

// CounterStripe is padded to a full cache line on architectures where
// false sharing between neighboring worker slots is costlier: arm64,
// s390x, ppc64, ppc64le, riscv64, loong64, mips64, mips64le, etc.
type CounterStripe struct {
	C uintptr
	_ [(CacheLineSize - unsafe.Sizeof(struct {
		C uintptr
	}{})%CacheLineSize) % CacheLineSize]byte
}
