//go:build epochmap_enable_padding

package opt

import "unsafe"

// CounterStripe with padding force-enabled via -tags=epochmap_enable_padding,
// regardless of GOARCH.
type CounterStripe struct {
	C uintptr
	_ [(CacheLineSize - unsafe.Sizeof(struct {
		C uintptr
	}{})%CacheLineSize) % CacheLineSize]byte
}
