package epochmap

import (
	"github.com/dolthub/maphash"
	"golang.org/x/exp/constraints"
)

// mixConstant and the shift below implement a 64-bit odd multiplier
// (linear transform) followed by a high-bit xor-shift (non-linear
// transform).
const mixConstant uint64 = 0xbf58476d1ce4e5b9

// mix applies a fixed post-hash bijection to any hash functor that does
// not declare itself avalanching.
func mix(h uint64) uint64 {
	h *= mixConstant
	return h ^ (h >> 31)
}

// hasher bundles a key-hash function with a capability flag: avalanching
// hashers (e.g. a byte-mixing string hash) skip the post-mix entirely.
type hasher[K comparable] struct {
	hash        func(K) uint64
	avalanching bool
}

// mixed returns the mixed hash for k: the raw hash unless the hasher is
// non-avalanching, in which case the fixed bijection is applied.
func (h hasher[K]) mixed(k K) uint64 {
	v := h.hash(k)
	if h.avalanching {
		return v
	}
	return mix(v)
}

// fastIntHash converts any constraints.Integer value to its uint64
// hash in one zero-allocation widening/truncating conversion, shared by
// every integer case defaultHasher dispatches to below.
func fastIntHash[T constraints.Integer](v T) uint64 {
	return uint64(v)
}

// defaultHasher picks a built-in hasher for K. Fixed-width integer keys
// get the identity function, which is why it is marked non-avalanching:
// without the post-mix, sequential integer keys would collide by
// bucket-index modulo. Every other comparable type falls back to
// github.com/dolthub/maphash, a byte-mixing hash that is avalanching by
// construction.
func defaultHasher[K comparable]() hasher[K] {
	switch any(*new(K)).(type) {
	case int:
		return hasher[K]{hash: func(k K) uint64 { return fastIntHash(any(k).(int)) }}
	case int8:
		return hasher[K]{hash: func(k K) uint64 { return fastIntHash(any(k).(int8)) }}
	case int16:
		return hasher[K]{hash: func(k K) uint64 { return fastIntHash(any(k).(int16)) }}
	case int32:
		return hasher[K]{hash: func(k K) uint64 { return fastIntHash(any(k).(int32)) }}
	case int64:
		return hasher[K]{hash: func(k K) uint64 { return fastIntHash(any(k).(int64)) }}
	case uint:
		return hasher[K]{hash: func(k K) uint64 { return fastIntHash(any(k).(uint)) }}
	case uint8:
		return hasher[K]{hash: func(k K) uint64 { return fastIntHash(any(k).(uint8)) }}
	case uint16:
		return hasher[K]{hash: func(k K) uint64 { return fastIntHash(any(k).(uint16)) }}
	case uint32:
		return hasher[K]{hash: func(k K) uint64 { return fastIntHash(any(k).(uint32)) }}
	case uint64:
		return hasher[K]{hash: func(k K) uint64 { return fastIntHash(any(k).(uint64)) }}
	case uintptr:
		return hasher[K]{hash: func(k K) uint64 { return fastIntHash(any(k).(uintptr)) }}
	default:
		h := maphash.NewHasher[K]()
		return hasher[K]{hash: h.Hash, avalanching: true}
	}
}
