package epochmap

import "unsafe"

// pair is the heap-allocated payload for an indirect entry.
type pair[K comparable, V any] struct {
	Key   K
	Value V
}

// entryOps is the static-dispatch interface both entry representations
// satisfy. The bucket engine is generic over E entryOps[K,V], so the
// direct/indirect choice is resolved at compile time and the hot path
// carries no runtime branch on representation.
type entryOps[K comparable, V any] interface {
	// key returns the entry's key without touching the epoch pool.
	key() K
	// value returns the entry's value, dereferencing for indirect entries.
	value() V
	// probe reports whether this entry's key equals k, using mixedHash
	// as a cheap pre-filter for indirect entries (tag compare before
	// dereference) and a direct compare for direct entries.
	probe(k K, mixedHash uint64, eq func(K, K) bool) bool
	// release schedules any heap allocation this entry owns for epoch
	// reclamation. A no-op for direct entries, which own nothing beyond
	// the entry value itself.
	release(h *Handle, p *pool[pair[K, V]])
}

// directEntry stores the key/value pair inline, trading an allocation
// for a pointer chase. Selected by preferDirect when K and V are small
// and trivially copyable.
type directEntry[K comparable, V any] struct {
	k K
	v V
}

func makeDirectEntry[K comparable, V any](k K, v V, _ uint64) directEntry[K, V] {
	return directEntry[K, V]{k: k, v: v}
}

func (e directEntry[K, V]) key() K   { return e.k }
func (e directEntry[K, V]) value() V { return e.v }

func (e directEntry[K, V]) probe(k K, _ uint64, eq func(K, K) bool) bool {
	return eq(e.k, k)
}

func (directEntry[K, V]) release(*Handle, *pool[pair[K, V]]) {}

// indirectEntry holds a tag plus a pointer to a heap pair allocated from
// the epoch pool. A tag folded into the high bits of the pointer word
// itself would be cheaper to compare but Go's precise garbage collector
// cannot tolerate bits folded into a live pointer on any architecture,
// so the tag is instead an adjacent field. The probe still compares the
// tag before dereferencing ptr, giving a cheap filter before dereference.
type indirectEntry[K comparable, V any] struct {
	tag uint16
	ptr *pair[K, V]
}

// tagOf extracts the top 16 bits of a mixed hash for use as an indirect
// entry's tag.
func tagOf(mixedHash uint64) uint16 {
	return uint16(mixedHash >> 48)
}

func makeIndirectEntry[K comparable, V any](k K, v V, mixedHash uint64, p *pool[pair[K, V]]) indirectEntry[K, V] {
	ptr := p.allocate()
	ptr.Key, ptr.Value = k, v
	return indirectEntry[K, V]{tag: tagOf(mixedHash), ptr: ptr}
}

func (e indirectEntry[K, V]) key() K   { return e.ptr.Key }
func (e indirectEntry[K, V]) value() V { return e.ptr.Value }

func (e indirectEntry[K, V]) probe(k K, mixedHash uint64, eq func(K, K) bool) bool {
	if e.tag != tagOf(mixedHash) {
		return false
	}
	return eq(e.ptr.Key, k)
}

// release retires the heap pair backing this entry; safe to call only
// once a replacement or removal has already been published, since the
// pool will not reuse the pair until no active reader could still be
// walking the list this entry came from.
func (e indirectEntry[K, V]) release(h *Handle, p *pool[pair[K, V]]) {
	p.retire(h, e.ptr)
}

// trivialSizeLimit is the "small enough" threshold: pairs of at most two
// machine words prefer direct storage; larger pairs prefer indirect,
// trading an allocation for a stable, non-moving address and a
// tagged-pointer probe.
const trivialSizeLimit = 2 * unsafe.Sizeof(uintptr(0))

// preferDirect reports whether the (K,V) pair should use direct (inline)
// storage: both types must be free of pointers (so a bucket-list
// reallocation can memcopy the pair without involving the GC write
// barrier or invalidating pointers held elsewhere) and the combined pair
// must fit the trivial size limit.
func preferDirect[K comparable, V any]() bool {
	var k K
	var v V
	return !containsPointer[K]() && !containsPointer[V]() &&
		unsafe.Sizeof(k)+unsafe.Sizeof(v) <= trivialSizeLimit
}

// containsPointer reports whether T's zero value, laid out in memory,
// could contain a pointer the garbage collector must track. This is a
// conservative, compile-time-folded approximation (checked against the
// common scalar kinds); anything not recognized as pointer-free is
// treated as containing a pointer, which only ever pushes a borderline
// type toward the (always-correct) indirect representation.
func containsPointer[T any]() bool {
	switch any(*new(T)).(type) {
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64, complex64, complex128:
		return false
	default:
		return true
	}
}
