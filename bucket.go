package epochmap

import "sync/atomic"

// bucketState is a three-state tag on a bucket's contents: Stable,
// Busy (claimed for migration copy), or Forwarded (its content already
// lives in the next table). Go's precise garbage collector forbids
// folding a state tag into the low bits of a live *bucketSnapshot
// pointer (the same reasoning that keeps the indirect-entry tag in
// entry.go an adjacent field rather than folded bits), so the state
// instead lives inside the immutable snapshot the bucket word points
// at: swapping state is just another CAS of the bucket's pointer to a
// new snapshot value.
type bucketState uint8

const (
	bucketStable bucketState = iota
	bucketBusy
	bucketForwarded
)

// bucketSnapshot is the immutable value a bucket word points to. A
// Stable snapshot carries the bucket's current entry list; Busy freezes
// the last Stable list for the claimant's exclusive use during
// migration, and Forwarded means the content already lives in the next
// table, addressable without consulting this bucket again.
type bucketSnapshot[K comparable, V any, E entryOps[K, V]] struct {
	state   bucketState
	entries []E
}

func newStableSnapshot[K comparable, V any, E entryOps[K, V]](entries []E) *bucketSnapshot[K, V, E] {
	return &bucketSnapshot[K, V, E]{state: bucketStable, entries: entries}
}

// bucket is a fixed slot in a table level, published and observed
// entirely through CAS/load on the snapshot pointer it holds. Grounded
// on synx's bucket struct (map.go: `meta uint64` + inline entry slots +
// `next`), replacing its per-bucket spinlock with a CAS-immutable-list
// discipline: writers never mutate a bucket's list in place, they
// publish a whole new one.
type bucket[K comparable, V any, E entryOps[K, V]] struct {
	snap atomic.Pointer[bucketSnapshot[K, V, E]]
}

func (b *bucket[K, V, E]) load() *bucketSnapshot[K, V, E] {
	return b.snap.Load()
}

func (b *bucket[K, V, E]) store(s *bucketSnapshot[K, V, E]) {
	b.snap.Store(s)
}

func (b *bucket[K, V, E]) cas(old, new *bucketSnapshot[K, V, E]) bool {
	return b.snap.CompareAndSwap(old, new)
}

// findInList returns the value bound to k in entries and whether it was
// found, using mixedHash as the indirect-entry tag pre-filter.
func findInList[K comparable, V any, E entryOps[K, V]](entries []E, k K, mixedHash uint64, eq func(K, K) bool) (V, bool) {
	for _, e := range entries {
		if e.probe(k, mixedHash, eq) {
			return e.value(), true
		}
	}
	var zero V
	return zero, false
}

// indexInList returns the index of the entry matching k, or -1.
func indexInList[K comparable, V any, E entryOps[K, V]](entries []E, k K, mixedHash uint64, eq func(K, K) bool) int {
	for i, e := range entries {
		if e.probe(k, mixedHash, eq) {
			return i
		}
	}
	return -1
}

// withAppended returns a new slice equal to entries with e appended.
// The old backing array is left untouched, since someone else may still
// be reading it.
func withAppended[E any](entries []E, e E) []E {
	out := make([]E, len(entries)+1)
	copy(out, entries)
	out[len(entries)] = e
	return out
}

// withReplacedAt returns a new slice equal to entries with the entry at
// index i replaced by e.
func withReplacedAt[E any](entries []E, i int, e E) []E {
	out := make([]E, len(entries))
	copy(out, entries)
	out[i] = e
	return out
}

// withRemovedAt returns a new slice equal to entries with the entry at
// index i removed.
func withRemovedAt[E any](entries []E, i int) []E {
	out := make([]E, len(entries)-1)
	copy(out, entries[:i])
	copy(out[i:], entries[i+1:])
	return out
}
