package epochmap

import (
	"iter"
	"sync"
)

// mapEngine is the K,V-only facade both entry-representation
// instantiations of table[K,V,E] satisfy. Map holds exactly one
// mapEngine, chosen once at construction by preferDirect, so the hot
// path inside a single table[K,V,E] instantiation stays monomorphized
// (no E-level branch) while Map itself pays for representation choice
// with a single interface hop per public call, not per bucket-list scan.
type mapEngine[K comparable, V any] interface {
	Find(h *Handle, k K) (V, bool)
	FindFn(h *Handle, k K, proj func(K, V) any) (any, bool)
	Contains(h *Handle, k K) bool
	Insert(h *Handle, k K, v V) (V, bool)
	InsertFn(h *Handle, k K, v V, proj func(K, V) any) (any, bool)
	Upsert(h *Handle, k K, f func(prior V, hadPrior bool) V) (V, bool)
	Remove(h *Handle, k K) (V, bool)
	RemoveFn(h *Handle, k K, pred func(V) bool) bool
	Range(h *Handle, f func(K, V) bool)
	Clear(h *Handle)
	Size() int64
	EntrySize() int64
}

// Map is a concurrent, growable, unordered associative container:
// lock-free finds, CAS-retried writes, epoch-reclaimed memory, and
// cooperative background migration. The zero value is not usable;
// construct with NewMap.
type Map[K comparable, V any] struct {
	engine    mapEngine[K, V]
	reclaimer *reclaimer
	handles   sync.Pool
}

// NewMap constructs a Map ready for concurrent use, applying any
// supplied Options over the package defaults (constants.go).
func NewMap[K comparable, V any](opts ...Option[K, V]) *Map[K, V] {
	cfg := defaultConfig[K, V]()
	for _, opt := range opts {
		opt(&cfg)
	}

	h := defaultHasher[K]()
	if cfg.hash != nil {
		h = hasher[K]{hash: cfg.hash, avalanching: cfg.avalanching}
	}

	r := defaultReclaimer
	if cfg.privatePool {
		r = newReclaimer()
	}
	pairPool := newPool[pair[K, V]](r, cfg.privatePool)

	direct := preferDirect[K, V]()
	if cfg.forceDirect {
		direct = true
	} else if cfg.forceIndirect {
		direct = false
	}

	m := &Map[K, V]{reclaimer: r}
	if direct {
		m.engine = newTable[K, V, directEntry[K, V]](
			cfg.initialCapacity, r, pairPool, h, equalFn[K](), makeDirectEntryAny[K, V],
			cfg.threshold, cfg.spinBound, cfg.logger,
		)
	} else {
		m.engine = newTable[K, V, indirectEntry[K, V]](
			cfg.initialCapacity, r, pairPool, h, equalFn[K](), makeIndirectEntry[K, V],
			cfg.threshold, cfg.spinBound, cfg.logger,
		)
	}
	m.handles.New = func() any { return r.getHandle() }
	return m
}

// makeDirectEntryAny adapts makeDirectEntry's signature (which ignores
// the pool argument) to the newEntry shape table.go expects, so both
// representations can share one constructor field type.
func makeDirectEntryAny[K comparable, V any](k K, v V, mh uint64, _ *pool[pair[K, V]]) directEntry[K, V] {
	return makeDirectEntry[K, V](k, v, mh)
}

func equalFn[K comparable]() func(K, K) bool {
	return func(a, b K) bool { return a == b }
}

// bind borrows a Handle from the pool for the duration of a single
// public call. Handles are stateless between calls (the worker slot
// they name is only "announced" inside reclaimer.enter/guard.exit), so
// pooling them is safe as long as each borrowed Handle is used by one
// goroutine at a time, which sync.Pool's checkout discipline guarantees.
func (m *Map[K, V]) bind() (*Handle, func()) {
	h := m.handles.Get().(*Handle)
	return h, func() { m.handles.Put(h) }
}

// Find returns the value bound to k and whether it was present.
func (m *Map[K, V]) Find(k K) (V, bool) {
	h, done := m.bind()
	defer done()
	return m.engine.Find(h, k)
}

// FindFn projects the entry for k through proj without copying the full
// value out for callers who only need a derived field.
func (m *Map[K, V]) FindFn(k K, proj func(K, V) any) (any, bool) {
	h, done := m.bind()
	defer done()
	return m.engine.FindFn(h, k, proj)
}

// Contains reports whether k is present.
func (m *Map[K, V]) Contains(k K) bool {
	h, done := m.bind()
	defer done()
	return m.engine.Contains(h, k)
}

// Insert adds k/v if k is absent, returning the existing value and true
// if it was already present (in which case v is discarded).
func (m *Map[K, V]) Insert(k K, v V) (V, bool) {
	h, done := m.bind()
	defer done()
	return m.engine.Insert(h, k, v)
}

// InsertFn is like Insert but projects the existing value through proj
// when k was already present, instead of returning it raw.
func (m *Map[K, V]) InsertFn(k K, v V, proj func(K, V) any) (any, bool) {
	h, done := m.bind()
	defer done()
	return m.engine.InsertFn(h, k, v, proj)
}

// Upsert installs f(prior, hadPrior) as the value for k, where prior is
// the current value (zero if absent) and hadPrior reports whether one
// existed. f may run more than once under contention; only the
// winning invocation's result is ever published. Returns the prior
// value and whether it existed.
func (m *Map[K, V]) Upsert(k K, f func(prior V, hadPrior bool) V) (V, bool) {
	h, done := m.bind()
	defer done()
	return m.engine.Upsert(h, k, f)
}

// Remove deletes k if present, returning its value and true.
func (m *Map[K, V]) Remove(k K) (V, bool) {
	h, done := m.bind()
	defer done()
	return m.engine.Remove(h, k)
}

// RemoveFn deletes k only if pred(currentValue) returns true, reporting
// whether a deletion occurred.
func (m *Map[K, V]) RemoveFn(k K, pred func(V) bool) bool {
	h, done := m.bind()
	defer done()
	return m.engine.RemoveFn(h, k, pred)
}

// Range calls f for every entry, stopping early if f returns false. Not
// a whole-table snapshot: entries inserted or removed concurrently with
// the walk may or may not be observed.
func (m *Map[K, V]) Range(f func(K, V) bool) {
	h, done := m.bind()
	defer done()
	m.engine.Range(h, f)
}

// All returns an iter.Seq2 over the map's entries, for use with range-over-func.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.Range(yield)
	}
}

// Entry is a public key/value snapshot pair, returned by Entries.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Entries returns a slice of the entries observed by one Range walk;
// like Range, it is not a whole-table snapshot.
func (m *Map[K, V]) Entries() []Entry[K, V] {
	var out []Entry[K, V]
	m.Range(func(k K, v V) bool {
		out = append(out, Entry[K, V]{Key: k, Value: v})
		return true
	})
	return out
}

// Size returns the approximate population; concurrent with in-flight
// writes, this count is not linearizable.
func (m *Map[K, V]) Size() int64 {
	return m.engine.Size()
}

// Count reports whether k is present, as 1 or 0 — a trivial wrapper
// over Contains for drop-in familiarity with count-by-key APIs.
func (m *Map[K, V]) Count(k K) int64 {
	if m.Contains(k) {
		return 1
	}
	return 0
}

// MaxSize returns the largest population this Map's entry
// representation can address: the 48-bit tagged-pointer budget divided
// by the size in bytes of one stored entry. It is a pure constant of
// K, V, and the chosen direct/indirect representation, not a live
// capacity check.
func (m *Map[K, V]) MaxSize() int64 {
	return (int64(1) << 47) / m.engine.EntrySize()
}

// Clear removes every entry, replacing the table with a fresh one of
// defaultTableLen buckets and retiring the old contents through the
// epoch pool.
func (m *Map[K, V]) Clear() {
	h, done := m.bind()
	defer done()
	m.engine.Clear(h)
}

// Close releases resources held by a Map constructed with
// WithPrivatePool; it is a no-op for the default, shared-pool Map since
// draining a pool other Maps still reference would be unsafe.
func (m *Map[K, V]) Close() {
	if c, ok := m.engine.(interface{ closePool() }); ok {
		c.closePool()
	}
}

// GetHandle returns a dedicated Handle for a goroutine that will issue
// many consecutive operations, avoiding the per-call pool round trip.
// The returned Handle is worker-scoped: it must not be used from more
// than one goroutine at a time.
func (m *Map[K, V]) GetHandle() *Handle {
	return m.reclaimer.getHandle()
}

// FindWithHandle, InsertWithHandle, etc. are identical to the no-handle
// methods above but take an explicit *Handle obtained from GetHandle,
// skipping the sync.Pool round trip.
func (m *Map[K, V]) FindWithHandle(h *Handle, k K) (V, bool)   { return m.engine.Find(h, k) }
func (m *Map[K, V]) InsertWithHandle(h *Handle, k K, v V) (V, bool) {
	return m.engine.Insert(h, k, v)
}
func (m *Map[K, V]) UpsertWithHandle(h *Handle, k K, f func(V, bool) V) (V, bool) {
	return m.engine.Upsert(h, k, f)
}
func (m *Map[K, V]) RemoveWithHandle(h *Handle, k K) (V, bool) { return m.engine.Remove(h, k) }
