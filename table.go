package epochmap

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/llxisdsh/epochmap/internal/opt"
)

// level is one bucket array: the "current" or "next" half of the
// (current, next) pair a growable table keeps during migration.
type level[K comparable, V any, E entryOps[K, V]] struct {
	buckets []bucket[K, V, E]
	mask    uint64
}

func newLevel[K comparable, V any, E entryOps[K, V]](n int) *level[K, V, E] {
	n = nextPow2(n)
	if n < 1 {
		n = 1
	}
	lv := &level[K, V, E]{
		buckets: make([]bucket[K, V, E], n),
		mask:    uint64(n - 1),
	}
	for i := range lv.buckets {
		lv.buckets[i].store(newStableSnapshot[K, V, E](nil))
	}
	return lv
}

func (lv *level[K, V, E]) len() int {
	return int(lv.mask) + 1
}

// table is the growable-table controller: a pair of levels (cur always
// authoritative-or-migrating-from, next non-nil only during migration)
// plus the tunables and collaborators every bucket operation needs,
// held as typed atomic.Pointer fields with CAS-claimed, state-tagged
// bucket migration rather than a per-bucket lock.
type table[K comparable, V any, E entryOps[K, V]] struct {
	_    noCopy
	cur  atomic.Pointer[level[K, V, E]]
	next atomic.Pointer[level[K, V, E]]

	reclaimer *reclaimer
	pairPool  *pool[pair[K, V]]

	hash      hasher[K]
	eq        func(K, K) bool
	newEntry  func(k K, v V, mixedHash uint64, p *pool[pair[K, V]]) E
	threshold int
	spinBound int
	logger    *slog.Logger

	sizeCtr []opt.CounterStripe
	ctrMask uint64
}

func newTable[K comparable, V any, E entryOps[K, V]](
	initialLen int,
	r *reclaimer,
	pairPool *pool[pair[K, V]],
	h hasher[K],
	eq func(K, K) bool,
	newEntry func(K, V, uint64, *pool[pair[K, V]]) E,
	threshold, spinBound int,
	logger *slog.Logger,
) *table[K, V, E] {
	stripes := nextPow2(runtime.GOMAXPROCS(0) * 4)
	t := &table[K, V, E]{
		reclaimer: r,
		pairPool:  pairPool,
		hash:      h,
		eq:        eq,
		newEntry:  newEntry,
		threshold: threshold,
		spinBound: spinBound,
		logger:    logger,
		sizeCtr:   make([]opt.CounterStripe, stripes),
		ctrMask:   uint64(stripes - 1),
	}
	t.cur.Store(newLevel[K, V, E](initialLen))
	return t
}

func (t *table[K, V, E]) addSize(h *Handle, delta int) {
	idx := uint64(h.id) & t.ctrMask
	atomic.AddUintptr(&t.sizeCtr[idx].C, uintptr(delta))
}

// closePool drains this table's pair pool if it was constructed with a
// private (non-shared) reclaimer — draining a pool other Maps still
// share would reclaim memory out from under them.
func (t *table[K, V, E]) closePool() {
	if t.pairPool.clearAtEnd {
		t.pairPool.Clear()
	}
}

// Size returns the approximate population: not linearizable, it may
// reflect concurrent activity from writes in flight during the call.
func (t *table[K, V, E]) Size() int64 {
	var sum uintptr
	for i := range t.sizeCtr {
		sum += atomic.LoadUintptr(&t.sizeCtr[i].C)
	}
	return int64(sum)
}

// EntrySize returns the size in bytes of one stored entry (E), the
// unit MaxSize divides the tagged-pointer address budget by.
func (t *table[K, V, E]) EntrySize() int64 {
	var e E
	return int64(unsafe.Sizeof(e))
}

// resolve walks bucket-word states starting from lv until it lands on a
// Stable bucket, following Forwarded redirects into the next level and
// spinning briefly on Busy ones. Returns the level the bucket was
// finally found in, its index, and the Stable snapshot observed there.
func (t *table[K, V, E]) resolve(lv *level[K, V, E], mixedHash uint64, sp *spinner) (*level[K, V, E], uint64, *bucketSnapshot[K, V, E]) {
	for {
		idx := mixedHash & lv.mask
		b := &lv.buckets[idx]
		snap := b.load()
		switch snap.state {
		case bucketForwarded:
			if nlv := t.next.Load(); nlv != nil {
				lv = nlv
			} else {
				lv = t.cur.Load()
			}
		case bucketBusy:
			sp.wait()
		default:
			return lv, idx, snap
		}
	}
}

func (t *table[K, V, E]) Find(h *Handle, k K) (V, bool) {
	g := t.reclaimer.enter(h)
	defer g.exit()
	mh := t.hash.mixed(k)
	sp := newSpinner(t.spinBound)
	lv := t.cur.Load()
	_, _, snap := t.resolve(lv, mh, &sp)
	return findInList[K, V, E](snap.entries, k, mh, t.eq)
}

func (t *table[K, V, E]) FindFn(h *Handle, k K, proj func(K, V) any) (any, bool) {
	g := t.reclaimer.enter(h)
	defer g.exit()
	mh := t.hash.mixed(k)
	sp := newSpinner(t.spinBound)
	lv := t.cur.Load()
	_, _, snap := t.resolve(lv, mh, &sp)
	i := indexInList[K, V, E](snap.entries, k, mh, t.eq)
	if i < 0 {
		return nil, false
	}
	return proj(k, snap.entries[i].value()), true
}

func (t *table[K, V, E]) Contains(h *Handle, k K) bool {
	_, ok := t.Find(h, k)
	return ok
}

func (t *table[K, V, E]) Insert(h *Handle, k K, v V) (V, bool) {
	g := t.reclaimer.enter(h)
	defer g.exit()
	mh := t.hash.mixed(k)
	sp := newSpinner(t.spinBound)
	lv := t.cur.Load()
	for {
		destLv, idx, snap := t.resolve(lv, mh, &sp)
		lv = destLv
		if prior, ok := findInList[K, V, E](snap.entries, k, mh, t.eq); ok {
			return prior, true
		}
		e := t.newEntry(k, v, mh, t.pairPool)
		newEntries := withAppended(snap.entries, e)
		if lv.buckets[idx].cas(snap, newStableSnapshot[K, V, E](newEntries)) {
			t.addSize(h, 1)
			t.maybeMigrate(h, lv, len(newEntries))
			var zero V
			return zero, false
		}
		e.release(h, t.pairPool)
	}
}

func (t *table[K, V, E]) InsertFn(h *Handle, k K, v V, proj func(K, V) any) (any, bool) {
	g := t.reclaimer.enter(h)
	defer g.exit()
	mh := t.hash.mixed(k)
	sp := newSpinner(t.spinBound)
	lv := t.cur.Load()
	for {
		destLv, idx, snap := t.resolve(lv, mh, &sp)
		lv = destLv
		if i := indexInList[K, V, E](snap.entries, k, mh, t.eq); i >= 0 {
			return proj(k, snap.entries[i].value()), true
		}
		e := t.newEntry(k, v, mh, t.pairPool)
		newEntries := withAppended(snap.entries, e)
		if lv.buckets[idx].cas(snap, newStableSnapshot[K, V, E](newEntries)) {
			t.addSize(h, 1)
			t.maybeMigrate(h, lv, len(newEntries))
			return nil, false
		}
		e.release(h, t.pairPool)
	}
}

// Upsert installs f(prior, hadPrior) for k: f is invoked at least once,
// possibly many times under CAS contention, and only the winning
// invocation's result is observed. Returns the prior value and whether
// one existed.
func (t *table[K, V, E]) Upsert(h *Handle, k K, f func(prior V, hadPrior bool) V) (V, bool) {
	g := t.reclaimer.enter(h)
	defer g.exit()
	mh := t.hash.mixed(k)
	sp := newSpinner(t.spinBound)
	lv := t.cur.Load()
	for {
		destLv, idx, snap := t.resolve(lv, mh, &sp)
		lv = destLv
		if i := indexInList[K, V, E](snap.entries, k, mh, t.eq); i >= 0 {
			prior := snap.entries[i].value()
			e := t.newEntry(k, f(prior, true), mh, t.pairPool)
			newEntries := withReplacedAt(snap.entries, i, e)
			if lv.buckets[idx].cas(snap, newStableSnapshot[K, V, E](newEntries)) {
				snap.entries[i].release(h, t.pairPool)
				return prior, true
			}
			e.release(h, t.pairPool)
			continue
		}
		var zero V
		e := t.newEntry(k, f(zero, false), mh, t.pairPool)
		newEntries := withAppended(snap.entries, e)
		if lv.buckets[idx].cas(snap, newStableSnapshot[K, V, E](newEntries)) {
			t.addSize(h, 1)
			t.maybeMigrate(h, lv, len(newEntries))
			return zero, false
		}
		e.release(h, t.pairPool)
	}
}

func (t *table[K, V, E]) Remove(h *Handle, k K) (V, bool) {
	g := t.reclaimer.enter(h)
	defer g.exit()
	mh := t.hash.mixed(k)
	sp := newSpinner(t.spinBound)
	lv := t.cur.Load()
	for {
		destLv, idx, snap := t.resolve(lv, mh, &sp)
		lv = destLv
		i := indexInList[K, V, E](snap.entries, k, mh, t.eq)
		if i < 0 {
			var zero V
			return zero, false
		}
		removed := snap.entries[i]
		newEntries := withRemovedAt(snap.entries, i)
		if lv.buckets[idx].cas(snap, newStableSnapshot[K, V, E](newEntries)) {
			t.addSize(h, -1)
			v := removed.value()
			removed.release(h, t.pairPool)
			return v, true
		}
	}
}

func (t *table[K, V, E]) RemoveFn(h *Handle, k K, pred func(V) bool) bool {
	g := t.reclaimer.enter(h)
	defer g.exit()
	mh := t.hash.mixed(k)
	sp := newSpinner(t.spinBound)
	lv := t.cur.Load()
	for {
		destLv, idx, snap := t.resolve(lv, mh, &sp)
		lv = destLv
		i := indexInList[K, V, E](snap.entries, k, mh, t.eq)
		if i < 0 {
			return false
		}
		if !pred(snap.entries[i].value()) {
			return false
		}
		removed := snap.entries[i]
		newEntries := withRemovedAt(snap.entries, i)
		if lv.buckets[idx].cas(snap, newStableSnapshot[K, V, E](newEntries)) {
			t.addSize(h, -1)
			removed.release(h, t.pairPool)
			return true
		}
	}
}

// Range applies f to every entry reachable from the current level,
// stopping early if f returns false. Each bucket's list is read as an
// immutable snapshot; the walk as a whole is not a whole-table snapshot.
func (t *table[K, V, E]) Range(h *Handle, f func(K, V) bool) {
	g := t.reclaimer.enter(h)
	defer g.exit()
	lv := t.cur.Load()
	for i := range lv.buckets {
		snap := lv.buckets[i].load()
		if snap.state == bucketForwarded {
			continue // its content is visible via the next level's walk below
		}
		for _, e := range snap.entries {
			if !f(e.key(), e.value()) {
				return
			}
		}
	}
	if nlv := t.next.Load(); nlv != nil {
		for i := range nlv.buckets {
			snap := nlv.buckets[i].load()
			for _, e := range snap.entries {
				if !f(e.key(), e.value()) {
					return
				}
			}
		}
	}
}

func (t *table[K, V, E]) Clear(h *Handle) {
	g := t.reclaimer.enter(h)
	lv := newLevel[K, V, E](defaultTableLen)
	old := t.cur.Swap(lv)
	t.next.Store(nil)
	g.exit()
	for i := range t.sizeCtr {
		atomic.StoreUintptr(&t.sizeCtr[i].C, 0)
	}
	for i := range old.buckets {
		snap := old.buckets[i].load()
		for _, e := range snap.entries {
			e.release(h, t.pairPool)
		}
	}
}

// maybeMigrate checks the load signal after a successful insert: the
// bucket the insert just grew, or the table's approximate load factor,
// crossing the configured thresholds.
func (t *table[K, V, E]) maybeMigrate(h *Handle, lv *level[K, V, E], bucketLen int) {
	if bucketLen <= t.threshold {
		n := lv.len()
		if float64(t.Size())/float64(n) <= defaultLoadFactor {
			return
		}
	}
	t.tryStartMigration(h, lv)
}

// tryStartMigration publishes a new, doubled level as next and drives
// (or joins) the cooperative copy, using a CAS-claimed, state-tagged
// bucket protocol instead of a per-bucket lock.
func (t *table[K, V, E]) tryStartMigration(h *Handle, lv *level[K, V, E]) {
	if t.next.Load() != nil {
		t.helpCopyAndWait(h, lv, t.next.Load())
		return
	}
	newLv := newLevel[K, V, E](lv.len() * migrationGrowthFactor)
	if !t.next.CompareAndSwap(nil, newLv) {
		if nlv := t.next.Load(); nlv != nil {
			t.helpCopyAndWait(h, lv, nlv)
		}
		return
	}
	if t.logger != nil {
		t.logger.Info("migration started", "from", lv.len(), "to", newLv.len())
	}
	t.helpCopyAndWait(h, lv, newLv)
}

// helpCopyAndWait drives the bounded parallel copy of every bucket in
// lv into newLv, then — if it observes the last bucket forwarded —
// performs the cur/next swap and retires the old level. Safe to call
// redundantly from multiple triggering goroutines: each bucket claim is
// arbitrated by its own CAS, so helpers that lose a claim simply move on.
func (t *table[K, V, E]) helpCopyAndWait(h *Handle, lv, newLv *level[K, V, E]) {
	workers := runtime.GOMAXPROCS(0)
	n := lv.len()
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	chunk := (n + workers - 1) / workers

	g, _ := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				t.copyBucket(h, lv, newLv, i)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range lv.buckets {
		if lv.buckets[i].load().state != bucketForwarded {
			return
		}
	}
	if t.cur.CompareAndSwap(lv, newLv) {
		t.next.CompareAndSwap(newLv, nil)
		if t.logger != nil {
			t.logger.Info("migration finished", "size", newLv.len())
		}
	}
}

// copyBucket claims bucket i of lv (CAS Stable -> Busy), rehashes its
// entries into the (exactly two) destination buckets of newLv, and
// publishes Forwarded. Returns false without doing any work if the
// bucket was already claimed or forwarded by a concurrent helper.
func (t *table[K, V, E]) copyBucket(h *Handle, lv, newLv *level[K, V, E], i int) bool {
	b := &lv.buckets[i]
	sp := newSpinner(t.spinBound)
	for {
		snap := b.load()
		switch snap.state {
		case bucketForwarded:
			return false
		case bucketBusy:
			sp.wait()
			continue
		}
		busy := &bucketSnapshot[K, V, E]{state: bucketBusy, entries: snap.entries}
		if !b.cas(snap, busy) {
			continue
		}

		oldLen := uint64(lv.len())
		var loA, loB []E
		for _, e := range snap.entries {
			mh := t.hash.mixed(e.key())
			if mh&oldLen == 0 {
				loA = append(loA, e)
			} else {
				loB = append(loB, e)
			}
		}
		newLv.buckets[uint64(i)].store(newStableSnapshot[K, V, E](loA))
		newLv.buckets[uint64(i)+oldLen].store(newStableSnapshot[K, V, E](loB))

		forwarded := &bucketSnapshot[K, V, E]{state: bucketForwarded}
		b.store(forwarded)
		return true
	}
}
