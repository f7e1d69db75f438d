package epochmap

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/epochmap/internal/opt"
)

// epoch is a monotonically increasing counter with "wait for target"
// semantics: advancing it wakes exactly the waiters whose target has
// been met, never the whole set. Advancement is lazy: nothing forces
// the epoch forward on its own, a retiring worker pushes it. Built on a
// ticket-lock-protected waiter list, used here to drive the
// reclamation pool's global epoch and avoid the thundering-herd problem
// a condition variable would have.
type epoch struct {
	_     noCopy
	state atomic.Uint64
	mu    TicketLock
	head  *epochWaiter
	tail  *epochWaiter
}

type epochWaiter struct {
	target uint64
	sema   opt.Sema
	next   *epochWaiter // protected by epoch.mu
}

func (e *epoch) current() uint64 {
	return e.state.Load()
}

// advance bumps the epoch by one and wakes any waiter whose target is
// now satisfied. Returns the new epoch value.
func (e *epoch) advance() uint64 {
	newVal := e.state.Add(1)

	e.mu.Lock()
	var prev *epochWaiter
	curr := e.head
	for curr != nil {
		if curr.target <= newVal {
			curr.sema.Release()
			if prev == nil {
				e.head = curr.next
			} else {
				prev.next = curr.next
			}
			if curr == e.tail {
				e.tail = prev
			}
			curr = curr.next
		} else {
			prev = curr
			curr = curr.next
		}
	}
	e.mu.Unlock()
	return newVal
}

// waitAtLeast blocks until the epoch reaches at least target. Used by
// Clear() to drain the retire queues deterministically rather than
// relying on the next lazy advance.
func (e *epoch) waitAtLeast(target uint64) {
	if e.state.Load() >= target {
		return
	}
	e.mu.Lock()
	if e.state.Load() >= target {
		e.mu.Unlock()
		return
	}
	w := &epochWaiter{target: target}
	if e.tail == nil {
		e.head, e.tail = w, w
	} else {
		e.tail.next = w
		e.tail = w
	}
	e.mu.Unlock()
	w.sema.Acquire()
}

// workerSlotPad rounds workerSlot up to a full cache line so neighboring
// workers' announcements never false-share.
const workerSlotPad = (opt.CacheLineSize - unsafe.Sizeof(atomic.Uint64{})%opt.CacheLineSize) % opt.CacheLineSize

// workerSlot is one worker's announcement: 0 means "not in a critical
// section", any other value is (announced epoch + 1).
type workerSlot struct {
	_         noCopy
	announced atomic.Uint64
	_         [workerSlotPad]byte
}

// reclaimer owns the global epoch and the registry of worker
// announcement slots. One reclaimer may back several typed pools,
// shared process-wide by default or owned by a single table instance;
// Handles are obtained from a reclaimer via getHandle and stay valid
// for the worker's lifetime.
type reclaimer struct {
	_     noCopy
	ep    epoch
	mu    TicketLock
	slots atomic.Pointer[[]*workerSlot]
}

func newReclaimer() *reclaimer {
	r := &reclaimer{}
	empty := make([]*workerSlot, 0)
	r.slots.Store(&empty)
	return r
}

// defaultReclaimer is the process-wide reclaimer used by Map instances
// constructed without WithPrivatePool.
var defaultReclaimer = newReclaimer()

// getHandle registers a new stable worker identity. Cheap but not free:
// intended to be called once per worker (goroutine, thread-pool slot),
// not per operation.
func (r *reclaimer) getHandle() *Handle {
	r.mu.Lock()
	old := *r.slots.Load()
	grown := make([]*workerSlot, len(old)+1)
	copy(grown, old)
	grown[len(old)] = &workerSlot{}
	id := len(old)
	r.slots.Store(&grown)
	r.mu.Unlock()
	return &Handle{r: r, id: id}
}

// enter announces h as active at the current epoch. Every operation on
// a Map is performed under this critical section; enter must be paired
// with guard.exit.
func (r *reclaimer) enter(h *Handle) guard {
	e := r.ep.current()
	(*r.slots.Load())[h.id].announced.Store(e + 1)
	return guard{h: h}
}

// minAnnounced returns the lowest epoch any currently-active worker
// announced, or the maximum uint64 value if none are active.
func (r *reclaimer) minAnnounced() uint64 {
	slots := *r.slots.Load()
	min := ^uint64(0)
	for _, s := range slots {
		a := s.announced.Load()
		if a != 0 && a-1 < min {
			min = a - 1
		}
	}
	return min
}

// guard is a scoped acquisition: callers enter before touching
// table-managed memory and exit when done. Not safe to use from more
// than one goroutine, and must not outlive the call that produced it.
type guard struct {
	_ noCopy
	h *Handle
}

func (g *guard) exit() {
	(*g.h.r.slots.Load())[g.h.id].announced.Store(0)
}

// Handle is a worker-scoped accessor, an explicit alternative to
// implicit per-goroutine registration. Obtain one per worker via
// Map.GetHandle and reuse it for that worker's lifetime; a Handle must
// not be shared across goroutines.
type Handle struct {
	_  noCopy
	r  *reclaimer
	id int
}

// retiredItem pairs a retired object with the epoch it was retired at.
type retiredItem[T any] struct {
	at  uint64
	obj *T
}

type retireQueue[T any] struct {
	_     noCopy
	mu    TicketLock
	items []retiredItem[T]
}

// pool is the per-type epoch reclamation pool: it hands out heap cells
// via allocate and defers their reuse via retire until no worker could
// still hold a reference obtained before the retirement. Built on the
// same Epoch/TicketLock primitives as the rest of the package,
// generalized from a phase barrier into a full allocate/retire/advance
// pool.
type pool[T any] struct {
	_            noCopy
	r            *reclaimer
	mu           TicketLock
	queues       []*retireQueue[T]
	free         sync.Pool
	clearAtEnd   bool
	opsSinceScan atomic.Uint64
	liveCount    atomic.Int64
	retiredCount atomic.Int64
	freedCount   atomic.Int64
}

// retireAdvanceInterval bounds how often a busy retirer attempts to
// advance the epoch and reclaim memory: a worker that has issued many
// retires periodically attempts an advance rather than waiting for
// someone else to push the epoch forward.
const retireAdvanceInterval = 64

func newPool[T any](r *reclaimer, clearAtEnd bool) *pool[T] {
	return &pool[T]{r: r, clearAtEnd: clearAtEnd}
}

// allocate returns a T cell, preferring a freed/recycled one. Allocation
// failure (an OOM from the runtime allocator) is not recoverable in Go
// and is left to panic naturally; there is no partial-publish state to
// unwind.
func (p *pool[T]) allocate() *T {
	if v, ok := p.free.Get().(*T); ok {
		p.liveCount.Add(1)
		return v
	}
	p.liveCount.Add(1)
	return new(T)
}

func (p *pool[T]) queueFor(h *Handle) *retireQueue[T] {
	p.mu.Lock()
	for len(p.queues) <= h.id {
		p.queues = append(p.queues, &retireQueue[T]{})
	}
	q := p.queues[h.id]
	p.mu.Unlock()
	return q
}

// retire schedules obj for reuse once every worker that might have
// observed it has exited its critical section. Retirement itself never
// fails.
func (p *pool[T]) retire(h *Handle, obj *T) {
	q := p.queueFor(h)
	at := p.r.ep.current()
	q.mu.Lock()
	q.items = append(q.items, retiredItem[T]{at: at, obj: obj})
	q.mu.Unlock()
	p.retiredCount.Add(1)

	if p.opsSinceScan.Add(1)%retireAdvanceInterval == 0 {
		p.tryAdvance()
	}
}

// tryAdvance bumps the global epoch and frees every retired object that
// (a) no currently-active worker could still reference, because its
// retirement happened before the minimum announced epoch, and (b) has
// survived at least defaultRetireLag epoch advances past its own
// retirement.
func (p *pool[T]) tryAdvance() {
	minA := p.r.minAnnounced()
	newEpoch := p.r.ep.advance()

	p.mu.Lock()
	queues := p.queues
	p.mu.Unlock()

	for _, q := range queues {
		q.mu.Lock()
		i := 0
		for ; i < len(q.items); i++ {
			it := q.items[i]
			if newEpoch < it.at+defaultRetireLag {
				break
			}
			if it.at >= minA {
				break
			}
			p.free.Put(it.obj)
			p.freedCount.Add(1)
			p.liveCount.Add(-1)
		}
		if i > 0 {
			remaining := make([]retiredItem[T], len(q.items)-i)
			copy(remaining, q.items[i:])
			q.items = remaining
		}
		q.mu.Unlock()
	}
}

// Clear advances the epoch defaultRetireLag+1 times itself and then
// drains every retire queue unconditionally. It does not read the
// worker announcements, so a critical section still active on this
// pool's reclaimer is not waited for. Used by Map.Close for private
// (WithPrivatePool) pools.
func (p *pool[T]) Clear() {
	target := p.r.ep.current() + defaultRetireLag + 1
	for p.r.ep.current() < target {
		p.r.ep.advance()
	}
	p.r.ep.waitAtLeast(target)

	p.mu.Lock()
	queues := p.queues
	p.mu.Unlock()
	for _, q := range queues {
		q.mu.Lock()
		for _, it := range q.items {
			p.free.Put(it.obj)
			p.freedCount.Add(1)
			p.liveCount.Add(-1)
		}
		q.items = nil
		q.mu.Unlock()
	}
}

// Stats reports live/retired/freed object counts: allocator-adjacent
// instrumentation useful for verifying that reclamation is keeping up
// with retirement.
type Stats struct {
	Live    int64
	Retired int64
	Freed   int64
}

func (p *pool[T]) Stats() Stats {
	return Stats{
		Live:    p.liveCount.Load(),
		Retired: p.retiredCount.Load(),
		Freed:   p.freedCount.Load(),
	}
}
