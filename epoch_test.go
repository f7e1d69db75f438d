package epochmap

import (
	"sync"
	"testing"
	"time"
)

func TestEpochWaitAndAdvance(t *testing.T) {
	var e epoch
	done := make(chan struct{})
	go func() {
		e.waitAtLeast(1)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	if e.current() != 0 {
		t.Fatalf("unexpected current before advance: %d", e.current())
	}
	e.advance()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("waitAtLeast did not return after advance")
	}
	if e.current() != 1 {
		t.Fatalf("current = %d, want 1", e.current())
	}
}

func TestEpochMultipleWaiters(t *testing.T) {
	var e epoch
	const waiters = 10
	var wg sync.WaitGroup
	wg.Add(waiters)
	for range waiters {
		go func() {
			defer wg.Done()
			e.waitAtLeast(3)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	if e.current() != 0 {
		t.Fatalf("unexpected current before advances: %d", e.current())
	}
	e.advance()
	e.advance()
	time.Sleep(10 * time.Millisecond)
	if e.current() != 2 {
		t.Fatalf("current = %d, want 2", e.current())
	}
	e.advance()
	wg.Wait()
	if e.current() != 3 {
		t.Fatalf("current = %d, want 3", e.current())
	}
}

func TestReclaimerMinAnnounced(t *testing.T) {
	r := newReclaimer()
	h1 := r.getHandle()
	h2 := r.getHandle()

	if got := r.minAnnounced(); got != ^uint64(0) {
		t.Fatalf("minAnnounced with no active guards = %d, want max", got)
	}

	g1 := r.enter(h1)
	if got := r.minAnnounced(); got != r.ep.current() {
		t.Fatalf("minAnnounced = %d, want %d", got, r.ep.current())
	}

	r.ep.advance()
	g2 := r.enter(h2)
	if got := r.minAnnounced(); got != 0 {
		t.Fatalf("minAnnounced = %d, want 0 (h1's older announcement)", got)
	}

	g1.exit()
	g2.exit()
	if got := r.minAnnounced(); got != ^uint64(0) {
		t.Fatalf("minAnnounced after exit = %d, want max", got)
	}
}

func TestPoolRetireAndReclaim(t *testing.T) {
	r := newReclaimer()
	p := newPool[int](r, false)
	h := r.getHandle()

	obj := p.allocate()
	*obj = 42
	p.retire(h, obj)

	stats := p.Stats()
	if stats.Live != 1 || stats.Retired != 1 || stats.Freed != 0 {
		t.Fatalf("stats after retire = %+v", stats)
	}

	p.Clear()
	stats = p.Stats()
	if stats.Live != 0 || stats.Freed != 1 {
		t.Fatalf("stats after Clear = %+v, want live=0 freed=1", stats)
	}
}

func TestPoolTryAdvanceRespectsAnnouncedReaders(t *testing.T) {
	r := newReclaimer()
	p := newPool[int](r, false)
	writer := r.getHandle()
	reader := r.getHandle()

	g := r.enter(reader)
	obj := p.allocate()
	p.retire(writer, obj)

	for i := 0; i < defaultRetireLag+2; i++ {
		p.tryAdvance()
	}
	if stats := p.Stats(); stats.Freed != 0 {
		t.Fatalf("object freed while reader still announced: %+v", stats)
	}

	g.exit()
	for i := 0; i < defaultRetireLag+2; i++ {
		p.tryAdvance()
	}
	if stats := p.Stats(); stats.Freed != 1 {
		t.Fatalf("object not freed after reader exited: %+v", stats)
	}
}
