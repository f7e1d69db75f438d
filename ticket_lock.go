package epochmap

import (
	"sync/atomic"
)

// TicketLock is a fair, FIFO spin-lock guarding the epoch pool's short
// internal critical sections (the waiter list in epoch.go, the retire
// queues in the typed pool). Unlike sync.Mutex, which allows newcomers
// to "barge" ahead of an already-waiting goroutine, TicketLock serves
// callers in the exact order they called Lock() — the fairness the
// pool's bounded critical sections are built to exploit rather than
// strictly require.
//
// It uses the classic ticket algorithm: Lock() takes a ticket number and
// spins/sleeps until `serving` reaches it; Unlock() advances `serving`,
// releasing the next ticket holder.
type TicketLock struct {
	_       noCopy
	next    atomic.Uint32
	serving atomic.Uint32
}

// Lock acquires the lock. Blocks until the lock is available.
func (m *TicketLock) Lock() {
	my := m.next.Add(1) - 1
	sp := newSpinner(defaultSpinBound)
	for {
		if m.serving.Load() == my {
			return
		}
		sp.wait()
	}
}

// Unlock releases the lock.
func (m *TicketLock) Unlock() {
	m.serving.Add(1)
}
