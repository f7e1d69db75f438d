//go:build !race

package opt

import (
	_ "unsafe" // for go:linkname
)

// Sema is a zero-allocation semaphore used by the epoch pool's
// WaitAtLeast waiters. Outside the race detector it links directly into
// the runtime semaphore used by sync.Mutex, avoiding a channel allocation
// per waiter.
type Sema uint32

func (s *Sema) Acquire() {
	runtime_semacquire((*uint32)(s))
}

func (s *Sema) Release() {
	runtime_semrelease((*uint32)(s), false, 0)
}

//go:linkname runtime_semacquire sync.runtime_Semacquire
func runtime_semacquire(s *uint32)

//go:linkname runtime_semrelease sync.runtime_Semrelease
func runtime_semrelease(s *uint32, handoff bool, skipframes int)
