//go:build race

package opt

import "sync"

// Sema is a channel-backed semaphore, zero-value usable. The
// runtime-linkname fast path in race_off.go is invisible to the race
// detector's happens-before graph, so under -race we fall back to a real
// channel; sync.Once makes the lazy channel creation itself race-free.
type Sema struct {
	once sync.Once
	ch   chan struct{}
}

func (s *Sema) init() {
	s.once.Do(func() { s.ch = make(chan struct{}, 1) })
}

func (s *Sema) Acquire() {
	s.init()
	<-s.ch
}

func (s *Sema) Release() {
	s.init()
	s.ch <- struct{}{}
}
