package epochmap

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// OnceGroupResult holds the results of Do, so they can be passed on a channel.
type OnceGroupResult[V any] struct {
	Val    V
	Err    error
	Shared bool
}

// call represents an in-flight or completed OnceGroup.Do call. mu guards
// the fields duplicate joiners and the primary both touch after the
// call is published in the map (dups, chans, completed); val/err/wg
// follow singleflight's own synchronization (wg as the completion
// signal) and need no separate lock.
type call[V any] struct {
	wg        sync.WaitGroup
	val       V
	err       error
	mu        sync.Mutex
	dups      int
	chans     []chan<- OnceGroupResult[V]
	completed bool
}

func (c *call[V]) addDup() {
	c.mu.Lock()
	c.dups++
	c.mu.Unlock()
}

func (c *call[V]) shared() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dups > 0 || len(c.chans) > 1
}

// OnceGroup forms a namespace of keyed work in which only one call per
// key is in flight at a time; duplicate callers for the same key block
// on and share the original caller's result. Modeled on
// x/sync/singleflight.Group but built directly on Map[K,V] rather than
// a bespoke table.
type OnceGroup[K comparable, V any] struct {
	m *Map[K, *call[V]]
}

// NewOnceGroup constructs a ready-to-use OnceGroup.
func NewOnceGroup[K comparable, V any]() *OnceGroup[K, V] {
	return &OnceGroup[K, V]{m: NewMap[K, *call[V]]()}
}

// publish installs c0 as the call for key unless one is already
// in flight, in which case the existing call is returned instead.
func (g *OnceGroup[K, V]) publish(key K, c0 *call[V]) (c *call[V], loaded bool) {
	prior, hadPrior := g.m.Upsert(key, func(p *call[V], had bool) *call[V] {
		if had {
			return p
		}
		return c0
	})
	if hadPrior {
		return prior, true
	}
	return c0, false
}

// Do executes and returns the results of the given function, making
// sure that only one execution is in-flight for a given key at a time.
// If a duplicate comes in, the duplicate caller waits for the original
// to complete and receives the same results. The returned bool reports
// whether the value was given to multiple callers.
func (g *OnceGroup[K, V]) Do(
	key K,
	fn func() (V, error),
) (V, error, bool) {
	primary := &call[V]{}
	primary.wg.Add(1)
	c, loaded := g.publish(key, primary)
	if loaded {
		c.addDup()
		c.wg.Wait()
		var e *panicError
		if errors.As(c.err, &e) {
			panic(e)
		} else if errors.Is(c.err, errGoexit) {
			runtime.Goexit()
		}
		return c.val, c.err, true
	}

	// Primary executes with panic/Goexit semantics compatible with x/sync/singleflight.
	g.doCall(c, key, fn)
	return c.val, c.err, c.shared()
}

// DoChan is like Do but returns a channel that will receive the
// results when they are ready.
//
// The returned channel will not be closed.
func (g *OnceGroup[K, V]) DoChan(
	key K,
	fn func() (V, error),
) <-chan OnceGroupResult[V] {
	ch := make(chan OnceGroupResult[V], 1)
	c0 := &call[V]{
		chans: append(
			make([]chan<- OnceGroupResult[V], 0, runtime.GOMAXPROCS(0)),
			ch,
		),
	}
	c0.wg.Add(1)
	c, loaded := g.publish(key, c0)
	if loaded {
		c.mu.Lock()
		done := c.completed
		c.mu.Unlock()
		if done {
			ch <- OnceGroupResult[V]{Val: c.val, Err: c.err, Shared: c.shared()}
			return ch
		}
		c.addDup()
		go func(c *call[V], ch chan<- OnceGroupResult[V]) {
			c.wg.Wait()
			var e *panicError
			switch {
			case errors.As(c.err, &e):
				go panic(e)
				select {}
			case errors.Is(c.err, errGoexit):
				return
			default:
				ch <- OnceGroupResult[V]{Val: c.val, Err: c.err, Shared: c.shared()}
			}
		}(c, ch)
		return ch
	}
	go g.doCall(c, key, fn)
	return ch
}

// Forget tells the group to stop tracking a key. Future calls to Do for
// this key will invoke the function rather than waiting for an existing
// call to complete.
func (g *OnceGroup[K, V]) Forget(key K) {
	g.m.Remove(key)
}

// ForgetUnshared deletes the key only if no duplicates joined.
func (g *OnceGroup[K, V]) ForgetUnshared(key K) bool {
	return g.m.RemoveFn(key, func(c *call[V]) bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.dups == 0
	})
}

// doCall runs fn with panic/Goexit semantics and broadcasts results.
func (g *OnceGroup[K, V]) doCall(
	c *call[V],
	key K,
	fn func() (V, error),
) {
	normalReturn := false
	recovered := false

	defer func() {
		// Mark Goexit if the goroutine terminated without normal return
		// and without a recovered panic.
		if !normalReturn && !recovered {
			c.err = errGoexit
		}

		c.wg.Done()
		c.mu.Lock()
		c.completed = true
		chs := c.chans
		c.mu.Unlock()

		// After wg.Done, duplicates in Do() will wake and re-panic/goexit.
		var e *panicError
		switch {
		case errors.As(c.err, &e):
			// Match x/sync: ensure panic is unrecoverable and visible.
			if len(chs) > 0 {
				//goland:noinspection All
				go panic(e)
				select {}
			} else {
				panic(e)
			}
		case errors.Is(c.err, errGoexit):
			// Primary goroutine already Goexit'ed; nothing to do here.
		default:
			// Normal return: notify DoChan waiters.
			shared := c.shared()
			for _, ch := range chs {
				ch <- OnceGroupResult[V]{Val: c.val, Err: c.err, Shared: shared}
			}
		}
	}()

	// Distinguish panic from Goexit via double-defer with inner wrapper,
	// matching the structure of the official implementation.
	func() {
		defer func() {
			if !normalReturn {
				// Only recover when not a normal return, so we can
				// differentiate panic vs Goexit.
				if r := recover(); r != nil {
					c.err = newPanicError(r)
				}
			}
		}()

		c.val, c.err = fn()
		normalReturn = true
	}()

	if !normalReturn {
		recovered = true
	}
}

// -------------------------
// Panic/Goexit handling
// -------------------------

// panicError mirrors the type used by x/sync/singleflight.
// A panicError is an arbitrary value recovered from a panic
// with the stack trace during the execution of given function.
type panicError struct {
	value any
	stack []byte
}

// Error implements error interface.
func (p *panicError) Error() string {
	return fmt.Sprintf("%v\n\n%s", p.value, p.stack)
}

// Unwrap returns the underlying error value, if any.
func (p *panicError) Unwrap() error {
	if err, ok := p.value.(error); ok {
		return err
	}
	return nil
}

func newPanicError(v any) error {
	stack := debug.Stack()
	// Trim first line "goroutine N [status]:" which can be misleading.
	if line := bytes.IndexByte(stack, '\n'); line >= 0 {
		stack = stack[line+1:]
	}
	return &panicError{value: v, stack: stack}
}

var errGoexit = errors.New("runtime.Goexit was called")
