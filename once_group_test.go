package epochmap

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestOnceGroupDoSharesResult(t *testing.T) {
	g := NewOnceGroup[string, int]()
	var calls int32

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	results := make([]int, n)
	shared := make([]bool, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			<-start
			v, err, sh := g.Do("key", func() (int, error) {
				atomic.AddInt32(&calls, 1)
				return 42, nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = v
			shared[i] = sh
		}(i)
	}
	close(start)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("fn called %d times, want 1", got)
	}
	for i, v := range results {
		if v != 42 {
			t.Fatalf("result[%d] = %d, want 42", i, v)
		}
	}
}

func TestOnceGroupDoPropagatesError(t *testing.T) {
	g := NewOnceGroup[string, int]()
	wantErr := errors.New("boom")
	_, err, _ := g.Do("k", func() (int, error) { return 0, wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestOnceGroupForgetAllowsReExecution(t *testing.T) {
	g := NewOnceGroup[string, int]()
	var calls int32
	fn := func() (int, error) {
		atomic.AddInt32(&calls, 1)
		return int(atomic.LoadInt32(&calls)), nil
	}

	v1, _, _ := g.Do("k", fn)
	g.Forget("k")
	v2, _, _ := g.Do("k", fn)

	if v1 == v2 {
		t.Fatal("expected a distinct result after Forget")
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestOnceGroupDoChan(t *testing.T) {
	g := NewOnceGroup[string, int]()
	ch := g.DoChan("k", func() (int, error) { return 7, nil })
	res := <-ch
	if res.Err != nil || res.Val != 7 {
		t.Fatalf("DoChan result = %+v", res)
	}
}
