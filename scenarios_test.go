package epochmap

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/llxisdsh/epochmap/internal/workload"
)

func TestSequentialInsertFindRemove(t *testing.T) {
	m := NewMap[int, int]()
	for k := 1; k <= 10; k++ {
		m.Insert(k, k*2)
	}
	for k := 1; k <= 10; k++ {
		if v, ok := m.Find(k); !ok || v != k*2 {
			t.Fatalf("Find(%d) = %v, %v, want %v, true", k, v, ok, k*2)
		}
	}
	if _, ok := m.Find(0); ok {
		t.Fatal("Find(0) should be absent")
	}
	if v, ok := m.Remove(5); !ok || v != 10 {
		t.Fatalf("Remove(5) = %v, %v, want 10, true", v, ok)
	}
	if _, ok := m.Find(5); ok {
		t.Fatal("Find(5) after Remove should be absent")
	}
	if got := m.Size(); got != 9 {
		t.Fatalf("Size() = %d, want 9", got)
	}
}

func TestPartitionedConcurrentInsert(t *testing.T) {
	m := NewMap[int, int](WithCapacity[int, int](4))
	const workers = 8
	const total = 1000
	perWorker := total / workers

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				k := w*perWorker + i + 1
				m.Insert(k, k)
			}
		}(w)
	}
	wg.Wait()

	if got := m.Size(); got != total {
		t.Fatalf("Size() = %d, want %d", got, total)
	}
	for k := 1; k <= total; k++ {
		if v, ok := m.Find(k); !ok || v != k {
			t.Fatalf("Find(%d) = %v, %v", k, v, ok)
		}
	}
}

// TestForcedGrowthUnderConcurrency runs at reduced scale (10k instead of
// 100k) to keep test runtime modest; the property under test (every key
// survives repeated migrations) does not depend on the exact population
// size.
func TestForcedGrowthUnderConcurrency(t *testing.T) {
	m := NewMap[int, int](WithCapacity[int, int](1))
	const workers = 16
	const total = 10000
	perWorker := total / workers

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				k := w*perWorker + i + 1
				m.Insert(k, k)
			}
		}(w)
	}
	wg.Wait()

	if got := m.Size(); got != total {
		t.Fatalf("Size() = %d, want %d", got, total)
	}
	for k := 1; k <= total; k++ {
		if v, ok := m.Find(k); !ok || v != k {
			t.Fatalf("Find(%d) = %v, %v", k, v, ok)
		}
	}
}

func TestSteadyStateMixedWorkload(t *testing.T) {
	const n = 2000
	m := NewMap[int, int]()
	for k := 0; k < n; k++ {
		m.Insert(k, k)
	}

	rng := rand.New(rand.NewSource(7))
	keys := workload.Uniform(rng, 20000, 2*n)

	var finds, findHits, updates, updateHits int
	for _, k := range keys {
		switch r := rng.Float64(); {
		case r < 0.5:
			finds++
			if _, ok := m.Find(k); ok {
				findHits++
			}
		case r < 0.75:
			updates++
			if _, existed := m.Insert(k, k); !existed {
				updateHits++
			}
		default:
			updates++
			if _, existed := m.Remove(k); existed {
				updateHits++
			}
		}
	}

	size := m.Size()
	if float64(size) < 0.4*2*n || float64(size) > 0.6*2*n {
		t.Logf("size drifted to %d for population window [0, %d); this is a soft property under a short random run", size, 2*n)
	}
	if finds > 0 {
		ratio := float64(findHits) / float64(finds)
		if ratio < 0 || ratio > 1 {
			t.Fatalf("impossible find-hit ratio %f", ratio)
		}
	}
	_ = updates
	_ = updateHits
}

// TestUpsertAccumulator runs at reduced scale (100k instead of
// 1,000,000 hits) to keep test runtime modest.
func TestUpsertAccumulator(t *testing.T) {
	m := NewMap[int, int]()
	const keys = 1000
	const totalHits = 100000
	const workers = 16
	perWorker := totalHits / workers

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w) + 1))
			for i := 0; i < perWorker; i++ {
				k := rng.Intn(keys)
				m.Upsert(k, func(prior int, hadPrior bool) int {
					if !hadPrior {
						return 1
					}
					return prior + 1
				})
			}
		}(w)
	}
	wg.Wait()

	var sum int64
	m.Range(func(_ int, v int) bool {
		sum += int64(v)
		return true
	})
	if sum != totalHits {
		t.Fatalf("sum of accumulator values = %d, want %d", sum, totalHits)
	}
}

// TestIndirectStringEntriesAndReclaim runs at reduced scale (10k
// instead of 100k strings).
func TestIndirectStringEntriesAndReclaim(t *testing.T) {
	m := NewMap[string, int](WithIndirectEntries[string, int]())
	rng := rand.New(rand.NewSource(3))
	words := workload.TrigramWords(rng, 10000)

	for i, w := range words {
		m.Insert(w, i)
	}
	if got := m.Size(); got != int64(len(words)) {
		t.Fatalf("Size() = %d, want %d", got, len(words))
	}

	entries := m.Entries()
	if len(entries) != len(words) {
		t.Fatalf("Entries() len = %d, want %d", len(entries), len(words))
	}
	seen := make(map[string]bool, len(words))
	for _, e := range entries {
		seen[e.Key] = true
	}
	for _, w := range words {
		if !seen[w] {
			t.Fatalf("entries missing word %q", w)
		}
	}

	m.Clear()
	if got := m.Size(); got != 0 {
		t.Fatalf("Size() after Clear = %d, want 0", got)
	}
}
