package workload

import (
	"math/rand"
	"testing"
)

func TestUniformStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	keys := Uniform(rng, 1000, 50)
	for _, k := range keys {
		if k < 0 || k >= 50 {
			t.Fatalf("key %d out of [0,50)", k)
		}
	}
}

func TestZipfianSkewsTowardLowIndices(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	keys := Zipfian(rng, 5000, 1000, 1.5)
	counts := make(map[int]int)
	for _, k := range keys {
		counts[k]++
	}
	if counts[0] < counts[999] {
		t.Fatalf("expected key 0 to be more frequent than key 999 under skew, got %d vs %d", counts[0], counts[999])
	}
}

func TestTrigramWordsAreUniqueAndNonEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	words := TrigramWords(rng, 200)
	if len(words) != 200 {
		t.Fatalf("len(words) = %d, want 200", len(words))
	}
	seen := make(map[string]bool, 200)
	for _, w := range words {
		if w == "" {
			t.Fatal("empty word generated")
		}
		if seen[w] {
			t.Fatalf("duplicate word %q", w)
		}
		seen[w] = true
	}
}
