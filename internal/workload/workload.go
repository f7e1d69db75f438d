// Package workload provides key-stream generators covering three
// distributions (uniform, Zipfian, trigram string), reduced to pure
// generators this module's own tests use to build skewed and
// string-keyed populations. It is not a benchmark harness: no workers,
// no timing, no CLI.
package workload

import (
	"math/rand"
	"strings"
)

// Uniform returns n keys drawn uniformly from [0, space).
func Uniform(rng *rand.Rand, n, space int) []int {
	keys := make([]int, n)
	for i := range keys {
		keys[i] = rng.Intn(space)
	}
	return keys
}

// Zipfian returns n keys drawn from a Zipfian distribution over
// [0, space) with skew parameter s, built on the standard library's
// math/rand Zipf sampler. s must be greater than 1 (rand.NewZipf returns
// nil otherwise); larger s skews harder toward low indices.
func Zipfian(rng *rand.Rand, n, space int, s float64) []int {
	z := rand.NewZipf(rng, s, 1, uint64(space-1))
	keys := make([]int, n)
	for i := range keys {
		keys[i] = int(z.Uint64())
	}
	return keys
}

// trigrams is a small fixed alphabet of three-letter fragments used to
// build pronounceable pseudo-word string keys.
var trigrams = []string{
	"the", "ing", "and", "ion", "tio", "ent", "ati", "for", "her", "ter",
	"hat", "tha", "ere", "ate", "his", "con", "res", "ver", "all", "ons",
}

// TrigramWords returns n pseudo-word string keys, each built by
// concatenating two to four random trigrams, then deduplicated in the
// order first seen.
func TrigramWords(rng *rand.Rand, n int) []string {
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for len(out) < n {
		var b strings.Builder
		parts := 2 + rng.Intn(3)
		for i := 0; i < parts; i++ {
			b.WriteString(trigrams[rng.Intn(len(trigrams))])
		}
		w := b.String()
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
